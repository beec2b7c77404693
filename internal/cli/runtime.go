package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/vvka-141/tablekit/internal/config"
	"github.com/vvka-141/tablekit/internal/db"
	"github.com/vvka-141/tablekit/internal/logging"
	"github.com/vvka-141/tablekit/internal/retry"
	"github.com/vvka-141/tablekit/internal/session"
	"github.com/vvka-141/tablekit/pkg/tablekit"
)

// DefaultCommandTimeout bounds a whole command when neither --timeout nor
// tablekit.yaml set one.
const DefaultCommandTimeout = 5 * time.Minute

// settings is everything a command needs before it connects.
type settings struct {
	project    *config.ProjectConfig
	logger     tablekit.Logger
	connString string
	pool       tablekit.PoolConfig
	policy     tablekit.RetryPolicy
	classifier *retry.StatusClassifier
	paging     config.Page
	timeout    time.Duration
}

// loadProjectConfig loads godotenv and project configuration.
// Returns nil config if tablekit.yaml does not exist (not an error).
func loadProjectConfig(dir string) (*config.ProjectConfig, error) {
	_ = godotenv.Load()

	projectCfg, err := config.Load(dir)
	if err != nil {
		if errors.Is(err, config.ErrConfigNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load tablekit.yaml: %w", err)
	}
	return projectCfg, nil
}

// buildSettings resolves configuration from flags, environment and tablekit.yaml.
func buildSettings(cmd *cobra.Command, flagTimeout time.Duration) (*settings, error) {
	projectCfg, err := loadProjectConfig(getStringFlag(cmd, "config-dir"))
	if err != nil {
		return nil, err
	}

	format := getStringFlag(cmd, "log-format")
	if format == "" && projectCfg != nil {
		format = projectCfg.LogFormat
	}
	logger, err := logging.New(format, getVerboseFlag(cmd))
	if err != nil {
		return nil, err
	}

	s := &settings{project: projectCfg, logger: logger}

	s.connString = getStringFlag(cmd, "connection")
	if s.connString == "" {
		s.connString = projectCfg.ConnectionString()
	}

	if s.pool, err = projectCfg.PoolConfig(); err != nil {
		return nil, err
	}
	if s.policy, err = projectCfg.RetryPolicy(); err != nil {
		return nil, err
	}
	if s.classifier, err = projectCfg.Classifier(); err != nil {
		return nil, err
	}
	if s.paging, err = projectCfg.Paging(); err != nil {
		return nil, err
	}
	if s.timeout, err = resolveEffectiveTimeout(projectCfg, flagTimeout); err != nil {
		return nil, err
	}
	return s, nil
}

// resolveEffectiveTimeout prefers --timeout, then tablekit.yaml, then the default.
func resolveEffectiveTimeout(projectCfg *config.ProjectConfig, flagTimeout time.Duration) (time.Duration, error) {
	if flagTimeout > 0 {
		return flagTimeout, nil
	}
	if projectCfg != nil && projectCfg.Timeout != "" {
		parsed, err := time.ParseDuration(projectCfg.Timeout)
		if err != nil {
			return 0, fmt.Errorf("invalid timeout in tablekit.yaml: %w: %w", tablekit.ErrInvalidConfig, err)
		}
		return parsed, nil
	}
	return DefaultCommandTimeout, nil
}

// commandContext applies the command timeout and cancels on Ctrl+C or SIGTERM.
func commandContext(timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	ctx, cancel := context.WithTimeout(ctx, timeout)
	return ctx, func() {
		cancel()
		stop()
	}
}

// app is a connected session pool with its retry executor.
type app struct {
	settings  *settings
	transport *db.Transport
	pool      *session.Pool
	executor  *retry.Executor
}

func openApp(ctx context.Context, s *settings) (*app, error) {
	if s.connString == "" {
		return nil, fmt.Errorf("no connection string: use --connection, $%s or 'connection' in tablekit.yaml: %w",
			config.ConnectionEnvVar, tablekit.ErrInvalidConfig)
	}

	dbLogger := logging.Component(s.logger, "db")
	connector := db.NewConnector(s.connString,
		db.WithMaxSessions(s.pool.MaxSessions),
		db.WithConnectPolicy(s.policy),
		db.WithConnectorLogger(dbLogger),
	)
	transport, err := db.Dial(ctx, connector, db.WithTransportLogger(dbLogger))
	if err != nil {
		return nil, err
	}

	poolLogger := logging.Component(s.logger, "pool")
	pool, err := session.NewPool(transport, s.pool, session.WithLogger(poolLogger))
	if err != nil {
		transport.Close()
		return nil, err
	}
	poolLogger.Verbose("Session pool ready: up to %d sessions", pool.MaxSessions())

	retryLogger := logging.Component(s.logger, "retry")
	executor := retry.NewExecutor(pool, s.classifier, retry.WithLogger(retryLogger)).
		WithOnRetry(func(attempt int, err error, delay time.Duration) {
			retryLogger.Info("Attempt %d failed, retrying in %v: %v", attempt, delay, err)
		})

	return &app{settings: s, transport: transport, pool: pool, executor: executor}, nil
}

// Close shuts the pool down, closes the transport and flushes the logger.
func (a *app) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), a.settings.pool.DeleteTimeout+time.Second)
	defer cancel()

	if err := a.pool.Shutdown(ctx); err != nil {
		a.settings.logger.Error("%v", err)
	}
	a.transport.Close()
	if syncer, ok := a.settings.logger.(interface{ Sync() error }); ok {
		_ = syncer.Sync()
	}
}
