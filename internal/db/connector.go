package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vvka-141/tablekit/internal/logging"
	"github.com/vvka-141/tablekit/internal/retry"
	"github.com/vvka-141/tablekit/pkg/tablekit"
)

// Connection pool configuration constants
const (
	// DefaultSpareConns is added on top of the session limit so autocommit
	// statements issued alongside an open transaction can borrow a connection.
	DefaultSpareConns = 2

	// DefaultMaxConnIdleTime keeps connections of idle sessions alive.
	DefaultMaxConnIdleTime = 30 * time.Minute
)

func configurePool(poolConfig *pgxpool.Config, maxSessions int, logger tablekit.Logger) {
	poolConfig.MaxConns = int32(maxSessions + DefaultSpareConns)
	poolConfig.MinConns = 0
	poolConfig.MaxConnIdleTime = DefaultMaxConnIdleTime
	poolConfig.ConnConfig.OnNotice = func(_ *pgconn.PgConn, notice *pgconn.Notice) {
		logger.Verbose("NOTICE: %s", notice.Message)
	}
}

// Connector opens a pgx pool for a connection string with automatic retry
// on transient failures.
type Connector struct {
	connString  string
	maxSessions int
	policy      tablekit.RetryPolicy
	logger      tablekit.Logger
	executor    *retry.Executor
}

// ConnectorOption configures a Connector.
type ConnectorOption func(*Connector)

// WithMaxSessions sizes the pgx pool for the given session limit.
func WithMaxSessions(n int) ConnectorOption {
	return func(c *Connector) {
		if n > 0 {
			c.maxSessions = n
		}
	}
}

// WithConnectPolicy overrides the retry policy used while connecting.
func WithConnectPolicy(policy tablekit.RetryPolicy) ConnectorOption {
	return func(c *Connector) {
		c.policy = policy
	}
}

// WithConnectorLogger sets the logger for retries and server notices.
func WithConnectorLogger(logger tablekit.Logger) ConnectorOption {
	return func(c *Connector) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewConnector creates a Connector for a PostgreSQL connection string (URL or
// key/value form). Retry behavior uses tablekit defaults: DefaultRetryMaxAttempts
// attempts, exponential backoff starting at DefaultRetryInitialDelay.
func NewConnector(connString string, opts ...ConnectorOption) *Connector {
	c := &Connector{
		connString:  connString,
		maxSessions: tablekit.DefaultMaxSessions,
		policy:      retry.DefaultPolicy(),
		logger:      logging.NewNullLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.executor = retry.NewExecutor(nil, retry.NewStatusClassifier(), retry.WithLogger(c.logger)).
		WithOnRetry(func(attempt int, err error, delay time.Duration) {
			c.logger.Info("Connection attempt %d failed, retrying in %v: %v", attempt, delay, err)
		})
	return c
}

// Connect establishes a connection pool with automatic retry.
func (c *Connector) Connect(ctx context.Context) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(c.connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w: %w", tablekit.ErrInvalidConfig, err)
	}
	configurePool(poolConfig, c.maxSessions, c.logger)

	host := poolConfig.ConnConfig.Host
	port := int(poolConfig.ConnConfig.Port)
	database := poolConfig.ConnConfig.Database

	var pool *pgxpool.Pool
	err = c.executor.Retry(ctx, c.policy, true, func(ctx context.Context) error {
		p, err := pgxpool.NewWithConfig(ctx, poolConfig)
		if err != nil {
			return wrapConnectionError(toStatusError(err), host, port, database)
		}

		if err := p.Ping(ctx); err != nil {
			p.Close()
			return wrapConnectionError(toStatusError(err), host, port, database)
		}

		pool = p
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", tablekit.ErrConnectionFailed, err)
	}

	return pool, nil
}

// wrapConnectionError wraps raw pgx connection errors with actionable guidance.
func wrapConnectionError(err error, host string, port int, database string) error {
	errStr := strings.ToLower(err.Error())
	addr := fmt.Sprintf("%s:%d", host, port)

	switch {
	case strings.Contains(errStr, "connection refused") || strings.Contains(errStr, "actively refused"):
		return fmt.Errorf(`connection refused to %s

Possible causes:
  - PostgreSQL is not running (check: pg_isready -h %s -p %d)
  - Wrong host or port
  - Firewall blocking the connection

Original error: %w`, addr, host, port, err)

	case strings.Contains(errStr, "no such host") || strings.Contains(errStr, "no host"):
		return fmt.Errorf(`cannot resolve host "%s"

Possible causes:
  - Hostname is misspelled
  - DNS is not configured or reachable

Original error: %w`, host, err)

	case strings.Contains(errStr, "password authentication failed"):
		return fmt.Errorf(`password authentication failed for database "%s"

Possible causes:
  - Wrong password in the connection string or ~/.pgpass
  - Wrong username

Original error: %w`, database, err)

	case strings.Contains(errStr, "does not exist"):
		return fmt.Errorf(`database "%s" does not exist

To create it:
  createdb %s

Original error: %w`, database, database, err)

	case strings.Contains(errStr, "timeout") || strings.Contains(errStr, "timed out"):
		return fmt.Errorf(`connection timed out to %s

Possible causes:
  - Server is overloaded or unresponsive
  - Firewall silently dropping packets
  - Wrong host/port (server not listening)

Original error: %w`, addr, err)

	case strings.Contains(errStr, "ssl") || strings.Contains(errStr, "tls"):
		return fmt.Errorf(`SSL/TLS connection error

Possible causes:
  - Server requires SSL but sslmode in the connection string is wrong
  - Certificate verification failed (try sslmode=require)

Original error: %w`, err)

	case strings.Contains(errStr, "too many connections"):
		return fmt.Errorf(`too many connections to database "%s"

Possible causes:
  - max_connections limit reached in postgresql.conf
  - pool.max_sessions in tablekit.yaml is larger than the server allows

Original error: %w`, database, err)

	default:
		return fmt.Errorf("failed to connect to database: %w", err)
	}
}
