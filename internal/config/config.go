package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vvka-141/tablekit/internal/paginate"
	"github.com/vvka-141/tablekit/internal/retry"
	"github.com/vvka-141/tablekit/pkg/tablekit"
)

// ErrConfigNotFound is returned when the config file does not exist.
// Callers can check for this with errors.Is(err, config.ErrConfigNotFound).
var ErrConfigNotFound = errors.New("config file not found")

// ConnectionEnvVar overrides the connection string of the config file.
const ConnectionEnvVar = "TABLEKIT_CONNECTION"

// Durations are strings in time.ParseDuration format ("3s", "500ms").
// Empty fields keep the tablekit defaults.
type PoolConfig struct {
	MaxSessions     int    `yaml:"max_sessions,omitempty"`
	AcquireTimeout  string `yaml:"acquire_timeout,omitempty"`
	IdleEvictionAge string `yaml:"idle_eviction_age,omitempty"`
	CreateTimeout   string `yaml:"create_timeout,omitempty"`
	DeleteTimeout   string `yaml:"delete_timeout,omitempty"`
	CallTimeout     string `yaml:"call_timeout,omitempty"`
}

type RetryConfig struct {
	MaxAttempts        int      `yaml:"max_attempts,omitempty"`
	AcquireTimeout     string   `yaml:"acquire_timeout,omitempty"`
	InitialDelay       string   `yaml:"initial_delay,omitempty"`
	MaxDelay           string   `yaml:"max_delay,omitempty"`
	SlowInitialDelay   string   `yaml:"slow_initial_delay,omitempty"`
	SlowMaxDelay       string   `yaml:"slow_max_delay,omitempty"`
	Jitter             *float64 `yaml:"jitter,omitempty"`
	RetryNonIdempotent bool     `yaml:"retry_non_idempotent,omitempty"`
}

type PaginationConfig struct {
	PageSize int    `yaml:"page_size,omitempty"`
	MaxPages *int   `yaml:"max_pages,omitempty"`
	ReadMode string `yaml:"read_mode,omitempty"`
	Strategy string `yaml:"strategy,omitempty"`
	Dialect  string `yaml:"dialect,omitempty"`
}

// DecisionConfig overrides the retry decision of one status code.
type DecisionConfig struct {
	Class        string `yaml:"class"`
	BreakSession bool   `yaml:"break_session,omitempty"`
	SlowBackoff  bool   `yaml:"slow_backoff,omitempty"`
}

type ProjectConfig struct {
	Connection     string                    `yaml:"connection,omitempty"`
	LogFormat      string                    `yaml:"log_format,omitempty"`
	Pool           PoolConfig                `yaml:"pool,omitempty"`
	Retry          RetryConfig               `yaml:"retry,omitempty"`
	Pagination     PaginationConfig          `yaml:"pagination,omitempty"`
	Classification map[string]DecisionConfig `yaml:"classification,omitempty"`
	Params         map[string]string         `yaml:"params,omitempty"`
	Timeout        string                    `yaml:"timeout,omitempty"`
}

const ConfigFileName = "tablekit.yaml"

func Load(sourcePath string) (*ProjectConfig, error) {
	configPath := filepath.Join(sourcePath, ConfigFileName)
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConfigNotFound
		}
		return nil, err
	}

	var cfg ProjectConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%s: %w: %w", ConfigFileName, tablekit.ErrInvalidConfig, err)
	}
	return &cfg, nil
}

// ConnectionString returns the connection string, preferring TABLEKIT_CONNECTION.
func (c *ProjectConfig) ConnectionString() string {
	if env := os.Getenv(ConnectionEnvVar); env != "" {
		return env
	}
	if c == nil {
		return ""
	}
	return c.Connection
}

// PoolConfig converts the pool section, starting from tablekit defaults.
func (c *ProjectConfig) PoolConfig() (tablekit.PoolConfig, error) {
	cfg := tablekit.DefaultPoolConfig()
	if c == nil {
		return cfg, nil
	}
	p := c.Pool

	if p.MaxSessions != 0 {
		cfg.MaxSessions = p.MaxSessions
	}
	var errs []error
	parse := func(field, s string, dst *time.Duration) {
		if err := parseDuration("pool."+field, s, dst); err != nil {
			errs = append(errs, err)
		}
	}
	parse("acquire_timeout", p.AcquireTimeout, &cfg.AcquireTimeout)
	parse("idle_eviction_age", p.IdleEvictionAge, &cfg.IdleEvictionAge)
	parse("create_timeout", p.CreateTimeout, &cfg.CreateTimeout)
	parse("delete_timeout", p.DeleteTimeout, &cfg.DeleteTimeout)
	parse("call_timeout", p.CallTimeout, &cfg.CallTimeout)
	if err := errors.Join(errs...); err != nil {
		return tablekit.PoolConfig{}, err
	}

	if err := cfg.Validate(); err != nil {
		return tablekit.PoolConfig{}, err
	}
	return cfg, nil
}

// RetryPolicy converts the retry section, starting from retry.DefaultPolicy.
func (c *ProjectConfig) RetryPolicy() (tablekit.RetryPolicy, error) {
	policy := retry.DefaultPolicy()
	if c == nil {
		return policy, nil
	}
	r := c.Retry

	if r.MaxAttempts != 0 {
		policy.MaxAttempts = r.MaxAttempts
	}
	policy.RetryNonIdempotent = r.RetryNonIdempotent

	initial, maxDelay := tablekit.DefaultRetryInitialDelay, tablekit.DefaultRetryMaxDelay
	slowInitial, slowMax := tablekit.DefaultSlowRetryInitialDelay, tablekit.DefaultSlowRetryMaxDelay
	jitter := tablekit.DefaultRetryJitter
	if r.Jitter != nil {
		jitter = *r.Jitter
	}

	var errs []error
	parse := func(field, s string, dst *time.Duration) {
		if err := parseDuration("retry."+field, s, dst); err != nil {
			errs = append(errs, err)
		}
	}
	parse("acquire_timeout", r.AcquireTimeout, &policy.AcquireTimeout)
	parse("initial_delay", r.InitialDelay, &initial)
	parse("max_delay", r.MaxDelay, &maxDelay)
	parse("slow_initial_delay", r.SlowInitialDelay, &slowInitial)
	parse("slow_max_delay", r.SlowMaxDelay, &slowMax)
	if jitter < 0 || jitter > 1 {
		errs = append(errs, fmt.Errorf("retry.jitter must be within [0, 1], got %v: %w", jitter, tablekit.ErrInvalidConfig))
	}
	if err := errors.Join(errs...); err != nil {
		return tablekit.RetryPolicy{}, err
	}

	policy.FastBackoff = retry.NewExponentialBackoff(
		retry.WithInitialDelay(initial),
		retry.WithMaxDelay(maxDelay),
		retry.WithJitter(jitter),
	)
	policy.SlowBackoff = retry.NewSlowBackoff(
		retry.WithInitialDelay(slowInitial),
		retry.WithMaxDelay(slowMax),
		retry.WithJitter(jitter),
	)

	if err := policy.Validate(); err != nil {
		return tablekit.RetryPolicy{}, err
	}
	return policy, nil
}

// Decisions converts the classification overrides. Keys are status code
// names ("OVERLOADED"), classes are fatal, retryable or idempotent-only.
func (c *ProjectConfig) Decisions() (map[tablekit.StatusCode]tablekit.Decision, error) {
	out := make(map[tablekit.StatusCode]tablekit.Decision)
	if c == nil {
		return out, nil
	}

	var errs []error
	for name, dc := range c.Classification {
		code, err := tablekit.ParseStatusCode(strings.ToUpper(name))
		if err != nil {
			errs = append(errs, fmt.Errorf("classification: %v: %w", err, tablekit.ErrInvalidConfig))
			continue
		}
		class, err := ParseErrorClass(dc.Class)
		if err != nil {
			errs = append(errs, fmt.Errorf("classification.%s: %v: %w", name, err, tablekit.ErrInvalidConfig))
			continue
		}
		out[code] = tablekit.Decision{Class: class, BreakSession: dc.BreakSession, SlowBackoff: dc.SlowBackoff}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return out, nil
}

// Classifier builds the status classifier with the configured overrides.
func (c *ProjectConfig) Classifier() (*retry.StatusClassifier, error) {
	decisions, err := c.Decisions()
	if err != nil {
		return nil, err
	}
	return retry.NewStatusClassifier(retry.WithDecisions(decisions)), nil
}

// Page holds the pagination section in parsed form.
type Page struct {
	PageSize int
	MaxPages int
	ReadMode tablekit.TxMode
	Strategy paginate.Strategy
	Dialect  paginate.Dialect
}

// Paging converts the pagination section. Defaults: page size 3, 10 pages,
// online read-only, union strategy, PostgreSQL dialect.
func (c *ProjectConfig) Paging() (Page, error) {
	page := Page{
		PageSize: tablekit.DefaultPageSize,
		MaxPages: tablekit.DefaultMaxPages,
		ReadMode: tablekit.OnlineReadOnly,
		Strategy: paginate.StrategyUnion,
		Dialect:  paginate.DialectPostgres,
	}
	if c == nil {
		return page, nil
	}
	p := c.Pagination

	var errs []error
	if p.PageSize != 0 {
		page.PageSize = p.PageSize
	}
	if p.MaxPages != nil {
		page.MaxPages = *p.MaxPages
	}
	if page.PageSize < 1 {
		errs = append(errs, fmt.Errorf("pagination.page_size must be at least 1: %w", tablekit.ErrInvalidConfig))
	}
	if page.MaxPages < 0 {
		errs = append(errs, fmt.Errorf("pagination.max_pages cannot be negative: %w", tablekit.ErrInvalidConfig))
	}
	if p.ReadMode != "" {
		mode, err := tablekit.ParseTxMode(p.ReadMode)
		switch {
		case err != nil:
			errs = append(errs, fmt.Errorf("pagination.read_mode: %v: %w", err, tablekit.ErrInvalidConfig))
		case !mode.ReadOnly():
			errs = append(errs, fmt.Errorf("pagination.read_mode must be read-only, got %s: %w", mode, tablekit.ErrInvalidConfig))
		default:
			page.ReadMode = mode
		}
	}
	if p.Strategy != "" {
		s, err := paginate.ParseStrategy(p.Strategy)
		if err != nil {
			errs = append(errs, fmt.Errorf("pagination.strategy: %v: %w", err, tablekit.ErrInvalidConfig))
		}
		page.Strategy = s
	}
	if p.Dialect != "" {
		d, err := paginate.ParseDialect(p.Dialect)
		if err != nil {
			errs = append(errs, fmt.Errorf("pagination.dialect: %v: %w", err, tablekit.ErrInvalidConfig))
		}
		page.Dialect = d
	}

	if err := errors.Join(errs...); err != nil {
		return Page{}, err
	}
	return page, nil
}

// ParseErrorClass parses the String form of tablekit.ErrorClass.
func ParseErrorClass(s string) (tablekit.ErrorClass, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "fatal":
		return tablekit.ClassFatal, nil
	case "retryable":
		return tablekit.ClassRetryable, nil
	case "idempotent-only", "idempotent_only", "idempotent":
		return tablekit.ClassIdempotentOnly, nil
	default:
		return 0, fmt.Errorf("unknown error class %q (expected fatal, retryable or idempotent-only)", s)
	}
}

func parseDuration(field, s string, dst *time.Duration) error {
	if s == "" {
		return nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", field, s, tablekit.ErrInvalidConfig)
	}
	*dst = d
	return nil
}
