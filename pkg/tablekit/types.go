package tablekit

import (
	"errors"
	"fmt"
	"time"
)

// PoolConfig contains the parameters of a session pool.
type PoolConfig struct {
	// MaxSessions bounds Leased + Idle + Broken sessions at all times.
	MaxSessions int

	// AcquireTimeout is used by Acquire when the caller passes a zero timeout.
	AcquireTimeout time.Duration

	// IdleEvictionAge destroys idle sessions unused for longer than this (0 = never).
	IdleEvictionAge time.Duration

	// CreateTimeout and DeleteTimeout bound session creation and destruction calls.
	CreateTimeout time.Duration
	DeleteTimeout time.Duration

	// CallTimeout bounds every Execute/Begin/Commit/Rollback call (0 = caller deadline only).
	CallTimeout time.Duration
}

// DefaultPoolConfig returns a PoolConfig populated with the package defaults.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxSessions:     DefaultMaxSessions,
		AcquireTimeout:  DefaultAcquireTimeout,
		IdleEvictionAge: DefaultIdleEvictionAge,
		CreateTimeout:   DefaultCreateTimeout,
		DeleteTimeout:   DefaultDeleteTimeout,
	}
}

// Validate checks if the PoolConfig has valid values.
// It returns a multi-error if multiple validation failures occur.
func (c *PoolConfig) Validate() error {
	var errs []error

	if c.MaxSessions < 1 {
		errs = append(errs, fmt.Errorf("MaxSessions must be at least 1, got %d: %w", c.MaxSessions, ErrInvalidConfig))
	}
	if c.AcquireTimeout < 0 {
		errs = append(errs, fmt.Errorf("AcquireTimeout cannot be negative: %w", ErrInvalidConfig))
	}
	if c.IdleEvictionAge < 0 {
		errs = append(errs, fmt.Errorf("IdleEvictionAge cannot be negative: %w", ErrInvalidConfig))
	}
	if c.CreateTimeout < 0 || c.DeleteTimeout < 0 || c.CallTimeout < 0 {
		errs = append(errs, fmt.Errorf("call timeouts cannot be negative: %w", ErrInvalidConfig))
	}

	return errors.Join(errs...)
}

// RetryPolicy controls one retried operation.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts, the first one included.
	MaxAttempts int

	// AcquireTimeout bounds session acquisition for each attempt.
	AcquireTimeout time.Duration

	// FastBackoff is used after most retryable failures.
	FastBackoff BackoffStrategy

	// SlowBackoff is used after overload failures. Falls back to FastBackoff when nil.
	SlowBackoff BackoffStrategy

	// RetryNonIdempotent allows retrying non-idempotent operations after
	// failures with an unknown outcome, instead of reporting ErrAmbiguous.
	RetryNonIdempotent bool
}

// Validate checks if the RetryPolicy has valid values.
func (p *RetryPolicy) Validate() error {
	var errs []error

	if p.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("MaxAttempts must be at least 1, got %d: %w", p.MaxAttempts, ErrInvalidConfig))
	}
	if p.AcquireTimeout < 0 {
		errs = append(errs, fmt.Errorf("AcquireTimeout cannot be negative: %w", ErrInvalidConfig))
	}
	if p.FastBackoff == nil {
		errs = append(errs, fmt.Errorf("FastBackoff is required: %w", ErrInvalidConfig))
	}

	return errors.Join(errs...)
}

// BackoffFor returns the strategy matching a classification decision.
func (p *RetryPolicy) BackoffFor(d Decision) BackoffStrategy {
	if d.SlowBackoff && p.SlowBackoff != nil {
		return p.SlowBackoff
	}
	return p.FastBackoff
}
