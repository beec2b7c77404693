package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vvka-141/tablekit/internal/logging"
	"github.com/vvka-141/tablekit/internal/session"
	"github.com/vvka-141/tablekit/pkg/tablekit"
)

// Acquirer lends sessions. *session.Pool implements it.
type Acquirer interface {
	Acquire(ctx context.Context, timeout time.Duration) (*session.Session, error)
	Release(s *session.Session, healthy bool)
}

// Operation is user code run on a leased session.
type Operation func(ctx context.Context, s *session.Session) error

// TxOperation is user code run inside an interactive transaction.
type TxOperation func(ctx context.Context, tx *session.Transaction) error

// DefaultPolicy returns a RetryPolicy populated with the package defaults.
func DefaultPolicy() tablekit.RetryPolicy {
	return tablekit.RetryPolicy{
		MaxAttempts:    tablekit.DefaultRetryMaxAttempts,
		AcquireTimeout: tablekit.DefaultAcquireTimeout,
		FastBackoff:    NewExponentialBackoff(),
		SlowBackoff:    NewSlowBackoff(),
	}
}

// ExecutorOption is a functional option for configuring Executor.
type ExecutorOption func(*Executor)

// WithLogger sets the logger used to report retried attempts.
func WithLogger(logger tablekit.Logger) ExecutorOption {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// Executor runs operations on pooled sessions, retrying failures according
// to their classification and the caller's RetryPolicy.
//
// Thread Safety:
// The Executor is safe for concurrent use. WithOnRetry returns a NEW instance
// with the callback configured; the original Executor remains unchanged.
type Executor struct {
	pool       Acquirer
	classifier tablekit.ErrorClassifier
	logger     tablekit.Logger
	onRetry    func(attempt int, err error, delay time.Duration)
}

// NewExecutor creates a retry executor. pool may be nil when only Retry is used.
// Panics if classifier is nil.
func NewExecutor(pool Acquirer, classifier tablekit.ErrorClassifier, opts ...ExecutorOption) *Executor {
	if classifier == nil {
		panic("classifier cannot be nil")
	}
	e := &Executor{
		pool:       pool,
		classifier: classifier,
		logger:     logging.NewNullLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// WithOnRetry returns a new Executor with the specified retry callback.
// attempt is the one-based number of the attempt that failed.
//
// Example:
//
//	executor := retry.NewExecutor(pool, classifier)
//	executor1 := executor.WithOnRetry(callback1) // New instance
//	executor2 := executor.WithOnRetry(callback2) // Another new instance
func (e *Executor) WithOnRetry(callback func(attempt int, err error, delay time.Duration)) *Executor {
	clone := *e
	clone.onRetry = callback
	return &clone
}

// Do leases a session, runs op on it and releases the session, retrying on
// retryable failures. idempotent tells whether op may safely run more than once
// after a failure with an unknown outcome.
//
// Errors:
//   - fatal failures are returned unchanged
//   - an unknown outcome of a non-idempotent op wraps tablekit.ErrAmbiguous
//   - running out of attempts wraps tablekit.ErrRetriesExhausted and the last failure
//   - cancellation of ctx wraps tablekit.ErrCancelled
func (e *Executor) Do(ctx context.Context, policy tablekit.RetryPolicy, idempotent bool, op Operation) error {
	if e.pool == nil {
		return fmt.Errorf("executor has no session pool: %w", tablekit.ErrInvalidConfig)
	}
	return e.loop(ctx, policy, idempotent, func(ctx context.Context) (*session.Session, error) {
		s, err := e.pool.Acquire(ctx, policy.AcquireTimeout)
		if err != nil {
			return nil, err
		}
		return s, e.guard(s, func() error { return op(ctx, s) })
	})
}

// DoTx runs op inside an interactive transaction of the given mode. The
// transaction is committed when op returns nil and is still active, and
// rolled back when op fails.
func (e *Executor) DoTx(ctx context.Context, policy tablekit.RetryPolicy, mode tablekit.TxMode, idempotent bool, op TxOperation) error {
	return e.Do(ctx, policy, idempotent, func(ctx context.Context, s *session.Session) error {
		tx, err := s.BeginTransaction(ctx, mode)
		if err != nil {
			return err
		}
		if err := op(ctx, tx); err != nil {
			// op may have finished the transaction itself before failing.
			if rbErr := tx.Rollback(ctx); rbErr != nil && !session.IsClosed(rbErr) {
				e.logger.Verbose("Rollback of transaction %s failed: %v", tx.ID(), rbErr)
			}
			return err
		}
		if tx.State() == session.TxActive {
			return tx.Commit(ctx)
		}
		return nil
	})
}

// Retry runs op without a session, with the same classification and backoff as Do.
func (e *Executor) Retry(ctx context.Context, policy tablekit.RetryPolicy, idempotent bool, op func(ctx context.Context) error) error {
	return e.loop(ctx, policy, idempotent, func(ctx context.Context) (*session.Session, error) {
		return nil, op(ctx)
	})
}

// guard releases s as broken if fn panics.
func (e *Executor) guard(s *session.Session, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			e.pool.Release(s, false)
			panic(r)
		}
	}()
	return fn()
}

func (e *Executor) release(s *session.Session, healthy bool) {
	if s != nil && e.pool != nil {
		e.pool.Release(s, healthy)
	}
}

// loop runs attempt up to policy.MaxAttempts times. Every attempt hands back
// the session it used, if any, and loop releases it according to the outcome.
func (e *Executor) loop(ctx context.Context, policy tablekit.RetryPolicy, idempotent bool, attempt func(ctx context.Context) (*session.Session, error)) error {
	if err := policy.Validate(); err != nil {
		return err
	}

	var lastErr error
	for n := 1; n <= policy.MaxAttempts; n++ {
		if err := ctx.Err(); err != nil {
			return cancelled(err, lastErr)
		}

		s, err := attempt(ctx)
		if err == nil {
			e.release(s, true)
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			e.release(s, false)
			return cancelled(ctxErr, err)
		}

		lastErr = err
		d := e.classifier.Classify(err)

		switch d.Class {
		case tablekit.ClassFatal:
			e.release(s, !d.BreakSession)
			return err
		case tablekit.ClassIdempotentOnly:
			if !idempotent && !policy.RetryNonIdempotent {
				e.release(s, false)
				return fmt.Errorf("%w: %w", tablekit.ErrAmbiguous, err)
			}
		}
		e.release(s, !d.BreakSession)

		if n == policy.MaxAttempts {
			break
		}

		delay := policy.BackoffFor(d).NextDelay(n - 1)
		e.logger.Verbose("Attempt %d/%d failed (%s): %v; retrying in %v", n, policy.MaxAttempts, d.Class, err, delay)
		if e.onRetry != nil {
			e.onRetry(n, err, delay)
		}

		if err := wait(ctx, delay); err != nil {
			return cancelled(err, lastErr)
		}
	}

	return fmt.Errorf("%w after %d attempts: %w", tablekit.ErrRetriesExhausted, policy.MaxAttempts, lastErr)
}

func wait(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func cancelled(ctxErr, lastErr error) error {
	if lastErr != nil && !errors.Is(lastErr, ctxErr) {
		return fmt.Errorf("%w: %w (last error: %v)", tablekit.ErrCancelled, ctxErr, lastErr)
	}
	return fmt.Errorf("%w: %w", tablekit.ErrCancelled, ctxErr)
}
