// Package retry runs operations on pooled sessions and retries the failures
// that are safe to retry.
//
// # Example Usage
//
//	executor := retry.NewExecutor(pool, retry.NewStatusClassifier(), retry.WithLogger(logger))
//
//	err := executor.Do(ctx, retry.DefaultPolicy(), true, func(ctx context.Context, s *session.Session) error {
//	    _, err := s.Execute(ctx, stmt, params, tablekit.AutoCommit(tablekit.OnlineReadOnly))
//	    return err
//	})
//
// # Error Classification
//
// StatusClassifier maps every failure to a tablekit.Decision: fatal,
// retryable, or retryable only for idempotent operations. A decision may also
// mark the session broken so the pool destroys it, or select the slow backoff
// used after overload responses.
//
// # Backoff Strategies
//
// ExponentialBackoff grows the delay by a multiplier per attempt, applies
// jitter and never exceeds its maximum delay.
//
// # Thread Safety
//
// Executor instances are safe for concurrent use. Use WithOnRetry() to create
// independent configurations per goroutine.
package retry
