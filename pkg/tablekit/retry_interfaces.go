package tablekit

import "time"

// ErrorClass is the retry class of a failure.
type ErrorClass int

const (
	// ClassFatal errors are returned to the caller immediately.
	ClassFatal ErrorClass = iota

	// ClassRetryable errors guarantee the operation had no effect and may always be retried.
	ClassRetryable

	// ClassIdempotentOnly errors leave the outcome unknown; only idempotent
	// operations may be retried.
	ClassIdempotentOnly
)

func (c ErrorClass) String() string {
	switch c {
	case ClassFatal:
		return "fatal"
	case ClassRetryable:
		return "retryable"
	case ClassIdempotentOnly:
		return "idempotent-only"
	default:
		return "unknown"
	}
}

// Decision is the outcome of classifying an error.
type Decision struct {
	Class ErrorClass

	// BreakSession marks the session as corrupted; it is destroyed instead of reused.
	BreakSession bool

	// SlowBackoff selects the slow backoff strategy (overload conditions).
	SlowBackoff bool
}

// ErrorClassifier determines how a failure should be handled by the retry executor.
type ErrorClassifier interface {
	// Classify returns the retry decision for a non-nil error.
	Classify(err error) Decision
}

// BackoffStrategy calculates the delay before the next retry attempt.
type BackoffStrategy interface {
	// NextDelay returns the duration to wait before the next attempt.
	// attempt is zero-indexed (0 = first retry, 1 = second retry, etc.)
	NextDelay(attempt int) time.Duration
}
