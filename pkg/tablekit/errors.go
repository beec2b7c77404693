package tablekit

import (
	"errors"
	"strings"
)

// Sentinel errors for the tablekit failure taxonomy.
// These enable callers to distinguish error types using errors.Is().
//
// Example usage:
//
//	err := executor.Do(ctx, policy, true, op)
//	if errors.Is(err, tablekit.ErrRetriesExhausted) {
//	    // the service stayed unavailable for the whole retry budget
//	}
var (
	// ErrTimeout indicates a session acquire or call deadline was exceeded. Retryable.
	ErrTimeout = errors.New("timeout")

	// ErrTransient indicates the service is overloaded or temporarily unavailable. Retryable.
	ErrTransient = errors.New("transient failure")

	// ErrAmbiguous indicates a non-idempotent call failed after it may have taken effect.
	ErrAmbiguous = errors.New("ambiguous outcome")

	// ErrBadRequest indicates a malformed statement or a request the service refused.
	ErrBadRequest = errors.New("bad request")

	// ErrBadParameters indicates unknown, missing or mistyped statement parameters.
	ErrBadParameters = errors.New("bad parameters")

	// ErrTransactionClosed indicates an operation on a committed or rolled back transaction.
	ErrTransactionClosed = errors.New("transaction closed")

	// ErrSessionMismatch indicates a transaction was used with a session it is not bound to.
	ErrSessionMismatch = errors.New("session mismatch")

	// ErrTransactionInProgress indicates a transaction was begun while another is active on the session.
	ErrTransactionInProgress = errors.New("transaction already in progress")

	// ErrSessionNotLeased indicates a session was used after it was released.
	ErrSessionNotLeased = errors.New("session not leased")

	// ErrNonMonotonicPage indicates the service returned a page that does not advance the cursor.
	ErrNonMonotonicPage = errors.New("non-monotonic page")

	// ErrPaginationLimitExceeded indicates the configured page count guard was exceeded.
	ErrPaginationLimitExceeded = errors.New("pagination limit exceeded")

	// ErrRetriesExhausted wraps the last error after the retry budget was spent.
	ErrRetriesExhausted = errors.New("retries exhausted")

	// ErrClosed indicates the session pool has been shut down.
	ErrClosed = errors.New("pool closed")

	// ErrCreateFailed indicates the service refused to create a session.
	ErrCreateFailed = errors.New("session create failed")

	// ErrCancelled indicates the caller cancelled the operation.
	ErrCancelled = errors.New("cancelled")

	// ErrInvalidConfig indicates the provided configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrConnectionFailed indicates the transport could not connect.
	ErrConnectionFailed = errors.New("connection failed")
)

// ExitCodeForError returns the appropriate exit code for an error.
// Returns ExitSuccess (0) for nil errors, semantic codes for known errors,
// and ExitGeneralError (1) for unclassified errors.
func ExitCodeForError(err error) int {
	if err == nil {
		return ExitSuccess
	}

	switch {
	case errors.Is(err, ErrInvalidConfig):
		return ExitConfigError
	case errors.Is(err, ErrConnectionFailed):
		return ExitConnectionError
	case errors.Is(err, ErrBadParameters), errors.Is(err, ErrBadRequest):
		return ExitBadRequest
	case errors.Is(err, ErrRetriesExhausted), errors.Is(err, ErrTimeout), errors.Is(err, ErrTransient):
		return ExitUnavailable
	case errors.Is(err, ErrAmbiguous):
		return ExitAmbiguous
	case errors.Is(err, ErrNonMonotonicPage), errors.Is(err, ErrPaginationLimitExceeded):
		return ExitProtocolError
	}

	errStr := err.Error()

	// cobra reports usage problems as plain errors
	for _, pattern := range []string{
		"unknown flag",
		"unknown shorthand flag",
		"unknown command",
		"accepts ",
		"requires at least",
		"required flag",
		"invalid argument",
		"missing required argument",
	} {
		if strings.Contains(errStr, pattern) {
			return ExitUsageError
		}
	}

	if strings.Contains(errStr, "failed to connect") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "no such host") {
		return ExitConnectionError
	}

	return ExitGeneralError
}
