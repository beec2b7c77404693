package tablekit

import "time"

// Exit codes for semantic error classification.
// These follow Unix/GNU conventions:
//   - 0: Success
//   - 1: General error
//   - 2: CLI usage error (misuse of command line)
//   - 3+: Application-specific errors
const (
	ExitSuccess         = 0  // Command completed successfully
	ExitGeneralError    = 1  // Unknown or unclassified error
	ExitUsageError      = 2  // CLI usage error (missing args, invalid flags)
	ExitPanic           = 3  // Internal panic (unexpected crash)
	ExitConfigError     = 10 // Invalid configuration or parameters
	ExitConnectionError = 11 // Failed to connect to the service
	ExitBadRequest      = 12 // Statement or parameters rejected
	ExitUnavailable     = 13 // Service stayed unavailable through all retries
	ExitAmbiguous       = 14 // Non-idempotent call with unknown outcome
	ExitProtocolError   = 15 // Pagination protocol or safety violation
)

const (
	// DefaultMaxSessions bounds concurrent server-side sessions per pool.
	DefaultMaxSessions = 50

	// DefaultAcquireTimeout is how long Acquire waits for a session.
	DefaultAcquireTimeout = 3 * time.Second

	// DefaultIdleEvictionAge is how long an idle session is kept before it is destroyed.
	DefaultIdleEvictionAge = 5 * time.Minute

	// DefaultCreateTimeout bounds a single CreateSession call.
	DefaultCreateTimeout = 5 * time.Second

	// DefaultDeleteTimeout bounds a single DeleteSession call.
	DefaultDeleteTimeout = 5 * time.Second

	// DefaultRetryMaxAttempts is the default number of attempts, the first one included.
	DefaultRetryMaxAttempts = 5

	// DefaultRetryInitialDelay is the base delay of the fast backoff.
	DefaultRetryInitialDelay = 5 * time.Millisecond

	// DefaultRetryMaxDelay caps the fast backoff.
	DefaultRetryMaxDelay = 500 * time.Millisecond

	// DefaultSlowRetryInitialDelay is the base delay used after overload responses.
	DefaultSlowRetryInitialDelay = 1 * time.Second

	// DefaultSlowRetryMaxDelay caps the slow backoff.
	DefaultSlowRetryMaxDelay = 1 * time.Minute

	// DefaultRetryJitter is the jitter fraction applied to every backoff delay.
	DefaultRetryJitter = 0.1

	// DefaultPageSize is the number of rows requested per page.
	DefaultPageSize = 3

	// DefaultMaxPages is the page count guard used by the CLI.
	DefaultMaxPages = 10
)
