package tablekit

import (
	"context"
	"fmt"
)

// Transport is the boundary to the remote table service.
//
// Implementations own network transport, connection security and credentials.
// Every method must honor the deadline and cancellation of ctx.
// Server-side failures should be reported as *StatusError so they can be classified.
//
// Thread-Safety: implementations must be safe for concurrent use, but tablekit
// never issues two concurrent calls for the same session id.
type Transport interface {
	// CreateSession opens a new server-side session and returns its opaque id.
	CreateSession(ctx context.Context) (string, error)

	// DeleteSession destroys a session. Open transactions on it are discarded.
	DeleteSession(ctx context.Context, sessionID string) error

	// Execute runs a statement on the session under the given transaction control.
	Execute(ctx context.Context, sessionID string, stmt Statement, params Params, tc TxControl) (*Result, error)

	// BeginTransaction opens an interactive transaction on the session.
	BeginTransaction(ctx context.Context, sessionID string, mode TxMode) (string, error)

	// CommitTransaction commits an interactive transaction.
	CommitTransaction(ctx context.Context, sessionID, txID string) error

	// RollbackTransaction discards an interactive transaction.
	RollbackTransaction(ctx context.Context, sessionID, txID string) error
}

// StatusCode is the failure status reported by the table service.
type StatusCode int

const (
	StatusGenericError StatusCode = iota
	StatusOverloaded
	StatusUnavailable
	StatusBadSession
	StatusSessionBusy
	StatusSessionExpired
	StatusNotFound
	StatusAborted
	StatusUndetermined
	StatusTimeout
	StatusCancelled
	StatusTransportUnavailable
	StatusBadRequest
	StatusSchemeError
	StatusUnauthorized
	StatusPreconditionFailed
	StatusInternalError
)

var statusNames = map[StatusCode]string{
	StatusGenericError:         "GENERIC_ERROR",
	StatusOverloaded:           "OVERLOADED",
	StatusUnavailable:          "UNAVAILABLE",
	StatusBadSession:           "BAD_SESSION",
	StatusSessionBusy:          "SESSION_BUSY",
	StatusSessionExpired:       "SESSION_EXPIRED",
	StatusNotFound:             "NOT_FOUND",
	StatusAborted:              "ABORTED",
	StatusUndetermined:         "UNDETERMINED",
	StatusTimeout:              "TIMEOUT",
	StatusCancelled:            "CANCELLED",
	StatusTransportUnavailable: "TRANSPORT_UNAVAILABLE",
	StatusBadRequest:           "BAD_REQUEST",
	StatusSchemeError:          "SCHEME_ERROR",
	StatusUnauthorized:         "UNAUTHORIZED",
	StatusPreconditionFailed:   "PRECONDITION_FAILED",
	StatusInternalError:        "INTERNAL_ERROR",
}

func (c StatusCode) String() string {
	if name, ok := statusNames[c]; ok {
		return name
	}
	return fmt.Sprintf("STATUS(%d)", int(c))
}

// ParseStatusCode parses the String form of a status code.
func ParseStatusCode(s string) (StatusCode, error) {
	for code, name := range statusNames {
		if name == s {
			return code, nil
		}
	}
	return 0, fmt.Errorf("unknown status code %q", s)
}

// StatusCodes returns all defined status codes in declaration order.
func StatusCodes() []StatusCode {
	codes := make([]StatusCode, 0, len(statusNames))
	for c := StatusGenericError; c <= StatusInternalError; c++ {
		codes = append(codes, c)
	}
	return codes
}

// StatusError is a failure status returned by the table service.
type StatusError struct {
	Code    StatusCode
	Message string

	// Err is the underlying transport error, if any.
	Err error
}

// NewStatusError creates a StatusError with a formatted message.
func NewStatusError(code StatusCode, format string, args ...any) *StatusError {
	return &StatusError{Code: code, Message: fmt.Sprintf(format, args...)}
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return "status " + e.Code.String()
	}
	return fmt.Sprintf("status %s: %s", e.Code, e.Message)
}

func (e *StatusError) Unwrap() error {
	return e.Err
}

// Is matches the taxonomy sentinel for the status class, so callers can write
// errors.Is(err, tablekit.ErrTransient) without knowing individual codes.
func (e *StatusError) Is(target error) bool {
	switch target {
	case ErrTransient:
		switch e.Code {
		case StatusOverloaded, StatusUnavailable, StatusBadSession, StatusSessionBusy,
			StatusSessionExpired, StatusAborted, StatusTransportUnavailable:
			return true
		}
	case ErrTimeout:
		return e.Code == StatusTimeout
	case ErrBadRequest:
		switch e.Code {
		case StatusBadRequest, StatusSchemeError, StatusUnauthorized, StatusPreconditionFailed:
			return true
		}
	}
	return false
}
