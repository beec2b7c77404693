package retry

import (
	"context"
	"errors"
	"net"
	"strings"
	"syscall"

	"github.com/vvka-141/tablekit/pkg/tablekit"
)

// DefaultDecisions returns the status classification table.
//
//	Aborted, Unavailable                          retryable, fast backoff
//	Overloaded                                    retryable, slow backoff
//	BadSession, SessionBusy, SessionExpired,
//	NotFound                                      retryable, break session
//	Undetermined, Timeout, Cancelled              idempotent only
//	TransportUnavailable                          idempotent only, break session
//	everything else                               fatal
func DefaultDecisions() map[tablekit.StatusCode]tablekit.Decision {
	retryable := tablekit.Decision{Class: tablekit.ClassRetryable}
	idempotent := tablekit.Decision{Class: tablekit.ClassIdempotentOnly}
	fatal := tablekit.Decision{Class: tablekit.ClassFatal}

	return map[tablekit.StatusCode]tablekit.Decision{
		tablekit.StatusAborted:              retryable,
		tablekit.StatusUnavailable:          retryable,
		tablekit.StatusOverloaded:           {Class: tablekit.ClassRetryable, SlowBackoff: true},
		tablekit.StatusBadSession:           {Class: tablekit.ClassRetryable, BreakSession: true},
		tablekit.StatusSessionBusy:          {Class: tablekit.ClassRetryable, BreakSession: true},
		tablekit.StatusSessionExpired:       {Class: tablekit.ClassRetryable, BreakSession: true},
		tablekit.StatusNotFound:             {Class: tablekit.ClassRetryable, BreakSession: true},
		tablekit.StatusUndetermined:         idempotent,
		tablekit.StatusTimeout:              idempotent,
		tablekit.StatusCancelled:            idempotent,
		tablekit.StatusTransportUnavailable: {Class: tablekit.ClassIdempotentOnly, BreakSession: true},
		tablekit.StatusBadRequest:           fatal,
		tablekit.StatusSchemeError:          fatal,
		tablekit.StatusUnauthorized:         fatal,
		tablekit.StatusPreconditionFailed:   fatal,
		tablekit.StatusGenericError:         fatal,
		tablekit.StatusInternalError:        fatal,
	}
}

// ClassifierOption is a functional option for configuring StatusClassifier.
type ClassifierOption func(*StatusClassifier)

// WithDecision overrides the decision for one status code.
func WithDecision(code tablekit.StatusCode, d tablekit.Decision) ClassifierOption {
	return func(c *StatusClassifier) {
		c.decisions[code] = d
	}
}

// WithDecisions overrides the decisions for several status codes.
func WithDecisions(decisions map[tablekit.StatusCode]tablekit.Decision) ClassifierOption {
	return func(c *StatusClassifier) {
		for code, d := range decisions {
			c.decisions[code] = d
		}
	}
}

// StatusClassifier implements tablekit.ErrorClassifier.
//
// Server failures are classified by their StatusCode through a decision
// table. Client-side failures are classified by sentinel:
//   - pool acquire timeout: retryable
//   - closed pool: fatal
//   - failed session creation: classified by its cause, never worse than
//     retryable because the operation did not run
//   - bad parameters, closed or mismatched transactions: fatal
//   - context deadline: idempotent only, break session
//   - network errors: as StatusTransportUnavailable
type StatusClassifier struct {
	decisions map[tablekit.StatusCode]tablekit.Decision
}

var _ tablekit.ErrorClassifier = (*StatusClassifier)(nil)

// NewStatusClassifier creates a classifier with DefaultDecisions and the given overrides.
func NewStatusClassifier(opts ...ClassifierOption) *StatusClassifier {
	c := &StatusClassifier{decisions: DefaultDecisions()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// DecisionFor returns the table entry for code. Unknown codes are fatal.
func (c *StatusClassifier) DecisionFor(code tablekit.StatusCode) tablekit.Decision {
	if d, ok := c.decisions[code]; ok {
		return d
	}
	return tablekit.Decision{Class: tablekit.ClassFatal}
}

// Classify returns the retry decision for err.
func (c *StatusClassifier) Classify(err error) tablekit.Decision {
	if err == nil {
		return tablekit.Decision{Class: tablekit.ClassFatal}
	}

	if errors.Is(err, tablekit.ErrClosed) {
		return tablekit.Decision{Class: tablekit.ClassFatal}
	}

	if errors.Is(err, tablekit.ErrCreateFailed) {
		d := c.classify(err)
		if d.Class == tablekit.ClassIdempotentOnly {
			d.Class = tablekit.ClassRetryable
		}
		d.BreakSession = false
		return d
	}

	return c.classify(err)
}

func (c *StatusClassifier) classify(err error) tablekit.Decision {
	var se *tablekit.StatusError
	if errors.As(err, &se) {
		return c.DecisionFor(se.Code)
	}

	switch {
	case errors.Is(err, tablekit.ErrTimeout):
		return tablekit.Decision{Class: tablekit.ClassRetryable}
	case errors.Is(err, tablekit.ErrBadParameters),
		errors.Is(err, tablekit.ErrBadRequest),
		errors.Is(err, tablekit.ErrTransactionClosed),
		errors.Is(err, tablekit.ErrSessionMismatch),
		errors.Is(err, tablekit.ErrTransactionInProgress),
		errors.Is(err, tablekit.ErrSessionNotLeased):
		return tablekit.Decision{Class: tablekit.ClassFatal}
	case errors.Is(err, context.Canceled), errors.Is(err, tablekit.ErrCancelled):
		return tablekit.Decision{Class: tablekit.ClassFatal}
	case errors.Is(err, context.DeadlineExceeded):
		return tablekit.Decision{Class: tablekit.ClassIdempotentOnly, BreakSession: true}
	}

	if isNetworkError(err) || isConnectionError(err) {
		return c.DecisionFor(tablekit.StatusTransportUnavailable)
	}

	return tablekit.Decision{Class: tablekit.ClassFatal}
}

// isNetworkError checks for network-level errors.
func isNetworkError(err error) bool {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.Temporary() || dnsErr.Timeout()
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if opErr.Timeout() {
			return true
		}
		if opErr.Err != nil {
			switch {
			case errors.Is(opErr.Err, syscall.ECONNREFUSED),
				errors.Is(opErr.Err, syscall.ECONNRESET),
				errors.Is(opErr.Err, syscall.ENETUNREACH),
				errors.Is(opErr.Err, syscall.EHOSTUNREACH):
				return true
			}
		}
	}

	return errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE)
}

var connectionErrorPatterns = []string{
	"connection refused",
	"connection reset",
	"connection timeout",
	"connection failure",
	"network is unreachable",
	"i/o timeout",
	"broken pipe",
	"server closed the connection",
	"unexpected eof",
}

// isConnectionError matches driver errors that only carry a message.
func isConnectionError(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, pattern := range connectionErrorPatterns {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}
