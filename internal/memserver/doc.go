// Package memserver is an in-memory tablekit.Transport.
//
// Statements are served by handlers registered per statement text. Sessions
// and transactions are tracked the way a real server would, so calls with an
// unknown session fail with StatusBadSession and calls with an unknown or
// foreign transaction fail with StatusNotFound. Faults can be injected per
// operation to drive retry and pool behavior in tests and demos.
package memserver
