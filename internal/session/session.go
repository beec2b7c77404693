package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vvka-141/tablekit/pkg/tablekit"
)

// State is the lifecycle state of a Session.
type State int

const (
	StateIdle State = iota
	StateLeased
	StateBroken
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLeased:
		return "leased"
	case StateBroken:
		return "broken"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Session is a handle to server-side per-connection execution state.
//
// Thread-Safety: a leased Session must only be used by the goroutine that
// acquired it. State and LastUsed may be read concurrently.
type Session struct {
	id          string
	transport   tablekit.Transport
	callTimeout time.Duration
	now         func() time.Time

	mu       sync.Mutex
	state    State
	lastUsed time.Time
	tx       *Transaction
}

func newSession(id string, transport tablekit.Transport, callTimeout time.Duration, now func() time.Time) *Session {
	return &Session{
		id:          id,
		transport:   transport,
		callTimeout: callTimeout,
		now:         now,
		state:       StateLeased,
		lastUsed:    now(),
	}
}

// ID returns the opaque server-side session id.
func (s *Session) ID() string {
	return s.id
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastUsed returns the time of the last call or release.
func (s *Session) LastUsed() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsed
}

// Transaction returns the session's current or most recent transaction, or nil.
func (s *Session) Transaction() *Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tx
}

// HasActiveTransaction reports whether a transaction is open on the session.
func (s *Session) HasActiveTransaction() bool {
	tx := s.Transaction()
	return tx != nil && tx.State() == TxActive
}

// Execute runs a statement on the session.
//
// For an explicit TxControl the named transaction must be this session's
// active transaction: another id fails with ErrSessionMismatch, a closed
// transaction of this session with ErrTransactionClosed.
func (s *Session) Execute(ctx context.Context, stmt tablekit.Statement, params tablekit.Params, tc tablekit.TxControl) (*tablekit.Result, error) {
	if !tc.IsAutoCommit() {
		tx := s.Transaction()
		if tx == nil || tx.ID() != tc.TxID() {
			return nil, fmt.Errorf("transaction %q is not bound to session %s: %w", tc.TxID(), s.id, tablekit.ErrSessionMismatch)
		}
		return tx.Execute(ctx, stmt, params, tc.CommitTx())
	}

	if err := s.checkLeased(); err != nil {
		return nil, err
	}
	if err := stmt.Check(params); err != nil {
		return nil, err
	}

	var res *tablekit.Result
	err := s.call(ctx, func(ctx context.Context) error {
		var err error
		res, err = s.transport.Execute(ctx, s.id, stmt, params, tc)
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// BeginTransaction opens an interactive transaction bound to this session.
// Only one transaction may be active on a session at a time.
func (s *Session) BeginTransaction(ctx context.Context, mode tablekit.TxMode) (*Transaction, error) {
	if err := s.checkLeased(); err != nil {
		return nil, err
	}
	if !mode.IsValid() {
		return nil, fmt.Errorf("invalid transaction mode %v: %w", mode, tablekit.ErrBadRequest)
	}
	if active := s.Transaction(); active != nil && active.State() == TxActive {
		return nil, fmt.Errorf("transaction %s is still active on session %s: %w", active.ID(), s.id, tablekit.ErrTransactionInProgress)
	}

	var txID string
	err := s.call(ctx, func(ctx context.Context) error {
		var err error
		txID, err = s.transport.BeginTransaction(ctx, s.id, mode)
		return err
	})
	if err != nil {
		return nil, err
	}

	tx := &Transaction{id: txID, mode: mode, session: s, state: TxActive}
	s.mu.Lock()
	s.tx = tx
	s.mu.Unlock()
	return tx, nil
}

// call runs a transport call under the session's call timeout.
func (s *Session) call(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.callTimeout)
		defer cancel()
	}
	err := fn(ctx)
	s.touch()
	return err
}

func (s *Session) checkLeased() error {
	if st := s.State(); st != StateLeased {
		return fmt.Errorf("session %s is %s: %w", s.id, st, tablekit.ErrSessionNotLeased)
	}
	return nil
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastUsed = s.now()
	s.mu.Unlock()
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	if st == StateIdle {
		s.lastUsed = s.now()
	}
	s.mu.Unlock()
}

func (s *Session) idleSince(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.lastUsed)
}
