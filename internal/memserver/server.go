package memserver

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vvka-141/tablekit/pkg/tablekit"
)

// Op names a Transport operation for fault injection and call counting.
type Op string

const (
	OpCreateSession Op = "create-session"
	OpDeleteSession Op = "delete-session"
	OpExecute       Op = "execute"
	OpBegin         Op = "begin"
	OpCommit        Op = "commit"
	OpRollback      Op = "rollback"
)

// Call is what a Handler sees for one Execute.
type Call struct {
	SessionID string
	Statement tablekit.Statement
	Params    tablekit.Params
	TxControl tablekit.TxControl
	// TxID is the transaction the statement runs in. Empty for autocommit.
	TxID string
}

// Handler serves one statement text.
type Handler func(ctx context.Context, call Call) (*tablekit.Result, error)

type txState struct {
	sessionID string
	mode      tablekit.TxMode
}

// Server implements tablekit.Transport in memory.
//
// A handler error inside a transaction rolls the transaction back, except
// ErrBadParameters, which leaves it open like the PostgreSQL transport does.
type Server struct {
	mu           sync.Mutex
	handlers     map[string]Handler
	fallback     Handler
	sessions     map[string]struct{}
	transactions map[string]txState
	faults       map[Op][]error
	delays       map[Op]time.Duration
	calls        map[Op]int
	committed    []string
	rolledBack   []string
}

var _ tablekit.Transport = (*Server)(nil)

// New returns an empty server.
func New() *Server {
	return &Server{
		handlers:     make(map[string]Handler),
		sessions:     make(map[string]struct{}),
		transactions: make(map[string]txState),
		faults:       make(map[Op][]error),
		delays:       make(map[Op]time.Duration),
		calls:        make(map[Op]int),
	}
}

// Handle registers h for statements whose text equals text.
func (s *Server) Handle(text string, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[text] = h
}

// HandleDefault registers h for statements without a dedicated handler.
func (s *Server) HandleDefault(h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fallback = h
}

// FailNext makes the next n calls of op fail with err.
func (s *Server) FailNext(op Op, n int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := 0; i < n; i++ {
		s.faults[op] = append(s.faults[op], err)
	}
}

// Delay makes every call of op block for d or until its context is done.
func (s *Server) Delay(op Op, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays[op] = d
}

// Calls returns how many times op was invoked, including failed calls.
func (s *Server) Calls(op Op) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

// LiveSessions returns the number of sessions created and not yet deleted.
func (s *Server) LiveSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// OpenTransactions returns the number of transactions neither committed nor rolled back.
func (s *Server) OpenTransactions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.transactions)
}

// Committed returns the ids of committed transactions in commit order.
func (s *Server) Committed() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.committed...)
}

// RolledBack returns the ids of rolled back transactions.
func (s *Server) RolledBack() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.rolledBack...)
}

func (s *Server) CreateSession(ctx context.Context) (string, error) {
	if err := s.enter(ctx, OpCreateSession); err != nil {
		return "", err
	}
	id := uuid.NewString()
	s.mu.Lock()
	s.sessions[id] = struct{}{}
	s.mu.Unlock()
	return id, nil
}

func (s *Server) DeleteSession(ctx context.Context, sessionID string) error {
	if err := s.enter(ctx, OpDeleteSession); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	for id, tx := range s.transactions {
		if tx.sessionID == sessionID {
			delete(s.transactions, id)
			s.rolledBack = append(s.rolledBack, id)
		}
	}
	return nil
}

func (s *Server) Execute(ctx context.Context, sessionID string, stmt tablekit.Statement, params tablekit.Params, tc tablekit.TxControl) (*tablekit.Result, error) {
	if err := s.enter(ctx, OpExecute); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if err := s.checkSession(sessionID); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	call := Call{SessionID: sessionID, Statement: stmt, Params: params, TxControl: tc}
	if !tc.IsAutoCommit() {
		if _, err := s.checkTx(sessionID, tc.TxID()); err != nil {
			s.mu.Unlock()
			return nil, err
		}
		call.TxID = tc.TxID()
	}
	h, ok := s.handlers[stmt.Text]
	if !ok {
		h = s.fallback
	}
	s.mu.Unlock()

	if h == nil {
		return nil, tablekit.NewStatusError(tablekit.StatusSchemeError, "no handler for statement %q", stmt.Text)
	}

	res, err := h(ctx, call)

	if call.TxID != "" {
		s.mu.Lock()
		switch {
		case errors.Is(err, tablekit.ErrBadParameters):
		case err != nil:
			delete(s.transactions, call.TxID)
			s.rolledBack = append(s.rolledBack, call.TxID)
		case tc.CommitTx():
			delete(s.transactions, call.TxID)
			s.committed = append(s.committed, call.TxID)
		}
		s.mu.Unlock()
	}
	if err != nil {
		return nil, err
	}
	if res == nil {
		res = &tablekit.Result{}
	}
	if call.TxID != "" && !tc.CommitTx() {
		res.TxID = call.TxID
	}
	return res, nil
}

func (s *Server) BeginTransaction(ctx context.Context, sessionID string, mode tablekit.TxMode) (string, error) {
	if err := s.enter(ctx, OpBegin); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkSession(sessionID); err != nil {
		return "", err
	}
	id := uuid.NewString()
	s.transactions[id] = txState{sessionID: sessionID, mode: mode}
	return id, nil
}

func (s *Server) CommitTransaction(ctx context.Context, sessionID, txID string) error {
	if err := s.enter(ctx, OpCommit); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkSession(sessionID); err != nil {
		return err
	}
	if _, err := s.checkTx(sessionID, txID); err != nil {
		return err
	}
	delete(s.transactions, txID)
	s.committed = append(s.committed, txID)
	return nil
}

func (s *Server) RollbackTransaction(ctx context.Context, sessionID, txID string) error {
	if err := s.enter(ctx, OpRollback); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkSession(sessionID); err != nil {
		return err
	}
	if _, err := s.checkTx(sessionID, txID); err != nil {
		return err
	}
	delete(s.transactions, txID)
	s.rolledBack = append(s.rolledBack, txID)
	return nil
}

// enter counts the call, applies the configured delay and pops an injected fault.
func (s *Server) enter(ctx context.Context, op Op) error {
	s.mu.Lock()
	s.calls[op]++
	delay := s.delays[op]
	var fault error
	if q := s.faults[op]; len(q) > 0 {
		fault = q[0]
		s.faults[op] = q[1:]
	}
	s.mu.Unlock()

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return fault
}

func (s *Server) checkSession(sessionID string) error {
	if _, ok := s.sessions[sessionID]; !ok {
		return tablekit.NewStatusError(tablekit.StatusBadSession, "session %s not found", sessionID)
	}
	return nil
}

func (s *Server) checkTx(sessionID, txID string) (txState, error) {
	tx, ok := s.transactions[txID]
	if !ok || tx.sessionID != sessionID {
		return txState{}, tablekit.NewStatusError(tablekit.StatusNotFound, "transaction %s not found", txID)
	}
	return tx, nil
}
