package db

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vvka-141/tablekit/internal/logging"
	"github.com/vvka-141/tablekit/pkg/tablekit"
)

// pgSession is a server session: one dedicated connection and at most one
// open transaction.
type pgSession struct {
	conn *pgxpool.Conn
	txID string
	tx   pgx.Tx
}

// Transport implements tablekit.Transport on a pgx connection pool.
//
// Each session holds a dedicated pooled connection for its lifetime.
// Autocommit statements run in a single-statement transaction with the
// requested mode. An autocommit statement issued while the session has an
// open transaction runs on a borrowed connection, so it never observes or
// joins the transaction.
type Transport struct {
	pool   *pgxpool.Pool
	logger tablekit.Logger

	mu       sync.Mutex
	sessions map[string]*pgSession
}

var _ tablekit.Transport = (*Transport)(nil)

// TransportOption configures a Transport.
type TransportOption func(*Transport)

// WithTransportLogger sets the logger for session lifecycle messages.
func WithTransportLogger(logger tablekit.Logger) TransportOption {
	return func(t *Transport) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// NewTransport creates a Transport over an open pool.
func NewTransport(pool *pgxpool.Pool, opts ...TransportOption) *Transport {
	t := &Transport{
		pool:     pool,
		logger:   logging.NewNullLogger(),
		sessions: make(map[string]*pgSession),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Dial connects with the given connector and wraps the pool in a Transport.
func Dial(ctx context.Context, connector *Connector, opts ...TransportOption) (*Transport, error) {
	pool, err := connector.Connect(ctx)
	if err != nil {
		return nil, err
	}
	return NewTransport(pool, opts...), nil
}

// Close releases every session connection and closes the pool.
func (t *Transport) Close() {
	t.mu.Lock()
	sessions := t.sessions
	t.sessions = make(map[string]*pgSession)
	t.mu.Unlock()

	for _, s := range sessions {
		if s.tx != nil {
			_ = s.tx.Rollback(context.Background())
		}
		s.conn.Release()
	}
	t.pool.Close()
}

func (t *Transport) CreateSession(ctx context.Context) (string, error) {
	conn, err := t.pool.Acquire(ctx)
	if err != nil {
		return "", toStatusError(err)
	}

	id := uuid.NewString()
	t.mu.Lock()
	t.sessions[id] = &pgSession{conn: conn}
	t.mu.Unlock()

	t.logger.Verbose("session %s opened (backend pid %d)", id, conn.Conn().PgConn().PID())
	return id, nil
}

func (t *Transport) DeleteSession(ctx context.Context, sessionID string) error {
	t.mu.Lock()
	s, ok := t.sessions[sessionID]
	delete(t.sessions, sessionID)
	t.mu.Unlock()

	if !ok {
		return tablekit.NewStatusError(tablekit.StatusBadSession, "session %s not found", sessionID)
	}

	var err error
	if s.tx != nil {
		err = s.tx.Rollback(ctx)
	}
	s.conn.Release()
	t.logger.Verbose("session %s closed", sessionID)
	return toStatusError(err)
}

func (t *Transport) Execute(ctx context.Context, sessionID string, stmt tablekit.Statement, params tablekit.Params, tc tablekit.TxControl) (*tablekit.Result, error) {
	s, err := t.session(sessionID)
	if err != nil {
		return nil, err
	}
	if err := checkPlaceholders(stmt.Text, params); err != nil {
		return nil, err
	}

	if tc.IsAutoCommit() {
		return t.executeAutoCommit(ctx, s, stmt, params, tc.Mode())
	}
	return t.executeInTx(ctx, s, stmt, params, tc)
}

func (t *Transport) executeAutoCommit(ctx context.Context, s *pgSession, stmt tablekit.Statement, params tablekit.Params, mode tablekit.TxMode) (*tablekit.Result, error) {
	conn := s.conn
	if s.tx != nil {
		borrowed, err := t.pool.Acquire(ctx)
		if err != nil {
			return nil, toStatusError(err)
		}
		defer borrowed.Release()
		conn = borrowed
	}

	tx, err := conn.BeginTx(ctx, txOptions(mode))
	if err != nil {
		return nil, toStatusError(err)
	}
	set, err := query(ctx, tx, stmt, params)
	if err != nil {
		_ = tx.Rollback(context.WithoutCancel(ctx))
		return nil, toStatusError(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, toStatusError(err)
	}
	return &tablekit.Result{Sets: []tablekit.ResultSet{set}}, nil
}

func (t *Transport) executeInTx(ctx context.Context, s *pgSession, stmt tablekit.Statement, params tablekit.Params, tc tablekit.TxControl) (*tablekit.Result, error) {
	if s.tx == nil || s.txID != tc.TxID() {
		return nil, tablekit.NewStatusError(tablekit.StatusNotFound, "transaction %s not found", tc.TxID())
	}

	set, err := query(ctx, s.tx, stmt, params)
	if errors.Is(err, tablekit.ErrBadParameters) {
		return nil, err
	}
	if err != nil {
		// A failed statement aborts the whole PostgreSQL transaction.
		t.discardTx(ctx, s)
		return nil, toStatusError(err)
	}

	res := &tablekit.Result{Sets: []tablekit.ResultSet{set}}
	if tc.CommitTx() {
		err := s.tx.Commit(ctx)
		s.tx, s.txID = nil, ""
		if err != nil {
			return nil, toStatusError(err)
		}
		return res, nil
	}
	res.TxID = s.txID
	return res, nil
}

func (t *Transport) BeginTransaction(ctx context.Context, sessionID string, mode tablekit.TxMode) (string, error) {
	s, err := t.session(sessionID)
	if err != nil {
		return "", err
	}
	if s.tx != nil {
		return "", tablekit.NewStatusError(tablekit.StatusBadRequest, "session %s already has transaction %s", sessionID, s.txID)
	}

	tx, err := s.conn.BeginTx(ctx, txOptions(mode))
	if err != nil {
		return "", toStatusError(err)
	}
	s.tx, s.txID = tx, uuid.NewString()
	return s.txID, nil
}

func (t *Transport) CommitTransaction(ctx context.Context, sessionID, txID string) error {
	s, err := t.txSession(sessionID, txID)
	if err != nil {
		return err
	}
	err = s.tx.Commit(ctx)
	s.tx, s.txID = nil, ""
	return toStatusError(err)
}

func (t *Transport) RollbackTransaction(ctx context.Context, sessionID, txID string) error {
	s, err := t.txSession(sessionID, txID)
	if err != nil {
		return err
	}
	err = s.tx.Rollback(ctx)
	s.tx, s.txID = nil, ""
	return toStatusError(err)
}

// Sessions returns the number of open sessions.
func (t *Transport) Sessions() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sessions)
}

func (t *Transport) session(id string) (*pgSession, error) {
	t.mu.Lock()
	s, ok := t.sessions[id]
	t.mu.Unlock()

	if !ok {
		return nil, tablekit.NewStatusError(tablekit.StatusBadSession, "session %s not found", id)
	}
	if s.conn.Conn().IsClosed() {
		return nil, tablekit.NewStatusError(tablekit.StatusBadSession, "session %s lost its connection", id)
	}
	return s, nil
}

func (t *Transport) txSession(sessionID, txID string) (*pgSession, error) {
	s, err := t.session(sessionID)
	if err != nil {
		return nil, err
	}
	if s.tx == nil || s.txID != txID {
		return nil, tablekit.NewStatusError(tablekit.StatusNotFound, "transaction %s not found", txID)
	}
	return s, nil
}

func (t *Transport) discardTx(ctx context.Context, s *pgSession) {
	if err := s.tx.Rollback(context.WithoutCancel(ctx)); err != nil {
		t.logger.Verbose("rollback of aborted transaction %s failed: %v", s.txID, err)
	}
	s.tx, s.txID = nil, ""
}

// txOptions maps a transaction mode to PostgreSQL isolation and access modes.
func txOptions(mode tablekit.TxMode) pgx.TxOptions {
	switch mode {
	case tablekit.OnlineReadOnly:
		return pgx.TxOptions{IsoLevel: pgx.ReadCommitted, AccessMode: pgx.ReadOnly}
	case tablekit.StaleReadOnly:
		return pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}
	default:
		return pgx.TxOptions{IsoLevel: pgx.Serializable, AccessMode: pgx.ReadWrite}
	}
}

func query(ctx context.Context, tx pgx.Tx, stmt tablekit.Statement, params tablekit.Params) (tablekit.ResultSet, error) {
	var args []any
	if len(params) > 0 {
		named, err := namedArgs(params)
		if err != nil {
			return tablekit.ResultSet{}, err
		}
		args = append(args, named)
	}

	rows, err := tx.Query(ctx, stmt.Text, args...)
	if err != nil {
		return tablekit.ResultSet{}, fmt.Errorf("query: %w", err)
	}
	return collect(rows)
}
