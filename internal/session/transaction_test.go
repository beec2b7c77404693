package session_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vvka-141/tablekit/internal/memserver"
	"github.com/vvka-141/tablekit/internal/session"
	"github.com/vvka-141/tablekit/pkg/tablekit"
)

var upsert = tablekit.NewStatement("UPSERT INTO t (id) VALUES ($id)").Declare("id", tablekit.KindUint64)

func leased(t *testing.T, srv *memserver.Server) (*session.Pool, *session.Session) {
	t.Helper()
	p := newPool(t, srv, 2)
	s, err := p.Acquire(context.Background(), time.Second)
	require.NoError(t, err)
	return p, s
}

func TestTransaction_CommitThenExecuteFails(t *testing.T) {
	srv := memserver.New()
	srv.HandleDefault(memserver.Empty)
	p, s := leased(t, srv)
	defer p.Release(s, true)
	ctx := context.Background()

	tx, err := s.BeginTransaction(ctx, tablekit.SerializableReadWrite)
	require.NoError(t, err)
	assert.Equal(t, session.TxActive, tx.State())
	assert.Same(t, s, tx.Session())

	_, err = tx.Execute(ctx, upsert, tablekit.Params{"id": tablekit.Uint64Value(1)}, false)
	require.NoError(t, err)
	require.NoError(t, tx.Commit(ctx))
	assert.Equal(t, session.TxCommitted, tx.State())

	_, err = tx.Execute(ctx, upsert, tablekit.Params{"id": tablekit.Uint64Value(2)}, false)
	assert.ErrorIs(t, err, tablekit.ErrTransactionClosed)
	assert.True(t, session.IsClosed(err))

	assert.ErrorIs(t, tx.Commit(ctx), tablekit.ErrTransactionClosed)
	assert.ErrorIs(t, tx.Rollback(ctx), tablekit.ErrTransactionClosed)
	assert.Equal(t, []string{tx.ID()}, srv.Committed())
}

func TestTransaction_ExecuteWithCommit(t *testing.T) {
	srv := memserver.New()
	srv.HandleDefault(memserver.Empty)
	p, s := leased(t, srv)
	defer p.Release(s, true)
	ctx := context.Background()

	tx, err := s.BeginTransaction(ctx, tablekit.SerializableReadWrite)
	require.NoError(t, err)

	_, err = tx.Execute(ctx, upsert, tablekit.Params{"id": tablekit.Uint64Value(1)}, true)
	require.NoError(t, err)
	assert.Equal(t, session.TxCommitted, tx.State())
	assert.False(t, s.HasActiveTransaction())

	_, err = tx.Execute(ctx, upsert, tablekit.Params{"id": tablekit.Uint64Value(2)}, false)
	assert.ErrorIs(t, err, tablekit.ErrTransactionClosed)
}

func TestTransaction_Rollback(t *testing.T) {
	srv := memserver.New()
	p, s := leased(t, srv)
	defer p.Release(s, true)
	ctx := context.Background()

	tx, err := s.BeginTransaction(ctx, tablekit.SerializableReadWrite)
	require.NoError(t, err)
	require.NoError(t, tx.Rollback(ctx))
	assert.Equal(t, session.TxRolledBack, tx.State())
	assert.Equal(t, []string{tx.ID()}, srv.RolledBack())

	// A new transaction may begin once the previous one is closed.
	tx2, err := s.BeginTransaction(ctx, tablekit.SerializableReadWrite)
	require.NoError(t, err)
	assert.NotEqual(t, tx.ID(), tx2.ID())
	require.NoError(t, tx2.Rollback(ctx))
}

func TestTransaction_ServerErrorAborts(t *testing.T) {
	srv := memserver.New()
	srv.HandleDefault(func(context.Context, memserver.Call) (*tablekit.Result, error) {
		return nil, tablekit.NewStatusError(tablekit.StatusAborted, "conflict")
	})
	p, s := leased(t, srv)
	defer p.Release(s, true)
	ctx := context.Background()

	tx, err := s.BeginTransaction(ctx, tablekit.SerializableReadWrite)
	require.NoError(t, err)

	_, err = tx.Execute(ctx, upsert, tablekit.Params{"id": tablekit.Uint64Value(1)}, false)
	assert.ErrorIs(t, err, tablekit.ErrTransient)
	assert.Equal(t, session.TxRolledBack, tx.State())
}

func TestTransaction_BadParametersKeepActive(t *testing.T) {
	srv := memserver.New()
	srv.HandleDefault(memserver.Empty)
	p, s := leased(t, srv)
	defer p.Release(s, true)
	ctx := context.Background()

	tx, err := s.BeginTransaction(ctx, tablekit.SerializableReadWrite)
	require.NoError(t, err)

	_, err = tx.Execute(ctx, upsert, tablekit.Params{"id": tablekit.StringValue("x")}, false)
	assert.ErrorIs(t, err, tablekit.ErrBadParameters)
	assert.Equal(t, session.TxActive, tx.State())
	assert.Equal(t, 0, srv.Calls(memserver.OpExecute))
	require.NoError(t, tx.Rollback(ctx))
}

func TestTransaction_TransportRejectedParametersKeepActive(t *testing.T) {
	srv := memserver.New()
	srv.HandleDefault(func(context.Context, memserver.Call) (*tablekit.Result, error) {
		return nil, fmt.Errorf("placeholder @id has no bound parameter: %w", tablekit.ErrBadParameters)
	})
	p, s := leased(t, srv)
	defer p.Release(s, true)
	ctx := context.Background()

	tx, err := s.BeginTransaction(ctx, tablekit.SerializableReadWrite)
	require.NoError(t, err)

	_, err = tx.Execute(ctx, tablekit.NewStatement("SELECT @id"), nil, false)
	assert.ErrorIs(t, err, tablekit.ErrBadParameters)
	assert.Equal(t, session.TxActive, tx.State())
	assert.Equal(t, 1, srv.OpenTransactions())
	require.NoError(t, tx.Rollback(ctx))
	assert.Equal(t, 0, srv.OpenTransactions())
}

func TestSession_BeginWhileActive(t *testing.T) {
	srv := memserver.New()
	p, s := leased(t, srv)
	defer p.Release(s, false)
	ctx := context.Background()

	_, err := s.BeginTransaction(ctx, tablekit.SerializableReadWrite)
	require.NoError(t, err)

	_, err = s.BeginTransaction(ctx, tablekit.SerializableReadWrite)
	assert.ErrorIs(t, err, tablekit.ErrTransactionInProgress)
}

func TestSession_ExplicitControl(t *testing.T) {
	srv := memserver.New()
	srv.HandleDefault(memserver.Empty)
	p := newPool(t, srv, 2)
	ctx := context.Background()

	a, err := p.Acquire(ctx, time.Second)
	require.NoError(t, err)
	defer p.Release(a, true)
	b, err := p.Acquire(ctx, time.Second)
	require.NoError(t, err)
	defer p.Release(b, true)

	tx, err := a.BeginTransaction(ctx, tablekit.SerializableReadWrite)
	require.NoError(t, err)
	params := tablekit.Params{"id": tablekit.Uint64Value(1)}

	t.Run("foreign session", func(t *testing.T) {
		_, err := b.Execute(ctx, upsert, params, tablekit.Explicit(tx.ID(), false))
		assert.ErrorIs(t, err, tablekit.ErrSessionMismatch)
	})

	t.Run("owning session", func(t *testing.T) {
		res, err := a.Execute(ctx, upsert, params, tablekit.Explicit(tx.ID(), false))
		require.NoError(t, err)
		assert.Equal(t, tx.ID(), res.TxID)
	})

	t.Run("commit through control", func(t *testing.T) {
		_, err := a.Execute(ctx, upsert, params, tablekit.Explicit(tx.ID(), true))
		require.NoError(t, err)
		assert.Equal(t, session.TxCommitted, tx.State())
	})

	t.Run("closed transaction", func(t *testing.T) {
		_, err := a.Execute(ctx, upsert, params, tablekit.Explicit(tx.ID(), false))
		assert.ErrorIs(t, err, tablekit.ErrTransactionClosed)
	})
}

func TestSession_AutoCommitAlongsideTransaction(t *testing.T) {
	srv := memserver.New()
	rec := memserver.NewRecorder(nil)
	srv.HandleDefault(rec.Handle)
	p, s := leased(t, srv)
	defer p.Release(s, true)
	ctx := context.Background()

	tx, err := s.BeginTransaction(ctx, tablekit.SerializableReadWrite)
	require.NoError(t, err)

	read := tablekit.NewStatement("SELECT * FROM t")
	_, err = s.Execute(ctx, read, nil, tablekit.AutoCommit(tablekit.OnlineReadOnly))
	require.NoError(t, err)
	assert.Equal(t, session.TxActive, tx.State())

	require.NoError(t, tx.Commit(ctx))
	calls := rec.Calls()
	require.Len(t, calls, 1)
	assert.Empty(t, calls[0].TxID)
}

func TestSession_NotLeased(t *testing.T) {
	srv := memserver.New()
	srv.HandleDefault(memserver.Empty)
	p, s := leased(t, srv)
	p.Release(s, true)
	ctx := context.Background()

	_, err := s.Execute(ctx, tablekit.NewStatement("SELECT 1"), nil, tablekit.AutoCommit(tablekit.OnlineReadOnly))
	assert.ErrorIs(t, err, tablekit.ErrSessionNotLeased)

	_, err = s.BeginTransaction(ctx, tablekit.SerializableReadWrite)
	assert.ErrorIs(t, err, tablekit.ErrSessionNotLeased)
}

func TestSession_CallTimeout(t *testing.T) {
	srv := memserver.New()
	srv.HandleDefault(memserver.Empty)
	srv.Delay(memserver.OpExecute, time.Second)

	cfg := tablekit.DefaultPoolConfig()
	cfg.CallTimeout = 10 * time.Millisecond
	p, err := session.NewPool(srv, cfg)
	require.NoError(t, err)
	defer func() { _ = p.Shutdown(context.Background()) }()

	s, err := p.Acquire(context.Background(), time.Second)
	require.NoError(t, err)
	defer p.Release(s, false)

	_, err = s.Execute(context.Background(), tablekit.NewStatement("SELECT 1"), nil, tablekit.AutoCommit(tablekit.OnlineReadOnly))
	assert.True(t, errors.Is(err, context.DeadlineExceeded), "error = %v", err)
}

func TestSession_LastUsedAdvances(t *testing.T) {
	srv := memserver.New()
	srv.HandleDefault(memserver.Empty)

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	cfg := tablekit.DefaultPoolConfig()
	cfg.IdleEvictionAge = 0
	p, err := session.NewPool(srv, cfg, session.WithClock(clock))
	require.NoError(t, err)
	defer func() { _ = p.Shutdown(context.Background()) }()

	s, err := p.Acquire(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Equal(t, now, s.LastUsed())

	now = now.Add(time.Minute)
	_, err = s.Execute(context.Background(), tablekit.NewStatement("SELECT 1"), nil, tablekit.AutoCommit(tablekit.OnlineReadOnly))
	require.NoError(t, err)
	assert.Equal(t, now, s.LastUsed())
	p.Release(s, true)
}
