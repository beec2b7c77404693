package memserver_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vvka-141/tablekit/internal/memserver"
	"github.com/vvka-141/tablekit/pkg/tablekit"
)

func TestServer_SessionLifecycle(t *testing.T) {
	ctx := context.Background()
	srv := memserver.New()

	id, err := srv.CreateSession(ctx)
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	if srv.LiveSessions() != 1 {
		t.Errorf("LiveSessions() = %d, want 1", srv.LiveSessions())
	}

	if err := srv.DeleteSession(ctx, id); err != nil {
		t.Fatalf("DeleteSession() error = %v", err)
	}

	_, err = srv.Execute(ctx, id, tablekit.NewStatement("SELECT 1"), nil, tablekit.AutoCommit(tablekit.OnlineReadOnly))
	var se *tablekit.StatusError
	if !errors.As(err, &se) || se.Code != tablekit.StatusBadSession {
		t.Errorf("Execute() on deleted session error = %v, want BadSession", err)
	}
}

func TestServer_TransactionBoundToSession(t *testing.T) {
	ctx := context.Background()
	srv := memserver.New()
	srv.HandleDefault(memserver.Empty)

	a, _ := srv.CreateSession(ctx)
	b, _ := srv.CreateSession(ctx)

	txID, err := srv.BeginTransaction(ctx, a, tablekit.SerializableReadWrite)
	if err != nil {
		t.Fatalf("BeginTransaction() error = %v", err)
	}

	_, err = srv.Execute(ctx, b, tablekit.NewStatement("UPSERT"), nil, tablekit.Explicit(txID, false))
	var se *tablekit.StatusError
	if !errors.As(err, &se) || se.Code != tablekit.StatusNotFound {
		t.Errorf("Execute() from foreign session error = %v, want NotFound", err)
	}

	res, err := srv.Execute(ctx, a, tablekit.NewStatement("UPSERT"), nil, tablekit.Explicit(txID, false))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if res.TxID != txID {
		t.Errorf("Result.TxID = %q, want %q", res.TxID, txID)
	}

	if _, err := srv.Execute(ctx, a, tablekit.NewStatement("UPSERT"), nil, tablekit.Explicit(txID, true)); err != nil {
		t.Fatalf("Execute(commit) error = %v", err)
	}
	if got := srv.Committed(); len(got) != 1 || got[0] != txID {
		t.Errorf("Committed() = %v, want [%s]", got, txID)
	}
	if srv.OpenTransactions() != 0 {
		t.Errorf("OpenTransactions() = %d, want 0", srv.OpenTransactions())
	}
}

func TestServer_FailNext(t *testing.T) {
	ctx := context.Background()
	srv := memserver.New()
	overloaded := tablekit.NewStatusError(tablekit.StatusOverloaded, "busy")
	srv.FailNext(memserver.OpCreateSession, 2, overloaded)

	for i := 0; i < 2; i++ {
		if _, err := srv.CreateSession(ctx); !errors.Is(err, overloaded) {
			t.Errorf("call %d: error = %v, want injected fault", i, err)
		}
	}
	if _, err := srv.CreateSession(ctx); err != nil {
		t.Errorf("third call error = %v, want nil", err)
	}
	if got := srv.Calls(memserver.OpCreateSession); got != 3 {
		t.Errorf("Calls() = %d, want 3", got)
	}
}

func TestServer_DelayHonoursContext(t *testing.T) {
	srv := memserver.New()
	srv.Delay(memserver.OpCreateSession, time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := srv.CreateSession(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want deadline exceeded", err)
	}
}

func TestServer_UnknownStatement(t *testing.T) {
	ctx := context.Background()
	srv := memserver.New()
	id, _ := srv.CreateSession(ctx)

	_, err := srv.Execute(ctx, id, tablekit.NewStatement("SELECT nope"), nil, tablekit.AutoCommit(tablekit.OnlineReadOnly))
	if !errors.Is(err, tablekit.ErrBadRequest) {
		t.Errorf("error = %v, want ErrBadRequest", err)
	}
}

func TestRecorder(t *testing.T) {
	ctx := context.Background()
	srv := memserver.New()
	rec := memserver.NewRecorder(nil)
	srv.Handle("UPSERT", rec.Handle)

	id, _ := srv.CreateSession(ctx)
	params := tablekit.Params{"id": tablekit.Uint64Value(7)}
	if _, err := srv.Execute(ctx, id, tablekit.NewStatement("UPSERT"), params, tablekit.AutoCommit(tablekit.SerializableReadWrite)); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	calls := rec.Calls()
	if len(calls) != 1 {
		t.Fatalf("recorded %d calls, want 1", len(calls))
	}
	if calls[0].SessionID != id || calls[0].Params["id"].Uint64() != 7 {
		t.Errorf("recorded call = %+v", calls[0])
	}
}
