package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/vvka-141/tablekit/pkg/tablekit"
)

// TxState is the lifecycle state of an interactive transaction.
type TxState int

const (
	TxActive TxState = iota
	TxCommitted
	TxRolledBack
)

func (s TxState) String() string {
	switch s {
	case TxActive:
		return "active"
	case TxCommitted:
		return "committed"
	case TxRolledBack:
		return "rolled back"
	default:
		return fmt.Sprintf("TxState(%d)", int(s))
	}
}

// Transaction is an interactive transaction bound to one Session.
//
// State machine:
//
//	Active --Commit()--------------> Committed
//	Active --Execute(commit=true)--> Committed
//	Active --Rollback()------------> RolledBack
//
// Committed and RolledBack are terminal.
type Transaction struct {
	id      string
	mode    tablekit.TxMode
	session *Session

	mu    sync.Mutex
	state TxState
}

func (tx *Transaction) ID() string            { return tx.id }
func (tx *Transaction) Mode() tablekit.TxMode { return tx.mode }
func (tx *Transaction) Session() *Session     { return tx.session }

// State returns the current transaction state.
func (tx *Transaction) State() TxState {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return tx.state
}

// Execute runs a statement inside the transaction. With commit=true the
// transaction is committed by the same call.
//
// A server-side failure aborts the transaction; it moves to RolledBack.
func (tx *Transaction) Execute(ctx context.Context, stmt tablekit.Statement, params tablekit.Params, commit bool) (*tablekit.Result, error) {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	if err := tx.checkActive(); err != nil {
		return nil, err
	}
	if err := tx.session.checkLeased(); err != nil {
		return nil, err
	}
	if err := stmt.Check(params); err != nil {
		return nil, err
	}

	var res *tablekit.Result
	err := tx.session.call(ctx, func(ctx context.Context) error {
		var err error
		res, err = tx.session.transport.Execute(ctx, tx.session.id, stmt, params, tablekit.Explicit(tx.id, commit))
		return err
	})
	if err != nil {
		// Rejected parameters never reach the server transaction.
		if !errors.Is(err, tablekit.ErrBadParameters) {
			tx.state = TxRolledBack
		}
		return nil, err
	}
	if commit {
		tx.state = TxCommitted
	}
	return res, nil
}

// Commit commits the transaction.
func (tx *Transaction) Commit(ctx context.Context) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	if err := tx.checkActive(); err != nil {
		return err
	}
	if err := tx.session.checkLeased(); err != nil {
		return err
	}

	err := tx.session.call(ctx, func(ctx context.Context) error {
		return tx.session.transport.CommitTransaction(ctx, tx.session.id, tx.id)
	})
	if err != nil {
		tx.state = TxRolledBack
		return err
	}
	tx.state = TxCommitted
	return nil
}

// Rollback discards the transaction. The transaction is RolledBack afterwards
// even if the server call fails.
func (tx *Transaction) Rollback(ctx context.Context) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	if err := tx.checkActive(); err != nil {
		return err
	}
	tx.state = TxRolledBack

	if err := tx.session.checkLeased(); err != nil {
		return err
	}
	return tx.session.call(ctx, func(ctx context.Context) error {
		return tx.session.transport.RollbackTransaction(ctx, tx.session.id, tx.id)
	})
}

func (tx *Transaction) checkActive() error {
	if tx.state != TxActive {
		return fmt.Errorf("transaction %s is %s: %w", tx.id, tx.state, tablekit.ErrTransactionClosed)
	}
	return nil
}

// IsClosed reports whether err means the transaction can no longer be used.
func IsClosed(err error) bool {
	return errors.Is(err, tablekit.ErrTransactionClosed)
}
