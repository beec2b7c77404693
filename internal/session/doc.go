// Package session owns server-side sessions: the Session handle, the
// bounded Pool that lends sessions to callers, and the interactive
// Transaction bound to a single session.
//
// # Ownership
//
// A Session is owned by the Pool while Idle, Broken or Closed, and by exactly
// one caller while Leased. The caller gives it back with Pool.Release:
//
//	s, err := pool.Acquire(ctx, 3*time.Second)
//	if err != nil {
//	    return err
//	}
//	res, err := s.Execute(ctx, stmt, params, tablekit.AutoCommit(tablekit.OnlineReadOnly))
//	pool.Release(s, err == nil)
//
// # Fairness
//
// Callers waiting in Acquire are served first-come-first-served. Only the
// pool bookkeeping is serialized; calls on different sessions run concurrently.
//
// # Transactions
//
// A Transaction is begun on a Session and stays bound to it. After Commit,
// Rollback, or an Execute with commit=true, every further operation fails
// with tablekit.ErrTransactionClosed.
package session
