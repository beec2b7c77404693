package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/vvka-141/tablekit/pkg/tablekit"
)

// PostgreSQL SQLSTATE codes with a dedicated status mapping.
// See: https://www.postgresql.org/docs/current/errcodes-appendix.html
const (
	pgCodeSerializationFailure = "40001"
	pgCodeDeadlockDetected     = "40P01"

	pgCodeInFailedTransaction = "25P02"

	pgCodeLockNotAvailable = "55P03"

	pgCodeQueryCanceled    = "57014"
	pgCodeAdminShutdown    = "57P01"
	pgCodeCrashShutdown    = "57P02"
	pgCodeCannotConnectNow = "57P03"

	pgCodeUndefinedTable        = "42P01"
	pgCodeUndefinedColumn       = "42703"
	pgCodeUndefinedFunction     = "42883"
	pgCodeInsufficientPrivilege = "42501"

	pgCodeInvalidCatalogName = "3D000"
	pgCodeInvalidSchemaName  = "3F000"
)

// statusForSQLState maps a SQLSTATE to the table service status taxonomy.
// Exact codes take precedence over their class (the first two characters).
func statusForSQLState(code string) tablekit.StatusCode {
	switch code {
	case pgCodeSerializationFailure, pgCodeDeadlockDetected, pgCodeInFailedTransaction:
		return tablekit.StatusAborted
	case pgCodeLockNotAvailable:
		return tablekit.StatusOverloaded
	case pgCodeQueryCanceled:
		return tablekit.StatusCancelled
	case pgCodeAdminShutdown, pgCodeCrashShutdown, pgCodeCannotConnectNow:
		return tablekit.StatusUnavailable
	case pgCodeUndefinedTable, pgCodeUndefinedColumn, pgCodeUndefinedFunction,
		pgCodeInvalidCatalogName, pgCodeInvalidSchemaName:
		return tablekit.StatusSchemeError
	case pgCodeInsufficientPrivilege:
		return tablekit.StatusUnauthorized
	}

	if len(code) < 2 {
		return tablekit.StatusGenericError
	}
	switch code[:2] {
	case "08":
		return tablekit.StatusTransportUnavailable
	case "22", "42", "25":
		return tablekit.StatusBadRequest
	case "23":
		return tablekit.StatusPreconditionFailed
	case "28":
		return tablekit.StatusUnauthorized
	case "40":
		return tablekit.StatusAborted
	case "53":
		return tablekit.StatusOverloaded
	case "57":
		return tablekit.StatusUnavailable
	case "XX":
		return tablekit.StatusInternalError
	default:
		return tablekit.StatusGenericError
	}
}

// toStatusError converts driver errors into *tablekit.StatusError so the
// retry classifier can act on them. Context errors and errors that are
// already classified pass through unchanged.
func toStatusError(err error) error {
	if err == nil {
		return nil
	}

	var statusErr *tablekit.StatusError
	if errors.As(err, &statusErr) {
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return &tablekit.StatusError{
			Code:    statusForSQLState(pgErr.Code),
			Message: pgErr.Message + " (SQLSTATE " + pgErr.Code + ")",
			Err:     err,
		}
	}

	switch {
	case errors.Is(err, pgx.ErrTxClosed), errors.Is(err, pgx.ErrTxCommitRollback):
		return &tablekit.StatusError{Code: tablekit.StatusNotFound, Message: "transaction is closed", Err: err}
	case pgconn.Timeout(err):
		// pgconn reports context deadlines as timeouts; keep the context error visible.
		return err
	case pgconn.SafeToRetry(err):
		return &tablekit.StatusError{Code: tablekit.StatusUnavailable, Message: "request was not sent", Err: err}
	case isConnClosed(err):
		return &tablekit.StatusError{Code: tablekit.StatusBadSession, Message: "connection is closed", Err: err}
	}
	return err
}

func isConnClosed(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "conn closed") || strings.Contains(msg, "conn busy")
}
