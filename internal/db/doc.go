// Package db implements tablekit.Transport on PostgreSQL with pgx/v5.
//
// A session is a dedicated pooled connection. Interactive transactions map to
// pgx transactions on that connection, autocommit statements to single
// statement transactions whose isolation follows the requested mode:
//
//	SerializableReadWrite  serializable, read write
//	OnlineReadOnly         read committed, read only
//	StaleReadOnly          repeatable read, read only
//
// Server failures are mapped from SQLSTATE to tablekit status codes, so the
// retry classifier treats serialization failures as retryable aborts and
// resource exhaustion as overload.
//
// Parameters are bound by name: statement text refers to them as @name.
// PostgreSQL has no unsigned integers; Uint32 and Uint64 parameters are sent
// as bigint, and result columns come back as Int32/Int64.
package db
