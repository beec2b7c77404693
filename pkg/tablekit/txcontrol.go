package tablekit

import "fmt"

// TxMode is the isolation mode of a transaction.
type TxMode int

const (
	SerializableReadWrite TxMode = iota
	OnlineReadOnly
	StaleReadOnly
)

// String returns a human-readable string representation of the TxMode.
func (m TxMode) String() string {
	switch m {
	case SerializableReadWrite:
		return "serializable-rw"
	case OnlineReadOnly:
		return "online-ro"
	case StaleReadOnly:
		return "stale-ro"
	default:
		return fmt.Sprintf("Unknown(%d)", m)
	}
}

// IsValid returns true if the TxMode is a defined value.
func (m TxMode) IsValid() bool {
	return m >= SerializableReadWrite && m <= StaleReadOnly
}

// ReadOnly reports whether the mode forbids writes.
func (m TxMode) ReadOnly() bool {
	return m == OnlineReadOnly || m == StaleReadOnly
}

// ParseTxMode parses the String form of a TxMode. The short forms
// "rw", "online" and "stale" are accepted as well.
func ParseTxMode(s string) (TxMode, error) {
	switch s {
	case "serializable-rw", "serializable", "rw":
		return SerializableReadWrite, nil
	case "online-ro", "online":
		return OnlineReadOnly, nil
	case "stale-ro", "stale":
		return StaleReadOnly, nil
	default:
		return 0, fmt.Errorf("unknown transaction mode %q (expected serializable-rw, online-ro or stale-ro)", s)
	}
}

// TxControl tells the service how a single Execute call relates to transactions.
// It is a plain value with no lifecycle of its own.
type TxControl struct {
	autoCommit bool
	mode       TxMode
	txID       string
	commit     bool
}

// AutoCommit runs the statement in an implicit transaction of the given mode
// that is committed as part of the same call.
func AutoCommit(mode TxMode) TxControl {
	return TxControl{autoCommit: true, mode: mode, commit: true}
}

// Explicit runs the statement inside an already-begun transaction.
// When commit is true the transaction is committed by this call.
func Explicit(txID string, commit bool) TxControl {
	return TxControl{txID: txID, commit: commit}
}

func (c TxControl) IsAutoCommit() bool { return c.autoCommit }

// Mode is meaningful only for auto-commit controls.
func (c TxControl) Mode() TxMode { return c.mode }

// TxID is empty for auto-commit controls.
func (c TxControl) TxID() string { return c.txID }

func (c TxControl) CommitTx() bool { return c.commit }

func (c TxControl) String() string {
	if c.autoCommit {
		return fmt.Sprintf("auto(%s)", c.mode)
	}
	return fmt.Sprintf("tx(%s, commit=%t)", c.txID, c.commit)
}
