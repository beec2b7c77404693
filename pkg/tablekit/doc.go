// Package tablekit defines the public contracts shared by the tablekit
// session pool, retry executor and pagination cursor.
//
// The table service itself is reached through the Transport interface.
// Everything on the other side of that interface (network, credentials,
// schema management) belongs to the transport implementation.
//
// # Values and Parameters
//
// Statements are opaque text. Parameters bind by name to typed scalars:
//
//	stmt := tablekit.Statement{
//	    Text:     "SELECT * FROM schools WHERE city = $city;",
//	    Declared: map[string]tablekit.Kind{"city": tablekit.KindString},
//	}
//	params := tablekit.Params{"city": tablekit.StringValue("Moscow")}
//
// # Transaction Control
//
// Every Execute call carries a TxControl describing isolation and commit timing:
//
//	tablekit.AutoCommit(tablekit.OnlineReadOnly)  // implicit transaction, committed immediately
//	tablekit.Explicit(txID, false)                // inside an already-begun transaction
//
// # Errors
//
// Failures are classified with sentinel errors (ErrTimeout, ErrTransient,
// ErrAmbiguous, ...) that callers test with errors.Is. Server status codes
// arrive as *StatusError and match the sentinel for their class.
package tablekit
