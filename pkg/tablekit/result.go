package tablekit

import "fmt"

// Column describes one column of a result set.
type Column struct {
	Name string
	Kind Kind
}

// Row is one row of a result set. Values are in column order.
type Row struct {
	columns []Column
	values  []Value
}

// NewRow creates a row. The number of values must match the number of columns.
func NewRow(columns []Column, values []Value) (Row, error) {
	if len(columns) != len(values) {
		return Row{}, fmt.Errorf("row has %d values for %d columns", len(values), len(columns))
	}
	return Row{columns: columns, values: values}, nil
}

// Len returns the number of values in the row.
func (r Row) Len() int { return len(r.values) }

// At returns the i-th value.
func (r Row) At(i int) Value { return r.values[i] }

// Values returns the row values in column order.
func (r Row) Values() []Value { return r.values }

// Columns returns the row's column descriptors.
func (r Row) Columns() []Column { return r.columns }

// Get returns the value of the named column.
func (r Row) Get(name string) (Value, bool) {
	for i, c := range r.columns {
		if c.Name == name {
			return r.values[i], true
		}
	}
	return Value{}, false
}

// String formats the row as "name=value" pairs.
func (r Row) String() string {
	s := "{"
	for i, c := range r.columns {
		if i > 0 {
			s += ", "
		}
		s += c.Name + "=" + r.values[i].String()
	}
	return s + "}"
}

// ResultSet is a finite, fully materialized sequence of rows.
// It is not a live cursor into the server; re-reading requires re-querying.
type ResultSet struct {
	Columns []Column
	Rows    []Row
}

// RowCount returns the number of rows.
func (rs ResultSet) RowCount() int { return len(rs.Rows) }

// Column returns the index of the named column, or -1.
func (rs ResultSet) Column(name string) int {
	for i, c := range rs.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// Result is what a single Execute call returns.
type Result struct {
	// TxID is set when the call ran inside, or left open, a transaction.
	TxID string

	Sets []ResultSet
}

// First returns the first result set, or an empty one.
func (r *Result) First() ResultSet {
	if r == nil || len(r.Sets) == 0 {
		return ResultSet{}
	}
	return r.Sets[0]
}
