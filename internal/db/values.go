package db

import (
	"database/sql/driver"
	"fmt"
	"math"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/vvka-141/tablekit/pkg/tablekit"
)

// namedArgs binds tablekit parameters to @name placeholders.
// PostgreSQL has no unsigned integers, so unsigned values are sent as bigint.
func namedArgs(params tablekit.Params) (pgx.NamedArgs, error) {
	args := make(pgx.NamedArgs, len(params))
	for name, v := range params {
		switch v.Kind() {
		case tablekit.KindUint32:
			args[name] = int64(v.Uint64())
		case tablekit.KindUint64:
			if v.Uint64() > math.MaxInt64 {
				return nil, fmt.Errorf("parameter %q: %d overflows bigint: %w", name, v.Uint64(), tablekit.ErrBadParameters)
			}
			args[name] = int64(v.Uint64())
		default:
			args[name] = v.Any()
		}
	}
	return args, nil
}

// kindForOID returns the value kind used for a column type. Types without a
// dedicated kind are rendered as strings.
func kindForOID(oid uint32) tablekit.Kind {
	switch oid {
	case pgtype.Int2OID, pgtype.Int4OID:
		return tablekit.KindInt32
	case pgtype.Int8OID:
		return tablekit.KindInt64
	case pgtype.Float4OID:
		return tablekit.KindFloat
	case pgtype.Float8OID:
		return tablekit.KindDouble
	case pgtype.BoolOID:
		return tablekit.KindBool
	default:
		return tablekit.KindString
	}
}

func columnsOf(fields []pgconn.FieldDescription) []tablekit.Column {
	cols := make([]tablekit.Column, len(fields))
	for i, f := range fields {
		cols[i] = tablekit.Column{Name: f.Name, Kind: kindForOID(f.DataTypeOID)}
	}
	return cols
}

// valueOf converts a decoded cell into a Value of the column kind.
// NULL becomes the zero value of the kind.
func valueOf(kind tablekit.Kind, v any) (tablekit.Value, error) {
	if v == nil {
		return zeroValue(kind), nil
	}

	switch x := v.(type) {
	case int16:
		return tablekit.Int32Value(int32(x)), nil
	case int32:
		return tablekit.Int32Value(x), nil
	case int64:
		return tablekit.Int64Value(x), nil
	case float32:
		return tablekit.FloatValue(x), nil
	case float64:
		return tablekit.DoubleValue(x), nil
	case bool:
		return tablekit.BoolValue(x), nil
	case string:
		return tablekit.StringValue(x), nil
	case []byte:
		return tablekit.StringValue(string(x)), nil
	case time.Time:
		return tablekit.StringValue(x.Format(time.RFC3339Nano)), nil
	}

	if kind != tablekit.KindString {
		return tablekit.Value{}, fmt.Errorf("unexpected %T for %s column", v, kind)
	}
	// Numeric, interval and friends render through their driver value.
	if valuer, ok := v.(driver.Valuer); ok {
		dv, err := valuer.Value()
		if err != nil {
			return tablekit.Value{}, err
		}
		if dv == nil {
			return zeroValue(kind), nil
		}
		return tablekit.StringValue(fmt.Sprint(dv)), nil
	}
	return tablekit.StringValue(fmt.Sprint(v)), nil
}

func zeroValue(kind tablekit.Kind) tablekit.Value {
	switch kind {
	case tablekit.KindInt32:
		return tablekit.Int32Value(0)
	case tablekit.KindInt64:
		return tablekit.Int64Value(0)
	case tablekit.KindFloat:
		return tablekit.FloatValue(0)
	case tablekit.KindDouble:
		return tablekit.DoubleValue(0)
	case tablekit.KindBool:
		return tablekit.BoolValue(false)
	default:
		return tablekit.StringValue("")
	}
}

// collect materializes rows into a ResultSet and closes them.
func collect(rows pgx.Rows) (tablekit.ResultSet, error) {
	defer rows.Close()

	cols := columnsOf(rows.FieldDescriptions())
	set := tablekit.ResultSet{Columns: cols}
	for rows.Next() {
		raw, err := rows.Values()
		if err != nil {
			return tablekit.ResultSet{}, err
		}
		values := make([]tablekit.Value, len(raw))
		for i, cell := range raw {
			v, err := valueOf(cols[i].Kind, cell)
			if err != nil {
				return tablekit.ResultSet{}, fmt.Errorf("column %q: %w", cols[i].Name, err)
			}
			values[i] = v
		}
		row, err := tablekit.NewRow(cols, values)
		if err != nil {
			return tablekit.ResultSet{}, err
		}
		set.Rows = append(set.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return tablekit.ResultSet{}, err
	}
	return set, nil
}
