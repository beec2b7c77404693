package db

import (
	"math"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vvka-141/tablekit/pkg/tablekit"
)

func TestNamedArgs(t *testing.T) {
	args, err := namedArgs(tablekit.Params{
		"city":   tablekit.StringValue("Moscow"),
		"number": tablekit.Uint32Value(42),
		"limit":  tablekit.Uint64Value(3),
		"ok":     tablekit.BoolValue(true),
		"id":     tablekit.Int32Value(-7),
	})
	require.NoError(t, err)

	assert.Equal(t, "Moscow", args["city"])
	assert.Equal(t, int64(42), args["number"])
	assert.Equal(t, int64(3), args["limit"])
	assert.Equal(t, true, args["ok"])
	assert.Equal(t, int32(-7), args["id"])
}

func TestNamedArgs_Uint64Overflow(t *testing.T) {
	_, err := namedArgs(tablekit.Params{"big": tablekit.Uint64Value(math.MaxUint64)})
	assert.ErrorIs(t, err, tablekit.ErrBadParameters)
}

func TestKindForOID(t *testing.T) {
	tests := []struct {
		oid  uint32
		want tablekit.Kind
	}{
		{pgtype.Int2OID, tablekit.KindInt32},
		{pgtype.Int4OID, tablekit.KindInt32},
		{pgtype.Int8OID, tablekit.KindInt64},
		{pgtype.Float4OID, tablekit.KindFloat},
		{pgtype.Float8OID, tablekit.KindDouble},
		{pgtype.BoolOID, tablekit.KindBool},
		{pgtype.TextOID, tablekit.KindString},
		{pgtype.VarcharOID, tablekit.KindString},
		{pgtype.NumericOID, tablekit.KindString},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, kindForOID(tt.oid), "oid %d", tt.oid)
	}
}

func TestValueOf(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		kind tablekit.Kind
		in   any
		want tablekit.Value
	}{
		{"int2", tablekit.KindInt32, int16(5), tablekit.Int32Value(5)},
		{"int4", tablekit.KindInt32, int32(-5), tablekit.Int32Value(-5)},
		{"int8", tablekit.KindInt64, int64(1 << 40), tablekit.Int64Value(1 << 40)},
		{"float4", tablekit.KindFloat, float32(1.5), tablekit.FloatValue(1.5)},
		{"float8", tablekit.KindDouble, 2.25, tablekit.DoubleValue(2.25)},
		{"bool", tablekit.KindBool, true, tablekit.BoolValue(true)},
		{"text", tablekit.KindString, "Moscow", tablekit.StringValue("Moscow")},
		{"bytea", tablekit.KindString, []byte("raw"), tablekit.StringValue("raw")},
		{"timestamp", tablekit.KindString, ts, tablekit.StringValue("2024-03-01T12:00:00Z")},
		{"null int", tablekit.KindInt32, nil, tablekit.Int32Value(0)},
		{"null text", tablekit.KindString, nil, tablekit.StringValue("")},
		{"other as text", tablekit.KindString, [2]int{1, 2}, tablekit.StringValue("[1 2]")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := valueOf(tt.kind, tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValueOf_KindMismatch(t *testing.T) {
	_, err := valueOf(tablekit.KindInt64, [2]int{1, 2})
	assert.Error(t, err)
}

func TestTxOptions(t *testing.T) {
	rw := txOptions(tablekit.SerializableReadWrite)
	assert.Equal(t, "serializable", string(rw.IsoLevel))
	assert.Equal(t, "read write", string(rw.AccessMode))

	online := txOptions(tablekit.OnlineReadOnly)
	assert.Equal(t, "read committed", string(online.IsoLevel))
	assert.Equal(t, "read only", string(online.AccessMode))

	stale := txOptions(tablekit.StaleReadOnly)
	assert.Equal(t, "repeatable read", string(stale.IsoLevel))
	assert.Equal(t, "read only", string(stale.AccessMode))
}
