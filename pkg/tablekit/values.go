package tablekit

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind identifies the scalar type of a Value.
type Kind int

const (
	KindString Kind = iota
	KindInt32
	KindInt64
	KindUint32
	KindUint64
	KindFloat
	KindDouble
	KindBool
)

// String returns the type name used by statement declarations and the CLI.
func (k Kind) String() string {
	switch k {
	case KindString:
		return "Utf8"
	case KindInt32:
		return "Int32"
	case KindInt64:
		return "Int64"
	case KindUint32:
		return "Uint32"
	case KindUint64:
		return "Uint64"
	case KindFloat:
		return "Float"
	case KindDouble:
		return "Double"
	case KindBool:
		return "Bool"
	default:
		return fmt.Sprintf("Unknown(%d)", k)
	}
}

// IsValid returns true if the Kind is a defined value.
func (k Kind) IsValid() bool {
	return k >= KindString && k <= KindBool
}

// ParseKind parses a case-insensitive type name. Both the declaration
// names ("Utf8", "Uint32") and the short CLI names ("string", "u32") are accepted.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "utf8", "string", "str", "text":
		return KindString, nil
	case "int32", "i32":
		return KindInt32, nil
	case "int64", "i64", "int":
		return KindInt64, nil
	case "uint32", "u32":
		return KindUint32, nil
	case "uint64", "u64", "uint":
		return KindUint64, nil
	case "float", "float32", "f32":
		return KindFloat, nil
	case "double", "float64", "f64":
		return KindDouble, nil
	case "bool", "boolean":
		return KindBool, nil
	default:
		return 0, fmt.Errorf("unknown value type %q", s)
	}
}

// Value is an immutable typed scalar: a statement parameter or a result cell.
// The zero Value is an empty string.
type Value struct {
	kind Kind
	s    string
	i    int64
	u    uint64
	f    float64
	b    bool
}

func StringValue(v string) Value { return Value{kind: KindString, s: v} }
func Int32Value(v int32) Value { return Value{kind: KindInt32, i: int64(v)} }
func Int64Value(v int64) Value { return Value{kind: KindInt64, i: v} }
func Uint32Value(v uint32) Value { return Value{kind: KindUint32, u: uint64(v)} }
func Uint64Value(v uint64) Value { return Value{kind: KindUint64, u: v} }
func FloatValue(v float32) Value { return Value{kind: KindFloat, f: float64(v)} }
func DoubleValue(v float64) Value { return Value{kind: KindDouble, f: v} }
func BoolValue(v bool) Value { return Value{kind: KindBool, b: v} }

// MinValue returns the smallest value of the given kind. Keyset cursors
// start from these values.
func MinValue(k Kind) Value {
	switch k {
	case KindInt32:
		return Int32Value(math.MinInt32)
	case KindInt64:
		return Int64Value(math.MinInt64)
	case KindUint32:
		return Uint32Value(0)
	case KindUint64:
		return Uint64Value(0)
	case KindFloat:
		return FloatValue(float32(math.Inf(-1)))
	case KindDouble:
		return DoubleValue(math.Inf(-1))
	case KindBool:
		return BoolValue(false)
	default:
		return StringValue("")
	}
}

// ParseValue parses the textual form of a value of kind k.
func ParseValue(k Kind, s string) (Value, error) {
	switch k {
	case KindString:
		return StringValue(s), nil
	case KindInt32:
		n, err := strconv.ParseInt(s, 10, 32)
		if err != nil {
			return Value{}, fmt.Errorf("invalid %s %q: %w", k, s, err)
		}
		return Int32Value(int32(n)), nil
	case KindInt64:
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return Value{}, fmt.Errorf("invalid %s %q: %w", k, s, err)
		}
		return Int64Value(n), nil
	case KindUint32:
		n, err := strconv.ParseUint(s, 10, 32)
		if err != nil {
			return Value{}, fmt.Errorf("invalid %s %q: %w", k, s, err)
		}
		return Uint32Value(uint32(n)), nil
	case KindUint64:
		n, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return Value{}, fmt.Errorf("invalid %s %q: %w", k, s, err)
		}
		return Uint64Value(n), nil
	case KindFloat:
		f, err := strconv.ParseFloat(s, 32)
		if err != nil {
			return Value{}, fmt.Errorf("invalid %s %q: %w", k, s, err)
		}
		return FloatValue(float32(f)), nil
	case KindDouble:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Value{}, fmt.Errorf("invalid %s %q: %w", k, s, err)
		}
		return DoubleValue(f), nil
	case KindBool:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return Value{}, fmt.Errorf("invalid %s %q: %w", k, s, err)
		}
		return BoolValue(b), nil
	default:
		return Value{}, fmt.Errorf("unsupported value type %s", k)
	}
}

// Kind returns the scalar type of the value.
func (v Value) Kind() Kind { return v.kind }

func (v Value) Str() string { return v.s }
func (v Value) Int64() int64 { return v.i }
func (v Value) Uint64() uint64 { return v.u }
func (v Value) Float64() float64 { return v.f }
func (v Value) Bool() bool { return v.b }

// Any returns the value as the natural Go type for its kind.
func (v Value) Any() any {
	switch v.kind {
	case KindInt32:
		return int32(v.i)
	case KindInt64:
		return v.i
	case KindUint32:
		return uint32(v.u)
	case KindUint64:
		return v.u
	case KindFloat:
		return float32(v.f)
	case KindDouble:
		return v.f
	case KindBool:
		return v.b
	default:
		return v.s
	}
}

// String formats the value for display.
func (v Value) String() string {
	switch v.kind {
	case KindInt32, KindInt64:
		return strconv.FormatInt(v.i, 10)
	case KindUint32, KindUint64:
		return strconv.FormatUint(v.u, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 32)
	case KindDouble:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	default:
		return v.s
	}
}

// Compare orders two values of the same kind, returning -1, 0 or +1.
// Values of different kinds are not comparable.
func (v Value) Compare(o Value) (int, error) {
	if v.kind != o.kind {
		return 0, fmt.Errorf("cannot compare %s with %s", v.kind, o.kind)
	}
	switch v.kind {
	case KindInt32, KindInt64:
		return cmp3(v.i < o.i, v.i > o.i), nil
	case KindUint32, KindUint64:
		return cmp3(v.u < o.u, v.u > o.u), nil
	case KindFloat, KindDouble:
		return cmp3(v.f < o.f, v.f > o.f), nil
	case KindBool:
		return cmp3(!v.b && o.b, v.b && !o.b), nil
	default:
		return strings.Compare(v.s, o.s), nil
	}
}

func cmp3(less, greater bool) int {
	switch {
	case less:
		return -1
	case greater:
		return 1
	default:
		return 0
	}
}

// Params binds parameter names (without any dialect sigil) to values.
type Params map[string]Value
