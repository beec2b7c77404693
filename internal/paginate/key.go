package paginate

import (
	"fmt"
	"strings"

	"github.com/vvka-141/tablekit/pkg/tablekit"
)

// KeyColumn is one column of the compound ordering key.
type KeyColumn struct {
	Name string
	Kind tablekit.Kind
}

func (c KeyColumn) String() string {
	return c.Name + ":" + c.Kind.String()
}

// ParseKeyColumns parses "city:string,number:uint32".
func ParseKeyColumns(s string) ([]KeyColumn, error) {
	var cols []KeyColumn
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, kindName, ok := strings.Cut(part, ":")
		if !ok {
			return nil, fmt.Errorf("key column %q: expected name:type", part)
		}
		kind, err := tablekit.ParseKind(kindName)
		if err != nil {
			return nil, fmt.Errorf("key column %q: %w", part, err)
		}
		cols = append(cols, KeyColumn{Name: strings.TrimSpace(name), Kind: kind})
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("no key columns in %q", s)
	}
	return cols, nil
}

// Key is a compound key: one value per key column, in key order.
type Key []tablekit.Value

// MinKey returns the smallest key for the given columns.
func MinKey(cols []KeyColumn) Key {
	k := make(Key, len(cols))
	for i, c := range cols {
		k[i] = tablekit.MinValue(c.Kind)
	}
	return k
}

// KeyOf extracts the key of row. Every key column must be present with its declared kind.
func KeyOf(row tablekit.Row, cols []KeyColumn) (Key, error) {
	k := make(Key, len(cols))
	for i, c := range cols {
		v, ok := row.Get(c.Name)
		if !ok {
			return nil, fmt.Errorf("row has no key column %q", c.Name)
		}
		if v.Kind() != c.Kind {
			return nil, fmt.Errorf("key column %q is %s, expected %s", c.Name, v.Kind(), c.Kind)
		}
		k[i] = v
	}
	return k, nil
}

// Compare orders keys lexicographically.
func (k Key) Compare(o Key) (int, error) {
	if len(k) != len(o) {
		return 0, fmt.Errorf("cannot compare keys of length %d and %d", len(k), len(o))
	}
	for i := range k {
		c, err := k[i].Compare(o[i])
		if err != nil {
			return 0, fmt.Errorf("key column %d: %w", i, err)
		}
		if c != 0 {
			return c, nil
		}
	}
	return 0, nil
}

// Clone returns a copy of k.
func (k Key) Clone() Key {
	return append(Key(nil), k...)
}

func (k Key) String() string {
	parts := make([]string, len(k))
	for i, v := range k {
		if v.Kind() == tablekit.KindString {
			parts[i] = fmt.Sprintf("%q", v.Str())
		} else {
			parts[i] = v.String()
		}
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

func (k Key) matches(cols []KeyColumn) error {
	if len(k) != len(cols) {
		return fmt.Errorf("key has %d values for %d key columns", len(k), len(cols))
	}
	for i, c := range cols {
		if k[i].Kind() != c.Kind {
			return fmt.Errorf("key value %d is %s, column %q is %s", i, k[i].Kind(), c.Name, c.Kind)
		}
	}
	return nil
}
