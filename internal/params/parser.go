package params

import (
	"fmt"
	"sort"
	"strings"

	"github.com/vvka-141/tablekit/pkg/tablekit"
)

// ParseKeyValuePairs converts a slice of "key=value" strings into a map.
//
// Example:
//
//	params, err := ParseKeyValuePairs([]string{"city=Moscow", "number:uint32=42"})
//	// Returns: map[string]string{"city": "Moscow", "number:uint32": "42"}
func ParseKeyValuePairs(pairs []string) (map[string]string, error) {
	result := make(map[string]string, len(pairs))

	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("parameter %q is not in key=value format (example: --param number:uint32=42)", pair)
		}

		if key == "" {
			return nil, fmt.Errorf("parameter has empty key: %q", pair)
		}

		result[key] = value
	}

	return result, nil
}

// ParseTyped parses one "name[:type]" key and its textual value.
func ParseTyped(key, raw string) (string, tablekit.Value, error) {
	name, kind, err := splitKey(key)
	if err != nil {
		return "", tablekit.Value{}, err
	}
	v, err := tablekit.ParseValue(kind, raw)
	if err != nil {
		return "", tablekit.Value{}, fmt.Errorf("parameter %q: %v: %w", name, err, tablekit.ErrBadParameters)
	}
	return name, v, nil
}

// Typed converts raw key/value pairs into typed parameters.
func Typed(raw map[string]string) (tablekit.Params, error) {
	out := make(tablekit.Params, len(raw))
	for _, key := range sortedKeys(raw) {
		name, v, err := ParseTyped(key, raw[key])
		if err != nil {
			return nil, err
		}
		if _, dup := out[name]; dup {
			return nil, fmt.Errorf("parameter %q is given twice with different keys: %w", name, tablekit.ErrBadParameters)
		}
		out[name] = v
	}
	return out, nil
}

// Parse converts --param flag values into typed parameters.
func Parse(pairs []string) (tablekit.Params, error) {
	raw, err := ParseKeyValuePairs(pairs)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, tablekit.ErrBadParameters)
	}
	return Typed(raw)
}

// Merge returns a new set with the parameters of every layer, later layers winning.
func Merge(layers ...tablekit.Params) tablekit.Params {
	out := make(tablekit.Params)
	for _, layer := range layers {
		for k, v := range layer {
			out[k] = v
		}
	}
	return out
}

// Declare returns stmt with every parameter declared at its own kind, so that
// Statement.Check rejects later mistyped rebinding.
func Declare(stmt tablekit.Statement, params tablekit.Params) tablekit.Statement {
	for name, v := range params {
		stmt = stmt.Declare(name, v.Kind())
	}
	return stmt
}

// splitKey splits "name:type" or "name.type". A key without a separator is a string.
func splitKey(key string) (string, tablekit.Kind, error) {
	key = strings.TrimSpace(key)
	i := strings.LastIndexAny(key, ":.")
	if i < 0 {
		return key, tablekit.KindString, nil
	}

	name, typ := key[:i], key[i+1:]
	if name == "" {
		return "", 0, fmt.Errorf("parameter has empty name: %q: %w", key, tablekit.ErrBadParameters)
	}
	kind, err := tablekit.ParseKind(typ)
	if err != nil {
		return "", 0, fmt.Errorf("parameter %q: %v: %w", name, err, tablekit.ErrBadParameters)
	}
	return name, kind, nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
