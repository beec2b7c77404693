package tablekit

import (
	"errors"
	"fmt"
	"sort"
)

// Statement is an opaque statement text together with the types of the
// parameters it declares. The text is never inspected by tablekit.
type Statement struct {
	Text string

	// Declared maps parameter names to their expected kinds.
	// A nil map disables parameter checking for the statement.
	Declared map[string]Kind
}

// NewStatement creates a statement without declared parameters.
func NewStatement(text string) Statement {
	return Statement{Text: text}
}

// Declare returns a copy of the statement with an additional declared parameter.
func (s Statement) Declare(name string, kind Kind) Statement {
	declared := make(map[string]Kind, len(s.Declared)+1)
	for k, v := range s.Declared {
		declared[k] = v
	}
	declared[name] = kind
	s.Declared = declared
	return s
}

// Check validates params against the declared parameters.
// Unknown, missing and mistyped names are all reported as ErrBadParameters,
// joined into a single error.
func (s Statement) Check(params Params) error {
	if s.Declared == nil {
		return nil
	}

	var errs []error

	for _, name := range sortedNames(params) {
		kind, ok := s.Declared[name]
		if !ok {
			errs = append(errs, fmt.Errorf("unknown parameter %q: %w", name, ErrBadParameters))
			continue
		}
		if got := params[name].Kind(); got != kind {
			errs = append(errs, fmt.Errorf("parameter %q is %s, declared as %s: %w", name, got, kind, ErrBadParameters))
		}
	}

	names := make([]string, 0, len(s.Declared))
	for name := range s.Declared {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if _, ok := params[name]; !ok {
			errs = append(errs, fmt.Errorf("missing parameter %q: %w", name, ErrBadParameters))
		}
	}

	return errors.Join(errs...)
}

func sortedNames(params Params) []string {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
