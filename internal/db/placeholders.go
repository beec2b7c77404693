package db

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/vvka-141/tablekit/pkg/tablekit"
)

// Placeholders returns the distinct @name placeholders of a statement in
// order of first use. String literals, escape strings, quoted identifiers and
// comments are skipped the same way pgx does when it rewrites named arguments.
func Placeholders(text string) []string {
	var names []string
	seen := make(map[string]bool)

	for pos := 0; pos < len(text); {
		r, width := utf8.DecodeRuneInString(text[pos:])
		next := pos + width

		switch {
		case r == '\'':
			escaped := pos > 0 && (text[pos-1] == 'e' || text[pos-1] == 'E') && !isNamePrefix(text[:pos-1])
			pos = skipQuoted(text, next, '\'', escaped)
		case r == '"':
			pos = skipQuoted(text, next, '"', false)
		case r == '-' && strings.HasPrefix(text[next:], "-"):
			if end := strings.IndexByte(text[next:], '\n'); end >= 0 {
				pos = next + end + 1
			} else {
				pos = len(text)
			}
		case r == '/' && strings.HasPrefix(text[next:], "*"):
			pos = skipBlockComment(text, next+1)
		case r == '@':
			end := next
			for end < len(text) {
				c, w := utf8.DecodeRuneInString(text[end:])
				if !isNameRune(c, end == next) {
					break
				}
				end += w
			}
			if end > next {
				if name := text[next:end]; !seen[name] {
					seen[name] = true
					names = append(names, name)
				}
			}
			pos = end
		default:
			pos = next
		}
	}
	return names
}

// checkPlaceholders reports placeholders without a binding and bindings
// that no placeholder uses. pgx would send NULL for the former and drop the
// latter without complaint.
func checkPlaceholders(text string, params tablekit.Params) error {
	used := Placeholders(text)
	inText := make(map[string]bool, len(used))

	var errs []error
	for _, name := range used {
		inText[name] = true
		if _, ok := params[name]; !ok {
			errs = append(errs, fmt.Errorf("placeholder @%s has no bound parameter: %w", name, tablekit.ErrBadParameters))
		}
	}

	var unused []string
	for name := range params {
		if !inText[name] {
			unused = append(unused, name)
		}
	}
	sort.Strings(unused)
	for _, name := range unused {
		errs = append(errs, fmt.Errorf("parameter %q is not used by the statement: %w", name, tablekit.ErrBadParameters))
	}
	return errors.Join(errs...)
}

// skipQuoted returns the position after the closing quote. A doubled quote
// stays inside the literal; escape strings also honour backslashes.
func skipQuoted(text string, pos int, quote byte, backslash bool) int {
	for pos < len(text) {
		switch c := text[pos]; {
		case backslash && c == '\\':
			pos += 2
		case c == quote:
			if pos+1 < len(text) && text[pos+1] == quote {
				pos += 2
				continue
			}
			return pos + 1
		default:
			pos++
		}
	}
	return len(text)
}

// skipBlockComment returns the position after a possibly nested /* */ comment
// whose opening was just consumed.
func skipBlockComment(text string, pos int) int {
	depth := 1
	for pos < len(text) {
		switch {
		case strings.HasPrefix(text[pos:], "/*"):
			depth++
			pos += 2
		case strings.HasPrefix(text[pos:], "*/"):
			depth--
			pos += 2
			if depth == 0 {
				return pos
			}
		default:
			pos++
		}
	}
	return len(text)
}

func isNameRune(r rune, first bool) bool {
	if r == '_' || unicode.IsLetter(r) {
		return true
	}
	return !first && unicode.IsDigit(r)
}

// isNamePrefix reports whether text ends inside an identifier, so that a
// trailing e or E is part of a name rather than an escape string prefix.
func isNamePrefix(text string) bool {
	r, _ := utf8.DecodeLastRuneInString(text)
	return r != utf8.RuneError && isNameRune(r, false)
}
