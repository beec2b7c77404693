package paginate

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/vvka-141/tablekit/pkg/tablekit"
)

// Dialect selects the statement syntax.
type Dialect int

const (
	// DialectYQL declares parameters with DECLARE $name AS Type.
	DialectYQL Dialect = iota
	// DialectPostgres uses @name placeholders (pgx named arguments).
	DialectPostgres
)

func (d Dialect) String() string {
	switch d {
	case DialectYQL:
		return "yql"
	case DialectPostgres:
		return "postgres"
	default:
		return fmt.Sprintf("Dialect(%d)", int(d))
	}
}

// ParseDialect parses "yql" or "postgres" ("pg").
func ParseDialect(s string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yql", "ydb":
		return DialectYQL, nil
	case "postgres", "postgresql", "pg":
		return DialectPostgres, nil
	default:
		return 0, fmt.Errorf("unknown dialect %q", s)
	}
}

// Strategy selects how "key greater than cursor" is expressed.
type Strategy int

const (
	// StrategyUnion rebuilds the lexicographic comparison from one range scan per key column.
	StrategyUnion Strategy = iota
	// StrategyTuple uses native row comparison.
	StrategyTuple
)

func (s Strategy) String() string {
	switch s {
	case StrategyUnion:
		return "union"
	case StrategyTuple:
		return "tuple"
	default:
		return fmt.Sprintf("Strategy(%d)", int(s))
	}
}

// ParseStrategy parses "union" or "tuple".
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "union":
		return StrategyUnion, nil
	case "tuple":
		return StrategyTuple, nil
	default:
		return 0, fmt.Errorf("unknown pagination strategy %q", s)
	}
}

// LimitParam is the name of the page size parameter.
const LimitParam = "limit"

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// Query describes a keyset page query over one table.
type Query struct {
	Table string

	// Columns are the selected columns. Empty selects all columns.
	// When set, every key column must be selected.
	Columns []string

	Keys     []KeyColumn
	PageSize int
	Dialect  Dialect
	Strategy Strategy

	// PathPrefix is emitted as PRAGMA TablePathPrefix. Only DialectYQL accepts it.
	PathPrefix string
}

// Validate checks the query shape.
func (q Query) Validate() error {
	var errs []error

	if !tableName.MatchString(q.Table) {
		errs = append(errs, fmt.Errorf("invalid table name %q: %w", q.Table, tablekit.ErrInvalidConfig))
	}
	if len(q.Keys) == 0 {
		errs = append(errs, fmt.Errorf("at least one key column is required: %w", tablekit.ErrInvalidConfig))
	}
	if q.PageSize < 1 {
		errs = append(errs, fmt.Errorf("page size must be at least 1, got %d: %w", q.PageSize, tablekit.ErrInvalidConfig))
	}

	seen := make(map[string]bool, len(q.Keys))
	for _, k := range q.Keys {
		if !identifier.MatchString(k.Name) {
			errs = append(errs, fmt.Errorf("invalid key column name %q: %w", k.Name, tablekit.ErrInvalidConfig))
		}
		if !k.Kind.IsValid() {
			errs = append(errs, fmt.Errorf("key column %q has invalid type: %w", k.Name, tablekit.ErrInvalidConfig))
		}
		if seen[k.Name] {
			errs = append(errs, fmt.Errorf("duplicate key column %q: %w", k.Name, tablekit.ErrInvalidConfig))
		}
		seen[k.Name] = true
	}

	if len(q.Columns) > 0 {
		selected := make(map[string]bool, len(q.Columns))
		for _, c := range q.Columns {
			if !identifier.MatchString(c) {
				errs = append(errs, fmt.Errorf("invalid column name %q: %w", c, tablekit.ErrInvalidConfig))
			}
			selected[c] = true
		}
		for _, k := range q.Keys {
			if !selected[k.Name] {
				errs = append(errs, fmt.Errorf("key column %q is not selected: %w", k.Name, tablekit.ErrInvalidConfig))
			}
		}
	}

	if q.Dialect != DialectYQL && q.Dialect != DialectPostgres {
		errs = append(errs, fmt.Errorf("invalid dialect %v: %w", q.Dialect, tablekit.ErrInvalidConfig))
	}
	if q.Strategy != StrategyUnion && q.Strategy != StrategyTuple {
		errs = append(errs, fmt.Errorf("invalid strategy %v: %w", q.Strategy, tablekit.ErrInvalidConfig))
	}

	if q.Dialect == DialectPostgres {
		errs = append(errs, q.validatePostgres()...)
	}

	return errors.Join(errs...)
}

// validatePostgres rejects what the postgres dialect cannot express. Names
// are emitted unquoted, so PostgreSQL folds them to lower case and a mixed
// case key would never match its result column.
func (q Query) validatePostgres() []error {
	var errs []error
	if q.PathPrefix != "" {
		errs = append(errs, fmt.Errorf("path prefix %q is only supported by the yql dialect: %w", q.PathPrefix, tablekit.ErrInvalidConfig))
	}

	names := []string{q.Table}
	for _, k := range q.Keys {
		names = append(names, k.Name)
	}
	names = append(names, q.Columns...)
	for _, name := range names {
		if name != strings.ToLower(name) {
			errs = append(errs, fmt.Errorf("name %q must be lower case for the postgres dialect: %w", name, tablekit.ErrInvalidConfig))
		}
	}
	return errs
}

// ParamName returns the parameter bound to key column name.
func ParamName(column string) string {
	return "last_" + column
}

// Params binds the cursor key and the page size.
func (q Query) Params(after Key) tablekit.Params {
	params := make(tablekit.Params, len(q.Keys)+1)
	params[LimitParam] = tablekit.Uint64Value(uint64(q.PageSize))
	for i, k := range q.Keys {
		params[ParamName(k.Name)] = after[i]
	}
	return params
}

// Build renders the page statement. With inclusive set, rows equal to the
// cursor key are returned too; it is used for the first page, whose cursor is
// the minimum key.
func (q Query) Build(inclusive bool) (tablekit.Statement, error) {
	if err := q.Validate(); err != nil {
		return tablekit.Statement{}, err
	}

	var b strings.Builder
	if q.Dialect == DialectYQL {
		if q.PathPrefix != "" {
			fmt.Fprintf(&b, "PRAGMA TablePathPrefix(%q);\n\n", q.PathPrefix)
		}
		fmt.Fprintf(&b, "DECLARE %s AS %s;\n", q.placeholder(LimitParam), tablekit.KindUint64)
		for _, k := range q.Keys {
			fmt.Fprintf(&b, "DECLARE %s AS %s;\n", q.placeholder(ParamName(k.Name)), k.Kind)
		}
		b.WriteString("\n")
	}

	switch q.Strategy {
	case StrategyTuple:
		q.writeTuple(&b, inclusive)
	default:
		q.writeUnion(&b, inclusive)
	}

	stmt := tablekit.NewStatement(b.String()).Declare(LimitParam, tablekit.KindUint64)
	for _, k := range q.Keys {
		stmt = stmt.Declare(ParamName(k.Name), k.Kind)
	}
	return stmt, nil
}

func (q Query) writeTuple(b *strings.Builder, inclusive bool) {
	names := make([]string, len(q.Keys))
	params := make([]string, len(q.Keys))
	for i, k := range q.Keys {
		names[i] = k.Name
		params[i] = q.placeholder(ParamName(k.Name))
	}
	op := ">"
	if inclusive {
		op = ">="
	}
	left, right := strings.Join(names, ", "), strings.Join(params, ", ")
	if len(q.Keys) > 1 {
		left, right = "("+left+")", "("+right+")"
	}
	fmt.Fprintf(b, "SELECT %s FROM %s\nWHERE %s %s %s\nORDER BY %s LIMIT %s;",
		q.selectList(), q.Table, left, op, right, q.orderBy(), q.placeholder(LimitParam))
}

func (q Query) writeUnion(b *strings.Builder, inclusive bool) {
	branches := q.branches(inclusive)

	if len(branches) == 1 {
		fmt.Fprintf(b, "SELECT %s FROM %s\nWHERE %s\nORDER BY %s LIMIT %s;",
			q.selectList(), q.Table, branches[0], q.orderBy(), q.placeholder(LimitParam))
		return
	}

	switch q.Dialect {
	case DialectPostgres:
		b.WriteString("SELECT * FROM (\n")
		for i, where := range branches {
			if i > 0 {
				b.WriteString("\n    UNION ALL\n")
			}
			fmt.Fprintf(b, "    (SELECT %s FROM %s\n    WHERE %s\n    ORDER BY %s LIMIT %s)",
				q.selectList(), q.Table, where, q.orderBy(), q.placeholder(LimitParam))
		}
		fmt.Fprintf(b, "\n) AS page\nORDER BY %s LIMIT %s;", q.orderBy(), q.placeholder(LimitParam))
	default:
		b.WriteString("$Data = (\n")
		for i, where := range branches {
			if i > 0 {
				b.WriteString("\n\n    UNION ALL\n\n")
			}
			fmt.Fprintf(b, "    SELECT %s FROM %s\n    WHERE %s\n    ORDER BY %s LIMIT %s",
				q.selectList(), q.Table, where, q.orderBy(), q.placeholder(LimitParam))
		}
		fmt.Fprintf(b, "\n);\nSELECT * FROM $Data ORDER BY %s LIMIT %s;", q.orderBy(), q.placeholder(LimitParam))
	}
}

// branches returns one predicate per key column, deepest prefix first.
func (q Query) branches(inclusive bool) []string {
	n := len(q.Keys)
	out := make([]string, 0, n)
	for depth := n - 1; depth >= 0; depth-- {
		conds := make([]string, 0, depth+1)
		for i := 0; i < depth; i++ {
			conds = append(conds, fmt.Sprintf("%s = %s", q.Keys[i].Name, q.placeholder(ParamName(q.Keys[i].Name))))
		}
		op := ">"
		if inclusive && depth == n-1 {
			op = ">="
		}
		k := q.Keys[depth]
		conds = append(conds, fmt.Sprintf("%s %s %s", k.Name, op, q.placeholder(ParamName(k.Name))))
		out = append(out, strings.Join(conds, " AND "))
	}
	return out
}

func (q Query) placeholder(name string) string {
	if q.Dialect == DialectPostgres {
		return "@" + name
	}
	return "$" + name
}

func (q Query) selectList() string {
	if len(q.Columns) == 0 {
		return "*"
	}
	return strings.Join(q.Columns, ", ")
}

func (q Query) orderBy() string {
	names := make([]string, len(q.Keys))
	for i, k := range q.Keys {
		names[i] = k.Name
	}
	return strings.Join(names, ", ")
}
