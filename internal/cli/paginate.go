package cli

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/vvka-141/tablekit/internal/config"
	"github.com/vvka-141/tablekit/internal/logging"
	"github.com/vvka-141/tablekit/internal/paginate"
	"github.com/vvka-141/tablekit/pkg/tablekit"
)

var paginateCmd = &cobra.Command{
	Use:   "paginate <table>",
	Short: "Walk a table page by page in primary key order",
	Long: `Paginate reads a table in pages of --page-size rows, ordered by its
(possibly compound) primary key. Every page is a separate read-only,
auto-commit query that resumes strictly after the last key of the previous
page, so the walk never uses OFFSET and survives retries.

Key columns are given in key order as name:type pairs. Supported types:
string, int32, int64, uint32, uint64, float, double, bool. PostgreSQL has no
unsigned integers; use int32/int64 there.

Defaults come from the 'pagination' section of tablekit.yaml, then from
built-in values (page size 3, at most 10 pages, online read-only, union
strategy, postgres dialect).

Strategies:
  union   one range query per key prefix, combined with UNION ALL (portable)
  tuple   a single row-value comparison (key1, key2) > (@key1, @key2)

Examples:
  # Walk the schools table by (city, number)
  tablekit paginate schools --key city:string,number:int32

  # Bigger pages, read from a consistent snapshot, no page cap
  tablekit paginate schools --key city:string,number:int32 --page-size 100 --max-pages 0 --read-mode stale

  # Resume after a known key
  tablekit paginate schools --key city:string,number:int32 --after Berlin,1

  # Print the generated YQL page query without connecting
  tablekit paginate schools --key city:string,number:uint32 --dialect yql --print-query`,
	Args: RequireTable,
	RunE: runPaginate,
}

var (
	paginateKey        string
	paginateColumns    []string
	paginatePageSize   int
	paginateMaxPages   int
	paginateReadMode   string
	paginateStrategy   string
	paginateDialect    string
	paginatePathPrefix string
	paginateAfter      string
	paginatePrintQuery bool
	paginateTimeout    time.Duration
)

func init() {
	rootCmd.AddCommand(paginateCmd)

	paginateCmd.Flags().StringVar(&paginateKey, "key", "",
		"Primary key columns in key order, e.g. city:string,number:int32 (required)")
	paginateCmd.Flags().StringSliceVar(&paginateColumns, "columns", nil,
		"Columns to select (default: all). Must include every key column")
	paginateCmd.Flags().IntVar(&paginatePageSize, "page-size", 0,
		"Rows per page (default: pagination.page_size or 3)")
	paginateCmd.Flags().IntVar(&paginateMaxPages, "max-pages", -1,
		"Stop with an error after this many non-empty pages, 0 = unlimited\n"+
			"(default: pagination.max_pages or 10)")
	paginateCmd.Flags().StringVar(&paginateReadMode, "read-mode", "",
		"Read mode of page queries: online or stale (default: online)")
	paginateCmd.Flags().StringVar(&paginateStrategy, "strategy", "",
		"Page query strategy: union or tuple (default: union)")
	paginateCmd.Flags().StringVar(&paginateDialect, "dialect", "",
		"Query dialect: postgres or yql (default: postgres)")
	paginateCmd.Flags().StringVar(&paginatePathPrefix, "path-prefix", "",
		"TablePathPrefix pragma for the yql dialect")
	paginateCmd.Flags().StringVar(&paginateAfter, "after", "",
		"Resume strictly after this key, one comma-separated value per key column")
	paginateCmd.Flags().BoolVar(&paginatePrintQuery, "print-query", false,
		"Print the page queries and exit without connecting")
	paginateCmd.Flags().DurationVar(&paginateTimeout, "timeout", 0,
		"Maximum time for the whole walk (default: 'timeout' in tablekit.yaml or 5m)")

	_ = paginateCmd.MarkFlagRequired("key")
}

// pageFlags are the paginate flags before they are merged with tablekit.yaml.
// Zero values (and -1 for maxPages) mean "not set".
type pageFlags struct {
	key        string
	columns    []string
	pageSize   int
	maxPages   int
	readMode   string
	strategy   string
	dialect    string
	pathPrefix string
	after      string
}

// pagePlan is a fully resolved pagination run.
type pagePlan struct {
	query    paginate.Query
	maxPages int
	readMode tablekit.TxMode
	after    paginate.Key
}

// buildPagePlan merges flags over the configured pagination defaults.
func buildPagePlan(table string, defaults config.Page, f pageFlags) (*pagePlan, error) {
	keys, err := paginate.ParseKeyColumns(f.key)
	if err != nil {
		return nil, fmt.Errorf("--key: %v: %w", err, tablekit.ErrInvalidConfig)
	}

	plan := &pagePlan{
		query: paginate.Query{
			Table:      table,
			Columns:    f.columns,
			Keys:       keys,
			PageSize:   defaults.PageSize,
			Dialect:    defaults.Dialect,
			Strategy:   defaults.Strategy,
			PathPrefix: f.pathPrefix,
		},
		maxPages: defaults.MaxPages,
		readMode: defaults.ReadMode,
	}

	if f.pageSize != 0 {
		plan.query.PageSize = f.pageSize
	}
	if f.maxPages >= 0 {
		plan.maxPages = f.maxPages
	}
	if f.readMode != "" {
		mode, err := tablekit.ParseTxMode(f.readMode)
		if err != nil {
			return nil, fmt.Errorf("--read-mode: %v: %w", err, tablekit.ErrInvalidConfig)
		}
		if !mode.ReadOnly() {
			return nil, fmt.Errorf("--read-mode must be online or stale, got %s: %w", mode, tablekit.ErrInvalidConfig)
		}
		plan.readMode = mode
	}
	if f.strategy != "" {
		if plan.query.Strategy, err = paginate.ParseStrategy(f.strategy); err != nil {
			return nil, fmt.Errorf("--strategy: %v: %w", err, tablekit.ErrInvalidConfig)
		}
	}
	if f.dialect != "" {
		if plan.query.Dialect, err = paginate.ParseDialect(f.dialect); err != nil {
			return nil, fmt.Errorf("--dialect: %v: %w", err, tablekit.ErrInvalidConfig)
		}
	}
	if f.after != "" {
		if plan.after, err = parseKey(f.after, keys); err != nil {
			return nil, err
		}
	}

	if err := plan.query.Validate(); err != nil {
		return nil, err
	}
	return plan, nil
}

// parseKey parses one comma-separated value per key column.
func parseKey(s string, cols []paginate.KeyColumn) (paginate.Key, error) {
	parts := strings.Split(s, ",")
	if len(parts) != len(cols) {
		return nil, fmt.Errorf("--after has %d values, key has %d columns: %w", len(parts), len(cols), tablekit.ErrInvalidConfig)
	}
	key := make(paginate.Key, len(cols))
	for i, c := range cols {
		v, err := tablekit.ParseValue(c.Kind, strings.TrimSpace(parts[i]))
		if err != nil {
			return nil, fmt.Errorf("--after column %s: %v: %w", c.Name, err, tablekit.ErrInvalidConfig)
		}
		key[i] = v
	}
	return key, nil
}

// cursorOptions turns the plan into cursor options.
func (p *pagePlan) cursorOptions(logger tablekit.Logger) []paginate.CursorOption {
	opts := []paginate.CursorOption{
		paginate.WithReadMode(p.readMode),
		paginate.WithMaxPages(p.maxPages),
		paginate.WithCursorLogger(logger),
	}
	if p.after != nil {
		opts = append(opts, paginate.WithStartAfter(p.after))
	}
	return opts
}

func runPaginate(cmd *cobra.Command, args []string) error {
	s, err := buildSettings(cmd, paginateTimeout)
	if err != nil {
		return err
	}

	plan, err := buildPagePlan(args[0], s.paging, pageFlags{
		key:        paginateKey,
		columns:    paginateColumns,
		pageSize:   paginatePageSize,
		maxPages:   paginateMaxPages,
		readMode:   paginateReadMode,
		strategy:   paginateStrategy,
		dialect:    paginateDialect,
		pathPrefix: paginatePathPrefix,
		after:      paginateAfter,
	})
	if err != nil {
		return err
	}

	if paginatePrintQuery {
		return printPageQueries(cmd, plan.query)
	}
	if plan.query.Dialect != paginate.DialectPostgres {
		return fmt.Errorf("the %s dialect can only be printed (--print-query): %w", plan.query.Dialect, tablekit.ErrInvalidConfig)
	}

	ctx, cancel := commandContext(s.timeout)
	defer cancel()

	a, err := openApp(ctx, s)
	if err != nil {
		return err
	}
	defer a.Close()

	cursor, err := paginate.NewCursor(a.executor, s.policy, plan.query, plan.cursorOptions(logging.Component(s.logger, "paginate"))...)
	if err != nil {
		return err
	}

	printer := newRowPrinter(os.Stdout)
	rows := 0
	err = cursor.Walk(ctx, func(page int, pageRows []tablekit.Row) error {
		rows += len(pageRows)
		s.logger.Verbose("Page %d: %d rows, last key %s", page, len(pageRows), cursor.Position())
		return printer.PrintPage(page, pageRows)
	})
	if err != nil {
		return fmt.Errorf("pagination stopped after %d pages at key %s: %w", cursor.Pages(), cursor.Position(), err)
	}

	s.logger.Info("Read %d rows in %d pages", rows, cursor.Pages())
	return nil
}

// printPageQueries prints the first-page and next-page statements.
func printPageQueries(cmd *cobra.Command, q paginate.Query) error {
	first, err := q.Build(true)
	if err != nil {
		return err
	}
	rest, err := q.Build(false)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "-- first page\n%s\n\n-- next pages\n%s\n", first.Text, rest.Text)
	return nil
}
