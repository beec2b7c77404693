package paginate

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/vvka-141/tablekit/internal/logging"
	"github.com/vvka-141/tablekit/internal/retry"
	"github.com/vvka-141/tablekit/internal/session"
	"github.com/vvka-141/tablekit/pkg/tablekit"
)

// Done is returned by Next once a page comes back empty.
var Done = errors.New("no more pages")

// Runner runs an operation on a pooled session with retries. *retry.Executor implements it.
type Runner interface {
	Do(ctx context.Context, policy tablekit.RetryPolicy, idempotent bool, op retry.Operation) error
}

// CursorOption configures a Cursor.
type CursorOption func(*Cursor)

// WithReadMode selects the read-only mode of page queries. The default is
// tablekit.OnlineReadOnly.
func WithReadMode(mode tablekit.TxMode) CursorOption {
	return func(c *Cursor) {
		c.readMode = mode
	}
}

// WithMaxPages caps the number of non-empty pages (0 = unlimited).
func WithMaxPages(n int) CursorOption {
	return func(c *Cursor) {
		c.maxPages = n
	}
}

// WithStartAfter resumes pagination after key instead of from the minimum key.
func WithStartAfter(key Key) CursorOption {
	return func(c *Cursor) {
		c.position = key.Clone()
		c.inclusive = false
	}
}

// WithCursorLogger sets the logger used to report fetched pages.
func WithCursorLogger(logger tablekit.Logger) CursorOption {
	return func(c *Cursor) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Cursor iterates over a table in key order, one page per Next call.
//
// Pages are fetched strictly one after another. A failed Next leaves the
// cursor where it was, so the caller may call Next again.
type Cursor struct {
	runner   Runner
	policy   tablekit.RetryPolicy
	query    Query
	readMode tablekit.TxMode
	maxPages int
	logger   tablekit.Logger

	first tablekit.Statement
	rest  tablekit.Statement

	mu        sync.Mutex
	position  Key
	inclusive bool
	pages     int
	done      bool
}

// NewCursor validates the query and prepares its statements.
func NewCursor(runner Runner, policy tablekit.RetryPolicy, query Query, opts ...CursorOption) (*Cursor, error) {
	if runner == nil {
		return nil, fmt.Errorf("runner is required: %w", tablekit.ErrInvalidConfig)
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}

	c := &Cursor{
		runner:    runner,
		policy:    policy,
		query:     query,
		readMode:  tablekit.OnlineReadOnly,
		logger:    logging.NewNullLogger(),
		position:  MinKey(query.Keys),
		inclusive: true,
	}
	for _, opt := range opts {
		opt(c)
	}

	if !c.readMode.ReadOnly() {
		return nil, fmt.Errorf("page queries need a read-only mode, got %s: %w", c.readMode, tablekit.ErrInvalidConfig)
	}
	if c.maxPages < 0 {
		return nil, fmt.Errorf("max pages cannot be negative: %w", tablekit.ErrInvalidConfig)
	}
	if err := c.position.matches(query.Keys); err != nil {
		return nil, fmt.Errorf("start key: %v: %w", err, tablekit.ErrInvalidConfig)
	}

	var err error
	if c.first, err = query.Build(true); err != nil {
		return nil, err
	}
	if c.rest, err = query.Build(false); err != nil {
		return nil, err
	}
	return c, nil
}

// Next fetches the page after the cursor. It returns Done once a page is
// empty; a page shorter than the page size does not end the iteration.
//
// Errors from the page fetch are returned unchanged. A page whose rows are not
// strictly ascending, or whose first row is not above the cursor, fails with
// tablekit.ErrNonMonotonicPage. A non-empty page beyond the page cap fails
// with tablekit.ErrPaginationLimitExceeded.
func (c *Cursor) Next(ctx context.Context) ([]tablekit.Row, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.done {
		return nil, Done
	}

	stmt := c.rest
	if c.inclusive {
		stmt = c.first
	}
	params := c.query.Params(c.position)

	var rows []tablekit.Row
	err := c.runner.Do(ctx, c.policy, true, func(ctx context.Context, s *session.Session) error {
		res, err := s.Execute(ctx, stmt, params, tablekit.AutoCommit(c.readMode))
		if err != nil {
			return err
		}
		rows = res.First().Rows
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(rows) == 0 {
		c.done = true
		c.logger.Verbose("Pagination of %s finished after %d pages", c.query.Table, c.pages)
		return nil, Done
	}

	if c.maxPages > 0 && c.pages >= c.maxPages {
		return nil, fmt.Errorf("%w: %s has more than %d pages", tablekit.ErrPaginationLimitExceeded, c.query.Table, c.maxPages)
	}

	last, err := c.checkPage(rows)
	if err != nil {
		return nil, err
	}

	c.position = last
	c.inclusive = false
	c.pages++
	c.logger.Verbose("Page %d of %s: %d rows, cursor %s", c.pages, c.query.Table, len(rows), last)
	return rows, nil
}

// checkPage verifies the rows ascend strictly from the cursor and returns the last key.
func (c *Cursor) checkPage(rows []tablekit.Row) (Key, error) {
	prev := c.position
	for i, row := range rows {
		key, err := KeyOf(row, c.query.Keys)
		if err != nil {
			return nil, fmt.Errorf("%w: row %d: %v", tablekit.ErrNonMonotonicPage, i, err)
		}
		cmp, err := key.Compare(prev)
		if err != nil {
			return nil, fmt.Errorf("%w: row %d: %v", tablekit.ErrNonMonotonicPage, i, err)
		}
		if cmp < 0 || (cmp == 0 && !(i == 0 && c.inclusive)) {
			return nil, fmt.Errorf("%w: row %d key %s is not above %s", tablekit.ErrNonMonotonicPage, i, key, prev)
		}
		prev = key
	}
	return prev, nil
}

// Position returns the key of the last returned row, or the start key.
func (c *Cursor) Position() Key {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.position.Clone()
}

// Pages returns the number of non-empty pages returned so far.
func (c *Cursor) Pages() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pages
}

// Walk calls fn for every page until the table is exhausted. page is one-based.
func (c *Cursor) Walk(ctx context.Context, fn func(page int, rows []tablekit.Row) error) error {
	for {
		rows, err := c.Next(ctx)
		if errors.Is(err, Done) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := fn(c.Pages(), rows); err != nil {
			return err
		}
	}
}
