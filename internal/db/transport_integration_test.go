package db_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vvka-141/tablekit/internal/db"
	"github.com/vvka-141/tablekit/internal/paginate"
	"github.com/vvka-141/tablekit/internal/retry"
	"github.com/vvka-141/tablekit/internal/session"
	"github.com/vvka-141/tablekit/internal/testinfra"
	"github.com/vvka-141/tablekit/pkg/tablekit"
)

type fixture struct {
	transport *db.Transport
	pool      *session.Pool
	executor  *retry.Executor
	table     string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	connString := testinfra.RequireDatabase(t)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	transport, err := db.Dial(ctx, db.NewConnector(connString, db.WithMaxSessions(4)))
	require.NoError(t, err)

	cfg := tablekit.DefaultPoolConfig()
	cfg.MaxSessions = 4
	pool, err := session.NewPool(transport, cfg)
	require.NoError(t, err)

	f := &fixture{
		transport: transport,
		pool:      pool,
		executor:  retry.NewExecutor(pool, retry.NewStatusClassifier()),
		table:     "schools_" + strings.ReplaceAll(uuid.NewString()[:8], "-", ""),
	}
	t.Cleanup(func() {
		ctx := context.Background()
		_ = f.exec(ctx, tablekit.NewStatement("DROP TABLE IF EXISTS "+f.table), nil)
		_ = pool.Shutdown(ctx)
		transport.Close()
	})

	require.NoError(t, f.exec(ctx, tablekit.NewStatement(fmt.Sprintf(
		`CREATE TABLE %s (city TEXT COLLATE "C" NOT NULL, number INTEGER NOT NULL, address TEXT, PRIMARY KEY (city, number))`,
		f.table)), nil))
	return f
}

func (f *fixture) exec(ctx context.Context, stmt tablekit.Statement, params tablekit.Params) error {
	return f.executor.Do(ctx, retry.DefaultPolicy(), false, func(ctx context.Context, s *session.Session) error {
		_, err := s.Execute(ctx, stmt, params, tablekit.AutoCommit(tablekit.SerializableReadWrite))
		return err
	})
}

func (f *fixture) insertStmt() tablekit.Statement {
	return tablekit.NewStatement(fmt.Sprintf(
		"INSERT INTO %s (city, number, address) VALUES (@city, @number, @address)", f.table)).
		Declare("city", tablekit.KindString).
		Declare("number", tablekit.KindInt32).
		Declare("address", tablekit.KindString)
}

func (f *fixture) insert(t *testing.T, city string, number int32) {
	t.Helper()
	err := f.exec(context.Background(), f.insertStmt(), tablekit.Params{
		"city":    tablekit.StringValue(city),
		"number":  tablekit.Int32Value(number),
		"address": tablekit.StringValue(fmt.Sprintf("%s street %d", city, number)),
	})
	require.NoError(t, err)
}

func (f *fixture) count(t *testing.T) int64 {
	t.Helper()
	var n int64
	err := f.executor.Do(context.Background(), retry.DefaultPolicy(), true, func(ctx context.Context, s *session.Session) error {
		res, err := s.Execute(ctx, tablekit.NewStatement("SELECT count(*) AS n FROM "+f.table), nil,
			tablekit.AutoCommit(tablekit.OnlineReadOnly))
		if err != nil {
			return err
		}
		v, _ := res.First().Rows[0].Get("n")
		n = v.Int64()
		return nil
	})
	require.NoError(t, err)
	return n
}

func TestTransport_PaginatesCompoundKey(t *testing.T) {
	f := newFixture(t)
	for _, k := range []struct {
		city   string
		number int32
	}{{"Amsterdam", 1}, {"Amsterdam", 2}, {"Amsterdam", 3}, {"Amsterdam", 4}, {"Amsterdam", 5}, {"Berlin", 1}, {"Berlin", 2}} {
		f.insert(t, k.city, k.number)
	}

	for _, strategy := range []paginate.Strategy{paginate.StrategyUnion, paginate.StrategyTuple} {
		t.Run(strategy.String(), func(t *testing.T) {
			cursor, err := paginate.NewCursor(f.executor, retry.DefaultPolicy(), paginate.Query{
				Table: f.table,
				Keys: []paginate.KeyColumn{
					{Name: "city", Kind: tablekit.KindString},
					{Name: "number", Kind: tablekit.KindInt32},
				},
				PageSize: 3,
				Dialect:  paginate.DialectPostgres,
				Strategy: strategy,
			}, paginate.WithMaxPages(10))
			require.NoError(t, err)

			var sizes []int
			var keys []string
			err = cursor.Walk(context.Background(), func(_ int, rows []tablekit.Row) error {
				sizes = append(sizes, len(rows))
				for _, row := range rows {
					city, _ := row.Get("city")
					number, _ := row.Get("number")
					keys = append(keys, fmt.Sprintf("%s/%s", city, number))
				}
				return nil
			})
			require.NoError(t, err)

			assert.Equal(t, []int{3, 3, 1}, sizes)
			assert.Equal(t, []string{
				"Amsterdam/1", "Amsterdam/2", "Amsterdam/3", "Amsterdam/4", "Amsterdam/5", "Berlin/1", "Berlin/2",
			}, keys)
		})
	}
}

func TestTransport_ExplicitTransactionCommit(t *testing.T) {
	f := newFixture(t)
	f.insert(t, "Cairo", 1)

	err := f.executor.DoTx(context.Background(), retry.DefaultPolicy(), tablekit.SerializableReadWrite, false,
		func(ctx context.Context, tx *session.Transaction) error {
			params := func(n int32) tablekit.Params {
				return tablekit.Params{
					"city":    tablekit.StringValue("Cairo"),
					"number":  tablekit.Int32Value(n),
					"address": tablekit.StringValue("Nile street"),
				}
			}
			if _, err := tx.Execute(ctx, f.insertStmt(), params(2), false); err != nil {
				return err
			}

			// Autocommit read on the same session does not see the open transaction.
			res, err := tx.Session().Execute(ctx, tablekit.NewStatement("SELECT count(*) AS n FROM "+f.table), nil,
				tablekit.AutoCommit(tablekit.OnlineReadOnly))
			if err != nil {
				return err
			}
			if v, _ := res.First().Rows[0].Get("n"); v.Int64() != 1 {
				return fmt.Errorf("autocommit read saw %d rows, want 1", v.Int64())
			}

			_, err = tx.Execute(ctx, f.insertStmt(), params(3), true)
			return err
		})
	require.NoError(t, err)
	assert.Equal(t, int64(3), f.count(t))
}

func TestTransport_RollbackDiscardsWrites(t *testing.T) {
	f := newFixture(t)
	errAbort := errors.New("abort")

	err := f.executor.DoTx(context.Background(), retry.DefaultPolicy(), tablekit.SerializableReadWrite, false,
		func(ctx context.Context, tx *session.Transaction) error {
			_, err := tx.Execute(ctx, f.insertStmt(), tablekit.Params{
				"city":    tablekit.StringValue("Dublin"),
				"number":  tablekit.Int32Value(1),
				"address": tablekit.StringValue("Liffey street"),
			}, false)
			if err != nil {
				return err
			}
			return errAbort
		})
	require.ErrorIs(t, err, errAbort)
	assert.Equal(t, int64(0), f.count(t))
	assert.Equal(t, 0, f.pool.Stats().Leased)
}

func TestTransport_ServerErrorsAreClassified(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.exec(ctx, tablekit.NewStatement("SELEC 1"), nil)
	assert.ErrorIs(t, err, tablekit.ErrBadRequest)

	err = f.exec(ctx, tablekit.NewStatement("SELECT * FROM no_such_table_here"), nil)
	var statusErr *tablekit.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, tablekit.StatusSchemeError, statusErr.Code)

	f.insert(t, "Essen", 1)
	err = f.exec(ctx, f.insertStmt(), tablekit.Params{
		"city":    tablekit.StringValue("Essen"),
		"number":  tablekit.Int32Value(1),
		"address": tablekit.StringValue("duplicate"),
	})
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, tablekit.StatusPreconditionFailed, statusErr.Code)
}

func TestTransport_ReadOnlyModeRejectsWrites(t *testing.T) {
	f := newFixture(t)

	err := f.executor.Do(context.Background(), retry.DefaultPolicy(), false, func(ctx context.Context, s *session.Session) error {
		_, err := s.Execute(ctx, f.insertStmt(), tablekit.Params{
			"city":    tablekit.StringValue("Faro"),
			"number":  tablekit.Int32Value(1),
			"address": tablekit.StringValue("x"),
		}, tablekit.AutoCommit(tablekit.StaleReadOnly))
		return err
	})
	// 25006 read_only_sql_transaction
	assert.ErrorIs(t, err, tablekit.ErrBadRequest)
}

func TestTransport_DeleteSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	before := f.transport.Sessions()
	id, err := f.transport.CreateSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, before+1, f.transport.Sessions())

	_, err = f.transport.BeginTransaction(ctx, id, tablekit.SerializableReadWrite)
	require.NoError(t, err)
	require.NoError(t, f.transport.DeleteSession(ctx, id))
	assert.Equal(t, before, f.transport.Sessions())

	_, err = f.transport.Execute(ctx, id, tablekit.NewStatement("SELECT 1"), nil, tablekit.AutoCommit(tablekit.OnlineReadOnly))
	var statusErr *tablekit.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, tablekit.StatusBadSession, statusErr.Code)
}

func TestTransport_PlaceholderBindingMismatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.insert(t, "Graz", 1)
	selectCity := tablekit.NewStatement("SELECT number FROM " + f.table + " WHERE city = @city")

	// A misspelled name would otherwise bind @city to NULL and match nothing.
	err := f.exec(ctx, selectCity, tablekit.Params{"cty": tablekit.StringValue("Graz")})
	require.ErrorIs(t, err, tablekit.ErrBadParameters)
	assert.Contains(t, err.Error(), "@city")

	err = f.exec(ctx, selectCity, tablekit.Params{
		"city":  tablekit.StringValue("Graz"),
		"limit": tablekit.Int64Value(10),
	})
	require.ErrorIs(t, err, tablekit.ErrBadParameters)
	assert.Contains(t, err.Error(), `"limit"`)

	undeclared := tablekit.NewStatement(f.insertStmt().Text)
	err = f.executor.DoTx(ctx, retry.DefaultPolicy(), tablekit.SerializableReadWrite, false,
		func(ctx context.Context, tx *session.Transaction) error {
			_, err := tx.Execute(ctx, undeclared, tablekit.Params{
				"city":   tablekit.StringValue("Graz"),
				"number": tablekit.Int32Value(2),
			}, false)
			if !errors.Is(err, tablekit.ErrBadParameters) {
				return fmt.Errorf("missing @address binding: got %v", err)
			}
			if tx.State() != session.TxActive {
				return fmt.Errorf("transaction is %s after rejected parameters", tx.State())
			}
			_, err = tx.Execute(ctx, undeclared, tablekit.Params{
				"city":    tablekit.StringValue("Graz"),
				"number":  tablekit.Int32Value(2),
				"address": tablekit.StringValue("Herrengasse 16"),
			}, true)
			return err
		})
	require.NoError(t, err)
	assert.Equal(t, int64(2), f.count(t))
}
