package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/vvka-141/tablekit/internal/db"
	"github.com/vvka-141/tablekit/internal/params"
	"github.com/vvka-141/tablekit/internal/session"
	"github.com/vvka-141/tablekit/pkg/tablekit"
)

var execCmd = &cobra.Command{
	Use:   "exec <statement>",
	Short: "Execute one statement through the session pool with retries",
	Long: `Exec runs a single statement on a pooled session. Transient failures
(aborted transactions, overload, lost sessions) are retried with backoff.

Parameters are referenced as @name in the statement and typed as
name:type=value. Every @name needs a parameter and every --param needs an
@name. A mismatch fails with exit code 12 before anything runs. Supported types: string (default), int32, int64, uint32,
uint64, float, double, bool. Parameter sources, later ones winning:
  1. 'params' in tablekit.yaml
  2. --params-file (.env format, keys written as name.type)
  3. --param flags
Values from tablekit.yaml and parameter files are defaults and are used only
when the statement references them.

By default the statement runs in its own auto-commit transaction. With
--explicit-tx it runs inside an interactive transaction that is committed
with the statement, and the whole transaction is retried on conflicts.

Statements are treated as non-idempotent: if the outcome of a write is
unknown after a transport failure, exec stops with exit code 14 instead of
retrying. Pass --idempotent when re-running the statement is safe.

Examples:
  # Read with an online read-only snapshot
  tablekit exec 'SELECT * FROM schools WHERE city = @city' --param city=Moscow --mode online

  # Idempotent upsert inside an explicit transaction
  tablekit exec 'INSERT INTO schools VALUES (@city, @number, @address) ON CONFLICT DO NOTHING' \
    --param city=Berlin --param number:int32=3 --param address='Unter den Linden 6' \
    --explicit-tx --idempotent

  # Parameters from a file
  tablekit exec 'DELETE FROM schools WHERE city = @city' --params-file prod.env`,
	Args: RequireStatement,
	RunE: runExec,
}

var (
	execParams     []string
	execParamFiles []string
	execMode       string
	execExplicitTx bool
	execIdempotent bool
	execTimeout    time.Duration
)

func init() {
	rootCmd.AddCommand(execCmd)

	execCmd.Flags().StringArrayVar(&execParams, "param", nil,
		"Typed parameter as name[:type]=value (repeatable)")
	execCmd.Flags().StringSliceVar(&execParamFiles, "params-file", nil,
		"Load parameters from .env files (keys as name.type; later files win)")
	execCmd.Flags().StringVar(&execMode, "mode", tablekit.SerializableReadWrite.String(),
		"Transaction mode: serializable-rw, online-ro or stale-ro")
	execCmd.Flags().BoolVar(&execExplicitTx, "explicit-tx", false,
		"Run the statement in an interactive transaction committed with it")
	execCmd.Flags().BoolVar(&execIdempotent, "idempotent", false,
		"Allow retries when the outcome of a failed attempt is unknown")
	execCmd.Flags().DurationVar(&execTimeout, "timeout", 0,
		"Maximum time including retries (default: 'timeout' in tablekit.yaml or 5m)")
}

// execRequest is a resolved exec invocation.
type execRequest struct {
	stmt       tablekit.Statement
	params     tablekit.Params
	mode       tablekit.TxMode
	explicitTx bool
	idempotent bool
}

// buildExecParams layers configured parameters, parameter files and flags.
// Configured and file parameters are shared defaults, so only those the
// statement references are kept. Flag parameters are always kept and a
// misspelled one is rejected by the transport.
func buildExecParams(text string, configured map[string]string, files, flags []string, logger tablekit.Logger) (tablekit.Params, error) {
	fromConfig, err := params.Typed(configured)
	if err != nil {
		return nil, fmt.Errorf("tablekit.yaml params: %w", err)
	}

	fromFiles, err := params.LoadFiles(logger, files...)
	if err != nil {
		return nil, err
	}

	fromFlags, err := params.Parse(flags)
	if err != nil {
		return nil, err
	}

	defaults := params.Merge(fromConfig, fromFiles)
	referenced := make(map[string]bool)
	for _, name := range db.Placeholders(text) {
		referenced[name] = true
	}
	for name := range defaults {
		if !referenced[name] {
			logger.Verbose("Skipping parameter %q: not used by the statement", name)
			delete(defaults, name)
		}
	}

	merged := params.Merge(defaults, fromFlags)
	logger.Verbose("Resolved %d parameters (%d from config, %d from files, %d from flags)",
		len(merged), len(fromConfig), len(fromFiles), len(fromFlags))
	return merged, nil
}

func newExecRequest(text, mode string, explicitTx, idempotent bool, p tablekit.Params) (*execRequest, error) {
	txMode, err := tablekit.ParseTxMode(mode)
	if err != nil {
		return nil, fmt.Errorf("--mode: %v: %w", err, tablekit.ErrInvalidConfig)
	}
	stmt := params.Declare(tablekit.NewStatement(text), p)
	if err := stmt.Check(p); err != nil {
		return nil, err
	}
	return &execRequest{
		stmt:       stmt,
		params:     p,
		mode:       txMode,
		explicitTx: explicitTx,
		idempotent: idempotent,
	}, nil
}

// run executes the request and returns the result of the successful attempt.
func (r *execRequest) run(ctx context.Context, a *app) (*tablekit.Result, error) {
	var res *tablekit.Result
	policy := a.settings.policy

	if r.explicitTx {
		err := a.executor.DoTx(ctx, policy, r.mode, r.idempotent, func(ctx context.Context, tx *session.Transaction) error {
			var err error
			res, err = tx.Execute(ctx, r.stmt, r.params, true)
			return err
		})
		return res, err
	}

	err := a.executor.Do(ctx, policy, r.idempotent, func(ctx context.Context, s *session.Session) error {
		var err error
		res, err = s.Execute(ctx, r.stmt, r.params, tablekit.AutoCommit(r.mode))
		return err
	})
	return res, err
}

func runExec(cmd *cobra.Command, args []string) error {
	s, err := buildSettings(cmd, execTimeout)
	if err != nil {
		return err
	}

	var configured map[string]string
	if s.project != nil {
		configured = s.project.Params
	}
	p, err := buildExecParams(args[0], configured, execParamFiles, execParams, s.logger)
	if err != nil {
		return err
	}

	req, err := newExecRequest(args[0], execMode, execExplicitTx, execIdempotent, p)
	if err != nil {
		return err
	}

	ctx, cancel := commandContext(s.timeout)
	defer cancel()

	a, err := openApp(ctx, s)
	if err != nil {
		return err
	}
	defer a.Close()

	start := time.Now()
	res, err := req.run(ctx, a)
	if err != nil {
		return err
	}
	s.logger.Verbose("Statement finished in %v (%s)", time.Since(start).Round(time.Millisecond), req.mode)

	printer := newRowPrinter(os.Stdout)
	for _, set := range res.Sets {
		if err := printer.PrintResultSet(set); err != nil {
			return err
		}
	}
	return nil
}
