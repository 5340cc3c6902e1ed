package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/tsq/internal/harness"
	"github.com/roach88/tsq/internal/runner"
	"github.com/roach88/tsq/internal/sqlbuild"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Driver string
	DSN    string
	Setup  bool // execute the scenario's setup script first

	// IDGenerator allows overriding the statement id generator (for testing).
	// If nil, the runner's UUIDv7 ids are used.
	IDGenerator runner.IDGenerator
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run [schemas-dir] <scenario.yaml>",
		Short: "Execute a scenario's statement against a database",
		Long: `Build a scenario's statement and execute it against the configured
database, printing the materialized rows or the number of affected rows.

The database comes from database.driver and database.dsn in the
configuration (TSQ_DATABASE_DRIVER and TSQ_DATABASE_DSN in the
environment), or from --driver and --dsn.

Example:
  tsq run --driver sqlite --dsn ./shop.db ./schemas ./scenarios/customer_company.yaml
  tsq run --dsn ./shop.db --setup ./scenarios/customer_company.yaml --verbose`,
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatement(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Driver, "driver", "", "database driver (sqlite|postgres|mysql); overrides database.driver")
	cmd.Flags().StringVar(&opts.DSN, "dsn", "", "database DSN; overrides database.dsn")
	cmd.Flags().BoolVar(&opts.Setup, "setup", false, "execute the scenario's setup script before the statement")

	return cmd
}

func runStatement(opts *RunOptions, args []string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	dbCfg := opts.config().RunnerConfig()
	if opts.Driver != "" {
		dbCfg.Driver = opts.Driver
	}
	if opts.DSN != "" {
		dbCfg.DSN = opts.DSN
	}
	if dbCfg.DSN == "" {
		_ = formatter.Error(ErrCodeConfig, "no database configured: set database.dsn or pass --dsn", nil)
		return NewExitError(ExitCommandError, ErrCodeConfig+": no database configured")
	}
	d, err := sqlbuild.LookupDialect(dbCfg.Driver)
	if err != nil {
		_ = formatter.Error(ErrCodeConfig, err.Error(), nil)
		return WrapExitError(ExitCommandError, ErrCodeConfig+": invalid driver", err)
	}

	// Render for the target dialect only, so unsupported features are
	// reported before connecting.
	renderOpts := &RenderOptions{RootOptions: opts.RootOptions, Dialects: []string{d.Name()}}
	compiled, err := compileScenario(renderOpts, args, formatter)
	if err != nil {
		return err
	}
	if rs, ok := compiled.result.RenderedFor(d.Name()); ok && rs.Error != "" {
		_ = formatter.Error(ErrCodeStatement, rs.Error, nil)
		return NewExitError(ExitFailure, ErrCodeStatement+": "+rs.Error)
	}
	stmt, err := harness.Statement(compiled.registry, &compiled.scenario.Query)
	if err != nil {
		return WrapExitError(ExitFailure, ErrCodeStatement+": statement construction failed", err)
	}

	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	runnerOpts := []runner.Option{runner.WithLogger(slog.Default())}
	if opts.IDGenerator != nil {
		runnerOpts = append(runnerOpts, runner.WithIDGenerator(opts.IDGenerator))
	}

	slog.Info("opening database", "driver", d.Name())
	r, err := runner.Open(ctx, dbCfg, compiled.registry, runnerOpts...)
	if err != nil {
		_ = formatter.Error(ErrCodeDatabase, err.Error(), nil)
		return WrapExitError(ExitCommandError, ErrCodeDatabase+": failed to open database", err)
	}
	defer func() {
		if closeErr := r.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()

	if opts.Setup && compiled.scenario.Setup != "" {
		formatter.VerboseLog("Executing setup of %s", compiled.scenario.Name)
		if err := r.ExecScript(ctx, compiled.scenario.Setup); err != nil {
			_ = formatter.Error(ErrCodeDatabase, err.Error(), nil)
			return WrapExitError(ExitFailure, ErrCodeDatabase+": setup failed", err)
		}
	}

	res, err := r.Run(ctx, stmt)
	if err != nil {
		_ = formatter.Error(ErrCodeDatabase, err.Error(), nil)
		return WrapExitError(ExitFailure, ErrCodeDatabase+": execution failed", err)
	}
	slog.Debug("statement executed", "statement_id", res.StatementID, "rows", len(res.Rows), "rows_affected", res.RowsAffected)

	return formatter.Rows(RunResult{
		Scenario:     compiled.scenario.Name,
		StatementID:  res.StatementID,
		Rows:         res.Rows,
		RowsAffected: res.RowsAffected,
	}, len(compiled.result.Columns) > 0)
}
