package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/tsq/internal/harness"
	"github.com/roach88/tsq/internal/schema"
	"github.com/roach88/tsq/internal/sqlbuild"
)

// RenderOptions holds flags for the render and explain commands.
type RenderOptions struct {
	*RootOptions
	Dialects []string
}

// NewRenderCommand creates the render command.
func NewRenderCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RenderOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "render [schemas-dir] <scenario.yaml>",
		Short: "Render a scenario's statement as SQL",
		Long: `Build the statement described by a scenario's query against the
declared relations and print its SQL and bound parameters per dialect.

Relative schema paths in the scenario resolve against the schemas directory,
which defaults to schemas_dir from the configuration. Dialects default to
the configured dialect, or all of them.

Examples:
  tsq render ./schemas ./scenarios/customer_company.yaml
  tsq render ./scenarios/customer_company.yaml --dialect postgres
  tsq render ./schemas ./scenarios/customer_company.yaml --format json`,
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRender(opts, args, cmd)
		},
	}

	cmd.Flags().StringSliceVar(&opts.Dialects, "dialect", nil, "dialects to render (sqlite|postgres|mysql)")

	return cmd
}

// compiledScenario is a scenario's statement built against the relations
// of a schemas directory.
type compiledScenario struct {
	scenario *harness.Scenario
	registry *schema.Registry
	result   *harness.Result
}

// compileScenario loads the schemas and the scenario named by args and
// renders the scenario's query. Errors are reported through formatter.
func compileScenario(opts *RenderOptions, args []string, formatter *OutputFormatter) (*compiledScenario, error) {
	cfg := opts.config()
	schemasArg, scenarioPath := "", args[0]
	if len(args) == 2 {
		schemasArg, scenarioPath = args[0], args[1]
	}
	schemasDir := cfg.ResolvedSchemasDir(schemasArg)

	loadResult, loadErrors := LoadSchemas(schemasDir, LoadModeFailFast, slog.Default())
	if len(loadErrors) > 0 {
		code, message := parseLoadError(loadErrors[0])
		_ = formatter.Error(code, message, nil)
		return nil, NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
	}
	formatter.VerboseLog("Declared %d relation(s) from %s", len(loadResult.Specs), schemasDir)

	scenario, err := harness.LoadScenarioWithBasePath(scenarioPath, schemasDir)
	if err != nil {
		_ = formatter.Error(ErrCodeLoadFailed, err.Error(), nil)
		return nil, WrapExitError(ExitCommandError, ErrCodeLoadFailed+": failed to load scenario", err)
	}

	dialects := opts.Dialects
	if len(dialects) == 0 {
		dialects = cfg.Dialects()
	}
	for _, name := range dialects {
		if _, err := sqlbuild.LookupDialect(name); err != nil {
			_ = formatter.Error(ErrCodeConfig, err.Error(), nil)
			return nil, WrapExitError(ExitCommandError, ErrCodeConfig+": invalid dialect", err)
		}
	}

	h := harness.New(harness.WithLogger(slog.Default()))
	result, err := h.Compile(loadResult.Registry, scenario.Name, &scenario.Query, dialects)
	if err != nil {
		code := statementErrorCode(err)
		_ = formatter.Error(code, err.Error(), nil)
		return nil, WrapExitError(ExitFailure, code+": statement construction failed", err)
	}

	return &compiledScenario{scenario: scenario, registry: loadResult.Registry, result: result}, nil
}

func runRender(opts *RenderOptions, args []string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	compiled, err := compileScenario(opts, args, formatter)
	if err != nil {
		return err
	}

	failed, err := formatter.Rendered(compiled.scenario.Name, compiled.result)
	if err != nil {
		return err
	}
	if !formatter.isJSON() && failed > 0 && failed == len(compiled.result.Rendered) {
		return NewExitError(ExitFailure, "no dialect could render the statement")
	}
	return nil
}
