package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/tsq/internal/harness"
)

// ErrCodeTestFailed is reported when at least one scenario fails.
const ErrCodeTestFailed = "E_TEST_FAILED"

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Update bool   // rewrite golden files from the current snapshots
	Filter string // glob on scenario file names, without extension
}

// ScenarioResult is the verdict on one scenario file.
type ScenarioResult struct {
	Name   string   `json:"name"`
	Pass   bool     `json:"pass"`
	Errors []string `json:"errors,omitempty"`
	// GoldenUpdated is set when --update rewrote the scenario's golden file.
	GoldenUpdated bool `json:"golden_updated,omitempty"`
}

// TestResult is the payload of the test command.
type TestResult struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

func (r *TestResult) add(s ScenarioResult) {
	r.Scenarios = append(r.Scenarios, s)
	if s.Pass {
		r.Passed++
	} else {
		r.Failed++
	}
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenarios-dir>",
		Short: "Run the scenario conformance suite",
		Long: `Run every YAML scenario under scenarios-dir as a conformance case.

Each scenario's statement is built against the schemas it names, rendered
for every dialect, explained and, when it has setup or expected rows,
executed on an in-memory SQLite database. Expectations are checked and,
when scenarios-dir/golden/<scenario>.golden exists, the snapshot is
compared with it.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, etc.)

Examples:
  tsq test ./scenarios
  tsq test ./scenarios --filter "customer_*"
  tsq test ./scenarios --update
  tsq test ./scenarios --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern")

	return cmd
}

func runTests(opts *TestOptions, scenariosDir string, cmd *cobra.Command) error {
	if _, err := os.Stat(scenariosDir); errors.Is(err, fs.ErrNotExist) {
		return NewExitError(ExitCommandError, "scenarios directory not found: "+scenariosDir)
	}
	files, err := findScenarioFiles(scenariosDir, opts.Filter)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to find scenarios", err)
	}

	formatter := opts.formatter(cmd)
	if len(files) == 0 && !formatter.isJSON() {
		fmt.Fprintln(formatter.Writer, "No scenarios found.")
		return nil
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	h := harness.New(harness.WithLogger(slog.Default()))

	result := TestResult{Scenarios: make([]ScenarioResult, 0, len(files)), Total: len(files)}
	for _, file := range files {
		verdict := runScenario(ctx, h, file, opts.Update)
		if !formatter.isJSON() {
			printVerdict(formatter.Writer, verdict)
		}
		result.add(verdict)
	}

	var failure error
	if result.Failed > 0 {
		failure = NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
	}

	if formatter.isJSON() {
		resp := CLIResponse{Status: "ok", Data: result}
		if failure != nil {
			resp.Status = "error"
			resp.Error = &CLIError{Code: ErrCodeTestFailed, Message: failure.Error()}
		}
		if err := formatter.respond(resp, true); err != nil {
			return err
		}
		return failure
	}

	w := formatter.Writer
	fmt.Fprintf(w, "\nTest Summary: %d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)
	if failure == nil {
		fmt.Fprintln(w, "✓ All scenarios passed")
	}
	return failure
}

// findScenarioFiles returns the .yaml and .yml files below dir whose name
// without extension matches filter.
func findScenarioFiles(dir, filter string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		ext := filepath.Ext(path)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}
		if filter != "" {
			matched, err := filepath.Match(filter, strings.TrimSuffix(d.Name(), ext))
			if err != nil {
				return fmt.Errorf("invalid filter pattern: %w", err)
			}
			if !matched {
				return nil
			}
		}
		files = append(files, path)
		return nil
	})
	return files, err
}

// runScenario runs one scenario file and checks its snapshot against the
// golden file next to it, or rewrites that file when update is set.
func runScenario(ctx context.Context, h *harness.Harness, file string, update bool) ScenarioResult {
	verdict := ScenarioResult{Name: filepath.Base(file)}
	fail := func(format string, args ...any) ScenarioResult {
		verdict.Errors = append(verdict.Errors, fmt.Sprintf(format, args...))
		return verdict
	}

	scenario, err := harness.LoadScenario(file)
	if err != nil {
		return fail("load error: %v", err)
	}
	verdict.Name = scenario.Name

	result, err := h.Run(ctx, scenario)
	if err != nil {
		return fail("execution error: %v", err)
	}
	snapshot, err := harness.Snapshot(scenario.Name, result)
	if err != nil {
		return fail("snapshot error: %v", err)
	}

	dir, name := goldenFor(file)
	if update {
		if err := dir.Update(name, snapshot); err != nil {
			return fail("golden update error: %v", err)
		}
		verdict.GoldenUpdated = true
		verdict.Pass = true
		return verdict
	}

	switch diff, err := dir.Compare(name, snapshot); {
	case errors.Is(err, harness.ErrNoGolden):
		// Expectations alone decide.
	case err != nil:
		return fail("golden comparison error: %v", err)
	case diff != "":
		verdict.Errors = append(verdict.Errors, "Golden file mismatch (run with --update to regenerate)\n"+diff)
	}

	verdict.Errors = append(verdict.Errors, result.Errors...)
	verdict.Pass = len(verdict.Errors) == 0
	return verdict
}

func printVerdict(w io.Writer, v ScenarioResult) {
	switch {
	case v.GoldenUpdated:
		fmt.Fprintf(w, "✓ %s (golden updated)\n", v.Name)
	case v.Pass:
		fmt.Fprintf(w, "✓ %s\n", v.Name)
	default:
		fmt.Fprintf(w, "✗ %s\n", v.Name)
		for _, e := range v.Errors {
			fmt.Fprintf(w, "  %s\n", strings.ReplaceAll(strings.TrimRight(e, "\n"), "\n", "\n  "))
		}
	}
}

// goldenFor returns the golden directory of a scenario file and the name
// of its snapshot: scenarios/x.yaml is compared with scenarios/golden/x.golden.
func goldenFor(file string) (harness.GoldenDir, string) {
	base := filepath.Base(file)
	return harness.GoldenDir(filepath.Join(filepath.Dir(file), "golden")), strings.TrimSuffix(base, filepath.Ext(base))
}

func goldenFilePath(file string) string {
	dir, name := goldenFor(file)
	return dir.Path(name)
}
