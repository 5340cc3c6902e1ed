package cli

import (
	"github.com/spf13/cobra"
)

// NewExplainCommand creates the explain command.
func NewExplainCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RenderOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "explain [schemas-dir] <scenario.yaml>",
		Short: "Explain the inferred optionality of a scenario's result",
		Long: `Show, for the top-level projection and every nested group of a
scenario's statement, the rule that decided its leaves' optionality and
each leaf's tag before and after the rule was applied.

Examples:
  tsq explain ./schemas ./scenarios/left_join_parent.yaml
  tsq explain ./scenarios/left_join_parent.yaml --format json`,
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExplain(opts, args, cmd)
		},
	}

	return cmd
}

func runExplain(opts *RenderOptions, args []string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	// Rendering is not needed; restrict it to one dialect.
	opts.Dialects = []string{"sqlite"}
	compiled, err := compileScenario(opts, args, formatter)
	if err != nil {
		return err
	}
	return formatter.Explained(compiled.scenario.Name, compiled.result.Groups)
}
