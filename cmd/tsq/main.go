// Command tsq builds SQL statements over relations declared in CUE and
// reports which result fields may be absent.
//
// Usage:
//
//	tsq [--config tsq.yaml] [--format text|json] [-v] <command>
//
// Commands:
//   - validate: check relation declarations
//   - compile: write relation declarations as IR
//   - render: print a scenario's statement per dialect
//   - explain: print the optionality rule of every projected group
//   - run: execute a scenario's statement against the configured database
//   - test: run scenario files and compare golden snapshots
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/roach88/tsq/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		var exitErr *cli.ExitError
		if !errors.As(err, &exitErr) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(cli.GetExitCode(err))
	}
}
