package harness

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
)

const (
	// GoldenSuffix is the extension of golden snapshot files.
	GoldenSuffix = ".golden"
	// GoldenFixtureDir holds the golden files of package tests.
	GoldenFixtureDir = "testdata/golden"
)

// ErrNoGolden is returned by GoldenDir.Compare when no golden file exists.
var ErrNoGolden = errors.New("no golden file")

// Snapshot renders a result as the text stored in golden files: the SQL of
// every dialect, the resolved columns, the rule of every nested group and,
// when executed, the returned rows.
func Snapshot(name string, result *Result) ([]byte, error) {
	var buf strings.Builder
	fmt.Fprintf(&buf, "scenario: %s\n", name)

	if result.BuildError != "" {
		fmt.Fprintf(&buf, "\n-- build error\n%s\n", result.BuildError)
		return []byte(buf.String()), nil
	}

	for _, rs := range result.Rendered {
		fmt.Fprintf(&buf, "\n-- %s\n", rs.Dialect)
		if rs.Error != "" {
			fmt.Fprintf(&buf, "error: %s\n", rs.Error)
			continue
		}
		fmt.Fprintf(&buf, "%s\n", rs.SQL)
		if len(rs.Params) > 0 {
			params, err := canonical(rs.Params)
			if err != nil {
				return nil, err
			}
			fmt.Fprintf(&buf, "params: %s\n", params)
		}
	}

	if len(result.Columns) > 0 {
		buf.WriteString("\n-- columns\n")
		for _, c := range result.Columns {
			fmt.Fprintf(&buf, "%s: %s %s", c.Name(), c.Type, c.Optional)
			if c.Aggregated {
				buf.WriteString(" aggregated")
			}
			buf.WriteString("\n")
		}
	}

	var rules []string
	for _, g := range result.Groups {
		if g.Path != "" {
			rules = append(rules, fmt.Sprintf("%s: %s\n", g.Path, g.Name))
		}
	}
	if len(rules) > 0 {
		buf.WriteString("\n-- rules\n")
		buf.WriteString(strings.Join(rules, ""))
	}

	if result.Executed {
		if len(result.Columns) == 0 {
			fmt.Fprintf(&buf, "\n-- rows affected\n%d\n", result.RowsAffected)
		} else {
			buf.WriteString("\n-- rows\n")
			for _, row := range result.Rows {
				data, err := canonical(row)
				if err != nil {
					return nil, err
				}
				fmt.Fprintf(&buf, "%s\n", data)
			}
		}
	}

	return []byte(buf.String()), nil
}

// RunWithGolden executes a scenario and compares its snapshot against a
// golden file stored in testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns the result so callers can also check Pass.
// Test failure (via goldie) occurs if the snapshot doesn't match.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an already computed result against a golden file.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	snapshot, err := Snapshot(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir(GoldenFixtureDir),
		goldie.WithNameSuffix(GoldenSuffix),
		goldie.WithDiffEngine(goldie.ClassicDiff),
	)
	g.Assert(t, scenarioName, snapshot)

	return nil
}

// GoldenDir is a directory of golden snapshots outside of go test, laid
// out the way goldie lays out fixtures: one <name>.golden file per snapshot.
type GoldenDir string

// Path returns the golden file of name.
func (d GoldenDir) Path(name string) string {
	return filepath.Join(string(d), name+GoldenSuffix)
}

// Compare checks snapshot against the golden file of name. It returns ""
// when they are equal, a unified diff otherwise, and ErrNoGolden when the
// file does not exist.
func (d GoldenDir) Compare(name string, snapshot []byte) (string, error) {
	want, err := os.ReadFile(d.Path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return "", ErrNoGolden
	}
	if err != nil {
		return "", fmt.Errorf("reading golden file: %w", err)
	}
	if bytes.Equal(want, snapshot) {
		return "", nil
	}
	return goldie.Diff(goldie.ClassicDiff, string(snapshot), string(want)), nil
}

// Update writes snapshot as the golden file of name.
func (d GoldenDir) Update(name string, snapshot []byte) error {
	if err := os.MkdirAll(string(d), 0755); err != nil {
		return fmt.Errorf("creating golden directory: %w", err)
	}
	if err := os.WriteFile(d.Path(name), snapshot, 0644); err != nil {
		return fmt.Errorf("writing golden file: %w", err)
	}
	return nil
}
