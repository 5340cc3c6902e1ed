package harness

import (
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/tsq/internal/ir"
	"github.com/roach88/tsq/internal/query"
)

// Expectation kinds, used to categorize failures.
const (
	ExpectSQL          = "sql"
	ExpectParams       = "params"
	ExpectOptional     = "optional"
	ExpectRule         = "rule"
	ExpectRows         = "rows"
	ExpectRowsAffected = "rows_affected"
	ExpectError        = "error"
)

// AssertionError is returned when an expectation fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string // Expectation kind for categorization
	Subject  string // Dialect, path or row the check applies to
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s", e.Type)
	if e.Subject != "" {
		fmt.Fprintf(&buf, " (%s)", e.Subject)
	}
	fmt.Fprintf(&buf, "\n  Expected: %s\n  Actual: %s", e.Expected, e.Actual)
	return buf.String()
}

// EvaluateExpectations checks result against every set field of expect and
// returns one message per failure. Map-keyed expectations are checked in
// key order so messages are deterministic.
func EvaluateExpectations(result *Result, expect *Expect) []string {
	var failures []error

	failures = append(failures, assertSQL(result, expect.SQL)...)
	if expect.Params != nil {
		failures = append(failures, assertParams(result, expect.Params)...)
	}
	failures = append(failures, assertOptional(result, expect.Optional)...)
	failures = append(failures, assertRules(result, expect.Rules)...)
	if expect.Rows != nil {
		if err := assertRows(result, expect.Rows); err != nil {
			failures = append(failures, err)
		}
	}
	if expect.RowsAffected != nil && result.RowsAffected != *expect.RowsAffected {
		failures = append(failures, &AssertionError{
			Type:     ExpectRowsAffected,
			Expected: fmt.Sprint(*expect.RowsAffected),
			Actual:   fmt.Sprint(result.RowsAffected),
		})
	}

	msgs := make([]string, 0, len(failures))
	for _, err := range failures {
		msgs = append(msgs, err.Error())
	}
	return msgs
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func assertSQL(result *Result, want map[string]string) []error {
	var errs []error
	for _, dialect := range sortedKeys(want) {
		rs, ok := result.RenderedFor(dialect)
		actual := ""
		switch {
		case !ok:
			actual = "not rendered"
		case rs.Error != "":
			actual = "error: " + rs.Error
		case rs.SQL == want[dialect]:
			continue
		default:
			actual = rs.SQL
		}
		errs = append(errs, &AssertionError{
			Type:     ExpectSQL,
			Subject:  dialect,
			Expected: want[dialect],
			Actual:   actual,
		})
	}
	return errs
}

// assertParams compares the bound parameters of every successful rendering.
func assertParams(result *Result, want []any) []error {
	wantJSON, err := canonical(want)
	if err != nil {
		return []error{fmt.Errorf("expect.params: %w", err)}
	}
	var errs []error
	for _, rs := range result.Rendered {
		if rs.Error != "" {
			continue
		}
		gotJSON, err := canonical(rs.Params)
		if err != nil {
			errs = append(errs, fmt.Errorf("params (%s): %w", rs.Dialect, err))
			continue
		}
		if gotJSON != wantJSON {
			errs = append(errs, &AssertionError{
				Type:     ExpectParams,
				Subject:  rs.Dialect,
				Expected: wantJSON,
				Actual:   gotJSON,
			})
		}
	}
	return errs
}

func assertOptional(result *Result, want map[string]string) []error {
	tags := make(map[string]ir.OptionalTag, len(result.Columns))
	for _, c := range result.Columns {
		tags[c.Name()] = c.Optional
	}

	var errs []error
	for _, path := range sortedKeys(want) {
		tag, ok := tags[path]
		actual := tag.String()
		if !ok {
			actual = "no such column"
		}
		if ok && actual == want[path] {
			continue
		}
		errs = append(errs, &AssertionError{
			Type:     ExpectOptional,
			Subject:  path,
			Expected: want[path],
			Actual:   actual,
		})
	}
	return errs
}

func assertRules(result *Result, want map[string]int) []error {
	var errs []error
	for _, path := range sortedKeys(want) {
		actual := "no such group"
		for _, g := range result.Groups {
			if g.Path == path && path != "" {
				actual = g.Name
				if int(g.Rule) == want[path] {
					actual = ""
				}
				break
			}
		}
		if actual == "" {
			continue
		}
		errs = append(errs, &AssertionError{
			Type:     ExpectRule,
			Subject:  path,
			Expected: fmt.Sprintf("rule %d", want[path]),
			Actual:   actual,
		})
	}
	return errs
}

func assertRows(result *Result, want []map[string]any) error {
	if !result.Executed {
		return &AssertionError{Type: ExpectRows, Expected: fmt.Sprintf("%d rows", len(want)), Actual: "statement was not executed"}
	}
	if len(result.Rows) != len(want) {
		return &AssertionError{
			Type:     ExpectRows,
			Expected: fmt.Sprintf("%d rows", len(want)),
			Actual:   fmt.Sprintf("%d rows", len(result.Rows)),
		}
	}
	for i, row := range want {
		if path, ok := findNull(row, ""); ok {
			return fmt.Errorf("expect.rows[%d].%s: null values are not compared; omit the property", i, path)
		}
		wantJSON, err := canonical(row)
		if err != nil {
			return fmt.Errorf("expect.rows[%d]: %w", i, err)
		}
		gotJSON, err := canonical(result.Rows[i])
		if err != nil {
			return fmt.Errorf("rows[%d]: %w", i, err)
		}
		if wantJSON != gotJSON {
			return &AssertionError{
				Type:     ExpectRows,
				Subject:  fmt.Sprintf("row %d", i),
				Expected: wantJSON,
				Actual:   gotJSON,
			}
		}
	}
	return nil
}

func findNull(obj map[string]any, prefix string) (string, bool) {
	for _, k := range sortedKeys(obj) {
		switch v := obj[k].(type) {
		case nil:
			return prefix + k, true
		case map[string]any:
			if p, ok := findNull(v, prefix+k+"."); ok {
				return p, true
			}
		}
	}
	return "", false
}

// checkBuildError compares a statement construction error with the
// expected error code. An empty code means no error was expected.
func checkBuildError(err error, want string) []string {
	got := query.Code(err)
	if want == "" {
		return []string{fmt.Sprintf("statement construction failed: %v", err)}
	}
	if got != want {
		actual := got
		if actual == "" {
			actual = err.Error()
		}
		return []string{(&AssertionError{Type: ExpectError, Expected: want, Actual: actual}).Error()}
	}
	return nil
}

// canonical renders v as canonical JSON for order-insensitive comparison
// of objects. Plain YAML numbers, strings and booleans compare equal to the
// IR values the runner produces.
func canonical(v any) (string, error) {
	var irv ir.IRValue
	switch val := v.(type) {
	case ir.IRValue:
		irv = val
	case []any:
		arr := make(ir.IRArray, len(val))
		for i, elem := range val {
			e, err := ir.FromGo(elem)
			if err != nil {
				return "", err
			}
			arr[i] = e
		}
		irv = arr
	default:
		var err error
		if irv, err = ir.FromGo(v); err != nil {
			return "", err
		}
	}
	data, err := ir.MarshalCanonical(irv)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
