package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/roach88/tsq/internal/harness"
	"github.com/roach88/tsq/internal/ir"
	"github.com/roach88/tsq/internal/nullability"
	"github.com/roach88/tsq/internal/query"
	"github.com/roach88/tsq/internal/sqlbuild"
)

// Process exit statuses.
const (
	ExitSuccess      = 0
	ExitFailure      = 1 // a scenario, statement or schema check failed
	ExitCommandError = 2 // the command could not run at all
)

// ExitError carries the exit status a failed command should end the
// process with.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode returns the exit status carried by err, or ExitFailure.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// statementErrorCode returns the build error code of err (Q001..Q008), or
// ErrCodeStatement when the statement failed for another reason.
func statementErrorCode(err error) string {
	if code := query.Code(err); code != "" {
		return code
	}
	return ErrCodeStatement
}

// CLIResponse is the envelope written by every command in json format.
// Scenario and StatementID identify the statement a response is about.
type CLIResponse struct {
	Status      string     `json:"status"` // "ok" or "error"
	Scenario    string     `json:"scenario,omitempty"`
	StatementID string     `json:"statement_id,omitempty"`
	Data        any        `json:"data,omitempty"`
	Error       *CLIError  `json:"error,omitempty"`
	Errors      []CLIError `json:"errors,omitempty"`
	TraceID     string     `json:"trace_id,omitempty"`
}

// CLIError is one reported failure. Code is a command (E...) or statement
// build (Q...) error code.
type CLIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// RenderResult is the payload of the render command.
type RenderResult struct {
	Scenario string                  `json:"scenario"`
	Rendered []harness.RenderedSQL   `json:"rendered"`
	Columns  []sqlbuild.ResultColumn `json:"columns"`
}

// ExplainResult is the payload of the explain command.
type ExplainResult struct {
	Scenario string                    `json:"scenario"`
	Groups   []nullability.GroupReport `json:"groups"`
}

// RunResult is the payload of the run command.
type RunResult struct {
	Scenario     string        `json:"scenario"`
	StatementID  string        `json:"statement_id"`
	Rows         []ir.IRObject `json:"rows,omitempty"`
	RowsAffected int64         `json:"rows_affected"`
}

// OutputFormatter writes command results as text or as a json CLIResponse.
type OutputFormatter struct {
	Format string
	Writer io.Writer
	// ErrWriter receives verbose diagnostics; nil means Writer.
	ErrWriter io.Writer
	Verbose   bool
	// TraceID is copied into every json response so it can be matched with
	// the log lines of the same invocation.
	TraceID string
}

// NewTraceID returns a UUIDv7 trace id.
func NewTraceID() string {
	return uuid.Must(uuid.NewV7()).String()
}

func (f *OutputFormatter) isJSON() bool { return f.Format == "json" }

func (f *OutputFormatter) respond(resp CLIResponse, indent bool) error {
	resp.TraceID = f.TraceID
	enc := json.NewEncoder(f.Writer)
	if indent {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(resp)
}

// Success writes data as an ok response, or prints it in text format.
func (f *OutputFormatter) Success(data any) error {
	if f.isJSON() {
		return f.respond(CLIResponse{Status: "ok", Data: data}, false)
	}
	_, err := fmt.Fprintln(f.Writer, data)
	return err
}

// Error writes a single failure. Details are printed in text format only
// when verbose.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.isJSON() {
		return f.respond(CLIResponse{
			Status: "error",
			Error:  &CLIError{Code: code, Message: message, Details: details},
		}, false)
	}
	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// Failures writes an error response listing every failure, the first one
// also being the response's Error. It is a no-op in text format, where
// each command prints its own listing.
func (f *OutputFormatter) Failures(errs []CLIError, data any) error {
	if !f.isJSON() || len(errs) == 0 {
		return nil
	}
	return f.respond(CLIResponse{Status: "error", Error: &errs[0], Errors: errs, Data: data}, true)
}

// Rendered writes the SQL and parameters of every dialect a scenario's
// statement was compiled for. It returns how many dialects failed.
func (f *OutputFormatter) Rendered(scenario string, result *harness.Result) (int, error) {
	failed := 0
	for _, rs := range result.Rendered {
		if rs.Error != "" {
			failed++
		}
	}
	if f.isJSON() {
		return failed, f.respond(CLIResponse{
			Status:   "ok",
			Scenario: scenario,
			Data:     RenderResult{Scenario: scenario, Rendered: result.Rendered, Columns: result.Columns},
		}, false)
	}

	w := f.Writer
	for i, rs := range result.Rendered {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "-- %s\n", rs.Dialect)
		if rs.Error != "" {
			fmt.Fprintf(w, "error: %s\n", rs.Error)
			continue
		}
		fmt.Fprintln(w, rs.SQL)
		if len(rs.Params) == 0 {
			continue
		}
		params, err := ir.MarshalCanonical(rs.Params)
		if err != nil {
			return failed, WrapExitError(ExitFailure, "formatting parameters", err)
		}
		fmt.Fprintf(w, "params: %s\n", params)
	}
	return failed, nil
}

// Explained writes the rule chosen for every projection group and the
// tags of its leaves before and after the rule.
func (f *OutputFormatter) Explained(scenario string, groups []nullability.GroupReport) error {
	if f.isJSON() {
		return f.respond(CLIResponse{
			Status:   "ok",
			Scenario: scenario,
			Data:     ExplainResult{Scenario: scenario, Groups: groups},
		}, false)
	}

	w := f.Writer
	for i, g := range groups {
		if i > 0 {
			fmt.Fprintln(w)
		}
		path := g.Path
		if path == "" {
			path = "(top)"
		}
		fmt.Fprintf(w, "%s: %s\n", path, g.Name)
		for _, leaf := range g.Leaves {
			if leaf.Before == leaf.After {
				fmt.Fprintf(w, "  %s: %s\n", leaf.Path, leaf.After)
			} else {
				fmt.Fprintf(w, "  %s: %s -> %s\n", leaf.Path, leaf.Before, leaf.After)
			}
		}
	}
	return nil
}

// Rows writes the outcome of an executed statement: one canonical json
// line per row when it projects columns, the affected row count otherwise.
func (f *OutputFormatter) Rows(res RunResult, projects bool) error {
	if f.isJSON() {
		return f.respond(CLIResponse{
			Status:      "ok",
			Scenario:    res.Scenario,
			StatementID: res.StatementID,
			Data:        res,
		}, false)
	}

	w := f.Writer
	if !projects {
		fmt.Fprintf(w, "%d row(s) affected\n", res.RowsAffected)
		return nil
	}
	for _, row := range res.Rows {
		data, err := ir.MarshalCanonical(row)
		if err != nil {
			return WrapExitError(ExitFailure, "formatting row", err)
		}
		fmt.Fprintln(w, string(data))
	}
	fmt.Fprintf(w, "(%d row(s))\n", len(res.Rows))
	return nil
}

// VerboseLog prints a diagnostic line when verbose, to ErrWriter so json
// output stays parseable.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if f.Verbose {
		fmt.Fprintf(f.diagnostics(), format+"\n", args...)
	}
}

func (f *OutputFormatter) diagnostics() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}
