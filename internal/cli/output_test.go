package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tsq/internal/harness"
	"github.com/roach88/tsq/internal/ir"
	"github.com/roach88/tsq/internal/nullability"
	"github.com/roach88/tsq/internal/query"
	"github.com/roach88/tsq/internal/sqlbuild"
)

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	data := map[string]string{"result": "success"}
	err := formatter.Success(data)
	require.NoError(t, err)

	var resp CLIResponse
	err = json.Unmarshal(buf.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Status)
	assert.NotNil(t, resp.Data)
}

func TestOutputFormatter_JSONError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	err := formatter.Error("E001", "schema load failed", nil)
	require.NoError(t, err)

	var resp CLIResponse
	err = json.Unmarshal(buf.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "error", resp.Status)
	assert.NotNil(t, resp.Error)
	assert.Equal(t, "E001", resp.Error.Code)
	assert.Equal(t, "schema load failed", resp.Error.Message)
}

func TestOutputFormatter_JSONErrorWithDetails(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	details := map[string]string{"file": "test.cue", "line": "42"}
	err := formatter.Error("E002", "syntax error", details)
	require.NoError(t, err)

	var resp CLIResponse
	err = json.Unmarshal(buf.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "error", resp.Status)
	assert.NotNil(t, resp.Error)
	assert.NotNil(t, resp.Error.Details)
}

func TestOutputFormatter_TextSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "text",
		Writer: buf,
	}

	err := formatter.Success("All schemas valid")
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "All schemas valid")
}

func TestOutputFormatter_TextError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format:  "text",
		Writer:  buf,
		Verbose: false,
	}

	err := formatter.Error("E001", "schema load failed", nil)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Error [E001]")
	assert.Contains(t, buf.String(), "schema load failed")
}

func TestOutputFormatter_TextErrorVerbose(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format:  "text",
		Writer:  buf,
		Verbose: true,
	}

	details := map[string]string{"file": "test.cue"}
	err := formatter.Error("E001", "schema load failed", details)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Error [E001]")
	assert.Contains(t, buf.String(), "Details:")
}

func TestOutputFormatter_VerboseLog(t *testing.T) {
	tests := []struct {
		name    string
		verbose bool
		wantLog bool
	}{
		{"verbose_enabled", true, true},
		{"verbose_disabled", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			formatter := &OutputFormatter{
				Format:  "text",
				Writer:  buf,
				Verbose: tt.verbose,
			}

			formatter.VerboseLog("Processing %s", "test.cue")

			if tt.wantLog {
				assert.Contains(t, buf.String(), "Processing test.cue")
			} else {
				assert.Empty(t, buf.String())
			}
		})
	}
}

func TestOutputFormatter_TraceID(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format:  "json",
		Writer:  buf,
		TraceID: NewTraceID(),
	}

	require.NoError(t, formatter.Success("ok"))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, formatter.TraceID, resp.TraceID)

	id, err := uuid.Parse(resp.TraceID)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), id.Version())
}

func TestOutputFormatter_VerboseLogToErrWriter(t *testing.T) {
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: out, ErrWriter: errOut, Verbose: true}

	formatter.VerboseLog("Found %d CUE file(s)", 2)
	assert.Empty(t, out.String())
	assert.Equal(t, "Found 2 CUE file(s)\n", errOut.String())
	assert.Same(t, errOut, formatter.diagnostics())
}

func TestOutputFormatter_Rendered(t *testing.T) {
	result := &harness.Result{
		Rendered: []harness.RenderedSQL{
			{Dialect: "mysql", Error: "RETURNING is not supported by mysql"},
			{Dialect: "sqlite", SQL: `SELECT "first_name" FROM "customer" WHERE "id" = ?`, Params: []any{int64(7)}},
		},
		Columns: []sqlbuild.ResultColumn{{Path: []string{"firstName"}, Type: ir.TypeString, Optional: ir.Required}},
	}

	buf := &bytes.Buffer{}
	failed, err := (&OutputFormatter{Format: "text", Writer: buf}).Rendered("by_id", result)
	require.NoError(t, err)
	assert.Equal(t, 1, failed)
	assert.Equal(t, "-- mysql\n"+
		"error: RETURNING is not supported by mysql\n"+
		"\n"+
		"-- sqlite\n"+
		`SELECT "first_name" FROM "customer" WHERE "id" = ?`+"\n"+
		"params: [7]\n", buf.String())

	buf.Reset()
	failed, err = (&OutputFormatter{Format: "json", Writer: buf, TraceID: "t-1"}).Rendered("by_id", result)
	require.NoError(t, err)
	assert.Equal(t, 1, failed)

	var resp struct {
		CLIResponse
		Data RenderResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "by_id", resp.Scenario)
	assert.Equal(t, "t-1", resp.TraceID)
	require.Len(t, resp.Data.Rendered, 2)
	assert.Equal(t, "sqlite", resp.Data.Rendered[1].Dialect)
}

func TestOutputFormatter_Explained(t *testing.T) {
	groups := []nullability.GroupReport{
		{Name: "no rule", Leaves: []nullability.LeafReport{{Path: "name", Before: ir.Required, After: ir.Required}}},
		{Path: "parent", Name: "left join", Leaves: []nullability.LeafReport{
			{Path: "parent.name", Before: ir.Required, After: ir.OriginallyRequired},
		}},
	}

	buf := &bytes.Buffer{}
	require.NoError(t, (&OutputFormatter{Format: "text", Writer: buf}).Explained("parents", groups))
	want := fmt.Sprintf("(top): no rule\n  name: %s\n\nparent: left join\n  parent.name: %s -> %s\n",
		ir.Required, ir.Required, ir.OriginallyRequired)
	assert.Equal(t, want, buf.String())
}

func TestOutputFormatter_Rows(t *testing.T) {
	res := RunResult{
		Scenario:     "companies",
		StatementID:  "stmt-9",
		Rows:         []ir.IRObject{{"name": ir.IRString("Acme")}},
		RowsAffected: 0,
	}

	buf := &bytes.Buffer{}
	require.NoError(t, (&OutputFormatter{Format: "text", Writer: buf}).Rows(res, true))
	assert.Equal(t, "{\"name\":\"Acme\"}\n(1 row(s))\n", buf.String())

	buf.Reset()
	require.NoError(t, (&OutputFormatter{Format: "text", Writer: buf}).Rows(RunResult{RowsAffected: 3}, false))
	assert.Equal(t, "3 row(s) affected\n", buf.String())

	buf.Reset()
	require.NoError(t, (&OutputFormatter{Format: "json", Writer: buf}).Rows(res, true))
	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "companies", resp.Scenario)
	assert.Equal(t, "stmt-9", resp.StatementID)
}

func TestOutputFormatter_Failures(t *testing.T) {
	errs := []CLIError{{Code: "E201", Message: "column type is required"}, {Code: "E202", Message: "unknown type"}}

	buf := &bytes.Buffer{}
	require.NoError(t, (&OutputFormatter{Format: "text", Writer: buf}).Failures(errs, nil))
	assert.Empty(t, buf.String())

	require.NoError(t, (&OutputFormatter{Format: "json", Writer: buf}).Failures(errs, nil))
	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E201", resp.Error.Code)
	assert.Equal(t, errs, resp.Errors)
}

func TestStatementErrorCode(t *testing.T) {
	assert.Equal(t, query.ErrCodeEmptyProjection, statementErrorCode(fmt.Errorf("build: %w", &query.BuildError{Code: query.ErrCodeEmptyProjection})))
	assert.Equal(t, ErrCodeStatement, statementErrorCode(errors.New("unsupported subquery statement")))
}

func TestExitError(t *testing.T) {
	err := WrapExitError(ExitCommandError, "failed to open database", errors.New("no such host"))
	assert.Equal(t, "failed to open database: no such host", err.Error())
	assert.Equal(t, ExitCommandError, GetExitCode(fmt.Errorf("run: %w", err)))

	assert.Equal(t, "2 scenario(s) failed", NewExitError(ExitFailure, "2 scenario(s) failed").Error())
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))
}
