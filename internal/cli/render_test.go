package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tsq/internal/query"
)

func TestRenderSingleDialect(t *testing.T) {
	out, err := executeCommand(t, NewRenderCommand(&RootOptions{Format: "text"}),
		testSchemasDir, customerCompanyScenario, "--dialect", "postgres")
	require.NoError(t, err)

	want := "-- postgres\n" +
		`SELECT "customer"."id" AS "id", "company"."name" AS "company.name" FROM "customer" JOIN "company" ON "company"."id" = "customer"."company_id" WHERE "customer"."first_name" = $1 ORDER BY "company.name" LIMIT 10` + "\n" +
		`params: ["John"]` + "\n"
	assert.Equal(t, want, out)
}

func TestRenderAllDialects(t *testing.T) {
	out, err := executeCommand(t, NewRenderCommand(&RootOptions{Format: "text"}), testSchemasDir, customerCompanyScenario)
	require.NoError(t, err)
	assert.Contains(t, out, "-- mysql\nSELECT `customer`.`id`")
	assert.Contains(t, out, "\n\n-- postgres\n")
	assert.Contains(t, out, "\n\n-- sqlite\n")
}

func TestRenderConfiguredDialect(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Dialect = "sqlite"

	out, err := executeCommand(t, NewRenderCommand(&RootOptions{Format: "text", Config: cfg}),
		testSchemasDir, customerCompanyScenario)
	require.NoError(t, err)
	assert.Contains(t, out, "-- sqlite\n")
	assert.NotContains(t, out, "-- postgres")
}

func TestRenderUnsupportedInSomeDialects(t *testing.T) {
	scenario := filepath.Join(testScenariosDir, "update_returning_old.yaml")

	out, err := executeCommand(t, NewRenderCommand(&RootOptions{Format: "text"}), testSchemasDir, scenario)
	require.NoError(t, err)
	assert.Contains(t, out, "-- sqlite\nerror: old values is not supported by the sqlite dialect\n")
	assert.Contains(t, out, `params: ["Ann",1]`)

	_, err = executeCommand(t, NewRenderCommand(&RootOptions{Format: "text"}), testSchemasDir, scenario, "--dialect", "sqlite")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "no dialect could render")
}

func TestRenderJSON(t *testing.T) {
	out, err := executeCommand(t, NewRenderCommand(&RootOptions{Format: "json"}),
		testSchemasDir, customerCompanyScenario, "--dialect", "sqlite")
	require.NoError(t, err)

	var resp struct {
		Status string `json:"status"`
		Data   struct {
			Scenario string `json:"scenario"`
			Rendered []struct {
				Dialect string `json:"dialect"`
				SQL     string `json:"sql"`
				Params  []any  `json:"params"`
			} `json:"rendered"`
			Columns []struct {
				Path     []string `json:"path"`
				Type     string   `json:"type"`
				Optional string   `json:"optional"`
			} `json:"columns"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "customer_company", resp.Data.Scenario)
	require.Len(t, resp.Data.Rendered, 1)
	assert.Equal(t, "sqlite", resp.Data.Rendered[0].Dialect)
	assert.Equal(t, []any{"John"}, resp.Data.Rendered[0].Params)
	require.Len(t, resp.Data.Columns, 2)
	assert.Equal(t, []string{"company", "name"}, resp.Data.Columns[1].Path)
	assert.Equal(t, "required", resp.Data.Columns[1].Optional)
}

func TestRenderBuildError(t *testing.T) {
	scenario := filepath.Join(testScenariosDir, "malformed_projection.yaml")

	out, err := executeCommand(t, NewRenderCommand(&RootOptions{Format: "text"}), testSchemasDir, scenario)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), query.ErrCodeMalformedProjection)
	assert.Contains(t, out, query.ErrCodeMalformedProjection)
}

func TestRenderInvalidDialect(t *testing.T) {
	_, err := executeCommand(t, NewRenderCommand(&RootOptions{Format: "text"}),
		testSchemasDir, customerCompanyScenario, "--dialect", "oracle")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "invalid dialect")
}

func TestRenderMissingScenario(t *testing.T) {
	_, err := executeCommand(t, NewRenderCommand(&RootOptions{Format: "text"}),
		testSchemasDir, filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), ErrCodeLoadFailed)
}
