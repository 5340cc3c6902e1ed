package harness

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tsq/internal/ir"
	"github.com/roach88/tsq/internal/nullability"
	"github.com/roach88/tsq/internal/query"
	"github.com/roach88/tsq/internal/sqlbuild"
)

func sampleResult() *Result {
	r := NewResult()
	r.Rendered = []RenderedSQL{
		{Dialect: "mysql", Error: "old values is not supported by the mysql dialect"},
		{Dialect: "postgres", SQL: `SELECT "company"."name" AS "name" FROM "company" WHERE "company"."id" = $1`, Params: []any{int64(1)}},
		{Dialect: "sqlite", SQL: `SELECT "company"."name" AS "name" FROM "company" WHERE "company"."id" = ?`, Params: []any{int64(1)}},
	}
	r.Columns = []sqlbuild.ResultColumn{
		{Path: []string{"name"}, Type: ir.TypeString, Optional: ir.Required},
		{Path: []string{"parent", "name"}, Type: ir.TypeString, Optional: ir.RequiredInOptionalObject},
	}
	r.Groups = []nullability.GroupReport{
		{Path: "", Rule: nullability.NoRule, Name: nullability.NoRule.String()},
		{Path: "parent", Rule: nullability.Rule2, Name: nullability.Rule2.String()},
	}
	r.Executed = true
	r.Rows = []ir.IRObject{
		{"name": ir.IRString("Acme"), "parent": ir.IRObject{"name": ir.IRString("Holding")}},
	}
	return r
}

func TestAssertionError(t *testing.T) {
	err := &AssertionError{Type: ExpectSQL, Subject: "sqlite", Expected: "a", Actual: "b"}
	assert.Equal(t, "Assertion failed: sql (sqlite)\n  Expected: a\n  Actual: b", err.Error())

	err = &AssertionError{Type: ExpectRowsAffected, Expected: "1", Actual: "0"}
	assert.Equal(t, "Assertion failed: rows_affected\n  Expected: 1\n  Actual: 0", err.Error())
}

func TestEvaluateExpectations_Pass(t *testing.T) {
	expect := &Expect{
		SQL:      map[string]string{"sqlite": `SELECT "company"."name" AS "name" FROM "company" WHERE "company"."id" = ?`},
		Params:   []any{1},
		Optional: map[string]string{"name": "required", "parent.name": "requiredInOptionalObject"},
		Rules:    map[string]int{"parent": 2},
		Rows:     []map[string]any{{"name": "Acme", "parent": map[string]any{"name": "Holding"}}},
	}

	assert.Empty(t, EvaluateExpectations(sampleResult(), expect))
}

func TestEvaluateExpectations_Failures(t *testing.T) {
	tests := []struct {
		name   string
		expect Expect
		want   string
		count  int
	}{
		{
			name:   "sql mismatch",
			expect: Expect{SQL: map[string]string{"sqlite": "SELECT 1"}},
			want:   "Assertion failed: sql (sqlite)",
		},
		{
			name:   "sql of failed dialect",
			expect: Expect{SQL: map[string]string{"mysql": "SELECT 1"}},
			want:   "Actual: error: old values is not supported",
		},
		{
			name:   "params mismatch",
			expect: Expect{Params: []any{2}},
			want:   "Assertion failed: params (postgres)",
			count:  2,
		},
		{
			name:   "optional mismatch",
			expect: Expect{Optional: map[string]string{"parent.name": "optional"}},
			want:   "Actual: requiredInOptionalObject",
		},
		{
			name:   "optional unknown column",
			expect: Expect{Optional: map[string]string{"missing": "required"}},
			want:   "Actual: no such column",
		},
		{
			name:   "rule mismatch",
			expect: Expect{Rules: map[string]int{"parent": 1}},
			want:   "Actual: rule 2 (same left join)",
		},
		{
			name:   "rule unknown group",
			expect: Expect{Rules: map[string]int{"company": 3}},
			want:   "Actual: no such group",
		},
		{
			name:   "row count",
			expect: Expect{Rows: []map[string]any{}},
			want:   "Actual: 1 rows",
		},
		{
			name:   "row content",
			expect: Expect{Rows: []map[string]any{{"name": "Other"}}},
			want:   "Assertion failed: rows (row 0)",
		},
		{
			name:   "null in expected row",
			expect: Expect{Rows: []map[string]any{{"name": "Acme", "parent": map[string]any{"name": nil}}}},
			want:   "expect.rows[0].parent.name: null values are not compared",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msgs := EvaluateExpectations(sampleResult(), &tt.expect)
			count := tt.count
			if count == 0 {
				count = 1
			}
			require.Len(t, msgs, count)
			assert.Contains(t, msgs[0], tt.want)
		})
	}
}

func TestEvaluateExpectations_RowsAffected(t *testing.T) {
	r := NewResult()
	r.Executed = true
	r.RowsAffected = 2

	two, three := int64(2), int64(3)
	assert.Empty(t, EvaluateExpectations(r, &Expect{RowsAffected: &two}))
	msgs := EvaluateExpectations(r, &Expect{RowsAffected: &three})
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "Expected: 3")
}

func TestEvaluateExpectations_RowsNotExecuted(t *testing.T) {
	msgs := EvaluateExpectations(NewResult(), &Expect{Rows: []map[string]any{}})
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "statement was not executed")
}

func TestCheckBuildError(t *testing.T) {
	malformed := &query.BuildError{Code: query.ErrCodeMalformedProjection, Message: "company is not joined"}

	assert.Empty(t, checkBuildError(malformed, query.ErrCodeMalformedProjection))

	msgs := checkBuildError(malformed, query.ErrCodeMissingWhere)
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "Expected: Q008")
	assert.Contains(t, msgs[0], "Actual: Q001")

	msgs = checkBuildError(errors.New("unknown relation"), query.ErrCodeMalformedProjection)
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "Actual: unknown relation")

	msgs = checkBuildError(malformed, "")
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "statement construction failed")
}

func TestCanonical(t *testing.T) {
	a, err := canonical(map[string]any{"b": 1, "a": map[string]any{"y": "x", "c": true}})
	require.NoError(t, err)
	assert.Equal(t, `{"a":{"c":true,"y":"x"},"b":1}`, a)

	b, err := canonical(ir.IRObject{"a": ir.IRObject{"c": ir.IRBool(true), "y": ir.IRString("x")}, "b": ir.IRInt(1)})
	require.NoError(t, err)
	assert.Equal(t, a, b)

	p, err := canonical([]any{int64(1), "Y", nil})
	require.NoError(t, err)
	assert.Equal(t, `[1,"Y",null]`, p)
}
