package compiler

import (
	"testing"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tsq/internal/ir"
)

func compileRelation(t *testing.T, src, path string, kind ir.RelationKind) (*ir.RelationSpec, error) {
	t.Helper()
	ctx := cuecontext.New()
	v := ctx.CompileString(src)
	require.NoError(t, v.Err())
	return CompileRelation(v.LookupPath(cue.ParsePath(path)), kind)
}

func TestCompileRelationBasic(t *testing.T) {
	src := `
table: company: {
	columns: {
		id: {type: "int", autogenerated: true}
		name: {type: "string"}
		isVip: {column: "is_vip", type: "boolean", adapter: "boolean:Y/N"}
		createdAt: {column: "created_at", type: "localDateTime", hasDefault: true}
		parentId: {column: "parent_id", type: "int", optional: true}
	}
}`

	spec, err := compileRelation(t, src, "table.company", ir.KindTable)
	require.NoError(t, err)

	assert.Equal(t, "company", spec.Name)
	assert.Empty(t, spec.Alias)
	assert.Equal(t, ir.KindTable, spec.Kind)
	assert.Equal(t, []ir.ColumnSpec{
		{Property: "id", Name: "id", Type: ir.TypeInt, Autogenerated: true},
		{Property: "name", Name: "name", Type: ir.TypeString},
		{Property: "isVip", Name: "is_vip", Type: ir.TypeBoolean, Adapter: "boolean:Y/N"},
		{Property: "createdAt", Name: "created_at", Type: ir.TypeLocalDateTime, HasDefault: true},
		{Property: "parentId", Name: "parent_id", Type: ir.TypeInt, Optional: true},
	}, spec.Columns)
}

func TestCompileRelationCompanions(t *testing.T) {
	src := `
table: customer: {
	oldValues: true
	leftJoinAliases: ["referrer", "holder"]
	columns: {
		id: {type: "bigint", sequence: "customer_seq"}
		firstName: {column: "first_name", type: "string"}
	}
}`

	spec, err := compileRelation(t, src, "table.customer", ir.KindTable)
	require.NoError(t, err)

	assert.True(t, spec.OldValues)
	assert.False(t, spec.ForUseInLeftJoin)
	assert.Equal(t, []string{"referrer", "holder"}, spec.LeftJoinAliases)
	assert.Equal(t, "customer_seq", spec.Columns[0].Sequence)
}

func TestCompileRelationNameOverridesLabel(t *testing.T) {
	src := `
table: parent: {
	name: "company"
	forUseInLeftJoin: true
	columns: {
		id: {type: "int", primaryKey: true}
	}
}`

	spec, err := compileRelation(t, src, "table.parent", ir.KindTable)
	require.NoError(t, err)

	assert.Equal(t, "company", spec.Name)
	assert.Equal(t, "parent", spec.Alias)
	assert.True(t, spec.ForUseInLeftJoin)
	assert.True(t, spec.Columns[0].PrimaryKey)
}

func TestCompileRelationQuotedLabel(t *testing.T) {
	src := `
view: "order-summary": {
	columns: {
		"total-amount": {column: "total", type: "double", computed: true}
	}
}`

	spec, err := compileRelation(t, src, `view."order-summary"`, ir.KindView)
	require.NoError(t, err)

	assert.Equal(t, "order-summary", spec.Name)
	assert.Equal(t, ir.KindView, spec.Kind)
	assert.Equal(t, "total-amount", spec.Columns[0].Property)
	assert.True(t, spec.Columns[0].Computed)
}

func TestCompileRelationErrors(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		wantMsg string
	}{
		{
			name:    "missing columns",
			src:     `table: company: {}`,
			wantMsg: "at least one column is required",
		},
		{
			name:    "empty columns",
			src:     `table: company: columns: {}`,
			wantMsg: "at least one column is required",
		},
		{
			name:    "missing type",
			src:     `table: company: columns: id: {primaryKey: true}`,
			wantMsg: "column type is required",
		},
		{
			name:    "flag is not a bool",
			src:     `table: company: columns: id: {type: "int", optional: "yes"}`,
		},
		{
			name:    "alias list holds a number",
			src:     `table: company: {leftJoinAliases: [1], columns: id: {type: "int"}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := compileRelation(t, tt.src, "table.company", ir.KindTable)
			require.Error(t, err)
			if tt.wantMsg != "" {
				assert.Contains(t, err.Error(), tt.wantMsg)
			}
		})
	}
}

func TestCompileErrorFormat(t *testing.T) {
	err := &CompileError{Field: "columns", Message: "at least one column is required"}
	assert.Equal(t, "columns: at least one column is required", err.Error())
}

func TestCompiledRelationValidates(t *testing.T) {
	src := `
table: company: columns: {
	id: {type: "int", primaryKey: true}
	code: {type: "int", primaryKey: true}
}`

	spec, err := compileRelation(t, src, "table.company", ir.KindTable)
	require.NoError(t, err)

	errs := Validate(spec)
	require.Len(t, errs, 1)
	assert.Equal(t, ErrMultiplePrimaryKeys, errs[0].Code)
	assert.Equal(t, "company.columns[1]", errs[0].Field)
}

func TestCompileSchema(t *testing.T) {
	src := `
table: company: columns: {
	id: {type: "int", autogenerated: true}
	name: {type: "string"}
}
table: broken: columns: {
	id: {primaryKey: true}
}
view: companyNames: columns: {
	name: {type: "string"}
}`

	v := cuecontext.New().CompileString(src)
	require.NoError(t, v.Err())

	specs, errs := CompileSchema(v)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "table.broken")
	assert.Contains(t, errs[0].Error(), "column type is required")

	require.Len(t, specs, 2)
	assert.Equal(t, "company", specs[0].Name)
	assert.Equal(t, ir.KindTable, specs[0].Kind)
	assert.Equal(t, "companyNames", specs[1].Name)
	assert.Equal(t, ir.KindView, specs[1].Kind)
}

func TestCompileSchemaEmpty(t *testing.T) {
	v := cuecontext.New().CompileString(`other: 1`)
	specs, errs := CompileSchema(v)
	assert.Empty(t, specs)
	assert.Empty(t, errs)
}
