package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tsq/internal/ir"
)

func validCompany() ir.RelationSpec {
	return ir.RelationSpec{
		Name: "company",
		Kind: ir.KindTable,
		Columns: []ir.ColumnSpec{
			{Property: "id", Name: "id", Type: ir.TypeInt, Autogenerated: true},
			{Property: "name", Name: "name", Type: ir.TypeString},
			{Property: "isVip", Name: "is_vip", Type: ir.TypeBoolean, Adapter: "boolean:Y/N"},
		},
	}
}

func codes(errs []ValidationError) []string {
	out := make([]string, 0, len(errs))
	for _, e := range errs {
		out = append(out, e.Code)
	}
	return out
}

func TestValidateRelationSpecValid(t *testing.T) {
	spec := validCompany()
	assert.Empty(t, Validate(&spec))
	assert.Empty(t, Validate(spec))
}

func TestValidateRelationSpec(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ir.RelationSpec)
		want   []string
	}{
		{
			name:   "empty name",
			mutate: func(s *ir.RelationSpec) { s.Name = "  " },
			want:   []string{ErrRelationNameEmpty},
		},
		{
			name:   "no columns",
			mutate: func(s *ir.RelationSpec) { s.Columns = nil },
			want:   []string{ErrRelationNoColumns},
		},
		{
			name:   "invalid type",
			mutate: func(s *ir.RelationSpec) { s.Columns[1].Type = "text" },
			want:   []string{ErrInvalidValueType},
		},
		{
			name:   "duplicate column",
			mutate: func(s *ir.RelationSpec) { s.Columns[2].Name = "name" },
			want:   []string{ErrDuplicateColumn},
		},
		{
			name:   "duplicate property",
			mutate: func(s *ir.RelationSpec) { s.Columns[2].Property = "name" },
			want:   []string{ErrDuplicateProperty},
		},
		{
			name:   "two primary keys",
			mutate: func(s *ir.RelationSpec) { s.Columns[1].PrimaryKey = true },
			want:   []string{ErrMultiplePrimaryKeys},
		},
		{
			name: "sequence on string column",
			mutate: func(s *ir.RelationSpec) {
				s.Columns[0] = ir.ColumnSpec{Property: "id", Name: "id", Type: ir.TypeUUID, Sequence: "company_seq"}
			},
			want: []string{ErrInvalidKeyGeneration},
		},
		{
			name:   "unknown adapter",
			mutate: func(s *ir.RelationSpec) { s.Columns[2].Adapter = "money" },
			want:   []string{ErrInvalidAdapter},
		},
		{
			name:   "view with old values",
			mutate: func(s *ir.RelationSpec) { s.Kind = ir.KindView; s.OldValues = true },
			want:   []string{ErrInvalidCompanion},
		},
		{
			name:   "left join with old values",
			mutate: func(s *ir.RelationSpec) { s.ForUseInLeftJoin = true; s.OldValues = true },
			want:   []string{ErrInvalidCompanion},
		},
		{
			name:   "dotted property",
			mutate: func(s *ir.RelationSpec) { s.Columns[1].Property = "a.b" },
			want:   []string{ErrInvalidIdentifier},
		},
		{
			name:   "empty column name",
			mutate: func(s *ir.RelationSpec) { s.Columns[1].Name = "" },
			want:   []string{ErrInvalidIdentifier},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := validCompany()
			tt.mutate(&spec)
			assert.Equal(t, tt.want, codes(Validate(&spec)))
		})
	}
}

func TestValidateCollectsAllErrors(t *testing.T) {
	spec := ir.RelationSpec{
		Name: "",
		Columns: []ir.ColumnSpec{
			{Property: "a", Name: "a", Type: "nope"},
			{Property: "a", Name: "a", Type: ir.TypeInt},
		},
	}

	errs := Validate(&spec)
	assert.ElementsMatch(t,
		[]string{ErrRelationNameEmpty, ErrInvalidValueType, ErrDuplicateColumn, ErrDuplicateProperty},
		codes(errs))
}

func TestValidateSchemaDuplicateRelation(t *testing.T) {
	company := validCompany()
	aliased := validCompany()
	aliased.Alias = "parent"
	again := validCompany()
	again.LeftJoinAliases = []string{"parent"}

	errs := Validate([]ir.RelationSpec{company, aliased, again})
	assert.Equal(t, []string{ErrDuplicateRelation, ErrDuplicateRelation}, codes(errs))
	assert.Equal(t, "relations[2]", errs[0].Field)
	assert.Equal(t, "relations[2].left_join_aliases[0]", errs[1].Field)
}

func TestValidateUnsupportedType(t *testing.T) {
	errs := Validate("company")
	require.Len(t, errs, 1)
	assert.Equal(t, ErrUnsupportedIRType, errs[0].Code)
	assert.Contains(t, errs[0].Message, "string")
}

func TestValidationErrorFormat(t *testing.T) {
	err := ValidationError{Field: "relations[0].name", Message: "required", Code: ErrRelationNameEmpty}
	assert.Equal(t, "[E201] relations[0].name: required", err.Error())

	err.Line = 4
	assert.Equal(t, "[E201] line 4: relations[0].name: required", err.Error())
}
