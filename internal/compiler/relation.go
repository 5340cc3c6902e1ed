package compiler

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/tsq/internal/ir"
)

// CompileRelation parses a CUE value into a RelationSpec.
// Uses CUE SDK's Go API directly (not CLI subprocess).
//
// The CUE value should be the relation struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`table: company: { columns: { ... } }`)
//	spec, err := CompileRelation(v.LookupPath(cue.ParsePath("table.company")), ir.KindTable)
//
// The struct label is the relation name. When a name field is present it
// overrides the table name and the label becomes the alias.
func CompileRelation(v cue.Value, kind ir.RelationKind) (*ir.RelationSpec, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	spec := &ir.RelationSpec{Kind: kind}

	labels := v.Path().Selectors()
	if len(labels) > 0 {
		spec.Name = labelName(labels[len(labels)-1])
	}

	name, ok, err := lookupString(v, "name")
	if err != nil {
		return nil, err
	}
	if ok && name != spec.Name {
		spec.Alias = spec.Name
		spec.Name = name
	}

	if spec.OldValues, err = lookupBool(v, "oldValues"); err != nil {
		return nil, err
	}
	if spec.ForUseInLeftJoin, err = lookupBool(v, "forUseInLeftJoin"); err != nil {
		return nil, err
	}

	aliasesVal := v.LookupPath(cue.ParsePath("leftJoinAliases"))
	if aliasesVal.Exists() {
		iter, err := aliasesVal.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for iter.Next() {
			alias, err := iter.Value().String()
			if err != nil {
				return nil, formatCUEError(err)
			}
			spec.LeftJoinAliases = append(spec.LeftJoinAliases, alias)
		}
	}

	// Parse columns (required, at least one)
	spec.Columns, err = parseColumns(v)
	if err != nil {
		return nil, err
	}
	if len(spec.Columns) == 0 {
		return nil, &CompileError{
			Field:   "columns",
			Message: "at least one column is required",
			Pos:     v.Pos(),
		}
	}

	return spec, nil
}

// parseColumns extracts column declarations in declaration order. The field
// label is the property name; column gives the database name and defaults
// to the property.
func parseColumns(v cue.Value) ([]ir.ColumnSpec, error) {
	columnsVal := v.LookupPath(cue.ParsePath("columns"))
	if !columnsVal.Exists() {
		return nil, nil
	}

	iter, err := columnsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var columns []ir.ColumnSpec
	for iter.Next() {
		property := labelName(iter.Selector())
		colVal := iter.Value()

		col := ir.ColumnSpec{Property: property, Name: property}

		name, ok, err := lookupString(colVal, "column")
		if err != nil {
			return nil, err
		}
		if ok {
			col.Name = name
		}

		typeName, ok, err := lookupString(colVal, "type")
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, &CompileError{
				Field:   fmt.Sprintf("columns.%s.type", property),
				Message: "column type is required",
				Pos:     colVal.Pos(),
			}
		}
		col.Type = ir.ValueType(typeName)

		flags := []struct {
			field string
			dst   *bool
		}{
			{"optional", &col.Optional},
			{"hasDefault", &col.HasDefault},
			{"primaryKey", &col.PrimaryKey},
			{"autogenerated", &col.Autogenerated},
			{"computed", &col.Computed},
		}
		for _, f := range flags {
			if *f.dst, err = lookupBool(colVal, f.field); err != nil {
				return nil, err
			}
		}

		if col.Sequence, _, err = lookupString(colVal, "sequence"); err != nil {
			return nil, err
		}
		if col.Adapter, _, err = lookupString(colVal, "adapter"); err != nil {
			return nil, err
		}

		columns = append(columns, col)
	}

	return columns, nil
}

// labelName returns a label without quotes.
func labelName(sel cue.Selector) string {
	if sel.LabelType() == cue.StringLabel {
		return sel.Unquoted()
	}
	return sel.String()
}

func lookupString(v cue.Value, field string) (string, bool, error) {
	f := v.LookupPath(cue.ParsePath(field))
	if !f.Exists() {
		return "", false, nil
	}
	s, err := f.String()
	if err != nil {
		return "", false, formatCUEError(err)
	}
	return s, true, nil
}

func lookupBool(v cue.Value, field string) (bool, error) {
	f := v.LookupPath(cue.ParsePath(field))
	if !f.Exists() {
		return false, nil
	}
	b, err := f.Bool()
	if err != nil {
		return false, formatCUEError(err)
	}
	return b, nil
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	// Return first error with position info
	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
