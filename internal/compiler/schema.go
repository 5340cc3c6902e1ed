package compiler

import (
	"fmt"
	"os"

	"cuelang.org/go/cue"

	"github.com/roach88/tsq/internal/ir"
)

// Sections maps the top-level CUE field holding declarations to the kind of
// relation they declare.
var Sections = []struct {
	Field string
	Kind  ir.RelationKind
}{
	{"table", ir.KindTable},
	{"view", ir.KindView},
}

// CompileSchema compiles every relation declared under the table and view
// sections of v, in declaration order. Compilation continues past a failing
// relation so that all errors are reported; failing relations are left out
// of the result.
func CompileSchema(v cue.Value) ([]ir.RelationSpec, []error) {
	var (
		specs []ir.RelationSpec
		errs  []error
	)
	for _, section := range Sections {
		sectionVal := v.LookupPath(cue.ParsePath(section.Field))
		if !sectionVal.Exists() {
			continue
		}
		iter, err := sectionVal.Fields()
		if err != nil {
			errs = append(errs, fmt.Errorf("iterating %s: %w", section.Field, formatCUEError(err)))
			continue
		}
		for iter.Next() {
			spec, err := CompileRelation(iter.Value(), section.Kind)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s.%s: %w", section.Field, labelName(iter.Selector()), err))
				continue
			}
			specs = append(specs, *spec)
		}
	}
	return specs, errs
}

// LoadFiles compiles each CUE file and unifies them into one value, so a
// relation may be declared only once across all files. Files need no
// package clause.
func LoadFiles(ctx *cue.Context, paths []string) (cue.Value, error) {
	value := ctx.CompileString("")
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return cue.Value{}, err
		}
		v := ctx.CompileBytes(data, cue.Filename(path))
		if err := v.Err(); err != nil {
			return cue.Value{}, formatCUEError(err)
		}
		value = value.Unify(v)
	}
	if err := value.Validate(); err != nil {
		return cue.Value{}, formatCUEError(err)
	}
	return value, nil
}
