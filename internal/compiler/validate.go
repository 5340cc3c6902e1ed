package compiler

import (
	"fmt"
	"strings"

	"github.com/roach88/tsq/internal/adapter"
	"github.com/roach88/tsq/internal/ir"
)

// Validation error codes (E200-E299)
const (
	// General validation errors (E200)
	ErrUnsupportedIRType = "E200" // unsupported IR type for validation

	// RelationSpec errors (E201-E209)
	ErrRelationNameEmpty    = "E201" // relation name is required
	ErrRelationNoColumns    = "E202" // at least one column required
	ErrInvalidValueType     = "E203" // unknown value type
	ErrDuplicateColumn      = "E204" // duplicate database column name
	ErrDuplicateProperty    = "E205" // duplicate property name
	ErrMultiplePrimaryKeys  = "E206" // more than one primary key column
	ErrInvalidKeyGeneration = "E207" // generated key on a non-integer column
	ErrInvalidAdapter       = "E208" // unknown adapter or cardinality mismatch
	ErrInvalidCompanion     = "E209" // companion not allowed for this relation

	// Schema errors (E210-E219)
	ErrDuplicateRelation = "E210" // two relations share a reference name
	ErrInvalidIdentifier = "E211" // empty name or property containing "."
)

// ValidationError represents a schema validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate validates compiled declarations.
// Returns all errors found (does not fail-fast).
// Supports RelationSpec and []RelationSpec; a slice is also checked for
// reference names shared between relations.
func Validate(v any) []ValidationError {
	switch spec := v.(type) {
	case *ir.RelationSpec:
		return validateRelationSpec(spec, spec.Name)
	case ir.RelationSpec:
		return validateRelationSpec(&spec, spec.Name)
	case []ir.RelationSpec:
		return validateSchema(spec)
	default:
		return []ValidationError{{
			Field:   "type",
			Message: fmt.Sprintf("unsupported IR type: %T", v),
			Code:    ErrUnsupportedIRType,
		}}
	}
}

func validateSchema(specs []ir.RelationSpec) []ValidationError {
	var errs []ValidationError
	refs := make(map[string]string)

	claim := func(ref, field string) {
		if ref == "" {
			return
		}
		if prev, ok := refs[ref]; ok {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("reference name %q already used by %s", ref, prev),
				Code:    ErrDuplicateRelation,
			})
			return
		}
		refs[ref] = field
	}

	for i := range specs {
		spec := &specs[i]
		field := fmt.Sprintf("relations[%d]", i)
		errs = append(errs, validateRelationSpec(spec, field)...)

		ref := spec.Name
		if spec.Alias != "" {
			ref = spec.Alias
		}
		claim(ref, field)
		for j, alias := range spec.LeftJoinAliases {
			claim(alias, fmt.Sprintf("%s.left_join_aliases[%d]", field, j))
		}
	}
	return errs
}

// validateRelationSpec validates one relation declaration.
func validateRelationSpec(spec *ir.RelationSpec, field string) []ValidationError {
	var errs []ValidationError
	if field == "" {
		field = "relation"
	}

	// E201: name is required
	if strings.TrimSpace(spec.Name) == "" {
		errs = append(errs, ValidationError{
			Field:   field + ".name",
			Message: "relation name is required and must be non-empty",
			Code:    ErrRelationNameEmpty,
		})
	}

	// E202: at least one column required
	if len(spec.Columns) == 0 {
		errs = append(errs, ValidationError{
			Field:   field + ".columns",
			Message: "at least one column is required",
			Code:    ErrRelationNoColumns,
		})
	}

	// E209: companions
	if spec.Kind == ir.KindView && (spec.OldValues || spec.ForUseInLeftJoin || len(spec.LeftJoinAliases) > 0) {
		errs = append(errs, ValidationError{
			Field:   field,
			Message: "views cannot declare old values or left-join companions",
			Code:    ErrInvalidCompanion,
		})
	}
	if spec.OldValues && spec.ForUseInLeftJoin {
		errs = append(errs, ValidationError{
			Field:   field,
			Message: "a relation for use in a left join cannot declare old values",
			Code:    ErrInvalidCompanion,
		})
	}
	for i, alias := range spec.LeftJoinAliases {
		if strings.TrimSpace(alias) == "" {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("%s.left_join_aliases[%d]", field, i),
				Message: "alias must be non-empty",
				Code:    ErrInvalidIdentifier,
			})
		}
	}

	// Track names for duplicate detection
	names := make(map[string]bool)
	properties := make(map[string]bool)
	primaryKeys := 0

	for i, col := range spec.Columns {
		colField := fmt.Sprintf("%s.columns[%d]", field, i)
		property := col.Property
		if property == "" {
			property = col.Name
		}

		// E211: identifiers
		if strings.TrimSpace(col.Name) == "" {
			errs = append(errs, ValidationError{
				Field:   colField + ".name",
				Message: "column name is required",
				Code:    ErrInvalidIdentifier,
			})
		}
		if strings.Contains(property, ".") {
			errs = append(errs, ValidationError{
				Field:   colField + ".property",
				Message: fmt.Sprintf("property %q must not contain \".\"", property),
				Code:    ErrInvalidIdentifier,
			})
		}

		// E204, E205: duplicates
		if col.Name != "" && names[col.Name] {
			errs = append(errs, ValidationError{
				Field:   colField + ".name",
				Message: fmt.Sprintf("duplicate column name: %q", col.Name),
				Code:    ErrDuplicateColumn,
			})
		}
		names[col.Name] = true
		if properties[property] {
			errs = append(errs, ValidationError{
				Field:   colField + ".property",
				Message: fmt.Sprintf("duplicate property: %q", property),
				Code:    ErrDuplicateProperty,
			})
		}
		properties[property] = true

		// E203: value type
		if !col.Type.Valid() {
			errs = append(errs, ValidationError{
				Field:   colField + ".type",
				Message: fmt.Sprintf("invalid type %q for column %q", col.Type, col.Name),
				Code:    ErrInvalidValueType,
			})
		}

		// E206, E207: keys
		generated := col.Autogenerated || col.Sequence != ""
		if col.PrimaryKey || generated {
			primaryKeys++
			if primaryKeys == 2 {
				errs = append(errs, ValidationError{
					Field:   colField,
					Message: "only one primary key column is allowed",
					Code:    ErrMultiplePrimaryKeys,
				})
			}
		}
		if generated && col.Type != ir.TypeInt && col.Type != ir.TypeBigint {
			errs = append(errs, ValidationError{
				Field:   colField,
				Message: fmt.Sprintf("generated key %q must be int or bigint, got %q", col.Name, col.Type),
				Code:    ErrInvalidKeyGeneration,
			})
		}

		// E208: adapter
		a, err := adapter.Lookup(col.Adapter)
		if err == nil && col.Type.Valid() {
			err = adapter.CheckCardinality(col.Type, a)
		}
		if err != nil {
			errs = append(errs, ValidationError{
				Field:   colField + ".adapter",
				Message: err.Error(),
				Code:    ErrInvalidAdapter,
			})
		}
	}

	return errs
}
