package query

import (
	"fmt"

	"github.com/roach88/tsq/internal/expr"
	"github.com/roach88/tsq/internal/projection"
)

// ValidationResult contains the portability analysis of a statement.
//
// The portable fragment is the subset of statements that every supported
// dialect renders natively. Statements outside it still render, but only
// on some dialects or through an emulation.
type ValidationResult struct {
	// IsPortable indicates the statement uses only portable features.
	IsPortable bool

	// Warnings lists non-portable features used by the statement.
	// Empty when IsPortable is true.
	Warnings []string
}

// Validate checks whether a built statement stays inside the portable
// fragment:
//  1. No RETURNING clauses (not available on MySQL)
//  2. No sequences (PostgreSQL only)
//  3. No explicit null ordering (emulated on MySQL)
//  4. No unbounded updates or deletes
//
// Validate is a pure function with no side effects.
func Validate(stmt Statement) ValidationResult {
	v := &validator{
		warnings: []string{},
	}
	v.validateStatement(stmt)

	return ValidationResult{
		IsPortable: len(v.warnings) == 0,
		Warnings:   v.warnings,
	}
}

// validator accumulates warnings during traversal.
type validator struct {
	warnings []string
}

func (v *validator) addWarning(format string, args ...any) {
	v.warnings = append(v.warnings, fmt.Sprintf(format, args...))
}

func (v *validator) validateStatement(s Statement) {
	if s == nil {
		v.addWarning("nil statement")
		return
	}

	switch stmt := s.(type) {
	case *Select:
		v.validateSelect(stmt)
	case *Insert:
		v.validateReturning(stmt.Returning)
		if stmt.ReturningLastInsertedID {
			v.addWarning("Last inserted id - read with RETURNING or LAST_INSERT_ID() depending on dialect")
		}
		for _, row := range stmt.Rows {
			for _, a := range row {
				v.validateNode(a.Value)
			}
		}
	case *Update:
		v.validateReturning(stmt.Returning)
		if stmt.Where == nil {
			v.addWarning("Update without where condition - every row is affected")
		}
		for _, a := range stmt.Set {
			v.validateNode(a.Value)
		}
		v.validateNode(stmt.Where)
	case *Delete:
		v.validateReturning(stmt.Returning)
		if stmt.Where == nil {
			v.addWarning("Delete without where condition - every row is affected")
		}
		v.validateNode(stmt.Where)
	default:
		v.addWarning("Unknown statement type: %T - portability cannot be verified", s)
	}
}

func (v *validator) validateSelect(sel *Select) {
	for _, p := range sel.Projection.Flatten() {
		v.validateNode(p.Node)
	}
	for _, j := range sel.RequiredJoins() {
		v.validateNode(j.On)
	}
	for _, n := range sel.bodyNodes() {
		v.validateNode(n)
	}
	for _, o := range sel.OrderBy {
		if _, explicit := o.Direction.NullsFirst(); explicit {
			v.addWarning("Explicit null ordering - emulated on MySQL")
			break
		}
	}
}

func (v *validator) validateReturning(g projection.Group) {
	if g.Len() > 0 {
		v.addWarning("RETURNING clause - not available on MySQL")
	}
}

// validateNode walks an expression looking for dialect-specific features.
func (v *validator) validateNode(n expr.Node) {
	if n == nil {
		return
	}
	expr.Walk(n, func(node expr.Node) bool {
		switch node := node.(type) {
		case *expr.SequenceValue:
			v.addWarning("Sequence %q - only available on PostgreSQL", node.Sequence)
		case *expr.Subquery:
			if sel, ok := node.Statement.(*Select); ok {
				v.validateSelect(sel)
			}
		}
		return true
	})
}
