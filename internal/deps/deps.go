// Package deps tracks which relations an expression or projection depends
// on, and which columns of a given relation set it reads.
//
// The query compiler uses the relation sets to decide which joins a
// statement actually needs; the nullability engine uses them to detect
// groups whose values all come from the same left-joined relations.
package deps

import (
	"github.com/roach88/tsq/internal/expr"
	"github.com/roach88/tsq/internal/ir"
	"github.com/roach88/tsq/internal/projection"
)

// Relations returns the relations n transitively references.
func Relations(n expr.Node) ir.RelationSet {
	out := ir.NewRelationSet()
	if n != nil {
		n.RegisterRelations(out)
	}
	return out
}

// FieldRelations returns the relations referenced anywhere inside f.
func FieldRelations(f projection.Field) ir.RelationSet {
	out := ir.NewRelationSet()
	registerField(out, f)
	return out
}

func registerField(out ir.RelationSet, f projection.Field) {
	switch f := f.(type) {
	case projection.Leaf:
		f.Node.RegisterRelations(out)
	case projection.Group:
		for _, e := range f.Entries() {
			registerField(out, e.Field)
		}
	}
}

// RequiredColumns returns the columns of relations in onlyFor that n reads.
func RequiredColumns(n expr.Node, onlyFor ir.RelationSet) expr.ColumnSet {
	out := expr.NewColumnSet()
	if n != nil {
		n.RegisterRequiredColumns(out, onlyFor)
	}
	return out
}

// Tracker accumulates relation and column dependencies across the parts of
// a statement (projection, filters, ordering, grouping).
type Tracker struct {
	relations ir.RelationSet
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{relations: ir.NewRelationSet()}
}

// Node records the dependencies of n. Nil nodes are ignored.
func (t *Tracker) Node(nodes ...expr.Node) *Tracker {
	for _, n := range nodes {
		if n != nil {
			n.RegisterRelations(t.relations)
		}
	}
	return t
}

// Field records the dependencies of every leaf of f.
func (t *Tracker) Field(f projection.Field) *Tracker {
	registerField(t.relations, f)
	return t
}

// Statement records the external dependencies of a correlated subquery.
func (t *Tracker) Statement(s expr.Statement) *Tracker {
	if s != nil {
		s.ExternalRelations(t.relations)
	}
	return t
}

// Relations returns the accumulated set. The caller must not modify it.
func (t *Tracker) Relations() ir.RelationSet {
	return t.relations
}

// Uses reports whether any recorded expression depends on id.
func (t *Tracker) Uses(id ir.RelationID) bool {
	return t.relations.Has(id)
}
