// Package schema holds declared relations (tables and views) in a
// process-wide registry.
//
// Relations are identified by a stable ir.RelationID handle. Columns carry
// the id of their owning relation instead of a pointer to it, so relation
// identity comparisons are plain integer comparisons. A Registry is filled
// during process initialization, frozen, and then read concurrently by any
// number of query builders.
package schema

import (
	"slices"

	"github.com/roach88/tsq/internal/expr"
	"github.com/roach88/tsq/internal/ir"
	"github.com/roach88/tsq/internal/projection"
)

// OldValuesAlias is the alias under which old-values companions are rendered.
const OldValuesAlias = "_old_"

// Relation is a declared table or view. It is immutable once returned by
// the registry.
type Relation struct {
	id        ir.RelationID
	name      string
	alias     string
	kind      ir.RelationKind
	leftJoin  bool
	base      ir.RelationID
	oldValues ir.RelationID // companion holding pre-mutation values
	snapshot  bool          // true on the companion itself
	columns   []*expr.Column
	shape     projection.Group
}

func (r *Relation) ID() ir.RelationID { return r.id }

// Name returns the database name of the table or view.
func (r *Relation) Name() string { return r.name }

// Alias returns the alias the relation is referenced by, or "".
func (r *Relation) Alias() string { return r.alias }

// RefName is the name used to qualify column references: the alias when
// set, otherwise the database name.
func (r *Relation) RefName() string {
	if r.alias != "" {
		return r.alias
	}
	return r.name
}

func (r *Relation) Kind() ir.RelationKind { return r.kind }

// IsForUseInLeftJoin reports whether every column of the relation is
// reachable only through an outer join.
func (r *Relation) IsForUseInLeftJoin() bool { return r.leftJoin }

// Base returns the relation this one was derived from, or NoRelation for
// directly declared relations.
func (r *Relation) Base() ir.RelationID { return r.base }

// OldValues returns the companion exposing pre-mutation values.
func (r *Relation) OldValues() (ir.RelationID, bool) {
	return r.oldValues, !r.oldValues.IsZero()
}

// IsOldValues reports whether r is itself an old-values companion.
func (r *Relation) IsOldValues() bool { return r.snapshot }

// Columns returns the columns in declaration order, nested view columns
// flattened depth-first.
func (r *Relation) Columns() []*expr.Column {
	return slices.Clone(r.columns)
}

// Column finds a column by property. Nested view columns use their dotted
// path, e.g. "company.name".
func (r *Relation) Column(property string) (*expr.Column, bool) {
	for _, c := range r.columns {
		if c.Property() == property {
			return c, true
		}
	}
	return nil, false
}

// MustColumn is Column that panics when property is unknown.
func (r *Relation) MustColumn(property string) *expr.Column {
	c, ok := r.Column(property)
	if !ok {
		panic("schema: relation " + r.RefName() + " has no column " + property)
	}
	return c
}

// Shape returns the relation's columns as a projection: flat for tables,
// nested as declared for views.
func (r *Relation) Shape() projection.Group { return r.shape }

// PrimaryKey returns the primary key column, if declared.
func (r *Relation) PrimaryKey() (expr.PrimaryKeyColumn, bool) {
	for _, c := range r.columns {
		if pk, ok := c.AsPrimaryKey(); ok {
			return pk, true
		}
	}
	return expr.PrimaryKeyColumn{}, false
}

// derive copies r under a new id with every column rebound to it.
func (r *Relation) derive(id ir.RelationID, alias string, tag func(ir.OptionalTag) ir.OptionalTag) *Relation {
	cp := *r
	cp.id = id
	cp.alias = alias
	cp.base = r.id
	cp.oldValues = ir.NoRelation
	cp.columns = make([]*expr.Column, len(r.columns))
	rebound := make(map[*expr.Column]*expr.Column, len(r.columns))
	for i, c := range r.columns {
		cp.columns[i] = c.Rebind(id, tag(c.Optional()))
		rebound[c] = cp.columns[i]
	}
	cp.shape = rebindGroup(r.shape, rebound)
	return &cp
}

func rebindGroup(g projection.Group, rebound map[*expr.Column]*expr.Column) projection.Group {
	return g.MapLeaves(
		func(_ string, l projection.Leaf) projection.Leaf {
			return projection.Leaf{Node: rebound[l.Node.(*expr.Column)]}
		},
		func(_ string, sub projection.Group) projection.Group {
			return rebindGroup(sub, rebound)
		},
	)
}
