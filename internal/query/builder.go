package query

import (
	"errors"
	"fmt"
	"slices"

	"github.com/roach88/tsq/internal/deps"
	"github.com/roach88/tsq/internal/expr"
	"github.com/roach88/tsq/internal/ir"
	"github.com/roach88/tsq/internal/projection"
	"github.com/roach88/tsq/internal/schema"
)

// SelectBuilder assembles a Select. Methods record their arguments and
// never fail; every check runs in Build.
type SelectBuilder struct {
	reg        *schema.Registry
	sel        Select
	entries    []projection.Entry
	correlated bool
}

// SelectFrom starts a select over the relation from.
func SelectFrom(reg *schema.Registry, from ir.RelationID) *SelectBuilder {
	return &SelectBuilder{reg: reg, sel: Select{From: from}}
}

// Subquery starts a select that may reference relations of an enclosing
// statement.
func Subquery(reg *schema.Registry, from ir.RelationID) *SelectBuilder {
	b := SelectFrom(reg, from)
	b.correlated = true
	return b
}

func (b *SelectBuilder) join(kind JoinKind, rel ir.RelationID, on expr.Node) *SelectBuilder {
	b.sel.Joins = append(b.sel.Joins, Join{Kind: kind, Relation: rel, On: on})
	return b
}

// Join adds an inner join.
func (b *SelectBuilder) Join(rel ir.RelationID, on expr.Node) *SelectBuilder {
	return b.join(InnerJoin, rel, on)
}

// LeftJoin adds a left join. rel must be declared for use in a left join.
func (b *SelectBuilder) LeftJoin(rel ir.RelationID, on expr.Node) *SelectBuilder {
	return b.join(LeftJoin, rel, on)
}

// OptionalJoin adds an inner join rendered only when referenced.
func (b *SelectBuilder) OptionalJoin(rel ir.RelationID, on expr.Node) *SelectBuilder {
	return b.join(OptionalInnerJoin, rel, on)
}

// OptionalLeftJoin adds a left join rendered only when referenced.
func (b *SelectBuilder) OptionalLeftJoin(rel ir.RelationID, on expr.Node) *SelectBuilder {
	return b.join(OptionalLeftJoin, rel, on)
}

// Where conjoins predicates with any previous WHERE condition.
func (b *SelectBuilder) Where(preds ...expr.Node) *SelectBuilder {
	b.sel.Where = expr.And(append([]expr.Node{b.sel.Where}, preds...)...)
	return b
}

// Select appends projection entries.
func (b *SelectBuilder) Select(entries ...projection.Entry) *SelectBuilder {
	b.entries = append(b.entries, entries...)
	return b
}

// SelectShape appends the entries of an existing projection, for example a
// relation's Shape.
func (b *SelectBuilder) SelectShape(g projection.Group) *SelectBuilder {
	return b.Select(g.Entries()...)
}

func (b *SelectBuilder) Distinct() *SelectBuilder {
	b.sel.Distinct = true
	return b
}

func (b *SelectBuilder) GroupBy(nodes ...expr.Node) *SelectBuilder {
	b.sel.GroupBy = append(b.sel.GroupBy, nodes...)
	return b
}

func (b *SelectBuilder) Having(preds ...expr.Node) *SelectBuilder {
	b.sel.Having = expr.And(append([]expr.Node{b.sel.Having}, preds...)...)
	return b
}

// OrderBy orders by a projected property, given as its dotted path.
func (b *SelectBuilder) OrderBy(property string, d Direction) *SelectBuilder {
	b.sel.OrderBy = append(b.sel.OrderBy, Order{Property: property, Direction: d})
	return b
}

// OrderByExpr orders by an arbitrary expression.
func (b *SelectBuilder) OrderByExpr(n expr.Node, d Direction) *SelectBuilder {
	b.sel.OrderBy = append(b.sel.OrderBy, Order{Expr: n, Direction: d})
	return b
}

func (b *SelectBuilder) Limit(n int64) *SelectBuilder {
	b.sel.Limit = n
	return b
}

func (b *SelectBuilder) Offset(n int64) *SelectBuilder {
	b.sel.Offset = n
	return b
}

// Build validates the select and returns it.
func (b *SelectBuilder) Build() (*Select, error) {
	sel := b.sel
	sel.Joins = slices.Clone(b.sel.Joins)
	sel.GroupBy = slices.Clone(b.sel.GroupBy)
	sel.OrderBy = slices.Clone(b.sel.OrderBy)

	if len(b.entries) == 0 {
		return nil, buildErr(ErrCodeEmptyProjection, "select has no projected values")
	}
	g, err := projection.NewGroup(b.entries...)
	if err != nil {
		return nil, projectionError(err)
	}
	sel.Projection = g

	if err := b.checkRelations(&sel); err != nil {
		return nil, err
	}
	if err := checkSubqueries(&sel); err != nil {
		return nil, err
	}

	allowed := sel.OwnRelations()
	for _, p := range g.Flatten() {
		if err := checkRefs(allowed, b.correlated, deps.Relations(p.Node), "projection leaf %q", p.String()); err != nil {
			return nil, err
		}
	}
	for i, j := range sel.Joins {
		if err := checkRefs(allowed, b.correlated, deps.Relations(j.On), "join %d condition", i+1); err != nil {
			return nil, err
		}
	}
	for _, part := range []struct {
		name string
		node expr.Node
	}{{"where", sel.Where}, {"having", sel.Having}} {
		if err := checkRefs(allowed, b.correlated, deps.Relations(part.node), "%s condition", part.name); err != nil {
			return nil, err
		}
	}
	for _, n := range sel.GroupBy {
		if err := checkRefs(allowed, b.correlated, deps.Relations(n), "group by"); err != nil {
			return nil, err
		}
	}

	props := make(map[string]bool)
	for _, p := range g.Flatten() {
		props[p.String()] = true
	}
	for _, o := range sel.OrderBy {
		switch {
		case o.Property != "" && !props[o.Property]:
			return nil, buildErr(ErrCodeMalformedProjection, "order by unknown property %q", o.Property)
		case o.Property == "" && o.Expr == nil:
			return nil, buildErr(ErrCodeMalformedProjection, "order by without property or expression")
		case o.Expr != nil:
			if err := checkRefs(allowed, b.correlated, deps.Relations(o.Expr), "order by"); err != nil {
				return nil, err
			}
		}
	}
	if sel.Limit < 0 || sel.Offset < 0 {
		return nil, buildErr(ErrCodeMalformedProjection, "negative limit or offset")
	}

	return &sel, nil
}

func (b *SelectBuilder) checkRelations(sel *Select) error {
	if _, err := lookup(b.reg, sel.From); err != nil {
		return err
	}
	seen := ir.NewRelationSet(sel.From)
	for _, j := range sel.Joins {
		rel, err := lookup(b.reg, j.Relation)
		if err != nil {
			return err
		}
		if seen.Has(j.Relation) {
			return buildErr(ErrCodeJoinKindMismatch, "relation %s is joined twice", rel.RefName())
		}
		seen.Add(j.Relation)
		if j.Kind.IsLeft() != rel.IsForUseInLeftJoin() {
			if j.Kind.IsLeft() {
				return buildErr(ErrCodeJoinKindMismatch, "relation %s must be declared for use in a left join", rel.RefName())
			}
			return buildErr(ErrCodeJoinKindMismatch, "relation %s is declared for use in a left join", rel.RefName())
		}
		if j.On == nil {
			return buildErr(ErrCodeMalformedProjection, "join of %s has no condition", rel.RefName())
		}
	}
	return nil
}

// checkSubqueries rejects subqueries embedded without a statement, or an IN
// test without its compared value.
func checkSubqueries(sel *Select) error {
	nodes := sel.bodyNodes()
	for _, p := range sel.Projection.Flatten() {
		nodes = append(nodes, p.Node)
	}
	for _, j := range sel.Joins {
		nodes = append(nodes, j.On)
	}
	var err error
	for _, n := range nodes {
		expr.Walk(n, func(node expr.Node) bool {
			if err != nil {
				return false
			}
			sq, ok := node.(*expr.Subquery)
			if !ok {
				return true
			}
			if s, isSelect := sq.Statement.(*Select); sq.Statement == nil || (isSelect && s == nil) {
				err = buildErr(ErrCodeMalformedProjection, "subquery has no statement")
				return false
			}
			if (sq.Kind == expr.InSubquery || sq.Kind == expr.NotInSubquery) && sq.Left == nil {
				err = buildErr(ErrCodeMalformedProjection, "IN subquery has no compared value")
				return false
			}
			return true
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func lookup(reg *schema.Registry, id ir.RelationID) (*schema.Relation, error) {
	rel, ok := reg.Relation(id)
	if !ok {
		return nil, buildErr(ErrCodeUnknownRelation, "unknown relation %v", id)
	}
	return rel, nil
}

// checkRefs reports a Q001 error when used contains a relation outside
// allowed, unless the statement is correlated.
func checkRefs(allowed ir.RelationSet, correlated bool, used ir.RelationSet, what string, args ...any) error {
	if correlated {
		return nil
	}
	for _, id := range used.Sorted() {
		if !allowed.Has(id) {
			return buildErr(ErrCodeMalformedProjection, "%s references %v, which is not part of the statement", fmt.Sprintf(what, args...), id)
		}
	}
	return nil
}

func projectionError(err error) error {
	code := ErrCodeMalformedProjection
	if errors.Is(err, projection.ErrDuplicateProperty) {
		code = ErrCodeDuplicateProperty
	}
	return &BuildError{Code: code, Message: "invalid projection", Err: err}
}
