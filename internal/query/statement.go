package query

import (
	"github.com/roach88/tsq/internal/deps"
	"github.com/roach88/tsq/internal/expr"
	"github.com/roach88/tsq/internal/ir"
	"github.com/roach88/tsq/internal/projection"
)

// Statement represents a built statement.
//
// This is a sealed interface - only types in this package implement it.
type Statement interface {
	statementNode() // Marker method - seals interface to this package
}

// JoinKind enumerates join flavors.
type JoinKind uint8

const (
	InnerJoin JoinKind = iota
	LeftJoin
	// OptionalInnerJoin is emitted only when the statement references the
	// joined relation.
	OptionalInnerJoin
	// OptionalLeftJoin is emitted only when the statement references the
	// joined relation.
	OptionalLeftJoin
)

// IsLeft reports whether k is an outer join.
func (k JoinKind) IsLeft() bool { return k == LeftJoin || k == OptionalLeftJoin }

// IsOptional reports whether k may be omitted when unreferenced.
func (k JoinKind) IsOptional() bool { return k == OptionalInnerJoin || k == OptionalLeftJoin }

func (k JoinKind) String() string {
	if k.IsLeft() {
		return "left join"
	}
	return "join"
}

// Join joins Relation to the statement on the On predicate.
type Join struct {
	Kind     JoinKind
	Relation ir.RelationID
	On       expr.Node
}

// Direction is an ORDER BY direction, optionally with explicit null
// placement.
type Direction uint8

const (
	Asc Direction = iota
	Desc
	AscNullsFirst
	AscNullsLast
	DescNullsFirst
	DescNullsLast
)

// Descending reports whether d sorts in descending order.
func (d Direction) Descending() bool {
	return d == Desc || d == DescNullsFirst || d == DescNullsLast
}

// NullsFirst reports explicit null placement: (true, true) for nulls
// first, (false, true) for nulls last, (_, false) for dialect default.
func (d Direction) NullsFirst() (first, explicit bool) {
	switch d {
	case AscNullsFirst, DescNullsFirst:
		return true, true
	case AscNullsLast, DescNullsLast:
		return false, true
	}
	return false, false
}

// Order is one ORDER BY item. Property names a (dotted) projection path;
// when empty, Expr is rendered instead.
type Order struct {
	Property  string
	Expr      expr.Node
	Direction Direction
}

// Select is a SELECT statement.
//
// Semantics:
//
//	SELECT [DISTINCT] <projection> FROM <from> <joins>
//	WHERE <where> GROUP BY <group by> HAVING <having>
//	ORDER BY <order by> LIMIT <limit> OFFSET <offset>
//
// A Select is also an expr.Statement, so it can be embedded as a subquery;
// a correlated select reports the enclosing relations it references.
type Select struct {
	Distinct   bool
	From       ir.RelationID
	Joins      []Join
	Projection projection.Group
	Where      expr.Node
	GroupBy    []expr.Node
	Having     expr.Node
	OrderBy    []Order
	Limit      int64 // 0 = no limit
	Offset     int64
}

func (*Select) statementNode() {}

// OwnRelations returns the relations the select itself introduces.
func (s *Select) OwnRelations() ir.RelationSet {
	own := ir.NewRelationSet(s.From)
	for _, j := range s.Joins {
		own.Add(j.Relation)
	}
	return own
}

// bodyNodes are the expressions whose references force optional joins.
func (s *Select) bodyNodes() []expr.Node {
	nodes := []expr.Node{s.Where, s.Having}
	nodes = append(nodes, s.GroupBy...)
	for _, o := range s.OrderBy {
		nodes = append(nodes, o.Expr)
	}
	return nodes
}

// RequiredJoins returns the joins that are rendered: every mandatory join
// and every optional join whose relation is referenced by the projection,
// the filters, the ordering, or the ON condition of another rendered join.
func (s *Select) RequiredJoins() []Join {
	used := deps.NewTracker().Field(s.Projection).Node(s.bodyNodes()...)
	kept := make([]bool, len(s.Joins))
	for i, j := range s.Joins {
		if !j.Kind.IsOptional() {
			kept[i] = true
			used.Node(j.On)
		}
	}
	for changed := true; changed; {
		changed = false
		for i, j := range s.Joins {
			if !kept[i] && used.Uses(j.Relation) {
				kept[i] = true
				used.Node(j.On)
				changed = true
			}
		}
	}

	out := make([]Join, 0, len(s.Joins))
	for i, j := range s.Joins {
		if kept[i] {
			out = append(out, j)
		}
	}
	return out
}

// Dependencies returns every relation referenced by the rendered parts of
// the select.
func (s *Select) Dependencies() ir.RelationSet {
	t := deps.NewTracker().Field(s.Projection).Node(s.bodyNodes()...)
	for _, j := range s.RequiredJoins() {
		t.Node(j.On)
	}
	return t.Relations()
}

// Value implements expr.Statement.
func (s *Select) Value() expr.Node {
	if s == nil {
		return nil
	}
	entries := s.Projection.Entries()
	if len(entries) != 1 {
		return nil
	}
	if l, ok := entries[0].Field.(projection.Leaf); ok {
		return l.Node
	}
	return nil
}

// ExternalRelations implements expr.Statement.
func (s *Select) ExternalRelations(out ir.RelationSet) {
	own := s.OwnRelations()
	for id := range s.Dependencies() {
		if !own.Has(id) {
			out.Add(id)
		}
	}
}

// ExternalColumns implements expr.Statement.
func (s *Select) ExternalColumns(out expr.ColumnSet, onlyFor ir.RelationSet) {
	own := s.OwnRelations()
	external := ir.NewRelationSet()
	for id := range onlyFor {
		if !own.Has(id) {
			external.Add(id)
		}
	}
	for _, p := range s.Projection.Flatten() {
		p.Node.RegisterRequiredColumns(out, external)
	}
	for _, n := range s.bodyNodes() {
		if n != nil {
			n.RegisterRequiredColumns(out, external)
		}
	}
	for _, j := range s.RequiredJoins() {
		if j.On != nil {
			j.On.RegisterRequiredColumns(out, external)
		}
	}
}

// Assignment sets Column to Value in an INSERT or UPDATE.
type Assignment struct {
	Column *expr.Column
	Value  expr.Node
}

// Insert is an INSERT statement with one or more rows. Every row assigns
// the same columns in the same order.
type Insert struct {
	Into      ir.RelationID
	Rows      [][]Assignment
	Returning projection.Group
	// ReturningLastInsertedID returns the autogenerated primary key of the
	// inserted row instead of a projection.
	ReturningLastInsertedID bool
}

func (*Insert) statementNode() {}

// Update is an UPDATE statement.
type Update struct {
	Table     ir.RelationID
	Set       []Assignment
	Where     expr.Node // nil only when explicitly allowed
	Returning projection.Group
}

func (*Update) statementNode() {}

// Delete is a DELETE statement.
type Delete struct {
	From      ir.RelationID
	Where     expr.Node // nil only when explicitly allowed
	Returning projection.Group
}

func (*Delete) statementNode() {}

var _ expr.Statement = (*Select)(nil)
