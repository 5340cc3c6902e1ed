package expr

import (
	"github.com/roach88/tsq/internal/adapter"
	"github.com/roach88/tsq/internal/ir"
)

// Statement is a nested query usable inside an expression.
//
// A correlated statement depends on the relations of the enclosing query it
// references; those are the only relations it reports. Relations it selects
// from itself are private to it.
type Statement interface {
	ExternalRelations(out ir.RelationSet)
	ExternalColumns(out ColumnSet, onlyFor ir.RelationSet)
	// Value returns the single value the statement projects, or nil when it
	// projects more than one value or a nested object.
	Value() Node
}

// SubqueryKind enumerates the ways a statement is embedded.
type SubqueryKind uint8

const (
	ScalarSubquery SubqueryKind = iota
	ExistsSubquery
	NotExistsSubquery
	InSubquery
	NotInSubquery
)

// Subquery embeds a statement as a value or predicate.
type Subquery struct {
	Kind      SubqueryKind
	Left      Node // compared value for InSubquery / NotInSubquery
	Statement Statement
	Type      ir.ValueType
	Tag       ir.OptionalTag
	Adapt     adapter.TypeAdapter
	// Agg is the aggregated array a scalar subquery selects, if any.
	Agg *AggregatedArray
}

// Scalar embeds a statement selecting one value. A scalar subquery may
// return no row, so the result is Optional, except for an aggregated array,
// which always yields one row and keeps the tag of its mode. The adapter and
// aggregation of the selected value are carried over.
func Scalar(stmt Statement, vt ir.ValueType) *Subquery {
	s := &Subquery{Kind: ScalarSubquery, Statement: stmt, Type: vt, Tag: ir.Optional}
	if stmt == nil {
		return s
	}
	if v := stmt.Value(); v != nil {
		s.Adapt = v.Adapter()
		if agg := v.Aggregation(); agg != nil {
			s.Agg = agg
			s.Tag = agg.Tag
		}
	}
	return s
}

// Exists is true when stmt returns at least one row.
func Exists(stmt Statement) *Subquery {
	return &Subquery{Kind: ExistsSubquery, Statement: stmt, Type: ir.TypeBoolean}
}

// NotExists is true when stmt returns no rows.
func NotExists(stmt Statement) *Subquery {
	return &Subquery{Kind: NotExistsSubquery, Statement: stmt, Type: ir.TypeBoolean}
}

// In is true when left is among the values selected by stmt.
func In(left Node, stmt Statement) *Subquery {
	return &Subquery{Kind: InSubquery, Left: left, Statement: stmt, Type: ir.TypeBoolean, Tag: optionalOf(left)}
}

// NotIn is true when left is not among the values selected by stmt.
func NotIn(left Node, stmt Statement) *Subquery {
	return &Subquery{Kind: NotInSubquery, Left: left, Statement: stmt, Type: ir.TypeBoolean, Tag: optionalOf(left)}
}

func optionalOf(n Node) ir.OptionalTag {
	if n == nil {
		return ir.Required
	}
	return n.Optional()
}

func (s *Subquery) ValueType() ir.ValueType { return s.Type }
func (s *Subquery) Optional() ir.OptionalTag { return s.Tag }
func (s *Subquery) Adapter() adapter.TypeAdapter { return s.Adapt }
func (s *Subquery) Aggregation() *AggregatedArray { return s.Agg }

func (s *Subquery) operands() []Node {
	if s.Left == nil {
		return nil
	}
	return []Node{s.Left}
}

func (s *Subquery) RegisterRelations(out ir.RelationSet) {
	registerRelations(out, s.Left)
	if s.Statement != nil {
		s.Statement.ExternalRelations(out)
	}
}

func (s *Subquery) RegisterRequiredColumns(out ColumnSet, onlyFor ir.RelationSet) {
	registerRequiredColumns(out, onlyFor, s.Left)
	if s.Statement != nil {
		s.Statement.ExternalColumns(out, onlyFor)
	}
}

func (s *Subquery) withOptional(tag ir.OptionalTag) Node {
	cp := *s
	cp.Tag = tag
	return &cp
}
