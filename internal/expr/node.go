package expr

import (
	"cmp"
	"slices"

	"github.com/roach88/tsq/internal/adapter"
	"github.com/roach88/tsq/internal/ir"
)

// Node is a typed unit of the query AST.
//
// This is a sealed interface - only types in this package implement it.
// Backends type-switch over the concrete node types.
type Node interface {
	// ValueType is the semantic domain of the value.
	ValueType() ir.ValueType
	// Optional is the nullability classification of the value.
	Optional() ir.OptionalTag
	// Adapter is the type adapter applied to the value, or nil.
	Adapter() adapter.TypeAdapter
	// Aggregation is the aggregated-array metadata, or nil.
	Aggregation() *AggregatedArray
	// RegisterRelations adds every relation the node structurally depends on.
	RegisterRelations(out ir.RelationSet)
	// RegisterRequiredColumns adds the columns owned by a relation in onlyFor.
	RegisterRequiredColumns(out ColumnSet, onlyFor ir.RelationSet)

	operands() []Node
	withOptional(tag ir.OptionalTag) Node
}

// WithOptional returns a copy of n carrying tag. n itself is not modified.
func WithOptional(n Node, tag ir.OptionalTag) Node {
	if n.Optional() == tag {
		return n
	}
	return n.withOptional(tag)
}

// Walk visits n and its operands depth-first. Returning false from fn stops
// descent into the current node's operands.
func Walk(n Node, fn func(Node) bool) {
	if n == nil || !fn(n) {
		return
	}
	for _, op := range n.operands() {
		Walk(op, fn)
	}
}

// Operands returns the direct operands of n in evaluation order.
func Operands(n Node) []Node {
	return slices.Clone(n.operands())
}

func registerRelations(out ir.RelationSet, nodes ...Node) {
	for _, n := range nodes {
		if n != nil {
			n.RegisterRelations(out)
		}
	}
}

func registerRequiredColumns(out ColumnSet, onlyFor ir.RelationSet, nodes ...Node) {
	for _, n := range nodes {
		if n != nil {
			n.RegisterRequiredColumns(out, onlyFor)
		}
	}
}

func mergeOptional(nodes ...Node) ir.OptionalTag {
	result := ir.Required
	for _, n := range nodes {
		result = ir.MergeOptional(result, n.Optional())
	}
	return result
}

// ColumnKey identifies a column by owning relation and database name.
type ColumnKey struct {
	Relation ir.RelationID
	Name     string
}

// ColumnSet is a set of columns deduplicated by ColumnKey.
type ColumnSet map[ColumnKey]*Column

// NewColumnSet creates an empty ColumnSet.
func NewColumnSet() ColumnSet {
	return make(ColumnSet)
}

// Add inserts c; adding the same column twice is a no-op.
func (s ColumnSet) Add(c *Column) {
	s[c.Key()] = c
}

// Has reports membership.
func (s ColumnSet) Has(c *Column) bool {
	_, ok := s[c.Key()]
	return ok
}

// Sorted returns the columns ordered by relation id then name.
func (s ColumnSet) Sorted() []*Column {
	cols := make([]*Column, 0, len(s))
	for _, c := range s {
		cols = append(cols, c)
	}
	slices.SortFunc(cols, func(a, b *Column) int {
		if c := cmp.Compare(a.relation, b.relation); c != 0 {
			return c
		}
		return cmp.Compare(a.name, b.name)
	})
	return cols
}
