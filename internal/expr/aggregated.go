package expr

import (
	"github.com/roach88/tsq/internal/adapter"
	"github.com/roach88/tsq/internal/ir"
)

// AggregationMode controls what an aggregated array yields over no rows.
type AggregationMode uint8

const (
	// ValuesOrNull yields NULL over no rows; the array is Optional.
	ValuesOrNull AggregationMode = iota
	// ValuesOrEmpty yields an empty array over no rows; the array is Required.
	ValuesOrEmpty
)

func (m AggregationMode) String() string {
	if m == ValuesOrEmpty {
		return "valuesOrEmpty"
	}
	return "valuesOrNull"
}

// ArrayField is one named member of an aggregated array of objects.
type ArrayField struct {
	Name  string
	Value Node
}

// AggregatedArray aggregates the values of a group into a JSON array.
//
// With a single unnamed field the array holds plain values; otherwise each
// element is an object with one member per field.
type AggregatedArray struct {
	Fields []ArrayField
	Mode   AggregationMode
	Tag    ir.OptionalTag
}

// AggregateAsArray aggregates objects built from fields.
func AggregateAsArray(mode AggregationMode, fields ...ArrayField) *AggregatedArray {
	tag := ir.Optional
	if mode == ValuesOrEmpty {
		tag = ir.Required
	}
	return &AggregatedArray{Fields: fields, Mode: mode, Tag: tag}
}

// AggregateValuesAsArray aggregates the values of a single expression.
func AggregateValuesAsArray(mode AggregationMode, value Node) *AggregatedArray {
	return AggregateAsArray(mode, ArrayField{Value: value})
}

// IsSingleValue reports whether the array holds plain values.
func (a *AggregatedArray) IsSingleValue() bool {
	return len(a.Fields) == 1 && a.Fields[0].Name == ""
}

// Columns returns the columns feeding the aggregation.
func (a *AggregatedArray) Columns() []*Column {
	var cols []*Column
	seen := NewColumnSet()
	for _, f := range a.Fields {
		Walk(f.Value, func(n Node) bool {
			if c, ok := n.(*Column); ok && !seen.Has(c) {
				seen.Add(c)
				cols = append(cols, c)
			}
			return true
		})
	}
	return cols
}

func (a *AggregatedArray) ValueType() ir.ValueType { return ir.TypeAggregatedArray }
func (a *AggregatedArray) Optional() ir.OptionalTag { return a.Tag }
func (a *AggregatedArray) Adapter() adapter.TypeAdapter { return nil }
func (a *AggregatedArray) Aggregation() *AggregatedArray { return a }

func (a *AggregatedArray) operands() []Node {
	nodes := make([]Node, len(a.Fields))
	for i, f := range a.Fields {
		nodes[i] = f.Value
	}
	return nodes
}

func (a *AggregatedArray) RegisterRelations(out ir.RelationSet) {
	registerRelations(out, a.operands()...)
}

func (a *AggregatedArray) RegisterRequiredColumns(out ColumnSet, onlyFor ir.RelationSet) {
	registerRequiredColumns(out, onlyFor, a.operands()...)
}

func (a *AggregatedArray) withOptional(tag ir.OptionalTag) Node {
	cp := *a
	cp.Tag = tag
	return &cp
}
