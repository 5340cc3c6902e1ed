// Package expr is the expression model of tsq: value sources that compose
// into larger expressions, and the columns that bind them to relations.
//
// Node is a sealed interface. Every node is an immutable value once
// constructed: composition creates new nodes and never mutates operands, so
// nodes may be shared freely between queries and goroutines. The only way to
// obtain a node with a different OptionalTag is WithOptional, which returns a
// derived copy.
//
// Node types:
//   - *Column: a value bound to a declared relation
//   - *Const: a literal, rendered as a bind parameter
//   - *Binary, *Unary: operators and scalar functions
//   - *Aggregate: count/sum/min/max/avg
//   - *Coalesce: value-when-null
//   - *SequenceValue: next/current value of a named sequence
//   - *AggregatedArray: a group of values aggregated into a JSON array
//   - *Subquery: a nested statement used as a value or predicate
//
// Relations are never referenced by pointer. A Column carries the
// ir.RelationID of its owner and registers that id when asked for its
// dependencies.
package expr
