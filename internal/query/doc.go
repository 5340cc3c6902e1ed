// Package query provides the statement model built on top of expressions
// and projections.
//
// Statement is a sealed interface using the marker method pattern; only
// *Select, *Insert, *Update and *Delete implement it, so the SQL builder can
// switch over statements exhaustively:
//
//	switch s := stmt.(type) {
//	case *query.Select:
//	case *query.Insert:
//	case *query.Update:
//	case *query.Delete:
//	}
//
// Statements are assembled with builders and checked once, at Build time,
// against a schema registry. Every contract violation (a projection leaf
// whose relation is not part of the statement, a left join on a relation
// not declared for it, an empty or duplicated projection, an assignment to
// a foreign or computed column) is reported as a *BuildError with a stable
// code. Nothing is deferred to render time.
//
// A built statement is immutable and private to its caller. Building and
// rendering touch only the frozen registry, so any number of goroutines may
// build statements concurrently.
//
// Optional joins (OptionalInnerJoin, OptionalLeftJoin) are kept only when
// some part of the statement references the joined relation; RequiredJoins
// reports which joins survive.
package query
