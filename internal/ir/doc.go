// Package ir provides the foundation types shared by every layer of tsq.
//
// This package contains type definitions only. All other internal packages
// import ir; ir imports nothing internal. This keeps ir the foundational
// layer with no circular dependencies.
//
// Key design constraints:
//   - Relations are identified by RelationID, never by pointer identity
//   - OptionalTag values are immutable once assigned to a leaf
//   - Result rows are expressed as IRValue trees (IRObject for nested groups)
//   - All JSON tags use snake_case
package ir
