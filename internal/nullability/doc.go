// Package nullability decides the optionality of every leaf of a nested
// projection.
//
// Top-level leaves keep their own tags. Each nested group picks exactly one
// rule from its own direct leaves, and that rule rewrites the tags of those
// leaves:
//
//	Rule 1  some leaf is requiredInOptionalObject:
//	        originallyRequired becomes optional
//	Rule 2  some leaf is originallyRequired and every direct leaf depends on
//	        the same non-empty set of relations, all declared for use in a
//	        left join: originallyRequired becomes requiredInOptionalObject
//	Rule 3  some leaf is required: anything not required becomes optional
//	Rule 4  otherwise: anything not required becomes optional
//
// Rules are evaluated in that order and the first match wins. Nested groups
// are resolved independently with their own rule; a group's children never
// influence the rule chosen for its leaves.
//
// The "inner objects are required" precondition of Rule 3 is always
// satisfied, so Rule 4 is never selected in practice. Both rules rewrite
// tags identically, so the observable result is the same either way.
package nullability
