package nullability

import (
	"fmt"

	"github.com/roach88/tsq/internal/deps"
	"github.com/roach88/tsq/internal/expr"
	"github.com/roach88/tsq/internal/ir"
	"github.com/roach88/tsq/internal/projection"
)

// Rule identifies which nullability rule applies to a nested group.
type Rule uint8

const (
	// NoRule marks top-level leaves, which are never rewritten.
	NoRule Rule = iota
	Rule1
	Rule2
	Rule3
	Rule4
)

var ruleNames = [...]string{
	NoRule: "none",
	Rule1:  "rule 1 (required in optional object)",
	Rule2:  "rule 2 (same left join)",
	Rule3:  "rule 3 (required property)",
	Rule4:  "rule 4 (general)",
}

func (r Rule) String() string {
	if int(r) < len(ruleNames) {
		return ruleNames[r]
	}
	return fmt.Sprintf("Rule(%d)", uint8(r))
}

// LeftJoinLookup reports whether a relation was declared for use in a left
// join. The schema registry implements it.
type LeftJoinLookup interface {
	IsForUseInLeftJoin(id ir.RelationID) bool
}

// LeftJoinSet is a LeftJoinLookup backed by a fixed set.
type LeftJoinSet ir.RelationSet

// IsForUseInLeftJoin implements LeftJoinLookup.
func (s LeftJoinSet) IsForUseInLeftJoin(id ir.RelationID) bool {
	return ir.RelationSet(s).Has(id)
}

// RuleFor selects the rule for the direct leaves of g.
func RuleFor(g projection.Group, lookup LeftJoinLookup) Rule {
	containsRequired := false
	containsOriginallyRequired := false
	// Only ever set to true; see the package documentation.
	innerObjectsAreRequired := true

	for _, e := range g.Entries() {
		switch f := e.Field.(type) {
		case projection.Leaf:
			switch f.Node.Optional() {
			case ir.RequiredInOptionalObject:
				return Rule1
			case ir.Required:
				containsRequired = true
			case ir.OriginallyRequired:
				containsOriginallyRequired = true
			}
		case projection.Group:
			if RuleFor(f, lookup) == Rule3 {
				innerObjectsAreRequired = true
			}
		}
	}

	if containsOriginallyRequired && sameLeftJoin(g, lookup) {
		return Rule2
	}
	if containsRequired || innerObjectsAreRequired {
		return Rule3
	}
	return Rule4
}

// sameLeftJoin reports whether every direct leaf of g depends on the same
// non-empty relation set and all of those relations are left-join relations.
// Nested groups are ignored.
func sameLeftJoin(g projection.Group, lookup LeftJoinLookup) bool {
	var baseline ir.RelationSet
	for _, e := range g.Leaves() {
		rels := deps.Relations(e.Field.(projection.Leaf).Node)
		if baseline == nil {
			baseline = rels
			continue
		}
		if !baseline.Equal(rels) {
			return false
		}
	}
	if baseline.Len() == 0 {
		return false
	}
	for id := range baseline {
		if lookup == nil || !lookup.IsForUseInLeftJoin(id) {
			return false
		}
	}
	return true
}

// Apply returns the tag a leaf carries after rule r rewrites it.
func Apply(r Rule, tag ir.OptionalTag) ir.OptionalTag {
	switch r {
	case Rule1:
		if tag == ir.OriginallyRequired {
			return ir.Optional
		}
	case Rule2:
		if tag == ir.OriginallyRequired {
			return ir.RequiredInOptionalObject
		}
	case Rule3, Rule4:
		if tag != ir.Required {
			return ir.Optional
		}
	}
	return tag
}

// ResolveGroup rewrites the direct leaves of a nested group with its own
// rule, then resolves each nested group recursively.
func ResolveGroup(g projection.Group, lookup LeftJoinLookup) projection.Group {
	rule := RuleFor(g, lookup)
	return g.MapLeaves(
		func(_ string, l projection.Leaf) projection.Leaf {
			return projection.Leaf{Node: expr.WithOptional(l.Node, Apply(rule, l.Node.Optional()))}
		},
		func(_ string, sub projection.Group) projection.Group {
			return ResolveGroup(sub, lookup)
		},
	)
}

// Resolve resolves a top-level projection: its direct leaves keep their
// tags and every nested group is resolved with ResolveGroup.
func Resolve(top projection.Group, lookup LeftJoinLookup) projection.Group {
	return top.MapLeaves(
		func(_ string, l projection.Leaf) projection.Leaf { return l },
		func(_ string, sub projection.Group) projection.Group {
			return ResolveGroup(sub, lookup)
		},
	)
}

// GroupMayBeAbsent reports whether a resolved group can materialize as an
// absent object: true when no leaf inside it, at any depth, is required.
func GroupMayBeAbsent(g projection.Group) bool {
	for _, p := range g.Flatten() {
		if p.Node.Optional() == ir.Required {
			return false
		}
	}
	return true
}
