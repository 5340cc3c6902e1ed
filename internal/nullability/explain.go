package nullability

import (
	"strings"

	"github.com/roach88/tsq/internal/ir"
	"github.com/roach88/tsq/internal/projection"
)

// LeafReport describes how one leaf's tag was decided.
type LeafReport struct {
	Path   string         `json:"path"`
	Before ir.OptionalTag `json:"before"`
	After  ir.OptionalTag `json:"after"`
}

// GroupReport describes the rule chosen for one group. The top-level group
// has an empty Path and NoRule.
type GroupReport struct {
	Path   string       `json:"path"`
	Rule   Rule         `json:"-"`
	Name   string       `json:"rule"`
	Leaves []LeafReport `json:"leaves"`
}

// Explain reports, for the top-level projection and every nested group in
// declaration order, the rule applied and each direct leaf's tag before and
// after resolution.
func Explain(top projection.Group, lookup LeftJoinLookup) []GroupReport {
	var out []GroupReport
	top.Walk(func(path []string, g projection.Group) {
		rule := NoRule
		if len(path) > 0 {
			rule = RuleFor(g, lookup)
		}
		report := GroupReport{Path: strings.Join(path, "."), Rule: rule, Name: rule.String()}
		for _, e := range g.Leaves() {
			before := e.Field.(projection.Leaf).Node.Optional()
			after := before
			if rule != NoRule {
				after = Apply(rule, before)
			}
			report.Leaves = append(report.Leaves, LeafReport{
				Path:   strings.Join(append(append([]string(nil), path...), e.Name), "."),
				Before: before,
				After:  after,
			})
		}
		out = append(out, report)
	})
	return out
}
