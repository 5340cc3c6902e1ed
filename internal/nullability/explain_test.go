package nullability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tsq/internal/ir"
	"github.com/roach88/tsq/internal/projection"
)

func TestExplain(t *testing.T) {
	top := projection.MustGroup(
		projection.Value("id", col(t, customer, "id", ir.TypeInt, ir.Required)),
		projection.Object("company",
			projection.Value("id", col(t, company, "id", ir.TypeInt, ir.OriginallyRequired)),
		),
	)

	reports := Explain(top, leftJoined)
	require.Len(t, reports, 2)

	assert.Equal(t, "", reports[0].Path)
	assert.Equal(t, NoRule, reports[0].Rule)
	assert.Equal(t, []LeafReport{{Path: "id", Before: ir.Required, After: ir.Required}}, reports[0].Leaves)

	assert.Equal(t, "company", reports[1].Path)
	assert.Equal(t, Rule2, reports[1].Rule)
	assert.Equal(t, "rule 2 (same left join)", reports[1].Name)
	assert.Equal(t, []LeafReport{{Path: "company.id", Before: ir.OriginallyRequired, After: ir.RequiredInOptionalObject}}, reports[1].Leaves)

	resolved := tags(Resolve(top, leftJoined))
	for _, r := range reports {
		for _, l := range r.Leaves {
			assert.Equal(t, l.After, resolved[l.Path], l.Path)
		}
	}
}
