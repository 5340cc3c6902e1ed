package projection

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tsq/internal/expr"
	"github.com/roach88/tsq/internal/ir"
)

func TestNewGroup_Validation(t *testing.T) {
	id := expr.Val(1)

	_, err := NewGroup(Value("id", id), Value("id", id))
	assert.ErrorIs(t, err, ErrDuplicateProperty)

	_, err = NewGroup(Value("", id))
	assert.ErrorIs(t, err, ErrEmptyName)

	_, err = NewGroup(Value("a.b", id))
	assert.ErrorIs(t, err, ErrInvalidName)

	_, err = NewGroup(Value("id", nil))
	assert.ErrorIs(t, err, ErrNilField)

	_, err = NewGroup(Object("company", Value("x", id), Value("x", id)))
	assert.ErrorIs(t, err, ErrDuplicateProperty)
	assert.Contains(t, err.Error(), "company.")

	assert.Panics(t, func() { MustGroup(Value("id", id), Value("id", id)) })
}

func TestGroup_FlattenKeepsOrder(t *testing.T) {
	g := MustGroup(
		Value("id", expr.Val(1)),
		Object("company",
			Value("id", expr.Val(2)),
			Object("address", Value("city", expr.Val("x"))),
		),
		Value("name", expr.Val("n")),
	)

	var paths []string
	for _, p := range g.Flatten() {
		paths = append(paths, p.String())
	}
	assert.Equal(t, []string{"id", "company.id", "company.address.city", "name"}, paths)
}

func TestGroup_LeavesAndGet(t *testing.T) {
	g := MustGroup(
		Value("id", expr.Val(1)),
		Object("company", Value("id", expr.Val(2))),
	)

	require.Len(t, g.Leaves(), 1)
	assert.Equal(t, "id", g.Leaves()[0].Name)

	f, ok := g.Get("company")
	require.True(t, ok)
	_, isGroup := f.(Group)
	assert.True(t, isGroup)

	_, ok = g.Get("missing")
	assert.False(t, ok)
}

func TestGroup_MapLeavesReturnsCopy(t *testing.T) {
	g := MustGroup(Value("a", expr.Val(1)), Object("o", Value("b", expr.Val(2))))

	mapped := g.MapLeaves(
		func(_ string, l Leaf) Leaf { return Leaf{Node: expr.WithOptional(l.Node, ir.Optional)} },
		func(_ string, sub Group) Group { return sub },
	)

	assert.Equal(t, ir.Required, g.Flatten()[0].Node.Optional())
	assert.Equal(t, ir.Optional, mapped.Flatten()[0].Node.Optional())
	assert.Equal(t, ir.Required, mapped.Flatten()[1].Node.Optional(), "nested handled by nested callback")
}

func TestGroup_Walk(t *testing.T) {
	g := MustGroup(
		Object("a", Object("b", Value("x", expr.Val(1)))),
		Object("c", Value("y", expr.Val(2))),
	)

	var visited []string
	g.Walk(func(path []string, _ Group) {
		visited = append(visited, Path{Names: path}.String())
	})
	assert.Equal(t, []string{"", "a", "a.b", "c"}, visited)
}
