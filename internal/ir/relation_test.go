package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRelationSet_EqualIgnoresOrder(t *testing.T) {
	a := NewRelationSet(3, 1, 2)
	b := NewRelationSet(2, 3, 1, 1)

	assert.True(t, a.Equal(b))
	assert.True(t, b.Equal(a))
	assert.Equal(t, 3, b.Len())
	assert.Equal(t, []RelationID{1, 2, 3}, b.Sorted())
}

func TestRelationSet_Mismatch(t *testing.T) {
	assert.False(t, NewRelationSet(1, 2).Equal(NewRelationSet(1)))
	assert.False(t, NewRelationSet(1, 2).Equal(NewRelationSet(1, 3)))
}

func TestRelationSet_IgnoresZero(t *testing.T) {
	s := NewRelationSet(NoRelation)
	assert.Equal(t, 0, s.Len())
	assert.False(t, s.Has(NoRelation))

	s.AddAll(NewRelationSet(4))
	assert.True(t, s.Has(4))
}
