package ir

import (
	"fmt"
	"slices"
)

// RelationID is the stable handle of a declared relation inside a registry.
// Zero is never assigned; it marks "no relation".
type RelationID uint32

// NoRelation is the zero RelationID.
const NoRelation RelationID = 0

// IsZero reports whether id refers to no relation.
func (id RelationID) IsZero() bool { return id == NoRelation }

func (id RelationID) String() string {
	return fmt.Sprintf("rel#%d", uint32(id))
}

// RelationKind distinguishes tables from views.
type RelationKind string

const (
	KindTable RelationKind = "table"
	KindView  RelationKind = "view"
)

// RelationSet is an unordered, deduplicated set of relation ids.
// The zero value is not usable; create sets with NewRelationSet.
type RelationSet map[RelationID]struct{}

// NewRelationSet creates a set holding ids.
func NewRelationSet(ids ...RelationID) RelationSet {
	s := make(RelationSet, len(ids))
	for _, id := range ids {
		s.Add(id)
	}
	return s
}

// Add inserts id. Adding NoRelation is a no-op.
func (s RelationSet) Add(id RelationID) {
	if id.IsZero() {
		return
	}
	s[id] = struct{}{}
}

// AddAll inserts every member of other.
func (s RelationSet) AddAll(other RelationSet) {
	for id := range other {
		s[id] = struct{}{}
	}
}

// Has reports membership.
func (s RelationSet) Has(id RelationID) bool {
	_, ok := s[id]
	return ok
}

// Len returns the number of members.
func (s RelationSet) Len() int { return len(s) }

// Equal compares two sets by membership; traversal order never matters.
func (s RelationSet) Equal(other RelationSet) bool {
	if len(s) != len(other) {
		return false
	}
	for id := range s {
		if !other.Has(id) {
			return false
		}
	}
	return true
}

// Sorted returns the members in ascending id order.
func (s RelationSet) Sorted() []RelationID {
	ids := make([]RelationID, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// RelationSpec is the declaration of a table or view as read from a schema file.
type RelationSpec struct {
	Name             string       `json:"name"`
	Kind             RelationKind `json:"kind"`
	Columns          []ColumnSpec `json:"columns"`
	ForUseInLeftJoin bool         `json:"for_use_in_left_join,omitempty"`
	Alias            string       `json:"alias,omitempty"`
	OldValues        bool         `json:"old_values,omitempty"`
	// LeftJoinAliases declares a left-join companion per alias.
	LeftJoinAliases []string `json:"left_join_aliases,omitempty"`
}

// ColumnSpec is the declaration of one column of a RelationSpec.
type ColumnSpec struct {
	Property      string    `json:"property"` // Go-side property name
	Name          string    `json:"name"`     // database column name
	Type          ValueType `json:"type"`
	Optional      bool      `json:"optional,omitempty"`
	HasDefault    bool      `json:"has_default,omitempty"`
	PrimaryKey    bool      `json:"primary_key,omitempty"`
	Autogenerated bool      `json:"autogenerated,omitempty"`
	Sequence      string    `json:"sequence,omitempty"`
	Computed      bool      `json:"computed,omitempty"`
	Adapter       string    `json:"adapter,omitempty"` // named adapter, e.g. "boolean:S/N"
}
