// Package projection models the shape of one result row: an ordered,
// possibly nested mapping from property names to expressions.
//
// Field is a tagged union with exactly two cases, Leaf and Group. Every
// recursive algorithm over projections switches on it explicitly.
package projection

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/tsq/internal/expr"
)

// Field is either a Leaf or a Group.
//
// This is a sealed interface - only Leaf and Group implement it.
type Field interface {
	field() // Marker method - seals interface to this package
}

// Leaf is a single projected expression.
type Leaf struct {
	Node expr.Node
}

func (Leaf) field() {}

// Group is an ordered mapping from property name to Field.
// A Group is immutable; transformations return new groups.
type Group struct {
	entries []Entry
}

func (Group) field() {}

// Entry is one named member of a Group.
type Entry struct {
	Name  string
	Field Field
}

// Errors returned by NewGroup.
var (
	ErrEmptyName         = errors.New("empty property name")
	ErrDuplicateProperty = errors.New("duplicate property")
	ErrNilField          = errors.New("nil field")
	ErrInvalidName       = errors.New("property name must not contain '.'")
)

// NewGroup validates entries recursively and returns the group.
func NewGroup(entries ...Entry) (Group, error) {
	seen := make(map[string]bool, len(entries))
	for _, e := range entries {
		switch {
		case e.Name == "":
			return Group{}, ErrEmptyName
		case strings.Contains(e.Name, "."):
			return Group{}, fmt.Errorf("%w: %q", ErrInvalidName, e.Name)
		case seen[e.Name]:
			return Group{}, fmt.Errorf("%w: %q", ErrDuplicateProperty, e.Name)
		}
		seen[e.Name] = true

		switch f := e.Field.(type) {
		case Leaf:
			if f.Node == nil {
				return Group{}, fmt.Errorf("%w: %q", ErrNilField, e.Name)
			}
		case Group:
			if _, err := NewGroup(f.entries...); err != nil {
				return Group{}, fmt.Errorf("%s.%w", e.Name, err)
			}
		default:
			return Group{}, fmt.Errorf("%w: %q", ErrNilField, e.Name)
		}
	}
	return Group{entries: slices.Clone(entries)}, nil
}

// MustGroup is NewGroup that panics on error. Intended for declarations
// made once at process start.
func MustGroup(entries ...Entry) Group {
	g, err := NewGroup(entries...)
	if err != nil {
		panic(err)
	}
	return g
}

// Value is shorthand for a leaf entry.
func Value(name string, n expr.Node) Entry {
	return Entry{Name: name, Field: Leaf{Node: n}}
}

// Object is shorthand for a nested group entry. Validation happens when the
// enclosing group is built.
func Object(name string, entries ...Entry) Entry {
	return Entry{Name: name, Field: Group{entries: entries}}
}

// Entries returns a copy of the group's entries in declaration order.
func (g Group) Entries() []Entry {
	return slices.Clone(g.entries)
}

// Len returns the number of direct entries.
func (g Group) Len() int { return len(g.entries) }

// Get returns the direct entry named name.
func (g Group) Get(name string) (Field, bool) {
	for _, e := range g.entries {
		if e.Name == name {
			return e.Field, true
		}
	}
	return nil, false
}

// Leaves returns the direct (non-nested) leaf entries.
func (g Group) Leaves() []Entry {
	var out []Entry
	for _, e := range g.entries {
		if _, ok := e.Field.(Leaf); ok {
			out = append(out, e)
		}
	}
	return out
}

// MapLeaves returns a copy of g whose direct leaves are replaced by fn and
// whose nested groups are replaced by nested.
func (g Group) MapLeaves(fn func(name string, l Leaf) Leaf, nested func(name string, sub Group) Group) Group {
	out := make([]Entry, len(g.entries))
	for i, e := range g.entries {
		switch f := e.Field.(type) {
		case Leaf:
			out[i] = Entry{Name: e.Name, Field: fn(e.Name, f)}
		case Group:
			out[i] = Entry{Name: e.Name, Field: nested(e.Name, f)}
		}
	}
	return Group{entries: out}
}

// Path is a flattened leaf: its dotted property path and expression.
type Path struct {
	Names []string
	Node  expr.Node
}

// String returns the dotted path, e.g. "company.name".
func (p Path) String() string {
	return strings.Join(p.Names, ".")
}

// Flatten returns every leaf of g, depth-first in declaration order.
func (g Group) Flatten() []Path {
	var out []Path
	g.flatten(nil, &out)
	return out
}

func (g Group) flatten(prefix []string, out *[]Path) {
	for _, e := range g.entries {
		names := append(slices.Clone(prefix), e.Name)
		switch f := e.Field.(type) {
		case Leaf:
			*out = append(*out, Path{Names: names, Node: f.Node})
		case Group:
			f.flatten(names, out)
		}
	}
}

// Walk calls fn for g and every nested group with its path.
func (g Group) Walk(fn func(path []string, g Group)) {
	g.walk(nil, fn)
}

func (g Group) walk(path []string, fn func([]string, Group)) {
	fn(path, g)
	for _, e := range g.entries {
		if sub, ok := e.Field.(Group); ok {
			sub.walk(append(slices.Clone(path), e.Name), fn)
		}
	}
}
