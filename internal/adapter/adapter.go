// Package adapter converts values between their native form and the form
// stored in the database.
//
// Adapters are stateless pure function pairs. A nil TypeAdapter means the
// identity conversion.
package adapter

import (
	"fmt"
	"strings"

	"github.com/roach88/tsq/internal/ir"
)

// TypeAdapter is a bidirectional conversion for one declared value type.
type TypeAdapter interface {
	// ToDatabase converts a native value into its database representation.
	ToDatabase(v ir.IRValue, vt ir.ValueType) (ir.IRValue, error)
	// FromDatabase converts a database value into its native representation.
	FromDatabase(v ir.IRValue, vt ir.ValueType) (ir.IRValue, error)
	// Cardinality is the shape of the native values the adapter produces.
	Cardinality() ir.Cardinality
}

// CustomBoolean stores booleans as two sentinel values, e.g. 'S' and 'N'.
//
// Dialects treat columns carrying a CustomBoolean specially when they appear
// in a condition: the column is compared with True instead of being used as
// a bare predicate.
type CustomBoolean struct {
	True  ir.IRValue
	False ir.IRValue
}

// NewCustomBoolean creates a CustomBoolean adapter.
func NewCustomBoolean(trueValue, falseValue ir.IRValue) *CustomBoolean {
	return &CustomBoolean{True: trueValue, False: falseValue}
}

// ToDatabase implements TypeAdapter.
func (a *CustomBoolean) ToDatabase(v ir.IRValue, vt ir.ValueType) (ir.IRValue, error) {
	if ir.IsNull(v) {
		return ir.IRNull{}, nil
	}
	b, ok := v.(ir.IRBool)
	if !ok {
		return nil, fmt.Errorf("custom boolean: expected bool, got %T", v)
	}
	if b {
		return a.True, nil
	}
	return a.False, nil
}

// FromDatabase implements TypeAdapter.
func (a *CustomBoolean) FromDatabase(v ir.IRValue, vt ir.ValueType) (ir.IRValue, error) {
	switch {
	case ir.IsNull(v):
		return ir.IRNull{}, nil
	case v == a.True:
		return ir.IRBool(true), nil
	case v == a.False:
		return ir.IRBool(false), nil
	default:
		return nil, fmt.Errorf("custom boolean: unexpected database value %v", v)
	}
}

// Cardinality implements TypeAdapter.
func (a *CustomBoolean) Cardinality() ir.Cardinality { return ir.Scalar }

// Proxy forwards conversions to Inner while hiding its concrete type.
// It is used when a column is re-declared from another expression (a view
// over a select) so that the custom boolean is not rendered twice.
type Proxy struct {
	Inner TypeAdapter
}

// ToDatabase implements TypeAdapter.
func (p Proxy) ToDatabase(v ir.IRValue, vt ir.ValueType) (ir.IRValue, error) {
	return p.Inner.ToDatabase(v, vt)
}

// FromDatabase implements TypeAdapter.
func (p Proxy) FromDatabase(v ir.IRValue, vt ir.ValueType) (ir.IRValue, error) {
	return p.Inner.FromDatabase(v, vt)
}

// Cardinality implements TypeAdapter.
func (p Proxy) Cardinality() ir.Cardinality { return p.Inner.Cardinality() }

// AsCustomBoolean returns the adapter as a CustomBoolean when it is one.
// Proxies are deliberately not unwrapped.
func AsCustomBoolean(a TypeAdapter) (*CustomBoolean, bool) {
	cb, ok := a.(*CustomBoolean)
	return cb, ok
}

// ForRedeclaration returns the adapter to attach to a column created from
// another expression.
func ForRedeclaration(a TypeAdapter) TypeAdapter {
	if _, ok := AsCustomBoolean(a); ok {
		return Proxy{Inner: a}
	}
	return a
}

// CheckCardinality fails when the declared value type and the adapter disagree
// on whether values are scalar or lists.
func CheckCardinality(vt ir.ValueType, a TypeAdapter) error {
	if a == nil {
		return nil
	}
	if got, want := a.Cardinality(), vt.Cardinality(); got != want {
		return fmt.Errorf("adapter produces %s values but type %q is %s", got, vt, want)
	}
	return nil
}

// ToDatabase applies a (possibly nil) adapter.
func ToDatabase(a TypeAdapter, v ir.IRValue, vt ir.ValueType) (ir.IRValue, error) {
	if a == nil {
		return v, nil
	}
	return a.ToDatabase(v, vt)
}

// FromDatabase applies a (possibly nil) adapter.
func FromDatabase(a TypeAdapter, v ir.IRValue, vt ir.ValueType) (ir.IRValue, error) {
	if a == nil {
		return v, nil
	}
	return a.FromDatabase(v, vt)
}

// Lookup resolves an adapter named in a schema declaration.
//
// Supported names:
//
//	boolean:<true>/<false>   CustomBoolean with string sentinels, e.g. boolean:S/N
//	boolean:1/0              CustomBoolean with integer sentinels
//
// An empty name yields a nil adapter.
func Lookup(name string) (TypeAdapter, error) {
	if name == "" {
		return nil, nil
	}
	kind, arg, ok := strings.Cut(name, ":")
	if !ok || kind != "boolean" {
		return nil, fmt.Errorf("unknown adapter %q", name)
	}
	t, f, ok := strings.Cut(arg, "/")
	if !ok || t == "" || f == "" || t == f {
		return nil, fmt.Errorf("adapter %q: expected boolean:<true>/<false>", name)
	}
	if t == "1" && f == "0" {
		return NewCustomBoolean(ir.IRInt(1), ir.IRInt(0)), nil
	}
	return NewCustomBoolean(ir.IRString(t), ir.IRString(f)), nil
}
