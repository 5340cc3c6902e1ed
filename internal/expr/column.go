package expr

import (
	"errors"
	"fmt"

	"github.com/roach88/tsq/internal/adapter"
	"github.com/roach88/tsq/internal/ir"
)

// Capability is a relational property attached to a column declaration.
type Capability uint8

const (
	CapHasDefault Capability = 1 << iota
	CapPrimaryKey
	CapAutogeneratedPrimaryKey
	CapComputed
)

// Column is an expression bound to a declared relation.
//
// Columns are created by ColumnDef.Build when a relation is declared and are
// immutable afterwards. Derived copies (a different owner or OptionalTag) are
// produced by Rebind and WithOptional.
type Column struct {
	relation   ir.RelationID
	property   string
	name       string
	valueType  ir.ValueType
	optional   ir.OptionalTag
	adapter    adapter.TypeAdapter
	aggregated *AggregatedArray
	caps       Capability
	sequence   string
}

// Relation returns the id of the owning relation.
func (c *Column) Relation() ir.RelationID { return c.relation }

// Property is the name under which the column is exposed on its relation.
func (c *Column) Property() string { return c.property }

// Name is the database column name.
func (c *Column) Name() string { return c.name }

// Key identifies the column inside a ColumnSet.
func (c *Column) Key() ColumnKey { return ColumnKey{Relation: c.relation, Name: c.name} }

func (c *Column) ValueType() ir.ValueType { return c.valueType }
func (c *Column) Optional() ir.OptionalTag { return c.optional }
func (c *Column) Adapter() adapter.TypeAdapter { return c.adapter }
func (c *Column) Aggregation() *AggregatedArray { return c.aggregated }
func (c *Column) HasDefault() bool { return c.caps&CapHasDefault != 0 }
func (c *Column) IsPrimaryKey() bool { return c.caps&CapPrimaryKey != 0 }
func (c *Column) IsAutogeneratedPrimaryKey() bool { return c.caps&CapAutogeneratedPrimaryKey != 0 }
func (c *Column) IsComputed() bool { return c.caps&CapComputed != 0 }
func (c *Column) SequenceName() string { return c.sequence }
func (c *Column) Has(capability Capability) bool { return c.caps&capability == capability }
func (c *Column) operands() []Node { return nil }

func (c *Column) withOptional(tag ir.OptionalTag) Node {
	cp := *c
	cp.optional = tag
	return &cp
}

// RegisterRelations adds the owning relation to out.
func (c *Column) RegisterRelations(out ir.RelationSet) {
	out.Add(c.relation)
}

// RegisterRequiredColumns adds c to out iff its owning relation is in onlyFor.
func (c *Column) RegisterRequiredColumns(out ColumnSet, onlyFor ir.RelationSet) {
	if onlyFor.Has(c.relation) {
		out.Add(c)
	}
}

// OldValuesResolver finds the old-values companion of a relation.
type OldValuesResolver interface {
	OldValuesOf(id ir.RelationID) (ir.RelationID, bool)
}

// OldValues returns the old-values companion of the owning relation, if the
// relation has one.
func (c *Column) OldValues(r OldValuesResolver) (ir.RelationID, bool) {
	return r.OldValuesOf(c.relation)
}

// Rebind returns a copy of c owned by rel and tagged with tag. Capabilities
// are preserved.
func (c *Column) Rebind(rel ir.RelationID, tag ir.OptionalTag) *Column {
	cp := *c
	cp.relation = rel
	cp.optional = tag
	return &cp
}

// FromNode declares a column of rel whose value is produced by n, as when a
// view is declared over a select. The adapter is re-wrapped so a custom
// boolean is not treated as one twice; aggregated-array metadata is kept.
func FromNode(rel ir.RelationID, name string, n Node, tag ir.OptionalTag) *Column {
	return &Column{
		relation:   rel,
		property:   name,
		name:       name,
		valueType:  n.ValueType(),
		optional:   tag,
		adapter:    adapter.ForRedeclaration(n.Adapter()),
		aggregated: n.Aggregation(),
	}
}

// PrimaryKeyColumn is a column statically known to be part of the primary key.
type PrimaryKeyColumn struct{ *Column }

// ColumnWithDefaultValue is a column that may be omitted on insert.
type ColumnWithDefaultValue struct{ *Column }

// ComputedColumn is a column that cannot be written.
type ComputedColumn struct{ *Column }

// AsPrimaryKey returns the primary-key view of c.
func (c *Column) AsPrimaryKey() (PrimaryKeyColumn, bool) {
	if !c.IsPrimaryKey() {
		return PrimaryKeyColumn{}, false
	}
	return PrimaryKeyColumn{c}, true
}

// AsColumnWithDefaultValue returns the default-bearing view of c.
func (c *Column) AsColumnWithDefaultValue() (ColumnWithDefaultValue, bool) {
	if !c.HasDefault() {
		return ColumnWithDefaultValue{}, false
	}
	return ColumnWithDefaultValue{c}, true
}

// AsComputed returns the computed view of c.
func (c *Column) AsComputed() (ComputedColumn, bool) {
	if !c.IsComputed() {
		return ComputedColumn{}, false
	}
	return ComputedColumn{c}, true
}

// ColumnDef is an immutable column declaration. Every upgrade method returns
// a new ColumnDef; applying an upgrade twice is harmless.
//
//	id := expr.Def("id", ir.TypeInt).AutogeneratedPrimaryKey()
//	birthday := expr.Def("birthday", ir.TypeLocalDate).Optional()
type ColumnDef struct {
	property   string
	name       string
	valueType  ir.ValueType
	optional   ir.OptionalTag
	adapter    adapter.TypeAdapter
	aggregated *AggregatedArray
	caps       Capability
	sequence   string
}

// Def starts a required column declaration named name.
func Def(name string, vt ir.ValueType) ColumnDef {
	return ColumnDef{property: name, name: name, valueType: vt}
}

// Property sets the property name the column is exposed under.
func (d ColumnDef) Property(p string) ColumnDef {
	d.property = p
	return d
}

// WithAdapter attaches a type adapter.
func (d ColumnDef) WithAdapter(a adapter.TypeAdapter) ColumnDef {
	d.adapter = a
	return d
}

// WithAggregation attaches aggregated-array metadata.
func (d ColumnDef) WithAggregation(a *AggregatedArray) ColumnDef {
	d.aggregated = a
	return d
}

func (d ColumnDef) Optional() ColumnDef {
	d.optional = ir.Optional
	return d
}

func (d ColumnDef) WithDefault() ColumnDef {
	d.caps |= CapHasDefault
	return d
}

func (d ColumnDef) OptionalWithDefault() ColumnDef {
	return d.Optional().WithDefault()
}

func (d ColumnDef) PrimaryKey() ColumnDef {
	d.caps |= CapPrimaryKey
	return d
}

func (d ColumnDef) AutogeneratedPrimaryKey() ColumnDef {
	d.caps |= CapHasDefault | CapPrimaryKey | CapAutogeneratedPrimaryKey
	return d
}

func (d ColumnDef) AutogeneratedPrimaryKeyBySequence(sequence string) ColumnDef {
	d = d.AutogeneratedPrimaryKey()
	d.sequence = sequence
	return d
}

func (d ColumnDef) Computed() ColumnDef {
	d.caps |= CapComputed
	return d
}

func (d ColumnDef) OptionalComputed() ColumnDef {
	return d.Optional().Computed()
}

// Name returns the database column name of the declaration.
func (d ColumnDef) Name() string { return d.name }

// PropertyName returns the property name of the declaration.
func (d ColumnDef) PropertyName() string { return d.property }

// IsPrimaryKey reports whether the declaration is part of the primary key.
func (d ColumnDef) IsPrimaryKey() bool { return d.caps&CapPrimaryKey != 0 }

// SequenceName returns the backing sequence, if any.
func (d ColumnDef) SequenceName() string { return d.sequence }

// ErrInvalidColumn is returned by Build for malformed declarations.
var ErrInvalidColumn = errors.New("invalid column declaration")

// AdapterMismatchError reports a declared value type whose cardinality
// disagrees with the attached type adapter.
type AdapterMismatchError struct {
	Column    string
	ValueType ir.ValueType
	Err       error
}

func (e *AdapterMismatchError) Error() string {
	return fmt.Sprintf("column %q: type adapter mismatch: %v", e.Column, e.Err)
}

func (e *AdapterMismatchError) Unwrap() error { return e.Err }

// Build creates the column owned by rel. It fails fast when the declaration
// is malformed or the adapter disagrees with the value type.
func (d ColumnDef) Build(rel ir.RelationID) (*Column, error) {
	if d.name == "" || d.property == "" {
		return nil, fmt.Errorf("%w: empty name", ErrInvalidColumn)
	}
	if !d.valueType.Valid() {
		return nil, fmt.Errorf("%w: column %q: unknown value type %q", ErrInvalidColumn, d.name, d.valueType)
	}
	if d.sequence != "" && d.caps&CapPrimaryKey == 0 {
		return nil, fmt.Errorf("%w: column %q: sequence requires a primary key", ErrInvalidColumn, d.name)
	}
	if err := adapter.CheckCardinality(d.valueType, d.adapter); err != nil {
		return nil, &AdapterMismatchError{Column: d.name, ValueType: d.valueType, Err: err}
	}
	return &Column{
		relation:   rel,
		property:   d.property,
		name:       d.name,
		valueType:  d.valueType,
		optional:   d.optional,
		adapter:    d.adapter,
		aggregated: d.aggregated,
		caps:       d.caps,
		sequence:   d.sequence,
	}, nil
}
