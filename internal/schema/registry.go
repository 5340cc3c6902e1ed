package schema

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/tsq/internal/adapter"
	"github.com/roach88/tsq/internal/expr"
	"github.com/roach88/tsq/internal/ir"
	"github.com/roach88/tsq/internal/nullability"
	"github.com/roach88/tsq/internal/projection"
)

// Registry errors.
var (
	ErrFrozen            = errors.New("registry is frozen")
	ErrDuplicateRelation = errors.New("duplicate relation")
	ErrUnknownRelation   = errors.New("unknown relation")
	ErrInvalidRelation   = errors.New("invalid relation")
)

// Registry owns every declared relation. Declarations happen during
// initialization; after Freeze the registry is read-only and safe for
// concurrent use without further coordination by callers.
type Registry struct {
	mu        sync.RWMutex
	relations []*Relation // index = id-1
	byName    map[string]ir.RelationID
	frozen    bool
	logger    *slog.Logger
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithLogger sets the logger used for declaration events.
func WithLogger(logger *slog.Logger) RegistryOption {
	return func(r *Registry) {
		r.logger = logger
	}
}

// NewRegistry returns an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		byName: make(map[string]ir.RelationID),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Freeze makes the registry read-only. Further declarations fail with
// ErrFrozen.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

// DeclareTable declares a table with the given columns, in order.
func (r *Registry) DeclareTable(name string, defs ...expr.ColumnDef) (*Relation, error) {
	return r.declare(name, "", ir.KindTable, defs, true)
}

// DeclareTableAs declares a table referenced under alias.
func (r *Registry) DeclareTableAs(name, alias string, defs ...expr.ColumnDef) (*Relation, error) {
	return r.declare(name, alias, ir.KindTable, defs, true)
}

// DeclareNamedView declares an existing database view with flat columns.
func (r *Registry) DeclareNamedView(name string, defs ...expr.ColumnDef) (*Relation, error) {
	return r.declare(name, "", ir.KindView, defs, true)
}

func (r *Registry) declare(name, alias string, kind ir.RelationKind, defs []expr.ColumnDef, publish bool) (*Relation, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: empty name", ErrInvalidRelation)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkDeclarable(refName(name, alias)); err != nil {
		return nil, err
	}

	id := ir.RelationID(len(r.relations) + 1)
	rel := &Relation{id: id, name: name, alias: alias, kind: kind}

	var pk, seq int
	entries := make([]projection.Entry, 0, len(defs))
	for _, def := range defs {
		c, err := def.Build(id)
		if err != nil {
			return nil, fmt.Errorf("relation %q: %w", name, err)
		}
		if _, dup := rel.Column(c.Property()); dup {
			return nil, fmt.Errorf("%w: relation %q: duplicate property %q", ErrInvalidRelation, name, c.Property())
		}
		if c.IsPrimaryKey() {
			pk++
		}
		if c.SequenceName() != "" {
			seq++
		}
		rel.columns = append(rel.columns, c)
		entries = append(entries, projection.Value(c.Property(), c))
	}
	if pk > 1 {
		return nil, fmt.Errorf("%w: relation %q: more than one primary key column", ErrInvalidRelation, name)
	}
	if seq > 1 {
		return nil, fmt.Errorf("%w: relation %q: more than one sequence", ErrInvalidRelation, name)
	}

	shape, err := projection.NewGroup(entries...)
	if err != nil {
		return nil, fmt.Errorf("%w: relation %q: %w", ErrInvalidRelation, name, err)
	}
	rel.shape = shape

	r.add(rel, publish)
	return rel, nil
}

// DeclareView declares a view whose columns are the leaves of shape, as
// when a select is reused as a relation. Top-level leaves keep their tags;
// nested groups are resolved by the nullability rules first. Nested column
// names are the dotted path of the leaf.
func (r *Registry) DeclareView(name string, shape projection.Group) (*Relation, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: empty name", ErrInvalidRelation)
	}
	if _, err := projection.NewGroup(shape.Entries()...); err != nil {
		return nil, fmt.Errorf("%w: view %q: %w", ErrInvalidRelation, name, err)
	}
	if shape.Len() == 0 {
		return nil, fmt.Errorf("%w: view %q: no columns", ErrInvalidRelation, name)
	}

	// Resolve before locking: the rules consult this registry.
	resolved := nullability.Resolve(shape, r)

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkDeclarable(name); err != nil {
		return nil, err
	}

	id := ir.RelationID(len(r.relations) + 1)
	rel := &Relation{id: id, name: name, kind: ir.KindView}
	rel.shape = r.viewGroup(rel, resolved, "")

	r.add(rel, true)
	return rel, nil
}

func (r *Registry) viewGroup(rel *Relation, g projection.Group, prefix string) projection.Group {
	return g.MapLeaves(
		func(name string, l projection.Leaf) projection.Leaf {
			c := expr.FromNode(rel.id, prefix+name, l.Node, l.Node.Optional())
			rel.columns = append(rel.columns, c)
			return projection.Leaf{Node: c}
		},
		func(name string, sub projection.Group) projection.Group {
			return r.viewGroup(rel, sub, prefix+name+".")
		},
	)
}

// ForUseInLeftJoin derives a companion of id whose columns are all reachable
// only through an outer join: required columns become originallyRequired.
// The companion is referenced under alias, or under the base name when
// alias is empty.
func (r *Registry) ForUseInLeftJoin(id ir.RelationID, alias string) (*Relation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	base, err := r.get(id)
	if err != nil {
		return nil, err
	}
	if alias != "" {
		if err := r.checkDeclarable(alias); err != nil {
			return nil, err
		}
	} else if r.frozen {
		return nil, ErrFrozen
	}

	rel := base.derive(ir.RelationID(len(r.relations)+1), alias, ir.OptionalTag.OuterJoined)
	rel.leftJoin = true
	r.add(rel, true)
	return rel, nil
}

// WithOldValues declares the old-values companion of id, exposing the same
// columns as pre-mutation snapshots for use in RETURNING clauses. Declaring
// it twice returns the existing companion. Relation values obtained before
// the call do not see the companion; OldValuesOf always does.
func (r *Registry) WithOldValues(id ir.RelationID) (*Relation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	base, err := r.get(id)
	if err != nil {
		return nil, err
	}
	if existing, ok := base.OldValues(); ok {
		return r.relations[existing-1], nil
	}
	if r.frozen {
		return nil, ErrFrozen
	}
	if base.kind != ir.KindTable || base.snapshot {
		return nil, fmt.Errorf("%w: old values are only available for tables", ErrInvalidRelation)
	}

	rel := base.derive(ir.RelationID(len(r.relations)+1), OldValuesAlias, func(t ir.OptionalTag) ir.OptionalTag { return t })
	rel.snapshot = true
	r.add(rel, false)

	updated := *base
	updated.oldValues = rel.id
	r.relations[base.id-1] = &updated
	return rel, nil
}

// Declare declares a relation from a compiled schema-file declaration.
func (r *Registry) Declare(spec ir.RelationSpec) (*Relation, error) {
	defs := make([]expr.ColumnDef, 0, len(spec.Columns))
	for _, cs := range spec.Columns {
		def, err := columnDef(cs)
		if err != nil {
			return nil, fmt.Errorf("relation %q: %w", spec.Name, err)
		}
		defs = append(defs, def)
	}

	kind := spec.Kind
	switch kind {
	case "":
		kind = ir.KindTable
	case ir.KindTable, ir.KindView:
	default:
		return nil, fmt.Errorf("%w: relation %q: unknown kind %q", ErrInvalidRelation, spec.Name, kind)
	}

	// A relation declared for use in a left join is only reachable through
	// its companion; the base itself is not published by name.
	rel, err := r.declare(spec.Name, spec.Alias, kind, defs, !spec.ForUseInLeftJoin)
	if err != nil {
		return nil, err
	}
	if spec.ForUseInLeftJoin {
		if rel, err = r.ForUseInLeftJoin(rel.id, spec.Alias); err != nil {
			return nil, err
		}
	}
	if spec.OldValues {
		if _, err := r.WithOldValues(rel.id); err != nil {
			return nil, err
		}
		rel, _ = r.Relation(rel.id)
	}
	for _, alias := range spec.LeftJoinAliases {
		if _, err := r.ForUseInLeftJoin(rel.id, alias); err != nil {
			return nil, err
		}
	}

	r.logger.Debug("declared relation",
		"name", spec.Name,
		"ref", rel.RefName(),
		"kind", string(kind),
		"columns", len(rel.columns),
		"left_join", rel.leftJoin,
	)
	return rel, nil
}

// DeclareAll declares specs in order and stops at the first failure.
func (r *Registry) DeclareAll(specs []ir.RelationSpec) error {
	for _, spec := range specs {
		if _, err := r.Declare(spec); err != nil {
			return err
		}
	}
	return nil
}

func columnDef(cs ir.ColumnSpec) (expr.ColumnDef, error) {
	a, err := adapter.Lookup(cs.Adapter)
	if err != nil {
		return expr.ColumnDef{}, fmt.Errorf("column %q: %w", cs.Name, err)
	}
	def := expr.Def(cs.Name, cs.Type).WithAdapter(a)
	if cs.Property != "" {
		def = def.Property(cs.Property)
	}
	if cs.Optional {
		def = def.Optional()
	}
	if cs.HasDefault {
		def = def.WithDefault()
	}
	if cs.Computed {
		def = def.Computed()
	}
	switch {
	case cs.Sequence != "":
		def = def.AutogeneratedPrimaryKeyBySequence(cs.Sequence)
	case cs.Autogenerated:
		def = def.AutogeneratedPrimaryKey()
	case cs.PrimaryKey:
		def = def.PrimaryKey()
	}
	return def, nil
}

// Relation returns the relation with the given id.
func (r *Registry) Relation(id ir.RelationID) (*Relation, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rel, err := r.get(id)
	return rel, err == nil
}

// MustRelation is Relation that panics on an unknown id.
func (r *Registry) MustRelation(id ir.RelationID) *Relation {
	rel, ok := r.Relation(id)
	if !ok {
		panic(fmt.Sprintf("schema: %v: %v", ErrUnknownRelation, id))
	}
	return rel
}

// Lookup finds a relation by the name it is referenced under.
func (r *Registry) Lookup(ref string) (*Relation, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byName[ref]
	if !ok {
		return nil, false
	}
	return r.relations[id-1], true
}

// Relations returns every declared relation in declaration order.
func (r *Registry) Relations() []*Relation {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Relation, len(r.relations))
	copy(out, r.relations)
	return out
}

// IsForUseInLeftJoin implements nullability.LeftJoinLookup.
func (r *Registry) IsForUseInLeftJoin(id ir.RelationID) bool {
	rel, ok := r.Relation(id)
	return ok && rel.leftJoin
}

// OldValuesOf implements expr.OldValuesResolver.
func (r *Registry) OldValuesOf(id ir.RelationID) (ir.RelationID, bool) {
	rel, ok := r.Relation(id)
	if !ok {
		return ir.NoRelation, false
	}
	return rel.OldValues()
}

// get must be called with r.mu held.
func (r *Registry) get(id ir.RelationID) (*Relation, error) {
	if id.IsZero() || int(id) > len(r.relations) {
		return nil, fmt.Errorf("%w: %v", ErrUnknownRelation, id)
	}
	return r.relations[id-1], nil
}

// checkDeclarable must be called with r.mu held.
func (r *Registry) checkDeclarable(ref string) error {
	if r.frozen {
		return ErrFrozen
	}
	if _, exists := r.byName[ref]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateRelation, ref)
	}
	return nil
}

// add must be called with r.mu held. A published relation is reachable by
// Lookup unless its reference name is already taken.
func (r *Registry) add(rel *Relation, publish bool) {
	r.relations = append(r.relations, rel)
	ref := rel.RefName()
	if _, taken := r.byName[ref]; publish && !taken {
		r.byName[ref] = rel.id
	}
}

func refName(name, alias string) string {
	if alias != "" {
		return alias
	}
	return name
}

var (
	_ nullability.LeftJoinLookup = (*Registry)(nil)
	_ expr.OldValuesResolver     = (*Registry)(nil)
)
