package query

import (
	"slices"

	"github.com/roach88/tsq/internal/deps"
	"github.com/roach88/tsq/internal/expr"
	"github.com/roach88/tsq/internal/ir"
	"github.com/roach88/tsq/internal/projection"
	"github.com/roach88/tsq/internal/schema"
)

// Value binds v as a parameter typed and adapted like col.
func Value(col *expr.Column, v ir.IRValue) expr.Node {
	c := expr.NewConst(v, col.ValueType())
	c.Adapt = col.Adapter()
	return c
}

// Set is shorthand for an Assignment.
func Set(col *expr.Column, value expr.Node) Assignment {
	return Assignment{Column: col, Value: value}
}

// InsertBuilder assembles an Insert.
type InsertBuilder struct {
	reg       *schema.Registry
	ins       Insert
	returning []projection.Entry
}

// InsertInto starts an insert into rel.
func InsertInto(reg *schema.Registry, rel ir.RelationID) *InsertBuilder {
	return &InsertBuilder{reg: reg, ins: Insert{Into: rel}}
}

// Values adds one row.
func (b *InsertBuilder) Values(assignments ...Assignment) *InsertBuilder {
	b.ins.Rows = append(b.ins.Rows, slices.Clone(assignments))
	return b
}

// Returning projects values of the inserted row.
func (b *InsertBuilder) Returning(entries ...projection.Entry) *InsertBuilder {
	b.returning = append(b.returning, entries...)
	return b
}

// ReturningLastInsertedID returns the autogenerated primary key.
func (b *InsertBuilder) ReturningLastInsertedID() *InsertBuilder {
	b.ins.ReturningLastInsertedID = true
	return b
}

// Build validates the insert and returns it.
func (b *InsertBuilder) Build() (*Insert, error) {
	ins := b.ins
	ins.Rows = slices.Clone(b.ins.Rows)

	rel, err := lookup(b.reg, ins.Into)
	if err != nil {
		return nil, err
	}
	if rel.Kind() != ir.KindTable {
		return nil, buildErr(ErrCodeInvalidAssignment, "cannot insert into view %s", rel.RefName())
	}
	if len(ins.Rows) == 0 {
		return nil, buildErr(ErrCodeMissingValue, "insert into %s has no rows", rel.RefName())
	}

	first := ins.Rows[0]
	for i, row := range ins.Rows {
		if err := checkAssignments(rel, row); err != nil {
			return nil, err
		}
		if !sameColumns(first, row) {
			return nil, buildErr(ErrCodeInvalidAssignment, "row %d of insert into %s assigns different columns than row 1", i+1, rel.RefName())
		}
	}

	assigned := make(map[*expr.Column]bool, len(first))
	for _, a := range first {
		assigned[a.Column] = true
	}
	for _, c := range rel.Columns() {
		if assigned[c] || c.Optional() != ir.Required || c.HasDefault() || c.IsComputed() {
			continue
		}
		return nil, buildErr(ErrCodeMissingValue, "insert into %s: required column %q has no value", rel.RefName(), c.Property())
	}

	if ins.ReturningLastInsertedID {
		pk, ok := rel.PrimaryKey()
		if !ok || !pk.IsAutogeneratedPrimaryKey() {
			return nil, buildErr(ErrCodeInvalidAssignment, "%s has no autogenerated primary key", rel.RefName())
		}
		if len(b.returning) > 0 {
			return nil, buildErr(ErrCodeInvalidAssignment, "insert cannot return both a projection and the last inserted id")
		}
	}

	if ins.Returning, err = returning(b.returning, ir.NewRelationSet(ins.Into)); err != nil {
		return nil, err
	}
	return &ins, nil
}

// UpdateBuilder assembles an Update.
type UpdateBuilder struct {
	reg       *schema.Registry
	upd       Update
	allowAll  bool
	returning []projection.Entry
}

// UpdateTable starts an update of rel.
func UpdateTable(reg *schema.Registry, rel ir.RelationID) *UpdateBuilder {
	return &UpdateBuilder{reg: reg, upd: Update{Table: rel}}
}

// Set adds assignments.
func (b *UpdateBuilder) Set(assignments ...Assignment) *UpdateBuilder {
	b.upd.Set = append(b.upd.Set, assignments...)
	return b
}

// Where conjoins predicates with any previous condition.
func (b *UpdateBuilder) Where(preds ...expr.Node) *UpdateBuilder {
	b.upd.Where = expr.And(append([]expr.Node{b.upd.Where}, preds...)...)
	return b
}

// AllowingNoWhere permits updating every row.
func (b *UpdateBuilder) AllowingNoWhere() *UpdateBuilder {
	b.allowAll = true
	return b
}

// Returning projects values of the updated rows. Columns of the table's
// old-values companion return the values before the update.
func (b *UpdateBuilder) Returning(entries ...projection.Entry) *UpdateBuilder {
	b.returning = append(b.returning, entries...)
	return b
}

// Build validates the update and returns it.
func (b *UpdateBuilder) Build() (*Update, error) {
	upd := b.upd
	upd.Set = slices.Clone(b.upd.Set)

	rel, err := lookup(b.reg, upd.Table)
	if err != nil {
		return nil, err
	}
	if rel.Kind() != ir.KindTable {
		return nil, buildErr(ErrCodeInvalidAssignment, "cannot update view %s", rel.RefName())
	}
	if len(upd.Set) == 0 {
		return nil, buildErr(ErrCodeMissingValue, "update of %s sets no columns", rel.RefName())
	}
	if err := checkAssignments(rel, upd.Set); err != nil {
		return nil, err
	}
	if err := checkMutationWhere(rel, upd.Where, b.allowAll); err != nil {
		return nil, err
	}

	allowed := ir.NewRelationSet(upd.Table)
	if old, ok := b.reg.OldValuesOf(upd.Table); ok {
		allowed.Add(old)
	}
	if upd.Returning, err = returning(b.returning, allowed); err != nil {
		return nil, err
	}
	return &upd, nil
}

// DeleteBuilder assembles a Delete.
type DeleteBuilder struct {
	reg       *schema.Registry
	del       Delete
	allowAll  bool
	returning []projection.Entry
}

// DeleteFrom starts a delete from rel.
func DeleteFrom(reg *schema.Registry, rel ir.RelationID) *DeleteBuilder {
	return &DeleteBuilder{reg: reg, del: Delete{From: rel}}
}

// Where conjoins predicates with any previous condition.
func (b *DeleteBuilder) Where(preds ...expr.Node) *DeleteBuilder {
	b.del.Where = expr.And(append([]expr.Node{b.del.Where}, preds...)...)
	return b
}

// AllowingNoWhere permits deleting every row.
func (b *DeleteBuilder) AllowingNoWhere() *DeleteBuilder {
	b.allowAll = true
	return b
}

// Returning projects values of the deleted rows.
func (b *DeleteBuilder) Returning(entries ...projection.Entry) *DeleteBuilder {
	b.returning = append(b.returning, entries...)
	return b
}

// Build validates the delete and returns it.
func (b *DeleteBuilder) Build() (*Delete, error) {
	del := b.del

	rel, err := lookup(b.reg, del.From)
	if err != nil {
		return nil, err
	}
	if rel.Kind() != ir.KindTable {
		return nil, buildErr(ErrCodeInvalidAssignment, "cannot delete from view %s", rel.RefName())
	}
	if err := checkMutationWhere(rel, del.Where, b.allowAll); err != nil {
		return nil, err
	}
	if del.Returning, err = returning(b.returning, ir.NewRelationSet(del.From)); err != nil {
		return nil, err
	}
	return &del, nil
}

func checkAssignments(rel *schema.Relation, row []Assignment) error {
	seen := make(map[*expr.Column]bool, len(row))
	for _, a := range row {
		switch {
		case a.Column == nil:
			return buildErr(ErrCodeInvalidAssignment, "assignment without column on %s", rel.RefName())
		case a.Column.Relation() != rel.ID():
			return buildErr(ErrCodeInvalidAssignment, "column %q does not belong to %s", a.Column.Property(), rel.RefName())
		case a.Column.IsComputed():
			return buildErr(ErrCodeInvalidAssignment, "column %q of %s is computed", a.Column.Property(), rel.RefName())
		case seen[a.Column]:
			return buildErr(ErrCodeInvalidAssignment, "column %q of %s is assigned twice", a.Column.Property(), rel.RefName())
		case a.Value == nil:
			return buildErr(ErrCodeMissingValue, "column %q of %s has no value", a.Column.Property(), rel.RefName())
		}
		seen[a.Column] = true
		if err := checkRefs(ir.NewRelationSet(rel.ID()), false, deps.Relations(a.Value), "value of %q", a.Column.Property()); err != nil {
			return err
		}
	}
	return nil
}

func sameColumns(a, b []Assignment) bool {
	return slices.EqualFunc(a, b, func(x, y Assignment) bool { return x.Column == y.Column })
}

func checkMutationWhere(rel *schema.Relation, where expr.Node, allowAll bool) error {
	if where == nil {
		if allowAll {
			return nil
		}
		return buildErr(ErrCodeMissingWhere, "statement on %s has no where condition", rel.RefName())
	}
	return checkRefs(ir.NewRelationSet(rel.ID()), false, deps.Relations(where), "where condition")
}

func returning(entries []projection.Entry, allowed ir.RelationSet) (projection.Group, error) {
	if len(entries) == 0 {
		return projection.Group{}, nil
	}
	g, err := projection.NewGroup(entries...)
	if err != nil {
		return projection.Group{}, projectionError(err)
	}
	for _, p := range g.Flatten() {
		if err := checkRefs(allowed, false, deps.Relations(p.Node), "returning %q", p.String()); err != nil {
			return projection.Group{}, err
		}
	}
	return g, nil
}
