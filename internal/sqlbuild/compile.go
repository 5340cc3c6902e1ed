package sqlbuild

import (
	"fmt"
	"strings"

	"github.com/roach88/tsq/internal/adapter"
	"github.com/roach88/tsq/internal/deps"
	"github.com/roach88/tsq/internal/expr"
	"github.com/roach88/tsq/internal/ir"
	"github.com/roach88/tsq/internal/nullability"
	"github.com/roach88/tsq/internal/projection"
	"github.com/roach88/tsq/internal/query"
	"github.com/roach88/tsq/internal/schema"
)

// ResultColumn describes one column of a rendered select list or RETURNING
// clause, in output order.
type ResultColumn struct {
	Path     []string            `json:"path"`
	Type     ir.ValueType        `json:"type"`
	Optional ir.OptionalTag      `json:"optional"`
	Adapter  adapter.TypeAdapter `json:"-"`

	// Aggregated columns hold a JSON array built from Aggregation.
	Aggregated  bool                  `json:"aggregated,omitempty"`
	Aggregation *expr.AggregatedArray `json:"-"`
}

// Name returns the dotted path, which is also the SQL column alias.
func (c ResultColumn) Name() string { return strings.Join(c.Path, ".") }

// Rendered is a compiled statement: text plus bound parameters, and the
// resolved shape of the rows it returns.
type Rendered struct {
	SQL     string
	Params  []any
	Columns []ResultColumn
	Shape   projection.Group
	// LastInsertID asks the runner to read the generated key from the
	// driver result instead of a RETURNING clause.
	LastInsertID bool
}

// Compiler compiles statements to parameterized SQL for one dialect.
//
// CRITICAL: All values are parameterized (never interpolated). The only
// inlined literals are JSON keys and custom boolean sentinels, both taken
// from declarations.
type Compiler struct {
	dialect Dialect
	reg     *schema.Registry
}

// NewCompiler creates a compiler for d over the relations of reg.
func NewCompiler(d Dialect, reg *schema.Registry) *Compiler {
	return &Compiler{dialect: d, reg: reg}
}

// Dialect returns the compiler's dialect.
func (c *Compiler) Dialect() Dialect { return c.dialect }

// Compile resolves the optionality of every projected value, then renders
// the statement.
func (c *Compiler) Compile(stmt query.Statement) (*Rendered, error) {
	if stmt == nil {
		return nil, fmt.Errorf("cannot compile nil statement")
	}
	r := &renderer{dialect: c.dialect, reg: c.reg, qualify: true}

	var (
		out *Rendered
		err error
	)
	switch s := stmt.(type) {
	case *query.Select:
		out, err = r.compileSelect(s)
	case *query.Insert:
		out, err = r.compileInsert(s)
	case *query.Update:
		out, err = r.compileUpdate(s)
	case *query.Delete:
		out, err = r.compileDelete(s)
	default:
		return nil, fmt.Errorf("unsupported statement type: %T", stmt)
	}
	if err != nil {
		return nil, err
	}
	out.Params = r.params
	return out, nil
}

func (r *renderer) compileSelect(sel *query.Select) (*Rendered, error) {
	sql, shape, err := r.selectSQL(sel)
	if err != nil {
		return nil, err
	}
	return &Rendered{SQL: sql, Shape: shape, Columns: resultColumns(shape)}, nil
}

// nestedSelect renders a subquery in parentheses. Column references inside
// are always qualified so outer references cannot be captured.
func (r *renderer) nestedSelect(stmt expr.Statement) (string, error) {
	sel, ok := stmt.(*query.Select)
	if !ok {
		return "", fmt.Errorf("unsupported subquery statement: %T", stmt)
	}
	qualify := r.qualify
	r.qualify = true
	defer func() { r.qualify = qualify }()

	sql, _, err := r.selectSQL(sel)
	if err != nil {
		return "", err
	}
	return "(" + sql + ")", nil
}

func (r *renderer) selectSQL(sel *query.Select) (string, projection.Group, error) {
	shape := nullability.Resolve(sel.Projection, r.reg)

	items, err := r.selectList(shape)
	if err != nil {
		return "", projection.Group{}, err
	}
	head := "SELECT "
	if sel.Distinct {
		head += "DISTINCT "
	}

	clauses := []string{head + items, "FROM " + r.relationRef(sel.From)}

	for _, j := range sel.RequiredJoins() {
		on, err := r.condition(j.On)
		if err != nil {
			return "", projection.Group{}, fmt.Errorf("compile join condition: %w", err)
		}
		kw := "JOIN "
		if j.Kind.IsLeft() {
			kw = "LEFT JOIN "
		}
		clauses = append(clauses, kw+r.relationRef(j.Relation)+" ON "+on)
	}

	if sel.Where != nil {
		where, err := r.condition(sel.Where)
		if err != nil {
			return "", projection.Group{}, fmt.Errorf("compile where: %w", err)
		}
		clauses = append(clauses, "WHERE "+where)
	}

	if len(sel.GroupBy) > 0 {
		parts := make([]string, 0, len(sel.GroupBy))
		for _, n := range sel.GroupBy {
			part, err := r.expr(n)
			if err != nil {
				return "", projection.Group{}, fmt.Errorf("compile group by: %w", err)
			}
			parts = append(parts, part)
		}
		clauses = append(clauses, "GROUP BY "+strings.Join(parts, ", "))
	}

	if sel.Having != nil {
		having, err := r.condition(sel.Having)
		if err != nil {
			return "", projection.Group{}, fmt.Errorf("compile having: %w", err)
		}
		clauses = append(clauses, "HAVING "+having)
	}

	if len(sel.OrderBy) > 0 {
		parts := make([]string, 0, len(sel.OrderBy))
		for _, o := range sel.OrderBy {
			item, err := r.orderItem(o)
			if err != nil {
				return "", projection.Group{}, fmt.Errorf("compile order by: %w", err)
			}
			parts = append(parts, item)
		}
		clauses = append(clauses, "ORDER BY "+strings.Join(parts, ", "))
	}

	clauses = append(clauses, r.dialect.LimitOffset(sel.Limit, sel.Offset))
	return joinSQL(clauses...), shape, nil
}

func (r *renderer) selectList(shape projection.Group) (string, error) {
	paths := shape.Flatten()
	items := make([]string, 0, len(paths))
	for _, p := range paths {
		value, err := r.expr(p.Node)
		if err != nil {
			return "", fmt.Errorf("compile %q: %w", p.String(), err)
		}
		items = append(items, value+" AS "+r.dialect.QuoteIdentifier(p.String()))
	}
	return strings.Join(items, ", "), nil
}

func (r *renderer) orderItem(o query.Order) (string, error) {
	var (
		item string
		err  error
	)
	if o.Property != "" {
		item = r.dialect.QuoteIdentifier(o.Property)
	} else if item, err = r.expr(o.Expr); err != nil {
		return "", err
	}

	nulls := ""
	if first, explicit := o.Direction.NullsFirst(); explicit {
		nulls = "last"
		if first {
			nulls = "first"
		}
	}
	return r.dialect.OrderItem(item, o.Direction.Descending(), nulls), nil
}

func (r *renderer) relationRef(id ir.RelationID) string {
	rel := r.reg.MustRelation(id)
	ref := r.dialect.QuoteIdentifier(rel.Name())
	if rel.Alias() != "" {
		ref += " AS " + r.dialect.QuoteIdentifier(rel.Alias())
	}
	return ref
}

func resultColumns(shape projection.Group) []ResultColumn {
	paths := shape.Flatten()
	cols := make([]ResultColumn, 0, len(paths))
	for _, p := range paths {
		cols = append(cols, ResultColumn{
			Path:        p.Names,
			Type:        p.Node.ValueType(),
			Optional:    p.Node.Optional(),
			Adapter:     p.Node.Adapter(),
			Aggregated:  p.Node.Aggregation() != nil,
			Aggregation: p.Node.Aggregation(),
		})
	}
	return cols
}

func (r *renderer) returning(g projection.Group) (string, projection.Group, error) {
	if g.Len() == 0 {
		return "", projection.Group{}, nil
	}
	if !r.dialect.SupportsReturning() {
		return "", projection.Group{}, &UnsupportedError{Dialect: r.dialect.Name(), Feature: "RETURNING"}
	}
	shape := nullability.Resolve(g, r.reg)
	items, err := r.selectList(shape)
	if err != nil {
		return "", projection.Group{}, err
	}
	return "RETURNING " + items, shape, nil
}

func (r *renderer) compileInsert(ins *query.Insert) (*Rendered, error) {
	rel := r.reg.MustRelation(ins.Into)
	r.qualify = false
	q := r.dialect.QuoteIdentifier

	var columns []*expr.Column
	for _, a := range ins.Rows[0] {
		columns = append(columns, a.Column)
	}

	// An unassigned sequence-backed key is filled with nextval where the
	// dialect has sequences; elsewhere the database generates it.
	var sequence string
	pk, hasPK := rel.PrimaryKey()
	if hasPK && pk.SequenceName() != "" && !assigns(ins.Rows[0], pk.Column) {
		if next, err := r.dialect.Sequence(pk.SequenceName(), true); err == nil {
			sequence = next
			columns = append([]*expr.Column{pk.Column}, columns...)
		}
	}

	out := &Rendered{}
	var sql string
	if len(columns) == 0 {
		if r.dialect.Name() == "mysql" {
			sql = "INSERT INTO " + q(rel.Name()) + " () VALUES ()"
		} else {
			sql = "INSERT INTO " + q(rel.Name()) + " DEFAULT VALUES"
		}
	} else {
		names := make([]string, len(columns))
		for i, c := range columns {
			names[i] = q(c.Name())
		}
		rows := make([]string, 0, len(ins.Rows))
		for _, row := range ins.Rows {
			var values []string
			if sequence != "" {
				values = append(values, sequence)
			}
			for _, a := range row {
				v, err := r.expr(a.Value)
				if err != nil {
					return nil, fmt.Errorf("compile value of %q: %w", a.Column.Property(), err)
				}
				values = append(values, v)
			}
			rows = append(rows, "("+strings.Join(values, ", ")+")")
		}
		sql = "INSERT INTO " + q(rel.Name()) + " (" + strings.Join(names, ", ") + ") VALUES " + strings.Join(rows, ", ")
	}

	switch {
	case ins.ReturningLastInsertedID:
		shape := projection.MustGroup(projection.Value(pk.Property(), pk.Column))
		out.Shape = shape
		out.Columns = resultColumns(shape)
		if r.dialect.SupportsReturning() {
			sql += " RETURNING " + q(pk.Name()) + " AS " + q(pk.Property())
		} else {
			out.LastInsertID = true
		}
	case ins.Returning.Len() > 0:
		clause, shape, err := r.returning(ins.Returning)
		if err != nil {
			return nil, err
		}
		sql += " " + clause
		out.Shape = shape
		out.Columns = resultColumns(shape)
	}

	out.SQL = sql
	return out, nil
}

func assigns(row []query.Assignment, c *expr.Column) bool {
	for _, a := range row {
		if a.Column == c {
			return true
		}
	}
	return false
}

func (r *renderer) compileUpdate(upd *query.Update) (*Rendered, error) {
	rel := r.reg.MustRelation(upd.Table)
	q := r.dialect.QuoteIdentifier

	oldID, hasOld := rel.OldValues()
	usesOld := hasOld && deps.FieldRelations(upd.Returning).Has(oldID)
	if usesOld && !r.dialect.SupportsOldValues() {
		return nil, &UnsupportedError{Dialect: r.dialect.Name(), Feature: "old values"}
	}
	r.qualify = usesOld

	sets := make([]string, 0, len(upd.Set))
	for _, a := range upd.Set {
		v, err := r.expr(a.Value)
		if err != nil {
			return nil, fmt.Errorf("compile value of %q: %w", a.Column.Property(), err)
		}
		sets = append(sets, q(a.Column.Name())+" = "+v)
	}
	clauses := []string{"UPDATE " + q(rel.Name()) + " SET " + strings.Join(sets, ", ")}

	where := upd.Where
	if usesOld {
		pk, ok := rel.PrimaryKey()
		if !ok {
			return nil, fmt.Errorf("old values of %s require a primary key", rel.RefName())
		}
		old := r.reg.MustRelation(oldID)
		clauses = append(clauses, "FROM "+r.relationRef(oldID))
		where = expr.And(expr.Eq(old.MustColumn(pk.Property()), pk.Column), where)
	}
	if where != nil {
		cond, err := r.condition(where)
		if err != nil {
			return nil, fmt.Errorf("compile where: %w", err)
		}
		clauses = append(clauses, "WHERE "+cond)
	}

	clause, shape, err := r.returning(upd.Returning)
	if err != nil {
		return nil, err
	}
	clauses = append(clauses, clause)

	return &Rendered{SQL: joinSQL(clauses...), Shape: shape, Columns: resultColumns(shape)}, nil
}

func (r *renderer) compileDelete(del *query.Delete) (*Rendered, error) {
	rel := r.reg.MustRelation(del.From)
	r.qualify = false

	clauses := []string{"DELETE FROM " + r.dialect.QuoteIdentifier(rel.Name())}
	if del.Where != nil {
		cond, err := r.condition(del.Where)
		if err != nil {
			return nil, fmt.Errorf("compile where: %w", err)
		}
		clauses = append(clauses, "WHERE "+cond)
	}

	clause, shape, err := r.returning(del.Returning)
	if err != nil {
		return nil, err
	}
	clauses = append(clauses, clause)

	return &Rendered{SQL: joinSQL(clauses...), Shape: shape, Columns: resultColumns(shape)}, nil
}
