package harness

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/tsq/internal/expr"
	"github.com/roach88/tsq/internal/ir"
	"github.com/roach88/tsq/internal/projection"
	"github.com/roach88/tsq/internal/query"
	"github.com/roach88/tsq/internal/schema"
)

// Operand syntax
//
// A YAML string is a column reference "relation.property". Numbers and
// booleans are literals; string literals are written {val: text}. Any
// other expression is a mapping with a single operator key:
//
//	{eq: [customer.companyId, company.id]}
//	{and: [{gt: [customer.id, 10]}, {isNotNull: customer.birthday}]}
//	{count: customer.id}
//	{old: customer.firstName}
//	{exists: {from: customer, where: ..., select: {id: customer.id}}}
//
// In a select or returning mapping, a mapping value whose single key is an
// operator is an expression; any other mapping is a nested object.

var binaryOps = map[string]func(a, b expr.Node) *expr.Binary{
	"eq":                    expr.Eq,
	"ne":                    expr.Ne,
	"lt":                    expr.Lt,
	"le":                    expr.Le,
	"gt":                    expr.Gt,
	"ge":                    expr.Ge,
	"is":                    expr.Is,
	"isNot":                 expr.IsNot,
	"equalsInsensitive":     expr.EqualsInsensitive,
	"notEqualsInsensitive":  expr.NotEqualsInsensitive,
	"like":                  expr.Like,
	"notLike":               expr.NotLike,
	"startsWith":            expr.StartsWith,
	"endsWith":              expr.EndsWith,
	"contains":              expr.Contains,
	"startsWithInsensitive": expr.StartsWithInsensitive,
	"endsWithInsensitive":   expr.EndsWithInsensitive,
	"containsInsensitive":   expr.ContainsInsensitive,
	"add":                   expr.Add,
	"sub":                   expr.Sub,
	"mul":                   expr.Mul,
	"div":                   expr.Div,
	"mod":                   expr.Mod,
}

var unaryOps = map[string]func(n expr.Node) *expr.Unary{
	"not":       expr.Not,
	"negate":    expr.Negate,
	"abs":       expr.Abs,
	"length":    expr.Length,
	"lower":     expr.Lower,
	"upper":     expr.Upper,
	"trim":      expr.Trim,
	"isNull":    expr.IsNull,
	"isNotNull": expr.IsNotNull,
}

var aggregateOps = map[string]func(n expr.Node) *expr.Aggregate{
	"count":         expr.Count,
	"countDistinct": expr.CountDistinct,
	"sum":           expr.Sum,
	"min":           expr.Min,
	"max":           expr.Max,
	"avg":           expr.Avg,
}

var variadicOps = map[string]func(nodes ...expr.Node) expr.Node{
	"and": expr.And,
	"or":  expr.Or,
}

// otherOps are operators handled directly by operand.
var otherOps = map[string]bool{
	"val":       true,
	"countAll":  true,
	"coalesce":  true,
	"concat":    true,
	"old":       true,
	"exists":    true,
	"notExists": true,
}

func isOperator(key string) bool {
	if otherOps[key] {
		return true
	}
	if _, ok := binaryOps[key]; ok {
		return true
	}
	if _, ok := unaryOps[key]; ok {
		return true
	}
	if _, ok := aggregateOps[key]; ok {
		return true
	}
	_, ok := variadicOps[key]
	return ok
}

// operatorOf returns the operator and argument of a single-key mapping
// whose key is an operator.
func operatorOf(n *yaml.Node) (string, *yaml.Node, bool) {
	if n.Kind != yaml.MappingNode || len(n.Content) != 2 {
		return "", nil, false
	}
	key := n.Content[0].Value
	if !isOperator(key) {
		return "", nil, false
	}
	return key, n.Content[1], true
}

// builder turns a QuerySpec into a statement over one registry.
type builder struct {
	reg *schema.Registry
}

func newBuilder(reg *schema.Registry) *builder {
	return &builder{reg: reg}
}

// Statement builds the statement described by q.
func (b *builder) Statement(q *QuerySpec) (query.Statement, error) {
	switch q.Kind {
	case "", KindSelect:
		return b.selectStatement(q, false)
	case KindInsert:
		return b.insertStatement(q)
	case KindUpdate:
		return b.updateStatement(q)
	case KindDelete:
		return b.deleteStatement(q)
	default:
		return nil, fmt.Errorf("unknown statement kind %q", q.Kind)
	}
}

func (b *builder) relation(ref string) (*schema.Relation, error) {
	rel, ok := b.reg.Lookup(ref)
	if !ok {
		return nil, fmt.Errorf("unknown relation %q", ref)
	}
	return rel, nil
}

// column resolves "relation.property". The property may itself contain
// dots (flattened view columns).
func (b *builder) column(ref string) (*expr.Column, error) {
	relRef, property, ok := strings.Cut(ref, ".")
	if !ok {
		return nil, fmt.Errorf("column reference %q must be relation.property", ref)
	}
	rel, err := b.relation(relRef)
	if err != nil {
		return nil, err
	}
	col, ok := rel.Column(property)
	if !ok {
		return nil, fmt.Errorf("relation %q has no property %q", relRef, property)
	}
	return col, nil
}

func (b *builder) oldColumn(n *yaml.Node) (*expr.Column, error) {
	if n.Kind != yaml.ScalarNode || n.ShortTag() != "!!str" {
		return nil, fmt.Errorf("line %d: old expects a column reference", n.Line)
	}
	col, err := b.column(n.Value)
	if err != nil {
		return nil, err
	}
	oldID, ok := b.reg.OldValuesOf(col.Relation())
	if !ok {
		return nil, fmt.Errorf("line %d: relation of %q has no old values", n.Line, n.Value)
	}
	rel, ok := b.reg.Relation(oldID)
	if !ok {
		return nil, fmt.Errorf("line %d: old values of %q are not declared", n.Line, n.Value)
	}
	oldCol, ok := rel.Column(col.Property())
	if !ok {
		return nil, fmt.Errorf("line %d: old values have no property %q", n.Line, col.Property())
	}
	return oldCol, nil
}

// literal decodes a literal scalar or {val: x}. Strings are literals only
// in the {val: x} form.
func literal(n *yaml.Node) (ir.IRValue, bool, error) {
	if n.Kind == yaml.AliasNode {
		return literal(n.Alias)
	}
	if op, arg, ok := operatorOf(n); ok && op == "val" {
		if arg.Kind != yaml.ScalarNode {
			return nil, false, fmt.Errorf("line %d: val expects a scalar", arg.Line)
		}
		if arg.ShortTag() == "!!str" {
			return ir.IRString(arg.Value), true, nil
		}
		v, _, err := literal(arg)
		return v, true, err
	}
	if n.Kind != yaml.ScalarNode {
		return nil, false, nil
	}
	switch n.ShortTag() {
	case "!!int":
		i, err := strconv.ParseInt(n.Value, 0, 64)
		if err != nil {
			return nil, false, fmt.Errorf("line %d: %w", n.Line, err)
		}
		return ir.IRInt(i), true, nil
	case "!!float":
		f, err := strconv.ParseFloat(n.Value, 64)
		if err != nil {
			return nil, false, fmt.Errorf("line %d: %w", n.Line, err)
		}
		return ir.IRDouble(f), true, nil
	case "!!bool":
		var v bool
		if err := n.Decode(&v); err != nil {
			return nil, false, fmt.Errorf("line %d: %w", n.Line, err)
		}
		return ir.IRBool(v), true, nil
	case "!!null":
		return ir.IRNull{}, true, nil
	}
	return nil, false, nil
}

func (b *builder) operand(n *yaml.Node) (expr.Node, error) {
	if n == nil {
		return nil, fmt.Errorf("missing operand")
	}
	if n.Kind == yaml.AliasNode {
		return b.operand(n.Alias)
	}

	v, ok, err := literal(n)
	if err != nil {
		return nil, err
	}
	if ok {
		if ir.IsNull(v) {
			return nil, fmt.Errorf("line %d: null is not an operand; use isNull", n.Line)
		}
		return expr.Val(v), nil
	}

	if n.Kind == yaml.ScalarNode {
		return b.column(n.Value)
	}

	op, arg, ok := operatorOf(n)
	if !ok {
		return nil, fmt.Errorf("line %d: expected a column, literal or single-operator mapping", n.Line)
	}

	if fn, ok := binaryOps[op]; ok {
		args, err := b.operands(op, arg, 2, 2)
		if err != nil {
			return nil, err
		}
		return fn(args[0], args[1]), nil
	}
	if fn, ok := unaryOps[op]; ok {
		x, err := b.operand(arg)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		return fn(x), nil
	}
	if fn, ok := aggregateOps[op]; ok {
		x, err := b.operand(arg)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		return fn(x), nil
	}
	if fn, ok := variadicOps[op]; ok {
		args, err := b.operands(op, arg, 1, -1)
		if err != nil {
			return nil, err
		}
		return fn(args...), nil
	}

	switch op {
	case "countAll":
		return expr.CountAll(), nil
	case "coalesce":
		args, err := b.operands(op, arg, 2, 2)
		if err != nil {
			return nil, err
		}
		return expr.ValueWhenNull(args[0], args[1]), nil
	case "concat":
		args, err := b.operands(op, arg, 1, -1)
		if err != nil {
			return nil, err
		}
		return expr.Concat(args[0], args[1:]...), nil
	case "old":
		return b.oldColumn(arg)
	case "exists", "notExists":
		var sub QuerySpec
		if err := arg.Decode(&sub); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if err := validateQuery(&sub); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		sel, err := b.selectStatement(&sub, true)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if op == "exists" {
			return expr.Exists(sel), nil
		}
		return expr.NotExists(sel), nil
	}
	return nil, fmt.Errorf("line %d: %s is not an expression", n.Line, op)
}

// operands decodes a sequence of between min and max operands; max < 0
// means unbounded.
func (b *builder) operands(op string, n *yaml.Node, min, max int) ([]expr.Node, error) {
	if n.Kind != yaml.SequenceNode {
		return nil, fmt.Errorf("line %d: %s expects a list of operands", n.Line, op)
	}
	if len(n.Content) < min || (max >= 0 && len(n.Content) > max) {
		return nil, fmt.Errorf("line %d: %s expects %s operands, got %d", n.Line, op, arity(min, max), len(n.Content))
	}
	out := make([]expr.Node, 0, len(n.Content))
	for i, item := range n.Content {
		x, err := b.operand(item)
		if err != nil {
			return nil, fmt.Errorf("%s[%d]: %w", op, i, err)
		}
		out = append(out, x)
	}
	return out, nil
}

func arity(min, max int) string {
	switch {
	case min == max:
		return strconv.Itoa(min)
	case max < 0:
		return "at least " + strconv.Itoa(min)
	}
	return fmt.Sprintf("%d to %d", min, max)
}

// projection decodes an ordered mapping of property names to operands or
// nested objects.
func (b *builder) projection(n *yaml.Node) ([]projection.Entry, error) {
	if n == nil {
		return nil, nil
	}
	if n.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("line %d: projection must be a mapping", n.Line)
	}
	entries := make([]projection.Entry, 0, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		name, value := n.Content[i].Value, n.Content[i+1]

		if _, _, isExpr := operatorOf(value); value.Kind == yaml.MappingNode && !isExpr {
			members, err := b.projection(value)
			if err != nil {
				return nil, fmt.Errorf("%s.%w", name, err)
			}
			entries = append(entries, projection.Object(name, members...))
			continue
		}

		x, err := b.operand(value)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		entries = append(entries, projection.Value(name, x))
	}
	return entries, nil
}

func (b *builder) predicates(n *yaml.Node) ([]expr.Node, error) {
	if n == nil {
		return nil, nil
	}
	x, err := b.operand(n)
	if err != nil {
		return nil, err
	}
	return []expr.Node{x}, nil
}

func (b *builder) selectStatement(q *QuerySpec, subquery bool) (*query.Select, error) {
	from, err := b.relation(q.From)
	if err != nil {
		return nil, err
	}

	sb := query.SelectFrom(b.reg, from.ID())
	if subquery {
		sb = query.Subquery(b.reg, from.ID())
	}

	for i, j := range q.Joins {
		rel, err := b.relation(j.Relation)
		if err != nil {
			return nil, fmt.Errorf("joins[%d]: %w", i, err)
		}
		on, err := b.operand(&j.On)
		if err != nil {
			return nil, fmt.Errorf("joins[%d].on: %w", i, err)
		}
		kind, err := parseJoinKind(j.Kind)
		if err != nil {
			return nil, fmt.Errorf("joins[%d]: %w", i, err)
		}
		switch kind {
		case query.InnerJoin:
			sb.Join(rel.ID(), on)
		case query.LeftJoin:
			sb.LeftJoin(rel.ID(), on)
		case query.OptionalInnerJoin:
			sb.OptionalJoin(rel.ID(), on)
		case query.OptionalLeftJoin:
			sb.OptionalLeftJoin(rel.ID(), on)
		}
	}

	where, err := b.predicates(q.Where)
	if err != nil {
		return nil, fmt.Errorf("where: %w", err)
	}
	sb.Where(where...)

	entries, err := b.projection(q.Select)
	if err != nil {
		return nil, fmt.Errorf("select: %w", err)
	}
	sb.Select(entries...)

	if q.Distinct {
		sb.Distinct()
	}
	for i := range q.GroupBy {
		x, err := b.operand(&q.GroupBy[i])
		if err != nil {
			return nil, fmt.Errorf("group_by[%d]: %w", i, err)
		}
		sb.GroupBy(x)
	}
	having, err := b.predicates(q.Having)
	if err != nil {
		return nil, fmt.Errorf("having: %w", err)
	}
	sb.Having(having...)

	for i, o := range q.OrderBy {
		d, err := parseDirection(o.Direction)
		if err != nil {
			return nil, fmt.Errorf("order_by[%d]: %w", i, err)
		}
		if o.Expr == nil {
			sb.OrderBy(o.Property, d)
			continue
		}
		x, err := b.operand(o.Expr)
		if err != nil {
			return nil, fmt.Errorf("order_by[%d]: %w", i, err)
		}
		sb.OrderByExpr(x, d)
	}
	if q.Limit > 0 {
		sb.Limit(q.Limit)
	}
	if q.Offset > 0 {
		sb.Offset(q.Offset)
	}

	return sb.Build()
}

// assignments decodes a mapping of properties of rel to values. Literals
// bind through the column's adapter.
func (b *builder) assignments(rel *schema.Relation, n *yaml.Node) ([]query.Assignment, error) {
	if n.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("line %d: assignments must be a mapping", n.Line)
	}
	out := make([]query.Assignment, 0, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		property, value := n.Content[i].Value, n.Content[i+1]
		col, ok := rel.Column(property)
		if !ok {
			return nil, fmt.Errorf("line %d: relation %q has no property %q", n.Content[i].Line, rel.RefName(), property)
		}

		v, ok, err := literal(value)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", property, err)
		}
		if ok {
			out = append(out, query.Set(col, query.Value(col, v)))
			continue
		}
		x, err := b.operand(value)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", property, err)
		}
		out = append(out, query.Set(col, x))
	}
	return out, nil
}

func (b *builder) insertStatement(q *QuerySpec) (*query.Insert, error) {
	rel, err := b.relation(q.Table)
	if err != nil {
		return nil, err
	}
	ib := query.InsertInto(b.reg, rel.ID())
	for i := range q.Values {
		row, err := b.assignments(rel, &q.Values[i])
		if err != nil {
			return nil, fmt.Errorf("values[%d]: %w", i, err)
		}
		ib.Values(row...)
	}
	returning, err := b.projection(q.Returning)
	if err != nil {
		return nil, fmt.Errorf("returning: %w", err)
	}
	ib.Returning(returning...)
	if q.ReturningLastID {
		ib.ReturningLastInsertedID()
	}
	return ib.Build()
}

func (b *builder) updateStatement(q *QuerySpec) (*query.Update, error) {
	rel, err := b.relation(q.Table)
	if err != nil {
		return nil, err
	}
	set, err := b.assignments(rel, q.Set)
	if err != nil {
		return nil, fmt.Errorf("set: %w", err)
	}
	ub := query.UpdateTable(b.reg, rel.ID()).Set(set...)

	where, err := b.predicates(q.Where)
	if err != nil {
		return nil, fmt.Errorf("where: %w", err)
	}
	ub.Where(where...)
	if q.AllRows {
		ub.AllowingNoWhere()
	}

	returning, err := b.projection(q.Returning)
	if err != nil {
		return nil, fmt.Errorf("returning: %w", err)
	}
	ub.Returning(returning...)
	return ub.Build()
}

func (b *builder) deleteStatement(q *QuerySpec) (*query.Delete, error) {
	rel, err := b.relation(q.Table)
	if err != nil {
		return nil, err
	}
	db := query.DeleteFrom(b.reg, rel.ID())

	where, err := b.predicates(q.Where)
	if err != nil {
		return nil, fmt.Errorf("where: %w", err)
	}
	db.Where(where...)
	if q.AllRows {
		db.AllowingNoWhere()
	}

	returning, err := b.projection(q.Returning)
	if err != nil {
		return nil, fmt.Errorf("returning: %w", err)
	}
	db.Returning(returning...)
	return db.Build()
}

func parseJoinKind(s string) (query.JoinKind, error) {
	switch s {
	case "", "inner":
		return query.InnerJoin, nil
	case "left":
		return query.LeftJoin, nil
	case "optional":
		return query.OptionalInnerJoin, nil
	case "optional_left":
		return query.OptionalLeftJoin, nil
	}
	return 0, fmt.Errorf("unknown join kind %q", s)
}

func parseDirection(s string) (query.Direction, error) {
	switch s {
	case "", "asc":
		return query.Asc, nil
	case "desc":
		return query.Desc, nil
	case "asc_nulls_first":
		return query.AscNullsFirst, nil
	case "asc_nulls_last":
		return query.AscNullsLast, nil
	case "desc_nulls_first":
		return query.DescNullsFirst, nil
	case "desc_nulls_last":
		return query.DescNullsLast, nil
	}
	return 0, fmt.Errorf("unknown direction %q", s)
}
