package sqlbuild

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/tsq/internal/adapter"
	"github.com/roach88/tsq/internal/expr"
	"github.com/roach88/tsq/internal/ir"
	"github.com/roach88/tsq/internal/schema"
)

// Builder is the rendering protocol a dialect implementation honors. It is
// handed fully annotated expressions: optionality has been resolved for the
// whole statement before any call. Rendering never modifies the nodes.
type Builder interface {
	// RenderColumnReference renders a column in value position.
	RenderColumnReference(c *expr.Column) string
	// RenderColumnReferenceInCondition renders a column used directly as a
	// predicate. A custom boolean column is compared with its true value.
	RenderColumnReferenceInCondition(c *expr.Column) string
	// RenderExpression renders n and returns the parameters it binds, in
	// placeholder order.
	RenderExpression(n expr.Node) (string, []any, error)
}

// renderer implements Builder for one statement. It accumulates bound
// parameters across calls so placeholders are numbered statement-wide; it
// is not safe for concurrent use.
type renderer struct {
	dialect Dialect
	reg     *schema.Registry
	params  []any
	// qualify prefixes column references with their relation.
	qualify bool
}

// NewBuilder returns a Builder rendering for d. Column references are
// qualified with their relation's reference name.
func NewBuilder(d Dialect, reg *schema.Registry) Builder {
	return &renderer{dialect: d, reg: reg, qualify: true}
}

func (r *renderer) RenderColumnReference(c *expr.Column) string {
	name := r.dialect.QuoteIdentifier(c.Name())
	if !r.qualify {
		return name
	}
	rel := r.reg.MustRelation(c.Relation())
	return r.dialect.QuoteIdentifier(rel.RefName()) + "." + name
}

func (r *renderer) RenderColumnReferenceInCondition(c *expr.Column) string {
	ref := r.RenderColumnReference(c)
	cb, ok := adapter.AsCustomBoolean(c.Adapter())
	if !ok {
		return ref
	}
	return ref + " = " + r.literal(cb.True)
}

func (r *renderer) RenderExpression(n expr.Node) (string, []any, error) {
	start := len(r.params)
	sql, err := r.expr(n)
	if err != nil {
		return "", nil, err
	}
	return sql, r.params[start:], nil
}

// literal inlines a sentinel value. Only used for adapter constants.
func (r *renderer) literal(v ir.IRValue) string {
	switch v := v.(type) {
	case ir.IRString:
		return r.dialect.QuoteLiteral(string(v))
	case ir.IRInt:
		return strconv.FormatInt(int64(v), 10)
	case ir.IRBool:
		if v {
			return "TRUE"
		}
		return "FALSE"
	}
	return "NULL"
}

func (r *renderer) bind(v any) string {
	r.params = append(r.params, v)
	return r.dialect.Placeholder(len(r.params))
}

// condition renders n in predicate position.
func (r *renderer) condition(n expr.Node) (string, error) {
	if c, ok := n.(*expr.Column); ok {
		return r.RenderColumnReferenceInCondition(c), nil
	}
	return r.expr(n)
}

func (r *renderer) expr(n expr.Node) (string, error) {
	switch n := n.(type) {
	case nil:
		return "", fmt.Errorf("cannot render nil expression")
	case *expr.Column:
		return r.RenderColumnReference(n), nil
	case *expr.Const:
		return r.constant(n)
	case *expr.Binary:
		return r.binary(n)
	case *expr.Unary:
		return r.unary(n)
	case *expr.Aggregate:
		return r.aggregate(n)
	case *expr.Coalesce:
		value, err := r.expr(n.Value)
		if err != nil {
			return "", err
		}
		fallback, err := r.expr(n.Fallback)
		if err != nil {
			return "", err
		}
		return "coalesce(" + value + ", " + fallback + ")", nil
	case *expr.SequenceValue:
		return r.dialect.Sequence(n.Sequence, n.Next)
	case *expr.AggregatedArray:
		return r.aggregatedArray(n)
	case *expr.Subquery:
		return r.subqueryExpr(n)
	default:
		return "", fmt.Errorf("unsupported expression type: %T", n)
	}
}

func (r *renderer) constant(c *expr.Const) (string, error) {
	v, err := adapter.ToDatabase(c.Adapt, c.Value, c.Type)
	if err != nil {
		return "", fmt.Errorf("convert value: %w", err)
	}
	param, err := ir.ToDriver(v)
	if err != nil {
		return "", fmt.Errorf("convert value: %w", err)
	}
	return r.bind(param), nil
}

var binaryOperators = map[expr.BinaryOp]string{
	expr.OpEq:      " = ",
	expr.OpNe:      " <> ",
	expr.OpLt:      " < ",
	expr.OpLe:      " <= ",
	expr.OpGt:      " > ",
	expr.OpGe:      " >= ",
	expr.OpLike:    " LIKE ",
	expr.OpNotLike: " NOT LIKE ",
	expr.OpAnd:     " AND ",
	expr.OpOr:      " OR ",
	expr.OpAdd:     " + ",
	expr.OpSub:     " - ",
	expr.OpMul:     " * ",
	expr.OpDiv:     " / ",
	expr.OpMod:     " % ",
}

// operand renders a child of a binary or unary node, parenthesized when
// precedence requires it. Under AND/OR only a nested AND/OR of the other
// kind is wrapped; elsewhere every compound child is wrapped unless both
// apply the same associative operator.
func (r *renderer) operand(parent expr.BinaryOp, n expr.Node, asCondition bool) (string, error) {
	var (
		sql string
		err error
	)
	if asCondition {
		sql, err = r.condition(n)
	} else {
		sql, err = r.expr(n)
	}
	if err != nil {
		return "", err
	}

	logical := parent == expr.OpAnd || parent == expr.OpOr
	switch child := n.(type) {
	case *expr.Binary:
		childLogical := child.Op == expr.OpAnd || child.Op == expr.OpOr
		if logical && (!childLogical || child.Op == parent) {
			return sql, nil
		}
		if !logical && child.Op == parent && associative(parent) {
			return sql, nil
		}
		return "(" + sql + ")", nil
	case *expr.Unary:
		if !logical && (child.Op == expr.OpIsNull || child.Op == expr.OpIsNotNull) {
			return "(" + sql + ")", nil
		}
	}
	return sql, nil
}

// operandOf renders the operand of a unary node or a subquery comparison.
func (r *renderer) operandOf(n expr.Node) (string, error) {
	return r.operand(expr.OpEq, n, false)
}

func associative(op expr.BinaryOp) bool {
	switch op {
	case expr.OpAnd, expr.OpOr, expr.OpAdd, expr.OpMul, expr.OpConcat:
		return true
	}
	return false
}

func (r *renderer) binary(b *expr.Binary) (string, error) {
	logical := b.Op == expr.OpAnd || b.Op == expr.OpOr
	left, err := r.operand(b.Op, b.Left, logical)
	if err != nil {
		return "", err
	}
	right, err := r.operand(b.Op, b.Right, logical)
	if err != nil {
		return "", err
	}

	d := r.dialect
	switch b.Op {
	case expr.OpIs:
		return d.NullSafeEquals(left, right, false), nil
	case expr.OpIsNot:
		return d.NullSafeEquals(left, right, true), nil
	case expr.OpEqInsensitive:
		return "lower(" + left + ") = lower(" + right + ")", nil
	case expr.OpNeInsensitive:
		return "lower(" + left + ") <> lower(" + right + ")", nil
	case expr.OpConcat:
		return d.Concat(left, right), nil
	case expr.OpStartsWith:
		return left + " LIKE " + d.Concat(right, "'%'"), nil
	case expr.OpEndsWith:
		return left + " LIKE " + d.Concat("'%'", right), nil
	case expr.OpContains:
		return left + " LIKE " + d.Concat("'%'", right, "'%'"), nil
	case expr.OpStartsWithInsensitive:
		return d.InsensitiveLike(left, d.Concat(right, "'%'"), false), nil
	case expr.OpEndsWithInsensitive:
		return d.InsensitiveLike(left, d.Concat("'%'", right), false), nil
	case expr.OpContainsInsensitive:
		return d.InsensitiveLike(left, d.Concat("'%'", right, "'%'"), false), nil
	}

	op, ok := binaryOperators[b.Op]
	if !ok {
		return "", fmt.Errorf("unsupported operator: %v", b.Op)
	}
	return left + op + right, nil
}

func (r *renderer) unary(u *expr.Unary) (string, error) {
	if u.Op == expr.OpNot {
		operand, err := r.condition(u.Operand)
		if err != nil {
			return "", err
		}
		return "NOT (" + operand + ")", nil
	}

	operand, err := r.operandOf(u.Operand)
	if err != nil {
		return "", err
	}
	switch u.Op {
	case expr.OpNegate:
		return "-" + operand, nil
	case expr.OpAbs:
		return "abs(" + operand + ")", nil
	case expr.OpLength:
		return r.dialect.Length(operand), nil
	case expr.OpLower:
		return "lower(" + operand + ")", nil
	case expr.OpUpper:
		return "upper(" + operand + ")", nil
	case expr.OpTrim:
		return "trim(" + operand + ")", nil
	case expr.OpIsNull:
		return operand + " IS NULL", nil
	case expr.OpIsNotNull:
		return operand + " IS NOT NULL", nil
	}
	return "", fmt.Errorf("unsupported operator: %v", u.Op)
}

var aggregateFunctions = map[expr.AggregateFunc]string{
	expr.AggCount: "count",
	expr.AggSum:   "sum",
	expr.AggMin:   "min",
	expr.AggMax:   "max",
	expr.AggAvg:   "avg",
}

func (r *renderer) aggregate(a *expr.Aggregate) (string, error) {
	if a.Func == expr.AggCountAll {
		return "count(*)", nil
	}
	arg, err := r.expr(a.Arg)
	if err != nil {
		return "", err
	}
	if a.Distinct {
		arg = "DISTINCT " + arg
	}
	return aggregateFunctions[a.Func] + "(" + arg + ")", nil
}

func (r *renderer) aggregatedArray(a *expr.AggregatedArray) (string, error) {
	orNull := a.Mode == expr.ValuesOrNull
	if a.IsSingleValue() {
		value, err := r.expr(a.Fields[0].Value)
		if err != nil {
			return "", err
		}
		return r.dialect.ArrayAgg(value, orNull), nil
	}

	pairs := make([]string, 0, 2*len(a.Fields))
	for _, f := range a.Fields {
		value, err := r.expr(f.Value)
		if err != nil {
			return "", err
		}
		pairs = append(pairs, r.dialect.QuoteLiteral(f.Name), value)
	}
	return r.dialect.ArrayAgg(r.dialect.JSONObject(pairs...), orNull), nil
}

func (r *renderer) subqueryExpr(s *expr.Subquery) (string, error) {
	body, err := r.nestedSelect(s.Statement)
	if err != nil {
		return "", err
	}
	switch s.Kind {
	case expr.ExistsSubquery:
		return "EXISTS " + body, nil
	case expr.NotExistsSubquery:
		return "NOT EXISTS " + body, nil
	case expr.InSubquery, expr.NotInSubquery:
		left, err := r.operandOf(s.Left)
		if err != nil {
			return "", err
		}
		if s.Kind == expr.NotInSubquery {
			return left + " NOT IN " + body, nil
		}
		return left + " IN " + body, nil
	}
	return body, nil
}

// joinSQL joins non-empty clauses with single spaces.
func joinSQL(parts ...string) string {
	var b strings.Builder
	for _, p := range parts {
		if p == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(p)
	}
	return b.String()
}
