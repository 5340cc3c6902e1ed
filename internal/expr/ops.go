package expr

import (
	"fmt"

	"github.com/roach88/tsq/internal/adapter"
	"github.com/roach88/tsq/internal/ir"
)

// Const is a literal value. Backends always bind it as a parameter.
type Const struct {
	Value ir.IRValue
	Type  ir.ValueType
	Tag   ir.OptionalTag
	Adapt adapter.TypeAdapter
}

// NewConst creates a literal of type vt. A null literal is Optional.
func NewConst(v ir.IRValue, vt ir.ValueType) *Const {
	tag := ir.Required
	if ir.IsNull(v) {
		tag = ir.Optional
		v = ir.IRNull{}
	}
	return &Const{Value: v, Type: vt, Tag: tag}
}

// NewOptionalConst creates a literal typed as Optional regardless of its value.
func NewOptionalConst(v ir.IRValue, vt ir.ValueType) *Const {
	c := NewConst(v, vt)
	c.Tag = ir.Optional
	return c
}

// Val creates a literal from a Go or IR value, inferring its value type.
// It panics on values with no value type; use NewConst for explicit typing.
func Val(v any) *Const {
	irv, err := ir.FromGo(v)
	if err != nil {
		panic(fmt.Sprintf("expr.Val: %v", err))
	}
	switch irv.(type) {
	case ir.IRString:
		return NewConst(irv, ir.TypeString)
	case ir.IRInt:
		return NewConst(irv, ir.TypeInt)
	case ir.IRDouble:
		return NewConst(irv, ir.TypeDouble)
	case ir.IRBool:
		return NewConst(irv, ir.TypeBoolean)
	case ir.IRNull:
		return NewConst(irv, ir.TypeCustom)
	default:
		panic(fmt.Sprintf("expr.Val: no value type for %T", irv))
	}
}

func (c *Const) ValueType() ir.ValueType { return c.Type }
func (c *Const) Optional() ir.OptionalTag { return c.Tag }
func (c *Const) Adapter() adapter.TypeAdapter { return c.Adapt }
func (c *Const) Aggregation() *AggregatedArray { return nil }
func (c *Const) RegisterRelations(ir.RelationSet) {}
func (c *Const) RegisterRequiredColumns(ColumnSet, ir.RelationSet) {}
func (c *Const) operands() []Node { return nil }

func (c *Const) withOptional(tag ir.OptionalTag) Node {
	cp := *c
	cp.Tag = tag
	return &cp
}

// BinaryOp enumerates two-operand operators.
type BinaryOp uint8

const (
	OpEq BinaryOp = iota
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
	OpIs    // null-safe equality
	OpIsNot // null-safe inequality
	OpEqInsensitive
	OpNeInsensitive
	OpLike
	OpNotLike
	OpStartsWith
	OpEndsWith
	OpContains
	OpStartsWithInsensitive
	OpEndsWithInsensitive
	OpContainsInsensitive
	OpAnd
	OpOr
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod
	OpConcat
)

var binaryOpNames = map[BinaryOp]string{
	OpEq: "=", OpNe: "<>", OpLt: "<", OpLe: "<=", OpGt: ">", OpGe: ">=",
	OpIs: "is", OpIsNot: "is not",
	OpEqInsensitive: "equalsInsensitive", OpNeInsensitive: "notEqualsInsensitive",
	OpLike: "like", OpNotLike: "not like",
	OpStartsWith: "startsWith", OpEndsWith: "endsWith", OpContains: "contains",
	OpStartsWithInsensitive: "startsWithInsensitive", OpEndsWithInsensitive: "endsWithInsensitive",
	OpContainsInsensitive: "containsInsensitive",
	OpAnd: "and", OpOr: "or",
	OpAdd: "+", OpSub: "-", OpMul: "*", OpDiv: "/", OpMod: "%",
	OpConcat: "concat",
}

func (op BinaryOp) String() string {
	if s, ok := binaryOpNames[op]; ok {
		return s
	}
	return fmt.Sprintf("BinaryOp(%d)", uint8(op))
}

// IsPredicate reports whether the operator yields a boolean.
func (op BinaryOp) IsPredicate() bool {
	return op <= OpOr
}

// IsArithmetic reports whether the operator is numeric arithmetic.
func (op BinaryOp) IsArithmetic() bool {
	return op >= OpAdd && op <= OpMod
}

// Binary applies a two-operand operator.
type Binary struct {
	Op    BinaryOp
	Left  Node
	Right Node
	Type  ir.ValueType
	Tag   ir.OptionalTag
}

func newBinary(op BinaryOp, left, right Node) *Binary {
	left, right = shareAdapter(left, right), shareAdapter(right, left)
	b := &Binary{Op: op, Left: left, Right: right, Tag: mergeOptional(left, right)}
	switch {
	case op.IsPredicate():
		b.Type = ir.TypeBoolean
	case op == OpConcat:
		b.Type = ir.TypeString
	case op == OpDiv || left.ValueType() == ir.TypeDouble || right.ValueType() == ir.TypeDouble:
		b.Type = ir.TypeDouble
	case left.ValueType() == ir.TypeBigint || right.ValueType() == ir.TypeBigint:
		b.Type = ir.TypeBigint
	default:
		b.Type = left.ValueType()
	}
	if op == OpIs || op == OpIsNot {
		b.Tag = ir.Required
	}
	return b
}

// shareAdapter gives a bare literal the adapter of the value it is compared
// with, so a custom boolean literal is bound in its database form.
func shareAdapter(n, other Node) Node {
	c, ok := n.(*Const)
	if !ok || c.Adapt != nil || other.Adapter() == nil || c.Type != other.ValueType() {
		return n
	}
	cp := *c
	cp.Adapt = other.Adapter()
	return &cp
}

func (b *Binary) ValueType() ir.ValueType { return b.Type }
func (b *Binary) Optional() ir.OptionalTag { return b.Tag }
func (b *Binary) Adapter() adapter.TypeAdapter { return nil }
func (b *Binary) Aggregation() *AggregatedArray { return nil }
func (b *Binary) operands() []Node { return []Node{b.Left, b.Right} }

func (b *Binary) RegisterRelations(out ir.RelationSet) {
	registerRelations(out, b.Left, b.Right)
}

func (b *Binary) RegisterRequiredColumns(out ColumnSet, onlyFor ir.RelationSet) {
	registerRequiredColumns(out, onlyFor, b.Left, b.Right)
}

func (b *Binary) withOptional(tag ir.OptionalTag) Node {
	cp := *b
	cp.Tag = tag
	return &cp
}

func Eq(a, b Node) *Binary { return newBinary(OpEq, a, b) }
func Ne(a, b Node) *Binary { return newBinary(OpNe, a, b) }
func Lt(a, b Node) *Binary { return newBinary(OpLt, a, b) }
func Le(a, b Node) *Binary { return newBinary(OpLe, a, b) }
func Gt(a, b Node) *Binary { return newBinary(OpGt, a, b) }
func Ge(a, b Node) *Binary { return newBinary(OpGe, a, b) }
func Is(a, b Node) *Binary { return newBinary(OpIs, a, b) }
func IsNot(a, b Node) *Binary { return newBinary(OpIsNot, a, b) }
func EqualsInsensitive(a, b Node) *Binary { return newBinary(OpEqInsensitive, a, b) }
func NotEqualsInsensitive(a, b Node) *Binary { return newBinary(OpNeInsensitive, a, b) }
func Like(a, b Node) *Binary { return newBinary(OpLike, a, b) }
func NotLike(a, b Node) *Binary { return newBinary(OpNotLike, a, b) }
func StartsWith(a, b Node) *Binary { return newBinary(OpStartsWith, a, b) }
func EndsWith(a, b Node) *Binary { return newBinary(OpEndsWith, a, b) }
func Contains(a, b Node) *Binary { return newBinary(OpContains, a, b) }
func StartsWithInsensitive(a, b Node) *Binary { return newBinary(OpStartsWithInsensitive, a, b) }
func EndsWithInsensitive(a, b Node) *Binary { return newBinary(OpEndsWithInsensitive, a, b) }
func ContainsInsensitive(a, b Node) *Binary { return newBinary(OpContainsInsensitive, a, b) }
func Add(a, b Node) *Binary { return newBinary(OpAdd, a, b) }
func Sub(a, b Node) *Binary { return newBinary(OpSub, a, b) }
func Mul(a, b Node) *Binary { return newBinary(OpMul, a, b) }
func Div(a, b Node) *Binary { return newBinary(OpDiv, a, b) }
func Mod(a, b Node) *Binary { return newBinary(OpMod, a, b) }

// Concat joins string values left to right.
func Concat(first Node, rest ...Node) Node {
	result := first
	for _, n := range rest {
		result = newBinary(OpConcat, result, n)
	}
	return result
}

// And conjoins predicates. A single predicate is returned unchanged; no
// predicates yields nil.
func And(preds ...Node) Node {
	return fold(OpAnd, preds)
}

// Or disjoins predicates. A single predicate is returned unchanged; no
// predicates yields nil.
func Or(preds ...Node) Node {
	return fold(OpOr, preds)
}

func fold(op BinaryOp, nodes []Node) Node {
	var result Node
	for _, n := range nodes {
		if n == nil {
			continue
		}
		if result == nil {
			result = n
			continue
		}
		result = newBinary(op, result, n)
	}
	return result
}

// UnaryOp enumerates one-operand operators and scalar functions.
type UnaryOp uint8

const (
	OpNot UnaryOp = iota
	OpNegate
	OpAbs
	OpLength
	OpLower
	OpUpper
	OpTrim
	OpIsNull
	OpIsNotNull
)

var unaryOpNames = [...]string{
	OpNot: "not", OpNegate: "negate", OpAbs: "abs", OpLength: "length",
	OpLower: "lower", OpUpper: "upper", OpTrim: "trim",
	OpIsNull: "isNull", OpIsNotNull: "isNotNull",
}

func (op UnaryOp) String() string {
	if int(op) < len(unaryOpNames) {
		return unaryOpNames[op]
	}
	return fmt.Sprintf("UnaryOp(%d)", uint8(op))
}

// Unary applies a one-operand operator.
type Unary struct {
	Op      UnaryOp
	Operand Node
	Type    ir.ValueType
	Tag     ir.OptionalTag
}

func newUnary(op UnaryOp, n Node) *Unary {
	u := &Unary{Op: op, Operand: n, Type: n.ValueType(), Tag: n.Optional()}
	switch op {
	case OpLength:
		u.Type = ir.TypeInt
	case OpLower, OpUpper, OpTrim:
		u.Type = ir.TypeString
	case OpIsNull, OpIsNotNull:
		u.Type = ir.TypeBoolean
		u.Tag = ir.Required
	case OpNot:
		u.Type = ir.TypeBoolean
	}
	return u
}

func (u *Unary) ValueType() ir.ValueType { return u.Type }
func (u *Unary) Optional() ir.OptionalTag { return u.Tag }
func (u *Unary) Adapter() adapter.TypeAdapter { return nil }
func (u *Unary) Aggregation() *AggregatedArray { return nil }
func (u *Unary) operands() []Node { return []Node{u.Operand} }

func (u *Unary) RegisterRelations(out ir.RelationSet) {
	registerRelations(out, u.Operand)
}

func (u *Unary) RegisterRequiredColumns(out ColumnSet, onlyFor ir.RelationSet) {
	registerRequiredColumns(out, onlyFor, u.Operand)
}

func (u *Unary) withOptional(tag ir.OptionalTag) Node {
	cp := *u
	cp.Tag = tag
	return &cp
}

func Not(n Node) *Unary { return newUnary(OpNot, n) }
func Negate(n Node) *Unary { return newUnary(OpNegate, n) }
func Abs(n Node) *Unary { return newUnary(OpAbs, n) }
func Length(n Node) *Unary { return newUnary(OpLength, n) }
func Lower(n Node) *Unary { return newUnary(OpLower, n) }
func Upper(n Node) *Unary { return newUnary(OpUpper, n) }
func Trim(n Node) *Unary { return newUnary(OpTrim, n) }
func IsNull(n Node) *Unary { return newUnary(OpIsNull, n) }
func IsNotNull(n Node) *Unary { return newUnary(OpIsNotNull, n) }

// AggregateFunc enumerates aggregation functions.
type AggregateFunc uint8

const (
	AggCount AggregateFunc = iota
	AggCountAll
	AggSum
	AggMin
	AggMax
	AggAvg
)

var aggregateNames = [...]string{
	AggCount: "count", AggCountAll: "count", AggSum: "sum",
	AggMin: "min", AggMax: "max", AggAvg: "avg",
}

func (f AggregateFunc) String() string {
	if int(f) < len(aggregateNames) {
		return aggregateNames[f]
	}
	return fmt.Sprintf("AggregateFunc(%d)", uint8(f))
}

// Aggregate applies an aggregation function. Counts are always present;
// every other aggregate is Optional because it is NULL over no rows.
type Aggregate struct {
	Func     AggregateFunc
	Arg      Node // nil for AggCountAll
	Distinct bool
	Type     ir.ValueType
	Tag      ir.OptionalTag
}

func newAggregate(f AggregateFunc, arg Node, distinct bool) *Aggregate {
	a := &Aggregate{Func: f, Arg: arg, Distinct: distinct, Tag: ir.Optional}
	switch f {
	case AggCount, AggCountAll:
		a.Type = ir.TypeInt
		a.Tag = ir.Required
	case AggAvg:
		a.Type = ir.TypeDouble
	default:
		a.Type = arg.ValueType()
	}
	return a
}

func (a *Aggregate) ValueType() ir.ValueType { return a.Type }
func (a *Aggregate) Optional() ir.OptionalTag { return a.Tag }
func (a *Aggregate) Adapter() adapter.TypeAdapter { return nil }
func (a *Aggregate) Aggregation() *AggregatedArray { return nil }

func (a *Aggregate) operands() []Node {
	if a.Arg == nil {
		return nil
	}
	return []Node{a.Arg}
}

func (a *Aggregate) RegisterRelations(out ir.RelationSet) {
	registerRelations(out, a.Arg)
}

func (a *Aggregate) RegisterRequiredColumns(out ColumnSet, onlyFor ir.RelationSet) {
	registerRequiredColumns(out, onlyFor, a.Arg)
}

func (a *Aggregate) withOptional(tag ir.OptionalTag) Node {
	cp := *a
	cp.Tag = tag
	return &cp
}

func CountAll() *Aggregate { return newAggregate(AggCountAll, nil, false) }
func Count(n Node) *Aggregate { return newAggregate(AggCount, n, false) }
func CountDistinct(n Node) *Aggregate { return newAggregate(AggCount, n, true) }
func Sum(n Node) *Aggregate { return newAggregate(AggSum, n, false) }
func Min(n Node) *Aggregate { return newAggregate(AggMin, n, false) }
func Max(n Node) *Aggregate { return newAggregate(AggMax, n, false) }
func Avg(n Node) *Aggregate { return newAggregate(AggAvg, n, false) }

// Coalesce yields Value, or Fallback when Value is null.
type Coalesce struct {
	Value    Node
	Fallback Node
	Tag      ir.OptionalTag
}

// ValueWhenNull replaces a null value with fallback. The result is as
// optional as the fallback; a value that is already Required stays Required.
func ValueWhenNull(value, fallback Node) *Coalesce {
	fallback = shareAdapter(fallback, value)
	tag := fallback.Optional()
	if value.Optional() == ir.Required {
		tag = ir.Required
	}
	return &Coalesce{Value: value, Fallback: fallback, Tag: tag}
}

func (c *Coalesce) ValueType() ir.ValueType { return c.Value.ValueType() }
func (c *Coalesce) Optional() ir.OptionalTag { return c.Tag }
func (c *Coalesce) Adapter() adapter.TypeAdapter { return c.Value.Adapter() }
func (c *Coalesce) Aggregation() *AggregatedArray { return nil }
func (c *Coalesce) operands() []Node { return []Node{c.Value, c.Fallback} }

func (c *Coalesce) RegisterRelations(out ir.RelationSet) {
	registerRelations(out, c.Value, c.Fallback)
}

func (c *Coalesce) RegisterRequiredColumns(out ColumnSet, onlyFor ir.RelationSet) {
	registerRequiredColumns(out, onlyFor, c.Value, c.Fallback)
}

func (c *Coalesce) withOptional(tag ir.OptionalTag) Node {
	cp := *c
	cp.Tag = tag
	return &cp
}

// SequenceValue reads a named sequence. It is never null.
type SequenceValue struct {
	Sequence string
	Next     bool // nextval when true, currval otherwise
	Type     ir.ValueType
	Tag      ir.OptionalTag
}

// NextValue returns the next value of sequence.
func NextValue(sequence string, vt ir.ValueType) *SequenceValue {
	return &SequenceValue{Sequence: sequence, Next: true, Type: vt}
}

// CurrentValue returns the current value of sequence.
func CurrentValue(sequence string, vt ir.ValueType) *SequenceValue {
	return &SequenceValue{Sequence: sequence, Type: vt}
}

func (s *SequenceValue) ValueType() ir.ValueType { return s.Type }
func (s *SequenceValue) Optional() ir.OptionalTag { return s.Tag }
func (s *SequenceValue) Adapter() adapter.TypeAdapter { return nil }
func (s *SequenceValue) Aggregation() *AggregatedArray { return nil }
func (s *SequenceValue) RegisterRelations(ir.RelationSet) {}
func (s *SequenceValue) RegisterRequiredColumns(ColumnSet, ir.RelationSet) {}
func (s *SequenceValue) operands() []Node { return nil }

func (s *SequenceValue) withOptional(tag ir.OptionalTag) Node {
	cp := *s
	cp.Tag = tag
	return &cp
}
