package ir

import "fmt"

// ValueType is the semantic domain of an expression (not its SQL type).
type ValueType string

const (
	TypeBoolean         ValueType = "boolean"
	TypeInt             ValueType = "int"
	TypeBigint          ValueType = "bigint"
	TypeDouble          ValueType = "double"
	TypeString          ValueType = "string"
	TypeUUID            ValueType = "uuid"
	TypeLocalDate       ValueType = "localDate"
	TypeLocalTime       ValueType = "localTime"
	TypeLocalDateTime   ValueType = "localDateTime"
	TypeCustom          ValueType = "custom"
	TypeAggregatedArray ValueType = "aggregatedArray"
)

// Cardinality says whether a value type holds one value or a list of values.
type Cardinality uint8

const (
	Scalar Cardinality = iota
	List
)

func (c Cardinality) String() string {
	if c == List {
		return "list"
	}
	return "scalar"
}

var valueTypes = map[ValueType]Cardinality{
	TypeBoolean:         Scalar,
	TypeInt:             Scalar,
	TypeBigint:          Scalar,
	TypeDouble:          Scalar,
	TypeString:          Scalar,
	TypeUUID:            Scalar,
	TypeLocalDate:       Scalar,
	TypeLocalTime:       Scalar,
	TypeLocalDateTime:   Scalar,
	TypeCustom:          Scalar,
	TypeAggregatedArray: List,
}

// Valid reports whether v is a known value type.
func (v ValueType) Valid() bool {
	_, ok := valueTypes[v]
	return ok
}

// Cardinality returns the cardinality of the value type.
func (v ValueType) Cardinality() Cardinality {
	return valueTypes[v]
}

// IsNumeric reports whether arithmetic is defined for v.
func (v ValueType) IsNumeric() bool {
	return v == TypeInt || v == TypeBigint || v == TypeDouble
}

// ParseValueType validates a declared type name.
func ParseValueType(s string) (ValueType, error) {
	v := ValueType(s)
	if !v.Valid() {
		return "", fmt.Errorf("unknown value type %q", s)
	}
	return v, nil
}
