package runner

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/roach88/tsq/internal/adapter"
	"github.com/roach88/tsq/internal/expr"
	"github.com/roach88/tsq/internal/ir"
	"github.com/roach88/tsq/internal/nullability"
	"github.com/roach88/tsq/internal/projection"
	"github.com/roach88/tsq/internal/sqlbuild"
)

// MaterializeError reports a row that does not fit the resolved shape.
type MaterializeError struct {
	Row    int
	Path   string
	Reason string
}

func (e *MaterializeError) Error() string {
	return fmt.Sprintf("row %d: %s: %s", e.Row, e.Path, e.Reason)
}

type materializer struct {
	shape   projection.Group
	columns []sqlbuild.ResultColumn
}

func newMaterializer(r *sqlbuild.Rendered) *materializer {
	return &materializer{shape: r.Shape, columns: r.Columns}
}

// rowState walks one row's values in flattened order.
type rowState struct {
	m      *materializer
	row    int
	values []ir.IRValue
	next   int
}

func (m *materializer) row(n int, raw []any) (ir.IRObject, error) {
	if len(raw) != len(m.columns) {
		return nil, &MaterializeError{Row: n, Path: "*", Reason: fmt.Sprintf("expected %d columns, got %d", len(m.columns), len(raw))}
	}
	values := make([]ir.IRValue, len(raw))
	for i, c := range m.columns {
		v, err := decode(c, raw[i])
		if err != nil {
			return nil, &MaterializeError{Row: n, Path: c.Name(), Reason: err.Error()}
		}
		values[i] = v
	}

	s := &rowState{m: m, row: n, values: values}
	obj, _, err := s.group(m.shape, nil, true)
	return obj, err
}

// group rebuilds g. present reports whether any value inside it is
// non-null; nested groups that are not present are left out of their
// parent.
func (s *rowState) group(g projection.Group, path []string, top bool) (obj ir.IRObject, present bool, err error) {
	obj = ir.IRObject{}
	type nullLeaf struct {
		path string
		tag  ir.OptionalTag
	}
	var nulls []nullLeaf

	for _, e := range g.Entries() {
		p := append(append([]string(nil), path...), e.Name)
		switch f := e.Field.(type) {
		case projection.Leaf:
			v := s.values[s.next]
			s.next++
			if ir.IsNull(v) {
				nulls = append(nulls, nullLeaf{path: strings.Join(p, "."), tag: f.Node.Optional()})
				continue
			}
			obj[e.Name] = v
			present = true
		case projection.Group:
			sub, ok, err := s.group(f, p, false)
			if err != nil {
				return nil, false, err
			}
			if ok {
				obj[e.Name] = sub
				present = true
			}
		}
	}

	if !present && !top {
		if nullability.GroupMayBeAbsent(g) {
			return nil, false, nil
		}
		return nil, false, &MaterializeError{Row: s.row, Path: strings.Join(path, "."), Reason: "object with required values is null"}
	}
	for _, l := range nulls {
		if l.tag == ir.Required || (!top && l.tag == ir.RequiredInOptionalObject) {
			return nil, false, &MaterializeError{Row: s.row, Path: l.path, Reason: "required value is null"}
		}
	}
	return obj, present, nil
}

// decode converts a scanned driver value into the column's native value.
func decode(c sqlbuild.ResultColumn, raw any) (ir.IRValue, error) {
	if c.Aggregated {
		return decodeAggregated(c, raw)
	}
	return decodeScalar(raw, c.Type, c.Adapter)
}

func decodeScalar(raw any, vt ir.ValueType, a adapter.TypeAdapter) (ir.IRValue, error) {
	if t, ok := raw.(time.Time); ok {
		raw = formatTime(t, vt)
	}
	v, err := ir.FromDriver(raw)
	if err != nil {
		return nil, err
	}
	if a != nil {
		return adapter.FromDatabase(a, v, vt)
	}
	return coerce(v, vt)
}

func formatTime(t time.Time, vt ir.ValueType) string {
	switch vt {
	case ir.TypeLocalDate:
		return t.Format(time.DateOnly)
	case ir.TypeLocalTime:
		return t.Format(time.TimeOnly)
	case ir.TypeLocalDateTime:
		return t.Format("2006-01-02T15:04:05.999999999")
	}
	return t.Format(time.RFC3339Nano)
}

// coerce maps the loosely typed values drivers return (SQLite integers for
// booleans, MySQL text for numbers) onto the declared value type.
func coerce(v ir.IRValue, vt ir.ValueType) (ir.IRValue, error) {
	switch vt {
	case ir.TypeBoolean:
		switch x := v.(type) {
		case ir.IRInt:
			return ir.IRBool(x != 0), nil
		case ir.IRString:
			b, err := strconv.ParseBool(string(x))
			if err != nil {
				return nil, fmt.Errorf("invalid boolean %q", string(x))
			}
			return ir.IRBool(b), nil
		}
	case ir.TypeInt, ir.TypeBigint:
		switch x := v.(type) {
		case ir.IRString:
			i, err := strconv.ParseInt(string(x), 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid integer %q", string(x))
			}
			return ir.IRInt(i), nil
		case ir.IRDouble:
			return ir.IRInt(int64(x)), nil
		}
	case ir.TypeDouble:
		switch x := v.(type) {
		case ir.IRInt:
			return ir.IRDouble(float64(x)), nil
		case ir.IRString:
			f, err := strconv.ParseFloat(string(x), 64)
			if err != nil {
				return nil, fmt.Errorf("invalid double %q", string(x))
			}
			return ir.IRDouble(f), nil
		}
	}
	return v, nil
}

func decodeAggregated(c sqlbuild.ResultColumn, raw any) (ir.IRValue, error) {
	var data []byte
	switch x := raw.(type) {
	case nil:
		return ir.IRNull{}, nil
	case string:
		data = []byte(x)
	case []byte:
		data = x
	default:
		return nil, fmt.Errorf("aggregated array: unexpected driver value %T", raw)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var elems []any
	if err := dec.Decode(&elems); err != nil {
		return nil, fmt.Errorf("aggregated array: %w", err)
	}

	agg := aggregation(c)
	out := make(ir.IRArray, 0, len(elems))
	for i, elem := range elems {
		v, err := decodeElement(agg, elem)
		if err != nil {
			return nil, fmt.Errorf("aggregated array[%d]: %w", i, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func aggregation(c sqlbuild.ResultColumn) *expr.AggregatedArray {
	if c.Aggregation != nil {
		return c.Aggregation
	}
	return &expr.AggregatedArray{}
}

func decodeElement(agg *expr.AggregatedArray, elem any) (ir.IRValue, error) {
	if agg.IsSingleValue() {
		return decodeJSONScalar(elem, agg.Fields[0].Value)
	}
	fields, ok := elem.(map[string]any)
	if !ok {
		return ir.FromGo(elem)
	}
	obj := make(ir.IRObject, len(fields))
	for _, f := range agg.Fields {
		v, err := decodeJSONScalar(fields[f.Name], f.Value)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f.Name, err)
		}
		if !ir.IsNull(v) {
			obj[f.Name] = v
		}
	}
	return obj, nil
}

func decodeJSONScalar(raw any, n expr.Node) (ir.IRValue, error) {
	v, err := ir.FromGo(raw)
	if err != nil {
		return nil, err
	}
	if n.Adapter() != nil {
		return adapter.FromDatabase(n.Adapter(), v, n.ValueType())
	}
	return coerce(v, n.ValueType())
}
