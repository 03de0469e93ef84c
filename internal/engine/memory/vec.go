package memory

import (
	"fmt"
	"time"

	"github.com/arkilian/enginebench/pkg/expr"
)

// vec is a typed column of evaluated scalar values. A constant vec holds a
// single element that stands for every row. When src is set the vec aliases
// an existing span, and that span is reused instead of copying on output.
type vec struct {
	typ      expr.ElementType
	ints     []int64
	floats   []float64
	strs     []string
	bools    []bool
	constant bool
	src      expr.Span
}

func vecOf(s expr.Span) vec {
	v := vec{typ: s.ElementType(), src: s}
	switch v.typ {
	case expr.Int64Type:
		v.ints, _ = expr.Values[int64](s)
	case expr.Float64Type:
		v.floats, _ = expr.Values[float64](s)
	case expr.StringType:
		v.strs, _ = expr.Values[string](s)
	default:
		v.bools, _ = expr.Values[bool](s)
	}
	return v
}

func constInt(x int64) vec {
	return vec{typ: expr.Int64Type, ints: []int64{x}, constant: true}
}

func constFloat(x float64) vec {
	return vec{typ: expr.Float64Type, floats: []float64{x}, constant: true}
}

func constString(x string) vec {
	return vec{typ: expr.StringType, strs: []string{x}, constant: true}
}

func constBool(x bool) vec {
	return vec{typ: expr.BoolType, bools: []bool{x}, constant: true}
}

func (v vec) at(i int) int {
	if v.constant {
		return 0
	}
	return i
}

func (v vec) numeric() bool {
	return v.typ == expr.Int64Type || v.typ == expr.Float64Type
}

func (v vec) float(i int) float64 {
	if v.typ == expr.Int64Type {
		return float64(v.ints[v.at(i)])
	}
	return v.floats[v.at(i)]
}

func (v vec) int(i int) int64    { return v.ints[v.at(i)] }
func (v vec) str(i int) string   { return v.strs[v.at(i)] }
func (v vec) boolean(i int) bool { return v.bools[v.at(i)] }

// value returns row i as an atom.
func (v vec) value(i int) expr.Expression {
	switch v.typ {
	case expr.Int64Type:
		return expr.Int(v.int(i))
	case expr.Float64Type:
		return expr.Float(v.float(i))
	case expr.StringType:
		return expr.String(v.str(i))
	default:
		return expr.Bool(v.boolean(i))
	}
}

// span returns v as a span of n rows, broadcasting constants.
func (v vec) span(n int) expr.Span {
	if v.src != nil {
		return v.src
	}
	if !v.constant {
		switch v.typ {
		case expr.Int64Type:
			return expr.NewBuffer(v.ints)
		case expr.Float64Type:
			return expr.NewBuffer(v.floats)
		case expr.StringType:
			return expr.NewBuffer(v.strs)
		default:
			return expr.NewBuffer(v.bools)
		}
	}
	switch v.typ {
	case expr.Int64Type:
		return expr.NewBuffer(broadcast(v.ints[0], n))
	case expr.Float64Type:
		return expr.NewBuffer(broadcast(v.floats[0], n))
	case expr.StringType:
		return expr.NewBuffer(broadcast(v.strs[0], n))
	default:
		return expr.NewBuffer(broadcast(v.bools[0], n))
	}
}

func broadcast[T expr.Element](x T, n int) []T {
	out := make([]T, n)
	for i := range out {
		out[i] = x
	}
	return out
}

// compare orders row i of a against row j of b. Numeric types compare by
// value regardless of width.
func compare(a vec, i int, b vec, j int) (int, error) {
	switch {
	case a.typ == expr.Int64Type && b.typ == expr.Int64Type:
		return cmp3(a.int(i), b.int(j)), nil
	case a.numeric() && b.numeric():
		return cmp3(a.float(i), b.float(j)), nil
	case a.typ == expr.StringType && b.typ == expr.StringType:
		return cmp3(a.str(i), b.str(j)), nil
	case a.typ == expr.BoolType && b.typ == expr.BoolType:
		x, y := a.boolean(i), b.boolean(j)
		switch {
		case x == y:
			return 0, nil
		case !x:
			return -1, nil
		default:
			return 1, nil
		}
	default:
		return 0, fmt.Errorf("cannot compare %s with %s", a.typ, b.typ)
	}
}

func cmp3[T int64 | float64 | string](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

const secondsPerDay = 24 * 60 * 60

// parseDate converts YYYY-MM-DD into days since the Unix epoch.
func parseDate(s string) (int64, error) {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return 0, err
	}
	return t.Unix() / secondsPerDay, nil
}

func yearOf(days int64) int64 {
	return int64(time.Unix(days*secondsPerDay, 0).UTC().Year())
}
