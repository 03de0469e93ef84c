package memory

import (
	"fmt"

	"github.com/arkilian/enginebench/internal/cluster"
	"github.com/arkilian/enginebench/pkg/expr"
)

// relation is an intermediate query result: named columns of equal length.
type relation struct {
	names []expr.Symbol
	cols  []expr.Span
}

func (r *relation) rows() int {
	if len(r.cols) == 0 {
		return 0
	}
	return r.cols[0].Len()
}

func (r *relation) index(name expr.Symbol) int {
	for i, n := range r.names {
		if n == name {
			return i
		}
	}
	return -1
}

func (r *relation) add(name expr.Symbol, col expr.Span) error {
	if len(r.cols) > 0 && col.Len() != r.rows() {
		return fmt.Errorf("column %s has %d rows, expected %d", name, col.Len(), r.rows())
	}
	r.names = append(r.names, name)
	r.cols = append(r.cols, col)
	return nil
}

// take returns the rows at idx, in idx order.
func (r *relation) take(idx []uint32) (*relation, error) {
	out := &relation{names: r.names, cols: make([]expr.Span, len(r.cols))}
	for i, c := range r.cols {
		g, err := cluster.GatherSpan(c, idx)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", r.names[i], err)
		}
		out.cols[i] = g
	}
	return out, nil
}

// table renders r as Table[name[List[span]]...].
func (r *relation) table() *expr.Complex {
	cols := make([]*expr.Complex, len(r.cols))
	for i, c := range r.cols {
		cols[i] = expr.NewColumn(r.names[i], c)
	}
	return expr.NewTable(expr.Table, cols...)
}

// literal builds a relation from Table[col[List[...]]...] where every list
// carries spans, atoms, or DateObject nodes.
func literal(t *expr.Complex) (*relation, error) {
	r := &relation{}
	for _, a := range t.Args() {
		c, ok := a.(*expr.Complex)
		if !ok || c.NumArgs() != 1 {
			return nil, fmt.Errorf("table literal column must be name[List[...]], got %v", a)
		}
		list, ok := c.Arg(0).(*expr.Complex)
		if !ok || list.Head() != expr.List {
			return nil, fmt.Errorf("column %s does not wrap a List", c.Head())
		}
		col, err := listColumn(list)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", c.Head(), err)
		}
		if err := r.add(c.Head(), col); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func listColumn(list *expr.Complex) (expr.Span, error) {
	spans := list.Spans()
	if list.NumArgs() == 0 {
		switch len(spans) {
		case 0:
			return expr.NewBuffer([]int64{}), nil
		case 1:
			return spans[0], nil
		default:
			return expr.Concat(spans)
		}
	}
	if len(spans) > 0 {
		return nil, fmt.Errorf("list mixes atoms and spans")
	}

	values := make([]vec, list.NumArgs())
	for i, a := range list.Args() {
		v, err := constant(a)
		if err != nil {
			return nil, err
		}
		values[i] = v
	}
	typ := values[0].typ
	for _, v := range values {
		if v.typ != typ {
			// mixed int and float lists widen to float
			if v.numeric() && (typ == expr.Int64Type || typ == expr.Float64Type) {
				typ = expr.Float64Type
				continue
			}
			return nil, fmt.Errorf("list mixes %s and %s", typ, v.typ)
		}
	}
	switch typ {
	case expr.Int64Type:
		out := make([]int64, len(values))
		for i, v := range values {
			out[i] = v.int(0)
		}
		return expr.NewBuffer(out), nil
	case expr.Float64Type:
		out := make([]float64, len(values))
		for i, v := range values {
			out[i] = v.float(0)
		}
		return expr.NewBuffer(out), nil
	case expr.StringType:
		out := make([]string, len(values))
		for i, v := range values {
			out[i] = v.str(0)
		}
		return expr.NewBuffer(out), nil
	default:
		out := make([]bool, len(values))
		for i, v := range values {
			out[i] = v.boolean(0)
		}
		return expr.NewBuffer(out), nil
	}
}

// constant evaluates an expression that does not reference any column.
func constant(e expr.Expression) (vec, error) {
	empty := &relation{}
	v, err := empty.eval(e)
	if err != nil {
		return vec{}, err
	}
	if !v.constant {
		return vec{}, fmt.Errorf("%v is not a constant", e)
	}
	return v, nil
}
