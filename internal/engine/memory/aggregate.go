package memory

import (
	"fmt"

	"github.com/arkilian/enginebench/pkg/expr"
)

// AggregateType represents the type of aggregate function.
type AggregateType int

const (
	AggCount AggregateType = iota
	AggSum
	AggMin
	AggMax
	AggAvg
)

// ParseAggregateType converts an aggregate head to AggregateType.
func ParseAggregateType(head expr.Symbol) (AggregateType, error) {
	switch head {
	case "Count":
		return AggCount, nil
	case "Sum":
		return AggSum, nil
	case "Min":
		return AggMin, nil
	case "Max":
		return AggMax, nil
	case "Avg":
		return AggAvg, nil
	default:
		return 0, fmt.Errorf("unknown aggregate function: %s", head)
	}
}

// countAll is the argument of Count that counts rows rather than values.
const countAll expr.Symbol = "*"

// aggregateSpec is one output column of a Group.
type aggregateSpec struct {
	name expr.Symbol
	typ  AggregateType
	arg  expr.Expression
}

// parseAggregate reads Sum[x], Count[*], ... . Unnamed aggregates are named
// after their argument.
func parseAggregate(e expr.Expression, name expr.Symbol) (aggregateSpec, error) {
	c, ok := e.(*expr.Complex)
	if !ok || c.NumArgs() != 1 {
		return aggregateSpec{}, fmt.Errorf("expected an aggregate call, got %v", e)
	}
	typ, err := ParseAggregateType(c.Head())
	if err != nil {
		return aggregateSpec{}, err
	}
	if name == "" {
		switch a := c.Arg(0).(type) {
		case expr.Symbol:
			name = a
			if a == countAll {
				name = "count"
			}
		default:
			name = expr.Symbol(c.Head())
		}
	}
	return aggregateSpec{name: name, typ: typ, arg: c.Arg(0)}, nil
}

// partial accumulates one aggregate for one group. For AVG both sum and
// count are tracked.
type partial struct {
	count int64
	sumI  int64
	sumF  float64
	best  int // row index of the current min or max, -1 if unset
}

// aggregateColumn computes spec over the input rows. groupOf maps every row
// to its group in [0, groups).
func (r *relation) aggregateColumn(spec aggregateSpec, groupOf []int, groups int) (expr.Span, error) {
	parts := make([]partial, groups)
	for g := range parts {
		parts[g].best = -1
	}

	if spec.typ == AggCount && spec.arg == countAll {
		for _, g := range groupOf {
			parts[g].count++
		}
		return countResult(parts), nil
	}

	in, err := r.eval(spec.arg)
	if err != nil {
		return nil, err
	}

	switch spec.typ {
	case AggCount:
		for _, g := range groupOf {
			parts[g].count++
		}
		return countResult(parts), nil

	case AggSum, AggAvg:
		if !in.numeric() {
			return nil, fmt.Errorf("cannot aggregate %s values", in.typ)
		}
		for i, g := range groupOf {
			p := &parts[g]
			p.count++
			if in.typ == expr.Int64Type {
				p.sumI += in.int(i)
			} else {
				p.sumF += in.float(i)
			}
		}
		if spec.typ == AggSum && in.typ == expr.Int64Type {
			out := make([]int64, groups)
			for g, p := range parts {
				out[g] = p.sumI
			}
			return expr.NewBuffer(out), nil
		}
		out := make([]float64, groups)
		for g, p := range parts {
			sum := p.sumF + float64(p.sumI)
			if spec.typ == AggAvg {
				if p.count == 0 {
					continue
				}
				sum /= float64(p.count)
			}
			out[g] = sum
		}
		return expr.NewBuffer(out), nil

	default:
		if in.typ == expr.BoolType {
			return nil, fmt.Errorf("cannot aggregate %s values", in.typ)
		}
		for i, g := range groupOf {
			p := &parts[g]
			p.count++
			if p.best < 0 {
				p.best = i
				continue
			}
			c, _ := compare(in, i, in, p.best)
			if (spec.typ == AggMin && c < 0) || (spec.typ == AggMax && c > 0) {
				p.best = i
			}
		}
		idx := make([]uint32, groups)
		for g, p := range parts {
			if p.best < 0 {
				return nil, fmt.Errorf("%v over an empty input", spec.name)
			}
			idx[g] = uint32(p.best)
		}
		if in.constant {
			return in.span(groups), nil
		}
		return (&relation{names: []expr.Symbol{spec.name}, cols: []expr.Span{in.span(r.rows())}}).takeColumn(idx)
	}
}

func countResult(parts []partial) expr.Span {
	out := make([]int64, len(parts))
	for g, p := range parts {
		out[g] = p.count
	}
	return expr.NewBuffer(out)
}

func (r *relation) takeColumn(idx []uint32) (expr.Span, error) {
	out, err := r.take(idx)
	if err != nil {
		return nil, err
	}
	return out.cols[0], nil
}
