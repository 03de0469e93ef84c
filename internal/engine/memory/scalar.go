package memory

import (
	"fmt"
	"strings"

	"github.com/arkilian/enginebench/pkg/expr"
)

// Scalar operators.
const (
	opGreater         expr.Symbol = "Greater"
	opEqual           expr.Symbol = "Equal"
	opAnd             expr.Symbol = "And"
	opOr              expr.Symbol = "Or"
	opNot             expr.Symbol = "Not"
	opPlus            expr.Symbol = "Plus"
	opMinus           expr.Symbol = "Minus"
	opTimes           expr.Symbol = "Times"
	opDivide          expr.Symbol = "Divide"
	opYear            expr.Symbol = "Year"
	opDateObject      expr.Symbol = "DateObject"
	opStringContainsQ expr.Symbol = "StringContainsQ"
)

// eval evaluates a scalar expression row-wise against r. Symbols resolve to
// columns of r; atoms become constants.
func (r *relation) eval(e expr.Expression) (vec, error) {
	switch x := e.(type) {
	case expr.Symbol:
		i := r.index(x)
		if i < 0 {
			return vec{}, fmt.Errorf("unknown column %s", x)
		}
		return vecOf(r.cols[i]), nil
	case expr.Int:
		return constInt(int64(x)), nil
	case expr.Float:
		return constFloat(float64(x)), nil
	case expr.String:
		return constString(string(x)), nil
	case expr.Bool:
		return constBool(bool(x)), nil
	case *expr.Complex:
		return r.evalCall(x)
	default:
		return vec{}, fmt.Errorf("cannot evaluate %v", e)
	}
}

func (r *relation) evalArgs(c *expr.Complex, arity int) ([]vec, error) {
	if arity >= 0 && c.NumArgs() != arity {
		return nil, fmt.Errorf("%s expects %d arguments, got %d", c.Head(), arity, c.NumArgs())
	}
	if c.NumArgs() == 0 {
		return nil, fmt.Errorf("%s expects arguments", c.Head())
	}
	out := make([]vec, c.NumArgs())
	for i, a := range c.Args() {
		v, err := r.eval(a)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (r *relation) evalCall(c *expr.Complex) (vec, error) {
	switch c.Head() {
	case opDateObject:
		args, err := r.evalArgs(c, 1)
		if err != nil {
			return vec{}, err
		}
		return r.dates(args[0])
	case opGreater:
		args, err := r.evalArgs(c, 2)
		if err != nil {
			return vec{}, err
		}
		return r.comparison(args[0], args[1], func(d int) bool { return d > 0 })
	case opEqual:
		args, err := r.evalArgs(c, 2)
		if err != nil {
			return vec{}, err
		}
		return r.comparison(args[0], args[1], func(d int) bool { return d == 0 })
	case opAnd, opOr:
		args, err := r.evalArgs(c, -1)
		if err != nil {
			return vec{}, err
		}
		return r.logical(args, c.Head() == opAnd)
	case opNot:
		args, err := r.evalArgs(c, 1)
		if err != nil {
			return vec{}, err
		}
		if args[0].typ != expr.BoolType {
			return vec{}, fmt.Errorf("Not expects a boolean, got %s", args[0].typ)
		}
		return r.mapBool(args[0], func(b bool) bool { return !b }), nil
	case opPlus, opMinus, opTimes, opDivide:
		args, err := r.evalArgs(c, -1)
		if err != nil {
			return vec{}, err
		}
		acc := args[0]
		for _, next := range args[1:] {
			if acc, err = r.arithmetic(c.Head(), acc, next); err != nil {
				return vec{}, err
			}
		}
		if len(args) == 1 && c.Head() == opMinus {
			return r.arithmetic(opMinus, constInt(0), acc)
		}
		return acc, nil
	case opYear:
		args, err := r.evalArgs(c, 1)
		if err != nil {
			return vec{}, err
		}
		if args[0].typ != expr.Int64Type {
			return vec{}, fmt.Errorf("Year expects a date, got %s", args[0].typ)
		}
		return r.mapInt(args[0], yearOf), nil
	case opStringContainsQ:
		args, err := r.evalArgs(c, 2)
		if err != nil {
			return vec{}, err
		}
		if args[0].typ != expr.StringType || args[1].typ != expr.StringType {
			return vec{}, fmt.Errorf("StringContainsQ expects strings")
		}
		n, constant := r.width(args[0], args[1])
		out := make([]bool, n)
		for i := range out {
			out[i] = strings.Contains(args[0].str(i), args[1].str(i))
		}
		return vec{typ: expr.BoolType, bools: out, constant: constant}, nil
	default:
		return vec{}, fmt.Errorf("unsupported scalar operator %s", c.Head())
	}
}

// width is the number of rows an operation over args produces, and whether
// the result is constant.
func (r *relation) width(args ...vec) (int, bool) {
	for _, a := range args {
		if !a.constant {
			return r.rows(), false
		}
	}
	return 1, true
}

func (r *relation) dates(v vec) (vec, error) {
	if v.typ != expr.StringType {
		return vec{}, fmt.Errorf("DateObject expects a YYYY-MM-DD string, got %s", v.typ)
	}
	n, constant := r.width(v)
	out := make([]int64, n)
	for i := range out {
		d, err := parseDate(v.str(i))
		if err != nil {
			return vec{}, fmt.Errorf("DateObject: %w", err)
		}
		out[i] = d
	}
	return vec{typ: expr.Int64Type, ints: out, constant: constant}, nil
}

func (r *relation) comparison(a, b vec, pred func(int) bool) (vec, error) {
	n, constant := r.width(a, b)
	out := make([]bool, n)
	for i := range out {
		c, err := compare(a, i, b, i)
		if err != nil {
			return vec{}, err
		}
		out[i] = pred(c)
	}
	return vec{typ: expr.BoolType, bools: out, constant: constant}, nil
}

func (r *relation) logical(args []vec, and bool) (vec, error) {
	for _, a := range args {
		if a.typ != expr.BoolType {
			return vec{}, fmt.Errorf("logical operator expects booleans, got %s", a.typ)
		}
	}
	n, constant := r.width(args...)
	out := make([]bool, n)
	for i := range out {
		acc := and
		for _, a := range args {
			if and {
				acc = acc && a.boolean(i)
			} else {
				acc = acc || a.boolean(i)
			}
		}
		out[i] = acc
	}
	return vec{typ: expr.BoolType, bools: out, constant: constant}, nil
}

func (r *relation) mapBool(v vec, f func(bool) bool) vec {
	n, constant := r.width(v)
	out := make([]bool, n)
	for i := range out {
		out[i] = f(v.boolean(i))
	}
	return vec{typ: expr.BoolType, bools: out, constant: constant}
}

func (r *relation) mapInt(v vec, f func(int64) int64) vec {
	n, constant := r.width(v)
	out := make([]int64, n)
	for i := range out {
		out[i] = f(v.int(i))
	}
	return vec{typ: expr.Int64Type, ints: out, constant: constant}
}

// arithmetic keeps int64 when both sides are int64, except for Divide which
// always yields float64.
func (r *relation) arithmetic(op expr.Symbol, a, b vec) (vec, error) {
	if !a.numeric() || !b.numeric() {
		return vec{}, fmt.Errorf("%s expects numbers, got %s and %s", op, a.typ, b.typ)
	}
	n, constant := r.width(a, b)
	if a.typ == expr.Int64Type && b.typ == expr.Int64Type && op != opDivide {
		out := make([]int64, n)
		for i := range out {
			x, y := a.int(i), b.int(i)
			switch op {
			case opPlus:
				out[i] = x + y
			case opMinus:
				out[i] = x - y
			default:
				out[i] = x * y
			}
		}
		return vec{typ: expr.Int64Type, ints: out, constant: constant}, nil
	}
	out := make([]float64, n)
	for i := range out {
		x, y := a.float(i), b.float(i)
		switch op {
		case opPlus:
			out[i] = x + y
		case opMinus:
			out[i] = x - y
		case opTimes:
			out[i] = x * y
		default:
			out[i] = x / y
		}
	}
	return vec{typ: expr.Float64Type, floats: out, constant: constant}, nil
}

// selection returns the indices of rows where mask holds.
func (r *relation) selection(mask vec) ([]uint32, error) {
	if mask.typ != expr.BoolType {
		return nil, fmt.Errorf("predicate must be boolean, got %s", mask.typ)
	}
	n := r.rows()
	idx := make([]uint32, 0, n)
	for i := 0; i < n; i++ {
		if mask.boolean(i) {
			idx = append(idx, uint32(i))
		}
	}
	return idx, nil
}
