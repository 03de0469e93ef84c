package memory

import (
	"fmt"
	"sort"

	log "github.com/sirupsen/logrus"

	"github.com/arkilian/enginebench/pkg/expr"
)

// Relational operators.
const (
	opProject expr.Symbol = "Project"
	opSelect  expr.Symbol = "Select"
	opGroup   expr.Symbol = "Group"
	opOrder   expr.Symbol = "Order"
	opTop     expr.Symbol = "Top"
	opJoin    expr.Symbol = "Join"

	argAs    expr.Symbol = "As"
	argWhere expr.Symbol = "Where"
	argBy    expr.Symbol = "By"
	argDesc  expr.Symbol = "desc"
)

func isRelational(head expr.Symbol) bool {
	switch head {
	case expr.Table, expr.Data, opProject, opSelect, opGroup, opOrder, opTop, opJoin:
		return true
	default:
		return false
	}
}

// relation evaluates a relational expression.
func (e *Engine) relation(x expr.Expression) (*relation, error) {
	switch v := x.(type) {
	case expr.Symbol:
		return e.scan(v)
	case *expr.Complex:
		switch v.Head() {
		case expr.Table, expr.Data:
			return literal(v)
		case opProject:
			return e.project(v)
		case opSelect:
			return e.selectRows(v)
		case opGroup:
			return e.group(v)
		case opOrder:
			return e.order(v, -1)
		case opTop:
			return e.top(v)
		case opJoin:
			return e.join(v)
		}
		return nil, fmt.Errorf("%s is not a relation", v.Head())
	default:
		return nil, fmt.Errorf("%v is not a relation", x)
	}
}

// clause returns the single argument of head[arg], the wrapper used by
// Where.
func clause(x expr.Expression, head expr.Symbol) (expr.Expression, error) {
	c, ok := x.(*expr.Complex)
	if !ok || c.Head() != head || c.NumArgs() != 1 {
		return nil, fmt.Errorf("expected %s[...], got %v", head, x)
	}
	return c.Arg(0), nil
}

func (e *Engine) project(c *expr.Complex) (*relation, error) {
	if c.NumArgs() != 2 {
		return nil, fmt.Errorf("Project expects a relation and As[...]")
	}
	in, err := e.relation(c.Arg(0))
	if err != nil {
		return nil, err
	}
	as, ok := c.Arg(1).(*expr.Complex)
	if !ok || as.Head() != argAs || as.NumArgs()%2 != 0 {
		return nil, fmt.Errorf("Project expects As[name, expr, ...]")
	}
	out := &relation{}
	n := in.rows()
	for i := 0; i < as.NumArgs(); i += 2 {
		name, ok := as.Arg(i).(expr.Symbol)
		if !ok {
			return nil, fmt.Errorf("projection name must be a symbol, got %v", as.Arg(i))
		}
		v, err := in.eval(as.Arg(i + 1))
		if err != nil {
			return nil, err
		}
		if err := out.add(name, v.span(n)); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (e *Engine) selectRows(c *expr.Complex) (*relation, error) {
	if c.NumArgs() != 2 {
		return nil, fmt.Errorf("Select expects a relation and Where[...]")
	}
	in, err := e.relation(c.Arg(0))
	if err != nil {
		return nil, err
	}
	pred, err := clause(c.Arg(1), argWhere)
	if err != nil {
		return nil, err
	}
	mask, err := in.eval(pred)
	if err != nil {
		return nil, err
	}
	idx, err := in.selection(mask)
	if err != nil {
		return nil, err
	}
	return in.take(idx)
}

// group evaluates Group[rel, By[keys...]?, aggregates...] where aggregates are
// bare calls or As[name, call, ...].
func (e *Engine) group(c *expr.Complex) (*relation, error) {
	if c.NumArgs() < 2 {
		return nil, fmt.Errorf("Group expects a relation and aggregates")
	}
	in, err := e.relation(c.Arg(0))
	if err != nil {
		return nil, err
	}

	rest := c.Args()[1:]
	var keyNames []expr.Symbol
	if by, ok := rest[0].(*expr.Complex); ok && by.Head() == argBy {
		for _, k := range by.Args() {
			name, ok := k.(expr.Symbol)
			if !ok {
				return nil, fmt.Errorf("group key must be a column, got %v", k)
			}
			keyNames = append(keyNames, name)
		}
		rest = rest[1:]
	}

	var specs []aggregateSpec
	for _, a := range rest {
		if as, ok := a.(*expr.Complex); ok && as.Head() == argAs {
			if as.NumArgs()%2 != 0 {
				return nil, fmt.Errorf("As expects name/aggregate pairs")
			}
			for i := 0; i < as.NumArgs(); i += 2 {
				name, ok := as.Arg(i).(expr.Symbol)
				if !ok {
					return nil, fmt.Errorf("aggregate name must be a symbol, got %v", as.Arg(i))
				}
				spec, err := parseAggregate(as.Arg(i+1), name)
				if err != nil {
					return nil, err
				}
				specs = append(specs, spec)
			}
			continue
		}
		spec, err := parseAggregate(a, "")
		if err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}

	rows := in.rows()
	var (
		groupOf []int
		firsts  []uint32
	)
	if len(keyNames) == 0 {
		groupOf = make([]int, rows)
		firsts = []uint32{0}
	} else {
		keys := make([]vec, len(keyNames))
		for i, k := range keyNames {
			if keys[i], err = in.eval(k); err != nil {
				return nil, err
			}
		}
		groupOf, firsts = groupRows(keys, rows)
	}

	out := &relation{}
	if len(keyNames) > 0 {
		keyRel := &relation{}
		for _, k := range keyNames {
			_ = keyRel.add(k, in.cols[in.index(k)])
		}
		taken, err := keyRel.take(firsts)
		if err != nil {
			return nil, err
		}
		out.names, out.cols = taken.names, taken.cols
	}
	for _, spec := range specs {
		col, err := in.aggregateColumn(spec, groupOf, len(firsts))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", spec.name, err)
		}
		if err := out.add(spec.name, col); err != nil {
			return nil, err
		}
	}
	return out, nil
}

type sortKey struct {
	v    vec
	desc bool
}

// sortKeys reads By[k1, k2, desc, ...]; desc applies to the key before it.
func sortKeys(in *relation, by expr.Expression) ([]sortKey, error) {
	c, ok := by.(*expr.Complex)
	if !ok || c.Head() != argBy || c.NumArgs() == 0 {
		return nil, fmt.Errorf("expected By[...], got %v", by)
	}
	var keys []sortKey
	for _, a := range c.Args() {
		name, ok := a.(expr.Symbol)
		if !ok {
			return nil, fmt.Errorf("sort key must be a column, got %v", a)
		}
		if name == argDesc {
			if len(keys) == 0 {
				return nil, fmt.Errorf("desc must follow a sort key")
			}
			keys[len(keys)-1].desc = true
			continue
		}
		v, err := in.eval(name)
		if err != nil {
			return nil, err
		}
		keys = append(keys, sortKey{v: v})
	}
	return keys, nil
}

// order sorts Order[rel, By[...]] or Top[rel, By[...], n]; limit < 0 keeps
// every row. The sort is stable.
func (e *Engine) order(c *expr.Complex, limit int) (*relation, error) {
	if c.NumArgs() < 2 {
		return nil, fmt.Errorf("%s expects a relation and By[...]", c.Head())
	}
	in, err := e.relation(c.Arg(0))
	if err != nil {
		return nil, err
	}
	keys, err := sortKeys(in, c.Arg(1))
	if err != nil {
		return nil, err
	}

	idx := make([]uint32, in.rows())
	for i := range idx {
		idx[i] = uint32(i)
	}
	sort.SliceStable(idx, func(i, j int) bool {
		a, b := int(idx[i]), int(idx[j])
		for _, k := range keys {
			d, _ := compare(k.v, a, k.v, b)
			if d == 0 {
				continue
			}
			if k.desc {
				return d > 0
			}
			return d < 0
		}
		return false
	})
	if limit >= 0 && limit < len(idx) {
		idx = idx[:limit]
	}
	return in.take(idx)
}

func (e *Engine) top(c *expr.Complex) (*relation, error) {
	if c.NumArgs() != 3 {
		return nil, fmt.Errorf("Top expects a relation, By[...] and a row count")
	}
	n, ok := c.Arg(2).(expr.Int)
	if !ok || n < 0 {
		return nil, fmt.Errorf("Top row count must be a non-negative integer, got %v", c.Arg(2))
	}
	return e.order(c, int(n))
}

// join evaluates Join[build, outer, Where[Equal[a, b]]] where a and b are
// columns or List[...] of columns. Output rows follow outer order; columns
// are the build columns followed by the outer columns.
func (e *Engine) join(c *expr.Complex) (*relation, error) {
	if c.NumArgs() != 3 {
		return nil, fmt.Errorf("Join expects two relations and Where[...]")
	}
	build, err := e.relation(c.Arg(0))
	if err != nil {
		return nil, err
	}
	outer, err := e.relation(c.Arg(1))
	if err != nil {
		return nil, err
	}
	pred, err := clause(c.Arg(2), argWhere)
	if err != nil {
		return nil, err
	}
	eq, ok := pred.(*expr.Complex)
	if !ok || eq.Head() != opEqual || eq.NumArgs() != 2 {
		return nil, fmt.Errorf("Join supports Where[Equal[...]] only, got %v", pred)
	}

	left, right := joinColumns(eq.Arg(0)), joinColumns(eq.Arg(1))
	if len(left) == 0 || len(left) != len(right) {
		return nil, fmt.Errorf("Join keys must be matching columns or lists of columns")
	}
	// either side of Equal may name the build relation
	if build.index(left[0]) < 0 {
		left, right = right, left
	}
	buildKeys, err := keyVecs(build, left)
	if err != nil {
		return nil, err
	}
	outerKeys, err := keyVecs(outer, right)
	if err != nil {
		return nil, err
	}
	for i := range buildKeys {
		if buildKeys[i].typ != outerKeys[i].typ {
			return nil, fmt.Errorf("Join key %s is %s but %s is %s", left[i], buildKeys[i].typ, right[i], outerKeys[i].typ)
		}
	}

	table := newHashTable(buildKeys, build.rows())
	var (
		buildIdx, outerIdx []uint32
		hasher             keyHasher
	)
	for row := 0; row < outer.rows(); row++ {
		table.lookup(outerKeys, row, &hasher, func(match int) {
			buildIdx = append(buildIdx, uint32(match))
			outerIdx = append(outerIdx, uint32(row))
		})
	}

	e.logger.WithFields(log.Fields{
		"build":    build.rows(),
		"outer":    outer.rows(),
		"filtered": table.filtered,
		"fpr":      table.filter.falsePositiveRate(),
	}).Debug("join")

	l, err := build.take(buildIdx)
	if err != nil {
		return nil, err
	}
	r, err := outer.take(outerIdx)
	if err != nil {
		return nil, err
	}
	return &relation{
		names: append(append([]expr.Symbol{}, l.names...), r.names...),
		cols:  append(append([]expr.Span{}, l.cols...), r.cols...),
	}, nil
}

func joinColumns(x expr.Expression) []expr.Symbol {
	switch v := x.(type) {
	case expr.Symbol:
		return []expr.Symbol{v}
	case *expr.Complex:
		if v.Head() != expr.List {
			return nil
		}
		out := make([]expr.Symbol, 0, v.NumArgs())
		for _, a := range v.Args() {
			s, ok := a.(expr.Symbol)
			if !ok {
				return nil
			}
			out = append(out, s)
		}
		return out
	default:
		return nil
	}
}

func keyVecs(r *relation, names []expr.Symbol) ([]vec, error) {
	out := make([]vec, len(names))
	for i, n := range names {
		v, err := r.eval(n)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
