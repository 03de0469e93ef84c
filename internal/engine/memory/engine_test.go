package memory

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arkilian/enginebench/internal/engine"
	"github.com/arkilian/enginebench/pkg/expr"
)

func call(head string, args ...any) *expr.Complex { return expr.Symbol(head).Call(args...) }

func sym(s string) expr.Symbol { return expr.Symbol(s) }

// columnValues extracts a single-segment column of a Table result.
func columnValues[T expr.Element](t *testing.T, out expr.Expression, name string) []T {
	t.Helper()
	require.False(t, expr.IsError(out), "unexpected error: %v", out)
	c, ok := out.(*expr.Complex)
	require.True(t, ok, "result is not complex: %v", out)
	require.Equal(t, expr.Table, c.Head())
	for _, col := range c.Args() {
		colName, segs, err := expr.ColumnSegments(col)
		require.NoError(t, err)
		if string(colName) != name {
			continue
		}
		require.Len(t, segs, 1)
		vals, ok := expr.Values[T](segs[0])
		require.True(t, ok, "column %s has type %s", name, segs[0].ElementType())
		return vals
	}
	t.Fatalf("column %s not found in %v", name, out)
	return nil
}

func literalLineitem() *expr.Complex {
	list := func(args ...any) *expr.Complex { return call("List", args...) }
	date := func(s string) *expr.Complex { return call("DateObject", s) }
	return call("Table",
		call("L_ORDERKEY", list(1, 1, 2, 3)),
		call("L_PARTKEY", list(1, 2, 3, 4)),
		call("L_SUPPKEY", list(1, 2, 3, 4)),
		call("L_RETURNFLAG", list("N", "N", "A", "A")),
		call("L_LINESTATUS", list("O", "O", "F", "F")),
		call("L_RETURNFLAG_INT", list(int64('N'), int64('N'), int64('A'), int64('A'))),
		call("L_LINESTATUS_INT", list(int64('O'), int64('O'), int64('F'), int64('F'))),
		call("L_QUANTITY", list(17, 21, 8, 5)),
		call("L_EXTENDEDPRICE", list(17954.55, 34850.16, 7712.48, 25284.00)),
		call("L_DISCOUNT", list(0.10, 0.05, 0.06, 0.06)),
		call("L_TAX", list(0.02, 0.06, 0.02, 0.06)),
		call("L_SHIPDATE", list(date("1992-03-13"), date("1994-04-12"), date("1996-02-28"), date("1994-12-31"))),
	)
}

func q6(rel expr.Expression) *expr.Complex {
	return call("Group",
		call("Project",
			call("Select",
				call("Project", rel, call("As",
					sym("L_QUANTITY"), sym("L_QUANTITY"), sym("L_DISCOUNT"), sym("L_DISCOUNT"),
					sym("L_SHIPDATE"), sym("L_SHIPDATE"), sym("L_EXTENDEDPRICE"), sym("L_EXTENDEDPRICE"))),
				call("Where", call("And",
					call("Greater", 24, sym("L_QUANTITY")),
					call("Greater", sym("L_DISCOUNT"), 0.0499),
					call("Greater", 0.07001, sym("L_DISCOUNT")),
					call("Greater", call("DateObject", "1995-01-01"), sym("L_SHIPDATE")),
					call("Greater", sym("L_SHIPDATE"), call("DateObject", "1993-12-31"))))),
			call("As", sym("revenue"), call("Times", sym("L_EXTENDEDPRICE"), sym("L_DISCOUNT")))),
		call("Sum", sym("revenue")))
}

func TestLiteralQ6(t *testing.T) {
	e := New()
	out := e.Evaluate(q6(literalLineitem()))

	revenue := columnValues[float64](t, out, "revenue")
	require.Len(t, revenue, 1)
	// rows 1 and 3 pass: 34850.16*0.05 + 25284.00*0.06
	assert.InDelta(t, 3259.548, revenue[0], 1e-6)
}

func TestSelectOverLiteralKeepsMatchingRows(t *testing.T) {
	e := New()
	out := e.Evaluate(call("Select", literalLineitem(), call("Where", call("Greater", 24, sym("L_QUANTITY")))))
	assert.Equal(t, []int64{17, 21, 8, 5}, columnValues[int64](t, out, "L_QUANTITY"))

	out = e.Evaluate(call("Select", literalLineitem(), call("Where", call("StringContainsQ", sym("L_RETURNFLAG"), "N"))))
	assert.Equal(t, []float64{17954.55, 34850.16}, columnValues[float64](t, out, "L_EXTENDEDPRICE"))
}

func createAndLoad(t *testing.T, e *Engine, name string, cols ...*expr.Complex) {
	t.Helper()
	names := []any{sym(name)}
	for _, c := range cols {
		names = append(names, c.Head())
	}
	require.Equal(t, expr.Bool(true), e.Evaluate(call("CreateTable", names...)))
	require.Equal(t, expr.Bool(true), e.Evaluate(call("LoadDataTable", sym(name), expr.NewTable(expr.Data, cols...))))
}

func TestLoadDataTableAdoptsBuffers(t *testing.T) {
	e := New()
	keys := expr.NewBuffer([]int64{3, 1, 2})
	createAndLoad(t, e, "T", expr.NewColumn("key", keys))

	out := e.Evaluate(sym("T"))
	vals := columnValues[int64](t, out, "key")
	assert.Same(t, &keys.Values()[0], &vals[0])
	assert.Equal(t, map[expr.Symbol]int{"T": 3}, e.Tables())

	require.Equal(t, expr.Bool(true), e.Evaluate(call("DropTable", sym("T"))))
	assert.True(t, keys.Released())
	assert.Empty(t, e.Tables())
}

func TestLoadDataTableCopiesBorrowedSpans(t *testing.T) {
	e := New()
	owner := expr.NewBuffer([]float64{1.5, 2.5})
	createAndLoad(t, e, "T", expr.NewColumn("x", owner.View()))

	owner.Values()[0] = 9
	assert.Equal(t, []float64{1.5, 2.5}, columnValues[float64](t, e.Evaluate(sym("T")), "x"))
}

func TestLoadDataTableConcatenatesAndAppends(t *testing.T) {
	e := New()
	createAndLoad(t, e, "T", expr.NewColumn("x", expr.NewBuffer([]int64{1}), expr.NewBuffer([]int64{2, 3})))
	require.Equal(t, expr.Bool(true), e.Evaluate(call("LoadDataTable", sym("T"),
		expr.NewTable(expr.Data, expr.NewColumn("x", expr.NewBuffer([]int64{4}))))))

	assert.Equal(t, []int64{1, 2, 3, 4}, columnValues[int64](t, e.Evaluate(sym("T")), "x"))
}

func TestLoadDataTableAdoptsSchemaOfColumnlessTable(t *testing.T) {
	e := New()
	require.Equal(t, expr.Bool(true), e.Evaluate(call("CreateTable", sym("C"))))
	require.Equal(t, expr.Bool(true), e.Evaluate(call("LoadDataTable", sym("C"), expr.NewTable(expr.Data,
		expr.NewColumn("b", expr.NewBuffer([]string{"x", "y"})),
		expr.NewColumn("a", expr.NewBuffer([]int64{1, 2}))))))

	out, ok := e.Evaluate(sym("C")).(*expr.Complex)
	require.True(t, ok)
	require.Equal(t, 2, out.NumArgs())
	assert.True(t, expr.HasHead(out.Arg(0), "b"))
	assert.True(t, expr.HasHead(out.Arg(1), "a"))
	assert.Equal(t, []int64{1, 2}, columnValues[int64](t, out, "a"))
}

func TestLoadDataTableErrors(t *testing.T) {
	e := New()
	out := e.Evaluate(call("LoadDataTable", sym("MISSING"), expr.NewTable(expr.Data)))
	assert.True(t, expr.IsError(out))

	e.Evaluate(call("CreateTable", sym("T"), sym("a"), sym("b")))
	out = e.Evaluate(call("LoadDataTable", sym("T"), expr.NewTable(expr.Data, expr.NewColumn("a", expr.NewBuffer([]int64{1})))))
	assert.True(t, expr.IsError(out))
}

func TestLoadDataTableReleasesRejectedBuffers(t *testing.T) {
	e := New()
	require.Equal(t, expr.Bool(true), e.Evaluate(call("CreateTable", sym("T"), sym("a"), sym("b"))))

	tests := []struct {
		name string
		cols func() ([]*expr.Buffer[int64], []*expr.Complex)
	}{
		{"missing column", func() ([]*expr.Buffer[int64], []*expr.Complex) {
			a := expr.NewBuffer([]int64{1})
			return []*expr.Buffer[int64]{a}, []*expr.Complex{expr.NewColumn("a", a)}
		}},
		{"repeated column", func() ([]*expr.Buffer[int64], []*expr.Complex) {
			a, b, a2 := expr.NewBuffer([]int64{1}), expr.NewBuffer([]int64{2}), expr.NewBuffer([]int64{3})
			return []*expr.Buffer[int64]{a, b, a2}, []*expr.Complex{
				expr.NewColumn("a", a), expr.NewColumn("b", b), expr.NewColumn("a", a2)}
		}},
		{"row count mismatch", func() ([]*expr.Buffer[int64], []*expr.Complex) {
			a, b1, b2 := expr.NewBuffer([]int64{1, 2}), expr.NewBuffer([]int64{1}), expr.NewBuffer([]int64{2, 3})
			return []*expr.Buffer[int64]{a, b1, b2}, []*expr.Complex{
				expr.NewColumn("a", a), expr.NewColumn("b", b1, b2)}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bufs, cols := tt.cols()
			out := e.Evaluate(call("LoadDataTable", sym("T"), expr.NewTable(expr.Data, cols...)))
			require.True(t, expr.IsError(out))
			for i, b := range bufs {
				assert.True(t, b.Released(), "buffer %d", i)
			}
		})
	}
	assert.Equal(t, map[expr.Symbol]int{"T": 0}, e.Tables())
}

func TestLoadDataTableReleasesCopiedSegments(t *testing.T) {
	e := New()
	first, second := expr.NewBuffer([]int64{1}), expr.NewBuffer([]int64{2, 3})
	createAndLoad(t, e, "T", expr.NewColumn("x", first, second))
	assert.True(t, first.Released(), "concatenated segments are copied")
	assert.True(t, second.Released())

	kept := expr.NewBuffer([]int64{4})
	require.Equal(t, expr.Bool(true), e.Evaluate(call("LoadDataTable", sym("T"),
		expr.NewTable(expr.Data, expr.NewColumn("x", kept)))))
	assert.True(t, kept.Released(), "appended rows are copied")
	assert.Equal(t, []int64{1, 2, 3, 4}, columnValues[int64](t, e.Evaluate(sym("T")), "x"))
}

func TestDropAbsentTableSucceeds(t *testing.T) {
	assert.Equal(t, expr.Bool(true), New().Evaluate(call("DropTable", sym("NOPE"))))
}

func TestLoadTbl(t *testing.T) {
	path := filepath.Join(t.TempDir(), "orders.tbl")
	content := "1|36901|O|173665.47|1996-01-02|5-LOW|\n" +
		"2|78002|O|46929.18|1996-12-01|1-URGENT|\n" +
		"3|123314|F|193846.25|1993-10-14|5-LOW|\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	e := New()
	e.Evaluate(call("CreateTable", sym("ORDERS"), sym("o_orderkey"), sym("o_custkey"),
		sym("o_orderstatus"), sym("o_totalprice"), sym("o_orderdate"), sym("o_orderpriority")))
	require.Equal(t, expr.Bool(true), e.Evaluate(call("Load", sym("ORDERS"), path)))

	out := e.Evaluate(call("Project", sym("ORDERS"), call("As",
		sym("o_orderkey"), sym("o_orderkey"),
		sym("o_totalprice"), sym("o_totalprice"),
		sym("o_orderstatus"), sym("o_orderstatus"),
		sym("year"), call("Year", sym("o_orderdate")))))
	assert.Equal(t, []int64{1, 2, 3}, columnValues[int64](t, out, "o_orderkey"))
	assert.Equal(t, []float64{173665.47, 46929.18, 193846.25}, columnValues[float64](t, out, "o_totalprice"))
	assert.Equal(t, []string{"O", "O", "F"}, columnValues[string](t, out, "o_orderstatus"))
	assert.Equal(t, []int64{1996, 1996, 1993}, columnValues[int64](t, out, "year"))
}

func TestLoadTblErrors(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.tbl")
	require.NoError(t, os.WriteFile(path, []byte("1|2|\n"), 0o644))

	e := New()
	e.Evaluate(call("CreateTable", sym("T"), sym("a")))
	assert.True(t, expr.IsError(e.Evaluate(call("Load", sym("T"), path))))
	assert.True(t, expr.IsError(e.Evaluate(call("Load", sym("T"), filepath.Join(dir, "missing.tbl")))))
}

func TestGroupByWithAggregates(t *testing.T) {
	e := New()
	createAndLoad(t, e, "L",
		expr.NewColumn("flag", expr.NewBuffer([]string{"A", "N", "A", "R", "N"})),
		expr.NewColumn("qty", expr.NewBuffer([]int64{1, 2, 3, 4, 5})),
		expr.NewColumn("price", expr.NewBuffer([]float64{1, 2, 3, 4, 6})),
	)

	out := e.Evaluate(call("Order",
		call("Group", sym("L"), call("By", sym("flag")), call("As",
			sym("sum_qty"), call("Sum", sym("qty")),
			sym("avg_price"), call("Avg", sym("price")),
			sym("max_qty"), call("Max", sym("qty")),
			sym("min_price"), call("Min", sym("price")),
			sym("count_order"), call("Count", sym("*")))),
		call("By", sym("flag"))))

	assert.Equal(t, []string{"A", "N", "R"}, columnValues[string](t, out, "flag"))
	assert.Equal(t, []int64{4, 7, 4}, columnValues[int64](t, out, "sum_qty"))
	assert.Equal(t, []float64{2, 4, 4}, columnValues[float64](t, out, "avg_price"))
	assert.Equal(t, []int64{3, 5, 4}, columnValues[int64](t, out, "max_qty"))
	assert.Equal(t, []float64{1, 2, 4}, columnValues[float64](t, out, "min_price"))
	assert.Equal(t, []int64{2, 2, 1}, columnValues[int64](t, out, "count_order"))
}

func TestUnnamedAggregateTakesArgumentName(t *testing.T) {
	e := New()
	createAndLoad(t, e, "L", expr.NewColumn("amount", expr.NewBuffer([]int64{1, 2, 3})))
	out := e.Evaluate(call("Group", sym("L"), call("Sum", sym("amount"))))
	assert.Equal(t, []int64{6}, columnValues[int64](t, out, "amount"))
}

func TestOrderDescAndTop(t *testing.T) {
	e := New()
	createAndLoad(t, e, "O",
		expr.NewColumn("revenue", expr.NewBuffer([]float64{5, 9, 9, 1})),
		expr.NewColumn("date", expr.NewBuffer([]int64{4, 3, 1, 2})),
	)

	out := e.Evaluate(call("Top", sym("O"), call("By", sym("revenue"), sym("desc"), sym("date")), 3))
	assert.Equal(t, []float64{9, 9, 5}, columnValues[float64](t, out, "revenue"))
	assert.Equal(t, []int64{1, 3, 4}, columnValues[int64](t, out, "date"))

	out = e.Evaluate(call("Order", sym("O"), call("By", sym("date"), sym("desc"))))
	assert.Equal(t, []int64{4, 3, 2, 1}, columnValues[int64](t, out, "date"))
}

func TestJoin(t *testing.T) {
	e := New()
	createAndLoad(t, e, "PS",
		expr.NewColumn("ps_partkey", expr.NewBuffer([]int64{1, 1, 2})),
		expr.NewColumn("ps_suppkey", expr.NewBuffer([]int64{10, 20, 10})),
		expr.NewColumn("ps_supplycost", expr.NewBuffer([]float64{1.5, 2.5, 3.5})),
	)
	createAndLoad(t, e, "L",
		expr.NewColumn("l_partkey", expr.NewBuffer([]int64{2, 1, 1, 3})),
		expr.NewColumn("l_suppkey", expr.NewBuffer([]int64{10, 20, 30, 10})),
	)

	out := e.Evaluate(call("Join", sym("PS"), sym("L"), call("Where", call("Equal",
		call("List", sym("ps_partkey"), sym("ps_suppkey")),
		call("List", sym("l_partkey"), sym("l_suppkey"))))))
	assert.Equal(t, []float64{3.5, 2.5}, columnValues[float64](t, out, "ps_supplycost"))
	assert.Equal(t, []int64{2, 1}, columnValues[int64](t, out, "l_partkey"))

	// key order inside Equal does not matter
	out = e.Evaluate(call("Join", sym("PS"), sym("L"), call("Where", call("Equal", sym("l_partkey"), sym("ps_partkey")))))
	assert.Equal(t, []int64{2, 1, 1, 1, 1}, columnValues[int64](t, out, "l_partkey"))
}

func TestArithmetic(t *testing.T) {
	e := New()
	createAndLoad(t, e, "T",
		expr.NewColumn("a", expr.NewBuffer([]int64{1, 2})),
		expr.NewColumn("b", expr.NewBuffer([]float64{0.5, 0.25})),
	)
	out := e.Evaluate(call("Project", sym("T"), call("As",
		sym("plus"), call("Plus", sym("a"), 1),
		sym("minus"), call("Minus", 1.0, sym("b")),
		sym("div"), call("Divide", sym("a"), 2),
		sym("one"), 1,
		sym("neg"), call("Not", call("Equal", sym("a"), 1)),
		sym("either"), call("Or", call("Greater", sym("a"), 1), call("Greater", sym("b"), 0.4)))))

	assert.Equal(t, []int64{2, 3}, columnValues[int64](t, out, "plus"))
	assert.Equal(t, []float64{0.5, 0.75}, columnValues[float64](t, out, "minus"))
	assert.Equal(t, []float64{0.5, 1}, columnValues[float64](t, out, "div"))
	assert.Equal(t, []int64{1, 1}, columnValues[int64](t, out, "one"))
	assert.Equal(t, []bool{false, true}, columnValues[bool](t, out, "neg"))
	assert.Equal(t, []bool{true, true}, columnValues[bool](t, out, "either"))
}

func TestFailuresAreErrorValues(t *testing.T) {
	e := New()
	createAndLoad(t, e, "T", expr.NewColumn("a", expr.NewBuffer([]int64{1})))

	tests := []struct {
		name string
		in   expr.Expression
		head expr.Symbol
	}{
		{"unknown column", call("Select", sym("T"), call("Where", call("Greater", sym("zzz"), 1))), "Select"},
		{"unknown table", call("Project", sym("NOPE"), call("As", sym("a"), sym("a"))), "Project"},
		{"type mismatch", call("Select", sym("T"), call("Where", call("Greater", sym("a"), "x"))), "Select"},
		{"non-boolean predicate", call("Select", sym("T"), call("Where", sym("a"))), "Select"},
		{"bad aggregate", call("Group", sym("T"), call("Median", sym("a"))), "Group"},
		{"bad constraint", call("AddConstraint", sym("T"), call("PrimaryKey", sym("zzz"))), "AddConstraint"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := e.Evaluate(tt.in)
			require.True(t, expr.IsError(out), "got %v", out)
			assert.Equal(t, tt.head, out.(*expr.Complex).Arg(0))
		})
	}
}

func TestUnknownHeadPassesThrough(t *testing.T) {
	e := New()
	createAndLoad(t, e, "T", expr.NewColumn("a", expr.NewBuffer([]int64{1})))

	out := e.Evaluate(call("Explain", sym("T")))
	c, ok := out.(*expr.Complex)
	require.True(t, ok)
	assert.Equal(t, expr.Symbol("Explain"), c.Head())
	assert.True(t, expr.HasHead(c.Arg(0), expr.Table))
}

func TestConstraintsAndSettings(t *testing.T) {
	e := New()
	e.Evaluate(call("CreateTable", sym("NATION"), sym("n_nationkey")))
	e.Evaluate(call("CreateTable", sym("SUPPLIER"), sym("s_suppkey"), sym("s_nationkey")))

	assert.Equal(t, expr.Bool(true), e.Evaluate(call("AddConstraint", sym("SUPPLIER"), call("PrimaryKey", sym("s_suppkey")))))
	assert.Equal(t, expr.Bool(true), e.Evaluate(call("AddConstraint", sym("SUPPLIER"), call("ForeignKey", sym("NATION"), sym("s_nationkey")))))
	assert.True(t, expr.IsError(e.Evaluate(call("AddConstraint", sym("SUPPLIER"), call("ForeignKey", sym("REGION"), sym("s_nationkey"))))))

	assert.Equal(t, expr.Bool(true), e.Evaluate(call("Set", sym("LoadToMemoryMappedFiles"), false)))
	v, ok := e.settings["LoadToMemoryMappedFiles"]
	require.True(t, ok)
	assert.Equal(t, expr.Bool(false), v)
}

func TestCloseReleasesTables(t *testing.T) {
	e := New()
	buf := expr.NewBuffer([]int64{1})
	createAndLoad(t, e, "T", expr.NewColumn("a", buf))
	require.NoError(t, e.Close())
	assert.True(t, buf.Released())
	assert.Empty(t, e.Tables())
}

func TestRegisteredInBoundary(t *testing.T) {
	assert.Contains(t, engine.Registered(), Name)

	b := engine.NewBoundary()
	out := b.Evaluate(expr.New(expr.EvaluateInEngines, engine.NameList(Name), q6(literalLineitem())))
	assert.InDelta(t, 3259.548, columnValues[float64](t, out, "revenue")[0], 1e-6)
	b.Evaluate(expr.New(expr.ReleaseEngines, engine.NameList(Name)))
}
