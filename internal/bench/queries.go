package bench

import (
	"github.com/arkilian/enginebench/pkg/expr"
)

func call(head string, args ...any) *expr.Complex { return expr.Symbol(head).Call(args...) }

func sym(name string) expr.Symbol { return expr.Symbol(name) }

// keep builds As[c, c, ...], projecting the named columns unchanged.
func keep(names ...string) *expr.Complex {
	args := make([]any, 0, 2*len(names))
	for _, n := range names {
		args = append(args, sym(n), sym(n))
	}
	return call("As", args...)
}

func date(d string) *expr.Complex { return call("DateObject", d) }

// TPC-H query numbers.
const (
	Q1  = 1
	Q3  = 3
	Q6  = 6
	Q9  = 9
	Q18 = 18
)

// TPCHQueries lists the query numbers with a template, in run order.
var TPCHQueries = []int{Q1, Q3, Q6, Q9, Q18}

// TPCHQuery returns the template of TPC-H query q, or nil if there is none.
func TPCHQuery(q int) *expr.Complex {
	switch q {
	case Q1:
		return q1()
	case Q3:
		return q3()
	case Q6:
		return q6(Lineitem)
	case Q9:
		return q9()
	case Q18:
		return q18()
	default:
		return nil
	}
}

func q1() *expr.Complex {
	return call("Order",
		call("Group",
			call("Project",
				call("Project",
					call("Project",
						call("Select",
							call("Project", Lineitem, keep("l_quantity", "l_discount", "l_shipdate",
								"l_extendedprice", "l_returnflag", "l_linestatus", "l_tax")),
							call("Where", call("Greater", date("1998-08-31"), sym("l_shipdate")))),
						call("As", sym("l_returnflag"), sym("l_returnflag"), sym("l_linestatus"), sym("l_linestatus"),
							sym("l_quantity"), sym("l_quantity"), sym("l_extendedprice"), sym("l_extendedprice"),
							sym("l_discount"), sym("l_discount"),
							sym("calc1"), call("Minus", 1.0, sym("l_discount")),
							sym("calc2"), call("Plus", sym("l_tax"), 1.0))),
					call("As", sym("l_returnflag"), sym("l_returnflag"), sym("l_linestatus"), sym("l_linestatus"),
						sym("l_quantity"), sym("l_quantity"), sym("l_extendedprice"), sym("l_extendedprice"),
						sym("l_discount"), sym("l_discount"),
						sym("disc_price"), call("Times", sym("l_extendedprice"), sym("calc1")),
						sym("calc2"), sym("calc2"))),
				call("As", sym("l_returnflag"), sym("l_returnflag"), sym("l_linestatus"), sym("l_linestatus"),
					sym("l_quantity"), sym("l_quantity"), sym("l_extendedprice"), sym("l_extendedprice"),
					sym("l_discount"), sym("l_discount"), sym("disc_price"), sym("disc_price"),
					sym("calc"), call("Times", sym("disc_price"), sym("calc2")))),
			call("By", sym("l_returnflag"), sym("l_linestatus")),
			call("As",
				sym("sum_qty"), call("Sum", sym("l_quantity")),
				sym("sum_base_price"), call("Sum", sym("l_extendedprice")),
				sym("sum_disc_price"), call("Sum", sym("disc_price")),
				sym("sum_charges"), call("Sum", sym("calc")),
				sym("avg_qty"), call("Avg", sym("l_quantity")),
				sym("avg_price"), call("Avg", sym("l_extendedprice")),
				sym("avg_disc"), call("Avg", sym("l_discount")),
				sym("count_order"), call("Count", sym("*")))),
		call("By", sym("l_returnflag"), sym("l_linestatus")))
}

func q3() *expr.Complex {
	customers := call("Project",
		call("Select",
			call("Project", Customer, keep("c_custkey", "c_mktsegment")),
			call("Where", call("StringContainsQ", sym("c_mktsegment"), "BUILDING"))),
		keep("c_custkey", "c_mktsegment"))
	orders := call("Select",
		call("Project", Orders, keep("o_orderkey", "o_orderdate", "o_custkey", "o_shippriority")),
		call("Where", call("Greater", date("1995-03-15"), sym("o_orderdate"))))
	lineitems := call("Project",
		call("Select",
			call("Project", Lineitem, keep("l_orderkey", "l_discount", "l_shipdate", "l_extendedprice")),
			call("Where", call("Greater", sym("l_shipdate"), date("1993-03-15")))),
		keep("l_orderkey", "l_discount", "l_extendedprice"))

	return call("Top",
		call("Group",
			call("Project",
				call("Join",
					call("Project",
						call("Join", customers, orders, call("Where", call("Equal", sym("c_custkey"), sym("o_custkey")))),
						keep("o_orderkey", "o_orderdate", "o_custkey", "o_shippriority")),
					lineitems,
					call("Where", call("Equal", sym("o_orderkey"), sym("l_orderkey")))),
				call("As",
					sym("expr1009"), call("Times", sym("l_extendedprice"), call("Minus", 1.0, sym("l_discount"))),
					sym("l_extendedprice"), sym("l_extendedprice"),
					sym("l_orderkey"), sym("l_orderkey"),
					sym("o_orderdate"), sym("o_orderdate"),
					sym("o_shippriority"), sym("o_shippriority"))),
			call("By", sym("l_orderkey"), sym("o_orderdate"), sym("o_shippriority")),
			call("As", sym("revenue"), call("Sum", sym("expr1009")))),
		call("By", sym("revenue"), sym("desc"), sym("o_orderdate")),
		10)
}

// q6 is TPC-H Q6 over rel, a table name.
func q6(rel expr.Expression) *expr.Complex {
	return q6Columns(rel, "l_quantity", "l_discount", "l_shipdate", "l_extendedprice")
}

func q6Columns(rel expr.Expression, quantity, discount, shipdate, price string) *expr.Complex {
	return call("Group",
		call("Project",
			call("Select",
				call("Project", rel, keep(quantity, discount, shipdate, price)),
				call("Where", call("And",
					call("Greater", 24, sym(quantity)),
					call("Greater", sym(discount), 0.0499),
					call("Greater", 0.07001, sym(discount)),
					call("Greater", date("1995-01-01"), sym(shipdate)),
					call("Greater", sym(shipdate), date("1993-12-31"))))),
			call("As", sym("revenue"), call("Times", sym(price), sym(discount)))),
		call("Sum", sym("revenue")))
}

func q9() *expr.Complex {
	parts := call("Project",
		call("Select",
			call("Project", Part, keep("p_partkey", "p_retailprice")),
			call("Where", call("And",
				call("Greater", sym("p_retailprice"), 1006.05),
				call("Greater", 1080.1, sym("p_retailprice"))))),
		keep("p_partkey", "p_retailprice"))
	nationSuppliers := call("Project",
		call("Join",
			call("Project", Nation, keep("n_name", "n_nationkey")),
			call("Project", Supplier, keep("s_suppkey", "s_nationkey")),
			call("Where", call("Equal", sym("n_nationkey"), sym("s_nationkey")))),
		keep("n_name", "s_suppkey"))
	supplies := call("Project",
		call("Join",
			nationSuppliers,
			call("Project", PartSupp, keep("ps_partkey", "ps_suppkey", "ps_supplycost")),
			call("Where", call("Equal", sym("s_suppkey"), sym("ps_suppkey")))),
		keep("n_name", "ps_partkey", "ps_suppkey", "ps_supplycost"))
	partSupplies := call("Project",
		call("Join", parts, supplies, call("Where", call("Equal", sym("p_partkey"), sym("ps_partkey")))),
		keep("n_name", "ps_partkey", "ps_suppkey", "ps_supplycost"))
	lines := call("Project",
		call("Join",
			partSupplies,
			call("Project", Lineitem, keep("l_partkey", "l_suppkey", "l_orderkey",
				"l_extendedprice", "l_discount", "l_quantity")),
			call("Where", call("Equal",
				call("List", sym("ps_partkey"), sym("ps_suppkey")),
				call("List", sym("l_partkey"), sym("l_suppkey"))))),
		keep("n_name", "ps_supplycost", "l_orderkey", "l_extendedprice", "l_discount", "l_quantity"))

	return call("Order",
		call("Group",
			call("Project",
				call("Join",
					call("Project", Orders, keep("o_orderkey", "o_orderdate")),
					lines,
					call("Where", call("Equal", sym("o_orderkey"), sym("l_orderkey")))),
				call("As",
					sym("nation"), sym("n_name"),
					sym("o_year"), call("Year", sym("o_orderdate")),
					sym("amount"), call("Minus",
						call("Times", sym("l_extendedprice"), call("Minus", 1.0, sym("l_discount"))),
						call("Times", sym("ps_supplycost"), sym("l_quantity"))))),
			call("By", sym("nation"), sym("o_year")),
			call("Sum", sym("amount"))),
		call("By", sym("nation"), sym("o_year"), sym("desc")))
}

func q18() *expr.Complex {
	// The aggregated relation is the build side of the join.
	bigOrders := call("Select",
		call("Group",
			call("Project", Lineitem, keep("l_orderkey", "l_quantity")),
			call("By", sym("l_orderkey")),
			call("As", sym("sum_l_quantity"), call("Sum", sym("l_quantity")))),
		call("Where", call("Greater", sym("sum_l_quantity"), 300)))
	customerOrders := call("Project",
		call("Join",
			call("Project", Customer, keep("c_custkey")),
			call("Project", Orders, keep("o_orderkey", "o_custkey", "o_orderdate", "o_totalprice")),
			call("Where", call("Equal", sym("c_custkey"), sym("o_custkey")))),
		keep("o_orderkey", "o_custkey", "o_orderdate", "o_totalprice"))

	return call("Top",
		call("Group",
			call("Project",
				call("Join", bigOrders, customerOrders,
					call("Where", call("Equal", sym("l_orderkey"), sym("o_orderkey")))),
				keep("o_orderkey", "o_orderdate", "o_totalprice", "o_custkey", "sum_l_quantity")),
			call("By", sym("o_custkey"), sym("o_orderkey"), sym("o_orderdate"), sym("o_totalprice")),
			call("Sum", sym("sum_l_quantity"))),
		call("By", sym("o_totalprice"), sym("desc"), sym("o_orderdate")),
		100)
}

// ClusteredQ6 is TPC-H Q6 over LINEITEM_CLUSTERED.
func ClusteredQ6() *expr.Complex { return q6(Clustered) }

// SelectBelow selects the rows of table whose key is below threshold.
func SelectBelow(table expr.Symbol, threshold int64) *expr.Complex {
	return call("Select",
		call("Project", table, keep(string(keyColumn), string(payloadColumn))),
		call("Where", call("Greater", threshold, keyColumn)))
}

// LiteralLineitem returns a four-row LINEITEM-like Table literal. Numeric
// and string columns are carried in owning spans; the ship dates are
// DateObject atoms.
func LiteralLineitem() *expr.Complex {
	dates := call("List", date("1992-03-13"), date("1994-04-12"), date("1996-02-28"), date("1994-12-31"))
	return expr.NewTable(expr.Table,
		expr.NewColumn("L_ORDERKEY", expr.NewBuffer([]int64{1, 1, 2, 3})),
		expr.NewColumn("L_PARTKEY", expr.NewBuffer([]int64{1, 2, 3, 4})),
		expr.NewColumn("L_SUPPKEY", expr.NewBuffer([]int64{1, 2, 3, 4})),
		expr.NewColumn("L_RETURNFLAG", expr.NewBuffer([]string{"N", "N", "A", "A"})),
		expr.NewColumn("L_LINESTATUS", expr.NewBuffer([]string{"O", "O", "F", "F"})),
		expr.NewColumn("L_RETURNFLAG_INT", expr.NewBuffer([]int64{'N', 'N', 'A', 'A'})),
		expr.NewColumn("L_LINESTATUS_INT", expr.NewBuffer([]int64{'O', 'O', 'F', 'F'})),
		expr.NewColumn("L_QUANTITY", expr.NewBuffer([]int64{17, 21, 8, 5})),
		expr.NewColumn("L_EXTENDEDPRICE", expr.NewBuffer([]float64{17954.55, 34850.16, 7712.48, 25284.00})),
		expr.NewColumn("L_DISCOUNT", expr.NewBuffer([]float64{0.10, 0.05, 0.06, 0.06})),
		expr.NewColumn("L_TAX", expr.NewBuffer([]float64{0.02, 0.06, 0.02, 0.06})),
		expr.New("L_SHIPDATE", dates),
	)
}

// LiteralQ6 is TPC-H Q6 over LiteralLineitem.
func LiteralQ6() *expr.Complex {
	return q6Columns(LiteralLineitem(), "L_QUANTITY", "L_DISCOUNT", "L_SHIPDATE", "L_EXTENDEDPRICE")
}
