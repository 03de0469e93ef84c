package bench

import (
	"context"
	"strings"

	"github.com/arkilian/enginebench/internal/errors"
	"github.com/arkilian/enginebench/internal/storage"
	"github.com/arkilian/enginebench/pkg/expr"
)

// TPC-H table names.
const (
	Region    expr.Symbol = "REGION"
	Nation    expr.Symbol = "NATION"
	Part      expr.Symbol = "PART"
	Supplier  expr.Symbol = "SUPPLIER"
	PartSupp  expr.Symbol = "PARTSUPP"
	Customer  expr.Symbol = "CUSTOMER"
	Orders    expr.Symbol = "ORDERS"
	Lineitem  expr.Symbol = "LINEITEM"
	Clustered expr.Symbol = "LINEITEM_CLUSTERED"
)

const (
	primaryKey expr.Symbol = "PrimaryKey"
	foreignKey expr.Symbol = "ForeignKey"
)

type tableSchema struct {
	name    expr.Symbol
	columns []expr.Symbol
}

func columns(names ...string) []expr.Symbol {
	out := make([]expr.Symbol, len(names))
	for i, n := range names {
		out[i] = expr.Symbol(n)
	}
	return out
}

var lineitemColumns = columns("l_orderkey", "l_partkey", "l_suppkey", "l_linenumber",
	"l_quantity", "l_extendedprice", "l_discount", "l_tax", "l_returnflag", "l_linestatus",
	"l_shipdate", "l_commitdate", "l_receiptdate", "l_shipinstruct", "l_shipmode", "l_comment")

// tpchSchema lists the tables in the order they are created and dropped.
var tpchSchema = []tableSchema{
	{Region, columns("r_regionkey", "r_name", "r_comment")},
	{Nation, columns("n_nationkey", "n_name", "n_regionkey", "n_comment")},
	{Part, columns("p_partkey", "p_name", "p_mfgr", "p_brand", "p_type", "p_size",
		"p_container", "p_retailprice", "p_comment")},
	{Supplier, columns("s_suppkey", "s_name", "s_address", "s_nationkey", "s_phone",
		"s_acctbal", "s_comment")},
	{PartSupp, columns("ps_partkey", "ps_suppkey", "ps_availqty", "ps_supplycost", "ps_comment")},
	{Customer, columns("c_custkey", "c_name", "c_address", "c_nationkey", "c_phone",
		"c_acctbal", "c_mktsegment", "c_comment")},
	{Orders, columns("o_orderkey", "o_custkey", "o_orderstatus", "o_totalprice", "o_orderdate",
		"o_orderpriority", "o_clerk", "o_shippriority", "o_comment")},
	{Lineitem, lineitemColumns},
}

// tpchConstraints are the keys of the TPC-H schema. Primary keys come first
// so that every foreign key references a declared table.
var tpchConstraints = []struct {
	table      expr.Symbol
	constraint *expr.Complex
}{
	{Part, primaryKey.Call(expr.Symbol("p_partkey"))},
	{Supplier, primaryKey.Call(expr.Symbol("s_suppkey"))},
	{PartSupp, primaryKey.Call(expr.Symbol("ps_partkey"), expr.Symbol("ps_suppkey"))},
	{Customer, primaryKey.Call(expr.Symbol("c_custkey"))},
	{Orders, primaryKey.Call(expr.Symbol("o_orderkey"))},
	{Lineitem, primaryKey.Call(expr.Symbol("l_orderkey"), expr.Symbol("l_linenumber"))},
	{Nation, primaryKey.Call(expr.Symbol("n_nationkey"))},
	{Region, primaryKey.Call(expr.Symbol("r_regionkey"))},

	{Supplier, foreignKey.Call(Nation, expr.Symbol("s_nationkey"))},
	{PartSupp, foreignKey.Call(Part, expr.Symbol("ps_partkey"))},
	{PartSupp, foreignKey.Call(Supplier, expr.Symbol("ps_suppkey"))},
	{Customer, foreignKey.Call(Nation, expr.Symbol("c_nationkey"))},
	{Orders, foreignKey.Call(Customer, expr.Symbol("o_custkey"))},
	{Lineitem, foreignKey.Call(Orders, expr.Symbol("l_orderkey"))},
	{Lineitem, foreignKey.Call(PartSupp, expr.Symbol("l_partkey"), expr.Symbol("l_suppkey"))},
	{Nation, foreignKey.Call(Region, expr.Symbol("n_regionkey"))},
}

func createTable(name expr.Symbol, cols []expr.Symbol) *expr.Complex {
	args := make([]expr.Expression, 0, len(cols)+1)
	args = append(args, name)
	for _, c := range cols {
		args = append(args, c)
	}
	return expr.New(expr.CreateTable, args...)
}

// resolve makes keys available and returns their lookup. A Prefetcher
// fetches them in one batch; other sources resolve keys one at a time.
func resolve(ctx context.Context, s *Session, keys ...string) (func(string) (string, error), error) {
	p, ok := s.Data().(Prefetcher)
	if !ok {
		return func(key string) (string, error) { return s.Data().Path(ctx, key) }, nil
	}
	r, err := p.Prefetch(ctx, keys...)
	if err != nil {
		return nil, err
	}
	return r.Path, nil
}

func tpchKey(sizeMB int, table expr.Symbol) string {
	return storage.TPCHKey(sizeMB, strings.ToLower(string(table)))
}

// loadTable creates the table of schema and loads it from the file at key.
// Problems are logged and the table is left empty.
func loadTable(s *Session, schema tableSchema, key string, path func(string) (string, error)) {
	s.Storage(createTable(schema.name, schema.columns))
	p, err := path(key)
	if err != nil {
		s.logger.WithField("table", schema.name).Errorf("Error: %v", err)
		return
	}
	s.Storage(expr.New(expr.Load, schema.name, expr.String(p)))
}

// TPCH is the eight-table TPC-H dataset of one size, loaded from .tbl files.
type TPCH struct {
	SizeMB int
}

// Identity implements Dataset.
func (d TPCH) Identity() Identity { return Identity{Dataset: "TPCH", Size: d.SizeMB} }

// Tables implements Dataset.
func (d TPCH) Tables() []expr.Symbol {
	out := make([]expr.Symbol, len(tpchSchema))
	for i, t := range tpchSchema {
		out[i] = t.name
	}
	return out
}

// Install implements Dataset.
func (d TPCH) Install(ctx context.Context, s *Session) error {
	keys := make([]string, len(tpchSchema))
	for i, schema := range tpchSchema {
		keys[i] = tpchKey(d.SizeMB, schema.name)
	}
	path, err := resolve(ctx, s, keys...)
	if err != nil {
		return errors.NewDatasetError(errors.CodeDDLFailed, "TPC-H data files", err)
	}
	for i, schema := range tpchSchema {
		if err := ctx.Err(); err != nil {
			return errors.NewDatasetError(errors.CodeDDLFailed, "TPC-H load interrupted", err)
		}
		loadTable(s, schema, keys[i], path)
	}
	if s.ConstraintsEnabled() {
		for _, c := range tpchConstraints {
			s.Storage(expr.New(expr.AddConstraint, c.table, expr.Clone(c.constraint)))
		}
	}
	return nil
}
