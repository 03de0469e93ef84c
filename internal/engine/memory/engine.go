// Package memory is an in-process columnar engine registered as "memory".
// It stores tables as owning buffers, answers table references with borrowed
// views and evaluates the relational and scalar operators used by the TPC-H
// and microbenchmark queries.
package memory

import (
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/arkilian/enginebench/internal/engine"
	"github.com/arkilian/enginebench/pkg/expr"
)

// Name is the registry name of the engine.
const Name = "memory"

func init() {
	engine.Register(Name, func() (engine.Engine, error) { return New(), nil })
}

// Heads handled outside relational evaluation.
const (
	headSet        expr.Symbol = "Set"
	headPrimaryKey expr.Symbol = "PrimaryKey"
	headForeignKey expr.Symbol = "ForeignKey"
)

type table struct {
	columns     []expr.Symbol
	data        []expr.Span
	constraints []expr.Expression
}

func (t *table) rows() int {
	if len(t.data) == 0 || t.data[0] == nil {
		return 0
	}
	return t.data[0].Len()
}

func (t *table) release() {
	releaseSpans(t.data...)
	t.data = nil
}

// releaseSpans releases the owning spans among spans.
func releaseSpans(spans ...expr.Span) {
	for _, s := range spans {
		if r, ok := s.(interface{ Release() }); ok {
			r.Release()
		}
	}
}

// releaseTree releases every owning span reachable from e.
func releaseTree(e expr.Expression) {
	c, ok := e.(*expr.Complex)
	if !ok || c.Consumed() {
		return
	}
	releaseSpans(c.Spans()...)
	for _, a := range c.Args() {
		releaseTree(a)
	}
}

// Engine is the reference engine. It is safe for use by one harness at a
// time; calls are serialized.
type Engine struct {
	mu       sync.Mutex
	tables   map[expr.Symbol]*table
	settings map[expr.Symbol]expr.Expression
	logger   *log.Entry
}

// New returns an empty engine.
func New() *Engine {
	return &Engine{
		tables:   make(map[expr.Symbol]*table),
		settings: make(map[expr.Symbol]expr.Expression),
		logger:   log.WithField("engine", Name),
	}
}

// Evaluate implements engine.Engine.
func (e *Engine) Evaluate(x expr.Expression) expr.Expression {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.evaluate(x)
}

func (e *Engine) evaluate(x expr.Expression) expr.Expression {
	switch v := x.(type) {
	case expr.Symbol:
		if _, ok := e.tables[v]; !ok {
			return v
		}
		rel, err := e.scan(v)
		if err != nil {
			return expr.NewError(v, err.Error())
		}
		return rel.table()
	case *expr.Complex:
		return e.evaluateComplex(v)
	default:
		return x
	}
}

func (e *Engine) evaluateComplex(c *expr.Complex) expr.Expression {
	head := c.Head()
	var err error
	switch {
	case head == expr.CreateTable:
		err = e.createTable(c)
	case head == expr.DropTable:
		err = e.dropTable(c)
	case head == expr.LoadDataTable:
		err = e.loadDataTable(c)
	case head == expr.Load:
		err = e.load(c)
	case head == expr.AddConstraint:
		err = e.addConstraint(c)
	case head == headSet:
		err = e.set(c)
	case isRelational(head):
		rel, err := e.relation(c)
		if err != nil {
			return expr.NewError(head, err.Error())
		}
		return rel.table()
	default:
		return e.passthrough(c)
	}
	if err != nil {
		e.logger.WithField("head", head).Debugf("evaluation failed: %v", err)
		return expr.NewError(head, err.Error())
	}
	return expr.Bool(true)
}

// passthrough rebuilds an unrecognized expression with evaluated arguments.
func (e *Engine) passthrough(c *expr.Complex) expr.Expression {
	head, args, spans := c.Decompose()
	for i, a := range args {
		args[i] = e.evaluate(a)
	}
	return expr.NewWithSpans(head, args, spans)
}

// Close releases every table.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for name, t := range e.tables {
		t.release()
		delete(e.tables, name)
	}
	return nil
}

// Tables returns the row count of every table.
func (e *Engine) Tables() map[expr.Symbol]int {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[expr.Symbol]int, len(e.tables))
	for name, t := range e.tables {
		out[name] = t.rows()
	}
	return out
}

// scan answers a table reference with views borrowed from the table's buffers.
func (e *Engine) scan(name expr.Symbol) (*relation, error) {
	t, ok := e.tables[name]
	if !ok {
		return nil, fmt.Errorf("unknown table %s", name)
	}
	r := &relation{}
	for i, col := range t.columns {
		var s expr.Span = expr.NewBuffer([]int64{})
		if t.data != nil {
			s = borrow(t.data[i])
		}
		r.names = append(r.names, col)
		r.cols = append(r.cols, s)
	}
	return r, nil
}

func borrow(s expr.Span) expr.Span {
	switch b := s.(type) {
	case *expr.Buffer[int64]:
		return b.View()
	case *expr.Buffer[float64]:
		return b.View()
	case *expr.Buffer[string]:
		return b.View()
	case *expr.Buffer[bool]:
		return b.View()
	default:
		return s
	}
}

func tableName(c *expr.Complex) (expr.Symbol, error) {
	if c.NumArgs() == 0 {
		return "", fmt.Errorf("%s expects a table name", c.Head())
	}
	name, ok := c.Arg(0).(expr.Symbol)
	if !ok {
		return "", fmt.Errorf("%s expects a table name, got %v", c.Head(), c.Arg(0))
	}
	return name, nil
}

// createTable handles CreateTable[T, col...]. An existing table of the same
// name is replaced.
func (e *Engine) createTable(c *expr.Complex) error {
	name, err := tableName(c)
	if err != nil {
		return err
	}
	t := &table{}
	for _, a := range c.Args()[1:] {
		col, ok := a.(expr.Symbol)
		if !ok {
			return fmt.Errorf("column name must be a symbol, got %v", a)
		}
		t.columns = append(t.columns, col)
	}
	if old, ok := e.tables[name]; ok {
		e.logger.WithField("table", name).Debug("replacing existing table")
		old.release()
	}
	e.tables[name] = t
	return nil
}

// dropTable handles DropTable[T]; dropping an absent table succeeds.
func (e *Engine) dropTable(c *expr.Complex) error {
	name, err := tableName(c)
	if err != nil {
		return err
	}
	if t, ok := e.tables[name]; ok {
		t.release()
		delete(e.tables, name)
	}
	return nil
}

// loadDataTable handles LoadDataTable[T, Data|Table[col[List[spans]]...]].
// Owning buffers are adopted, borrowed spans are copied and multi-segment
// columns are concatenated. Rows are appended to existing data. A table
// created without columns takes the schema of the first data it receives.
// Owning buffers handed over are released whenever they are not kept.
func (e *Engine) loadDataTable(c *expr.Complex) error {
	name, err := tableName(c)
	if err != nil {
		releaseTree(c)
		return err
	}
	t, ok := e.tables[name]
	if !ok {
		releaseTree(c)
		return fmt.Errorf("unknown table %s", name)
	}
	if c.NumArgs() != 2 {
		releaseTree(c)
		return fmt.Errorf("LoadDataTable expects a table name and data")
	}
	_, args, _ := c.Decompose()
	data, ok := args[1].(*expr.Complex)
	if !ok || (data.Head() != expr.Data && data.Head() != expr.Table) {
		err := fmt.Errorf("LoadDataTable expects Data[...], got %v", args[1])
		releaseTree(args[1])
		return err
	}

	_, columns, _ := data.Decompose()
	var handed []expr.Span
	for _, col := range columns {
		if cc, ok := col.(*expr.Complex); ok && !cc.Consumed() {
			for _, seg := range cc.Args() {
				l, ok := seg.(*expr.Complex)
				if !ok {
					continue
				}
				for _, sp := range l.Spans() {
					if sp.Owned() {
						handed = append(handed, sp)
					}
				}
			}
		}
	}

	incoming := make(map[expr.Symbol]expr.Span)
	var order []expr.Symbol
	fail := func(err error) error {
		releaseSpans(handed...)
		for _, s := range incoming {
			releaseSpans(s)
		}
		return err
	}
	for _, col := range columns {
		colName, segments, err := expr.ColumnSegments(col)
		if err != nil {
			return fail(err)
		}
		if _, dup := incoming[colName]; dup {
			return fail(fmt.Errorf("data for %s repeats column %s", name, colName))
		}
		var s expr.Span
		switch {
		case len(segments) == 0:
			return fail(fmt.Errorf("column %s has no data", colName))
		case len(segments) == 1 && segments[0].Owned():
			s = segments[0]
		case len(segments) == 1:
			s = expr.Materialize(segments[0])
		default:
			if s, err = expr.Concat(segments); err != nil {
				return fail(fmt.Errorf("column %s: %w", colName, err))
			}
		}
		incoming[colName] = s
		order = append(order, colName)
	}
	if len(t.columns) == 0 {
		t.columns = order
	}

	ordered := make([]expr.Span, len(t.columns))
	for i, col := range t.columns {
		s, ok := incoming[col]
		if !ok {
			return fail(fmt.Errorf("data for %s lacks column %s", name, col))
		}
		ordered[i] = s
		delete(incoming, col)
	}
	if err := t.appendColumns(ordered); err != nil {
		releaseSpans(ordered...)
		return fail(err)
	}
	// segments copied by Concat and columns the table does not have
	kept := make(map[expr.Span]bool, len(t.data))
	for _, s := range t.data {
		if s.Owned() {
			kept[s] = true
		}
	}
	for _, s := range handed {
		if !kept[s] {
			releaseSpans(s)
		}
	}
	for _, s := range incoming {
		releaseSpans(s)
	}
	return nil
}

// appendColumns adopts cols as the table's data, or appends them to the
// existing rows. Appended spans are copied and released.
func (t *table) appendColumns(cols []expr.Span) error {
	n := -1
	for i, s := range cols {
		if n >= 0 && s.Len() != n {
			return fmt.Errorf("column %s has %d rows, expected %d", t.columns[i], s.Len(), n)
		}
		n = s.Len()
	}
	if t.rows() == 0 {
		t.release()
		t.data = cols
		return nil
	}
	merged := make([]expr.Span, len(cols))
	for i, s := range cols {
		m, err := expr.Concat([]expr.Span{t.data[i], s})
		if err != nil {
			releaseSpans(merged[:i]...)
			return fmt.Errorf("column %s: %w", t.columns[i], err)
		}
		merged[i] = m
	}
	t.release()
	t.data = merged
	releaseSpans(cols...)
	return nil
}

// addConstraint records AddConstraint[T, PrimaryKey[cols...]|ForeignKey[T2, cols...]].
func (e *Engine) addConstraint(c *expr.Complex) error {
	name, err := tableName(c)
	if err != nil {
		return err
	}
	t, ok := e.tables[name]
	if !ok {
		return fmt.Errorf("unknown table %s", name)
	}
	if c.NumArgs() != 2 {
		return fmt.Errorf("AddConstraint expects a table and a constraint")
	}
	con, ok := c.Arg(1).(*expr.Complex)
	if !ok {
		return fmt.Errorf("unsupported constraint %v", c.Arg(1))
	}
	cols := con.Args()
	switch con.Head() {
	case headPrimaryKey:
	case headForeignKey:
		if len(cols) == 0 {
			return fmt.Errorf("ForeignKey expects a referenced table")
		}
		if ref, ok := cols[0].(expr.Symbol); !ok {
			return fmt.Errorf("ForeignKey expects a referenced table, got %v", cols[0])
		} else if _, ok := e.tables[ref]; !ok {
			return fmt.Errorf("ForeignKey references unknown table %s", ref)
		}
		cols = cols[1:]
	default:
		return fmt.Errorf("unsupported constraint %s", con.Head())
	}
	if len(cols) == 0 {
		return fmt.Errorf("%s expects columns", con.Head())
	}
	for _, col := range cols {
		s, ok := col.(expr.Symbol)
		if !ok || !t.hasColumn(s) {
			return fmt.Errorf("%s: unknown column %v of %s", con.Head(), col, name)
		}
	}
	t.constraints = append(t.constraints, con)
	return nil
}

func (t *table) hasColumn(name expr.Symbol) bool {
	for _, c := range t.columns {
		if c == name {
			return true
		}
	}
	return false
}

// set records Set[name, value].
func (e *Engine) set(c *expr.Complex) error {
	if c.NumArgs() != 2 {
		return fmt.Errorf("Set expects a name and a value")
	}
	name, ok := c.Arg(0).(expr.Symbol)
	if !ok {
		return fmt.Errorf("Set expects a symbol, got %v", c.Arg(0))
	}
	e.settings[name] = c.Arg(1)
	return nil
}
