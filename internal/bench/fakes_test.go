package bench

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/arkilian/enginebench/pkg/expr"
)

// recordingBoundary stands in for the engine boundary. It journals every
// routed expression as "<head> <first symbol argument>" and answers with
// respond, or true when respond is nil.
type recordingBoundary struct {
	journal []string
	engines [][]string
	respond func(e expr.Expression) expr.Expression
}

func (b *recordingBoundary) Evaluate(e expr.Expression) expr.Expression {
	c := e.(*expr.Complex)
	names := engineNames(c.Arg(0))
	if c.Head() == expr.ReleaseEngines {
		b.journal = append(b.journal, "ReleaseEngines "+strings.Join(names, ","))
		return expr.Bool(true)
	}
	inner := c.Arg(1)
	b.engines = append(b.engines, names)
	b.journal = append(b.journal, describe(inner))
	if b.respond != nil {
		return b.respond(inner)
	}
	return expr.Bool(true)
}

func (b *recordingBoundary) reset() {
	b.journal = nil
	b.engines = nil
}

// count returns how many journal entries start with prefix.
func (b *recordingBoundary) count(prefix string) int {
	n := 0
	for _, j := range b.journal {
		if strings.HasPrefix(j, prefix) {
			n++
		}
	}
	return n
}

func engineNames(list expr.Expression) []string {
	c := list.(*expr.Complex)
	var names []string
	for _, a := range c.Args() {
		names = append(names, strings.Trim(a.String(), `"`))
	}
	for _, s := range c.Spans() {
		vals, _ := expr.Values[string](s)
		names = append(names, vals...)
	}
	return names
}

func describe(e expr.Expression) string {
	c, ok := e.(*expr.Complex)
	if !ok {
		return e.String()
	}
	if c.NumArgs() > 0 {
		if s, ok := c.Arg(0).(expr.Symbol); ok {
			return fmt.Sprintf("%s %s", c.Head(), s)
		}
	}
	return string(c.Head())
}

// table returns a one-column Table result.
func table() expr.Expression {
	return expr.NewTable(expr.Table, expr.NewColumn("x", expr.NewBuffer([]int64{1})))
}

// dirSource resolves keys under a fixed directory without touching disk.
type dirSource string

func (d dirSource) Path(_ context.Context, key string) (string, error) {
	return path.Join(string(d), key), nil
}

func newTestSession(b *recordingBoundary, libraries ...string) *Session {
	if len(libraries) == 0 {
		libraries = []string{"E"}
	}
	d, err := NewDispatcher(b, libraries)
	if err != nil {
		panic(err)
	}
	return NewSession(d, dirSource("/data"), false)
}
