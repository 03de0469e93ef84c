// Package engine defines the boundary between the benchmark harness and the
// query engines it measures. Engines register a Factory under a name at init
// time, the same way database/sql drivers do, and are instantiated lazily by
// a Boundary the first time an expression is routed to them.
package engine

import (
	"fmt"
	"sort"
	"sync"

	"github.com/arkilian/enginebench/pkg/expr"
)

// Engine evaluates expressions. Evaluate owns its argument: it may decompose
// it and adopt any owning span it carries. Failures are reported as
// ErrorWhenEvaluatingExpression values, never as Go errors.
type Engine interface {
	Evaluate(e expr.Expression) expr.Expression
	Close() error
}

// Factory creates an engine instance.
type Factory func() (Engine, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register makes an engine available under name. It panics if the name is
// taken or the factory is nil.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if factory == nil {
		panic("engine: Register factory is nil")
	}
	if _, dup := registry[name]; dup {
		panic("engine: Register called twice for engine " + name)
	}
	registry[name] = factory
}

// Registered returns the sorted names of all registered engines.
func Registered() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func lookup(name string) (Factory, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	f, ok := registry[name]
	return f, ok
}

// Names extracts engine names from a List expression. Names may be given as
// Symbol or String arguments or as string spans.
func Names(list expr.Expression) ([]string, error) {
	c, ok := list.(*expr.Complex)
	if !ok || c.Head() != expr.List {
		return nil, fmt.Errorf("engine list must be a List, got %v", list)
	}
	var names []string
	for _, a := range c.Args() {
		switch v := a.(type) {
		case expr.Symbol:
			names = append(names, string(v))
		case expr.String:
			names = append(names, string(v))
		default:
			return nil, fmt.Errorf("engine name must be a symbol or string, got %v", a)
		}
	}
	for _, s := range c.Spans() {
		vals, ok := expr.Values[string](s)
		if !ok {
			return nil, fmt.Errorf("engine names span must hold strings, got %s", s.ElementType())
		}
		names = append(names, vals...)
	}
	return names, nil
}

// NameList builds List[{names...}] with the names carried in a string span.
func NameList(names ...string) *expr.Complex {
	data := make([]string, len(names))
	copy(data, names)
	return expr.NewWithSpans(expr.List, nil, []expr.Span{expr.NewBuffer(data)})
}
