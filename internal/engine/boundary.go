package engine

import (
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/arkilian/enginebench/pkg/expr"
)

// Boundary is the single entry point through which the harness talks to
// engines. It understands two top-level forms:
//
//	EvaluateInEngines[List[names...], e]  pipes e through the named engines in order
//	ReleaseEngines[List[names...]]        closes the named engines in reverse order
//
// Any other expression, an unknown engine name or a panic inside an engine is
// turned into an ErrorWhenEvaluatingExpression value.
type Boundary struct {
	mu        sync.Mutex
	lookup    func(string) (Factory, bool)
	instances map[string]Engine
}

// NewBoundary returns a boundary over the global engine registry.
func NewBoundary() *Boundary {
	return NewBoundaryWithFactories(nil)
}

// NewBoundaryWithFactories returns a boundary that resolves names from
// factories before falling back to the global registry.
func NewBoundaryWithFactories(factories map[string]Factory) *Boundary {
	return &Boundary{
		lookup: func(name string) (Factory, bool) {
			if f, ok := factories[name]; ok {
				return f, true
			}
			return lookup(name)
		},
		instances: make(map[string]Engine),
	}
}

// Evaluate routes e and returns the result. It never panics.
func (b *Boundary) Evaluate(e expr.Expression) (result expr.Expression) {
	head, _ := expr.HeadOf(e)
	defer func() {
		if r := recover(); r != nil {
			log.WithField("head", head).Errorf("engine panicked: %v", r)
			result = expr.NewError(head, fmt.Sprintf("panic: %v", r))
		}
	}()

	c, ok := e.(*expr.Complex)
	if !ok {
		return expr.NewError(e, "expected EvaluateInEngines or ReleaseEngines")
	}
	switch c.Head() {
	case expr.EvaluateInEngines:
		return b.evaluateInEngines(c)
	case expr.ReleaseEngines:
		return b.releaseEngines(c)
	default:
		return expr.NewError(c.Head(), "expected EvaluateInEngines or ReleaseEngines")
	}
}

func (b *Boundary) evaluateInEngines(c *expr.Complex) expr.Expression {
	if c.NumArgs() != 2 {
		return expr.NewError(expr.EvaluateInEngines, "expected an engine list and an expression")
	}
	_, args, _ := c.Decompose()
	names, err := Names(args[0])
	if err != nil {
		return expr.NewError(expr.EvaluateInEngines, err.Error())
	}
	if len(names) == 0 {
		return expr.NewError(expr.EvaluateInEngines, "no engines given")
	}

	current := args[1]
	for _, name := range names {
		eng, err := b.instance(name)
		if err != nil {
			return expr.NewError(expr.EvaluateInEngines, err.Error())
		}
		current = eng.Evaluate(current)
		if expr.IsError(current) {
			break
		}
	}
	return current
}

func (b *Boundary) releaseEngines(c *expr.Complex) expr.Expression {
	if c.NumArgs() != 1 {
		return expr.NewError(expr.ReleaseEngines, "expected an engine list")
	}
	names, err := Names(c.Arg(0))
	if err != nil {
		return expr.NewError(expr.ReleaseEngines, err.Error())
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	var failures []string
	for i := len(names) - 1; i >= 0; i-- {
		eng, ok := b.instances[names[i]]
		if !ok {
			continue
		}
		delete(b.instances, names[i])
		if err := eng.Close(); err != nil {
			log.WithField("engine", names[i]).Warnf("failed to close engine: %v", err)
			failures = append(failures, fmt.Sprintf("%s: %v", names[i], err))
			continue
		}
		log.WithField("engine", names[i]).Debug("engine released")
	}
	if len(failures) > 0 {
		return expr.NewError(expr.ReleaseEngines, fmt.Sprintf("close failed: %v", failures))
	}
	return expr.Bool(true)
}

func (b *Boundary) instance(name string) (Engine, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if eng, ok := b.instances[name]; ok {
		return eng, nil
	}
	factory, ok := b.lookup(name)
	if !ok {
		return nil, fmt.Errorf("unknown engine %q", name)
	}
	eng, err := factory()
	if err != nil {
		return nil, fmt.Errorf("instantiate engine %q: %w", name, err)
	}
	b.instances[name] = eng
	log.WithField("engine", name).Debug("engine instantiated")
	return eng, nil
}
