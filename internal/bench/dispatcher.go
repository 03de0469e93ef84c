// Package bench drives repeated measurement of queries against the engines
// selected for a run. It owns the dataset lifecycle, routes every expression
// through the engine boundary and implements the warmup, measurement and
// failure protocol of a benchmark case.
package bench

import (
	"github.com/arkilian/enginebench/internal/engine"
	"github.com/arkilian/enginebench/internal/errors"
	"github.com/arkilian/enginebench/pkg/expr"
)

// Evaluator is the synchronous engine boundary. *engine.Boundary implements it.
type Evaluator interface {
	Evaluate(e expr.Expression) expr.Expression
}

// Dispatcher routes expressions to the engines of a run. The library order is
// fixed at construction: queries are piped through the engines in that order
// and the engines are released in reverse.
type Dispatcher struct {
	boundary  Evaluator
	libraries []string
}

// NewDispatcher returns a dispatcher over libraries, which must not be empty.
func NewDispatcher(boundary Evaluator, libraries []string) (*Dispatcher, error) {
	if len(libraries) == 0 {
		return nil, errors.NewConfigError(errors.CodeNoEngines, "at least one library is required")
	}
	libs := make([]string, len(libraries))
	copy(libs, libraries)
	return &Dispatcher{boundary: boundary, libraries: libs}, nil
}

// Libraries returns the registration order.
func (d *Dispatcher) Libraries() []string {
	out := make([]string, len(d.libraries))
	copy(out, d.libraries)
	return out
}

// Evaluate sends e through every engine of the run.
func (d *Dispatcher) Evaluate(e expr.Expression) expr.Expression {
	return d.boundary.Evaluate(expr.New(expr.EvaluateInEngines, engine.NameList(d.libraries...), e))
}

// EvaluateStorage sends e to the first engine only, which holds the tables.
func (d *Dispatcher) EvaluateStorage(e expr.Expression) expr.Expression {
	return d.boundary.Evaluate(expr.New(expr.EvaluateInEngines,
		expr.New(expr.List, expr.String(d.libraries[0])), e))
}

// Release closes every engine of the run in reverse registration order.
func (d *Dispatcher) Release() expr.Expression {
	return d.boundary.Evaluate(expr.New(expr.ReleaseEngines, engine.NameList(d.libraries...)))
}

// Failed reports whether result is a failure. Atoms and results headed by
// Table or List are successes; every other complex result is treated as an
// error, whether or not it is headed ErrorWhenEvaluatingExpression.
func Failed(result expr.Expression) bool {
	head, ok := expr.HeadOf(result)
	if !ok {
		return false
	}
	return head != expr.Table && head != expr.List
}
