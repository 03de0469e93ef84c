// Package expr provides the symbolic expression trees exchanged with query
// engines. Queries and data share one representation: complex expressions
// whose leaves are scalar atoms or columnar spans.
//
// Nothing in this package copies bulk data implicitly. Copies are explicit
// (Materialize) and structural duplication that shares column memory is
// explicit too (CloneForTesting, CloneForSubstitution).
package expr

import (
	"errors"
	"fmt"
)

// ErrConsumed is the panic value raised when a decomposed expression is used.
var ErrConsumed = errors.New("expr: use of consumed expression")

// Expression is a node of an expression tree. The set of implementations is
// closed: Symbol, Int, Float, String, Bool and *Complex.
type Expression interface {
	String() string
	isExpression()
}

// Symbol is an interned identifier used both as operator name and as
// table or column name.
type Symbol string

// Int is a 64-bit integer atom.
type Int int64

// Float is a 64-bit floating-point atom.
type Float float64

// String is a string atom.
type String string

// Bool is a boolean atom.
type Bool bool

func (Symbol) isExpression() {}
func (Int) isExpression()    {}
func (Float) isExpression()  {}
func (String) isExpression() {}
func (Bool) isExpression()   {}

func (*Complex) isExpression() {}

// Complex is a head symbol applied to an ordered sequence of dynamic
// arguments and an ordered sequence of spans. Either sequence may be empty.
type Complex struct {
	head     Symbol
	args     []Expression
	spans    []Span
	consumed bool
}

// New builds a complex expression from a head and dynamic arguments.
func New(head Symbol, args ...Expression) *Complex {
	return &Complex{head: head, args: args}
}

// NewWithSpans builds a complex expression that carries span arguments.
// Ownership of the slices passes to the expression.
func NewWithSpans(head Symbol, args []Expression, spans []Span) *Complex {
	return &Complex{head: head, args: args, spans: spans}
}

// Call applies s to args, lifting Go literals into atoms.
//
//	expr.Symbol("Greater").Call(24, expr.Symbol("l_quantity"))
func (s Symbol) Call(args ...any) *Complex {
	lifted := make([]Expression, len(args))
	for i, a := range args {
		lifted[i] = Lift(a)
	}
	return New(s, lifted...)
}

// Lift converts a Go literal into an atom. Expressions are returned as is.
// Unsupported types panic: lifting is used to build query templates in code.
func Lift(v any) Expression {
	switch x := v.(type) {
	case Expression:
		return x
	case int:
		return Int(x)
	case int32:
		return Int(x)
	case int64:
		return Int(x)
	case float32:
		return Float(x)
	case float64:
		return Float(x)
	case string:
		return String(x)
	case bool:
		return Bool(x)
	default:
		panic(fmt.Sprintf("expr: cannot lift %T into an expression", v))
	}
}

func (c *Complex) mustLive() {
	if c.consumed {
		panic(ErrConsumed)
	}
}

// Head returns the head symbol.
func (c *Complex) Head() Symbol {
	c.mustLive()
	return c.head
}

// Args returns the dynamic arguments without consuming the expression.
// The returned slice is shared with c and must not be modified.
func (c *Complex) Args() []Expression {
	c.mustLive()
	return c.args
}

// Arg returns the i-th dynamic argument.
func (c *Complex) Arg(i int) Expression {
	c.mustLive()
	return c.args[i]
}

// NumArgs returns the number of dynamic arguments.
func (c *Complex) NumArgs() int {
	c.mustLive()
	return len(c.args)
}

// Spans returns the span arguments without consuming the expression.
// The returned slice is shared with c and must not be modified.
func (c *Complex) Spans() []Span {
	c.mustLive()
	return c.spans
}

// Consumed reports whether c has been decomposed.
func (c *Complex) Consumed() bool {
	return c.consumed
}

// Decompose moves the head and both argument sequences out of c. After the
// call c is consumed and every accessor panics with ErrConsumed.
func (c *Complex) Decompose() (Symbol, []Expression, []Span) {
	c.mustLive()
	head, args, spans := c.head, c.args, c.spans
	c.head, c.args, c.spans = "", nil, nil
	c.consumed = true
	return head, args, spans
}

// HeadOf returns the head of e when e is a live complex expression.
func HeadOf(e Expression) (Symbol, bool) {
	c, ok := e.(*Complex)
	if !ok || c == nil || c.consumed {
		return "", false
	}
	return c.head, true
}

// HasHead reports whether e is a complex expression headed by head.
func HasHead(e Expression, head Symbol) bool {
	h, ok := HeadOf(e)
	return ok && h == head
}
