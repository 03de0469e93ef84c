package expr

// CloneForTesting rebuilds the structure of c while sharing every span's
// memory with c. It is used once per measured iteration so that engines may
// consume the clone without touching the template.
//
// The caller must keep the memory behind c's spans alive until the clone is
// discarded.
func CloneForTesting(c *Complex) *Complex {
	return shallowClone(c)
}

// CloneForSubstitution is CloneForTesting for callers that intend to replace
// span arguments of the clone (for example with reordered columns) while the
// source stays available. The caller must not read the source concurrently
// with the substitution.
func CloneForSubstitution(c *Complex) *Complex {
	return shallowClone(c)
}

// Clone applies CloneForTesting to complex expressions; atoms are values and
// are returned unchanged.
func Clone(e Expression) Expression {
	if c, ok := e.(*Complex); ok {
		return shallowClone(c)
	}
	return e
}

func shallowClone(c *Complex) *Complex {
	c.mustLive()
	var args []Expression
	if len(c.args) > 0 {
		args = make([]Expression, len(c.args))
		for i, a := range c.args {
			if nested, ok := a.(*Complex); ok {
				args[i] = shallowClone(nested)
			} else {
				args[i] = a
			}
		}
	}
	var spans []Span
	if len(c.spans) > 0 {
		spans = make([]Span, len(c.spans))
		for i, s := range c.spans {
			spans[i] = shareSpan(s)
		}
	}
	return &Complex{head: c.head, args: args, spans: spans}
}

// shareSpan returns a view over the same memory as s. Boolean views are
// always read-only.
// TODO(bench): revisit once bool columns are no longer bit-packed by engines.
func shareSpan(s Span) Span {
	switch s.ElementType() {
	case Int64Type:
		return shareView[int64](s, true)
	case Float64Type:
		return shareView[float64](s, true)
	case StringType:
		return shareView[string](s, true)
	default:
		return shareView[bool](s, false)
	}
}

func shareView[T Element](s Span, writable bool) View[T] {
	data, life := s.(typedSpan[T]).share()
	life.check()
	return View[T]{data: data, life: life, writable: writable}
}
