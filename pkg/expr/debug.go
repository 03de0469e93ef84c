package expr

// Debug consumes e and returns a tree of the same shape in which every span
// is replaced by a Span(elementType, length) descriptor appended after the
// dynamic arguments of its parent. It is meant for printing results that may
// hold millions of rows.
func Debug(e Expression) Expression {
	c, ok := e.(*Complex)
	if !ok {
		return e
	}
	head, args, spans := c.Decompose()
	out := make([]Expression, 0, len(args)+len(spans))
	for _, a := range args {
		out = append(out, Debug(a))
	}
	for _, s := range spans {
		out = append(out, New(SpanDescriptor, String(s.ElementType().String()), Int(s.Len())))
	}
	return New(head, out...)
}
