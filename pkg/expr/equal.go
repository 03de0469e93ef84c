package expr

// Equal reports structural equality: same head, same dynamic arguments and
// same span contents, in order.
func Equal(a, b Expression) bool {
	switch x := a.(type) {
	case *Complex:
		y, ok := b.(*Complex)
		if !ok {
			return false
		}
		return equalComplex(x, y)
	default:
		return a == b
	}
}

func equalComplex(a, b *Complex) bool {
	if a.Head() != b.Head() || len(a.Args()) != len(b.Args()) || len(a.Spans()) != len(b.Spans()) {
		return false
	}
	for i := range a.args {
		if !Equal(a.args[i], b.args[i]) {
			return false
		}
	}
	for i := range a.spans {
		if !SpanEqual(a.spans[i], b.spans[i]) {
			return false
		}
	}
	return true
}

// SpanEqual compares element type, length and values.
func SpanEqual(a, b Span) bool {
	if a.ElementType() != b.ElementType() || a.Len() != b.Len() {
		return false
	}
	switch a.ElementType() {
	case Int64Type:
		return equalValues[int64](a, b)
	case Float64Type:
		return equalValues[float64](a, b)
	case StringType:
		return equalValues[string](a, b)
	default:
		return equalValues[bool](a, b)
	}
}

func equalValues[T Element](a, b Span) bool {
	x, _ := Values[T](a)
	y, _ := Values[T](b)
	for i := range x {
		if x[i] != y[i] {
			return false
		}
	}
	return true
}
