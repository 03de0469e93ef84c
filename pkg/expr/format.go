package expr

import (
	"strconv"
	"strings"
)

func (s Symbol) String() string { return string(s) }
func (i Int) String() string    { return strconv.FormatInt(int64(i), 10) }
func (f Float) String() string  { return strconv.FormatFloat(float64(f), 'g', -1, 64) }
func (s String) String() string { return strconv.Quote(string(s)) }
func (b Bool) String() string   { return strconv.FormatBool(bool(b)) }

// String renders c as Head[arg, ..., span, ...]. Spans are printed in full;
// use Debug first for large results.
func (c *Complex) String() string {
	if c.consumed {
		return "<consumed>"
	}
	var sb strings.Builder
	c.format(&sb)
	return sb.String()
}

func (c *Complex) format(sb *strings.Builder) {
	sb.WriteString(string(c.head))
	sb.WriteByte('[')
	first := true
	sep := func() {
		if !first {
			sb.WriteString(", ")
		}
		first = false
	}
	for _, a := range c.args {
		sep()
		if nested, ok := a.(*Complex); ok && !nested.consumed {
			nested.format(sb)
		} else {
			sb.WriteString(a.String())
		}
	}
	for _, s := range c.spans {
		sep()
		formatSpan(sb, s)
	}
	sb.WriteByte(']')
}

func formatSpan(sb *strings.Builder, s Span) {
	sb.WriteByte('{')
	switch s.ElementType() {
	case Int64Type:
		vals, _ := Values[int64](s)
		for i, v := range vals {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(strconv.FormatInt(v, 10))
		}
	case Float64Type:
		vals, _ := Values[float64](s)
		for i, v := range vals {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
		}
	case StringType:
		vals, _ := Values[string](s)
		for i, v := range vals {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(strconv.Quote(v))
		}
	default:
		vals, _ := Values[bool](s)
		for i, v := range vals {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(strconv.FormatBool(v))
		}
	}
	sb.WriteByte('}')
}
