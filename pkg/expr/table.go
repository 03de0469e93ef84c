package expr

import "fmt"

// NewColumn builds name[List[segments...]].
func NewColumn(name Symbol, segments ...Span) *Complex {
	return New(name, NewWithSpans(List, nil, segments))
}

// NewTable builds head[columns...]; head is normally Table or Data.
func NewTable(head Symbol, columns ...*Complex) *Complex {
	args := make([]Expression, len(columns))
	for i, c := range columns {
		args[i] = c
	}
	return New(head, args...)
}

// ColumnSegments returns the name and the span segments of a column without
// consuming it.
func ColumnSegments(column Expression) (Symbol, []Span, error) {
	c, ok := column.(*Complex)
	if !ok || c.NumArgs() != 1 {
		return "", nil, fmt.Errorf("expr: %v is not a column", column)
	}
	list, ok := c.Arg(0).(*Complex)
	if !ok || list.Head() != List {
		return "", nil, fmt.Errorf("expr: column %s does not wrap a List", c.Head())
	}
	return c.Head(), list.Spans(), nil
}
