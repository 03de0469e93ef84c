package cluster

import (
	"fmt"

	"github.com/arkilian/enginebench/pkg/expr"
)

// Gather writes src[perm[i]] into dst[i] for every i.
func Gather[T expr.Element](dst, src []T, perm []uint32) {
	for i, p := range perm {
		dst[i] = src[p]
	}
}

// GatherSpan allocates a new owning buffer of len(idx) elements holding
// src[idx[i]] at position i. idx may select, repeat or reorder rows.
func GatherSpan(src expr.Span, idx []uint32) (expr.Span, error) {
	n := uint32(src.Len())
	for _, p := range idx {
		if p >= n {
			return nil, fmt.Errorf("cluster: index %d out of range for a span of %d", p, n)
		}
	}
	switch src.ElementType() {
	case expr.Int64Type:
		return gather[int64](src, idx), nil
	case expr.Float64Type:
		return gather[float64](src, idx), nil
	case expr.StringType:
		return gather[string](src, idx), nil
	case expr.BoolType:
		return gather[bool](src, idx), nil
	default:
		return nil, fmt.Errorf("cluster: unsupported span type %s", src.ElementType())
	}
}

func gather[T expr.Element](src expr.Span, idx []uint32) *expr.Buffer[T] {
	values, _ := expr.Values[T](src)
	dst := make([]T, len(idx))
	Gather(dst, values, idx)
	return expr.NewBuffer(dst)
}

// Reorder returns Data[col[List[span]]...] in which every column of table
// (any head, typically the Table an engine returned) is permuted by perm.
// Column structure is taken from a substitution clone of table, so table
// stays intact; each reordered column is a freshly allocated buffer owned by
// the returned expression. Columns holding several segments are gathered as
// if they were concatenated.
func Reorder(table *expr.Complex, perm []uint32) (*expr.Complex, error) {
	structure := expr.CloneForSubstitution(table)
	_, columns, _ := structure.Decompose()

	out := make([]*expr.Complex, 0, len(columns))
	for _, column := range columns {
		name, segments, err := expr.ColumnSegments(column)
		if err != nil {
			return nil, err
		}
		if len(segments) == 0 {
			return nil, fmt.Errorf("cluster: column %s has no segments", name)
		}
		src := segments[0]
		if len(segments) != 1 {
			if src, err = expr.Concat(segments); err != nil {
				return nil, fmt.Errorf("cluster: column %s: %w", name, err)
			}
		}
		if src.Len() != len(perm) {
			return nil, fmt.Errorf("cluster: column %s has %d rows, permutation has %d", name, src.Len(), len(perm))
		}
		reordered, err := GatherSpan(src, perm)
		if err != nil {
			return nil, fmt.Errorf("cluster: column %s: %w", name, err)
		}
		out = append(out, expr.NewColumn(name, reordered))
	}
	return expr.NewTable(expr.Data, out...), nil
}
