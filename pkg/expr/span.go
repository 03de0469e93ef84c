package expr

import (
	"errors"
	"fmt"
)

var (
	// ErrImmutableSpan is returned when writing through a read-only view.
	ErrImmutableSpan = errors.New("expr: span is not writable")

	// ErrReleased is the panic value raised when a span is accessed after
	// the buffer owning its memory was released.
	ErrReleased = errors.New("expr: span used after its owner was released")
)

// Element is the set of element types a span can hold.
type Element interface {
	int64 | float64 | string | bool
}

// ElementType identifies the element type of a span at runtime.
type ElementType uint8

const (
	Int64Type ElementType = iota + 1
	Float64Type
	StringType
	BoolType
)

func (t ElementType) String() string {
	switch t {
	case Int64Type:
		return "int64"
	case Float64Type:
		return "float64"
	case StringType:
		return "string"
	case BoolType:
		return "bool"
	default:
		return fmt.Sprintf("ElementType(%d)", uint8(t))
	}
}

// ElementTypeOf returns the ElementType of T.
func ElementTypeOf[T Element]() ElementType {
	var zero T
	switch any(zero).(type) {
	case int64:
		return Int64Type
	case float64:
		return Float64Type
	case string:
		return StringType
	default:
		return BoolType
	}
}

// Span is a typed contiguous run of column values. The two implementations
// are *Buffer, which owns its memory, and View, which borrows memory owned
// by a Buffer elsewhere.
type Span interface {
	ElementType() ElementType
	Len() int
	// Owned reports whether the span is responsible for releasing its memory.
	Owned() bool
	isSpan()
}

type typedSpan[T Element] interface {
	Span
	share() ([]T, *lifetime)
}

// lifetime is shared by a buffer and every view derived from it.
type lifetime struct {
	released bool
}

func (l *lifetime) check() {
	if l != nil && l.released {
		panic(ErrReleased)
	}
}

// Values returns the elements of s when s holds elements of type T. The
// slice aliases the span's memory; writes through it are only permitted on
// owning buffers and writable views.
func Values[T Element](s Span) ([]T, bool) {
	t, ok := s.(typedSpan[T])
	if !ok {
		return nil, false
	}
	data, life := t.share()
	life.check()
	return data, true
}

// Buffer owns a contiguous run of values. Only the component that created
// a buffer (or adopted it from a decomposed expression) may release it.
type Buffer[T Element] struct {
	data      []T
	life      *lifetime
	onRelease func()
}

// NewBuffer wraps data in an owning buffer. The buffer takes ownership of
// the slice; the caller must not retain it.
func NewBuffer[T Element](data []T) *Buffer[T] {
	return &Buffer[T]{data: data, life: &lifetime{}}
}

// NewBufferWithRelease is NewBuffer with a callback invoked once on Release.
func NewBufferWithRelease[T Element](data []T, release func()) *Buffer[T] {
	return &Buffer[T]{data: data, life: &lifetime{}, onRelease: release}
}

func (*Buffer[T]) isSpan() {}

func (b *Buffer[T]) ElementType() ElementType { return ElementTypeOf[T]() }

func (b *Buffer[T]) Len() int {
	b.life.check()
	return len(b.data)
}

func (b *Buffer[T]) Owned() bool { return true }

func (b *Buffer[T]) share() ([]T, *lifetime) { return b.data, b.life }

// Values returns the owned slice. The owner may write through it.
func (b *Buffer[T]) Values() []T {
	b.life.check()
	return b.data
}

// At returns the i-th element.
func (b *Buffer[T]) At(i int) T {
	b.life.check()
	return b.data[i]
}

// Set writes the i-th element.
func (b *Buffer[T]) Set(i int, v T) error {
	b.life.check()
	b.data[i] = v
	return nil
}

// View returns a read-only borrowed view of the buffer.
func (b *Buffer[T]) View() View[T] {
	b.life.check()
	return View[T]{data: b.data, life: b.life}
}

// Release frees the buffer. Every view derived from it becomes invalid.
// Release is idempotent.
func (b *Buffer[T]) Release() {
	if b.life.released {
		return
	}
	b.life.released = true
	b.data = nil
	if b.onRelease != nil {
		b.onRelease()
	}
}

// Released reports whether Release has been called.
func (b *Buffer[T]) Released() bool { return b.life.released }

// View borrows memory owned by a Buffer. A view has no Release method: it
// can never free the memory it points at, and it must not outlive its owner.
type View[T Element] struct {
	data     []T
	life     *lifetime
	writable bool
}

func (View[T]) isSpan() {}

func (v View[T]) ElementType() ElementType { return ElementTypeOf[T]() }

func (v View[T]) Len() int {
	v.life.check()
	return len(v.data)
}

func (v View[T]) Owned() bool { return false }

func (v View[T]) share() ([]T, *lifetime) { return v.data, v.life }

// Alive reports whether the owning buffer has not been released.
func (v View[T]) Alive() bool { return v.life == nil || !v.life.released }

// Writable reports whether the view permits in-place writes.
func (v View[T]) Writable() bool { return v.writable }

// At returns the i-th element.
func (v View[T]) At(i int) T {
	v.life.check()
	return v.data[i]
}

// Values returns the borrowed slice for reading.
func (v View[T]) Values() []T {
	v.life.check()
	return v.data
}

// Mutable returns the borrowed slice for writing, or ErrImmutableSpan.
func (v View[T]) Mutable() ([]T, error) {
	v.life.check()
	if !v.writable {
		return nil, ErrImmutableSpan
	}
	return v.data, nil
}

// Set writes the i-th element through the view.
func (v View[T]) Set(i int, x T) error {
	data, err := v.Mutable()
	if err != nil {
		return err
	}
	data[i] = x
	return nil
}

// Materialize copies s into a new owning buffer. It is the only operation in
// this package that copies span data.
func Materialize(s Span) Span {
	switch s.ElementType() {
	case Int64Type:
		return materialize[int64](s)
	case Float64Type:
		return materialize[float64](s)
	case StringType:
		return materialize[string](s)
	default:
		return materialize[bool](s)
	}
}

func materialize[T Element](s Span) *Buffer[T] {
	src, _ := Values[T](s)
	dst := make([]T, len(src))
	copy(dst, src)
	return NewBuffer(dst)
}

// Concat copies the given segments, all of one element type, into a single
// owning buffer.
func Concat(segments []Span) (Span, error) {
	if len(segments) == 0 {
		return nil, errors.New("expr: no segments to concatenate")
	}
	t := segments[0].ElementType()
	for _, s := range segments[1:] {
		if s.ElementType() != t {
			return nil, fmt.Errorf("expr: cannot concatenate %s and %s segments", t, s.ElementType())
		}
	}
	switch t {
	case Int64Type:
		return concat[int64](segments), nil
	case Float64Type:
		return concat[float64](segments), nil
	case StringType:
		return concat[string](segments), nil
	default:
		return concat[bool](segments), nil
	}
}

func concat[T Element](segments []Span) *Buffer[T] {
	n := 0
	for _, s := range segments {
		n += s.Len()
	}
	out := make([]T, 0, n)
	for _, s := range segments {
		vals, _ := Values[T](s)
		out = append(out, vals...)
	}
	return NewBuffer(out)
}
