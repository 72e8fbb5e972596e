// Package mapped provides non-owning multi-dimensional views over flat
// buffers.
package mapped

import (
	"iter"

	"imagestack/internal/expects"
	"imagestack/pkg/multiindex"
)

// MaxDims is the highest dimensionality a view supports.
const MaxDims = 4

// Memory is a view of a contiguous buffer as a dims-dimensional array with
// the first dimension varying fastest.
//
// Only the extents of the first dims-1 dimensions are stored; the extent of
// the last dimension is derived from the buffer length. The view never owns
// the buffer and must not outlive it.
type Memory[T any] struct {
	data    []T
	dims    int
	leading [MaxDims - 1]int
}

// New maps the first Product(size[:dims]) elements of data. size may have
// more than dims components; the extra components are ignored.
func New[T any, S multiindex.Index](data []T, dims int, size S) Memory[T] {
	expects.That(data != nil, "mapped memory needs a non-nil buffer")
	expects.That(dims >= 1 && dims <= MaxDims, "unsupported view dimensionality %d", dims)
	expects.That(size.Dims() >= dims, "size has %d dimensions, view needs %d", size.Dims(), dims)

	m := Memory[T]{dims: dims}
	length := 1
	for d := 0; d < dims; d++ {
		length *= size.At(d)
		if d < dims-1 {
			m.leading[d] = size.At(d)
		}
	}
	expects.That(length >= 0 && length <= len(data),
		"buffer of %d elements is too small for %d mapped elements", len(data), length)
	m.data = data[:length:length]
	return m
}

// Wrap maps all of data and derives the last extent from its length, which
// must be a multiple of the product of the leading extents.
func Wrap[T any, S multiindex.Index](data []T, dims int, leading S) Memory[T] {
	expects.That(data != nil, "mapped memory needs a non-nil buffer")
	expects.That(dims >= 1 && dims <= MaxDims, "unsupported view dimensionality %d", dims)
	expects.That(leading.Dims() >= dims-1, "need %d leading extents, got %d", dims-1, leading.Dims())

	m := Memory[T]{data: data, dims: dims}
	for d := 0; d < dims-1; d++ {
		m.leading[d] = leading.At(d)
	}
	m.Size()
	return m
}

// Dims returns the dimensionality fixed at construction.
func (m Memory[T]) Dims() int { return m.dims }

// LinearSize is the product of the extents of all dimensions.
func (m Memory[T]) LinearSize() int { return len(m.data) }

// Empty reports whether the view maps no elements.
func (m Memory[T]) Empty() bool { return len(m.data) == 0 }

// Size returns the extent of every dimension. The last one is recomputed
// from the linear size on each call.
func (m Memory[T]) Size() multiindex.Ints {
	res := make(multiindex.Ints, m.dims)
	if m.dims == 1 {
		res[0] = len(m.data)
		return res
	}
	prod := 1
	for d := 0; d < m.dims-1; d++ {
		res[d] = m.leading[d]
		prod *= m.leading[d]
	}
	if len(m.data) == 0 {
		return res
	}
	expects.That(prod > 0 && len(m.data)%prod == 0,
		"linear size %d is not a multiple of %d", len(m.data), prod)
	res[m.dims-1] = len(m.data) / prod
	return res
}

func (m Memory[T]) offset(i multiindex.Index) int {
	if l, ok := i.(multiindex.Linear); ok {
		return int(l)
	}
	expects.That(i.Dims() <= m.dims, "%d-dimensional index into a %d-dimensional view", i.Dims(), m.dims)
	lin := i.At(0)
	stride := 1
	for d := 1; d < i.Dims(); d++ {
		stride *= m.leading[d-1]
		lin += i.At(d) * stride
	}
	return lin
}

// At returns the element at multi index i. Out of range offsets panic.
func (m Memory[T]) At(i multiindex.Index) T {
	return m.data[m.offset(i)]
}

// Set stores v at multi index i.
func (m Memory[T]) Set(i multiindex.Index, v T) {
	m.data[m.offset(i)] = v
}

// Ptr returns a pointer to the element at multi index i.
func (m Memory[T]) Ptr(i multiindex.Index) *T {
	return &m.data[m.offset(i)]
}

// At3 is At for a 3-D coordinate without boxing the index. The view must
// be 3-dimensional.
func (m Memory[T]) At3(x, y, z int) T {
	expects.That(m.dims == 3, "3-D access to a %d-dimensional view", m.dims)
	return m.data[x+m.leading[0]*(y+m.leading[1]*z)]
}

// AtLinear returns the element at flat offset n.
func (m Memory[T]) AtLinear(n int) T { return m.data[n] }

// SetLinear stores v at flat offset n.
func (m Memory[T]) SetLinear(n int, v T) { m.data[n] = v }

// Data returns the mapped elements in memory order. Writes through the
// returned slice modify the underlying buffer.
func (m Memory[T]) Data() []T { return m.data }

// All iterates over flat offsets and elements in memory order.
func (m Memory[T]) All() iter.Seq2[int, T] {
	return func(yield func(int, T) bool) {
		for i, v := range m.data {
			if !yield(i, v) {
				return
			}
		}
	}
}
