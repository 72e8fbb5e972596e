// Package storage provides the owning buffer behind an image stack.
package storage

import (
	"imagestack/internal/expects"
	"imagestack/pkg/mapped"
	"imagestack/pkg/multiindex"
)

// Host is a 3D buffer in host memory. The buffer always holds exactly
// size.X()*size.Y()*size.Z() elements.
//
// Host values own their buffer: use Clone to duplicate it and Move to hand
// it over to another Host.
type Host[T any] struct {
	size multiindex.Size3
	data []T
}

// New allocates zero-valued storage. Only the first three components of
// size are used.
func New[T any, S multiindex.Index](size S) *Host[T] {
	s := multiindex.To3(size)
	checkSize(s)
	return &Host[T]{size: s, data: make([]T, multiindex.Product(s))}
}

// NewFilled allocates storage with every element set to init.
func NewFilled[T any, S multiindex.Index](size S, init T) *Host[T] {
	h := New[T](size)
	for i := range h.data {
		h.data[i] = init
	}
	return h
}

// NewFrom allocates storage holding a copy of src, whose length must match
// the product of size.
func NewFrom[T any, S multiindex.Index](size S, src []T) *Host[T] {
	s := multiindex.To3(size)
	checkSize(s)
	expects.That(multiindex.Product(s) == len(src),
		"source of %d elements does not fill storage of size %s", len(src), s)
	return &Host[T]{size: s, data: append([]T(nil), src...)}
}

func checkSize(s multiindex.Size3) {
	expects.That(s.X() >= 0 && s.Y() >= 0 && s.Z() >= 0, "negative storage size %s", s)
}

// Size returns the extent along x, y and z.
func (h *Host[T]) Size() multiindex.Size3 { return h.size }

// LinearSize is the number of stored elements.
func (h *Host[T]) LinearSize() int { return multiindex.Product(h.size) }

// Empty reports whether no elements are stored.
func (h *Host[T]) Empty() bool { return h.LinearSize() == 0 }

// Map returns a 3D view of the buffer. Mapping empty storage is a
// precondition violation; check Empty first.
func (h *Host[T]) Map() mapped.Memory[T] {
	expects.That(!h.Empty(), "cannot map empty storage")
	return mapped.New(h.data, 3, h.size)
}

// Clone returns an independent copy of the storage.
func (h *Host[T]) Clone() *Host[T] {
	return &Host[T]{size: h.size, data: append([]T(nil), h.data...)}
}

// Move transfers the buffer to a new Host and leaves h empty with size
// (0, 0, 0).
func (h *Host[T]) Move() *Host[T] {
	moved := &Host[T]{size: h.size, data: h.data}
	h.size = multiindex.Size3{}
	h.data = nil
	return moved
}
