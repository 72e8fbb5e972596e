// Package multiindex provides fixed-arity index tuples and the arithmetic
// used to address flat buffers with them.
//
// A multi index is a non-empty tuple of integer coordinates. Its length is
// called its dimension. Index1 through Index4 are the fixed-arity models;
// Linear lets a plain integer act as a 1-D index and Ints carries a tuple
// whose arity is only known at run time (sub-indices, view sizes).
package multiindex

import (
	"fmt"
	"strings"

	"imagestack/internal/expects"
)

// Index is implemented by every multi index model.
type Index interface {
	// Dims returns the number of components.
	Dims() int
	// At returns the component of dimension d.
	At(d int) int
}

// Linear is a flat offset used as a 1-D multi index.
type Linear int

// Index1 through Index4 are fixed-arity multi indices.
type (
	Index1 [1]int
	Index2 [2]int
	Index3 [3]int
	Index4 [4]int
)

// Size3 is the shape of a volume: extents along x, y and z.
type Size3 = Index3

// Ints is a multi index with run-time arity.
type Ints []int

func (l Linear) Dims() int  { return 1 }
func (l Linear) At(int) int { return int(l) }

func (i Index1) Dims() int    { return 1 }
func (i Index1) At(d int) int { return i[d] }
func (i Index2) Dims() int    { return 2 }
func (i Index2) At(d int) int { return i[d] }
func (i Index3) Dims() int    { return 3 }
func (i Index3) At(d int) int { return i[d] }
func (i Index4) Dims() int    { return 4 }
func (i Index4) At(d int) int { return i[d] }
func (i Ints) Dims() int      { return len(i) }
func (i Ints) At(d int) int   { return i[d] }

func (i Index3) String() string { return format(i) }
func (i Ints) String() string   { return format(i) }

// X, Y and Z name the components of a 3-D index.
func (i Index3) X() int { return i[0] }
func (i Index3) Y() int { return i[1] }
func (i Index3) Z() int { return i[2] }

// Add returns the component-wise sum.
func (i Index3) Add(o Index3) Index3 { return Index3{i[0] + o[0], i[1] + o[1], i[2] + o[2]} }

// Sub returns the component-wise difference.
func (i Index3) Sub(o Index3) Index3 { return Index3{i[0] - o[0], i[1] - o[1], i[2] - o[2]} }

// Scale multiplies every component by f.
func (i Index3) Scale(f int) Index3 { return Index3{i[0] * f, i[1] * f, i[2] * f} }

// Of returns the fixed-arity model for 1 to 4 values and Ints otherwise.
func Of(values ...int) Index {
	switch len(values) {
	case 1:
		return Index1{values[0]}
	case 2:
		return Index2{values[0], values[1]}
	case 3:
		return Index3{values[0], values[1], values[2]}
	case 4:
		return Index4{values[0], values[1], values[2], values[3]}
	}
	return Ints(append([]int(nil), values...))
}

// To3 copies the first three components of i.
func To3[I Index](i I) Index3 {
	expects.That(i.Dims() >= 3, "index %s has fewer than 3 dimensions", format(i))
	return Index3{i.At(0), i.At(1), i.At(2)}
}

// Dims returns the number of components of i.
func Dims[I Index](i I) int {
	return i.Dims()
}

// ToLinear converts i to a flat offset into a buffer shaped by s, with the
// first dimension varying fastest (x fastest, then y, then z).
func ToLinear[I, S Index](i I, s S) int {
	if l, ok := any(i).(Linear); ok {
		return int(l)
	}
	n := i.Dims()
	expects.That(n > 0, "index must not be empty")
	expects.That(n <= s.Dims(), "index has %d dimensions, size only %d", n, s.Dims())

	lin := i.At(0)
	stride := 1
	for d := 1; d < n; d++ {
		stride *= s.At(d - 1)
		lin += i.At(d) * stride
	}
	return lin
}

// ToLinearOrder is ToLinear with the dimensions visited in the given order.
// order[0] is the fastest varying dimension. For a 2-D (row, column) index
// the order 0, 1 is column-major and 1, 0 is row-major.
func ToLinearOrder[I, S Index](i I, s S, order ...int) int {
	n := i.Dims()
	expects.That(n > 0, "index must not be empty")
	expects.That(len(order) == n, "order has %d entries for a %d-dimensional index", len(order), n)
	expects.That(n <= s.Dims(), "index has %d dimensions, size only %d", n, s.Dims())
	checkPermutation(order)

	lin := i.At(order[0])
	stride := 1
	for d := 1; d < n; d++ {
		stride *= s.At(order[d-1])
		lin += i.At(order[d]) * stride
	}
	return lin
}

func checkPermutation(order []int) {
	seen := make([]bool, len(order))
	for _, o := range order {
		expects.That(o >= 0 && o < len(order), "order entry %d out of range", o)
		expects.That(!seen[o], "order entry %d repeated", o)
		seen[o] = true
	}
}

// Sum folds the components of i with +.
func Sum[I Index](i I) int {
	s := 0
	for d := 0; d < i.Dims(); d++ {
		s += i.At(d)
	}
	return s
}

// Product folds the components of i with *. A zero component makes the
// product zero, which is how an empty shape is recognised.
func Product[I Index](i I) int {
	p := 1
	for d := 0; d < i.Dims(); d++ {
		p *= i.At(d)
	}
	return p
}

// Subindex projects n components of i into a new tuple. With no positions
// the first n components are taken.
func Subindex[I Index](i I, n int, positions ...int) Ints {
	expects.That(n >= 0, "negative subindex length %d", n)
	if len(positions) == 0 {
		expects.That(n <= i.Dims(), "subindex of length %d from %d dimensions", n, i.Dims())
		out := make(Ints, n)
		for d := range out {
			out[d] = i.At(d)
		}
		return out
	}
	expects.That(len(positions) == n, "subindex of length %d with %d positions", n, len(positions))
	out := make(Ints, n)
	for d, p := range positions {
		expects.That(p >= 0 && p < i.Dims(), "subindex position %d out of range", p)
		out[d] = i.At(p)
	}
	return out
}

// Equal reports whether a and b have the same dimension and components.
func Equal[A, B Index](a A, b B) bool {
	if a.Dims() != b.Dims() {
		return false
	}
	for d := 0; d < a.Dims(); d++ {
		if a.At(d) != b.At(d) {
			return false
		}
	}
	return true
}

func format(i Index) string {
	parts := make([]string, i.Dims())
	for d := range parts {
		parts[d] = fmt.Sprint(i.At(d))
	}
	return "(" + strings.Join(parts, " ") + ")"
}
