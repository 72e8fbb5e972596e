package multiindex

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDims(t *testing.T) {
	assert.Equal(t, 1, Dims(Linear(7)))
	assert.Equal(t, 1, Dims(Index1{3}))
	assert.Equal(t, 2, Dims(Index2{1, 2}))
	assert.Equal(t, 3, Dims(Index3{1, 2, 3}))
	assert.Equal(t, 4, Dims(Index4{1, 2, 3, 4}))
	assert.Equal(t, 5, Dims(Ints{1, 2, 3, 4, 5}))
}

func TestToLinear(t *testing.T) {
	assert.Equal(t, 21, ToLinear(Index2{1, 2}, Index2{10, 20}))
	assert.Equal(t, 22, ToLinearOrder(Index2{1, 2}, Index2{10, 20}, 1, 0))
	assert.Equal(t, 21, ToLinearOrder(Index2{1, 2}, Index2{10, 20}, 0, 1))

	s := Index4{11, 12, 13, 14}
	assert.Equal(t, 58, ToLinear(Index2{3, 5}, s))
	assert.Equal(t, 1114, ToLinear(Index3{3, 5, 8}, s))
	assert.Equal(t, 3, ToLinear(Index1{3}, s))

	assert.Equal(t, 42, ToLinear(Linear(42), Index3{2, 2, 2}))
}

func TestToLinearIsInjective(t *testing.T) {
	s := Index3{4, 3, 5}
	n := Product(s)
	seen := make([]bool, n)
	for z := 0; z < s.Z(); z++ {
		for y := 0; y < s.Y(); y++ {
			for x := 0; x < s.X(); x++ {
				lin := ToLinear(Index3{x, y, z}, s)
				require.True(t, lin >= 0 && lin < n, "offset %d out of range", lin)
				require.False(t, seen[lin], "offset %d produced twice", lin)
				seen[lin] = true
			}
		}
	}
}

func TestToLinearOrderPermutation(t *testing.T) {
	i := Index3{1, 2, 3}
	s := Index3{4, 5, 6}
	assert.Equal(t, ToLinear(i, s), ToLinearOrder(i, s, 0, 1, 2))

	// Visiting z fastest is the same as linearizing the reversed tuples.
	assert.Equal(t,
		ToLinear(Index3{3, 2, 1}, Index3{6, 5, 4}),
		ToLinearOrder(i, s, 2, 1, 0))

	assert.Panics(t, func() { ToLinearOrder(i, s, 0, 1) })
	assert.Panics(t, func() { ToLinearOrder(i, s, 0, 0, 1) })
	assert.Panics(t, func() { ToLinearOrder(i, s, 0, 1, 3) })
	assert.Panics(t, func() { ToLinear(Index3{1, 1, 1}, Index2{2, 2}) })
	assert.Panics(t, func() { ToLinear(Ints{}, Index2{2, 2}) })

	five := Ints{1, 0, 1, 0, 1}
	fiveSize := Ints{2, 2, 2, 2, 2}
	assert.Equal(t, ToLinear(five, fiveSize), ToLinearOrder(five, fiveSize, 0, 1, 2, 3, 4))
	assert.Panics(t, func() { ToLinearOrder(five, fiveSize, 0, 1, 2, 4, 4) })
	assert.Panics(t, func() { ToLinearOrder(five, fiveSize, 0, 1, 2, 3, 5) })
}

func TestSumAndProduct(t *testing.T) {
	assert.Equal(t, 10, Sum(Index4{1, 2, 3, 4}))
	assert.Equal(t, 24, Product(Index4{1, 2, 3, 4}))
	assert.Equal(t, 0, Product(Index3{20, 0, 10}))
	assert.Equal(t, 1, Product(Ints{}))
	assert.Equal(t, 7, Product(Linear(7)))
}

func TestSubindex(t *testing.T) {
	i := Index4{10, 20, 30, 40}
	assert.Equal(t, Ints{10, 20}, Subindex(i, 2))
	assert.Equal(t, Ints{40, 10}, Subindex(i, 2, 3, 0))
	assert.Empty(t, Subindex(i, 0))
	assert.True(t, Equal(Subindex(i, 3), Index3{10, 20, 30}))

	assert.Panics(t, func() { Subindex(i, 5) })
	assert.Panics(t, func() { Subindex(i, 2, 1) })
	assert.Panics(t, func() { Subindex(i, 1, 4) })
}

func TestEqual(t *testing.T) {
	assert.True(t, Equal(Index3{1, 2, 3}, Ints{1, 2, 3}))
	assert.False(t, Equal(Index3{1, 2, 3}, Index2{1, 2}))
	assert.False(t, Equal(Index2{1, 2}, Index2{2, 1}))
	assert.True(t, Equal(Linear(5), Index1{5}))
}

func TestOf(t *testing.T) {
	assert.Equal(t, Index1{1}, Of(1))
	assert.Equal(t, Index2{1, 2}, Of(1, 2))
	assert.Equal(t, Index3{1, 2, 3}, Of(1, 2, 3))
	assert.Equal(t, Index4{1, 2, 3, 4}, Of(1, 2, 3, 4))
	assert.Equal(t, Ints{1, 2, 3, 4, 5}, Of(1, 2, 3, 4, 5))
}

func TestIndex3Arithmetic(t *testing.T) {
	a := Index3{1, 2, 3}
	b := Index3{4, 5, 6}
	assert.Equal(t, Index3{5, 7, 9}, a.Add(b))
	assert.Equal(t, Index3{3, 3, 3}, b.Sub(a))
	assert.Equal(t, Index3{2, 4, 6}, a.Scale(2))
	assert.Equal(t, "(1 2 3)", a.String())
	assert.Equal(t, Index3{1, 2, 3}, To3(Index4{1, 2, 3, 9}))
	assert.Panics(t, func() { To3(Index2{1, 2}) })
}
