package mapped

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imagestack/pkg/multiindex"
)

func TestNewIgnoresTrailingExtents(t *testing.T) {
	data := make([]int, 100)
	m := New(data, 2, multiindex.Index3{4, 5, 2})

	assert.Equal(t, 2, m.Dims())
	assert.Equal(t, 20, m.LinearSize())
	assert.Equal(t, multiindex.Ints{4, 5}, m.Size())
	assert.False(t, m.Empty())
}

func TestRoundTrip(t *testing.T) {
	size := multiindex.Index3{3, 4, 2}
	data := make([]float32, multiindex.Product(size))
	m := New(data, 3, size)

	for z := 0; z < size.Z(); z++ {
		for y := 0; y < size.Y(); y++ {
			for x := 0; x < size.X(); x++ {
				m.Set(multiindex.Index3{x, y, z}, float32(x+10*y+100*z))
			}
		}
	}
	for z := 0; z < size.Z(); z++ {
		for y := 0; y < size.Y(); y++ {
			for x := 0; x < size.X(); x++ {
				idx := multiindex.Index3{x, y, z}
				want := float32(x + 10*y + 100*z)
				require.Equal(t, want, m.At(idx))
				require.Equal(t, want, m.At3(x, y, z))
				require.Equal(t, want, data[multiindex.ToLinear(idx, size)])
				require.Equal(t, want, m.AtLinear(multiindex.ToLinear(idx, size)))
			}
		}
	}

	*m.Ptr(multiindex.Index3{1, 1, 1}) = -1
	assert.Equal(t, float32(-1), data[1+3+12])

	m.SetLinear(0, 42)
	assert.Equal(t, float32(42), m.At(multiindex.Linear(0)))
}

func TestLowerDimensionalIndex(t *testing.T) {
	data := []int{0, 1, 2, 3, 4, 5}
	m := New(data, 3, multiindex.Index3{2, 3, 1})
	assert.Equal(t, 3, m.At(multiindex.Index2{1, 1}))
	assert.Equal(t, 4, m.At(multiindex.Index1{4}))
	assert.Panics(t, func() { m.At(multiindex.Index4{0, 0, 0, 0}) })
}

func TestWrapDerivesLastExtent(t *testing.T) {
	data := make([]byte, 24)
	m := Wrap(data, 3, multiindex.Index2{2, 3})
	assert.Equal(t, multiindex.Ints{2, 3, 4}, m.Size())

	assert.Panics(t, func() { Wrap(make([]byte, 25), 3, multiindex.Index2{2, 3}) })
	assert.Equal(t, multiindex.Ints{7}, Wrap(make([]byte, 7), 1, multiindex.Ints{}).Size())
}

func TestPreconditions(t *testing.T) {
	assert.Panics(t, func() { New[int](nil, 1, multiindex.Index1{0}) })
	assert.Panics(t, func() { New(make([]int, 4), 5, multiindex.Ints{1, 1, 1, 1, 1}) })
	assert.Panics(t, func() { New(make([]int, 4), 3, multiindex.Index2{2, 2}) })
	assert.Panics(t, func() { New(make([]int, 4), 2, multiindex.Index2{3, 2}) })

	m := New(make([]int, 4), 2, multiindex.Index2{2, 2})
	assert.Panics(t, func() { m.AtLinear(4) })
	assert.Panics(t, func() { m.At3(1, 1, 0) })
}

func TestAllVisitsMemoryOrder(t *testing.T) {
	m := New([]int{5, 6, 7, 8}, 2, multiindex.Index2{2, 2})
	var offsets, values []int
	for i, v := range m.All() {
		offsets = append(offsets, i)
		values = append(values, v)
	}
	assert.Equal(t, []int{0, 1, 2, 3}, offsets)
	assert.Equal(t, []int{5, 6, 7, 8}, values)

	for i := range m.All() {
		if i == 1 {
			break
		}
	}
}

func TestEmptyView(t *testing.T) {
	m := New(make([]int, 0), 3, multiindex.Index3{4, 0, 2})
	assert.True(t, m.Empty())
	assert.Equal(t, multiindex.Ints{4, 0, 0}, m.Size())
}
