package sampler

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"imagestack/internal/expects"
	"imagestack/pkg/imagestack"
	"imagestack/pkg/multiindex"
)

// CoordTransform maps caller positions to continuous voxel coordinates.
type CoordTransform interface {
	// Bind returns the mapping for one volume. It is called once per query
	// or batch.
	Bind(img imagestack.Resolved) func(p r3.Vec) r3.Vec
}

// Identity treats positions as voxel coordinates.
type Identity struct{}

func (Identity) Bind(imagestack.Resolved) func(r3.Vec) r3.Vec {
	return func(p r3.Vec) r3.Vec { return p }
}

// ResolutionScale treats positions as physical coordinates and divides them
// by the volume's resolution. The volume must carry a resolution.
type ResolutionScale struct{}

func (ResolutionScale) Bind(img imagestack.Resolved) func(r3.Vec) r3.Vec {
	expects.That(img.HasResolution(), "resolution scaling needs a volume with resolution")
	res := img.Resolution()
	return func(p r3.Vec) r3.Vec {
		return r3.Vec{X: p.X / res.X, Y: p.Y / res.Y, Z: p.Z / res.Z}
	}
}

// Border decides how voxel coordinates outside the volume are answered.
type Border interface {
	// Resolve maps i to the voxel that supplies its value. ok is false when
	// the sampler's outside value should be used instead.
	Resolve(i, size multiindex.Index3) (r multiindex.Index3, ok bool)
}

// Constant answers every coordinate outside the volume with the sampler's
// outside value.
type Constant struct{}

func (Constant) Resolve(i, size multiindex.Index3) (multiindex.Index3, bool) {
	for d := 0; d < 3; d++ {
		if i[d] < 0 || i[d] >= size[d] {
			return i, false
		}
	}
	return i, true
}

// Replicate answers coordinates outside the volume with the nearest voxel
// on the boundary.
type Replicate struct{}

func (Replicate) Resolve(i, size multiindex.Index3) (multiindex.Index3, bool) {
	for d := 0; d < 3; d++ {
		i[d] = min(max(i[d], 0), size[d]-1)
	}
	return i, true
}

// Grid gives interpolators bordered access to voxel values.
type Grid interface {
	At(i multiindex.Index3) float64
}

// Interpolator reconstructs a value at a continuous voxel coordinate.
type Interpolator interface {
	Interpolate(g Grid, p r3.Vec) float64
}

// Nearest returns the voxel closest to p, rounding halves away from zero.
type Nearest struct{}

func (Nearest) Interpolate(g Grid, p r3.Vec) float64 {
	return g.At(multiindex.Index3{int(math.Round(p.X)), int(math.Round(p.Y)), int(math.Round(p.Z))})
}

// corners returns the floor and ceil coordinates around p and the
// fractional offsets from the floor.
func corners(p r3.Vec) (lo, hi multiindex.Index3, d r3.Vec) {
	fx, fy, fz := math.Floor(p.X), math.Floor(p.Y), math.Floor(p.Z)
	lo = multiindex.Index3{int(fx), int(fy), int(fz)}
	hi = multiindex.Index3{int(math.Ceil(p.X)), int(math.Ceil(p.Y)), int(math.Ceil(p.Z))}
	return lo, hi, r3.Vec{X: p.X - fx, Y: p.Y - fy, Z: p.Z - fz}
}

// cube holds the eight corner values, indexed by [x][y][z] with 0 for the
// floor and 1 for the ceil coordinate.
type cube [2][2][2]float64

func (c *cube) fetch(g Grid, lo, hi multiindex.Index3) {
	for a, x := range [2]int{lo[0], hi[0]} {
		for b, y := range [2]int{lo[1], hi[1]} {
			for e, z := range [2]int{lo[2], hi[2]} {
				c[a][b][e] = g.At(multiindex.Index3{x, y, z})
			}
		}
	}
}

// blend interpolates along x, then y, then z.
func (c *cube) blend(d r3.Vec) float64 {
	v00 := c[0][0][0]*(1-d.X) + c[1][0][0]*d.X
	v01 := c[0][0][1]*(1-d.X) + c[1][0][1]*d.X
	v10 := c[0][1][0]*(1-d.X) + c[1][1][0]*d.X
	v11 := c[0][1][1]*(1-d.X) + c[1][1][1]*d.X

	v0 := v00*(1-d.Y) + v10*d.Y
	v1 := v01*(1-d.Y) + v11*d.Y

	return v0*(1-d.Z) + v1*d.Z
}

// Trilinear blends the eight voxels around p.
type Trilinear struct{}

func (Trilinear) Interpolate(g Grid, p r3.Vec) float64 {
	lo, hi, d := corners(p)
	var c cube
	c.fetch(g, lo, hi)
	return c.blend(d)
}

// WeightedTrilinear scales the eight corner values by Weight, normalized to
// sum to one when the sum is positive, before blending them trilinearly.
// Weight is queried with unbordered voxel coordinates.
type WeightedTrilinear struct {
	Weight func(i multiindex.Index3) float64
}

func (w WeightedTrilinear) Interpolate(g Grid, p r3.Vec) float64 {
	expects.That(w.Weight != nil, "weighted interpolation needs a weight function")
	lo, hi, d := corners(p)

	var weights cube
	sum := 0.0
	for a, x := range [2]int{lo[0], hi[0]} {
		for b, y := range [2]int{lo[1], hi[1]} {
			for e, z := range [2]int{lo[2], hi[2]} {
				weights[a][b][e] = w.Weight(multiindex.Index3{x, y, z})
				sum += weights[a][b][e]
			}
		}
	}

	var c cube
	c.fetch(g, lo, hi)
	for a := range c {
		for b := range c[a] {
			for e := range c[a][b] {
				wt := weights[a][b][e]
				if sum > 0 {
					wt /= sum
				}
				c[a][b][e] *= wt
			}
		}
	}
	return c.blend(d)
}
