// Package filter convolves image stacks with 3D kernels.
package filter

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"

	"imagestack/internal/expects"
	"imagestack/pkg/multiindex"
)

// Kernel is a 3D convolution kernel with odd extents centred on the origin.
type Kernel interface {
	// Size returns the kernel extent, 2*HalfSize()+1 along every axis.
	Size() multiindex.Size3
	// HalfSize returns the largest offset from the centre along every axis.
	HalfSize() multiindex.Index3
	// Weight returns the weight at offset (i, j, k) from the centre.
	Weight(i, j, k int) float64
}

// Gauss is a normalized 3D Gaussian kernel.
type Gauss struct {
	sigma r3.Vec
	size  multiindex.Size3
	half  multiindex.Index3

	// weights has one row per (i, j) pair, i fastest, and one column per k.
	weights *mat.Dense
}

var _ Kernel = (*Gauss)(nil)

// GaussOption configures NewGauss.
type GaussOption func(*gaussConfig)

type gaussConfig struct {
	extent *multiindex.Size3
}

// WithExtent fixes the kernel size instead of deriving it from sigma. Even
// extents are rounded down to the next odd value.
func WithExtent(w, h, d int) GaussOption {
	return func(c *gaussConfig) { c.extent = &multiindex.Size3{w, h, d} }
}

// NewGauss builds a Gaussian kernel with the given standard deviation per
// axis. Unless WithExtent is given, the half size along each axis is
// ceil(3 * sigma).
func NewGauss(sigma r3.Vec, opts ...GaussOption) *Gauss {
	var cfg gaussConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	expects.That(sigma.X > 0 && sigma.Y > 0 && sigma.Z > 0, "gaussian sigma %v must be positive", sigma)

	var half multiindex.Index3
	if cfg.extent != nil {
		for d, e := range cfg.extent {
			expects.That(e >= 1, "kernel extent %s must be positive", *cfg.extent)
			half[d] = (e - 1) / 2
		}
	} else {
		half = multiindex.Index3{
			int(math.Ceil(3 * sigma.X)),
			int(math.Ceil(3 * sigma.Y)),
			int(math.Ceil(3 * sigma.Z)),
		}
	}

	g := &Gauss{
		sigma: sigma,
		half:  half,
		size:  half.Scale(2).Add(multiindex.Index3{1, 1, 1}),
	}
	g.weights = mat.NewDense(g.size.X()*g.size.Y(), g.size.Z(), nil)

	inv := r3.Vec{X: 1 / (sigma.X * sigma.X), Y: 1 / (sigma.Y * sigma.Y), Z: 1 / (sigma.Z * sigma.Z)}
	for k := -half.Z(); k <= half.Z(); k++ {
		for j := -half.Y(); j <= half.Y(); j++ {
			for i := -half.X(); i <= half.X(); i++ {
				x, y, z := float64(i), float64(j), float64(k)
				w := math.Exp(-0.5 * (x*x*inv.X + y*y*inv.Y + z*z*inv.Z))
				g.weights.Set(g.row(i, j), k+half.Z(), w)
			}
		}
	}
	raw := g.weights.RawMatrix().Data
	floats.Scale(1/floats.Sum(raw), raw)
	return g
}

func (g *Gauss) row(i, j int) int {
	return (j+g.half.Y())*g.size.X() + i + g.half.X()
}

// Sigma returns the standard deviation per axis.
func (g *Gauss) Sigma() r3.Vec { return g.sigma }

func (g *Gauss) Size() multiindex.Size3 { return g.size }

func (g *Gauss) HalfSize() multiindex.Index3 { return g.half }

func (g *Gauss) Weight(i, j, k int) float64 {
	return g.weights.At(g.row(i, j), k+g.half.Z())
}
