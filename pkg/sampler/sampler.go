// Package sampler evaluates volumes at arbitrary positions.
//
// A Sampler is composed from four policies: a CoordTransform mapping the
// caller's positions into voxel coordinates, an Interpolator reconstructing
// a value from the surrounding voxels, a Border answering voxel coordinates
// outside the volume, and a value transform applied to every result.
// Results are float64 regardless of the voxel type.
package sampler

import (
	"gonum.org/v1/gonum/spatial/r3"

	"imagestack/internal/expects"
	"imagestack/pkg/imagestack"
	"imagestack/pkg/mapped"
	"imagestack/pkg/multiindex"
)

// Sampler reads values of an ImageStack[T]. The zero value is not usable;
// construct with New.
type Sampler[T imagestack.Scalar] struct {
	coords  CoordTransform
	interp  Interpolator
	border  Border
	outside float64
	value   func(float64) float64
}

// Option configures a Sampler.
type Option func(*config)

type config struct {
	coords  CoordTransform
	interp  Interpolator
	border  Border
	outside float64
	value   func(float64) float64
}

// WithCoordTransform sets the position mapping. The default is Identity.
func WithCoordTransform(c CoordTransform) Option {
	return func(cfg *config) { cfg.coords = c }
}

// WithInterpolator sets the reconstruction kernel. The default is Nearest.
func WithInterpolator(i Interpolator) Option {
	return func(cfg *config) { cfg.interp = i }
}

// WithBorder sets the out-of-bounds policy. The default is Constant.
func WithBorder(b Border) Option {
	return func(cfg *config) { cfg.border = b }
}

// WithOutside sets the value used for coordinates the border does not
// resolve and for every query on an empty volume. The default is 0.
func WithOutside(v float64) Option {
	return func(cfg *config) { cfg.outside = v }
}

// WithValueTransform applies f to every result.
func WithValueTransform(f func(float64) float64) Option {
	return func(cfg *config) { cfg.value = f }
}

// New returns a sampler composed from the given policies.
func New[T imagestack.Scalar](opts ...Option) *Sampler[T] {
	cfg := config{
		coords: Identity{},
		interp: Nearest{},
		border: Constant{},
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	expects.That(cfg.coords != nil && cfg.interp != nil && cfg.border != nil, "sampler policies must not be nil")
	return &Sampler[T]{
		coords:  cfg.coords,
		interp:  cfg.interp,
		border:  cfg.border,
		outside: cfg.outside,
		value:   cfg.value,
	}
}

// grid is a volume bound to a border policy.
type grid[T imagestack.Scalar] struct {
	m       mapped.Memory[T]
	size    multiindex.Size3
	border  Border
	outside float64
}

func (g *grid[T]) At(i multiindex.Index3) float64 {
	r, ok := g.border.Resolve(i, g.size)
	if !ok {
		return g.outside
	}
	return float64(g.m.At3(r[0], r[1], r[2]))
}

// binding caches everything a query needs from one volume.
type binding[T imagestack.Scalar] struct {
	s     *Sampler[T]
	toVox func(r3.Vec) r3.Vec
	grid  *grid[T]
}

func (s *Sampler[T]) bind(img *imagestack.ImageStack[T]) binding[T] {
	b := binding[T]{s: s, toVox: s.coords.Bind(img)}
	if !img.Empty() {
		b.grid = &grid[T]{m: img.Map(), size: img.Size(), border: s.border, outside: s.outside}
	}
	return b
}

func (b binding[T]) finish(v float64) float64 {
	if b.s.value != nil {
		return b.s.value(v)
	}
	return v
}

func (b binding[T]) sample(p r3.Vec) float64 {
	if b.grid == nil {
		return b.finish(b.s.outside)
	}
	return b.finish(b.s.interp.Interpolate(b.grid, b.toVox(p)))
}

func (b binding[T]) sampleIndex(i multiindex.Index3) float64 {
	if b.grid == nil {
		return b.finish(b.s.outside)
	}
	return b.finish(b.grid.At(i))
}

// Sample evaluates img at position p.
func (s *Sampler[T]) Sample(img *imagestack.ImageStack[T], p r3.Vec) float64 {
	return s.bind(img).sample(p)
}

// SampleIndex returns the voxel at integer coordinate i, resolved through
// the border policy and the value transform. The coordinate transform and
// the interpolator are not involved.
func (s *Sampler[T]) SampleIndex(img *imagestack.ImageStack[T], i multiindex.Index3) float64 {
	return s.bind(img).sampleIndex(i)
}

// SampleAll evaluates img at every position, in order.
func (s *Sampler[T]) SampleAll(img *imagestack.ImageStack[T], ps []r3.Vec) []float64 {
	out := make([]float64, len(ps))
	s.SampleInto(img, ps, out)
	return out
}

// SampleInto evaluates img at every position and stores the results in out,
// which must be at least as long as ps.
func (s *Sampler[T]) SampleInto(img *imagestack.ImageStack[T], ps []r3.Vec, out []float64) {
	expects.That(len(out) >= len(ps), "output of %d values for %d positions", len(out), len(ps))
	b := s.bind(img)
	for i, p := range ps {
		out[i] = b.sample(p)
	}
}

// SampleIndices is SampleIndex for a batch of coordinates.
func (s *Sampler[T]) SampleIndices(img *imagestack.ImageStack[T], is []multiindex.Index3) []float64 {
	b := s.bind(img)
	out := make([]float64, len(is))
	for n, i := range is {
		out[n] = b.sampleIndex(i)
	}
	return out
}
