package filter

import (
	"context"
	"fmt"
	"runtime"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"imagestack/pkg/imagestack"
	"imagestack/pkg/mapped"
	"imagestack/pkg/multiindex"
)

// SizeError is returned when an unpadded convolution would leave no voxels.
type SizeError struct {
	Image  multiindex.Size3
	Filter multiindex.Size3
}

func (e *SizeError) Error() string {
	return fmt.Sprintf("image of size %s too small for filter size %s", e.Image, e.Filter)
}

// Option configures Apply.
type Option func(*applyConfig)

type applyConfig struct {
	pad     bool
	workers int
	ctx     context.Context
}

// Pad selects zero padding, which keeps the image size. Without padding
// only voxels whose whole neighbourhood lies inside the image are computed
// and the result shrinks by 2*HalfSize() along every axis. Padding is on by
// default.
func Pad(on bool) Option {
	return func(c *applyConfig) { c.pad = on }
}

// Workers sets the number of goroutines. Values below 1 select
// runtime.NumCPU().
func Workers(n int) Option {
	return func(c *applyConfig) { c.workers = n }
}

// WithContext makes the convolution stop early when ctx is done.
func WithContext(ctx context.Context) Option {
	return func(c *applyConfig) { c.ctx = ctx }
}

// Apply convolves img with k and returns a new stack. Weighted sums are
// accumulated in float64 and converted to T once per voxel. Resolution
// metadata is carried over.
func Apply[T imagestack.Scalar](img *imagestack.ImageStack[T], k Kernel, opts ...Option) (*imagestack.ImageStack[T], error) {
	cfg := applyConfig{pad: true, ctx: context.Background()}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.workers < 1 {
		cfg.workers = runtime.NumCPU()
	}

	K := k.HalfSize()
	size := img.Size()
	if !cfg.pad && (size.X() <= 2*K.X() || size.Y() <= 2*K.Y() || size.Z() <= 2*K.Z()) {
		return nil, &SizeError{Image: size, Filter: k.Size()}
	}

	outSize := size
	if !cfg.pad {
		outSize = size.Sub(K.Scale(2))
	}
	var zero T
	dst := imagestack.NewFilled(outSize, zero)
	if img.HasResolution() {
		dst.SetResolution(img.Resolution())
	}
	if img.Empty() {
		return dst, nil
	}

	c := convolution[T]{
		src:     img.Map(),
		dst:     dst.Map(),
		srcSize: size,
		outSize: outSize,
		half:    K,
		pad:     cfg.pad,
		weights: flatten(k),
	}

	start := time.Now()
	nz := outSize.Z()
	workers := min(cfg.workers, nz)
	perWorker := (nz + workers - 1) / workers

	g, ctx := errgroup.WithContext(cfg.ctx)
	for w := 0; w < workers; w++ {
		z0 := w * perWorker
		z1 := min(z0+perWorker, nz)
		if z0 >= z1 {
			break
		}
		g.Go(func() error {
			for z := z0; z < z1; z++ {
				if err := ctx.Err(); err != nil {
					return err
				}
				c.slice(z)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("convolution interrupted: %w", err)
	}

	log.WithFields(log.Fields{
		"size":    size,
		"kernel":  k.Size(),
		"pad":     cfg.pad,
		"workers": workers,
		"elapsed": time.Since(start),
	}).Debug("applied filter")
	return dst, nil
}

// flatten copies the kernel weights into a slice indexed like a volume of
// size k.Size(), with offset (0, 0, 0) at the centre.
func flatten(k Kernel) []float64 {
	K := k.HalfSize()
	s := k.Size()
	out := make([]float64, multiindex.Product(s))
	for c := -K.Z(); c <= K.Z(); c++ {
		for b := -K.Y(); b <= K.Y(); b++ {
			for a := -K.X(); a <= K.X(); a++ {
				out[multiindex.ToLinear(multiindex.Index3{a, b, c}.Add(K), s)] = k.Weight(a, b, c)
			}
		}
	}
	return out
}

type convolution[T imagestack.Scalar] struct {
	src, dst         mapped.Memory[T]
	srcSize, outSize multiindex.Size3
	half             multiindex.Index3
	pad              bool
	weights          []float64
}

// slice computes every output voxel of plane z. Each plane is written by
// exactly one goroutine.
func (c *convolution[T]) slice(z int) {
	K := c.half
	for y := 0; y < c.outSize.Y(); y++ {
		for x := 0; x < c.outSize.X(); x++ {
			// Source coordinate of kernel offset (0, 0, 0).
			cx, cy, cz := x, y, z
			if !c.pad {
				cx, cy, cz = x+K.X(), y+K.Y(), z+K.Z()
			}

			sum := 0.0
			n := 0
			for k := -K.Z(); k <= K.Z(); k++ {
				for j := -K.Y(); j <= K.Y(); j++ {
					for i := -K.X(); i <= K.X(); i++ {
						w := c.weights[n]
						n++
						sx, sy, sz := cx-i, cy-j, cz-k
						if c.pad && (sx < 0 || sy < 0 || sz < 0 ||
							sx >= c.srcSize.X() || sy >= c.srcSize.Y() || sz >= c.srcSize.Z()) {
							continue
						}
						sum += float64(c.src.At3(sx, sy, sz)) * w
					}
				}
			}
			c.dst.Set(multiindex.Index3{x, y, z}, T(sum))
		}
	}
}
