// Package imagestack provides the volume container: a 3D image that can be
// read as a stack of 2D slices.
package imagestack

import (
	"fmt"
	"maps"
	"slices"

	"golang.org/x/exp/constraints"
	"gonum.org/v1/gonum/spatial/r3"

	"imagestack/internal/expects"
	"imagestack/pkg/mapped"
	"imagestack/pkg/multiindex"
	"imagestack/pkg/storage"
)

// Scalar is the set of element types that can be loaded, cast and sampled.
type Scalar interface {
	constraints.Integer | constraints.Float
}

// Loader produces the content of an image stack.
type Loader[T any] interface {
	// Size returns the extent of the volume along x, y and z.
	Size() (multiindex.Size3, error)
	// ReadData fills dst with Product(Size()) elements, x fastest.
	ReadData(dst []T) error
}

// ResolutionSource is implemented by loaders that know the physical size of
// a voxel.
type ResolutionSource interface {
	Resolution() (r3.Vec, error)
}

// Resolved is implemented by volumes that may carry resolution metadata.
type Resolved interface {
	HasResolution() bool
	Resolution() r3.Vec
}

// ImageStack is a 3D volume of T. Its size is fixed at construction; the
// voxel values can be modified through Map.
type ImageStack[T any] struct {
	storage    *storage.Host[T]
	resolution *r3.Vec
}

var _ Resolved = (*ImageStack[float32])(nil)

// Option configures the metadata attached by Load.
type Option func(*options)

type options struct {
	resolution bool
}

// WithResolution copies the loader's resolution onto the stack. The loader
// must implement ResolutionSource.
func WithResolution() Option {
	return func(o *options) { o.resolution = true }
}

// New returns an empty stack of size (0, 0, 0).
func New[T any]() *ImageStack[T] {
	return &ImageStack[T]{storage: storage.New[T](multiindex.Size3{})}
}

// NewFilled returns a stack of the given size with every voxel set to v.
func NewFilled[T any](size multiindex.Size3, v T) *ImageStack[T] {
	return &ImageStack[T]{storage: storage.NewFilled(size, v)}
}

// FromData returns a stack holding a copy of data, x fastest.
func FromData[T any](size multiindex.Size3, data []T) *ImageStack[T] {
	return &ImageStack[T]{storage: storage.NewFrom(size, data)}
}

// Load allocates a stack of the loader's size and has the loader decode its
// content straight into the stack's buffer.
func Load[T any](loader Loader[T], opts ...Option) (*ImageStack[T], error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	size, err := loader.Size()
	if err != nil {
		return nil, fmt.Errorf("failed to read stack size: %w", err)
	}
	expects.That(multiindex.Product(size) > 0, "loader reported an empty stack of size %s", size)

	img := &ImageStack[T]{storage: storage.New[T](size)}
	if o.resolution {
		src, ok := loader.(ResolutionSource)
		expects.That(ok, "loader %T does not provide a resolution", loader)
		res, err := src.Resolution()
		if err != nil {
			return nil, fmt.Errorf("failed to read resolution: %w", err)
		}
		img.resolution = &res
	}

	if err := loader.ReadData(img.storage.Map().Data()); err != nil {
		return nil, fmt.Errorf("failed to read stack data: %w", err)
	}
	return img, nil
}

// Cast converts every voxel of src to D. Resolution metadata is carried over.
func Cast[D, S Scalar](src *ImageStack[S]) *ImageStack[D] {
	dst := &ImageStack[D]{storage: storage.New[D](src.Size())}
	if src.resolution != nil {
		res := *src.resolution
		dst.resolution = &res
	}
	if src.Empty() {
		return dst
	}
	in := src.Map().Data()
	out := dst.Map().Data()
	for i, v := range in {
		out[i] = D(v)
	}
	return dst
}

// UniqueValues returns the distinct voxel values in ascending order.
func UniqueValues[T constraints.Ordered](img *ImageStack[T]) []T {
	if img.Empty() {
		return []T{}
	}
	set := make(map[T]struct{})
	for _, v := range img.Map().Data() {
		set[v] = struct{}{}
	}
	return slices.Sorted(maps.Keys(set))
}

// Size returns the extent along x, y and z.
func (s *ImageStack[T]) Size() multiindex.Size3 { return s.storage.Size() }

// NumSlices returns the extent along z.
func (s *ImageStack[T]) NumSlices() int { return s.storage.Size().Z() }

// Empty reports whether the stack holds no voxels.
func (s *ImageStack[T]) Empty() bool { return s.storage.Empty() }

// Map returns a view of the voxels. Mapping an empty stack is a
// precondition violation.
func (s *ImageStack[T]) Map() mapped.Memory[T] { return s.storage.Map() }

// Clone returns a deep copy of the stack and its metadata.
func (s *ImageStack[T]) Clone() *ImageStack[T] {
	c := &ImageStack[T]{storage: s.storage.Clone()}
	if s.resolution != nil {
		res := *s.resolution
		c.resolution = &res
	}
	return c
}

// HasResolution reports whether resolution metadata is attached.
func (s *ImageStack[T]) HasResolution() bool { return s.resolution != nil }

// Resolution returns the physical voxel size, or the zero vector when no
// resolution is attached.
func (s *ImageStack[T]) Resolution() r3.Vec {
	if s.resolution == nil {
		return r3.Vec{}
	}
	return *s.resolution
}

// Scale returns the physical voxel size, or (1, 1, 1) when no resolution is
// attached.
func (s *ImageStack[T]) Scale() r3.Vec {
	if s.resolution == nil {
		return r3.Vec{X: 1, Y: 1, Z: 1}
	}
	return *s.resolution
}

// SetResolution attaches resolution metadata.
func (s *ImageStack[T]) SetResolution(res r3.Vec) {
	s.resolution = &res
}
