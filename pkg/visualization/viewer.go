// Package visualization renders slices of an image stack to 2D images.
package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/spatial/r3"

	"imagestack/pkg/imagestack"
	"imagestack/pkg/multiindex"
	"imagestack/pkg/sampler"
	"imagestack/pkg/stats"
)

// Range is a display window. Values at or below Min render black, values at
// or above Max render white.
type Range struct {
	Min, Max float64
}

// IsZero reports whether the window is unset.
func (r Range) IsZero() bool { return r.Min == 0 && r.Max == 0 }

// Viewer extracts windowed 16-bit grey slices from a volume.
type Viewer struct {
	volume *imagestack.ImageStack[float32]
	window Range

	voxels    *sampler.Sampler[float32]
	resampler *sampler.Sampler[float32]
}

// NewViewer creates a viewer for volume. A zero window selects the full
// value range of the volume.
//
// ExtractResampled interpolates trilinearly and replicates edge voxels;
// resample options replace those policies.
func NewViewer(volume *imagestack.ImageStack[float32], window Range, resample ...sampler.Option) *Viewer {
	if window.IsZero() {
		s := stats.Summarize(volume)
		window = Range{Min: s.Min, Max: s.Max}
	}
	opts := append([]sampler.Option{
		sampler.WithInterpolator(sampler.Trilinear{}),
		sampler.WithBorder(sampler.Replicate{}),
	}, resample...)
	opts = append(opts, sampler.WithCoordTransform(sampler.ResolutionScale{}))
	return &Viewer{
		volume:    volume,
		window:    window,
		voxels:    sampler.New[float32](),
		resampler: sampler.New[float32](opts...),
	}
}

// Window returns the display window in use.
func (v *Viewer) Window() Range { return v.window }

// gray maps a value through the display window.
func (v *Viewer) gray(value float64) color.Gray16 {
	lo, hi := v.window.Min, v.window.Max
	if hi <= lo {
		if value > lo {
			return color.Gray16{Y: math.MaxUint16}
		}
		return color.Gray16{}
	}
	t := (value - lo) / (hi - lo)
	t = math.Max(0, math.Min(1, t))
	return color.Gray16{Y: uint16(math.Round(t * math.MaxUint16))}
}

// plane describes how the pixels of a slice map to volume coordinates.
type plane struct {
	width, height int
	// voxel returns the volume coordinate of pixel (px, py).
	voxel func(px, py int) multiindex.Index3
}

func (v *Viewer) plane(axis string, position int) (plane, error) {
	size := v.volume.Size()
	if position < 0 {
		return plane{}, fmt.Errorf("position must be non-negative")
	}
	switch axis {
	case "x", "X":
		// YZ plane, z to the right
		if position >= size.X() {
			return plane{}, fmt.Errorf("position %d exceeds width %d", position, size.X())
		}
		return plane{size.Z(), size.Y(), func(px, py int) multiindex.Index3 {
			return multiindex.Index3{position, py, px}
		}}, nil
	case "y", "Y":
		// XZ plane, z downwards
		if position >= size.Y() {
			return plane{}, fmt.Errorf("position %d exceeds height %d", position, size.Y())
		}
		return plane{size.X(), size.Z(), func(px, py int) multiindex.Index3 {
			return multiindex.Index3{px, position, py}
		}}, nil
	case "z", "Z":
		if position >= size.Z() {
			return plane{}, fmt.Errorf("position %d exceeds depth %d", position, size.Z())
		}
		return plane{size.X(), size.Y(), func(px, py int) multiindex.Index3 {
			return multiindex.Index3{px, py, position}
		}}, nil
	}
	return plane{}, fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
}

// ExtractSlice extracts the voxel plane at position along axis.
func (v *Viewer) ExtractSlice(axis string, position int) (*image.Gray16, error) {
	p, err := v.plane(axis, position)
	if err != nil {
		return nil, err
	}

	indices := make([]multiindex.Index3, 0, p.width*p.height)
	for py := 0; py < p.height; py++ {
		for px := 0; px < p.width; px++ {
			indices = append(indices, p.voxel(px, py))
		}
	}
	values := v.voxels.SampleIndices(v.volume, indices)

	img := image.NewGray16(image.Rect(0, 0, p.width, p.height))
	for n, value := range values {
		img.SetGray16(n%p.width, n/p.width, v.gray(value))
	}
	return img, nil
}

// ExtractResampled extracts the plane at physical distance position along
// axis, trilinearly resampled to square pixels whose edge is the finest
// voxel spacing of the volume. The volume must carry a resolution.
func (v *Viewer) ExtractResampled(axis string, position float64) (*image.Gray16, error) {
	if !v.volume.HasResolution() {
		return nil, fmt.Errorf("resampling needs a volume with resolution")
	}
	if v.volume.Empty() {
		return nil, fmt.Errorf("cannot resample an empty volume")
	}
	res := v.volume.Resolution()
	if res.X <= 0 || res.Y <= 0 || res.Z <= 0 {
		return nil, fmt.Errorf("cannot resample a volume with resolution %v", res)
	}
	size := v.volume.Size()
	extent := r3.Vec{
		X: float64(size.X()-1) * res.X,
		Y: float64(size.Y()-1) * res.Y,
		Z: float64(size.Z()-1) * res.Z,
	}
	spacing := math.Min(res.X, math.Min(res.Y, res.Z))
	pixels := func(length float64) int { return int(math.Floor(length/spacing+1e-9)) + 1 }

	var (
		width, height int
		at            func(px, py int) r3.Vec
		limit         float64
	)
	switch axis {
	case "x", "X":
		limit = extent.X
		width, height = pixels(extent.Z), pixels(extent.Y)
		at = func(px, py int) r3.Vec {
			return r3.Vec{X: position, Y: float64(py) * spacing, Z: float64(px) * spacing}
		}
	case "y", "Y":
		limit = extent.Y
		width, height = pixels(extent.X), pixels(extent.Z)
		at = func(px, py int) r3.Vec {
			return r3.Vec{X: float64(px) * spacing, Y: position, Z: float64(py) * spacing}
		}
	case "z", "Z":
		limit = extent.Z
		width, height = pixels(extent.X), pixels(extent.Y)
		at = func(px, py int) r3.Vec {
			return r3.Vec{X: float64(px) * spacing, Y: float64(py) * spacing, Z: position}
		}
	default:
		return nil, fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
	}
	if position < 0 || position > limit {
		return nil, fmt.Errorf("position %g outside [0, %g]", position, limit)
	}

	positions := make([]r3.Vec, 0, width*height)
	for py := 0; py < height; py++ {
		for px := 0; px < width; px++ {
			positions = append(positions, at(px, py))
		}
	}
	values := v.resampler.SampleAll(v.volume, positions)

	img := image.NewGray16(image.Rect(0, 0, width, height))
	for n, value := range values {
		img.SetGray16(n%width, n/width, v.gray(value))
	}
	return img, nil
}

// ExtractRegion copies the box of the given size starting at start into a
// new stack. Resolution metadata is carried over.
func (v *Viewer) ExtractRegion(start, size multiindex.Index3) (*imagestack.ImageStack[float32], error) {
	if start.X() < 0 || start.Y() < 0 || start.Z() < 0 {
		return nil, fmt.Errorf("start coordinates must be non-negative")
	}
	if size.X() <= 0 || size.Y() <= 0 || size.Z() <= 0 {
		return nil, fmt.Errorf("size dimensions must be positive")
	}
	end := start.Add(size)
	vs := v.volume.Size()
	if end.X() > vs.X() || end.Y() > vs.Y() || end.Z() > vs.Z() {
		return nil, fmt.Errorf("region extends beyond volume boundaries")
	}

	region := imagestack.NewFilled(size, float32(0))
	if v.volume.HasResolution() {
		region.SetResolution(v.volume.Resolution())
	}
	src, dst := v.volume.Map(), region.Map()
	for z := 0; z < size.Z(); z++ {
		for y := 0; y < size.Y(); y++ {
			for x := 0; x < size.X(); x++ {
				dst.Set(multiindex.Index3{x, y, z}, src.At3(start.X()+x, start.Y()+y, start.Z()+z))
			}
		}
	}
	return region, nil
}

// SaveSlice saves an extracted slice as a PNG image
func (v *Viewer) SaveSlice(img image.Image, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}

	if err := png.Encode(file, img); err != nil {
		file.Close()
		return fmt.Errorf("failed to encode %s: %w", filename, err)
	}
	return file.Close()
}

// SaveSliceSequence extracts and saves every slice along the specified axis
// and returns the number of files written.
func (v *Viewer) SaveSliceSequence(axis string, outputDir string) (int, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return 0, err
	}

	size := v.volume.Size()
	var maxPos int
	switch axis {
	case "x", "X":
		maxPos = size.X()
	case "y", "Y":
		maxPos = size.Y()
	case "z", "Z":
		maxPos = size.Z()
	default:
		return 0, fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
	}

	for pos := 0; pos < maxPos; pos++ {
		img, err := v.ExtractSlice(axis, pos)
		if err != nil {
			return pos, err
		}

		filename := filepath.Join(outputDir, fmt.Sprintf("slice_%s_%03d.png", axis, pos))
		if err := v.SaveSlice(img, filename); err != nil {
			return pos, err
		}
	}

	log.WithFields(log.Fields{"axis": axis, "slices": maxPos, "dir": outputDir}).Info("saved slice sequence")
	return maxPos, nil
}
