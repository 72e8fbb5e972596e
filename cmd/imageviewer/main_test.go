package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"imagestack/pkg/bst"
	"imagestack/pkg/config"
	"imagestack/pkg/imagestack"
	"imagestack/pkg/multiindex"
	"imagestack/pkg/sampler"
)

func writeVolume(t *testing.T, dir string) string {
	t.Helper()
	size := multiindex.Size3{6, 5, 4}
	data := make([]float32, multiindex.Product(size))
	for i := range data {
		data[i] = float32(i % 7)
	}
	img := imagestack.FromData(size, data)
	img.SetResolution(r3.Vec{X: 0.5, Y: 0.5, Z: 1})
	path := filepath.Join(dir, "volume.bst")
	require.NoError(t, bst.EncodeFile(path, bst.Image, img))
	return path
}

func TestRunUsage(t *testing.T) {
	for _, args := range [][]string{
		{},
		{"a", "1", "2", "3", "4"},
		{"a", "not-a-number"},
		{"-unknown", "a"},
	} {
		var stdout, stderr bytes.Buffer
		assert.Equal(t, 1, run(args, &stdout, &stderr), "args %q", args)
		assert.NotEmpty(t, stderr.String())
	}
}

func TestRunMissingFile(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run([]string{"-out", t.TempDir(), filepath.Join(t.TempDir(), "missing.bst")}, &stdout, &stderr)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "failed to open file")
}

func TestRunExportsSlices(t *testing.T) {
	dir := t.TempDir()
	path := writeVolume(t, dir)
	out := filepath.Join(dir, "slices")

	var stdout, stderr bytes.Buffer
	code := run([]string{"-out", out, "-axes", "x,z", path, "0", "6"}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())
	assert.Contains(t, stdout.String(), "Window:     [0, 6]")

	for z := 0; z < 4; z++ {
		assert.FileExists(t, filepath.Join(out, "z", fmt.Sprintf("slice_z_%03d.png", z)))
	}
	for x := 0; x < 6; x++ {
		assert.FileExists(t, filepath.Join(out, "x", fmt.Sprintf("slice_x_%03d.png", x)))
	}
	assert.NoDirExists(t, filepath.Join(out, "y"))
}

func TestRunSmoothAndExport(t *testing.T) {
	dir := t.TempDir()
	path := writeVolume(t, dir)
	exported := filepath.Join(dir, "smoothed.bst")

	var stdout, stderr bytes.Buffer
	code := run([]string{"-out", filepath.Join(dir, "slices"), "-export", exported, "-workers", "2", path, "1"}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())
	assert.Contains(t, stdout.String(), "Smoothing:")

	loader, err := bst.OpenImage[float32](exported)
	require.NoError(t, err)
	defer loader.Close()
	size, err := loader.Size()
	require.NoError(t, err)
	assert.Equal(t, multiindex.Size3{6, 5, 4}, size)
	res, err := loader.Resolution()
	require.NoError(t, err)
	assert.Equal(t, r3.Vec{X: 0.5, Y: 0.5, Z: 1}, res)
}

func TestRunMaskWithConfig(t *testing.T) {
	dir := t.TempDir()
	mask := imagestack.FromData(multiindex.Size3{2, 2, 2}, []uint8{0, 1, 0, 1, 1, 0, 1, 0})
	mask.SetResolution(r3.Vec{X: 1, Y: 1, Z: 2})
	path := filepath.Join(dir, "mask.bst")
	require.NoError(t, bst.EncodeFile(path, bst.Mask, mask))

	cfgPath := filepath.Join(dir, "viewer.toml")
	out := filepath.Join(dir, "out")
	cfg := fmt.Sprintf("[viewer]\naxes = [\"y\"]\noutputDir = %q\n", out)
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o644))

	var stdout, stderr bytes.Buffer
	code := run([]string{"-config", cfgPath, "-mask", "-resample", path}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())
	assert.FileExists(t, filepath.Join(out, "y", "slice_y_000.png"))
	assert.FileExists(t, filepath.Join(out, "y", "slice_y_001.png"))
}

func TestRunResampleNeedsPositiveResolution(t *testing.T) {
	dir := t.TempDir()
	img := imagestack.FromData(multiindex.Size3{2, 2, 2}, make([]float32, 8))
	img.SetResolution(r3.Vec{})
	path := filepath.Join(dir, "flat.bst")
	require.NoError(t, bst.EncodeFile(path, bst.Image, img))

	var stdout, stderr bytes.Buffer
	code := run([]string{"-out", filepath.Join(dir, "slices"), "-resample", path}, &stdout, &stderr)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "cannot resample a volume with resolution")
}

func TestPositionalSigmaOverridesConfig(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "viewer.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("viewer:\n  sigma: 2\n  min: 1\n  max: 5\n"), 0o644))

	opts, err := parseArgs([]string{"-config", cfgPath, "volume.bst"}, io.Discard)
	require.NoError(t, err)
	cfg, err := settings(opts)
	require.NoError(t, err)
	assert.Equal(t, 2.0, cfg.Viewer.Sigma)

	opts, err = parseArgs([]string{"-config", cfgPath, "volume.bst", "0"}, io.Discard)
	require.NoError(t, err)
	cfg, err = settings(opts)
	require.NoError(t, err)
	assert.Equal(t, 0.0, cfg.Viewer.Sigma)
	assert.Equal(t, 1.0, cfg.Viewer.Min)

	opts, err = parseArgs([]string{"-config", cfgPath, "volume.bst", "0", "0", "0"}, io.Discard)
	require.NoError(t, err)
	cfg, err = settings(opts)
	require.NoError(t, err)
	assert.Equal(t, 0.0, cfg.Viewer.Min)
	assert.Equal(t, 0.0, cfg.Viewer.Max)
	assert.Equal(t, 0.0, cfg.Viewer.Sigma)
}

func TestSamplerOptions(t *testing.T) {
	img := imagestack.FromData(multiindex.Size3{2, 1, 1}, []float32{3, 7})

	cfg := config.DefaultConfig()
	cfg.Sampler.Interpolation = "nearest"
	cfg.Sampler.Border = "constant"
	cfg.Sampler.Outside = -5
	opts, err := samplerOptions(cfg, img.Size())
	require.NoError(t, err)
	s := sampler.New[float32](opts...)
	assert.Equal(t, 3.0, s.Sample(img, r3.Vec{X: 0.4}))
	assert.Equal(t, -5.0, s.Sample(img, r3.Vec{X: -3}))

	cfg = config.DefaultConfig()
	opts, err = samplerOptions(cfg, img.Size())
	require.NoError(t, err)
	s = sampler.New[float32](opts...)
	assert.InDelta(t, 5.0, s.Sample(img, r3.Vec{X: 0.5}), 1e-12)
	assert.Equal(t, 7.0, s.SampleIndex(img, multiindex.Index3{5, 0, 0}))
}

func TestSamplerOptionsWeighted(t *testing.T) {
	dir := t.TempDir()
	img := imagestack.FromData(multiindex.Size3{2, 1, 1}, []float32{3, 7})

	weights := imagestack.FromData(multiindex.Size3{2, 1, 1}, []uint8{1, 0})
	weights.SetResolution(r3.Vec{X: 1, Y: 1, Z: 1})
	weightsPath := filepath.Join(dir, "weights.bst")
	require.NoError(t, bst.EncodeFile(weightsPath, bst.Mask, weights))

	cfg := config.DefaultConfig()
	cfg.Sampler.Interpolation = "weighted"
	cfg.Sampler.Weights = weightsPath
	opts, err := samplerOptions(cfg, img.Size())
	require.NoError(t, err)
	s := sampler.New[float32](opts...)
	// Four of the eight corners are voxel 0 and share the whole weight, so
	// each scales 3 by 1/4 before the x blend halves it.
	assert.InDelta(t, 0.375, s.Sample(img, r3.Vec{X: 0.5}), 1e-12)

	_, err = samplerOptions(cfg, multiindex.Size3{3, 1, 1})
	assert.ErrorContains(t, err, "do not match volume size")

	cfg.Sampler.Weights = filepath.Join(dir, "missing.bst")
	_, err = samplerOptions(cfg, img.Size())
	assert.Error(t, err)
}

func TestRunResampleWeighted(t *testing.T) {
	dir := t.TempDir()
	path := writeVolume(t, dir)

	weights := imagestack.NewFilled(multiindex.Size3{6, 5, 4}, uint8(1))
	weights.SetResolution(r3.Vec{X: 0.5, Y: 0.5, Z: 1})
	weightsPath := filepath.Join(dir, "weights.bst")
	require.NoError(t, bst.EncodeFile(weightsPath, bst.Mask, weights))

	cfgPath := filepath.Join(dir, "viewer.toml")
	out := filepath.Join(dir, "out")
	cfg := fmt.Sprintf("[viewer]\naxes = [\"z\"]\noutputDir = %q\n\n[sampler]\ninterpolation = \"weighted\"\nweights = %q\nborder = \"constant\"\n",
		out, weightsPath)
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o644))

	var stdout, stderr bytes.Buffer
	code := run([]string{"-config", cfgPath, "-resample", path}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())
	for z := 0; z < 4; z++ {
		assert.FileExists(t, filepath.Join(out, "z", fmt.Sprintf("slice_z_%03d.png", z)))
	}
}
