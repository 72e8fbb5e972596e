// Command imageviewer loads a BST volume, optionally smooths it and exports
// windowed slice images.
//
// Usage:
//
//	imageviewer [flags] image [[min max] sigma]
//
// min and max set the display window, sigma the Gaussian smoothing width in
// units of the voxel resolution.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	memsize "github.com/DmitriyVTitov/size"
	"github.com/dustin/go-humanize"
	"github.com/pkg/profile"
	log "github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/spatial/r3"

	"imagestack/internal/logging"
	"imagestack/pkg/bst"
	"imagestack/pkg/config"
	"imagestack/pkg/filter"
	"imagestack/pkg/imagestack"
	"imagestack/pkg/multiindex"
	"imagestack/pkg/sampler"
	"imagestack/pkg/stats"
	"imagestack/pkg/visualization"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// errUsage marks errors caused by the command line.
var errUsage = errors.New("usage")

type options struct {
	configPath string
	mask       bool
	outputDir  string
	axes       string
	resample   bool
	export     string
	profile    string
	verbose    bool
	workers    int

	// Positional values; nil when not given.
	image  string
	window *visualization.Range
	sigma  *float64
}

func run(args []string, stdout, stderr io.Writer) int {
	opts, err := parseArgs(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	switch opts.profile {
	case "":
	case "cpu":
		defer profile.Start(profile.CPUProfile, profile.ProfilePath("."), profile.Quiet).Stop()
	case "mem":
		defer profile.Start(profile.MemProfile, profile.ProfilePath("."), profile.Quiet).Stop()
	default:
		fmt.Fprintf(stderr, "Error: unknown profile mode %q (cpu or mem)\n", opts.profile)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := view(ctx, opts, stdout); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func parseArgs(args []string, stderr io.Writer) (*options, error) {
	opts := &options{}
	fs := flag.NewFlagSet("imageviewer", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.configPath, "config", "", "YAML or TOML configuration file")
	fs.BoolVar(&opts.mask, "mask", false, "Read the file with the text mask header (uint8 voxels)")
	fs.StringVar(&opts.outputDir, "out", "", "Directory to save slice images (overrides config)")
	fs.StringVar(&opts.axes, "axes", "", "Comma separated slice axes to export, e.g. x,z (overrides config)")
	fs.BoolVar(&opts.resample, "resample", false, "Export slices resampled to isotropic pixels")
	fs.StringVar(&opts.export, "export", "", "Write the processed volume to this BST image file")
	fs.StringVar(&opts.profile, "profile", "", "Write a cpu or mem profile to the working directory")
	fs.BoolVar(&opts.verbose, "v", false, "Enable debug logging")
	fs.IntVar(&opts.workers, "workers", 0, "Number of filter goroutines (overrides config)")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: imageviewer [flags] image [[min max] sigma]\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	pos := fs.Args()
	if len(pos) < 1 || len(pos) > 4 {
		fs.Usage()
		return nil, fmt.Errorf("%w: expected 1 to 4 arguments, got %d", errUsage, len(pos))
	}
	opts.image = pos[0]

	nums := make([]float64, 0, 3)
	for _, s := range pos[1:] {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid number %q", errUsage, s)
		}
		nums = append(nums, v)
	}
	switch len(nums) {
	case 1:
		opts.sigma = &nums[0]
	case 2:
		opts.window = &visualization.Range{Min: nums[0], Max: nums[1]}
	case 3:
		opts.window = &visualization.Range{Min: nums[0], Max: nums[1]}
		opts.sigma = &nums[2]
	}
	return opts, nil
}

// settings merges the configuration file with the command line.
func settings(opts *options) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if opts.configPath != "" {
		var err error
		if cfg, err = config.LoadConfig(opts.configPath); err != nil {
			return nil, err
		}
	}
	if opts.outputDir != "" {
		cfg.Viewer.OutputDir = opts.outputDir
	}
	if opts.axes != "" {
		cfg.Viewer.Axes = strings.Split(opts.axes, ",")
	}
	if opts.window != nil {
		cfg.Viewer.Min, cfg.Viewer.Max = opts.window.Min, opts.window.Max
	}
	if opts.sigma != nil {
		cfg.Viewer.Sigma = *opts.sigma
	}
	if opts.workers != 0 {
		cfg.Filter.Workers = opts.workers
	}
	if opts.verbose {
		cfg.Logging.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", errUsage, err)
	}
	return cfg, nil
}

func view(ctx context.Context, opts *options, stdout io.Writer) error {
	cfg, err := settings(opts)
	if err != nil {
		return err
	}
	if err := logging.Setup(cfg.Logging); err != nil {
		return err
	}

	start := time.Now()
	img, err := loadVolume(opts.image, opts.mask)
	if err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"file":    opts.image,
		"size":    img.Size(),
		"elapsed": time.Since(start),
	}).Info("loaded volume")

	res := img.Resolution()
	fmt.Fprintf(stdout, "Volume:     %s\n", opts.image)
	fmt.Fprintf(stdout, "Size:       %s (%s)\n", img.Size(), humanize.Bytes(uint64(memsize.Of(img.Map().Data()))))
	fmt.Fprintf(stdout, "Resolution: %g x %g x %g\n", res.X, res.Y, res.Z)

	if cfg.Viewer.Sigma != 0 {
		if res.X <= 0 || res.Y <= 0 || res.Z <= 0 {
			return fmt.Errorf("cannot smooth volume with resolution %v", res)
		}
		sigma := r3.Scale(cfg.Viewer.Sigma, res)
		smoothed, err := filter.Apply(img, filter.NewGauss(sigma),
			filter.Pad(cfg.Filter.Pad),
			filter.Workers(cfg.Filter.Workers),
			filter.WithContext(ctx))
		if err != nil {
			return fmt.Errorf("failed to smooth volume: %w", err)
		}
		if smoothed.Size() == img.Size() {
			cmp, err := stats.Compare(img, smoothed)
			if err != nil {
				return err
			}
			fmt.Fprintf(stdout, "Smoothing:  sigma %g x %g x %g, RMSE %.6f, SSIM %.3f\n",
				sigma.X, sigma.Y, sigma.Z, cmp.RMSE, cmp.SSIM)
		} else {
			fmt.Fprintf(stdout, "Smoothing:  sigma %g x %g x %g, size %s\n", sigma.X, sigma.Y, sigma.Z, smoothed.Size())
		}
		img = smoothed
	}

	s := stats.Summarize(img)
	fmt.Fprintf(stdout, "Values:     min %g, max %g, mean %g, stddev %g, entropy %.3f bits\n",
		s.Min, s.Max, s.Mean, s.StdDev, s.Entropy)

	if opts.export != "" {
		if err := bst.EncodeFile(opts.export, bst.Image, img); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Exported:   %s\n", opts.export)
	}

	var resample []sampler.Option
	if opts.resample {
		if resample, err = samplerOptions(cfg, img.Size()); err != nil {
			return err
		}
	}
	viewer := visualization.NewViewer(img, visualization.Range{Min: cfg.Viewer.Min, Max: cfg.Viewer.Max}, resample...)
	w := viewer.Window()
	fmt.Fprintf(stdout, "Window:     [%g, %g]\n", w.Min, w.Max)

	for _, axis := range cfg.Viewer.Axes {
		dir := filepath.Join(cfg.Viewer.OutputDir, axis)
		var n int
		if opts.resample {
			n, err = saveResampled(viewer, img, axis, dir)
		} else {
			n, err = viewer.SaveSliceSequence(axis, dir)
		}
		if err != nil {
			return fmt.Errorf("failed to save %s-axis slices: %w", axis, err)
		}
		fmt.Fprintf(stdout, "Saved %d %s-axis slices to %s\n", n, axis, dir)
	}
	return nil
}

// samplerOptions maps the sampler section of the configuration to resampling
// policies.
func samplerOptions(cfg *config.Config, size multiindex.Size3) ([]sampler.Option, error) {
	opts := []sampler.Option{sampler.WithOutside(cfg.Sampler.Outside)}
	switch cfg.Sampler.Border {
	case "constant":
		opts = append(opts, sampler.WithBorder(sampler.Constant{}))
	default:
		opts = append(opts, sampler.WithBorder(sampler.Replicate{}))
	}

	switch cfg.Sampler.Interpolation {
	case "nearest":
		opts = append(opts, sampler.WithInterpolator(sampler.Nearest{}))
	case "weighted":
		weight, err := loadWeights(cfg.Sampler.Weights, size)
		if err != nil {
			return nil, err
		}
		opts = append(opts, sampler.WithInterpolator(sampler.WeightedTrilinear{Weight: weight}))
	default:
		opts = append(opts, sampler.WithInterpolator(sampler.Trilinear{}))
	}
	return opts, nil
}

// loadWeights reads a mask of the volume's size. Voxels outside the mask
// weigh zero.
func loadWeights(path string, size multiindex.Size3) (func(multiindex.Index3) float64, error) {
	loader, err := bst.OpenMask[uint8](path)
	if err != nil {
		return nil, err
	}
	defer loader.Close()
	mask, err := load(path, loader)
	if err != nil {
		return nil, err
	}
	if mask.Size() != size {
		return nil, fmt.Errorf("weights '%s' of size %s do not match volume size %s", path, mask.Size(), size)
	}
	voxels := sampler.New[uint8]()
	return func(i multiindex.Index3) float64 {
		return voxels.SampleIndex(mask, i)
	}, nil
}

func loadVolume(path string, mask bool) (*imagestack.ImageStack[float32], error) {
	if mask {
		loader, err := bst.OpenMask[uint8](path)
		if err != nil {
			return nil, err
		}
		defer loader.Close()
		m, err := load(path, loader)
		if err != nil {
			return nil, err
		}
		return imagestack.Cast[float32](m), nil
	}

	loader, err := bst.OpenImage[float32](path)
	if err != nil {
		return nil, err
	}
	defer loader.Close()
	return load(path, loader)
}

func load[T imagestack.Scalar](path string, loader *bst.Loader[T]) (*imagestack.ImageStack[T], error) {
	size, err := loader.Size()
	if err != nil {
		return nil, err
	}
	if multiindex.Product(size) == 0 {
		return nil, fmt.Errorf("%s volume '%s' is empty", loader.Kind(), path)
	}
	img, err := imagestack.Load[T](loader, imagestack.WithResolution())
	if err != nil {
		return nil, fmt.Errorf("failed to load %s '%s': %w", loader.Kind(), path, err)
	}
	return img, nil
}

// saveResampled writes one isotropic slice per voxel plane along axis.
func saveResampled(viewer *visualization.Viewer, img *imagestack.ImageStack[float32], axis, dir string) (int, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return 0, err
	}
	res, size := img.Resolution(), img.Size()
	var planes int
	var step float64
	switch axis {
	case "x":
		planes, step = size.X(), res.X
	case "y":
		planes, step = size.Y(), res.Y
	case "z":
		planes, step = size.Z(), res.Z
	default:
		return 0, fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
	}
	for p := 0; p < planes; p++ {
		slice, err := viewer.ExtractResampled(axis, float64(p)*step)
		if err != nil {
			return p, err
		}
		if err := viewer.SaveSlice(slice, filepath.Join(dir, fmt.Sprintf("slice_%s_%03d.png", axis, p))); err != nil {
			return p, err
		}
	}
	return planes, nil
}
