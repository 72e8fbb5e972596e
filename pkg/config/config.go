// Package config provides configuration loading and management for imageviewer.
// It handles loading configuration from YAML or TOML files and provides default values.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Logging configures the process-wide logger.
type Logging struct {
	// Level is a logrus level name (debug, info, warn, ...)
	Level string `yaml:"level" toml:"level"`

	// File, when set, receives the log instead of stderr and is rotated
	File string `yaml:"file" toml:"file"`

	// MaxSize is the size in megabytes at which the log file is rotated
	MaxSize int `yaml:"maxSize" toml:"maxSize"`

	// MaxAge is the number of days rotated files are kept
	MaxAge int `yaml:"maxAge" toml:"maxAge"`
}

// Config represents the application configuration loaded from YAML or TOML
type Config struct {
	// Display parameters
	Viewer struct {
		// Min and Max are the display window; Min == Max selects the full data range
		Min float64 `yaml:"min" toml:"min"`
		Max float64 `yaml:"max" toml:"max"`

		// Sigma is the Gaussian smoothing width in physical units; 0 disables smoothing
		Sigma float64 `yaml:"sigma" toml:"sigma"`

		// Axes lists the slice orientations to export ("x", "y", "z")
		Axes []string `yaml:"axes" toml:"axes"`

		// OutputDir is the directory slice images are written to
		OutputDir string `yaml:"outputDir" toml:"outputDir"`
	} `yaml:"viewer" toml:"viewer"`

	// Convolution parameters
	Filter struct {
		// Pad keeps the image size by treating voxels outside the volume as zero
		Pad bool `yaml:"pad" toml:"pad"`

		// Workers specifies how many goroutines convolve in parallel
		Workers int `yaml:"workers" toml:"workers"`
	} `yaml:"filter" toml:"filter"`

	// Resampling parameters, used for isotropic slice export
	Sampler struct {
		// Border is "replicate" (nearest edge voxel) or "constant" (Outside)
		Border string `yaml:"border" toml:"border"`

		// Outside is the value of voxels past the edge with the constant border
		Outside float64 `yaml:"outside" toml:"outside"`

		// Interpolation is "nearest", "trilinear" or "weighted"
		Interpolation string `yaml:"interpolation" toml:"interpolation"`

		// Weights is a BST mask of the volume's size weighting the voxels
		// blended by "weighted" interpolation
		Weights string `yaml:"weights" toml:"weights"`
	} `yaml:"sampler" toml:"sampler"`

	Logging Logging `yaml:"logging" toml:"logging"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Viewer.Axes = []string{"z"}
	cfg.Viewer.OutputDir = "slices"

	cfg.Filter.Pad = true
	cfg.Filter.Workers = runtime.NumCPU()

	cfg.Sampler.Border = "replicate"
	cfg.Sampler.Interpolation = "trilinear"

	cfg.Logging.Level = "info"
	cfg.Logging.MaxSize = 10
	cfg.Logging.MaxAge = 7

	return cfg
}

// isTOML reports whether the path selects the TOML encoding
func isTOML(configPath string) bool {
	return strings.EqualFold(filepath.Ext(configPath), ".toml")
}

// LoadConfig loads configuration from a YAML or TOML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if isTOML(configPath) {
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail deep inside processing
func (c *Config) Validate() error {
	if c.Viewer.Min > c.Viewer.Max {
		return fmt.Errorf("viewer window min %g exceeds max %g", c.Viewer.Min, c.Viewer.Max)
	}
	if c.Viewer.Sigma < 0 {
		return fmt.Errorf("negative sigma %g", c.Viewer.Sigma)
	}
	for _, a := range c.Viewer.Axes {
		switch a {
		case "x", "y", "z":
		default:
			return fmt.Errorf("unknown slice axis %q", a)
		}
	}
	switch c.Sampler.Border {
	case "replicate", "constant":
	default:
		return fmt.Errorf("unknown border %q", c.Sampler.Border)
	}
	switch c.Sampler.Interpolation {
	case "nearest", "trilinear":
	case "weighted":
		if c.Sampler.Weights == "" {
			return fmt.Errorf("weighted interpolation needs a weights file")
		}
	default:
		return fmt.Errorf("unknown interpolation %q", c.Sampler.Interpolation)
	}
	if c.Filter.Workers < 0 {
		return fmt.Errorf("negative worker count %d", c.Filter.Workers)
	}
	return nil
}

// SaveConfig saves the configuration to a YAML or TOML file
func SaveConfig(cfg *Config, configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	var data []byte
	if isTOML(configPath) {
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
			return fmt.Errorf("error marshaling config: %w", err)
		}
		data = buf.Bytes()
	} else {
		var err error
		if data, err = yaml.Marshal(cfg); err != nil {
			return fmt.Errorf("error marshaling config: %w", err)
		}
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}
