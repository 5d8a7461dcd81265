// Package config provides configuration loading and management for arttiler.
// It handles loading configuration from YAML or TOML files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"arttiler/pkg/raster"
)

// MaxTileDim is the hard cap on any tile's width or height
const MaxTileDim = 4096

// DefaultNormalScale is the production relief strength for normal synthesis
const DefaultNormalScale = 0.08

// Config represents the application configuration
type Config struct {
	// Processing parameters
	Processing struct {
		// NumCores specifies how many CPU cores to use for parallel processing
		NumCores int `yaml:"numCores" toml:"numCores"`

		// NormalScale is the relief strength applied to luminance gradients
		NormalScale float64 `yaml:"normalScale" toml:"normalScale"`

		// InvertRed and InvertGreen flip the x and y normal channels
		InvertRed   bool `yaml:"invertRed" toml:"invertRed"`
		InvertGreen bool `yaml:"invertGreen" toml:"invertGreen"`

		// MaxPixels rejects rasters larger than this many pixels (0 disables)
		MaxPixels int64 `yaml:"maxPixels" toml:"maxPixels"`

		// Resampler selects the downscale filter: lanczos, box or nfnt
		Resampler string `yaml:"resampler" toml:"resampler"`
	} `yaml:"processing" toml:"processing"`

	// Tiling parameters
	Tiling struct {
		// MaxTileDim caps the width and height of every grid cell
		MaxTileDim int `yaml:"maxTileDim" toml:"maxTileDim"`

		// Tiers maps quality tier names to their encoding settings
		Tiers map[string]Tier `yaml:"tiers" toml:"tiers"`
	} `yaml:"tiling" toml:"tiling"`

	// Output parameters
	Output struct {
		// Tier names used for each of the three produced assets
		OriginalTier string `yaml:"originalTier" toml:"originalTier"`
		NormalTier   string `yaml:"normalTier" toml:"normalTier"`
		DepthTier    string `yaml:"depthTier" toml:"depthTier"`

		// PreviewTier encodes normal and depth maps when they are not tiled
		PreviewTier string `yaml:"previewTier" toml:"previewTier"`

		// DepthNiceSeams flattens tile edges of the depth map
		DepthNiceSeams bool `yaml:"depthNiceSeams" toml:"depthNiceSeams"`

		// KeepIntermediateMaps keeps the untiled normal and depth maps after tiling
		KeepIntermediateMaps bool `yaml:"keepIntermediateMaps" toml:"keepIntermediateMaps"`

		// URLPrefix replaces the output directory in manifest URLs when set
		URLPrefix string `yaml:"urlPrefix" toml:"urlPrefix"`
	} `yaml:"output" toml:"output"`

	// Publish parameters
	Publish S3Config `yaml:"publish" toml:"publish"`
}

// S3Config holds the optional object storage destination
type S3Config struct {
	Enabled         bool   `yaml:"enabled" toml:"enabled"`
	Bucket          string `yaml:"bucket" toml:"bucket"`
	Prefix          string `yaml:"prefix" toml:"prefix"`
	Region          string `yaml:"region" toml:"region"`
	Endpoint        string `yaml:"endpoint" toml:"endpoint"`
	AccessKeyID     string `yaml:"accessKeyId" toml:"accessKeyId"`
	SecretAccessKey string `yaml:"secretAccessKey" toml:"secretAccessKey"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	// Set default processing parameters
	cfg.Processing.NumCores = runtime.NumCPU() // Use all available cores by default
	cfg.Processing.NormalScale = DefaultNormalScale
	cfg.Processing.MaxPixels = raster.DefaultMaxPixels
	cfg.Processing.Resampler = raster.ResamplerLanczos

	// Set default tiling parameters
	cfg.Tiling.MaxTileDim = MaxTileDim
	cfg.Tiling.Tiers = DefaultTiers().Map()

	// Set default output parameters
	cfg.Output.OriginalTier = TierFull
	cfg.Output.NormalTier = TierLow
	cfg.Output.DepthTier = TierLow
	cfg.Output.PreviewTier = TierPreview
	cfg.Output.DepthNiceSeams = true

	return cfg
}

// TierTable returns the immutable tier table built from the configuration
func (c *Config) TierTable() (*Tiers, error) {
	return NewTiers(c.Tiling.Tiers)
}

// Validate checks the configuration for values the pipeline cannot run with
func (c *Config) Validate() error {
	if c.Tiling.MaxTileDim <= 0 || c.Tiling.MaxTileDim > MaxTileDim {
		return fmt.Errorf("tiling.maxTileDim must be within 1-%d, got %d", MaxTileDim, c.Tiling.MaxTileDim)
	}
	if c.Processing.NumCores < 1 {
		return fmt.Errorf("processing.numCores must be at least 1, got %d", c.Processing.NumCores)
	}
	if _, err := raster.NewResampler(c.Processing.Resampler); err != nil {
		return err
	}
	tiers, err := c.TierTable()
	if err != nil {
		return err
	}
	for _, name := range []string{c.Output.OriginalTier, c.Output.NormalTier, c.Output.DepthTier, c.Output.PreviewTier} {
		if _, err := tiers.Lookup(name); err != nil {
			return err
		}
	}
	if c.Publish.Enabled && c.Publish.Bucket == "" {
		return fmt.Errorf("publish.bucket is required when publishing is enabled")
	}
	return nil
}

// isTOML reports whether the path should be parsed as TOML
func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

// LoadConfig loads configuration from a YAML or TOML file.
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Tiers from the file replace the defaults rather than merging into them
	cfg.Tiling.Tiers = nil

	if isTOML(configPath) {
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	if len(cfg.Tiling.Tiers) == 0 {
		cfg.Tiling.Tiers = DefaultTiers().Map()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
	}

	return cfg, nil
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
		var sb strings.Builder
		if err := toml.NewEncoder(&sb).Encode(cfg); err != nil {
			return fmt.Errorf("error marshaling config: %w", err)
		}
		data = []byte(sb.String())
	} else {
		out, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("error marshaling config: %w", err)
		}
		data = out
	}

	// Write to file
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
