package config

import (
	"fmt"
	"sort"

	"arttiler/pkg/raster"
)

// Built-in tier names
const (
	TierLow     = "low"
	TierFull    = "full"
	TierPreview = "preview"
)

// Tier governs how a raster is re-encoded
type Tier struct {
	// Format is the container format, "jpg" or "png"
	Format string `yaml:"format" toml:"format"`

	// Quality is the JPEG quality (1-100); ignored for PNG
	Quality int `yaml:"quality" toml:"quality"`

	// MaxOutputDim caps the width and height of every emitted file
	MaxOutputDim int `yaml:"maxOutputDim" toml:"maxOutputDim"`
}

// OutputFormat returns the parsed container format of the tier
func (t Tier) OutputFormat() (raster.Format, error) {
	return raster.ParseFormat(t.Format)
}

// Tiers is an immutable table of named quality tiers. Lookups return copies.
type Tiers struct {
	tiers map[string]Tier
}

// NewTiers validates and copies the given tier definitions into a table
func NewTiers(defs map[string]Tier) (*Tiers, error) {
	tiers := make(map[string]Tier, len(defs))
	for name, t := range defs {
		if _, err := t.OutputFormat(); err != nil {
			return nil, fmt.Errorf("tier %q: %w", name, err)
		}
		if t.MaxOutputDim <= 0 {
			return nil, fmt.Errorf("tier %q: maxOutputDim must be positive, got %d", name, t.MaxOutputDim)
		}
		if t.Quality < 1 || t.Quality > 100 {
			return nil, fmt.Errorf("tier %q: quality must be within 1-100, got %d", name, t.Quality)
		}
		tiers[name] = t
	}
	return &Tiers{tiers: tiers}, nil
}

// DefaultTiers returns the built-in low, full and preview tiers
func DefaultTiers() *Tiers {
	return &Tiers{tiers: map[string]Tier{
		TierLow:     {Format: "jpg", Quality: 80, MaxOutputDim: 1024},
		TierFull:    {Format: "jpg", Quality: 85, MaxOutputDim: 4096},
		TierPreview: {Format: "jpg", Quality: 80, MaxOutputDim: 4096},
	}}
}

// Lookup returns the tier registered under name, or an ErrConfig error
func (t *Tiers) Lookup(name string) (Tier, error) {
	tier, ok := t.tiers[name]
	if !ok {
		return Tier{}, raster.ConfigError("quality tier", name)
	}
	return tier, nil
}

// Names returns the sorted tier names
func (t *Tiers) Names() []string {
	names := make([]string, 0, len(t.tiers))
	for name := range t.tiers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Map returns a copy of the table suitable for serialization
func (t *Tiers) Map() map[string]Tier {
	out := make(map[string]Tier, len(t.tiers))
	for name, tier := range t.tiers {
		out[name] = tier
	}
	return out
}
