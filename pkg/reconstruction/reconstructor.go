package reconstruction

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"arttiler/internal/models"
	"arttiler/pkg/config"
	"arttiler/pkg/raster"
)

// Map stem suffixes appended to the source name
const (
	NormalSuffix = "@normal"
	DepthSuffix  = "@depth"
)

// Params holds the surface reconstruction parameters
type Params struct {
	// InputPath is the PNG or JPEG raster to reconstruct
	InputPath string

	// OutputDir is where the normal and depth maps are written
	OutputDir string

	// Stem is the base output name; defaults to the input name without extension
	Stem string

	// Options control the synthesis itself
	Options Options

	// Lossless writes PNG maps at full resolution. Otherwise maps are
	// encoded with PreviewTier, downscaled to fit its maximum dimension.
	Lossless    bool
	PreviewTier config.Tier

	// Resampler is used for the preview downscale; nil selects Lanczos
	Resampler raster.Resampler

	// MaxPixels rejects oversized inputs before decoding
	MaxPixels int64

	// Logger receives progress output; nil selects log.Default()
	Logger *log.Logger
}

// Result describes the maps written by Process
type Result struct {
	NormalPath string
	DepthPath  string
	Format     raster.Format

	// Source is the header information of the input raster
	Source models.RasterInfo

	// DepthMean and DepthStd summarize the depth map
	DepthMean float64
	DepthStd  float64

	Elapsed time.Duration
}

// Reconstructor derives normal and depth maps from a single artwork raster
type Reconstructor struct {
	params *Params
	logger *log.Logger
}

// NewReconstructor creates a new reconstructor instance with the provided parameters.
func NewReconstructor(params *Params) *Reconstructor {
	logger := params.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Reconstructor{params: params, logger: logger}
}

// Stem returns the base name maps are derived from
func (r *Reconstructor) Stem() string {
	if r.params.Stem != "" {
		return r.params.Stem
	}
	return StemOf(r.params.InputPath)
}

// StemOf returns the file name of path without directory or extension
func StemOf(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Process runs the complete reconstruction pipeline:
// load the source, synthesize both maps, and write them to OutputDir.
func (r *Reconstructor) Process(ctx context.Context) (*Result, error) {
	start := time.Now()

	// Step 1: Load the source raster
	img, info, err := raster.Load(r.params.InputPath, r.params.MaxPixels)
	if err != nil {
		return nil, fmt.Errorf("failed to load source: %w", err)
	}
	r.logger.Info("loaded source", "path", r.params.InputPath, "w", info.Width, "h", info.Height, "channels", info.Channels)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Step 2: Synthesize normal and depth maps
	normals, depth, err := Synthesize(img, r.params.Options)
	if err != nil {
		return nil, fmt.Errorf("failed to synthesize maps: %w", err)
	}
	// The source is no longer needed once the maps exist
	img = nil

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Step 3: Write both maps
	result := &Result{Source: info}
	result.DepthMean, result.DepthStd = depth.Field().Stats()

	if err := os.MkdirAll(r.params.OutputDir, 0755); err != nil {
		return nil, raster.EncodeError(r.params.OutputDir, err)
	}

	format, quality := raster.PNG, 0
	if !r.params.Lossless {
		if format, err = r.params.PreviewTier.OutputFormat(); err != nil {
			return nil, err
		}
		quality = r.params.PreviewTier.Quality
	}
	result.Format = format

	stem := r.Stem()
	result.NormalPath = filepath.Join(r.params.OutputDir, stem+NormalSuffix+"."+format.Ext())
	if err := r.save(normals.Image(), result.NormalPath, format, quality); err != nil {
		return nil, err
	}
	normals = nil

	result.DepthPath = filepath.Join(r.params.OutputDir, stem+DepthSuffix+"."+format.Ext())
	if err := r.save(depth.Image(), result.DepthPath, format, quality); err != nil {
		os.Remove(result.NormalPath)
		return nil, err
	}

	result.Elapsed = time.Since(start)
	r.logger.Info("wrote surface maps",
		"normal", result.NormalPath,
		"depth", result.DepthPath,
		"depth_mean", fmt.Sprintf("%.3f", result.DepthMean),
		"depth_std", fmt.Sprintf("%.3f", result.DepthStd),
		"duration", result.Elapsed.Round(time.Millisecond))

	return result, nil
}

// save writes one map, downscaling it first unless output is lossless
func (r *Reconstructor) save(img image.Image, path string, format raster.Format, quality int) error {
	if !r.params.Lossless {
		resampler := r.params.Resampler
		if resampler == nil {
			resampler, _ = raster.NewResampler(raster.ResamplerLanczos)
		}
		img = resampler.Fit(img, r.params.PreviewTier.MaxOutputDim)
	}
	r.logger.Debug("saving map", "path", path)
	return raster.Save(img, path, format, quality)
}
