package tiling

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/charmbracelet/log"
	"github.com/disintegration/imaging"
	"golang.org/x/sync/errgroup"

	"arttiler/internal/models"
	"arttiler/pkg/config"
	"arttiler/pkg/raster"
)

// Request describes one tiling invocation
type Request struct {
	// Stem is the base name of every emitted file
	Stem string

	// OutputDir receives the tile files
	OutputDir string

	// Tier names the quality tier used to re-encode tiles
	Tier string

	// FlattenSeams paints the border ring of every grid tile mid-gray
	FlattenSeams bool
}

// Result is the outcome of a successful tiling invocation
type Result struct {
	// Files lists the emitted tiles column by column
	Files []models.TileFile

	// Grid describes the partition. For a single tile the cell sizes are
	// the dimensions of the written file.
	Grid models.SliceGrid

	// Res is the true content size. For a downscaled single tile it is the
	// pre-resize size and so differs from the written file.
	Res [2]int

	// Format is the container format of every tile
	Format raster.Format
}

// Tiler partitions rasters into tiles.
// A Tiler holds no mutable state and may be shared between goroutines.
type Tiler struct {
	// MaxTileDim caps every grid cell's width and height. Values outside
	// 1..config.MaxTileDim fall back to config.MaxTileDim.
	MaxTileDim int

	// Tiers is the quality tier table requests are resolved against
	Tiers *config.Tiers

	// Resampler performs downscaling to a tier's maximum output dimension
	Resampler raster.Resampler

	// Workers bounds the number of tiles cropped and encoded at once
	Workers int

	// MaxPixels rejects oversized inputs in TileFile
	MaxPixels int64

	Logger *log.Logger
}

// New creates a tiler from the configuration
func New(cfg *config.Config, logger *log.Logger) (*Tiler, error) {
	tiers, err := cfg.TierTable()
	if err != nil {
		return nil, err
	}
	resampler, err := raster.NewResampler(cfg.Processing.Resampler)
	if err != nil {
		return nil, err
	}
	return &Tiler{
		MaxTileDim: cfg.Tiling.MaxTileDim,
		Tiers:      tiers,
		Resampler:  resampler,
		Workers:    cfg.Processing.NumCores,
		MaxPixels:  cfg.Processing.MaxPixels,
		Logger:     logger,
	}, nil
}

func (t *Tiler) logger() *log.Logger {
	if t.Logger == nil {
		return log.Default()
	}
	return t.Logger
}

func (t *Tiler) maxTileDim() int {
	if t.MaxTileDim <= 0 || t.MaxTileDim > config.MaxTileDim {
		return config.MaxTileDim
	}
	return t.MaxTileDim
}

func (t *Tiler) resampler() raster.Resampler {
	if t.Resampler == nil {
		r, _ := raster.NewResampler(raster.ResamplerLanczos)
		return r
	}
	return t.Resampler
}

// TileFile loads the raster at path and tiles it. An empty stem defaults to
// the file name without extension.
func (t *Tiler) TileFile(ctx context.Context, path string, req Request) (*Result, error) {
	img, info, err := raster.Load(path, t.MaxPixels)
	if err != nil {
		return nil, err
	}
	if req.Stem == "" {
		base := filepath.Base(path)
		req.Stem = base[:len(base)-len(filepath.Ext(base))]
	}
	t.logger().Info("tiling", "image", req.Stem, "size", fmt.Sprintf("%dx%d", info.Width, info.Height), "tier", req.Tier)
	return t.Tile(ctx, img, req)
}

// Tile partitions img according to the request.
//
// Rasters that fit within MaxTileDim are re-encoded as a single file.
// Larger ones are cut into a grid whose tiles are produced concurrently. If
// any tile fails the remaining work is cancelled, tiles already written by
// this call are removed, and no result is returned.
func (t *Tiler) Tile(ctx context.Context, img image.Image, req Request) (*Result, error) {
	if t.Tiers == nil {
		return nil, raster.ConfigError("quality tier", req.Tier)
	}
	tier, err := t.Tiers.Lookup(req.Tier)
	if err != nil {
		return nil, err
	}
	format, err := tier.OutputFormat()
	if err != nil {
		return nil, err
	}
	if err := raster.Validate(img); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(req.OutputDir, 0755); err != nil {
		return nil, raster.EncodeError(req.OutputDir, err)
	}

	b := img.Bounds()
	maxDim := t.maxTileDim()
	if b.Dx() <= maxDim && b.Dy() <= maxDim {
		return t.single(img, req, tier, format)
	}
	return t.grid(ctx, img, req, tier, format)
}

// single re-encodes a raster that needs no tiling
func (t *Tiler) single(img image.Image, req Request, tier config.Tier, format raster.Format) (*Result, error) {
	b := img.Bounds()
	res := [2]int{b.Dx(), b.Dy()}

	out := img
	if raster.NeedsResize(img, tier.MaxOutputDim) {
		out = t.resampler().Fit(img, tier.MaxOutputDim)
	}
	ob := out.Bounds()

	path := filepath.Join(req.OutputDir, models.TileName(req.Stem, format.Ext(), 0, 0, true))
	t.logger().Debug("converting single tile", "path", path, "w", ob.Dx(), "h", ob.Dy())
	if err := raster.Save(out, path, format, tier.Quality); err != nil {
		return nil, err
	}

	return &Result{
		Files: []models.TileFile{{Path: path, Width: ob.Dx(), Height: ob.Dy()}},
		Grid: models.SliceGrid{
			NumX:           1,
			NumY:           1,
			FullCellWidth:  ob.Dx(),
			FullCellHeight: ob.Dy(),
			LastXWidth:     ob.Dx(),
			LastYHeight:    ob.Dy(),
		},
		Res:    res,
		Format: format,
	}, nil
}

// grid cuts img into cells and encodes them on a bounded worker pool
func (t *Tiler) grid(ctx context.Context, img image.Image, req Request, tier config.Tier, format raster.Format) (*Result, error) {
	start := time.Now()
	b := img.Bounds()
	grid := ComputeGrid(b.Dx(), b.Dy(), t.maxTileDim())
	cells := Cells(grid)
	files := make([]models.TileFile, len(cells))
	written := make([]bool, len(cells))

	t.logger().Info("slicing", "image", req.Stem, "num_x", grid.NumX, "num_y", grid.NumY)

	workers := t.Workers
	if workers < 1 {
		workers = runtime.NumCPU()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, cell := range cells {
		i, cell := i, cell
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rect := CellRect(grid, cell.X, cell.Y).Add(b.Min)
			path := filepath.Join(req.OutputDir, models.TileName(req.Stem, format.Ext(), cell.X, cell.Y, false))

			tile := imaging.Crop(img, rect)
			if req.FlattenSeams {
				FlattenSeams(tile)
			}
			out := t.resampler().Fit(tile, tier.MaxOutputDim)

			t.logger().Debug("saving tile", "path", path, "slice", rect)
			if err := raster.Save(out, path, format, tier.Quality); err != nil {
				return fmt.Errorf("tile %s: %w", models.SliceName(cell.X, cell.Y), err)
			}
			ob := out.Bounds()
			files[i] = models.TileFile{Path: path, X: cell.X, Y: cell.Y, Width: ob.Dx(), Height: ob.Dy()}
			written[i] = true
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		for i, ok := range written {
			if ok {
				os.Remove(files[i].Path)
			}
		}
		return nil, err
	}

	t.logger().Info("sliced", "image", req.Stem, "tiles", len(files), "duration", time.Since(start).Round(time.Millisecond))

	return &Result{
		Files:  files,
		Grid:   grid,
		Res:    grid.Res(),
		Format: format,
	}, nil
}
