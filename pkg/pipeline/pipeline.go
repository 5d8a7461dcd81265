// Package pipeline runs the complete per-artwork processing flow: fetch the
// source, derive surface maps, tile every asset, write the metadata manifest
// and optionally publish the results.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"arttiler/internal/models"
	"arttiler/pkg/config"
	"arttiler/pkg/publish"
	"arttiler/pkg/raster"
	"arttiler/pkg/reconstruction"
	"arttiler/pkg/tiling"
)

// Options describe one artwork run
type Options struct {
	// Source identifies the artwork for the fetcher
	Source string

	// OutputDir receives tiles, maps and the manifest
	OutputDir string

	// Slice tiles every asset. Otherwise the original is copied as is.
	Slice bool

	// GenerateMaps derives normal and depth maps
	GenerateMaps bool

	// Stem overrides the base output name
	Stem string

	// Name catalogues the artwork under an id and records the source URL
	Name string

	// IndexPath is a catalog file updated with the manifest when Name is set
	IndexPath string

	// Dims is the physical aspect recorded in the manifest; empty selects DefaultDims
	Dims []float64
}

// DefaultDims is the aspect recorded when a run does not supply one
var DefaultDims = []float64{1, 1}

// concurrentTilingPixels bounds the summed pixel count of rasters tiled at
// the same time. Larger artworks tile their assets one after another.
const concurrentTilingPixels int64 = 1 << 26

// Report is the outcome of a successful run
type Report struct {
	RunID        string
	Metadata     models.Metadata
	ManifestPath string

	// Files lists everything written to OutputDir, manifest last
	Files []string

	// Published holds the object keys when a publisher is configured
	Published []string

	Elapsed time.Duration
}

// Runner executes pipeline runs. A Runner may be shared between goroutines.
type Runner struct {
	Config *config.Config
	Logger *log.Logger

	// Fetcher resolves sources; nil selects LocalFetcher
	Fetcher SourceFetcher

	// Publisher uploads the finished files when set
	Publisher publish.Publisher
}

// NewRunner creates a runner that reads local sources and does not publish
func NewRunner(cfg *config.Config, logger *log.Logger) *Runner {
	return &Runner{Config: cfg, Logger: logger, Fetcher: LocalFetcher{}}
}

func (r *Runner) config() *config.Config {
	if r.Config == nil {
		return config.DefaultConfig()
	}
	return r.Config
}

func (r *Runner) logger() *log.Logger {
	if r.Logger == nil {
		return log.Default()
	}
	return r.Logger
}

func (r *Runner) fetcher() SourceFetcher {
	if r.Fetcher == nil {
		return LocalFetcher{}
	}
	return r.Fetcher
}

// run carries the state of a single Run call
type run struct {
	cfg     *config.Config
	opts    Options
	logger  *log.Logger
	stem    string
	source  string
	prefix  string
	written []string
}

// Run processes one artwork. The first failing step aborts the run and
// removes every file the run wrote to OutputDir.
func (r *Runner) Run(ctx context.Context, opts Options) (*Report, error) {
	start := time.Now()
	if opts.Source == "" || opts.OutputDir == "" {
		return nil, fmt.Errorf("source and output directory are required")
	}

	cfg := r.config()
	report := &Report{RunID: uuid.NewString()}
	logger := r.logger().With("run", report.RunID[:8])

	work, err := os.MkdirTemp("", "arttiler-")
	if err != nil {
		return nil, fmt.Errorf("failed to create work directory: %w", err)
	}
	defer os.RemoveAll(work)

	// Step 1: Fetch the source
	src, err := r.fetcher().Fetch(ctx, opts.Source, work)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(opts.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	rn := &run{
		cfg:    cfg,
		opts:   opts,
		logger: logger,
		stem:   opts.Stem,
		source: src,
		prefix: cfg.Output.URLPrefix,
	}
	if rn.stem == "" {
		rn.stem = reconstruction.StemOf(src)
	}
	if rn.prefix == "" {
		rn.prefix = filepath.ToSlash(opts.OutputDir)
	}
	logger.Info("processing artwork", "source", opts.Source, "stem", rn.stem, "slice", opts.Slice, "maps", opts.GenerateMaps)

	ok := false
	defer func() {
		if !ok {
			rn.cleanup()
		}
	}()

	meta, err := rn.execute(ctx)
	if err != nil {
		return nil, err
	}
	if opts.Name != "" {
		meta.ID = opts.Name
		meta.Name = opts.Name
		meta.OriginURL = opts.Source
	}
	meta.Dims = append([]float64(nil), DefaultDims...)
	if len(opts.Dims) > 0 {
		meta.Dims = append([]float64(nil), opts.Dims...)
	}

	// Step 5: Write the manifest
	report.ManifestPath = filepath.Join(opts.OutputDir, rn.stem+".json")
	if err := writeJSON(report.ManifestPath, meta); err != nil {
		return nil, err
	}
	rn.written = append(rn.written, report.ManifestPath)
	logger.Info("wrote manifest", "path", report.ManifestPath)

	if opts.Name != "" && opts.IndexPath != "" {
		if err := UpdateIndex(opts.IndexPath, *meta); err != nil {
			return nil, err
		}
		logger.Info("updated index", "path", opts.IndexPath, "name", opts.Name)
	}
	ok = true

	report.Metadata = *meta
	report.Files = rn.written

	// Step 6: Publish. Local output stays valid if the upload fails.
	if r.Publisher != nil {
		keys, err := r.Publisher.Publish(ctx, rn.written)
		report.Published = keys
		if err != nil {
			return report, fmt.Errorf("failed to publish: %w", err)
		}
	}

	report.Elapsed = time.Since(start)
	logger.Info("done", "files", len(report.Files), "duration", report.Elapsed.Round(time.Millisecond))
	return report, nil
}

// execute produces every asset and returns the metadata describing them
func (rn *run) execute(ctx context.Context) (*models.Metadata, error) {
	var maps *reconstruction.Result

	// Step 2: Derive surface maps
	if rn.opts.GenerateMaps {
		var err error
		if maps, err = rn.reconstruct(ctx); err != nil {
			return nil, err
		}
	}

	// Step 3/4: Tile everything, or publish the original untiled
	if rn.opts.Slice {
		return rn.slice(ctx, maps)
	}
	return rn.copyOriginal(maps)
}

func (rn *run) reconstruct(ctx context.Context) (*reconstruction.Result, error) {
	tiers, err := rn.cfg.TierTable()
	if err != nil {
		return nil, err
	}
	preview, err := tiers.Lookup(rn.cfg.Output.PreviewTier)
	if err != nil {
		return nil, err
	}
	resampler, err := raster.NewResampler(rn.cfg.Processing.Resampler)
	if err != nil {
		return nil, err
	}

	rec := reconstruction.NewReconstructor(&reconstruction.Params{
		InputPath: rn.source,
		OutputDir: rn.opts.OutputDir,
		Stem:      rn.stem,
		Options: reconstruction.Options{
			Scale:       rn.cfg.Processing.NormalScale,
			InvertRed:   rn.cfg.Processing.InvertRed,
			InvertGreen: rn.cfg.Processing.InvertGreen,
			NumCores:    rn.cfg.Processing.NumCores,
		},
		// Maps that will be tiled are kept lossless until re-encoded
		Lossless:    rn.opts.Slice,
		PreviewTier: preview,
		Resampler:   resampler,
		MaxPixels:   rn.cfg.Processing.MaxPixels,
		Logger:      rn.logger,
	})

	maps, err := rec.Process(ctx)
	if err != nil {
		return nil, err
	}
	rn.written = append(rn.written, maps.NormalPath, maps.DepthPath)
	return maps, nil
}

// tileJob is one asset handed to the tiler
type tileJob struct {
	path string
	req  tiling.Request
}

func (rn *run) slice(ctx context.Context, maps *reconstruction.Result) (*models.Metadata, error) {
	tiler, err := tiling.New(rn.cfg, rn.logger)
	if err != nil {
		return nil, err
	}

	out := rn.opts.OutputDir
	jobs := []tileJob{{
		path: rn.source,
		req:  tiling.Request{Stem: rn.stem, OutputDir: out, Tier: rn.cfg.Output.OriginalTier},
	}}
	if maps != nil {
		jobs = append(jobs,
			tileJob{
				path: maps.NormalPath,
				req:  tiling.Request{Stem: rn.stem + reconstruction.NormalSuffix, OutputDir: out, Tier: rn.cfg.Output.NormalTier},
			},
			tileJob{
				path: maps.DepthPath,
				req: tiling.Request{
					Stem:         rn.stem + reconstruction.DepthSuffix,
					OutputDir:    out,
					Tier:         rn.cfg.Output.DepthTier,
					FlattenSeams: rn.cfg.Output.DepthNiceSeams,
				},
			},
		)
	}

	var pixels int64
	if maps != nil {
		pixels = int64(maps.Source.Width) * int64(maps.Source.Height)
	} else {
		info, err := raster.Probe(rn.source, rn.cfg.Processing.MaxPixels)
		if err != nil {
			return nil, err
		}
		pixels = int64(info.Width) * int64(info.Height)
	}
	limit := tilingLimit(pixels, len(jobs))
	rn.logger.Debug("tiling assets", "assets", len(jobs), "concurrent", limit)

	results := make([]*tiling.Result, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, job := range jobs {
		i, job := i, job
		g.Go(func() error {
			res, err := tiler.TileFile(gctx, job.path, job.req)
			if err != nil {
				return fmt.Errorf("failed to tile %s: %w", job.req.Stem, err)
			}
			results[i] = res
			return nil
		})
	}
	err = g.Wait()
	for _, res := range results {
		if res == nil {
			continue
		}
		for _, f := range res.Files {
			rn.written = append(rn.written, f.Path)
		}
	}
	if err != nil {
		return nil, err
	}

	orig := results[0]
	grid := orig.Grid
	meta := &models.Metadata{
		Slice: &grid,
		Res:   orig.Res,
		URL:   models.URLTemplate(rn.prefix, rn.stem, orig.Format.Ext()),
	}
	if maps == nil {
		return meta, nil
	}

	meta.NormalMapURL = models.URLTemplate(rn.prefix, jobs[1].req.Stem, results[1].Format.Ext())
	meta.DepthMapURL = models.URLTemplate(rn.prefix, jobs[2].req.Stem, results[2].Format.Ext())

	if !rn.cfg.Output.KeepIntermediateMaps {
		for i, path := range []string{maps.NormalPath, maps.DepthPath} {
			// A single lossless tile replaces its intermediate map in place
			if producedBy(results[i+1], path) {
				continue
			}
			if err := os.Remove(path); err != nil {
				return nil, fmt.Errorf("failed to remove intermediate map: %w", err)
			}
			rn.forget(path)
		}
	}
	return meta, nil
}

func (rn *run) copyOriginal(maps *reconstruction.Result) (*models.Metadata, error) {
	dst := filepath.Join(rn.opts.OutputDir, rn.stem+filepath.Ext(rn.source))
	if err := copyFile(rn.source, dst); err != nil {
		return nil, fmt.Errorf("failed to copy original: %w", err)
	}
	rn.written = append(rn.written, dst)

	var info models.RasterInfo
	if maps != nil {
		info = maps.Source
	} else {
		var err error
		if info, err = raster.Probe(rn.source, rn.cfg.Processing.MaxPixels); err != nil {
			return nil, err
		}
	}

	meta := &models.Metadata{
		Res: [2]int{info.Width, info.Height},
		URL: joinURL(rn.prefix, filepath.Base(dst)),
	}
	if maps != nil {
		meta.NormalMapURL = joinURL(rn.prefix, filepath.Base(maps.NormalPath))
		meta.DepthMapURL = joinURL(rn.prefix, filepath.Base(maps.DepthPath))
	}
	return meta, nil
}

// tilingLimit returns how many of jobs rasters of the given size may be
// decoded and tiled at once
func tilingLimit(pixels int64, jobs int) int {
	if jobs < 1 {
		return 1
	}
	n := int64(jobs)
	if pixels > 0 {
		n = min(n, max(1, concurrentTilingPixels/pixels))
	}
	return int(n)
}

func producedBy(res *tiling.Result, path string) bool {
	for _, f := range res.Files {
		if f.Path == path {
			return true
		}
	}
	return false
}

// forget drops path from the written list
func (rn *run) forget(path string) {
	kept := rn.written[:0]
	for _, p := range rn.written {
		if p != path {
			kept = append(kept, p)
		}
	}
	rn.written = kept
}

func (rn *run) cleanup() {
	for _, path := range rn.written {
		os.Remove(path)
	}
	if len(rn.written) > 0 {
		rn.logger.Warn("removed partial output", "files", len(rn.written))
	}
}

func joinURL(prefix, name string) string {
	prefix = strings.TrimSuffix(prefix, "/")
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}
