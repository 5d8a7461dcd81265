package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"io"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arttiler/internal/models"
	"arttiler/pkg/config"
	"arttiler/pkg/raster"
)

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Tiling.MaxTileDim = 64
	cfg.Processing.NumCores = 2
	return cfg
}

func testRunner(cfg *config.Config) *Runner {
	return NewRunner(cfg, log.New(io.Discard))
}

// writeArtwork saves a patterned PNG named art.png and returns its path
func writeArtwork(t *testing.T, width, height int) string {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 3), G: uint8(y * 5), B: uint8((x + y) % 64 * 4), A: 255})
		}
	}
	path := filepath.Join(t.TempDir(), "art.png")
	require.NoError(t, raster.Save(img, path, raster.PNG, 0))
	return path
}

func listDir(t *testing.T, dir string) []string {
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}

func TestRunSliceWithMaps(t *testing.T) {
	src := writeArtwork(t, 150, 80)
	out := t.TempDir()

	report, err := testRunner(testConfig()).Run(context.Background(), Options{
		Source:       src,
		OutputDir:    out,
		Slice:        true,
		GenerateMaps: true,
	})
	require.NoError(t, err)

	meta := report.Metadata
	require.NotNil(t, meta.Slice)
	assert.Equal(t, models.SliceGrid{NumX: 3, NumY: 2, FullCellWidth: 64, FullCellHeight: 64, LastXWidth: 22, LastYHeight: 16}, *meta.Slice)
	assert.Equal(t, [2]int{150, 80}, meta.Res)
	assert.Equal(t, filepath.ToSlash(out)+"/art{SLICE}.jpg", meta.URL)
	assert.Equal(t, filepath.ToSlash(out)+"/art@normal{SLICE}.jpg", meta.NormalMapURL)
	assert.Equal(t, filepath.ToSlash(out)+"/art@depth{SLICE}.jpg", meta.DepthMapURL)

	names := listDir(t, out)
	assert.Len(t, names, 3*6+1)
	assert.Contains(t, names, "art(2,1).jpg")
	assert.Contains(t, names, "art@normal(0,1).jpg")
	assert.Contains(t, names, "art@depth(1,0).jpg")
	assert.Contains(t, names, "art.json")
	assert.NotContains(t, names, "art@normal.png")
	assert.NotContains(t, names, "art@depth.png")
	assert.Len(t, report.Files, len(names))

	manifest, err := ReadManifest(report.ManifestPath)
	require.NoError(t, err)
	assert.Equal(t, meta, *manifest)
}

func TestRunKeepIntermediateMaps(t *testing.T) {
	cfg := testConfig()
	cfg.Output.KeepIntermediateMaps = true
	out := t.TempDir()

	_, err := testRunner(cfg).Run(context.Background(), Options{
		Source:       writeArtwork(t, 100, 50),
		OutputDir:    out,
		Slice:        true,
		GenerateMaps: true,
	})
	require.NoError(t, err)

	names := listDir(t, out)
	assert.Contains(t, names, "art@normal.png")
	assert.Contains(t, names, "art@depth.png")
}

func TestRunWithoutSlicing(t *testing.T) {
	out := t.TempDir()
	cfg := testConfig()
	cfg.Output.URLPrefix = "art/starry/"

	report, err := testRunner(cfg).Run(context.Background(), Options{
		Source:       writeArtwork(t, 150, 80),
		OutputDir:    out,
		GenerateMaps: true,
	})
	require.NoError(t, err)

	meta := report.Metadata
	assert.Nil(t, meta.Slice)
	assert.Equal(t, [2]int{150, 80}, meta.Res)
	assert.Equal(t, "art/starry/art.png", meta.URL)
	assert.Equal(t, "art/starry/art@normal.jpg", meta.NormalMapURL)
	assert.Equal(t, "art/starry/art@depth.jpg", meta.DepthMapURL)
	assert.Equal(t, []string{"art.json", "art.png", "art@depth.jpg", "art@normal.jpg"}, listDir(t, out))
}

func TestRunSliceOnly(t *testing.T) {
	out := t.TempDir()

	report, err := testRunner(testConfig()).Run(context.Background(), Options{
		Source:    writeArtwork(t, 40, 30),
		OutputDir: out,
		Slice:     true,
		Stem:      "texture",
	})
	require.NoError(t, err)

	meta := report.Metadata
	require.NotNil(t, meta.Slice)
	assert.True(t, meta.Slice.Single())
	assert.Empty(t, meta.NormalMapURL)
	assert.Equal(t, "texture.jpg", filepath.Base(meta.ExpandURL(meta.URL, 0, 0)))
	assert.Equal(t, []string{"texture.jpg", "texture.json"}, listDir(t, out))
}

func TestRunFailureLeavesNoOutput(t *testing.T) {
	src := filepath.Join(t.TempDir(), "broken.png")
	require.NoError(t, os.WriteFile(src, []byte("not an image"), 0644))
	out := t.TempDir()

	_, err := testRunner(testConfig()).Run(context.Background(), Options{
		Source:       src,
		OutputDir:    out,
		Slice:        true,
		GenerateMaps: true,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, raster.ErrDecode))
	assert.Empty(t, listDir(t, out))
}

func TestRunMissingSource(t *testing.T) {
	_, err := testRunner(testConfig()).Run(context.Background(), Options{
		Source:    filepath.Join(t.TempDir(), "missing.png"),
		OutputDir: t.TempDir(),
	})
	assert.Error(t, err)

	_, err = testRunner(testConfig()).Run(context.Background(), Options{OutputDir: t.TempDir()})
	assert.Error(t, err)
}

// recordingPublisher captures the files handed to it
type recordingPublisher struct {
	files []string
}

func (p *recordingPublisher) Publish(ctx context.Context, files []string) ([]string, error) {
	p.files = append(p.files, files...)
	keys := make([]string, len(files))
	for i, f := range files {
		keys[i] = filepath.Base(f)
	}
	return keys, nil
}

func TestRunPublishes(t *testing.T) {
	pub := &recordingPublisher{}
	runner := testRunner(testConfig())
	runner.Publisher = pub

	report, err := runner.Run(context.Background(), Options{
		Source:    writeArtwork(t, 100, 50),
		OutputDir: t.TempDir(),
		Slice:     true,
	})
	require.NoError(t, err)

	assert.Equal(t, report.Files, pub.files)
	assert.Equal(t, report.ManifestPath, pub.files[len(pub.files)-1])
	assert.Len(t, report.Published, 2*1+1)
}

func TestRunUpdatesIndex(t *testing.T) {
	index := filepath.Join(t.TempDir(), "index.json")
	runner := testRunner(testConfig())
	src := writeArtwork(t, 30, 20)

	for _, name := range []string{"starry-night", "water-lilies", "starry-night"} {
		_, err := runner.Run(context.Background(), Options{
			Source:    src,
			OutputDir: filepath.Join(t.TempDir(), name),
			Slice:     true,
			Name:      name,
			IndexPath: index,
		})
		require.NoError(t, err)
	}

	data, err := os.ReadFile(index)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"og_url"`)

	var entries []models.Metadata
	require.NoError(t, json.Unmarshal(data, &entries))
	require.Len(t, entries, 2)
	assert.Equal(t, "starry-night", entries[0].Name)
	assert.Equal(t, "starry-night", entries[0].ID)
	assert.Equal(t, src, entries[0].OriginURL)
	assert.Equal(t, "water-lilies", entries[1].Name)
}

func TestUpdateIndexRequiresName(t *testing.T) {
	err := UpdateIndex(filepath.Join(t.TempDir(), "index.json"), models.Metadata{})
	assert.Error(t, err)
}

func TestLocalFetcher(t *testing.T) {
	src := writeArtwork(t, 8, 8)
	dest := t.TempDir()

	path, err := LocalFetcher{}.Fetch(context.Background(), src, dest)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dest, "art.png"), path)
	assert.FileExists(t, path)

	_, err = LocalFetcher{}.Fetch(context.Background(), "https://example.org/art.jpg", dest)
	assert.ErrorIs(t, err, raster.ErrConfig)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = LocalFetcher{}.Fetch(ctx, src, dest)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestUpdateIndexKeepsUnknownFields(t *testing.T) {
	index := filepath.Join(t.TempDir(), "index.json")
	existing := `[{"name":"old","id":"old","res":[10,10],"url":"art/old/texture{SLICE}.jpg","dims":[0.5,0.7],"offset":[0,1,0]}]`
	require.NoError(t, os.WriteFile(index, []byte(existing), 0644))

	require.NoError(t, UpdateIndex(index, models.Metadata{Name: "new", Dims: []float64{1, 1}}))

	data, err := os.ReadFile(index)
	require.NoError(t, err)
	var entries []map[string]any
	require.NoError(t, json.Unmarshal(data, &entries))
	require.Len(t, entries, 2)

	assert.Equal(t, "new", entries[0]["name"])
	assert.Equal(t, []any{1.0, 1.0}, entries[0]["dims"])

	old := entries[1]
	assert.Equal(t, "old", old["name"])
	assert.Equal(t, []any{0.5, 0.7}, old["dims"])
	assert.Equal(t, []any{0.0, 1.0, 0.0}, old["offset"])
	assert.Equal(t, "art/old/texture{SLICE}.jpg", old["url"])
}

func TestUpdateIndexReplacesByName(t *testing.T) {
	index := filepath.Join(t.TempDir(), "index.json")
	existing := `[{"name":"a","offset":[1,2,3]},{"name":"b","offset":[4,5,6]}]`
	require.NoError(t, os.WriteFile(index, []byte(existing), 0644))

	require.NoError(t, UpdateIndex(index, models.Metadata{Name: "b"}))

	data, err := os.ReadFile(index)
	require.NoError(t, err)
	var entries []map[string]any
	require.NoError(t, json.Unmarshal(data, &entries))
	require.Len(t, entries, 2)
	assert.Equal(t, "b", entries[0]["name"])
	assert.NotContains(t, entries[0], "offset")
	assert.Equal(t, "a", entries[1]["name"])
	assert.Equal(t, []any{1.0, 2.0, 3.0}, entries[1]["offset"])
}

func TestRunRecordsDims(t *testing.T) {
	runner := testRunner(testConfig())
	src := writeArtwork(t, 30, 20)

	report, err := runner.Run(context.Background(), Options{Source: src, OutputDir: t.TempDir()})
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 1}, report.Metadata.Dims)

	report, err = runner.Run(context.Background(), Options{Source: src, OutputDir: t.TempDir(), Dims: []float64{0.73, 0.92}})
	require.NoError(t, err)
	manifest, err := ReadManifest(report.ManifestPath)
	require.NoError(t, err)
	assert.Equal(t, []float64{0.73, 0.92}, manifest.Dims)
}

func TestTilingLimit(t *testing.T) {
	assert.Equal(t, 3, tilingLimit(150*80, 3))
	assert.Equal(t, 1, tilingLimit(10000*10000, 3))
	assert.Equal(t, 2, tilingLimit(concurrentTilingPixels/2, 3))
	assert.Equal(t, 1, tilingLimit(concurrentTilingPixels, 1))
	assert.Equal(t, 3, tilingLimit(0, 3))
}
