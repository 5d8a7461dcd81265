// Package raster loads, validates, resamples and encodes the rasters handled
// by the tiling and surface reconstruction components.
package raster

import (
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"

	"github.com/disintegration/imaging"

	"arttiler/internal/models"
)

// DefaultMaxPixels is the largest raster accepted by Load unless configured otherwise.
const DefaultMaxPixels int64 = 1_000_000_000

// Load decodes the PNG or JPEG raster at path.
//
// The header is inspected first so that oversized rasters fail with
// ErrResource and empty ones with ErrDimension before any pixel memory is
// allocated. A maxPixels of zero or less disables the budget.
func Load(path string, maxPixels int64) (image.Image, models.RasterInfo, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, models.RasterInfo{}, DecodeError(path, err)
	}
	defer file.Close()

	return decode(file, path, maxPixels)
}

// Decode decodes a PNG or JPEG raster from r. The name is used in errors only.
func Decode(r io.ReadSeeker, name string, maxPixels int64) (image.Image, models.RasterInfo, error) {
	return decode(r, name, maxPixels)
}

// Probe reads only the header of the raster at path, applying the same
// checks as Load without decoding pixels.
func Probe(path string, maxPixels int64) (models.RasterInfo, error) {
	file, err := os.Open(path)
	if err != nil {
		return models.RasterInfo{}, DecodeError(path, err)
	}
	defer file.Close()

	cfg, format, err := header(file, path, maxPixels)
	if err != nil {
		return models.RasterInfo{}, err
	}
	return models.RasterInfo{
		Width:    cfg.Width,
		Height:   cfg.Height,
		Channels: modelChannels(cfg.ColorModel),
		Format:   format,
	}, nil
}

func header(r io.Reader, name string, maxPixels int64) (image.Config, string, error) {
	cfg, format, err := image.DecodeConfig(r)
	if err != nil {
		return cfg, "", DecodeError(name, err)
	}
	if format != "jpeg" && format != "png" {
		return cfg, "", DecodeError(name, fmt.Errorf("unsupported format %q", format))
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return cfg, "", DimensionError(cfg.Width, cfg.Height)
	}
	pixels := int64(cfg.Width) * int64(cfg.Height)
	if maxPixels > 0 && pixels > maxPixels {
		return cfg, "", ResourceError(name, pixels, maxPixels)
	}
	return cfg, format, nil
}

func decode(r io.ReadSeeker, name string, maxPixels int64) (image.Image, models.RasterInfo, error) {
	cfg, format, err := header(r, name, maxPixels)
	if err != nil {
		return nil, models.RasterInfo{}, err
	}

	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, models.RasterInfo{}, DecodeError(name, err)
	}
	img, err := imaging.Decode(r)
	if err != nil {
		return nil, models.RasterInfo{}, DecodeError(name, err)
	}

	info := models.RasterInfo{
		Width:    cfg.Width,
		Height:   cfg.Height,
		Channels: Channels(img),
		Format:   format,
	}
	return img, info, nil
}

// Validate returns ErrDimension when img has no pixels.
func Validate(img image.Image) error {
	if img == nil {
		return DimensionError(0, 0)
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return DimensionError(b.Dx(), b.Dy())
	}
	return nil
}

// Channels reports the number of samples per pixel implied by the colour model.
func Channels(img image.Image) int {
	if _, ok := img.(*image.YCbCr); ok {
		return 3
	}
	return modelChannels(img.ColorModel())
}

func modelChannels(m color.Model) int {
	switch m {
	case color.GrayModel, color.Gray16Model:
		return 1
	case color.YCbCrModel, color.CMYKModel:
		return 3
	}
	return 4
}

// ToNRGBA returns img as a non-premultiplied 8-bit RGBA raster anchored at
// the origin. The source is never modified.
func ToNRGBA(img image.Image) *image.NRGBA {
	if n, ok := img.(*image.NRGBA); ok && n.Rect.Min == (image.Point{}) {
		return n
	}
	return imaging.Clone(img)
}
