package raster

import (
	"image"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/nfnt/resize"
)

// Resampler downscales rasters to fit within a square bound.
//
// Fit never upscales: an image already within maxDim is returned with its
// dimensions unchanged. Aspect ratio is preserved.
type Resampler interface {
	Fit(img image.Image, maxDim int) image.Image
	Name() string
}

// Resampler names accepted by NewResampler.
const (
	ResamplerLanczos = "lanczos"
	ResamplerBox     = "box"
	ResamplerNFNT    = "nfnt"
)

// NewResampler returns the resampler registered under name. An empty name
// selects Lanczos.
func NewResampler(name string) (Resampler, error) {
	switch strings.ToLower(name) {
	case "", ResamplerLanczos:
		return imagingResampler{name: ResamplerLanczos, filter: imaging.Lanczos}, nil
	case ResamplerBox:
		return imagingResampler{name: ResamplerBox, filter: imaging.Box}, nil
	case ResamplerNFNT:
		return nfntResampler{}, nil
	}
	return nil, ConfigError("resampler", name)
}

// NeedsResize reports whether either dimension of img exceeds maxDim.
func NeedsResize(img image.Image, maxDim int) bool {
	b := img.Bounds()
	return maxDim > 0 && (b.Dx() > maxDim || b.Dy() > maxDim)
}

type imagingResampler struct {
	name   string
	filter imaging.ResampleFilter
}

func (r imagingResampler) Name() string { return r.name }

func (r imagingResampler) Fit(img image.Image, maxDim int) image.Image {
	if !NeedsResize(img, maxDim) {
		return img
	}
	return imaging.Fit(img, maxDim, maxDim, r.filter)
}

// nfntResampler uses nfnt/resize's Lanczos3 thumbnailer.
type nfntResampler struct{}

func (nfntResampler) Name() string { return ResamplerNFNT }

func (nfntResampler) Fit(img image.Image, maxDim int) image.Image {
	if !NeedsResize(img, maxDim) {
		return img
	}
	return resize.Thumbnail(uint(maxDim), uint(maxDim), img, resize.Lanczos3)
}
