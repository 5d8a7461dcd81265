// Package gradient reduces rasters to luminance and estimates their surface
// gradients with discrete difference kernels.
package gradient

import (
	"image"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"arttiler/pkg/raster"
)

// LumaWeights are the luminosity coefficients for R, G and B.
var LumaWeights = []float64{0.299, 0.587, 0.114}

// Kernel is the 1x3 difference kernel applied along each axis.
var Kernel = [3]float64{-1, 0, 1}

// maxStatSamples bounds the number of samples used by Stats
const maxStatSamples = 1 << 20

// Field is a single-channel float raster in row-major order
type Field struct {
	Width  int
	Height int
	Data   []float32
}

// NewField allocates a zeroed field
func NewField(width, height int) *Field {
	return &Field{Width: width, Height: height, Data: make([]float32, width*height)}
}

// At returns the value at (x, y) with coordinates clamped to the field,
// which replicates edge samples outside the borders.
func (f *Field) At(x, y int) float32 {
	x = min(max(x, 0), f.Width-1)
	y = min(max(y, 0), f.Height-1)
	return f.Data[y*f.Width+x]
}

// Luma computes the luminance of a single 8-bit RGB sample
func Luma(r, g, b uint8) float64 {
	return floats.Dot([]float64{float64(r), float64(g), float64(b)}, LumaWeights)
}

// Luminance converts img to a luminance field on the 0-255 scale.
// Alpha, if present, is dropped.
func Luminance(img image.Image) *Field {
	src := raster.ToNRGBA(img)
	w, h := src.Rect.Dx(), src.Rect.Dy()
	f := NewField(w, h)
	rgb := make([]float64, 3)

	for y := 0; y < h; y++ {
		row := src.Pix[y*src.Stride : y*src.Stride+w*4]
		for x := 0; x < w; x++ {
			rgb[0] = float64(row[x*4])
			rgb[1] = float64(row[x*4+1])
			rgb[2] = float64(row[x*4+2])
			f.Data[y*w+x] = float32(floats.Dot(rgb, LumaWeights))
		}
	}
	return f
}

// DX is the horizontal derivative at (x, y): the luminance convolved with
// Kernel, so the kernel is flipped and DX = L(x-1) - L(x+1). Borders
// replicate the edge sample.
func (f *Field) DX(x, y int) float32 {
	return float32(Kernel[0])*f.At(x+1, y) + float32(Kernel[2])*f.At(x-1, y)
}

// DY is the vertical derivative at (x, y), computed like DX along columns.
func (f *Field) DY(x, y int) float32 {
	return float32(Kernel[0])*f.At(x, y+1) + float32(Kernel[2])*f.At(x, y-1)
}

// Horizontal returns the full dx field
func Horizontal(f *Field) *Field {
	out := NewField(f.Width, f.Height)
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			out.Data[y*f.Width+x] = f.DX(x, y)
		}
	}
	return out
}

// Vertical returns the full dy field
func Vertical(f *Field) *Field {
	out := NewField(f.Width, f.Height)
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			out.Data[y*f.Width+x] = f.DY(x, y)
		}
	}
	return out
}

// Stats returns the mean and standard deviation of the field. Large fields
// are sampled at a fixed stride.
func (f *Field) Stats() (mean, std float64) {
	if len(f.Data) == 0 {
		return 0, 0
	}
	stride := max(1, len(f.Data)/maxStatSamples)
	samples := make([]float64, 0, len(f.Data)/stride+1)
	for i := 0; i < len(f.Data); i += stride {
		samples = append(samples, float64(f.Data[i]))
	}
	if len(samples) < 2 {
		return samples[0], 0
	}
	return stat.MeanStdDev(samples, nil)
}
