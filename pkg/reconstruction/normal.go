package reconstruction

import (
	"image"
	"image/color"
	"runtime"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"

	"arttiler/pkg/gradient"
	"arttiler/pkg/raster"
)

// Options control normal map synthesis
type Options struct {
	// Scale is the relief strength applied to the luminance gradients
	Scale float64

	// InvertRed and InvertGreen negate the x and y normal components
	InvertRed   bool
	InvertGreen bool

	// NumCores is the number of goroutines used for row bands.
	// The output does not depend on it.
	NumCores int
}

// NormalMap holds unit surface normals encoded to [0,1] per component,
// three float32 values per pixel in row-major order
type NormalMap struct {
	Width  int
	Height int
	Pix    []float32
}

// Encoded returns the stored [0,1] components at (x, y)
func (n *NormalMap) Encoded(x, y int) (r, g, b float32) {
	i := (y*n.Width + x) * 3
	return n.Pix[i], n.Pix[i+1], n.Pix[i+2]
}

// Vector returns the normal at (x, y) decoded back to [-1,1]
func (n *NormalMap) Vector(x, y int) [3]float64 {
	r, g, b := n.Encoded(x, y)
	return [3]float64{float64(r)*2 - 1, float64(g)*2 - 1, float64(b)*2 - 1}
}

// Image encodes the normal map as an 8-bit RGB raster. Components are
// truncated, not rounded.
func (n *NormalMap) Image() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, n.Width, n.Height))
	for y := 0; y < n.Height; y++ {
		row := img.Pix[y*img.Stride:]
		for x := 0; x < n.Width; x++ {
			r, g, b := n.Encoded(x, y)
			row[x*4] = toByte(r)
			row[x*4+1] = toByte(g)
			row[x*4+2] = toByte(b)
			row[x*4+3] = 0xff
		}
	}
	return img
}

// DepthMap is a grayscale relief proxy with values in [0,1]
type DepthMap struct {
	Width  int
	Height int
	Pix    []float32
}

// At returns the depth at (x, y)
func (d *DepthMap) At(x, y int) float32 {
	return d.Pix[y*d.Width+x]
}

// Field exposes the depth map as a gradient field for statistics
func (d *DepthMap) Field() *gradient.Field {
	return &gradient.Field{Width: d.Width, Height: d.Height, Data: d.Pix}
}

// Image encodes the depth map as an 8-bit grayscale raster
func (d *DepthMap) Image() *image.Gray {
	img := image.NewGray(image.Rect(0, 0, d.Width, d.Height))
	for y := 0; y < d.Height; y++ {
		for x := 0; x < d.Width; x++ {
			img.SetGray(x, y, color.Gray{Y: toByte(d.At(x, y))})
		}
	}
	return img
}

func toByte(v float32) uint8 {
	return uint8(clamp01(float64(v)) * 255)
}

func clamp01(v float64) float64 {
	return min(max(v, 0), 1)
}

// Synthesize computes the normal map of img from its luminance gradients and
// derives the depth map from the luminance of the encoded normals.
//
// Each normal is (-scale*dx, scale*dy, 1) normalized to unit length, with
// zero-length vectors mapped to (0,0,1). Components are then remapped from
// [-1,1] to [0,1] and clamped. The result is deterministic.
func Synthesize(img image.Image, opts Options) (*NormalMap, *DepthMap, error) {
	if err := raster.Validate(img); err != nil {
		return nil, nil, err
	}

	lum := gradient.Luminance(img)
	w, h := lum.Width, lum.Height

	normals := &NormalMap{Width: w, Height: h, Pix: make([]float32, w*h*3)}
	depth := &DepthMap{Width: w, Height: h, Pix: make([]float32, w*h)}

	cores := opts.NumCores
	if cores < 1 {
		cores = runtime.NumCPU()
	}

	var g errgroup.Group
	for _, band := range splitRows(h, cores) {
		y0, y1 := band[0], band[1]
		g.Go(func() error {
			synthesizeRows(lum, normals, depth, opts, y0, y1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	return normals, depth, nil
}

// synthesizeRows fills rows [y0, y1) of the normal and depth maps
func synthesizeRows(lum *gradient.Field, normals *NormalMap, depth *DepthMap, opts Options, y0, y1 int) {
	w := lum.Width
	v := make([]float64, 3)
	enc := make([]float64, 3)

	for y := y0; y < y1; y++ {
		for x := 0; x < w; x++ {
			dx := float64(lum.DX(x, y))
			dy := float64(lum.DY(x, y))

			v[0] = -opts.Scale * dx
			v[1] = opts.Scale * dy
			v[2] = 1

			if norm := floats.Norm(v, 2); norm == 0 {
				v[0], v[1], v[2] = 0, 0, 1
			} else {
				floats.Scale(1/norm, v)
			}

			if opts.InvertRed {
				v[0] = -v[0]
			}
			if opts.InvertGreen {
				v[1] = -v[1]
			}

			for c := range enc {
				enc[c] = clamp01((v[c] + 1) / 2)
			}

			i := y*w + x
			normals.Pix[i*3] = float32(enc[0])
			normals.Pix[i*3+1] = float32(enc[1])
			normals.Pix[i*3+2] = float32(enc[2])
			depth.Pix[i] = float32(clamp01(floats.Dot(enc, gradient.LumaWeights)))
		}
	}
}

// splitRows divides height rows into at most n contiguous [start, end) bands
func splitRows(height, n int) [][2]int {
	n = max(1, min(n, height))
	bands := make([][2]int, 0, n)
	step := (height + n - 1) / n
	for y := 0; y < height; y += step {
		bands = append(bands, [2]int{y, min(y+step, height)})
	}
	return bands
}
