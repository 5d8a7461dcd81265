package reconstruction

import (
	"context"
	"errors"
	"image"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/charmbracelet/log"

	"arttiler/pkg/config"
	"arttiler/pkg/raster"
)

// createTestImage creates an RGB test image with the specified dimensions and pattern
func createTestImage(width, height int, pattern func(x, y int) color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetNRGBA(x, y, pattern(x, y))
		}
	}
	return img
}

// ripple is a pattern with gradients in both directions
func ripple(x, y int) color.NRGBA {
	v := 127 + 120*math.Sin(float64(x)/3)*math.Cos(float64(y)/5)
	return color.NRGBA{R: uint8(v), G: uint8(255 - v), B: uint8((x * y) % 256), A: 255}
}

func testLogger() *log.Logger {
	return log.New(os.Stderr)
}

// TestNormalVectorsAreUnitLength verifies every decoded normal has unit norm
func TestNormalVectorsAreUnitLength(t *testing.T) {
	img := createTestImage(48, 32, ripple)

	normals, depth, err := Synthesize(img, Options{Scale: 0.08, NumCores: 3})
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}

	if normals.Width != 48 || normals.Height != 32 || depth.Width != 48 || depth.Height != 32 {
		t.Fatalf("Maps must match source dimensions")
	}

	for y := 0; y < normals.Height; y++ {
		for x := 0; x < normals.Width; x++ {
			v := normals.Vector(x, y)
			norm := math.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
			if math.Abs(norm-1) > 1e-3 {
				t.Fatalf("Normal at (%d,%d) has norm %f", x, y, norm)
			}
			if v[2] <= 0 {
				t.Fatalf("Normal at (%d,%d) has non-positive z %f", x, y, v[2])
			}
			r, g, b := normals.Encoded(x, y)
			for _, c := range []float32{r, g, b} {
				if c < 0 || c > 1 {
					t.Fatalf("Encoded component %f out of range at (%d,%d)", c, x, y)
				}
			}
		}
	}
}

// TestSynthesizeIsDeterministic verifies bit-identical output across runs and core counts
func TestSynthesizeIsDeterministic(t *testing.T) {
	img := createTestImage(33, 17, ripple)

	first, firstDepth, err := Synthesize(img, Options{Scale: 0.08, NumCores: 1})
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	second, secondDepth, err := Synthesize(img, Options{Scale: 0.08, NumCores: 8})
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}

	for i := range first.Pix {
		if first.Pix[i] != second.Pix[i] {
			t.Fatalf("Normal sample %d differs: %v vs %v", i, first.Pix[i], second.Pix[i])
		}
	}
	for i := range firstDepth.Pix {
		if firstDepth.Pix[i] != secondDepth.Pix[i] {
			t.Fatalf("Depth sample %d differs", i)
		}
	}
}

// TestFlatImageFacesViewer verifies that flat regions and zero scale give (0,0,1)
func TestFlatImageFacesViewer(t *testing.T) {
	flat := createTestImage(8, 8, func(x, y int) color.NRGBA {
		return color.NRGBA{R: 90, G: 90, B: 90, A: 255}
	})

	for _, tc := range []struct {
		name  string
		img   image.Image
		scale float64
	}{
		{"flat", flat, 0.08},
		{"zero scale", createTestImage(8, 8, ripple), 0},
	} {
		normals, depth, err := Synthesize(tc.img, Options{Scale: tc.scale})
		if err != nil {
			t.Fatalf("%s: Synthesize failed: %v", tc.name, err)
		}
		r, g, b := normals.Encoded(4, 4)
		if r != 0.5 || g != 0.5 || b != 1 {
			t.Errorf("%s: expected encoded (0.5,0.5,1), got (%f,%f,%f)", tc.name, r, g, b)
		}
		// Depth is the luminance of the encoded normal
		want := 0.299*0.5 + 0.587*0.5 + 0.114*1
		if math.Abs(float64(depth.At(4, 4))-want) > 1e-6 {
			t.Errorf("%s: expected depth %f, got %f", tc.name, want, depth.At(4, 4))
		}
	}
}

// TestNormalDirection verifies the sign convention on a left-to-right ramp
func TestNormalDirection(t *testing.T) {
	ramp := createTestImage(10, 4, func(x, y int) color.NRGBA {
		v := uint8(x * 20)
		return color.NRGBA{R: v, G: v, B: v, A: 255}
	})

	normals, _, err := Synthesize(ramp, Options{Scale: 0.08})
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	// dx = L(x-1) - L(x+1) is negative on a rising ramp, so x = -scale*dx > 0
	if v := normals.Vector(5, 2); v[0] <= 0 || math.Abs(v[1]) > 1e-6 {
		t.Errorf("Expected positive x and zero y, got %v", v)
	}

	inverted, _, err := Synthesize(ramp, Options{Scale: 0.08, InvertRed: true, InvertGreen: true})
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	a, b := normals.Vector(5, 2), inverted.Vector(5, 2)
	if math.Abs(a[0]+b[0]) > 1e-6 || math.Abs(a[2]-b[2]) > 1e-6 {
		t.Errorf("InvertRed should negate x only: %v vs %v", a, b)
	}
}

// TestSynthesizeRejectsEmptyRaster verifies the dimension check
func TestSynthesizeRejectsEmptyRaster(t *testing.T) {
	_, _, err := Synthesize(image.NewNRGBA(image.Rect(0, 0, 0, 10)), Options{Scale: 0.08})
	if !errors.Is(err, raster.ErrDimension) {
		t.Errorf("Expected ErrDimension, got %v", err)
	}
}

// TestSplitRows verifies that bands cover every row exactly once
func TestSplitRows(t *testing.T) {
	for _, tc := range []struct{ height, n int }{{10, 3}, {1, 8}, {7, 7}, {100, 1}} {
		covered := make([]int, tc.height)
		for _, band := range splitRows(tc.height, tc.n) {
			for y := band[0]; y < band[1]; y++ {
				covered[y]++
			}
		}
		for y, c := range covered {
			if c != 1 {
				t.Errorf("height=%d n=%d: row %d covered %d times", tc.height, tc.n, y, c)
			}
		}
	}
}

// TestReconstructorProcess runs the full reconstruction against files on disk
func TestReconstructorProcess(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "texture.png")
	if err := raster.Save(createTestImage(64, 40, ripple), input, raster.PNG, 0); err != nil {
		t.Fatalf("Failed to write input: %v", err)
	}

	t.Run("Lossless", func(t *testing.T) {
		out := filepath.Join(dir, "lossless")
		result, err := NewReconstructor(&Params{
			InputPath: input,
			OutputDir: out,
			Options:   Options{Scale: 0.08, NumCores: 2},
			Lossless:  true,
			Logger:    testLogger(),
		}).Process(context.Background())
		if err != nil {
			t.Fatalf("Process failed: %v", err)
		}

		if filepath.Base(result.NormalPath) != "texture@normal.png" {
			t.Errorf("Unexpected normal path %s", result.NormalPath)
		}
		if filepath.Base(result.DepthPath) != "texture@depth.png" {
			t.Errorf("Unexpected depth path %s", result.DepthPath)
		}

		img, _, err := raster.Load(result.DepthPath, 0)
		if err != nil {
			t.Fatalf("Failed to load depth map: %v", err)
		}
		if img.Bounds().Dx() != 64 || img.Bounds().Dy() != 40 {
			t.Errorf("Depth map has wrong size %v", img.Bounds())
		}
		if result.DepthMean <= 0 || result.DepthMean >= 1 {
			t.Errorf("Depth mean %f out of range", result.DepthMean)
		}
	})

	t.Run("Preview", func(t *testing.T) {
		out := filepath.Join(dir, "preview")
		result, err := NewReconstructor(&Params{
			InputPath:   input,
			OutputDir:   out,
			Stem:        "art",
			Options:     Options{Scale: 0.08},
			PreviewTier: config.Tier{Format: "jpg", Quality: 80, MaxOutputDim: 32},
			Logger:      testLogger(),
		}).Process(context.Background())
		if err != nil {
			t.Fatalf("Process failed: %v", err)
		}

		if filepath.Base(result.NormalPath) != "art@normal.jpg" {
			t.Errorf("Unexpected normal path %s", result.NormalPath)
		}
		img, _, err := raster.Load(result.NormalPath, 0)
		if err != nil {
			t.Fatalf("Failed to load normal map: %v", err)
		}
		if img.Bounds().Dx() != 32 || img.Bounds().Dy() != 20 {
			t.Errorf("Expected preview downscaled to 32x20, got %v", img.Bounds())
		}
	})

	t.Run("CorruptInput", func(t *testing.T) {
		bad := filepath.Join(dir, "bad.png")
		if err := os.WriteFile(bad, []byte{0x89, 'P', 'N', 'G'}, 0644); err != nil {
			t.Fatalf("Failed to write input: %v", err)
		}
		_, err := NewReconstructor(&Params{InputPath: bad, OutputDir: dir, Logger: testLogger()}).Process(context.Background())
		if !errors.Is(err, raster.ErrDecode) {
			t.Errorf("Expected ErrDecode, got %v", err)
		}
	})
}
