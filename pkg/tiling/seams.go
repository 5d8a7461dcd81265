package tiling

import (
	"image"
	"image/color"
)

// SeamGray is written over tile borders when seams are flattened
var SeamGray = color.NRGBA{R: 127, G: 127, B: 127, A: 255}

// FlattenSeams overwrites the outermost one-pixel ring of tile with SeamGray.
// The tile is modified in place and must be a private copy.
func FlattenSeams(tile *image.NRGBA) {
	b := tile.Bounds()
	if b.Empty() {
		return
	}
	for x := b.Min.X; x < b.Max.X; x++ {
		tile.SetNRGBA(x, b.Min.Y, SeamGray)
		tile.SetNRGBA(x, b.Max.Y-1, SeamGray)
	}
	for y := b.Min.Y; y < b.Max.Y; y++ {
		tile.SetNRGBA(b.Min.X, y, SeamGray)
		tile.SetNRGBA(b.Max.X-1, y, SeamGray)
	}
}
