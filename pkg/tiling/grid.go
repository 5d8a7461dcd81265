// Package tiling partitions rasters into a bounded grid of independently
// encoded tiles and describes the grid for reassembly by a viewer.
package tiling

import (
	"image"

	"arttiler/internal/models"
)

// ComputeGrid partitions a width x height raster into cells no larger than
// maxTileDim on either axis.
//
// The final column and row hold the remainder. When a dimension divides
// evenly the last cell is a full cell, never a zero-width one.
func ComputeGrid(width, height, maxTileDim int) models.SliceGrid {
	fullW := min(width, maxTileDim)
	fullH := min(height, maxTileDim)

	lastW := width % fullW
	if lastW == 0 {
		lastW = fullW
	}
	lastH := height % fullH
	if lastH == 0 {
		lastH = fullH
	}

	return models.SliceGrid{
		NumX:           (width + fullW - 1) / fullW,
		NumY:           (height + fullH - 1) / fullH,
		FullCellWidth:  fullW,
		FullCellHeight: fullH,
		LastXWidth:     lastW,
		LastYHeight:    lastH,
	}
}

// CellRect returns the source rectangle of grid cell (x, y), relative to the
// raster origin
func CellRect(g models.SliceGrid, x, y int) image.Rectangle {
	w := g.FullCellWidth
	if x == g.NumX-1 {
		w = g.LastXWidth
	}
	h := g.FullCellHeight
	if y == g.NumY-1 {
		h = g.LastYHeight
	}
	x0 := x * g.FullCellWidth
	y0 := y * g.FullCellHeight
	return image.Rect(x0, y0, x0+w, y0+h)
}

// Cells lists grid coordinates column by column
func Cells(g models.SliceGrid) []image.Point {
	cells := make([]image.Point, 0, g.Count())
	for x := 0; x < g.NumX; x++ {
		for y := 0; y < g.NumY; y++ {
			cells = append(cells, image.Pt(x, y))
		}
	}
	return cells
}
