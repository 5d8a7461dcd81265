package models

import (
	"fmt"
	"strings"
)

// SlicePlaceholder is substituted per tile by consumers of URL templates.
const SlicePlaceholder = "{SLICE}"

// SliceGrid describes how a raster was partitioned into tiles
type SliceGrid struct {
	// NumX and NumY are the tile counts along each axis (always >= 1)
	NumX int `json:"num_x"`
	NumY int `json:"num_y"`

	// FullCellWidth and FullCellHeight are the sizes of every non-edge tile
	FullCellWidth  int `json:"full_cell_width"`
	FullCellHeight int `json:"full_cell_height"`

	// LastXWidth and LastYHeight are the sizes of the final column and row.
	// They equal the full cell size when the raster divides evenly.
	LastXWidth  int `json:"last_x_width"`
	LastYHeight int `json:"last_y_height"`
}

// Res returns the total reconstructed [width, height] of the grid
func (g SliceGrid) Res() [2]int {
	return [2]int{
		(g.NumX-1)*g.FullCellWidth + g.LastXWidth,
		(g.NumY-1)*g.FullCellHeight + g.LastYHeight,
	}
}

// Count returns the number of tiles in the grid
func (g SliceGrid) Count() int {
	return g.NumX * g.NumY
}

// Single reports whether the grid describes an untiled image
func (g SliceGrid) Single() bool {
	return g.NumX == 1 && g.NumY == 1
}

// TileFile is one encoded tile written to disk
type TileFile struct {
	// Path is the location of the encoded file
	Path string `json:"path"`

	// X and Y are the column and row of the tile in its grid
	X int `json:"x"`
	Y int `json:"y"`

	// Width and Height are the pixel dimensions of the encoded file,
	// which are smaller than the cell when the tier downscaled it
	Width  int `json:"width"`
	Height int `json:"height"`
}

// SliceName returns the coordinate suffix used in grid tile file names
func SliceName(x, y int) string {
	return fmt.Sprintf("(%d,%d)", x, y)
}

// TileName returns the file name for a tile. Single-tile images carry no
// coordinate suffix.
func TileName(stem, ext string, x, y int, single bool) string {
	ext = strings.TrimPrefix(ext, ".")
	if single {
		return stem + "." + ext
	}
	return stem + SliceName(x, y) + "." + ext
}
