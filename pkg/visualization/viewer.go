package visualization

import (
	"fmt"
	"image"
	"path/filepath"
	"strings"

	xdraw "golang.org/x/image/draw"

	"arttiler/internal/models"
	"arttiler/pkg/raster"
)

// Viewer reassembles a tile mosaic the way a zoomable web viewer does:
// each tile is placed at (x*full_cell_width, y*full_cell_height), with the
// last column and row using the last_* dimensions.
type Viewer struct {
	// grid is the partition the tiles were produced with
	grid models.SliceGrid

	// dir, stem and ext locate the tile files
	dir  string
	stem string
	ext  string
}

// NewViewer creates a viewer for the tiles of stem in dir
func NewViewer(grid models.SliceGrid, dir, stem, ext string) *Viewer {
	return &Viewer{
		grid: grid,
		dir:  dir,
		stem: stem,
		ext:  strings.TrimPrefix(ext, "."),
	}
}

// Grid returns the partition this viewer assembles
func (v *Viewer) Grid() models.SliceGrid {
	return v.grid
}

func (v *Viewer) checkCell(x, y int) error {
	if x < 0 || y < 0 || x >= v.grid.NumX || y >= v.grid.NumY {
		return fmt.Errorf("tile (%d,%d) outside %dx%d grid", x, y, v.grid.NumX, v.grid.NumY)
	}
	return nil
}

// TilePath returns the file holding tile (x, y)
func (v *Viewer) TilePath(x, y int) string {
	return filepath.Join(v.dir, models.TileName(v.stem, v.ext, x, y, v.grid.Single()))
}

// Origin returns the top-left corner of tile (x, y) in the mosaic
func (v *Viewer) Origin(x, y int) image.Point {
	return image.Pt(x*v.grid.FullCellWidth, y*v.grid.FullCellHeight)
}

// CellSize returns the mosaic area covered by tile (x, y)
func (v *Viewer) CellSize(x, y int) (width, height int) {
	width = v.grid.FullCellWidth
	if x == v.grid.NumX-1 {
		width = v.grid.LastXWidth
	}
	height = v.grid.FullCellHeight
	if y == v.grid.NumY-1 {
		height = v.grid.LastYHeight
	}
	return width, height
}

// ExtractTile loads the encoded tile at (x, y)
func (v *Viewer) ExtractTile(x, y int) (image.Image, error) {
	if err := v.checkCell(x, y); err != nil {
		return nil, err
	}
	img, _, err := raster.Load(v.TilePath(x, y), 0)
	return img, err
}

// Assemble loads every tile and draws it into a mosaic of the grid's
// reconstructed resolution. Tiles that a quality tier downscaled are scaled
// back up to their cell.
func (v *Viewer) Assemble() (*image.NRGBA, error) {
	res := v.grid.Res()
	if res[0] <= 0 || res[1] <= 0 {
		return nil, raster.DimensionError(res[0], res[1])
	}
	mosaic := image.NewNRGBA(image.Rect(0, 0, res[0], res[1]))

	for y := 0; y < v.grid.NumY; y++ {
		for x := 0; x < v.grid.NumX; x++ {
			tile, err := v.ExtractTile(x, y)
			if err != nil {
				return nil, fmt.Errorf("failed to load tile (%d,%d): %w", x, y, err)
			}

			w, h := v.CellSize(x, y)
			dst := image.Rectangle{Min: v.Origin(x, y), Max: v.Origin(x, y).Add(image.Pt(w, h))}
			tb := tile.Bounds()

			if tb.Dx() == w && tb.Dy() == h {
				xdraw.Copy(mosaic, dst.Min, tile, tb, xdraw.Src, nil)
			} else {
				xdraw.CatmullRom.Scale(mosaic, dst, tile, tb, xdraw.Src, nil)
			}
		}
	}

	return mosaic, nil
}

// SaveMosaic writes an assembled mosaic, choosing the format from the extension
func (v *Viewer) SaveMosaic(img image.Image, filename string) error {
	format, err := raster.ParseFormat(filepath.Ext(filename))
	if err != nil {
		return err
	}
	return raster.Save(img, filename, format, 95)
}
