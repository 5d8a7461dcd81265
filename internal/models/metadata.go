package models

import "strings"

// RasterInfo is the header information of a decoded raster
type RasterInfo struct {
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Channels int    `json:"channels"`
	Format   string `json:"format"`
}

// Metadata is the per-artwork description handed to the manifest writer.
//
// Slice is nil when the artwork was not tiled. Res always reports the true
// content size of the original raster.
type Metadata struct {
	// ID, Name and OriginURL identify catalogued artworks and are empty
	// for anonymous runs
	ID        string `json:"id,omitempty"`
	Name      string `json:"name,omitempty"`
	OriginURL string `json:"og_url,omitempty"`

	// Dims is the physical aspect of the artwork in viewer units
	Dims []float64 `json:"dims,omitempty"`

	Slice        *SliceGrid `json:"slice,omitempty"`
	Res          [2]int     `json:"res"`
	URL          string     `json:"url,omitempty"`
	NormalMapURL string     `json:"normal_map_url,omitempty"`
	DepthMapURL  string     `json:"depth_map_url,omitempty"`
}

// ExpandURL substitutes the slice placeholder of template for the tile at
// (x, y). Untiled metadata expands to the bare template.
func (m Metadata) ExpandURL(template string, x, y int) string {
	suffix := ""
	if m.Slice != nil && !m.Slice.Single() {
		suffix = SliceName(x, y)
	}
	return strings.ReplaceAll(template, SlicePlaceholder, suffix)
}

// URLTemplate builds a template from a directory, stem and extension
func URLTemplate(dir, stem, ext string) string {
	ext = strings.TrimPrefix(ext, ".")
	dir = strings.TrimSuffix(dir, "/")
	if dir == "" {
		return stem + SlicePlaceholder + "." + ext
	}
	return dir + "/" + stem + SlicePlaceholder + "." + ext
}
