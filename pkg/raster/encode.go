package raster

import (
	"fmt"
	"image"
	"io"
	"os"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
)

// Format is an output container format.
type Format string

const (
	JPEG Format = "jpg"
	PNG  Format = "png"
)

// ParseFormat maps a configured format name to a Format.
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(name, ".")) {
	case "jpg", "jpeg":
		return JPEG, nil
	case "png":
		return PNG, nil
	}
	return "", ConfigError("format", name)
}

// Ext returns the file extension for f without the leading dot.
func (f Format) Ext() string { return string(f) }

// ContentType returns the MIME type for f.
func (f Format) ContentType() string {
	if f == PNG {
		return "image/png"
	}
	return "image/jpeg"
}

// Encode writes img to w. Quality applies to JPEG only.
func Encode(w io.Writer, img image.Image, format Format, quality int) error {
	switch format {
	case JPEG:
		return imaging.Encode(w, img, imaging.JPEG, imaging.JPEGQuality(quality))
	case PNG:
		return imaging.Encode(w, img, imaging.PNG)
	}
	return ConfigError("format", string(format))
}

// Save encodes img to path.
//
// The file is written under a unique temporary name in the same directory
// and renamed into place, so a failed write never leaves a truncated file at
// path. Any failure is reported as ErrEncode.
func Save(img image.Image, path string, format Format, quality int) (err error) {
	tmp := fmt.Sprintf("%s.%s.tmp", path, uuid.NewString())
	file, err := os.Create(tmp)
	if err != nil {
		return EncodeError(path, err)
	}
	defer func() {
		if err != nil {
			file.Close()
			os.Remove(tmp)
		}
	}()

	if err = Encode(file, img, format, quality); err != nil {
		return EncodeError(path, err)
	}
	if err = file.Close(); err != nil {
		return EncodeError(path, err)
	}
	if err = os.Rename(tmp, path); err != nil {
		return EncodeError(path, err)
	}
	return nil
}
