package raster

import (
	"errors"
	"fmt"
)

// Sentinel errors for raster processing. Every error returned by this module's
// image components matches exactly one of these through errors.Is.
var (
	// ErrDecode is returned when an input raster is unreadable or corrupt.
	ErrDecode = errors.New("decode error")

	// ErrDimension is returned for zero or otherwise invalid dimensions.
	ErrDimension = errors.New("dimension error")

	// ErrConfig is returned for unknown quality tiers, formats or resamplers.
	ErrConfig = errors.New("config error")

	// ErrEncode is returned when an output file cannot be written.
	ErrEncode = errors.New("encode error")

	// ErrResource is returned when a raster exceeds the configured pixel budget.
	ErrResource = errors.New("resource error")
)

// Error records the operation and path that failed along with its kind.
type Error struct {
	Kind error
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Kind.Error()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Path != "" {
		msg += " " + e.Path
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// Is matches the error kind.
func (e *Error) Is(target error) bool { return e.Kind == target }

func newError(kind error, op, path string, err error) error {
	return &Error{Kind: kind, Op: op, Path: path, Err: err}
}

// DecodeError wraps err as an ErrDecode for path.
func DecodeError(path string, err error) error {
	return newError(ErrDecode, "decode", path, err)
}

// EncodeError wraps err as an ErrEncode for path.
func EncodeError(path string, err error) error {
	return newError(ErrEncode, "encode", path, err)
}

// DimensionError reports invalid raster dimensions.
func DimensionError(width, height int) error {
	return newError(ErrDimension, "validate", "", fmt.Errorf("invalid dimensions %dx%d", width, height))
}

// ConfigError reports an unknown configuration value.
func ConfigError(what, name string) error {
	return newError(ErrConfig, "lookup", "", fmt.Errorf("unknown %s %q", what, name))
}

// ResourceError reports a raster larger than the pixel budget.
func ResourceError(path string, pixels, limit int64) error {
	return newError(ErrResource, "load", path, fmt.Errorf("%d pixels exceeds limit of %d", pixels, limit))
}
