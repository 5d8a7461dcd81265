package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"arttiler/pkg/raster"
)

// SourceFetcher materializes an artwork identifier as a local file
type SourceFetcher interface {
	// Fetch places the source named by identifier in destDir and returns
	// the path of the local copy
	Fetch(ctx context.Context, identifier, destDir string) (string, error)
}

// LocalFetcher copies files from the local filesystem
type LocalFetcher struct{}

// Fetch copies the file at identifier into destDir, keeping its base name
func (LocalFetcher) Fetch(ctx context.Context, identifier, destDir string) (string, error) {
	if strings.Contains(identifier, "://") {
		return "", raster.ConfigError("source", identifier)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	dst := filepath.Join(destDir, filepath.Base(identifier))
	if err := copyFile(identifier, dst); err != nil {
		return "", fmt.Errorf("failed to fetch %s: %w", identifier, err)
	}
	return dst, nil
}

// copyFile copies src to dst, replacing dst if it exists
func copyFile(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			os.Remove(dst)
		}
	}()

	_, err = io.Copy(out, in)
	return err
}
