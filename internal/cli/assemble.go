package cli

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"arttiler/internal/models"
	"arttiler/pkg/pipeline"
	"arttiler/pkg/visualization"
)

// assembleCommand creates the "assemble" command, which rebuilds a raster
// from the tiles described by a manifest
func (a *app) assembleCommand() *cobra.Command {
	var asset string

	cmd := &cobra.Command{
		Use:   "assemble <outdir> <stem> <out.png>",
		Short: "Reassemble tiles into a single raster using the manifest",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := loggerFromContext(cmd.Context())
			dir, stem, out := args[0], args[1], args[2]

			meta, err := pipeline.ReadManifest(filepath.Join(dir, stem+".json"))
			if err != nil {
				return err
			}
			if meta.Slice == nil {
				return fmt.Errorf("%s was not tiled", stem)
			}

			template, tileStem, err := assetTemplate(meta, stem, asset)
			if err != nil {
				return err
			}
			ext := strings.TrimPrefix(filepath.Ext(template), ".")

			prog := newProgress(logger)
			viewer := visualization.NewViewer(*meta.Slice, dir, tileStem, ext)
			img, err := viewer.Assemble()
			if err != nil {
				return err
			}
			if err := viewer.SaveMosaic(img, out); err != nil {
				return err
			}
			b := img.Bounds()
			prog.done(fmt.Sprintf("Assembled %d tiles into %s (%dx%d)", meta.Slice.Count(), out, b.Dx(), b.Dy()))
			return nil
		},
	}

	cmd.Flags().StringVar(&asset, "asset", "original", "asset to assemble: original, normal or depth")

	return cmd
}

// assetTemplate returns the URL template and tile stem of the named asset
func assetTemplate(meta *models.Metadata, stem, asset string) (string, string, error) {
	var template, suffix string
	switch asset {
	case "original", "":
		template = meta.URL
	case "normal":
		template, suffix = meta.NormalMapURL, "@normal"
	case "depth":
		template, suffix = meta.DepthMapURL, "@depth"
	default:
		return "", "", fmt.Errorf("unknown asset %q", asset)
	}
	if template == "" {
		return "", "", fmt.Errorf("manifest has no %s asset", asset)
	}
	return template, stem + suffix, nil
}
