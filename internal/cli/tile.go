package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"arttiler/pkg/tiling"
)

// tileCommand creates the "tile" command
func (a *app) tileCommand() *cobra.Command {
	var req tiling.Request

	cmd := &cobra.Command{
		Use:   "tile <image> <outdir>",
		Short: "Cut a raster into a grid of tiles",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := loggerFromContext(ctx)

			tiler, err := tiling.New(a.cfg, logger)
			if err != nil {
				return err
			}
			if req.Tier == "" {
				req.Tier = a.cfg.Output.OriginalTier
			}
			req.OutputDir = args[1]

			prog := newProgress(logger)
			result, err := tiler.TileFile(ctx, args[0], req)
			if err != nil {
				return err
			}
			prog.done(fmt.Sprintf("Wrote %d tiles (%dx%d grid, %dx%d)", len(result.Files), result.Grid.NumX, result.Grid.NumY, result.Res[0], result.Res[1]))

			for _, f := range result.Files {
				fmt.Fprintln(cmd.OutOrStdout(), f.Path)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&req.Tier, "quality", "", "quality tier (default: output.originalTier)")
	cmd.Flags().BoolVar(&req.FlattenSeams, "nice-seams", false, "paint tile borders mid-gray")
	cmd.Flags().StringVar(&req.Stem, "stem", "", "base output name (default: source file name)")

	return cmd
}
