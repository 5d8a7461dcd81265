package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"arttiler/pkg/pipeline"
	"arttiler/pkg/publish"
)

// processCommand creates the "process" command running the full pipeline
func (a *app) processCommand() *cobra.Command {
	var (
		opts      pipeline.Options
		doPublish bool
	)

	cmd := &cobra.Command{
		Use:   "process <image> <outdir>",
		Short: "Tile an artwork, derive its surface maps and write its manifest",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := loggerFromContext(ctx)
			opts.Source, opts.OutputDir = args[0], args[1]

			runner := pipeline.NewRunner(a.cfg, logger)
			if doPublish || a.cfg.Publish.Enabled {
				pub, err := publish.NewS3Publisher(ctx, a.cfg.Publish, logger)
				if err != nil {
					return fmt.Errorf("configure publishing: %w", err)
				}
				runner.Publisher = pub
			}

			prog := newProgress(logger)
			report, err := runner.Run(ctx, opts)
			if err != nil {
				return err
			}
			prog.done(fmt.Sprintf("Processed %s into %d files", opts.Source, len(report.Files)))
			fmt.Fprintln(cmd.OutOrStdout(), report.ManifestPath)
			return nil
		},
	}

	cmd.Flags().BoolVar(&opts.Slice, "slice", true, "tile the artwork and its maps")
	cmd.Flags().BoolVar(&opts.GenerateMaps, "maps", true, "derive normal and depth maps")
	cmd.Flags().BoolVar(&doPublish, "publish", false, "upload the output to the configured bucket")
	cmd.Flags().StringVar(&opts.Stem, "stem", "", "base output name (default: source file name)")
	cmd.Flags().StringVar(&opts.Name, "name", "", "catalog id recorded in the manifest")
	cmd.Flags().StringVar(&opts.IndexPath, "index", "", "catalog file updated when --name is set")
	cmd.Flags().Float64SliceVar(&opts.Dims, "dims", nil, "physical aspect written to the manifest, e.g. 0.73,0.92 (default 1,1)")

	return cmd
}
