package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"arttiler/pkg/raster"
	"arttiler/pkg/reconstruction"
)

// mapsCommand creates the "maps" command
func (a *app) mapsCommand() *cobra.Command {
	var (
		scale       float64
		invertRed   bool
		invertGreen bool
		lossless    bool
		stem        string
	)

	cmd := &cobra.Command{
		Use:   "maps <image> <outdir>",
		Short: "Derive normal and depth maps from a raster",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := loggerFromContext(ctx)
			cfg := a.cfg

			// Flags override the configuration only when given
			opts := reconstruction.Options{
				Scale:       cfg.Processing.NormalScale,
				InvertRed:   cfg.Processing.InvertRed,
				InvertGreen: cfg.Processing.InvertGreen,
				NumCores:    cfg.Processing.NumCores,
			}
			if cmd.Flags().Changed("scale") {
				opts.Scale = scale
			}
			if cmd.Flags().Changed("invert-red") {
				opts.InvertRed = invertRed
			}
			if cmd.Flags().Changed("invert-green") {
				opts.InvertGreen = invertGreen
			}

			tiers, err := cfg.TierTable()
			if err != nil {
				return err
			}
			preview, err := tiers.Lookup(cfg.Output.PreviewTier)
			if err != nil {
				return err
			}
			resampler, err := raster.NewResampler(cfg.Processing.Resampler)
			if err != nil {
				return err
			}

			rec := reconstruction.NewReconstructor(&reconstruction.Params{
				InputPath:   args[0],
				OutputDir:   args[1],
				Stem:        stem,
				Options:     opts,
				Lossless:    lossless,
				PreviewTier: preview,
				Resampler:   resampler,
				MaxPixels:   cfg.Processing.MaxPixels,
				Logger:      logger,
			})

			result, err := rec.Process(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), result.NormalPath)
			fmt.Fprintln(cmd.OutOrStdout(), result.DepthPath)
			return nil
		},
	}

	cmd.Flags().Float64Var(&scale, "scale", 0, "relief strength (default: processing.normalScale)")
	cmd.Flags().BoolVar(&invertRed, "invert-red", false, "negate the x component")
	cmd.Flags().BoolVar(&invertGreen, "invert-green", false, "negate the y component")
	cmd.Flags().BoolVar(&lossless, "lossless", false, "write full-resolution PNG maps")
	cmd.Flags().StringVar(&stem, "stem", "", "base output name (default: source file name)")

	return cmd
}
