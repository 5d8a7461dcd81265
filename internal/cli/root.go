package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"arttiler/pkg/config"
)

var (
	version = "dev"
	commit  string
	date    string
)

// SetVersion sets the build information shown by --version.
// It is called from main with values injected through ldflags.
func SetVersion(v, c, d string) {
	version = v
	commit = c
	date = d
}

// app holds the state shared by every command of one invocation
type app struct {
	configPath string
	verbose    bool
	cfg        *config.Config
	stderr     io.Writer
}

// Execute runs the arttiler CLI with ctx, which is cancelled on interrupt
func Execute(ctx context.Context) error {
	return newRootCmd(os.Stderr).ExecuteContext(ctx)
}

func newRootCmd(stderr io.Writer) *cobra.Command {
	a := &app{stderr: stderr}

	root := &cobra.Command{
		Use:           "arttiler",
		Short:         "Tile artwork and derive surface maps for web viewers",
		Long:          `arttiler turns artwork rasters into grids of web-sized tiles, synthesizes normal and depth maps from image luminance, and writes the JSON metadata a viewer needs to reassemble them.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := log.InfoLevel
			if a.verbose {
				level = log.DebugLevel
			}
			logger := newLogger(a.stderr, level)
			cmd.SetContext(withLogger(cmd.Context(), logger))

			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			a.cfg = cfg
			logger.Debug("configuration loaded", "path", a.configPath, "cores", cfg.Processing.NumCores, "max_tile_dim", cfg.Tiling.MaxTileDim)
			return nil
		},
	}

	root.SetVersionTemplate(fmt.Sprintf("arttiler %s\ncommit: %s\nbuilt: %s\n", version, commit, date))
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "enable verbose logging")
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "YAML or TOML configuration file")

	root.AddCommand(a.processCommand())
	root.AddCommand(a.tileCommand())
	root.AddCommand(a.mapsCommand())
	root.AddCommand(a.assembleCommand())
	root.AddCommand(a.configCommand())

	return root
}

// loadConfig reads the --config file, or returns defaults when none is given
func (a *app) loadConfig() (*config.Config, error) {
	if a.configPath == "" {
		return config.DefaultConfig(), nil
	}
	if _, err := os.Stat(a.configPath); err != nil {
		return nil, fmt.Errorf("config file: %w", err)
	}
	return config.LoadConfig(a.configPath)
}
