package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"arttiler/pkg/config"
)

// configCommand creates the "config" command group
func (a *app) configCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration files",
	}
	cmd.AddCommand(a.configInitCommand())
	return cmd
}

// configInitCommand creates the "config init" subcommand
func (a *app) configInitCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init <path>",
		Short: "Write the default configuration (.yaml or .toml)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := config.CreateDefaultConfigFile(path); err != nil {
				return err
			}
			loggerFromContext(cmd.Context()).Info("wrote default configuration", "path", path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")

	return cmd
}
