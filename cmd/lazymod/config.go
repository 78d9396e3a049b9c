// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lazymod/lazymod/internal/config"
)

// newConfigCommand creates the `lazymod config` command tree.
func newConfigCommand(app *App, root *rootFlags) *cobra.Command {
	cfgCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect lazymod configuration",
		Long: `Inspect lazymod configuration.

Configuration is read from ` + config.ConfigFileName + ` in the project directory,
then overridden by ` + config.EnvPrefix + `_* environment variables.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration as CUE",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.loadConfig(cmd.Context(), root)
			if err != nil {
				return app.fail(err, root.verbose)
			}
			fmt.Fprint(app.stdout, config.GenerateCUE(cfg))
			return nil
		},
	})

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show the configuration file in use",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, path, err := app.Config.Locate(cmd.Context(), config.LoadOptions{
				ConfigFilePath: root.configPath,
				ProjectDir:     root.projectDir,
			})
			if err != nil {
				return app.fail(err, root.verbose)
			}
			if path == "" {
				fmt.Fprintln(app.stdout, SubtitleStyle.Render("(defaults, no "+config.ConfigFileName+" found)"))
				return nil
			}
			fmt.Fprintln(app.stdout, path)
			return nil
		},
	})

	return cfgCmd
}
