// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"esdata/internal/config"
)

func newConfigCommand(app *App, rootFlags *rootFlagValues) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and create the esdata configuration",
	}
	cmd.AddCommand(
		newConfigShowCommand(app, rootFlags),
		newConfigInitCommand(app),
		newConfigPathCommand(app, rootFlags),
	)
	return cmd
}

func newConfigShowCommand(app *App, rootFlags *rootFlagValues) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := app.loadConfig(cmd.Context(), rootFlags)
			if err != nil {
				return err
			}

			source := SubtitleStyle.Render("(using defaults)")
			if cfg.Path != "" {
				source = PathStyle.Render(cfg.Path)
			}
			fmt.Fprintln(app.stdout, TitleStyle.Render("Configuration")+" "+source)
			fmt.Fprintln(app.stdout)
			fmt.Fprint(app.stdout, config.GenerateCUE(cfg))
			return nil
		},
	}
}

func newConfigInitCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "init [dir]",
		Short: "Write a default esdata.cue",
		Long: `Write a default esdata.cue into dir (the working directory by default).
An existing file is left untouched.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			abs, err := filepath.Abs(dir)
			if err != nil {
				return fmt.Errorf("resolve %q: %w", dir, err)
			}

			existed := false
			if _, statErr := os.Stat(filepath.Join(abs, config.FileName())); statErr == nil {
				existed = true
			}
			path, err := config.CreateDefaultConfig(abs)
			if err != nil {
				return err
			}
			if existed {
				fmt.Fprintf(app.stdout, "%s %s already exists\n", WarningStyle.Render("!"), PathStyle.Render(path))
				return nil
			}
			fmt.Fprintf(app.stdout, "%s Created %s\n", SuccessStyle.Render("✓"), PathStyle.Render(path))
			return nil
		},
	}
}

func newConfigPathCommand(app *App, rootFlags *rootFlagValues) *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the path of the configuration file in use",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := app.loadConfig(cmd.Context(), rootFlags)
			if err != nil {
				return err
			}
			if cfg.Path != "" {
				fmt.Fprintln(app.stdout, cfg.Path)
				return nil
			}

			// No file loaded: show where the user-level one would go.
			dir, err := config.ConfigDir()
			if err != nil {
				return err
			}
			fmt.Fprintln(app.stdout, filepath.Join(dir, config.FileName())+" "+SubtitleStyle.Render("(not found)"))
			return nil
		},
	}
}
