// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/spf13/cobra"

	"esdata/internal/issue"
)

// buildFlagValues holds the flags shared by build and watch.
type buildFlagValues struct {
	outdir    string
	format    string
	platform  string
	minify    bool
	sourcemap bool
}

func (f *buildFlagValues) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.outdir, "outdir", "o", "dist", "output directory")
	cmd.Flags().StringVar(&f.format, "format", "esm", "output format (esm, cjs, iife)")
	cmd.Flags().StringVar(&f.platform, "platform", "browser", "target platform (browser, node, neutral)")
	cmd.Flags().BoolVar(&f.minify, "minify", false, "minify the output")
	cmd.Flags().BoolVar(&f.sourcemap, "sourcemap", false, "write linked source maps")
}

func newBuildCommand(app *App, rootFlags *rootFlagValues) *cobra.Command {
	flags := &buildFlagValues{}
	cmd := &cobra.Command{
		Use:   "build <entry>...",
		Short: "Bundle entry points, inlining data loader output",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuild(cmd.Context(), app, rootFlags, flags, args)
		},
	}
	flags.register(cmd)
	return cmd
}

func runBuild(ctx context.Context, app *App, rootFlags *rootFlagValues, flags *buildFlagValues, entries []string) error {
	s, err := app.newSession(ctx, rootFlags)
	if err != nil {
		return err
	}
	opts, err := s.buildOptions(ctx, flags, entries)
	if err != nil {
		return err
	}

	res := api.Build(opts)
	if len(res.Errors) > 0 {
		return &ExitError{Code: 1, Err: buildError(res.Errors)}
	}
	printWarnings(app.stderr, res.Warnings)
	printOutputs(app.stdout, s.cfg.Root, res.OutputFiles)
	return nil
}

// buildOptions describes the host build: the user's entry points bundled
// with the data loader plugin in place.
func (s *session) buildOptions(ctx context.Context, flags *buildFlagValues, entries []string) (api.BuildOptions, error) {
	format, err := parseFormat(flags.format)
	if err != nil {
		return api.BuildOptions{}, err
	}
	platform, err := parsePlatform(flags.platform)
	if err != nil {
		return api.BuildOptions{}, err
	}
	points, err := resolveEntries(entries)
	if err != nil {
		return api.BuildOptions{}, err
	}
	outdir, err := filepath.Abs(flags.outdir)
	if err != nil {
		return api.BuildOptions{}, fmt.Errorf("resolve outdir: %w", err)
	}

	opts := api.BuildOptions{
		EntryPoints:       points,
		AbsWorkingDir:     s.cfg.Root,
		Outdir:            outdir,
		Bundle:            true,
		Write:             true,
		Format:            format,
		Platform:          platform,
		MinifyWhitespace:  flags.minify,
		MinifyIdentifiers: flags.minify,
		MinifySyntax:      flags.minify,
		Alias:             s.cfg.Alias,
		Tsconfig:          s.cfg.Tsconfig,
		LogLevel:          api.LogLevelSilent,
		Plugins:           []api.Plugin{s.plugin.ESBuild(ctx, s.graph)},
	}
	if flags.sourcemap {
		opts.Sourcemap = api.SourceMapLinked
	}
	return opts, nil
}

func parseFormat(s string) (api.Format, error) {
	switch s {
	case "esm":
		return api.FormatESModule, nil
	case "cjs":
		return api.FormatCommonJS, nil
	case "iife":
		return api.FormatIIFE, nil
	default:
		return api.FormatDefault, fmt.Errorf("invalid argument %q for --format: want esm, cjs or iife", s)
	}
}

func parsePlatform(s string) (api.Platform, error) {
	switch s {
	case "browser":
		return api.PlatformBrowser, nil
	case "node":
		return api.PlatformNode, nil
	case "neutral":
		return api.PlatformNeutral, nil
	default:
		return api.PlatformBrowser, fmt.Errorf("invalid argument %q for --platform: want browser, node or neutral", s)
	}
}

// resolveEntries makes entry points absolute and checks that they exist.
func resolveEntries(entries []string) ([]string, error) {
	points := make([]string, 0, len(entries))
	for _, entry := range entries {
		abs, err := filepath.Abs(entry)
		if err != nil {
			return nil, fmt.Errorf("resolve entry %q: %w", entry, err)
		}
		if _, statErr := os.Stat(abs); statErr != nil {
			return nil, issue.NewErrorContext().
				WithOperation("build").
				WithResource(abs).
				WithIssue(issue.EntryNotFoundId).
				WithSuggestions(
					"Check the entry point path",
					"Relative entry points resolve against the working directory",
				).
				Wrap(statErr).
				BuildError()
		}
		points = append(points, abs)
	}
	return points, nil
}

// buildError prefers the actionable error a data loader failed with; esbuild
// keeps the plugin's error in Message.Detail.
func buildError(msgs []api.Message) error {
	for _, msg := range msgs {
		if err, ok := msg.Detail.(error); ok {
			var ae *issue.ActionableError
			if errors.As(err, &ae) {
				return ae
			}
		}
	}
	formatted := api.FormatMessages(msgs, api.FormatMessagesOptions{Kind: api.ErrorMessage})
	return fmt.Errorf("build failed with %d error(s):\n%s", len(msgs), strings.Join(formatted, ""))
}

func printWarnings(w io.Writer, msgs []api.Message) {
	if len(msgs) == 0 {
		return
	}
	for _, line := range api.FormatMessages(msgs, api.FormatMessagesOptions{Kind: api.WarningMessage}) {
		fmt.Fprint(w, WarningStyle.Render(line))
	}
}

func printOutputs(w io.Writer, root string, files []api.OutputFile) {
	for _, f := range files {
		path := f.Path
		if rel, err := filepath.Rel(root, path); err == nil && !strings.HasPrefix(rel, "..") {
			path = rel
		}
		fmt.Fprintf(w, "  %s %s\n", PathStyle.Render(path), SubtitleStyle.Render(formatSize(len(f.Contents))))
	}
}

func formatSize(n int) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1fmb", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1fkb", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%db", n)
	}
}
