// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/spf13/cobra"

	"esdata/internal/watch"
)

func newWatchCommand(app *App, rootFlags *rootFlagValues) *cobra.Command {
	flags := &buildFlagValues{}
	var clearScreen bool
	cmd := &cobra.Command{
		Use:   "watch <entry>...",
		Short: "Rebuild when sources, data loaders or their dependencies change",
		Long: `Build once, then rebuild on every relevant change until interrupted.

Only the data loaders affected by a change are executed again: a loader
reruns when it, a module it imports, or a file matching one of its declared
dependency globs changes.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd.Context(), app, rootFlags, flags, clearScreen, args)
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&clearScreen, "clear-screen", false, "clear the terminal before each rebuild")
	return cmd
}

// runWatch sets up an incremental esbuild context and rebuilds it whenever
// the watcher reports changes. It blocks until the context is cancelled
// (e.g., Ctrl+C).
func runWatch(ctx context.Context, app *App, rootFlags *rootFlagValues, flags *buildFlagValues, clearScreen bool, entries []string) error {
	s, err := app.newSession(ctx, rootFlags)
	if err != nil {
		return err
	}
	opts, err := s.buildOptions(ctx, flags, entries)
	if err != nil {
		return err
	}
	debounce, err := s.cfg.Watch.DebounceDuration()
	if err != nil {
		return err
	}

	var bctx api.BuildContext
	rebuild := func() {
		start := time.Now()
		res := bctx.Rebuild()
		if len(res.Errors) > 0 {
			// Keep watching: the user may fix the error and save again.
			fmt.Fprintln(app.stderr, ErrorStyle.Render("Build failed: ")+formatErrorForDisplay(buildError(res.Errors), rootFlags.verbose))
			return
		}
		printWarnings(app.stderr, res.Warnings)
		fmt.Fprintf(app.stdout, "%s built in %s\n", SuccessStyle.Render("✓"), time.Since(start).Round(time.Millisecond))
	}

	w, err := watch.New(watch.Config{
		BaseDir:     s.cfg.Root,
		Ignore:      watchIgnores(s.cfg.Root, opts.Outdir, s.cfg.Watch.Ignore),
		Debounce:    debounce,
		ClearScreen: clearScreen,
		Stdout:      app.stdout,
		Logger:      s.logger,
		OnChange: func(_ context.Context, changed []string) error {
			invalidated := 0
			for _, file := range changed {
				invalidated += s.invalidate(file)
			}
			s.logger.Info("change detected", "files", len(changed), "loaders", invalidated)
			rebuild()
			return nil
		},
	})
	if err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}
	// Loads add their dependencies to the watcher from here on.
	s.plugin.ConfigureServer(w)

	var ctxErr *api.ContextError
	bctx, ctxErr = api.Context(opts)
	if ctxErr != nil {
		return &ExitError{Code: 1, Err: buildError(ctxErr.Errors)}
	}
	defer bctx.Dispose()

	rebuild()
	fmt.Fprintf(app.stdout, "\n%s Watching for changes (Ctrl+C to stop)...\n\n", PathStyle.Render("→"))

	return w.Run(ctx)
}

// watchIgnores adds the output directory to the configured ignores so that
// writing the bundle never triggers another build.
func watchIgnores(root, outdir string, configured []string) []string {
	ignore := slices.Clone(configured)
	rel, err := filepath.Rel(root, outdir)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return ignore
	}
	return append(ignore, filepath.ToSlash(rel)+"/**")
}
