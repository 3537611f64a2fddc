// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"esdata/internal/issue"
)

var errNotLoader = errors.New("not a data loader")

func newCompileCommand(app *App, rootFlags *rootFlagValues) *cobra.Command {
	return &cobra.Command{
		Use:   "compile <loader>",
		Short: "Print the module a data loader compiles to",
		Long: `Run one data loader and print the static module that replaces it.

The loader is bundled and executed exactly as during a build, so the output
shows the values a build would inline.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(cmd.Context(), app, rootFlags, args[0])
		},
	}
}

func runCompile(ctx context.Context, app *App, rootFlags *rootFlagValues, path string) error {
	s, err := app.newSession(ctx, rootFlags)
	if err != nil {
		return err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve %q: %w", path, err)
	}

	res, err := s.plugin.Load(ctx, abs)
	if err != nil {
		return &ExitError{Code: 1, Err: err}
	}
	if res == nil {
		return issue.NewErrorContext().
			WithOperation("compile data loader").
			WithResource(abs).
			WithIssue(issue.EntryNotFoundId).
			WithSuggestions(
				"Data loader names end in .data.js, .data.mjs, .data.cjs, .data.ts, .data.mts or .data.cts",
				"Check that the file is not matched by an ignore glob in esdata.cue",
			).
			Wrap(errNotLoader).
			BuildError()
	}

	fmt.Fprint(app.stdout, res.Code)
	return nil
}
