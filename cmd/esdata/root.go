// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"

	"esdata/internal/issue"
	"esdata/internal/loader"
)

var (
	// Version is the semantic version (set via -ldflags).
	Version = "dev"
	// Commit is the git commit hash (set via -ldflags).
	Commit = "unknown"
	// BuildDate is the build timestamp (set via -ldflags).
	BuildDate = "unknown"
)

// NewRootCommand creates the esdata command tree.
func NewRootCommand(app *App) *cobra.Command {
	root, _ := newRootCommand(app)
	return root
}

func newRootCommand(app *App) (*cobra.Command, *rootFlagValues) {
	flags := &rootFlagValues{}

	root := &cobra.Command{
		Use:   "esdata",
		Short: "Turn data loaders into static modules",
		Long: TitleStyle.Render("esdata") + SubtitleStyle.Render(" - Turn data loaders into static modules") + `

A data loader is a module named like posts.data.ts. esdata bundles and runs
each loader at build time and replaces it with a module that only exports
the JSON-safe values the loader produced.

` + SubtitleStyle.Render("Examples:") + `
  esdata build src/main.ts --outdir dist    Bundle an app, inlining loader data
  esdata compile src/posts.data.ts          Print the module a loader turns into
  esdata watch src/main.ts --outdir dist    Rebuild when loaders or their inputs change
  esdata config show                        Show the effective configuration`,
	}
	root.SetOut(app.stdout)
	root.SetErr(app.stderr)

	root.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "enable verbose output")
	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "config file (default is esdata.cue in the config or working directory)")

	root.AddCommand(
		newBuildCommand(app, flags),
		newCompileCommand(app, flags),
		newWatchCommand(app, flags),
		newConfigCommand(app, flags),
	)

	return root, flags
}

// getVersionString returns a formatted version string for display.
func getVersionString() string {
	if Version == "dev" {
		return "dev (built from source)"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate)
}

// Execute runs the CLI and exits with the command's status.
func Execute() {
	app := NewApp(Dependencies{})
	root, flags := newRootCommand(app)

	err := fang.Execute(
		context.Background(),
		root,
		fang.WithVersion(getVersionString()),
		fang.WithNotifySignal(os.Interrupt),
		fang.WithErrorHandler(newErrorHandler(flags)),
	)
	// Loaders interrupted by a signal leave their bundle dirs behind.
	loader.RemovePendingTempDirs()
	if err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		os.Exit(1)
	}
}

// newErrorHandler renders actionable errors with their suggestions, and the
// matching issue guide in verbose mode. Other errors use fang's styling.
func newErrorHandler(flags *rootFlagValues) fang.ErrorHandler {
	return func(w io.Writer, styles fang.Styles, err error) {
		var exitErr *ExitError
		if errors.As(err, &exitErr) && exitErr.Err == nil {
			return
		}
		var ae *issue.ActionableError
		if !errors.As(err, &ae) {
			fang.DefaultErrorHandler(w, styles, err)
			return
		}
		fmt.Fprintln(w, ErrorStyle.Render("Error: ")+formatErrorForDisplay(err, flags.verbose))
		if !flags.verbose {
			return
		}
		if guide := ae.Guide(); guide != nil {
			rendered, renderErr := guide.Render("auto")
			if renderErr != nil {
				slog.Warn("failed to render issue catalog entry", "issueID", guide.Id(), "error", renderErr)
				return
			}
			fmt.Fprint(w, rendered)
		}
	}
}

// formatErrorForDisplay formats an error for user display.
// If the error is an ActionableError, it uses the Format method.
// In verbose mode, shows the full error chain.
func formatErrorForDisplay(err error, verboseMode bool) string {
	var ae *issue.ActionableError
	if errors.As(err, &ae) {
		return ae.Format(verboseMode)
	}
	return err.Error()
}
