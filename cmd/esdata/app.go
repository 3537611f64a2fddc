// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/charmbracelet/log"

	"esdata/internal/commentconfig"
	"esdata/internal/config"
	"esdata/internal/loader"
	"esdata/internal/plugin"
)

type (
	// App wires CLI services and shared dependencies. It is the composition
	// root for the CLI layer: every Cobra command handler receives an App.
	App struct {
		Config config.Provider
		stdout io.Writer
		stderr io.Writer
	}

	// Dependencies defines the injection points for building an App. Nil
	// fields are replaced with production defaults by NewApp.
	Dependencies struct {
		Config config.Provider
		Stdout io.Writer
		Stderr io.Writer
	}

	// rootFlagValues holds the persistent flags shared by every subcommand.
	rootFlagValues struct {
		configPath string
		verbose    bool
	}

	// session is one configured plugin together with the module graph esbuild
	// loads through it.
	session struct {
		cfg    *config.Config
		plugin *plugin.Plugin
		graph  *plugin.ModuleGraph
		logger *slog.Logger
	}
)

// NewApp creates an App with defaults for omitted dependencies.
func NewApp(deps Dependencies) *App {
	if deps.Stdout == nil {
		deps.Stdout = os.Stdout
	}
	if deps.Stderr == nil {
		deps.Stderr = os.Stderr
	}
	if deps.Config == nil {
		deps.Config = config.NewProvider()
	}

	return &App{
		Config: deps.Config,
		stdout: deps.Stdout,
		stderr: deps.Stderr,
	}
}

// loadConfig reads the project configuration honoring --config.
func (a *App) loadConfig(ctx context.Context, flags *rootFlagValues) (*config.Config, error) {
	return a.Config.Load(ctx, config.LoadOptions{ConfigFilePath: flags.configPath})
}

// newLogger returns an slog logger backed by a charmbracelet/log handler
// writing to stderr.
func (a *App) newLogger(level slog.Level) *slog.Logger {
	handler := log.NewWithOptions(a.stderr, log.Options{
		Prefix: plugin.Name,
		Level:  log.Level(level),
	})
	return slog.New(handler)
}

// newSession loads the configuration and builds the plugin it describes.
func (a *App) newSession(ctx context.Context, flags *rootFlagValues) (*session, error) {
	cfg, err := a.loadConfig(ctx, flags)
	if err != nil {
		return nil, err
	}

	level := cfg.LogLevel.Level()
	if flags.verbose {
		level = slog.LevelDebug
	}
	logger := a.newLogger(level)

	policy, err := commentconfig.ParsePolicy(string(cfg.CommentConfigPolicy))
	if err != nil {
		return nil, fmt.Errorf("comment_config_policy: %w", err)
	}

	p := plugin.New(plugin.Options{
		Ignore: cfg.Ignore,
		Build: loader.Options{
			External:   cfg.External,
			Conditions: cfg.Conditions,
			Define:     cfg.Define,
			Tsconfig:   cfg.Tsconfig,
		},
		Policy: policy,
		Logger: logger,
	})
	p.ConfigResolved(plugin.ResolvedConfig{
		Root:   cfg.Root,
		Logger: logger,
		Alias:  cfg.Alias,
	})

	return &session{
		cfg:    cfg,
		plugin: p,
		graph:  plugin.NewModuleGraph(),
		logger: logger,
	}, nil
}

// invalidate drops the cached output of every data loader affected by a
// change to file and returns how many modules were invalidated.
func (s *session) invalidate(file string) int {
	modules := s.plugin.HandleHotUpdate(plugin.HotUpdateContext{
		File:    file,
		Modules: s.graph.ModulesByFile(file),
		Graph:   s.graph,
	})
	for _, m := range modules {
		s.graph.InvalidateModule(m)
	}
	return len(modules)
}
