// SPDX-License-Identifier: MPL-2.0

package loader

import (
	"log/slog"
	"maps"
	"regexp"
	"slices"

	"github.com/evanw/esbuild/pkg/api"

	"esdata/internal/jsrt"
)

// Options tunes how a data loader is bundled and executed. The zero value is
// usable.
type Options struct {
	// External lists import paths that stay out of the bundle. Node
	// built-ins and native addons are always external.
	External []string
	// ExternalMatch marks every import path matching one of the regexps
	// external.
	ExternalMatch []*regexp.Regexp
	// ExternalFunc marks an import path external when it returns true.
	ExternalFunc func(path string) bool

	// Alias maps package names to replacements, as in esbuild's alias
	// option.
	Alias map[string]string
	// Conditions are added after the "node" condition.
	Conditions []string
	// Define adds global replacements. The per-module identifiers cannot be
	// overridden.
	Define map[string]string
	// Loader maps file extensions to esbuild loaders.
	Loader map[string]api.Loader
	// Plugins run after the loader's own plugins.
	Plugins []api.Plugin
	// Tsconfig is a tsconfig.json path. Without it, no tsconfig is
	// discovered.
	Tsconfig string
	// ResolveExtensions overrides esbuild's default resolution order.
	ResolveExtensions []string
	// LogLevel is esbuild's log level. The zero value is silent.
	LogLevel api.LogLevel

	// Cache holds executed modules. A nil Cache gets a private one.
	Cache *jsrt.Cache
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

func (o Options) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.Default()
	}
	return o.Logger
}

func (o Options) cache() *jsrt.Cache {
	if o.Cache == nil {
		return jsrt.NewCache(o.logger())
	}
	return o.Cache
}

// conditions returns "node" followed by the caller's conditions, without
// duplicates.
func (o Options) conditions() []string {
	out := []string{"node"}
	for _, c := range o.Conditions {
		if !slices.Contains(out, c) {
			out = append(out, c)
		}
	}
	return out
}

// buildOptions merges caller options with the settings that keep the build
// isolated. The isolation settings always win.
//
// The bundle is an ES module at esnext wrapped in an async function (see
// wrapperBanner), whatever format the loader is written in. esm only steers
// dependency resolution.
func (o Options) buildOptions(entry, workDir, outdir string, esm bool, track *tracker) api.BuildOptions {
	define := maps.Clone(o.Define)
	if define == nil {
		define = make(map[string]string)
	}
	maps.Copy(define, identifierDefines())

	plugins := []api.Plugin{
		entryPlugin(entry),
		newExternals(o).plugin(),
		track.plugin(),
		identifiersPlugin(),
	}
	plugins = append(plugins, o.Plugins...)

	return api.BuildOptions{
		EntryPoints:       []string{entryName},
		AbsWorkingDir:     workDir,
		Outdir:            outdir,
		Write:             true,
		Metafile:          true,
		Bundle:            true,
		Platform:          api.PlatformNode,
		Format:            api.FormatESModule,
		Target:            api.ESNext,
		Banner:            map[string]string{"js": wrapperBanner},
		Footer:            map[string]string{"js": wrapperFooter},
		TreeShaking:       api.TreeShakingFalse,
		Sourcemap:         api.SourceMapInline,
		MainFields:        mainFields(esm),
		Conditions:        o.conditions(),
		Alias:             maps.Clone(o.Alias),
		Define:            define,
		Loader:            maps.Clone(o.Loader),
		Tsconfig:          o.Tsconfig,
		ResolveExtensions: slices.Clone(o.ResolveExtensions),
		LogLevel:          o.LogLevel,
		Plugins:           plugins,
	}
}
