// SPDX-License-Identifier: MPL-2.0

package plugin

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"path/filepath"
	"regexp"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"esdata/internal/commentconfig"
	"esdata/internal/compile"
	"esdata/internal/issue"
	"esdata/internal/jsrt"
	"esdata/internal/jssafe"
	"esdata/internal/loader"
	"esdata/internal/pathglob"
	"esdata/internal/result"
)

// Name identifies the plugin in host logs and in the esbuild plugin list.
const Name = "esdata"

const defaultIgnore = "**/node_modules/**"

// loaderPattern matches data loader file names.
var loaderPattern = regexp.MustCompile(`(?i)\.data\.(?:js|cjs|mjs|ts|cts|mts)$`)

type (
	// Options configures a Plugin.
	Options struct {
		// Ignore lists globs of loader paths that are never handled.
		// "**/node_modules/**" is always ignored.
		Ignore []string
		// Build is passed to every loader build. Cache and Logger are
		// replaced by the plugin's own.
		Build loader.Options
		// Policy decides what a malformed config comment does.
		Policy commentconfig.Policy
		// Logger defaults to slog.Default().
		Logger *slog.Logger
	}

	// ResolvedConfig is the host configuration the plugin adapts to.
	ResolvedConfig struct {
		// Root is the project root. Ignore globs starting with "." are
		// resolved against it.
		Root string
		// Logger replaces Options.Logger when set.
		Logger *slog.Logger
		// Alias is merged under Options.Build.Alias.
		Alias map[string]string
	}

	// Watcher is notified of every file a loaded data loader depends on.
	Watcher interface {
		Add(patterns ...string) error
	}

	// LoadResult is the module source handed back to the host.
	LoadResult struct {
		Code string
		// ModuleSideEffects is always false: generated modules only hold
		// constant exports.
		ModuleSideEffects bool
	}

	// HotUpdateContext describes one changed file.
	HotUpdateContext struct {
		File    string
		Modules []*ModuleNode
		Graph   *ModuleGraph
	}

	// Plugin turns data loaders into static modules and remembers what each
	// one depends on. A Plugin is safe for concurrent use; hosts call Load
	// from many goroutines.
	Plugin struct {
		opts  Options
		cache *jsrt.Cache

		mu      sync.RWMutex
		root    string
		ignore  []string
		logger  *slog.Logger
		alias   map[string]string
		watcher Watcher
		results map[string]*result.Result
	}
)

// New creates a Plugin rooted at the working directory. Call ConfigResolved
// to adopt the host's root and logger.
func New(opts Options) *Plugin {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	root, err := filepath.Abs(".")
	if err != nil {
		root = "."
	}

	p := &Plugin{
		opts:    opts,
		cache:   jsrt.NewCache(logger),
		results: make(map[string]*result.Result),
	}
	p.configure(root, logger, nil)
	return p
}

// ConfigResolved adopts the host's root, logger and aliases.
func (p *Plugin) ConfigResolved(cfg ResolvedConfig) {
	root := cfg.Root
	if root == "" {
		root = p.Root()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = p.opts.Logger
	}
	if logger == nil {
		logger = slog.Default()
	}
	p.configure(root, logger, cfg.Alias)
}

func (p *Plugin) configure(root string, logger *slog.Logger, alias map[string]string) {
	ignore := append([]string{defaultIgnore}, p.opts.Ignore...)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.root = root
	p.ignore = pathglob.NormalizeGlobs(ignore, root)
	p.logger = logger.With("plugin", Name)
	p.alias = maps.Clone(alias)
}

// ConfigureServer registers w to receive the dependencies of every loader
// loaded from now on.
func (p *Plugin) ConfigureServer(w Watcher) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.watcher = w
}

// Root returns the project root.
func (p *Plugin) Root() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.root
}

// IsLoader reports whether id is a data loader the plugin handles: an
// absolute path with a loader suffix that no ignore glob matches.
func (p *Plugin) IsLoader(id string) bool {
	path := pathglob.CleanURL(id)
	if !filepath.IsAbs(path) || !loaderPattern.MatchString(path) {
		return false
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return !pathglob.Match(path, p.ignore...)
}

// Load executes the data loader id and returns its exports as module
// source. It returns nil and no error for ids that are not data loaders.
func (p *Plugin) Load(ctx context.Context, id string) (*LoadResult, error) {
	if !p.IsLoader(id) {
		return nil, nil
	}
	path := pathglob.CleanURL(id)
	logger := p.log()
	logger.Info("loading data", "loader", p.relative(path))

	var (
		patterns []string
		build    *loader.Build
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		patterns, err = commentconfig.Parse(path, commentconfig.Options{
			Policy: p.opts.Policy,
			Logger: logger,
		})
		return err
	})
	g.Go(func() error {
		var err error
		build, err = loader.Load(gctx, path, p.buildOptions(logger))
		return err
	})
	if err := g.Wait(); err != nil {
		if build != nil {
			p.cache.Remove(build.Module.Key())
		}
		return nil, loadError(path, err)
	}

	code, err := compile.Compile(ctx, build.Module)
	if err != nil {
		p.cache.Remove(build.Module.Key())
		return nil, loadError(path, err)
	}

	res := result.New(build.Module, build.Dependencies, patterns)
	p.store(path, res)
	p.watch(res)

	logger.Debug("loaded data", "loader", p.relative(path),
		"dependencies", len(build.Dependencies), "patterns", len(patterns))
	return &LoadResult{Code: code}, nil
}

// Result returns the stored result of the loader at path.
func (p *Plugin) Result(path string) (*result.Result, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	r, ok := p.results[pathglob.CleanURL(path)]
	return r, ok
}

// HandleHotUpdate returns ctx.Modules followed by the module of every
// loaded data loader that depends on ctx.File, without duplicates.
func (p *Plugin) HandleHotUpdate(ctx HotUpdateContext) []*ModuleNode {
	out := make([]*ModuleNode, 0, len(ctx.Modules))
	seen := make(map[*ModuleNode]struct{}, len(ctx.Modules))
	add := func(m *ModuleNode) {
		if m == nil {
			return
		}
		if _, ok := seen[m]; ok {
			return
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	for _, m := range ctx.Modules {
		add(m)
	}

	file := pathglob.CleanURL(ctx.File)
	p.mu.RLock()
	ids := slices.Sorted(maps.Keys(p.results))
	var affected []string
	for _, id := range ids {
		if p.results[id].DependsOn(file) {
			affected = append(affected, id)
		}
	}
	p.mu.RUnlock()

	for _, id := range affected {
		if ctx.Graph == nil {
			break
		}
		add(ctx.Graph.ModuleByID(id))
	}
	return out
}

// store replaces the result for path and drops the module it replaces from
// the execution cache.
func (p *Plugin) store(path string, res *result.Result) {
	p.mu.Lock()
	old, ok := p.results[path]
	p.results[path] = res
	p.mu.Unlock()

	if ok && old.Exports() != res.Exports() {
		p.cache.Remove(old.Exports().Key())
	}
}

func (p *Plugin) watch(res *result.Result) {
	p.mu.RLock()
	w := p.watcher
	p.mu.RUnlock()
	if w == nil {
		return
	}

	patterns := append(res.DependencyPatterns(), res.Dependencies()...)
	if len(patterns) == 0 {
		return
	}
	if err := w.Add(patterns...); err != nil {
		p.log().Warn("failed to watch data loader dependencies", "error", err)
	}
}

func (p *Plugin) buildOptions(logger *slog.Logger) loader.Options {
	opts := p.opts.Build
	opts.Cache = p.cache
	opts.Logger = logger

	p.mu.RLock()
	alias := maps.Clone(p.alias)
	p.mu.RUnlock()
	if alias == nil && opts.Alias != nil {
		alias = make(map[string]string, len(opts.Alias))
	}
	maps.Copy(alias, opts.Alias)
	opts.Alias = alias
	return opts
}

func (p *Plugin) log() *slog.Logger {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.logger
}

func (p *Plugin) relative(path string) string {
	rel, err := filepath.Rel(p.Root(), path)
	if err != nil {
		return path
	}
	return filepath.ToSlash(rel)
}

// loadError attaches the catalog entry and a hint matching the failure.
func loadError(path string, err error) error {
	ec := issue.NewErrorContext().
		WithOperation("load data loader").
		WithResource(path).
		Wrap(err)

	switch {
	case errors.Is(err, commentconfig.ErrInvalidConfig):
		ec.WithIssue(issue.CommentConfigInvalidId).
			WithSuggestions("Check the /* esdata { ... } */ comment: only 'dependencies' and 'watch' are allowed")
	case errors.Is(err, loader.ErrCompile):
		ec.WithIssue(issue.LoaderCompileFailedId).
			WithSuggestions("Fix the syntax or import errors reported above")
	case errors.Is(err, jssafe.ErrNotJSONSafe):
		ec.WithIssue(issue.ValueNotJSONSafeId).
			WithSuggestions("Export only plain objects, arrays, strings, numbers other than NaN, booleans and null")
	case errors.Is(err, jsrt.ErrPromiseRejected), errors.Is(err, jsrt.ErrPromiseUnsettled):
		ec.WithIssue(issue.PromiseNotSettledId).
			WithSuggestions("Make sure every exported promise resolves")
	case errors.Is(err, loader.ErrExecute):
		ec.WithIssue(issue.LoaderExecuteFailedId).
			WithSuggestions("Run the data loader on its own to debug the exception")
	}
	return ec.BuildError()
}
