// SPDX-License-Identifier: MPL-2.0

package plugin

import (
	"context"
	"path/filepath"

	"github.com/evanw/esbuild/pkg/api"
)

// resolveFilter preselects import paths that can resolve to a data loader.
// The extension is optional in import specifiers.
const resolveFilter = `(?i)\.data(?:\.(?:js|cjs|mjs|ts|cts|mts))?(?:[?#].*)?$`

type resolving struct{}

// ESBuild adapts p to an esbuild plugin. Generated code is remembered in
// graph until HandleHotUpdate's caller invalidates it, so rebuilds of an
// esbuild context only rerun loaders whose inputs changed. ctx bounds every
// loader execution.
func (p *Plugin) ESBuild(ctx context.Context, graph *ModuleGraph) api.Plugin {
	return api.Plugin{
		Name: Name,
		Setup: func(build api.PluginBuild) {
			build.OnResolve(api.OnResolveOptions{Filter: resolveFilter},
				func(args api.OnResolveArgs) (api.OnResolveResult, error) {
					if _, again := args.PluginData.(resolving); again {
						return api.OnResolveResult{}, nil
					}
					res := build.Resolve(args.Path, api.ResolveOptions{
						Importer:   args.Importer,
						Namespace:  args.Namespace,
						ResolveDir: args.ResolveDir,
						Kind:       args.Kind,
						PluginData: resolving{},
					})
					if len(res.Errors) > 0 || res.External || !p.IsLoader(res.Path) {
						return api.OnResolveResult{}, nil
					}
					return api.OnResolveResult{
						Path:        res.Path,
						Namespace:   res.Namespace,
						Suffix:      res.Suffix,
						SideEffects: api.SideEffectsFalse,
					}, nil
				})

			build.OnLoad(api.OnLoadOptions{Filter: loaderPattern.String(), Namespace: "file"},
				func(args api.OnLoadArgs) (api.OnLoadResult, error) {
					if !p.IsLoader(args.Path) {
						return api.OnLoadResult{}, nil
					}
					node := graph.EnsureModule(args.Path + args.Suffix)
					if code, deps, ok := graph.cachedCode(node); ok {
						return loadResult(args.Path, code, deps), nil
					}

					version := graph.currentVersion(node)
					out, err := p.Load(ctx, args.Path)
					if err != nil {
						return api.OnLoadResult{}, err
					}
					var deps []string
					if res, ok := p.Result(args.Path); ok {
						deps = res.Dependencies()
					}
					graph.storeCode(node, version, out.Code, deps)
					return loadResult(args.Path, out.Code, deps), nil
				})
		},
	}
}

func loadResult(path, code string, deps []string) api.OnLoadResult {
	return api.OnLoadResult{
		Contents:   &code,
		Loader:     api.LoaderJS,
		ResolveDir: filepath.Dir(path),
		WatchFiles: deps,
	}
}
