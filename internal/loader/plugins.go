// SPDX-License-Identifier: MPL-2.0

package loader

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/evanw/esbuild/pkg/api"

	"esdata/internal/jsrt"
	"esdata/internal/pathglob"
)

const (
	identFilename = "__esdata_import_meta_filename__"
	identDirname  = "__esdata_import_meta_dirname__"
	identURL      = "__esdata_import_meta_url__"

	// entryName is the generated entry point that imports the loader.
	entryName      = "esdata-entry"
	entryNamespace = "esdata-entry"
	exportCallback = "__esdata_export__"

	// externalNamespace holds one stub module per external import path.
	externalNamespace = "esdata-external"
)

// The bundle is evaluated inside an async function so that top-level await
// works; module.exports is the promise of the loader's namespace.
var (
	wrapperBanner = "module.exports = (async () => {\n" +
		"let __esdata_namespace__;\n" +
		"const " + exportCallback + " = (namespace) => { __esdata_namespace__ = namespace; };"
	wrapperFooter = "return __esdata_namespace__;\n})();"
)

// errBuiltinUnavailable is reported for core modules the runtime does not
// serve.
var errBuiltinUnavailable = errors.New("is not available to data loaders")

// knownJSExtension matches sources it is safe to prepend JavaScript to.
var knownJSExtension = regexp.MustCompile(`\.(?:[jt]sx?|m[jt]s|c[jt]s)$`)

// identifierDefines points the per-module identifiers at private names that
// the identifiers plugin declares at the top of every module.
func identifierDefines() map[string]string {
	return map[string]string{
		"__filename":           identFilename,
		"__dirname":            identDirname,
		"import.meta.filename": identFilename,
		"import.meta.dirname":  identDirname,
		"import.meta.url":      identURL,
	}
}

// tracker records every file esbuild loads, in first-seen order.
type tracker struct {
	mu   sync.Mutex
	seen map[string]struct{}
	deps []string
}

func newTracker() *tracker {
	return &tracker{seen: make(map[string]struct{})}
}

func (t *tracker) add(path string) {
	path = pathglob.CleanURL(path)
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.seen[path]; ok {
		return
	}
	t.seen[path] = struct{}{}
	t.deps = append(t.deps, path)
}

func (t *tracker) dependencies() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, len(t.deps))
	copy(out, t.deps)
	return out
}

// plugin returns no contents, so later callbacks and esbuild's own loaders
// still run.
func (t *tracker) plugin() api.Plugin {
	return api.Plugin{
		Name: "esdata:track-dependencies",
		Setup: func(build api.PluginBuild) {
			build.OnLoad(api.OnLoadOptions{Filter: ".*", Namespace: "file"},
				func(args api.OnLoadArgs) (api.OnLoadResult, error) {
					if filepath.IsAbs(args.Path) {
						t.add(args.Path)
					}
					return api.OnLoadResult{}, nil
				})
		},
	}
}

// identifiersPlugin declares the private identifiers at the top of every
// module so that __filename, __dirname and import.meta.* report the
// module's original location after bundling.
func identifiersPlugin() api.Plugin {
	return api.Plugin{
		Name: "esdata:override-identifiers",
		Setup: func(build api.PluginBuild) {
			build.OnLoad(api.OnLoadOptions{Filter: knownJSExtension.String(), Namespace: "file"},
				func(args api.OnLoadArgs) (api.OnLoadResult, error) {
					path := pathglob.CleanURL(args.Path)
					if !filepath.IsAbs(path) {
						return api.OnLoadResult{}, nil
					}
					source, err := os.ReadFile(path)
					if err != nil {
						return api.OnLoadResult{}, err
					}
					contents := insertPrelude(string(source), identifierPrelude(path))
					return api.OnLoadResult{
						Contents:   &contents,
						Loader:     loaderFor(path),
						ResolveDir: filepath.Dir(path),
					}, nil
				})
		},
	}
}

// identifierPrelude is a single line so that line numbers shift by exactly
// one.
func identifierPrelude(path string) string {
	return fmt.Sprintf("var %s = %s, %s = %s, %s = %s;\n",
		identFilename, jsString(path),
		identDirname, jsString(filepath.Dir(path)),
		identURL, jsString(jsrt.FileURL(path)),
	)
}

// insertPrelude places prelude after a hashbang line and the directive
// prologue ("use strict" and friends) so both keep their meaning.
func insertPrelude(src, prelude string) string {
	off := preludeOffset(src)
	if off > 0 && src[off-1] != '\n' && src[off-1] != ';' {
		prelude = "\n" + prelude
	}
	return src[:off] + prelude + src[off:]
}

func preludeOffset(src string) int {
	i := 0
	if strings.HasPrefix(src, "#!") {
		nl := strings.IndexByte(src, '\n')
		if nl < 0 {
			return len(src)
		}
		i = nl + 1
	}

	for {
		j := skipSpaceAndComments(src, i)
		if j >= len(src) || (src[j] != '"' && src[j] != '\'') {
			return i
		}
		k := stringEnd(src, j)
		if k < 0 {
			return i
		}
		m := k
		for m < len(src) && (src[m] == ' ' || src[m] == '\t') {
			m++
		}
		switch {
		case m >= len(src):
			return m
		case src[m] == ';':
			i = m + 1
		case src[m] == '\n':
			i = m + 1
		case src[m] == '\r':
			i = m + 1
			if i < len(src) && src[i] == '\n' {
				i++
			}
		default:
			// A string that starts an expression, not a directive.
			return i
		}
	}
}

// skipSpaceAndComments returns the index of the first byte at or after i
// that is neither whitespace nor part of a comment.
func skipSpaceAndComments(src string, i int) int {
	for i < len(src) {
		switch {
		case src[i] == ' ' || src[i] == '\t' || src[i] == '\n' || src[i] == '\r':
			i++
		case strings.HasPrefix(src[i:], "//"):
			nl := strings.IndexByte(src[i:], '\n')
			if nl < 0 {
				return len(src)
			}
			i += nl + 1
		case strings.HasPrefix(src[i:], "/*"):
			end := strings.Index(src[i+2:], "*/")
			if end < 0 {
				return len(src)
			}
			i += end + 4
		default:
			return i
		}
	}
	return i
}

// stringEnd returns the index just past the string literal opening at j,
// or -1 when it does not close on the same line.
func stringEnd(src string, j int) int {
	quote := src[j]
	for k := j + 1; k < len(src); k++ {
		switch src[k] {
		case '\\':
			k++
		case '\n', '\r':
			return -1
		case quote:
			return k + 1
		}
	}
	return -1
}

func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

// entryPlugin serves the generated entry point. It imports the loader's
// namespace and hands it to the wrapper, so CommonJS loaders get esbuild's
// interop: a default export holding module.exports unless the exports
// object is marked __esModule.
func entryPlugin(loaderPath string) api.Plugin {
	return api.Plugin{
		Name: "esdata:entry",
		Setup: func(build api.PluginBuild) {
			build.OnResolve(api.OnResolveOptions{Filter: "^" + regexp.QuoteMeta(entryName) + "$"},
				func(args api.OnResolveArgs) (api.OnResolveResult, error) {
					if args.Kind != api.ResolveEntryPoint {
						return api.OnResolveResult{}, nil
					}
					return api.OnResolveResult{Path: entryName, Namespace: entryNamespace}, nil
				})
			build.OnLoad(api.OnLoadOptions{Filter: ".*", Namespace: entryNamespace},
				func(api.OnLoadArgs) (api.OnLoadResult, error) {
					contents := fmt.Sprintf("import * as namespace from %s;\n%s(namespace);\n",
						jsString(loaderPath), exportCallback)
					return api.OnLoadResult{
						Contents:   &contents,
						Loader:     api.LoaderJS,
						ResolveDir: filepath.Dir(loaderPath),
					}, nil
				})
		},
	}
}

func loaderFor(path string) api.Loader {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".ts", ".mts", ".cts":
		return api.LoaderTS
	case ".tsx":
		return api.LoaderTSX
	case ".jsx":
		return api.LoaderJSX
	default:
		return api.LoaderJS
	}
}

// externals decides which import paths stay out of the bundle.
type externals struct {
	names   map[string]struct{}
	regexps []*regexp.Regexp
	match   func(path string) bool
}

func newExternals(opts Options) *externals {
	e := &externals{
		names:   make(map[string]struct{}, len(opts.External)),
		regexps: opts.ExternalMatch,
		match:   opts.ExternalFunc,
	}
	for _, name := range opts.External {
		e.names[name] = struct{}{}
	}
	return e
}

// resolve returns the path esbuild should emit and whether it is external.
func (e *externals) resolve(path string) (string, bool) {
	if name, ok := builtinName(path); ok {
		return name, true
	}
	if strings.HasSuffix(path, ".node") {
		return path, true
	}
	if _, ok := e.names[path]; ok {
		return path, true
	}
	for _, re := range e.regexps {
		if re.MatchString(path) {
			return path, true
		}
	}
	if e.match != nil && e.match(path) {
		return path, true
	}
	return path, false
}

// plugin routes every external import to a stub module that calls the
// runtime's require, so the bundle needs no import statements. Core modules
// the runtime does not serve fail the build.
func (e *externals) plugin() api.Plugin {
	return api.Plugin{
		Name: "esdata:externals",
		Setup: func(build api.PluginBuild) {
			build.OnResolve(api.OnResolveOptions{Filter: ".*"},
				func(args api.OnResolveArgs) (api.OnResolveResult, error) {
					if args.Kind == api.ResolveEntryPoint || args.Namespace == entryNamespace {
						return api.OnResolveResult{}, nil
					}
					path, ok := e.resolve(args.Path)
					if !ok {
						return api.OnResolveResult{}, nil
					}
					if name, builtin := builtinName(args.Path); builtin && !jsrt.HasBuiltin(name) {
						return api.OnResolveResult{}, fmt.Errorf("node built-in %q %w (available: %s)",
							args.Path, errBuiltinUnavailable, strings.Join(jsrt.Builtins(), ", "))
					}
					return api.OnResolveResult{Path: path, Namespace: externalNamespace}, nil
				})
			build.OnLoad(api.OnLoadOptions{Filter: ".*", Namespace: externalNamespace},
				func(args api.OnLoadArgs) (api.OnLoadResult, error) {
					contents := fmt.Sprintf("module.exports = %s(%s);\n", jsrt.RequireAlias, jsString(args.Path))
					return api.OnLoadResult{Contents: &contents, Loader: api.LoaderJS}, nil
				})
		},
	}
}
