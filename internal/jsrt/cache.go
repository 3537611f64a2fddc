// SPDX-License-Identifier: MPL-2.0

package jsrt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/buffer"
	"github.com/dop251/goja_nodejs/process"
	"github.com/dop251/goja_nodejs/require"
	"github.com/dop251/goja_nodejs/url"

	_ "github.com/dop251/goja_nodejs/util" // registers the util core module
)

// Cache tracks executed modules by (path, generation).
type Cache struct {
	generation atomic.Uint64
	logger     *slog.Logger
	client     *http.Client

	mu      sync.Mutex
	modules map[ModuleKey]*Module
}

// NewCache creates an empty cache. A nil logger means slog.Default().
func NewCache(logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		logger:  logger,
		client:  newHTTPClient(),
		modules: make(map[ModuleKey]*Module),
	}
}

// RequireAlias names a global bound to the runtime's require. Bundles call
// it for modules left out of the bundle so that resolution starts at the
// bundle's own directory.
const RequireAlias = "__esdata_require__"

// Import executes the bundle at path in a fresh runtime under a new
// generation. A bundle whose module.exports is a promise is awaited, and the
// promise's value becomes the exports object; this is how bundles with
// top-level await hand over their namespace. Exceptions thrown by the bundle
// are returned as *ScriptError.
func (c *Cache) Import(ctx context.Context, path string) (*Module, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve module path: %w", err)
	}

	key := ModuleKey{Path: abs, Generation: c.generation.Add(1)}
	m := newModule(key, newRegistry())
	reqCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	m.cancel = cancel

	var namespace *goja.Promise
	err = m.drive(ctx, func(vm *goja.Runtime) ([]*goja.Promise, error) {
		process.Enable(vm)
		buffer.Enable(vm)
		url.Enable(vm)
		if err := enableFetch(reqCtx, vm, m.loop, c.client); err != nil {
			return nil, err
		}

		requireFn := vm.Get("require")
		req, ok := goja.AssertFunction(requireFn)
		if !ok {
			return nil, errors.New("require is not installed")
		}
		if err := vm.Set(RequireAlias, requireFn); err != nil {
			return nil, err
		}
		v, err := req(goja.Undefined(), vm.ToValue(filepath.ToSlash(abs)))
		if err != nil {
			return nil, err
		}
		if p, ok := promiseOf(v); ok {
			namespace = p
			return []*goja.Promise{p}, nil
		}
		return nil, m.setExports(v)
	})
	if err == nil && namespace != nil {
		err = m.settleNamespace(namespace)
	}
	if err != nil {
		m.Close()
		return nil, err
	}

	c.mu.Lock()
	c.modules[key] = m
	c.mu.Unlock()

	c.logger.Debug("imported module", "module", key.String(), "exports", len(m.keys))
	return m, nil
}

// Get returns the module stored under key.
func (c *Cache) Get(key ModuleKey) (*Module, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.modules[key]
	return m, ok
}

// Remove closes and drops the module stored under key and reports whether
// it was present.
func (c *Cache) Remove(key ModuleKey) bool {
	c.mu.Lock()
	m, ok := c.modules[key]
	delete(c.modules, key)
	c.mu.Unlock()
	if ok {
		m.Close()
	}
	return ok
}

// Len returns the number of cached modules.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.modules)
}

// natives are served by this package; the remaining builtins are the core
// modules goja_nodejs registers.
var natives = map[string]require.ModuleLoader{
	"crypto":      requireCrypto,
	"fs":          requireFS,
	"fs/promises": requireFSPromises,
	"os":          requireOS,
	"path":        requirePath,
	"url":         requireURL,
}

var builtins = []string{"buffer", "console", "process", "util"}

// HasBuiltin reports whether a bundle may require the Node.js core module
// name, given without the "node:" prefix.
func HasBuiltin(name string) bool {
	_, ok := natives[name]
	return ok || slices.Contains(builtins, name)
}

// Builtins returns the served core module names, sorted.
func Builtins() []string {
	names := slices.Collect(maps.Keys(natives))
	names = append(names, builtins...)
	slices.Sort(names)
	return names
}

func newRegistry() *require.Registry {
	registry := require.NewRegistry()
	for name, loader := range natives {
		registry.RegisterNativeModule(name, loader)
	}
	return registry
}
