// SPDX-License-Identifier: MPL-2.0

package plugin

import (
	"slices"
	"strings"
	"sync"

	"esdata/internal/pathglob"
)

type (
	// ModuleNode is one module the host has loaded.
	ModuleNode struct {
		// ID is the id the host loaded, query and fragment included.
		ID string
		// File is ID without query and fragment.
		File string

		code    string
		deps    []string
		cached  bool
		version uint64
	}

	// ModuleGraph tracks loaded modules by id and keeps the last generated
	// code of each until it is invalidated.
	ModuleGraph struct {
		mu      sync.RWMutex
		modules map[string]*ModuleNode
	}
)

// NewModuleGraph returns an empty graph.
func NewModuleGraph() *ModuleGraph {
	return &ModuleGraph{modules: make(map[string]*ModuleNode)}
}

// ModuleByID returns the node for id, or nil.
func (g *ModuleGraph) ModuleByID(id string) *ModuleNode {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.modules[id]
}

// ModulesByFile returns every node whose File is file, ordered by id.
func (g *ModuleGraph) ModulesByFile(file string) []*ModuleNode {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []*ModuleNode
	for _, m := range g.modules {
		if m.File == file {
			out = append(out, m)
		}
	}
	slices.SortFunc(out, func(a, b *ModuleNode) int { return strings.Compare(a.ID, b.ID) })
	return out
}

// EnsureModule returns the node for id, creating it if needed.
func (g *ModuleGraph) EnsureModule(id string) *ModuleNode {
	g.mu.Lock()
	defer g.mu.Unlock()
	if m, ok := g.modules[id]; ok {
		return m
	}
	m := &ModuleNode{ID: id, File: pathglob.CleanURL(id)}
	g.modules[id] = m
	return m
}

// InvalidateModule drops the cached code of m so the next load regenerates
// it.
func (g *ModuleGraph) InvalidateModule(m *ModuleNode) {
	g.mu.Lock()
	defer g.mu.Unlock()
	m.cached = false
	m.code = ""
	m.deps = nil
	m.version++
}

// Len returns the number of modules in the graph.
func (g *ModuleGraph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.modules)
}

// cachedCode returns the stored code of m and the files it was built from.
func (g *ModuleGraph) cachedCode(m *ModuleNode) (code string, deps []string, ok bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return m.code, slices.Clone(m.deps), m.cached
}

// storeCode caches code for m unless m was invalidated after version was
// read.
func (g *ModuleGraph) storeCode(m *ModuleNode, version uint64, code string, deps []string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if m.version != version {
		return
	}
	m.code = code
	m.deps = slices.Clone(deps)
	m.cached = true
}

func (g *ModuleGraph) currentVersion(m *ModuleNode) uint64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return m.version
}
