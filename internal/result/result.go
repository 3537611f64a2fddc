// SPDX-License-Identifier: MPL-2.0

// Package result holds the outcome of one data loader load.
package result

import (
	"slices"

	"esdata/internal/jsrt"
	"esdata/internal/pathglob"
)

// Result is an immutable snapshot of a loader's exports and of everything
// the loader depends on. Construct it with New; the zero value depends on
// nothing.
type Result struct {
	exports            *jsrt.Module
	dependencies       []string
	dependencyPatterns []string
}

// New copies the given slices so later changes by the caller are not seen.
func New(exports *jsrt.Module, dependencies, dependencyPatterns []string) *Result {
	return &Result{
		exports:            exports,
		dependencies:       slices.Clone(dependencies),
		dependencyPatterns: slices.Clone(dependencyPatterns),
	}
}

// Exports returns the executed loader module.
func (r *Result) Exports() *jsrt.Module { return r.exports }

// Dependencies returns the absolute paths read while bundling the loader.
func (r *Result) Dependencies() []string { return slices.Clone(r.dependencies) }

// DependencyPatterns returns the normalized globs declared by the loader.
func (r *Result) DependencyPatterns() []string { return slices.Clone(r.dependencyPatterns) }

// DependsOn reports whether file is a tracked dependency or matches a
// declared pattern.
func (r *Result) DependsOn(file string) bool {
	return slices.Contains(r.dependencies, file) || pathglob.Match(file, r.dependencyPatterns...)
}
