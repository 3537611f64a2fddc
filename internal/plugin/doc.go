// SPDX-License-Identifier: MPL-2.0

// Package plugin connects data loaders to a bundler.
//
// A Plugin loads files named like posts.data.ts: it runs them at build time,
// replaces them with a module of constant exports and records which files
// each one was built from, so that a change to any of them invalidates the
// right modules. ESBuild adapts a Plugin to esbuild's plugin API.
package plugin
