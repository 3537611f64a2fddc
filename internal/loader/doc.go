// SPDX-License-Identifier: MPL-2.0

// Package loader bundles a data loader with esbuild and executes it.
//
// Each load writes its bundle to a fresh temp dir next to the project's
// node_modules so that packages left external still resolve from the
// bundle's location. Node built-ins and native addons are never bundled, and
// a built-in the runtime does not serve fails the build instead of the run.
//
// The bundle is an ES module evaluated inside an async function, which lets
// loaders use top-level await. CommonJS loaders are imported the way esbuild
// imports them into ESM: module.exports becomes the default export next to
// its named properties.
//
// The identifiers __filename, __dirname and import.meta.{url,filename,dirname}
// keep reporting the original source location of every bundled module.
package loader
