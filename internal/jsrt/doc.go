// SPDX-License-Identifier: MPL-2.0

// Package jsrt executes bundled modules in goja.
//
// Every import gets its own runtime and event loop, keyed by the bundle path
// and a process-wide generation number, so re-importing a rebuilt bundle
// never observes state from an earlier run. A bundle may export a promise of
// its namespace; Import waits for it.
//
// The event loop only runs while Import or Settle waits on promises. It
// stops once they settle, once nothing is left to do or when the context
// ends, so a timer a loader never clears cannot hold a build open.
//
// The runtime serves crypto, fs, fs/promises, os, path and url natively on
// top of goja_nodejs. process, Buffer, URL, console and fetch are globals;
// fetch goes through a pooled net/http client.
package jsrt
