// SPDX-License-Identifier: MPL-2.0

package loader

import "strings"

const nodePrefix = "node:"

// nodeBuiltinModules lists the top-level Node.js core modules. Subpaths such
// as "fs/promises" are matched by their first segment.
var nodeBuiltinModules = map[string]bool{
	"assert":              true,
	"async_hooks":         true,
	"buffer":              true,
	"child_process":       true,
	"cluster":             true,
	"console":             true,
	"constants":           true,
	"crypto":              true,
	"dgram":               true,
	"diagnostics_channel": true,
	"dns":                 true,
	"domain":              true,
	"events":              true,
	"fs":                  true,
	"http":                true,
	"http2":               true,
	"https":               true,
	"inspector":           true,
	"module":              true,
	"net":                 true,
	"os":                  true,
	"path":                true,
	"perf_hooks":          true,
	"process":             true,
	"punycode":            true,
	"querystring":         true,
	"readline":            true,
	"repl":                true,
	"stream":              true,
	"string_decoder":      true,
	"sys":                 true,
	"timers":              true,
	"tls":                 true,
	"trace_events":        true,
	"tty":                 true,
	"url":                 true,
	"util":                true,
	"v8":                  true,
	"vm":                  true,
	"wasi":                true,
	"worker_threads":      true,
	"zlib":                true,
}

// builtinName reports whether id names a Node.js core module and returns the
// name without the "node:" prefix. Prefixed ids such as "node:test" that are
// only reachable with the prefix are accepted as well.
func builtinName(id string) (string, bool) {
	name, prefixed := strings.CutPrefix(id, nodePrefix)
	if name == "" {
		return "", false
	}
	if prefixed {
		return name, true
	}
	top, _, _ := strings.Cut(name, "/")
	return name, nodeBuiltinModules[top]
}
