// SPDX-License-Identifier: MPL-2.0

package loader

import (
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/google/go-cmp/cmp"
)

func TestBuiltinName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		id       string
		wantName string
		wantOK   bool
	}{
		{"fs", "fs", true},
		{"node:fs", "fs", true},
		{"fs/promises", "fs/promises", true},
		{"node:fs/promises", "fs/promises", true},
		{"node:test", "test", true},
		{"path", "path", true},
		{"lodash", "lodash", false},
		{"./fs", "./fs", false},
		{"node:", "", false},
		{"fsevents", "fsevents", false},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			t.Parallel()
			name, ok := builtinName(tt.id)
			if ok != tt.wantOK || (ok && name != tt.wantName) {
				t.Errorf("builtinName(%q) = %q, %v, want %q, %v", tt.id, name, ok, tt.wantName, tt.wantOK)
			}
		})
	}
}

func TestExternals_Resolve(t *testing.T) {
	t.Parallel()

	e := newExternals(Options{
		External:      []string{"sharp"},
		ExternalMatch: []*regexp.Regexp{regexp.MustCompile(`^@aws-sdk/`)},
		ExternalFunc:  func(path string) bool { return strings.HasPrefix(path, "virtual:") },
	})

	tests := []struct {
		path         string
		wantPath     string
		wantExternal bool
	}{
		{"node:path", "path", true},
		{"path", "path", true},
		{"node:fs/promises", "fs/promises", true},
		{"./addon.node", "./addon.node", true},
		{"sharp", "sharp", true},
		{"@aws-sdk/client-s3", "@aws-sdk/client-s3", true},
		{"virtual:posts", "virtual:posts", true},
		{"lodash", "lodash", false},
		{"./local", "./local", false},
		{"sharp/lib", "sharp/lib", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			t.Parallel()
			got, external := e.resolve(tt.path)
			if got != tt.wantPath || external != tt.wantExternal {
				t.Errorf("resolve(%q) = %q, %v, want %q, %v", tt.path, got, external, tt.wantPath, tt.wantExternal)
			}
		})
	}
}

func TestTracker_OrderedAndDeduplicated(t *testing.T) {
	t.Parallel()

	tr := newTracker()
	tr.add("/src/a.ts")
	tr.add("/src/b.ts?raw")
	tr.add("/src/a.ts#frag")
	tr.add("/src/b.ts")
	tr.add("/src/c.ts")

	want := []string{"/src/a.ts", "/src/b.ts", "/src/c.ts"}
	if diff := cmp.Diff(want, tr.dependencies()); diff != "" {
		t.Errorf("dependencies() mismatch (-want +got):\n%s", diff)
	}

	got := tr.dependencies()
	got[0] = "mutated"
	if tr.dependencies()[0] != "/src/a.ts" {
		t.Error("dependencies() should return a copy")
	}
}

func TestTracker_Concurrent(t *testing.T) {
	t.Parallel()

	tr := newTracker()
	var wg sync.WaitGroup
	for range 50 {
		wg.Go(func() {
			tr.add("/src/shared.ts")
		})
	}
	wg.Wait()

	if got := len(tr.dependencies()); got != 1 {
		t.Errorf("len(dependencies()) = %d, want 1", got)
	}
}

func TestIdentifierPrelude(t *testing.T) {
	t.Parallel()

	path := filepath.FromSlash("/src/data/posts.data.ts")
	got := identifierPrelude(path)

	if strings.Count(got, "\n") != 1 || !strings.HasSuffix(got, ";\n") {
		t.Errorf("prelude should be a single line, got %q", got)
	}
	for _, ident := range []string{identFilename, identDirname, identURL} {
		if !strings.Contains(got, "var "+ident) && !strings.Contains(got, ", "+ident) {
			t.Errorf("prelude does not declare %s: %q", ident, got)
		}
	}
	if !strings.Contains(got, `"file:///src/data/posts.data.ts"`) && filepath.Separator == '/' {
		t.Errorf("prelude missing file URL: %q", got)
	}
}

func TestInsertPrelude(t *testing.T) {
	t.Parallel()

	const prelude = "var p = 1;\n"
	tests := []struct {
		name string
		src  string
		want string
	}{
		{
			name: "plain module",
			src:  "export const a = 1\n",
			want: "var p = 1;\nexport const a = 1\n",
		},
		{
			name: "hashbang",
			src:  "#!/usr/bin/env node\nexport const a = 1\n",
			want: "#!/usr/bin/env node\nvar p = 1;\nexport const a = 1\n",
		},
		{
			name: "use strict without semicolon",
			src:  "'use strict'\nmodule.exports = 1\n",
			want: "'use strict'\nvar p = 1;\nmodule.exports = 1\n",
		},
		{
			name: "hashbang and directives",
			src:  "#!/usr/bin/env node\n\"use strict\";\n'use asm'\nrun()\n",
			want: "#!/usr/bin/env node\n\"use strict\";\n'use asm'\nvar p = 1;\nrun()\n",
		},
		{
			name: "comment before directive",
			src:  "// header\n\"use strict\"\r\nrun()\n",
			want: "// header\n\"use strict\"\r\nvar p = 1;\nrun()\n",
		},
		{
			name: "directive followed by code on the same line",
			src:  "'use strict'; run()\n",
			want: "'use strict';var p = 1;\n run()\n",
		},
		{
			name: "string expression is not a directive",
			src:  "'a'.length\n",
			want: "var p = 1;\n'a'.length\n",
		},
		{
			name: "directive only",
			src:  "'use strict'",
			want: "'use strict'\nvar p = 1;\n",
		},
		{
			name: "hashbang only",
			src:  "#!/usr/bin/env node",
			want: "#!/usr/bin/env node\nvar p = 1;\n",
		},
		{
			name: "escaped quote",
			src:  "'it\\'s'\nrun()\n",
			want: "'it\\'s'\nvar p = 1;\nrun()\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if diff := cmp.Diff(tt.want, insertPrelude(tt.src, prelude)); diff != "" {
				t.Errorf("insertPrelude() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestLoaderFor(t *testing.T) {
	t.Parallel()

	tests := map[string]api.Loader{
		"a.ts":  api.LoaderTS,
		"a.MTS": api.LoaderTS,
		"a.cts": api.LoaderTS,
		"a.tsx": api.LoaderTSX,
		"a.jsx": api.LoaderJSX,
		"a.js":  api.LoaderJS,
		"a.mjs": api.LoaderJS,
		"a.cjs": api.LoaderJS,
	}
	for name, want := range tests {
		if got := loaderFor(name); got != want {
			t.Errorf("loaderFor(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestKnownJSExtension(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"a.js", "a.jsx", "a.ts", "a.tsx", "a.mjs", "a.mts", "a.cjs", "a.cts"} {
		if !knownJSExtension.MatchString(name) {
			t.Errorf("%s should match", name)
		}
	}
	for _, name := range []string{"a.json", "a.css", "a.node", "a.txt", "a.js.map"} {
		if knownJSExtension.MatchString(name) {
			t.Errorf("%s should not match", name)
		}
	}
}

func TestBuildOptions_IsolationWins(t *testing.T) {
	t.Parallel()

	userPlugin := api.Plugin{Name: "user"}
	opts := Options{
		Define:     map[string]string{"__filename": `"nope"`, "DEBUG": "false"},
		Conditions: []string{"worker", "node", "worker"},
		Alias:      map[string]string{"lib": "./lib"},
		Plugins:    []api.Plugin{userPlugin},
		Tsconfig:   "tsconfig.json",
	}
	got := opts.buildOptions("/src/a.data.ts", "/src", "/src/node_modules/.esdata-1", true, newTracker())

	if got.Define["__filename"] != identFilename {
		t.Errorf("Define[__filename] = %q, want %q", got.Define["__filename"], identFilename)
	}
	if got.Define["DEBUG"] != "false" {
		t.Errorf("user define was dropped: %v", got.Define)
	}
	if opts.Define["__filename"] != `"nope"` {
		t.Error("buildOptions mutated the caller's Define map")
	}
	if diff := cmp.Diff([]string{"node", "worker"}, got.Conditions); diff != "" {
		t.Errorf("Conditions mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"module", "main"}, got.MainFields); diff != "" {
		t.Errorf("MainFields mismatch (-want +got):\n%s", diff)
	}

	names := make([]string, 0, len(got.Plugins))
	for _, p := range got.Plugins {
		names = append(names, p.Name)
	}
	want := []string{"esdata:entry", "esdata:externals", "esdata:track-dependencies", "esdata:override-identifiers", "user"}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Errorf("plugin order mismatch (-want +got):\n%s", diff)
	}

	if got.Format != api.FormatESModule || got.Target != api.ESNext || got.Platform != api.PlatformNode ||
		!got.Write || !got.Metafile || !got.Bundle {
		t.Errorf("isolation settings not applied: %+v", got)
	}
	if diff := cmp.Diff([]string{entryName}, got.EntryPoints); diff != "" {
		t.Errorf("EntryPoints mismatch (-want +got):\n%s", diff)
	}
	if !strings.HasPrefix(got.Banner["js"], "module.exports = (async () => {") || !strings.HasSuffix(got.Footer["js"], "})();") {
		t.Errorf("bundle is not wrapped in an async function: banner %q, footer %q", got.Banner["js"], got.Footer["js"])
	}
	if got.Outdir != "/src/node_modules/.esdata-1" || got.AbsWorkingDir != "/src" {
		t.Errorf("Outdir = %q, AbsWorkingDir = %q", got.Outdir, got.AbsWorkingDir)
	}
	if got.Tsconfig != "tsconfig.json" || got.Alias["lib"] != "./lib" {
		t.Errorf("caller options were not merged: %+v", got)
	}
}

func TestMetafile_EntryOutput(t *testing.T) {
	t.Parallel()

	m, err := parseMetafile(`{
  "inputs": {"demo.data.ts": {"bytes": 10, "format": "esm"}},
  "outputs": {
    "../node_modules/.esdata-1/demo.data.js.map": {"bytes": 3, "exports": []},
    "../node_modules/.esdata-1/demo.data.js": {"bytes": 5, "exports": [], "entryPoint": "demo.data.ts"}
  }
}`)
	if err != nil {
		t.Fatal(err)
	}

	got, err := m.entryOutput(filepath.FromSlash("/proj/src"))
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.FromSlash("/proj/node_modules/.esdata-1/demo.data.js"); got != want {
		t.Errorf("entryOutput() = %q, want %q", got, want)
	}

	empty, _ := parseMetafile(`{"outputs": {}}`)
	if _, err := empty.entryOutput("/x"); err == nil {
		t.Error("expected error without entry output")
	}
	if _, err := parseMetafile("{"); err == nil {
		t.Error("expected error for invalid JSON")
	}
}
