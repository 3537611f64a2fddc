// SPDX-License-Identifier: MPL-2.0

package plugin

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"esdata/internal/commentconfig"
	"esdata/internal/issue"
	"esdata/internal/jssafe"
	"esdata/internal/loader"
	"esdata/internal/testutil"
)

type recordingWatcher struct {
	mu    sync.Mutex
	added []string
}

func (w *recordingWatcher) Add(patterns ...string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.added = append(w.added, patterns...)
	return nil
}

func (w *recordingWatcher) patterns() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.added...)
}

func newTestPlugin(t *testing.T, opts Options) (*Plugin, string) {
	t.Helper()
	root := testutil.CopyFixtures(t, "testdata")
	p := New(opts)
	p.ConfigResolved(ResolvedConfig{Root: root})
	return p, root
}

func TestPlugin_IsLoader(t *testing.T) {
	t.Parallel()

	p, root := newTestPlugin(t, Options{Ignore: []string{"./drafts/**"}})

	tests := []struct {
		name string
		id   string
		want bool
	}{
		{"ts loader", filepath.Join(root, "posts.data.ts"), true},
		{"upper case suffix", filepath.Join(root, "POSTS.DATA.MTS"), true},
		{"every extension", filepath.Join(root, "a.data.cjs"), true},
		{"query stripped", filepath.Join(root, "posts.data.ts") + "?import", true},
		{"relative id", "posts.data.ts", false},
		{"not a loader", filepath.Join(root, "helper.ts"), false},
		{"json is not a loader", filepath.Join(root, "a.data.json"), false},
		{"node_modules ignored", filepath.Join(root, "node_modules", "pkg", "index.data.js"), false},
		{"user ignore", filepath.Join(root, "drafts", "draft.data.ts"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := p.IsLoader(tt.id); got != tt.want {
				t.Errorf("IsLoader(%q) = %v, want %v", tt.id, got, tt.want)
			}
		})
	}
}

func TestPlugin_LoadSkipsNonLoaders(t *testing.T) {
	t.Parallel()

	p, root := newTestPlugin(t, Options{})
	for _, id := range []string{
		filepath.Join(root, "helper.ts"),
		filepath.Join(root, "node_modules", "pkg", "index.data.js"),
		"relative.data.ts",
	} {
		got, err := p.Load(context.Background(), id)
		if err != nil || got != nil {
			t.Errorf("Load(%q) = %v, %v, want nil, nil", id, got, err)
		}
	}
}

func TestPlugin_Load(t *testing.T) {
	t.Parallel()

	p, root := newTestPlugin(t, Options{})
	w := &recordingWatcher{}
	p.ConfigureServer(w)

	loaderPath := filepath.Join(root, "posts.data.ts")
	got, err := p.Load(context.Background(), loaderPath)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if got.ModuleSideEffects {
		t.Error("ModuleSideEffects should be false")
	}
	for _, want := range []string{"export default [", `"name": "hello.md"`, `"body": "# World"`} {
		if !strings.Contains(got.Code, want) {
			t.Errorf("Code missing %q:\n%s", want, got.Code)
		}
	}

	res, ok := p.Result(loaderPath)
	if !ok {
		t.Fatal("result was not stored")
	}
	wantPatterns := []string{filepath.ToSlash(filepath.Join(root, "content", "*.md"))}
	if diff := cmp.Diff(wantPatterns, res.DependencyPatterns()); diff != "" {
		t.Errorf("DependencyPatterns mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{loaderPath}, res.Dependencies()); diff != "" {
		t.Errorf("Dependencies mismatch (-want +got):\n%s", diff)
	}
	if !res.DependsOn(filepath.Join(root, "content", "new.md")) {
		t.Error("result should depend on files matching the declared pattern")
	}

	if diff := cmp.Diff(append(wantPatterns, loaderPath), w.patterns()); diff != "" {
		t.Errorf("watcher patterns mismatch (-want +got):\n%s", diff)
	}
}

func TestPlugin_LoadPromiseExport(t *testing.T) {
	t.Parallel()

	p, root := newTestPlugin(t, Options{})
	got, err := p.Load(context.Background(), filepath.Join(root, "uses.data.ts"))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	want := "export const answer = 42;\nexport const later = Promise.resolve(\"done\");\n"
	if got.Code != want {
		t.Errorf("Code =\n%s\nwant\n%s", got.Code, want)
	}
}

func TestPlugin_LoadCommonJS(t *testing.T) {
	t.Parallel()

	p, root := newTestPlugin(t, Options{})
	got, err := p.Load(context.Background(), filepath.Join(root, "legacy.data.cjs"))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	want := "export default {\n  \"title\": \"Legacy\",\n  \"count\": 2\n};\n" +
		"export const title = \"Legacy\";\n" +
		"export const count = 2;\n"
	if diff := cmp.Diff(want, got.Code); diff != "" {
		t.Errorf("Code mismatch (-want +got):\n%s", diff)
	}
}

func TestPlugin_ReloadReplacesResult(t *testing.T) {
	t.Parallel()

	p, root := newTestPlugin(t, Options{})
	loaderPath := filepath.Join(root, "uses.data.ts")

	if _, err := p.Load(context.Background(), loaderPath); err != nil {
		t.Fatal(err)
	}
	first, _ := p.Result(loaderPath)

	testutil.MustWriteFile(t, filepath.Join(root, "helper.ts"), "export const base = 50\n")
	got, err := p.Load(context.Background(), loaderPath)
	if err != nil {
		t.Fatal(err)
	}
	second, _ := p.Result(loaderPath)

	if first == second {
		t.Error("reload should replace the stored result")
	}
	if !strings.Contains(got.Code, "export const answer = 100;") {
		t.Errorf("reload did not pick up the change:\n%s", got.Code)
	}
	if n := p.cache.Len(); n != 1 {
		t.Errorf("cache.Len() = %d, want 1 after reload", n)
	}
}

func TestPlugin_LoadErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		file      string
		policy    commentconfig.Policy
		wantErr   error
		wantIssue issue.Id
	}{
		{"compile", "broken.data.ts", commentconfig.PolicyStrict, loader.ErrCompile, issue.LoaderCompileFailedId},
		{"unsafe export", "unsafe.data.js", commentconfig.PolicyStrict, jssafe.ErrNotJSONSafe, issue.ValueNotJSONSafeId},
		{"bad comment", "bad-comment.data.ts", commentconfig.PolicyStrict, commentconfig.ErrInvalidConfig, issue.CommentConfigInvalidId},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			p, root := newTestPlugin(t, Options{Policy: tt.policy})
			path := filepath.Join(root, tt.file)
			got, err := p.Load(context.Background(), path)
			if got != nil {
				t.Errorf("Load() returned output %v on error", got)
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Load() error = %v, want %v", err, tt.wantErr)
			}

			var ae *issue.ActionableError
			if !errors.As(err, &ae) {
				t.Fatalf("Load() error = %T, want *issue.ActionableError", err)
			}
			if ae.Operation != "load data loader" || ae.Resource != path {
				t.Errorf("Operation = %q, Resource = %q", ae.Operation, ae.Resource)
			}
			if ae.Issue != tt.wantIssue {
				t.Errorf("Issue = %v, want %v", ae.Issue, tt.wantIssue)
			}
			if len(ae.Suggestions) == 0 {
				t.Error("expected a suggestion")
			}
			if _, ok := p.Result(path); ok {
				t.Error("failed load must not store a result")
			}
			if n := p.cache.Len(); n != 0 {
				t.Errorf("cache.Len() = %d, want 0 after a failed load", n)
			}
		})
	}
}

func TestPlugin_LenientCommentConfig(t *testing.T) {
	t.Parallel()

	p, root := newTestPlugin(t, Options{Policy: commentconfig.PolicyLenient})
	got, err := p.Load(context.Background(), filepath.Join(root, "bad-comment.data.ts"))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if got.Code != "export const x = 1;\n" {
		t.Errorf("Code = %q", got.Code)
	}
}

func TestPlugin_HandleHotUpdate(t *testing.T) {
	t.Parallel()

	p, root := newTestPlugin(t, Options{})
	graph := NewModuleGraph()
	posts := filepath.Join(root, "posts.data.ts")
	uses := filepath.Join(root, "uses.data.ts")
	for _, path := range []string{posts, uses} {
		if _, err := p.Load(context.Background(), path); err != nil {
			t.Fatal(err)
		}
		graph.EnsureModule(path)
	}
	direct := &ModuleNode{ID: "direct", File: "direct"}

	tests := []struct {
		name    string
		file    string
		modules []*ModuleNode
		want    []string
	}{
		{"declared pattern", filepath.Join(root, "content", "hello.md"), nil, []string{posts}},
		{"tracked import", filepath.Join(root, "helper.ts"), nil, []string{uses}},
		{"the loader itself", uses, []*ModuleNode{graph.ModuleByID(uses)}, []string{uses}},
		{"keeps host modules first", filepath.Join(root, "helper.ts"), []*ModuleNode{direct}, []string{"direct", uses}},
		{"unrelated file", filepath.Join(root, "main.ts"), nil, []string{}},
		{"query stripped", filepath.Join(root, "helper.ts") + "?t=1", nil, []string{uses}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := p.HandleHotUpdate(HotUpdateContext{File: tt.file, Modules: tt.modules, Graph: graph})
			ids := make([]string, 0, len(got))
			for _, m := range got {
				ids = append(ids, m.ID)
			}
			if diff := cmp.Diff(tt.want, ids); diff != "" {
				t.Errorf("HandleHotUpdate() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestPlugin_ConcurrentLoads(t *testing.T) {
	t.Parallel()

	p, root := newTestPlugin(t, Options{})
	paths := []string{
		filepath.Join(root, "posts.data.ts"),
		filepath.Join(root, "uses.data.ts"),
		filepath.Join(root, "posts.data.ts"),
		filepath.Join(root, "uses.data.ts"),
	}

	var wg sync.WaitGroup
	errs := make([]error, len(paths))
	for i, path := range paths {
		wg.Go(func() {
			_, errs[i] = p.Load(context.Background(), path)
		})
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("Load(%s) error: %v", paths[i], err)
		}
	}
	for _, path := range paths[:2] {
		if _, ok := p.Result(path); !ok {
			t.Errorf("no result for %s", path)
		}
	}
}
