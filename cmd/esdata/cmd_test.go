// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/fang"

	"esdata/internal/issue"
	"esdata/internal/testutil"
)

// syncBuffer is a bytes.Buffer safe for the watcher goroutine to write while
// a test polls it.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// runCLI executes the command tree with args against the fixture project at
// root and returns what it printed.
func runCLI(ctx context.Context, t *testing.T, root string, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	out, errOut := &syncBuffer{}, &syncBuffer{}
	cmd := NewRootCommand(NewApp(Dependencies{Stdout: out, Stderr: errOut}))
	cmd.SetArgs(append([]string{"--config", filepath.Join(root, "esdata.cue")}, args...))
	err = cmd.ExecuteContext(ctx)
	return out.String(), errOut.String(), err
}

func TestBuild_InlinesLoaderData(t *testing.T) {
	t.Parallel()

	root := testutil.CopyFixtures(t, "testdata")
	outdir := filepath.Join(root, "dist")
	stdout, _, err := runCLI(t.Context(), t, root, "build", filepath.Join(root, "main.ts"), "--outdir", outdir)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if !strings.Contains(stdout, "main.js") {
		t.Errorf("stdout does not list the output file:\n%s", stdout)
	}

	bundle, err := os.ReadFile(filepath.Join(outdir, "main.js"))
	if err != nil {
		t.Fatalf("read bundle: %v", err)
	}
	if !strings.Contains(string(bundle), `"# Hello"`) {
		t.Errorf("bundle missing loader data:\n%s", bundle)
	}
	if strings.Contains(string(bundle), "readdirSync") {
		t.Errorf("loader code leaked into the bundle:\n%s", bundle)
	}
}

func TestBuild_BrokenLoader(t *testing.T) {
	t.Parallel()

	root := testutil.CopyFixtures(t, "testdata")
	_, _, err := runCLI(t.Context(), t, root, "build", filepath.Join(root, "broken.ts"), "--outdir", filepath.Join(root, "dist"))

	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("error = %v, want *ExitError", err)
	}
	if exitErr.Code != 1 {
		t.Errorf("Code = %d, want 1", exitErr.Code)
	}
	if !strings.Contains(err.Error(), "broken.data") {
		t.Errorf("error does not name the loader: %v", err)
	}
}

func TestBuild_MissingEntry(t *testing.T) {
	t.Parallel()

	root := testutil.CopyFixtures(t, "testdata")
	_, _, err := runCLI(t.Context(), t, root, "build", filepath.Join(root, "nope.ts"))

	var ae *issue.ActionableError
	if !errors.As(err, &ae) {
		t.Fatalf("error = %v, want *issue.ActionableError", err)
	}
	if ae.Issue != issue.EntryNotFoundId {
		t.Errorf("Issue = %v, want EntryNotFoundId", ae.Issue)
	}
}

func TestBuild_InvalidFlags(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"format", []string{"--format", "amd"}, "--format"},
		{"platform", []string{"--platform", "deno"}, "--platform"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			root := testutil.CopyFixtures(t, "testdata")
			args := append([]string{"build", filepath.Join(root, "main.ts")}, tt.args...)
			_, _, err := runCLI(t.Context(), t, root, args...)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want mention of %s", err, tt.want)
			}
		})
	}
}

func TestCompile(t *testing.T) {
	t.Parallel()

	root := testutil.CopyFixtures(t, "testdata")
	stdout, _, err := runCLI(t.Context(), t, root, "compile", filepath.Join(root, "posts.data.ts"))
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if !strings.HasPrefix(stdout, "export default ") {
		t.Errorf("stdout = %q, want a default export", stdout)
	}
	if !strings.Contains(stdout, `"# Hello"`) {
		t.Errorf("stdout missing loader data: %q", stdout)
	}
}

func TestCompile_NotALoader(t *testing.T) {
	t.Parallel()

	root := testutil.CopyFixtures(t, "testdata")
	_, _, err := runCLI(t.Context(), t, root, "compile", filepath.Join(root, "notes.ts"))
	if !errors.Is(err, errNotLoader) {
		t.Errorf("error = %v, want errNotLoader", err)
	}
}

func TestCompile_BrokenLoader(t *testing.T) {
	t.Parallel()

	root := testutil.CopyFixtures(t, "testdata")
	_, _, err := runCLI(t.Context(), t, root, "compile", filepath.Join(root, "broken.data.ts"))

	var ae *issue.ActionableError
	if !errors.As(err, &ae) {
		t.Fatalf("error = %v, want *issue.ActionableError", err)
	}
	if ae.Issue != issue.LoaderCompileFailedId {
		t.Errorf("Issue = %v, want LoaderCompileFailedId", ae.Issue)
	}
}

func TestConfigShow(t *testing.T) {
	t.Parallel()

	root := testutil.CopyFixtures(t, "testdata")
	stdout, _, err := runCLI(t.Context(), t, root, "config", "show")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	for _, want := range []string{
		filepath.Join(root, "esdata.cue"),
		`log_level: "error"`,
		`debounce: "50ms"`,
		`root: "` + root + `"`,
	} {
		if !strings.Contains(stdout, want) {
			t.Errorf("stdout missing %q:\n%s", want, stdout)
		}
	}
}

func TestConfigPath(t *testing.T) {
	t.Parallel()

	root := testutil.CopyFixtures(t, "testdata")
	stdout, _, err := runCLI(t.Context(), t, root, "config", "path")
	if err != nil {
		t.Fatalf("config path: %v", err)
	}
	if got, want := strings.TrimSpace(stdout), filepath.Join(root, "esdata.cue"); got != want {
		t.Errorf("stdout = %q, want %q", got, want)
	}
}

func TestConfigInit(t *testing.T) {
	t.Parallel()

	root := testutil.CopyFixtures(t, "testdata")
	dir := filepath.Join(t.TempDir(), "project")

	stdout, _, err := runCLI(t.Context(), t, root, "config", "init", dir)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	if !strings.Contains(stdout, "Created") {
		t.Errorf("stdout = %q, want a created message", stdout)
	}
	data, err := os.ReadFile(filepath.Join(dir, "esdata.cue"))
	if err != nil {
		t.Fatalf("read config: %v", err)
	}
	if !strings.Contains(string(data), `comment_config_policy: "strict"`) {
		t.Errorf("generated config:\n%s", data)
	}

	stdout, _, err = runCLI(t.Context(), t, root, "config", "init", dir)
	if err != nil {
		t.Fatalf("second config init: %v", err)
	}
	if !strings.Contains(stdout, "already exists") {
		t.Errorf("stdout = %q, want an already-exists message", stdout)
	}
}

func TestWatch_RebuildsOnContentChange(t *testing.T) {
	t.Parallel()

	root := testutil.CopyFixtures(t, "testdata")
	outdir := filepath.Join(root, "dist")
	bundle := filepath.Join(outdir, "main.js")

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	out, errOut := &syncBuffer{}, &syncBuffer{}
	cmd := NewRootCommand(NewApp(Dependencies{Stdout: out, Stderr: errOut}))
	cmd.SetArgs([]string{"--config", filepath.Join(root, "esdata.cue"), "watch", filepath.Join(root, "main.ts"), "--outdir", outdir})

	done := make(chan error, 1)
	go func() { done <- cmd.ExecuteContext(ctx) }()

	waitFor(t, done, func() bool { return strings.Contains(out.String(), "Watching for changes") })
	if data, err := os.ReadFile(bundle); err != nil || !strings.Contains(string(data), `"# Hello"`) {
		t.Fatalf("initial bundle = %q, %v", data, err)
	}

	testutil.MustWriteFile(t, filepath.Join(root, "content", "hello.md"), "# Changed\n")
	waitFor(t, done, func() bool {
		data, err := os.ReadFile(bundle)
		return err == nil && strings.Contains(string(data), `"# Changed"`)
	})

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("watch returned %v, want nil on cancel", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop after cancel")
	}
}

// waitFor polls cond until it holds, failing early if the command exits.
func waitFor(t *testing.T, done <-chan error, cond func() bool) {
	t.Helper()
	deadline := time.After(20 * time.Second)
	for !cond() {
		select {
		case err := <-done:
			t.Fatalf("command exited early: %v", err)
		case <-deadline:
			t.Fatal("timed out waiting for condition")
		case <-time.After(20 * time.Millisecond):
		}
	}
}

func TestWatchIgnores(t *testing.T) {
	t.Parallel()

	root := filepath.Join(string(filepath.Separator), "project")
	tests := []struct {
		name   string
		outdir string
		want   []string
	}{
		{"inside root", filepath.Join(root, "dist"), []string{"*.log", "dist/**"}},
		{"nested", filepath.Join(root, "build", "web"), []string{"*.log", "build/web/**"}},
		{"outside root", filepath.Join(string(filepath.Separator), "tmp", "out"), []string{"*.log"}},
		{"root itself", root, []string{"*.log"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			configured := []string{"*.log"}
			got := watchIgnores(root, tt.outdir, configured)
			if strings.Join(got, ",") != strings.Join(tt.want, ",") {
				t.Errorf("watchIgnores() = %v, want %v", got, tt.want)
			}
			if len(configured) != 1 {
				t.Errorf("configured ignores were modified: %v", configured)
			}
		})
	}
}

func TestErrorHandler(t *testing.T) {
	t.Parallel()

	actionable := issue.NewErrorContext().
		WithOperation("load data loader").
		WithResource("/project/posts.data.ts").
		WithSuggestions("Fix the loader").
		Wrap(errors.New("boom")).
		BuildError()

	tests := []struct {
		name  string
		err   error
		empty bool
		want  []string
	}{
		{"silent exit", &ExitError{Code: 2}, true, nil},
		{"actionable", actionable, false, []string{"Error:", "posts.data.ts", "Fix the loader"}},
		{"wrapped actionable", &ExitError{Code: 1, Err: actionable}, false, []string{"Error:", "Fix the loader"}},
		{"plain", errors.New("plain failure"), false, []string{"plain failure"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer
			newErrorHandler(&rootFlagValues{})(&buf, fang.Styles{}, tt.err)
			got := buf.String()
			if tt.empty {
				if got != "" {
					t.Errorf("output = %q, want nothing", got)
				}
				return
			}
			for _, want := range tt.want {
				if !strings.Contains(got, want) {
					t.Errorf("output missing %q:\n%s", want, got)
				}
			}
		})
	}
}

func TestFormatSize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		n    int
		want string
	}{
		{0, "0b"},
		{512, "512b"},
		{2048, "2.0kb"},
		{3 << 20, "3.0mb"},
	}
	for _, tt := range tests {
		if got := formatSize(tt.n); got != tt.want {
			t.Errorf("formatSize(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}

func TestVersionString(t *testing.T) {
	t.Parallel()

	if got := getVersionString(); !strings.Contains(got, "dev") {
		t.Errorf("getVersionString() = %q", got)
	}
}
