// SPDX-License-Identifier: MPL-2.0

package loader

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"esdata/internal/testutil"
)

func TestIsESM(t *testing.T) {
	t.Parallel()

	dir := testutil.CopyFixtures(t, "testdata")
	testutil.MustWriteFile(t, filepath.Join(dir, "cjs-pkg", "package.json"), `{"type": "commonjs"}`)
	testutil.MustWriteFile(t, filepath.Join(dir, "bad-pkg", "package.json"), `{`)

	tests := []struct {
		name    string
		file    string
		want    bool
		wantErr bool
	}{
		{name: "mjs", file: "whatever.data.mjs", want: true},
		{name: "mts", file: "whatever.data.MTS", want: true},
		{name: "cjs", file: filepath.Join("esm-pkg", "x.data.cjs"), want: false},
		{name: "cts", file: filepath.Join("esm-pkg", "x.data.cts"), want: false},
		{name: "type module", file: filepath.Join("esm-pkg", "index.data.js"), want: true},
		{name: "type module nested", file: filepath.Join("esm-pkg", "deep", "er", "x.data.ts"), want: true},
		{name: "type commonjs", file: filepath.Join("cjs-pkg", "x.data.js"), want: false},
		{name: "invalid package.json", file: filepath.Join("bad-pkg", "x.data.js"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := isESM(filepath.Join(dir, tt.file))
			if (err != nil) != tt.wantErr {
				t.Fatalf("isESM() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("isESM() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMainFields(t *testing.T) {
	t.Parallel()

	if got := mainFields(true); got[0] != "module" {
		t.Errorf("mainFields(true) = %v", got)
	}
	if got := mainFields(false); got[0] != "main" {
		t.Errorf("mainFields(false) = %v", got)
	}
}

func TestMakeTempDir(t *testing.T) {
	t.Parallel()

	t.Run("inside nearest node_modules", func(t *testing.T) {
		t.Parallel()
		root := t.TempDir()
		testutil.MustMkdirAll(t, filepath.Join(root, "node_modules"), 0o755)
		src := filepath.Join(root, "src", "data")
		testutil.MustMkdirAll(t, src, 0o755)

		dir, err := makeTempDir(src)
		if err != nil {
			t.Fatal(err)
		}
		defer removeTempDir(dir, slog.Default())

		if filepath.Dir(dir) != filepath.Join(root, "node_modules") {
			t.Errorf("temp dir %s is not inside node_modules", dir)
		}
		if !strings.HasPrefix(filepath.Base(dir), tempDirPrefix) {
			t.Errorf("temp dir %s lacks prefix %s", dir, tempDirPrefix)
		}
	})

	t.Run("without node_modules", func(t *testing.T) {
		t.Parallel()
		root := t.TempDir()

		dir, err := makeTempDir(root)
		if err != nil {
			t.Fatal(err)
		}
		defer removeTempDir(dir, slog.Default())

		if _, err := os.Stat(dir); err != nil {
			t.Errorf("temp dir was not created: %v", err)
		}
		if !strings.HasPrefix(filepath.Base(dir), tempDirPrefix) {
			t.Errorf("temp dir %s lacks prefix %s", dir, tempDirPrefix)
		}
	})
}

func TestWriteManifest(t *testing.T) {
	t.Parallel()

	for esm, want := range map[bool]string{true: `{"type":"module"}`, false: `{"type":"commonjs"}`} {
		dir := t.TempDir()
		if err := writeManifest(dir, esm); err != nil {
			t.Fatal(err)
		}
		data, err := os.ReadFile(filepath.Join(dir, "package.json"))
		if err != nil {
			t.Fatal(err)
		}
		if string(data) != want {
			t.Errorf("manifest = %s, want %s", data, want)
		}
	}
}

// Not parallel: RemovePendingTempDirs sweeps the process-wide set.
func TestRemovePendingTempDirs(t *testing.T) {
	root := t.TempDir()
	testutil.MustMkdirAll(t, filepath.Join(root, "node_modules"), 0o755)

	dir, err := makeTempDir(root)
	if err != nil {
		t.Fatal(err)
	}
	if pendingTempDirCount() == 0 {
		t.Fatal("temp dir was not registered")
	}

	RemovePendingTempDirs()

	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Errorf("temp dir still exists: %v", err)
	}
	if n := pendingTempDirCount(); n != 0 {
		t.Errorf("pendingTempDirCount() = %d, want 0", n)
	}
}
