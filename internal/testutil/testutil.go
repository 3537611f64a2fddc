// SPDX-License-Identifier: MPL-2.0

package testutil

import (
	"io"
	"os"
	"path/filepath"
	"testing"
)

// MustMkdirAll creates a directory along with any necessary parents.
// The test fails immediately if the operation fails.
func MustMkdirAll(t testing.TB, path string, perm os.FileMode) {
	t.Helper()
	if err := os.MkdirAll(path, perm); err != nil {
		t.Fatalf("failed to create directory %s: %v", path, err)
	}
}

// DeferClose returns a cleanup function that closes the given io.Closer,
// logging any errors. Useful for defer statements in tests.
func DeferClose(t testing.TB, c io.Closer) func() {
	t.Helper()
	return func() {
		t.Helper()
		if err := c.Close(); err != nil {
			t.Logf("warning: close returned error: %v", err)
		}
	}
}

// MustWriteFile writes content to path, creating parent directories as
// needed. The test fails immediately if the write fails.
func MustWriteFile(t testing.TB, path, content string) {
	t.Helper()
	MustMkdirAll(t, filepath.Dir(path), 0o755)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

// CopyFixtures copies the fixture tree at dir (usually "testdata") into a
// fresh temp dir and returns its absolute path. Data loader builds write
// next to their sources, so tests never run them inside the package tree.
func CopyFixtures(t testing.TB, dir string) string {
	t.Helper()
	dst := filepath.Join(t.TempDir(), "fixtures")
	if err := os.CopyFS(dst, os.DirFS(dir)); err != nil {
		t.Fatalf("failed to copy fixtures from %s: %v", dir, err)
	}
	return dst
}
