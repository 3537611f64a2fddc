// SPDX-License-Identifier: MPL-2.0

package loader

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

const tempDirPrefix = ".esdata-"

// pendingTempDirs holds temp dirs that exist right now. It is the fallback
// for process exit paths that skip the per-load cleanup.
var pendingTempDirs = struct {
	sync.Mutex
	dirs map[string]struct{}
}{dirs: make(map[string]struct{})}

// RemovePendingTempDirs removes every temp dir a load has not cleaned up
// yet. Call it on process exit and on termination signals.
func RemovePendingTempDirs() {
	pendingTempDirs.Lock()
	defer pendingTempDirs.Unlock()
	for dir := range pendingTempDirs.dirs {
		if err := os.RemoveAll(dir); err != nil {
			slog.Warn("failed to remove temp dir", "dir", dir, "error", err)
		}
		delete(pendingTempDirs.dirs, dir)
	}
}

func pendingTempDirCount() int {
	pendingTempDirs.Lock()
	defer pendingTempDirs.Unlock()
	return len(pendingTempDirs.dirs)
}

// makeTempDir creates the bundle output dir inside the nearest node_modules
// above dir, or inside dir when there is none.
func makeTempDir(dir string) (string, error) {
	base := findNodeModules(dir)
	if base == "" {
		base = dir
	}
	tempDir, err := os.MkdirTemp(base, tempDirPrefix)
	if err != nil {
		return "", fmt.Errorf("create temp dir: %w", err)
	}

	pendingTempDirs.Lock()
	pendingTempDirs.dirs[tempDir] = struct{}{}
	pendingTempDirs.Unlock()
	return tempDir, nil
}

// removeTempDir removes dir and unregisters it. Failures are logged, never
// returned.
func removeTempDir(dir string, logger *slog.Logger) {
	if err := os.RemoveAll(dir); err != nil {
		logger.Warn("failed to remove temp dir", "dir", dir, "error", err)
	}
	pendingTempDirs.Lock()
	delete(pendingTempDirs.dirs, dir)
	pendingTempDirs.Unlock()
}

// findNodeModules walks up from dir and returns the first node_modules
// directory, or "" when there is none or a stat fails unexpectedly.
func findNodeModules(dir string) string {
	for {
		candidate := filepath.Join(dir, "node_modules")
		info, err := os.Stat(candidate)
		switch {
		case err == nil && info.IsDir():
			return candidate
		case err != nil && !os.IsNotExist(err):
			return ""
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

func writeManifest(dir string, esm bool) error {
	data, err := json.Marshal(map[string]string{"type": manifestType(esm)})
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, "package.json"), data, 0o644); err != nil {
		return fmt.Errorf("write temp package.json: %w", err)
	}
	return nil
}
