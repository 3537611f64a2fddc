// SPDX-License-Identifier: MPL-2.0

package loader

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// isESM reports whether filename is an ECMAScript module, from its
// extension or else from the "type" field of the nearest package.json.
func isESM(filename string) (bool, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".cjs", ".cts":
		return false, nil
	case ".mjs", ".mts":
		return true, nil
	}

	dir := filepath.Dir(filename)
	for {
		data, err := os.ReadFile(filepath.Join(dir, "package.json"))
		switch {
		case err == nil:
			var manifest struct {
				Type string `json:"type"`
			}
			if err := json.Unmarshal(data, &manifest); err != nil {
				return false, fmt.Errorf("parse %s: %w", filepath.Join(dir, "package.json"), err)
			}
			return manifest.Type == "module", nil
		case !errors.Is(err, fs.ErrNotExist):
			return false, fmt.Errorf("read package.json: %w", err)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return false, nil
		}
		dir = parent
	}
}

// mainFields orders package.json entry fields for dependency resolution.
func mainFields(esm bool) []string {
	if esm {
		return []string{"module", "main"}
	}
	return []string{"main", "module"}
}

func manifestType(esm bool) string {
	if esm {
		return "module"
	}
	return "commonjs"
}
