// SPDX-License-Identifier: MPL-2.0

package loader

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
)

// metafile is the subset of esbuild's metafile JSON the loader reads.
type (
	metafile struct {
		Inputs  map[string]metafileInput  `json:"inputs"`
		Outputs map[string]metafileOutput `json:"outputs"`
	}

	metafileInput struct {
		Bytes  int    `json:"bytes"`
		Format string `json:"format,omitempty"`
	}

	metafileOutput struct {
		Bytes      int      `json:"bytes"`
		Exports    []string `json:"exports"`
		EntryPoint string   `json:"entryPoint,omitempty"`
	}
)

var errNoEntryOutput = errors.New("metafile has no output for the entry point")

func parseMetafile(data string) (*metafile, error) {
	var m metafile
	if err := json.Unmarshal([]byte(data), &m); err != nil {
		return nil, fmt.Errorf("parse metafile: %w", err)
	}
	return &m, nil
}

// entryOutput returns the absolute path of the output generated for the
// entry point. Metafile paths are relative to workDir.
func (m *metafile) entryOutput(workDir string) (string, error) {
	keys := make([]string, 0, len(m.Outputs))
	for key := range m.Outputs {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if m.Outputs[key].EntryPoint == "" {
			continue
		}
		if filepath.IsAbs(key) {
			return filepath.Clean(key), nil
		}
		return filepath.Join(workDir, filepath.FromSlash(key)), nil
	}
	return "", errNoEntryOutput
}
