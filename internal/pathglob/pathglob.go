// SPDX-License-Identifier: MPL-2.0

package pathglob

import (
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Match reports whether name matches at least one pattern.
func Match(name string, patterns ...string) bool {
	normalized := filepath.ToSlash(name)
	for _, pat := range patterns {
		if matched, err := doublestar.Match(pat, normalized); err == nil && matched {
			return true
		}
	}
	return false
}

// Valid reports whether pattern is a well-formed doublestar glob.
func Valid(pattern string) bool {
	return doublestar.ValidatePattern(pattern)
}

// NormalizeGlobs resolves patterns that begin with "." against root, converts
// all patterns to forward slashes and removes duplicates in first-seen order.
// Other patterns are kept as written.
func NormalizeGlobs(patterns []string, root string) []string {
	seen := make(map[string]struct{}, len(patterns))
	out := make([]string, 0, len(patterns))
	for _, pat := range patterns {
		if strings.HasPrefix(pat, ".") {
			pat = filepath.Join(root, pat)
		}
		pat = filepath.ToSlash(pat)
		if _, ok := seen[pat]; ok {
			continue
		}
		seen[pat] = struct{}{}
		out = append(out, pat)
	}
	return out
}

// CleanURL strips the query string and fragment from a module id.
func CleanURL(url string) string {
	if i := strings.IndexAny(url, "?#"); i >= 0 {
		return url[:i]
	}
	return url
}
