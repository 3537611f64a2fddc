// SPDX-License-Identifier: MPL-2.0

// Package commentconfig reads the configuration comment of a data loader.
//
// A loader declares extra dependency globs in a block comment:
//
//	/* esdata {
//	  dependencies: ['./content/*.md'],
//	} */
//
// The comment body is relaxed JSON validated against an embedded CUE schema.
package commentconfig

import (
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"

	"esdata/internal/pathglob"
	"esdata/internal/rjson"
	"esdata/pkg/cueutil"
)

// Policy decides what happens to a malformed comment.
type Policy int

const (
	// PolicyStrict fails the load.
	PolicyStrict Policy = iota
	// PolicyLenient logs a warning and continues with an empty config.
	PolicyLenient
)

// ErrInvalidConfig is wrapped by every error about a malformed comment.
var ErrInvalidConfig = errors.New("invalid data loader config")

//go:embed loader_schema.cue
var loaderSchemaSource []byte

var loaderSchema = cueutil.MustCompileSchema(loaderSchemaSource, "#LoaderConfig")

var markerPattern = regexp.MustCompile(`(?s)/\*\s*esdata\s(.*?)\*/`)

type (
	// Options configures Parse.
	Options struct {
		Policy Policy
		// Logger receives lenient-mode warnings. nil means slog.Default().
		Logger *slog.Logger
		// MaxFileSize bounds the loader source. Zero means cueutil.DefaultMaxFileSize.
		MaxFileSize int64
	}

	loaderConfig struct {
		Dependencies any `json:"dependencies"`
		Watch        any `json:"watch"`
	}
)

// ParsePolicy converts "strict" or "lenient" to a Policy. The empty string
// is strict.
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "", "strict":
		return PolicyStrict, nil
	case "lenient":
		return PolicyLenient, nil
	default:
		return PolicyStrict, fmt.Errorf("unknown comment config policy %q", s)
	}
}

func (p Policy) String() string {
	if p == PolicyLenient {
		return "lenient"
	}
	return "strict"
}

// Parse reads the loader at path and returns its normalized dependency
// patterns. A loader without the comment has no patterns.
func Parse(path string, opts Options) ([]string, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read data loader: %w", err)
	}
	return ParseSource(src, path, opts)
}

// ParseSource is Parse for source already in memory. path is used to
// resolve relative patterns and to label errors.
func ParseSource(src []byte, path string, opts Options) ([]string, error) {
	maxSize := opts.MaxFileSize
	if maxSize <= 0 {
		maxSize = cueutil.DefaultMaxFileSize
	}
	if err := cueutil.CheckFileSize(src, maxSize, path); err != nil {
		return nil, err
	}

	match := markerPattern.FindSubmatch(src)
	if match == nil {
		return nil, nil
	}

	patterns, err := decode(match[1])
	if err != nil {
		err = fmt.Errorf("%w in %s: %w", ErrInvalidConfig, path, err)
		if opts.Policy != PolicyLenient {
			return nil, err
		}
		logger := opts.Logger
		if logger == nil {
			logger = slog.Default()
		}
		logger.Warn("ignoring data loader config", "path", path, "error", err)
		return nil, nil
	}

	return pathglob.NormalizeGlobs(patterns, filepath.Dir(path)), nil
}

func decode(body []byte) ([]string, error) {
	strict, err := rjson.ToJSON(string(body))
	if err != nil {
		return nil, err
	}

	cfg, err := cueutil.Decode[loaderConfig](loaderSchema, []byte(strict), cueutil.WithFilename("esdata comment"))
	if err != nil {
		return nil, err
	}

	var patterns []string
	for _, v := range []any{cfg.Dependencies, cfg.Watch} {
		list, err := stringList(v)
		if err != nil {
			return nil, err
		}
		patterns = append(patterns, list...)
	}
	return patterns, nil
}

func stringList(v any) ([]string, error) {
	switch v := v.(type) {
	case nil:
		return nil, nil
	case string:
		return []string{v}, nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("pattern %v is not a string", item)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("patterns must be a string or a list of strings, got %T", v)
	}
}
