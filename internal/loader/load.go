// SPDX-License-Identifier: MPL-2.0

package loader

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
	"golang.org/x/sync/errgroup"

	"esdata/internal/jsrt"
	"esdata/internal/pathglob"
)

var (
	// ErrCompile is returned when esbuild fails to bundle a data loader.
	ErrCompile = errors.New("failed to compile data loader")

	// ErrExecute is returned when the bundled data loader throws while it is
	// being evaluated.
	ErrExecute = errors.New("failed to execute data loader")
)

// Build is an executed data loader.
type Build struct {
	// Module is the executed bundle and its exports.
	Module *jsrt.Module
	// Dependencies lists every file the bundle was built from, the loader
	// itself included, in load order.
	Dependencies []string
}

// Load bundles the data loader at filename into a private temp dir,
// executes the bundle in a fresh runtime and reports the files it was built
// from. The temp dir is removed before Load returns.
func Load(ctx context.Context, filename string, opts Options) (*Build, error) {
	abs, err := filepath.Abs(pathglob.CleanURL(filename))
	if err != nil {
		return nil, fmt.Errorf("resolve data loader path: %w", err)
	}
	logger := opts.logger()
	dir := filepath.Dir(abs)

	var (
		esm     bool
		tempDir string
	)
	var g errgroup.Group
	g.Go(func() error {
		var err error
		esm, err = isESM(abs)
		return err
	})
	g.Go(func() error {
		var err error
		tempDir, err = makeTempDir(dir)
		return err
	})
	err = g.Wait()
	if tempDir != "" {
		defer removeTempDir(tempDir, logger)
	}
	if err != nil {
		return nil, err
	}
	if err := writeManifest(tempDir, esm); err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	track := newTracker()
	result := api.Build(opts.buildOptions(abs, dir, tempDir, esm, track))
	if len(result.Errors) > 0 {
		msgs := api.FormatMessages(result.Errors, api.FormatMessagesOptions{
			Kind: api.ErrorMessage,
		})
		return nil, fmt.Errorf("%w %s:\n%s", ErrCompile, abs, strings.TrimRight(strings.Join(msgs, ""), "\n"))
	}

	meta, err := parseMetafile(result.Metafile)
	if err != nil {
		return nil, fmt.Errorf("%w %s: %w", ErrCompile, abs, err)
	}
	entry, err := meta.entryOutput(dir)
	if err != nil {
		return nil, fmt.Errorf("%w %s: %w", ErrCompile, abs, err)
	}

	logger.Debug("bundled data loader", "loader", abs, "bundle", entry, "esm", esm)

	mod, err := opts.cache().Import(ctx, entry)
	if err != nil {
		return nil, fmt.Errorf("%w %s: %w", ErrExecute, abs, err)
	}

	return &Build{Module: mod, Dependencies: track.dependencies()}, nil
}
