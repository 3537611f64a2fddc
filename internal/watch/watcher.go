// SPDX-License-Identifier: MPL-2.0

// Package watch reports file changes to a debounced callback.
//
// A Watcher monitors every non-ignored directory under its base dir and the
// directories of patterns added while it runs, so data loader dependencies
// outside the project root are still observed. Events within the debounce
// window are coalesced and the callback fires once with the absolute paths
// of all changed files.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
)

// defaultDebounce lets an editor's write-then-rename settle into one
// callback.
const defaultDebounce = 100 * time.Millisecond

// defaultIgnores are matched against paths relative to the base dir and are
// always applied.
var defaultIgnores = []string{
	"**/.git/**",
	"**/node_modules/**",
	"**/.esdata-*/**",
	"**/*.swp",
	"**/*.swo",
	"**/*~",
	"**/.DS_Store",
}

// ErrInvalidPattern is wrapped by errors about malformed globs.
var ErrInvalidPattern = errors.New("invalid watch pattern")

type (
	// Config holds the parameters for a Watcher.
	Config struct {
		// BaseDir is watched recursively. Empty means the working directory.
		BaseDir string

		// Patterns select which files trigger the callback. Relative
		// patterns are resolved against BaseDir. With no patterns, every
		// non-ignored file under BaseDir matches.
		Patterns []string

		// Ignore adds globs, relative to BaseDir, to the default ignores.
		Ignore []string

		// Debounce is the quiet period after the last event before the
		// callback fires. Zero or negative means defaultDebounce.
		Debounce time.Duration

		// ClearScreen writes an ANSI clear sequence to Stdout before each
		// callback.
		ClearScreen bool

		// OnChange receives the deduplicated absolute paths of the changed
		// files, sorted. A nil callback is a no-op.
		OnChange func(ctx context.Context, changed []string) error

		// Stdout defaults to os.Stdout.
		Stdout io.Writer
		// Logger defaults to slog.Default().
		Logger *slog.Logger
	}

	// Watcher monitors filesystem paths and fires a debounced callback when
	// matching files change. Run must be called exactly once. Add may be
	// called at any time, including while Run is running.
	Watcher struct {
		cfg      Config
		fsw      *fsnotify.Watcher
		ignores  []string
		stdout   io.Writer
		logger   *slog.Logger
		debounce time.Duration
		baseDir  string
		started  atomic.Bool

		mu       sync.RWMutex
		patterns []string
		watched  map[string]struct{}
	}
)

// New creates a Watcher and registers every non-ignored directory under
// BaseDir.
func New(cfg Config) (*Watcher, error) {
	baseDir := cfg.BaseDir
	if baseDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("watch: determine working directory: %w", err)
		}
		baseDir = wd
	}
	absBase, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("watch: resolve base directory: %w", err)
	}

	if err := validatePatterns(cfg.Patterns, "watch"); err != nil {
		return nil, err
	}
	if err := validatePatterns(cfg.Ignore, "ignore"); err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: create fsnotify watcher: %w", err)
	}

	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	stdout := cfg.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	w := &Watcher{
		cfg:      cfg,
		fsw:      fsw,
		ignores:  append(slices.Clone(defaultIgnores), cfg.Ignore...),
		stdout:   stdout,
		logger:   logger,
		debounce: debounce,
		baseDir:  absBase,
		watched:  make(map[string]struct{}),
	}
	for _, pat := range cfg.Patterns {
		w.patterns = append(w.patterns, w.absPattern(pat))
	}

	if err := w.addTree(absBase); err != nil {
		if closeErr := fsw.Close(); closeErr != nil {
			logger.Warn("watch: close after init failure", "error", closeErr)
		}
		return nil, err
	}
	return w, nil
}

// Add extends the set of matching files with patterns, which may be plain
// file paths. Directories that hold them are watched from now on.
func (w *Watcher) Add(patterns ...string) error {
	if err := validatePatterns(patterns, "watch"); err != nil {
		return err
	}

	var errs []error
	for _, pat := range patterns {
		abs := w.absPattern(pat)

		w.mu.Lock()
		if !slices.Contains(w.patterns, abs) {
			w.patterns = append(w.patterns, abs)
		}
		w.mu.Unlock()

		// base is the literal prefix; for a plain file path it is the
		// file's directory.
		base, rest := doublestar.SplitPattern(abs)
		if strings.Contains(rest, "**") {
			errs = append(errs, w.addTree(filepath.FromSlash(base)))
		} else {
			errs = append(errs, w.addDir(filepath.FromSlash(base)))
		}
	}
	return errors.Join(errs...)
}

// Patterns returns the absolute patterns in use.
func (w *Watcher) Patterns() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return slices.Clone(w.patterns)
}

// Run blocks until ctx is cancelled, processing filesystem events and
// dispatching debounced callbacks. It returns nil on cancellation and an
// error when the watcher breaks.
func (w *Watcher) Run(ctx context.Context) error {
	if !w.started.CompareAndSwap(false, true) {
		return errors.New("watch: Run called more than once")
	}

	var (
		mu      sync.Mutex
		pending = make(map[string]struct{})
		timer   *time.Timer
		running atomic.Bool
	)

	// fire may run after ctx is cancelled because it is scheduled by
	// time.AfterFunc. Callbacks never overlap: a busy watcher retries later.
	fire := func() {
		if ctx.Err() != nil {
			return
		}
		if !running.CompareAndSwap(false, true) {
			w.logger.Debug("watch: previous run still in progress, retrying")
			mu.Lock()
			if timer != nil {
				timer.Reset(w.debounce)
			}
			mu.Unlock()
			return
		}
		defer running.Store(false)

		mu.Lock()
		if len(pending) == 0 {
			mu.Unlock()
			return
		}
		changed := slices.Sorted(maps.Keys(pending))
		clear(pending)
		mu.Unlock()

		if w.cfg.ClearScreen {
			fmt.Fprint(w.stdout, "\033[2J\033[H")
		}
		if w.cfg.OnChange != nil {
			if err := w.cfg.OnChange(ctx, changed); err != nil {
				w.logger.Error("watch: callback failed", "error", err)
			}
		}
	}

	defer func() {
		mu.Lock()
		if timer != nil {
			timer.Stop()
		}
		mu.Unlock()
		if err := w.fsw.Close(); err != nil {
			w.logger.Warn("watch: close fsnotify", "error", err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case evt, ok := <-w.fsw.Events:
			if !ok {
				return errors.New("watch: fsnotify event channel closed unexpectedly")
			}
			path, err := filepath.Abs(evt.Name)
			if err != nil {
				path = evt.Name
			}
			if w.isIgnored(path) {
				continue
			}
			if evt.Has(fsnotify.Create) {
				w.maybeAddDir(path)
			}
			if !w.Matches(path) {
				continue
			}

			mu.Lock()
			pending[path] = struct{}{}
			if timer == nil {
				timer = time.AfterFunc(w.debounce, fire)
			} else {
				timer.Reset(w.debounce)
			}
			mu.Unlock()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return errors.New("watch: fsnotify error channel closed unexpectedly")
			}
			if isFatalWatchError(err) {
				return fmt.Errorf("watch: fatal fsnotify error: %w", err)
			}
			w.logger.Warn("watch: fsnotify error", "error", err)
		}
	}
}

// Matches reports whether a change to the absolute path should trigger the
// callback.
func (w *Watcher) Matches(path string) bool {
	if w.isIgnored(path) {
		return false
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	if len(w.cfg.Patterns) == 0 && w.underBase(path) {
		return true
	}
	slashed := filepath.ToSlash(path)
	for _, pat := range w.patterns {
		if matched, err := doublestar.Match(pat, slashed); err == nil && matched {
			return true
		}
	}
	return false
}

// addTree watches root and every non-ignored directory below it.
func (w *Watcher) addTree(root string) error {
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		// The tree may appear later; its parent picks it up on create.
		return w.addDir(filepath.Dir(root))
	}

	walkErr := filepath.WalkDir(root, func(path string, d os.DirEntry, walkDirErr error) error {
		if walkDirErr != nil {
			w.logger.Warn("watch: skipping inaccessible path", "path", path, "error", walkDirErr)
			return nil //nolint:nilerr // inaccessible dirs are skipped, not fatal
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && w.isIgnored(path) {
			return filepath.SkipDir
		}
		return w.addDir(path)
	})
	if walkErr != nil {
		return fmt.Errorf("watch: walk directory tree: %w", walkErr)
	}
	return nil
}

func (w *Watcher) addDir(dir string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.watched[dir]; ok {
		return nil
	}
	if _, err := os.Stat(dir); err != nil {
		return nil //nolint:nilerr // missing dirs are not watchable yet
	}
	if err := w.fsw.Add(dir); err != nil {
		return fmt.Errorf("watch: add directory %q: %w", dir, err)
	}
	w.watched[dir] = struct{}{}
	return nil
}

// maybeAddDir extends the watch to directories created after startup.
func (w *Watcher) maybeAddDir(path string) {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return
	}
	if err := w.addTree(path); err != nil {
		w.logger.Warn("watch: add new directory", "path", path, "error", err)
	}
}

// isIgnored matches the ignore globs against path relative to the base
// dir, with and without a trailing slash so that "dir/**" prunes dir itself.
func (w *Watcher) isIgnored(path string) bool {
	rel, err := filepath.Rel(w.baseDir, path)
	if err != nil {
		rel = path
	}
	rel = filepath.ToSlash(rel)
	for _, pat := range w.ignores {
		for _, candidate := range []string{rel, rel + "/"} {
			if matched, matchErr := doublestar.Match(pat, candidate); matchErr == nil && matched {
				return true
			}
		}
	}
	return false
}

func (w *Watcher) underBase(path string) bool {
	rel, err := filepath.Rel(w.baseDir, path)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func (w *Watcher) absPattern(pat string) string {
	if !filepath.IsAbs(pat) && !strings.HasPrefix(pat, "/") {
		pat = filepath.Join(w.baseDir, pat)
	}
	return filepath.ToSlash(pat)
}

// DefaultIgnores returns a copy of the built-in ignore patterns.
func DefaultIgnores() []string {
	return slices.Clone(defaultIgnores)
}

func validatePatterns(patterns []string, label string) error {
	for _, pat := range patterns {
		if pat == "" || !doublestar.ValidatePattern(filepath.ToSlash(pat)) {
			return fmt.Errorf("watch: %w: %s pattern %q", ErrInvalidPattern, label, pat)
		}
	}
	return nil
}
