// Package watch finds model files under a directory and re-checks them when
// they change.
package watch

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
)

// DefaultDebounce is how long the watcher waits for more changes before it
// hands a batch to the handler.
const DefaultDebounce = 2 * time.Second

// ignoredDirs are never searched for models.
var ignoredDirs = []string{
	".git",
	".cegar",
	"node_modules",
	"vendor",
}

// Handler receives a batch of changed model files as absolute, sorted paths.
type Handler func(ctx context.Context, paths []string)

// Options tunes Watch. Zero fields take defaults.
type Options struct {
	Debounce time.Duration
	Logger   *slog.Logger

	// Ready, if set, is closed once the directory tree is being watched.
	Ready chan<- struct{}
}

// IsModelFile reports whether path names a YAML model.
func IsModelFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// Models returns the model files under root in lexical order, skipping
// ignored directories and paths matched by root's .gitignore. A root that
// is itself a file is returned as is.
func Models(root string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", root, err)
	}
	if !info.IsDir() {
		return []string{root}, nil
	}

	matcher, err := loadGitignoreMatcher(root)
	if err != nil {
		return nil, err
	}

	var models []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && shouldIgnoreDir(d.Name(), path, root, matcher) {
				return filepath.SkipDir
			}
			return nil
		}
		if shouldWatchFile(path, root, matcher) {
			models = append(models, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing models: %w", err)
	}
	return models, nil
}

// Watch monitors root for changed model files and passes them to handle in
// batches. Blocks until the context is cancelled.
func Watch(ctx context.Context, root string, opts Options, handle Handler) error {
	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	root, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("resolving %s: %w", root, err)
	}

	// Continue without gitignore if it cannot be read
	matcher, err := loadGitignoreMatcher(root)
	if err != nil {
		logger.Warn("ignoring unreadable .gitignore", "error", err)
		matcher = nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	if err := addTree(watcher, root, root, matcher); err != nil {
		return fmt.Errorf("setting up watcher: %w", err)
	}
	if opts.Ready != nil {
		close(opts.Ready)
	}

	// Batch changed files so an editor's burst of writes triggers one check
	changed := make(map[string]bool)
	batchTimer := time.NewTimer(debounce)
	batchTimer.Stop()

	logger.Info("watching for model changes", "root", root)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if !shouldIgnoreDir(info.Name(), event.Name, root, matcher) {
						if err := addTree(watcher, event.Name, root, matcher); err != nil {
							logger.Warn("cannot watch new directory", "path", event.Name, "error", err)
						}
					}
					continue
				}
			}

			if !shouldWatchFile(event.Name, root, matcher) {
				continue
			}
			if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				delete(changed, event.Name)
				logger.Info("model removed", "path", event.Name)
				continue
			}

			changed[event.Name] = true
			batchTimer.Reset(debounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Error("watch error", "error", err)

		case <-batchTimer.C:
			if len(changed) == 0 {
				continue
			}
			paths := make([]string, 0, len(changed))
			for p := range changed {
				paths = append(paths, p)
			}
			slices.Sort(paths)
			changed = make(map[string]bool)

			logger.Info("re-checking changed models", "count", len(paths))
			handle(ctx, paths)
		}
	}
}

// addTree watches dir and every directory below it that is not ignored.
func addTree(watcher *fsnotify.Watcher, dir, root string, matcher gitignore.Matcher) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && shouldIgnoreDir(d.Name(), path, root, matcher) {
			return filepath.SkipDir
		}
		return watcher.Add(path)
	})
}

// shouldWatchFile checks if a file is a model that is not ignored.
func shouldWatchFile(path string, root string, matcher gitignore.Matcher) bool {
	if !IsModelFile(path) {
		return false
	}
	relPath, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	if matcher != nil {
		pathParts := strings.Split(relPath, string(filepath.Separator))
		if matcher.Match(pathParts, false) {
			return false
		}
	}
	return true
}

// shouldIgnoreDir checks if a directory should be skipped.
func shouldIgnoreDir(name, path, root string, matcher gitignore.Matcher) bool {
	if slices.Contains(ignoredDirs, name) {
		return true
	}
	if matcher != nil {
		relPath, err := filepath.Rel(root, path)
		if err != nil {
			return false
		}
		pathParts := strings.Split(relPath, string(filepath.Separator))
		return matcher.Match(pathParts, true)
	}
	return false
}

// loadGitignoreMatcher loads a gitignore matcher from root, or nil if there
// is no .gitignore.
func loadGitignoreMatcher(root string) (gitignore.Matcher, error) {
	content, err := os.ReadFile(filepath.Join(root, ".gitignore"))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading .gitignore: %w", err)
	}

	var patterns []gitignore.Pattern
	for _, line := range strings.Split(string(content), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, gitignore.ParsePattern(line, nil))
	}
	return gitignore.NewMatcher(patterns), nil
}
