package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
)

// Changes are batched for this long before triggering a rebuild, so a
// save-all in an editor causes one rebuild instead of dozens.
const rebuildDebounce = 2 * time.Second

// Directories never worth watching regardless of gitignore.
var ignoredDirs = map[string]bool{
	".git":         true,
	".lattice":     true,
	"node_modules": true,
	"vendor":       true,
	"__pycache__":  true,
	".venv":        true,
	"venv":         true,
	"dist":         true,
	"build":        true,
}

// Watch monitors a repository and invokes rebuild after changes settle.
// Rebuilds are whole-snapshot: the callback is expected to re-ingest
// and swap the served snapshot atomically. Blocks until the context is
// cancelled. Rebuild errors are reported and watching continues.
func Watch(ctx context.Context, repoPath string, rebuild func(context.Context) error) error {
	matcher, err := loadGitignoreMatcher(repoPath)
	if err != nil {
		matcher = nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	err = filepath.Walk(repoPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return nil
		}
		if shouldIgnoreDir(info.Name(), path, repoPath, matcher) {
			return filepath.SkipDir
		}
		return watcher.Add(path)
	})
	if err != nil {
		return fmt.Errorf("setting up watcher: %w", err)
	}

	debounce := time.NewTimer(rebuildDebounce)
	debounce.Stop()
	pending := 0

	fmt.Fprintf(os.Stderr, "Watching %s for changes\n", repoPath)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !relevantChange(event.Name, repoPath, matcher) {
				continue
			}
			// New directories need to be added to the watch set.
			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if !shouldIgnoreDir(info.Name(), event.Name, repoPath, matcher) {
						_ = watcher.Add(event.Name)
					}
				}
			}
			pending++
			debounce.Reset(rebuildDebounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintf(os.Stderr, "Watch error: %v\n", err)

		case <-debounce.C:
			if pending == 0 {
				continue
			}
			fmt.Fprintf(os.Stderr, "Rebuilding after %d change(s)\n", pending)
			pending = 0
			if err := rebuild(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				fmt.Fprintf(os.Stderr, "Rebuild failed, previous snapshot still serving: %v\n", err)
			}
		}
	}
}

func relevantChange(path, repoPath string, matcher gitignore.Matcher) bool {
	relPath, err := filepath.Rel(repoPath, path)
	if err != nil {
		return false
	}
	parts := strings.Split(relPath, string(filepath.Separator))
	for _, part := range parts {
		if ignoredDirs[part] {
			return false
		}
	}
	if matcher != nil && matcher.Match(parts, false) {
		return false
	}
	return true
}

func shouldIgnoreDir(name, path, repoPath string, matcher gitignore.Matcher) bool {
	if ignoredDirs[name] {
		return true
	}
	if matcher != nil {
		relPath, err := filepath.Rel(repoPath, path)
		if err == nil && relPath != "." {
			parts := strings.Split(relPath, string(filepath.Separator))
			return matcher.Match(parts, true)
		}
	}
	return false
}

func loadGitignoreMatcher(repoPath string) (gitignore.Matcher, error) {
	content, err := os.ReadFile(filepath.Join(repoPath, ".gitignore"))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
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
