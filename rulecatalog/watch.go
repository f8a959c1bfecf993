package rulecatalog

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce settles bursts of editor writes into one reload.
const DefaultDebounce = 300 * time.Millisecond

// Watch reloads the catalog when a bundle file under the configured paths changes.
// Events are debounced so a burst of writes produces one reload. Watch blocks until
// ctx is done and returns nil, or returns an error if the watcher cannot start.
func (c *Catalog) Watch(ctx context.Context, debounce time.Duration) error {
	if !c.Enabled() {
		<-ctx.Done()
		return nil
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create rule catalog watcher: %w", err)
	}
	defer watcher.Close()

	for _, dir := range c.watchDirs() {
		if err := watcher.Add(dir); err != nil {
			c.opts.Logger.Warn("Rule catalog watch failed", "dir", dir, "error", err)
			continue
		}
		c.opts.Logger.Debug("Rule catalog watching directory", "dir", dir)
	}

	timer := time.NewTimer(debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Create) {
				if info, statErr := os.Stat(event.Name); statErr == nil && info.IsDir() {
					if addErr := watcher.Add(event.Name); addErr == nil {
						c.opts.Logger.Debug("Rule catalog watching new directory", "dir", event.Name)
					}
					timer.Reset(debounce)
					continue
				}
			}
			if !isBundleFile(event.Name) || event.Op == fsnotify.Chmod {
				continue
			}
			timer.Reset(debounce)

		case watchErr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			c.opts.Logger.Warn("Rule catalog watcher error", "error", watchErr)

		case <-timer.C:
			if _, reloadErr := c.Reload(); reloadErr != nil {
				c.opts.Logger.Warn("Rule catalog auto reload failed", "error", reloadErr)
			}
		}
	}
}

// watchDirs lists every directory that can hold a configured bundle: configured
// directories and their subdirectories, the parents of configured files, and the
// static base of each glob.
func (c *Catalog) watchDirs() []string {
	seen := make(map[string]struct{})
	var dirs []string
	add := func(dir string) {
		dir = canonicalPathForBoundary(dir)
		if _, ok := seen[dir]; ok {
			return
		}
		seen[dir] = struct{}{}
		dirs = append(dirs, dir)
	}

	for _, raw := range c.opts.Paths {
		path := expandUser(strings.TrimSpace(raw))
		if path == "" {
			continue
		}
		if isGlob(path) {
			base, _ := doublestar.SplitPattern(filepath.ToSlash(path))
			path = filepath.FromSlash(base)
		}
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		if !info.IsDir() {
			add(filepath.Dir(path))
			continue
		}
		_ = filepath.WalkDir(path, func(current string, d os.DirEntry, walkErr error) error {
			if walkErr == nil && d.IsDir() {
				add(current)
			}
			return nil
		})
	}
	return dirs
}
