package packs

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/sipeed/picojarvis/pkg/logger"
)

const reloadDebounce = 250 * time.Millisecond

// Watch reloads the overlay file whenever it changes until ctx is done.
// The parent directory is watched so editors that replace the file on save
// are handled too. Returns nil immediately when there is no overlay.
func (c *Catalog) Watch(ctx context.Context) error {
	if c.overlayPath == "" {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create pack watcher: %w", err)
	}
	defer watcher.Close()

	target := filepath.Clean(c.overlayPath)
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(target), err)
	}

	timer := time.NewTimer(reloadDebounce)
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
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
				timer.Reset(reloadDebounce)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.WarnCF("packs", "Pack watcher error", map[string]any{"error": err.Error()})
		case <-timer.C:
			if err := c.Reload(); err != nil {
				logger.WarnCF("packs", "Pack overlay reload failed", map[string]any{"error": err.Error()})
			}
		}
	}
}
