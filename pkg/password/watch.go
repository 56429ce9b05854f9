package password

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

const reloadDebounce = 250 * time.Millisecond

// Watch reloads pool whenever the word list at path changes. It blocks until ctx ends.
func Watch(ctx context.Context, path string, pool *Pool, log *slog.Logger) error {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "password.watch")

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create password watcher: %w", err)
	}
	defer watcher.Close()

	// Editors replace files on save, so watch the directory rather than the file.
	dir := filepath.Dir(path)
	file := filepath.Base(path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	log.Debug("Password watcher started", "path", path)

	var timer *time.Timer
	reload := make(chan struct{}, 1)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !strings.EqualFold(filepath.Base(event.Name), file) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(reloadDebounce, func() {
				select {
				case reload <- struct{}{}:
				default:
				}
			})
		case <-reload:
			tokens, err := Load(path)
			if err != nil {
				log.Warn("Password list reload failed", "path", path, "error", err)
				continue
			}
			available := pool.Reload(tokens)
			log.Info("Password list reloaded", "path", path, "available", available)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn("Password watcher error", "error", err)
		}
	}
}
