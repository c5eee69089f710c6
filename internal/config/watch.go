package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/veil-waf/veil-detect/internal/detect"
)

// reloadDelay coalesces the burst of events an editor emits on save.
const reloadDelay = 200 * time.Millisecond

// WatchRules reloads the rule document at path whenever it changes and hands
// the new config to onChange along with any per-field warnings. A document
// that cannot be read or is not a JSON object keeps the current rules. It
// blocks until ctx is cancelled.
func WatchRules(ctx context.Context, path string, logger *slog.Logger, onChange func(cfg detect.Config, warnings error)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()

	// Watch the directory so atomic rename-over saves are seen.
	dir := filepath.Dir(path)
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	name := filepath.Clean(path)

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	logger.Info("watching rules", "path", path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != name || !ev.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
				continue
			}
			timer.Reset(reloadDelay)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warn("rules watcher error", "error", err)
		case <-timer.C:
			cfg, err := LoadRules(path)
			if err != nil {
				var pathErr *fs.PathError
				if errors.Is(err, ErrInvalidDocument) || errors.As(err, &pathErr) {
					logger.Warn("rules reload skipped", "path", path, "error", err)
					continue
				}
				logger.Warn("rules reloaded with warnings", "path", path, "error", err)
			} else {
				logger.Info("rules reloaded", "path", path, "mode", cfg.Mode)
			}
			onChange(cfg, err)
		}
	}
}
