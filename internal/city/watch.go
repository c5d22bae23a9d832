package city

import (
	"CityBuilder/internal/logger"
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DebounceDelay collapses the burst of events an editor save produces.
var DebounceDelay = 150 * time.Millisecond

// Watch reloads each of paths when it changes on disk until ctx is done.
// Directories are watched rather than files so replace-on-save editors keep
// working. onReload, when set, receives every reload outcome.
func (c *City) Watch(ctx context.Context, paths []string, onReload func(Summary, error)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	tracked := make(map[string]bool, len(paths))
	dirs := map[string]bool{}
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return err
		}
		tracked[abs] = true
		dirs[filepath.Dir(abs)] = true
	}
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			return err
		}
	}
	logger.Log.Info("Watching collections", zap.Strings("paths", paths))

	dirty := map[string]bool{}
	timer := time.NewTimer(time.Hour)
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
			if !tracked[event.Name] || !(event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename)) {
				continue
			}
			dirty[event.Name] = true
			timer.Reset(DebounceDelay)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Log.Warn("Watcher error", zap.Error(err))
		case <-timer.C:
			for path := range dirty {
				delete(dirty, path)
				sum, err := c.ReloadFile(ctx, path)
				if onReload != nil {
					onReload(sum, err)
				}
			}
		}
	}
}
