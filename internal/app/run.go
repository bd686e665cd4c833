package app

import (
	"context"
	"time"

	"github.com/vk/minemods/internal/fsutil"
)

// DefaultWatchInterval is how often Watch polls the search paths.
const DefaultWatchInterval = 2 * time.Second

// Watch hot-reloads mods whenever files under the search paths change and
// executes reload requests from the dev relay. It blocks until ctx is done
// and must run on the goroutine that owns the game loop, because reloads
// enter Lua states.
func (a *App) Watch(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultWatchInterval
	}
	if !a.Ready() {
		return errNotReady
	}

	roots := a.config.searchPaths()
	last, err := fsutil.StampOf(roots...)
	if err != nil {
		a.logger.Warn("Failed to scan mod directories.", "error", err)
	}
	a.logger.Info("👀 Watching mod directories.", "paths", roots, "interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	requests := a.ReloadRequests()

	for {
		select {
		case <-ctx.Done():
			a.logger.Debug("Watch stopped.")
			return nil
		case req, ok := <-requests:
			if !ok {
				requests = nil
				continue
			}
			if err := a.HandleReload(ctx, req); err != nil {
				a.logger.Warn("Remote reload failed.", "target", req.Namespace, "error", err)
			}
		case <-ticker.C:
			stamp, err := fsutil.StampOf(roots...)
			if err != nil {
				a.logger.Warn("Failed to scan mod directories.", "error", err)
				continue
			}
			if stamp.Equal(last) {
				continue
			}
			last = stamp
			a.logger.Info("Mod files changed.", "files", stamp.Files)
			a.HotReload(ctx)
		}
	}
}
