package app

import (
	"context"
	"errors"
	"maps"
	"runtime/debug"

	"github.com/vk/minemods/internal/ctxlog"
	"github.com/vk/minemods/internal/devrelay"
)

// Initialize prepares the mod system: it honours the master toggle,
// registers the base game assets under the core namespace at priority 0 and
// starts the optional status server and dev relay. It returns false when the
// mod loader is disabled or the App was cleaned up. Calling it again after
// success is a no-op.
func (a *App) Initialize(ctx context.Context) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ready.Load() {
		return true
	}
	if a.closed {
		return false
	}

	if !a.settings.ModLoaderEnabled() {
		a.logger.Info("Mod loader disabled in settings.")
		return false
	}

	n, err := a.assets.RegisterModAssets(CoreNamespace, a.config.Root, 0)
	if err != nil {
		a.logger.Error("Failed to register base game assets.", "error", err)
		return false
	}
	a.logger.Debug("Base game assets registered.", "count", n)

	a.startStatusServer()
	a.dialRelay(ctx)

	a.ready.Store(true)
	a.logger.Info("Mod system initialized.")
	return true
}

func (a *App) dialRelay(ctx context.Context) {
	if a.config.RelayURL == "" {
		return
	}
	relay, err := devrelay.Dial(ctxlog.WithLogger(ctx, a.logger), devrelay.Config{
		URL:                a.config.RelayURL,
		Namespace:          a.config.RelayNS,
		InsecureSkipVerify: a.config.RelayInsecure,
	}, a.bus)
	if err != nil {
		a.logger.Warn("Dev relay unavailable, continuing without it.", "error", err)
		return
	}
	a.relay = relay
}

// DiscoverAndLoad scans the search paths and loads the enabled mods. It
// returns the load result per namespace; a dependency resolution failure is
// logged and yields an empty result.
func (a *App) DiscoverAndLoad(ctx context.Context) map[string]bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.ready.Load() {
		return map[string]bool{}
	}

	found := a.manager.Discover(false)
	a.logger.Info("Mods discovered.", "count", len(found))
	results, err := a.manager.LoadAll(ctx)
	if err != nil {
		a.logger.Error("Failed to resolve mod dependencies.", "error", err)
	}
	a.logLoadResults(results)
	return results
}

// HotReload unloads every mod, rescans the search paths and loads the
// enabled mods again.
func (a *App) HotReload(ctx context.Context) map[string]bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.ready.Load() {
		return map[string]bool{}
	}
	return a.hotReloadLocked(ctx)
}

func (a *App) hotReloadLocked(ctx context.Context) map[string]bool {
	a.logger.Info("🔄 Hot reloading mods...")
	a.assets.ClearCache()
	results, err := a.manager.Refresh(ctx)
	if err != nil {
		a.logger.Error("Failed to resolve mod dependencies.", "error", err)
	}
	a.logLoadResults(results)
	return results
}

// ReloadAll reloads the currently loaded mods without rescanning.
func (a *App) ReloadAll(ctx context.Context) map[string]bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.ready.Load() {
		return map[string]bool{}
	}
	results := a.manager.ReloadAll(ctx)
	a.logLoadResults(results)
	return results
}

// ReloadRequests returns the queue of remote reload requests, or nil when no
// dev relay is connected. The host drains it with HandleReload on its own
// goroutine.
func (a *App) ReloadRequests() <-chan devrelay.Request {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.relay == nil {
		return nil
	}
	return a.relay.Reloads()
}

// HandleReload executes a reload request: a single mod when a namespace is
// given, otherwise a full hot reload.
func (a *App) HandleReload(ctx context.Context, req devrelay.Request) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.ready.Load() {
		return errNotReady
	}
	if req.Namespace == "" {
		a.hotReloadLocked(ctx)
		return nil
	}
	return a.manager.ReloadMod(ctx, req.Namespace)
}

var errNotReady = errors.New("mod system is not initialized")

func (a *App) logLoadResults(results map[string]bool) {
	failed := 0
	for ns, ok := range results {
		if !ok {
			failed++
			a.logger.Warn("Mod failed to load.", "namespace", ns)
		}
	}
	a.logger.Info("Mods loaded.", "loaded", len(results)-failed, "failed", failed)

	if a.relay != nil {
		if err := a.relay.Send(devrelay.EventLoadResults, maps.Clone(results)); err != nil {
			a.logger.Debug("Load results not sent to dev relay.", "error", err)
		}
	}
}

// Cleanup saves mod settings, unloads every mod and stops the status server
// and dev relay. It never fails; problems are logged. The App cannot be
// initialised again afterwards.
func (a *App) Cleanup(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	a.closed = true
	defer func() {
		a.ready.Store(false)
		if r := recover(); r != nil {
			a.logger.Error("Panic during mod system cleanup.", "panic", r, "stack", string(debug.Stack()))
		}
	}()

	if err := a.modSettings.Save(); err != nil {
		a.logger.Error("Failed to save mod settings.", "error", err)
	}
	a.manager.UnloadAll(ctx)

	if a.relay != nil {
		if err := a.relay.Close(); err != nil {
			a.logger.Warn("Dev relay did not close cleanly.", "error", err)
		}
		a.relay = nil
	}
	if err := a.closeStatusServer(); err != nil {
		a.logger.Warn("Status server did not stop cleanly.", "error", err)
	}
	if err := a.settings.Close(); err != nil {
		a.logger.Warn("Failed to close user settings.", "error", err)
	}
	a.logger.Info("Mod system cleaned up.")
}
