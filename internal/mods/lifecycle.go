package mods

import (
	"context"
	"fmt"
	"io"
	"runtime/debug"
	"slices"

	"github.com/vk/minemods/internal/ctxlog"
	"github.com/vk/minemods/internal/eventbus"
	"github.com/vk/minemods/internal/fsutil"
)

// Runtime is a mod's running code.
type Runtime interface {
	// Initialize runs the mod's required initialization hook.
	Initialize(ctx context.Context) error
	// Cleanup runs the mod's optional cleanup hook. The runtime must remove
	// the event handlers it subscribed.
	Cleanup(ctx context.Context) error
}

// Loader turns a descriptor into a Runtime. Runtimes that also implement
// io.Closer are closed when the manager releases them.
type Loader interface {
	// EntryPoint returns the path of the mod's entry script.
	EntryPoint(d *Descriptor) string
	// Open loads the mod's code without running its initialization hook.
	Open(ctx context.Context, d *Descriptor) (Runtime, error)
}

// LoadMod loads a discovered mod. Loading an already loaded mod succeeds
// without doing anything. On any failure everything the mod registered is
// rolled back, a mod.error event is published and the error is returned.
func (m *Manager) LoadMod(ctx context.Context, namespace string) error {
	m.mu.Lock()
	d, loaded, err := m.precheckLocked(namespace)
	m.mu.Unlock()
	if err != nil {
		m.logger.Warn("Cannot load mod.", "namespace", namespace, "error", err)
		return err
	}
	if loaded {
		return nil
	}

	ctx = ctxlog.WithMod(ctxlog.WithLogger(ctx, m.logger), namespace)
	logger := ctxlog.FromContext(ctx)
	if entry := m.loader.EntryPoint(d); !fsutil.IsFile(entry) {
		err := fmt.Errorf("%w: %s", ErrEntryMissing, entry)
		logger.Warn("Cannot load mod.", "error", err)
		m.publishError(ctx, d, err)
		return err
	}

	rt, err := m.activate(ctx, d)
	if err != nil {
		logger.Error("Failed to load mod; rolling back.", "error", err)
		m.rollback(namespace, rt)
		m.publishError(ctx, d, err)
		return err
	}

	m.mu.Lock()
	d.setRuntime(rt)
	m.loaded[namespace] = d
	m.loadSeq = append(m.loadSeq, namespace)
	m.mu.Unlock()

	logger.Info("Loaded mod.", "name", d.Name, "version", d.Version)
	m.publish(ctx, eventbus.ModLoad, map[string]any{
		"namespace":  namespace,
		"name":       d.Name,
		"descriptor": d.Summary(),
	})
	return nil
}

func (m *Manager) publishError(ctx context.Context, d *Descriptor, err error) {
	m.publish(ctx, eventbus.ModError, map[string]any{
		"namespace": d.Namespace,
		"name":      d.Name,
		"error":     err.Error(),
	})
}

// precheckLocked validates that namespace may be loaded now. It reports
// loaded=true when the mod is already loaded.
func (m *Manager) precheckLocked(namespace string) (*Descriptor, bool, error) {
	d, ok := m.discovered[namespace]
	if !ok {
		return nil, false, fmt.Errorf("%w: %s", ErrUnknownMod, namespace)
	}
	if _, loaded := m.loaded[namespace]; loaded {
		return d, true, nil
	}
	if len(m.loaded) >= m.cfg.MaxModsLoaded {
		return nil, false, fmt.Errorf("%w: cannot load %s, %d mods already loaded", ErrLimitReached, namespace, m.cfg.MaxModsLoaded)
	}
	if other, found := m.incompatibleLocked(d); found {
		return nil, false, fmt.Errorf("%w: %s conflicts with %s", ErrIncompatible, namespace, other)
	}
	return d, false, nil
}

// activate opens and initializes the mod and registers its declared
// settings and assets. The runtime is returned even on failure so the caller
// can release it.
func (m *Manager) activate(ctx context.Context, d *Descriptor) (rt Runtime, err error) {
	defer func() {
		if r := recover(); r != nil {
			ctxlog.FromContext(ctx).Error("Mod panicked during load.", "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("%w: %s: panic: %v", ErrInitialize, d.Namespace, r)
		}
	}()

	rt, err = m.loader.Open(ctx, d)
	if err != nil {
		return rt, fmt.Errorf("opening %s: %w", d.Namespace, err)
	}
	if rt == nil {
		return nil, fmt.Errorf("opening %s: loader returned no runtime", d.Namespace)
	}
	if err := rt.Initialize(ctx); err != nil {
		return rt, fmt.Errorf("%w: %s: %w", ErrInitialize, d.Namespace, err)
	}

	if m.declarer != nil && len(d.Settings) > 0 {
		m.declarer.RegisterModSettings(d.Namespace, d.Name, d.Settings)
	}
	if _, err := m.assets.RegisterModAssets(d.Namespace, d.Path, d.LoadPriority); err != nil {
		ctxlog.FromContext(ctx).Warn("Failed to register mod assets.", "error", err)
	}
	return rt, nil
}

func (m *Manager) rollback(namespace string, rt Runtime) {
	m.bus.UnsubscribeAll(namespace)
	m.registries.UnregisterModContent(namespace)
	m.assets.UnregisterModAssets(namespace)
	m.release(namespace, rt)
}

func (m *Manager) release(namespace string, rt Runtime) {
	c, ok := rt.(io.Closer)
	if !ok {
		return
	}
	if err := c.Close(); err != nil {
		m.logger.Warn("Failed to close mod runtime.", "namespace", namespace, "error", err)
	}
}

// incompatibleLocked returns a loaded mod that d declares incompatible, or
// that declares d incompatible.
func (m *Manager) incompatibleLocked(d *Descriptor) (string, bool) {
	for _, ns := range m.loadSeq {
		if d.Dependencies[ns] == Incompatible || m.loaded[ns].Dependencies[d.Namespace] == Incompatible {
			return ns, true
		}
	}
	return "", false
}

// UnloadMod runs the mod's cleanup hook and removes its assets, registry
// content and bookkeeping. Cleanup failures are logged and do not stop the
// unload.
func (m *Manager) UnloadMod(ctx context.Context, namespace string) error {
	m.mu.Lock()
	d, ok := m.loaded[namespace]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotLoaded, namespace)
	}

	ctx = ctxlog.WithMod(ctxlog.WithLogger(ctx, m.logger), namespace)
	logger := ctxlog.FromContext(ctx)
	rt := d.Runtime()
	m.cleanup(ctx, rt)

	m.assets.UnregisterModAssets(namespace)
	m.registries.UnregisterModContent(namespace)

	m.mu.Lock()
	delete(m.loaded, namespace)
	m.loadSeq = slices.DeleteFunc(m.loadSeq, func(ns string) bool { return ns == namespace })
	d.setRuntime(nil)
	m.mu.Unlock()

	m.release(namespace, rt)
	logger.Info("Unloaded mod.")
	m.publish(ctx, eventbus.ModUnload, map[string]any{
		"namespace": namespace,
		"name":      d.Name,
	})
	return nil
}

func (m *Manager) cleanup(ctx context.Context, rt Runtime) {
	logger := ctxlog.FromContext(ctx)
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Mod panicked during cleanup.", "panic", r, "stack", string(debug.Stack()))
		}
	}()
	if err := rt.Cleanup(ctx); err != nil {
		logger.Error("Mod cleanup failed.", "error", err)
	}
}

// UnloadAll unloads every loaded mod in reverse load order and reports the
// result per namespace.
func (m *Manager) UnloadAll(ctx context.Context) map[string]bool {
	names := m.Loaded()
	results := make(map[string]bool, len(names))
	for i := len(names) - 1; i >= 0; i-- {
		results[names[i]] = m.UnloadMod(ctx, names[i]) == nil
	}
	return results
}

// ReloadMod unloads and loads a mod again.
func (m *Manager) ReloadMod(ctx context.Context, namespace string) error {
	if err := m.UnloadMod(ctx, namespace); err != nil {
		return err
	}
	return m.LoadMod(ctx, namespace)
}

// ReloadAll unloads every loaded mod and loads the same namespaces again in
// their previous load order.
func (m *Manager) ReloadAll(ctx context.Context) map[string]bool {
	names := m.Loaded()
	m.UnloadAll(ctx)
	results := make(map[string]bool, len(names))
	for _, ns := range names {
		results[ns] = m.LoadMod(ctx, ns) == nil
	}
	return results
}

// LoadAll loads the enabled mods and their REQUIRED dependencies in
// dependency order. On first run, when nothing is enabled yet, every
// discovered mod is enabled and the choice is persisted. A resolution error
// is returned and nothing is loaded.
func (m *Manager) LoadAll(ctx context.Context) (map[string]bool, error) {
	results := map[string]bool{}

	var preferred []string
	if m.enabled != nil {
		preferred = m.enabled.EnabledMods()
	}

	if len(preferred) == 0 {
		if m.enabled != nil && m.enabled.ModsInitialized() {
			m.logger.Info("No mods enabled by user.")
			return results, nil
		}
		for _, d := range m.Discovered() {
			preferred = append(preferred, d.Namespace)
		}
		m.logger.Info("First run: enabling all discovered mods.", "mods", preferred)
		if m.enabled != nil {
			if err := m.enabled.SetEnabledMods(preferred); err != nil {
				m.logger.Warn("Failed to persist enabled mods.", "error", err)
			}
			if err := m.enabled.SetModsInitialized(true); err != nil {
				m.logger.Warn("Failed to persist first-run flag.", "error", err)
			}
		}
	}

	order, err := m.ResolveDependencies(preferred)
	if err != nil {
		return results, err
	}

	wanted := m.requiredClosure(preferred)
	var level0, level1 []string
	for _, ns := range order {
		if !wanted[ns] {
			continue
		}
		d, _ := m.Descriptor(ns)
		if len(d.Dependencies) == 0 {
			level0 = append(level0, ns)
		} else {
			level1 = append(level1, ns)
		}
	}

	for _, ns := range slices.Concat(level0, level1) {
		results[ns] = m.LoadMod(ctx, ns) == nil
	}
	return results, nil
}

// requiredClosure returns the enabled namespaces plus everything they
// transitively require, limited to discovered mods.
func (m *Manager) requiredClosure(enabled []string) map[string]bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	wanted := make(map[string]bool)
	var include func(ns string)
	include = func(ns string) {
		d, ok := m.discovered[ns]
		if !ok || wanted[ns] {
			return
		}
		wanted[ns] = true
		for _, dep := range d.DependenciesOf(Required) {
			include(dep)
		}
	}
	for _, ns := range enabled {
		include(ns)
	}
	return wanted
}

// Refresh is the hot-reload entry point: it unloads everything, rescans the
// search paths and loads the enabled mods again.
func (m *Manager) Refresh(ctx context.Context) (map[string]bool, error) {
	m.UnloadAll(ctx)
	m.Discover(true)
	return m.LoadAll(ctx)
}
