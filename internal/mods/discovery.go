package mods

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"

	"github.com/vk/minemods/internal/fsutil"
	"github.com/vk/minemods/internal/manifest"
)

// Discover scans the search paths for mods. Results are cached for the
// discovery TTL as long as no search directory changed; force bypasses the
// cache. Broken mods are skipped and recorded in DiscoveryErrors.
func (m *Manager) Discover(force bool) []*Descriptor {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	snapshot := fsutil.ModTimes(m.cfg.SearchPaths)
	if !force && m.cacheOK && now.Sub(m.cacheAt) < m.cfg.DiscoveryTTL && fsutil.SameModTimes(snapshot, m.snapshot) {
		m.logger.Debug("Using cached mod discovery.", "count", len(m.discovered))
		return m.discoveredLocked()
	}

	m.errors = nil
	discovered := make(map[string]*Descriptor)
	var order []string

	for _, searchDir := range m.cfg.SearchPaths {
		if _, ok := snapshot[searchDir]; !ok {
			continue
		}
		dirs, err := fsutil.SubDirs(searchDir)
		if err != nil {
			m.addErrorLocked(fmt.Sprintf("cannot read search path %s: %v", searchDir, err))
			continue
		}
		for _, dir := range dirs {
			d, err := m.discoverOne(dir)
			if err != nil {
				if !errors.Is(err, manifest.ErrNoManifest) {
					m.addErrorLocked(fmt.Sprintf("error loading mod %s: %v", filepath.Base(dir), err))
				}
				continue
			}
			if prev, dup := discovered[d.Namespace]; dup {
				m.addErrorLocked(fmt.Sprintf("error loading mod %s: namespace %q already used by %s", filepath.Base(dir), d.Namespace, prev.Path))
				continue
			}
			// A loaded mod keeps its live descriptor until it is unloaded.
			if live, ok := m.loaded[d.Namespace]; ok {
				d = live
			}
			discovered[d.Namespace] = d
			order = append(order, d.Namespace)
		}
	}

	m.discovered = discovered
	m.discoveryOrder = order
	m.cacheOK = true
	m.cacheAt = now
	m.snapshot = snapshot

	m.logger.Info("Mod discovery finished.", "discovered", len(order), "errors", len(m.errors))
	return m.discoveredLocked()
}

func (m *Manager) discoverOne(dir string) (*Descriptor, error) {
	path, err := manifest.Find(dir)
	if err != nil {
		return nil, err
	}
	man, err := manifest.Load(path)
	if err != nil {
		return nil, err
	}
	return NewDescriptor(man, dir)
}

// addErrorLocked appends to the bounded discovery error log, dropping the
// oldest entry when full.
func (m *Manager) addErrorLocked(msg string) {
	m.logger.Warn("Mod discovery error.", "error", msg)
	m.errors = append(m.errors, msg)
	if len(m.errors) > maxDiscoveryErrors {
		m.errors = slices.Delete(m.errors, 0, len(m.errors)-maxDiscoveryErrors)
	}
}

// DiscoveryErrors returns the most recent discovery errors, oldest first.
func (m *Manager) DiscoveryErrors() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.errors)
}

// InvalidateDiscoveryCache forces the next Discover to rescan.
func (m *Manager) InvalidateDiscoveryCache() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cacheOK = false
}
