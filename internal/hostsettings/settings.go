package hostsettings

import (
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
)

// Well-known keys.
const (
	KeyEnabledMods     = "enabled_mods"
	KeyModLoader       = "enable_mod_loader"
	KeyModsInitialized = "_mods_initialized"
)

// DefaultPath is the JSON settings file relative to the working directory.
const DefaultPath = "config/user_settings.json"

// Backend persists the settings map.
type Backend interface {
	Load() (map[string]any, error)
	Save(values map[string]any) error
	Close() error
}

// Option configures Settings.
type Option func(*Settings)

// WithDefault sets the value reported for key when the backend has none.
func WithDefault(key string, v any) Option {
	return func(s *Settings) { s.defaults[key] = v }
}

// Settings is the user settings store. It satisfies mods.EnabledStore.
type Settings struct {
	backend  Backend
	logger   *slog.Logger
	defaults map[string]any

	mu        sync.RWMutex
	values    map[string]any
	overrides map[string]any
	mode      string
}

// Open loads the settings held by backend.
func Open(backend Backend, logger *slog.Logger, opts ...Option) (*Settings, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Settings{
		backend: backend,
		logger:  logger,
		defaults: map[string]any{
			KeyEnabledMods:     []string{},
			KeyModLoader:       false,
			KeyModsInitialized: false,
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	values, err := backend.Load()
	if err != nil {
		return nil, fmt.Errorf("loading settings: %w", err)
	}
	if values == nil {
		values = make(map[string]any)
	}
	s.values = values
	return s, nil
}

// Close releases the backend.
func (s *Settings) Close() error { return s.backend.Close() }

// Get returns the stored value of key, or its default. Game mode overrides
// are not consulted.
func (s *Settings) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getLocked(key)
}

func (s *Settings) getLocked(key string) (any, bool) {
	if v, ok := s.values[key]; ok {
		return v, true
	}
	v, ok := s.defaults[key]
	return v, ok
}

// Set stores value under key and persists every setting.
func (s *Settings) Set(key string, value any) error {
	s.mu.Lock()
	s.values[key] = value
	snapshot := maps.Clone(s.values)
	s.mu.Unlock()

	if err := s.backend.Save(snapshot); err != nil {
		return fmt.Errorf("saving setting %s: %w", key, err)
	}
	return nil
}

// Lookup returns the active game mode override for key, falling back to the
// stored value.
func (s *Settings) Lookup(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if v, ok := s.overrides[key]; ok {
		return v, true
	}
	return s.getLocked(key)
}

// SetGameModeOverrides activates a game mode's overrides. Stored values are
// not changed.
func (s *Settings) SetGameModeOverrides(mode string, overrides map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = mode
	s.overrides = maps.Clone(overrides)
	s.logger.Debug("Game mode overrides active.", "mode", mode, "count", len(overrides))
}

// ClearGameModeOverrides removes any active overrides.
func (s *Settings) ClearGameModeOverrides() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = ""
	s.overrides = nil
}

// ActiveGameMode returns the game mode whose overrides are active.
func (s *Settings) ActiveGameMode() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mode, s.mode != ""
}

// EnabledMods returns the enabled namespaces in the user's order.
func (s *Settings) EnabledMods() []string {
	v, _ := s.Get(KeyEnabledMods)
	switch list := v.(type) {
	case []string:
		return slices.Clone(list)
	case []any:
		out := make([]string, 0, len(list))
		for _, e := range list {
			if ns, ok := e.(string); ok {
				out = append(out, ns)
			}
		}
		return out
	}
	return nil
}

// SetEnabledMods persists the enabled namespaces.
func (s *Settings) SetEnabledMods(namespaces []string) error {
	return s.Set(KeyEnabledMods, slices.Clone(namespaces))
}

// ModsInitialized reports whether the first-run bootstrap already happened.
func (s *Settings) ModsInitialized() bool { return s.flag(KeyModsInitialized) }

// SetModsInitialized persists the first-run flag.
func (s *Settings) SetModsInitialized(v bool) error { return s.Set(KeyModsInitialized, v) }

// ModLoaderEnabled reports the master toggle for the mod subsystem.
func (s *Settings) ModLoaderEnabled() bool { return s.flag(KeyModLoader) }

// SetModLoaderEnabled persists the master toggle.
func (s *Settings) SetModLoaderEnabled(v bool) error { return s.Set(KeyModLoader, v) }

func (s *Settings) flag(key string) bool {
	v, _ := s.Get(key)
	b, _ := v.(bool)
	return b
}
