package registry

import (
	"log/slog"
	"maps"
	"slices"
	"sync"
)

// Names of the fixed registries.
const (
	Tilesets          = "tilesets"
	GameModes         = "game_modes"
	Themes            = "themes"
	Fonts             = "fonts"
	Sounds            = "sounds"
	DifficultyPresets = "difficulty_presets"
	TileTypes         = "tile_types"
	RenderEffects     = "render_effects"
)

// Fixed lists the registries every Set starts with.
var Fixed = []string{Tilesets, GameModes, Themes, Fonts, Sounds, DifficultyPresets, TileTypes, RenderEffects}

// Module contributes built-in content to a Set.
type Module interface {
	Register(s *Set)
}

// Set is the collection of content registries shared by the host and mods.
// Values are whatever the contributing code stores: Go structs for built-in
// content, decoded tables for script mods.
type Set struct {
	logger *slog.Logger

	mu         sync.RWMutex
	registries map[string]*Registry[any]
}

// NewSet creates a Set with every fixed registry.
func NewSet(logger *slog.Logger) *Set {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Set{logger: logger, registries: make(map[string]*Registry[any])}
	for _, name := range Fixed {
		s.registries[name] = New[any](name, logger)
	}
	return s
}

// Get returns the registry with the given name.
func (s *Set) Get(name string) (*Registry[any], bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.registries[name]
	return r, ok
}

// Create returns the named registry, creating it if it does not exist yet.
func (s *Set) Create(name string) *Registry[any] {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.registries[name]; ok {
		return r
	}
	r := New[any](name, s.logger)
	s.registries[name] = r
	return r
}

// Names returns the registry names in sorted order.
func (s *Set) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Sorted(maps.Keys(s.registries))
}

// UnregisterModContent removes everything owner contributed to any registry
// and returns the number of entries removed.
func (s *Set) UnregisterModContent(owner string) int {
	s.mu.RLock()
	regs := slices.Collect(maps.Values(s.registries))
	s.mu.RUnlock()

	total := 0
	for _, r := range regs {
		total += r.UnregisterAllFor(owner)
	}
	if total > 0 {
		s.logger.Debug("Removed registry content.", "owner", owner, "count", total)
	}
	return total
}

func (s *Set) fixed(name string) *Registry[any] {
	r, _ := s.Get(name)
	return r
}

// RegisterTileset stores a tileset definition.
func (s *Set) RegisterTileset(name string, v any, owner string) bool {
	return s.fixed(Tilesets).Register(name, v, owner)
}

// Tileset looks up a tileset definition.
func (s *Set) Tileset(name string) (any, bool) { return s.fixed(Tilesets).Get(name) }

// RegisterGameMode stores a game mode definition.
func (s *Set) RegisterGameMode(name string, v any, owner string) bool {
	return s.fixed(GameModes).Register(name, v, owner)
}

// GameMode looks up a game mode definition.
func (s *Set) GameMode(name string) (any, bool) { return s.fixed(GameModes).Get(name) }

// RegisterTheme stores a theme definition.
func (s *Set) RegisterTheme(name string, v any, owner string) bool {
	return s.fixed(Themes).Register(name, v, owner)
}

// Theme looks up a theme definition.
func (s *Set) Theme(name string) (any, bool) { return s.fixed(Themes).Get(name) }

// RegisterFont stores a font definition.
func (s *Set) RegisterFont(name string, v any, owner string) bool {
	return s.fixed(Fonts).Register(name, v, owner)
}

// Font looks up a font definition.
func (s *Set) Font(name string) (any, bool) { return s.fixed(Fonts).Get(name) }
