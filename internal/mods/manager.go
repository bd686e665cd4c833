package mods

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/vk/minemods/internal/assets"
	"github.com/vk/minemods/internal/eventbus"
	"github.com/vk/minemods/internal/manifest"
	"github.com/vk/minemods/internal/registry"
)

// Defaults for Config.
const (
	DefaultMaxModsLoaded = 50
	DefaultDiscoveryTTL  = 10 * time.Minute
	maxDiscoveryErrors   = 10
)

// DefaultSearchPaths are scanned for mod directories when Config.SearchPaths
// is empty.
var DefaultSearchPaths = []string{"mods", "workshop"}

// Config tunes a Manager.
type Config struct {
	SearchPaths   []string
	DiscoveryTTL  time.Duration
	MaxModsLoaded int
}

func (c Config) withDefaults() Config {
	if len(c.SearchPaths) == 0 {
		c.SearchPaths = DefaultSearchPaths
	}
	if c.DiscoveryTTL <= 0 {
		c.DiscoveryTTL = DefaultDiscoveryTTL
	}
	if c.MaxModsLoaded <= 0 {
		c.MaxModsLoaded = DefaultMaxModsLoaded
	}
	return c
}

// EnabledStore is the part of the user settings store the manager consumes.
type EnabledStore interface {
	EnabledMods() []string
	SetEnabledMods(namespaces []string) error
	ModsInitialized() bool
	SetModsInitialized(bool) error
}

// SettingsDeclarer receives the settings a mod declares in its manifest.
type SettingsDeclarer interface {
	RegisterModSettings(namespace, modName string, specs map[string]manifest.Setting)
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(m *Manager) { m.logger = l } }

// WithBus sets the event bus the manager publishes lifecycle events on.
func WithBus(b *eventbus.Bus) Option { return func(m *Manager) { m.bus = b } }

// WithAssets sets the asset resolver mods register into.
func WithAssets(r *assets.Resolver) Option { return func(m *Manager) { m.assets = r } }

// WithRegistries sets the content registries cleaned up on unload.
func WithRegistries(s *registry.Set) Option { return func(m *Manager) { m.registries = s } }

// WithEnabledStore sets the user settings collaborator used by LoadAll.
func WithEnabledStore(s EnabledStore) Option { return func(m *Manager) { m.enabled = s } }

// WithSettingsDeclarer sets where declared mod settings are registered.
func WithSettingsDeclarer(s SettingsDeclarer) Option { return func(m *Manager) { m.declarer = s } }

// Manager discovers, orders, loads and unloads mods.
type Manager struct {
	cfg        Config
	loader     Loader
	logger     *slog.Logger
	bus        *eventbus.Bus
	assets     *assets.Resolver
	registries *registry.Set
	enabled    EnabledStore
	declarer   SettingsDeclarer
	now        func() time.Time

	mu         sync.Mutex
	discovered map[string]*Descriptor
	loaded     map[string]*Descriptor

	// discoveryOrder lists discovered namespaces in scan order.
	discoveryOrder []string
	// loadSeq lists loaded namespaces in the order they were loaded.
	loadSeq []string
	// order is the result of the last successful resolution.
	order []string

	errors   []string
	cacheAt  time.Time
	cacheOK  bool
	snapshot map[string]time.Time
}

// NewManager creates a Manager that opens mods with loader. Services that are
// not supplied through options are created empty.
func NewManager(cfg Config, loader Loader, opts ...Option) *Manager {
	m := &Manager{
		cfg:        cfg.withDefaults(),
		loader:     loader,
		now:        time.Now,
		discovered: make(map[string]*Descriptor),
		loaded:     make(map[string]*Descriptor),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	if m.bus == nil {
		m.bus = eventbus.New(m.logger)
	}
	if m.assets == nil {
		m.assets = assets.New(m.logger)
	}
	if m.registries == nil {
		m.registries = registry.NewSet(m.logger)
	}
	return m
}

// Bus returns the event bus.
func (m *Manager) Bus() *eventbus.Bus { return m.bus }

// Assets returns the asset resolver.
func (m *Manager) Assets() *assets.Resolver { return m.assets }

// Registries returns the content registries.
func (m *Manager) Registries() *registry.Set { return m.registries }

// Descriptor returns the discovered or loaded descriptor for namespace.
func (m *Manager) Descriptor(namespace string) (*Descriptor, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.discovered[namespace]; ok {
		return d, true
	}
	d, ok := m.loaded[namespace]
	return d, ok
}

// IsLoaded reports whether namespace is loaded.
func (m *Manager) IsLoaded(namespace string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.loaded[namespace]
	return ok
}

// Discovered returns the discovered descriptors in discovery order.
func (m *Manager) Discovered() []*Descriptor {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.discoveredLocked()
}

func (m *Manager) discoveredLocked() []*Descriptor {
	out := make([]*Descriptor, 0, len(m.discoveryOrder))
	for _, ns := range m.discoveryOrder {
		out = append(out, m.discovered[ns])
	}
	return out
}

// Loaded returns the loaded namespaces in load order.
func (m *Manager) Loaded() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.loadSeq)
}

// LoadOrder returns the order computed by the last successful resolution.
func (m *Manager) LoadOrder() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.order)
}

// Counts reports how many mods are discovered and loaded.
type Counts struct {
	Discovered int `json:"discovered"`
	Loaded     int `json:"loaded"`
}

// Counts returns the current mod counts.
func (m *Manager) Counts() Counts {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Counts{Discovered: len(m.discovered), Loaded: len(m.loaded)}
}

func (m *Manager) publish(ctx context.Context, name string, payload map[string]any) {
	m.bus.Publish(ctx, name, payload)
}
