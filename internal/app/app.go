package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"sync/atomic"

	"github.com/vk/minemods/internal/assets"
	"github.com/vk/minemods/internal/ctxlog"
	"github.com/vk/minemods/internal/devrelay"
	"github.com/vk/minemods/internal/eventbus"
	"github.com/vk/minemods/internal/hostsettings"
	"github.com/vk/minemods/internal/luamod"
	"github.com/vk/minemods/internal/mods"
	"github.com/vk/minemods/internal/modsettings"
	"github.com/vk/minemods/internal/registry"
)

// Option customises New.
type Option func(*options)

type options struct {
	outW    io.Writer
	loader  mods.Loader
	backend hostsettings.Backend
	modules []registry.Module
}

// WithOutput sets where logs are written. The default is stderr.
func WithOutput(w io.Writer) Option { return func(o *options) { o.outW = w } }

// WithLoader replaces the Lua loader, mainly for tests.
func WithLoader(l mods.Loader) Option { return func(o *options) { o.loader = l } }

// WithSettingsBackend replaces the backend chosen by Config.SettingsBackend.
func WithSettingsBackend(b hostsettings.Backend) Option { return func(o *options) { o.backend = b } }

// WithModules replaces the built-in content modules.
func WithModules(m ...registry.Module) Option { return func(o *options) { o.modules = m } }

// App is the integration facade the game talks to. It owns every mod
// service and serialises lifecycle calls, so it is safe to use from several
// goroutines.
type App struct {
	ctx    context.Context
	config *Config
	logger *slog.Logger

	bus         *eventbus.Bus
	registries  *registry.Set
	assets      *assets.Resolver
	modSettings *modsettings.Store
	settings    *hostsettings.Settings
	manager     *mods.Manager

	// mu serialises lifecycle operations. It is never held by Emit or the
	// asset lookups, so bus handlers may call back into those.
	mu         sync.Mutex
	ready      atomic.Bool
	closed     bool
	httpServer *http.Server
	relay      relayConn
}

// relayConn is the part of *devrelay.Relay the App uses.
type relayConn interface {
	Reloads() <-chan devrelay.Request
	Send(event string, data any) error
	Close() error
}

// New builds the services in dependency order: logger, bus, registries,
// resolver, mod settings, host settings, loader and manager. Nothing is
// discovered or loaded until Initialize.
func New(cfg *Config, opts ...Option) (*App, error) {
	o := options{outW: os.Stderr, modules: coreModules}
	for _, opt := range opts {
		opt(&o)
	}

	logger := newLogger(cfg.LogLevel, cfg.LogFormat, o.outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	bus := eventbus.New(logger)

	registries := registry.NewSet(logger)
	for _, m := range o.modules {
		m.Register(registries)
	}
	logger.Debug("Built-in content registered.", "modules", len(o.modules))

	var assetOpts []assets.Option
	if cfg.MaxAssetSize > 0 {
		assetOpts = append(assetOpts, assets.WithMaxFileSize(cfg.MaxAssetSize))
	}
	resolver := assets.New(logger, assetOpts...)

	modSettings := modsettings.New(cfg.resolve(cfg.ModSettingsPath), logger)

	backend := o.backend
	if backend == nil {
		var err error
		if backend, err = openBackend(cfg); err != nil {
			return nil, err
		}
	}
	settings, err := hostsettings.Open(backend, logger,
		hostsettings.WithDefault(hostsettings.KeyModLoader, cfg.EnableModLoader))
	if err != nil {
		backend.Close()
		return nil, fmt.Errorf("failed to open user settings: %w", err)
	}

	loader := o.loader
	if loader == nil {
		loader = luamod.NewLoader(luamod.Host{
			Bus:        bus,
			Assets:     resolver,
			Registries: registries,
			Settings:   modSettings,
			Logger:     logger,
		})
	}

	manager := mods.NewManager(mods.Config{
		SearchPaths:   cfg.searchPaths(),
		DiscoveryTTL:  cfg.DiscoveryTTL,
		MaxModsLoaded: cfg.MaxModsLoaded,
	}, loader,
		mods.WithLogger(logger),
		mods.WithBus(bus),
		mods.WithAssets(resolver),
		mods.WithRegistries(registries),
		mods.WithEnabledStore(settings),
		mods.WithSettingsDeclarer(modSettings),
	)

	return &App{
		ctx:         ctx,
		config:      cfg,
		logger:      logger,
		bus:         bus,
		registries:  registries,
		assets:      resolver,
		modSettings: modSettings,
		settings:    settings,
		manager:     manager,
	}, nil
}

func openBackend(cfg *Config) (hostsettings.Backend, error) {
	path := cfg.resolve(cfg.SettingsPath)
	if cfg.SettingsBackend == BackendSQLite {
		db, err := hostsettings.OpenSQLite(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open user settings: %w", err)
		}
		return db, nil
	}
	return hostsettings.JSONFile{Path: path}, nil
}

// Logger returns the application logger.
func (a *App) Logger() *slog.Logger { return a.logger }

// Bus returns the event bus.
func (a *App) Bus() *eventbus.Bus { return a.bus }

// Registries returns the content registries.
func (a *App) Registries() *registry.Set { return a.registries }

// Assets returns the asset resolver.
func (a *App) Assets() *assets.Resolver { return a.assets }

// Manager returns the mod manager.
func (a *App) Manager() *mods.Manager { return a.manager }

// ModSettings returns the mod settings store.
func (a *App) ModSettings() *modsettings.Store { return a.modSettings }

// Settings returns the user settings.
func (a *App) Settings() *hostsettings.Settings { return a.settings }

// Ready reports whether Initialize succeeded and Cleanup has not run since.
func (a *App) Ready() bool { return a.ready.Load() }

// Emit publishes an event. It returns nil when the mod system is not
// initialised. Handlers may call Emit and the asset lookups again; they must
// not call lifecycle methods such as HotReload.
func (a *App) Emit(ctx context.Context, name string, payload map[string]any) *eventbus.Event {
	if !a.ready.Load() {
		return nil
	}
	return a.bus.Publish(ctx, name, payload)
}

// AssetPath resolves an asset name. It reports false when the mod system is
// not initialised.
func (a *App) AssetPath(name string) (string, bool) {
	if !a.Ready() {
		return "", false
	}
	return a.assets.AssetPath(name)
}

// TilesetPath resolves a tileset name.
func (a *App) TilesetPath(name string) (string, bool) {
	if !a.Ready() {
		return "", false
	}
	return a.assets.TilesetPath(name)
}

// FontPath resolves a font name.
func (a *App) FontPath(name string) (string, bool) {
	if !a.Ready() {
		return "", false
	}
	return a.assets.FontPath(name)
}

// SoundPath resolves a sound name.
func (a *App) SoundPath(name string) (string, bool) {
	if !a.Ready() {
		return "", false
	}
	return a.assets.SoundPath(name)
}

// ModCount reports discovered and loaded mod counts.
func (a *App) ModCount() mods.Counts { return a.manager.Counts() }
