package luamod

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/Shopify/go-lua"
	"github.com/vk/minemods/internal/assets"
	"github.com/vk/minemods/internal/eventbus"
	"github.com/vk/minemods/internal/mods"
	"github.com/vk/minemods/internal/modsettings"
	"github.com/vk/minemods/internal/registry"
)

// EntryScript is the script loaded from every mod directory.
const EntryScript = "scripts/init.lua"

// Registry slots used to keep values reachable from Go.
const (
	modKey      = "minemods.mod"
	handlersKey = "minemods.handlers"
)

// Host is the set of services exposed to scripts. Settings may be nil, in
// which case the settings API stores nothing.
type Host struct {
	Bus        *eventbus.Bus
	Assets     *assets.Resolver
	Registries *registry.Set
	Settings   *modsettings.Store
	Logger     *slog.Logger
}

// Loader opens Lua mods. It implements mods.Loader.
type Loader struct {
	host Host
}

// NewLoader creates a Loader whose runtimes use host.
func NewLoader(host Host) *Loader {
	if host.Logger == nil {
		host.Logger = slog.Default()
	}
	return &Loader{host: host}
}

// EntryPoint returns the path of the mod's init.lua.
func (ld *Loader) EntryPoint(d *mods.Descriptor) string {
	return filepath.Join(d.Path, filepath.FromSlash(EntryScript))
}

// Open creates a Lua state with the host API, runs init.lua and locates the
// mod table. The initialize hook is not called.
func (ld *Loader) Open(ctx context.Context, d *mods.Descriptor) (mods.Runtime, error) {
	r := newRuntime(ld.host, d)
	r.ctx = ctx
	defer func() { r.ctx = nil }()

	l := r.l
	lua.OpenLibraries(l)
	r.installAPI()

	entry := ld.EntryPoint(d)
	if err := lua.LoadFile(l, entry, ""); err != nil {
		msg := errorMessage(l, err)
		l.SetTop(0)
		return nil, fmt.Errorf("load %s: %s", entry, msg)
	}
	if err := l.ProtectedCall(0, 1, 0); err != nil {
		msg := errorMessage(l, err)
		l.SetTop(0)
		return nil, fmt.Errorf("run %s: %s", entry, msg)
	}

	if l.TypeOf(-1) != lua.TypeTable {
		l.Pop(1)
		l.Global("Mod")
	}
	if l.TypeOf(-1) != lua.TypeTable {
		l.SetTop(0)
		return nil, fmt.Errorf("%s must return a Mod table or define a global Mod", entry)
	}
	l.Field(-1, "initialize")
	hasInit := l.IsFunction(-1)
	l.Pop(1)
	if !hasInit {
		l.SetTop(0)
		return nil, fmt.Errorf("%s: Mod table has no initialize function", entry)
	}
	l.SetField(lua.RegistryIndex, modKey)
	return r, nil
}

// errorMessage prefers the error object left on the stack by a failed call.
func errorMessage(l *lua.State, err error) string {
	if msg, ok := l.ToString(-1); ok && msg != "" {
		return msg
	}
	return err.Error()
}
