package luamod

import (
	"log/slog"
	"strings"

	"github.com/Shopify/go-lua"
	"github.com/vk/minemods/internal/eventbus"
	"github.com/vk/minemods/internal/manifest"
	"github.com/vk/minemods/internal/modsettings"
)

var priorities = []struct {
	name  string
	value eventbus.Priority
}{
	{"MONITOR", eventbus.Monitor},
	{"HIGHEST", eventbus.Highest},
	{"HIGH", eventbus.High},
	{"NORMAL", eventbus.Normal},
	{"LOW", eventbus.Low},
	{"LOWEST", eventbus.Lowest},
}

// installAPI defines the host globals.
func (r *Runtime) installAPI() {
	l := r.l

	l.NewTable()
	l.SetField(lua.RegistryIndex, handlersKey)

	l.NewTable()
	for k, v := range map[string]string{
		"name":      r.desc.Name,
		"namespace": r.desc.Namespace,
		"version":   r.desc.Version,
		"path":      r.desc.Path,
	} {
		l.PushString(v)
		l.SetField(-2, k)
	}
	l.SetGlobal("mod")

	l.Register("log", r.luaLog)

	l.NewTable()
	lua.SetFunctions(l, []lua.RegistryFunction{
		{Name: "subscribe", Function: r.luaSubscribe},
		{Name: "unsubscribe", Function: r.luaUnsubscribe},
		{Name: "emit", Function: r.luaEmit},
	}, 0)
	for _, p := range priorities {
		l.PushInteger(int(p.value))
		l.SetField(-2, p.name)
	}
	l.SetGlobal("events")

	l.NewTable()
	lua.SetFunctions(l, []lua.RegistryFunction{
		{Name: "path", Function: r.pathLookup(r.host.Assets.AssetPath)},
		{Name: "tileset", Function: r.pathLookup(r.host.Assets.TilesetPath)},
		{Name: "font", Function: r.pathLookup(r.host.Assets.FontPath)},
		{Name: "sound", Function: r.pathLookup(r.host.Assets.SoundPath)},
		{Name: "config", Function: r.luaConfig},
		{Name: "merged", Function: r.luaMerged},
	}, 0)
	l.SetGlobal("assets")

	l.NewTable()
	lua.SetFunctions(l, []lua.RegistryFunction{
		{Name: "register", Function: r.luaRegister},
		{Name: "get", Function: r.luaRegistryGet},
	}, 0)
	l.SetGlobal("registry")

	l.NewTable()
	lua.SetFunctions(l, []lua.RegistryFunction{
		{Name: "register", Function: r.luaSettingRegister},
		{Name: "get", Function: r.luaSettingGet},
		{Name: "set", Function: r.luaSettingSet},
	}, 0)
	l.SetGlobal("settings")
}

// log(msg [, level])
func (r *Runtime) luaLog(l *lua.State) int {
	msg := lua.CheckString(l, 1)
	level := slog.LevelInfo
	switch strings.ToLower(lua.OptString(l, 2, "info")) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	r.logger.Log(r.context(), level, msg)
	return 0
}

// events.subscribe(name, fn [, priority]) -> id
func (r *Runtime) luaSubscribe(l *lua.State) int {
	name := lua.CheckString(l, 1)
	lua.CheckType(l, 2, lua.TypeFunction)
	p := eventbus.Priority(lua.OptInteger(l, 3, int(eventbus.Normal)))

	if !r.desc.Permission.AllowsEvent(name) {
		r.logger.Warn("Mod subscribed to an event outside its permission level.", "event", name, "permission", r.desc.Permission)
	}
	id, err := r.subscribe(2, name, p)
	if err != nil {
		lua.Errorf(l, "%s", err.Error())
		return 0
	}
	l.PushInteger(int(id))
	return 1
}

// events.unsubscribe(id) -> bool
func (r *Runtime) luaUnsubscribe(l *lua.State) int {
	id := eventbus.HandlerID(lua.CheckInteger(l, 1))
	l.PushBoolean(r.unsubscribe(id))
	return 1
}

// events.emit(name [, payload]) -> cancelled, payload
func (r *Runtime) luaEmit(l *lua.State) int {
	name := lua.CheckString(l, 1)
	payload := map[string]any{}
	if l.TypeOf(2) == lua.TypeTable {
		if m, ok := toGo(l, 2).(map[string]any); ok {
			payload = m
		}
	}
	e := r.host.Bus.Publish(r.context(), name, payload)
	l.PushBoolean(e.Cancelled())
	pushValue(l, e.Payload)
	return 2
}

func (r *Runtime) pathLookup(lookup func(string) (string, bool)) lua.Function {
	return func(l *lua.State) int {
		name := lua.OptString(l, 1, "default")
		if p, ok := lookup(name); ok {
			l.PushString(p)
		} else {
			l.PushNil()
		}
		return 1
	}
}

// assets.config(name) -> table | nil, err
func (r *Runtime) luaConfig(l *lua.State) int {
	cfg, err := r.host.Assets.LoadConfig(lua.CheckString(l, 1))
	if err != nil {
		l.PushNil()
		l.PushString(err.Error())
		return 2
	}
	pushValue(l, cfg)
	return 1
}

// assets.merged(name) -> table | nil
func (r *Runtime) luaMerged(l *lua.State) int {
	cfg, ok := r.host.Assets.MergeConfigs(lua.CheckString(l, 1))
	if !ok {
		l.PushNil()
		return 1
	}
	pushValue(l, cfg)
	return 1
}

// registry.register(registryName, key, value) -> bool
func (r *Runtime) luaRegister(l *lua.State) int {
	regName := lua.CheckString(l, 1)
	key := lua.CheckString(l, 2)
	lua.CheckAny(l, 3)

	reg, ok := r.host.Registries.Get(regName)
	if !ok {
		lua.Errorf(l, "unknown registry %q", regName)
		return 0
	}
	if !r.desc.Permission.AllowsRegistry(regName) {
		r.logger.Warn("Mod wrote to a registry outside its permission level.", "registry", regName, "permission", r.desc.Permission)
	}
	l.PushBoolean(reg.Register(key, toGo(l, 3), r.desc.Namespace))
	return 1
}

// registry.get(registryName, key) -> value | nil
func (r *Runtime) luaRegistryGet(l *lua.State) int {
	reg, ok := r.host.Registries.Get(lua.CheckString(l, 1))
	if !ok {
		l.PushNil()
		return 1
	}
	v, _ := reg.Get(lua.CheckString(l, 2))
	pushValue(l, v)
	return 1
}

// settingKey qualifies a short setting name with the mod namespace. Names
// that already contain the separator are used as they are.
func (r *Runtime) settingKey(name string) string {
	if strings.Contains(name, modsettings.Separator) {
		return name
	}
	return modsettings.Key(r.desc.Namespace, name)
}

// settings.register(name, default [, type [, description]])
func (r *Runtime) luaSettingRegister(l *lua.State) int {
	name := lua.CheckString(l, 1)
	spec := manifest.Setting{
		Name:        name,
		Default:     toGo(l, 2),
		Type:        lua.OptString(l, 3, manifest.SettingUser),
		Description: lua.OptString(l, 4, ""),
	}
	if s := r.host.Settings; s != nil {
		s.RegisterModSettings(r.desc.Namespace, r.desc.Name, map[string]manifest.Setting{name: spec})
	}
	return 0
}

// settings.get(name [, default]) -> value
func (r *Runtime) luaSettingGet(l *lua.State) int {
	key := r.settingKey(lua.CheckString(l, 1))
	var v any
	var ok bool
	if s := r.host.Settings; s != nil {
		v, ok = s.Get(key)
	}
	if !ok {
		if l.IsNoneOrNil(2) {
			l.PushNil()
		} else {
			l.PushValue(2)
		}
		return 1
	}
	pushValue(l, v)
	return 1
}

// settings.set(name, value) -> bool
func (r *Runtime) luaSettingSet(l *lua.State) int {
	key := r.settingKey(lua.CheckString(l, 1))
	s := r.host.Settings
	if s == nil {
		l.PushBoolean(false)
		return 1
	}
	l.PushBoolean(s.Set(key, toGo(l, 2)) == nil)
	return 1
}
