package luamod

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/minemods/internal/assets"
	"github.com/vk/minemods/internal/eventbus"
	"github.com/vk/minemods/internal/mods"
	"github.com/vk/minemods/internal/modsettings"
	"github.com/vk/minemods/internal/registry"
	"github.com/vk/minemods/internal/testutil"
)

type fixture struct {
	host    Host
	manager *mods.Manager
	logs    *testutil.SafeBuffer
}

// luaMod is a mod directory with a manifest and an init.lua.
type luaMod struct {
	name       string
	permission string
	script     string
	assets     map[string]string
}

func newFixture(t *testing.T, ms ...luaMod) *fixture {
	t.Helper()
	files := map[string]string{}
	for _, m := range ms {
		dir := "mods/" + mods.Namespace(m.name)
		perm := m.permission
		if perm == "" {
			perm = "SYSTEM"
		}
		doc, err := json.Marshal(map[string]any{
			"name": m.name, "version": "1.0", "api_version": "1.0.0", "permissions": perm,
		})
		require.NoError(t, err)
		files[dir+"/mod.json"] = string(doc)
		files[dir+"/"+EntryScript] = m.script
		for name, content := range m.assets {
			files[dir+"/assets/"+name] = content
		}
	}
	root := testutil.TempTree(t, files)

	logger, logs := testutil.NewLogger()
	host := Host{
		Bus:        eventbus.New(logger),
		Assets:     assets.New(logger),
		Registries: registry.NewSet(logger),
		Settings:   modsettings.New(filepath.Join(root, "mod_settings.json"), logger),
		Logger:     logger,
	}
	m := mods.NewManager(mods.Config{SearchPaths: []string{filepath.Join(root, "mods")}}, NewLoader(host),
		mods.WithLogger(logger),
		mods.WithBus(host.Bus),
		mods.WithAssets(host.Assets),
		mods.WithRegistries(host.Registries),
		mods.WithSettingsDeclarer(host.Settings),
	)
	m.Discover(false)
	return &fixture{host: host, manager: m, logs: logs}
}

const pixelScript = `
local Mod = {}

function Mod:initialize()
  self.seen = 0
  self.sub = events.subscribe("game.start", function(e)
    self.seen = self.seen + 1
    e.payload.count = (e.payload.count or 0) + 1
    e.payload.by = mod.namespace
    e.payload.tileset = assets.tileset("pixel")
    log("game started " .. self.seen, "debug")
  end, events.HIGH)
  registry.register("tilesets", "pixel", { size = 16, name = mod.name })
  settings.register("speed", 3, "user", "Animation speed")
  settings.set("speed", 5)
end

function Mod:cleanup()
  events.unsubscribe(self.sub)
  log("bye")
end

return Mod
`

func TestRuntime_Lifecycle(t *testing.T) {
	f := newFixture(t, luaMod{
		name:   "Pixel",
		script: pixelScript,
		assets: map[string]string{"tilesets/pixel.png": "png"},
	})
	ctx := context.Background()

	require.NoError(t, f.manager.LoadMod(ctx, "pixel"))

	v, ok := f.host.Registries.Tileset("pixel")
	require.True(t, ok)
	assert.Equal(t, map[string]any{"size": int64(16), "name": "Pixel"}, v)
	owner, _ := f.host.Registries.Create(registry.Tilesets).Owner("pixel")
	assert.Equal(t, "pixel", owner)

	speed, ok := f.host.Settings.Get("pixel.speed")
	require.True(t, ok)
	assert.Equal(t, int64(5), speed)

	e := f.host.Bus.Publish(ctx, eventbus.GameStart, map[string]any{"count": 1, "untouched": []string{"a"}})
	tileset, _ := f.host.Assets.TilesetPath("pixel")
	assert.Equal(t, map[string]any{
		"count":     int64(2),
		"by":        "pixel",
		"tileset":   tileset,
		"untouched": []string{"a"},
	}, e.Payload)
	assert.Contains(t, f.logs.String(), "game started 1")

	require.Len(t, f.host.Bus.Handlers(eventbus.GameStart), 1)
	d, _ := f.manager.Descriptor("pixel")
	rt := d.Runtime().(*Runtime)
	assert.Equal(t, 1, rt.Subscriptions())

	require.NoError(t, f.manager.UnloadMod(ctx, "pixel"))
	assert.Empty(t, f.host.Bus.Handlers(eventbus.GameStart))
	_, ok = f.host.Registries.Tileset("pixel")
	assert.False(t, ok)
	assert.Contains(t, f.logs.String(), "msg=bye")

	// A closed runtime refuses further calls.
	assert.ErrorIs(t, rt.Initialize(ctx), ErrClosed)
}

func TestRuntime_GlobalModTableAndEmit(t *testing.T) {
	f := newFixture(t, luaMod{name: "Glob", script: `
Mod = {
  initialize = function(self)
    local cancelled, payload = events.emit("ui.theme.change", { theme = "dark" })
    settings.set("last_cancelled", cancelled)
    settings.set("echo", payload.theme)
    settings.set("fallback", settings.get("missing", "dflt"))
  end,
}
`})
	ctx := context.Background()
	_, err := f.host.Bus.Subscribe(eventbus.UIThemeChange, func(_ context.Context, e *eventbus.Event) error {
		e.Payload["theme"] = "light"
		e.Cancel()
		return nil
	}, eventbus.High, "host")
	require.NoError(t, err)

	require.NoError(t, f.manager.LoadMod(ctx, "glob"))

	for key, want := range map[string]any{
		"glob.last_cancelled": true,
		"glob.echo":           "light",
		"glob.fallback":       "dflt",
	} {
		got, ok := f.host.Settings.Get(key)
		require.True(t, ok, key)
		assert.Equal(t, want, got, key)
	}
}

func TestRuntime_CancelFromLua(t *testing.T) {
	f := newFixture(t, luaMod{name: "Stopper", script: `
return {
  initialize = function()
    events.subscribe("game.tile.reveal", function(e) e.cancel() end, events.HIGHEST)
    events.subscribe("game.tile.reveal", function(e)
      e.payload.monitor_saw_cancel = e.cancelled()
    end, events.MONITOR)
  end,
}
`})
	ctx := context.Background()
	require.NoError(t, f.manager.LoadMod(ctx, "stopper"))

	var normalRan bool
	_, err := f.host.Bus.Subscribe(eventbus.TileReveal, func(context.Context, *eventbus.Event) error {
		normalRan = true
		return nil
	}, eventbus.Normal, "host")
	require.NoError(t, err)

	e := f.host.Bus.Publish(ctx, eventbus.TileReveal, nil)
	assert.True(t, e.Cancelled())
	assert.False(t, normalRan)
	// The monitor runs before the cancelling handler, so it saw no cancel.
	assert.Equal(t, false, e.Payload["monitor_saw_cancel"])
}

func TestRuntime_HandlerErrorIsIsolated(t *testing.T) {
	f := newFixture(t, luaMod{name: "Faulty", script: `
return {
  initialize = function()
    events.subscribe("game.end", function() error("handler boom") end)
  end,
}
`})
	ctx := context.Background()
	require.NoError(t, f.manager.LoadMod(ctx, "faulty"))

	var ran bool
	_, err := f.host.Bus.Subscribe(eventbus.GameEnd, func(context.Context, *eventbus.Event) error {
		ran = true
		return nil
	}, eventbus.Low, "host")
	require.NoError(t, err)

	f.host.Bus.Publish(ctx, eventbus.GameEnd, nil)
	assert.True(t, ran)
	logs := f.logs.String()
	assert.Contains(t, logs, "Event handler failed.")
	assert.Contains(t, logs, "owner=faulty")
	assert.Contains(t, logs, "handler boom")
}

func TestRuntime_CancelThenError(t *testing.T) {
	f := newFixture(t, luaMod{name: "Grumpy", script: `
return {
  initialize = function()
    events.subscribe("game.start", function(e)
      e.cancel()
      error("cancelled and failed")
    end, events.HIGH)
  end,
}
`})
	ctx := context.Background()
	require.NoError(t, f.manager.LoadMod(ctx, "grumpy"))

	var calls []string
	_, err := f.host.Bus.Subscribe(eventbus.GameStart, func(context.Context, *eventbus.Event) error {
		calls = append(calls, "normal")
		return nil
	}, eventbus.Normal, "host")
	require.NoError(t, err)
	_, err = f.host.Bus.Subscribe(eventbus.GameStart, func(context.Context, *eventbus.Event) error {
		calls = append(calls, "monitor")
		return nil
	}, eventbus.Monitor, "host")
	require.NoError(t, err)

	e := f.host.Bus.Publish(ctx, eventbus.GameStart, nil)
	assert.True(t, e.Cancelled())
	assert.Equal(t, []string{"monitor"}, calls)
	logs := f.logs.String()
	assert.Contains(t, logs, "owner=grumpy")
	assert.Contains(t, logs, "cancelled and failed")
}

func TestLoader_BadScripts(t *testing.T) {
	testCases := []struct {
		name    string
		script  string
		wantErr string
		initErr bool
	}{
		{name: "Not A Table", script: `return 5`, wantErr: "must return a Mod table"},
		{name: "No Init", script: `return {}`, wantErr: "no initialize function"},
		{name: "Syntax", script: `return {`, wantErr: "load "},
		{name: "Top Level Error", script: `error("top level boom")`, wantErr: "top level boom"},
		{name: "Init Error", script: `
return {
  initialize = function()
    events.subscribe("game.start", function() end)
    error("init boom")
  end,
}`, wantErr: "init boom", initErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, luaMod{name: tc.name, script: tc.script})
			ns := mods.Namespace(tc.name)

			err := f.manager.LoadMod(context.Background(), ns)
			require.Error(t, err)
			assert.ErrorContains(t, err, tc.wantErr)
			assert.Equal(t, tc.initErr, errors.Is(err, mods.ErrInitialize))
			assert.False(t, f.manager.IsLoaded(ns))
			assert.Empty(t, f.host.Bus.Handlers(eventbus.GameStart))
		})
	}
}

func TestRuntime_PermissionWarnings(t *testing.T) {
	f := newFixture(t, luaMod{name: "Skin", permission: "COSMETIC", script: `
return {
  initialize = function()
    events.subscribe("ui.render", function() end)
    registry.register("themes", "skin", "dark")
    events.subscribe("game.start", function() end)
    registry.register("game_modes", "cheat", {})
  end,
}
`})
	require.NoError(t, f.manager.LoadMod(context.Background(), "skin"))

	logs := f.logs.String()
	assert.Contains(t, logs, "event=game.start permission=COSMETIC")
	assert.NotContains(t, logs, "event=ui.render permission=")
	assert.Contains(t, logs, "namespace=skin registry=game_modes permission=COSMETIC")
	assert.NotContains(t, logs, "registry=themes")

	_, ok := f.host.Registries.GameMode("cheat")
	assert.True(t, ok, "permissions are advisory")
}

func TestRuntime_UnknownRegistry(t *testing.T) {
	f := newFixture(t, luaMod{name: "Typo", script: `
return {
  initialize = function()
    registry.register("tilesetz", "x", 1)
  end,
}
`})
	err := f.manager.LoadMod(context.Background(), "typo")
	assert.ErrorContains(t, err, `unknown registry "tilesetz"`)
}
