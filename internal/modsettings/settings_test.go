package modsettings

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/minemods/internal/manifest"
	"github.com/vk/minemods/internal/testutil"
)

var darkThemeSettings = map[string]manifest.Setting{
	"accent":  {Name: "accent", Default: "purple", Type: manifest.SettingUser, Description: "Accent colour"},
	"volume":  {Name: "volume", Default: int64(7), Type: manifest.SettingFramework},
	"version": {Name: "version", Default: "1.2.0", Type: manifest.SettingCore},
}

func newStore(t *testing.T) (*Store, *testutil.SafeBuffer, string) {
	t.Helper()
	logger, logs := testutil.NewLogger()
	path := filepath.Join(t.TempDir(), "config", "mod_settings.json")
	return New(path, logger), logs, path
}

func TestRoundTrip_OnlyNonDefaultValuesPersist(t *testing.T) {
	s, _, path := newStore(t)
	s.RegisterModSettings("dark_theme", "Dark Theme", darkThemeSettings)

	require.NoError(t, s.Set("dark_theme.accent", "teal"))
	require.NoError(t, s.Save())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var persisted map[string]map[string]any
	require.NoError(t, json.Unmarshal(raw, &persisted))
	assert.Equal(t, map[string]map[string]any{
		"dark_theme.accent": {
			"value":       "teal",
			"default":     "purple",
			"type":        "user",
			"description": "Accent colour",
			"mod_name":    "Dark Theme",
		},
	}, persisted)

	logger, _ := testutil.NewLogger()
	fresh := New(path, logger)
	v, ok := fresh.Get("dark_theme.accent")
	require.True(t, ok)
	assert.Equal(t, "teal", v)

	// Declaring the settings again keeps the persisted value.
	fresh.RegisterModSettings("dark_theme", "Dark Theme", darkThemeSettings)
	v, _ = fresh.Get("dark_theme.accent")
	assert.Equal(t, "teal", v)
	v, _ = fresh.Get("dark_theme.volume")
	assert.Equal(t, int64(7), v)
}

func TestRoundTrip_NumbersCompareEqualAfterReload(t *testing.T) {
	s, _, path := newStore(t)
	s.RegisterModSettings("dark_theme", "Dark Theme", darkThemeSettings)
	require.NoError(t, s.Set("dark_theme.volume", 9.0))
	require.NoError(t, s.Save())

	logger, _ := testutil.NewLogger()
	fresh := New(path, logger)
	fresh.RegisterModSettings("dark_theme", "Dark Theme", darkThemeSettings)
	v, _ := fresh.Get("dark_theme.volume")
	assert.Equal(t, int64(9), v)

	require.NoError(t, fresh.Set("dark_theme.volume", 7))
	require.NoError(t, fresh.Save())
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(raw))
}

func TestSet_Kinds(t *testing.T) {
	s, logs, _ := newStore(t)
	s.RegisterModSettings("dark_theme", "Dark Theme", darkThemeSettings)

	err := s.Set("dark_theme.version", "9.9.9")
	assert.ErrorIs(t, err, ErrCoreSetting)
	v, _ := s.Get("dark_theme.version")
	assert.Equal(t, "1.2.0", v)
	assert.Contains(t, logs.String(), "Cannot modify core setting.")

	require.NoError(t, s.Set("dark_theme.volume", 3))
	v, _ = s.Get("dark_theme.volume")
	assert.Equal(t, int64(3), v)
	assert.Contains(t, logs.String(), "Modifying framework setting.")

	require.NoError(t, s.Set("dark_theme.brand_new", true))
	info, ok := s.Info("dark_theme.brand_new")
	require.True(t, ok)
	assert.Equal(t, Info{Key: "dark_theme.brand_new", Value: true, Default: true, Kind: User, ModName: "Dark Theme"}, info)

	require.NoError(t, s.Set("orphan.flag", 1))
	info, _ = s.Info("orphan.flag")
	assert.Equal(t, "unknown", info.ModName)
	require.NoError(t, s.Set("toplevel", 1))
	info, _ = s.Info("toplevel")
	assert.Equal(t, "core", info.ModName)
}

func TestSetModSettings_JoinsRejections(t *testing.T) {
	s, _, _ := newStore(t)
	s.RegisterModSettings("dark_theme", "Dark Theme", darkThemeSettings)

	err := s.SetModSettings("dark_theme", map[string]any{"accent": "red", "version": "2"})
	assert.ErrorIs(t, err, ErrCoreSetting)
	assert.Equal(t, map[string]any{"accent": "red", "volume": int64(7), "version": "1.2.0"}, s.ModSettings("dark_theme"))
}

func TestResetAndDelete(t *testing.T) {
	s, _, _ := newStore(t)
	s.RegisterModSettings("dark_theme", "Dark Theme", darkThemeSettings)
	s.RegisterModSettings("sparkles", "Sparkles", map[string]manifest.Setting{
		"count": {Name: "count", Default: int64(3), Type: manifest.SettingUser},
	})
	require.NoError(t, s.Set("dark_theme.accent", "red"))
	require.NoError(t, s.Set("dark_theme.volume", 1))
	require.NoError(t, s.Set("sparkles.count", 10))

	assert.True(t, s.Reset("dark_theme.accent"))
	assert.False(t, s.Reset("dark_theme.missing"))
	v, _ := s.Get("dark_theme.accent")
	assert.Equal(t, "purple", v)

	assert.Equal(t, 3, s.ResetMod("dark_theme"))
	v, _ = s.Get("dark_theme.volume")
	assert.Equal(t, int64(7), v)

	assert.Equal(t, 3, s.DeleteMod("dark_theme"))
	assert.Equal(t, []string{"sparkles.count"}, s.Keys())
	v, _ = s.Get("sparkles.count")
	assert.Equal(t, int64(10), v)
}

func TestByMod(t *testing.T) {
	s, _, _ := newStore(t)
	s.RegisterModSettings("sparkles", "Sparkles", map[string]manifest.Setting{
		"count": {Name: "count", Default: int64(3), Type: manifest.SettingUser, Description: "How many"},
	})

	want := map[string]map[string]Info{
		"Sparkles": {
			"count": {Key: "sparkles.count", Value: int64(3), Default: int64(3), Kind: User, Description: "How many", ModName: "Sparkles"},
		},
	}
	if diff := cmp.Diff(want, s.ByMod()); diff != "" {
		t.Errorf("ByMod() mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_FileFormats(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mod_settings.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"core.debug": true,
		"sparkles.count": {"value": 4, "default": 3, "type": "framework", "mod_name": "Sparkles"},
		"sparkles.ratio": {"value": 0.5}
	}`), 0o644))

	logger, _ := testutil.NewLogger()
	s := New(path, logger)

	info, _ := s.Info("core.debug")
	assert.Equal(t, Info{Key: "core.debug", Value: true, Default: true, Kind: User, ModName: "unknown"}, info)
	info, _ = s.Info("sparkles.count")
	assert.Equal(t, Info{Key: "sparkles.count", Value: int64(4), Default: int64(3), Kind: Framework, ModName: "Sparkles"}, info)
	info, _ = s.Info("sparkles.ratio")
	assert.Equal(t, Info{Key: "sparkles.ratio", Value: 0.5, Default: 0.5, Kind: User, ModName: "core"}, info)

	assert.Equal(t, []string{`setting "core.debug" uses reserved namespace "core"`}, s.Validate())
}

func TestLoad_MissingAndMalformed(t *testing.T) {
	s, logs, _ := newStore(t)
	assert.Empty(t, s.Keys())
	assert.NotContains(t, logs.String(), "Error loading mod settings.")

	path := filepath.Join(t.TempDir(), "broken.json")
	require.NoError(t, os.WriteFile(path, []byte(`{`), 0o644))
	logger, logs := testutil.NewLogger()
	s = New(path, logger)
	assert.Empty(t, s.Keys())
	assert.Contains(t, logs.String(), "Error loading mod settings.")
}
