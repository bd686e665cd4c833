package mods

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func before(t *testing.T, order []string, a, b string) {
	t.Helper()
	ia, ib := slices.Index(order, a), slices.Index(order, b)
	require.NotEqual(t, -1, ia, a)
	require.NotEqual(t, -1, ib, b)
	assert.Less(t, ia, ib, "%s should load before %s in %v", a, b, order)
}

func TestResolve_DependenciesFirst(t *testing.T) {
	root := writeMods(t,
		modSpec{dir: "1_ui", name: "UI", deps: map[string]string{"core_lib": "REQUIRED"}},
		modSpec{dir: "2_core_lib", name: "Core Lib"},
		modSpec{dir: "3_sparkles", name: "Sparkles", deps: map[string]string{"ui": "after"}},
		modSpec{dir: "4_early", name: "Early", deps: map[string]string{"core_lib": "BEFORE"}},
		modSpec{dir: "5_extra", name: "Extra", deps: map[string]string{"absent": "OPTIONAL", "ghost": "before", "phantom": "after"}},
	)
	h := newHarness(t, root, Config{})
	h.manager.Discover(false)

	order, err := h.manager.ResolveDependencies(nil)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"ui", "core_lib", "sparkles", "early", "extra"}, order)
	before(t, order, "core_lib", "ui")
	before(t, order, "ui", "sparkles")
	before(t, order, "early", "core_lib")
	assert.Equal(t, order, h.manager.LoadOrder())
}

func TestResolve_IndependentModsKeepDiscoveryOrder(t *testing.T) {
	root := writeMods(t,
		modSpec{dir: "a", name: "Alpha"},
		modSpec{dir: "b", name: "Beta"},
		modSpec{dir: "c", name: "Gamma"},
	)
	h := newHarness(t, root, Config{})
	h.manager.Discover(false)

	order, err := h.manager.ResolveDependencies(nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "beta", "gamma"}, order)
}

func TestResolve_MissingRequired(t *testing.T) {
	root := writeMods(t, modSpec{dir: "ui", name: "UI", deps: map[string]string{"core_lib": "REQUIRED"}})
	h := newHarness(t, root, Config{})
	h.manager.Discover(false)

	order, err := h.manager.ResolveDependencies(nil)
	assert.Nil(t, order)
	assert.ErrorIs(t, err, ErrMissingDependency)
	assert.ErrorContains(t, err, "ui requires core_lib")
}

func TestResolve_Cycle(t *testing.T) {
	root := writeMods(t,
		modSpec{dir: "a", name: "A", deps: map[string]string{"b": "REQUIRED"}},
		modSpec{dir: "b", name: "B", deps: map[string]string{"c": "after"}},
		modSpec{dir: "c", name: "C", deps: map[string]string{"a": "REQUIRED"}},
		modSpec{dir: "d", name: "D"},
	)
	h := newHarness(t, root, Config{})
	h.manager.Discover(false)

	_, err := h.manager.ResolveDependencies(nil)
	require.ErrorIs(t, err, ErrCircularDependency)
	assert.Regexp(t, `involving [abc]$`, err.Error())
}

func TestResolve_SelfRequirementIsACycle(t *testing.T) {
	root := writeMods(t, modSpec{dir: "a", name: "A", deps: map[string]string{"a": "REQUIRED"}})
	h := newHarness(t, root, Config{})
	h.manager.Discover(false)

	_, err := h.manager.ResolveDependencies(nil)
	assert.ErrorIs(t, err, ErrCircularDependency)
}

func TestResolve_PreferredOrder(t *testing.T) {
	root := writeMods(t,
		modSpec{dir: "a", name: "A"},
		modSpec{dir: "b", name: "B", deps: map[string]string{"a": "REQUIRED"}},
		modSpec{dir: "c", name: "C"},
	)
	h := newHarness(t, root, Config{})
	h.manager.Discover(false)

	order, err := h.manager.ResolveDependencies([]string{"c", "a", "b", "not_installed"})
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "a", "b"}, order, "compatible preference is used as is")

	order, err = h.manager.ResolveDependencies([]string{"c", "a"})
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "a", "b"}, order, "unlisted mods go last")

	order, err = h.manager.ResolveDependencies([]string{"b", "c", "a"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, order, "incompatible preference falls back")
}

func TestRelations(t *testing.T) {
	root := writeMods(t,
		modSpec{dir: "a", name: "A"},
		modSpec{dir: "b", name: "B", deps: map[string]string{"a": "REQUIRED", "ghost": "after"}},
		modSpec{dir: "c", name: "C", deps: map[string]string{"a": "BEFORE"}},
	)
	h := newHarness(t, root, Config{})
	h.manager.Discover(false)

	links, err := h.manager.Relations()
	require.NoError(t, err)
	assert.Equal(t, map[string]Links{
		"a": {LoadsAfter: []string{"c"}, LoadsBefore: []string{"b"}},
		"b": {LoadsAfter: []string{"a"}, LoadsBefore: []string{}},
		"c": {LoadsAfter: []string{}, LoadsBefore: []string{"a"}},
	}, links)
}

func TestRelations_Cycle(t *testing.T) {
	root := writeMods(t,
		modSpec{dir: "a", name: "A", deps: map[string]string{"b": "after"}},
		modSpec{dir: "b", name: "B", deps: map[string]string{"a": "after"}},
	)
	h := newHarness(t, root, Config{})
	h.manager.Discover(false)

	_, err := h.manager.Relations()
	assert.ErrorIs(t, err, ErrCircularDependency)
}
