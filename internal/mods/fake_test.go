package mods

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vk/minemods/internal/eventbus"
	"github.com/vk/minemods/internal/testutil"
)

// fakeRuntime records lifecycle calls. Its behaviour is configured per
// namespace through fakeLoader.
type fakeRuntime struct {
	ns     string
	loader *fakeLoader
	closed bool
}

func (r *fakeRuntime) Initialize(ctx context.Context) error {
	r.loader.record("init:" + r.ns)
	if hook := r.loader.onInit[r.ns]; hook != nil {
		return hook(ctx, r.ns)
	}
	return nil
}

func (r *fakeRuntime) Cleanup(context.Context) error {
	r.loader.record("cleanup:" + r.ns)
	if r.loader.cleanupPanics[r.ns] {
		panic("cleanup exploded")
	}
	return r.loader.cleanupErr[r.ns]
}

func (r *fakeRuntime) Close() error {
	r.closed = true
	r.loader.record("close:" + r.ns)
	return nil
}

type fakeLoader struct {
	mu            sync.Mutex
	calls         []string
	onInit        map[string]func(ctx context.Context, ns string) error
	openErr       map[string]error
	cleanupErr    map[string]error
	cleanupPanics map[string]bool
	runtimes      map[string]*fakeRuntime
}

func newFakeLoader() *fakeLoader {
	return &fakeLoader{
		onInit:        map[string]func(context.Context, string) error{},
		openErr:       map[string]error{},
		cleanupErr:    map[string]error{},
		cleanupPanics: map[string]bool{},
		runtimes:      map[string]*fakeRuntime{},
	}
}

func (l *fakeLoader) record(call string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, call)
}

func (l *fakeLoader) Calls() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

func (l *fakeLoader) EntryPoint(d *Descriptor) string {
	return filepath.Join(d.Path, "scripts", "init.lua")
}

func (l *fakeLoader) Open(_ context.Context, d *Descriptor) (Runtime, error) {
	l.record("open:" + d.Namespace)
	if err := l.openErr[d.Namespace]; err != nil {
		return nil, err
	}
	rt := &fakeRuntime{ns: d.Namespace, loader: l}
	l.runtimes[d.Namespace] = rt
	return rt, nil
}

// fakeStore is an in-memory EnabledStore.
type fakeStore struct {
	enabled     []string
	initialized bool
}

func (s *fakeStore) EnabledMods() []string { return append([]string(nil), s.enabled...) }
func (s *fakeStore) SetEnabledMods(ns []string) error {
	s.enabled = append([]string(nil), ns...)
	return nil
}
func (s *fakeStore) ModsInitialized() bool { return s.initialized }
func (s *fakeStore) SetModsInitialized(v bool) error {
	s.initialized = v
	return nil
}

// modSpec describes a mod directory written by writeMods.
type modSpec struct {
	dir      string
	name     string
	deps     map[string]string
	priority int
	noEntry  bool
	assets   map[string]string
}

func manifestJSON(t *testing.T, s modSpec) string {
	t.Helper()
	doc := map[string]any{"name": s.name, "version": "1.0", "api_version": "1.0.0"}
	if len(s.deps) > 0 {
		doc["dependencies"] = s.deps
	}
	if s.priority != 0 {
		doc["load_priority"] = s.priority
	}
	data, err := json.Marshal(doc)
	require.NoError(t, err)
	return string(data)
}

// writeMods creates <root>/mods/<dir>/... for every spec and returns root.
func writeMods(t *testing.T, specs ...modSpec) string {
	t.Helper()
	files := map[string]string{}
	for _, s := range specs {
		files["mods/"+s.dir+"/mod.json"] = manifestJSON(t, s)
		if !s.noEntry {
			files["mods/"+s.dir+"/scripts/init.lua"] = "return {}"
		}
		for name, content := range s.assets {
			files["mods/"+s.dir+"/assets/"+name] = content
		}
	}
	return testutil.TempTree(t, files)
}

type harness struct {
	manager *Manager
	loader  *fakeLoader
	store   *fakeStore
	logs    *testutil.SafeBuffer
	events  *[]string
}

func newHarness(t *testing.T, root string, cfg Config) *harness {
	t.Helper()
	logger, logs := testutil.NewLogger()
	if len(cfg.SearchPaths) == 0 {
		cfg.SearchPaths = []string{filepath.Join(root, "mods"), filepath.Join(root, "workshop")}
	}
	loader := newFakeLoader()
	store := &fakeStore{}
	bus := eventbus.New(logger)

	events := &[]string{}
	for _, name := range []string{eventbus.ModLoad, eventbus.ModUnload, eventbus.ModError} {
		_, err := bus.Subscribe(name, func(_ context.Context, e *eventbus.Event) error {
			*events = append(*events, e.Name+":"+e.Payload["namespace"].(string))
			return nil
		}, eventbus.Monitor, "test")
		require.NoError(t, err)
	}

	m := NewManager(cfg, loader, WithLogger(logger), WithBus(bus), WithEnabledStore(store))
	return &harness{manager: m, loader: loader, store: store, logs: logs, events: events}
}

var errBoom = errors.New("boom")
