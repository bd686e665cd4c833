package modsettings

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/vk/minemods/internal/manifest"
	"github.com/vk/minemods/internal/mods"
)

// Kind controls who may change a setting.
type Kind string

const (
	Core      Kind = manifest.SettingCore
	Framework Kind = manifest.SettingFramework
	User      Kind = manifest.SettingUser
)

// Separator joins a namespace and a setting name.
const Separator = "."

// DefaultPath is where settings are persisted relative to the working
// directory.
const DefaultPath = "config/mod_settings.json"

// ErrCoreSetting is returned when changing a core setting.
var ErrCoreSetting = errors.New("core setting is read-only")

// Info describes one setting. The JSON form is the persisted file format.
type Info struct {
	Key         string `json:"-"`
	Value       any    `json:"value"`
	Default     any    `json:"default"`
	Kind        Kind   `json:"type"`
	Description string `json:"description"`
	ModName     string `json:"mod_name"`
}

// Key builds the full key of a mod setting.
func Key(namespace, name string) string {
	return namespace + Separator + name
}

// Store holds every registered setting.
type Store struct {
	path   string
	logger *slog.Logger

	mu         sync.RWMutex
	settings   map[string]*Info
	namespaces map[string]string
}

// New creates a Store persisted at path and loads it. A missing file is not
// an error; a malformed one is logged and ignored.
func New(path string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		path:       path,
		logger:     logger,
		settings:   make(map[string]*Info),
		namespaces: make(map[string]string),
	}
	if err := s.Load(); err != nil {
		logger.Error("Error loading mod settings.", "path", path, "error", err)
	}
	return s
}

// Path returns the settings file location.
func (s *Store) Path() string { return s.path }

// Load reads the settings file and merges its entries into the store.
// Entries may be full setting objects or bare values.
func (s *Store) Load() error {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("parsing %s: %w", s.path, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for key, raw := range doc {
		raw = manifest.Normalize(raw)
		entry, full := raw.(map[string]any)
		if full {
			_, full = entry["value"]
		}
		if !full {
			s.settings[key] = &Info{Key: key, Value: raw, Default: raw, Kind: User, ModName: s.modNameLocked(key)}
			continue
		}
		info := &Info{
			Key:         key,
			Value:       entry["value"],
			Default:     entry["value"],
			Kind:        User,
			ModName:     "core",
			Description: stringField(entry, "description"),
		}
		if d, ok := entry["default"]; ok {
			info.Default = d
		}
		if k := stringField(entry, "type"); k != "" {
			info.Kind = Kind(k)
		}
		if n := stringField(entry, "mod_name"); n != "" {
			info.ModName = n
		}
		s.settings[key] = info
	}
	return nil
}

func stringField(m map[string]any, key string) string {
	v, _ := m[key].(string)
	return v
}

// Save writes every setting whose value differs from its default.
func (s *Store) Save() error {
	s.mu.RLock()
	out := make(map[string]Info)
	for key, info := range s.settings {
		if !reflect.DeepEqual(info.Value, info.Default) {
			out[key] = *info
		}
	}
	s.mu.RUnlock()

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("encoding mod settings: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("creating settings directory: %w", err)
	}
	if err := os.WriteFile(s.path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", s.path, err)
	}
	s.logger.Debug("Saved mod settings.", "path", s.path, "count", len(out))
	return nil
}

// RegisterModSettings declares the settings of a mod. A value already loaded
// from disk for the same key is kept; everything else comes from the manifest.
func (s *Store) RegisterModSettings(namespace, modName string, specs map[string]manifest.Setting) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.namespaces[namespace] = modName
	for name, spec := range specs {
		key := Key(namespace, name)
		def := manifest.Normalize(spec.Default)
		info := &Info{
			Key:         key,
			Value:       def,
			Default:     def,
			Kind:        Kind(spec.Type),
			Description: spec.Description,
			ModName:     modName,
		}
		if info.Kind == "" {
			info.Kind = User
		}
		if prev, ok := s.settings[key]; ok {
			info.Value = prev.Value
		}
		s.settings[key] = info
	}
	s.logger.Debug("Registered mod settings.", "namespace", namespace, "count", len(specs))
}

// Get returns the current value of key.
func (s *Store) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if info, ok := s.settings[key]; ok {
		return info.Value, true
	}
	return nil, false
}

// Info returns a copy of the setting stored under key.
func (s *Store) Info(key string) (Info, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if info, ok := s.settings[key]; ok {
		return *info, true
	}
	return Info{}, false
}

// Set changes a setting. Unknown keys become user settings whose default is
// the given value. Core settings are left unchanged and ErrCoreSetting is
// returned; framework settings change with a warning.
func (s *Store) Set(key string, value any) error {
	value = manifest.Normalize(value)

	s.mu.Lock()
	defer s.mu.Unlock()

	info, ok := s.settings[key]
	if !ok {
		s.settings[key] = &Info{Key: key, Value: value, Default: value, Kind: User, ModName: s.modNameLocked(key)}
		return nil
	}
	switch info.Kind {
	case Core:
		s.logger.Warn("Cannot modify core setting.", "key", key)
		return fmt.Errorf("%w: %s", ErrCoreSetting, key)
	case Framework:
		s.logger.Warn("Modifying framework setting.", "key", key)
	}
	info.Value = value
	return nil
}

// ModSettings returns the current values of a namespace keyed by short name.
func (s *Store) ModSettings(namespace string) map[string]any {
	prefix := namespace + Separator
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]any)
	for key, info := range s.settings {
		if name, ok := strings.CutPrefix(key, prefix); ok {
			out[name] = info.Value
		}
	}
	return out
}

// SetModSettings sets several settings of a namespace. Every value is
// attempted; the errors of rejected ones are joined.
func (s *Store) SetModSettings(namespace string, values map[string]any) error {
	var errs []error
	for name, v := range values {
		if err := s.Set(Key(namespace, name), v); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Reset restores key to its default value.
func (s *Store) Reset(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	info, ok := s.settings[key]
	if ok {
		info.Value = info.Default
	}
	return ok
}

// ResetMod restores every setting of a namespace and returns how many there
// were.
func (s *Store) ResetMod(namespace string) int {
	prefix := namespace + Separator
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for key, info := range s.settings {
		if strings.HasPrefix(key, prefix) {
			info.Value = info.Default
			n++
		}
	}
	return n
}

// DeleteMod removes every setting of a namespace.
func (s *Store) DeleteMod(namespace string) int {
	prefix := namespace + Separator
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for key := range s.settings {
		if strings.HasPrefix(key, prefix) {
			delete(s.settings, key)
			n++
		}
	}
	delete(s.namespaces, namespace)
	return n
}

// Keys returns every key in sorted order.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.settings))
	for k := range s.settings {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ByMod groups the settings by mod name and short key.
func (s *Store) ByMod() map[string]map[string]Info {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]map[string]Info)
	for key, info := range s.settings {
		short := key
		if _, name, ok := strings.Cut(key, Separator); ok {
			short = name
		}
		if out[info.ModName] == nil {
			out[info.ModName] = make(map[string]Info)
		}
		out[info.ModName][short] = *info
	}
	return out
}

// Validate reports settings stored under a reserved namespace.
func (s *Store) Validate() []string {
	var issues []string
	for _, key := range s.Keys() {
		ns, _, ok := strings.Cut(key, Separator)
		if ok && mods.IsReserved(ns) {
			issues = append(issues, fmt.Sprintf("setting %q uses reserved namespace %q", key, ns))
		}
	}
	return issues
}

func (s *Store) modNameLocked(key string) string {
	ns, _, ok := strings.Cut(key, Separator)
	if !ok {
		return "core"
	}
	if name, ok := s.namespaces[ns]; ok {
		return name
	}
	return "unknown"
}
