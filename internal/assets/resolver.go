package assets

import (
	"cmp"
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/vk/minemods/internal/fsutil"
)

// Resolver maps asset names to the winning contributor.
type Resolver struct {
	logger      *slog.Logger
	maxFileSize int64

	mu        sync.RWMutex
	assets    map[string]Info
	conflicts map[string][]Info
	cache     map[string]map[string]any
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithMaxFileSize overrides DefaultMaxFileSize. Zero or negative disables the
// limit.
func WithMaxFileSize(n int64) Option {
	return func(r *Resolver) { r.maxFileSize = n }
}

// New creates an empty resolver. A nil logger falls back to slog.Default.
func New(logger *slog.Logger, opts ...Option) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Resolver{
		logger:      logger,
		maxFileSize: DefaultMaxFileSize,
		assets:      make(map[string]Info),
		conflicts:   make(map[string][]Info),
		cache:       make(map[string]map[string]any),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RegisterModAssets scans root/assets recursively and registers every
// recognised file for namespace at the given priority. A missing assets
// directory registers nothing. It returns the number of files registered.
func (r *Resolver) RegisterModAssets(namespace, root string, priority int) (int, error) {
	dir := filepath.Join(root, "assets")
	files, err := fsutil.FindFiles(dir)
	if err != nil {
		return 0, fmt.Errorf("scanning assets of %s: %w", namespace, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0
	for _, f := range files {
		typ, ok := Classify(f.Rel)
		if !ok {
			continue
		}
		if r.maxFileSize > 0 && f.Size > r.maxFileSize {
			r.logger.Warn("Skipping oversized asset.", "namespace", namespace, "asset", f.Rel, "size", f.Size, "limit", r.maxFileSize)
			continue
		}
		r.register(Info{
			Name:         f.Rel,
			Path:         f.Path,
			ModNamespace: namespace,
			Priority:     priority,
			Type:         typ,
			Size:         f.Size,
		})
		count++
	}
	if count > 0 {
		clear(r.cache)
	}
	r.logger.Debug("Registered mod assets.", "namespace", namespace, "count", count, "priority", priority)
	return count, nil
}

// register must be called with mu held.
func (r *Resolver) register(info Info) {
	existing, ok := r.assets[info.Name]
	if !ok {
		r.assets[info.Name] = info
		return
	}

	if _, tracked := r.conflicts[info.Name]; !tracked {
		r.conflicts[info.Name] = []Info{existing}
	}
	r.conflicts[info.Name] = append(r.conflicts[info.Name], info)

	if info.Priority < existing.Priority {
		r.assets[info.Name] = info
		r.logger.Info("Asset conflict: override.", "asset", info.Name, "winner", info.ModNamespace, "loser", existing.ModNamespace)
	} else {
		r.logger.Info("Asset conflict: kept.", "asset", info.Name, "winner", existing.ModNamespace, "loser", info.ModNamespace)
	}
}

// UnregisterModAssets removes every asset contributed by namespace. When the
// removed entry was winning and other contributors remain, the best remaining
// contributor takes its place.
func (r *Resolver) UnregisterModAssets(namespace string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for name, list := range r.conflicts {
		list = slices.DeleteFunc(list, func(i Info) bool { return i.ModNamespace == namespace })
		if len(list) == 0 {
			delete(r.conflicts, name)
		} else {
			r.conflicts[name] = list
		}
	}

	for name, info := range r.assets {
		if info.ModNamespace != namespace {
			continue
		}
		delete(r.assets, name)
		if remaining := r.conflicts[name]; len(remaining) > 0 {
			best := remaining[0]
			for _, c := range remaining[1:] {
				if c.Priority < best.Priority {
					best = c
				}
			}
			r.assets[name] = best
		}
	}
	clear(r.cache)
}

// AssetPath returns the file path for name. It tries the exact name, then the
// name under tilesets/, sounds/ and fonts/.
func (r *Resolver) AssetPath(name string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if info, ok := r.assets[name]; ok {
		return info.Path, true
	}
	for _, dir := range []string{"tilesets", "sounds", "fonts"} {
		if info, ok := r.assets[dir+"/"+name]; ok {
			return info.Path, true
		}
	}
	return "", false
}

// TilesetPath resolves a tileset by name, falling back to "default".
func (r *Resolver) TilesetPath(name string) (string, bool) {
	if p, ok := r.firstPath("tilesets/"+name+".png", "tilesets/"+name); ok {
		return p, true
	}
	if name != "default" {
		return r.TilesetPath("default")
	}
	return "", false
}

// FontPath resolves a font by name, falling back to "default".
func (r *Resolver) FontPath(name string) (string, bool) {
	if p, ok := r.firstPath("fonts/"+name+".ttf", "fonts/"+name+".otf", "fonts/"+name); ok {
		return p, true
	}
	if name != "default" {
		return r.FontPath("default")
	}
	return "", false
}

// SoundPath resolves a sound by name. There is no fallback.
func (r *Resolver) SoundPath(name string) (string, bool) {
	return r.firstPath("sounds/"+name+".wav", "sounds/"+name+".mp3", "sounds/"+name+".ogg", "sounds/"+name)
}

func (r *Resolver) firstPath(names ...string) (string, bool) {
	for _, n := range names {
		if p, ok := r.AssetPath(n); ok {
			return p, true
		}
	}
	return "", false
}

// LoadConfig decodes the winning config/<name>.json. Results are cached until
// ClearCache or any registration change.
func (r *Resolver) LoadConfig(name string) (map[string]any, error) {
	r.mu.RLock()
	cached, ok := r.cache[name]
	r.mu.RUnlock()
	if ok {
		return cached, nil
	}

	p, ok := r.AssetPath("config/" + name + ".json")
	if !ok {
		return nil, fmt.Errorf("config %q: %w", name, ErrNotFound)
	}
	cfg, err := readJSON(p)
	if err != nil {
		return nil, fmt.Errorf("loading config %q: %w", name, err)
	}

	r.mu.Lock()
	r.cache[name] = cfg
	r.mu.Unlock()
	return cfg, nil
}

// MergeConfigs deep-merges config/<name>.json from every contributor. The
// files are applied in ascending priority order, so for scalar values the
// contributor with the highest priority number has the last word, the
// opposite of single-asset resolution. Unreadable files are logged and
// skipped. It reports false when nothing was merged.
func (r *Resolver) MergeConfigs(name string) (map[string]any, bool) {
	assetName := "config/" + name + ".json"

	r.mu.RLock()
	contributors := slices.Clone(r.conflicts[assetName])
	if len(contributors) == 0 {
		if info, ok := r.assets[assetName]; ok {
			contributors = []Info{info}
		}
	}
	r.mu.RUnlock()

	slices.SortStableFunc(contributors, func(a, b Info) int { return cmp.Compare(a.Priority, b.Priority) })

	merged := map[string]any{}
	for _, c := range contributors {
		cfg, err := readJSON(c.Path)
		if err != nil {
			r.logger.Warn("Skipping unreadable config during merge.", "config", name, "namespace", c.ModNamespace, "error", err)
			continue
		}
		merged = DeepMerge(merged, cfg)
	}
	if len(merged) == 0 {
		return nil, false
	}
	return merged, true
}

// DeepMerge returns a new map with overlay applied on top of base. Nested
// objects are merged recursively; any other value in overlay replaces the
// one in base.
func DeepMerge(base, overlay map[string]any) map[string]any {
	result := maps.Clone(base)
	if result == nil {
		result = make(map[string]any, len(overlay))
	}
	for k, v := range overlay {
		bm, bok := result[k].(map[string]any)
		om, ook := v.(map[string]any)
		if bok && ook {
			result[k] = DeepMerge(bm, om)
			continue
		}
		result[k] = v
	}
	return result
}

func readJSON(p string) (map[string]any, error) {
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ClearCache drops cached configs.
func (r *Resolver) ClearCache() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.cache)
}

// Conflicts returns every contested asset name with its contributors in
// registration order.
func (r *Resolver) Conflicts() map[string][]Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string][]Info, len(r.conflicts))
	for k, v := range r.conflicts {
		out[k] = slices.Clone(v)
	}
	return out
}

// ResolveConflict makes namespace's contribution the winner for name. It
// reports false when name is not contested or namespace did not contribute.
func (r *Resolver) ResolveConflict(name, namespace string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, info := range r.conflicts[name] {
		if info.ModNamespace == namespace {
			r.assets[name] = info
			clear(r.cache)
			return true
		}
	}
	return false
}

// Info returns the winning contributor for name.
func (r *Resolver) Info(name string) (Info, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.assets[name]
	return info, ok
}

// List returns the winning assets that match f, sorted by name.
func (r *Resolver) List(f Filter) []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Info
	for _, info := range r.assets {
		if f.match(info) {
			out = append(out, info)
		}
	}
	slices.SortFunc(out, func(a, b Info) int { return cmp.Compare(a.Name, b.Name) })
	return out
}
