package registry

import (
	"log/slog"
	"maps"
	"slices"
	"sync"
)

// Registry is a concurrency-safe table of values keyed by name, with a single
// owner per key.
type Registry[V any] struct {
	name   string
	logger *slog.Logger

	mu      sync.RWMutex
	entries map[string]V
	owners  map[string]string
	byOwner map[string]map[string]struct{}
}

// New creates an empty registry. A nil logger falls back to slog.Default.
func New[V any](name string, logger *slog.Logger) *Registry[V] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry[V]{
		name:    name,
		logger:  logger.With("registry", name),
		entries: make(map[string]V),
		owners:  make(map[string]string),
		byOwner: make(map[string]map[string]struct{}),
	}
}

// Name returns the registry name.
func (r *Registry[V]) Name() string { return r.name }

// Register stores value under key on behalf of owner. An existing entry is
// replaced with a warning and its ownership moves to owner. It always
// reports true.
func (r *Registry[V]) Register(key string, value V, owner string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.owners[key]; ok {
		r.logger.Warn("Overwriting registry entry.", "key", key, "previous_owner", prev, "owner", owner)
		r.dropOwnership(prev, key)
	}
	r.entries[key] = value
	r.owners[key] = owner
	keys, ok := r.byOwner[owner]
	if !ok {
		keys = make(map[string]struct{})
		r.byOwner[owner] = keys
	}
	keys[key] = struct{}{}
	return true
}

// Get returns the value stored under key.
func (r *Registry[V]) Get(key string) (V, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.entries[key]
	return v, ok
}

// Owner returns the namespace that owns key.
func (r *Registry[V]) Owner(key string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.owners[key]
	return o, ok
}

// Unregister removes key and reports whether it was present.
func (r *Registry[V]) Unregister(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	owner, ok := r.owners[key]
	if !ok {
		return false
	}
	r.dropOwnership(owner, key)
	delete(r.entries, key)
	delete(r.owners, key)
	return true
}

// UnregisterAllFor removes every key owned by owner and returns how many were
// removed.
func (r *Registry[V]) UnregisterAllFor(owner string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	keys := r.byOwner[owner]
	for key := range keys {
		delete(r.entries, key)
		delete(r.owners, key)
	}
	delete(r.byOwner, owner)
	return len(keys)
}

// Keys returns all keys in sorted order.
func (r *Registry[V]) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.entries))
}

// All returns a copy of the table.
func (r *Registry[V]) All() map[string]V {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return maps.Clone(r.entries)
}

// Len returns the number of entries.
func (r *Registry[V]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// dropOwnership must be called with mu held.
func (r *Registry[V]) dropOwnership(owner, key string) {
	keys := r.byOwner[owner]
	delete(keys, key)
	if len(keys) == 0 {
		delete(r.byOwner, owner)
	}
}
