package mods

import (
	"fmt"
	"path"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/vk/minemods/internal/manifest"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// MaxNamespaceLength bounds the length of a namespace.
const MaxNamespaceLength = 32

// ReservedNamespaces may not be used by mods; a clashing name gets a "mod_"
// prefix.
var ReservedNamespaces = []string{"core", "base", "system", "builtin"}

var lower = cases.Lower(language.Und)

// IsReserved reports whether ns is one of ReservedNamespaces.
func IsReserved(ns string) bool {
	return slices.Contains(ReservedNamespaces, ns)
}

// Namespace derives the namespace for a mod name: lowercase, every rune
// outside [a-z0-9_] replaced by '_', "mod_" prefixed when reserved, and
// truncated to MaxNamespaceLength.
func Namespace(name string) string {
	var b strings.Builder
	for _, r := range lower.String(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	ns := b.String()
	if IsReserved(ns) {
		ns = "mod_" + ns
	}
	if len(ns) > MaxNamespaceLength {
		ns = ns[:MaxNamespaceLength]
	}
	return ns
}

// Relation is the kind of a declared dependency.
type Relation string

const (
	Required     Relation = "REQUIRED"
	Optional     Relation = "OPTIONAL"
	Incompatible Relation = "INCOMPATIBLE"
	Before       Relation = "BEFORE"
	After        Relation = "AFTER"
)

// ParseRelation accepts the short names and their long aliases in any case.
func ParseRelation(s string) (Relation, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "required", "hard_dependency":
		return Required, nil
	case "optional", "soft_dependency":
		return Optional, nil
	case "incompatible", "conflict":
		return Incompatible, nil
	case "before", "load_order_before":
		return Before, nil
	case "after", "load_order_after":
		return After, nil
	}
	return "", fmt.Errorf("unknown relation %q", s)
}

// Permission is the advisory access level a mod declares.
type Permission string

const (
	Cosmetic Permission = "COSMETIC"
	Gameplay Permission = "GAMEPLAY"
	System   Permission = "SYSTEM"
)

// ParsePermission parses a permission level in any case. Empty means Cosmetic.
func ParsePermission(s string) (Permission, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "COSMETIC":
		return Cosmetic, nil
	case "GAMEPLAY":
		return Gameplay, nil
	case "SYSTEM":
		return System, nil
	}
	return "", fmt.Errorf("unknown permission level %q", s)
}

type scopes struct {
	events     []string
	registries []string
}

var permissionScopes = map[Permission]scopes{
	Cosmetic: {
		events:     []string{"ui.*", "render.*"},
		registries: []string{"tilesets", "themes", "sounds"},
	},
	Gameplay: {
		events:     []string{"game.*", "ui.*", "render.*"},
		registries: []string{"tilesets", "themes", "sounds", "game_modes", "difficulty_presets", "tile_types"},
	},
	System: {
		events:     []string{"**"},
		registries: []string{"**"},
	},
}

// AllowsEvent reports whether the level covers subscribing to eventName.
func (p Permission) AllowsEvent(eventName string) bool {
	return matchAny(permissionScopes[p].events, eventName)
}

// AllowsRegistry reports whether the level covers writing to the named
// registry.
func (p Permission) AllowsRegistry(name string) bool {
	return matchAny(permissionScopes[p].registries, name)
}

func matchAny(patterns []string, s string) bool {
	for _, p := range patterns {
		if p == "**" {
			return true
		}
		if ok, _ := path.Match(p, s); ok {
			return true
		}
	}
	return false
}

// Descriptor is the metadata of a discovered mod plus its load state.
type Descriptor struct {
	Name         string
	Namespace    string
	Version      string
	APIVersion   string
	Description  string
	Author       string
	Dependencies map[string]Relation
	Permission   Permission
	LoadPriority int
	// Path is the mod directory; ManifestPath the manifest file inside it.
	Path         string
	ManifestPath string
	Settings     map[string]manifest.Setting

	mu      sync.RWMutex
	runtime Runtime
}

// NewDescriptor validates a manifest and builds the descriptor for the mod
// at dir.
func NewDescriptor(m *manifest.Manifest, dir string) (*Descriptor, error) {
	perm, err := ParsePermission(m.Permissions)
	if err != nil {
		return nil, err
	}
	deps := make(map[string]Relation, len(m.Dependencies))
	for name, raw := range m.Dependencies {
		rel, err := ParseRelation(raw)
		if err != nil {
			return nil, fmt.Errorf("dependency %q: %w", name, err)
		}
		deps[Namespace(name)] = rel
	}
	return &Descriptor{
		Name:         m.Name,
		Namespace:    Namespace(m.Name),
		Version:      m.Version,
		APIVersion:   m.APIVersion,
		Description:  m.Description,
		Author:       m.Author,
		Dependencies: deps,
		Permission:   perm,
		LoadPriority: m.LoadPriority,
		Path:         dir,
		ManifestPath: m.Path,
		Settings:     m.Settings,
	}, nil
}

// Loaded reports whether the mod is loaded.
func (d *Descriptor) Loaded() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.runtime != nil
}

// Runtime returns the live runtime handle, or nil when the mod is not loaded.
func (d *Descriptor) Runtime() Runtime {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.runtime
}

func (d *Descriptor) setRuntime(rt Runtime) {
	d.mu.Lock()
	d.runtime = rt
	d.mu.Unlock()
}

// DependenciesOf returns the namespaces with the given relation, sorted.
func (d *Descriptor) DependenciesOf(rel Relation) []string {
	var out []string
	for name, r := range d.Dependencies {
		if r == rel {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// Summary is a plain, copyable view of a Descriptor for reporting.
type Summary struct {
	Name         string              `json:"name"`
	Namespace    string              `json:"namespace"`
	Version      string              `json:"version"`
	Author       string              `json:"author"`
	Description  string              `json:"description,omitempty"`
	Permission   Permission          `json:"permission"`
	LoadPriority int                 `json:"load_priority"`
	Dependencies map[string]Relation `json:"dependencies,omitempty"`
	Path         string              `json:"path"`
	Loaded       bool                `json:"loaded"`
}

// Summary returns a snapshot of the descriptor.
func (d *Descriptor) Summary() Summary {
	return Summary{
		Name:         d.Name,
		Namespace:    d.Namespace,
		Version:      d.Version,
		Author:       d.Author,
		Description:  d.Description,
		Permission:   d.Permission,
		LoadPriority: d.LoadPriority,
		Dependencies: d.Dependencies,
		Path:         d.Path,
		Loaded:       d.Loaded(),
	}
}
