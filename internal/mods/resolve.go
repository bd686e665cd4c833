package mods

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"sort"

	"github.com/vk/minemods/internal/dag"
)

// ResolveDependencies computes a load order over every discovered mod in
// which each mod follows its REQUIRED and AFTER dependencies and precedes
// the mods it declares BEFORE. Mods without constraints keep discovery order.
//
// When preferred is given, the order is re-sorted by position in preferred
// (unlisted mods last) and used only if it still satisfies every constraint;
// otherwise the plain dependency order is returned.
func (m *Manager) ResolveDependencies(preferred []string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	g, err := m.buildGraphLocked()
	if err != nil {
		return nil, err
	}

	order, err := g.TopoSort()
	if err != nil {
		return nil, cycleError(err)
	}

	if len(preferred) > 0 {
		index := make(map[string]int, len(preferred))
		for i, ns := range preferred {
			if _, seen := index[ns]; !seen {
				index[ns] = i
			}
		}
		rank := func(ns string) int {
			if i, ok := index[ns]; ok {
				return i
			}
			return len(preferred)
		}
		candidate := slices.Clone(order)
		slices.SortStableFunc(candidate, func(a, b string) int { return cmp.Compare(rank(a), rank(b)) })
		if g.Respects(candidate) {
			order = candidate
		} else {
			m.logger.Info("Preferred mod order conflicts with dependencies; using dependency order.")
		}
	}

	m.order = order
	return slices.Clone(order), nil
}

// Links describes where a mod sits relative to the other discovered mods.
type Links struct {
	// LoadsAfter lists the mods that must load before this one.
	LoadsAfter []string `json:"loads_after"`
	// LoadsBefore lists the mods that must load after this one.
	LoadsBefore []string `json:"loads_before"`
}

// Relations returns the ordering constraints between discovered mods keyed
// by namespace. It fails with the same errors as ResolveDependencies.
func (m *Manager) Relations() (map[string]Links, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	g, err := m.buildGraphLocked()
	if err != nil {
		return nil, err
	}
	if err := g.DetectCycles(); err != nil {
		return nil, cycleError(err)
	}

	out := make(map[string]Links, len(m.discoveryOrder))
	for _, ns := range g.Nodes() {
		after, err := g.Dependencies(ns)
		if err != nil {
			return nil, err
		}
		before, err := g.Dependents(ns)
		if err != nil {
			return nil, err
		}
		out[ns] = Links{LoadsAfter: after, LoadsBefore: before}
	}
	return out, nil
}

func cycleError(err error) error {
	var cycle *dag.CycleError
	if errors.As(err, &cycle) {
		return fmt.Errorf("%w involving %s", ErrCircularDependency, cycle.Node)
	}
	return err
}

// buildGraphLocked turns declared relations into ordering edges. An edge
// A -> B means A loads before B.
func (m *Manager) buildGraphLocked() (*dag.Graph, error) {
	g := dag.New()
	for _, ns := range m.discoveryOrder {
		g.AddNode(ns)
	}

	for _, ns := range m.discoveryOrder {
		d := m.discovered[ns]
		names := make([]string, 0, len(d.Dependencies))
		for dep := range d.Dependencies {
			names = append(names, dep)
		}
		sort.Strings(names)

		for _, dep := range names {
			present := g.HasNode(dep)
			var from, to string
			switch d.Dependencies[dep] {
			case Required:
				if !present {
					return nil, fmt.Errorf("%w: %s requires %s", ErrMissingDependency, ns, dep)
				}
				from, to = dep, ns
			case After:
				from, to = dep, ns
			case Before:
				from, to = ns, dep
			default:
				continue
			}
			if !present {
				continue
			}
			if from == to {
				return nil, fmt.Errorf("%w involving %s", ErrCircularDependency, ns)
			}
			if err := g.AddEdge(from, to); err != nil {
				return nil, err
			}
		}
	}
	return g, nil
}
