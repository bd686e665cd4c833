package eventbus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"runtime/debug"
	"slices"
	"sort"
	"sync"
)

// Priority orders handlers for an event. Lower values run first.
type Priority int

const (
	Monitor Priority = -1000
	Highest Priority = 0
	High    Priority = 250
	Normal  Priority = 500
	Low     Priority = 750
	Lowest  Priority = 1000
)

// ErrInvalidSubscription is returned by Subscribe for an empty event name or a
// nil handler.
var ErrInvalidSubscription = errors.New("invalid subscription")

// HandlerID identifies a registration. IDs are unique for the lifetime of a Bus.
type HandlerID uint64

// Handler receives a published event. A returned error is logged and does not
// affect other handlers.
type Handler func(ctx context.Context, e *Event) error

// Event is a single publication. Handlers may mutate Payload in place; the
// publisher observes the result.
type Event struct {
	Name      string
	Payload   map[string]any
	cancelled bool
}

// Cancel marks the event as cancelled. Later handlers below Monitor priority
// are skipped.
func (e *Event) Cancel() { e.cancelled = true }

// Cancelled reports whether a handler cancelled the event.
func (e *Event) Cancelled() bool { return e.cancelled }

// Registration describes one subscribed handler.
type Registration struct {
	ID        HandlerID
	EventName string
	Priority  Priority
	Owner     string
	handler   Handler
}

// Bus dispatches events to subscribed handlers.
type Bus struct {
	logger *slog.Logger

	mu       sync.Mutex
	nextID   HandlerID
	handlers map[string][]Registration
	stats    map[string]int
}

// New creates an empty bus. A nil logger falls back to slog.Default.
func New(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		logger:   logger,
		handlers: make(map[string][]Registration),
		stats:    make(map[string]int),
	}
}

// Subscribe registers h for eventName at the given priority on behalf of
// owner (a mod namespace, or a host component name).
func (b *Bus) Subscribe(eventName string, h Handler, p Priority, owner string) (HandlerID, error) {
	if eventName == "" {
		return 0, fmt.Errorf("%w: empty event name", ErrInvalidSubscription)
	}
	if h == nil {
		return 0, fmt.Errorf("%w: nil handler for %q", ErrInvalidSubscription, eventName)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	reg := Registration{ID: b.nextID, EventName: eventName, Priority: p, Owner: owner, handler: h}

	list := b.handlers[eventName]
	// Insert after every registration with priority <= p. The slice is
	// clipped so Insert reallocates and in-flight publications keep their
	// snapshot.
	i := sort.Search(len(list), func(i int) bool { return list[i].Priority > p })
	b.handlers[eventName] = slices.Insert(slices.Clip(list), i, reg)

	b.logger.Debug("Subscribed handler.", "event", eventName, "priority", int(p), "owner", owner, "id", reg.ID)
	return reg.ID, nil
}

// Unsubscribe removes the registration with the given ID. If owner is not
// empty the registration must also belong to that owner.
func (b *Bus) Unsubscribe(eventName string, id HandlerID, owner string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	list := b.handlers[eventName]
	i := slices.IndexFunc(list, func(r Registration) bool {
		return r.ID == id && (owner == "" || r.Owner == owner)
	})
	if i < 0 {
		return false
	}
	// Publish may hold the old slice, so build a new one.
	list = slices.Concat(list[:i], list[i+1:])
	if len(list) == 0 {
		delete(b.handlers, eventName)
	} else {
		b.handlers[eventName] = list
	}
	return true
}

// UnsubscribeAll removes every registration owned by owner and returns the
// number removed.
func (b *Bus) UnsubscribeAll(owner string) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	removed := 0
	for name, list := range b.handlers {
		kept := make([]Registration, 0, len(list))
		for _, r := range list {
			if r.Owner == owner {
				removed++
				continue
			}
			kept = append(kept, r)
		}
		if len(kept) == 0 {
			delete(b.handlers, name)
		} else if len(kept) != len(list) {
			b.handlers[name] = kept
		}
	}
	if removed > 0 {
		b.logger.Debug("Removed handlers for owner.", "owner", owner, "count", removed)
	}
	return removed
}

// Publish delivers an event to every handler registered for eventName and
// returns it so the caller can inspect cancellation and payload changes.
// Handlers registered or removed while dispatch is in progress take effect
// from the next publication.
func (b *Bus) Publish(ctx context.Context, eventName string, payload map[string]any) *Event {
	if payload == nil {
		payload = make(map[string]any)
	}
	e := &Event{Name: eventName, Payload: payload}

	b.mu.Lock()
	b.stats[eventName]++
	snapshot := b.handlers[eventName]
	b.mu.Unlock()

	for _, reg := range snapshot {
		if e.cancelled && reg.Priority != Monitor {
			continue
		}
		b.dispatch(ctx, reg, e)
	}
	return e
}

func (b *Bus) dispatch(ctx context.Context, reg Registration, e *Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Event handler panicked.",
				"event", e.Name, "owner", reg.Owner, "id", reg.ID,
				"panic", r, "stack", string(debug.Stack()))
		}
	}()
	if err := reg.handler(ctx, e); err != nil {
		b.logger.Error("Event handler failed.", "event", e.Name, "owner", reg.Owner, "id", reg.ID, "error", err)
	}
}

// Handlers returns the registrations for eventName in dispatch order.
func (b *Bus) Handlers(eventName string) []Registration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.handlers[eventName])
}

// Stats returns the number of publications per event name.
func (b *Bus) Stats() map[string]int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return maps.Clone(b.stats)
}

// ClearStats resets the publication counters.
func (b *Bus) ClearStats() {
	b.mu.Lock()
	defer b.mu.Unlock()
	clear(b.stats)
}
