package luamod

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sort"

	"github.com/Shopify/go-lua"
	"github.com/vk/minemods/internal/eventbus"
	"github.com/vk/minemods/internal/mods"
)

// ErrClosed is returned when calling into a runtime after Close.
var ErrClosed = errors.New("lua runtime closed")

type subscription struct {
	event string
	slot  int
}

// Runtime is a loaded Lua mod. It implements mods.Runtime and io.Closer.
type Runtime struct {
	host   Host
	desc   *mods.Descriptor
	logger *slog.Logger
	l      *lua.State

	// ctx is the context of the Go call currently running Lua code.
	ctx context.Context

	subs     map[eventbus.HandlerID]subscription
	nextSlot int
	closed   bool
}

func newRuntime(host Host, d *mods.Descriptor) *Runtime {
	return &Runtime{
		host:   host,
		desc:   d,
		logger: host.Logger.With("namespace", d.Namespace),
		l:      lua.NewState(),
		subs:   make(map[eventbus.HandlerID]subscription),
	}
}

// Namespace returns the namespace of the mod.
func (r *Runtime) Namespace() string { return r.desc.Namespace }

// Initialize calls Mod:initialize().
func (r *Runtime) Initialize(ctx context.Context) error {
	_, err := r.callHook(ctx, "initialize", true)
	return err
}

// Cleanup calls Mod:cleanup() when the mod defines it and then drops every
// event handler the mod still has subscribed.
func (r *Runtime) Cleanup(ctx context.Context) error {
	_, err := r.callHook(ctx, "cleanup", false)
	if n := r.unsubscribeAll(); n > 0 {
		r.logger.Debug("Removed leftover event handlers.", "count", n)
	}
	return err
}

// Close unsubscribes remaining handlers and releases the Lua state.
func (r *Runtime) Close() error {
	if r.closed {
		return nil
	}
	r.unsubscribeAll()
	r.closed = true
	r.l = nil
	return nil
}

// Subscriptions returns the number of event handlers the mod has subscribed.
func (r *Runtime) Subscriptions() int { return len(r.subs) }

func (r *Runtime) unsubscribeAll() int {
	ids := make([]eventbus.HandlerID, 0, len(r.subs))
	for id := range r.subs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	n := 0
	for _, id := range ids {
		if r.unsubscribe(id) {
			n++
		}
	}
	return n
}

// callHook calls Mod[name](Mod). It reports whether the hook exists.
func (r *Runtime) callHook(ctx context.Context, name string, required bool) (bool, error) {
	if r.closed {
		return false, ErrClosed
	}
	l := r.l
	top := l.Top()
	defer l.SetTop(top)

	l.Field(lua.RegistryIndex, modKey)
	l.Field(-1, name)
	if !l.IsFunction(-1) {
		if required {
			return false, fmt.Errorf("Mod table has no %s function", name)
		}
		return false, nil
	}
	l.PushValue(-2)
	if err := r.protectedCall(ctx, 1, 0); err != nil {
		return true, fmt.Errorf("%s: %w", name, err)
	}
	return true, nil
}

// protectedCall runs the function below nargs arguments with ctx available
// to host API callbacks.
func (r *Runtime) protectedCall(ctx context.Context, nargs, nresults int) error {
	prev := r.ctx
	r.ctx = ctx
	defer func() { r.ctx = prev }()

	if err := r.l.ProtectedCall(nargs, nresults, 0); err != nil {
		msg := errorMessage(r.l, err)
		r.l.Pop(1)
		return errors.New(msg)
	}
	return nil
}

// context returns the context of the running call.
func (r *Runtime) context() context.Context {
	if r.ctx != nil {
		return r.ctx
	}
	return context.Background()
}

// subscribe stores the function at idx and registers a bus handler that
// calls it.
func (r *Runtime) subscribe(idx int, event string, p eventbus.Priority) (eventbus.HandlerID, error) {
	l := r.l
	idx = l.AbsIndex(idx)
	r.nextSlot++
	slot := r.nextSlot

	l.Field(lua.RegistryIndex, handlersKey)
	l.PushValue(idx)
	l.RawSetInt(-2, slot)
	l.Pop(1)

	id, err := r.host.Bus.Subscribe(event, func(ctx context.Context, e *eventbus.Event) error {
		return r.dispatch(ctx, slot, e)
	}, p, r.desc.Namespace)
	if err != nil {
		r.releaseSlot(slot)
		return 0, err
	}
	r.subs[id] = subscription{event: event, slot: slot}
	return id, nil
}

func (r *Runtime) unsubscribe(id eventbus.HandlerID) bool {
	sub, ok := r.subs[id]
	if !ok {
		return false
	}
	delete(r.subs, id)
	r.releaseSlot(sub.slot)
	return r.host.Bus.Unsubscribe(sub.event, id, r.desc.Namespace)
}

func (r *Runtime) releaseSlot(slot int) {
	if r.l == nil {
		return
	}
	r.l.Field(lua.RegistryIndex, handlersKey)
	r.l.PushNil()
	r.l.RawSetInt(-2, slot)
	r.l.Pop(1)
}

// dispatch calls the Lua handler in slot with an event table. Payload fields
// the handler changed are copied back into e.Payload.
func (r *Runtime) dispatch(ctx context.Context, slot int, e *eventbus.Event) error {
	if r.closed {
		return ErrClosed
	}
	l := r.l
	top := l.Top()
	defer l.SetTop(top)

	l.Field(lua.RegistryIndex, handlersKey)
	l.RawGetInt(-1, slot)
	if !l.IsFunction(-1) {
		return fmt.Errorf("handler %d is gone", slot)
	}

	before, _ := plain(e.Payload).(map[string]any)
	r.pushEvent(e)
	l.Field(-1, "payload")
	// Keep a reference to the payload table below the function so it can be
	// read back after the call. Stack: handlers, payload, fn, event.
	l.Insert(top + 2)

	if err := r.protectedCall(ctx, 1, 0); err != nil {
		return err
	}
	after, _ := toGo(l, top+2).(map[string]any)
	applyPayload(e, before, after)
	return nil
}

// pushEvent pushes {name, payload, cancel, cancelled} for e.
func (r *Runtime) pushEvent(e *eventbus.Event) {
	l := r.l
	l.NewTable()
	l.PushString(e.Name)
	l.SetField(-2, "name")
	pushValue(l, e.Payload)
	l.SetField(-2, "payload")
	l.PushGoFunction(func(*lua.State) int {
		e.Cancel()
		return 0
	})
	l.SetField(-2, "cancel")
	l.PushGoFunction(func(l *lua.State) int {
		l.PushBoolean(e.Cancelled())
		return 1
	})
	l.SetField(-2, "cancelled")
}

// applyPayload copies the fields a handler added or changed and removes the
// fields it deleted.
func applyPayload(e *eventbus.Event, before, after map[string]any) {
	for k, v := range after {
		if old, ok := before[k]; !ok || !reflect.DeepEqual(old, v) {
			e.Payload[k] = v
		}
	}
	for k := range before {
		if _, ok := after[k]; !ok {
			delete(e.Payload, k)
		}
	}
}
