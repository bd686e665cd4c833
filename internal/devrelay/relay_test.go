package devrelay

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/minemods/internal/eventbus"
	"github.com/vk/minemods/internal/testutil"
)

type sent struct {
	event string
	data  any
}

type fakeConn struct {
	mu           sync.Mutex
	sent         []sent
	disconnected int
}

func (c *fakeConn) emit(event string, data any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, sent{event, data})
}

func (c *fakeConn) disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnected++
}

func newTestRelay(t *testing.T, events ...string) (*Relay, *eventbus.Bus, *fakeConn, *testutil.SafeBuffer) {
	t.Helper()
	logger, buf := testutil.NewLogger()
	bus := eventbus.New(logger)
	conn := &fakeConn{}
	r := newRelay(bus, logger, conn.emit, conn.disconnect)
	require.NoError(t, r.mirror(events))
	return r, bus, conn, buf
}

func TestDial_RejectsBadURL(t *testing.T) {
	bus := eventbus.New(nil)

	_, err := Dial(context.Background(), Config{URL: "://nope"}, bus)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse URL")

	_, err = Dial(context.Background(), Config{URL: "/relay"}, bus)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "needs a scheme and host")
}

func TestRelay_MirrorsEventsIncludingCancelled(t *testing.T) {
	r, bus, conn, _ := newTestRelay(t, eventbus.TileReveal)
	defer r.Close()

	_, err := bus.Subscribe(eventbus.TileReveal, func(_ context.Context, e *eventbus.Event) error {
		e.Cancel()
		return nil
	}, eventbus.Highest, "blocker")
	require.NoError(t, err)

	bus.Publish(context.Background(), eventbus.TileReveal, map[string]any{"x": 1})
	bus.Publish(context.Background(), eventbus.GameStart, nil)

	require.Len(t, conn.sent, 1)
	assert.Equal(t, EventBusEvent, conn.sent[0].event)
	assert.Equal(t, map[string]any{
		"name":      eventbus.TileReveal,
		"payload":   map[string]any{"x": 1},
		"cancelled": true,
	}, conn.sent[0].data)
}

func TestRelay_DefaultsToKnownEvents(t *testing.T) {
	r, bus, _, _ := newTestRelay(t)
	defer r.Close()

	assert.Equal(t, eventbus.KnownEvents, r.mirrored())
	regs := bus.Handlers(eventbus.ModLoad)
	require.Len(t, regs, 1)
	assert.Equal(t, eventbus.Monitor, regs[0].Priority)
	assert.Equal(t, Owner, regs[0].Owner)
}

func TestRelay_QueuesReloads(t *testing.T) {
	r, _, _, buf := newTestRelay(t, eventbus.GameStart)
	defer r.Close()

	r.handleReload()
	r.handleReload("pixel")
	r.handleReload(map[string]any{"namespace": "dark_theme"})

	assert.Equal(t, Request{}, <-r.Reloads())
	assert.Equal(t, Request{Namespace: "pixel"}, <-r.Reloads())
	assert.Equal(t, Request{Namespace: "dark_theme"}, <-r.Reloads())
	assert.Contains(t, buf.String(), "target=pixel")
}

func TestRelay_DropsReloadsWhenQueueIsFull(t *testing.T) {
	r, _, _, buf := newTestRelay(t, eventbus.GameStart)
	defer r.Close()

	for range reloadQueueSize + 2 {
		r.handleReload("pixel")
	}
	assert.Len(t, r.Reloads(), reloadQueueSize)
	assert.Contains(t, buf.String(), "queue is full")
}

func TestRelay_Send(t *testing.T) {
	r, _, conn, _ := newTestRelay(t, eventbus.GameStart)
	defer r.Close()

	require.NoError(t, r.Send(EventLoadResults, map[string]bool{"pixel": true}))
	require.Len(t, conn.sent, 1)
	assert.Equal(t, sent{EventLoadResults, map[string]bool{"pixel": true}}, conn.sent[0])
}

func TestRelay_Close(t *testing.T) {
	r, bus, conn, _ := newTestRelay(t, eventbus.GameStart, eventbus.GameEnd)

	require.NoError(t, r.Close())
	require.NoError(t, r.Close())

	assert.Empty(t, bus.Handlers(eventbus.GameStart))
	assert.Equal(t, 1, conn.disconnected)
	assert.ErrorIs(t, r.Send("ping", nil), ErrClosed)

	r.handleReload("pixel")
	_, open := <-r.Reloads()
	assert.False(t, open)
}
