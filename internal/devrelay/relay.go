package devrelay

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/vk/minemods/internal/ctxlog"
	"github.com/vk/minemods/internal/eventbus"
	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"
)

// Owner is the bus owner name used for the relay's subscriptions.
const Owner = "devrelay"

// Socket.io event names exchanged with the relay server.
const (
	EventBusEvent    = "bus_event"
	EventReload      = "reload"
	EventHello       = "hello"
	EventLoadResults = "load_results"
)

const (
	defaultConnectTimeout = 15 * time.Second
	reloadQueueSize       = 8
)

// ErrClosed is returned by operations on a closed relay.
var ErrClosed = errors.New("relay closed")

// Config describes the relay connection.
type Config struct {
	URL                string
	Namespace          string
	InsecureSkipVerify bool
	// ConnectTimeout bounds the initial handshake. Zero means 15s.
	ConnectTimeout time.Duration
	// Events lists the bus events to mirror. Empty mirrors every well-known
	// event.
	Events []string
}

// Request asks the host to reload mods. An empty Namespace means every mod.
type Request struct {
	Namespace string
}

// Relay is a live connection to a relay server.
type Relay struct {
	bus    *eventbus.Bus
	logger *slog.Logger

	emit       func(event string, data any)
	disconnect func()

	mu      sync.Mutex
	closed  bool
	reloads chan Request
}

// Dial connects to the relay server described by cfg and starts mirroring
// bus events. It blocks until the handshake completes, ctx is done or the
// connect timeout elapses.
func Dial(ctx context.Context, cfg Config, bus *eventbus.Bus) (*Relay, error) {
	logger := ctxlog.FromContext(ctx).With("component", "devrelay", "url", cfg.URL)

	parsedURL, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}
	if parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, fmt.Errorf("relay URL %q needs a scheme and host", cfg.URL)
	}
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}

	opts := socket.DefaultOptions()
	opts.SetPath(parsedURL.Path)
	if cfg.InsecureSkipVerify {
		logger.Warn("Skipping TLS certificate verification")
		opts.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}
	opts.SetTransports(types.NewSet(transports.WebSocket))

	connectChan := make(chan error, 1)

	baseURL := fmt.Sprintf("%s://%s", parsedURL.Scheme, parsedURL.Host)
	manager := socket.NewManager(baseURL, opts)
	io := manager.Socket(cfg.Namespace, opts)

	io.Once(types.EventName("connect"), func(...any) {
		logger.Info("Connected to relay.", "sid", io.Id())
		select {
		case connectChan <- nil:
		default:
		}
	})
	io.Once(types.EventName("connect_error"), func(errs ...any) {
		err := errors.New("connect error")
		if len(errs) > 0 {
			if e, ok := errs[0].(error); ok {
				err = e
			} else {
				err = fmt.Errorf("%v", errs[0])
			}
		}
		select {
		case connectChan <- err:
		default:
		}
	})

	io.Connect()

	select {
	case err := <-connectChan:
		if err != nil {
			io.Disconnect()
			return nil, fmt.Errorf("socket.io connection failed: %w", err)
		}
	case <-ctx.Done():
		io.Disconnect()
		return nil, fmt.Errorf("context cancelled while waiting for relay connection: %w", ctx.Err())
	case <-time.After(timeout):
		io.Disconnect()
		return nil, fmt.Errorf("timed out after %s waiting for relay connection", timeout)
	}

	r := newRelay(bus, logger,
		func(event string, data any) { io.Emit(event, data) },
		func() { io.Disconnect() },
	)
	io.On(types.EventName(EventReload), func(args ...any) {
		r.handleReload(args...)
	})
	if err := r.mirror(cfg.Events); err != nil {
		r.Close()
		return nil, err
	}
	r.emit(EventHello, map[string]any{"events": r.mirrored()})
	return r, nil
}

func newRelay(bus *eventbus.Bus, logger *slog.Logger, emit func(string, any), disconnect func()) *Relay {
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{
		bus:        bus,
		logger:     logger,
		emit:       emit,
		disconnect: disconnect,
		reloads:    make(chan Request, reloadQueueSize),
	}
}

// mirror subscribes a Monitor handler for each event name.
func (r *Relay) mirror(events []string) error {
	if len(events) == 0 {
		events = eventbus.KnownEvents
	}
	for _, name := range events {
		if _, err := r.bus.Subscribe(name, r.forward, eventbus.Monitor, Owner); err != nil {
			return fmt.Errorf("mirror %q: %w", name, err)
		}
	}
	return nil
}

func (r *Relay) mirrored() []string {
	var names []string
	for _, name := range eventbus.KnownEvents {
		for _, reg := range r.bus.Handlers(name) {
			if reg.Owner == Owner {
				names = append(names, name)
				break
			}
		}
	}
	return names
}

func (r *Relay) forward(_ context.Context, e *eventbus.Event) error {
	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return nil
	}
	r.emit(EventBusEvent, map[string]any{
		"name":      e.Name,
		"payload":   e.Payload,
		"cancelled": e.Cancelled(),
	})
	return nil
}

// handleReload queues a reload request. The first argument may be a
// namespace string or an object with a "namespace" field.
func (r *Relay) handleReload(args ...any) {
	var req Request
	if len(args) > 0 {
		switch v := args[0].(type) {
		case string:
			req.Namespace = v
		case map[string]any:
			req.Namespace, _ = v["namespace"].(string)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	select {
	case r.reloads <- req:
		r.logger.Info("Queued remote reload.", "target", req.Namespace)
	default:
		r.logger.Warn("Dropped remote reload, queue is full.", "target", req.Namespace)
	}
}

// Reloads returns the channel of pending reload requests. It is closed by
// Close.
func (r *Relay) Reloads() <-chan Request { return r.reloads }

// Send emits an arbitrary event to the relay server.
func (r *Relay) Send(event string, data any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	r.emit(event, data)
	return nil
}

// Close removes the bus subscriptions and disconnects. It is safe to call
// more than once.
func (r *Relay) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.reloads)
	r.mu.Unlock()

	n := r.bus.UnsubscribeAll(Owner)
	r.disconnect()
	r.logger.Info("Relay closed.", "subscriptions", n)
	return nil
}
