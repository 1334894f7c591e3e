// Package hub fans store snapshots out to any number of independent observers.
//
// The hub is the only consumer of the store's change feed. Every observer
// gets its own goroutine and a one-slot mailbox: a slow observer only ever
// sees the newest snapshot and never holds up delivery to the others.
package hub

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/satyaki-up/issueboard/internal/issues"
)

const instrumentationScope = "github.com/satyaki-up/issueboard/internal/hub"

var ErrClosed = errors.New("hub closed")

// SnapshotSource is the part of issues.Store the hub consumes.
type SnapshotSource interface {
	Subscribe(fn func(issues.Snapshot)) (unsubscribe func(), err error)
}

type Hub struct {
	source SnapshotSource
	logger *slog.Logger
	gauge  metric.Int64UpDownCounter

	mu        sync.Mutex
	observers map[string]*observer
	latest    issues.Snapshot
	hasLatest bool
	ready     chan struct{}
	detach    func()
	started   bool
	closed    bool
}

type Option func(*Hub)

func WithLogger(l *slog.Logger) Option {
	return func(h *Hub) {
		if l != nil {
			h.logger = l
		}
	}
}

func WithMeter(m metric.Meter) Option {
	return func(h *Hub) { h.gauge, _ = m.Int64UpDownCounter("board.hub.subscribers") }
}

func New(source SnapshotSource, opts ...Option) *Hub {
	h := &Hub{
		source:    source,
		logger:    slog.Default(),
		observers: make(map[string]*observer),
		ready:     make(chan struct{}),
	}
	h.gauge, _ = otel.Meter(instrumentationScope).Int64UpDownCounter("board.hub.subscribers")
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Start attaches the hub to its source and waits for the first snapshot so
// that later subscribers are served immediately.
func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return ErrClosed
	}
	if h.started {
		h.mu.Unlock()
		return h.waitReady(ctx)
	}
	h.started = true
	h.mu.Unlock()

	detach, err := h.source.Subscribe(h.publish)
	if err != nil {
		return err
	}
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		detach()
		return ErrClosed
	}
	h.detach = detach
	h.mu.Unlock()
	return h.waitReady(ctx)
}

func (h *Hub) waitReady(ctx context.Context) error {
	select {
	case <-h.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close detaches from the source and cancels every subscription.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	detach := h.detach
	observers := h.observers
	h.observers = make(map[string]*observer)
	h.mu.Unlock()

	if detach != nil {
		detach()
	}
	for _, o := range observers {
		o.stop()
	}
	h.gauge.Add(context.Background(), -int64(len(observers)))
}

// publish receives the source's snapshots, in version order.
func (h *Hub) publish(snap issues.Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	if h.hasLatest && snap.Version <= h.latest.Version {
		return
	}
	h.latest = snap
	if !h.hasLatest {
		h.hasLatest = true
		close(h.ready)
	}
	for _, o := range h.observers {
		o.offer(snap)
	}
}

// Subscribe registers fn. It receives the latest snapshot right away and a
// fresh one after every committed change. fn must not modify the snapshot.
func (h *Hub) Subscribe(fn func(issues.Snapshot)) (*Subscription, error) {
	o := newObserver(uuid.NewString(), fn, h.logger)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ErrClosed
	}
	h.observers[o.id] = o
	if h.hasLatest {
		o.offer(h.latest)
	}
	h.mu.Unlock()

	h.gauge.Add(context.Background(), 1)
	h.logger.Debug("observer subscribed", "subscription", o.id)
	return &Subscription{hub: h, obs: o}, nil
}

func (h *Hub) remove(id string) bool {
	h.mu.Lock()
	_, ok := h.observers[id]
	delete(h.observers, id)
	h.mu.Unlock()
	if ok {
		h.gauge.Add(context.Background(), -1)
		h.logger.Debug("observer cancelled", "subscription", id)
	}
	return ok
}

// Latest returns the most recent snapshot, if any has arrived yet.
func (h *Hub) Latest() (issues.Snapshot, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.latest, h.hasLatest
}

func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.observers)
}

// Subscription is the cancellation handle returned by Subscribe.
type Subscription struct {
	hub *Hub
	obs *observer
}

func (s *Subscription) ID() string {
	return s.obs.id
}

// Cancel stops deliveries. It is idempotent and safe to call from inside the
// callback; once it returns no new delivery starts.
func (s *Subscription) Cancel() {
	s.obs.stop()
	s.hub.remove(s.obs.id)
}
