package hub

import (
	"log/slog"
	"sync"

	"github.com/satyaki-up/issueboard/internal/issues"
)

type observer struct {
	id     string
	fn     func(issues.Snapshot)
	logger *slog.Logger

	mailbox chan issues.Snapshot
	done    chan struct{}

	mu        sync.Mutex
	stopped   bool
	delivered bool
	version   uint64
}

func newObserver(id string, fn func(issues.Snapshot), logger *slog.Logger) *observer {
	o := &observer{
		id:      id,
		fn:      fn,
		logger:  logger,
		mailbox: make(chan issues.Snapshot, 1),
		done:    make(chan struct{}),
	}
	go o.loop()
	return o
}

// offer replaces whatever is waiting in the mailbox with snap. Callers hold
// the hub lock, so offers arrive in version order.
func (o *observer) offer(snap issues.Snapshot) {
	for {
		select {
		case o.mailbox <- snap:
			return
		default:
		}
		select {
		case <-o.mailbox:
		default:
		}
	}
}

func (o *observer) loop() {
	for {
		select {
		case <-o.done:
			return
		case snap := <-o.mailbox:
			o.deliver(snap)
		}
	}
}

func (o *observer) deliver(snap issues.Snapshot) {
	o.mu.Lock()
	if o.stopped || (o.delivered && snap.Version <= o.version) {
		o.mu.Unlock()
		return
	}
	o.delivered = true
	o.version = snap.Version
	o.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("observer panicked", "subscription", o.id, "panic", r, "version", snap.Version)
		}
	}()
	o.fn(snap)
}

func (o *observer) stop() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.stopped {
		return
	}
	o.stopped = true
	close(o.done)
}
