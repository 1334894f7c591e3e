package store

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/satyaki-up/issueboard/internal/issues"
)

var ErrClosed = errors.New("store closed")

type loadFunc func(ctx context.Context) (issues.Snapshot, error)

// feed turns "something committed" signals into ordered snapshot deliveries.
// A single goroutine loads and delivers, so subscribers see versions in order.
// Signals that arrive while a load is running collapse into one reload.
type feed struct {
	load   loadFunc
	logger *slog.Logger

	mu        sync.Mutex
	subs      map[uint64]func(issues.Snapshot)
	fresh     map[uint64]bool
	nextID    uint64
	published uint64
	delivered bool
	closed    bool

	kick   chan struct{}
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newFeed(load loadFunc, logger *slog.Logger) *feed {
	ctx, cancel := context.WithCancel(context.Background())
	f := &feed{
		load:   load,
		logger: logger,
		subs:   make(map[uint64]func(issues.Snapshot)),
		fresh:  make(map[uint64]bool),
		kick:   make(chan struct{}, 1),
		cancel: cancel,
	}
	f.wg.Add(1)
	go f.run(ctx)
	return f
}

func (f *feed) subscribe(fn func(issues.Snapshot)) (func(), error) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil, ErrClosed
	}
	f.nextID++
	id := f.nextID
	f.subs[id] = fn
	f.fresh[id] = true
	f.mu.Unlock()

	f.notify()

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subs, id)
			delete(f.fresh, id)
			f.mu.Unlock()
		})
	}, nil
}

func (f *feed) notify() {
	select {
	case f.kick <- struct{}{}:
	default:
	}
}

func (f *feed) close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	f.subs = map[uint64]func(issues.Snapshot){}
	f.mu.Unlock()
	f.cancel()
	f.wg.Wait()
}

func (f *feed) run(ctx context.Context) {
	defer f.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-f.kick:
		}

		snap, err := f.loadWithRetry(ctx)
		if err != nil {
			// Only reachable once ctx is cancelled.
			return
		}
		f.deliver(snap)
	}
}

// loadWithRetry keeps retrying until the load succeeds or the feed closes,
// so a committed change is never dropped on a transient read failure.
func (f *feed) loadWithRetry(ctx context.Context) (issues.Snapshot, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 50 * time.Millisecond
	bo.MaxInterval = 5 * time.Second
	bo.MaxElapsedTime = 0

	var snap issues.Snapshot
	err := backoff.RetryNotify(func() error {
		var err error
		snap, err = f.load(ctx)
		return err
	}, backoff.WithContext(bo, ctx), func(err error, wait time.Duration) {
		f.logger.Warn("snapshot reload failed", "err", err, "retry_in", wait)
	})
	return snap, err
}

func (f *feed) deliver(snap issues.Snapshot) {
	f.mu.Lock()
	advance := !f.delivered || snap.Version > f.published
	targets := make([]func(issues.Snapshot), 0, len(f.subs))
	for id, fn := range f.subs {
		if advance || f.fresh[id] {
			targets = append(targets, fn)
		}
		delete(f.fresh, id)
	}
	if advance {
		f.published = snap.Version
		f.delivered = true
	}
	f.mu.Unlock()

	for _, fn := range targets {
		f.call(fn, snap)
	}
}

func (f *feed) call(fn func(issues.Snapshot), snap issues.Snapshot) {
	defer func() {
		if r := recover(); r != nil {
			f.logger.Error("snapshot subscriber panicked", "panic", r, "version", snap.Version)
		}
	}()
	fn(snap)
}
