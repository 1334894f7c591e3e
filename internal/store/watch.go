package store

import (
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// dbWatcher reports writes to the database files so commits made by other
// processes reach this process's subscribers. Rapid events are debounced;
// the feed then drops reloads whose revision it has already published.
type dbWatcher struct {
	w        *fsnotify.Watcher
	base     string
	debounce time.Duration
	onChange func()
	logger   *slog.Logger

	mu    sync.Mutex
	timer *time.Timer
	done  chan struct{}
	wg    sync.WaitGroup
}

func watchDB(path string, debounce time.Duration, onChange func(), logger *slog.Logger) (*dbWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(filepath.Dir(path)); err != nil {
		_ = w.Close()
		return nil, err
	}
	dw := &dbWatcher{
		w:        w,
		base:     filepath.Base(path),
		debounce: debounce,
		onChange: onChange,
		logger:   logger,
		done:     make(chan struct{}),
	}
	dw.wg.Add(1)
	go dw.loop()
	return dw, nil
}

func (dw *dbWatcher) loop() {
	defer dw.wg.Done()
	for {
		select {
		case <-dw.done:
			return
		case event, ok := <-dw.w.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if dw.relevant(filepath.Base(event.Name)) {
				dw.schedule()
			}
		case err, ok := <-dw.w.Errors:
			if !ok {
				return
			}
			dw.logger.Warn("db watcher error", "err", err)
		}
	}
}

// relevant matches the database file and its WAL/journal siblings.
func (dw *dbWatcher) relevant(name string) bool {
	return name == dw.base || strings.HasPrefix(name, dw.base+"-")
}

func (dw *dbWatcher) schedule() {
	dw.mu.Lock()
	defer dw.mu.Unlock()
	if dw.timer != nil {
		dw.timer.Stop()
	}
	dw.timer = time.AfterFunc(dw.debounce, dw.onChange)
}

func (dw *dbWatcher) close() {
	close(dw.done)
	_ = dw.w.Close()
	dw.wg.Wait()
	dw.mu.Lock()
	if dw.timer != nil {
		dw.timer.Stop()
	}
	dw.mu.Unlock()
}
