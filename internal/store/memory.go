package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/satyaki-up/issueboard/internal/issues"
)

var _ issues.Store = (*MemoryStore)(nil)

// MemoryStore keeps issues in process memory. It is used by tests and by
// `--db :memory:` sessions that do not need durability.
type MemoryStore struct {
	mu       sync.RWMutex
	issues   map[string]issues.Issue
	retired  map[string]struct{}
	seq      int64
	revision uint64
	project  string
	newID    func(prefix string) (string, error)

	feed *feed
}

func NewMemory(opts ...Option) *MemoryStore {
	o := buildOptions(opts)
	m := &MemoryStore{
		issues:  make(map[string]issues.Issue),
		retired: make(map[string]struct{}),
		project: o.project,
		newID:   o.newID,
	}
	m.feed = newFeed(func(context.Context) (issues.Snapshot, error) {
		return m.snapshot(), nil
	}, o.logger)
	return m
}

func (m *MemoryStore) Put(ctx context.Context, issue issues.Issue) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	var id string
	for attempt := 0; attempt < maxCreateAttempts; attempt++ {
		candidate, err := m.newID(m.project)
		if err != nil {
			m.mu.Unlock()
			return "", err
		}
		if _, taken := m.issues[candidate]; taken {
			continue
		}
		if _, gone := m.retired[candidate]; gone {
			continue
		}
		id = candidate
		break
	}
	if id == "" {
		m.mu.Unlock()
		return "", fmt.Errorf("failed to allocate issue id after %d attempts", maxCreateAttempts)
	}
	m.seq++
	issue.ID = id
	issue.Seq = m.seq
	m.issues[id] = issue
	m.revision++
	m.mu.Unlock()

	m.feed.notify()
	return id, nil
}

func (m *MemoryStore) Patch(ctx context.Context, id string, p issues.Patch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	is, ok := m.issues[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: issue %q not found", issues.ErrNotFound, id)
	}
	if p.Status != nil {
		is.Status = *p.Status
	}
	m.issues[id] = is
	m.revision++
	m.mu.Unlock()

	m.feed.notify()
	return nil
}

func (m *MemoryStore) Remove(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	if _, ok := m.issues[id]; !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: issue %q not found", issues.ErrNotFound, id)
	}
	delete(m.issues, id)
	m.retired[id] = struct{}{}
	m.revision++
	m.mu.Unlock()

	m.feed.notify()
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*issues.Issue, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	is, ok := m.issues[id]
	if !ok {
		return nil, fmt.Errorf("%w: issue %q not found", issues.ErrNotFound, id)
	}
	return &is, nil
}

func (m *MemoryStore) List(ctx context.Context) (issues.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return issues.Snapshot{}, err
	}
	return m.snapshot(), nil
}

func (m *MemoryStore) Subscribe(fn func(issues.Snapshot)) (func(), error) {
	return m.feed.subscribe(fn)
}

func (m *MemoryStore) Close() error {
	m.feed.close()
	return nil
}

func (m *MemoryStore) snapshot() issues.Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]issues.Issue, 0, len(m.issues))
	for _, is := range m.issues {
		out = append(out, is)
	}
	issues.SortIssues(out)
	return issues.Snapshot{Version: m.revision, Issues: out}
}
