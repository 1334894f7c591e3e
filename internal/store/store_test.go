package store

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satyaki-up/issueboard/internal/issues"
)

type closingStore interface {
	issues.Store
	Close() error
}

func newSQLiteStore(t *testing.T, opts ...Option) *SQLiteStore {
	t.Helper()
	s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "issues.db"), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func storesUnderTest(t *testing.T) map[string]func(t *testing.T, opts ...Option) closingStore {
	return map[string]func(t *testing.T, opts ...Option) closingStore{
		"memory": func(t *testing.T, opts ...Option) closingStore {
			m := NewMemory(append([]Option{WithProject("tst")}, opts...)...)
			t.Cleanup(func() { _ = m.Close() })
			return m
		},
		"sqlite": func(t *testing.T, opts ...Option) closingStore {
			return newSQLiteStore(t, append([]Option{WithProject("tst"), WithoutWatch()}, opts...)...)
		},
	}
}

func sampleIssue(title string, at time.Time) issues.Issue {
	return issues.Issue{
		Title:      title,
		Priority:   issues.PriorityMedium,
		Status:     issues.StatusOpen,
		AssignedTo: "ana@example.com",
		CreatedBy:  "ana@example.com",
		CreatedAt:  at,
	}
}

// recorder collects deliveries in arrival order.
type recorder struct {
	mu    sync.Mutex
	snaps []issues.Snapshot
}

func (r *recorder) record(s issues.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, s)
}

func (r *recorder) all() []issues.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]issues.Snapshot(nil), r.snaps...)
}

func (r *recorder) last() (issues.Snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.snaps) == 0 {
		return issues.Snapshot{}, false
	}
	return r.snaps[len(r.snaps)-1], true
}

func TestStoreContract(t *testing.T) {
	for name, open := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t)
			base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

			id1, err := s.Put(ctx, sampleIssue("Login bug", base))
			require.NoError(t, err)
			assert.Regexp(t, `^tst-[0-9]{6}$`, id1)
			id2, err := s.Put(ctx, sampleIssue("Signup page", base.Add(time.Minute)))
			require.NoError(t, err)
			assert.NotEqual(t, id1, id2)

			got, err := s.Get(ctx, id1)
			require.NoError(t, err)
			assert.Equal(t, "Login bug", got.Title)
			assert.Equal(t, issues.StatusOpen, got.Status)
			assert.True(t, got.CreatedAt.Equal(base))

			to := issues.StatusInProgress
			require.NoError(t, s.Patch(ctx, id1, issues.Patch{Status: &to}))
			got, err = s.Get(ctx, id1)
			require.NoError(t, err)
			assert.Equal(t, issues.StatusInProgress, got.Status)

			snap, err := s.List(ctx)
			require.NoError(t, err)
			require.Len(t, snap.Issues, 2)
			assert.Equal(t, id2, snap.Issues[0].ID, "newest first")
			assert.Equal(t, id1, snap.Issues[1].ID)

			require.NoError(t, s.Remove(ctx, id2))
			_, err = s.Get(ctx, id2)
			assert.True(t, errors.Is(err, issues.ErrNotFound))
			assert.True(t, errors.Is(s.Remove(ctx, id2), issues.ErrNotFound))
			assert.True(t, errors.Is(s.Patch(ctx, id2, issues.Patch{Status: &to}), issues.ErrNotFound))

			after, err := s.List(ctx)
			require.NoError(t, err)
			assert.Greater(t, after.Version, snap.Version)
			assert.Len(t, after.Issues, 1)
		})
	}
}

// scriptedIDs hands out ids in order, then repeats the last one.
func scriptedIDs(ids ...string) Option {
	var mu sync.Mutex
	next := 0
	return withIDSource(func(string) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		id := ids[min(next, len(ids)-1)]
		next++
		return id, nil
	})
}

func TestStoreNeverReusesDeletedIDs(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for name, open := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t, scriptedIDs("tst-100001", "tst-100001", "tst-100002"))
			first, err := s.Put(ctx, sampleIssue("Login bug", base))
			require.NoError(t, err)
			require.Equal(t, "tst-100001", first)
			require.NoError(t, s.Remove(ctx, first))

			second, err := s.Put(ctx, sampleIssue("Signup page", base.Add(time.Minute)))
			require.NoError(t, err)
			assert.Equal(t, "tst-100002", second, "a deleted id must not be handed out again")

			_, err = s.Get(ctx, first)
			assert.True(t, errors.Is(err, issues.ErrNotFound))
			assert.True(t, errors.Is(s.Remove(ctx, first), issues.ErrNotFound))
		})
	}
}

func TestStoreFailsWhenOnlyRetiredIDsRemain(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for name, open := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t, scriptedIDs("tst-100001"))
			id, err := s.Put(ctx, sampleIssue("Login bug", base))
			require.NoError(t, err)
			require.NoError(t, s.Remove(ctx, id))

			_, err = s.Put(ctx, sampleIssue("Signup page", base))
			require.Error(t, err)
			snap, err := s.List(ctx)
			require.NoError(t, err)
			assert.Empty(t, snap.Issues)
		})
	}
}

func TestSQLiteRetiredIDsSurviveReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "issues.db")
	ids := scriptedIDs("tst-100001", "tst-100001", "tst-100002")

	s, err := OpenSQLite(ctx, path, WithProject("tst"), WithoutWatch(), ids)
	require.NoError(t, err)
	id, err := s.Put(ctx, sampleIssue("Login bug", time.Now()))
	require.NoError(t, err)
	require.NoError(t, s.Remove(ctx, id))
	require.NoError(t, s.Close())

	s, err = OpenSQLite(ctx, path, WithProject("tst"), WithoutWatch(), ids)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	next, err := s.Put(ctx, sampleIssue("Signup page", time.Now()))
	require.NoError(t, err)
	assert.Equal(t, "tst-100002", next)
}

func TestStoreBreaksCreatedAtTiesByInsertionOrder(t *testing.T) {
	for name, open := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t)
			at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

			var ids []string
			for _, title := range []string{"first", "second", "third"} {
				id, err := s.Put(ctx, sampleIssue(title, at))
				require.NoError(t, err)
				ids = append(ids, id)
			}

			snap, err := s.List(ctx)
			require.NoError(t, err)
			require.Len(t, snap.Issues, 3)
			assert.Equal(t, []string{ids[2], ids[1], ids[0]},
				[]string{snap.Issues[0].ID, snap.Issues[1].ID, snap.Issues[2].ID})
		})
	}
}

func TestStoreSubscribeDeliversInitialThenChanges(t *testing.T) {
	for name, open := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t)
			_, err := s.Put(ctx, sampleIssue("existing", time.Now()))
			require.NoError(t, err)

			rec := &recorder{}
			unsubscribe, err := s.Subscribe(rec.record)
			require.NoError(t, err)

			require.Eventually(t, func() bool {
				snap, ok := rec.last()
				return ok && len(snap.Issues) == 1
			}, 2*time.Second, 10*time.Millisecond)

			id, err := s.Put(ctx, sampleIssue("fresh", time.Now().Add(time.Second)))
			require.NoError(t, err)
			require.Eventually(t, func() bool {
				snap, ok := rec.last()
				return ok && len(snap.Issues) == 2 && snap.Issues[0].ID == id
			}, 2*time.Second, 10*time.Millisecond)

			snaps := rec.all()
			for i := 1; i < len(snaps); i++ {
				assert.Greater(t, snaps[i].Version, snaps[i-1].Version, "versions strictly increase")
			}

			unsubscribe()
			unsubscribe()
			seen := len(rec.all())
			require.NoError(t, s.Remove(ctx, id))
			time.Sleep(100 * time.Millisecond)
			assert.Len(t, rec.all(), seen, "no deliveries after unsubscribe")
		})
	}
}

func TestLateSubscriberGetsOnlyItsInitialSnapshot(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	t.Cleanup(func() { _ = s.Close() })

	first := &recorder{}
	_, err := s.Subscribe(first.record)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(first.all()) == 1 }, time.Second, 5*time.Millisecond)

	_, err = s.Put(ctx, sampleIssue("one", time.Now()))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(first.all()) == 2 }, time.Second, 5*time.Millisecond)

	second := &recorder{}
	_, err = s.Subscribe(second.record)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(second.all()) == 1 }, time.Second, 5*time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	assert.Len(t, first.all(), 2, "existing subscriber must not get a duplicate")
}

func TestSubscribeAfterCloseFails(t *testing.T) {
	s := NewMemory()
	require.NoError(t, s.Close())
	_, err := s.Subscribe(func(issues.Snapshot) {})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestSQLiteDecodeAtBoundary(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t, WithoutWatch())

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO issues(id, title, description, priority, status, assigned_to, created_by, created_at)
		VALUES
			('brd-1', 'Legacy spelling', '', 'urgent', 'in_progress', 'a', 'a', 1000),
			('brd-2', 'Broken status', '', 'Low', 'Blocked', 'a', 'a', 2000)
	`)
	require.NoError(t, err)

	legacy, err := s.Get(ctx, "brd-1")
	require.NoError(t, err)
	assert.Equal(t, issues.StatusInProgress, legacy.Status)
	assert.Equal(t, issues.PriorityMedium, legacy.Priority, "unknown priority defaults to Medium")

	_, err = s.Get(ctx, "brd-2")
	assert.ErrorIs(t, err, ErrMalformedRecord)

	snap, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Issues, 1, "malformed rows are skipped from snapshots")
	assert.Equal(t, "brd-1", snap.Issues[0].ID)
}

func TestSQLitePublishesWritesFromAnotherConnection(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "shared.db")

	viewer, err := OpenSQLite(ctx, path, WithWatchDebounce(20*time.Millisecond))
	require.NoError(t, err)
	t.Cleanup(func() { _ = viewer.Close() })

	writer, err := OpenSQLite(ctx, path, WithoutWatch())
	require.NoError(t, err)
	t.Cleanup(func() { _ = writer.Close() })

	rec := &recorder{}
	_, err = viewer.Subscribe(rec.record)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(rec.all()) == 1 }, 2*time.Second, 10*time.Millisecond)

	id, err := writer.Put(ctx, sampleIssue("written elsewhere", time.Now()))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		snap, ok := rec.last()
		if !ok {
			return false
		}
		_, found := snap.Find(id)
		return found
	}, 5*time.Second, 20*time.Millisecond)
}

func TestIsBusy(t *testing.T) {
	assert.True(t, isBusy(errors.New("database is locked (5) (SQLITE_BUSY)")))
	assert.True(t, isBusy(errors.New("SQLITE_BUSY")))
	assert.False(t, isBusy(errors.New("UNIQUE constraint failed: issues.id")))
}
