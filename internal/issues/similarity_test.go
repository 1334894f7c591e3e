package issues

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindSimilarShortTitlesNeverMatch(t *testing.T) {
	active := []Issue{{ID: "a", Title: "ab"}, {ID: "b", Title: "abc"}, {ID: "c", Title: "xab"}}
	assert.Empty(t, FindSimilar("ab", active))
	assert.Empty(t, FindSimilar("  ab  ", active))
	assert.Empty(t, FindSimilar("", active))
}

func TestFindSimilarContainmentIgnoresCase(t *testing.T) {
	login := Issue{ID: "a", Title: "Login bug", Status: StatusOpen}
	other := Issue{ID: "b", Title: "Signup page", Status: StatusOpen}

	got := FindSimilar("fix login bug", []Issue{login, other})
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].ID)

	got = FindSimilar("LOGIN", []Issue{login, other})
	require.Len(t, got, 1, "candidate contained in an existing title")
	assert.Equal(t, "a", got[0].ID)

	assert.Empty(t, FindSimilar("dark mode", []Issue{login, other}))
}

func TestFindSimilarOverActiveIssuesSkipsDone(t *testing.T) {
	all := []Issue{
		{ID: "a", Title: "Login bug", Status: StatusDone},
		{ID: "b", Title: "Login bug on mobile", Status: StatusInProgress},
		{ID: "c", Title: "login bug", Status: StatusOpen},
	}
	got := FindSimilar("login bug", ActiveIssues(all))
	require.Len(t, got, 2)
	for _, is := range got {
		assert.NotEqual(t, StatusDone, is.Status)
	}
}

func TestSortIssuesIsTotal(t *testing.T) {
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	list := []Issue{
		{ID: "old", CreatedAt: at.Add(-time.Hour), Seq: 9},
		{ID: "tie-1", CreatedAt: at, Seq: 1},
		{ID: "tie-3", CreatedAt: at, Seq: 3},
		{ID: "tie-2", CreatedAt: at, Seq: 2},
		{ID: "new", CreatedAt: at.Add(time.Hour), Seq: 0},
	}
	SortIssues(list)

	var ids []string
	for _, is := range list {
		ids = append(ids, is.ID)
	}
	assert.Equal(t, []string{"new", "tie-3", "tie-2", "tie-1", "old"}, ids)
}

func TestSnapshotFilterAndColumns(t *testing.T) {
	snap := Snapshot{Version: 7, Issues: []Issue{
		{ID: "a", Status: StatusOpen, AssignedTo: "ana@example.com"},
		{ID: "b", Status: StatusDone, AssignedTo: "bo@example.com"},
		{ID: "c", Status: StatusInProgress, AssignedTo: "Ana@example.com"},
	}}

	active := snap.Filter(Filter{ActiveOnly: true})
	assert.Equal(t, uint64(7), active.Version)
	assert.Len(t, active.Issues, 2)

	mine := snap.Filter(Filter{AssignedTo: "ana@example.com"})
	assert.Len(t, mine.Issues, 2)

	done := StatusDone
	assert.Len(t, snap.Filter(Filter{Status: &done}).Issues, 1)

	cols := snap.Columns()
	assert.Len(t, cols, 3)
	assert.Len(t, cols[StatusOpen], 1)
	assert.Len(t, cols[StatusInProgress], 1)
	assert.Len(t, cols[StatusDone], 1)
	assert.NotNil(t, Snapshot{}.Columns()[StatusDone], "empty columns are still present")

	got, ok := snap.Find("c")
	require.True(t, ok)
	assert.Equal(t, StatusInProgress, got.Status)
	_, ok = snap.Find("zzz")
	assert.False(t, ok)
}
