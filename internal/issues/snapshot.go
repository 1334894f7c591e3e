package issues

import "sort"

// Snapshot is the full, ordered issue set at a store revision.
type Snapshot struct {
	Version uint64  `json:"version"`
	Issues  []Issue `json:"issues"`
}

// SortIssues orders newest first. Equal CreatedAt values fall back to the
// insertion sequence, then the id, so the order is total.
func SortIssues(list []Issue) {
	sort.SliceStable(list, func(i, j int) bool {
		a, b := list[i], list[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		if a.Seq != b.Seq {
			return a.Seq > b.Seq
		}
		return a.ID > b.ID
	})
}

func (s Snapshot) Filter(f Filter) Snapshot {
	out := Snapshot{Version: s.Version, Issues: make([]Issue, 0, len(s.Issues))}
	for _, is := range s.Issues {
		if f.match(is) {
			out.Issues = append(out.Issues, is)
		}
	}
	return out
}

func (s Snapshot) Find(id string) (Issue, bool) {
	for _, is := range s.Issues {
		if is.ID == id {
			return is, true
		}
	}
	return Issue{}, false
}

// Columns groups the snapshot by status, preserving order inside each group.
func (s Snapshot) Columns() map[Status][]Issue {
	cols := make(map[Status][]Issue, len(Statuses))
	for _, st := range Statuses {
		cols[st] = []Issue{}
	}
	for _, is := range s.Issues {
		cols[is.Status] = append(cols[is.Status], is)
	}
	return cols
}
