package issues

import (
	"fmt"
	"strings"
	"time"
)

type Status string

const (
	StatusOpen       Status = "Open"
	StatusInProgress Status = "In Progress"
	StatusDone       Status = "Done"
)

// Statuses lists the workflow columns in board order.
var Statuses = []Status{StatusOpen, StatusInProgress, StatusDone}

type Priority string

const (
	PriorityLow    Priority = "Low"
	PriorityMedium Priority = "Medium"
	PriorityHigh   Priority = "High"
)

type Issue struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Priority    Priority  `json:"priority"`
	Status      Status    `json:"status"`
	AssignedTo  string    `json:"assigned_to"`
	CreatedBy   string    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`

	// Seq is the store's insertion sequence. It only breaks CreatedAt ties.
	Seq int64 `json:"-"`
}

// IsActive reports whether the issue takes part in duplicate detection.
func (is Issue) IsActive() bool {
	return is.Status != StatusDone
}

// NewIssue is the caller-supplied part of an issue at creation time.
type NewIssue struct {
	Title       string
	Description string
	Priority    Priority
	AssignedTo  string
	CreatedBy   string
}

// Patch carries the fields Store.Patch may change. Only status is mutable.
type Patch struct {
	Status *Status
}

type Filter struct {
	Status     *Status
	ActiveOnly bool
	AssignedTo string
}

func (f Filter) match(is Issue) bool {
	if f.Status != nil && is.Status != *f.Status {
		return false
	}
	if f.ActiveOnly && !is.IsActive() {
		return false
	}
	if f.AssignedTo != "" && !strings.EqualFold(f.AssignedTo, is.AssignedTo) {
		return false
	}
	return true
}

func IsValidStatus(s Status) bool {
	switch s {
	case StatusOpen, StatusInProgress, StatusDone:
		return true
	default:
		return false
	}
}

// ParseStatus accepts the display form and the usual CLI spellings
// ("in-progress", "in_progress", "inprogress").
func ParseStatus(raw string) (Status, error) {
	key := strings.ToLower(strings.TrimSpace(raw))
	key = strings.NewReplacer("-", " ", "_", " ").Replace(key)
	switch key {
	case "open":
		return StatusOpen, nil
	case "in progress", "inprogress":
		return StatusInProgress, nil
	case "done":
		return StatusDone, nil
	default:
		return "", fmt.Errorf("%w: unknown status %q", ErrInvalidInput, raw)
	}
}
