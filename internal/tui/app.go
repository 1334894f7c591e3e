// Package tui renders the live issue board in the terminal with bubbletea.
//
// The board is fed from outside: the caller subscribes to the hub and
// forwards every delivery to the running program as a SnapshotMsg.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/cursor"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/satyaki-up/issueboard/internal/issues"
)

// BannerTimeout is how long an error stays on screen.
const BannerTimeout = 5 * time.Second

// BoardService is the part of issues.Service the board drives.
type BoardService interface {
	Create(ctx context.Context, in issues.NewIssue, override bool) (*issues.CreateResult, error)
	UpdateStatus(ctx context.Context, id string, to issues.Status) error
	Delete(ctx context.Context, id string) error
}

// SnapshotMsg carries a hub delivery into the program.
type SnapshotMsg issues.Snapshot

type opErrMsg struct{ err error }

// formErrMsg reports a create form problem without closing the form.
type formErrMsg struct{ err error }

type clearBannerMsg struct{ seq int }

type createdMsg struct {
	in  issues.NewIssue
	res *issues.CreateResult
}

type mode int

// Create form fields, in tab order.
const (
	fieldTitle = iota
	fieldDescription
	fieldPriority
	fieldAssignee
	fieldCount
)

const (
	modeBoard mode = iota
	modeCreate
	modeConfirmDuplicate
	modeConfirmDelete
)

type App struct {
	svc     BoardService
	actor   string
	timeout time.Duration

	snap    issues.Snapshot
	hasSnap bool
	columns map[issues.Status][]issues.Issue

	col int
	row [3]int

	mode     mode
	fields   [fieldCount]textinput.Model
	focus    int
	pending  issues.NewIssue
	similar  []issues.Issue
	deleteID string

	banner    string
	bannerSeq int
	notice    string

	width  int
	height int
}

func NewApp(svc BoardService, actor string) *App {
	a := &App{
		svc:     svc,
		actor:   actor,
		timeout: 10 * time.Second,
		columns: issues.Snapshot{}.Columns(),
	}
	placeholders := [fieldCount]string{
		fieldTitle:       "Issue title",
		fieldDescription: "Description (optional)",
		fieldPriority:    "Low / Medium / High (default Medium)",
		fieldAssignee:    "Assignee (default: you)",
	}
	for i, ph := range placeholders {
		in := textinput.New()
		in.Placeholder = ph
		in.CharLimit = 200
		in.Cursor.SetMode(cursor.CursorStatic)
		a.fields[i] = in
	}
	a.fields[fieldDescription].CharLimit = 2000
	return a
}

func (a *App) Init() tea.Cmd {
	return nil
}

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		return a, nil

	case SnapshotMsg:
		snap := issues.Snapshot(msg)
		if a.hasSnap && snap.Version <= a.snap.Version {
			return a, nil
		}
		a.snap = snap
		a.hasSnap = true
		a.columns = snap.Columns()
		a.clampSelection()
		return a, nil

	case opErrMsg:
		return a, a.showBanner(msg.err)

	case formErrMsg:
		return a, a.flashBanner(msg.err)

	case clearBannerMsg:
		if msg.seq == a.bannerSeq {
			a.banner = ""
		}
		return a, nil

	case createdMsg:
		if msg.res.NeedsConfirmation() {
			a.mode = modeConfirmDuplicate
			a.pending = msg.in
			a.similar = msg.res.Similar
			return a, nil
		}
		a.mode = modeBoard
		a.similar = nil
		a.notice = fmt.Sprintf("Created %s", msg.res.ID)
		return a, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return a, tea.Quit
		}
		switch a.mode {
		case modeCreate:
			return a.updateCreate(msg)
		case modeConfirmDuplicate:
			return a.updateConfirmDuplicate(msg)
		case modeConfirmDelete:
			return a.updateConfirmDelete(msg)
		default:
			return a.updateBoard(msg)
		}
	}
	return a, nil
}

func (a *App) updateBoard(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	a.notice = ""
	switch msg.String() {
	case "q":
		return a, tea.Quit
	case "left", "h":
		if a.col > 0 {
			a.col--
		}
	case "right", "l":
		if a.col < len(issues.Statuses)-1 {
			a.col++
		}
	case "up", "k":
		if a.row[a.col] > 0 {
			a.row[a.col]--
		}
	case "down", "j":
		if a.row[a.col] < len(a.currentColumn())-1 {
			a.row[a.col]++
		}
	case "]":
		if a.col < len(issues.Statuses)-1 {
			return a, a.moveSelected(issues.Statuses[a.col+1])
		}
	case "[":
		if a.col > 0 {
			return a, a.moveSelected(issues.Statuses[a.col-1])
		}
	case "1", "2", "3":
		idx := int(msg.String()[0] - '1')
		return a, a.moveSelected(issues.Statuses[idx])
	case "n":
		a.mode = modeCreate
		for i := range a.fields {
			a.fields[i].SetValue("")
			a.fields[i].Blur()
		}
		a.focus = fieldTitle
		return a, a.fields[fieldTitle].Focus()
	case "d":
		if is, ok := a.selected(); ok {
			a.mode = modeConfirmDelete
			a.deleteID = is.ID
		}
	}
	return a, nil
}

func (a *App) updateCreate(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		a.mode = modeBoard
		a.fields[a.focus].Blur()
		return a, nil
	case "tab", "shift+tab":
		step := 1
		if msg.String() == "shift+tab" {
			step = fieldCount - 1
		}
		a.fields[a.focus].Blur()
		a.focus = (a.focus + step) % fieldCount
		return a, a.fields[a.focus].Focus()
	case "enter":
		title := strings.TrimSpace(a.fields[fieldTitle].Value())
		if title == "" {
			return a, nil
		}
		prio, err := issues.ParsePriority(a.fields[fieldPriority].Value())
		if err != nil {
			return a, func() tea.Msg { return formErrMsg{err: err} }
		}
		a.fields[a.focus].Blur()
		in := issues.NewIssue{
			Title:       title,
			Description: strings.TrimSpace(a.fields[fieldDescription].Value()),
			Priority:    prio,
			AssignedTo:  strings.TrimSpace(a.fields[fieldAssignee].Value()),
			CreatedBy:   a.actor,
		}
		return a, a.createCmd(in, false)
	}
	var cmd tea.Cmd
	a.fields[a.focus], cmd = a.fields[a.focus].Update(msg)
	return a, cmd
}

func (a *App) updateConfirmDuplicate(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "y", "Y":
		return a, a.createCmd(a.pending, true)
	case "n", "N", "esc":
		a.mode = modeBoard
		a.similar = nil
		a.pending = issues.NewIssue{}
	}
	return a, nil
}

func (a *App) updateConfirmDelete(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	id := a.deleteID
	a.mode = modeBoard
	a.deleteID = ""
	if msg.String() != "y" && msg.String() != "Y" {
		return a, nil
	}
	return a, func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		defer cancel()
		if err := a.svc.Delete(ctx, id); err != nil {
			return opErrMsg{err: err}
		}
		return nil
	}
}

func (a *App) createCmd(in issues.NewIssue, override bool) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		defer cancel()
		res, err := a.svc.Create(ctx, in, override)
		if err != nil {
			return opErrMsg{err: err}
		}
		return createdMsg{in: in, res: res}
	}
}

func (a *App) moveSelected(to issues.Status) tea.Cmd {
	is, ok := a.selected()
	if !ok || is.Status == to {
		return nil
	}
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		defer cancel()
		if err := a.svc.UpdateStatus(ctx, is.ID, to); err != nil {
			return opErrMsg{err: err}
		}
		return nil
	}
}

func (a *App) showBanner(err error) tea.Cmd {
	if a.mode == modeCreate || a.mode == modeConfirmDuplicate {
		a.mode = modeBoard
	}
	return a.flashBanner(err)
}

func (a *App) flashBanner(err error) tea.Cmd {
	a.bannerSeq++
	seq := a.bannerSeq
	a.banner = bannerText(err)
	return tea.Tick(BannerTimeout, func(time.Time) tea.Msg {
		return clearBannerMsg{seq: seq}
	})
}

func bannerText(err error) string {
	var se *issues.StoreError
	switch {
	case errors.Is(err, issues.ErrWorkflowViolation):
		return err.Error()
	case errors.Is(err, issues.ErrNotFound):
		return "That issue no longer exists."
	case errors.As(err, &se):
		return "Could not reach the issue store: " + se.Err.Error()
	default:
		return err.Error()
	}
}

func (a *App) currentColumn() []issues.Issue {
	return a.columns[issues.Statuses[a.col]]
}

func (a *App) selected() (issues.Issue, bool) {
	col := a.currentColumn()
	if len(col) == 0 {
		return issues.Issue{}, false
	}
	return col[a.row[a.col]], true
}

func (a *App) clampSelection() {
	for i, st := range issues.Statuses {
		n := len(a.columns[st])
		if a.row[i] >= n {
			a.row[i] = max(0, n-1)
		}
	}
}
