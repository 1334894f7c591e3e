package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/satyaki-up/issueboard/internal/issues"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#5B8DEF")).
			MarginBottom(1)
	columnStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#444444")).
			Padding(0, 1)
	activeColumnStyle = columnStyle.
				BorderForeground(lipgloss.Color("#5B8DEF"))
	columnTitleStyle = lipgloss.NewStyle().Bold(true)
	cardStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("#CCCCCC"))
	selectedStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FFFFFF")).Background(lipgloss.Color("#3A3F58"))
	mutedStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	bannerStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF6B6B"))
	noticeStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#7FD17F"))
	promptStyle      = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("#F0C674")).
				Padding(0, 1)
)

var priorityMarks = map[issues.Priority]string{
	issues.PriorityHigh:   "▲",
	issues.PriorityMedium: "■",
	issues.PriorityLow:    "▽",
}

func (a *App) View() string {
	if !a.hasSnap {
		return mutedStyle.Render("Loading board...")
	}

	colWidth := 30
	if a.width > 0 {
		colWidth = max(20, a.width/len(issues.Statuses)-4)
	}

	rendered := make([]string, 0, len(issues.Statuses))
	for i, st := range issues.Statuses {
		rendered = append(rendered, a.renderColumn(i, st, colWidth))
	}

	sections := []string{
		headerStyle.Render(fmt.Sprintf("ISSUE BOARD · %s · rev %d", a.actor, a.snap.Version)),
		lipgloss.JoinHorizontal(lipgloss.Top, rendered...),
	}
	if prompt := a.renderPrompt(); prompt != "" {
		sections = append(sections, prompt)
	}
	if a.banner != "" {
		sections = append(sections, bannerStyle.Render(a.banner))
	} else if a.notice != "" {
		sections = append(sections, noticeStyle.Render(a.notice))
	}
	sections = append(sections, mutedStyle.Render(a.help()))
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (a *App) renderColumn(idx int, st issues.Status, width int) string {
	list := a.columns[st]
	lines := []string{columnTitleStyle.Render(fmt.Sprintf("%s (%d)", st, len(list)))}
	if len(list) == 0 {
		lines = append(lines, mutedStyle.Render("empty"))
	}
	for r, is := range list {
		text := truncate(fmt.Sprintf("%s %s", priorityMarks[is.Priority], is.Title), width)
		sub := truncate(fmt.Sprintf("  %s · %s", is.ID, is.AssignedTo), width)
		style := cardStyle
		if idx == a.col && r == a.row[idx] {
			style = selectedStyle
		}
		lines = append(lines, style.Width(width).Render(text), mutedStyle.Render(sub))
	}
	box := columnStyle
	if idx == a.col {
		box = activeColumnStyle
	}
	return box.Width(width).Render(strings.Join(lines, "\n"))
}

func (a *App) renderPrompt() string {
	switch a.mode {
	case modeCreate:
		lines := []string{"New issue"}
		for _, f := range a.fields {
			lines = append(lines, f.View())
		}
		lines = append(lines, mutedStyle.Render("tab next field · enter create · esc cancel"))
		return promptStyle.Render(strings.Join(lines, "\n"))
	case modeConfirmDuplicate:
		lines := []string{fmt.Sprintf("Similar active issues exist for %q:", a.pending.Title)}
		for _, is := range a.similar {
			lines = append(lines, fmt.Sprintf("  • %s (%s)", is.Title, is.Status))
		}
		lines = append(lines, mutedStyle.Render("y create anyway · n cancel"))
		return promptStyle.Render(strings.Join(lines, "\n"))
	case modeConfirmDelete:
		return promptStyle.Render(fmt.Sprintf("Delete %s? y/N", a.deleteID))
	}
	return ""
}

func (a *App) help() string {
	return "←/→ column · ↑/↓ select · [ ] move · 1/2/3 set status · n new · d delete · q quit"
}

func truncate(s string, width int) string {
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	if width <= 1 {
		return string(r[:width])
	}
	return string(r[:width-1]) + "…"
}
