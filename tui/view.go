package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/hochfrequenz/qualscan/internal/domain"
)

var (
	headerStyle = lipgloss.NewStyle().
		Background(lipgloss.Color("236")).
		Foreground(lipgloss.Color("255")).
		Padding(0, 1)

	sectionStyle = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	runningStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("214"))

	queuedStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("244"))

	completedStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("42"))

	failedStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("196"))

	statusBarStyle = lipgloss.NewStyle().
		Background(lipgloss.Color("236")).
		Foreground(lipgloss.Color("255"))
)

// View renders the TUI
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	var b strings.Builder

	header := fmt.Sprintf(" qualscan │ %s │ Active: %d/%d │ Queued: %d │ Done: %d/%d ",
		m.title, m.active, m.workers, m.queued, m.completed, len(m.batches))
	b.WriteString(headerStyle.Width(m.width).Render(header))
	b.WriteString("\n")

	b.WriteString(sectionStyle.Width(m.width - 2).Render(m.renderBatches()))
	b.WriteString("\n")

	b.WriteString(statusBarStyle.Width(m.width).Render(m.statusLine()))
	return b.String()
}

func (m Model) visibleRows() int {
	// header, borders and status bar
	rows := m.height - 5
	if rows < 3 {
		rows = 3
	}
	return rows
}

func (m Model) renderBatches() string {
	if len(m.batches) == 0 {
		return queuedStyle.Render("No batches selected")
	}

	end := m.scroll + m.visibleRows()
	if end > len(m.batches) {
		end = len(m.batches)
	}

	lines := make([]string, 0, end-m.scroll)
	for _, v := range m.batches[m.scroll:end] {
		lines = append(lines, m.renderBatch(v))
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderBatch(v *BatchView) string {
	label := fmt.Sprintf("#%-3d %-28s", v.Number, truncate(v.Name, 28))
	switch v.Status {
	case domain.BatchRunning:
		elapsed := v.Elapsed
		if !v.Started.IsZero() && m.now.Sub(v.Started) > elapsed {
			elapsed = m.now.Sub(v.Started)
		}
		return runningStyle.Render(fmt.Sprintf("▶ %s running %s", label, formatDuration(elapsed)))
	case domain.BatchDone:
		return completedStyle.Render(fmt.Sprintf("✓ %s done    %s", label, formatDuration(v.Elapsed)))
	case domain.BatchFailed:
		return failedStyle.Render(fmt.Sprintf("✗ %s failed  %s (exit %d)", label, formatDuration(v.Elapsed), v.ExitCode))
	default:
		return queuedStyle.Render(fmt.Sprintf("· %s queued", label))
	}
}

func (m Model) statusLine() string {
	elapsed := formatDuration(m.now.Sub(m.started))
	beat := "no heartbeat yet"
	if !m.lastBeat.IsZero() {
		beat = "heartbeat " + humanize.RelTime(m.lastBeat, m.now, "ago", "from now")
	}
	if m.done {
		return fmt.Sprintf(" finished in %s │ failed: %d │ [q]uit ", elapsed, len(m.Failed()))
	}
	return fmt.Sprintf(" elapsed %s │ %s │ [j/k]scroll [q]detach ", elapsed, beat)
}

func formatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	d = d.Round(time.Second)
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	return fmt.Sprintf("%dm%02ds", int(d.Minutes()), int(d.Seconds())%60)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
