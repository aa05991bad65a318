package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/hochfrequenz/qualscan/internal/domain"
	"github.com/hochfrequenz/qualscan/internal/executor"
	"github.com/hochfrequenz/qualscan/internal/scheduler"
)

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			// Leaves the run going; the caller keeps reporting progress.
			if !m.done {
				m.detached = true
			}
			return m, tea.Quit
		case "j", "down":
			if m.scroll < len(m.batches)-1 {
				m.scroll++
			}
		case "k", "up":
			if m.scroll > 0 {
				m.scroll--
			}
		case "g":
			m.scroll = 0
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case TickMsg:
		m.now = time.Time(msg)
		if m.done {
			return m, nil
		}
		return m, tickCmd()

	case EventMsg:
		m.apply(scheduler.Event(msg))
		return m, waitForEvent(m.events)

	case DoneMsg:
		m.done = true
		return m, tea.Quit
	}

	return m, nil
}

func (m *Model) apply(ev scheduler.Event) {
	switch ev.Kind {
	case scheduler.EventQueued:
		if v, ok := m.byIndex[ev.Batch]; ok {
			v.Status = domain.BatchQueued
		}
	case scheduler.EventStart:
		if v, ok := m.byIndex[ev.Batch]; ok {
			v.Status = domain.BatchRunning
			v.Started = m.now
			m.active++
			if m.queued > 0 {
				m.queued--
			}
		}
	case scheduler.EventDone:
		if v, ok := m.byIndex[ev.Batch]; ok {
			wasRunning := v.Status == domain.BatchRunning
			v.ExitCode = ev.ExitCode
			v.Elapsed = ev.Elapsed
			v.Status = domain.BatchDone
			if ev.ExitCode != executor.ExitOK || ev.Err != nil {
				v.Status = domain.BatchFailed
			}
			if wasRunning && m.active > 0 {
				m.active--
			} else if !wasRunning && m.queued > 0 {
				m.queued--
			}
			m.completed++
		}
	case scheduler.EventHeartbeat:
		m.active = len(ev.Active)
		m.queued = len(ev.Queued)
		m.completed = ev.Completed
		m.lastBeat = m.now
		for _, a := range ev.Active {
			if v, ok := m.byIndex[a.Index]; ok {
				v.Elapsed = a.Elapsed
			}
		}
	}
}

// Failed returns the 1-based numbers of failed batches
func (m Model) Failed() []int {
	var failed []int
	for _, v := range m.batches {
		if v.Status == domain.BatchFailed {
			failed = append(failed, v.Number)
		}
	}
	return failed
}
