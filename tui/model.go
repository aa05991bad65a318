// Package tui renders a live dashboard for a review run.
package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/hochfrequenz/qualscan/internal/domain"
	"github.com/hochfrequenz/qualscan/internal/scheduler"
)

// BatchView is one batch row in the dashboard
type BatchView struct {
	Number   int // 1-based
	Name     string
	Status   domain.BatchStatus
	Started  time.Time
	Elapsed  time.Duration
	ExitCode int
}

// Model is the TUI application model
type Model struct {
	title   string
	workers int
	batches []*BatchView
	byIndex map[int]*BatchView

	// Latest heartbeat
	active    int
	queued    int
	completed int
	lastBeat  time.Time

	started time.Time
	now     time.Time

	// UI state
	width    int
	height   int
	scroll   int
	done     bool
	detached bool

	events <-chan scheduler.Event
}

// ModelConfig holds initial data for the TUI model
type ModelConfig struct {
	Title   string
	Workers int
	Batches []domain.Batch
	// Events delivers scheduler events; it is closed when the run finishes.
	Events <-chan scheduler.Event
}

// NewModel creates a new TUI model with every batch queued
func NewModel(cfg ModelConfig) Model {
	m := Model{
		title:   cfg.Title,
		workers: cfg.Workers,
		byIndex: make(map[int]*BatchView, len(cfg.Batches)),
		queued:  len(cfg.Batches),
		started: time.Now(),
		now:     time.Now(),
		events:  cfg.Events,
	}
	for _, b := range cfg.Batches {
		v := &BatchView{Number: b.Number(), Name: b.Name, Status: domain.BatchQueued}
		m.batches = append(m.batches, v)
		m.byIndex[b.Index] = v
	}
	return m
}

// Detached reports whether the user left the dashboard before the run ended
func (m Model) Detached() bool {
	return m.detached
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(),
		waitForEvent(m.events),
	)
}

// TickMsg triggers a refresh of elapsed times
type TickMsg time.Time

// EventMsg carries one scheduler event
type EventMsg scheduler.Event

// DoneMsg is sent when the event stream closes
type DoneMsg struct{}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

func waitForEvent(events <-chan scheduler.Event) tea.Cmd {
	if events == nil {
		return nil
	}
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return DoneMsg{}
		}
		return EventMsg(ev)
	}
}
