package tui

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/hochfrequenz/qualscan/internal/domain"
	"github.com/hochfrequenz/qualscan/internal/scheduler"
)

func testBatches() []domain.Batch {
	return []domain.Batch{
		{Index: 0, Name: "api"},
		{Index: 1, Name: "storage"},
		{Index: 2, Name: "cli"},
	}
}

func send(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	next, _ := m.Update(msg)
	return next.(Model)
}

func TestNewModel(t *testing.T) {
	model := NewModel(ModelConfig{Title: "r1", Workers: 2, Batches: testBatches()})

	if len(model.batches) != 3 {
		t.Fatalf("batches = %d, want 3", len(model.batches))
	}
	if model.queued != 3 {
		t.Errorf("queued = %d, want 3", model.queued)
	}
	for _, v := range model.batches {
		if v.Status != domain.BatchQueued {
			t.Errorf("batch %d status = %s, want queued", v.Number, v.Status)
		}
	}
	if model.batches[2].Number != 3 {
		t.Errorf("third batch number = %d, want 3", model.batches[2].Number)
	}
}

func TestModel_AppliesLifecycleEvents(t *testing.T) {
	model := NewModel(ModelConfig{Workers: 2, Batches: testBatches()})

	model = send(t, model, EventMsg{Kind: scheduler.EventStart, Batch: 0})
	model = send(t, model, EventMsg{Kind: scheduler.EventStart, Batch: 1})
	if model.active != 2 || model.queued != 1 {
		t.Errorf("after starts: active=%d queued=%d, want 2/1", model.active, model.queued)
	}

	model = send(t, model, EventMsg{Kind: scheduler.EventDone, Batch: 0, ExitCode: 0, Elapsed: 3 * time.Second})
	model = send(t, model, EventMsg{Kind: scheduler.EventDone, Batch: 1, ExitCode: 124, Elapsed: 9 * time.Second})

	if model.batches[0].Status != domain.BatchDone {
		t.Errorf("batch 1 status = %s, want done", model.batches[0].Status)
	}
	if model.batches[1].Status != domain.BatchFailed || model.batches[1].ExitCode != 124 {
		t.Errorf("batch 2 = %+v, want failed with 124", model.batches[1])
	}
	if model.active != 0 || model.completed != 2 {
		t.Errorf("active=%d completed=%d, want 0/2", model.active, model.completed)
	}
	if failed := model.Failed(); len(failed) != 1 || failed[0] != 2 {
		t.Errorf("Failed() = %v, want [2]", failed)
	}
}

func TestModel_SkippedBatchLeavesQueue(t *testing.T) {
	model := NewModel(ModelConfig{Workers: 1, Batches: testBatches()})

	// Cancelled before start: done without a start event.
	model = send(t, model, EventMsg{Kind: scheduler.EventDone, Batch: 2, ExitCode: 130})
	if model.queued != 2 || model.active != 0 || model.completed != 1 {
		t.Errorf("queued=%d active=%d completed=%d, want 2/0/1", model.queued, model.active, model.completed)
	}
}

func TestModel_HeartbeatOverridesCounts(t *testing.T) {
	model := NewModel(ModelConfig{Workers: 2, Batches: testBatches()})
	model = send(t, model, EventMsg{Kind: scheduler.EventStart, Batch: 0})

	model = send(t, model, EventMsg{
		Kind:      scheduler.EventHeartbeat,
		Active:    []scheduler.ActiveBatch{{Index: 0, Elapsed: 42 * time.Second}},
		Queued:    []int{1},
		Completed: 1,
		Total:     3,
	})

	if model.active != 1 || model.queued != 1 || model.completed != 1 {
		t.Errorf("active=%d queued=%d completed=%d, want 1/1/1", model.active, model.queued, model.completed)
	}
	if model.batches[0].Elapsed != 42*time.Second {
		t.Errorf("elapsed = %v, want 42s", model.batches[0].Elapsed)
	}
	if model.lastBeat.IsZero() {
		t.Error("lastBeat not recorded")
	}
}

func TestModel_QuitDetachesWhileRunning(t *testing.T) {
	model := NewModel(ModelConfig{Batches: testBatches()})

	next, cmd := model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if !next.(Model).Detached() {
		t.Error("quitting mid-run should detach")
	}
	if cmd == nil {
		t.Error("expected quit command")
	}
}

func TestModel_DoneQuitsWithoutDetaching(t *testing.T) {
	model := NewModel(ModelConfig{Batches: testBatches()})

	next, cmd := model.Update(DoneMsg{})
	m := next.(Model)
	if !m.done || m.Detached() {
		t.Errorf("done=%v detached=%v, want true/false", m.done, m.Detached())
	}
	if cmd == nil {
		t.Error("expected quit command")
	}
}

func TestModel_EventStream(t *testing.T) {
	events := make(chan scheduler.Event, 1)
	model := NewModel(ModelConfig{Batches: testBatches(), Events: events})

	events <- scheduler.Event{Kind: scheduler.EventStart, Batch: 1}
	msg := waitForEvent(events)()
	ev, ok := msg.(EventMsg)
	if !ok || ev.Batch != 1 {
		t.Fatalf("msg = %#v, want EventMsg for batch 1", msg)
	}
	model = send(t, model, msg)
	if model.batches[1].Status != domain.BatchRunning {
		t.Errorf("status = %s, want running", model.batches[1].Status)
	}

	close(events)
	if _, ok := waitForEvent(events)().(DoneMsg); !ok {
		t.Error("closed stream should yield DoneMsg")
	}
}

func TestModel_View(t *testing.T) {
	model := NewModel(ModelConfig{Title: "20261015-120000-abcd1234", Workers: 2, Batches: testBatches()})
	if got := model.View(); got != "Loading..." {
		t.Errorf("View before size = %q", got)
	}

	model = send(t, model, tea.WindowSizeMsg{Width: 100, Height: 30})
	model = send(t, model, EventMsg{Kind: scheduler.EventStart, Batch: 0})
	model = send(t, model, EventMsg{Kind: scheduler.EventDone, Batch: 0, ExitCode: 1})

	view := model.View()
	for _, want := range []string{"20261015-120000-abcd1234", "storage", "failed", "exit 1", "queued", "[q]detach"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	tests := map[time.Duration]string{
		0:                 "0s",
		42 * time.Second:  "42s",
		125 * time.Second: "2m05s",
		-time.Second:      "0s",
	}
	for d, want := range tests {
		if got := formatDuration(d); got != want {
			t.Errorf("formatDuration(%v) = %q, want %q", d, got, want)
		}
	}
}
