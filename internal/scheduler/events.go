package scheduler

import (
	"sort"
	"sync"
	"time"

	"github.com/hochfrequenz/qualscan/internal/domain"
)

// EventKind identifies a progress event
type EventKind string

const (
	EventQueued    EventKind = "queued"
	EventStart     EventKind = "start"
	EventDone      EventKind = "done"
	EventHeartbeat EventKind = "heartbeat"
)

// ActiveBatch is a running batch as seen by a heartbeat
type ActiveBatch struct {
	Index   int
	Elapsed time.Duration
}

// Event reports batch lifecycle changes. Batch is the 0-based index and is
// unset for heartbeats; heartbeats carry the Active, Queued and Completed
// snapshot instead.
type Event struct {
	Kind      EventKind
	Batch     int
	ExitCode  int
	Elapsed   time.Duration
	Err       error
	Active    []ActiveBatch
	Queued    []int
	Completed int
	Total     int
}

// ProgressFunc receives events one at a time
type ProgressFunc func(Event)

type emitter struct {
	mu sync.Mutex
	fn ProgressFunc
}

func (e *emitter) emit(ev Event) {
	if e.fn == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fn(ev)
}

// tracker keeps queued, active and completed batches consistent: every
// transition moves a batch between sets under one lock.
type tracker struct {
	mu        sync.Mutex
	total     int
	queued    map[int]bool
	active    map[int]time.Time
	completed int
}

func newTracker(batches []domain.Batch) *tracker {
	t := &tracker{
		total:  len(batches),
		queued: make(map[int]bool, len(batches)),
		active: make(map[int]time.Time),
	}
	for _, b := range batches {
		t.queued[b.Index] = true
	}
	return t
}

func (t *tracker) start(index int, now time.Time) time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.queued, index)
	t.active[index] = now
	return now
}

func (t *tracker) finish(index int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.active, index)
	t.completed++
}

// skip completes a batch that never started
func (t *tracker) skip(index int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.queued, index)
	t.completed++
}

func (t *tracker) heartbeat(now time.Time) Event {
	t.mu.Lock()
	defer t.mu.Unlock()

	ev := Event{Kind: EventHeartbeat, Batch: -1, Completed: t.completed, Total: t.total}
	for idx, started := range t.active {
		ev.Active = append(ev.Active, ActiveBatch{Index: idx, Elapsed: now.Sub(started)})
	}
	sort.Slice(ev.Active, func(i, j int) bool { return ev.Active[i].Index < ev.Active[j].Index })
	for idx := range t.queued {
		ev.Queued = append(ev.Queued, idx)
	}
	sort.Ints(ev.Queued)
	return ev
}
