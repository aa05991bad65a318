package executor

import (
	"strings"
	"sync"
	"time"
)

// runnerState is the mutable state of one attempt, shared by the stream
// drains, the live log writer and the supervising loop.
type runnerState struct {
	mu           sync.Mutex
	stdout       strings.Builder
	stderr       strings.Builder
	note         string
	lastActivity time.Time
	cancelled    bool
}

func newRunnerState(now time.Time) *runnerState {
	return &runnerState{lastActivity: now}
}

func (s *runnerState) append(stderr bool, p []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if stderr {
		s.stderr.Write(p)
	} else {
		s.stdout.Write(p)
	}
	s.lastActivity = time.Now()
}

func (s *runnerState) setNote(note string) {
	s.mu.Lock()
	s.note = note
	s.mu.Unlock()
}

func (s *runnerState) cancel() {
	s.mu.Lock()
	s.cancelled = true
	s.mu.Unlock()
}

func (s *runnerState) isCancelled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelled
}

func (s *runnerState) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

type stateSnapshot struct {
	stdout string
	stderr string
	note   string
}

func (s *runnerState) snapshot() stateSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return stateSnapshot{stdout: s.stdout.String(), stderr: s.stderr.String(), note: s.note}
}

// streamWriter feeds one child stream into the state
type streamWriter struct {
	state  *runnerState
	stderr bool
}

func (w streamWriter) Write(p []byte) (int, error) {
	w.state.append(w.stderr, p)
	return len(p), nil
}
