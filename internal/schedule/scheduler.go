// Package schedule triggers recurring review runs from cron expressions.
package schedule

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/hochfrequenz/qualscan/internal/config"
	"github.com/hochfrequenz/qualscan/internal/packet"
)

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ParseCron parses a five-field cron expression
func ParseCron(expr string) (cron.Schedule, error) {
	return parser.Parse(expr)
}

// Validate checks a schedule entry
func Validate(e config.ScheduleConfig) error {
	if e.Name == "" {
		return fmt.Errorf("schedule name is required")
	}
	if e.Cron == "" {
		return fmt.Errorf("schedule %s: cron expression is required", e.Name)
	}
	if _, err := ParseCron(e.Cron); err != nil {
		return fmt.Errorf("schedule %s: invalid cron expression: %w", e.Name, err)
	}
	if e.Packet == "" {
		return fmt.Errorf("schedule %s: packet is required", e.Name)
	}
	if e.OnlyBatches != "" {
		if _, err := packet.ParseSelection(e.OnlyBatches); err != nil {
			return fmt.Errorf("schedule %s: %w", e.Name, err)
		}
	}
	return nil
}

// RunFunc performs one scheduled review
type RunFunc func(ctx context.Context, e config.ScheduleConfig) error

type entry struct {
	cfg     config.ScheduleConfig
	sched   cron.Schedule
	lastRun time.Time
	running bool
}

// Scheduler manages scheduled review runs
type Scheduler struct {
	entries map[string]*entry
	mu      sync.Mutex
	wg      sync.WaitGroup
}

// NewScheduler creates a scheduler. Entries are first due at their next
// cron time after now; missed runs before startup are not replayed.
func NewScheduler(entries []config.ScheduleConfig, now time.Time) (*Scheduler, error) {
	s := &Scheduler{entries: make(map[string]*entry)}
	for _, e := range entries {
		if err := Validate(e); err != nil {
			return nil, err
		}
		if _, dup := s.entries[e.Name]; dup {
			return nil, fmt.Errorf("duplicate schedule name %q", e.Name)
		}
		sched, _ := ParseCron(e.Cron)
		s.entries[e.Name] = &entry{cfg: e, sched: sched, lastRun: now}
	}
	return s, nil
}

// Names returns the schedule names in sorted order
func (s *Scheduler) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.entries))
	for name := range s.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NextRun returns the next time the named entry is due
func (s *Scheduler) NextRun(name string) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[name]
	if !ok {
		return time.Time{}
	}
	return e.sched.Next(e.lastRun)
}

// tryStart marks the entry running when it is due and not already running
func (s *Scheduler) tryStart(name string, now time.Time) (config.ScheduleConfig, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[name]
	if !ok || e.running {
		return config.ScheduleConfig{}, false
	}
	if now.Before(e.sched.Next(e.lastRun)) {
		return config.ScheduleConfig{}, false
	}
	e.running = true
	e.lastRun = now
	return e.cfg, true
}

func (s *Scheduler) complete(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[name]; ok {
		e.running = false
	}
}

// Tick starts every entry that is due at now and returns their names
func (s *Scheduler) Tick(ctx context.Context, now time.Time, run RunFunc) []string {
	var started []string
	for _, name := range s.Names() {
		cfg, ok := s.tryStart(name, now)
		if !ok {
			continue
		}
		started = append(started, name)
		s.wg.Add(1)
		go func(c config.ScheduleConfig) {
			defer s.wg.Done()
			defer s.complete(c.Name)
			if err := run(ctx, c); err != nil {
				log.Printf("[schedule] %s failed: %v", c.Name, err)
			}
		}(cfg)
	}
	return started
}

// Start checks the schedule every interval until ctx is done, then waits
// for running reviews to return.
func (s *Scheduler) Start(ctx context.Context, interval time.Duration, run RunFunc) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.wg.Wait()
			return
		case now := <-ticker.C:
			s.Tick(ctx, now, run)
		}
	}
}

// Wait blocks until every started review has returned
func (s *Scheduler) Wait() {
	s.wg.Wait()
}
