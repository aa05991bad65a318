// Package scheduler runs review batches sequentially or on a bounded worker
// pool and reports their lifecycle as progress events.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hochfrequenz/qualscan/internal/domain"
)

const (
	// DefaultWorkers is the worker ceiling when none is configured
	DefaultWorkers = 8
	// DefaultHeartbeat is the interval between heartbeat events
	DefaultHeartbeat = 15 * time.Second

	exitCancelled = 130
	exitCrashed   = 1
)

// JobFunc executes one batch and returns its status code. A returned error
// or a panic marks the batch failed regardless of the code.
type JobFunc func(ctx context.Context, b domain.Batch) (int, error)

// Options configures a scheduler run
type Options struct {
	Workers    int           // ceiling, clamped to [1, len(batches)]
	Sequential bool          // run one batch at a time without the pool
	Heartbeat  time.Duration // zero uses DefaultHeartbeat
	Progress   ProgressFunc  // optional; calls are never concurrent
	Verbose    bool
}

// Run executes every batch and returns the sorted 0-based indices of the
// batches that failed. One batch failing never stops the others. When ctx
// is cancelled, batches that have not started fail with code 130.
func Run(ctx context.Context, batches []domain.Batch, job JobFunc, opts Options) []int {
	if len(batches) == 0 {
		return nil
	}

	workers := clampWorkers(opts.Workers, len(batches))
	heartbeat := opts.Heartbeat
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeat
	}

	s := &run{
		job:     job,
		emitter: emitter{fn: opts.Progress},
		tracker: newTracker(batches),
		verbose: opts.Verbose,
	}

	for _, b := range batches {
		s.emit(Event{Kind: EventQueued, Batch: b.Index, Total: len(batches)})
	}

	done := make(chan struct{})
	if opts.Sequential || workers == 1 {
		go func() {
			defer close(done)
			for _, b := range batches {
				s.runOne(ctx, b)
			}
		}()
	} else {
		jobs := make(chan domain.Batch, len(batches))
		for _, b := range batches {
			jobs <- b
		}
		close(jobs)

		var g errgroup.Group
		for w := 0; w < workers; w++ {
			g.Go(func() error {
				for b := range jobs {
					s.runOne(ctx, b)
				}
				return nil
			})
		}
		go func() {
			g.Wait()
			close(done)
		}()
	}

	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return s.failedIndices()
		case <-ticker.C:
			s.emit(s.tracker.heartbeat(time.Now()))
		}
	}
}

func clampWorkers(n, batches int) int {
	if n <= 0 {
		n = DefaultWorkers
	}
	if n > batches {
		n = batches
	}
	return n
}

type run struct {
	job     JobFunc
	tracker *tracker
	verbose bool
	emitter

	failMu sync.Mutex
	failed []int
}

func (s *run) runOne(ctx context.Context, b domain.Batch) {
	if ctx.Err() != nil {
		s.tracker.skip(b.Index)
		s.fail(b.Index)
		s.emit(Event{Kind: EventDone, Batch: b.Index, ExitCode: exitCancelled, Err: ctx.Err(), Total: s.tracker.total})
		return
	}

	started := s.tracker.start(b.Index, time.Now())
	s.emit(Event{Kind: EventStart, Batch: b.Index, Total: s.tracker.total})

	code, err := s.call(ctx, b)
	elapsed := time.Since(started)
	s.tracker.finish(b.Index)

	if code != 0 || err != nil {
		s.fail(b.Index)
		if err != nil {
			log.Printf("[scheduler] batch %s failed: %v", b, err)
		}
	}
	if s.verbose {
		log.Printf("[scheduler] batch %s finished with code %d in %s", b, code, elapsed.Round(time.Second))
	}
	s.emit(Event{Kind: EventDone, Batch: b.Index, ExitCode: code, Elapsed: elapsed, Err: err, Total: s.tracker.total})
}

// call runs the job, turning a panic into an error
func (s *run) call(ctx context.Context, b domain.Batch) (code int, err error) {
	defer func() {
		if r := recover(); r != nil {
			code = exitCrashed
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	code, err = s.job(ctx, b)
	if err != nil && code == 0 {
		code = exitCrashed
	}
	return code, err
}

func (s *run) fail(index int) {
	s.failMu.Lock()
	s.failed = append(s.failed, index)
	s.failMu.Unlock()
}

func (s *run) failedIndices() []int {
	s.failMu.Lock()
	defer s.failMu.Unlock()
	out := append([]int(nil), s.failed...)
	sort.Ints(out)
	return out
}
