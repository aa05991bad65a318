package executor

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/hochfrequenz/qualscan/internal/domain"
	"github.com/hochfrequenz/qualscan/internal/extract"
)

// BatchJob is everything needed to execute one batch
type BatchJob struct {
	Batch      domain.Batch
	Argv       []string
	Dir        string
	OutputPath string
	LogPath    string
}

// BatchRunner retries transient failures and recovers usable artifacts
// from attempts that timed out or stalled.
type BatchRunner struct {
	opts       Options
	supervisor *Supervisor
	writeLog   LogWriter
	sleep      func(ctx context.Context, d time.Duration) error
	verbose    bool
}

// NewBatchRunner creates a runner with the given options
func NewBatchRunner(opts Options) *BatchRunner {
	return &BatchRunner{
		opts:       opts,
		supervisor: NewSupervisor(opts),
		writeLog:   WriteLogFile,
		sleep:      sleepContext,
	}
}

// SetVerbose enables debug logging
func (r *BatchRunner) SetVerbose(v bool) {
	r.verbose = v
}

// Attempts returns the maximum number of attempts per batch
func (r *BatchRunner) Attempts() int {
	if r.opts.MaxRetries < 0 {
		return 1
	}
	return r.opts.MaxRetries + 1
}

// Run executes the batch and returns its status code: 0 on success or
// recovery, 124 for an unrecoverable timeout or stall, 126/127 when the
// reviewer could not be started, 130 when cancelled, otherwise the
// reviewer's own exit code.
func (r *BatchRunner) Run(ctx context.Context, job BatchJob) int {
	total := r.Attempts()
	var sections []string

	for attempt := 1; attempt <= total; attempt++ {
		header := AttemptHeader(attempt, total, job.Batch.Number(), job.Batch.Name)
		att := NewAttemptContext(header, job.OutputPath, job.LogPath, sections, r.writeLog)

		if r.verbose {
			log.Printf("[executor] batch %d attempt %d/%d starting", job.Batch.Number(), attempt, total)
		}
		res := r.supervisor.Run(ctx, job.Argv, job.Dir, att)
		sections = append(sections, res.LogSection)

		if res.EarlyReturn != nil {
			return *res.EarlyReturn
		}
		if res.Cancelled {
			return ExitCancelled
		}

		if res.TimedOut || res.Stalled {
			if res.RecoveredFromStall || extract.HasPayload(job.OutputPath) {
				if r.verbose {
					log.Printf("[executor] batch %d recovered usable output after termination", job.Batch.Number())
				}
				return ExitOK
			}
			return ExitTimeout
		}

		if res.ExitCode == 0 {
			return ExitOK
		}

		phrase := TransientPhrase(res.Stdout, res.Stderr)
		if phrase == "" || attempt == total {
			return res.ExitCode
		}

		delay := r.backoff(attempt)
		notice := fmt.Sprintf("Transient failure detected (%s); retrying in %ds (attempt %d/%d)",
			phrase, secs(delay), attempt+1, total)
		sections[len(sections)-1] += notice + "\n"
		if job.LogPath != "" {
			if err := r.writeLog(job.LogPath, JoinSections(sections)); err != nil {
				log.Printf("[executor] Warning: %s: %v", job.LogPath, err)
			}
		}
		log.Printf("[executor] batch %d: %s", job.Batch.Number(), notice)

		if err := r.sleep(ctx, delay); err != nil {
			return ExitCancelled
		}
	}
	// unreachable: the last attempt always returns
	return ExitTimeout
}

// backoff returns base * 2^(attempt-1)
func (r *BatchRunner) backoff(attempt int) time.Duration {
	return r.opts.RetryBackoff * time.Duration(1<<(attempt-1))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
