// Package review runs a packet's batches end to end: prompts, supervised
// reviewer processes, extraction, merge, failure report and bookkeeping.
package review

import (
	"context"
	"fmt"
	"log"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/hochfrequenz/qualscan/internal/aggregate"
	"github.com/hochfrequenz/qualscan/internal/config"
	"github.com/hochfrequenz/qualscan/internal/domain"
	"github.com/hochfrequenz/qualscan/internal/executor"
	"github.com/hochfrequenz/qualscan/internal/extract"
	"github.com/hochfrequenz/qualscan/internal/notify"
	"github.com/hochfrequenz/qualscan/internal/packet"
	"github.com/hochfrequenz/qualscan/internal/prompts"
	"github.com/hochfrequenz/qualscan/internal/report"
	"github.com/hochfrequenz/qualscan/internal/runstore"
	"github.com/hochfrequenz/qualscan/internal/scheduler"
)

// Ledger records finished runs
type Ledger interface {
	RecordRun(run *runstore.RunRecord) error
}

// Runner executes review runs
type Runner struct {
	cfg      *config.Config
	loader   *prompts.Loader
	ledger   Ledger
	notifier notify.Notifier
}

// NewRunner creates a runner. loader may be nil to use the default prompt
// override directories of the packet's repository.
func NewRunner(cfg *config.Config, loader *prompts.Loader) *Runner {
	return &Runner{cfg: cfg, loader: loader, notifier: notify.NoopNotifier{}}
}

// SetLedger sets where finished runs are recorded
func (r *Runner) SetLedger(l Ledger) {
	r.ledger = l
}

// SetNotifier sets the notifier used when a run finishes
func (r *Runner) SetNotifier(n notify.Notifier) {
	if n == nil {
		n = notify.NoopNotifier{}
	}
	r.notifier = n
}

// Request describes one review run
type Request struct {
	Packet     *packet.Packet
	Selection  string // 1-based, e.g. "1,3,5-7"; empty selects all
	Workers    int    // overrides the configured ceiling when > 0
	Sequential bool
	Progress   scheduler.ProgressFunc
}

// Outcome is the result of a run or a re-merge
type Outcome struct {
	RunID         string
	Layout        Layout
	PacketPath    string
	Selected      []domain.Batch
	Failed        []int // 0-based, sorted
	Results       []domain.BatchResult
	ParseFailures []domain.ParseFailure
	Merged        aggregate.Result
	Report        *report.Report // nil when nothing failed
	ExitCodes     map[int]int    // 0-based index -> status code
	Elapsed       map[int]time.Duration
	Status        domain.RunStatus
	StartedAt     time.Time
	FinishedAt    time.Time
}

// mergedFile is the on-disk shape of merged.json
type mergedFile struct {
	RunID  string `json:"run_id"`
	Packet string `json:"packet"`
	aggregate.Result
}

// Run executes the selected batches of the packet. It returns an error only
// for problems that prevent the run itself; batch failures are reported in
// the outcome.
func (r *Runner) Run(ctx context.Context, req Request) (*Outcome, error) {
	p := req.Packet
	selected, err := p.Select(req.Selection)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	runID := NewRunID(started)
	layout, err := CreateLayout(config.ExpandPath(r.cfg.General.RunsDir), runID)
	if err != nil {
		return nil, err
	}

	manifest := Manifest{
		ID:         runID,
		PacketPath: p.Path,
		RepoRoot:   p.RepoRoot,
		Selection:  req.Selection,
		StartedAt:  started,
	}
	for _, b := range selected {
		manifest.Batches = append(manifest.Batches, b.Number())
		manifest.Names = append(manifest.Names, b.Name)
	}
	if err := writeJSON(layout.ManifestPath(), manifest); err != nil {
		return nil, fmt.Errorf("writing run manifest: %w", err)
	}

	promptText, err := r.renderPrompts(p, selected, layout)
	if err != nil {
		return nil, err
	}

	opts := r.cfg.Review.Options()
	batchRunner := executor.NewBatchRunner(opts)
	batchRunner.SetVerbose(r.cfg.General.Verbose)

	job := func(ctx context.Context, b domain.Batch) (int, error) {
		n := b.Number()
		argv := executor.BuildReviewerCommand(opts.Runner, p.RepoRoot, opts.ReasoningEffort, layout.ResultPath(n), promptText[b.Index])
		return batchRunner.Run(ctx, executor.BatchJob{
			Batch:      b,
			Argv:       argv,
			Dir:        p.RepoRoot,
			OutputPath: layout.ResultPath(n),
			LogPath:    layout.LogPath(n),
		}), nil
	}

	codes := &codeRecorder{codes: map[int]int{}, elapsed: map[int]time.Duration{}, next: req.Progress}
	workers := r.cfg.Review.MaxParallelBatches
	if req.Workers > 0 {
		workers = req.Workers
	}

	log.Printf("[review] run %s: %d batch(es), up to %d in parallel, logs in %s", runID, len(selected), workers, layout.Dir)
	failed := scheduler.Run(ctx, selected, job, scheduler.Options{
		Workers:    workers,
		Sequential: req.Sequential,
		Heartbeat:  r.cfg.Review.HeartbeatInterval(),
		Progress:   codes.progress,
		Verbose:    r.cfg.General.Verbose,
	})

	out := r.collect(runID, layout, p.Path, selected, failed)
	out.ExitCodes, out.Elapsed = codes.codes, codes.elapsed
	out.StartedAt = started
	out.FinishedAt = time.Now()

	r.record(out, req.Selection)
	r.notify(out)
	return out, nil
}

func (r *Runner) renderPrompts(p *packet.Packet, selected []domain.Batch, layout Layout) (map[int]string, error) {
	loader := r.loader
	if loader == nil {
		loader = prompts.DefaultLoader(p.RepoRoot)
	}
	if r.cfg.General.Verbose {
		if src, err := loader.Source(prompts.BatchReviewTemplate); err == nil {
			log.Printf("[review] batch prompt template: %s", src)
		}
	}
	text := make(map[int]string, len(selected))
	for _, b := range selected {
		prompt, err := loader.BuildBatchPrompt(prompts.NewBatchData(b, len(p.Batches), p.RepoRoot, p.Context))
		if err != nil {
			return nil, fmt.Errorf("rendering prompt for batch %s: %w", b, err)
		}
		if err := os.WriteFile(layout.PromptPath(b.Number()), []byte(prompt), 0644); err != nil {
			return nil, fmt.Errorf("writing prompt for batch %s: %w", b, err)
		}
		text[b.Index] = prompt
	}
	return text, nil
}

// Merge re-extracts and re-merges an existing run directory without
// running any reviewer.
func (r *Runner) Merge(runDir string) (*Outcome, error) {
	m, err := ReadManifest(runDir)
	if err != nil {
		return nil, err
	}
	var selected []domain.Batch
	for i, n := range m.Batches {
		b := domain.Batch{Index: n - 1}
		if i < len(m.Names) {
			b.Name = m.Names[i]
		}
		selected = append(selected, b)
	}
	out := r.collect(m.ID, Layout{Dir: runDir}, m.PacketPath, selected, nil)
	out.StartedAt = m.StartedAt
	out.FinishedAt = time.Now()
	return out, nil
}

// collect extracts every batch that did not fail, merges the parsed ones,
// writes merged.json and diagnoses the failures.
func (r *Runner) collect(runID string, layout Layout, packetPath string, selected []domain.Batch, failed []int) *Outcome {
	out := &Outcome{
		RunID:      runID,
		Layout:     layout,
		PacketPath: packetPath,
		Selected:   selected,
	}

	failedSet := make(map[int]bool, len(failed))
	for _, idx := range failed {
		failedSet[idx] = true
	}

	numbers := make([]int, 0, len(selected))
	for _, b := range selected {
		n := b.Number()
		numbers = append(numbers, n)
		if failedSet[b.Index] {
			continue
		}
		switch res := extract.Batch(n, layout.ResultPath(n), layout.LogPath(n)).(type) {
		case domain.BatchResult:
			out.Results = append(out.Results, res)
		case domain.ParseFailure:
			out.ParseFailures = append(out.ParseFailures, res)
			failedSet[b.Index] = true
			log.Printf("[review] batch %s produced no usable payload: %s", b, res.Reason)
		}
	}
	for idx := range failedSet {
		out.Failed = append(out.Failed, idx)
	}
	sort.Ints(out.Failed)

	out.Merged = aggregate.Merge(out.Results, numbers)
	if err := writeJSON(layout.MergedPath(), mergedFile{RunID: runID, Packet: packetPath, Result: out.Merged}); err != nil {
		log.Printf("[review] Warning: writing %s: %v", layout.MergedPath(), err)
	}

	if len(out.Failed) > 0 {
		out.Report = report.Diagnose(packetPath, out.Failed, layout.LogPath)
	}

	switch {
	case len(out.Failed) == 0:
		out.Status = domain.RunCompleted
	case len(out.Results) == 0:
		out.Status = domain.RunFailed
	default:
		out.Status = domain.RunPartial
	}
	return out
}

func (r *Runner) record(out *Outcome, selection string) {
	if r.ledger == nil {
		return
	}
	finished := out.FinishedAt
	rec := &runstore.RunRecord{
		ID:              out.RunID,
		PacketPath:      out.PacketPath,
		RunDir:          out.Layout.Dir,
		Selection:       selection,
		Status:          out.Status,
		BatchesSelected: len(out.Selected),
		BatchesFailed:   len(out.Failed),
		Findings:        len(out.Merged.Findings),
		StartedAt:       out.StartedAt,
		FinishedAt:      &finished,
	}

	categories := map[int]string{}
	if out.Report != nil {
		for _, f := range out.Report.Failures {
			categories[f.Number] = string(f.Category)
		}
	}
	failed := map[int]bool{}
	for _, idx := range out.Failed {
		failed[idx] = true
	}
	for _, b := range out.Selected {
		br := runstore.BatchRecord{
			Number:   b.Number(),
			Name:     b.Name,
			Status:   domain.BatchDone,
			ExitCode: out.ExitCodes[b.Index],
			Elapsed:  out.Elapsed[b.Index],
		}
		if failed[b.Index] {
			br.Status = domain.BatchFailed
			br.Category = categories[b.Number()]
		}
		rec.Batches = append(rec.Batches, br)
	}
	for dim, sb := range out.Merged.Breakdown {
		rec.Scores = append(rec.Scores, runstore.ScoreRecord{
			Dimension:    dim,
			Score:        sb.Final,
			WeightedMean: sb.WeightedMean,
			Floor:        sb.Floor,
			Pressure:     sb.Pressure,
			FindingCount: sb.FindingCount,
		})
	}

	if err := r.ledger.RecordRun(rec); err != nil {
		log.Printf("[review] Warning: recording run %s: %v", out.RunID, err)
	}
}

func (r *Runner) notify(out *Outcome) {
	failed := make([]int, len(out.Failed))
	for i, idx := range out.Failed {
		failed[i] = idx + 1
	}
	n := notify.ForRun(notify.RunSummary{
		RunID:      out.RunID,
		RunDir:     out.Layout.Dir,
		Selected:   len(out.Selected),
		Failed:     failed,
		Dimensions: len(out.Merged.Assessments),
	})
	if err := r.notifier.Send(n); err != nil {
		log.Printf("[review] Warning: notification failed: %v", err)
	}
}

// codeRecorder captures exit codes from done events before forwarding them
type codeRecorder struct {
	mu      sync.Mutex
	codes   map[int]int
	elapsed map[int]time.Duration
	next    scheduler.ProgressFunc
}

func (c *codeRecorder) progress(ev scheduler.Event) {
	if ev.Kind == scheduler.EventDone {
		c.mu.Lock()
		c.codes[ev.Batch] = ev.ExitCode
		c.elapsed[ev.Batch] = ev.Elapsed
		c.mu.Unlock()
	}
	if c.next != nil {
		c.next(ev)
	}
}
