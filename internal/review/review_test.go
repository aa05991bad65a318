package review

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"

	"github.com/hochfrequenz/qualscan/internal/config"
	"github.com/hochfrequenz/qualscan/internal/domain"
	"github.com/hochfrequenz/qualscan/internal/packet"
	"github.com/hochfrequenz/qualscan/internal/report"
	"github.com/hochfrequenz/qualscan/internal/runstore"
	"github.com/hochfrequenz/qualscan/internal/scheduler"
)

// fakeReviewer answers like the real CLI: it writes JSON to the -o file.
// Batch 2 fails as unauthenticated; batch 3 exits cleanly with prose only.
const fakeReviewer = `#!/bin/sh
out=""
while [ $# -gt 1 ]; do
  if [ "$1" = "-o" ]; then out="$2"; fi
  shift
done
case "$1" in
  *"batch 2 of"*) echo "Error: not logged in" >&2; exit 1 ;;
  *"batch 3 of"*) echo "I could not review these files."; exit 0 ;;
esac
cat > "$out" <<'JSON'
Here is my review:
{"assessments": {"naming": 80, "errors": 60},
 "findings": [{"dimension": "errors", "summary": "swallowed error", "confidence": "high"}]}
JSON
`

func setup(t *testing.T) (*config.Config, *packet.Packet) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake reviewer is a shell script")
	}
	dir := t.TempDir()

	script := filepath.Join(dir, "fake-codex")
	if err := os.WriteFile(script, []byte(fakeReviewer), 0755); err != nil {
		t.Fatal(err)
	}

	packetPath := filepath.Join(dir, "packet.yaml")
	packetYAML := `
repo_root: ` + dir + `
dimensions: [naming, errors]
investigation_batches:
  - name: core
    files_to_read: [a.go]
  - name: auth
    files_to_read: [b.go]
  - name: cli
    files_to_read: [c.go]
  - name: store
    files_to_read: [d.go]
`
	if err := os.WriteFile(packetPath, []byte(packetYAML), 0644); err != nil {
		t.Fatal(err)
	}
	p, err := packet.Load(packetPath)
	if err != nil {
		t.Fatal(err)
	}

	cfg := config.Default()
	cfg.General.RunsDir = filepath.Join(dir, "runs")
	cfg.Review.Runner = script
	cfg.Review.MaxRetries = 0
	cfg.Review.BatchTimeoutSeconds = 30
	cfg.Review.StallSeconds = 0
	cfg.Review.LiveLogIntervalSeconds = 0
	cfg.Review.KillGraceSeconds = 1
	return cfg, p
}

type memLedger struct {
	mu   sync.Mutex
	runs []*runstore.RunRecord
}

func (m *memLedger) RecordRun(run *runstore.RunRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, run)
	return nil
}

func TestRunner_Run(t *testing.T) {
	cfg, p := setup(t)
	ledger := &memLedger{}
	runner := NewRunner(cfg, nil)
	runner.SetLedger(ledger)

	var mu sync.Mutex
	kinds := map[scheduler.EventKind]int{}
	out, err := runner.Run(context.Background(), Request{
		Packet:  p,
		Workers: 2,
		Progress: func(ev scheduler.Event) {
			mu.Lock()
			kinds[ev.Kind]++
			mu.Unlock()
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	// batch 2 exits 1, batch 3 exits 0 without JSON
	if len(out.Failed) != 2 || out.Failed[0] != 1 || out.Failed[1] != 2 {
		t.Fatalf("Failed = %v, want [1 2]", out.Failed)
	}
	if len(out.Results) != 2 {
		t.Fatalf("Results = %d, want 2", len(out.Results))
	}
	if len(out.ParseFailures) != 1 || out.ParseFailures[0].Index != 3 {
		t.Errorf("ParseFailures = %+v", out.ParseFailures)
	}
	if out.Status != domain.RunPartial {
		t.Errorf("Status = %s, want partial", out.Status)
	}
	if out.ExitCodes[1] != 1 || out.ExitCodes[0] != 0 {
		t.Errorf("ExitCodes = %v", out.ExitCodes)
	}
	if kinds[scheduler.EventDone] != 4 || kinds[scheduler.EventQueued] != 4 {
		t.Errorf("events = %v", kinds)
	}

	// Merged scores come only from batches 1 and 4
	if got := out.Merged.Assessments["naming"]; got != 80 {
		t.Errorf("naming = %v, want 80", got)
	}
	if len(out.Merged.MissingBatches) != 2 {
		t.Errorf("MissingBatches = %v", out.Merged.MissingBatches)
	}

	for _, n := range []int{1, 2, 3, 4} {
		for _, path := range []string{out.Layout.PromptPath(n), out.Layout.LogPath(n)} {
			if _, err := os.Stat(path); err != nil {
				t.Errorf("missing artifact %s", path)
			}
		}
	}
	prompt, _ := os.ReadFile(out.Layout.PromptPath(2))
	if !strings.Contains(string(prompt), "batch 2 of 4: auth") {
		t.Errorf("prompt 2 = %q", prompt)
	}

	data, err := os.ReadFile(out.Layout.MergedPath())
	if err != nil {
		t.Fatal(err)
	}
	var merged map[string]any
	if err := json.Unmarshal(data, &merged); err != nil {
		t.Fatal(err)
	}
	if merged["run_id"] != out.RunID {
		t.Errorf("merged.json run_id = %v", merged["run_id"])
	}

	if out.Report == nil {
		t.Fatal("expected a failure report")
	}
	if !strings.HasSuffix(out.Report.RetryCommand, "--only-batches 2,3") {
		t.Errorf("RetryCommand = %q", out.Report.RetryCommand)
	}
	if out.Report.Failures[0].Category != report.CategoryAuth {
		t.Errorf("batch 2 category = %s", out.Report.Failures[0].Category)
	}

	if len(ledger.runs) != 1 {
		t.Fatalf("ledger runs = %d", len(ledger.runs))
	}
	rec := ledger.runs[0]
	if rec.BatchesFailed != 2 || len(rec.Batches) != 4 || rec.Batches[1].Category != "auth" {
		t.Errorf("ledger record = %+v", rec)
	}
}

func TestRunner_RunSelection(t *testing.T) {
	cfg, p := setup(t)
	out, err := NewRunner(cfg, nil).Run(context.Background(), Request{Packet: p, Selection: "1,4"})
	if err != nil {
		t.Fatal(err)
	}
	if len(out.Selected) != 2 || len(out.Failed) != 0 {
		t.Errorf("selected %d, failed %v", len(out.Selected), out.Failed)
	}
	if out.Status != domain.RunCompleted || out.Report != nil {
		t.Errorf("status = %s, report = %v", out.Status, out.Report)
	}
}

func TestRunner_InvalidSelection(t *testing.T) {
	cfg, p := setup(t)
	_, err := NewRunner(cfg, nil).Run(context.Background(), Request{Packet: p, Selection: "9"})
	if !errors.Is(err, packet.ErrInvalidSelection) {
		t.Errorf("err = %v, want ErrInvalidSelection", err)
	}
}

func TestRunner_Merge(t *testing.T) {
	cfg, p := setup(t)
	runner := NewRunner(cfg, nil)
	first, err := runner.Run(context.Background(), Request{Packet: p, Selection: "1-3"})
	if err != nil {
		t.Fatal(err)
	}

	// A later manual fix to batch 3's raw output is picked up by a re-merge.
	fixed := `{"assessments": {"naming": 50}}`
	if err := os.WriteFile(first.Layout.ResultPath(3), []byte(fixed), 0644); err != nil {
		t.Fatal(err)
	}

	again, err := runner.Merge(first.Layout.Dir)
	if err != nil {
		t.Fatal(err)
	}
	if again.RunID != first.RunID {
		t.Errorf("RunID = %s, want %s", again.RunID, first.RunID)
	}
	if len(again.Results) != 2 {
		t.Errorf("Results = %d, want 2 after fix", len(again.Results))
	}
	if len(again.Failed) != 1 || again.Failed[0] != 1 {
		t.Errorf("Failed = %v, want [1]", again.Failed)
	}
}
