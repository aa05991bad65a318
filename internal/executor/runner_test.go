package executor

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/hochfrequenz/qualscan/internal/domain"
)

func newJob(t *testing.T, mode string) (BatchJob, paths) {
	t.Helper()
	p := tempPaths(t)
	p.mkdirs(t)
	return BatchJob{
		Batch:      domain.Batch{Index: 0, Name: "core"},
		Argv:       helperArgv(t, mode, p.out),
		OutputPath: p.out,
		LogPath:    p.log,
	}, p
}

func TestBatchRunner_CleanExit(t *testing.T) {
	job, _ := newJob(t, "ok")
	if code := NewBatchRunner(testOptions()).Run(context.Background(), job); code != 0 {
		t.Errorf("code = %d, want 0", code)
	}
}

func TestBatchRunner_TimeoutWithValidArtifactRecovers(t *testing.T) {
	job, p := newJob(t, "write-and-hang")
	opts := testOptions()
	opts.Timeout = 700 * time.Millisecond

	if code := NewBatchRunner(opts).Run(context.Background(), job); code != 0 {
		t.Fatalf("code = %d, want 0", code)
	}
	if !strings.Contains(readLog(t, p.log), "TIMEOUT after") {
		t.Error("log should record the timeout")
	}
}

func TestBatchRunner_TimeoutWithoutArtifact(t *testing.T) {
	job, _ := newJob(t, "hang")
	opts := testOptions()
	opts.Timeout = 300 * time.Millisecond
	opts.MaxRetries = 3

	if code := NewBatchRunner(opts).Run(context.Background(), job); code != ExitTimeout {
		t.Errorf("code = %d, want %d", code, ExitTimeout)
	}
}

func TestBatchRunner_TimeoutWithTruncatedArtifact(t *testing.T) {
	job, _ := newJob(t, "write-truncated-and-hang")
	opts := testOptions()
	opts.Timeout = 500 * time.Millisecond

	if code := NewBatchRunner(opts).Run(context.Background(), job); code != ExitTimeout {
		t.Errorf("code = %d, want %d", code, ExitTimeout)
	}
}

func TestBatchRunner_StallWithTruncatedArtifact(t *testing.T) {
	job, p := newJob(t, "write-truncated-and-hang")
	opts := testOptions()
	opts.StallWindow = 300 * time.Millisecond

	if code := NewBatchRunner(opts).Run(context.Background(), job); code != ExitTimeout {
		t.Fatalf("code = %d, want %d", code, ExitTimeout)
	}
	if logText := readLog(t, p.log); !strings.Contains(logText, "no usable JSON payload") {
		t.Errorf("log should note the unusable artifact:\n%s", logText)
	}
}

func TestBatchRunner_StallRecovery(t *testing.T) {
	job, p := newJob(t, "write-and-hang")
	opts := testOptions()
	opts.StallWindow = 300 * time.Millisecond

	if code := NewBatchRunner(opts).Run(context.Background(), job); code != 0 {
		t.Fatalf("code = %d, want 0", code)
	}
	logText := readLog(t, p.log)
	if !strings.Contains(logText, "STALL RECOVERY after") {
		t.Errorf("log missing stall line:\n%s", logText)
	}
	if !strings.Contains(logText, "RUNNER NOTE: stall recovery triggered") {
		t.Errorf("log missing runner note:\n%s", logText)
	}
}

func TestBatchRunner_StallWithoutArtifact(t *testing.T) {
	job, _ := newJob(t, "hang")
	opts := testOptions()
	opts.StallWindow = 200 * time.Millisecond

	if code := NewBatchRunner(opts).Run(context.Background(), job); code != ExitTimeout {
		t.Errorf("code = %d, want %d", code, ExitTimeout)
	}
}

func TestBatchRunner_TransientRetried(t *testing.T) {
	job, p := newJob(t, "transient-once")
	opts := testOptions()
	opts.MaxRetries = 1

	if code := NewBatchRunner(opts).Run(context.Background(), job); code != 0 {
		t.Fatalf("code = %d, want 0", code)
	}

	logText := readLog(t, p.log)
	for _, want := range []string{
		"=== ATTEMPT 1/2: batch 1 (core) ===",
		"Transient failure detected (stream disconnected before completion); retrying in 0s (attempt 2/2)",
		"=== ATTEMPT 2/2: batch 1 (core) ===",
	} {
		if !strings.Contains(logText, want) {
			t.Errorf("log missing %q:\n%s", want, logText)
		}
	}
	if strings.Index(logText, "ATTEMPT 1/2") > strings.Index(logText, "ATTEMPT 2/2") {
		t.Error("attempt sections must stay in order")
	}
}

func TestBatchRunner_TransientWithoutBudget(t *testing.T) {
	job, p := newJob(t, "transient")
	opts := testOptions()
	opts.MaxRetries = 0

	if code := NewBatchRunner(opts).Run(context.Background(), job); code != 1 {
		t.Fatalf("code = %d, want 1", code)
	}
	logText := readLog(t, p.log)
	if strings.Contains(logText, "Transient failure detected") {
		t.Error("no retry should be announced without budget")
	}
	if strings.Count(logText, "=== ATTEMPT") != 1 {
		t.Errorf("expected a single attempt:\n%s", logText)
	}
}

func TestBatchRunner_PermanentFailureNotRetried(t *testing.T) {
	job, p := newJob(t, "fail")
	opts := testOptions()
	opts.MaxRetries = 3

	if code := NewBatchRunner(opts).Run(context.Background(), job); code != 3 {
		t.Fatalf("code = %d, want 3", code)
	}
	if n := strings.Count(readLog(t, p.log), "=== ATTEMPT"); n != 1 {
		t.Errorf("attempts = %d, want 1", n)
	}
}

func TestBatchRunner_SpawnFailureNotRetried(t *testing.T) {
	p := tempPaths(t)
	job := BatchJob{
		Batch:      domain.Batch{Index: 4, Name: "x"},
		Argv:       BuildReviewerCommand("qualscan-no-such-reviewer", "/repo", "low", p.out, "prompt"),
		OutputPath: p.out,
		LogPath:    p.log,
	}
	opts := testOptions()
	opts.MaxRetries = 2

	if code := NewBatchRunner(opts).Run(context.Background(), job); code != ExitNotFound {
		t.Errorf("code = %d, want %d", code, ExitNotFound)
	}
	if n := strings.Count(readLog(t, p.log), "=== ATTEMPT"); n != 1 {
		t.Errorf("attempts = %d, want 1", n)
	}
}

func TestBatchRunner_ExponentialBackoff(t *testing.T) {
	job, _ := newJob(t, "transient")
	opts := testOptions()
	opts.MaxRetries = 3
	opts.RetryBackoff = time.Second

	r := NewBatchRunner(opts)
	var slept []time.Duration
	r.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	if code := r.Run(context.Background(), job); code != 1 {
		t.Fatalf("code = %d, want 1", code)
	}
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}
	if len(slept) != len(want) {
		t.Fatalf("slept %v, want %v", slept, want)
	}
	for i := range want {
		if slept[i] != want[i] {
			t.Errorf("backoff[%d] = %v, want %v", i, slept[i], want[i])
		}
	}
}

func TestBatchRunner_CancelledDuringBackoff(t *testing.T) {
	job, _ := newJob(t, "transient")
	opts := testOptions()
	opts.RetryBackoff = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(300*time.Millisecond, cancel)

	if code := NewBatchRunner(opts).Run(ctx, job); code != ExitCancelled {
		t.Errorf("code = %d, want %d", code, ExitCancelled)
	}
}
