package executor

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

const helperEnv = "QUALSCAN_HELPER_PROCESS"

const helperPayload = `{"assessments":{"naming":80}}`

// truncatedPayload is a write cut off after one complete finding
const truncatedPayload = `{"assessments":{"naming":80},"findings":[{"dimension":"naming","summary":"short names"},`

// TestHelperProcess is not a real test. It is re-executed by the tests in
// this package as a fake reviewer process.
func TestHelperProcess(t *testing.T) {
	if os.Getenv(helperEnv) != "1" {
		return
	}
	args := os.Args
	for len(args) > 0 && args[0] != "--" {
		args = args[1:]
	}
	if len(args) < 3 {
		fmt.Fprintln(os.Stderr, "helper: missing mode")
		os.Exit(2)
	}
	mode, out := args[1], args[2]

	switch mode {
	case "ok":
		fmt.Println(helperPayload)
	case "write-and-hang":
		os.WriteFile(out, []byte(helperPayload), 0644)
		time.Sleep(time.Minute)
	case "write-truncated-and-hang":
		os.WriteFile(out, []byte(truncatedPayload), 0644)
		time.Sleep(time.Minute)
	case "hang":
		time.Sleep(time.Minute)
	case "chatty":
		for i := 0; i < 1200; i++ {
			fmt.Println("working", i)
			time.Sleep(50 * time.Millisecond)
		}
	case "fail":
		fmt.Fprintln(os.Stderr, "fatal: invalid configuration")
		os.Exit(3)
	case "transient":
		fmt.Fprintln(os.Stderr, "ERROR: stream disconnected before completion")
		os.Exit(1)
	case "transient-once":
		marker := out + ".attempted"
		if _, err := os.Stat(marker); err != nil {
			os.WriteFile(marker, nil, 0644)
			fmt.Fprintln(os.Stderr, "ERROR: stream disconnected before completion")
			os.Exit(1)
		}
		os.WriteFile(out, []byte(helperPayload), 0644)
		fmt.Println(helperPayload)
	default:
		fmt.Fprintln(os.Stderr, "helper: unknown mode", mode)
		os.Exit(2)
	}
	os.Exit(0)
}

// helperArgv returns a command that runs the fake reviewer in mode
func helperArgv(t *testing.T, mode, out string) []string {
	t.Helper()
	t.Setenv(helperEnv, "1")
	return []string{os.Args[0], "-test.run=^TestHelperProcess$", "--", mode, out}
}

func testOptions() Options {
	return Options{
		Runner:       "codex",
		MaxRetries:   1,
		RetryBackoff: 10 * time.Millisecond,
		Timeout:      10 * time.Second,
		KillGrace:    500 * time.Millisecond,
		PollInterval: 20 * time.Millisecond,
	}
}

type paths struct {
	out string
	log string
}

func tempPaths(t *testing.T) paths {
	dir := t.TempDir()
	return paths{
		out: filepath.Join(dir, "results", "batch-1.raw.txt"),
		log: filepath.Join(dir, "logs", "batch-1.log"),
	}
}

func (p paths) mkdirs(t *testing.T) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(p.out), 0755); err != nil {
		t.Fatal(err)
	}
}

func readLog(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading log: %v", err)
	}
	return string(data)
}

// logRecorder captures every log write
type logRecorder struct {
	mu     sync.Mutex
	writes []string
}

func (r *logRecorder) write(path, content string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writes = append(r.writes, content)
	return nil
}

func (r *logRecorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.writes...)
}
