//go:build integration

package integration

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

var binPath string

func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "qualscan-integration")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	binPath = filepath.Join(dir, "qualscan")
	build := exec.Command("go", "build", "-o", binPath, "../cmd/qualscan")
	if out, err := build.CombinedOutput(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build binary: %v\n%s", err, out)
		os.Exit(1)
	}

	code := m.Run()
	os.RemoveAll(dir)
	os.Exit(code)
}

type cliResult struct {
	stdout string
	stderr string
	code   int
}

// runCLI executes the binary with the workspace config
func runCLI(t *testing.T, ws *Workspace, env []string, args ...string) cliResult {
	t.Helper()
	if ws != nil {
		args = append([]string{"--config", ws.ConfigPath}, args...)
	}
	cmd := exec.Command(binPath, args...)
	cmd.Env = append(os.Environ(), env...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := cliResult{stdout: stdout.String(), stderr: stderr.String()}
	var exitErr *exec.ExitError
	switch {
	case errors.As(err, &exitErr):
		res.code = exitErr.ExitCode()
	case err != nil:
		t.Fatalf("running CLI: %v", err)
	}
	return res
}

func TestCLI_Help(t *testing.T) {
	res := runCLI(t, nil, nil, "--help")
	if res.code != 0 {
		t.Fatalf("--help exited %d: %s", res.code, res.stderr)
	}
	for _, sub := range []string{"review", "runs", "schedule", "watch"} {
		if !strings.Contains(res.stdout, sub) {
			t.Errorf("help should list %q command", sub)
		}
	}
}

func TestCLI_ReviewRun_AllBatchesSucceed(t *testing.T) {
	ws := NewWorkspace(t)

	res := runCLI(t, ws, nil, "review", "run", "--packet", ws.PacketPath)
	if res.code != 0 {
		t.Fatalf("exit code = %d\nstdout:\n%s\nstderr:\n%s", res.code, res.stdout, res.stderr)
	}
	if !strings.Contains(res.stdout, "completed (3/3 batches merged)") {
		t.Errorf("stdout missing run summary:\n%s", res.stdout)
	}
	if !strings.Contains(res.stdout, "error_handling") {
		t.Errorf("stdout missing score table:\n%s", res.stdout)
	}

	dirs := ws.RunDirs(t)
	if len(dirs) != 1 {
		t.Fatalf("run dirs = %v, want one", dirs)
	}
	for n := 1; n <= 3; n++ {
		for _, rel := range []string{
			fmt.Sprintf("prompts/batch-%d.md", n),
			fmt.Sprintf("results/batch-%d.raw.txt", n),
			fmt.Sprintf("logs/batch-%d.log", n),
		} {
			if _, err := os.Stat(filepath.Join(dirs[0], rel)); err != nil {
				t.Errorf("missing artifact %s: %v", rel, err)
			}
		}
	}

	data, err := os.ReadFile(filepath.Join(dirs[0], "merged.json"))
	if err != nil {
		t.Fatalf("reading merged.json: %v", err)
	}
	var merged struct {
		Assessments map[string]float64 `json:"assessments"`
		Merged      []int              `json:"merged_batches"`
	}
	if err := json.Unmarshal(data, &merged); err != nil {
		t.Fatalf("parsing merged.json: %v", err)
	}
	if len(merged.Merged) != 3 || merged.Assessments["naming"] == 0 {
		t.Errorf("merged = %+v", merged)
	}

	list := runCLI(t, ws, nil, "runs", "list")
	if list.code != 0 || !strings.Contains(list.stdout, filepath.Base(dirs[0])) {
		t.Errorf("runs list did not show the run (exit %d):\n%s%s", list.code, list.stdout, list.stderr)
	}

	show := runCLI(t, ws, nil, "runs", "show", filepath.Base(dirs[0]))
	if show.code != 0 || !strings.Contains(show.stdout, "completed") || !strings.Contains(show.stdout, "naming") {
		t.Errorf("runs show output (exit %d):\n%s%s", show.code, show.stdout, show.stderr)
	}
}

func TestCLI_ReviewRun_FailedBatchReportsRetry(t *testing.T) {
	ws := NewWorkspace(t)
	env := []string{"FAKE_FAIL_BATCH2=1"}

	res := runCLI(t, ws, env, "review", "run", "--packet", ws.PacketPath)
	if res.code != 1 {
		t.Fatalf("exit code = %d, want 1\nstderr:\n%s", res.code, res.stderr)
	}
	for _, want := range []string{"auth", "--only-batches 2", "batch-2.log"} {
		if !strings.Contains(res.stderr, want) {
			t.Errorf("stderr missing %q:\n%s", want, res.stderr)
		}
	}
	if !strings.Contains(res.stdout, "partial (2/3 batches merged)") {
		t.Errorf("stdout missing partial summary:\n%s", res.stdout)
	}

	partial := runCLI(t, ws, env, "review", "run", "--packet", ws.PacketPath, "--allow-partial")
	if partial.code != 0 {
		t.Errorf("--allow-partial exit code = %d, want 0", partial.code)
	}
}

func TestCLI_ReviewRun_InvalidSelection(t *testing.T) {
	ws := NewWorkspace(t)

	for _, sel := range []string{"", "9", "x"} {
		res := runCLI(t, ws, nil, "review", "run", "--packet", ws.PacketPath, "--only-batches", sel)
		if res.code != 2 {
			t.Errorf("--only-batches %q: exit code = %d, want 2 (%s)", sel, res.code, res.stderr)
		}
	}
	if _, err := os.Stat(ws.RunsDir); err == nil {
		if dirs := ws.RunDirs(t); len(dirs) != 0 {
			t.Errorf("invalid selection created run dirs: %v", dirs)
		}
	}
}

func TestCLI_ReviewRun_OnlyBatches(t *testing.T) {
	ws := NewWorkspace(t)

	res := runCLI(t, ws, nil, "review", "run", "--packet", ws.PacketPath, "--only-batches", "1,3", "--sequential")
	if res.code != 0 {
		t.Fatalf("exit code = %d\nstderr:\n%s", res.code, res.stderr)
	}
	dirs := ws.RunDirs(t)
	if len(dirs) != 1 {
		t.Fatalf("run dirs = %v", dirs)
	}
	if _, err := os.Stat(filepath.Join(dirs[0], "logs", "batch-2.log")); !os.IsNotExist(err) {
		t.Errorf("batch 2 should not have run")
	}
}

func TestCLI_ReviewMerge(t *testing.T) {
	ws := NewWorkspace(t)
	if res := runCLI(t, ws, nil, "review", "run", "--packet", ws.PacketPath); res.code != 0 {
		t.Fatalf("run exit code = %d: %s", res.code, res.stderr)
	}
	runDir := ws.RunDirs(t)[0]
	if err := os.Remove(filepath.Join(runDir, "merged.json")); err != nil {
		t.Fatal(err)
	}

	res := runCLI(t, ws, nil, "review", "merge", runDir)
	if res.code != 0 {
		t.Fatalf("merge exit code = %d: %s", res.code, res.stderr)
	}
	if _, err := os.Stat(filepath.Join(runDir, "merged.json")); err != nil {
		t.Errorf("merge did not rewrite merged.json: %v", err)
	}
}

func TestCLI_ConfigInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")

	res := runCLI(t, nil, nil, "--config", path, "config", "init")
	if res.code != 0 {
		t.Fatalf("config init exited %d: %s", res.code, res.stderr)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("config file not written: %v", err)
	}
	if !strings.Contains(string(data), "max_parallel_batches") {
		t.Errorf("config file missing review settings:\n%s", data)
	}

	if res := runCLI(t, nil, nil, "--config", path, "config", "init"); res.code == 0 {
		t.Error("config init should refuse to overwrite without --force")
	}
	if res := runCLI(t, nil, nil, "--config", path, "config", "init", "--force"); res.code != 0 {
		t.Errorf("config init --force exited %d: %s", res.code, res.stderr)
	}
}
