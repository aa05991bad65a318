//go:build integration

package integration

import (
	"os"
	"path/filepath"
	"testing"
)

// fakeReviewer mimics the reviewer CLI: it writes JSON to the -o file.
// Prompts for batch 2 fail as an unauthenticated session when
// FAKE_FAIL_BATCH2 is set.
const fakeReviewer = `#!/bin/sh
out=""
while [ $# -gt 1 ]; do
  if [ "$1" = "-o" ]; then out="$2"; fi
  shift
done
case "$1" in
  *"batch 2 of"*)
    if [ -n "$FAKE_FAIL_BATCH2" ]; then echo "Error: not logged in" >&2; exit 1; fi ;;
esac
cat > "$out" <<'JSON'
{"assessments": {"naming": 80, "error_handling": 60},
 "dimension_notes": {"error_handling": {"confidence": "high", "evidence": ["a.go:10"]}},
 "findings": [{"dimension": "error_handling", "summary": "swallowed error", "confidence": "high", "impact_scope": "module"}]}
JSON
`

// Workspace is a temporary packet, reviewer and config for one test
type Workspace struct {
	Dir        string
	PacketPath string
	ConfigPath string
	RunsDir    string
}

// NewWorkspace writes a three-batch packet, the fake reviewer and a config
// pointing at both.
func NewWorkspace(t *testing.T) *Workspace {
	t.Helper()
	dir := t.TempDir()
	ws := &Workspace{
		Dir:        dir,
		PacketPath: filepath.Join(dir, "packet.yaml"),
		ConfigPath: filepath.Join(dir, "config.toml"),
		RunsDir:    filepath.Join(dir, "runs"),
	}

	script := filepath.Join(dir, "fake-codex")
	writeFile(t, script, fakeReviewer, 0755)

	writeFile(t, ws.PacketPath, `repo_root: `+dir+`
dimensions: [naming, error_handling]
investigation_batches:
  - name: core
    files_to_read: [a.go]
  - name: auth
    files_to_read: [b.go]
  - name: cli
    files_to_read: [c.go]
`, 0644)

	writeFile(t, ws.ConfigPath, `[general]
runs_dir = "`+ws.RunsDir+`"
database_path = "`+filepath.Join(dir, "qualscan.db")+`"

[review]
runner = "`+script+`"
max_retries = 0
max_parallel_batches = 2
batch_timeout_seconds = 30
heartbeat_seconds = 1
kill_grace_seconds = 1

[notifications]
desktop = false
`, 0644)

	return ws
}

// RunDirs lists the run directories created so far
func (ws *Workspace) RunDirs(t *testing.T) []string {
	t.Helper()
	entries, err := os.ReadDir(ws.RunsDir)
	if err != nil {
		t.Fatalf("reading runs dir: %v", err)
	}
	var dirs []string
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, filepath.Join(ws.RunsDir, e.Name()))
		}
	}
	return dirs
}

func writeFile(t *testing.T, path, content string, mode os.FileMode) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), mode); err != nil {
		t.Fatal(err)
	}
}
