// Package observer follows a run directory while reviewers write into it.
package observer

import (
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Kind tells logs from raw reviewer results
type Kind string

const (
	KindLog    Kind = "log"
	KindResult Kind = "result"
)

var artifactName = regexp.MustCompile(`^batch-(\d+)\.(log|raw\.txt)$`)

// Artifact is one per-batch file in a run directory
type Artifact struct {
	Batch   int // 1-based
	Kind    Kind
	Path    string
	Size    int64
	ModTime time.Time
}

// ParseArtifact recognises logs/batch-N.log and results/batch-N.raw.txt
func ParseArtifact(path string) (Artifact, bool) {
	m := artifactName.FindStringSubmatch(filepath.Base(path))
	if m == nil {
		return Artifact{}, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n < 1 {
		return Artifact{}, false
	}
	kind := KindResult
	if m[2] == "log" {
		kind = KindLog
	}
	dir := filepath.Base(filepath.Dir(path))
	if (kind == KindLog && dir != "logs") || (kind == KindResult && dir != "results") {
		return Artifact{}, false
	}
	return Artifact{Batch: n, Kind: kind, Path: path}, true
}

// stat fills size and modification time, reporting false if the file is gone
func (a *Artifact) stat() bool {
	info, err := os.Stat(a.Path)
	if err != nil || info.IsDir() {
		return false
	}
	a.Size = info.Size()
	a.ModTime = info.ModTime()
	return true
}

// Scan lists the artifacts currently present in a run directory
func Scan(runDir string) []Artifact {
	var out []Artifact
	for _, sub := range []string{"logs", "results"} {
		entries, err := os.ReadDir(filepath.Join(runDir, sub))
		if err != nil {
			continue
		}
		for _, e := range entries {
			a, ok := ParseArtifact(filepath.Join(runDir, sub, e.Name()))
			if ok && a.stat() {
				out = append(out, a)
			}
		}
	}
	return out
}

var trailerPrefixes = []string{"EXIT CODE:", "TIMEOUT after", "STALL RECOVERY", "CANCELLED after", "STATUS: running"}

// LogState returns the last attempt trailer written to a batch log, or ""
// when the log has no trailer yet.
func LogState(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	lines := strings.Split(string(data), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		for _, p := range trailerPrefixes {
			if strings.HasPrefix(line, p) {
				return line
			}
		}
	}
	return ""
}
