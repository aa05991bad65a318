package review

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Layout locates the artifacts of one run directory
type Layout struct {
	Dir string
}

// PromptPath returns prompts/batch-N.md for a 1-based batch number
func (l Layout) PromptPath(n int) string {
	return filepath.Join(l.Dir, "prompts", fmt.Sprintf("batch-%d.md", n))
}

// ResultPath returns results/batch-N.raw.txt for a 1-based batch number
func (l Layout) ResultPath(n int) string {
	return filepath.Join(l.Dir, "results", fmt.Sprintf("batch-%d.raw.txt", n))
}

// LogPath returns logs/batch-N.log for a 1-based batch number
func (l Layout) LogPath(n int) string {
	return filepath.Join(l.Dir, "logs", fmt.Sprintf("batch-%d.log", n))
}

// MergedPath returns the merged result file
func (l Layout) MergedPath() string {
	return filepath.Join(l.Dir, "merged.json")
}

// ManifestPath returns the run manifest file
func (l Layout) ManifestPath() string {
	return filepath.Join(l.Dir, "run.json")
}

// NewRunID returns a sortable, unique run identifier
func NewRunID(now time.Time) string {
	return now.Format("20060102-150405") + "-" + uuid.NewString()[:8]
}

// CreateLayout makes a fresh run directory under base
func CreateLayout(base, runID string) (Layout, error) {
	l := Layout{Dir: filepath.Join(base, runID)}
	for _, sub := range []string{"prompts", "results", "logs"} {
		if err := os.MkdirAll(filepath.Join(l.Dir, sub), 0755); err != nil {
			return Layout{}, fmt.Errorf("creating run directory: %w", err)
		}
	}
	return l, nil
}

// Manifest records what a run was asked to do so it can be merged again
type Manifest struct {
	ID         string    `json:"id"`
	PacketPath string    `json:"packet"`
	RepoRoot   string    `json:"repo_root"`
	Selection  string    `json:"selection"`
	Batches    []int     `json:"batches"` // 1-based
	Names      []string  `json:"names"`
	StartedAt  time.Time `json:"started_at"`
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0644)
}

// ReadManifest loads run.json from a run directory
func ReadManifest(dir string) (*Manifest, error) {
	data, err := os.ReadFile(Layout{Dir: dir}.ManifestPath())
	if err != nil {
		return nil, fmt.Errorf("reading run manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing run manifest: %w", err)
	}
	return &m, nil
}
