// Package packet loads the review packet prepared by the scan pipeline and
// selects which of its batches a run executes.
package packet

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hochfrequenz/qualscan/internal/domain"
)

// ErrInvalidSelection is returned when a batch selection is empty or
// references batches that do not exist.
var ErrInvalidSelection = errors.New("invalid batch selection")

// Packet is the per-run context handed to every batch
type Packet struct {
	Path       string         `yaml:"-"`
	RepoRoot   string         `yaml:"repo_root"`
	Language   string         `yaml:"language"`
	Dimensions []string       `yaml:"dimensions"`
	Context    string         `yaml:"context"`
	Batches    []domain.Batch `yaml:"investigation_batches"`
}

// Load reads a packet file. YAML is a superset of JSON, so both formats
// are accepted by the same decoder.
func Load(path string) (*Packet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading packet: %w", err)
	}
	p, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parsing packet %s: %w", path, err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	p.Path = abs
	if p.RepoRoot == "" {
		p.RepoRoot = filepath.Dir(abs)
	}
	return p, nil
}

// Parse decodes packet content and assigns stable 0-based batch indices
func Parse(data []byte) (*Packet, error) {
	var p Packet
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	if len(p.Batches) == 0 {
		return nil, fmt.Errorf("packet has no investigation_batches")
	}
	for i := range p.Batches {
		p.Batches[i].Index = i
		if p.Batches[i].Name == "" {
			p.Batches[i].Name = fmt.Sprintf("batch-%d", i+1)
		}
		if len(p.Batches[i].Dimensions) == 0 {
			p.Batches[i].Dimensions = append([]string(nil), p.Dimensions...)
		}
	}
	return &p, nil
}

// Select returns the batches named by a 1-based selection such as
// "1,3,5-7". An empty selection selects every batch.
func (p *Packet) Select(selection string) ([]domain.Batch, error) {
	if strings.TrimSpace(selection) == "" {
		return append([]domain.Batch(nil), p.Batches...), nil
	}
	numbers, err := ParseSelection(selection)
	if err != nil {
		return nil, err
	}
	selected := make([]domain.Batch, 0, len(numbers))
	for _, n := range numbers {
		if n < 1 || n > len(p.Batches) {
			return nil, fmt.Errorf("%w: batch %d out of range 1-%d", ErrInvalidSelection, n, len(p.Batches))
		}
		selected = append(selected, p.Batches[n-1])
	}
	return selected, nil
}

// MaxBatchNumber bounds selection numbers before ranges are expanded
const MaxBatchNumber = 10000

// ParseSelection parses a comma separated list of 1-based batch numbers and
// ranges into a sorted, de-duplicated slice. Numbers outside
// 1-MaxBatchNumber are rejected without expanding the range.
func ParseSelection(selection string) ([]int, error) {
	seen := make(map[int]bool)
	for _, part := range strings.Split(selection, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		lo, hi, isRange := strings.Cut(part, "-")
		start, err := strconv.Atoi(strings.TrimSpace(lo))
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidSelection, part)
		}
		end := start
		if isRange {
			end, err = strconv.Atoi(strings.TrimSpace(hi))
			if err != nil || end < start {
				return nil, fmt.Errorf("%w: %q", ErrInvalidSelection, part)
			}
		}
		if start < 1 || end > MaxBatchNumber {
			return nil, fmt.Errorf("%w: %q outside 1-%d", ErrInvalidSelection, part, MaxBatchNumber)
		}
		for n := start; n <= end; n++ {
			seen[n] = true
		}
	}
	if len(seen) == 0 {
		return nil, fmt.Errorf("%w: no batches selected", ErrInvalidSelection)
	}
	numbers := make([]int, 0, len(seen))
	for n := range seen {
		numbers = append(numbers, n)
	}
	sort.Ints(numbers)
	return numbers, nil
}

// FormatSelection renders 1-based batch numbers as a comma separated list
func FormatSelection(numbers []int) string {
	parts := make([]string, len(numbers))
	for i, n := range numbers {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ",")
}
