package aggregate

import (
	"math"
	"sort"

	"github.com/hochfrequenz/qualscan/internal/domain"
)

// Result is the merged outcome of a review run
type Result struct {
	Assessments    map[string]float64                `json:"assessments"`
	Breakdown      map[string]ScoreBreakdown         `json:"score_breakdown"`
	Findings       []domain.Finding                  `json:"findings"`
	DimensionNotes map[string][]domain.DimensionNote `json:"dimension_notes"`
	Quality        map[string]float64                `json:"quality"`
	MergedBatches  []int                             `json:"merged_batches"`
	MissingBatches []int                             `json:"missing_batches"`
}

type scored struct {
	score  float64
	weight float64
}

// Merge combines parsed batches. selected holds the 1-based batch numbers
// the run asked for; any of them without a result is reported missing.
func Merge(results []domain.BatchResult, selected []int) Result {
	ordered := append([]domain.BatchResult(nil), results...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Index < ordered[j].Index })

	out := Result{
		Assessments:    make(map[string]float64),
		Breakdown:      make(map[string]ScoreBreakdown),
		Findings:       []domain.Finding{},
		DimensionNotes: make(map[string][]domain.DimensionNote),
		Quality:        make(map[string]float64),
		MergedBatches:  []int{},
		MissingBatches: []int{},
	}

	scores := make(map[string][]scored)
	pressure := make(map[string][]float64)

	for _, r := range ordered {
		out.MergedBatches = append(out.MergedBatches, r.Index)

		for dim, score := range r.Assessments {
			w := 1.0
			if note := r.Note(dim); note != nil {
				w = note.Weight()
			}
			scores[dim] = append(scores[dim], scored{score: score, weight: w})
		}

		for _, f := range r.Findings {
			w := domain.EvidenceWeight(f.Confidence, f.ImpactScope, f.FixScope, r.Note(f.Dimension))
			pressure[f.Dimension] = append(pressure[f.Dimension], w)
			out.Findings = append(out.Findings, f)
		}

		for _, dim := range sortedKeys(r.DimensionNotes) {
			out.DimensionNotes[dim] = append(out.DimensionNotes[dim], r.DimensionNotes[dim])
		}

		for k, v := range r.Quality {
			out.Quality[k] += v
		}
	}

	for dim, pairs := range scores {
		b := Score(inputsFor(pairs, pressure[dim]))
		out.Breakdown[dim] = b
		out.Assessments[dim] = b.Final
	}

	out.MissingBatches = missing(selected, out.MergedBatches)
	return out
}

// inputsFor sorts contributions before summing so the float result is the
// same for any input order.
func inputsFor(pairs []scored, findingWeights []float64) ScoreInputs {
	pairs = append([]scored(nil), pairs...)
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].score != pairs[j].score {
			return pairs[i].score < pairs[j].score
		}
		return pairs[i].weight < pairs[j].weight
	})

	var sum, weights float64
	floor := math.Inf(1)
	for _, p := range pairs {
		sum += p.score * p.weight
		weights += p.weight
		floor = math.Min(floor, p.score)
	}

	fw := append([]float64(nil), findingWeights...)
	sort.Float64s(fw)
	var pressure float64
	for _, w := range fw {
		pressure += w
	}

	return ScoreInputs{
		WeightedMean: sum / math.Max(weights, 1.0),
		Floor:        floor,
		Pressure:     pressure,
		FindingCount: len(fw),
	}
}

func missing(selected, merged []int) []int {
	have := make(map[int]bool, len(merged))
	for _, n := range merged {
		have[n] = true
	}
	out := []int{}
	for _, n := range selected {
		if !have[n] {
			out = append(out, n)
		}
	}
	sort.Ints(out)
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
