// Package aggregate merges per-batch review results into one score per
// dimension. The merge does not depend on the order batches arrive in.
package aggregate

import "math"

const (
	meanShare        = 0.7
	floorShare       = 0.3
	maxPenalty       = 24.0
	penaltyPerWeight = 2.2
	penaltyPerExtra  = 0.8
	capCeiling       = 90.0
	capFloor         = 60.0
	capPerWeight     = 3.5
)

// ScoreInputs are the per-dimension values a score is computed from
type ScoreInputs struct {
	WeightedMean float64 `json:"weighted_mean"`
	Floor        float64 `json:"floor"`
	Pressure     float64 `json:"pressure"`
	FindingCount int     `json:"finding_count"`
}

// ScoreBreakdown records every intermediate step of a score. IssueCap is 0
// when the dimension has no findings.
type ScoreBreakdown struct {
	ScoreInputs
	FloorAware   float64 `json:"floor_aware"`
	IssuePenalty float64 `json:"issue_penalty"`
	IssueCap     float64 `json:"issue_cap"`
	Final        float64 `json:"final"`
}

// Score computes the final dimension score from its inputs
func Score(in ScoreInputs) ScoreBreakdown {
	extra := math.Max(float64(in.FindingCount-1), 0)

	b := ScoreBreakdown{ScoreInputs: in}
	b.FloorAware = meanShare*in.WeightedMean + floorShare*in.Floor
	b.IssuePenalty = math.Min(maxPenalty, in.Pressure*penaltyPerWeight+extra*penaltyPerExtra)

	result := b.FloorAware - b.IssuePenalty
	if in.FindingCount > 0 {
		b.IssueCap = math.Max(capFloor, capCeiling-(in.Pressure*capPerWeight+extra*penaltyPerExtra))
		result = math.Min(result, b.IssueCap)
	}
	b.Final = round1(clamp(result, 0, 100))
	return b
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
