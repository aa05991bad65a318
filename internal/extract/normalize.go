package extract

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/hochfrequenz/qualscan/internal/domain"
)

// Normalize validates a decoded payload into a BatchResult. Anything that
// cannot yield at least one numeric assessment becomes a ParseFailure.
func Normalize(number int, payload map[string]any) domain.BatchOutcome {
	raw, ok := payload["assessments"].(map[string]any)
	if !ok {
		return domain.ParseFailure{Index: number, Reason: "payload has no assessments object"}
	}

	assessments := make(map[string]float64, len(raw))
	for dim, v := range raw {
		dim = strings.TrimSpace(dim)
		if dim == "" {
			continue
		}
		score, ok := scoreValue(v)
		if !ok {
			continue
		}
		assessments[dim] = clampScore(score)
	}
	if len(assessments) == 0 {
		return domain.ParseFailure{Index: number, Reason: "assessments has no numeric scores"}
	}

	result := domain.BatchResult{
		Index:          number,
		Assessments:    assessments,
		DimensionNotes: notes(payload["dimension_notes"]),
		Findings:       findings(payload["findings"], number),
	}
	result.Quality = qualitySignals(result, payload["quality"])
	return result
}

// scoreValue accepts a bare number, a numeric string, or {"score": n}
func scoreValue(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, !math.IsNaN(x) && !math.IsInf(x, 0)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return f, err == nil && !math.IsNaN(f) && !math.IsInf(f, 0)
	case map[string]any:
		return scoreValue(x["score"])
	}
	return 0, false
}

func clampScore(v float64) float64 {
	return math.Max(0, math.Min(100, v))
}

func notes(v any) map[string]domain.DimensionNote {
	raw, ok := v.(map[string]any)
	if !ok || len(raw) == 0 {
		return nil
	}
	out := make(map[string]domain.DimensionNote, len(raw))
	for dim, nv := range raw {
		obj, ok := nv.(map[string]any)
		if !ok {
			continue
		}
		note := domain.DimensionNote{
			Evidence:    stringList(obj["evidence"]),
			ImpactScope: domain.ParseImpactScope(str(obj["impact_scope"])),
			FixScope:    domain.ParseFixScope(str(obj["fix_scope"])),
			Confidence:  domain.ParseConfidence(str(obj["confidence"])),
		}
		if axes, ok := obj["sub_axes"].(map[string]any); ok {
			for name, av := range axes {
				if score, ok := scoreValue(av); ok {
					if note.SubAxes == nil {
						note.SubAxes = make(map[string]float64)
					}
					note.SubAxes[name] = clampScore(score)
				}
			}
		}
		out[dim] = note
	}
	return out
}

func findings(v any, number int) []domain.Finding {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	var out []domain.Finding
	for _, item := range list {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		f := domain.Finding{
			Dimension:    strings.TrimSpace(str(obj["dimension"])),
			Identifier:   str(obj["identifier"]),
			Summary:      str(obj["summary"]),
			RelatedFiles: stringList(obj["related_files"]),
			Evidence:     stringList(obj["evidence"]),
			Suggestion:   str(obj["suggestion"]),
			Confidence:   domain.ParseConfidence(str(obj["confidence"])),
			ImpactScope:  domain.ParseImpactScope(str(obj["impact_scope"])),
			FixScope:     domain.ParseFixScope(str(obj["fix_scope"])),
			Batch:        number,
		}
		if f.Dimension == "" {
			continue
		}
		out = append(out, f)
	}
	return out
}

// qualitySignals derives the counters the aggregator sums across batches.
// Numeric quality values reported by the reviewer are kept alongside.
func qualitySignals(r domain.BatchResult, reported any) map[string]float64 {
	q := map[string]float64{
		"findings":            float64(len(r.Findings)),
		"dimensions_assessed": float64(len(r.Assessments)),
	}
	files := map[string]bool{}
	evidence := 0
	for _, f := range r.Findings {
		for _, p := range f.RelatedFiles {
			files[p] = true
		}
		evidence += len(f.Evidence)
	}
	for _, n := range r.DimensionNotes {
		evidence += len(n.Evidence)
	}
	q["files_reviewed"] = float64(len(files))
	q["evidence_items"] = float64(evidence)

	if m, ok := reported.(map[string]any); ok {
		for k, v := range m {
			if _, derived := q[k]; derived {
				continue
			}
			if f, ok := scoreValue(v); ok {
				q[k] = f
			}
		}
	}
	return q
}

func str(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case nil:
		return ""
	default:
		return fmt.Sprint(x)
	}
}

func stringList(v any) []string {
	switch x := v.(type) {
	case []any:
		out := make([]string, 0, len(x))
		for _, item := range x {
			if s := strings.TrimSpace(str(item)); s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		if s := strings.TrimSpace(x); s != "" {
			return []string{s}
		}
	}
	return nil
}
