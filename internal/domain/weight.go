package domain

import "strings"

// Weight returns the evidence multiplier for a confidence level
func (c Confidence) Weight() float64 {
	switch c {
	case ConfidenceHigh:
		return 1.2
	case ConfidenceLow:
		return 0.75
	default:
		return 1.0
	}
}

// Weight returns the evidence multiplier for an impact scope
func (s ImpactScope) Weight() float64 {
	switch s {
	case ImpactModule:
		return 1.3
	case ImpactSubsystem:
		return 1.6
	case ImpactCodebase:
		return 2.0
	default:
		return 1.0
	}
}

// Weight returns the evidence multiplier for a fix scope
func (s FixScope) Weight() float64 {
	switch s {
	case FixMultiFileRefactor:
		return 1.3
	case FixArchitecturalChange:
		return 1.7
	default:
		return 1.0
	}
}

// ParseConfidence normalizes free text into a Confidence, empty when unknown
func ParseConfidence(s string) Confidence {
	switch c := Confidence(strings.ToLower(strings.TrimSpace(s))); c {
	case ConfidenceHigh, ConfidenceMedium, ConfidenceLow:
		return c
	}
	return ""
}

// ParseImpactScope normalizes free text into an ImpactScope, empty when unknown
func ParseImpactScope(s string) ImpactScope {
	switch v := ImpactScope(normalizeEnum(s)); v {
	case ImpactLocal, ImpactModule, ImpactSubsystem, ImpactCodebase:
		return v
	}
	return ""
}

// ParseFixScope normalizes free text into a FixScope, empty when unknown
func ParseFixScope(s string) FixScope {
	switch v := FixScope(normalizeEnum(s)); v {
	case FixSingleEdit, FixMultiFileRefactor, FixArchitecturalChange:
		return v
	}
	return ""
}

func normalizeEnum(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "-", "_")
	return strings.ReplaceAll(s, " ", "_")
}

// EvidenceWeight combines the three multipliers. Empty fields fall back to the
// note's values, then to medium/local/single_edit.
func EvidenceWeight(c Confidence, impact ImpactScope, fix FixScope, note *DimensionNote) float64 {
	if note != nil {
		if c == "" {
			c = note.Confidence
		}
		if impact == "" {
			impact = note.ImpactScope
		}
		if fix == "" {
			fix = note.FixScope
		}
	}
	return c.Weight() * impact.Weight() * fix.Weight()
}
