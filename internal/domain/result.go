package domain

// DimensionNote is the reviewer's structured commentary for one dimension
type DimensionNote struct {
	Evidence    []string           `json:"evidence,omitempty"`
	ImpactScope ImpactScope        `json:"impact_scope,omitempty"`
	FixScope    FixScope           `json:"fix_scope,omitempty"`
	Confidence  Confidence         `json:"confidence,omitempty"`
	SubAxes     map[string]float64 `json:"sub_axes,omitempty"`
}

// Weight returns the evidence weight of the note itself
func (n DimensionNote) Weight() float64 {
	return EvidenceWeight(n.Confidence, n.ImpactScope, n.FixScope, nil)
}

// Finding is one concrete defect reported against a dimension
type Finding struct {
	Dimension    string      `json:"dimension"`
	Identifier   string      `json:"identifier,omitempty"`
	Summary      string      `json:"summary"`
	RelatedFiles []string    `json:"related_files,omitempty"`
	Evidence     []string    `json:"evidence,omitempty"`
	Suggestion   string      `json:"suggestion,omitempty"`
	Confidence   Confidence  `json:"confidence,omitempty"`
	ImpactScope  ImpactScope `json:"impact_scope,omitempty"`
	FixScope     FixScope    `json:"fix_scope,omitempty"`
	Batch        int         `json:"batch,omitempty"` // 1-based origin
}

// BatchOutcome is either a BatchResult or a ParseFailure
type BatchOutcome interface {
	BatchNumber() int
	batchOutcome()
}

// BatchResult is the normalized output of one successfully parsed batch
type BatchResult struct {
	Index          int                      `json:"batch"` // 1-based
	Assessments    map[string]float64       `json:"assessments"`
	DimensionNotes map[string]DimensionNote `json:"dimension_notes,omitempty"`
	Findings       []Finding                `json:"findings,omitempty"`
	Quality        map[string]float64       `json:"quality,omitempty"`
}

// BatchNumber returns the 1-based batch number
func (r BatchResult) BatchNumber() int { return r.Index }

func (BatchResult) batchOutcome() {}

// Note returns the dimension note for dim, or nil
func (r BatchResult) Note(dim string) *DimensionNote {
	n, ok := r.DimensionNotes[dim]
	if !ok {
		return nil
	}
	return &n
}

// ParseFailure records a batch that produced no usable payload
type ParseFailure struct {
	Index  int    `json:"batch"` // 1-based
	Reason string `json:"reason"`
}

// BatchNumber returns the 1-based batch number
func (f ParseFailure) BatchNumber() int { return f.Index }

func (ParseFailure) batchOutcome() {}

func (f ParseFailure) Error() string {
	return f.Reason
}
