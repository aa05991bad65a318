package domain

// BatchStatus represents the lifecycle state of a batch within a run
type BatchStatus string

const (
	BatchQueued  BatchStatus = "queued"
	BatchRunning BatchStatus = "running"
	BatchDone    BatchStatus = "done"
	BatchFailed  BatchStatus = "failed"
)

// RunStatus represents the outcome of a whole review run
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunPartial   RunStatus = "partial"
	RunFailed    RunStatus = "failed"
)

// Confidence is the reviewer's stated confidence in an assessment or finding
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// ImpactScope describes how much of the codebase a problem touches
type ImpactScope string

const (
	ImpactLocal     ImpactScope = "local"
	ImpactModule    ImpactScope = "module"
	ImpactSubsystem ImpactScope = "subsystem"
	ImpactCodebase  ImpactScope = "codebase"
)

// FixScope describes how invasive the remedy is
type FixScope string

const (
	FixSingleEdit          FixScope = "single_edit"
	FixMultiFileRefactor   FixScope = "multi_file_refactor"
	FixArchitecturalChange FixScope = "architectural_change"
)
