package model

import "time"

// Severity classifies how badly a raw row is flawed.
type Severity string

const (
	SeverityNone     Severity = "none"
	SeverityMinor    Severity = "minor"
	SeverityCritical Severity = "critical"
)

// maxGapExamples caps how many example rows are kept per field gap.
const maxGapExamples = 3

// FieldGap tallies missing and empty values for one required field.
type FieldGap struct {
	Missing     int   `json:"missing"`
	Empty       int   `json:"empty"`
	ExampleRows []int `json:"example_rows,omitempty"` // first-encountered source row ids
}

// AddExample records a source row id, keeping only the first few.
func (g *FieldGap) AddExample(rowID int) {
	if len(g.ExampleRows) < maxGapExamples {
		g.ExampleRows = append(g.ExampleRows, rowID)
	}
}

// DuplicateRow records a raw row that is structurally identical to an
// earlier one.
type DuplicateRow struct {
	SourceRowID int `json:"source_row_id"`
	FirstSeenID int `json:"first_seen_id"` // canonical occurrence
}

// SuspiciousValue records a value that passed parsing but failed a
// plausibility rule.
type SuspiciousValue struct {
	SourceRowID int    `json:"source_row_id"`
	Field       Field  `json:"field"`
	Value       string `json:"value"`
	Reason      string `json:"reason"`
}

// QualityReport is the immutable pre-clean audit of the full raw dataset,
// produced once per load and written alongside the store.
type QualityReport struct {
	TotalRows    int                `json:"total_rows"`
	FieldGaps    map[Field]*FieldGap `json:"field_gaps"`
	SeverityRows map[Severity]int   `json:"severity_rows"`
	Duplicates   []DuplicateRow     `json:"duplicates,omitempty"`
	Suspicious   []SuspiciousValue  `json:"suspicious,omitempty"`

	// CompletenessScore is perfectRows/totalRows*100; CriticalFieldsScore is
	// (totalRows-criticalRows)/totalRows*100. Both rounded to 2 decimals.
	CompletenessScore   float64 `json:"completeness_score"`
	CriticalFieldsScore float64 `json:"critical_fields_score"`

	GeneratedAt time.Time `json:"generated_at"`
}

// LoadReport summarizes one full ETL run: the quality report plus cleaning
// outcomes. Each artifact is independently consumable for audit.
type LoadReport struct {
	RunID        string         `json:"run_id"`
	Quality      *QualityReport `json:"quality"`
	CleanedRows  int            `json:"cleaned_rows"`
	FlaggedRows  int            `json:"flagged_rows"`
	InferredRows int            `json:"inferred_rows"`
	SkippedRows  int            `json:"skipped_rows"`
	SkipErrors   []RowError     `json:"skip_errors,omitempty"`
	SourceFiles  []string       `json:"source_files"`
	StartedAt    time.Time      `json:"started_at"`
	FinishedAt   time.Time      `json:"finished_at"`
}

// RowError records a row that raised an unexpected error during cleaning and
// was skipped without aborting the batch.
type RowError struct {
	SourceRowID int    `json:"source_row_id"`
	Error       string `json:"error"`
}
