// Package model defines the core types flowing through the budget ETL and
// query pipeline.
package model

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

// canonicalSep separates fields in the row-hash canonical form (ASCII Unit
// Separator, so it can never collide with CSV field content).
const canonicalSep = "\x1f"

// RawRow is one row of the source file exactly as parsed, before any
// cleaning. Values are keyed by header column name.
type RawRow struct {
	SourceRowID int               `json:"source_row_id"` // 1-based index in the source file
	Columns     []string          `json:"columns"`
	Values      map[string]string `json:"values"`
}

// Get returns the raw value for a column, or "" if the column is absent.
func (r RawRow) Get(col string) string {
	return r.Values[col]
}

// nullTokens are raw values treated as absent for every required field.
var nullTokens = map[string]bool{
	"":     true,
	"NULL": true,
	"null": true,
	"N/A":  true,
}

// IsAbsent reports whether a raw value should be treated as missing after
// null normalization.
func IsAbsent(v string) bool {
	return nullTokens[strings.TrimSpace(v)]
}

// Field identifies one of the canonical BudgetRecord fields for quality
// accounting.
type Field string

const (
	FieldYear     Field = "year"
	FieldProgram  Field = "program"
	FieldService  Field = "service"
	FieldActivity Field = "activity"
	FieldAmount   Field = "amount"
)

// QualityPenalties maps a missing or invalid field to its quality-score
// deduction. Penalties are additive and independent.
var QualityPenalties = map[Field]int{
	FieldYear:     25,
	FieldProgram:  25,
	FieldAmount:   25,
	FieldService:  15,
	FieldActivity: 10,
}

// CriticalFields are the fields whose absence classifies a row as critically
// flawed.
var CriticalFields = []Field{FieldYear, FieldProgram, FieldAmount}

// BudgetRecord is the canonical cleaned unit stored in budget_data.
//
// Sign convention: positive amount = expense, negative = revenue. Amount is
// nil when the raw value was missing or unparseable; it is never defaulted to
// zero in that case.
type BudgetRecord struct {
	Year             int      `json:"year"`
	Program          string   `json:"program"`
	Service          string   `json:"service"`
	Activity         string   `json:"activity,omitempty"`
	Amount           *float64 `json:"amount"`
	AmountRaw        string   `json:"amount_raw"`
	QualityScore     int      `json:"quality_score"`
	HasIssues        bool     `json:"has_issues"`
	IssueDescription string   `json:"issue_description,omitempty"`
	SourceRowID      int      `json:"source_row_id"`
	RowHash          string   `json:"row_hash"`
}

// ComputeQualityScore applies the fixed penalty table to a set of missing or
// invalid fields and clamps the result to [0, 100].
func ComputeQualityScore(flawed []Field) int {
	score := 100
	for _, f := range flawed {
		score -= QualityPenalties[f]
	}
	if score < 0 {
		score = 0
	}
	return score
}

// ComputeRowHash returns the content hash of (year, program, service,
// activity, amount) used for duplicate detection and reload idempotence.
// A nil amount is encoded as a NUL byte so missing differs from zero.
func ComputeRowHash(year int, program, service, activity string, amount *float64) string {
	amt := "\x00"
	if amount != nil {
		amt = strconv.FormatFloat(*amount, 'f', -1, 64)
	}
	canonical := strings.Join([]string{
		strconv.Itoa(year), program, service, activity, amt,
	}, canonicalSep)
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])
}

// CleanAction records one transformation the normalizer applied to a field.
type CleanAction struct {
	Field  Field  `json:"field"`
	Action string `json:"action"`
}

// CleanFlag marks a recoverable problem detected while normalizing a row.
type CleanFlag string

const (
	FlagInvalidYear       CleanFlag = "invalid_year"
	FlagUnparseableYear   CleanFlag = "unparseable_year"
	FlagUnparseableAmount CleanFlag = "unparseable_amount"
	FlagMissingAmount     CleanFlag = "missing_amount"
	FlagSuspiciousAmount  CleanFlag = "suspicious_amount"
	FlagSignMismatch      CleanFlag = "sign_mismatch"
)

// FlaggedRow is the side-channel entry for a row retained in the cleaned
// dataset but routed to manual review.
type FlaggedRow struct {
	SourceRowID int               `json:"source_row_id"`
	Original    map[string]string `json:"original"`
	Cleaned     BudgetRecord      `json:"cleaned"`
	Issues      []string          `json:"issues"`
	Actions     []CleanAction     `json:"actions"`
}
