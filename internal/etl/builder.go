package etl

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/civicdata/budget-cli/internal/model"
)

// BuildResult carries the three independently consumable artifacts of a
// cleaning run: the cleaned dataset, the flagged-rows extract, and the full
// load report.
type BuildResult struct {
	Records []model.BudgetRecord
	Flagged []model.FlaggedRow
	Report  *model.LoadReport
}

// Builder orchestrates the full-dataset cleaning pass. The governing failure
// policy is flag-don't-discard: every row is emitted into the cleaned
// dataset regardless of issues, and problem rows are additionally routed to
// the flagged side channel for manual review.
type Builder struct {
	cfg  Config
	norm *Normalizer
}

// NewBuilder creates a Builder with the given validation bounds.
func NewBuilder(cfg Config) *Builder {
	return &Builder{
		cfg:  cfg,
		norm: NewNormalizer(cfg),
	}
}

// Build runs the two-phase cleaning pass over all raw rows in original
// order. Phase 1 builds the inference maps from the full dataset; phase 2
// normalizes, infers, and scores each row. A row that panics during
// processing is counted as skipped and logged, but never aborts the batch.
func (b *Builder) Build(ctx context.Context, rows []model.RawRow) (*BuildResult, error) {
	started := time.Now().UTC()
	log := zap.L()

	// Phase 1: the inference map must be complete before any row is cleaned.
	inference := BuildInferenceMap(rows)
	quality := AnalyzeQuality(rows, b.cfg)

	result := &BuildResult{
		Records: make([]model.BudgetRecord, 0, len(rows)),
		Report: &model.LoadReport{
			RunID:     uuid.NewString(),
			Quality:   quality,
			StartedAt: started,
		},
	}

	// Phase 2: clean each row independently.
	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "builder: cancelled")
		}

		rec, flagged, inferred, err := b.cleanRow(row, inference)
		if err != nil {
			result.Report.SkippedRows++
			result.Report.SkipErrors = append(result.Report.SkipErrors, model.RowError{
				SourceRowID: row.SourceRowID,
				Error:       err.Error(),
			})
			log.Error("builder: row skipped",
				zap.Int("source_row_id", row.SourceRowID),
				zap.Error(err),
			)
			continue
		}

		result.Records = append(result.Records, rec)
		if inferred {
			result.Report.InferredRows++
		}
		if flagged != nil {
			result.Flagged = append(result.Flagged, *flagged)
		}
	}

	result.Report.CleanedRows = len(result.Records)
	result.Report.FlaggedRows = len(result.Flagged)
	result.Report.FinishedAt = time.Now().UTC()

	log.Info("builder: cleaning complete",
		zap.String("run_id", result.Report.RunID),
		zap.Int("total_rows", len(rows)),
		zap.Int("cleaned", result.Report.CleanedRows),
		zap.Int("flagged", result.Report.FlaggedRows),
		zap.Int("inferred", result.Report.InferredRows),
		zap.Int("skipped", result.Report.SkippedRows),
		zap.Float64("completeness", quality.CompletenessScore),
	)

	return result, nil
}

// cleanRow processes one raw row: normalize, infer, then score against the
// post-clean record. Unexpected panics are converted to an error so the
// batch survives isolated malformed input.
func (b *Builder) cleanRow(row model.RawRow, inference *InferenceMap) (rec model.BudgetRecord, flagged *model.FlaggedRow, inferred bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = eris.Errorf("row %d: %v", row.SourceRowID, r)
		}
	}()

	n := b.norm.Normalize(row)
	inferred = inference.FillService(n)

	// Recompute issues against the post-clean record: inference may have
	// resolved some.
	issues := describeIssues(n)
	flawed := make([]model.Field, 0, len(n.Flawed))
	for f, bad := range n.Flawed {
		if bad {
			flawed = append(flawed, f)
		}
	}

	rec = n.Record
	rec.QualityScore = model.ComputeQualityScore(flawed)
	rec.HasIssues = rec.QualityScore < 100
	rec.IssueDescription = strings.Join(issues, "; ")
	rec.RowHash = model.ComputeRowHash(rec.Year, rec.Program, rec.Service, rec.Activity, rec.Amount)

	if len(n.Flags) > 0 || len(flawed) > 0 {
		flagged = &model.FlaggedRow{
			SourceRowID: row.SourceRowID,
			Original:    row.Values,
			Cleaned:     rec,
			Issues:      issues,
			Actions:     n.Actions,
		}
	}
	return rec, flagged, inferred, nil
}

// flagDescriptions maps normalizer flags to human-readable issue text.
var flagDescriptions = map[model.CleanFlag]string{
	model.FlagInvalidYear:       "year out of accepted range",
	model.FlagUnparseableYear:   "unparseable year",
	model.FlagUnparseableAmount: "unparseable amount",
	model.FlagMissingAmount:     "missing amount",
	model.FlagSuspiciousAmount:  "suspiciously large amount",
	model.FlagSignMismatch:      "amount sign disagreed with Expense/Revenue tag",
}

// describeIssues builds the human-readable issue list from flags plus any
// flawed fields the flags do not already describe.
func describeIssues(n *Normalized) []string {
	var issues []string
	covered := make(map[model.Field]bool)

	for _, flag := range n.Flags {
		if desc, ok := flagDescriptions[flag]; ok {
			issues = append(issues, desc)
		}
		switch flag {
		case model.FlagInvalidYear, model.FlagUnparseableYear:
			covered[model.FieldYear] = true
		case model.FlagUnparseableAmount, model.FlagMissingAmount:
			covered[model.FieldAmount] = true
		}
	}

	// Stable field order for deterministic descriptions.
	for _, f := range []model.Field{model.FieldYear, model.FieldProgram, model.FieldService, model.FieldActivity, model.FieldAmount} {
		if n.Flawed[f] && !covered[f] {
			issues = append(issues, fmt.Sprintf("missing %s", f))
		}
	}
	return issues
}
