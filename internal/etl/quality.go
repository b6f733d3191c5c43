package etl

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/civicdata/budget-cli/internal/model"
)

// fieldColumns maps canonical record fields to their source columns.
var fieldColumns = map[model.Field]string{
	model.FieldYear:     ColYear,
	model.FieldProgram:  ColProgram,
	model.FieldService:  ColService,
	model.FieldActivity: ColActivity,
	model.FieldAmount:   ColAmount,
}

// AnalyzeQuality scans the full raw dataset before cleaning and produces a
// QualityReport. It is read-only and deterministic; "example" fields use
// first-encountered order.
func AnalyzeQuality(rows []model.RawRow, cfg Config) *model.QualityReport {
	report := &model.QualityReport{
		TotalRows: len(rows),
		FieldGaps: make(map[model.Field]*model.FieldGap, len(fieldColumns)),
		SeverityRows: map[model.Severity]int{
			model.SeverityNone:     0,
			model.SeverityMinor:    0,
			model.SeverityCritical: 0,
		},
		GeneratedAt: time.Now().UTC(),
	}
	for f := range fieldColumns {
		report.FieldGaps[f] = &model.FieldGap{}
	}

	// Duplicate detection keys on the full raw row, not just key fields.
	firstSeen := make(map[string]int, len(rows))

	for _, row := range rows {
		severity := model.SeverityNone

		for field, col := range fieldColumns {
			gap := report.FieldGaps[field]
			switch classifyGap(row, col) {
			case gapMissing:
				gap.Missing++
				gap.AddExample(row.SourceRowID)
			case gapEmpty:
				gap.Empty++
				gap.AddExample(row.SourceRowID)
			default:
				continue
			}
			if isCritical(field) {
				severity = model.SeverityCritical
			} else if severity == model.SeverityNone {
				severity = model.SeverityMinor
			}
		}

		// Validation rules only downgrade a clean row to minor.
		if severity == model.SeverityNone && violatesValidation(row, cfg) {
			severity = model.SeverityMinor
		}

		if amtRaw, amt, ok := parseAmountLoose(row.Get(ColAmount)); ok && cfg.SuspiciousAmount > 0 && math.Abs(amt) > cfg.SuspiciousAmount {
			report.Suspicious = append(report.Suspicious, model.SuspiciousValue{
				SourceRowID: row.SourceRowID,
				Field:       model.FieldAmount,
				Value:       amtRaw,
				Reason:      fmt.Sprintf("magnitude exceeds %.0f", cfg.SuspiciousAmount),
			})
		}

		key := rowKey(row)
		if canonical, dup := firstSeen[key]; dup {
			report.Duplicates = append(report.Duplicates, model.DuplicateRow{
				SourceRowID: row.SourceRowID,
				FirstSeenID: canonical,
			})
		} else {
			firstSeen[key] = row.SourceRowID
		}

		report.SeverityRows[severity]++
	}

	if report.TotalRows > 0 {
		perfect := report.SeverityRows[model.SeverityNone]
		critical := report.SeverityRows[model.SeverityCritical]
		report.CompletenessScore = round2(float64(perfect) / float64(report.TotalRows) * 100)
		report.CriticalFieldsScore = round2(float64(report.TotalRows-critical) / float64(report.TotalRows) * 100)
	}

	return report
}

type gapKind int

const (
	gapNone gapKind = iota
	gapMissing
	gapEmpty
)

// classifyGap distinguishes a missing value (column absent or an explicit
// null token) from an empty one (present but blank).
func classifyGap(row model.RawRow, col string) gapKind {
	v, ok := row.Values[col]
	if !ok {
		return gapMissing
	}
	trimmed := strings.TrimSpace(v)
	if trimmed == "" {
		return gapEmpty
	}
	if model.IsAbsent(trimmed) {
		return gapMissing
	}
	return gapNone
}

func isCritical(field model.Field) bool {
	for _, f := range model.CriticalFields {
		if f == field {
			return true
		}
	}
	return false
}

// violatesValidation checks the year-range and amount-magnitude rules
// against the raw values.
func violatesValidation(row model.RawRow, cfg Config) bool {
	if raw := strings.TrimSpace(row.Get(ColYear)); !model.IsAbsent(raw) {
		match := yearRun.FindString(raw)
		if match == "" {
			return true
		}
		year := 0
		for _, c := range match {
			year = year*10 + int(c-'0')
		}
		if year < cfg.YearMin || year > cfg.YearMax {
			return true
		}
	}
	if _, amt, ok := parseAmountLoose(row.Get(ColAmount)); ok {
		if cfg.SuspiciousAmount > 0 && math.Abs(amt) > cfg.SuspiciousAmount {
			return true
		}
	}
	return false
}

// parseAmountLoose parses a raw amount for reporting purposes only, without
// flag bookkeeping. Returns the trimmed raw string alongside the value.
func parseAmountLoose(raw string) (string, float64, bool) {
	trimmed := strings.TrimSpace(raw)
	if model.IsAbsent(trimmed) {
		return trimmed, 0, false
	}
	negative := strings.Contains(trimmed, "(") && strings.Contains(trimmed, ")")
	dec, err := decimal.NewFromString(amountJunk.Replace(trimmed))
	if err != nil {
		return trimmed, 0, false
	}
	amt := dec.InexactFloat64()
	if negative {
		amt = -math.Abs(amt)
	}
	return trimmed, amt, true
}

// rowKey builds the structural-equality key for duplicate detection.
func rowKey(row model.RawRow) string {
	parts := make([]string, 0, len(row.Columns))
	for _, col := range row.Columns {
		parts = append(parts, row.Values[col])
	}
	return strings.Join(parts, "\x1f")
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
