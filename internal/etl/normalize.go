// Package etl implements the CSV cleaning, validation, and loading pipeline
// that turns a raw municipal budget export into a normalized, queryable
// dataset.
package etl

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/civicdata/budget-cli/internal/model"
)

// Source column names, fixed by the upstream open-data export.
const (
	ColYear           = "Year"
	ColProgram        = "Program"
	ColService        = "Service"
	ColActivity       = "Activity"
	ColAmount         = "Amount"
	ColExpenseRevenue = "Expense/Revenue"
	ColCategory       = "Category Name"
	ColSubCategory    = "Sub-Category Name"
	ColCommitmentItem = "Commitment item"
)

// RequiredColumns must all be present in the source header.
var RequiredColumns = []string{
	ColYear, ColProgram, ColService, ColActivity,
	ColExpenseRevenue, ColCategory, ColSubCategory, ColCommitmentItem,
	ColAmount,
}

// Config holds the tunable validation bounds for the pipeline.
type Config struct {
	YearMin          int     // inclusive lower bound for plausible years
	YearMax          int     // inclusive upper bound
	SuspiciousAmount float64 // absolute magnitude beyond which an amount is flagged
}

// DefaultConfig returns the bounds for the current dataset's domain.
func DefaultConfig() Config {
	return Config{
		YearMin:          2015,
		YearMax:          2030,
		SuspiciousAmount: 1e9,
	}
}

// Normalized is the outcome of cleaning one raw row: a best-effort record,
// the transformations applied, and the problems found. Quality scoring is the
// builder's job, after inference has had a chance to fill gaps.
type Normalized struct {
	Record  model.BudgetRecord
	Actions []model.CleanAction
	Flags   []model.CleanFlag

	// Flawed marks fields that are missing or invalid pre-inference.
	Flawed map[model.Field]bool
}

// Normalizer parses one raw row into a typed BudgetRecord, repairing and
// flagging individual fields. It never fails on malformed input.
type Normalizer struct {
	cfg    Config
	titler cases.Caser
}

// NewNormalizer creates a Normalizer with the given validation bounds.
func NewNormalizer(cfg Config) *Normalizer {
	return &Normalizer{
		cfg:    cfg,
		titler: cases.Title(language.English),
	}
}

var yearRun = regexp.MustCompile(`\d{4}`)

// amountJunk strips currency symbols, thousands separators, spaces, and
// parentheses before numeric parsing.
var amountJunk = strings.NewReplacer("$", "", ",", "", " ", "", "(", "", ")", "", "\"", "")

// Normalize cleans one raw row. The returned record always carries the
// source row id and raw amount string for auditability.
func (n *Normalizer) Normalize(row model.RawRow) *Normalized {
	out := &Normalized{
		Flawed: make(map[model.Field]bool),
	}
	out.Record.SourceRowID = row.SourceRowID

	n.normalizeYear(row, out)
	out.Record.Program = n.normalizeName(row, ColProgram, model.FieldProgram, out, true)
	out.Record.Service = n.normalizeName(row, ColService, model.FieldService, out, true)
	out.Record.Activity = n.normalizeName(row, ColActivity, model.FieldActivity, out, false)
	n.normalizeAmount(row, out)

	return out
}

func (n *Normalizer) normalizeYear(row model.RawRow, out *Normalized) {
	raw := strings.TrimSpace(row.Get(ColYear))
	if model.IsAbsent(raw) {
		out.Flawed[model.FieldYear] = true
		return
	}

	// Take the first 4-digit run so values like "FY 2023" still parse.
	match := yearRun.FindString(raw)
	if match == "" {
		out.Flags = append(out.Flags, model.FlagUnparseableYear)
		out.Flawed[model.FieldYear] = true
		return
	}

	year := 0
	for _, c := range match {
		year = year*10 + int(c-'0')
	}
	if year < n.cfg.YearMin || year > n.cfg.YearMax {
		// Out-of-range years are reported, never silently repaired.
		out.Flags = append(out.Flags, model.FlagInvalidYear)
		out.Flawed[model.FieldYear] = true
		return
	}

	if match != raw {
		out.Actions = append(out.Actions, model.CleanAction{
			Field: model.FieldYear, Action: "extracted year from " + quote(raw),
		})
	}
	out.Record.Year = year
}

// normalizeName trims a display string field and optionally standardizes its
// casing. Program and Service are title-cased; Activity is kept as written.
func (n *Normalizer) normalizeName(row model.RawRow, col string, field model.Field, out *Normalized, titleCase bool) string {
	raw := row.Get(col)
	if model.IsAbsent(raw) {
		out.Flawed[field] = true
		return ""
	}

	cleaned := strings.TrimSpace(raw)
	if cleaned != raw {
		out.Actions = append(out.Actions, model.CleanAction{Field: field, Action: "trimmed whitespace"})
	}

	if titleCase {
		cased := n.titler.String(cleaned)
		if cased != cleaned {
			out.Actions = append(out.Actions, model.CleanAction{Field: field, Action: "standardized casing"})
			cleaned = cased
		}
	}
	return cleaned
}

func (n *Normalizer) normalizeAmount(row model.RawRow, out *Normalized) {
	raw := row.Get(ColAmount)
	out.Record.AmountRaw = raw

	trimmed := strings.TrimSpace(raw)
	if model.IsAbsent(trimmed) {
		// Absence is flagged, never defaulted to zero.
		out.Flags = append(out.Flags, model.FlagMissingAmount)
		out.Flawed[model.FieldAmount] = true
		return
	}

	// Accounting-style parentheses mark negative values and win over any
	// embedded minus sign.
	negative := strings.Contains(trimmed, "(") && strings.Contains(trimmed, ")")

	cleaned := amountJunk.Replace(trimmed)
	dec, err := decimal.NewFromString(cleaned)
	if err != nil {
		out.Flags = append(out.Flags, model.FlagUnparseableAmount)
		out.Flawed[model.FieldAmount] = true
		return
	}

	// The parsed value keeps its own sign; parentheses force negative.
	amt := dec.InexactFloat64()
	if negative {
		amt = -abs(amt)
	}

	// The Expense/Revenue tag, when present and unambiguous, is
	// authoritative for the sign convention (positive = expense,
	// negative = revenue).
	if tag, ok := expenseRevenueTag(row.Get(ColExpenseRevenue)); ok {
		signed := abs(amt)
		if tag == tagRevenue {
			signed = -signed
		}
		if signed != amt {
			out.Flags = append(out.Flags, model.FlagSignMismatch)
			out.Actions = append(out.Actions, model.CleanAction{
				Field: model.FieldAmount, Action: "normalized sign from Expense/Revenue tag",
			})
			amt = signed
		}
	}

	if n.cfg.SuspiciousAmount > 0 && abs(amt) > n.cfg.SuspiciousAmount {
		out.Flags = append(out.Flags, model.FlagSuspiciousAmount)
	}

	out.Record.Amount = &amt
}

type revenueTag int

const (
	tagExpense revenueTag = iota
	tagRevenue
)

// expenseRevenueTag normalizes the Expense/Revenue column. Returns ok=false
// when the value is absent or ambiguous.
func expenseRevenueTag(v string) (revenueTag, bool) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "expense", "expenses":
		return tagExpense, true
	case "revenue", "revenues":
		return tagRevenue, true
	}
	return 0, false
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

// quote wraps a raw value for inclusion in a cleaning-action note.
func quote(s string) string {
	return `"` + s + `"`
}
