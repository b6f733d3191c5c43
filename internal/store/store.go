// Package store persists the cleaned budget dataset into an indexed,
// queryable store and serves schema context to the query engine.
package store

import (
	"context"
	"strings"

	"github.com/civicdata/budget-cli/internal/model"
)

// Stats summarizes the loaded dataset. It is injected into every translator
// prompt so the language model knows what the data can answer.
type Stats struct {
	TotalRecords   int     `json:"total_records"`
	MinYear        int     `json:"min_year"`
	MaxYear        int     `json:"max_year"`
	UniquePrograms int     `json:"unique_programs"`
	UniqueServices int     `json:"unique_services"`
	TotalExpenses  float64 `json:"total_expenses"`
	TotalRevenue   float64 `json:"total_revenue"`
}

// SampleQuery is a seeded question/SQL pair used as few-shot context for the
// translator.
type SampleQuery struct {
	Question    string `json:"question"`
	SQL         string `json:"sql"`
	Description string `json:"description"`
}

// Store is the persistence interface for the budget dataset. The store is
// written once at ingest time and read-only at request time; reload is a
// full rebuild, and the row_hash uniqueness constraint makes repeated loads
// idempotent (last write wins).
type Store interface {
	// Loading (ingest time).
	LoadRecords(ctx context.Context, records []model.BudgetRecord) (int, error)
	WriteQualitySummary(ctx context.Context, report *model.LoadReport) error
	SetMetadata(ctx context.Context, key, value string) error
	SeedSampleQueries(ctx context.Context, samples []SampleQuery) error

	// Context (query time).
	GetMetadata(ctx context.Context, key string) (string, error)
	Stats(ctx context.Context) (*Stats, error)
	Programs(ctx context.Context, limit int) ([]string, error)
	SampleQueries(ctx context.Context) ([]SampleQuery, error)

	// Query executes a guarded read-only statement and returns the typed
	// result set.
	Query(ctx context.Context, sql string) (*model.ResultSet, error)

	// Lifecycle.
	Migrate(ctx context.Context) error
	Close() error
}

// Metadata keys written at load time.
const (
	MetaSourceFile   = "data_source"
	MetaYearsCovered = "years_covered"
	MetaLastUpdated  = "last_updated"
	MetaTotalRecords = "total_records"
)

// DefaultSampleQueries seeds the sample_queries table on first load. These
// pairs double as few-shot examples in the translator prompt.
var DefaultSampleQueries = []SampleQuery{
	{
		Question:    "What was the total budget for 2024?",
		SQL:         "SELECT SUM(ABS(amount)) AS total_budget FROM budget_data WHERE year = 2024",
		Description: "Calculate total budget (all expenses and revenues) for a specific year",
	},
	{
		Question:    "How much was spent on police in 2023?",
		SQL:         "SELECT SUM(amount) AS police_spending FROM budget_data WHERE year = 2023 AND program LIKE '%Police%' AND amount > 0",
		Description: "Find police-related expenses for a specific year",
	},
	{
		Question:    "Show me the budget trend for fire services over the years",
		SQL:         "SELECT year, SUM(amount) AS total_amount FROM budget_data WHERE program LIKE '%Fire%' AND amount > 0 GROUP BY year ORDER BY year",
		Description: "Analyze spending trends for a specific program over time",
	},
	{
		Question:    "What are the top 5 programs by spending in 2024?",
		SQL:         "SELECT program, SUM(amount) AS total_spending FROM budget_data WHERE year = 2024 AND amount > 0 GROUP BY program ORDER BY total_spending DESC LIMIT 5",
		Description: "Rank programs by total spending for a specific year",
	},
	{
		Question:    "How much revenue was collected in 2023?",
		SQL:         "SELECT SUM(ABS(amount)) AS total_revenue FROM budget_data WHERE year = 2023 AND amount < 0",
		Description: "Calculate total revenue (negative amounts represent income)",
	},
}

// classifyColumn assigns a declared semantic to a result column from its
// name and a sample value. Name matching mirrors the Visualization Advisor's
// fallback heuristic so both layers agree on what "amount-like" means.
func classifyColumn(name string, sample any) model.ColumnKind {
	lower := normalizeName(name)
	if containsAny(lower, []string{"year"}) {
		return model.KindYear
	}
	if containsAny(lower, []string{"amount", "total", "spending", "revenue", "budget", "expense"}) {
		return model.KindAmount
	}
	switch sample.(type) {
	case string, []byte:
		return model.KindLabel
	default:
		return model.KindOther
	}
}

func normalizeName(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
