// Package engine turns natural-language questions about the budget dataset
// into guarded SQL, executes them, and composes the user-facing answer.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/civicdata/budget-cli/internal/model"
	"github.com/civicdata/budget-cli/internal/resilience"
	"github.com/civicdata/budget-cli/internal/store"
	"github.com/civicdata/budget-cli/pkg/anthropic"
)

const schemaDDL = `-- Budget Database Schema
CREATE TABLE budget_data (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  year INTEGER,           -- Budget year
  program TEXT,           -- Government program/department (e.g., "Toronto Police Service")
  service TEXT,           -- Specific service within program
  activity TEXT,          -- Specific activity within service
  amount REAL,            -- Dollar amount (positive = expenses, negative = revenue)
  amount_raw TEXT,        -- Original amount string from CSV
  data_quality_score INTEGER, -- 0-100 cleaning score
  has_issues INTEGER,     -- 1 if the row was flagged during cleaning
  created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);`

const queryExamples = `-- Common query patterns:

-- 1. Total budget for a year
SELECT SUM(ABS(amount)) as total_budget FROM budget_data WHERE year = 2024;

-- 2. Program spending (expenses only)
SELECT SUM(amount) as spending FROM budget_data
WHERE program LIKE '%Police%' AND amount > 0 AND year = 2024;

-- 3. Revenue sources (negative amounts)
SELECT program, SUM(ABS(amount)) as revenue FROM budget_data
WHERE amount < 0 AND year = 2024 GROUP BY program ORDER BY revenue DESC;

-- 4. Year-over-year trends
SELECT year, SUM(amount) as total FROM budget_data
WHERE program LIKE '%Fire%' AND amount > 0
GROUP BY year ORDER BY year;

-- 5. Top programs by spending
SELECT program, SUM(amount) as total_spending FROM budget_data
WHERE amount > 0 AND year = 2024
GROUP BY program ORDER BY total_spending DESC LIMIT 10;

-- Important notes:
-- - Positive amounts = expenses/spending
-- - Negative amounts = revenue/income
-- - Use ABS() for total budget calculations
-- - Use LIKE with % for partial text matching
-- - Always filter by year for specific year queries`

const translateRules = `RULES:
1. Only SELECT queries - no INSERT, UPDATE, DELETE, DROP
2. Table name: budget_data
3. Positive amounts = expenses, negative amounts = revenue
4. Use LIKE '%keyword%' for case-insensitive text search
5. Include GROUP BY with aggregations
6. query_type is one of: summary, trend, comparison, ranking, specific
7. Set confidence < 0.5 only if the question is completely unclear`

const translateUserPrompt = `Question: %s

Generate SQL to answer this and provide a clear response with specific data.
Respond with a valid JSON object: {"sql": "...", "answer": "...", "query_type": "...", "confidence": <0.0-1.0>}`

// SchemaContext carries the live dataset facts injected into each
// translation prompt so the model grounds its SQL in real data.
type SchemaContext struct {
	Stats          *store.Stats
	SamplePrograms []string
	SampleQueries  []store.SampleQuery
}

// Translator converts a question into a CandidateQuery via the LLM.
type Translator struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	timeout   time.Duration
	limiter   *rate.Limiter
}

// NewTranslator creates a Translator. ratePerMin bounds outbound API calls.
func NewTranslator(client anthropic.Client, llmModel string, maxTokens int64, timeout time.Duration, ratePerMin int) *Translator {
	if ratePerMin <= 0 {
		ratePerMin = 50
	}
	return &Translator{
		client:    client,
		model:     llmModel,
		maxTokens: maxTokens,
		timeout:   timeout,
		limiter:   rate.NewLimiter(rate.Limit(float64(ratePerMin)/60.0), ratePerMin),
	}
}

// translationResult mirrors the JSON shape the prompt demands.
type translationResult struct {
	SQL        string  `json:"sql"`
	Answer     string  `json:"answer"`
	QueryType  string  `json:"query_type"`
	Confidence float64 `json:"confidence"`
}

// Translate asks the model for a SQL rendering of the question. It never
// executes anything; confidence gating and guarding happen in the caller.
func (t *Translator) Translate(ctx context.Context, question string, sctx SchemaContext) (*model.CandidateQuery, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "translate: rate limit wait")
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	req := anthropic.MessageRequest{
		Model:     t.model,
		MaxTokens: t.maxTokens,
		System:    anthropic.BuildCachedSystemBlocks(t.systemPrompt(sctx)),
		Messages: []anthropic.Message{
			{Role: "user", Content: fmt.Sprintf(translateUserPrompt, question)},
		},
	}

	retryCfg := resilience.DefaultRetryConfig()
	retryCfg.OnRetry = resilience.RetryLogger("anthropic", "translate")
	resp, err := resilience.DoVal(ctx, retryCfg, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return t.client.CreateMessage(ctx, req)
	})
	if err != nil {
		return nil, eris.Wrap(err, "translate: create message")
	}
	resp.Usage.LogCost(t.model, "translate")

	var result translationResult
	raw := cleanJSON(resp.FirstText())
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return nil, eris.Wrapf(err, "translate: parse response %q", raw)
	}
	if strings.TrimSpace(result.SQL) == "" {
		return nil, eris.New("translate: empty sql in response")
	}

	qt := model.QueryType(result.QueryType)
	if !model.ValidQueryType(qt) {
		zap.L().Warn("translate: unknown query type, defaulting to specific",
			zap.String("query_type", result.QueryType))
		qt = model.QueryTypeSpecific
	}

	return &model.CandidateQuery{
		SQL:        strings.TrimSpace(result.SQL),
		Answer:     result.Answer,
		Type:       qt,
		Confidence: result.Confidence,
	}, nil
}

// systemPrompt assembles the full schema-aware translation context.
func (t *Translator) systemPrompt(sctx SchemaContext) string {
	var b strings.Builder
	b.WriteString("You are a municipal budget data analyst. Generate a SQL query and provide a direct answer.\n\n")
	b.WriteString(schemaDDL)
	b.WriteString("\n\n")
	b.WriteString(queryExamples)
	b.WriteString("\n\n")

	if sctx.Stats != nil {
		fmt.Fprintf(&b, "Database Statistics:\n")
		fmt.Fprintf(&b, "- Records: %d\n", sctx.Stats.TotalRecords)
		fmt.Fprintf(&b, "- Years: %d-%d\n", sctx.Stats.MinYear, sctx.Stats.MaxYear)
		fmt.Fprintf(&b, "- Programs: %d\n", sctx.Stats.UniquePrograms)
		fmt.Fprintf(&b, "- Total Expenses: $%.0f\n\n", sctx.Stats.TotalExpenses)
	}

	if len(sctx.SamplePrograms) > 0 {
		b.WriteString("Available Programs (sample):\n")
		for _, p := range sctx.SamplePrograms {
			fmt.Fprintf(&b, "- %s\n", p)
		}
		b.WriteString("\n")
	}

	if len(sctx.SampleQueries) > 0 {
		b.WriteString("Example question-to-SQL mappings:\n")
		for _, sq := range sctx.SampleQueries {
			fmt.Fprintf(&b, "-- Q: %s\n%s\n", sq.Question, sq.SQL)
		}
		b.WriteString("\n")
	}

	b.WriteString(translateRules)
	return b.String()
}

// cleanJSON strips markdown code fences and surrounding prose from a model
// response, leaving the outermost JSON object.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}

	return strings.TrimSpace(text)
}
