package engine

import (
	"context"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/civicdata/budget-cli/internal/model"
	"github.com/civicdata/budget-cli/internal/monitoring"
	"github.com/civicdata/budget-cli/internal/store"
)

// exampleQuestions is shown whenever a question cannot be answered, so the
// caller's fallback UX stays simple.
var exampleQuestions = []string{
	"What was the total budget in 2024?",
	"How much was spent on police?",
	"Show me fire department spending trends",
	"Top 5 programs by spending in 2023",
	"Total revenue in 2024",
}

const schemaContextKey = "schema_context"

// QueryInfo describes the executed (or rejected) translation.
type QueryInfo struct {
	SQL        string          `json:"sql"`
	Type       model.QueryType `json:"type"`
	Confidence float64         `json:"confidence"`
}

// ResponseMeta carries execution bookkeeping for the caller.
type ResponseMeta struct {
	TotalRows  int   `json:"total_rows"`
	DurationMS int64 `json:"duration_ms"`
}

// Response is the single shape every question resolves to. Failure paths
// populate Error/Suggestion/Examples instead of raising.
type Response struct {
	Success       bool                       `json:"success"`
	Answer        string                     `json:"answer,omitempty"`
	Data          []map[string]any           `json:"data,omitempty"`
	Columns       []model.Column             `json:"columns,omitempty"`
	Query         *QueryInfo                 `json:"query,omitempty"`
	Visualization *model.ChartRecommendation `json:"visualization,omitempty"`
	Error         string                     `json:"error,omitempty"`
	Suggestion    string                     `json:"suggestion,omitempty"`
	Examples      []string                   `json:"examples,omitempty"`
	Metadata      *ResponseMeta              `json:"metadata,omitempty"`
}

// Service owns the full question pipeline: translate, gate, guard,
// execute, then visualization advice and narrative in parallel.
type Service struct {
	store      store.Store
	translator *Translator
	narrator   *Narrator
	threshold  float64
	ctxCache   *gocache.Cache
}

// NewService wires the pipeline. The schema context (stats, programs,
// sample queries) is cached for ctxTTL so repeated questions do not
// re-query the store.
func NewService(st store.Store, translator *Translator, narrator *Narrator, threshold float64, ctxTTL time.Duration) *Service {
	if threshold <= 0 {
		threshold = 0.5
	}
	return &Service{
		store:      st,
		translator: translator,
		narrator:   narrator,
		threshold:  threshold,
		ctxCache:   gocache.New(ctxTTL, 2*ctxTTL),
	}
}

// Ask answers a natural-language question about the loaded budget data.
// It always returns a Response; pipeline failures degrade to structured
// error branches rather than propagating.
func (s *Service) Ask(ctx context.Context, question string) *Response {
	start := time.Now()
	resp := s.ask(ctx, question)
	resp.ensureMeta().DurationMS = time.Since(start).Milliseconds()
	monitoring.ObserveQuestion(resp.Success, outcomeLabel(resp), time.Since(start))
	return resp
}

func (s *Service) ask(ctx context.Context, question string) *Response {
	sctx, err := s.schemaContext(ctx)
	if err != nil {
		zap.L().Error("ask: build schema context", zap.Error(err))
		return &Response{
			Success:    false,
			Error:      "Internal error",
			Suggestion: "Please try again; the dataset context could not be loaded.",
		}
	}

	candidate, err := s.translator.Translate(ctx, question, sctx)
	if err != nil {
		zap.L().Warn("ask: translation failed", zap.String("question", question), zap.Error(err))
		return &Response{
			Success:    false,
			Error:      "Translation failed",
			Suggestion: "Please try asking a simpler question about the budget.",
			Examples:   exampleQuestions,
		}
	}

	queryInfo := &QueryInfo{SQL: candidate.SQL, Type: candidate.Type, Confidence: candidate.Confidence}
	monitoring.TranslationConfidence.Observe(candidate.Confidence)

	// Confidence gate: a low-confidence translation is terminal for this
	// request, the caller must resubmit a clarified question.
	if candidate.Confidence < s.threshold {
		zap.L().Info("ask: low confidence translation",
			zap.String("question", question),
			zap.Float64("confidence", candidate.Confidence))
		return &Response{
			Success:    false,
			Error:      "Question unclear",
			Suggestion: candidate.Answer,
			Examples:   exampleQuestions,
			Query:      queryInfo,
		}
	}

	if err := Guard(candidate.SQL); err != nil {
		zap.L().Warn("ask: guard rejection",
			zap.String("sql", candidate.SQL), zap.Error(err))
		return &Response{
			Success:    false,
			Error:      eris.Cause(err).Error(),
			Suggestion: "Ask a read-only question about budget, spending, or revenue.",
			Query:      queryInfo,
		}
	}

	rs, err := s.store.Query(ctx, candidate.SQL)
	if err != nil {
		zap.L().Warn("ask: execution failed",
			zap.String("sql", candidate.SQL), zap.Error(err))
		return &Response{
			Success:    false,
			Error:      "Query execution failed",
			Suggestion: "Try rephrasing your question or ask about budget, spending, or revenue.",
			Query:      queryInfo,
		}
	}

	if rs.Len() == 0 {
		return &Response{
			Success:  true,
			Answer:   "No data found matching your query. Try asking about a different time period or department.",
			Query:    queryInfo,
			Metadata: &ResponseMeta{TotalRows: 0},
		}
	}

	// Visualization advice and the narrative depend only on the executed
	// result and run concurrently.
	var (
		rec       model.ChartRecommendation
		narrative string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rec = Recommend(question, candidate.Type, rs)
		return nil
	})
	g.Go(func() error {
		narrative = s.narrator.Narrate(gctx, question, candidate.SQL, rs)
		return nil
	})
	g.Wait() //nolint:errcheck

	answer := fmt.Sprintf("%s\n\nBased on %d records found.", narrative, rs.Len())

	return &Response{
		Success:       true,
		Answer:        answer,
		Data:          rs.Rows,
		Columns:       rs.Columns,
		Query:         queryInfo,
		Visualization: &rec,
		Metadata:      &ResponseMeta{TotalRows: rs.Len()},
	}
}

// schemaContext assembles (and caches) the dataset facts for the prompt.
func (s *Service) schemaContext(ctx context.Context) (SchemaContext, error) {
	if cached, ok := s.ctxCache.Get(schemaContextKey); ok {
		return cached.(SchemaContext), nil
	}

	stats, err := s.store.Stats(ctx)
	if err != nil {
		return SchemaContext{}, eris.Wrap(err, "schema context: stats")
	}
	programs, err := s.store.Programs(ctx, 10)
	if err != nil {
		return SchemaContext{}, eris.Wrap(err, "schema context: programs")
	}
	samples, err := s.store.SampleQueries(ctx)
	if err != nil {
		return SchemaContext{}, eris.Wrap(err, "schema context: sample queries")
	}

	sctx := SchemaContext{Stats: stats, SamplePrograms: programs, SampleQueries: samples}
	s.ctxCache.Set(schemaContextKey, sctx, gocache.DefaultExpiration)
	return sctx, nil
}

func (r *Response) ensureMeta() *ResponseMeta {
	if r.Metadata == nil {
		r.Metadata = &ResponseMeta{}
	}
	return r.Metadata
}

func outcomeLabel(r *Response) string {
	if r.Success {
		return "answered"
	}
	switch r.Error {
	case "Question unclear":
		return "low_confidence"
	case "Query execution failed":
		return "execution_failed"
	case "Translation failed":
		return "translation_failed"
	default:
		if len(r.Error) >= 5 && r.Error[:5] == "guard" {
			return "guard_rejected"
		}
		return "error"
	}
}
