// Package monitoring exposes Prometheus metrics for the ingest and
// query pipelines.
package monitoring

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	QuestionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "budget_question_duration_seconds",
			Help:    "End-to-end question processing duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"outcome"},
	)

	QuestionTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "budget_question_total",
			Help: "Total questions processed, by outcome and success",
		},
		[]string{"outcome", "success"},
	)

	TranslationConfidence = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "budget_translation_confidence",
			Help:    "Translator-reported confidence scores",
			Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
		},
	)

	RowsIngested = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "budget_rows_ingested_total",
			Help: "Rows processed by the ETL pipeline, by disposition",
		},
		[]string{"disposition"},
	)

	IngestDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "budget_ingest_duration_seconds",
			Help:    "Full ETL run duration in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300},
		},
	)
)

func init() {
	prometheus.MustRegister(QuestionDuration)
	prometheus.MustRegister(QuestionTotal)
	prometheus.MustRegister(TranslationConfidence)
	prometheus.MustRegister(RowsIngested)
	prometheus.MustRegister(IngestDuration)
}

// ObserveQuestion records one completed question.
func ObserveQuestion(success bool, outcome string, elapsed time.Duration) {
	QuestionTotal.WithLabelValues(outcome, strconv.FormatBool(success)).Inc()
	QuestionDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

// ObserveIngest records one completed ETL run.
func ObserveIngest(cleaned, flagged, skipped int, elapsed time.Duration) {
	RowsIngested.WithLabelValues("cleaned").Add(float64(cleaned))
	RowsIngested.WithLabelValues("flagged").Add(float64(flagged))
	RowsIngested.WithLabelValues("skipped").Add(float64(skipped))
	IngestDuration.Observe(elapsed.Seconds())
}

// Handler serves the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
