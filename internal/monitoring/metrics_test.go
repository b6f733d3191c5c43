package monitoring

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveQuestion_SuccessLabel(t *testing.T) {
	before := testutil.ToFloat64(QuestionTotal.WithLabelValues("answered", "true"))
	beforeFailed := testutil.ToFloat64(QuestionTotal.WithLabelValues("guard_rejected", "false"))

	ObserveQuestion(true, "answered", 200*time.Millisecond)
	ObserveQuestion(false, "guard_rejected", 50*time.Millisecond)

	assert.Equal(t, before+1, testutil.ToFloat64(QuestionTotal.WithLabelValues("answered", "true")))
	assert.Equal(t, beforeFailed+1, testutil.ToFloat64(QuestionTotal.WithLabelValues("guard_rejected", "false")))
}

func TestObserveIngest_Dispositions(t *testing.T) {
	cleaned := testutil.ToFloat64(RowsIngested.WithLabelValues("cleaned"))
	flagged := testutil.ToFloat64(RowsIngested.WithLabelValues("flagged"))
	skipped := testutil.ToFloat64(RowsIngested.WithLabelValues("skipped"))

	ObserveIngest(10, 2, 1, time.Second)

	assert.Equal(t, cleaned+10, testutil.ToFloat64(RowsIngested.WithLabelValues("cleaned")))
	assert.Equal(t, flagged+2, testutil.ToFloat64(RowsIngested.WithLabelValues("flagged")))
	assert.Equal(t, skipped+1, testutil.ToFloat64(RowsIngested.WithLabelValues("skipped")))
}
