package etl

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civicdata/budget-cli/internal/model"
)

func TestBuilder_CleanDataset(t *testing.T) {
	b := NewBuilder(DefaultConfig())

	result, err := b.Build(context.Background(), []model.RawRow{rawRow(1, baseValues())})
	require.NoError(t, err)

	require.Len(t, result.Records, 1)
	rec := result.Records[0]
	assert.Equal(t, 2023, rec.Year)
	assert.Equal(t, "Toronto Police Service", rec.Program)
	assert.Equal(t, 100, rec.QualityScore)
	assert.False(t, rec.HasIssues)
	assert.Empty(t, rec.IssueDescription)
	assert.NotEmpty(t, rec.RowHash)

	assert.Empty(t, result.Flagged)
	assert.Equal(t, 1, result.Report.CleanedRows)
	assert.Equal(t, 0, result.Report.FlaggedRows)
	require.NotNil(t, result.Report.Quality)
	assert.False(t, result.Report.FinishedAt.Before(result.Report.StartedAt))
}

func TestBuilder_FlagDontDiscard(t *testing.T) {
	b := NewBuilder(DefaultConfig())

	flawed := baseValues()
	flawed[ColAmount] = "not a number"

	result, err := b.Build(context.Background(), []model.RawRow{rawRow(1, flawed)})
	require.NoError(t, err)

	// The flawed row stays in the cleaned dataset and is also flagged.
	require.Len(t, result.Records, 1)
	require.Len(t, result.Flagged, 1)

	rec := result.Records[0]
	assert.Nil(t, rec.Amount)
	assert.Equal(t, 75, rec.QualityScore)
	assert.True(t, rec.HasIssues)
	assert.Contains(t, rec.IssueDescription, "unparseable amount")

	assert.Equal(t, 1, result.Flagged[0].SourceRowID)
	assert.Contains(t, result.Flagged[0].Issues, "unparseable amount")
}

func TestBuilder_ServiceInference(t *testing.T) {
	b := NewBuilder(DefaultConfig())

	donor := baseValues()
	gappy := baseValues()
	gappy[ColService] = ""

	result, err := b.Build(context.Background(), []model.RawRow{
		rawRow(1, donor),
		rawRow(2, gappy),
	})
	require.NoError(t, err)

	require.Len(t, result.Records, 2)
	filled := result.Records[1]
	assert.Equal(t, "Policing", filled.Service)
	assert.Equal(t, 100, filled.QualityScore)
	assert.False(t, filled.HasIssues)
	assert.Equal(t, 1, result.Report.InferredRows)

	// Inference fully resolved the gap, so nothing goes to review.
	assert.Empty(t, result.Flagged)
}

func TestBuilder_QualityScorePenalties(t *testing.T) {
	b := NewBuilder(DefaultConfig())

	values := baseValues()
	values[ColYear] = ""
	values[ColService] = ""
	values[ColActivity] = ""
	values[ColProgram] = "Orphan Program" // no donor row, so service stays empty

	result, err := b.Build(context.Background(), []model.RawRow{rawRow(1, values)})
	require.NoError(t, err)

	require.Len(t, result.Records, 1)
	rec := result.Records[0]
	// 100 - 25 (year) - 15 (service) - 10 (activity)
	assert.Equal(t, 50, rec.QualityScore)
	assert.True(t, rec.HasIssues)
}

func TestBuilder_ContextCancelled(t *testing.T) {
	b := NewBuilder(DefaultConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := b.Build(ctx, []model.RawRow{rawRow(1, baseValues())})
	assert.Error(t, err)
}

func TestBuilder_RowHashStableAcrossRuns(t *testing.T) {
	b := NewBuilder(DefaultConfig())
	rows := []model.RawRow{rawRow(1, baseValues())}

	first, err := b.Build(context.Background(), rows)
	require.NoError(t, err)
	second, err := b.Build(context.Background(), rows)
	require.NoError(t, err)

	assert.Equal(t, first.Records[0].RowHash, second.Records[0].RowHash)
}

func TestBuilder_DuplicateRowsShareHash(t *testing.T) {
	b := NewBuilder(DefaultConfig())

	result, err := b.Build(context.Background(), []model.RawRow{
		rawRow(1, baseValues()),
		rawRow(2, baseValues()),
	})
	require.NoError(t, err)

	require.Len(t, result.Records, 2)
	assert.Equal(t, result.Records[0].RowHash, result.Records[1].RowHash)
}
