package engine

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/civicdata/budget-cli/internal/model"
	"github.com/civicdata/budget-cli/pkg/anthropic"
)

func narrateResultSet() *model.ResultSet {
	return &model.ResultSet{
		Columns: []model.Column{
			{Name: "year", Kind: model.KindYear},
			{Name: "total", Kind: model.KindAmount},
		},
		Rows: []map[string]any{
			{"year": 2023, "total": 15_100_000_000.0},
			{"year": 2024, "total": 15_500_000_000.0},
		},
	}
}

func TestNarrate_ReturnsModelText(t *testing.T) {
	client := &mockAnthropicClient{}
	client.On("CreateMessage", mock.Anything, mock.Anything).
		Return(textResponse("The budget grew from $15.1 billion in 2023 to $15.5 billion in 2024."), nil)

	n := NewNarrator(client, "claude-haiku-4-5-20251001", 512, 5*time.Second, 50)
	got := n.Narrate(context.Background(), "How did the budget change?", "SELECT year, SUM(amount) ...", narrateResultSet())
	assert.Contains(t, got, "$15.5 billion")
}

func TestNarrate_FallbackOnError(t *testing.T) {
	client := &mockAnthropicClient{}
	client.On("CreateMessage", mock.Anything, mock.Anything).
		Return(nil, eris.New("api unavailable"))

	n := NewNarrator(client, "claude-haiku-4-5-20251001", 512, 5*time.Second, 50)
	got := n.Narrate(context.Background(), "q", "SELECT 1", narrateResultSet())
	assert.Equal(t, fallbackNarrative, got)
}

func TestNarrate_FallbackOnEmptyResponse(t *testing.T) {
	client := &mockAnthropicClient{}
	client.On("CreateMessage", mock.Anything, mock.Anything).
		Return(&anthropic.MessageResponse{}, nil)

	n := NewNarrator(client, "claude-haiku-4-5-20251001", 512, 5*time.Second, 50)
	got := n.Narrate(context.Background(), "q", "SELECT 1", narrateResultSet())
	assert.Equal(t, fallbackNarrative, got)
}

func TestNarrate_TruncatesLargeResults(t *testing.T) {
	rs := &model.ResultSet{Columns: []model.Column{{Name: "n", Kind: model.KindOther}}}
	for i := 0; i < 100; i++ {
		rs.Rows = append(rs.Rows, map[string]any{"n": i})
	}

	client := &mockAnthropicClient{}
	client.On("CreateMessage", mock.Anything, mock.MatchedBy(func(req anthropic.MessageRequest) bool {
		// The prompt must disclose the truncation.
		return len(req.Messages) == 1 &&
			strings.Contains(req.Messages[0].Content, "showing 5 of 100 rows")
	})).Return(textResponse("ok"), nil)

	n := NewNarrator(client, "claude-haiku-4-5-20251001", 512, 5*time.Second, 5)
	got := n.Narrate(context.Background(), "q", "SELECT 1", rs)
	assert.Equal(t, "ok", got)
	client.AssertExpectations(t)
}
