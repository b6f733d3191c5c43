package engine

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/civicdata/budget-cli/internal/model"
	"github.com/civicdata/budget-cli/internal/store"
	"github.com/civicdata/budget-cli/pkg/anthropic"
)

// --- Anthropic Mock ---

type mockAnthropicClient struct {
	mock.Mock
}

func (m *mockAnthropicClient) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*anthropic.MessageResponse), args.Error(1)
}

// textResponse builds a MessageResponse with a single text block.
func textResponse(text string) *anthropic.MessageResponse {
	return &anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: text}},
	}
}

// --- Store Mock ---

type mockStore struct {
	mock.Mock
}

func (m *mockStore) LoadRecords(ctx context.Context, records []model.BudgetRecord) (int, error) {
	args := m.Called(ctx, records)
	return args.Int(0), args.Error(1)
}

func (m *mockStore) WriteQualitySummary(ctx context.Context, report *model.LoadReport) error {
	return m.Called(ctx, report).Error(0)
}

func (m *mockStore) SetMetadata(ctx context.Context, key, value string) error {
	return m.Called(ctx, key, value).Error(0)
}

func (m *mockStore) GetMetadata(ctx context.Context, key string) (string, error) {
	args := m.Called(ctx, key)
	return args.String(0), args.Error(1)
}

func (m *mockStore) SeedSampleQueries(ctx context.Context, samples []store.SampleQuery) error {
	return m.Called(ctx, samples).Error(0)
}

func (m *mockStore) SampleQueries(ctx context.Context) ([]store.SampleQuery, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]store.SampleQuery), args.Error(1)
}

func (m *mockStore) Stats(ctx context.Context) (*store.Stats, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*store.Stats), args.Error(1)
}

func (m *mockStore) Programs(ctx context.Context, limit int) ([]string, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *mockStore) Query(ctx context.Context, sql string) (*model.ResultSet, error) {
	args := m.Called(ctx, sql)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ResultSet), args.Error(1)
}

func (m *mockStore) Migrate(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockStore) Close() error {
	return m.Called().Error(0)
}
