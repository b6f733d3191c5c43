package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/civicdata/budget-cli/internal/model"
	"github.com/civicdata/budget-cli/internal/store"
)

func newTestTranslator(client *mockAnthropicClient) *Translator {
	return NewTranslator(client, "claude-haiku-4-5-20251001", 1024, 5*time.Second, 6000)
}

func testSchemaContext() SchemaContext {
	return SchemaContext{
		Stats: &store.Stats{
			TotalRecords:   100000,
			MinYear:        2019,
			MaxYear:        2024,
			UniquePrograms: 40,
			TotalExpenses:  15_500_000_000,
		},
		SamplePrograms: []string{"Toronto Police Service", "Fire Services"},
		SampleQueries:  store.DefaultSampleQueries[:1],
	}
}

func TestTranslate_ParsesResponse(t *testing.T) {
	client := &mockAnthropicClient{}
	client.On("CreateMessage", mock.Anything, mock.Anything).
		Return(textResponse(`{"sql": "SELECT SUM(amount) FROM budget_data WHERE year = 2024", "answer": "The total was...", "query_type": "summary", "confidence": 0.9}`), nil)

	cq, err := newTestTranslator(client).Translate(context.Background(), "What was the total budget in 2024?", testSchemaContext())
	require.NoError(t, err)
	assert.Equal(t, "SELECT SUM(amount) FROM budget_data WHERE year = 2024", cq.SQL)
	assert.Equal(t, model.QueryTypeSummary, cq.Type)
	assert.InDelta(t, 0.9, cq.Confidence, 0.001)
}

func TestTranslate_StripsMarkdownFences(t *testing.T) {
	client := &mockAnthropicClient{}
	client.On("CreateMessage", mock.Anything, mock.Anything).
		Return(textResponse("```json\n{\"sql\": \"SELECT 1\", \"answer\": \"x\", \"query_type\": \"specific\", \"confidence\": 0.8}\n```"), nil)

	cq, err := newTestTranslator(client).Translate(context.Background(), "q", testSchemaContext())
	require.NoError(t, err)
	assert.Equal(t, "SELECT 1", cq.SQL)
}

func TestTranslate_UnknownQueryTypeDefaults(t *testing.T) {
	client := &mockAnthropicClient{}
	client.On("CreateMessage", mock.Anything, mock.Anything).
		Return(textResponse(`{"sql": "SELECT 1", "answer": "x", "query_type": "exotic", "confidence": 0.7}`), nil)

	cq, err := newTestTranslator(client).Translate(context.Background(), "q", testSchemaContext())
	require.NoError(t, err)
	assert.Equal(t, model.QueryTypeSpecific, cq.Type)
}

func TestTranslate_EmptySQL(t *testing.T) {
	client := &mockAnthropicClient{}
	client.On("CreateMessage", mock.Anything, mock.Anything).
		Return(textResponse(`{"sql": "", "answer": "no idea", "query_type": "specific", "confidence": 0.2}`), nil)

	_, err := newTestTranslator(client).Translate(context.Background(), "q", testSchemaContext())
	require.Error(t, err)
}

func TestTranslate_MalformedJSON(t *testing.T) {
	client := &mockAnthropicClient{}
	client.On("CreateMessage", mock.Anything, mock.Anything).
		Return(textResponse(`not json at all`), nil)

	_, err := newTestTranslator(client).Translate(context.Background(), "q", testSchemaContext())
	require.Error(t, err)
}

func TestSystemPrompt_CarriesSignConvention(t *testing.T) {
	tr := newTestTranslator(&mockAnthropicClient{})
	prompt := tr.systemPrompt(testSchemaContext())

	assert.Contains(t, prompt, "positive = expenses, negative = revenue")
	assert.Contains(t, prompt, "budget_data")
	assert.Contains(t, prompt, "Records: 100000")
	assert.Contains(t, prompt, "Years: 2019-2024")
	assert.Contains(t, prompt, "Toronto Police Service")
	assert.Contains(t, prompt, store.DefaultSampleQueries[0].Question)
}

func TestCleanJSON(t *testing.T) {
	cases := map[string]string{
		`{"a": 1}`:                              `{"a": 1}`,
		"```json\n{\"a\": 1}\n```":              `{"a": 1}`,
		"```\n{\"a\": 1}\n```":                  `{"a": 1}`,
		"Here is the query:\n{\"a\": 1}\nDone.": `{"a": 1}`,
	}
	for in, want := range cases {
		assert.Equal(t, want, cleanJSON(in))
	}
}
