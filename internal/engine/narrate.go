package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/civicdata/budget-cli/internal/model"
	"github.com/civicdata/budget-cli/pkg/anthropic"
)

const narrateSystemPrompt = `You are a municipal budget analyst writing a short answer for a resident.
Use ONLY the literal numbers present in the provided query results - never invent or estimate figures.
Format large magnitudes readably (e.g., "$15.5 billion" rather than a long decimal).
Remember: positive amounts are expenses, negative amounts are revenue.
Answer in 2-4 sentences of plain prose.`

const narrateUserPrompt = `Question: %s

SQL executed:
%s

Results (%s):
%s`

// fallbackNarrative is returned when the narrative call fails or times
// out; the caller still has the raw data and SQL to show.
const fallbackNarrative = "Here are the results of your query. The narrative summary is temporarily unavailable, but the data below is complete."

// Narrator turns an executed result set into a prose answer.
type Narrator struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	timeout   time.Duration
	maxRows   int
}

func NewNarrator(client anthropic.Client, llmModel string, maxTokens int64, timeout time.Duration, maxRows int) *Narrator {
	if maxRows <= 0 {
		maxRows = 50
	}
	return &Narrator{
		client:    client,
		model:     llmModel,
		maxTokens: maxTokens,
		timeout:   timeout,
		maxRows:   maxRows,
	}
}

// Narrate composes the prose answer. Failures degrade to a canned
// fallback rather than propagating; the data still reaches the user.
func (n *Narrator) Narrate(ctx context.Context, question, sql string, rs *model.ResultSet) string {
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	rows := rs.Rows
	rowNote := fmt.Sprintf("%d rows", len(rows))
	if len(rows) > n.maxRows {
		rowNote = fmt.Sprintf("showing %d of %d rows", n.maxRows, len(rows))
		rows = rows[:n.maxRows]
	}

	payload, err := json.Marshal(rows)
	if err != nil {
		zap.L().Warn("narrate: marshal rows", zap.Error(err))
		return fallbackNarrative
	}

	resp, err := n.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     n.model,
		MaxTokens: n.maxTokens,
		System:    []anthropic.SystemBlock{{Text: narrateSystemPrompt}},
		Messages: []anthropic.Message{
			{Role: "user", Content: fmt.Sprintf(narrateUserPrompt, question, sql, rowNote, payload)},
		},
	})
	if err != nil {
		zap.L().Warn("narrate: create message", zap.Error(eris.Wrap(err, "narrate")))
		return fallbackNarrative
	}
	resp.Usage.LogCost(n.model, "narrate")

	text := strings.TrimSpace(resp.FirstText())
	if text == "" {
		return fallbackNarrative
	}
	return text
}
