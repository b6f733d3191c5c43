package anthropic

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFirstText(t *testing.T) {
	resp := &MessageResponse{
		Content: []ContentBlock{
			{Type: "thinking", Text: "..."},
			{Type: "text", Text: `{"sql": "SELECT 1"}`},
		},
	}
	assert.Equal(t, `{"sql": "SELECT 1"}`, resp.FirstText())
}

func TestFirstText_Empty(t *testing.T) {
	resp := &MessageResponse{}
	assert.Empty(t, resp.FirstText())
}

func TestEstimateCost_KnownModel(t *testing.T) {
	u := TokenUsage{
		InputTokens:  1_000_000,
		OutputTokens: 1_000_000,
	}
	cost := u.EstimateCost("claude-haiku-4-5-20251001")
	assert.InDelta(t, 4.80, cost, 0.001)
}

func TestEstimateCost_CacheTokens(t *testing.T) {
	u := TokenUsage{
		CacheCreationInputTokens: 1_000_000,
		CacheReadInputTokens:     1_000_000,
	}
	cost := u.EstimateCost("claude-haiku-4-5-20251001")
	// write at 1.25x input, read at 0.1x input
	assert.InDelta(t, 0.80*1.25+0.80*0.1, cost, 0.001)
}

func TestEstimateCost_UnknownModel(t *testing.T) {
	u := TokenUsage{InputTokens: 500}
	assert.Zero(t, u.EstimateCost("some-other-model"))
}

func TestBuildCachedSystemBlocks(t *testing.T) {
	blocks := BuildCachedSystemBlocks("schema prompt")
	assert.Len(t, blocks, 1)
	assert.Equal(t, "schema prompt", blocks[0].Text)
	assert.NotNil(t, blocks[0].CacheControl)
	assert.Equal(t, "1h", blocks[0].CacheControl.TTL)
}
