package anthropic_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	anthropic "github.com/prospectly/leadgen-cli/pkg/anthropic"
	"github.com/prospectly/leadgen-cli/pkg/anthropic/mocks"
)

func TestCreateMessage_MockClient(t *testing.T) {
	mc := mocks.NewMockClient(t)
	ctx := context.Background()

	req := anthropic.MessageRequest{
		Model:     "claude-haiku-4-5-20251001",
		MaxTokens: 1024,
		Messages: []anthropic.Message{
			{Role: "user", Content: "Hello"},
		},
	}

	expected := &anthropic.MessageResponse{
		ID:         "msg_123",
		Model:      "claude-haiku-4-5-20251001",
		Content:    []anthropic.ContentBlock{{Type: "text", Text: "Hi there!"}},
		StopReason: "end_turn",
		Usage: anthropic.TokenUsage{
			InputTokens:  10,
			OutputTokens: 5,
		},
	}

	mc.On("CreateMessage", ctx, req).Return(expected, nil)

	resp, err := mc.CreateMessage(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "msg_123", resp.ID)
	assert.Equal(t, "Hi there!", resp.Content[0].Text)
}

func TestEstimateCost_Haiku(t *testing.T) {
	usage := anthropic.TokenUsage{InputTokens: 1_000_000, OutputTokens: 1_000_000}
	cost := usage.EstimateCost("claude-haiku-4-5-20251001")
	assert.InDelta(t, 4.80, cost, 0.001)
}

func TestEstimateCost_WithCache(t *testing.T) {
	usage := anthropic.TokenUsage{
		InputTokens:              100_000,
		OutputTokens:             10_000,
		CacheCreationInputTokens: 1_000_000,
		CacheReadInputTokens:     5_000_000,
	}
	cost := usage.EstimateCost("claude-haiku-4-5-20251001")
	// 0.08 input + 0.04 output + 1.00 cache write + 0.40 cache read
	assert.InDelta(t, 1.52, cost, 0.001)
}

func TestEstimateCost_UnknownModel(t *testing.T) {
	usage := anthropic.TokenUsage{InputTokens: 1_000_000, OutputTokens: 1_000_000}
	assert.Zero(t, usage.EstimateCost("some-other-model"))
}

func TestLogCost_DoesNotPanic(t *testing.T) {
	usage := anthropic.TokenUsage{InputTokens: 100, OutputTokens: 50}
	assert.NotPanics(t, func() {
		usage.LogCost("claude-haiku-4-5-20251001", "scoring")
	})
}

func TestBuildCachedSystemBlocks(t *testing.T) {
	blocks := anthropic.BuildCachedSystemBlocks("You score sales leads.")
	require.Len(t, blocks, 1)
	assert.Equal(t, "You score sales leads.", blocks[0].Text)
	require.NotNil(t, blocks[0].CacheControl)
	assert.Equal(t, "1h", blocks[0].CacheControl.TTL)
}
