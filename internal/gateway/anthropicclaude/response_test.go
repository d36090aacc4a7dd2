package anthropicclaude

import (
	"encoding/json"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/genbridge-dev/genbridge/internal/genai"
	"github.com/genbridge-dev/genbridge/internal/toolfix"
)

// decodeMessage builds a wire message the same way the gateway does: by
// unmarshaling the raw response body into the SDK type.
func decodeMessage(t *testing.T, raw string) *anthropic.Message {
	t.Helper()

	var msg anthropic.Message
	require.NoError(t, json.Unmarshal([]byte(raw), &msg))
	return &msg
}

func TestToGenerateResponse(t *testing.T) {
	fix := toolfix.New()

	t.Run("text with usage", func(t *testing.T) {
		msg := decodeMessage(t, `{
			"id": "msg_1",
			"role": "assistant",
			"content": [{"type": "text", "text": "hello"}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 11, "output_tokens": 4}
		}`)

		out, err := ToGenerateResponse(msg, fix)
		require.NoError(t, err)

		assert.Equal(t, "hello", out.Text())
		assert.Equal(t, genai.FinishReasonStop, out.FinishReason)
		require.NotNil(t, out.Usage)
		assert.Equal(t, 11, out.Usage.PromptTokenCount)
		assert.Equal(t, 4, out.Usage.CandidatesTokenCount)
		assert.Equal(t, 15, out.Usage.TotalTokenCount)
	})

	t.Run("empty content is an empty response", func(t *testing.T) {
		msg := decodeMessage(t, `{"id": "msg_1", "role": "assistant", "content": []}`)

		_, err := ToGenerateResponse(msg, fix)
		assert.ErrorIs(t, err, genai.ErrEmptyResponse)
	})

	t.Run("tool_use block becomes a function call", func(t *testing.T) {
		msg := decodeMessage(t, `{
			"id": "msg_1",
			"role": "assistant",
			"content": [
				{"type": "text", "text": "Let me look."},
				{"type": "tool_use", "id": "toolu_1", "name": "get_weather", "input": {"city": "Berlin"}}
			],
			"stop_reason": "tool_use"
		}`)

		out, err := ToGenerateResponse(msg, fix)
		require.NoError(t, err)

		assert.Equal(t, "Let me look.", out.Text())
		calls := out.FunctionCalls()
		require.Len(t, calls, 1)
		assert.Equal(t, "get_weather", calls[0].Name)
		assert.Equal(t, map[string]any{"city": "Berlin"}, calls[0].Args)
		assert.Equal(t, genai.FinishReasonStop, out.FinishReason)
	})

	t.Run("blank tool name is dropped", func(t *testing.T) {
		msg := decodeMessage(t, `{
			"id": "msg_1",
			"role": "assistant",
			"content": [
				{"type": "tool_use", "id": "toolu_1", "name": " ", "input": {}},
				{"type": "text", "text": "fallback"}
			],
			"stop_reason": "end_turn"
		}`)

		out, err := ToGenerateResponse(msg, fix)
		require.NoError(t, err)
		assert.Empty(t, out.FunctionCalls())
		assert.Equal(t, "fallback", out.Text())
	})

	t.Run("embedded tool markup is corrected", func(t *testing.T) {
		msg := decodeMessage(t, `{
			"id": "msg_1",
			"role": "assistant",
			"content": [{"type": "text", "text": "<read_file><path>/Users/x/project/app.ts</path></read_file>"}],
			"stop_reason": "end_turn"
		}`)

		out, err := ToGenerateResponse(msg, fix)
		require.NoError(t, err)
		assert.Equal(t,
			"<use_read_file><args><file><path>app.ts</path></file></args></use_read_file>",
			out.Text())
	})
}

func TestToFinishReason(t *testing.T) {
	assert.Equal(t, genai.FinishReasonStop, ToFinishReason(anthropic.StopReasonEndTurn))
	assert.Equal(t, genai.FinishReasonStop, ToFinishReason(anthropic.StopReasonStopSequence))
	assert.Equal(t, genai.FinishReasonStop, ToFinishReason(anthropic.StopReasonToolUse))
	assert.Equal(t, genai.FinishReasonMaxTokens, ToFinishReason(anthropic.StopReasonMaxTokens))
	assert.Equal(t, genai.FinishReasonOther, ToFinishReason(anthropic.StopReason("refusal")))
	assert.Equal(t, genai.FinishReasonOther, ToFinishReason(anthropic.StopReason("")))
}
