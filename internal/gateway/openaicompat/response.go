package openaicompat

import (
	"encoding/json"
	"strings"

	"github.com/genbridge-dev/genbridge/internal/genai"
	"github.com/genbridge-dev/genbridge/internal/toolfix"
)

// ToGenerateResponse translates a non-streaming wire response into the canonical
// shape. Text fragments pass through the correction engine; tool calls with an
// empty or whitespace-only name are dropped, never surfaced.
func ToGenerateResponse(resp *ChatCompletionResponse, fix *toolfix.Corrector) (*genai.GenerateContentResponse, error) {
	if len(resp.Choices) == 0 {
		return nil, genai.ErrEmptyResponse
	}
	choice := resp.Choices[0]

	out := &genai.GenerateContentResponse{
		Parts:        messageParts(choice.Message, fix),
		FinishReason: ToFinishReason(choice.FinishReason),
	}
	if resp.Usage != nil {
		out.Usage = &genai.UsageMetadata{
			PromptTokenCount:     resp.Usage.PromptTokens,
			CandidatesTokenCount: resp.Usage.CompletionTokens,
			TotalTokenCount:      resp.Usage.TotalTokens,
		}
	}
	return out, nil
}

// ToGenerateResponseChunk translates one streamed chunk into an incremental
// canonical response. It returns nil for chunks carrying neither text nor a
// valid tool-call delta (name present and non-blank); suppression is not an
// error. End-of-stream is signaled by the transport sentinel, never by a chunk.
func ToGenerateResponseChunk(chunk *ChatCompletionChunk, fix *toolfix.Corrector) *genai.GenerateContentResponse {
	if len(chunk.Choices) == 0 {
		return nil
	}
	choice := chunk.Choices[0]

	parts := messageParts(choice.Delta, fix)
	if len(parts) == 0 {
		return nil
	}

	out := &genai.GenerateContentResponse{Parts: parts}
	if choice.FinishReason != nil && *choice.FinishReason != "" {
		out.FinishReason = ToFinishReason(*choice.FinishReason)
	}
	return out
}

// messageParts converts a wire message (or delta) into canonical content parts.
func messageParts(msg ChatMessage, fix *toolfix.Corrector) []genai.Part {
	var parts []genai.Part
	if msg.Content != "" {
		parts = append(parts, genai.TextPart(fix.Correct(msg.Content)))
	}
	for _, call := range msg.ToolCalls {
		if strings.TrimSpace(call.Function.Name) == "" {
			continue
		}
		parts = append(parts, genai.Part{FunctionCall: &genai.FunctionCall{
			Name: call.Function.Name,
			Args: unmarshalArgs(call.Function.Arguments),
		}})
	}
	return parts
}

// unmarshalArgs parses JSON-stringified arguments, tolerating the partial
// fragments streamed deltas may carry.
func unmarshalArgs(raw string) map[string]any {
	if raw == "" {
		return nil
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil
	}
	return args
}

// ToFinishReason maps wire finish reasons to canonical ones. Unknown or missing
// reasons map to OTHER.
func ToFinishReason(reason string) genai.FinishReason {
	switch reason {
	case "stop":
		return genai.FinishReasonStop
	case "length":
		return genai.FinishReasonMaxTokens
	case "content_filter":
		return genai.FinishReasonSafety
	default:
		return genai.FinishReasonOther
	}
}
