package anthropicclaude

import (
	"encoding/json"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/genbridge-dev/genbridge/internal/genai"
	"github.com/genbridge-dev/genbridge/internal/toolfix"
)

// ToGenerateResponse translates a non-streaming wire message into the canonical
// shape. Text blocks pass through the correction engine; tool_use blocks with an
// empty or whitespace-only name are dropped, never surfaced.
func ToGenerateResponse(msg *anthropic.Message, fix *toolfix.Corrector) (*genai.GenerateContentResponse, error) {
	if len(msg.Content) == 0 {
		return nil, genai.ErrEmptyResponse
	}

	var parts []genai.Part
	for _, block := range msg.Content {
		switch variant := block.AsAny().(type) {
		case anthropic.TextBlock:
			if variant.Text != "" {
				parts = append(parts, genai.TextPart(fix.Correct(variant.Text)))
			}
		case anthropic.ToolUseBlock:
			if strings.TrimSpace(variant.Name) == "" {
				continue
			}
			parts = append(parts, genai.Part{FunctionCall: &genai.FunctionCall{
				Name: variant.Name,
				Args: unmarshalInput(variant.Input),
			}})
		}
	}

	return &genai.GenerateContentResponse{
		Parts:        parts,
		FinishReason: ToFinishReason(msg.StopReason),
		Usage: &genai.UsageMetadata{
			PromptTokenCount:     int(msg.Usage.InputTokens),
			CandidatesTokenCount: int(msg.Usage.OutputTokens),
			TotalTokenCount:      int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
		},
	}, nil
}

func unmarshalInput(raw json.RawMessage) map[string]any {
	if len(raw) == 0 {
		return nil
	}
	var args map[string]any
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil
	}
	return args
}

// ToFinishReason maps Anthropic stop reasons to canonical finish reasons.
// tool_use maps to STOP: the canonical schema surfaces the call itself as a
// content part, so the stop reason carries no extra signal. Unknown or missing
// reasons map to OTHER.
func ToFinishReason(reason anthropic.StopReason) genai.FinishReason {
	switch reason {
	case anthropic.StopReasonEndTurn, anthropic.StopReasonStopSequence, anthropic.StopReasonToolUse:
		return genai.FinishReasonStop
	case anthropic.StopReasonMaxTokens:
		return genai.FinishReasonMaxTokens
	default:
		return genai.FinishReasonOther
	}
}
