package anthropicclaude

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/genbridge-dev/genbridge/internal/genai"
	"github.com/genbridge-dev/genbridge/internal/toolfix"
)

// Named SSE payload shapes per Anthropic event type. Decoding into these instead
// of the SDK's stream unions keeps the hot path to one small unmarshal per event.
type contentBlockStartPayload struct {
	Index        int `json:"index"`
	ContentBlock struct {
		Type string `json:"type"`
		ID   string `json:"id"`
		Name string `json:"name"`
		Text string `json:"text"`
	} `json:"content_block"`
}

type contentBlockDeltaPayload struct {
	Index int `json:"index"`
	Delta struct {
		Type        string `json:"type"`
		Text        string `json:"text"`
		PartialJSON string `json:"partial_json"`
	} `json:"delta"`
}

type contentBlockStopPayload struct {
	Index int `json:"index"`
}

type errorPayload struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// toolUseState accumulates a tool_use block whose input streams as partial JSON
// fragments; the arguments only become a complete bag at content_block_stop.
type toolUseState struct {
	name  string
	input strings.Builder
}

// StreamTranslator converts decoded Anthropic SSE payloads into incremental
// canonical responses. It is stateful and owned by a single stream; concurrent
// calls each construct their own.
type StreamTranslator struct {
	fix    *toolfix.Corrector
	blocks map[int]*toolUseState
}

// NewStreamTranslator returns a translator using the given correction engine.
func NewStreamTranslator(fix *toolfix.Corrector) *StreamTranslator {
	return &StreamTranslator{
		fix:    fix,
		blocks: make(map[int]*toolUseState),
	}
}

// Translate consumes one event payload and produces zero or one incremental
// response. done reports the protocol's end-of-stream event (message_stop);
// the caller emits the terminal canonical response exactly once. Events that
// carry neither text nor a valid tool-call delta are suppressed, not errors.
func (t *StreamTranslator) Translate(payload []byte) (resp *genai.GenerateContentResponse, done bool, err error) {
	switch gjson.GetBytes(payload, "type").String() {
	case "content_block_start":
		var ev contentBlockStartPayload
		if unmarshalEvent(payload, &ev) != nil {
			return nil, false, nil
		}
		switch ev.ContentBlock.Type {
		case "tool_use":
			if strings.TrimSpace(ev.ContentBlock.Name) != "" {
				t.blocks[ev.Index] = &toolUseState{name: ev.ContentBlock.Name}
			}
		case "text":
			if ev.ContentBlock.Text != "" {
				return t.textResponse(ev.ContentBlock.Text), false, nil
			}
		}
		return nil, false, nil

	case "content_block_delta":
		var ev contentBlockDeltaPayload
		if unmarshalEvent(payload, &ev) != nil {
			return nil, false, nil
		}
		switch ev.Delta.Type {
		case "text_delta":
			if ev.Delta.Text == "" {
				return nil, false, nil
			}
			return t.textResponse(ev.Delta.Text), false, nil
		case "input_json_delta":
			if state := t.blocks[ev.Index]; state != nil {
				state.input.WriteString(ev.Delta.PartialJSON)
			}
		}
		return nil, false, nil

	case "content_block_stop":
		var ev contentBlockStopPayload
		if unmarshalEvent(payload, &ev) != nil {
			return nil, false, nil
		}
		state := t.blocks[ev.Index]
		if state == nil {
			return nil, false, nil
		}
		delete(t.blocks, ev.Index)
		return &genai.GenerateContentResponse{
			Parts: []genai.Part{{FunctionCall: &genai.FunctionCall{
				Name: state.name,
				Args: unmarshalInput([]byte(state.input.String())),
			}}},
		}, false, nil

	case "message_stop":
		return nil, true, nil

	case "error":
		var ev errorPayload
		if unmarshalEvent(payload, &ev) != nil {
			return nil, false, fmt.Errorf("upstream stream error")
		}
		return nil, false, fmt.Errorf("upstream stream error (%s): %s", ev.Error.Type, ev.Error.Message)

	default:
		// message_start, message_delta, ping: no canonical delta to emit. The
		// terminal response is synthesized at message_stop with finish STOP.
		return nil, false, nil
	}
}

func (t *StreamTranslator) textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Parts: []genai.Part{genai.TextPart(t.fix.Correct(text))},
	}
}

// unmarshalEvent decodes one event payload; a shape mismatch discards only that
// event and never aborts the stream.
func unmarshalEvent(payload []byte, v any) error {
	if err := json.Unmarshal(payload, v); err != nil {
		slog.Debug("discarding undecodable stream event", "error", err)
		return err
	}
	return nil
}
