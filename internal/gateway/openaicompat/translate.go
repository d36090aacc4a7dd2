// Package openaicompat translates between the canonical generation schema and
// the OpenAI-compatible chat completions wire contract. Qwen endpoints speak the
// same contract, so this package serves both protocols; behavior with tools
// present is identical either way.
//
// Request translation is total: there are no failure modes, and missing optional
// fields are simply omitted from the wire request.
package openaicompat

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/genbridge-dev/genbridge/internal/genai"
)

// FromGenerateRequest translates the canonical request into an OpenAI-compatible
// chat completion request.
func FromGenerateRequest(req *genai.GenerateContentRequest, stream bool) *ChatCompletionRequest {
	out := &ChatCompletionRequest{
		Model:  req.Model,
		Stream: stream,
	}

	if req.SystemInstruction != "" {
		out.Messages = append(out.Messages, ChatMessage{
			Role:    "system",
			Content: req.SystemInstruction,
		})
	}

	ids := newToolCallIDs()
	for _, content := range req.Contents {
		out.Messages = append(out.Messages, fromContent(content, ids)...)
	}

	if cfg := req.GenerationConfig; cfg != nil {
		out.Temperature = cfg.Temperature
		out.MaxTokens = cfg.MaxOutputTokens
		out.TopP = cfg.TopP
	}

	out.Tools = fromToolDeclarations(req.Tools)
	if len(out.Tools) > 0 {
		out.ToolChoice = "auto"
	}

	return out
}

// toolCallIDs pairs the synthesized id of each assistant tool call with the
// tool message that answers it. Calls and responses for the same function name
// match up in request order; a response with no outstanding call gets a fresh
// id of its own.
type toolCallIDs struct {
	pending map[string][]string
}

func newToolCallIDs() *toolCallIDs {
	return &toolCallIDs{pending: make(map[string][]string)}
}

func (p *toolCallIDs) call(name string) string {
	id := NewToolCallID()
	p.pending[name] = append(p.pending[name], id)
	return id
}

func (p *toolCallIDs) response(name string) string {
	queue := p.pending[name]
	if len(queue) == 0 {
		return NewToolCallID()
	}
	p.pending[name] = queue[1:]
	return queue[0]
}

// fromContent flattens one canonical turn into role-tagged wire messages.
// Adjacent text parts merge into a single message; function calls and function
// responses each become their own message, preserving part order.
func fromContent(content genai.Content, ids *toolCallIDs) []ChatMessage {
	role := "assistant"
	if content.Role == genai.RoleUser {
		role = "user"
	}

	var messages []ChatMessage
	var text string
	flushText := func() {
		if text == "" {
			return
		}
		messages = append(messages, ChatMessage{Role: role, Content: text})
		text = ""
	}

	for _, part := range content.Parts {
		switch {
		case part.FunctionCall != nil:
			flushText()
			messages = append(messages, ChatMessage{
				Role: "assistant",
				ToolCalls: []ToolCall{{
					ID:   ids.call(part.FunctionCall.Name),
					Type: "function",
					Function: ToolCallFunction{
						Name:      part.FunctionCall.Name,
						Arguments: marshalArgs(part.FunctionCall.Args),
					},
				}},
			})
		case part.FunctionResponse != nil:
			flushText()
			messages = append(messages, ChatMessage{
				Role:       "tool",
				Content:    marshalArgs(part.FunctionResponse.Response),
				ToolCallID: ids.response(part.FunctionResponse.Name),
			})
		case part.Text != "":
			text += part.Text
		}
	}
	flushText()

	return messages
}

func fromToolDeclarations(tools []genai.Tool) []Tool {
	var out []Tool
	for _, tool := range tools {
		for _, decl := range tool.FunctionDeclarations {
			out = append(out, Tool{
				Type: "function",
				Function: ToolFunction{
					Name:        decl.Name,
					Description: decl.Description,
					Parameters:  decl.Parameters,
				},
			})
		}
	}
	return out
}

// marshalArgs JSON-stringifies a parameter bag. A nil bag serializes as the
// empty object, which is what tool-calling clients expect.
func marshalArgs(args map[string]any) string {
	if len(args) == 0 {
		return "{}"
	}
	encoded, err := json.Marshal(args)
	if err != nil {
		return "{}"
	}
	return string(encoded)
}

// NewToolCallID synthesizes an OpenAI-style tool call id (call_<8-char-uuid>).
func NewToolCallID() string {
	return fmt.Sprintf("call_%s", uuid.New().String()[:8])
}
