// Package anthropicclaude translates between the canonical generation schema and
// the Anthropic Messages wire contract, using the official SDK's parameter and
// response types as the wire shapes.
//
// The translated message list always satisfies Anthropic's conversation
// invariants: no empty messages, strictly alternating roles, first message from
// the user role, never an empty list. max_tokens is mandatory on this wire and
// defaults to 4096 when the caller's config omits it.
package anthropicclaude

import (
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/google/uuid"

	"github.com/genbridge-dev/genbridge/internal/genai"
)

// defaultMaxTokens is used when the canonical generation config omits a limit;
// the field is required by the Anthropic wire contract.
const defaultMaxTokens = 4096

// placeholderText fills synthetic user messages inserted by the sequence
// validator when a conversation would otherwise start with the model role or
// be empty.
const placeholderText = "..."

// FromGenerateRequest translates the canonical request into Anthropic message
// parameters. Translation is total; missing optional fields are omitted.
func FromGenerateRequest(req *genai.GenerateContentRequest) anthropic.MessageNewParams {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: defaultMaxTokens,
	}

	if req.SystemInstruction != "" {
		// The system instruction is a separate top-level field on this wire and
		// never appears in the turn list.
		params.System = []anthropic.TextBlockParam{{Text: req.SystemInstruction}}
	}

	if cfg := req.GenerationConfig; cfg != nil {
		if cfg.Temperature != nil {
			params.Temperature = anthropic.Float(*cfg.Temperature)
		}
		if cfg.TopP != nil {
			params.TopP = anthropic.Float(*cfg.TopP)
		}
		if cfg.MaxOutputTokens != nil {
			params.MaxTokens = int64(*cfg.MaxOutputTokens)
		}
	}

	ids := newToolUseIDs()
	var messages []anthropic.MessageParam
	for _, content := range req.Contents {
		role := anthropic.MessageParamRoleAssistant
		if content.Role == genai.RoleUser {
			role = anthropic.MessageParamRoleUser
		}
		messages = append(messages, anthropic.MessageParam{
			Role:    role,
			Content: fromParts(content.Parts, ids),
		})
	}
	params.Messages = normalizeMessages(messages)

	params.Tools = fromToolDeclarations(req.Tools)
	if len(params.Tools) > 0 {
		params.ToolChoice = anthropic.ToolChoiceUnionParam{
			OfAuto: &anthropic.ToolChoiceAutoParam{},
		}
	}

	return params
}

// toolUseIDs pairs the synthesized id of each tool_use block with the
// tool_result block that answers it. Calls and responses for the same function
// name match up in request order; a result with no outstanding call gets a
// fresh id of its own.
type toolUseIDs struct {
	pending map[string][]string
}

func newToolUseIDs() *toolUseIDs {
	return &toolUseIDs{pending: make(map[string][]string)}
}

func (p *toolUseIDs) call(name string) string {
	id := NewToolUseID()
	p.pending[name] = append(p.pending[name], id)
	return id
}

func (p *toolUseIDs) result(name string) string {
	queue := p.pending[name]
	if len(queue) == 0 {
		return NewToolUseID()
	}
	p.pending[name] = queue[1:]
	return queue[0]
}

// fromParts converts canonical content parts to ordered typed content blocks.
func fromParts(parts []genai.Part, ids *toolUseIDs) []anthropic.ContentBlockParamUnion {
	var blocks []anthropic.ContentBlockParamUnion
	for _, part := range parts {
		switch {
		case part.FunctionCall != nil:
			input := part.FunctionCall.Args
			if input == nil {
				input = map[string]any{}
			}
			blocks = append(blocks, anthropic.ContentBlockParamUnion{
				OfToolUse: &anthropic.ToolUseBlockParam{
					ID:    ids.call(part.FunctionCall.Name),
					Name:  part.FunctionCall.Name,
					Input: input,
				},
			})
		case part.FunctionResponse != nil:
			payload, err := json.Marshal(part.FunctionResponse.Response)
			if err != nil {
				payload = []byte("{}")
			}
			blocks = append(blocks, anthropic.ContentBlockParamUnion{
				OfToolResult: &anthropic.ToolResultBlockParam{
					ToolUseID: ids.result(part.FunctionResponse.Name),
					Content: []anthropic.ToolResultBlockParamContentUnion{
						{OfText: &anthropic.TextBlockParam{Text: string(payload)}},
					},
				},
			})
		case part.Text != "":
			blocks = append(blocks, anthropic.NewTextBlock(part.Text))
		}
	}
	return blocks
}

// normalizeMessages enforces the wire's conversation shape: empty messages are
// dropped, adjacent same-role messages merge, a synthetic user message leads
// when the first retained message is not from the user, and an empty list
// becomes a single default user message.
func normalizeMessages(in []anthropic.MessageParam) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(in))
	for _, msg := range in {
		if len(msg.Content) == 0 {
			continue
		}
		if n := len(out); n > 0 && out[n-1].Role == msg.Role {
			out[n-1] = mergeMessages(out[n-1], msg)
			continue
		}
		out = append(out, msg)
	}

	if len(out) == 0 {
		return []anthropic.MessageParam{syntheticUserMessage()}
	}
	if out[0].Role != anthropic.MessageParamRoleUser {
		out = append([]anthropic.MessageParam{syntheticUserMessage()}, out...)
	}
	return out
}

// mergeMessages folds b into a. Two plain-string messages concatenate their text
// with a newline separator; anything else concatenates content block lists.
func mergeMessages(a, b anthropic.MessageParam) anthropic.MessageParam {
	if textA, ok := soleText(a); ok {
		if textB, ok := soleText(b); ok {
			a.Content = []anthropic.ContentBlockParamUnion{
				anthropic.NewTextBlock(textA + "\n" + textB),
			}
			return a
		}
	}
	a.Content = append(a.Content, b.Content...)
	return a
}

// soleText reports the text of a message consisting of exactly one text block.
func soleText(msg anthropic.MessageParam) (string, bool) {
	if len(msg.Content) == 1 && msg.Content[0].OfText != nil {
		return msg.Content[0].OfText.Text, true
	}
	return "", false
}

func syntheticUserMessage() anthropic.MessageParam {
	return anthropic.NewUserMessage(anthropic.NewTextBlock(placeholderText))
}

// fromToolDeclarations maps canonical tool declarations to Anthropic's
// {name, description, input_schema} shape. The flat JSON Schema object splits
// into the schema param's dedicated fields, with the remainder preserved as
// extra fields.
func fromToolDeclarations(tools []genai.Tool) []anthropic.ToolUnionParam {
	var out []anthropic.ToolUnionParam
	for _, tool := range tools {
		for _, decl := range tool.FunctionDeclarations {
			toolParam := anthropic.ToolParam{
				Name:        decl.Name,
				InputSchema: anthropic.ToolInputSchemaParam{},
			}
			if decl.Description != "" {
				toolParam.Description = anthropic.String(decl.Description)
			}

			if decl.Parameters != nil {
				if props, ok := decl.Parameters["properties"]; ok {
					toolParam.InputSchema.Properties = props
				}
				if req, ok := decl.Parameters["required"].([]any); ok {
					var required []string
					for _, r := range req {
						if s, ok := r.(string); ok {
							required = append(required, s)
						}
					}
					toolParam.InputSchema.Required = required
				}

				var extraFields map[string]any
				for key, value := range decl.Parameters {
					if key != "type" && key != "properties" && key != "required" {
						if extraFields == nil {
							extraFields = make(map[string]any)
						}
						extraFields[key] = value
					}
				}
				toolParam.InputSchema.ExtraFields = extraFields
			}

			out = append(out, anthropic.ToolUnionParam{OfTool: &toolParam})
		}
	}
	return out
}

// NewToolUseID synthesizes a tool_use block id (toolu_<8-char-uuid>).
func NewToolUseID() string {
	return fmt.Sprintf("toolu_%s", uuid.New().String()[:8])
}
