// Package genai defines the protocol-neutral content generation schema shared by
// every wire translator. Values are constructed once per call by the caller and
// consumed once; nothing in this package carries state across calls.
package genai

import "errors"

// ErrEmptyResponse indicates the upstream returned a success status but no usable
// choice or content block. A placeholder response is never substituted.
var ErrEmptyResponse = errors.New("upstream response contains no usable content")

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// FinishReason explains why generation stopped.
type FinishReason string

const (
	FinishReasonUnspecified FinishReason = ""
	FinishReasonStop        FinishReason = "STOP"
	FinishReasonMaxTokens   FinishReason = "MAX_TOKENS"
	FinishReasonSafety      FinishReason = "SAFETY"
	FinishReasonOther       FinishReason = "OTHER"
)

// FunctionCall is a structured request from the model to invoke a named
// external capability.
type FunctionCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

// FunctionResponse carries the caller-supplied result of a previous function call
// back into the conversation.
type FunctionResponse struct {
	Name     string         `json:"name"`
	Response map[string]any `json:"response,omitempty"`
}

// Part is one unit of turn content. Exactly one field is set.
type Part struct {
	Text             string            `json:"text,omitempty"`
	FunctionCall     *FunctionCall     `json:"functionCall,omitempty"`
	FunctionResponse *FunctionResponse `json:"functionResponse,omitempty"`
}

// TextPart wraps plain text as a content part.
func TextPart(text string) Part {
	return Part{Text: text}
}

// Content is one conversation turn: an author role plus ordered content parts.
// Part order matches generation order.
type Content struct {
	Role  Role   `json:"role"`
	Parts []Part `json:"parts"`
}

// GenerationConfig carries optional sampling parameters. Nil fields are omitted
// from the wire request entirely.
type GenerationConfig struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	MaxOutputTokens *int     `json:"maxOutputTokens,omitempty"`
	TopP            *float64 `json:"topP,omitempty"`
}

// FunctionDeclaration describes one tool the model may call.
type FunctionDeclaration struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// Tool groups function declarations offered to the model.
type Tool struct {
	FunctionDeclarations []FunctionDeclaration `json:"functionDeclarations"`
}

// GenerateContentRequest is the canonical generation request.
type GenerateContentRequest struct {
	Model             string            `json:"model"`
	Contents          []Content         `json:"contents"`
	SystemInstruction string            `json:"systemInstruction,omitempty"`
	GenerationConfig  *GenerationConfig `json:"generationConfig,omitempty"`
	Tools             []Tool            `json:"tools,omitempty"`
}

// UsageMetadata reports token accounting for one call. Counters the upstream did
// not report stay zero.
type UsageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

// GenerateContentResponse is the canonical generation response. In streaming mode
// each instance carries only the delta since the previous emission; the terminal
// instance has empty Parts and FinishReasonStop, which is the caller's only
// unambiguous end-of-stream signal.
type GenerateContentResponse struct {
	Parts        []Part         `json:"parts"`
	FinishReason FinishReason   `json:"finishReason,omitempty"`
	Usage        *UsageMetadata `json:"usageMetadata,omitempty"`
}

// Text concatenates the text parts of the response, in order.
func (r *GenerateContentResponse) Text() string {
	var out string
	for _, part := range r.Parts {
		out += part.Text
	}
	return out
}

// FunctionCalls returns the function call parts of the response, in order.
func (r *GenerateContentResponse) FunctionCalls() []FunctionCall {
	var calls []FunctionCall
	for _, part := range r.Parts {
		if part.FunctionCall != nil {
			calls = append(calls, *part.FunctionCall)
		}
	}
	return calls
}

// EmbedContentResponse exists for interface symmetry; embedding is not supported
// by any of the gateway's wire protocols.
type EmbedContentResponse struct {
	Values []float64 `json:"values"`
}
