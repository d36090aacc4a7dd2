// Package gateway dispatches canonical generation requests across three wire
// protocols: OpenAI-compatible, Anthropic, and Qwen (an OpenAI-compatible
// profile). The protocol is resolved once per call by a pure selector and then
// dispatched; translators never re-derive it.
//
// Execution is single-threaded per call; the only suspension points are network
// I/O. Concurrent calls are fully independent: each owns its own connection
// and decoder state, and the only shared data are immutable mapping tables.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/tidwall/sjson"

	"github.com/genbridge-dev/genbridge/internal/gateway/anthropicclaude"
	"github.com/genbridge-dev/genbridge/internal/gateway/openaicompat"
	"github.com/genbridge-dev/genbridge/internal/genai"
	"github.com/genbridge-dev/genbridge/internal/sse"
	"github.com/genbridge-dev/genbridge/internal/toolfix"
)

const anthropicVersion = "2023-06-01"

// Config configures a gateway client.
type Config struct {
	// Format is the configured wire protocol. The resolved protocol may differ
	// per call; see ResolveFormat.
	Format Format

	// Endpoint is the upstream base URL. Endpoints already ending in the wire
	// path ("/chat/completions", "/messages") are used verbatim.
	Endpoint string

	// APIKey authenticates against the upstream.
	APIKey string

	// HTTPClient overrides the transport. The default client carries no
	// timeout: streams are long-lived and cancellation is caller-driven via
	// context.
	HTTPClient *http.Client
}

// Client translates canonical requests onto one upstream endpoint. Safe for
// concurrent use.
type Client struct {
	cfg        Config
	httpClient *http.Client
	fix        *toolfix.Corrector
}

// New validates the configuration and returns a client.
func New(cfg Config) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("endpoint cannot be empty")
	}
	if cfg.Format == "" {
		cfg.Format = FormatOpenAI
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	return &Client{
		cfg:        cfg,
		httpClient: httpClient,
		fix:        toolfix.New(),
	}, nil
}

// GenerateContent performs a unary generation call. It fails on transport
// errors, non-success statuses (WireError), or a success body with no usable
// content (genai.ErrEmptyResponse), never with a partial response.
func (c *Client) GenerateContent(ctx context.Context, req *genai.GenerateContentRequest) (*genai.GenerateContentResponse, error) {
	format := ResolveFormat(c.cfg.Format, c.cfg.Endpoint)

	httpReq, err := c.newWireRequest(ctx, format, req, false)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("call upstream: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	if format == FormatAnthropic {
		var msg anthropic.Message
		if err := json.NewDecoder(resp.Body).Decode(&msg); err != nil {
			return nil, fmt.Errorf("decode upstream response: %w", err)
		}
		return anthropicclaude.ToGenerateResponse(&msg, c.fix)
	}

	var wire openaicompat.ChatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("decode upstream response: %w", err)
	}
	return openaicompat.ToGenerateResponse(&wire, c.fix)
}

// GenerateContentStream performs a streaming generation call. The returned
// sequence yields incremental responses and finishes with exactly one terminal
// response (empty parts, finish STOP); mid-stream failures terminate the
// sequence with an error instead. Callers must either consume the sequence or
// cancel ctx; the upstream connection is released when the sequence exits or,
// for a sequence that is never ranged, when ctx ends.
func (c *Client) GenerateContentStream(ctx context.Context, req *genai.GenerateContentRequest) (iter.Seq2[*genai.GenerateContentResponse, error], error) {
	format := ResolveFormat(c.cfg.Format, c.cfg.Endpoint)

	httpReq, err := c.newWireRequest(ctx, format, req, true)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("call upstream: %w", err)
	}
	if err := checkStatus(resp); err != nil {
		_ = resp.Body.Close()
		return nil, err
	}

	// The body is normally closed when the sequence finishes, but a caller may
	// drop the sequence without ever ranging it; closing on context done keeps
	// such an abandoned connection from outliving the call.
	stopAfterFunc := context.AfterFunc(ctx, func() { _ = resp.Body.Close() })

	return func(yield func(*genai.GenerateContentResponse, error) bool) {
		defer stopAfterFunc()
		defer func() { _ = resp.Body.Close() }()

		decoder := sse.NewDecoder(resp.Body)
		if format == FormatAnthropic {
			c.streamAnthropic(decoder, yield)
			return
		}
		c.streamOpenAI(decoder, yield)
	}, nil
}

func (c *Client) streamOpenAI(decoder *sse.Decoder, yield func(*genai.GenerateContentResponse, error) bool) {
	for {
		payload, err := decoder.Next()
		if errors.Is(err, io.EOF) {
			yield(terminalResponse(), nil)
			return
		}
		if err != nil {
			yield(nil, fmt.Errorf("read upstream stream: %w", err))
			return
		}

		var chunk openaicompat.ChatCompletionChunk
		if err := json.Unmarshal(payload, &chunk); err != nil {
			slog.Debug("discarding undecodable stream event", "error", err)
			continue
		}
		out := openaicompat.ToGenerateResponseChunk(&chunk, c.fix)
		if out == nil {
			continue
		}
		if !yield(out, nil) {
			return
		}
	}
}

func (c *Client) streamAnthropic(decoder *sse.Decoder, yield func(*genai.GenerateContentResponse, error) bool) {
	translator := anthropicclaude.NewStreamTranslator(c.fix)
	for {
		payload, err := decoder.Next()
		if errors.Is(err, io.EOF) {
			// Transport ended without message_stop; still give the caller the
			// unambiguous end-of-sequence marker.
			yield(terminalResponse(), nil)
			return
		}
		if err != nil {
			yield(nil, fmt.Errorf("read upstream stream: %w", err))
			return
		}

		out, done, err := translator.Translate(payload)
		if err != nil {
			yield(nil, err)
			return
		}
		if done {
			yield(terminalResponse(), nil)
			return
		}
		if out == nil {
			continue
		}
		if !yield(out, nil) {
			return
		}
	}
}

// terminalResponse is the single end-of-stream marker: empty content parts and
// finish reason STOP.
func terminalResponse() *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{FinishReason: genai.FinishReasonStop}
}

// CountTokens estimates the token count of the request: the total character
// count of all text parts divided by four, rounded up. An approximation by
// design, not an exact count.
func (c *Client) CountTokens(_ context.Context, req *genai.GenerateContentRequest) (int, error) {
	chars := 0
	for _, content := range req.Contents {
		for _, part := range content.Parts {
			chars += utf8.RuneCountInString(part.Text)
		}
	}
	return (chars + 3) / 4, nil
}

// EmbedContent always fails: none of the gateway's wire protocols expose an
// embedding surface.
func (c *Client) EmbedContent(context.Context, *genai.GenerateContentRequest) (*genai.EmbedContentResponse, error) {
	return nil, fmt.Errorf("embedContent: %w", ErrUnsupported)
}

// newWireRequest builds the protocol-specific HTTP request for one call.
func (c *Client) newWireRequest(ctx context.Context, format Format, req *genai.GenerateContentRequest, stream bool) (*http.Request, error) {
	var (
		body []byte
		url  string
		err  error
	)

	if format == FormatAnthropic {
		params := anthropicclaude.FromGenerateRequest(req)
		body, err = json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("encode wire request: %w", err)
		}
		if stream {
			// The SDK only sets the stream flag through its own transport.
			body, err = sjson.SetBytes(body, "stream", true)
			if err != nil {
				return nil, fmt.Errorf("encode wire request: %w", err)
			}
		}
		url = anthropicURL(c.cfg.Endpoint)
	} else {
		wire := openaicompat.FromGenerateRequest(req, stream)
		body, err = json.Marshal(wire)
		if err != nil {
			return nil, fmt.Errorf("encode wire request: %w", err)
		}
		url = openAIURL(c.cfg.Endpoint)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build wire request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}

	if format == FormatAnthropic {
		httpReq.Header.Set("x-api-key", c.cfg.APIKey)
		httpReq.Header.Set("anthropic-version", anthropicVersion)
	} else {
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	return httpReq, nil
}

// openAIURL appends the chat completions path unless the endpoint already ends
// in it.
func openAIURL(endpoint string) string {
	if strings.HasSuffix(endpoint, "/chat/completions") {
		return endpoint
	}
	return strings.TrimSuffix(endpoint, "/") + "/chat/completions"
}

// anthropicURL appends the messages path unless the endpoint already ends in it.
func anthropicURL(endpoint string) string {
	if strings.HasSuffix(endpoint, "/messages") {
		return endpoint
	}
	return strings.TrimSuffix(endpoint, "/") + "/v1/messages"
}

// checkStatus surfaces a non-success status as a WireError carrying the raw
// response body for diagnosis.
func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	bodyBytes, _ := io.ReadAll(resp.Body)
	return &WireError{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Body:       string(bodyBytes),
	}
}
