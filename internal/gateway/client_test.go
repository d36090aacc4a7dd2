package gateway

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/genbridge-dev/genbridge/internal/genai"
	"github.com/genbridge-dev/genbridge/internal/sse"
)

func newUserRequest(text string) *genai.GenerateContentRequest {
	return &genai.GenerateContentRequest{
		Model: "test-model",
		Contents: []genai.Content{
			{Role: genai.RoleUser, Parts: []genai.Part{genai.TextPart(text)}},
		},
	}
}

func TestNew(t *testing.T) {
	t.Run("empty endpoint rejected", func(t *testing.T) {
		_, err := New(Config{})
		assert.Error(t, err)
	})

	t.Run("empty format defaults to openai", func(t *testing.T) {
		c, err := New(Config{Endpoint: "https://example.com/v1"})
		require.NoError(t, err)
		assert.Equal(t, FormatOpenAI, c.cfg.Format)
	})
}

func TestGenerateContent_OpenAI(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody []byte

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotBody, _ = io.ReadAll(r.Body)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "hello"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 3, "completion_tokens": 1, "total_tokens": 4}
		}`))
	}))
	defer srv.Close()

	c, err := New(Config{Endpoint: srv.URL + "/v1", APIKey: "sk-test"})
	require.NoError(t, err)

	out, err := c.GenerateContent(context.Background(), newUserRequest("hi"))
	require.NoError(t, err)

	assert.Equal(t, "/v1/chat/completions", gotPath)
	assert.Equal(t, "Bearer sk-test", gotAuth)
	assert.Equal(t, "test-model", gjson.GetBytes(gotBody, "model").String())
	assert.False(t, gjson.GetBytes(gotBody, "stream").Bool())

	assert.Equal(t, "hello", out.Text())
	assert.Equal(t, genai.FinishReasonStop, out.FinishReason)
	require.NotNil(t, out.Usage)
	assert.Equal(t, 4, out.Usage.TotalTokenCount)
}

// A third-party endpoint must be spoken to in the OpenAI-compatible protocol
// even when the client is configured for Anthropic.
func TestGenerateContent_ThirdPartyEndpointOverridesAnthropicConfig(t *testing.T) {
	var gotBody []byte

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		assert.Empty(t, r.Header.Get("x-api-key"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices": [{"message": {"content": "ok"}, "finish_reason": "stop"}]}`))
	}))
	defer srv.Close()

	c, err := New(Config{Format: FormatAnthropic, Endpoint: srv.URL, APIKey: "k"})
	require.NoError(t, err)

	out, err := c.GenerateContent(context.Background(), newUserRequest("hi"))
	require.NoError(t, err)
	assert.Equal(t, "ok", out.Text())

	// OpenAI wire shape: messages array, not an Anthropic system/messages split.
	assert.True(t, gjson.GetBytes(gotBody, "messages").IsArray())
	assert.False(t, gjson.GetBytes(gotBody, "max_tokens").Exists())
}

func TestGenerateContent_WireError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error": {"message": "model not found"}}`))
	}))
	defer srv.Close()

	c, err := New(Config{Endpoint: srv.URL})
	require.NoError(t, err)

	_, err = c.GenerateContent(context.Background(), newUserRequest("hi"))

	var wireErr *WireError
	require.ErrorAs(t, err, &wireErr)
	assert.Equal(t, http.StatusNotFound, wireErr.StatusCode)
	assert.Contains(t, wireErr.Body, "model not found")
	assert.Contains(t, wireErr.Error(), "404")
}

func TestGenerateContent_EmptyResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices": []}`))
	}))
	defer srv.Close()

	c, err := New(Config{Endpoint: srv.URL})
	require.NoError(t, err)

	_, err = c.GenerateContent(context.Background(), newUserRequest("hi"))
	assert.ErrorIs(t, err, genai.ErrEmptyResponse)
}

func TestGenerateContentStream_OpenAI(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.True(t, gjson.GetBytes(body, "stream").Bool())

		w.Header().Set("Content-Type", "text/event-stream")
		chunks := []string{
			`{"choices":[{"delta":{"role":"assistant"}}]}`,
			`{"choices":[{"delta":{"content":"hel"}}]}`,
			`{"choices":[{"delta":{"content":"lo"}}]}`,
			`{"choices":[{"delta":{},"finish_reason":"stop"}]}`,
			"[DONE]",
		}
		for _, chunk := range chunks {
			_, _ = io.WriteString(w, "data: "+chunk+"\n\n")
		}
	}))
	defer srv.Close()

	c, err := New(Config{Endpoint: srv.URL})
	require.NoError(t, err)

	stream, err := c.GenerateContentStream(context.Background(), newUserRequest("hi"))
	require.NoError(t, err)

	var texts []string
	var terminals int
	for resp, err := range stream {
		require.NoError(t, err)
		if len(resp.Parts) == 0 {
			assert.Equal(t, genai.FinishReasonStop, resp.FinishReason)
			terminals++
			continue
		}
		texts = append(texts, resp.Text())
	}

	// Contentless chunks are suppressed; exactly one terminal response ends the
	// sequence.
	assert.Equal(t, []string{"hel", "lo"}, texts)
	assert.Equal(t, 1, terminals)
}

type closeRecordingBody struct {
	io.Reader
	closed atomic.Bool
}

func (b *closeRecordingBody) Close() error {
	b.closed.Store(true)
	return nil
}

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

// A sequence that is never ranged must not hold the upstream connection past
// context cancellation.
func TestGenerateContentStream_AbandonedSequenceReleasesBody(t *testing.T) {
	body := &closeRecordingBody{Reader: strings.NewReader("data: [DONE]\n\n")}
	transport := roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusOK,
			Status:     "200 OK",
			Body:       body,
			Header:     http.Header{"Content-Type": []string{"text/event-stream"}},
		}, nil
	})

	c, err := New(Config{
		Endpoint:   "https://example.com/v1",
		HTTPClient: &http.Client{Transport: transport},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	_, err = c.GenerateContentStream(ctx, newUserRequest("hi"))
	require.NoError(t, err)

	assert.False(t, body.closed.Load())
	cancel()

	assert.Eventually(t, body.closed.Load, time.Second, 10*time.Millisecond)
}

func TestGenerateContentStream_StatusErrorBeforeStreaming(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte("slow down"))
	}))
	defer srv.Close()

	c, err := New(Config{Endpoint: srv.URL})
	require.NoError(t, err)

	_, err = c.GenerateContentStream(context.Background(), newUserRequest("hi"))

	var wireErr *WireError
	require.ErrorAs(t, err, &wireErr)
	assert.Equal(t, http.StatusTooManyRequests, wireErr.StatusCode)
}

func TestStreamAnthropic(t *testing.T) {
	fixture := strings.Join([]string{
		`data: {"type":"message_start","message":{"id":"msg_1"}}`,
		`data: {"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}`,
		`data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"hi"}}`,
		`data: {"type":"content_block_stop","index":0}`,
		`data: {"type":"message_delta","delta":{"stop_reason":"end_turn"}}`,
		`data: {"type":"message_stop"}`,
	}, "\n\n") + "\n\n"

	c, err := New(Config{Format: FormatAnthropic, Endpoint: "https://api.anthropic.com"})
	require.NoError(t, err)

	var got []*genai.GenerateContentResponse
	c.streamAnthropic(sse.NewDecoder(strings.NewReader(fixture)), func(resp *genai.GenerateContentResponse, err error) bool {
		require.NoError(t, err)
		got = append(got, resp)
		return true
	})

	require.Len(t, got, 2)
	assert.Equal(t, "hi", got[0].Text())
	assert.Empty(t, got[1].Parts)
	assert.Equal(t, genai.FinishReasonStop, got[1].FinishReason)
}

// Transport EOF without message_stop still yields the terminal response.
func TestStreamAnthropic_EOFWithoutMessageStop(t *testing.T) {
	fixture := `data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"partial"}}` + "\n"

	c, err := New(Config{Format: FormatAnthropic, Endpoint: "https://api.anthropic.com"})
	require.NoError(t, err)

	var got []*genai.GenerateContentResponse
	c.streamAnthropic(sse.NewDecoder(strings.NewReader(fixture)), func(resp *genai.GenerateContentResponse, err error) bool {
		require.NoError(t, err)
		got = append(got, resp)
		return true
	})

	require.Len(t, got, 2)
	assert.Equal(t, "partial", got[0].Text())
	assert.Equal(t, genai.FinishReasonStop, got[1].FinishReason)
}

func TestNewWireRequest_Anthropic(t *testing.T) {
	c, err := New(Config{Format: FormatAnthropic, Endpoint: "https://api.anthropic.com", APIKey: "sk-ant"})
	require.NoError(t, err)

	req, err := c.newWireRequest(context.Background(), FormatAnthropic, newUserRequest("hi"), true)
	require.NoError(t, err)

	assert.Equal(t, "https://api.anthropic.com/v1/messages", req.URL.String())
	assert.Equal(t, "sk-ant", req.Header.Get("x-api-key"))
	assert.Equal(t, anthropicVersion, req.Header.Get("anthropic-version"))
	assert.Empty(t, req.Header.Get("Authorization"))

	body, _ := io.ReadAll(req.Body)
	assert.True(t, gjson.GetBytes(body, "stream").Bool())
	assert.Equal(t, int64(4096), gjson.GetBytes(body, "max_tokens").Int())
	assert.True(t, json.Valid(body))
}

func TestCountTokens(t *testing.T) {
	c, err := New(Config{Endpoint: "https://example.com/v1"})
	require.NoError(t, err)

	t.Run("40 characters is 10 tokens", func(t *testing.T) {
		total, err := c.CountTokens(context.Background(), newUserRequest(strings.Repeat("a", 40)))
		require.NoError(t, err)
		assert.Equal(t, 10, total)
	})

	t.Run("rounds up", func(t *testing.T) {
		total, err := c.CountTokens(context.Background(), newUserRequest("abcde"))
		require.NoError(t, err)
		assert.Equal(t, 2, total)
	})

	t.Run("counts runes not bytes", func(t *testing.T) {
		total, err := c.CountTokens(context.Background(), newUserRequest(strings.Repeat("日", 4)))
		require.NoError(t, err)
		assert.Equal(t, 1, total)
	})

	t.Run("empty request", func(t *testing.T) {
		total, err := c.CountTokens(context.Background(), &genai.GenerateContentRequest{})
		require.NoError(t, err)
		assert.Equal(t, 0, total)
	})
}

func TestEmbedContent_Unsupported(t *testing.T) {
	c, err := New(Config{Endpoint: "https://example.com/v1"})
	require.NoError(t, err)

	_, err = c.EmbedContent(context.Background(), newUserRequest("hi"))
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestEndpointURLs(t *testing.T) {
	assert.Equal(t, "https://x.test/v1/chat/completions", openAIURL("https://x.test/v1"))
	assert.Equal(t, "https://x.test/v1/chat/completions", openAIURL("https://x.test/v1/"))
	assert.Equal(t, "https://x.test/v1/chat/completions", openAIURL("https://x.test/v1/chat/completions"))

	assert.Equal(t, "https://api.anthropic.com/v1/messages", anthropicURL("https://api.anthropic.com"))
	assert.Equal(t, "https://api.anthropic.com/v1/messages", anthropicURL("https://api.anthropic.com/v1/messages"))
}
