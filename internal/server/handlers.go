package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/genbridge-dev/genbridge/internal/gateway"
	"github.com/genbridge-dev/genbridge/internal/genai"
	"github.com/genbridge-dev/genbridge/internal/observability/middleware"
)

// modelHandler dispatches /v1/models/{model}:{operation} requests.
type modelHandler struct {
	upstream Generator
}

var _ http.Handler = (*modelHandler)(nil)

func (h *modelHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	model, op, ok := strings.Cut(r.PathValue("modelAndOp"), ":")
	if !ok || model == "" || op == "" {
		writeJSONError(ctx, w, http.StatusNotFound, "expected path of form /v1/models/{model}:{operation}")
		return
	}
	middleware.SetLogAttrs(ctx, slog.String("model", model), slog.String("operation", op))

	var req genai.GenerateContentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			slog.WarnContext(ctx, "request exceeds size limit", "limit_bytes", maxBytesErr.Limit)
			writeJSONError(ctx, w, http.StatusRequestEntityTooLarge, http.StatusText(http.StatusRequestEntityTooLarge))
			return
		}
		slog.ErrorContext(ctx, "failed to decode request", "error", err)
		writeJSONError(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Model = model

	switch op {
	case "generateContent":
		h.generateContent(ctx, w, &req)
	case "streamGenerateContent":
		h.streamGenerateContent(ctx, w, &req)
	case "countTokens":
		h.countTokens(ctx, w, &req)
	default:
		writeJSONError(ctx, w, http.StatusNotFound, "unknown operation "+op)
	}
}

func (h *modelHandler) generateContent(ctx context.Context, w http.ResponseWriter, req *genai.GenerateContentRequest) {
	if ctx.Err() != nil {
		return
	}
	resp, err := h.upstream.GenerateContent(ctx, req)
	if err != nil {
		slog.ErrorContext(ctx, "request failed", "error", err)
		writeUpstreamError(ctx, w, err)
		return
	}

	writeJSON(ctx, w, resp, http.StatusOK)
}

// streamGenerateContent streams canonical responses using SSE.
func (h *modelHandler) streamGenerateContent(ctx context.Context, w http.ResponseWriter, req *genai.GenerateContentRequest) {
	if ctx.Err() != nil {
		return
	}
	stream, err := h.upstream.GenerateContentStream(ctx, req)
	if err != nil {
		slog.ErrorContext(ctx, "streaming request failed", "error", err)
		writeUpstreamError(ctx, w, err)
		return
	}

	sse, err := NewSSEWriter(w)
	if err != nil {
		slog.ErrorContext(ctx, "SSE not supported", "error", err)
		writeJSONError(ctx, w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
		return
	}

	for resp, err := range stream {
		if ctx.Err() != nil {
			slog.DebugContext(ctx, "client disconnected during stream")
			return
		}

		if err != nil {
			slog.ErrorContext(ctx, "stream error", "error", err)
			if writeErr := sse.WriteEvent("error"); writeErr != nil {
				slog.ErrorContext(ctx, "failed to write error event type", "error", writeErr)
				return
			}
			if writeErr := sse.WriteData(errorBody(err)); writeErr != nil {
				slog.ErrorContext(ctx, "failed to write error", "error", writeErr)
			}
			return
		}

		if err := sse.WriteData(resp); err != nil {
			slog.ErrorContext(ctx, "failed to write chunk", "error", err)
			return
		}
	}

	if err := sse.WriteRaw("[DONE]"); err != nil {
		slog.ErrorContext(ctx, "failed to write stream termination marker", "error", err)
	}
}

func (h *modelHandler) countTokens(ctx context.Context, w http.ResponseWriter, req *genai.GenerateContentRequest) {
	if ctx.Err() != nil {
		return
	}
	total, err := h.upstream.CountTokens(ctx, req)
	if err != nil {
		slog.ErrorContext(ctx, "token count failed", "error", err)
		writeUpstreamError(ctx, w, err)
		return
	}

	writeJSON(ctx, w, map[string]int{"totalTokens": total}, http.StatusOK)
}

// writeUpstreamError maps gateway errors to HTTP status codes. Upstream wire
// errors and empty responses surface as 502 so clients can distinguish backend
// failures from gateway bugs.
func writeUpstreamError(ctx context.Context, w http.ResponseWriter, err error) {
	var wireErr *gateway.WireError
	switch {
	case errors.As(err, &wireErr):
		writeJSONError(ctx, w, http.StatusBadGateway, wireErr.Error())
	case errors.Is(err, genai.ErrEmptyResponse):
		writeJSONError(ctx, w, http.StatusBadGateway, err.Error())
	case errors.Is(err, gateway.ErrUnsupported):
		writeJSONError(ctx, w, http.StatusNotImplemented, err.Error())
	case errors.Is(err, context.Canceled):
		// Client went away; nothing useful to write.
	default:
		writeJSONError(ctx, w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
	}
}
