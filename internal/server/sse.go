package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// SSEWriter writes server-sent events, flushing after each frame so chunks
// reach the client without buffering.
type SSEWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewSSEWriter prepares w for an SSE response. It fails when the underlying
// writer cannot flush, since buffered SSE defeats streaming.
func NewSSEWriter(w http.ResponseWriter) (*SSEWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, errors.New("response writer does not support flushing")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	return &SSEWriter{w: w, flusher: flusher}, nil
}

// WriteEvent writes an event type line. The next WriteData call completes the
// frame.
func (s *SSEWriter) WriteEvent(event string) error {
	if _, err := fmt.Fprintf(s.w, "event: %s\n", event); err != nil {
		return fmt.Errorf("writing event type: %w", err)
	}
	return nil
}

// WriteData marshals data as JSON and writes it as an SSE data frame.
func (s *SSEWriter) WriteData(data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshaling SSE data: %w", err)
	}
	return s.WriteRaw(string(payload))
}

// WriteRaw writes a pre-encoded data frame, e.g. the [DONE] marker.
func (s *SSEWriter) WriteRaw(data string) error {
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("writing data frame: %w", err)
	}
	s.flusher.Flush()
	return nil
}
