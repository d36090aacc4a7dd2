package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
)

// errorResponse is the wire shape of error replies.
type errorResponse struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

// writeJSON writes a JSON response with the given status code.
// Logs encoding failures internally using the provided context.
func writeJSON(ctx context.Context, w http.ResponseWriter, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	// Headers and status are written before encoding to avoid buffering.
	// If encoding fails, the client may receive a partial response.
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.ErrorContext(ctx, "failed to encode JSON response", "error", err)
	}
}

func writeJSONError(ctx context.Context, w http.ResponseWriter, status int, message string) {
	writeJSON(ctx, w, &errorResponse{
		Error: errorDetail{
			Code:    status,
			Message: message,
			Status:  http.StatusText(status),
		},
	}, status)
}

// errorBody builds the error payload used inside SSE streams, where the HTTP
// status is already committed.
func errorBody(err error) *errorResponse {
	return &errorResponse{
		Error: errorDetail{
			Code:    http.StatusBadGateway,
			Message: err.Error(),
			Status:  http.StatusText(http.StatusBadGateway),
		},
	}
}
