// Package server exposes the canonical generation API over HTTP. Requests are
// decoded into the canonical schema, forwarded through the gateway, and
// answered as JSON or an SSE stream.
package server

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/genbridge-dev/genbridge/internal/genai"
	"github.com/genbridge-dev/genbridge/internal/observability/middleware"
)

const (
	// maxRequestBytes bounds request bodies. Conversations with large tool
	// results fit comfortably; anything bigger is rejected.
	maxRequestBytes = 10 << 20

	readHeaderTimeout = 10 * time.Second
)

// Generator is the upstream the server forwards canonical requests to.
type Generator interface {
	GenerateContent(ctx context.Context, req *genai.GenerateContentRequest) (*genai.GenerateContentResponse, error)
	GenerateContentStream(ctx context.Context, req *genai.GenerateContentRequest) (iter.Seq2[*genai.GenerateContentResponse, error], error)
	CountTokens(ctx context.Context, req *genai.GenerateContentRequest) (int, error)
}

// ReadinessChecker reports whether the application is ready to serve traffic.
type ReadinessChecker interface {
	IsReady() bool
}

// Server routes canonical API requests to a Generator.
type Server struct {
	handler http.Handler
	httpSrv *http.Server
}

var _ http.Handler = (*Server)(nil)

// New creates a server for the given upstream generator.
func New(upstream Generator, health ReadinessChecker) (*Server, error) {
	if upstream == nil {
		return nil, errors.New("upstream generator is required")
	}
	if health == nil {
		return nil, errors.New("readiness checker is required")
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleLiveness)
	mux.HandleFunc("GET /readyz", handleReadiness(health))
	mux.Handle("POST /v1/models/{modelAndOp}", &modelHandler{upstream: upstream})

	handler := chain(mux,
		middleware.RequestIDGeneration,
		middleware.Logging(slog.Default()),
		middleware.RequestIDPropagation,
		Recovery,
		RequestSizeLimit(maxRequestBytes),
	)

	return &Server{handler: handler}, nil
}

// ServeHTTP implements http.Handler so the full middleware stack is testable
// without a listener.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Start begins listening on addr. It returns once the listener is bound; the
// returned channel carries the terminal serve error, if any.
func (s *Server) Start(ctx context.Context, addr string) (<-chan error, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}

	s.httpSrv = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if err := s.httpSrv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	slog.InfoContext(ctx, "server listening", "addr", listener.Addr().String())
	return errCh, nil
}

// Shutdown gracefully stops the server, waiting for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	if err := s.httpSrv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}
