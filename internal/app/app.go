// Package app wires configuration, credentials, the gateway client, and the
// HTTP server into one runnable unit.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"

	"github.com/genbridge-dev/genbridge/internal/gateway"
	"github.com/genbridge-dev/genbridge/internal/server"
	"github.com/genbridge-dev/genbridge/internal/tokensource"
)

// App orchestrates the lifecycle of the gateway server and related services.
type App struct {
	cfg    *Config
	server *server.Server
	health *Health
}

// New creates a new App instance. The upstream credential is resolved once at
// startup; Qwen refresh tokens rotate transparently afterwards.
func New(ctx context.Context, cfg *Config) (*App, error) {
	client, err := NewGatewayClient(ctx, cfg)
	if err != nil {
		return nil, err
	}

	health := NewHealth()
	srv, err := server.New(client, health)
	if err != nil {
		return nil, fmt.Errorf("failed to create server: %w", err)
	}

	return &App{
		cfg:    cfg,
		server: srv,
		health: health,
	}, nil
}

// NewGatewayClient builds the upstream client from configuration. Qwen
// endpoints authenticate with an auto-refreshing OAuth token; the other
// formats use the stored secret as a static API key.
func NewGatewayClient(ctx context.Context, cfg *Config) (*gateway.Client, error) {
	store, err := cfg.Auth.NewTokenStore()
	if err != nil {
		return nil, fmt.Errorf("failed to create token store: %w", err)
	}

	secret, err := store.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read credential: %w", err)
	}

	gwCfg := gateway.Config{
		Format:   gateway.Format(cfg.Gateway.Format),
		Endpoint: cfg.Gateway.Endpoint,
	}

	if gwCfg.Format == gateway.FormatQwen {
		// The stored secret is an OAuth refresh token. oauth2.Transport
		// overrides the Authorization header, so no static key is set.
		ts, err := tokensource.NewTokenSource(secret, tokensource.Endpoint)
		if err != nil {
			return nil, fmt.Errorf("failed to create token source: %w", err)
		}
		gwCfg.HTTPClient = &http.Client{
			Transport: &oauth2.Transport{Source: ts},
		}
	} else {
		gwCfg.APIKey = secret
	}

	client, err := gateway.New(gwCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create gateway client: %w", err)
	}
	return client, nil
}

// Start starts all services and blocks until shutdown is triggered.
// Uses errgroup for runtime error monitoring and shutdown function collection for coordinated cleanup.
func (a *App) Start(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	var shutdownFuncs []func(context.Context) error

	// Startup phase: Start services
	slog.InfoContext(gCtx, "starting gateway server")
	serverErrCh, err := a.server.Start(gCtx, a.cfg.Listen)
	if err != nil {
		return fmt.Errorf("server startup failed: %w", err)
	}
	shutdownFuncs = append(shutdownFuncs, a.server.Shutdown)

	a.health.SetReady(true)

	// Monitor runtime errors - errgroup cancels context on first error
	g.Go(func() error {
		select {
		case err := <-serverErrCh:
			if err != nil {
				slog.ErrorContext(gCtx, "server runtime error", "error", err)
				return fmt.Errorf("server: %w", err)
			}
			return nil
		case <-gCtx.Done():
			return nil
		}
	})

	runtimeErr := g.Wait()

	a.health.SetReady(false)
	slog.InfoContext(gCtx, "shutting down services")

	// Shutdown phase: Stop all services
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var errs []error
	if runtimeErr != nil {
		errs = append(errs, fmt.Errorf("runtime: %w", runtimeErr))
	}

	for i := len(shutdownFuncs) - 1; i >= 0; i-- {
		if err := shutdownFuncs[i](shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "service shutdown failed", "error", err)
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	slog.Info("application stopped")
	return nil
}
