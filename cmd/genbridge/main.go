package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/genbridge-dev/genbridge/cmd/genbridge/commands"
)

// Set via -ldflags at release time.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	// Local development convenience; a missing .env file is not an error.
	_ = godotenv.Load()

	// SIGINT/SIGTERM cancel the root context, which drains the server and
	// aborts in-flight upstream calls.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := commands.Execute(ctx, os.Args, version, commit); err != nil {
		slog.ErrorContext(ctx, "genbridge failed", "error", err)
		os.Exit(1)
	}
}
