// Package commands implements the genbridge CLI.
package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/genbridge-dev/genbridge/internal/app"
	"github.com/genbridge-dev/genbridge/internal/observability"
)

// Execute runs the root command with the given context and arguments.
func Execute(ctx context.Context, args []string, version, commit string) error {
	cmd := &cli.Command{
		Name:    "genbridge",
		Usage:   "Multi-format generation gateway",
		Version: fmt.Sprintf("%s (commit %s)", version, commit),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "log level (debug|info|warn|error)",
				Value: slog.LevelInfo.String(),
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "log format (text|json|otlp)",
				Value: "text",
			},
			&cli.StringFlag{
				Name:    "config",
				Usage:   "path to TOML config file",
				Sources: cli.EnvVars("GENBRIDGE_CONFIG"),
			},
		},
		Commands: []*cli.Command{
			serveCommand(),
			generateCommand(),
			countTokensCommand(),
			authCommand(),
		},
	}

	return cmd.Run(ctx, args)
}

// instrument sets up the process-wide logger from root flags and returns the
// telemetry shutdown function.
func instrument(ctx context.Context, cmd *cli.Command) (func(context.Context) error, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cmd.String("log-level"))); err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	shutdown, err := observability.Instrument(ctx, level, cmd.String("log-format"))
	if err != nil {
		return nil, fmt.Errorf("failed to set up observability layer: %w", err)
	}
	return shutdown, nil
}

func loadConfig(cmd *cli.Command) (*app.Config, error) {
	cfg, err := app.LoadConfig(cmd.String("config"), os.Environ)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}
