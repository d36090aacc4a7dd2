package commands

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/genbridge-dev/genbridge/internal/app"
	"github.com/genbridge-dev/genbridge/internal/genai"
)

func countTokensCommand() *cli.Command {
	return &cli.Command{
		Name:      "count-tokens",
		Usage:     "Estimate the token count of a prompt",
		ArgsUsage: "<prompt>",
		Action:    countTokensAction,
	}
}

func countTokensAction(ctx context.Context, cmd *cli.Command) error {
	shutdown, err := instrument(ctx, cmd)
	if err != nil {
		return err
	}
	defer func() { _ = shutdown(context.Background()) }()

	prompt := cmd.Args().First()
	if prompt == "" {
		return fmt.Errorf("prompt argument is required")
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	client, err := app.NewGatewayClient(ctx, cfg)
	if err != nil {
		return err
	}

	total, err := client.CountTokens(ctx, &genai.GenerateContentRequest{
		Model: cfg.Gateway.Model,
		Contents: []genai.Content{
			{Role: genai.RoleUser, Parts: []genai.Part{genai.TextPart(prompt)}},
		},
	})
	if err != nil {
		return fmt.Errorf("token count failed: %w", err)
	}

	fmt.Println(total)
	return nil
}
