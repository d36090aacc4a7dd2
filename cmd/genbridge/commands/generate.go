package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/genbridge-dev/genbridge/internal/app"
	"github.com/genbridge-dev/genbridge/internal/genai"
)

func generateCommand() *cli.Command {
	return &cli.Command{
		Name:      "generate",
		Usage:     "Send a prompt to the configured upstream and print the response",
		ArgsUsage: "<prompt>",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "no-stream",
				Usage: "wait for the complete response instead of streaming",
			},
			&cli.StringFlag{
				Name:  "model",
				Usage: "model name (overrides config)",
			},
			&cli.StringFlag{
				Name:  "system",
				Usage: "system instruction",
			},
		},
		Action: generateAction,
	}
}

func generateAction(ctx context.Context, cmd *cli.Command) error {
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

	model := cfg.Gateway.Model
	if m := cmd.String("model"); m != "" {
		model = m
	}

	req := &genai.GenerateContentRequest{
		Model: model,
		Contents: []genai.Content{
			{Role: genai.RoleUser, Parts: []genai.Part{genai.TextPart(prompt)}},
		},
		SystemInstruction: cmd.String("system"),
	}

	if cmd.Bool("no-stream") {
		resp, err := client.GenerateContent(ctx, req)
		if err != nil {
			return fmt.Errorf("generation failed: %w", err)
		}
		fmt.Println(resp.Text())
		return nil
	}

	stream, err := client.GenerateContentStream(ctx, req)
	if err != nil {
		return fmt.Errorf("generation failed: %w", err)
	}
	for resp, err := range stream {
		if err != nil {
			return fmt.Errorf("stream failed: %w", err)
		}
		fmt.Fprint(os.Stdout, resp.Text())
	}
	fmt.Println()
	return nil
}
