package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2"
	"golang.org/x/term"

	"github.com/genbridge-dev/genbridge/internal/app"
	"github.com/genbridge-dev/genbridge/internal/tokensource"
)

// authCommand returns the 'auth' subcommand for managing provider authentication.
func authCommand() *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Manage upstream authentication",
		Commands: []*cli.Command{
			authSetKeyCommand(),
			authLoginQwenCommand(),
			authClearCommand(),
		},
	}
}

// authSetKeyCommand returns the 'auth set-key' subcommand.
func authSetKeyCommand() *cli.Command {
	return &cli.Command{
		Name:   "set-key",
		Usage:  "Store an API key in the configured storage",
		Action: authSetKeyAction,
	}
}

// authLoginQwenCommand returns the 'auth login-qwen' subcommand.
func authLoginQwenCommand() *cli.Command {
	return &cli.Command{
		Name:   "login-qwen",
		Usage:  "Login to Qwen via OAuth device flow and save credentials",
		Action: authLoginQwenAction,
	}
}

// authClearCommand returns the 'auth clear' subcommand.
func authClearCommand() *cli.Command {
	return &cli.Command{
		Name:   "clear",
		Usage:  "Clear stored credentials",
		Action: authClearAction,
	}
}

// authSetKeyAction reads an API key from the terminal and persists it.
func authSetKeyAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if cfg.Auth.Storage == app.TokenStorageTypeEnv {
		return fmt.Errorf("cannot store keys with env storage (read-only). Configure keyring storage")
	}

	store, err := cfg.Auth.NewTokenStore()
	if err != nil {
		return fmt.Errorf("failed to create token store: %w", err)
	}

	key, err := readSecureInput(ctx, "Enter API key: ")
	if err != nil {
		return err
	}
	if key == "" {
		return fmt.Errorf("API key cannot be empty")
	}

	if err := store.Write(ctx, key); err != nil {
		return fmt.Errorf("failed to write key: %w", err)
	}

	fmt.Println("API key saved to configured storage")
	return nil
}

// authLoginQwenAction implements the OAuth device flow for Qwen.
func authLoginQwenAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if cfg.Auth.Storage == app.TokenStorageTypeEnv {
		return fmt.Errorf("cannot login with env storage (read-only). Configure keyring storage")
	}

	store, err := cfg.Auth.NewTokenStore()
	if err != nil {
		return fmt.Errorf("failed to create token store: %w", err)
	}

	refreshToken, err := runQwenOAuth(ctx)
	if err != nil {
		return fmt.Errorf("oauth login failed: %w", err)
	}

	if err := store.Write(ctx, refreshToken); err != nil {
		return fmt.Errorf("failed to write token: %w", err)
	}

	fmt.Println()
	fmt.Println("=== Login Successful ===")
	fmt.Println("Token saved to configured storage")
	fmt.Println("Qwen is now configured and ready to use")

	return nil
}

// authClearAction removes stored credentials.
func authClearAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if cfg.Auth.Storage == app.TokenStorageTypeEnv {
		return fmt.Errorf("cannot clear env storage (read-only). Configure keyring storage")
	}

	store, err := cfg.Auth.NewTokenStore()
	if err != nil {
		return fmt.Errorf("failed to create token store: %w", err)
	}

	// An empty write deletes the stored entry.
	if err := store.Write(ctx, ""); err != nil {
		return fmt.Errorf("failed to clear token: %w", err)
	}

	fmt.Println("Credentials cleared from configured storage")
	return nil
}

// readSecureInput reads user input with hidden display and context cancellation support.
// Goroutine+select pattern required because term.ReadPassword has no native context support.
func readSecureInput(ctx context.Context, prompt string) (string, error) {
	fmt.Print(prompt)
	defer fmt.Println()

	type result struct {
		value string
		err   error
	}
	resultCh := make(chan result, 1)

	go func() {
		inputBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
		resultCh <- result{value: string(inputBytes), err: err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-resultCh:
		if res.err != nil {
			return "", fmt.Errorf("failed to read input: %w", res.err)
		}
		return res.value, nil
	}
}

// runQwenOAuth performs the OAuth device flow for Qwen.
func runQwenOAuth(ctx context.Context) (string, error) {
	authorizer := tokensource.NewAuthorizer(tokensource.Endpoint)

	verifier := oauth2.GenerateVerifier()
	code, err := authorizer.RequestDeviceCode(ctx, verifier)
	if err != nil {
		return "", fmt.Errorf("failed to request device code: %w", err)
	}

	fmt.Println("=== Qwen OAuth Login ===")
	fmt.Println()
	fmt.Printf("1. Visit this URL in your browser:\n   %s\n\n", code.VerificationURIComplete)
	fmt.Printf("2. Confirm the code: %s\n", code.UserCode)
	fmt.Println("3. Authorize the application")
	fmt.Println()
	fmt.Println("Waiting for authorization...")

	token, err := authorizer.Poll(ctx, code, verifier)
	if err != nil {
		return "", fmt.Errorf("failed to obtain token: %w", err)
	}

	if token.RefreshToken == "" {
		return "", fmt.Errorf("token response missing refresh token")
	}

	return token.RefreshToken, nil
}
