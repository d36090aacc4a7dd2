// Package credentials stores and resolves upstream API keys. Two backends are
// provided: a read-only environment variable and the OS keyring.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/zalando/go-keyring"
)

// ErrReadOnly is returned by stores that cannot persist credentials.
var ErrReadOnly = errors.New("credential store is read-only")

// ErrNotFound is returned when no credential is stored.
var ErrNotFound = errors.New("no credential stored")

// Store reads and writes one secret. Writing the empty string clears it.
type Store interface {
	Read(ctx context.Context) (string, error)
	Write(ctx context.Context, secret string) error
}

// EnvStore reads a secret from an environment variable. Read-only.
type EnvStore struct {
	Var string
}

func (s *EnvStore) Read(context.Context) (string, error) {
	value := os.Getenv(s.Var)
	if value == "" {
		return "", fmt.Errorf("%w (environment variable %s)", ErrNotFound, s.Var)
	}
	return value, nil
}

func (s *EnvStore) Write(context.Context, string) error {
	return fmt.Errorf("%w (environment variable %s)", ErrReadOnly, s.Var)
}

// KeyringStore persists a secret in the OS keyring.
type KeyringStore struct {
	Service string
	User    string
}

func (s *KeyringStore) Read(context.Context) (string, error) {
	secret, err := keyring.Get(s.Service, s.User)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", fmt.Errorf("%w (keyring %s/%s)", ErrNotFound, s.Service, s.User)
	}
	if err != nil {
		return "", fmt.Errorf("read keyring: %w", err)
	}
	return secret, nil
}

func (s *KeyringStore) Write(_ context.Context, secret string) error {
	if secret == "" {
		if err := keyring.Delete(s.Service, s.User); err != nil && !errors.Is(err, keyring.ErrNotFound) {
			return fmt.Errorf("clear keyring: %w", err)
		}
		return nil
	}
	if err := keyring.Set(s.Service, s.User, secret); err != nil {
		return fmt.Errorf("write keyring: %w", err)
	}
	return nil
}
