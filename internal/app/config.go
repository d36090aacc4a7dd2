package app

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/genbridge-dev/genbridge/internal/credentials"
	"github.com/genbridge-dev/genbridge/internal/gateway"
)

// envPrefix namespaces environment variable overrides, e.g.
// GENBRIDGE_GATEWAY_ENDPOINT maps to gateway.endpoint.
const envPrefix = "GENBRIDGE_"

// TokenStorageType selects where the upstream credential lives.
type TokenStorageType string

const (
	TokenStorageTypeEnv     TokenStorageType = "env"
	TokenStorageTypeKeyring TokenStorageType = "keyring"
)

// Config is the application configuration, merged from defaults, an optional
// TOML file, and environment variables (highest precedence).
type Config struct {
	Listen  string        `koanf:"listen" validate:"required,hostname_port"`
	Gateway GatewayConfig `koanf:"gateway"`
	Auth    AuthConfig    `koanf:"auth"`
}

// GatewayConfig configures the upstream connection.
type GatewayConfig struct {
	// Format is the configured wire protocol. Empty selects OpenAI-compatible.
	// Third-party endpoints are always OpenAI-compatible regardless of this
	// setting; see gateway.ResolveFormat.
	Format   string `koanf:"format" validate:"omitempty,oneof=openai anthropic qwen"`
	Endpoint string `koanf:"endpoint" validate:"required,url"`
	Model    string `koanf:"model" validate:"required"`
}

// AuthConfig configures credential storage.
type AuthConfig struct {
	Storage TokenStorageType `koanf:"storage" validate:"required,oneof=env keyring"`

	// Env is the environment variable read by the env storage backend.
	Env string `koanf:"env"`

	// Service and User identify the keyring entry.
	Service string `koanf:"service"`
	User    string `koanf:"user"`
}

// NewTokenStore returns the credential store selected by Storage.
func (c AuthConfig) NewTokenStore() (credentials.Store, error) {
	switch c.Storage {
	case TokenStorageTypeEnv:
		return &credentials.EnvStore{Var: c.Env}, nil
	case TokenStorageTypeKeyring:
		return &credentials.KeyringStore{Service: c.Service, User: c.User}, nil
	default:
		return nil, fmt.Errorf("unknown token storage type %q", c.Storage)
	}
}

func defaults() map[string]any {
	return map[string]any{
		"listen":           "127.0.0.1:8080",
		"gateway.format":   string(gateway.FormatOpenAI),
		"gateway.model":    "qwen3-coder-plus",
		"gateway.endpoint": "https://dashscope.aliyuncs.com/compatible-mode/v1",
		"auth.storage":     string(TokenStorageTypeEnv),
		"auth.env":         "GENBRIDGE_API_KEY",
		"auth.service":     "genbridge",
		"auth.user":        "default",
	}
}

// LoadConfig merges defaults, the optional TOML file at path, and GENBRIDGE_*
// environment variables, then validates the result. environ is injectable for
// tests (pass os.Environ in production).
func LoadConfig(path string, environ func() []string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	err := k.Load(env.Provider(".", env.Opt{
		Prefix:      envPrefix,
		EnvironFunc: environ,
		TransformFunc: func(key, value string) (string, any) {
			key = strings.ToLower(strings.TrimPrefix(key, envPrefix))
			return strings.ReplaceAll(key, "_", "."), value
		},
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}
