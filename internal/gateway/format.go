package gateway

import "net/url"

// Format identifies one of the wire protocols the gateway can speak.
type Format string

const (
	FormatOpenAI    Format = "openai"
	FormatAnthropic Format = "anthropic"
	FormatQwen      Format = "qwen"
)

// anthropicHost is the official Anthropic API host. Only this exact host keeps
// an explicit Anthropic configuration.
const anthropicHost = "api.anthropic.com"

// ResolveFormat picks the wire protocol for one call from the configured format
// and the target endpoint. A third-party endpoint always resolves to the
// OpenAI-compatible protocol, overriding an explicit Anthropic or Qwen
// configuration; this also overrides self-hosted Anthropic-compatible gateways,
// which is a known sharp edge kept for compatibility. Pure and idempotent.
func ResolveFormat(configured Format, endpoint string) Format {
	if !isAnthropicHost(endpoint) {
		return FormatOpenAI
	}
	if configured == "" {
		return FormatOpenAI
	}
	return configured
}

func isAnthropicHost(endpoint string) bool {
	u, err := url.Parse(endpoint)
	if err != nil {
		return false
	}
	return u.Hostname() == anthropicHost
}
