package tokensource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// ClientID is the public OAuth2 client identifier for Qwen device
// authorization.
const ClientID = "f0304373b74a44d2b584a3fb70ca9e56"

var scopes = []string{"openid", "profile", "email", "model.completion"}

// Endpoint is the Qwen OAuth2 device authorization endpoint.
var Endpoint = oauth2.Endpoint{
	DeviceAuthURL: "https://chat.qwen.ai/api/v1/oauth2/device/code",
	TokenURL:      "https://chat.qwen.ai/api/v1/oauth2/token",
}

// ErrAuthorizationPending is returned by Poll when the user has not yet
// completed authorization and the deadline passed.
var ErrAuthorizationPending = errors.New("authorization pending")

// DeviceCode holds the response of a device code request.
type DeviceCode struct {
	DeviceCode              string `json:"device_code"`
	UserCode                string `json:"user_code"`
	VerificationURI         string `json:"verification_uri"`
	VerificationURIComplete string `json:"verification_uri_complete"`
	ExpiresIn               int    `json:"expires_in"`
	Interval                int    `json:"interval"`
}

// Authorizer handles the OAuth2 device authorization flow for Qwen.
// It uses manual HTTP requests because Qwen requires the PKCE code challenge
// already on the device code request, which the oauth2 package does not send.
type Authorizer struct {
	endpoint oauth2.Endpoint
	client   *http.Client
}

// NewAuthorizer creates a new Qwen OAuth device flow authorizer.
func NewAuthorizer(endpoint oauth2.Endpoint) *Authorizer {
	return &Authorizer{
		endpoint: endpoint,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// RequestDeviceCode starts the device authorization flow. The verifier is a
// PKCE code verifier (oauth2.GenerateVerifier); its S256 challenge is bound to
// the issued device code. Caller must persist the verifier and provide the
// same value to Poll.
func (a *Authorizer) RequestDeviceCode(ctx context.Context, verifier string) (*DeviceCode, error) {
	if verifier == "" {
		return nil, errors.New("verifier cannot be empty")
	}

	form := url.Values{
		"client_id":             {ClientID},
		"scope":                 {strings.Join(scopes, " ")},
		"code_challenge":        {oauth2.S256ChallengeFromVerifier(verifier)},
		"code_challenge_method": {"S256"},
	}

	req, err := http.NewRequestWithContext(ctx, "POST", a.endpoint.DeviceAuthURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("creating device code request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("device code request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("device code request failed with status %d", resp.StatusCode)
	}

	var code DeviceCode
	if err := json.NewDecoder(resp.Body).Decode(&code); err != nil {
		return nil, fmt.Errorf("decoding device code response: %w", err)
	}
	if code.DeviceCode == "" {
		return nil, errors.New("device code response missing device_code")
	}

	return &code, nil
}

// Poll exchanges the device code for tokens, retrying at the server-requested
// interval while the user completes authorization in the browser. Verifier
// must be the same value passed to RequestDeviceCode. Poll returns when the
// token is issued, the device code expires, or ctx is canceled.
func (a *Authorizer) Poll(ctx context.Context, code *DeviceCode, verifier string) (*oauth2.Token, error) {
	interval := time.Duration(code.Interval) * time.Second
	if interval <= 0 {
		interval = 5 * time.Second
	}

	deadline := time.Now().Add(time.Duration(code.ExpiresIn) * time.Second)
	for {
		token, retry, err := a.pollOnce(ctx, code.DeviceCode, verifier)
		if err != nil {
			return nil, err
		}
		if token != nil {
			return token, nil
		}
		if retry {
			// RFC 8628 slow_down: back off by five seconds.
			interval += 5 * time.Second
		}

		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: device code expired", ErrAuthorizationPending)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(interval):
		}
	}
}

// pollOnce performs a single token poll. A nil token with nil error means the
// authorization is still pending; retry reports a slow_down response.
func (a *Authorizer) pollOnce(ctx context.Context, deviceCode, verifier string) (token *oauth2.Token, retry bool, err error) {
	form := url.Values{
		"grant_type":    {"urn:ietf:params:oauth:grant-type:device_code"},
		"client_id":     {ClientID},
		"device_code":   {deviceCode},
		"code_verifier": {verifier},
	}

	req, err := http.NewRequestWithContext(ctx, "POST", a.endpoint.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, false, fmt.Errorf("creating token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	now := time.Now()
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("token request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusOK {
		var t oauth2.Token
		if err := json.NewDecoder(resp.Body).Decode(&t); err != nil {
			return nil, false, fmt.Errorf("decoding token response: %w", err)
		}

		// Convert ExpiresIn to Expiry (see oauth2.Token.ExpiresIn field documentation)
		if t.ExpiresIn > 0 {
			t.Expiry = now.Add(time.Duration(t.ExpiresIn) * time.Second)
		}

		return &t, false, nil
	}

	var oauthErr struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&oauthErr); err != nil {
		return nil, false, fmt.Errorf("token poll failed with status %d", resp.StatusCode)
	}

	switch oauthErr.Error {
	case "authorization_pending":
		return nil, false, nil
	case "slow_down":
		return nil, true, nil
	default:
		return nil, false, fmt.Errorf("token poll failed: %s (status %d)", oauthErr.Error, resp.StatusCode)
	}
}
