package tokensource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

// refreshTokenSource mints access tokens from a long-lived refresh token.
// It implements oauth2.TokenSource; wrap it in oauth2.ReuseTokenSource so
// tokens are cached until near expiry.
type refreshTokenSource struct {
	endpoint oauth2.Endpoint
	client   *http.Client

	mu           sync.Mutex
	refreshToken string
}

// Option configures a token source.
type Option func(*refreshTokenSource)

// WithTransport sets the base transport for token refresh requests.
func WithTransport(transport http.RoundTripper) Option {
	return func(ts *refreshTokenSource) {
		ts.client.Transport = transport
	}
}

// NewTokenSource creates an auto-refreshing token source from an OAuth2
// refresh token. The returned source is safe for concurrent use.
func NewTokenSource(refreshToken string, endpoint oauth2.Endpoint, opts ...Option) (oauth2.TokenSource, error) {
	if refreshToken == "" {
		return nil, errors.New("refresh token cannot be empty")
	}

	ts := &refreshTokenSource{
		endpoint:     endpoint,
		refreshToken: refreshToken,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(ts)
	}

	return oauth2.ReuseTokenSource(nil, ts), nil
}

// Token requests a fresh access token. Qwen rotates refresh tokens on use, so
// the rotated token replaces the stored one for the next refresh.
func (ts *refreshTokenSource) Token() (*oauth2.Token, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	form := url.Values{
		"grant_type":    {"refresh_token"},
		"client_id":     {ClientID},
		"refresh_token": {ts.refreshToken},
	}

	req, err := http.NewRequestWithContext(ctx, "POST", ts.endpoint.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("creating refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	now := time.Now()
	resp, err := ts.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("refresh request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("refresh failed with status %d", resp.StatusCode)
	}

	var token oauth2.Token
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return nil, fmt.Errorf("decoding refresh response: %w", err)
	}

	// Convert ExpiresIn to Expiry (see oauth2.Token.ExpiresIn field documentation)
	if token.ExpiresIn > 0 {
		token.Expiry = now.Add(time.Duration(token.ExpiresIn) * time.Second)
	}

	if token.RefreshToken != "" {
		ts.refreshToken = token.RefreshToken
	}

	return &token, nil
}
