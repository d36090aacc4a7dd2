// Package tokensource provides OAuth2 token acquisition and automatic refresh
// for Qwen model endpoints.
//
// Qwen uses the OAuth2 device authorization grant (RFC 8628) with PKCE:
//   - The device code request carries a S256 code challenge
//   - The token poll repeats the code verifier
//   - Token responses report lifetime via expires_in
//
// # Device Authorization Flow
//
// Use Authorizer for the initial flow to obtain refresh tokens:
//
//	auth := tokensource.NewAuthorizer(tokensource.Endpoint)
//	verifier := oauth2.GenerateVerifier() // Save for Poll call
//	code, err := auth.RequestDeviceCode(ctx, verifier)
//	// Show code.VerificationURIComplete to the user, then:
//	token, err := auth.Poll(ctx, code, verifier)
//	// Save token.RefreshToken for future use
//
// # Token Sources
//
// Use NewTokenSource for OAuth2 refresh tokens:
//
//	ts := tokensource.NewTokenSource(refreshToken, tokensource.Endpoint)
//	// TokenSource implements oauth2.TokenSource and can be used with oauth2.Transport
package tokensource
