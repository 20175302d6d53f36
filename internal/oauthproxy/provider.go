package oauthproxy

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"basecamp-mcp/pkg/logging"
	pkgoauth "basecamp-mcp/pkg/oauth"
)

// OAuthError is an RFC 6749 error pair for the downstream wire.
type OAuthError struct {
	Code        string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

func (e *OAuthError) Error() string {
	if e.Description == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

func oauthErr(code, format string, args ...interface{}) *OAuthError {
	return &OAuthError{Code: code, Description: fmt.Sprintf(format, args...)}
}

// TokenResponse is the downstream token endpoint response body.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

// AuthContext is the verified identity attached to an authenticated
// downstream request.
type AuthContext struct {
	ClientID            string
	Scopes              []string
	UpstreamAccessToken string
}

// Provider implements the downstream-facing OAuth server contract by
// translating PKCE-bearing downstream requests into non-PKCE upstream
// requests.
type Provider struct {
	store    *SessionStore
	clients  *ClientRegistry
	upstream *pkgoauth.Client
}

// NewProvider creates a provider. The upstream client must be configured
// with the proxy's own public callback URL as its redirect URI.
func NewProvider(store *SessionStore, clients *ClientRegistry, upstream *pkgoauth.Client) *Provider {
	return &Provider{
		store:    store,
		clients:  clients,
		upstream: upstream,
	}
}

// Clients returns the provider's client registry.
func (p *Provider) Clients() *ClientRegistry {
	return p.clients
}

// Authorize validates a downstream authorize request, records it as pending,
// and returns the upstream authorization URL to redirect the user agent to.
// The upstream URL carries no PKCE parameters and the proxy's own redirect
// URI; the downstream challenge is held in the pending entry instead.
func (p *Provider) Authorize(clientID, redirectURI, codeChallenge, codeChallengeMethod, scope, downstreamState string) (string, error) {
	client, ok := p.clients.Get(clientID)
	if !ok {
		return "", oauthErr("invalid_client", "unknown client %q", clientID)
	}

	if !client.HasRedirectURI(redirectURI) {
		return "", oauthErr("invalid_request", "redirect_uri is not registered for this client")
	}

	if codeChallenge == "" {
		return "", oauthErr("invalid_request", "code_challenge is required")
	}

	// S256 only; the plain method is never accepted
	if codeChallengeMethod != "S256" {
		return "", oauthErr("invalid_request", "code_challenge_method must be S256")
	}

	state, err := p.store.StorePendingRequest(&PendingAuthorization{
		ClientID:            clientID,
		CodeChallenge:       codeChallenge,
		CodeChallengeMethod: codeChallengeMethod,
		RedirectURI:         redirectURI,
		Scope:               scope,
		DownstreamState:     downstreamState,
	})
	if err != nil {
		return "", oauthErr("server_error", "failed to store authorization request")
	}

	authURL, err := p.upstream.BuildAuthorizationURL(state, nil)
	if err != nil {
		return "", oauthErr("server_error", "failed to build upstream authorization URL")
	}

	logging.Debug("Proxy", "Authorize request accepted for client %s", clientID)
	return authURL, nil
}

// HandleUpstreamCallback consumes the pending authorization identified by
// state, exchanges the upstream code for upstream tokens, mints a local
// authorization code, and returns the redirect URL back to the downstream
// client carrying that code and the client's original state.
func (p *Provider) HandleUpstreamCallback(ctx context.Context, state, code, errParam, errDesc string) (string, *OAuthError) {
	pending, ok := p.store.ConsumePendingRequest(state)
	if !ok {
		logging.Warn("Proxy", "Upstream callback with unknown or expired state")
		return "", oauthErr("invalid_request", "unknown or expired authorization request")
	}

	if errParam != "" {
		logging.Warn("Proxy", "Upstream authorization denied for client %s: %s", pending.ClientID, errParam)
		return "", &OAuthError{Code: errParam, Description: errDesc}
	}

	if code == "" {
		return "", oauthErr("invalid_request", "upstream callback missing authorization code")
	}

	token, err := p.upstream.ExchangeCode(ctx, code)
	if err != nil {
		logging.Error("Proxy", err, "Upstream code exchange failed for client %s", pending.ClientID)
		return "", oauthErr("server_error", "upstream token exchange failed")
	}

	localCode, err := p.store.StoreAuthCode(&AuthCodeEntry{
		ClientID:             pending.ClientID,
		CodeChallenge:        pending.CodeChallenge,
		RedirectURI:          pending.RedirectURI,
		Scope:                pending.Scope,
		UpstreamAccessToken:  token.AccessToken,
		UpstreamRefreshToken: token.RefreshToken,
	})
	if err != nil {
		return "", oauthErr("server_error", "failed to mint authorization code")
	}

	redirect, err := buildClientRedirect(pending.RedirectURI, localCode, pending.DownstreamState)
	if err != nil {
		return "", oauthErr("server_error", "invalid client redirect URI")
	}

	logging.Info("Proxy", "Issued local authorization code for client %s", pending.ClientID)
	return redirect, nil
}

// buildClientRedirect appends code and state to the downstream redirect URI,
// preserving any query parameters it already carries.
func buildClientRedirect(redirectURI, code, state string) (string, error) {
	parsed, err := url.Parse(redirectURI)
	if err != nil {
		return "", err
	}

	query := parsed.Query()
	query.Set("code", code)
	if state != "" {
		query.Set("state", state)
	}
	parsed.RawQuery = query.Encode()

	return parsed.String(), nil
}

// ChallengeForAuthorizationCode returns the PKCE challenge stored with a
// local code without consuming it. The token endpoint uses this to verify
// the caller's code_verifier before the exchange proceeds.
func (p *Provider) ChallengeForAuthorizationCode(code string) (string, bool) {
	entry, ok := p.store.GetAuthCode(code)
	if !ok {
		return "", false
	}
	return entry.CodeChallenge, true
}

// ExchangeAuthorizationCode redeems a local code for local tokens. The code
// is consumed atomically; a second redemption, a client mismatch, or a
// redirect URI mismatch all fail with invalid_grant.
func (p *Provider) ExchangeAuthorizationCode(clientID, code, redirectURI string) (*TokenResponse, error) {
	entry, ok := p.store.ConsumeAuthCode(code)
	if !ok {
		return nil, oauthErr("invalid_grant", "authorization code is invalid or expired")
	}

	if entry.ClientID != clientID {
		return nil, oauthErr("invalid_grant", "authorization code was issued to another client")
	}

	if entry.RedirectURI != redirectURI {
		return nil, oauthErr("invalid_grant", "redirect_uri does not match the authorization request")
	}

	return p.mintTokens(clientID, entry.Scope, entry.UpstreamAccessToken, entry.UpstreamRefreshToken)
}

// ExchangeRefreshToken performs the downstream refresh grant. The upstream
// refresh runs first; only on its success is the old local entry revoked and
// a replacement minted (rotation). On upstream failure the old entries stay
// valid, so the client can retry.
func (p *Provider) ExchangeRefreshToken(ctx context.Context, clientID, refreshToken string) (*TokenResponse, error) {
	entry, ok := p.store.GetRefreshToken(refreshToken)
	if !ok {
		return nil, oauthErr("invalid_grant", "refresh token is invalid")
	}

	if entry.ClientID != clientID {
		return nil, oauthErr("invalid_grant", "refresh token was issued to another client")
	}

	token, err := p.upstream.RefreshToken(ctx, entry.UpstreamRefreshToken)
	if err != nil {
		logging.Error("Proxy", err, "Upstream refresh failed for client %s", clientID)
		return nil, oauthErr("invalid_grant", "upstream token refresh failed")
	}

	// Rotate: revoke the old entry in the same logical step that issues the
	// replacement. If the upstream did not rotate its refresh token, carry
	// the old upstream token into the new entry.
	upstreamRefresh := token.RefreshToken
	if upstreamRefresh == "" {
		upstreamRefresh = entry.UpstreamRefreshToken
	}
	p.store.RevokeRefreshToken(refreshToken)

	logging.Info("Proxy", "Rotated refresh token for client %s", clientID)
	return p.mintTokens(clientID, entry.Scope, token.AccessToken, upstreamRefresh)
}

// mintTokens creates a local access token entry and, when upstream refresh
// material exists, a local refresh token entry.
func (p *Provider) mintTokens(clientID, scope, upstreamAccess, upstreamRefresh string) (*TokenResponse, error) {
	accessToken, expiresIn, err := p.store.StoreAccessToken(&AccessTokenEntry{
		ClientID:            clientID,
		UpstreamAccessToken: upstreamAccess,
		Scope:               scope,
	})
	if err != nil {
		return nil, oauthErr("server_error", "failed to mint access token")
	}

	resp := &TokenResponse{
		AccessToken: accessToken,
		TokenType:   "Bearer",
		ExpiresIn:   expiresIn,
		Scope:       scope,
	}

	if upstreamRefresh != "" {
		refreshToken, err := p.store.StoreRefreshToken(&RefreshTokenEntry{
			ClientID:             clientID,
			UpstreamRefreshToken: upstreamRefresh,
			Scope:                scope,
		})
		if err != nil {
			return nil, oauthErr("server_error", "failed to mint refresh token")
		}
		resp.RefreshToken = refreshToken
	}

	return resp, nil
}

// VerifyAccessToken authenticates a downstream bearer token, returning the
// auth context exposing the wrapped upstream token for the tool layer.
func (p *Provider) VerifyAccessToken(token string) (*AuthContext, error) {
	entry, ok := p.store.GetAccessToken(token)
	if !ok {
		return nil, oauthErr("invalid_token", "access token is invalid or expired")
	}

	return &AuthContext{
		ClientID:            entry.ClientID,
		Scopes:              strings.Fields(entry.Scope),
		UpstreamAccessToken: entry.UpstreamAccessToken,
	}, nil
}

// RevokeToken drops a local token. With a type hint only that table is
// touched; without one both tables are attempted, since the token string
// alone does not disambiguate. Revoking an absent token is deliberately a
// no-op. Entries belonging to other clients are left untouched.
func (p *Provider) RevokeToken(clientID, token, tokenTypeHint string) {
	revokeAccess := func() {
		if entry, ok := p.store.GetAccessToken(token); ok && entry.ClientID == clientID {
			p.store.RevokeAccessToken(token)
		}
	}
	revokeRefresh := func() {
		if entry, ok := p.store.GetRefreshToken(token); ok && entry.ClientID == clientID {
			p.store.RevokeRefreshToken(token)
		}
	}

	switch tokenTypeHint {
	case "access_token":
		revokeAccess()
	case "refresh_token":
		revokeRefresh()
	default:
		revokeAccess()
		revokeRefresh()
	}
}
