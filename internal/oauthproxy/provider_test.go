package oauthproxy

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgoauth "basecamp-mcp/pkg/oauth"
)

// upstreamStub fakes the upstream authorization server's token endpoint.
type upstreamStub struct {
	srv          *httptest.Server
	exchangeFail bool
	refreshFail  bool
	rotate       bool
	refreshCalls int
}

func newUpstreamStub(t *testing.T) *upstreamStub {
	t.Helper()
	stub := &upstreamStub{}
	stub.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		switch r.PostForm.Get("grant_type") {
		case "authorization_code":
			if stub.exchangeFail {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte(`{"error":"invalid_grant"}`))
				return
			}
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"access_token":"up-access","refresh_token":"up-refresh","expires_in":3600}`))
		case "refresh_token":
			stub.refreshCalls++
			if stub.refreshFail {
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"error":"invalid_grant"}`))
				return
			}
			w.Header().Set("Content-Type", "application/json")
			if stub.rotate {
				w.Write([]byte(`{"access_token":"up-access-2","refresh_token":"up-refresh-2","expires_in":3600}`))
			} else {
				w.Write([]byte(`{"access_token":"up-access-2","expires_in":3600}`))
			}
		default:
			t.Errorf("unexpected grant_type %q", r.PostForm.Get("grant_type"))
		}
	}))
	t.Cleanup(stub.srv.Close)
	return stub
}

// newTestProvider wires a provider against the stub upstream and registers
// one downstream client.
func newTestProvider(t *testing.T, stub *upstreamStub) (*Provider, *RegisteredClient) {
	t.Helper()

	store := newTestSessionStore(t)
	clients := NewClientRegistry()
	upstream := pkgoauth.NewClient(pkgoauth.Config{
		ClientID:          "upstream-app",
		ClientSecret:      "upstream-secret",
		RedirectURI:       "https://proxy.example.com/oauth/callback",
		AuthorizeEndpoint: "https://upstream.example.com/authorization/new",
		TokenEndpoint:     stub.srv.URL,
	})

	provider := NewProvider(store, clients, upstream)

	client, err := clients.Register("ide", []string{"https://ide.example.com/cb"})
	require.NoError(t, err)

	return provider, client
}

// runAuthorizeAndCallback drives the flow up to a minted local code.
func runAuthorizeAndCallback(t *testing.T, provider *Provider, client *RegisteredClient, challenge string) (localCode string) {
	t.Helper()

	authURL, err := provider.Authorize(client.ClientID, client.RedirectURIs[0], challenge, "S256", "read", "ds-state")
	require.NoError(t, err)

	parsed, err := url.Parse(authURL)
	require.NoError(t, err)
	state := parsed.Query().Get("state")
	require.NotEmpty(t, state)

	// Upstream URL carries no PKCE parameters
	assert.False(t, parsed.Query().Has("code_challenge"))
	assert.Equal(t, "https://proxy.example.com/oauth/callback", parsed.Query().Get("redirect_uri"))

	redirect, oauthErr := provider.HandleUpstreamCallback(context.Background(), state, "upstream-code", "", "")
	require.Nil(t, oauthErr)

	redirectParsed, err := url.Parse(redirect)
	require.NoError(t, err)
	assert.Equal(t, "https://ide.example.com/cb", redirectParsed.Scheme+"://"+redirectParsed.Host+redirectParsed.Path)
	assert.Equal(t, "ds-state", redirectParsed.Query().Get("state"))

	localCode = redirectParsed.Query().Get("code")
	require.NotEmpty(t, localCode)
	return localCode
}

func TestProvider_FullAuthorizationFlow(t *testing.T) {
	stub := newUpstreamStub(t)
	provider, client := newTestProvider(t, stub)

	pkce, err := pkgoauth.GeneratePKCE()
	require.NoError(t, err)

	localCode := runAuthorizeAndCallback(t, provider, client, pkce.CodeChallenge)

	// PKCE challenge lookup is non-destructive
	challenge, ok := provider.ChallengeForAuthorizationCode(localCode)
	require.True(t, ok)
	assert.Equal(t, pkce.CodeChallenge, challenge)
	assert.True(t, pkgoauth.VerifyS256Challenge(pkce.CodeVerifier, challenge))

	resp, err := provider.ExchangeAuthorizationCode(client.ClientID, localCode, client.RedirectURIs[0])
	require.NoError(t, err)
	assert.Equal(t, "Bearer", resp.TokenType)
	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEmpty(t, resp.RefreshToken)
	assert.Equal(t, "read", resp.Scope)

	// The local access token verifies and exposes the upstream token
	authCtx, err := provider.VerifyAccessToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, client.ClientID, authCtx.ClientID)
	assert.Equal(t, []string{"read"}, authCtx.Scopes)
	assert.Equal(t, "up-access", authCtx.UpstreamAccessToken)
}

func TestProvider_Authorize_Validation(t *testing.T) {
	stub := newUpstreamStub(t)
	provider, client := newTestProvider(t, stub)

	_, err := provider.Authorize("unknown", client.RedirectURIs[0], "ch", "S256", "", "")
	assert.ErrorContains(t, err, "invalid_client")

	_, err = provider.Authorize(client.ClientID, "https://evil.example.com/cb", "ch", "S256", "", "")
	assert.ErrorContains(t, err, "redirect_uri")

	_, err = provider.Authorize(client.ClientID, client.RedirectURIs[0], "", "S256", "", "")
	assert.ErrorContains(t, err, "code_challenge")

	// The plain method is never accepted
	_, err = provider.Authorize(client.ClientID, client.RedirectURIs[0], "ch", "plain", "", "")
	assert.ErrorContains(t, err, "S256")
}

func TestProvider_UpstreamCallback_UnknownState(t *testing.T) {
	stub := newUpstreamStub(t)
	provider, _ := newTestProvider(t, stub)

	_, oauthErr := provider.HandleUpstreamCallback(context.Background(), "bogus-state", "code", "", "")
	require.NotNil(t, oauthErr)
	assert.Equal(t, "invalid_request", oauthErr.Code)
}

func TestProvider_UpstreamCallback_StateSingleUse(t *testing.T) {
	stub := newUpstreamStub(t)
	provider, client := newTestProvider(t, stub)

	authURL, err := provider.Authorize(client.ClientID, client.RedirectURIs[0], "ch", "S256", "", "")
	require.NoError(t, err)
	parsed, _ := url.Parse(authURL)
	state := parsed.Query().Get("state")

	_, oauthErr := provider.HandleUpstreamCallback(context.Background(), state, "upstream-code", "", "")
	require.Nil(t, oauthErr)

	// Replaying the same state must fail
	_, oauthErr = provider.HandleUpstreamCallback(context.Background(), state, "upstream-code", "", "")
	require.NotNil(t, oauthErr)
}

func TestProvider_UpstreamCallback_UpstreamDenial(t *testing.T) {
	stub := newUpstreamStub(t)
	provider, client := newTestProvider(t, stub)

	authURL, err := provider.Authorize(client.ClientID, client.RedirectURIs[0], "ch", "S256", "", "")
	require.NoError(t, err)
	parsed, _ := url.Parse(authURL)
	state := parsed.Query().Get("state")

	_, oauthErr := provider.HandleUpstreamCallback(context.Background(), state, "", "access_denied", "user declined")
	require.NotNil(t, oauthErr)
	assert.Equal(t, "access_denied", oauthErr.Code)
	assert.Equal(t, "user declined", oauthErr.Description)
}

func TestProvider_ExchangeAuthorizationCode_SingleUse(t *testing.T) {
	stub := newUpstreamStub(t)
	provider, client := newTestProvider(t, stub)

	pkce, err := pkgoauth.GeneratePKCE()
	require.NoError(t, err)
	localCode := runAuthorizeAndCallback(t, provider, client, pkce.CodeChallenge)

	_, err = provider.ExchangeAuthorizationCode(client.ClientID, localCode, client.RedirectURIs[0])
	require.NoError(t, err)

	// Second redemption of the same code must fail
	_, err = provider.ExchangeAuthorizationCode(client.ClientID, localCode, client.RedirectURIs[0])
	assert.ErrorContains(t, err, "invalid or expired")
}

func TestProvider_ExchangeAuthorizationCode_ClientAndRedirectBinding(t *testing.T) {
	stub := newUpstreamStub(t)
	provider, client := newTestProvider(t, stub)

	pkce, err := pkgoauth.GeneratePKCE()
	require.NoError(t, err)

	localCode := runAuthorizeAndCallback(t, provider, client, pkce.CodeChallenge)
	_, err = provider.ExchangeAuthorizationCode("other-client", localCode, client.RedirectURIs[0])
	assert.ErrorContains(t, err, "another client")

	// The failed attempt consumed the code; mint a fresh one for the
	// redirect mismatch case
	localCode = runAuthorizeAndCallback(t, provider, client, pkce.CodeChallenge)
	_, err = provider.ExchangeAuthorizationCode(client.ClientID, localCode, "https://ide.example.com/other")
	assert.ErrorContains(t, err, "redirect_uri")
}

func TestProvider_RefreshRotation(t *testing.T) {
	stub := newUpstreamStub(t)
	stub.rotate = true
	provider, client := newTestProvider(t, stub)

	pkce, err := pkgoauth.GeneratePKCE()
	require.NoError(t, err)
	localCode := runAuthorizeAndCallback(t, provider, client, pkce.CodeChallenge)

	first, err := provider.ExchangeAuthorizationCode(client.ClientID, localCode, client.RedirectURIs[0])
	require.NoError(t, err)

	second, err := provider.ExchangeRefreshToken(context.Background(), client.ClientID, first.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, first.AccessToken, second.AccessToken)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)

	// The old refresh token never succeeds after rotation
	_, err = provider.ExchangeRefreshToken(context.Background(), client.ClientID, first.RefreshToken)
	assert.ErrorContains(t, err, "invalid")

	// The new one carries the rotated upstream token
	authCtx, err := provider.VerifyAccessToken(second.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "up-access-2", authCtx.UpstreamAccessToken)
}

func TestProvider_RefreshWithoutUpstreamRotation(t *testing.T) {
	stub := newUpstreamStub(t)
	stub.rotate = false
	provider, client := newTestProvider(t, stub)

	pkce, err := pkgoauth.GeneratePKCE()
	require.NoError(t, err)
	localCode := runAuthorizeAndCallback(t, provider, client, pkce.CodeChallenge)

	first, err := provider.ExchangeAuthorizationCode(client.ClientID, localCode, client.RedirectURIs[0])
	require.NoError(t, err)

	// Local rotation happens even when the upstream keeps its refresh token
	second, err := provider.ExchangeRefreshToken(context.Background(), client.ClientID, first.RefreshToken)
	require.NoError(t, err)
	require.NotEmpty(t, second.RefreshToken)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)

	// A further refresh with the new local token reuses the carried
	// upstream refresh token
	_, err = provider.ExchangeRefreshToken(context.Background(), client.ClientID, second.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, 2, stub.refreshCalls)
}

func TestProvider_RefreshUpstreamFailureKeepsOldEntries(t *testing.T) {
	stub := newUpstreamStub(t)
	provider, client := newTestProvider(t, stub)

	pkce, err := pkgoauth.GeneratePKCE()
	require.NoError(t, err)
	localCode := runAuthorizeAndCallback(t, provider, client, pkce.CodeChallenge)

	first, err := provider.ExchangeAuthorizationCode(client.ClientID, localCode, client.RedirectURIs[0])
	require.NoError(t, err)

	stub.refreshFail = true
	_, err = provider.ExchangeRefreshToken(context.Background(), client.ClientID, first.RefreshToken)
	require.Error(t, err)

	// No partial rotation: the old refresh token is still usable
	stub.refreshFail = false
	_, err = provider.ExchangeRefreshToken(context.Background(), client.ClientID, first.RefreshToken)
	assert.NoError(t, err)
}

func TestProvider_VerifyAccessToken_Unknown(t *testing.T) {
	stub := newUpstreamStub(t)
	provider, _ := newTestProvider(t, stub)

	_, err := provider.VerifyAccessToken("bogus")
	assert.ErrorContains(t, err, "invalid_token")
}

func TestProvider_RevokeToken(t *testing.T) {
	stub := newUpstreamStub(t)
	provider, client := newTestProvider(t, stub)

	pkce, err := pkgoauth.GeneratePKCE()
	require.NoError(t, err)
	localCode := runAuthorizeAndCallback(t, provider, client, pkce.CodeChallenge)

	resp, err := provider.ExchangeAuthorizationCode(client.ClientID, localCode, client.RedirectURIs[0])
	require.NoError(t, err)

	// Without a hint, both tables are attempted
	provider.RevokeToken(client.ClientID, resp.AccessToken, "")
	_, err = provider.VerifyAccessToken(resp.AccessToken)
	assert.Error(t, err)

	provider.RevokeToken(client.ClientID, resp.RefreshToken, "refresh_token")
	_, err = provider.ExchangeRefreshToken(context.Background(), client.ClientID, resp.RefreshToken)
	assert.Error(t, err)

	// Revoking absent tokens is a no-op, never an error
	provider.RevokeToken(client.ClientID, "absent-token", "")
	provider.RevokeToken(client.ClientID, "absent-token", "access_token")
}

func TestProvider_RevokeToken_OtherClientUntouched(t *testing.T) {
	stub := newUpstreamStub(t)
	provider, client := newTestProvider(t, stub)

	pkce, err := pkgoauth.GeneratePKCE()
	require.NoError(t, err)
	localCode := runAuthorizeAndCallback(t, provider, client, pkce.CodeChallenge)

	resp, err := provider.ExchangeAuthorizationCode(client.ClientID, localCode, client.RedirectURIs[0])
	require.NoError(t, err)

	// A different client cannot revoke this client's token
	provider.RevokeToken("other-client", resp.AccessToken, "")
	_, err = provider.VerifyAccessToken(resp.AccessToken)
	assert.NoError(t, err)
}
