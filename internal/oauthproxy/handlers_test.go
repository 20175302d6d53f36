package oauthproxy

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgoauth "basecamp-mcp/pkg/oauth"
)

// newTestHandler wires the full HTTP layer against a stub upstream and
// returns the proxy's test server.
func newTestHandler(t *testing.T, stub *upstreamStub) (*httptest.Server, *Provider) {
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

	mux := http.NewServeMux()
	NewHandler(provider, "https://proxy.example.com").RegisterRoutes(mux)

	srv := httptest.NewServer(CORSMiddleware(mux))
	t.Cleanup(srv.Close)
	return srv, provider
}

// noRedirect returns a client that surfaces redirects instead of following.
func noRedirect() *http.Client {
	return &http.Client{
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func registerTestClient(t *testing.T, baseURL string) registrationResponse {
	t.Helper()

	body := `{"client_name":"ide","redirect_uris":["https://ide.example.com/cb"]}`
	resp, err := http.Post(baseURL+"/register", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var reg registrationResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&reg))
	require.NotEmpty(t, reg.ClientID)
	return reg
}

func TestHandler_Metadata(t *testing.T) {
	srv, _ := newTestHandler(t, newUpstreamStub(t))

	resp, err := http.Get(srv.URL + "/.well-known/oauth-authorization-server")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var metadata pkgoauth.Metadata
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&metadata))
	assert.Equal(t, "https://proxy.example.com", metadata.Issuer)
	assert.Equal(t, "https://proxy.example.com/token", metadata.TokenEndpoint)
	assert.Equal(t, "https://proxy.example.com/register", metadata.RegistrationEndpoint)
	// S256 only, never plain
	assert.Equal(t, []string{"S256"}, metadata.CodeChallengeMethodsSupported)
}

func TestHandler_Register(t *testing.T) {
	srv, _ := newTestHandler(t, newUpstreamStub(t))

	reg := registerTestClient(t, srv.URL)
	assert.Equal(t, "ide", reg.ClientName)
	assert.Equal(t, "none", reg.TokenEndpointAuthMethod)
	assert.NotZero(t, reg.ClientIDIssuedAt)

	// Invalid metadata is a 400 with an RFC 6749 error body
	resp, err := http.Post(srv.URL+"/register", "application/json", strings.NewReader(`{"client_name":"x"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var oe OAuthError
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&oe))
	assert.Equal(t, "invalid_client_metadata", oe.Code)
}

func TestHandler_EndToEndTokenFlow(t *testing.T) {
	stub := newUpstreamStub(t)
	srv, provider := newTestHandler(t, stub)
	reg := registerTestClient(t, srv.URL)

	pkce, err := pkgoauth.GeneratePKCE()
	require.NoError(t, err)

	// 1. /authorize redirects to the upstream authorization server
	authorizeURL := srv.URL + "/authorize?" + url.Values{
		"response_type":         {"code"},
		"client_id":             {reg.ClientID},
		"redirect_uri":          {"https://ide.example.com/cb"},
		"code_challenge":        {pkce.CodeChallenge},
		"code_challenge_method": {"S256"},
		"state":                 {"client-state"},
		"scope":                 {"read"},
	}.Encode()

	resp, err := noRedirect().Get(authorizeURL)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusFound, resp.StatusCode)

	upstreamURL, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "upstream.example.com", upstreamURL.Host)
	state := upstreamURL.Query().Get("state")
	require.NotEmpty(t, state)

	// 2. Upstream redirects back to /oauth/callback; the proxy exchanges
	// the upstream code and redirects to the client with a local code
	resp, err = noRedirect().Get(srv.URL + "/oauth/callback?state=" + url.QueryEscape(state) + "&code=upstream-code")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusFound, resp.StatusCode)

	clientRedirect, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "ide.example.com", clientRedirect.Host)
	assert.Equal(t, "client-state", clientRedirect.Query().Get("state"))
	localCode := clientRedirect.Query().Get("code")
	require.NotEmpty(t, localCode)

	// 3. /token redeems the local code with the PKCE verifier
	resp, err = http.PostForm(srv.URL+"/token", url.Values{
		"grant_type":    {"authorization_code"},
		"client_id":     {reg.ClientID},
		"code":          {localCode},
		"redirect_uri":  {"https://ide.example.com/cb"},
		"code_verifier": {pkce.CodeVerifier},
	})
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var tokens TokenResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&tokens))
	assert.Equal(t, "Bearer", tokens.TokenType)
	require.NotEmpty(t, tokens.AccessToken)

	// 4. The minted token verifies against the provider
	authCtx, err := provider.VerifyAccessToken(tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, reg.ClientID, authCtx.ClientID)
	assert.Equal(t, "up-access", authCtx.UpstreamAccessToken)
}

func TestHandler_Token_PKCEMismatch(t *testing.T) {
	stub := newUpstreamStub(t)
	srv, provider := newTestHandler(t, stub)
	reg := registerTestClient(t, srv.URL)

	pkce, err := pkgoauth.GeneratePKCE()
	require.NoError(t, err)

	client, _ := provider.Clients().Get(reg.ClientID)
	localCode := runAuthorizeAndCallback(t, provider, client, pkce.CodeChallenge)

	resp, err := http.PostForm(srv.URL+"/token", url.Values{
		"grant_type":    {"authorization_code"},
		"client_id":     {reg.ClientID},
		"code":          {localCode},
		"redirect_uri":  {"https://ide.example.com/cb"},
		"code_verifier": {"wrong-verifier"},
	})
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var oe OAuthError
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&oe))
	assert.Equal(t, "invalid_grant", oe.Code)

	// The failed PKCE check did not consume the code; the right verifier
	// still works
	resp, err = http.PostForm(srv.URL+"/token", url.Values{
		"grant_type":    {"authorization_code"},
		"client_id":     {reg.ClientID},
		"code":          {localCode},
		"redirect_uri":  {"https://ide.example.com/cb"},
		"code_verifier": {pkce.CodeVerifier},
	})
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHandler_Token_UnsupportedGrantType(t *testing.T) {
	srv, _ := newTestHandler(t, newUpstreamStub(t))

	resp, err := http.PostForm(srv.URL+"/token", url.Values{
		"grant_type": {"password"},
	})
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var oe OAuthError
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&oe))
	assert.Equal(t, "unsupported_grant_type", oe.Code)
}

func TestHandler_Authorize_UnknownClientRendersError(t *testing.T) {
	srv, _ := newTestHandler(t, newUpstreamStub(t))

	resp, err := noRedirect().Get(srv.URL + "/authorize?response_type=code&client_id=nope&redirect_uri=https%3A%2F%2Fide.example.com%2Fcb&code_challenge=c&code_challenge_method=S256")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	// No redirect to an unvalidated URI; a 400 page instead
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, string(body), "Authorization Request Rejected")
}

func TestHandler_Callback_ErrorDescriptionEscaped(t *testing.T) {
	stub := newUpstreamStub(t)
	srv, provider := newTestHandler(t, stub)
	reg := registerTestClient(t, srv.URL)

	client, _ := provider.Clients().Get(reg.ClientID)
	authURL, err := provider.Authorize(client.ClientID, client.RedirectURIs[0], "ch", "S256", "", "")
	require.NoError(t, err)
	parsed, _ := url.Parse(authURL)
	state := parsed.Query().Get("state")

	payload := url.QueryEscape(`<script>alert(1)</script>`)
	resp, err := noRedirect().Get(srv.URL + "/oauth/callback?state=" + url.QueryEscape(state) + "&error=access_denied&error_description=" + payload)
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	assert.NotContains(t, string(body), "<script>")
	assert.Contains(t, string(body), "&lt;script&gt;")
}

func TestHandler_Revoke(t *testing.T) {
	srv, _ := newTestHandler(t, newUpstreamStub(t))

	// Revoking an unknown token still answers 200
	resp, err := http.PostForm(srv.URL+"/revoke", url.Values{
		"client_id": {"c"},
		"token":     {"does-not-exist"},
	})
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
