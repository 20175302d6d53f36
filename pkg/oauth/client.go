package oauth

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// DefaultHTTPTimeout is the default timeout for HTTP requests.
	DefaultHTTPTimeout = 30 * time.Second

	// DefaultAuthorizeEndpoint is the Basecamp Launchpad authorization endpoint.
	DefaultAuthorizeEndpoint = "https://launchpad.37signals.com/authorization/new"

	// DefaultTokenEndpoint is the Basecamp Launchpad token endpoint.
	DefaultTokenEndpoint = "https://launchpad.37signals.com/authorization/token"

	// maxErrorBodySnippet limits how much of an error response body is
	// included in error messages.
	maxErrorBodySnippet = 500
)

// Config holds the upstream OAuth application credentials and endpoints.
type Config struct {
	// ClientID is the OAuth application's client identifier.
	ClientID string

	// ClientSecret is the OAuth application's client secret. The upstream
	// authorization server authenticates the client with it on every token
	// request; it never reaches downstream clients.
	ClientSecret string

	// RedirectURI is where the authorization server sends the user after
	// consent. Defaults to a loopback address for the local flow.
	RedirectURI string

	// AuthorizeEndpoint overrides DefaultAuthorizeEndpoint when set.
	AuthorizeEndpoint string

	// TokenEndpoint overrides DefaultTokenEndpoint when set.
	TokenEndpoint string

	// Scope is the space-separated scope string to request, if any.
	Scope string
}

// HasCredentials reports whether both client ID and secret are present.
func (c Config) HasCredentials() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

// authorizeEndpoint returns the configured or default authorization endpoint.
func (c Config) authorizeEndpoint() string {
	if c.AuthorizeEndpoint != "" {
		return c.AuthorizeEndpoint
	}
	return DefaultAuthorizeEndpoint
}

// tokenEndpoint returns the configured or default token endpoint.
func (c Config) tokenEndpoint() string {
	if c.TokenEndpoint != "" {
		return c.TokenEndpoint
	}
	return DefaultTokenEndpoint
}

// Client performs OAuth token endpoint operations against the upstream
// authorization server.
type Client struct {
	config     Config
	httpClient *http.Client
	logger     *slog.Logger
}

// ClientOption configures the OAuth client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a new OAuth client for the given upstream configuration.
func NewClient(config Config, opts ...ClientOption) *Client {
	c := &Client{
		config:     config,
		httpClient: &http.Client{Timeout: DefaultHTTPTimeout},
		logger:     slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Config returns the client's configuration.
func (c *Client) Config() Config {
	return c.config
}

// BuildAuthorizationURL constructs the upstream authorization URL. The query
// carries response_type=code, client_id, redirect_uri, and state; scope and
// PKCE parameters are appended only when provided. The upstream server does
// not support PKCE, so the local flow passes a nil challenge.
func (c *Client) BuildAuthorizationURL(state string, pkce *PKCEChallenge) (string, error) {
	authURL, err := url.Parse(c.config.authorizeEndpoint())
	if err != nil {
		return "", WrapFlowError(KindInvalidConfig, err, "invalid authorization endpoint")
	}

	query := authURL.Query()
	query.Set("response_type", "code")
	query.Set("client_id", c.config.ClientID)
	query.Set("redirect_uri", c.config.RedirectURI)
	query.Set("state", state)

	if c.config.Scope != "" {
		query.Set("scope", c.config.Scope)
	}

	if pkce != nil {
		query.Set("code_challenge", pkce.CodeChallenge)
		query.Set("code_challenge_method", pkce.CodeChallengeMethod)
	}

	authURL.RawQuery = query.Encode()
	return authURL.String(), nil
}

// ExchangeCode exchanges an authorization code for tokens. The client secret
// authenticates the request; failures are classified as TOKEN_EXCHANGE_FAILED.
func (c *Client) ExchangeCode(ctx context.Context, code string) (*Token, error) {
	data := url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"redirect_uri":  {c.config.RedirectURI},
		"client_id":     {c.config.ClientID},
		"client_secret": {c.config.ClientSecret},
	}

	return c.doTokenRequest(ctx, data, KindTokenExchangeFailed)
}

// RefreshToken obtains a new access token using a refresh token. Failures are
// classified as REFRESH_FAILED so callers can fall back to an interactive
// flow instead of aborting.
func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (*Token, error) {
	data := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
		"client_id":     {c.config.ClientID},
		"client_secret": {c.config.ClientSecret},
	}

	return c.doTokenRequest(ctx, data, KindRefreshFailed)
}

// doTokenRequest performs a token endpoint request.
func (c *Client) doTokenRequest(ctx context.Context, data url.Values, failKind ErrorKind) (*Token, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.tokenEndpoint(), strings.NewReader(data.Encode()))
	if err != nil {
		return nil, WrapFlowError(failKind, err, "failed to create token request")
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, WrapFlowError(failKind, err, "token request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, WrapFlowError(failKind, err, "failed to read token response")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Debug("Token request failed",
			"status", resp.StatusCode,
			"endpoint", c.config.tokenEndpoint())
		return nil, NewFlowError(failKind, "token request failed with status %d: %s", resp.StatusCode, bodySnippet(body))
	}

	var token Token
	if err := json.Unmarshal(body, &token); err != nil {
		return nil, WrapFlowError(KindInvalidResponse, err, "failed to parse token response")
	}

	if token.AccessToken == "" {
		return nil, NewFlowError(KindInvalidResponse, "token response missing access_token")
	}

	// Calculate absolute expiration from expires_in
	token.SetExpiresAtFromExpiresIn()

	return &token, nil
}

// bodySnippet truncates an error response body for inclusion in an error
// message. Bodies can contain HTML error pages; keep them short.
func bodySnippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > maxErrorBodySnippet {
		s = s[:maxErrorBodySnippet] + "..."
	}
	return s
}
