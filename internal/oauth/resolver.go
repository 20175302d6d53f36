package oauth

import (
	"context"

	"golang.org/x/sync/singleflight"

	"basecamp-mcp/pkg/logging"
	pkgoauth "basecamp-mcp/pkg/oauth"
)

// TokenSource tags where a resolved credential came from.
type TokenSource string

const (
	SourceEnv         TokenSource = "env"
	SourceCache       TokenSource = "cache"
	SourceRefresh     TokenSource = "refresh"
	SourceInteractive TokenSource = "interactive"
)

// Credential is a resolved upstream access token together with its source.
type Credential struct {
	AccessToken string
	Source      TokenSource
	Record      *TokenRecord
}

// Resolver turns "I need a valid upstream token" into a concrete token via a
// strictly ordered precedence chain. Each step either produces a definitive
// result or passes to the next.
type Resolver struct {
	config pkgoauth.Config
	client *pkgoauth.Client
	store  *TokenStore

	// envToken is the explicit override token; when set it wins over
	// everything and is trusted as-is.
	envToken string

	// prompt presents the authorize URL to the operator out of band.
	// Defaults to opening the system browser plus printing the URL.
	prompt func(authURL string)

	// openBrowser controls whether interactive login attempts to launch the
	// system browser in addition to prompting.
	openBrowser bool

	// refreshGroup deduplicates concurrent refresh attempts so that only one
	// network call hits the upstream token endpoint at a time.
	refreshGroup singleflight.Group
}

// ResolverOption configures the resolver.
type ResolverOption func(*Resolver)

// WithEnvToken sets the explicit override token.
func WithEnvToken(token string) ResolverOption {
	return func(r *Resolver) {
		r.envToken = token
	}
}

// WithPrompt sets the function that presents the authorize URL to the
// operator during interactive login.
func WithPrompt(prompt func(authURL string)) ResolverOption {
	return func(r *Resolver) {
		r.prompt = prompt
	}
}

// WithBrowser controls whether interactive login launches the system browser.
func WithBrowser(open bool) ResolverOption {
	return func(r *Resolver) {
		r.openBrowser = open
	}
}

// NewResolver creates a resolver over the given upstream config and store.
func NewResolver(config pkgoauth.Config, client *pkgoauth.Client, store *TokenStore, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		config:      config,
		client:      client,
		store:       store,
		openBrowser: true,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// GetAccessToken resolves a usable upstream access token. See the package
// documentation for the precedence chain.
func (r *Resolver) GetAccessToken(ctx context.Context) (*Credential, error) {
	// 1. Explicit override: trusted as-is, no validation, no expiry check.
	if r.envToken != "" {
		logging.Debug("OAuth", "Using access token from environment override")
		return &Credential{AccessToken: r.envToken, Source: SourceEnv}, nil
	}

	// 2. Without an override, OAuth config is mandatory.
	if !r.config.HasCredentials() {
		return nil, pkgoauth.NewFlowError(pkgoauth.KindNoConfig,
			"no access token override and no OAuth client credentials configured")
	}

	// 3. Cached record, if fresh.
	record, ok := r.store.Load()
	if ok && !record.IsExpired() {
		logging.Debug("OAuth", "Using cached access token")
		return &Credential{AccessToken: record.AccessToken, Source: SourceCache, Record: record}, nil
	}

	// 4. Refresh grant. Failure here is recoverable: the refresh token may
	// be revoked or expired, so fall through to interactive login.
	if ok && record.RefreshToken != "" {
		cred, err := r.refresh(ctx, record.RefreshToken)
		if err == nil {
			return cred, nil
		}
		logging.Warn("OAuth", "Token refresh failed, falling back to interactive login: %v", err)
	}

	// 5. Interactive login.
	return r.interactiveLogin(ctx)
}

// refresh performs the refresh grant and persists the result. Concurrent
// callers share a single upstream request.
func (r *Resolver) refresh(ctx context.Context, refreshToken string) (*Credential, error) {
	result, err, _ := r.refreshGroup.Do("refresh", func() (interface{}, error) {
		token, err := r.client.RefreshToken(ctx, refreshToken)
		if err != nil {
			return nil, err
		}

		record := RecordFromToken(token)
		// Some providers do not rotate the refresh token on refresh
		if record.RefreshToken == "" {
			record.RefreshToken = refreshToken
		}

		if err := r.store.Save(record); err != nil {
			return nil, err
		}

		return record, nil
	})
	if err != nil {
		return nil, err
	}

	record := result.(*TokenRecord)
	logging.Info("OAuth", "Access token refreshed")
	return &Credential{AccessToken: record.AccessToken, Source: SourceRefresh, Record: record}, nil
}

// interactiveLogin runs the loopback flow: start the callback server, send
// the operator to the authorize URL, await the redirect, exchange the code,
// and persist the result.
func (r *Resolver) interactiveLogin(ctx context.Context) (*Credential, error) {
	state, err := pkgoauth.GenerateState()
	if err != nil {
		return nil, pkgoauth.WrapFlowError(pkgoauth.KindOAuthFailed, err, "failed to generate state")
	}

	server, err := NewCallbackServer(r.config.RedirectURI, state)
	if err != nil {
		return nil, err
	}

	if err := server.Start(ctx); err != nil {
		return nil, err
	}
	defer server.Stop()

	// Upstream does not support PKCE, so no challenge is attached
	authURL, err := r.client.BuildAuthorizationURL(state, nil)
	if err != nil {
		return nil, err
	}

	if r.prompt != nil {
		r.prompt(authURL)
	}
	if r.openBrowser {
		if err := OpenBrowser(authURL); err != nil {
			logging.Warn("OAuth", "Could not open browser automatically: %v", err)
		}
	}

	code, err := server.WaitForCallback(ctx)
	if err != nil {
		return nil, err
	}

	token, err := r.client.ExchangeCode(ctx, code)
	if err != nil {
		return nil, err
	}

	record := RecordFromToken(token)
	if err := r.store.Save(record); err != nil {
		return nil, err
	}

	logging.Info("OAuth", "Interactive login complete")
	return &Credential{AccessToken: record.AccessToken, Source: SourceInteractive, Record: record}, nil
}

// Logout clears the persisted token record.
func (r *Resolver) Logout() error {
	return r.store.Clear()
}
