// Package auth selects the upstream access token for a tool call.
//
// Two strategies cover the two transports. In server mode every MCP request
// carries a locally minted bearer token; the HTTP context function verifies
// it and stashes the wrapped upstream token in the request context. In stdio
// mode there is exactly one user, so the process-wide resolver supplies the
// token.
package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"basecamp-mcp/internal/oauth"
	"basecamp-mcp/internal/oauthproxy"
	"basecamp-mcp/pkg/logging"
)

type contextKey struct{}

// WithAuthContext stores a verified per-request auth context.
func WithAuthContext(ctx context.Context, authCtx *oauthproxy.AuthContext) context.Context {
	return context.WithValue(ctx, contextKey{}, authCtx)
}

// AuthContextFrom returns the per-request auth context, if any.
func AuthContextFrom(ctx context.Context) (*oauthproxy.AuthContext, bool) {
	authCtx, ok := ctx.Value(contextKey{}).(*oauthproxy.AuthContext)
	return authCtx, ok
}

// TokenStrategy yields the upstream access token for one tool call.
type TokenStrategy interface {
	UpstreamToken(ctx context.Context) (string, error)
}

// RequestTokenStrategy reads the token the HTTP context function verified.
// Used in server mode.
type RequestTokenStrategy struct{}

func (RequestTokenStrategy) UpstreamToken(ctx context.Context) (string, error) {
	authCtx, ok := AuthContextFrom(ctx)
	if !ok {
		return "", fmt.Errorf("request is not authenticated")
	}
	return authCtx.UpstreamAccessToken, nil
}

// ResolverTokenStrategy acquires the process-wide token through the
// resolver's precedence chain. Used in stdio mode.
type ResolverTokenStrategy struct {
	Resolver *oauth.Resolver
}

func (s ResolverTokenStrategy) UpstreamToken(ctx context.Context) (string, error) {
	cred, err := s.Resolver.GetAccessToken(ctx)
	if err != nil {
		return "", err
	}
	return cred.AccessToken, nil
}

// HTTPContextFunc returns the context function wired into the streamable
// HTTP transport. It extracts the bearer token, verifies it against the
// provider, and attaches the auth context. Verification failures leave the
// context unauthenticated; tool handlers report the error.
func HTTPContextFunc(provider *oauthproxy.Provider) func(ctx context.Context, r *http.Request) context.Context {
	return func(ctx context.Context, r *http.Request) context.Context {
		token, ok := bearerToken(r.Header.Get("Authorization"))
		if !ok {
			return ctx
		}

		authCtx, err := provider.VerifyAccessToken(token)
		if err != nil {
			logging.Debug("Proxy", "Rejected bearer token on %s: %v", r.URL.Path, err)
			return ctx
		}

		return WithAuthContext(ctx, authCtx)
	}
}

func bearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	return header[len(prefix):], true
}
