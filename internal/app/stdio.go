package app

import (
	"context"
	"os"

	"github.com/mark3labs/mcp-go/server"

	"basecamp-mcp/internal/auth"
	"basecamp-mcp/internal/config"
	"basecamp-mcp/internal/oauth"
	"basecamp-mcp/internal/tools"
	"basecamp-mcp/pkg/logging"
	pkgoauth "basecamp-mcp/pkg/oauth"
)

// NewResolver builds the process-wide token resolver from config. Shared by
// stdio mode and the auth commands.
func NewResolver(cfg config.Config, opts ...oauth.ResolverOption) (*oauth.Resolver, error) {
	store, err := oauth.NewTokenStore()
	if err != nil {
		return nil, err
	}

	oauthConfig := cfg.OAuthConfig()
	client := pkgoauth.NewClient(oauthConfig)
	opts = append([]oauth.ResolverOption{oauth.WithEnvToken(cfg.AccessToken)}, opts...)
	return oauth.NewResolver(oauthConfig, client, store, opts...), nil
}

// RunStdio serves MCP over stdin/stdout until the context is cancelled.
func RunStdio(ctx context.Context, cfg config.Config, version string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	resolver, err := NewResolver(cfg)
	if err != nil {
		return err
	}

	mcpServer := server.NewMCPServer(
		"basecamp-mcp",
		version,
		server.WithToolCapabilities(false),
	)
	toolset := tools.NewToolset(cfg.AccountID, auth.ResolverTokenStrategy{Resolver: resolver})
	toolset.Register(mcpServer)

	logging.Info("Bootstrap", "Starting basecamp-mcp with stdio transport")
	stdioServer := server.NewStdioServer(mcpServer)
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}
