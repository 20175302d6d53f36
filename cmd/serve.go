package cmd

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"basecamp-mcp/internal/app"
)

// serveCmd starts the multi-tenant HTTP server: the MCP streamable HTTP
// endpoint plus the OAuth bridge endpoints on one listener.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the multi-tenant HTTP server",
	Long: `Start the basecamp-mcp HTTP server.

The server exposes the MCP endpoint at /mcp and the OAuth bridge
(/.well-known/oauth-authorization-server, /authorize, /token, /register,
/oauth/callback, /revoke) on the same listener. MCP clients authenticate
with OAuth 2.1 + PKCE; the server performs the upstream Basecamp flow on
their behalf.

Requires BASECAMP_CLIENT_ID, BASECAMP_CLIENT_SECRET and BASECAMP_ACCOUNT_ID
(or their config.yaml equivalents).`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server, err := app.NewServer(cfg, rootCmd.Version)
	if err != nil {
		return err
	}
	return server.Run(ctx)
}
