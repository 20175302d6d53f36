package cmd

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"basecamp-mcp/internal/app"
)

// stdioCmd starts the single-user stdio transport.
var stdioCmd = &cobra.Command{
	Use:   "stdio",
	Short: "Serve MCP over stdin/stdout",
	Long: `Serve MCP over stdin/stdout for local single-user clients.

Tool calls use the process-wide token: the BASECAMP_ACCESS_TOKEN override
if set, otherwise the cached token from 'auth login' (refreshed when
expired). Run 'auth login' first, or the initial tool call will open a
browser for the interactive flow.`,
	Args: cobra.NoArgs,
	RunE: runStdio,
}

func runStdio(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return app.RunStdio(ctx, cfg, rootCmd.Version)
}
