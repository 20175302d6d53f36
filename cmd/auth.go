package cmd

import (
	"github.com/spf13/cobra"
)

// authCmd groups the authentication subcommands.
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage Basecamp authentication",
	Long: `Manage the persisted Basecamp credentials used by stdio mode.

Examples:
  basecamp-mcp auth login    # Run the browser-based OAuth flow
  basecamp-mcp auth status   # Show the cached token state
  basecamp-mcp auth logout   # Clear the cached token`,
}

func init() {
	authCmd.AddCommand(authLoginCmd)
	authCmd.AddCommand(authStatusCmd)
	authCmd.AddCommand(authLogoutCmd)
}
