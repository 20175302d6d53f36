package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"basecamp-mcp/internal/oauth"
)

// authLogoutCmd clears the cached token.
var authLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Clear the cached Basecamp token",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := oauth.NewTokenStore()
		if err != nil {
			return err
		}
		if err := store.Clear(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Cached token cleared.")
		return nil
	},
}
