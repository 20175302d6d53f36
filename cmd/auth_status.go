package cmd

import (
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"basecamp-mcp/internal/config"
	"basecamp-mcp/internal/oauth"
)

// authStatusCmd shows the cached token state.
var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show authentication status",
	Long: `Show the current authentication status.

Displays whether an environment override is active, whether a cached token
exists, when it expires, and whether a refresh token is available. Token
values themselves are never printed.`,
	Args: cobra.NoArgs,
	RunE: runAuthStatus,
}

func runAuthStatus(cmd *cobra.Command, args []string) error {
	writer := table.NewWriter()
	writer.SetOutputMirror(cmd.OutOrStdout())
	writer.AppendHeader(table.Row{"Field", "Value"})

	if cfg.AccessToken != "" {
		writer.AppendRow(table.Row{"Mode", text.FgGreen.Sprint("environment override")})
		writer.AppendRow(table.Row{"Source", config.EnvAccessToken})
		writer.Render()
		return nil
	}

	store, err := oauth.NewTokenStore()
	if err != nil {
		return err
	}
	writer.AppendRow(table.Row{"Token file", store.Path()})

	record, ok := store.Load()
	if !ok {
		writer.AppendRow(table.Row{"Status", text.FgYellow.Sprint("not authenticated")})
		writer.Render()
		fmt.Fprintln(cmd.OutOrStdout(), "\nRun 'basecamp-mcp auth login' to authenticate.")
		return nil
	}

	if record.IsExpired() {
		writer.AppendRow(table.Row{"Status", text.FgYellow.Sprint("expired")})
	} else {
		writer.AppendRow(table.Row{"Status", text.FgGreen.Sprint("authenticated")})
	}

	if record.ExpiresAt.IsZero() {
		writer.AppendRow(table.Row{"Expires", "unknown (assumed valid)"})
	} else {
		writer.AppendRow(table.Row{"Expires", record.ExpiresAt.Local().Format(time.RFC1123)})
	}

	if record.RefreshToken != "" {
		writer.AppendRow(table.Row{"Refresh token", "present"})
	} else {
		writer.AppendRow(table.Row{"Refresh token", "absent"})
	}

	writer.Render()
	return nil
}
