package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/briandowns/spinner"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"basecamp-mcp/internal/app"
	"basecamp-mcp/internal/oauth"
)

var loginForce bool

// authLoginCmd runs the browser-based OAuth flow and caches the result.
var authLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Authenticate to Basecamp",
	Long: `Authenticate to Basecamp using the browser-based OAuth flow.

A local callback server is started on the configured redirect URI, the
Basecamp authorization page opens in your browser, and the resulting token
is cached for stdio mode. If a valid cached token already exists, nothing
happens unless --force is given.`,
	Args: cobra.NoArgs,
	RunE: runAuthLogin,
}

func init() {
	authLoginCmd.Flags().BoolVar(&loginForce, "force", false, "Discard the cached token and authenticate again")
}

func runAuthLogin(cmd *cobra.Command, args []string) error {
	if cfg.AccessToken != "" {
		fmt.Println("BASECAMP_ACCESS_TOKEN is set; the override is used instead of OAuth. Nothing to do.")
		return nil
	}

	resolver, err := app.NewResolver(cfg, oauth.WithPrompt(func(authURL string) {
		fmt.Printf("Open this URL in your browser to authorize:\n\n  %s\n\n", authURL)
	}))
	if err != nil {
		return err
	}

	if loginForce {
		if err := resolver.Logout(); err != nil {
			return err
		}
	}

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	s.Suffix = " Waiting for authorization..."
	s.Start()
	defer s.Stop()

	ctx, cancel := context.WithTimeout(cmd.Context(), oauth.CallbackTimeout)
	defer cancel()

	cred, err := resolver.GetAccessToken(ctx)
	if err != nil {
		s.FinalMSG = text.FgRed.Sprint("Authentication failed") + "\n"
		return err
	}

	s.FinalMSG = text.FgGreen.Sprint("Authenticated") + "\n"
	s.Stop()

	switch cred.Source {
	case oauth.SourceCache:
		fmt.Println("A valid cached token already exists. Use --force to authenticate again.")
	case oauth.SourceRefresh:
		fmt.Println("Cached token was refreshed.")
	}
	if cred.Record != nil && !cred.Record.ExpiresAt.IsZero() {
		fmt.Printf("Token expires at %s\n", cred.Record.ExpiresAt.Local().Format(time.RFC1123))
	}
	return nil
}
