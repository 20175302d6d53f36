package cmd

import (
	"errors"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"basecamp-mcp/internal/config"
	"basecamp-mcp/pkg/logging"
	pkgoauth "basecamp-mcp/pkg/oauth"
)

// Exit codes for CLI commands. These follow common conventions and give
// scripts a way to distinguish auth problems from general failures.
const (
	// ExitCodeSuccess indicates successful execution.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error.
	ExitCodeError = 1
	// ExitCodeAuthRequired indicates authentication is required but not configured.
	ExitCodeAuthRequired = 2
	// ExitCodeAuthFailed indicates the OAuth flow failed.
	ExitCodeAuthFailed = 3
)

var (
	rootConfigPath string
	rootDebug      bool

	// cfg is the loaded process configuration, populated before any RunE.
	cfg config.Config
)

// rootCmd is the base command for the basecamp-mcp binary.
var rootCmd = &cobra.Command{
	Use:   "basecamp-mcp",
	Short: "Expose Basecamp to MCP clients with an OAuth token bridge",
	Long: `basecamp-mcp exposes the Basecamp project-management API as MCP tools.

It bridges the gap between MCP clients, which expect OAuth 2.1 with PKCE,
and Basecamp's Launchpad authorization server, which supports neither PKCE
nor dynamic registration. Run 'serve' for the multi-tenant HTTP server or
'stdio' for a single-user local transport.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// .env is optional; absence is not an error
		_ = godotenv.Load()

		level := logging.LevelInfo
		if rootDebug {
			level = logging.LevelDebug
		}
		logging.InitForCLI(level, os.Stderr)

		configPath := rootConfigPath
		if configPath == "" {
			var err error
			configPath, err = config.DefaultConfigPath()
			if err != nil {
				return err
			}
		}

		var err error
		cfg, err = config.Load(configPath)
		return err
	},
}

// SetVersion sets the version for the root command, injected at build time.
func SetVersion(v string) {
	rootCmd.Version = v
}

// Execute runs the CLI and exits with a semantic exit code.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "basecamp-mcp version %s\n" .Version}}`)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(getExitCode(err))
	}
}

// getExitCode maps flow errors onto exit codes.
func getExitCode(err error) int {
	var flowErr *pkgoauth.FlowError
	if !errors.As(err, &flowErr) {
		return ExitCodeError
	}

	switch flowErr.Kind {
	case pkgoauth.KindNoConfig:
		return ExitCodeAuthRequired
	case pkgoauth.KindOAuthFailed, pkgoauth.KindUserDenied, pkgoauth.KindTimeout,
		pkgoauth.KindTokenExchangeFailed, pkgoauth.KindRefreshFailed:
		return ExitCodeAuthFailed
	default:
		return ExitCodeError
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rootConfigPath, "config-path", "", "Configuration directory (default ~/.config/basecamp-mcp)")
	rootCmd.PersistentFlags().BoolVar(&rootDebug, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(stdioCmd)
	rootCmd.AddCommand(authCmd)
	rootCmd.AddCommand(newVersionCmd())
}
