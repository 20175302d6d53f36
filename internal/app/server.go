package app

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"golang.org/x/sync/errgroup"

	"basecamp-mcp/internal/auth"
	"basecamp-mcp/internal/config"
	"basecamp-mcp/internal/oauthproxy"
	"basecamp-mcp/internal/tools"
	"basecamp-mcp/pkg/logging"
	pkgoauth "basecamp-mcp/pkg/oauth"
)

const shutdownTimeout = 5 * time.Second

// Server is the serve-mode application: one HTTP listener carrying the MCP
// endpoint and the OAuth bridge.
type Server struct {
	config     config.Config
	store      *oauthproxy.SessionStore
	provider   *oauthproxy.Provider
	httpServer *http.Server
}

// NewServer builds the full serve-mode wiring.
func NewServer(cfg config.Config, version string) (*Server, error) {
	if err := cfg.ValidateOAuth(); err != nil {
		return nil, err
	}

	// The upstream redirect must land on this server's own callback
	// handler, not the loopback URI the interactive login flow uses.
	upstreamConfig := cfg.OAuthConfig()
	upstreamConfig.RedirectURI = strings.TrimSuffix(cfg.Server.BaseURL, "/") + "/oauth/callback"

	upstream := pkgoauth.NewClient(upstreamConfig)
	store := oauthproxy.NewSessionStore()
	provider := oauthproxy.NewProvider(store, oauthproxy.NewClientRegistry(), upstream)

	mcpServer := server.NewMCPServer(
		"basecamp-mcp",
		version,
		server.WithToolCapabilities(false),
	)
	toolset := tools.NewToolset(cfg.AccountID, auth.RequestTokenStrategy{})
	toolset.Register(mcpServer)

	streamable := server.NewStreamableHTTPServer(
		mcpServer,
		server.WithHTTPContextFunc(auth.HTTPContextFunc(provider)),
	)

	mux := http.NewServeMux()
	oauthproxy.NewHandler(provider, cfg.Server.BaseURL).RegisterRoutes(mux)
	mux.Handle("/mcp", streamable)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	return &Server{
		config:   cfg,
		store:    store,
		provider: provider,
		httpServer: &http.Server{
			Addr:    addr,
			Handler: oauthproxy.CORSMiddleware(mux),
		},
	}, nil
}

// Handler returns the composed HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	defer s.store.Stop()

	logging.Info("Bootstrap", "Starting basecamp-mcp server on %s (issuer %s)", s.httpServer.Addr, s.config.Server.BaseURL)

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	group.Go(func() error {
		<-ctx.Done()
		logging.Info("Bootstrap", "Shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	})

	return group.Wait()
}
