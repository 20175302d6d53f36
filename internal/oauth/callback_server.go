package oauth

import (
	"context"
	"fmt"
	"html"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"basecamp-mcp/pkg/logging"
	pkgoauth "basecamp-mcp/pkg/oauth"
)

// CallbackTimeout is the recommended outer deadline for waiting on the OAuth
// callback. The server itself has no internal timeout; callers apply this via
// context.
const CallbackTimeout = 10 * time.Minute

// CallbackResult represents the outcome of an OAuth callback: exactly one of
// Code or Err is set.
type CallbackResult struct {
	Code string
	Err  error
}

// CallbackServer is a temporary local HTTP server for receiving the OAuth
// authorization redirect during interactive login. It starts, waits for a
// single settlement on the callback path, then shuts down.
//
// Requests to other paths (favicon probes, stray requests) render a waiting
// page and keep the server listening.
type CallbackServer struct {
	addr          string
	callbackPath  string
	expectedState string

	server   *http.Server
	listener net.Listener
	resultCh chan *CallbackResult
	errorCh  chan error
	once     sync.Once
}

// NewCallbackServer creates a callback server derived from the configured
// redirect URI. The bind host and port come from the URI, with the port
// defaulting to 80/443 by scheme. An unparsable port fails fast with an
// INVALID_CONFIG classification before any binding happens.
func NewCallbackServer(redirectURI, expectedState string) (*CallbackServer, error) {
	parsed, err := url.Parse(redirectURI)
	if err != nil {
		return nil, pkgoauth.WrapFlowError(pkgoauth.KindInvalidConfig, err, "invalid redirect URI %q", redirectURI)
	}

	host := parsed.Hostname()
	if host == "" {
		return nil, pkgoauth.NewFlowError(pkgoauth.KindInvalidConfig, "redirect URI %q has no host", redirectURI)
	}

	port := parsed.Port()
	if port == "" {
		switch parsed.Scheme {
		case "https":
			port = "443"
		default:
			port = "80"
		}
	}
	if _, err := strconv.Atoi(port); err != nil {
		return nil, pkgoauth.WrapFlowError(pkgoauth.KindInvalidConfig, err, "redirect URI %q has invalid port", redirectURI)
	}

	callbackPath := parsed.Path
	if callbackPath == "" {
		callbackPath = "/"
	}

	return &CallbackServer{
		addr:          net.JoinHostPort(host, port),
		callbackPath:  callbackPath,
		expectedState: expectedState,
		resultCh:      make(chan *CallbackResult, 1),
		errorCh:       make(chan error, 1),
	}, nil
}

// Start binds the listener and begins serving. The server stops when the
// context is cancelled.
func (s *CallbackServer) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return pkgoauth.WrapFlowError(pkgoauth.KindOAuthFailed, err, "failed to start callback server on %s", s.addr)
	}
	s.listener = listener
	// Port 0 resolves to an ephemeral port on bind
	s.addr = listener.Addr().String()

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleRequest)

	s.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			select {
			case s.errorCh <- err:
			default:
			}
		}
	}()

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	logging.Debug("OAuth", "Callback server listening on %s (path %s)", s.addr, s.callbackPath)
	return nil
}

// WaitForCallback blocks until the callback settles, the server fails, or the
// context is done. A context deadline is classified as TIMEOUT.
func (s *CallbackServer) WaitForCallback(ctx context.Context) (string, error) {
	select {
	case result := <-s.resultCh:
		return result.Code, result.Err
	case err := <-s.errorCh:
		return "", pkgoauth.WrapFlowError(pkgoauth.KindOAuthFailed, err, "callback server failed")
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			return "", pkgoauth.WrapFlowError(pkgoauth.KindTimeout, ctx.Err(), "timed out waiting for OAuth callback")
		}
		return "", ctx.Err()
	}
}

// Stop shuts down the callback server unconditionally.
func (s *CallbackServer) Stop() {
	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(ctx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
	}
}

// settle records the single observable outcome. Later settlements are no-ops.
func (s *CallbackServer) settle(result *CallbackResult) {
	s.once.Do(func() {
		s.resultCh <- result
	})
}

// handleRequest routes inbound requests. Only the configured callback path
// can settle the flow; everything else keeps the server listening.
func (s *CallbackServer) handleRequest(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != s.callbackPath {
		s.renderWaitingPage(w)
		return
	}

	query := r.URL.Query()

	if errParam := query.Get("error"); errParam != "" {
		errDesc := query.Get("error_description")
		logging.Warn("OAuth", "Authorization denied: %s", errParam)
		s.renderErrorPage(w, "Authorization Denied", fmt.Sprintf("The authorization request was denied: %s", errDesc))
		s.settle(&CallbackResult{Err: pkgoauth.NewFlowError(pkgoauth.KindUserDenied, "authorization denied: %s", errParam)})
		return
	}

	if query.Get("state") != s.expectedState {
		// CSRF defense: no detail beyond "retry" reaches the browser
		logging.Warn("OAuth", "Callback state mismatch, possible CSRF")
		s.renderErrorPage(w, "Authorization Failed", "The authorization response could not be verified. Please try again.")
		s.settle(&CallbackResult{Err: pkgoauth.NewFlowError(pkgoauth.KindOAuthFailed, "state parameter mismatch")})
		return
	}

	code := query.Get("code")
	if code == "" {
		logging.Warn("OAuth", "Callback missing authorization code")
		s.renderErrorPage(w, "Authorization Failed", "The authorization response was missing a code. Please try again.")
		s.settle(&CallbackResult{Err: pkgoauth.NewFlowError(pkgoauth.KindOAuthFailed, "callback missing authorization code")})
		return
	}

	s.renderSuccessPage(w)
	s.settle(&CallbackResult{Code: code})
}

// setSecurityHeaders sets recommended security headers for HTML responses.
// These headers help prevent XSS, clickjacking, and MIME sniffing attacks.
func setSecurityHeaders(w http.ResponseWriter) {
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("Content-Security-Policy", "default-src 'none'; style-src 'unsafe-inline'")
	w.Header().Set("Referrer-Policy", "no-referrer")
	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate")
}

func (s *CallbackServer) renderSuccessPage(w http.ResponseWriter) {
	s.renderPage(w, "Authentication Successful", "You are signed in. You can close this window and return to the terminal.")
}

func (s *CallbackServer) renderWaitingPage(w http.ResponseWriter) {
	s.renderPage(w, "Waiting for Authentication", "Waiting for the authorization to complete...")
}

// renderErrorPage renders a failure page. The detail may carry the upstream
// error_description, which is attacker-controlled; it is escaped in
// renderPage before insertion.
func (s *CallbackServer) renderErrorPage(w http.ResponseWriter, title, detail string) {
	s.renderPage(w, title, detail)
}

func (s *CallbackServer) renderPage(w http.ResponseWriter, title, body string) {
	setSecurityHeaders(w)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)

	safeTitle := html.EscapeString(title)
	safeBody := html.EscapeString(body)

	htmlContent := fmt.Sprintf(`<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>%s - Basecamp MCP</title>
    <style>
        * { margin: 0; padding: 0; box-sizing: border-box; }
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, Oxygen, Ubuntu, sans-serif;
            background: linear-gradient(135deg, #1d2d35 0%%, #283f4b 50%%, #1f5c45 100%%);
            min-height: 100vh;
            display: flex;
            align-items: center;
            justify-content: center;
            color: #e8edf0;
        }
        .card {
            background: rgba(255, 255, 255, 0.06);
            border-radius: 12px;
            padding: 3rem;
            max-width: 28rem;
            text-align: center;
        }
        h1 { font-size: 1.4rem; margin-bottom: 1rem; }
        p { color: #b8c4cb; line-height: 1.5; }
    </style>
</head>
<body>
    <div class="card">
        <h1>%s</h1>
        <p>%s</p>
    </div>
</body>
</html>`, safeTitle, safeTitle, safeBody)

	// The status line is already out; a failed body write can only be logged
	if _, err := w.Write([]byte(htmlContent)); err != nil {
		logging.Warn("OAuth", "Failed to write callback page: %v", err)
	}
}

// Addr returns the bind address of the server.
func (s *CallbackServer) Addr() string {
	return s.addr
}
