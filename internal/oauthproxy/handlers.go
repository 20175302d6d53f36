package oauthproxy

import (
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"net/http"
	"strings"

	"basecamp-mcp/pkg/logging"
	pkgoauth "basecamp-mcp/pkg/oauth"
)

// Handler exposes the provider as HTTP endpoints: the RFC 8414 discovery
// document, /authorize, /token, /register, /oauth/callback, and /revoke.
type Handler struct {
	provider *Provider

	// baseURL is the externally visible origin of this server, used as the
	// issuer in the discovery document.
	baseURL string
}

// NewHandler creates the HTTP layer over a provider.
func NewHandler(provider *Provider, baseURL string) *Handler {
	return &Handler{
		provider: provider,
		baseURL:  strings.TrimSuffix(baseURL, "/"),
	}
}

// RegisterRoutes attaches all OAuth endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/.well-known/oauth-authorization-server", h.handleMetadata)
	mux.HandleFunc("/authorize", h.handleAuthorize)
	mux.HandleFunc("/token", h.handleToken)
	mux.HandleFunc("/register", h.handleRegister)
	mux.HandleFunc("/oauth/callback", h.handleUpstreamCallback)
	mux.HandleFunc("/revoke", h.handleRevoke)
}

// handleMetadata serves the RFC 8414 authorization server metadata. Only the
// S256 challenge method is advertised.
func (h *Handler) handleMetadata(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	metadata := pkgoauth.Metadata{
		Issuer:                            h.baseURL,
		AuthorizationEndpoint:             h.baseURL + "/authorize",
		TokenEndpoint:                     h.baseURL + "/token",
		RegistrationEndpoint:              h.baseURL + "/register",
		RevocationEndpoint:                h.baseURL + "/revoke",
		ResponseTypesSupported:            []string{"code"},
		GrantTypesSupported:               []string{"authorization_code", "refresh_token"},
		TokenEndpointAuthMethodsSupported: []string{"none"},
		CodeChallengeMethodsSupported:     []string{"S256"},
	}

	writeJSON(w, http.StatusOK, metadata)
}

// handleAuthorize validates the downstream authorize request and redirects
// the user agent to the upstream authorization server.
func (h *Handler) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	query := r.URL.Query()

	if rt := query.Get("response_type"); rt != "code" {
		h.renderAuthorizeError(w, oauthErr("unsupported_response_type", "response_type must be code"))
		return
	}

	authURL, err := h.provider.Authorize(
		query.Get("client_id"),
		query.Get("redirect_uri"),
		query.Get("code_challenge"),
		query.Get("code_challenge_method"),
		query.Get("scope"),
		query.Get("state"),
	)
	if err != nil {
		var oe *OAuthError
		if errors.As(err, &oe) {
			h.renderAuthorizeError(w, oe)
		} else {
			h.renderAuthorizeError(w, oauthErr("server_error", "authorization failed"))
		}
		return
	}

	http.Redirect(w, r, authURL, http.StatusFound)
}

// handleUpstreamCallback receives the upstream redirect and forwards the
// user agent back to the downstream client with a local code.
func (h *Handler) handleUpstreamCallback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	query := r.URL.Query()
	redirect, oauthErr := h.provider.HandleUpstreamCallback(
		r.Context(),
		query.Get("state"),
		query.Get("code"),
		query.Get("error"),
		query.Get("error_description"),
	)
	if oauthErr != nil {
		h.renderCallbackError(w, oauthErr)
		return
	}

	http.Redirect(w, r, redirect, http.StatusFound)
}

// handleToken serves the downstream token endpoint for the
// authorization_code and refresh_token grants with RFC 6749 error bodies.
func (h *Handler) handleToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeOAuthError(w, http.StatusMethodNotAllowed, oauthErr("invalid_request", "token requests must be POST"))
		return
	}

	if err := r.ParseForm(); err != nil {
		writeOAuthError(w, http.StatusBadRequest, oauthErr("invalid_request", "malformed form body"))
		return
	}

	switch r.PostForm.Get("grant_type") {
	case "authorization_code":
		h.handleAuthorizationCodeGrant(w, r)
	case "refresh_token":
		h.handleRefreshTokenGrant(w, r)
	default:
		writeOAuthError(w, http.StatusBadRequest, oauthErr("unsupported_grant_type", "grant_type must be authorization_code or refresh_token"))
	}
}

func (h *Handler) handleAuthorizationCodeGrant(w http.ResponseWriter, r *http.Request) {
	clientID := r.PostForm.Get("client_id")
	code := r.PostForm.Get("code")
	redirectURI := r.PostForm.Get("redirect_uri")
	verifier := r.PostForm.Get("code_verifier")

	// PKCE gate: the stored challenge must match the presented verifier
	// before the exchange is allowed to proceed.
	challenge, ok := h.provider.ChallengeForAuthorizationCode(code)
	if !ok {
		writeOAuthError(w, http.StatusBadRequest, oauthErr("invalid_grant", "authorization code is invalid or expired"))
		return
	}
	if !pkgoauth.VerifyS256Challenge(verifier, challenge) {
		logging.Warn("Proxy", "PKCE verification failed for client %s", clientID)
		writeOAuthError(w, http.StatusBadRequest, oauthErr("invalid_grant", "PKCE verification failed"))
		return
	}

	resp, err := h.provider.ExchangeAuthorizationCode(clientID, code, redirectURI)
	if err != nil {
		writeTokenError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleRefreshTokenGrant(w http.ResponseWriter, r *http.Request) {
	clientID := r.PostForm.Get("client_id")
	refreshToken := r.PostForm.Get("refresh_token")

	resp, err := h.provider.ExchangeRefreshToken(r.Context(), clientID, refreshToken)
	if err != nil {
		writeTokenError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// registrationRequest is the RFC 7591 subset accepted by /register.
type registrationRequest struct {
	ClientName   string   `json:"client_name"`
	RedirectURIs []string `json:"redirect_uris"`
}

// registrationResponse is the RFC 7591 subset returned by /register.
type registrationResponse struct {
	ClientID                string   `json:"client_id"`
	ClientName              string   `json:"client_name,omitempty"`
	RedirectURIs            []string `json:"redirect_uris"`
	ClientIDIssuedAt        int64    `json:"client_id_issued_at"`
	TokenEndpointAuthMethod string   `json:"token_endpoint_auth_method"`
	GrantTypes              []string `json:"grant_types"`
	ResponseTypes           []string `json:"response_types"`
}

// handleRegister implements dynamic client registration.
func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeOAuthError(w, http.StatusMethodNotAllowed, oauthErr("invalid_request", "registration requests must be POST"))
		return
	}

	var req registrationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeOAuthError(w, http.StatusBadRequest, oauthErr("invalid_client_metadata", "request body must be JSON"))
		return
	}

	client, err := h.provider.Clients().Register(req.ClientName, req.RedirectURIs)
	if err != nil {
		writeOAuthError(w, http.StatusBadRequest, oauthErr("invalid_client_metadata", "%s", err.Error()))
		return
	}

	writeJSON(w, http.StatusCreated, registrationResponse{
		ClientID:                client.ClientID,
		ClientName:              client.ClientName,
		RedirectURIs:            client.RedirectURIs,
		ClientIDIssuedAt:        client.CreatedAt.Unix(),
		TokenEndpointAuthMethod: "none",
		GrantTypes:              []string{"authorization_code", "refresh_token"},
		ResponseTypes:           []string{"code"},
	})
}

// handleRevoke implements RFC 7009 token revocation. Revocation always
// responds 200: absent tokens are a no-op by design.
func (h *Handler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeOAuthError(w, http.StatusMethodNotAllowed, oauthErr("invalid_request", "revocation requests must be POST"))
		return
	}

	if err := r.ParseForm(); err != nil {
		writeOAuthError(w, http.StatusBadRequest, oauthErr("invalid_request", "malformed form body"))
		return
	}

	h.provider.RevokeToken(
		r.PostForm.Get("client_id"),
		r.PostForm.Get("token"),
		r.PostForm.Get("token_type_hint"),
	)

	w.WriteHeader(http.StatusOK)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error("Proxy", err, "Failed to encode response")
	}
}

// writeTokenError maps provider errors onto token endpoint responses.
func writeTokenError(w http.ResponseWriter, err error) {
	var oe *OAuthError
	if !errors.As(err, &oe) {
		oe = oauthErr("server_error", "internal error")
	}

	status := http.StatusBadRequest
	switch oe.Code {
	case "invalid_client":
		status = http.StatusUnauthorized
	case "server_error":
		status = http.StatusInternalServerError
	}

	writeOAuthError(w, status, oe)
}

func writeOAuthError(w http.ResponseWriter, status int, oe *OAuthError) {
	writeJSON(w, status, oe)
}

// renderAuthorizeError renders a 400 HTML page for authorize requests that
// cannot be answered with a redirect (unknown client, bad redirect URI).
func (h *Handler) renderAuthorizeError(w http.ResponseWriter, oe *OAuthError) {
	h.renderErrorPage(w, http.StatusBadRequest, "Authorization Request Rejected", oe.Description)
}

// renderCallbackError renders the upstream failure to the user's browser.
func (h *Handler) renderCallbackError(w http.ResponseWriter, oe *OAuthError) {
	detail := oe.Description
	if detail == "" {
		detail = oe.Code
	}
	h.renderErrorPage(w, http.StatusBadRequest, "Authorization Failed", detail)
}

// renderErrorPage writes a minimal HTML error page. The detail may include
// upstream error descriptions, which are attacker-controlled and escaped.
func (h *Handler) renderErrorPage(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("Content-Security-Policy", "default-src 'none'; style-src 'unsafe-inline'")
	w.Header().Set("Referrer-Policy", "no-referrer")
	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate")
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)

	fmt.Fprintf(w, `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <title>%s - Basecamp MCP</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', sans-serif;
               background: #1d2d35; color: #e8edf0; display: flex;
               align-items: center; justify-content: center; min-height: 100vh; margin: 0; }
        .card { background: rgba(255,255,255,0.06); border-radius: 12px;
                padding: 3rem; max-width: 28rem; text-align: center; }
        h1 { font-size: 1.4rem; margin: 0 0 1rem; }
        p { color: #b8c4cb; line-height: 1.5; }
    </style>
</head>
<body>
    <div class="card">
        <h1>%s</h1>
        <p>%s</p>
    </div>
</body>
</html>`, html.EscapeString(title), html.EscapeString(title), html.EscapeString(detail))
}
