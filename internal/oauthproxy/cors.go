package oauthproxy

import (
	"net/http"
	"strings"
)

// corsAllowedPrefixes is the fixed allowlist of path prefixes that browsers
// may reach cross-origin: the discovery documents and the OAuth endpoints.
var corsAllowedPrefixes = []string{
	"/.well-known/",
	"/authorize",
	"/token",
	"/register",
	"/oauth/callback",
}

// corsPathAllowed matches a request path against the allowlist with
// boundary awareness: /authorize and /authorize/foo match the /authorize
// entry, /authorize-admin does not.
func corsPathAllowed(path string) bool {
	for _, prefix := range corsAllowedPrefixes {
		if strings.HasSuffix(prefix, "/") {
			if strings.HasPrefix(path, prefix) {
				return true
			}
			continue
		}
		if path == prefix || strings.HasPrefix(path, prefix+"/") {
			return true
		}
	}
	return false
}

// CORSMiddleware adds CORS headers for the allowlisted OAuth paths and
// answers preflight requests. Browser-based MCP clients discover and use the
// OAuth endpoints cross-origin; everything else stays same-origin.
func CORSMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if corsPathAllowed(r.URL.Path) && r.Header.Get("Origin") != "" {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
			w.Header().Set("Access-Control-Max-Age", "3600")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
		}

		next.ServeHTTP(w, r)
	})
}
