// Package oauth implements the OAuth 2.0 protocol primitives used by
// basecamp-mcp: the token endpoint client (authorization-code exchange and
// refresh), authorization URL construction, PKCE (S256) generation and
// verification, and random state/secret generation.
//
// The package is transport-only: it does not persist tokens, open browsers,
// or serve HTTP. Those concerns live in internal/oauth (local flow) and
// internal/oauthproxy (server-side bridging).
//
// Errors from token operations are *FlowError values carrying a Kind that
// callers map to user-facing behavior and CLI exit codes.
package oauth
