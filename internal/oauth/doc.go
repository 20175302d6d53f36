// Package oauth implements the local (single-user) OAuth flow for
// basecamp-mcp: durable token storage on disk, the short-lived loopback
// callback server used during interactive login, and the token acquisition
// resolver that turns "I need a valid upstream token" into a concrete token.
//
// # Token Resolution Precedence
//
// The resolver tries, in order:
//
//  1. Explicit override token from the environment (source "env")
//  2. Cached token from disk, if not expired (source "cache")
//  3. Refresh grant using the cached refresh token (source "refresh")
//  4. Interactive browser login (source "interactive")
//
// A refresh failure is recovered locally by falling through to interactive
// login. Every other failure is surfaced as a classified *pkg/oauth.FlowError.
//
// The multi-tenant server mode never uses this package's disk storage; see
// internal/oauthproxy.
package oauth
