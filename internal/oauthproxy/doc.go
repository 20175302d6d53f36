// Package oauthproxy implements the downstream-facing OAuth 2.1 server that
// bridges PKCE-bearing MCP clients to the upstream authorization server,
// which does not support PKCE.
//
// The bridge works by wrapping: downstream clients receive locally minted
// authorization codes, access tokens, and refresh tokens that are opaque to
// them but internally map to upstream token material. All of that state is
// ephemeral, held in a SessionStore of four TTL-governed tables keyed by
// cryptographically random bearer secrets. Nothing in this package touches
// local disk; downstream clients are expected to re-register and
// re-authorize after a process restart.
//
// Flow for one downstream client:
//
//	POST /register           dynamic client registration (RFC 7591 subset)
//	GET  /authorize          pending request stored, redirect upstream (no PKCE)
//	GET  /oauth/callback     upstream code exchanged, local code minted,
//	                         redirect back to the client with code + state
//	POST /token              PKCE verified, local code swapped for local tokens
//	POST /token (refresh)    upstream refresh, local tokens rotated
//	POST /revoke             local entries dropped
//
// PKCE is S256 only; the plain method is never accepted.
package oauthproxy
