// Package app wires the process together for both execution modes.
//
// Serve mode runs the multi-tenant HTTP server: the MCP streamable HTTP
// endpoint plus the OAuth bridge endpoints on one listener, with per-request
// bearer verification. Stdio mode runs the single-user transport over
// stdin/stdout using the process-wide token resolver.
package app
