// Package tools defines the MCP tools exposed by basecamp-mcp.
//
// Each tool wraps one Basecamp API operation. Handlers resolve the caller's
// upstream token through the configured strategy, build a client for the
// call, and return results as indented JSON text.
package tools
