// Package logging provides a structured logging system for basecamp-mcp with
// unified log handling and level filtering.
//
// This package is built on Go's standard slog package. Log entries carry a
// subsystem attribute for categorization (Bootstrap, Config, OAuth, Proxy,
// Basecamp, Tools) and support printf-style message formatting.
//
// Initialize once at startup:
//
//	logging.InitForCLI(logging.LevelInfo, os.Stderr)
//
//	logging.Info("Bootstrap", "Application starting up")
//	logging.Debug("Config", "Loaded configuration from %s", configPath)
//	logging.Error("OAuth", err, "Token refresh failed")
//
// Output goes to stderr by convention so that the stdio MCP transport keeps
// stdout reserved for protocol traffic. Token values must never be logged;
// log URLs, client IDs, and outcomes instead.
package logging
