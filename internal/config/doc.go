// Package config loads process configuration for basecamp-mcp.
//
// Configuration comes from an optional YAML file (~/.config/basecamp-mcp/
// config.yaml by default) with environment variables taking precedence.
// Secrets (client secret, access token override) are expected from the
// environment; the YAML file covers the stable, non-secret settings.
package config
