package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"

	"basecamp-mcp/pkg/logging"
	pkgoauth "basecamp-mcp/pkg/oauth"
)

const (
	userConfigDir  = ".config/basecamp-mcp"
	configFileName = "config.yaml"
)

// Environment variable names. BASECAMP_ACCESS_TOKEN short-circuits the OAuth
// flow entirely; the rest override their YAML counterparts.
const (
	EnvAccessToken  = "BASECAMP_ACCESS_TOKEN"
	EnvClientID     = "BASECAMP_CLIENT_ID"
	EnvClientSecret = "BASECAMP_CLIENT_SECRET"
	EnvRedirectURI  = "BASECAMP_OAUTH_REDIRECT_URI"
	EnvAccountID    = "BASECAMP_ACCOUNT_ID"
	EnvHost         = "BASECAMP_HOST"
	EnvPort         = "BASECAMP_PORT"
	EnvBaseURL      = "BASECAMP_BASE_URL"
)

// ServerConfig holds the serve-mode HTTP settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// BaseURL is the externally visible origin used as the OAuth issuer.
	// Defaults to http://{host}:{port}.
	BaseURL string `yaml:"baseUrl"`
}

// Config is the full process configuration.
type Config struct {
	// AccountID is the numeric Basecamp account the tools operate on.
	AccountID string `yaml:"accountId"`

	ClientID     string `yaml:"clientId"`
	ClientSecret string `yaml:"-"`
	RedirectURI  string `yaml:"redirectUri"`

	// AccessToken is the environment override; never read from YAML.
	AccessToken string `yaml:"-"`

	Server ServerConfig `yaml:"server"`
}

// Default returns the built-in defaults.
func Default() Config {
	return Config{
		RedirectURI: "http://localhost:8347/oauth/callback",
		Server: ServerConfig{
			Host: "localhost",
			Port: 8090,
		},
	}
}

// DefaultConfigPath returns ~/.config/basecamp-mcp.
func DefaultConfigPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(homeDir, userConfigDir), nil
}

// Load reads config.yaml from configPath (missing file means defaults) and
// applies environment overrides.
func Load(configPath string) (Config, error) {
	config := Default()

	configFilePath := filepath.Join(configPath, configFileName)
	data, err := os.ReadFile(configFilePath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		logging.Debug("Config", "No config.yaml at %s, using defaults", configFilePath)
	case err != nil:
		return Config{}, fmt.Errorf("error reading config from %s: %w", configFilePath, err)
	default:
		if err := yaml.Unmarshal(data, &config); err != nil {
			return Config{}, fmt.Errorf("error parsing config from %s: %w", configFilePath, err)
		}
		logging.Info("Config", "Loaded configuration from %s", configFilePath)
	}

	config.applyEnv()

	if config.Server.BaseURL == "" {
		config.Server.BaseURL = fmt.Sprintf("http://%s:%d", config.Server.Host, config.Server.Port)
	}

	return config, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvAccessToken); v != "" {
		c.AccessToken = v
	}
	if v := os.Getenv(EnvClientID); v != "" {
		c.ClientID = v
	}
	if v := os.Getenv(EnvClientSecret); v != "" {
		c.ClientSecret = v
	}
	if v := os.Getenv(EnvRedirectURI); v != "" {
		c.RedirectURI = v
	}
	if v := os.Getenv(EnvAccountID); v != "" {
		c.AccountID = v
	}
	if v := os.Getenv(EnvHost); v != "" {
		c.Server.Host = v
	}
	if v := os.Getenv(EnvPort); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			logging.Warn("Config", "Ignoring invalid %s value %q", EnvPort, v)
		} else {
			c.Server.Port = port
		}
	}
	if v := os.Getenv(EnvBaseURL); v != "" {
		c.Server.BaseURL = v
	}
}

// OAuthConfig maps the process configuration onto the OAuth client config.
func (c *Config) OAuthConfig() pkgoauth.Config {
	return pkgoauth.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		RedirectURI:  c.RedirectURI,
	}
}

// Validate checks the fields every mode needs.
func (c *Config) Validate() error {
	if c.AccountID == "" {
		return fmt.Errorf("accountId is required (set %s or accountId in config.yaml)", EnvAccountID)
	}
	return nil
}

// ValidateOAuth additionally checks the OAuth application credentials,
// required unless an access token override is present.
func (c *Config) ValidateOAuth() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.AccessToken != "" {
		return nil
	}
	if c.ClientID == "" || c.ClientSecret == "" {
		return fmt.Errorf("OAuth credentials are required (set %s and %s)", EnvClientID, EnvClientSecret)
	}
	return nil
}
