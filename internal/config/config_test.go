package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		EnvAccessToken, EnvClientID, EnvClientSecret, EnvRedirectURI,
		EnvAccountID, EnvHost, EnvPort, EnvBaseURL,
	} {
		t.Setenv(key, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	config, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "localhost", config.Server.Host)
	assert.Equal(t, 8090, config.Server.Port)
	assert.Equal(t, "http://localhost:8090", config.Server.BaseURL)
	assert.Equal(t, "http://localhost:8347/oauth/callback", config.RedirectURI)
}

func TestLoad_YAMLFile(t *testing.T) {
	clearEnv(t)

	dir := t.TempDir()
	content := `
accountId: "999"
clientId: my-app
redirectUri: http://localhost:9999/oauth/callback
server:
  host: 0.0.0.0
  port: 7070
  baseUrl: https://mcp.example.com
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0o644))

	config, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "999", config.AccountID)
	assert.Equal(t, "my-app", config.ClientID)
	assert.Equal(t, "http://localhost:9999/oauth/callback", config.RedirectURI)
	assert.Equal(t, "0.0.0.0", config.Server.Host)
	assert.Equal(t, 7070, config.Server.Port)
	assert.Equal(t, "https://mcp.example.com", config.Server.BaseURL)
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	clearEnv(t)

	dir := t.TempDir()
	content := "accountId: \"111\"\nclientId: yaml-app\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0o644))

	t.Setenv(EnvAccountID, "222")
	t.Setenv(EnvClientSecret, "env-secret")
	t.Setenv(EnvPort, "6060")

	config, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "222", config.AccountID)
	assert.Equal(t, "yaml-app", config.ClientID)
	assert.Equal(t, "env-secret", config.ClientSecret)
	assert.Equal(t, 6060, config.Server.Port)
}

func TestLoad_InvalidPortIgnored(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvPort, "not-a-port")

	config, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 8090, config.Server.Port)
}

func TestLoad_MalformedYAML(t *testing.T) {
	clearEnv(t)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("{{nope"), 0o644))

	_, err := Load(dir)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	config := Default()
	assert.Error(t, config.Validate())

	config.AccountID = "999"
	assert.NoError(t, config.Validate())

	// OAuth validation needs credentials unless the token override is set
	assert.Error(t, config.ValidateOAuth())

	config.AccessToken = "tok"
	assert.NoError(t, config.ValidateOAuth())

	config.AccessToken = ""
	config.ClientID = "app"
	config.ClientSecret = "secret"
	assert.NoError(t, config.ValidateOAuth())
}

func TestOAuthConfig(t *testing.T) {
	config := Config{
		ClientID:     "app",
		ClientSecret: "secret",
		RedirectURI:  "http://localhost:8347/oauth/callback",
	}

	oauthConfig := config.OAuthConfig()
	assert.Equal(t, "app", oauthConfig.ClientID)
	assert.Equal(t, "secret", oauthConfig.ClientSecret)
	assert.Equal(t, "http://localhost:8347/oauth/callback", oauthConfig.RedirectURI)
}
