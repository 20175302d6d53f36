package oauth

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	pkgoauth "basecamp-mcp/pkg/oauth"
)

const (
	// TokenPathEnvVar overrides the token file location when set.
	TokenPathEnvVar = "BASECAMP_TOKEN_PATH"

	// tokenDirName is the directory under the platform config dir.
	tokenDirName = "basecamp-mcp"

	// tokenFileName is the fixed name of the single token file.
	tokenFileName = "token.json"
)

// TokenRecord is the persisted form of the upstream token material. The JSON
// field names are part of the on-disk contract; expiresAt is serialized as
// ISO-8601 via time.Time.
type TokenRecord struct {
	// AccessToken is the upstream OAuth access token.
	AccessToken string `json:"accessToken"`

	// RefreshToken is the upstream refresh token (if issued).
	RefreshToken string `json:"refreshToken,omitempty"`

	// ExpiresAt is when the access token expires. Zero means unknown; a
	// token without expiry is assumed valid and the field is omitted from
	// the file.
	ExpiresAt time.Time `json:"expiresAt,omitzero"`
}

// IsExpired reports whether the record's access token has expired or will
// expire within the default margin.
func (r *TokenRecord) IsExpired() bool {
	t := pkgoauth.Token{ExpiresAt: r.ExpiresAt}
	return t.IsExpired()
}

// RecordFromToken converts a wire token into its persisted form.
func RecordFromToken(token *pkgoauth.Token) *TokenRecord {
	return &TokenRecord{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    token.ExpiresAt,
	}
}

// TokenStore provides durable storage for the single upstream TokenRecord.
//
// SECURITY: This store handles sensitive OAuth credentials. The following
// security measures are implemented:
//   - The token file is created with 0600 permissions (owner read/write only)
//   - The storage directory is created with 0700 permissions (owner only)
//   - Token values are NEVER logged (only paths and outcomes)
//   - Corrupt or partially-written files are treated as cache-miss, not fatal
type TokenStore struct {
	mu   sync.Mutex
	path string
}

// NewTokenStore creates a token store at the resolved platform path. The
// explicit environment override wins; otherwise the OS-conventional config
// directory is used.
func NewTokenStore() (*TokenStore, error) {
	if override := os.Getenv(TokenPathEnvVar); override != "" {
		return &TokenStore{path: override}, nil
	}

	configDir, err := os.UserConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config directory: %w", err)
	}

	return &TokenStore{path: filepath.Join(configDir, tokenDirName, tokenFileName)}, nil
}

// NewTokenStoreAtPath creates a token store at an explicit path.
func NewTokenStoreAtPath(path string) *TokenStore {
	return &TokenStore{path: path}
}

// Path returns the resolved token file path.
func (s *TokenStore) Path() string {
	return s.path
}

// Load reads the persisted record. A missing file, unparsable JSON, or a
// record without an access token are all reported as absent, never as an
// error: a broken cache must not prevent re-authentication.
func (s *TokenStore) Load() (*TokenRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// #nosec G304 -- path is resolved from config, not request input
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Debug("Token file unreadable, treating as absent",
				"path", s.path,
				"error", err.Error())
		}
		return nil, false
	}

	var record TokenRecord
	if err := json.Unmarshal(data, &record); err != nil {
		slog.Warn("Token file corrupt, treating as absent",
			"path", s.path,
			"error", err.Error())
		return nil, false
	}

	if record.AccessToken == "" {
		return nil, false
	}

	return &record, true
}

// Save persists the full record, creating the parent directory if needed.
// A write failure propagates to the caller: a login succeeded but could not
// be remembered, and the operator must know.
func (s *TokenStore) Save(record *TokenRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}

	// Owner read/write only
	if err := os.WriteFile(s.path, data, 0600); err != nil {
		// SECURITY AUDIT: Token storage failed
		slog.Warn("SECURITY_AUDIT: OAuth token storage failed",
			"event", "token_store_failed",
			"path", s.path,
			"error", err.Error(),
		)
		return fmt.Errorf("failed to persist token: %w", err)
	}

	// SECURITY AUDIT: Token successfully stored
	slog.Info("SECURITY_AUDIT: OAuth token stored",
		"event", "token_stored",
		"path", s.path,
		"expiry", record.ExpiresAt.Format(time.RFC3339),
		"has_refresh_token", record.RefreshToken != "",
	)

	return nil
}

// Clear overwrites the token file with an empty record if it exists. Used on
// logout and revocation.
func (s *TokenStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(s.path); os.IsNotExist(err) {
		return nil
	}

	if err := os.WriteFile(s.path, []byte("{}\n"), 0600); err != nil {
		return fmt.Errorf("failed to clear token file: %w", err)
	}

	// SECURITY AUDIT: Token cleared
	slog.Info("SECURITY_AUDIT: OAuth token cleared",
		"event", "token_cleared",
		"path", s.path,
	)

	return nil
}
