package oauth

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *TokenStore {
	t.Helper()
	return NewTokenStoreAtPath(filepath.Join(t.TempDir(), "nested", "token.json"))
}

func TestTokenStore_SaveLoadRoundTrip(t *testing.T) {
	store := newTestStore(t)

	expiry := time.Now().Add(2 * time.Hour).UTC().Truncate(time.Second)
	record := &TokenRecord{
		AccessToken:  "access-123",
		RefreshToken: "refresh-456",
		ExpiresAt:    expiry,
	}

	require.NoError(t, store.Save(record))

	loaded, ok := store.Load()
	require.True(t, ok, "expected record to load")
	assert.Equal(t, "access-123", loaded.AccessToken)
	assert.Equal(t, "refresh-456", loaded.RefreshToken)
	assert.True(t, loaded.ExpiresAt.Equal(expiry))
}

func TestTokenStore_OmitsZeroExpiry(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.Save(&TokenRecord{
		AccessToken:  "access-123",
		RefreshToken: "refresh-456",
	}))

	// A record without expiry must omit the optional field entirely, not
	// persist the zero time
	raw, err := os.ReadFile(store.Path())
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "expiresAt")
	assert.NotContains(t, string(raw), "0001-01-01")

	loaded, ok := store.Load()
	require.True(t, ok)
	assert.True(t, loaded.ExpiresAt.IsZero())
	assert.False(t, loaded.IsExpired(), "no expiry is assumed valid")
}

func TestTokenStore_LoadMissingFile(t *testing.T) {
	store := newTestStore(t)

	_, ok := store.Load()
	assert.False(t, ok)
}

func TestTokenStore_LoadCorruptFile(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, os.MkdirAll(filepath.Dir(store.Path()), 0700))
	require.NoError(t, os.WriteFile(store.Path(), []byte("{not json"), 0600))

	_, ok := store.Load()
	assert.False(t, ok, "corrupt file must be treated as absent, not fatal")
}

func TestTokenStore_LoadMissingAccessToken(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, os.MkdirAll(filepath.Dir(store.Path()), 0700))
	require.NoError(t, os.WriteFile(store.Path(), []byte(`{"refreshToken":"r"}`), 0600))

	_, ok := store.Load()
	assert.False(t, ok, "record without access token must be treated as absent")
}

func TestTokenStore_FilePermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("file mode checks are not meaningful on Windows")
	}

	store := newTestStore(t)
	require.NoError(t, store.Save(&TokenRecord{AccessToken: "tok"}))

	info, err := os.Stat(store.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	dirInfo, err := os.Stat(filepath.Dir(store.Path()))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0700), dirInfo.Mode().Perm())
}

func TestTokenStore_Clear(t *testing.T) {
	store := newTestStore(t)

	// Clearing a missing file is a no-op
	require.NoError(t, store.Clear())

	require.NoError(t, store.Save(&TokenRecord{AccessToken: "tok"}))
	require.NoError(t, store.Clear())

	// File still exists but holds an empty record
	_, err := os.Stat(store.Path())
	require.NoError(t, err)

	_, ok := store.Load()
	assert.False(t, ok)
}

func TestNewTokenStore_EnvOverride(t *testing.T) {
	override := filepath.Join(t.TempDir(), "custom-token.json")
	t.Setenv(TokenPathEnvVar, override)

	store, err := NewTokenStore()
	require.NoError(t, err)
	assert.Equal(t, override, store.Path())
}

func TestTokenRecord_IsExpired(t *testing.T) {
	tests := []struct {
		name     string
		record   TokenRecord
		expected bool
	}{
		{"no expiry assumed valid", TokenRecord{AccessToken: "t"}, false},
		{"far future", TokenRecord{AccessToken: "t", ExpiresAt: time.Now().Add(time.Hour)}, false},
		{"inside the 5 minute buffer", TokenRecord{AccessToken: "t", ExpiresAt: time.Now().Add(time.Minute)}, true},
		{"past", TokenRecord{AccessToken: "t", ExpiresAt: time.Now().Add(-time.Hour)}, true},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.expected, test.record.IsExpired())
		})
	}
}
