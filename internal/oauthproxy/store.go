package oauthproxy

import (
	"sync"
	"time"

	"basecamp-mcp/pkg/logging"
	pkgoauth "basecamp-mcp/pkg/oauth"
)

const (
	// PendingRequestTTL bounds how long a downstream authorize request may
	// wait for the user to complete the upstream flow.
	PendingRequestTTL = 10 * time.Minute

	// AuthCodeTTL bounds the window between minting a local authorization
	// code and its redemption at the token endpoint.
	AuthCodeTTL = 5 * time.Minute

	// AccessTokenTTL is the lifetime of locally minted access tokens.
	AccessTokenTTL = time.Hour
)

// PendingAuthorization is a downstream authorize request waiting for the
// upstream callback. Keyed by the random state used on the upstream leg.
type PendingAuthorization struct {
	ClientID            string
	CodeChallenge       string
	CodeChallengeMethod string
	RedirectURI         string
	Scope               string

	// DownstreamState is the state parameter the downstream client sent;
	// it is echoed back on the redirect carrying the local code.
	DownstreamState string

	CreatedAt time.Time
}

// AuthCodeEntry is a locally minted authorization code bound to upstream
// tokens and the downstream PKCE challenge. Single-use.
type AuthCodeEntry struct {
	ClientID             string
	CodeChallenge        string
	RedirectURI          string
	Scope                string
	UpstreamAccessToken  string
	UpstreamRefreshToken string
	CreatedAt            time.Time
}

// AccessTokenEntry is a locally minted access token wrapping an upstream
// access token. Looked up on every authenticated downstream request.
type AccessTokenEntry struct {
	ClientID            string
	UpstreamAccessToken string
	Scope               string
	ExpiresAt           time.Time
}

// RefreshTokenEntry is a locally minted refresh token wrapping an upstream
// refresh token. Rotated on every refresh-grant use; no TTL, it lives until
// rotation or revocation.
type RefreshTokenEntry struct {
	ClientID             string
	UpstreamRefreshToken string
	Scope                string
	CreatedAt            time.Time
}

// SessionStore holds the ephemeral per-downstream-client OAuth state in four
// independent TTL-indexed tables. All keys are generated with
// cryptographically strong randomness: they function as bearer secrets.
//
// Expired-but-present entries are treated as absent on every lookup; the
// background purge only reclaims memory and is not a correctness mechanism.
type SessionStore struct {
	mu sync.RWMutex

	pending       map[string]*PendingAuthorization
	authCodes     map[string]*AuthCodeEntry
	accessTokens  map[string]*AccessTokenEntry
	refreshTokens map[string]*RefreshTokenEntry

	stopCleanup chan struct{}
	stopOnce    sync.Once
}

// NewSessionStore creates a session store and starts its background purge.
func NewSessionStore() *SessionStore {
	s := &SessionStore{
		pending:       make(map[string]*PendingAuthorization),
		authCodes:     make(map[string]*AuthCodeEntry),
		accessTokens:  make(map[string]*AccessTokenEntry),
		refreshTokens: make(map[string]*RefreshTokenEntry),
		stopCleanup:   make(chan struct{}),
	}

	go s.cleanupLoop()

	return s
}

// Stop stops the background purge goroutine.
func (s *SessionStore) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCleanup)
	})
}

// StorePendingRequest stores a pending authorization under a fresh random
// state and returns that state.
func (s *SessionStore) StorePendingRequest(entry *PendingAuthorization) (string, error) {
	state, err := pkgoauth.GenerateState()
	if err != nil {
		return "", err
	}

	entry.CreatedAt = time.Now()

	s.mu.Lock()
	s.pending[state] = entry
	s.mu.Unlock()

	return state, nil
}

// ConsumePendingRequest removes and returns the pending authorization for a
// state. A replay of the same state after consumption returns absent, as
// does an entry past its TTL.
func (s *SessionStore) ConsumePendingRequest(state string) (*PendingAuthorization, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.pending[state]
	if !ok {
		return nil, false
	}
	delete(s.pending, state)

	if time.Since(entry.CreatedAt) > PendingRequestTTL {
		return nil, false
	}

	return entry, true
}

// StoreAuthCode mints a fresh random local authorization code for the entry.
func (s *SessionStore) StoreAuthCode(entry *AuthCodeEntry) (string, error) {
	code, err := pkgoauth.GenerateSecret()
	if err != nil {
		return "", err
	}

	entry.CreatedAt = time.Now()

	s.mu.Lock()
	s.authCodes[code] = entry
	s.mu.Unlock()

	return code, nil
}

// GetAuthCode is a non-destructive peek, used for the PKCE challenge lookup
// before the exchange is allowed to proceed.
func (s *SessionStore) GetAuthCode(code string) (*AuthCodeEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.authCodes[code]
	if !ok || time.Since(entry.CreatedAt) > AuthCodeTTL {
		return nil, false
	}
	return entry, true
}

// ConsumeAuthCode removes and returns the entry for a code. The read and
// delete are a single atomic step: no two redemptions of the same code can
// both succeed.
func (s *SessionStore) ConsumeAuthCode(code string) (*AuthCodeEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.authCodes[code]
	if !ok {
		return nil, false
	}
	delete(s.authCodes, code)

	if time.Since(entry.CreatedAt) > AuthCodeTTL {
		return nil, false
	}

	return entry, true
}

// StoreAccessToken mints a fresh random local access token and returns it
// together with its lifetime in seconds.
func (s *SessionStore) StoreAccessToken(entry *AccessTokenEntry) (string, int, error) {
	token, err := pkgoauth.GenerateSecret()
	if err != nil {
		return "", 0, err
	}

	entry.ExpiresAt = time.Now().Add(AccessTokenTTL)

	s.mu.Lock()
	s.accessTokens[token] = entry
	s.mu.Unlock()

	return token, int(AccessTokenTTL.Seconds()), nil
}

// GetAccessToken returns the entry for a token, treating expired entries as
// absent. Non-destructive; called on every authenticated request.
func (s *SessionStore) GetAccessToken(token string) (*AccessTokenEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.accessTokens[token]
	if !ok || time.Now().After(entry.ExpiresAt) {
		return nil, false
	}
	return entry, true
}

// RevokeAccessToken drops an access token. Revoking an absent token is a
// no-op, never an error.
func (s *SessionStore) RevokeAccessToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.accessTokens, token)
}

// StoreRefreshToken mints a fresh random local refresh token.
func (s *SessionStore) StoreRefreshToken(entry *RefreshTokenEntry) (string, error) {
	token, err := pkgoauth.GenerateSecret()
	if err != nil {
		return "", err
	}

	entry.CreatedAt = time.Now()

	s.mu.Lock()
	s.refreshTokens[token] = entry
	s.mu.Unlock()

	return token, nil
}

// GetRefreshToken returns the entry for a refresh token.
func (s *SessionStore) GetRefreshToken(token string) (*RefreshTokenEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.refreshTokens[token]
	if !ok {
		return nil, false
	}
	return entry, true
}

// RevokeRefreshToken drops a refresh token. No-op when absent.
func (s *SessionStore) RevokeRefreshToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.refreshTokens, token)
}

// cleanupLoop periodically purges expired entries.
func (s *SessionStore) cleanupLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.cleanup()
		case <-s.stopCleanup:
			return
		}
	}
}

// cleanup removes all expired entries from the TTL-governed tables.
func (s *SessionStore) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	count := 0

	for state, entry := range s.pending {
		if now.Sub(entry.CreatedAt) > PendingRequestTTL {
			delete(s.pending, state)
			count++
		}
	}
	for code, entry := range s.authCodes {
		if now.Sub(entry.CreatedAt) > AuthCodeTTL {
			delete(s.authCodes, code)
			count++
		}
	}
	for token, entry := range s.accessTokens {
		if now.After(entry.ExpiresAt) {
			delete(s.accessTokens, token)
			count++
		}
	}

	if count > 0 {
		logging.Debug("Proxy", "Purged %d expired session entries", count)
	}
}
