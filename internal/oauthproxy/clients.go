package oauthproxy

import (
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"basecamp-mcp/pkg/logging"
)

// RegisteredClient is a dynamically registered downstream OAuth client.
// Clients live for the process lifetime; re-registration across restarts is
// expected.
type RegisteredClient struct {
	ClientID     string    `json:"client_id"`
	ClientName   string    `json:"client_name,omitempty"`
	RedirectURIs []string  `json:"redirect_uris"`
	CreatedAt    time.Time `json:"-"`
}

// HasRedirectURI reports whether uri exactly matches one of the client's
// registered redirect URIs.
func (c *RegisteredClient) HasRedirectURI(uri string) bool {
	for _, registered := range c.RedirectURIs {
		if registered == uri {
			return true
		}
	}
	return false
}

// ClientRegistry holds dynamically registered downstream clients.
type ClientRegistry struct {
	mu      sync.RWMutex
	clients map[string]*RegisteredClient
}

// NewClientRegistry creates an empty client registry.
func NewClientRegistry() *ClientRegistry {
	return &ClientRegistry{
		clients: make(map[string]*RegisteredClient),
	}
}

// Register creates a new client with a generated client ID. At least one
// redirect URI is required, and each must be https or a loopback http URL.
func (r *ClientRegistry) Register(clientName string, redirectURIs []string) (*RegisteredClient, error) {
	if len(redirectURIs) == 0 {
		return nil, fmt.Errorf("at least one redirect URI is required")
	}

	for _, uri := range redirectURIs {
		if err := validateRedirectURI(uri); err != nil {
			return nil, err
		}
	}

	client := &RegisteredClient{
		ClientID:     uuid.NewString(),
		ClientName:   clientName,
		RedirectURIs: redirectURIs,
		CreatedAt:    time.Now(),
	}

	r.mu.Lock()
	r.clients[client.ClientID] = client
	r.mu.Unlock()

	logging.Info("Proxy", "Registered downstream client %s (%s)", client.ClientID, clientName)
	return client, nil
}

// Get returns the client for an ID.
func (r *ClientRegistry) Get(clientID string) (*RegisteredClient, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	client, ok := r.clients[clientID]
	return client, ok
}

// validateRedirectURI accepts https URLs and http URLs on loopback hosts.
// Anything else would let a registration capture authorization codes over
// the open network.
func validateRedirectURI(uri string) error {
	parsed, err := url.Parse(uri)
	if err != nil {
		return fmt.Errorf("invalid redirect URI %q: %w", uri, err)
	}

	switch parsed.Scheme {
	case "https":
		return nil
	case "http":
		host := parsed.Hostname()
		if host == "localhost" || host == "127.0.0.1" || host == "::1" || strings.HasSuffix(host, ".localhost") {
			return nil
		}
		return fmt.Errorf("http redirect URI %q must use a loopback host", uri)
	default:
		return fmt.Errorf("redirect URI %q must use http or https", uri)
	}
}
