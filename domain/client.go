//go:generate go run go.uber.org/mock/mockgen@latest -source=$GOFILE -destination=mocks/mock_$GOFILE -package=mock_domain ClientRepository
package domain

import (
	"context"
	"time"
)

// ClientType defines the type of client application. Confidential or Public
type ClientType string

const (
	// ClientTypeConfidential clients can securely store secrets
	ClientTypeConfidential ClientType = "confidential"
	// ClientTypePublic clients cannot securely store secrets (mobile apps, SPAs)
	ClientTypePublic ClientType = "public"
)

// Client represents a registered OAuth2 client application.
//
//nolint:tagliatelle
type Client struct {
	ID                  string    `bson:"_id"                   json:"id"`
	ClientID            string    `bson:"client_id"             json:"client_id"`
	SecretDigest        string    `bson:"secret_digest"         json:"-"`
	Name                string    `bson:"name"                  json:"name"`
	Description         string    `bson:"description,omitempty" json:"description,omitempty"`
	RedirectURIs        []string  `bson:"redirect_uris"         json:"redirect_uris"`
	Scopes              []string  `bson:"scopes"                json:"scopes"`
	Confidential        bool      `bson:"confidential"          json:"confidential"`
	RotateRefreshTokens bool      `bson:"rotate_refresh_tokens" json:"rotate_refresh_tokens"`
	Revoked             bool      `bson:"revoked"               json:"revoked"`
	CreatedAt           time.Time `bson:"created_at"            json:"created_at"`
	UpdatedAt           time.Time `bson:"updated_at"            json:"updated_at"`
}

// Type reports the client type derived from the confidentiality flag.
func (c *Client) Type() ClientType {
	if c.Confidential {
		return ClientTypeConfidential
	}
	return ClientTypePublic
}

// HasRedirectURI reports whether uri exactly matches one of the registered
// redirect URIs. No prefix or pattern matching.
func (c *Client) HasRedirectURI(uri string) bool {
	for _, u := range c.RedirectURIs {
		if u == uri {
			return true
		}
	}
	return false
}

// AllowsScopes reports whether every requested scope is in the client's
// allowed scope set.
func (c *Client) AllowsScopes(requested []string) bool {
	allowed := make(map[string]struct{}, len(c.Scopes))
	for _, s := range c.Scopes {
		allowed[s] = struct{}{}
	}
	for _, s := range requested {
		if _, ok := allowed[s]; !ok {
			return false
		}
	}
	return true
}

// ClientUpdate carries the mutable client fields for an admin update.
// Nil fields are left unchanged.
type ClientUpdate struct {
	Name                *string  `json:"name,omitempty"`
	Description         *string  `json:"description,omitempty"`
	RedirectURIs        []string `json:"redirect_uris,omitempty"`
	Scopes              []string `json:"scopes,omitempty"`
	RotateRefreshTokens *bool    `json:"rotate_refresh_tokens,omitempty"`
}

// ClientRepository defines the interface for client storage and retrieval.
type ClientRepository interface {
	// CreateClient persists a new OAuth2 client.
	CreateClient(ctx context.Context, client *Client) error

	// GetClientByID retrieves a client by its internal ID, regardless of
	// revocation state. Returns ErrNotFound when absent.
	GetClientByID(ctx context.Context, id string) (*Client, error)

	// FindActiveClient retrieves a non-revoked client by its public
	// client_id. Returns ErrNotFound when absent or revoked.
	FindActiveClient(ctx context.Context, clientID string) (*Client, error)

	// ListClients returns all registered clients, revoked included.
	ListClients(ctx context.Context) ([]*Client, error)

	// UpdateClient persists the mutable fields of the given client.
	UpdateClient(ctx context.Context, client *Client) error

	// UpdateClientSecret replaces the stored secret digest. The previous
	// secret is invalid as soon as this returns.
	UpdateClientSecret(ctx context.Context, id, secretDigest string) error

	// RevokeClient soft-revokes the client and revokes all access and
	// refresh tokens issued to it. Returns false when no such client exists.
	RevokeClient(ctx context.Context, id string) (bool, error)
}
