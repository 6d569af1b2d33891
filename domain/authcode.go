package domain

import (
	"context"
	"time"
)

// AuthorizationCode represents an OAuth 2.0 authorization code issuance.
// Only the SHA-256 digest of the code is stored, never the code itself.
type AuthorizationCode struct {
	ID          string   `bson:"_id"          json:"id"`
	CodeHash    string   `bson:"code_hash"    json:"-"`
	UserID      string   `bson:"user_id"      json:"user_id"`
	ClientID    string   `bson:"client_id"    json:"client_id"`
	RedirectURI string   `bson:"redirect_uri" json:"redirect_uri"`
	Scopes      []string `bson:"scopes"       json:"scopes"`

	CodeChallenge       string `bson:"code_challenge,omitempty"        json:"code_challenge,omitempty"`
	CodeChallengeMethod string `bson:"code_challenge_method,omitempty" json:"code_challenge_method,omitempty"`

	ExpiresAt time.Time  `bson:"expires_at"        json:"expires_at"`
	UsedAt    *time.Time `bson:"used_at,omitempty" json:"used_at,omitempty"`
	CreatedAt time.Time  `bson:"created_at"        json:"created_at"`
}

// Expired reports whether the code expired at the given instant.
func (c *AuthorizationCode) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// Consumed reports whether the code has already been redeemed.
func (c *AuthorizationCode) Consumed() bool {
	return c.UsedAt != nil
}

// AuthCodeRepository defines storage for authorization codes.
type AuthCodeRepository interface {
	// CreateAuthorizationCode persists a new code row.
	CreateAuthorizationCode(ctx context.Context, code *AuthorizationCode) error

	// FindAndConsumeAuthorizationCode atomically locates an unconsumed,
	// unexpired code by its digest and marks it used in the same store
	// operation. Two concurrent calls with the same digest yield exactly
	// one code and one ErrNotFound. Expired and already-consumed codes are
	// indistinguishable from absent ones.
	FindAndConsumeAuthorizationCode(ctx context.Context, codeHash string) (*AuthorizationCode, error)
}
