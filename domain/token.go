//go:generate go run go.uber.org/mock/mockgen@latest -source=$GOFILE -destination=mocks/mock_$GOFILE -package=mock_domain TokenRepository
package domain

import (
	"context"
	"time"
)

// TokenType discriminates access from refresh tokens in storage.
type TokenType string

const (
	TokenTypeAccess  TokenType = "access_token"
	TokenTypeRefresh TokenType = "refresh_token"
)

// Token is a stored access or refresh token. The plaintext credential is
// returned to the client once at mint time; only its SHA-256 digest lives
// here. FamilyID is set on refresh tokens only and groups every token
// descended from one original grant.
type Token struct {
	ID        string     `bson:"_id"                  json:"id"`
	TokenHash string     `bson:"token_hash"           json:"-"`
	TokenType TokenType  `bson:"token_type"           json:"token_type"`
	UserID    string     `bson:"user_id"              json:"user_id"`
	ClientID  string     `bson:"client_id"            json:"client_id"`
	Scopes    []string   `bson:"scopes"               json:"scopes"`
	FamilyID  string     `bson:"family_id,omitempty"  json:"family_id,omitempty"`
	ExpiresAt time.Time  `bson:"expires_at"           json:"expires_at"`
	RevokedAt *time.Time `bson:"revoked_at,omitempty" json:"revoked_at,omitempty"`
	CreatedAt time.Time  `bson:"created_at"           json:"created_at"`
}

// Revoked reports whether the token has been revoked.
func (t *Token) Revoked() bool {
	return t.RevokedAt != nil
}

// Expired reports whether the token expired at the given instant.
func (t *Token) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// Active reports whether the token is currently usable: not revoked and not
// expired. Expiry is evaluated lazily here, never by a sweeper on the hot
// path.
func (t *Token) Active(now time.Time) bool {
	return !t.Revoked() && !t.Expired(now)
}

// TokenRepository defines storage for access and refresh tokens. Lookups are
// by digest; revocations mark rows rather than deleting them so that reuse
// of a revoked refresh token remains observable.
type TokenRepository interface {
	// CreateAccessToken persists a new access token row.
	CreateAccessToken(ctx context.Context, token *Token) error

	// FindAccessTokenByHash returns the access token with the given digest
	// in any state, or ErrNotFound.
	FindAccessTokenByHash(ctx context.Context, tokenHash string) (*Token, error)

	// RevokeAccessTokenByHash marks the access token revoked. Returns false
	// when no live token matched.
	RevokeAccessTokenByHash(ctx context.Context, tokenHash string) (bool, error)

	// CreateRefreshToken persists a new refresh token row.
	CreateRefreshToken(ctx context.Context, token *Token) error

	// FindRefreshTokenByHash returns the refresh token with the given
	// digest in any state, or ErrNotFound. Revoked rows are returned, not
	// hidden: the rotation path needs to see them to detect reuse.
	FindRefreshTokenByHash(ctx context.Context, tokenHash string) (*Token, error)

	// RevokeRefreshToken marks the refresh token with the given ID revoked.
	RevokeRefreshToken(ctx context.Context, id string) error

	// RevokeRefreshTokenByHash marks the refresh token revoked. Returns
	// false when no live token matched.
	RevokeRefreshTokenByHash(ctx context.Context, tokenHash string) (bool, error)

	// RevokeTokenFamily revokes every refresh token carrying the given
	// family ID in one store operation.
	RevokeTokenFamily(ctx context.Context, familyID string) error

	// RevokeUserClientTokens revokes all live access and refresh tokens
	// issued to the (user, client) pair. Backs the user grant revocation
	// cascade.
	RevokeUserClientTokens(ctx context.Context, userID, clientID string) error
}
