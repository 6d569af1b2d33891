package domain

import (
	"context"
	"time"
)

// UserGrant is the standing consent of a user for a client: one row per
// (user, client) pair, scopes accumulated as a union over time. It is
// upserted whenever an authorization code is issued, so recording consent is
// inseparable from code issuance.
type UserGrant struct {
	ID        string     `bson:"_id"                  json:"id"`
	UserID    string     `bson:"user_id"              json:"user_id"`
	ClientID  string     `bson:"client_id"            json:"client_id"`
	Scopes    []string   `bson:"scopes"               json:"scopes"`
	CreatedAt time.Time  `bson:"created_at"           json:"created_at"`
	UpdatedAt time.Time  `bson:"updated_at"           json:"updated_at"`
	RevokedAt *time.Time `bson:"revoked_at,omitempty" json:"revoked_at,omitempty"`
}

// GrantRepository defines storage for standing user grants.
type GrantRepository interface {
	// UpsertUserGrant creates or refreshes the grant for (user, client):
	// scopes become the union of stored and newly granted ones, UpdatedAt
	// advances, and a previously revoked grant is re-activated.
	UpsertUserGrant(ctx context.Context, userID, clientID string, scopes []string) (*UserGrant, error)

	// ListUserGrants returns the user's active (non-revoked) grants.
	ListUserGrants(ctx context.Context, userID string) ([]*UserGrant, error)

	// RevokeUserGrant revokes the standing grant and every live access and
	// refresh token for the (user, client) pair. The token cascade is part
	// of the store operation, transactional where the engine allows it.
	// Returns false when no active grant existed.
	RevokeUserGrant(ctx context.Context, userID, clientID string) (bool, error)
}
