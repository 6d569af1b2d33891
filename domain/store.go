package domain

import (
	"context"
	"errors"
)

// Store-level sentinel errors. Engines translate their native not-found and
// uniqueness failures into these so services stay engine-agnostic.
var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("duplicate key")
)

// Store is the full persistence contract of the authorization server. All
// shared mutable state lives behind it; services hold no state between
// calls.
type Store interface {
	ClientRepository
	AuthCodeRepository
	TokenRepository
	GrantRepository

	// Ping verifies the store is reachable. Used by health checks.
	Ping(ctx context.Context) error

	// Close releases the engine's resources. The store is unusable
	// afterwards.
	Close(ctx context.Context) error

	// CleanupExpired deletes rows that can no longer influence any flow:
	// expired authorization codes, codes consumed more than an hour ago,
	// expired tokens, and revoked tokens older than seven days. Returns
	// the number of rows removed. Batch maintenance only, never called on
	// the request path.
	CleanupExpired(ctx context.Context) (int64, error)
}
