// Package auth provides the client-secret hashing implementations. Secrets
// are hashed before storage and verified without ever persisting plaintext.
package auth

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/strandauth/strand/services"
)

// BcryptSecretHasher implements services.SecretHasher using bcrypt.
type BcryptSecretHasher struct {
	Cost int
}

// NewBcryptSecretHasher creates a bcrypt-backed hasher. Cost falls back to
// bcrypt.DefaultCost when non-positive.
func NewBcryptSecretHasher(cost int) *BcryptSecretHasher {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	return &BcryptSecretHasher{Cost: cost}
}

// Hash generates a bcrypt digest for the given secret.
func (h *BcryptSecretHasher) Hash(secret string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(secret), h.Cost)
	if err != nil {
		return "", fmt.Errorf("bcrypt hash generation failed: %w", err)
	}
	return string(hashed), nil
}

// Verify reports whether secret matches digest. A malformed digest reads the
// same as a mismatch.
func (h *BcryptSecretHasher) Verify(secret, digest string) bool {
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(secret)) == nil
}

// Ensure it implements the interface
var _ services.SecretHasher = (*BcryptSecretHasher)(nil)
