package domain

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

// HashToken derives the storage digest for an opaque credential: lowercase
// hex SHA-256. Every code and token lookup goes through this; plaintext
// credentials never reach a store key or a log line.
func HashToken(token string) string {
	hasher := sha256.New()
	hasher.Write([]byte(token))
	return hex.EncodeToString(hasher.Sum(nil))
}

// HashPrefix returns the first 8 hex characters of the credential's digest,
// safe to use as a log correlation handle.
func HashPrefix(token string) string {
	h := HashToken(token)
	return h[:8]
}

func randomURLToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("reading random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// NewOpaqueToken generates a 32-byte random credential, base64url-encoded
// without padding (43 characters). Used for authorization codes, access
// tokens, refresh tokens, and client secrets.
func NewOpaqueToken() (string, error) {
	return randomURLToken(32)
}

// NewClientID generates a 16-byte random public client identifier
// (22 characters).
func NewClientID() (string, error) {
	return randomURLToken(16)
}
