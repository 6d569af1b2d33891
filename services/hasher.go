package services

// SecretHasher is the one-way digest service for client secrets. Hash is
// called once at registration or secret rotation; Verify on every
// confidential-client authentication. Implementations must be safe against
// timing side channels.
type SecretHasher interface {
	Hash(secret string) (string, error)
	Verify(secret, digest string) bool
}
