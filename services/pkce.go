package services

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
)

// CodeChallengeMethodS256 is the only PKCE challenge method this server
// accepts. RFC 7636 also defines "plain", but a plain challenge is the
// verifier itself, so anyone who observes the authorization request can
// forge the exchange. OAuth 2.1 deprecates it; we refuse it outright.
const CodeChallengeMethodS256 = "S256"

// S256Challenge computes the code challenge for a verifier:
// base64url(sha256(verifier)), unpadded.
func S256Challenge(verifier string) string {
	h := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(h[:])
}

// VerifyPKCE validates a code verifier against the challenge recorded at
// authorization time. Only S256 verifies; "plain" and unrecognized methods
// are always false.
func VerifyPKCE(verifier, challenge, method string) bool {
	if method != CodeChallengeMethodS256 {
		return false
	}
	computed := S256Challenge(verifier)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(challenge)) == 1
}
