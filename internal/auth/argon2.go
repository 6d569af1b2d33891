package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"

	"github.com/strandauth/strand/services"
)

const (
	argonTime    uint32 = 3
	argonMemory  uint32 = 64 * 1024
	argonThreads uint8  = 2
	argonKeyLen  uint32 = 32
	argonSaltLen        = 16
)

var errInvalidArgonDigest = errors.New("invalid argon2id digest")

// Argon2idSecretHasher implements services.SecretHasher with argon2id.
// Digests are self-describing: $argon2id$v=19$m=...,t=...,p=...$salt$hash,
// so parameter changes only affect newly hashed secrets.
type Argon2idSecretHasher struct{}

// NewArgon2idSecretHasher creates an argon2id-backed hasher.
func NewArgon2idSecretHasher() *Argon2idSecretHasher {
	return &Argon2idSecretHasher{}
}

// Hash derives an argon2id digest with a fresh random salt.
func (h *Argon2idSecretHasher) Hash(secret string) (string, error) {
	salt := make([]byte, argonSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	sum := argon2.IDKey([]byte(secret), salt, argonTime, argonMemory, argonThreads, argonKeyLen)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		argonMemory,
		argonTime,
		argonThreads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(sum),
	), nil
}

// Verify re-derives the digest with the parameters embedded in it and
// compares in constant time. Malformed digests read as a mismatch.
func (h *Argon2idSecretHasher) Verify(secret, digest string) bool {
	expected, salt, timeCost, mem, threads, err := decodeArgonDigest(digest)
	if err != nil {
		return false
	}
	actual := argon2.IDKey([]byte(secret), salt, timeCost, mem, threads, uint32(len(expected)))
	return subtle.ConstantTimeCompare(actual, expected) == 1
}

func decodeArgonDigest(digest string) (sum, salt []byte, timeCost, mem uint32, threads uint8, err error) {
	parts := strings.Split(digest, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return nil, nil, 0, 0, 0, errInvalidArgonDigest
	}

	version, err := strconv.Atoi(strings.TrimPrefix(parts[2], "v="))
	if err != nil || version != argon2.Version {
		return nil, nil, 0, 0, 0, errInvalidArgonDigest
	}

	params := strings.Split(parts[3], ",")
	if len(params) != 3 {
		return nil, nil, 0, 0, 0, errInvalidArgonDigest
	}
	mem64, err := strconv.ParseUint(strings.TrimPrefix(params[0], "m="), 10, 32)
	if err != nil {
		return nil, nil, 0, 0, 0, errInvalidArgonDigest
	}
	time64, err := strconv.ParseUint(strings.TrimPrefix(params[1], "t="), 10, 32)
	if err != nil {
		return nil, nil, 0, 0, 0, errInvalidArgonDigest
	}
	threads64, err := strconv.ParseUint(strings.TrimPrefix(params[2], "p="), 10, 8)
	if err != nil {
		return nil, nil, 0, 0, 0, errInvalidArgonDigest
	}

	salt, err = base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return nil, nil, 0, 0, 0, errInvalidArgonDigest
	}
	sum, err = base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return nil, nil, 0, 0, 0, errInvalidArgonDigest
	}

	return sum, salt, uint32(time64), uint32(mem64), uint8(threads64), nil
}

// Ensure it implements the interface
var _ services.SecretHasher = (*Argon2idSecretHasher)(nil)
