package auth_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strandauth/strand/internal/auth"
	"github.com/strandauth/strand/services"
)

func TestBcryptSecretHasher(t *testing.T) {
	hasher := auth.NewBcryptSecretHasher(0)

	digest, err := hasher.Hash("s3cret-value")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(digest, "$2"))

	assert.True(t, hasher.Verify("s3cret-value", digest))
	assert.False(t, hasher.Verify("wrong-secret", digest))
	assert.False(t, hasher.Verify("s3cret-value", "not-a-digest"))
}

func TestArgon2idSecretHasher(t *testing.T) {
	hasher := auth.NewArgon2idSecretHasher()

	digest, err := hasher.Hash("s3cret-value")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(digest, "$argon2id$"))

	assert.True(t, hasher.Verify("s3cret-value", digest))
	assert.False(t, hasher.Verify("wrong-secret", digest))
	assert.False(t, hasher.Verify("s3cret-value", "$argon2id$garbage"))
}

func TestHashersProduceDistinctDigests(t *testing.T) {
	// Same secret, two hashes: salts must differ.
	for _, hasher := range []services.SecretHasher{
		auth.NewBcryptSecretHasher(0),
		auth.NewArgon2idSecretHasher(),
	} {
		first, err := hasher.Hash("same-secret")
		require.NoError(t, err)
		second, err := hasher.Hash("same-secret")
		require.NoError(t, err)
		assert.NotEqual(t, first, second)
		assert.True(t, hasher.Verify("same-secret", first))
		assert.True(t, hasher.Verify("same-secret", second))
	}
}
