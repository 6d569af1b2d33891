package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strandauth/strand/domain"
)

func newStore(t *testing.T) *MemoryStore {
	t.Helper()
	s := NewMemoryStore()
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s
}

func testClient(clientID string) *domain.Client {
	now := time.Now().UTC()
	return &domain.Client{
		ID:                  uuid.NewString(),
		ClientID:            clientID,
		SecretDigest:        "digest",
		Name:                "App " + clientID,
		RedirectURIs:        []string{"https://app.example.com/cb"},
		Scopes:              []string{"profile"},
		Confidential:        true,
		RotateRefreshTokens: true,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
}

func testToken(tokenType domain.TokenType, userID, clientID, familyID string, expiresAt time.Time) *domain.Token {
	return &domain.Token{
		ID:        uuid.NewString(),
		TokenHash: domain.HashToken(uuid.NewString()),
		TokenType: tokenType,
		UserID:    userID,
		ClientID:  clientID,
		Scopes:    []string{"profile"},
		FamilyID:  familyID,
		ExpiresAt: expiresAt,
		CreatedAt: time.Now().UTC(),
	}
}

func TestClientStorage(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	client := testClient("client-a")
	require.NoError(t, store.CreateClient(ctx, client))

	t.Run("duplicate ids rejected", func(t *testing.T) {
		dup := testClient("client-a")
		assert.ErrorIs(t, store.CreateClient(ctx, dup), domain.ErrDuplicate)

		sameInternal := testClient("client-b")
		sameInternal.ID = client.ID
		assert.ErrorIs(t, store.CreateClient(ctx, sameInternal), domain.ErrDuplicate)
	})

	t.Run("find active by public id", func(t *testing.T) {
		found, err := store.FindActiveClient(ctx, "client-a")
		require.NoError(t, err)
		assert.Equal(t, client.ID, found.ID)

		_, err = store.FindActiveClient(ctx, "missing")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("returned rows are copies", func(t *testing.T) {
		found, err := store.GetClientByID(ctx, client.ID)
		require.NoError(t, err)
		found.Name = "mutated"
		found.Scopes[0] = "mutated"

		again, err := store.GetClientByID(ctx, client.ID)
		require.NoError(t, err)
		assert.Equal(t, "App client-a", again.Name)
		assert.Equal(t, []string{"profile"}, again.Scopes)
	})

	t.Run("update preserves identity and digest", func(t *testing.T) {
		mod, err := store.GetClientByID(ctx, client.ID)
		require.NoError(t, err)
		mod.Name = "Renamed"
		mod.ClientID = "smuggled-id"
		mod.SecretDigest = "smuggled-digest"
		require.NoError(t, store.UpdateClient(ctx, mod))

		after, err := store.GetClientByID(ctx, client.ID)
		require.NoError(t, err)
		assert.Equal(t, "Renamed", after.Name)
		assert.Equal(t, "client-a", after.ClientID)
		assert.Equal(t, "digest", after.SecretDigest)
	})

	t.Run("revocation hides the client and cascades", func(t *testing.T) {
		token := testToken(domain.TokenTypeAccess, "u1", "client-a", "", time.Now().Add(time.Hour))
		require.NoError(t, store.CreateAccessToken(ctx, token))

		revoked, err := store.RevokeClient(ctx, client.ID)
		require.NoError(t, err)
		assert.True(t, revoked)

		_, err = store.FindActiveClient(ctx, "client-a")
		assert.ErrorIs(t, err, domain.ErrNotFound)

		row, err := store.FindAccessTokenByHash(ctx, token.TokenHash)
		require.NoError(t, err)
		assert.True(t, row.Revoked())

		revoked, err = store.RevokeClient(ctx, client.ID)
		require.NoError(t, err)
		assert.False(t, revoked, "second revocation matches nothing")
	})
}

func TestFindAndConsumeAuthorizationCode(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	newCode := func(expiresAt time.Time) *domain.AuthorizationCode {
		return &domain.AuthorizationCode{
			ID:          uuid.NewString(),
			CodeHash:    domain.HashToken(uuid.NewString()),
			UserID:      "u1",
			ClientID:    "c1",
			RedirectURI: "https://app.example.com/cb",
			Scopes:      []string{"profile"},
			ExpiresAt:   expiresAt,
			CreatedAt:   time.Now().UTC(),
		}
	}

	t.Run("consume is single use", func(t *testing.T) {
		code := newCode(time.Now().Add(10 * time.Minute))
		require.NoError(t, store.CreateAuthorizationCode(ctx, code))

		got, err := store.FindAndConsumeAuthorizationCode(ctx, code.CodeHash)
		require.NoError(t, err)
		assert.Equal(t, code.ID, got.ID)
		assert.NotNil(t, got.UsedAt)

		_, err = store.FindAndConsumeAuthorizationCode(ctx, code.CodeHash)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("expired codes are gone", func(t *testing.T) {
		code := newCode(time.Now().Add(30 * time.Millisecond))
		require.NoError(t, store.CreateAuthorizationCode(ctx, code))
		time.Sleep(60 * time.Millisecond)

		_, err := store.FindAndConsumeAuthorizationCode(ctx, code.CodeHash)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("concurrent consumption yields one winner", func(t *testing.T) {
		code := newCode(time.Now().Add(10 * time.Minute))
		require.NoError(t, store.CreateAuthorizationCode(ctx, code))

		const attempts = 16
		var wg sync.WaitGroup
		results := make(chan error, attempts)
		for i := 0; i < attempts; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := store.FindAndConsumeAuthorizationCode(ctx, code.CodeHash)
				results <- err
			}()
		}
		wg.Wait()
		close(results)

		wins := 0
		for err := range results {
			if err == nil {
				wins++
			} else {
				assert.ErrorIs(t, err, domain.ErrNotFound)
			}
		}
		assert.Equal(t, 1, wins)
	})
}

func TestTokenStorage(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	expiry := time.Now().Add(time.Hour)

	t.Run("revoke by hash is idempotent-false", func(t *testing.T) {
		token := testToken(domain.TokenTypeAccess, "u1", "c1", "", expiry)
		require.NoError(t, store.CreateAccessToken(ctx, token))

		revoked, err := store.RevokeAccessTokenByHash(ctx, token.TokenHash)
		require.NoError(t, err)
		assert.True(t, revoked)

		revoked, err = store.RevokeAccessTokenByHash(ctx, token.TokenHash)
		require.NoError(t, err)
		assert.False(t, revoked, "already-revoked rows do not match again")

		row, err := store.FindAccessTokenByHash(ctx, token.TokenHash)
		require.NoError(t, err)
		assert.True(t, row.Revoked(), "revoked rows stay findable")
	})

	t.Run("family revocation", func(t *testing.T) {
		family := uuid.NewString()
		var members []*domain.Token
		for i := 0; i < 3; i++ {
			tok := testToken(domain.TokenTypeRefresh, "u1", "c1", family, expiry)
			require.NoError(t, store.CreateRefreshToken(ctx, tok))
			members = append(members, tok)
		}
		outsider := testToken(domain.TokenTypeRefresh, "u1", "c1", uuid.NewString(), expiry)
		require.NoError(t, store.CreateRefreshToken(ctx, outsider))

		require.NoError(t, store.RevokeTokenFamily(ctx, family))

		for _, tok := range members {
			row, err := store.FindRefreshTokenByHash(ctx, tok.TokenHash)
			require.NoError(t, err)
			assert.True(t, row.Revoked())
		}
		row, err := store.FindRefreshTokenByHash(ctx, outsider.TokenHash)
		require.NoError(t, err)
		assert.False(t, row.Revoked(), "other families are untouched")
	})

	t.Run("user client revocation spans both types", func(t *testing.T) {
		access := testToken(domain.TokenTypeAccess, "u2", "c2", "", expiry)
		refresh := testToken(domain.TokenTypeRefresh, "u2", "c2", uuid.NewString(), expiry)
		bystander := testToken(domain.TokenTypeAccess, "u2", "c-other", "", expiry)
		require.NoError(t, store.CreateAccessToken(ctx, access))
		require.NoError(t, store.CreateRefreshToken(ctx, refresh))
		require.NoError(t, store.CreateAccessToken(ctx, bystander))

		require.NoError(t, store.RevokeUserClientTokens(ctx, "u2", "c2"))

		row, _ := store.FindAccessTokenByHash(ctx, access.TokenHash)
		assert.True(t, row.Revoked())
		row, _ = store.FindRefreshTokenByHash(ctx, refresh.TokenHash)
		assert.True(t, row.Revoked())
		row, _ = store.FindAccessTokenByHash(ctx, bystander.TokenHash)
		assert.False(t, row.Revoked())
	})
}

func TestUserGrantStorage(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	grant, err := store.UpsertUserGrant(ctx, "u1", "c1", []string{"profile"})
	require.NoError(t, err)
	assert.NotEmpty(t, grant.ID)

	t.Run("upsert unions scopes", func(t *testing.T) {
		again, err := store.UpsertUserGrant(ctx, "u1", "c1", []string{"email", "profile"})
		require.NoError(t, err)
		assert.Equal(t, grant.ID, again.ID, "one grant per pair")
		assert.Equal(t, []string{"profile", "email"}, again.Scopes)
	})

	t.Run("revoke then reactivate", func(t *testing.T) {
		revoked, err := store.RevokeUserGrant(ctx, "u1", "c1")
		require.NoError(t, err)
		assert.True(t, revoked)

		grants, err := store.ListUserGrants(ctx, "u1")
		require.NoError(t, err)
		assert.Empty(t, grants)

		revoked, err = store.RevokeUserGrant(ctx, "u1", "c1")
		require.NoError(t, err)
		assert.False(t, revoked)

		reborn, err := store.UpsertUserGrant(ctx, "u1", "c1", []string{"org:read"})
		require.NoError(t, err)
		assert.Nil(t, reborn.RevokedAt)
		assert.Equal(t, []string{"profile", "email", "org:read"}, reborn.Scopes)
	})

	t.Run("revoke unknown pair", func(t *testing.T) {
		revoked, err := store.RevokeUserGrant(ctx, "u1", "never-connected")
		require.NoError(t, err)
		assert.False(t, revoked)
	})
}

func TestCleanupExpired(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	// Consumed two hours ago but nominally unexpired: the consumed-code
	// window removes it.
	usedAt := now.Add(-2 * time.Hour)
	staleCode := &domain.AuthorizationCode{
		ID:        uuid.NewString(),
		CodeHash:  domain.HashToken("stale"),
		UserID:    "u1",
		ClientID:  "c1",
		Scopes:    []string{"profile"},
		ExpiresAt: now.Add(2 * time.Hour),
		UsedAt:    &usedAt,
		CreatedAt: usedAt,
	}
	require.NoError(t, store.CreateAuthorizationCode(ctx, staleCode))

	liveCode := &domain.AuthorizationCode{
		ID:        uuid.NewString(),
		CodeHash:  domain.HashToken("live"),
		UserID:    "u1",
		ClientID:  "c1",
		Scopes:    []string{"profile"},
		ExpiresAt: now.Add(2 * time.Hour),
		CreatedAt: now,
	}
	require.NoError(t, store.CreateAuthorizationCode(ctx, liveCode))

	// Revoked eight days ago: past the revoked-token window.
	revokedAt := now.Add(-8 * 24 * time.Hour)
	staleToken := testToken(domain.TokenTypeAccess, "u1", "c1", "", now.Add(time.Hour))
	staleToken.RevokedAt = &revokedAt
	require.NoError(t, store.CreateAccessToken(ctx, staleToken))

	liveToken := testToken(domain.TokenTypeAccess, "u1", "c1", "", now.Add(time.Hour))
	require.NoError(t, store.CreateAccessToken(ctx, liveToken))

	removed, err := store.CleanupExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	_, err = store.FindAndConsumeAuthorizationCode(ctx, liveCode.CodeHash)
	assert.NoError(t, err, "live code survives cleanup")

	_, err = store.FindAccessTokenByHash(ctx, staleToken.TokenHash)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = store.FindAccessTokenByHash(ctx, liveToken.TokenHash)
	assert.NoError(t, err)
}
