// Package redis provides a read-through Redis cache in front of a token
// repository. Only access tokens are cached: the refresh rotation path needs
// exact revocation state for reuse detection, so refresh lookups always go
// to the backing store.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/strandauth/strand/domain"
)

const defaultEntryTTL = 30 * time.Second

// TokenCache decorates a domain.TokenRepository with a Redis cache keyed by
// token digest. Revocations through this decorator invalidate the cached
// entry immediately; bulk cascades (family, user-client, client) bypass the
// cache, so their effect on cached access tokens converges within the entry
// TTL.
type TokenCache struct {
	inner  domain.TokenRepository
	client *redis.Client
	prefix string
	ttl    time.Duration
}

var _ domain.TokenRepository = (*TokenCache)(nil)

// NewTokenCache wraps inner with a Redis read-through cache. A zero ttl
// selects the default of 30 seconds.
func NewTokenCache(client *redis.Client, inner domain.TokenRepository, prefix string, ttl time.Duration) *TokenCache {
	if prefix == "" {
		prefix = "strand"
	}
	if ttl <= 0 {
		ttl = defaultEntryTTL
	}
	return &TokenCache{
		inner:  inner,
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}
}

// cacheKey builds the Redis key for an access token digest. Only digests
// ever appear in keys, never token plaintext.
func (c *TokenCache) cacheKey(tokenHash string) string {
	return fmt.Sprintf("%s:access:%s", c.prefix, tokenHash)
}

func (c *TokenCache) cacheSet(ctx context.Context, token *domain.Token) {
	ttl := c.ttl
	if remaining := time.Until(token.ExpiresAt); remaining < ttl {
		ttl = remaining
	}
	if ttl <= 0 {
		return
	}

	payload, err := json.Marshal(token)
	if err != nil {
		log.Warn().Err(err).Msg("marshal access token for cache")
		return
	}
	if err := c.client.Set(ctx, c.cacheKey(token.TokenHash), payload, ttl).Err(); err != nil {
		log.Debug().Err(err).Str("hash_prefix", token.TokenHash[:8]).Msg("access token cache write failed")
	}
}

func (c *TokenCache) cacheGet(ctx context.Context, tokenHash string) *domain.Token {
	payload, err := c.client.Get(ctx, c.cacheKey(tokenHash)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		log.Debug().Err(err).Str("hash_prefix", tokenHash[:8]).Msg("access token cache read failed")
		return nil
	}

	var token domain.Token
	if err := json.Unmarshal(payload, &token); err != nil {
		log.Warn().Err(err).Str("hash_prefix", tokenHash[:8]).Msg("corrupt access token cache entry")
		c.cacheDelete(ctx, tokenHash)
		return nil
	}
	// The digest is deliberately absent from the serialized form; the key
	// carries it.
	token.TokenHash = tokenHash
	return &token
}

func (c *TokenCache) cacheDelete(ctx context.Context, tokenHash string) {
	if err := c.client.Del(ctx, c.cacheKey(tokenHash)).Err(); err != nil {
		log.Debug().Err(err).Str("hash_prefix", tokenHash[:8]).Msg("access token cache delete failed")
	}
}

// CreateAccessToken implements domain.TokenRepository.
func (c *TokenCache) CreateAccessToken(ctx context.Context, token *domain.Token) error {
	return c.inner.CreateAccessToken(ctx, token)
}

// FindAccessTokenByHash implements domain.TokenRepository with a
// read-through lookup.
func (c *TokenCache) FindAccessTokenByHash(ctx context.Context, tokenHash string) (*domain.Token, error) {
	if token := c.cacheGet(ctx, tokenHash); token != nil {
		return token, nil
	}

	token, err := c.inner.FindAccessTokenByHash(ctx, tokenHash)
	if err != nil {
		return nil, err
	}
	c.cacheSet(ctx, token)
	return token, nil
}

// RevokeAccessTokenByHash implements domain.TokenRepository. The cache entry
// dies with the token.
func (c *TokenCache) RevokeAccessTokenByHash(ctx context.Context, tokenHash string) (bool, error) {
	revoked, err := c.inner.RevokeAccessTokenByHash(ctx, tokenHash)
	if err == nil {
		c.cacheDelete(ctx, tokenHash)
	}
	return revoked, err
}

// CreateRefreshToken implements domain.TokenRepository.
func (c *TokenCache) CreateRefreshToken(ctx context.Context, token *domain.Token) error {
	return c.inner.CreateRefreshToken(ctx, token)
}

// FindRefreshTokenByHash implements domain.TokenRepository. Never cached.
func (c *TokenCache) FindRefreshTokenByHash(ctx context.Context, tokenHash string) (*domain.Token, error) {
	return c.inner.FindRefreshTokenByHash(ctx, tokenHash)
}

// RevokeRefreshToken implements domain.TokenRepository.
func (c *TokenCache) RevokeRefreshToken(ctx context.Context, id string) error {
	return c.inner.RevokeRefreshToken(ctx, id)
}

// RevokeRefreshTokenByHash implements domain.TokenRepository.
func (c *TokenCache) RevokeRefreshTokenByHash(ctx context.Context, tokenHash string) (bool, error) {
	return c.inner.RevokeRefreshTokenByHash(ctx, tokenHash)
}

// RevokeTokenFamily implements domain.TokenRepository.
func (c *TokenCache) RevokeTokenFamily(ctx context.Context, familyID string) error {
	return c.inner.RevokeTokenFamily(ctx, familyID)
}

// RevokeUserClientTokens implements domain.TokenRepository.
func (c *TokenCache) RevokeUserClientTokens(ctx context.Context, userID, clientID string) error {
	return c.inner.RevokeUserClientTokens(ctx, userID, clientID)
}
