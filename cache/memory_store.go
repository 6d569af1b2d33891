// Package cache provides the in-process storage engine. Expiring
// collections live in ttlcache instances so stale rows evict themselves;
// it is the default engine for development and tests.
package cache

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jellydator/ttlcache/v3"

	"github.com/strandauth/strand/domain"
)

// Removal windows applied by CleanupExpired, matching the SQL engines.
const (
	consumedCodeRetention = time.Hour
	revokedTokenRetention = 7 * 24 * time.Hour
)

// MemoryStore implements domain.Store in process memory. A single
// store-wide mutex provides the atomicity the code-consumption,
// family-revocation, and cascade paths need; ttlcache's own locking covers
// nothing beyond individual map access.
type MemoryStore struct {
	mu        sync.RWMutex
	clients   map[string]*domain.Client // keyed by internal ID
	clientIDs map[string]string         // public client_id -> internal ID
	codes     *ttlcache.Cache[string, *domain.AuthorizationCode]
	access    *ttlcache.Cache[string, *domain.Token]
	refresh   *ttlcache.Cache[string, *domain.Token]
	grants    map[string]*domain.UserGrant // keyed by userID + "\x00" + clientID
}

var _ domain.Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store with background eviction
// running.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{
		clients:   make(map[string]*domain.Client),
		clientIDs: make(map[string]string),
		codes: ttlcache.New(
			ttlcache.WithDisableTouchOnHit[string, *domain.AuthorizationCode](),
		),
		access: ttlcache.New(
			ttlcache.WithDisableTouchOnHit[string, *domain.Token](),
		),
		refresh: ttlcache.New(
			ttlcache.WithDisableTouchOnHit[string, *domain.Token](),
		),
		grants: make(map[string]*domain.UserGrant),
	}
	go s.codes.Start()
	go s.access.Start()
	go s.refresh.Start()
	return s
}

// Ping implements domain.Store.
func (s *MemoryStore) Ping(_ context.Context) error { return nil }

// Close stops the eviction goroutines.
func (s *MemoryStore) Close(_ context.Context) error {
	s.codes.Stop()
	s.access.Stop()
	s.refresh.Stop()
	return nil
}

// --- clients ---

// CreateClient implements domain.ClientRepository.
func (s *MemoryStore) CreateClient(_ context.Context, client *domain.Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.clients[client.ID]; ok {
		return domain.ErrDuplicate
	}
	if _, ok := s.clientIDs[client.ClientID]; ok {
		return domain.ErrDuplicate
	}
	s.clients[client.ID] = cloneClient(client)
	s.clientIDs[client.ClientID] = client.ID
	return nil
}

// GetClientByID implements domain.ClientRepository.
func (s *MemoryStore) GetClientByID(_ context.Context, id string) (*domain.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	client, ok := s.clients[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneClient(client), nil
}

// FindActiveClient implements domain.ClientRepository.
func (s *MemoryStore) FindActiveClient(_ context.Context, clientID string) (*domain.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.clientIDs[clientID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	client := s.clients[id]
	if client == nil || client.Revoked {
		return nil, domain.ErrNotFound
	}
	return cloneClient(client), nil
}

// ListClients implements domain.ClientRepository.
func (s *MemoryStore) ListClients(_ context.Context) ([]*domain.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.Client, 0, len(s.clients))
	for _, c := range s.clients {
		out = append(out, cloneClient(c))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// UpdateClient implements domain.ClientRepository.
func (s *MemoryStore) UpdateClient(_ context.Context, client *domain.Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.clients[client.ID]
	if !ok {
		return domain.ErrNotFound
	}
	updated := cloneClient(client)
	// client_id and the secret digest are not mutable through this path.
	updated.ClientID = existing.ClientID
	updated.SecretDigest = existing.SecretDigest
	s.clients[client.ID] = updated
	return nil
}

// UpdateClientSecret implements domain.ClientRepository.
func (s *MemoryStore) UpdateClientSecret(_ context.Context, id, secretDigest string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	client, ok := s.clients[id]
	if !ok {
		return domain.ErrNotFound
	}
	client.SecretDigest = secretDigest
	client.UpdatedAt = time.Now().UTC()
	return nil
}

// RevokeClient implements domain.ClientRepository. The token cascade runs
// under the same lock as the flag flip, so no token outlives its client.
func (s *MemoryStore) RevokeClient(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	client, ok := s.clients[id]
	if !ok || client.Revoked {
		return false, nil
	}
	now := time.Now().UTC()
	client.Revoked = true
	client.UpdatedAt = now

	revokeMatching(s.access, now, func(t *domain.Token) bool { return t.ClientID == client.ClientID })
	revokeMatching(s.refresh, now, func(t *domain.Token) bool { return t.ClientID == client.ClientID })
	return true, nil
}

// --- authorization codes ---

// CreateAuthorizationCode implements domain.AuthCodeRepository.
func (s *MemoryStore) CreateAuthorizationCode(_ context.Context, code *domain.AuthorizationCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.codes.Has(code.CodeHash) {
		return domain.ErrDuplicate
	}
	s.codes.Set(code.CodeHash, cloneCode(code), ttlUntil(code.ExpiresAt))
	return nil
}

// FindAndConsumeAuthorizationCode implements domain.AuthCodeRepository.
// The whole find-check-mark sequence happens under the store lock, so two
// concurrent redemptions of one code see exactly one success.
func (s *MemoryStore) FindAndConsumeAuthorizationCode(_ context.Context, codeHash string) (*domain.AuthorizationCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item := s.codes.Get(codeHash)
	if item == nil {
		return nil, domain.ErrNotFound
	}
	code := item.Value()
	now := time.Now().UTC()
	if code.Consumed() || code.Expired(now) {
		return nil, domain.ErrNotFound
	}
	code.UsedAt = &now
	return cloneCode(code), nil
}

// --- tokens ---

// CreateAccessToken implements domain.TokenRepository.
func (s *MemoryStore) CreateAccessToken(_ context.Context, token *domain.Token) error {
	return s.createToken(s.access, token)
}

// CreateRefreshToken implements domain.TokenRepository.
func (s *MemoryStore) CreateRefreshToken(_ context.Context, token *domain.Token) error {
	return s.createToken(s.refresh, token)
}

func (s *MemoryStore) createToken(cache *ttlcache.Cache[string, *domain.Token], token *domain.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cache.Has(token.TokenHash) {
		return domain.ErrDuplicate
	}
	cache.Set(token.TokenHash, cloneToken(token), ttlUntil(token.ExpiresAt))
	return nil
}

// FindAccessTokenByHash implements domain.TokenRepository.
func (s *MemoryStore) FindAccessTokenByHash(_ context.Context, tokenHash string) (*domain.Token, error) {
	return s.findToken(s.access, tokenHash)
}

// FindRefreshTokenByHash implements domain.TokenRepository.
func (s *MemoryStore) FindRefreshTokenByHash(_ context.Context, tokenHash string) (*domain.Token, error) {
	return s.findToken(s.refresh, tokenHash)
}

func (s *MemoryStore) findToken(cache *ttlcache.Cache[string, *domain.Token], tokenHash string) (*domain.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item := cache.Get(tokenHash)
	if item == nil {
		return nil, domain.ErrNotFound
	}
	return cloneToken(item.Value()), nil
}

// RevokeAccessTokenByHash implements domain.TokenRepository.
func (s *MemoryStore) RevokeAccessTokenByHash(_ context.Context, tokenHash string) (bool, error) {
	return s.revokeTokenByHash(s.access, tokenHash)
}

// RevokeRefreshTokenByHash implements domain.TokenRepository.
func (s *MemoryStore) RevokeRefreshTokenByHash(_ context.Context, tokenHash string) (bool, error) {
	return s.revokeTokenByHash(s.refresh, tokenHash)
}

func (s *MemoryStore) revokeTokenByHash(cache *ttlcache.Cache[string, *domain.Token], tokenHash string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item := cache.Get(tokenHash)
	if item == nil {
		return false, nil
	}
	token := item.Value()
	if token.RevokedAt != nil {
		return false, nil
	}
	now := time.Now().UTC()
	token.RevokedAt = &now
	return true, nil
}

// RevokeRefreshToken implements domain.TokenRepository.
func (s *MemoryStore) RevokeRefreshToken(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	revokeMatching(s.refresh, now, func(t *domain.Token) bool { return t.ID == id })
	return nil
}

// RevokeTokenFamily implements domain.TokenRepository. Runs as one step
// under the store lock; no concurrent refresh can slip a live token into a
// family being revoked.
func (s *MemoryStore) RevokeTokenFamily(_ context.Context, familyID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	revokeMatching(s.refresh, now, func(t *domain.Token) bool { return t.FamilyID == familyID })
	return nil
}

// RevokeUserClientTokens implements domain.TokenRepository.
func (s *MemoryStore) RevokeUserClientTokens(_ context.Context, userID, clientID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.revokeUserClientLocked(time.Now().UTC(), userID, clientID)
	return nil
}

func (s *MemoryStore) revokeUserClientLocked(now time.Time, userID, clientID string) {
	match := func(t *domain.Token) bool { return t.UserID == userID && t.ClientID == clientID }
	revokeMatching(s.access, now, match)
	revokeMatching(s.refresh, now, match)
}

// --- user grants ---

// UpsertUserGrant implements domain.GrantRepository.
func (s *MemoryStore) UpsertUserGrant(_ context.Context, userID, clientID string, scopes []string) (*domain.UserGrant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	key := grantKey(userID, clientID)
	if existing, ok := s.grants[key]; ok {
		existing.Scopes = domain.UnionScopes(existing.Scopes, scopes)
		existing.UpdatedAt = now
		existing.RevokedAt = nil
		return cloneGrant(existing), nil
	}

	grant := &domain.UserGrant{
		ID:        uuid.NewString(),
		UserID:    userID,
		ClientID:  clientID,
		Scopes:    domain.UnionScopes(nil, scopes),
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.grants[key] = grant
	return cloneGrant(grant), nil
}

// ListUserGrants implements domain.GrantRepository.
func (s *MemoryStore) ListUserGrants(_ context.Context, userID string) ([]*domain.UserGrant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.UserGrant, 0)
	for _, g := range s.grants {
		if g.UserID == userID && g.RevokedAt == nil {
			out = append(out, cloneGrant(g))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// RevokeUserGrant implements domain.GrantRepository. The grant flip and the
// token cascade share the store lock.
func (s *MemoryStore) RevokeUserGrant(_ context.Context, userID, clientID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	grant, ok := s.grants[grantKey(userID, clientID)]
	if !ok || grant.RevokedAt != nil {
		return false, nil
	}
	now := time.Now().UTC()
	grant.RevokedAt = &now
	grant.UpdatedAt = now
	s.revokeUserClientLocked(now, userID, clientID)
	return true, nil
}

// --- maintenance ---

// CleanupExpired implements domain.Store. The ttlcache eviction goroutines
// already reap naturally expired rows; this pass applies the early-removal
// windows and counts what it deletes.
func (s *MemoryStore) CleanupExpired(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	var removed int64

	staleCodes := make([]string, 0)
	s.codes.Range(func(item *ttlcache.Item[string, *domain.AuthorizationCode]) bool {
		code := item.Value()
		if code.Expired(now) || (code.UsedAt != nil && now.Sub(*code.UsedAt) > consumedCodeRetention) {
			staleCodes = append(staleCodes, item.Key())
		}
		return true
	})
	for _, key := range staleCodes {
		s.codes.Delete(key)
		removed++
	}

	removed += deleteStaleTokens(s.access, now)
	removed += deleteStaleTokens(s.refresh, now)
	return removed, nil
}

func deleteStaleTokens(cache *ttlcache.Cache[string, *domain.Token], now time.Time) int64 {
	stale := make([]string, 0)
	cache.Range(func(item *ttlcache.Item[string, *domain.Token]) bool {
		token := item.Value()
		if token.Expired(now) || (token.RevokedAt != nil && now.Sub(*token.RevokedAt) > revokedTokenRetention) {
			stale = append(stale, item.Key())
		}
		return true
	})
	for _, key := range stale {
		cache.Delete(key)
	}
	return int64(len(stale))
}

// --- helpers ---

func revokeMatching(cache *ttlcache.Cache[string, *domain.Token], now time.Time, match func(*domain.Token) bool) {
	cache.Range(func(item *ttlcache.Item[string, *domain.Token]) bool {
		token := item.Value()
		if token.RevokedAt == nil && match(token) {
			token.RevokedAt = &now
		}
		return true
	})
}

func ttlUntil(expiresAt time.Time) time.Duration {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		// Already expired on arrival; keep it just long enough for the
		// eviction goroutine to pick it up.
		ttl = time.Millisecond
	}
	return ttl
}

func grantKey(userID, clientID string) string {
	return userID + "\x00" + clientID
}

func cloneClient(c *domain.Client) *domain.Client {
	cp := *c
	cp.RedirectURIs = append([]string(nil), c.RedirectURIs...)
	cp.Scopes = append([]string(nil), c.Scopes...)
	return &cp
}

func cloneCode(c *domain.AuthorizationCode) *domain.AuthorizationCode {
	cp := *c
	cp.Scopes = append([]string(nil), c.Scopes...)
	if c.UsedAt != nil {
		used := *c.UsedAt
		cp.UsedAt = &used
	}
	return &cp
}

func cloneToken(t *domain.Token) *domain.Token {
	cp := *t
	cp.Scopes = append([]string(nil), t.Scopes...)
	if t.RevokedAt != nil {
		revoked := *t.RevokedAt
		cp.RevokedAt = &revoked
	}
	return &cp
}

func cloneGrant(g *domain.UserGrant) *domain.UserGrant {
	cp := *g
	cp.Scopes = append([]string(nil), g.Scopes...)
	if g.RevokedAt != nil {
		revoked := *g.RevokedAt
		cp.RevokedAt = &revoked
	}
	return &cp
}
