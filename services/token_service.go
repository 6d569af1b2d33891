package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/strandauth/strand/domain"
	applog "github.com/strandauth/strand/log"
)

// TokenPair carries a freshly minted access/refresh token pair. The
// plaintext credentials exist only here on their way into a response body;
// storage holds digests.
type TokenPair struct {
	AccessToken    string
	RefreshToken   string
	AccessTokenID  string
	RefreshTokenID string
	FamilyID       string
	ExpiresIn      int64
	Scopes         []string
}

// TokenService mints opaque token pairs. It knows nothing about grant
// types; flow rules live in OAuthService.
type TokenService struct {
	tokens     domain.TokenRepository
	accessTTL  time.Duration
	refreshTTL time.Duration
	logger     applog.Logger
}

// NewTokenService creates a TokenService with the configured lifetimes.
func NewTokenService(tokens domain.TokenRepository, accessTTL, refreshTTL time.Duration, logger applog.Logger) *TokenService {
	return &TokenService{
		tokens:     tokens,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		logger:     logger,
	}
}

// AccessTTL returns the configured access token lifetime.
func (s *TokenService) AccessTTL() time.Duration { return s.accessTTL }

// IssueTokenPair mints and persists one access and one refresh token for
// the (user, client) pair. An empty familyID starts a new refresh token
// family; a non-empty one keeps the rotated token in its predecessor's
// family so a later reuse can take the whole lineage down.
func (s *TokenService) IssueTokenPair(ctx context.Context, userID, clientID string, scopes []string, familyID string) (*TokenPair, error) {
	accessPlain, err := domain.NewOpaqueToken()
	if err != nil {
		return nil, fmt.Errorf("generating access token: %w", err)
	}
	refreshPlain, err := domain.NewOpaqueToken()
	if err != nil {
		return nil, fmt.Errorf("generating refresh token: %w", err)
	}
	if familyID == "" {
		familyID = uuid.NewString()
	}

	now := time.Now().UTC()
	access := &domain.Token{
		ID:        uuid.NewString(),
		TokenHash: domain.HashToken(accessPlain),
		TokenType: domain.TokenTypeAccess,
		UserID:    userID,
		ClientID:  clientID,
		Scopes:    scopes,
		ExpiresAt: now.Add(s.accessTTL),
		CreatedAt: now,
	}
	refresh := &domain.Token{
		ID:        uuid.NewString(),
		TokenHash: domain.HashToken(refreshPlain),
		TokenType: domain.TokenTypeRefresh,
		UserID:    userID,
		ClientID:  clientID,
		Scopes:    scopes,
		FamilyID:  familyID,
		ExpiresAt: now.Add(s.refreshTTL),
		CreatedAt: now,
	}

	if err := s.tokens.CreateAccessToken(ctx, access); err != nil {
		return nil, fmt.Errorf("storing access token: %w", err)
	}
	if err := s.tokens.CreateRefreshToken(ctx, refresh); err != nil {
		// The access token row is orphaned but inert: its plaintext never
		// left this function, and cleanup reaps it after expiry.
		return nil, fmt.Errorf("storing refresh token: %w", err)
	}

	s.logger.Debug(ctx, "token pair minted", map[string]interface{}{
		"user_id":          userID,
		"client_id":        clientID,
		"access_token_id":  access.ID,
		"refresh_token_id": refresh.ID,
		"family_id":        familyID,
	})

	return &TokenPair{
		AccessToken:    accessPlain,
		RefreshToken:   refreshPlain,
		AccessTokenID:  access.ID,
		RefreshTokenID: refresh.ID,
		FamilyID:       familyID,
		ExpiresIn:      int64(s.accessTTL.Seconds()),
		Scopes:         scopes,
	}, nil
}
