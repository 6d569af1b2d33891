package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/strandauth/strand/domain"
)

func (s *Store) createToken(ctx context.Context, token *domain.Token) error {
	_, err := s.tokens.InsertOne(ctx, token)
	if isDuplicateKey(err) {
		return domain.ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("insert %s: %w", token.TokenType, err)
	}
	return nil
}

func (s *Store) findTokenByHash(ctx context.Context, tokenType domain.TokenType, tokenHash string) (*domain.Token, error) {
	var token domain.Token
	err := s.tokens.FindOne(ctx, bson.M{
		"token_hash": tokenHash,
		"token_type": tokenType,
	}).Decode(&token)
	if err != nil {
		return nil, notFound(err)
	}
	return &token, nil
}

// revokeTokensWhere marks matching live documents revoked and reports
// whether any document changed.
func (s *Store) revokeTokensWhere(ctx context.Context, filter bson.M) (bool, error) {
	filter["revoked_at"] = nil
	res, err := s.tokens.UpdateMany(ctx, filter,
		bson.M{"$set": bson.M{"revoked_at": time.Now().UTC()}})
	if err != nil {
		return false, fmt.Errorf("revoke tokens: %w", err)
	}
	return res.ModifiedCount > 0, nil
}

// CreateAccessToken implements domain.TokenRepository.
func (s *Store) CreateAccessToken(ctx context.Context, token *domain.Token) error {
	return s.createToken(ctx, token)
}

// FindAccessTokenByHash implements domain.TokenRepository.
func (s *Store) FindAccessTokenByHash(ctx context.Context, tokenHash string) (*domain.Token, error) {
	return s.findTokenByHash(ctx, domain.TokenTypeAccess, tokenHash)
}

// RevokeAccessTokenByHash implements domain.TokenRepository.
func (s *Store) RevokeAccessTokenByHash(ctx context.Context, tokenHash string) (bool, error) {
	return s.revokeTokensWhere(ctx, bson.M{
		"token_hash": tokenHash,
		"token_type": domain.TokenTypeAccess,
	})
}

// CreateRefreshToken implements domain.TokenRepository.
func (s *Store) CreateRefreshToken(ctx context.Context, token *domain.Token) error {
	return s.createToken(ctx, token)
}

// FindRefreshTokenByHash implements domain.TokenRepository. Revoked
// documents are returned as-is; the rotation path inspects them to detect
// reuse.
func (s *Store) FindRefreshTokenByHash(ctx context.Context, tokenHash string) (*domain.Token, error) {
	return s.findTokenByHash(ctx, domain.TokenTypeRefresh, tokenHash)
}

// RevokeRefreshToken implements domain.TokenRepository.
func (s *Store) RevokeRefreshToken(ctx context.Context, id string) error {
	_, err := s.revokeTokensWhere(ctx, bson.M{
		"_id":        id,
		"token_type": domain.TokenTypeRefresh,
	})
	return err
}

// RevokeRefreshTokenByHash implements domain.TokenRepository.
func (s *Store) RevokeRefreshTokenByHash(ctx context.Context, tokenHash string) (bool, error) {
	return s.revokeTokensWhere(ctx, bson.M{
		"token_hash": tokenHash,
		"token_type": domain.TokenTypeRefresh,
	})
}

// RevokeTokenFamily implements domain.TokenRepository. One UpdateMany covers
// the whole family, so a concurrent rotation cannot leave a live descendant
// behind.
func (s *Store) RevokeTokenFamily(ctx context.Context, familyID string) error {
	_, err := s.revokeTokensWhere(ctx, bson.M{"family_id": familyID})
	return err
}

// RevokeUserClientTokens implements domain.TokenRepository.
func (s *Store) RevokeUserClientTokens(ctx context.Context, userID, clientID string) error {
	_, err := s.revokeTokensWhere(ctx, bson.M{
		"user_id":   userID,
		"client_id": clientID,
	})
	return err
}
