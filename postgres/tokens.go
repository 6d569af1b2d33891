package postgres

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/strandauth/strand/domain"
)

func scanAccessToken(row rowScanner) (*domain.Token, error) {
	var (
		t         domain.Token
		scopes    []byte
		revokedAt sql.NullTime
	)
	err := row.Scan(
		&t.ID, &t.TokenHash, &t.UserID, &t.ClientID, &scopes,
		&t.ExpiresAt, &revokedAt, &t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if t.Scopes, err = unmarshalStrings(scopes); err != nil {
		return nil, err
	}
	t.TokenType = domain.TokenTypeAccess
	t.RevokedAt = timePtr(revokedAt)
	return &t, nil
}

func scanRefreshToken(row rowScanner) (*domain.Token, error) {
	var (
		t         domain.Token
		scopes    []byte
		revokedAt sql.NullTime
	)
	err := row.Scan(
		&t.ID, &t.TokenHash, &t.UserID, &t.ClientID, &scopes, &t.FamilyID,
		&t.ExpiresAt, &revokedAt, &t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if t.Scopes, err = unmarshalStrings(scopes); err != nil {
		return nil, err
	}
	t.TokenType = domain.TokenTypeRefresh
	t.RevokedAt = timePtr(revokedAt)
	return &t, nil
}

// revokeTokenWhere marks matching live rows revoked and reports whether any
// row changed.
func (s *Store) revokeTokenWhere(ctx context.Context, table string, cond sq.Sqlizer) (bool, error) {
	query, args, err := psq.Update(table).
		Set("revoked_at", sq.Expr("NOW()")).
		Where(cond).
		Where("revoked_at IS NULL").
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build %s revocation: %w", table, err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("revoke in %s: %w", table, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// CreateAccessToken implements domain.TokenRepository.
func (s *Store) CreateAccessToken(ctx context.Context, token *domain.Token) error {
	scopes, err := marshalStrings(token.Scopes)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO oauth_access_tokens
		(id, token_hash, user_id, client_id, scopes, expires_at, revoked_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		token.ID, token.TokenHash, token.UserID, token.ClientID, scopes,
		token.ExpiresAt, nullTime(token.RevokedAt), token.CreatedAt,
	)
	if isUniqueViolation(err) {
		return domain.ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("insert access token: %w", err)
	}
	return nil
}

// FindAccessTokenByHash implements domain.TokenRepository.
func (s *Store) FindAccessTokenByHash(ctx context.Context, tokenHash string) (*domain.Token, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, token_hash, user_id, client_id, scopes,
		       expires_at, revoked_at, created_at
		FROM oauth_access_tokens WHERE token_hash = $1`,
		tokenHash)
	token, err := scanAccessToken(row)
	if err != nil {
		return nil, notFound(err)
	}
	return token, nil
}

// RevokeAccessTokenByHash implements domain.TokenRepository.
func (s *Store) RevokeAccessTokenByHash(ctx context.Context, tokenHash string) (bool, error) {
	return s.revokeTokenWhere(ctx, "oauth_access_tokens", sq.Eq{"token_hash": tokenHash})
}

// CreateRefreshToken implements domain.TokenRepository.
func (s *Store) CreateRefreshToken(ctx context.Context, token *domain.Token) error {
	scopes, err := marshalStrings(token.Scopes)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO oauth_refresh_tokens
		(id, token_hash, user_id, client_id, scopes, family_id,
		 expires_at, revoked_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		token.ID, token.TokenHash, token.UserID, token.ClientID, scopes,
		token.FamilyID, token.ExpiresAt, nullTime(token.RevokedAt),
		token.CreatedAt,
	)
	if isUniqueViolation(err) {
		return domain.ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("insert refresh token: %w", err)
	}
	return nil
}

// FindRefreshTokenByHash implements domain.TokenRepository. Revoked rows are
// returned as-is; the rotation path inspects them to detect reuse.
func (s *Store) FindRefreshTokenByHash(ctx context.Context, tokenHash string) (*domain.Token, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, token_hash, user_id, client_id, scopes, family_id,
		       expires_at, revoked_at, created_at
		FROM oauth_refresh_tokens WHERE token_hash = $1`,
		tokenHash)
	token, err := scanRefreshToken(row)
	if err != nil {
		return nil, notFound(err)
	}
	return token, nil
}

// RevokeRefreshToken implements domain.TokenRepository.
func (s *Store) RevokeRefreshToken(ctx context.Context, id string) error {
	_, err := s.revokeTokenWhere(ctx, "oauth_refresh_tokens", sq.Eq{"id": id})
	return err
}

// RevokeRefreshTokenByHash implements domain.TokenRepository.
func (s *Store) RevokeRefreshTokenByHash(ctx context.Context, tokenHash string) (bool, error) {
	return s.revokeTokenWhere(ctx, "oauth_refresh_tokens", sq.Eq{"token_hash": tokenHash})
}

// RevokeTokenFamily implements domain.TokenRepository. One statement covers
// the whole family, so a concurrent rotation cannot leave a live descendant
// behind.
func (s *Store) RevokeTokenFamily(ctx context.Context, familyID string) error {
	_, err := s.revokeTokenWhere(ctx, "oauth_refresh_tokens", sq.Eq{"family_id": familyID})
	return err
}

// RevokeUserClientTokens implements domain.TokenRepository.
func (s *Store) RevokeUserClientTokens(ctx context.Context, userID, clientID string) error {
	for _, table := range []string{"oauth_access_tokens", "oauth_refresh_tokens"} {
		cond := sq.Eq{"user_id": userID, "client_id": clientID}
		if _, err := s.revokeTokenWhere(ctx, table, cond); err != nil {
			return err
		}
	}
	return nil
}
