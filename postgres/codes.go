package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/strandauth/strand/domain"
)

const codeColumns = `id, code_hash, user_id, client_id, redirect_uri, scopes,
	code_challenge, code_challenge_method, expires_at, used_at, created_at`

func scanAuthorizationCode(row rowScanner) (*domain.AuthorizationCode, error) {
	var (
		c      domain.AuthorizationCode
		scopes []byte
		usedAt sql.NullTime
	)
	err := row.Scan(
		&c.ID, &c.CodeHash, &c.UserID, &c.ClientID, &c.RedirectURI, &scopes,
		&c.CodeChallenge, &c.CodeChallengeMethod, &c.ExpiresAt, &usedAt,
		&c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if c.Scopes, err = unmarshalStrings(scopes); err != nil {
		return nil, err
	}
	c.UsedAt = timePtr(usedAt)
	return &c, nil
}

// CreateAuthorizationCode implements domain.AuthCodeRepository.
func (s *Store) CreateAuthorizationCode(ctx context.Context, code *domain.AuthorizationCode) error {
	scopes, err := marshalStrings(code.Scopes)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO oauth_authorization_codes
		(id, code_hash, user_id, client_id, redirect_uri, scopes,
		 code_challenge, code_challenge_method, expires_at, used_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		code.ID, code.CodeHash, code.UserID, code.ClientID, code.RedirectURI,
		scopes, code.CodeChallenge, code.CodeChallengeMethod, code.ExpiresAt,
		nullTime(code.UsedAt), code.CreatedAt,
	)
	if isUniqueViolation(err) {
		return domain.ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("insert authorization code: %w", err)
	}
	return nil
}

// FindAndConsumeAuthorizationCode implements domain.AuthCodeRepository. The
// conditional UPDATE makes lookup and consumption one atomic statement: of
// any number of concurrent redemptions, exactly one gets the row back.
func (s *Store) FindAndConsumeAuthorizationCode(ctx context.Context, codeHash string) (*domain.AuthorizationCode, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE oauth_authorization_codes SET used_at = NOW()
		WHERE code_hash = $1 AND used_at IS NULL AND expires_at > NOW()
		RETURNING `+codeColumns,
		codeHash)
	code, err := scanAuthorizationCode(row)
	if err != nil {
		return nil, notFound(err)
	}
	return code, nil
}
