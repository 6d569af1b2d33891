package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/strandauth/strand/domain"
)

const grantColumns = `id, user_id, client_id, scopes, created_at, updated_at, revoked_at`

func scanUserGrant(row rowScanner) (*domain.UserGrant, error) {
	var (
		g         domain.UserGrant
		scopes    []byte
		revokedAt sql.NullTime
	)
	err := row.Scan(
		&g.ID, &g.UserID, &g.ClientID, &scopes, &g.CreatedAt, &g.UpdatedAt,
		&revokedAt,
	)
	if err != nil {
		return nil, err
	}
	if g.Scopes, err = unmarshalStrings(scopes); err != nil {
		return nil, err
	}
	g.RevokedAt = timePtr(revokedAt)
	return &g, nil
}

// UpsertUserGrant implements domain.GrantRepository. The scope union happens
// in Go under a row lock; ON CONFLICT DO NOTHING keeps two concurrent first
// consents from failing each other.
func (s *Store) UpsertUserGrant(ctx context.Context, userID, clientID string, scopes []string) (*domain.UserGrant, error) {
	scopesJSON, err := marshalStrings(scopes)
	if err != nil {
		return nil, err
	}

	var grant *domain.UserGrant
	err = s.inTx(ctx, func(tx *sql.Tx) error {
		now := time.Now().UTC()
		fresh := &domain.UserGrant{
			ID:        uuid.NewString(),
			UserID:    userID,
			ClientID:  clientID,
			Scopes:    append([]string(nil), scopes...),
			CreatedAt: now,
			UpdatedAt: now,
		}

		res, err := tx.ExecContext(ctx, `
			INSERT INTO user_oauth_grants
			(id, user_id, client_id, scopes, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (user_id, client_id) DO NOTHING`,
			fresh.ID, userID, clientID, scopesJSON, now, now,
		)
		if err != nil {
			return fmt.Errorf("insert user grant: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 1 {
			grant = fresh
			return nil
		}

		row := tx.QueryRowContext(ctx, `
			SELECT `+grantColumns+` FROM user_oauth_grants
			WHERE user_id = $1 AND client_id = $2
			FOR UPDATE`,
			userID, clientID)
		existing, err := scanUserGrant(row)
		if err != nil {
			return fmt.Errorf("lock user grant: %w", err)
		}

		existing.Scopes = domain.UnionScopes(existing.Scopes, scopes)
		mergedJSON, err := marshalStrings(existing.Scopes)
		if err != nil {
			return err
		}

		err = tx.QueryRowContext(ctx, `
			UPDATE user_oauth_grants
			SET scopes = $1, updated_at = NOW(), revoked_at = NULL
			WHERE id = $2
			RETURNING updated_at`,
			mergedJSON, existing.ID).Scan(&existing.UpdatedAt)
		if err != nil {
			return fmt.Errorf("update user grant: %w", err)
		}
		existing.RevokedAt = nil
		grant = existing
		return nil
	})
	if err != nil {
		return nil, err
	}
	return grant, nil
}

// ListUserGrants implements domain.GrantRepository.
func (s *Store) ListUserGrants(ctx context.Context, userID string) ([]*domain.UserGrant, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+grantColumns+` FROM user_oauth_grants
		WHERE user_id = $1 AND revoked_at IS NULL
		ORDER BY created_at DESC`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("list user grants: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var grants []*domain.UserGrant
	for rows.Next() {
		grant, err := scanUserGrant(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user grant: %w", err)
		}
		grants = append(grants, grant)
	}
	return grants, rows.Err()
}

// RevokeUserGrant implements domain.GrantRepository. The grant flip and the
// token cascade commit together.
func (s *Store) RevokeUserGrant(ctx context.Context, userID, clientID string) (bool, error) {
	var revoked bool
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE user_oauth_grants SET revoked_at = NOW()
			WHERE user_id = $1 AND client_id = $2 AND revoked_at IS NULL`,
			userID, clientID)
		if err != nil {
			return fmt.Errorf("revoke user grant: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil
		}

		for _, table := range []string{"oauth_access_tokens", "oauth_refresh_tokens"} {
			_, err := tx.ExecContext(ctx, fmt.Sprintf(`
				UPDATE %s SET revoked_at = NOW()
				WHERE user_id = $1 AND client_id = $2 AND revoked_at IS NULL`, table),
				userID, clientID)
			if err != nil {
				return fmt.Errorf("cascade %s revocation: %w", table, err)
			}
		}
		revoked = true
		return nil
	})
	return revoked, err
}
