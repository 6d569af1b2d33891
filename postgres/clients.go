package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/strandauth/strand/domain"
)

const clientColumns = `id, client_id, secret_digest, name, description,
	redirect_uris, scopes, confidential, rotate_refresh_tokens, revoked,
	created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanClient(row rowScanner) (*domain.Client, error) {
	var (
		c            domain.Client
		redirectURIs []byte
		scopes       []byte
	)
	err := row.Scan(
		&c.ID, &c.ClientID, &c.SecretDigest, &c.Name, &c.Description,
		&redirectURIs, &scopes, &c.Confidential, &c.RotateRefreshTokens,
		&c.Revoked, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if c.RedirectURIs, err = unmarshalStrings(redirectURIs); err != nil {
		return nil, err
	}
	if c.Scopes, err = unmarshalStrings(scopes); err != nil {
		return nil, err
	}
	return &c, nil
}

// CreateClient implements domain.ClientRepository.
func (s *Store) CreateClient(ctx context.Context, client *domain.Client) error {
	redirectURIs, err := marshalStrings(client.RedirectURIs)
	if err != nil {
		return err
	}
	scopes, err := marshalStrings(client.Scopes)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO oauth_clients
		(id, client_id, secret_digest, name, description, redirect_uris,
		 scopes, confidential, rotate_refresh_tokens, revoked, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		client.ID, client.ClientID, client.SecretDigest, client.Name,
		client.Description, redirectURIs, scopes, client.Confidential,
		client.RotateRefreshTokens, client.Revoked, client.CreatedAt,
		client.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return domain.ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("insert client: %w", err)
	}
	return nil
}

// GetClientByID implements domain.ClientRepository.
func (s *Store) GetClientByID(ctx context.Context, id string) (*domain.Client, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+clientColumns+` FROM oauth_clients WHERE id = $1`, id)
	client, err := scanClient(row)
	if err != nil {
		return nil, notFound(err)
	}
	return client, nil
}

// FindActiveClient implements domain.ClientRepository.
func (s *Store) FindActiveClient(ctx context.Context, clientID string) (*domain.Client, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+clientColumns+` FROM oauth_clients WHERE client_id = $1 AND revoked = FALSE`,
		clientID)
	client, err := scanClient(row)
	if err != nil {
		return nil, notFound(err)
	}
	return client, nil
}

// ListClients implements domain.ClientRepository.
func (s *Store) ListClients(ctx context.Context) ([]*domain.Client, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+clientColumns+` FROM oauth_clients ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("list clients: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var clients []*domain.Client
	for rows.Next() {
		client, err := scanClient(rows)
		if err != nil {
			return nil, fmt.Errorf("scan client: %w", err)
		}
		clients = append(clients, client)
	}
	return clients, rows.Err()
}

// UpdateClient implements domain.ClientRepository. The public client_id and
// the secret digest are not mutable through this path.
func (s *Store) UpdateClient(ctx context.Context, client *domain.Client) error {
	redirectURIs, err := marshalStrings(client.RedirectURIs)
	if err != nil {
		return err
	}
	scopes, err := marshalStrings(client.Scopes)
	if err != nil {
		return err
	}

	query, args, err := psq.Update("oauth_clients").
		Set("name", client.Name).
		Set("description", client.Description).
		Set("redirect_uris", redirectURIs).
		Set("scopes", scopes).
		Set("rotate_refresh_tokens", client.RotateRefreshTokens).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"id": client.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build client update: %w", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update client: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// UpdateClientSecret implements domain.ClientRepository.
func (s *Store) UpdateClientSecret(ctx context.Context, id, secretDigest string) error {
	query, args, err := psq.Update("oauth_clients").
		Set("secret_digest", secretDigest).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build secret update: %w", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update client secret: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// RevokeClient implements domain.ClientRepository. The flag flip and the
// token cascade commit together, so no token outlives its client.
func (s *Store) RevokeClient(ctx context.Context, id string) (bool, error) {
	var revoked bool
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var clientID string
		err := tx.QueryRowContext(ctx, `
			UPDATE oauth_clients SET revoked = TRUE, updated_at = NOW()
			WHERE id = $1 AND revoked = FALSE
			RETURNING client_id`, id).Scan(&clientID)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("revoke client: %w", err)
		}

		for _, table := range []string{"oauth_access_tokens", "oauth_refresh_tokens"} {
			_, err := tx.ExecContext(ctx, fmt.Sprintf(`
				UPDATE %s SET revoked_at = NOW()
				WHERE client_id = $1 AND revoked_at IS NULL`, table), clientID)
			if err != nil {
				return fmt.Errorf("cascade %s revocation: %w", table, err)
			}
		}
		revoked = true
		return nil
	})
	return revoked, err
}
