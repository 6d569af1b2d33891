// Package postgres implements the authorization server's storage contract on
// PostgreSQL. Credentials are stored as digests only; revocations mark rows
// rather than deleting them, and CleanupExpired reclaims what no flow can
// reach anymore.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"github.com/strandauth/strand/domain"
)

// psq is the PostgreSQL statement builder with dollar placeholders.
var psq = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

const uniqueViolation = "23505"

// Store implements domain.Store on a PostgreSQL database.
type Store struct {
	db *sql.DB
}

var _ domain.Store = (*Store)(nil)

// Open connects to PostgreSQL, verifies the connection, and applies any
// pending schema migrations.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if err := Migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the connection pool.
func (s *Store) Close(_ context.Context) error {
	return s.db.Close()
}

// CleanupExpired removes rows no flow can still reach: expired codes, codes
// consumed over an hour ago, expired tokens, and tokens revoked over seven
// days ago. Consumed and revoked rows are retained for those windows so that
// double redemption and refresh token reuse stay detectable.
func (s *Store) CleanupExpired(ctx context.Context) (int64, error) {
	var total int64

	res, err := s.db.ExecContext(ctx, `
		DELETE FROM oauth_authorization_codes
		WHERE expires_at < NOW()
		   OR (used_at IS NOT NULL AND used_at < NOW() - INTERVAL '1 hour')`)
	if err != nil {
		return 0, fmt.Errorf("cleanup authorization codes: %w", err)
	}
	n, _ := res.RowsAffected()
	total += n

	for _, table := range []string{"oauth_access_tokens", "oauth_refresh_tokens"} {
		res, err := s.db.ExecContext(ctx, fmt.Sprintf(`
			DELETE FROM %s
			WHERE expires_at < NOW()
			   OR revoked_at < NOW() - INTERVAL '7 days'`, table))
		if err != nil {
			return total, fmt.Errorf("cleanup %s: %w", table, err)
		}
		n, _ := res.RowsAffected()
		total += n
	}

	return total, nil
}

// marshalStrings renders a string slice for a JSONB column. Nil becomes an
// empty array, never SQL NULL.
func marshalStrings(v []string) ([]byte, error) {
	if v == nil {
		v = []string{}
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal string array: %w", err)
	}
	return raw, nil
}

func unmarshalStrings(raw []byte) ([]string, error) {
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("unmarshal string array: %w", err)
	}
	return out, nil
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	u := t.Time
	return &u
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// notFound translates sql.ErrNoRows into the storage-agnostic sentinel.
func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotFound
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

// inTx runs fn inside a transaction, rolling back on error.
func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
