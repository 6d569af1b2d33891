// Package mongodb implements the authorization server's storage contract on
// MongoDB. Document shapes follow the bson tags on the domain types; all
// credential lookups are by digest.
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
	"go.opentelemetry.io/contrib/instrumentation/go.mongodb.org/mongo-driver/v2/mongo/otelmongo"

	"github.com/strandauth/strand/domain"
)

const (
	clientsCollection = "oauth_clients"
	codesCollection   = "oauth_authorization_codes"
	tokensCollection  = "oauth_tokens"
	grantsCollection  = "user_oauth_grants"
)

const (
	consumedCodeRetention = time.Hour
	revokedTokenRetention = 7 * 24 * time.Hour
)

// Store implements domain.Store on a MongoDB database. Access and refresh
// tokens share one collection, discriminated by token_type.
type Store struct {
	client  *mongo.Client
	db      *mongo.Database
	clients *mongo.Collection
	codes   *mongo.Collection
	tokens  *mongo.Collection
	grants  *mongo.Collection
}

var _ domain.Store = (*Store)(nil)

// Open connects to MongoDB, verifies the connection, and ensures the
// indexes the digest lookups depend on.
func Open(ctx context.Context, uri, dbName string) (*Store, error) {
	opts := options.Client().
		ApplyURI(uri).
		SetConnectTimeout(10 * time.Second).
		SetMonitor(otelmongo.NewMonitor())

	client, err := mongo.Connect(opts)
	if err != nil {
		return nil, fmt.Errorf("connect mongodb: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}

	db := client.Database(dbName)
	s := &Store{
		client:  client,
		db:      db,
		clients: db.Collection(clientsCollection),
		codes:   db.Collection(codesCollection),
		tokens:  db.Collection(tokensCollection),
		grants:  db.Collection(grantsCollection),
	}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return s, nil
}

// ensureIndexes creates the unique and lookup indexes. No TTL indexes: rows
// must outlive their expiry so consumption and revocation stay observable,
// and CleanupExpired owns their removal.
func (s *Store) ensureIndexes(ctx context.Context) error {
	_, err := s.clients.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "client_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	})
	if err != nil {
		return fmt.Errorf("create client indexes: %w", err)
	}

	_, err = s.codes.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "code_hash", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "expires_at", Value: 1}},
		},
	})
	if err != nil {
		return fmt.Errorf("create code indexes: %w", err)
	}

	_, err = s.tokens.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "token_hash", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "family_id", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "client_id", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "expires_at", Value: 1}},
		},
	})
	if err != nil {
		return fmt.Errorf("create token indexes: %w", err)
	}

	_, err = s.grants.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "client_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	})
	if err != nil {
		return fmt.Errorf("create grant indexes: %w", err)
	}
	return nil
}

// Ping verifies the primary is reachable.
func (s *Store) Ping(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.client.Ping(pingCtx, readpref.Primary())
}

// Close disconnects the client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// CleanupExpired removes expired codes and tokens plus consumed and revoked
// rows past their retention windows.
func (s *Store) CleanupExpired(ctx context.Context) (int64, error) {
	now := time.Now().UTC()
	var total int64

	res, err := s.codes.DeleteMany(ctx, bson.M{"$or": []bson.M{
		{"expires_at": bson.M{"$lt": now}},
		{"used_at": bson.M{"$lt": now.Add(-consumedCodeRetention)}},
	}})
	if err != nil {
		return 0, fmt.Errorf("cleanup authorization codes: %w", err)
	}
	total += res.DeletedCount

	res, err = s.tokens.DeleteMany(ctx, bson.M{"$or": []bson.M{
		{"expires_at": bson.M{"$lt": now}},
		{"revoked_at": bson.M{"$lt": now.Add(-revokedTokenRetention)}},
	}})
	if err != nil {
		return total, fmt.Errorf("cleanup tokens: %w", err)
	}
	total += res.DeletedCount

	return total, nil
}

// isDuplicateKey reports whether err is a unique index violation.
func isDuplicateKey(err error) bool {
	var writeException mongo.WriteException
	if errors.As(err, &writeException) {
		for _, writeError := range writeException.WriteErrors {
			if writeError.Code == 11000 || writeError.Code == 11001 {
				return true
			}
		}
	}
	return false
}

// notFound translates the driver's no-documents error into the
// storage-agnostic sentinel.
func notFound(err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.ErrNotFound
	}
	return err
}
