package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/strandauth/strand/domain"
)

// CreateClient implements domain.ClientRepository.
func (s *Store) CreateClient(ctx context.Context, client *domain.Client) error {
	_, err := s.clients.InsertOne(ctx, client)
	if isDuplicateKey(err) {
		return domain.ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("insert client: %w", err)
	}
	return nil
}

// GetClientByID implements domain.ClientRepository.
func (s *Store) GetClientByID(ctx context.Context, id string) (*domain.Client, error) {
	var client domain.Client
	err := s.clients.FindOne(ctx, bson.M{"_id": id}).Decode(&client)
	if err != nil {
		return nil, notFound(err)
	}
	return &client, nil
}

// FindActiveClient implements domain.ClientRepository.
func (s *Store) FindActiveClient(ctx context.Context, clientID string) (*domain.Client, error) {
	var client domain.Client
	err := s.clients.FindOne(ctx, bson.M{"client_id": clientID, "revoked": false}).Decode(&client)
	if err != nil {
		return nil, notFound(err)
	}
	return &client, nil
}

// ListClients implements domain.ClientRepository.
func (s *Store) ListClients(ctx context.Context) ([]*domain.Client, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: 1}})
	cursor, err := s.clients.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("list clients: %w", err)
	}
	var clients []*domain.Client
	if err := cursor.All(ctx, &clients); err != nil {
		return nil, fmt.Errorf("decode clients: %w", err)
	}
	return clients, nil
}

// UpdateClient implements domain.ClientRepository. The public client_id and
// the secret digest are not mutable through this path.
func (s *Store) UpdateClient(ctx context.Context, client *domain.Client) error {
	res, err := s.clients.UpdateOne(ctx, bson.M{"_id": client.ID}, bson.M{"$set": bson.M{
		"name":                  client.Name,
		"description":           client.Description,
		"redirect_uris":         client.RedirectURIs,
		"scopes":                client.Scopes,
		"rotate_refresh_tokens": client.RotateRefreshTokens,
		"updated_at":            time.Now().UTC(),
	}})
	if err != nil {
		return fmt.Errorf("update client: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// UpdateClientSecret implements domain.ClientRepository.
func (s *Store) UpdateClientSecret(ctx context.Context, id, secretDigest string) error {
	res, err := s.clients.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{
		"secret_digest": secretDigest,
		"updated_at":    time.Now().UTC(),
	}})
	if err != nil {
		return fmt.Errorf("update client secret: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// RevokeClient implements domain.ClientRepository.
func (s *Store) RevokeClient(ctx context.Context, id string) (bool, error) {
	now := time.Now().UTC()

	var client domain.Client
	err := s.clients.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "revoked": false},
		bson.M{"$set": bson.M{"revoked": true, "updated_at": now}},
	).Decode(&client)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("revoke client: %w", err)
	}

	_, err = s.tokens.UpdateMany(ctx,
		bson.M{"client_id": client.ClientID, "revoked_at": nil},
		bson.M{"$set": bson.M{"revoked_at": now}},
	)
	if err != nil {
		return true, fmt.Errorf("cascade token revocation: %w", err)
	}
	return true, nil
}
