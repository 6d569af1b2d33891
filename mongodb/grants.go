package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/strandauth/strand/domain"
)

// UpsertUserGrant implements domain.GrantRepository. $addToSet with $each is
// the scope union, and the whole upsert is one atomic operation.
func (s *Store) UpsertUserGrant(ctx context.Context, userID, clientID string, scopes []string) (*domain.UserGrant, error) {
	now := time.Now().UTC()
	filter := bson.M{"user_id": userID, "client_id": clientID}
	update := bson.M{
		"$addToSet":    bson.M{"scopes": bson.M{"$each": scopes}},
		"$set":         bson.M{"updated_at": now},
		"$unset":       bson.M{"revoked_at": ""},
		"$setOnInsert": bson.M{"_id": uuid.NewString(), "created_at": now},
	}
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var grant domain.UserGrant
	err := s.grants.FindOneAndUpdate(ctx, filter, update, opts).Decode(&grant)
	if isDuplicateKey(err) {
		// Lost an upsert race on the (user_id, client_id) index. The
		// document exists now, so a retry takes the update path.
		err = s.grants.FindOneAndUpdate(ctx, filter, update, opts).Decode(&grant)
	}
	if err != nil {
		return nil, fmt.Errorf("upsert user grant: %w", err)
	}
	return &grant, nil
}

// ListUserGrants implements domain.GrantRepository.
func (s *Store) ListUserGrants(ctx context.Context, userID string) ([]*domain.UserGrant, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := s.grants.Find(ctx, bson.M{"user_id": userID, "revoked_at": nil}, opts)
	if err != nil {
		return nil, fmt.Errorf("list user grants: %w", err)
	}
	var grants []*domain.UserGrant
	if err := cursor.All(ctx, &grants); err != nil {
		return nil, fmt.Errorf("decode user grants: %w", err)
	}
	return grants, nil
}

// RevokeUserGrant implements domain.GrantRepository. The grant flip and the
// token cascade are separate operations; MongoDB offers no cross-collection
// transaction outside replica sets, and a half-applied cascade is caught by
// the lazy active checks anyway.
func (s *Store) RevokeUserGrant(ctx context.Context, userID, clientID string) (bool, error) {
	now := time.Now().UTC()
	err := s.grants.FindOneAndUpdate(ctx,
		bson.M{"user_id": userID, "client_id": clientID, "revoked_at": nil},
		bson.M{"$set": bson.M{"revoked_at": now}},
	).Err()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("revoke user grant: %w", err)
	}

	if err := s.RevokeUserClientTokens(ctx, userID, clientID); err != nil {
		return true, err
	}
	return true, nil
}
