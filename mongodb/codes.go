package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/strandauth/strand/domain"
)

// CreateAuthorizationCode implements domain.AuthCodeRepository.
func (s *Store) CreateAuthorizationCode(ctx context.Context, code *domain.AuthorizationCode) error {
	_, err := s.codes.InsertOne(ctx, code)
	if isDuplicateKey(err) {
		return domain.ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("insert authorization code: %w", err)
	}
	return nil
}

// FindAndConsumeAuthorizationCode implements domain.AuthCodeRepository.
// FindOneAndUpdate makes lookup and consumption one atomic operation: of any
// number of concurrent redemptions, exactly one gets the document back.
func (s *Store) FindAndConsumeAuthorizationCode(ctx context.Context, codeHash string) (*domain.AuthorizationCode, error) {
	now := time.Now().UTC()
	filter := bson.M{
		"code_hash":  codeHash,
		"used_at":    nil,
		"expires_at": bson.M{"$gt": now},
	}
	update := bson.M{"$set": bson.M{"used_at": now}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var code domain.AuthorizationCode
	if err := s.codes.FindOneAndUpdate(ctx, filter, update, opts).Decode(&code); err != nil {
		return nil, notFound(err)
	}
	return &code, nil
}
