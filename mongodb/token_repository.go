package mongodb

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/guardian-dev/guardian/domain"
	serrors "github.com/guardian-dev/guardian/errors"
)

// TokenRepositoryMongo implements domain.TokenRepository using MongoDB.
type TokenRepositoryMongo struct {
	collection *mongo.Collection
}

// NewTokenRepositoryMongo creates the repository and ensures its indexes.
// The TTL index on expires_at makes expired records self-healing: a crash
// that orphans one half of a pair leaves nothing behind once it expires.
func NewTokenRepositoryMongo(ctx context.Context, db *mongo.Database) (domain.TokenRepository, error) {
	repo := &TokenRepositoryMongo{
		collection: db.Collection(SessionTokensCollection),
	}

	indexModels := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "session_id", Value: 1}, {Key: "type", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "user_id", Value: 1}},
		},
		{
			Keys:    bson.D{{Key: "token_hash", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0),
		},
	}
	if _, err := repo.collection.Indexes().CreateMany(ctx, indexModels); err != nil {
		log.Warn().Err(err).Msg("Issue creating indexes for session_tokens collection (might already exist)")
	}

	return repo, nil
}

func (r *TokenRepositoryMongo) StoreToken(ctx context.Context, token *domain.SessionToken) error {
	if token.ID == "" {
		token.ID = NewObjectID()
	}
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now().UTC()
	}

	if _, err := r.collection.InsertOne(ctx, token); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return serrors.ErrDuplicateRecord
		}
		log.Error().Err(err).Msg("Error storing session token in MongoDB")
		return err
	}
	return nil
}

func (r *TokenRepositoryMongo) GetBySession(ctx context.Context, sessionID string, typ domain.TokenType) (*domain.SessionToken, error) {
	var token domain.SessionToken
	err := r.collection.FindOne(ctx, bson.M{"session_id": sessionID, "type": typ}).Decode(&token)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, serrors.ErrNotFound
		}
		log.Error().Err(err).Str("sessionID", sessionID).Msg("Error getting session token from MongoDB")
		return nil, err
	}
	return &token, nil
}

func (r *TokenRepositoryMongo) DeleteBySession(ctx context.Context, sessionID string) (int64, error) {
	result, err := r.collection.DeleteMany(ctx, bson.M{"session_id": sessionID})
	if err != nil {
		log.Error().Err(err).Str("sessionID", sessionID).Msg("Error deleting session tokens from MongoDB")
		return 0, err
	}
	return result.DeletedCount, nil
}

func (r *TokenRepositoryMongo) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	result, err := r.collection.DeleteMany(ctx, bson.M{"user_id": userID})
	if err != nil {
		log.Error().Err(err).Str("userID", userID).Msg("Error deleting user tokens from MongoDB")
		return 0, err
	}
	return result.DeletedCount, nil
}

func (r *TokenRepositoryMongo) ListSessionIDsByUser(ctx context.Context, userID string) ([]string, error) {
	values, err := r.collection.Distinct(ctx, "session_id", bson.M{"user_id": userID})
	if err != nil {
		log.Error().Err(err).Str("userID", userID).Msg("Error listing session ids from MongoDB")
		return nil, err
	}
	ids := make([]string, 0, len(values))
	for _, v := range values {
		if s, ok := v.(string); ok {
			ids = append(ids, s)
		}
	}
	return ids, nil
}

var _ domain.TokenRepository = (*TokenRepositoryMongo)(nil)
