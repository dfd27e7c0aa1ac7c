package mongodb

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/guardian-dev/guardian/domain"
	serrors "github.com/guardian-dev/guardian/errors"
)

// LoginAttemptRepositoryMongo implements domain.LoginAttemptRepository using MongoDB.
type LoginAttemptRepositoryMongo struct {
	collection *mongo.Collection
}

// NewLoginAttemptRepositoryMongo creates the repository and ensures its indexes.
func NewLoginAttemptRepositoryMongo(ctx context.Context, db *mongo.Database) (domain.LoginAttemptRepository, error) {
	repo := &LoginAttemptRepositoryMongo{
		collection: db.Collection(LoginAttemptsCollection),
	}

	indexModel := mongo.IndexModel{
		Keys:    bson.D{{Key: "user_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	if _, err := repo.collection.Indexes().CreateOne(ctx, indexModel); err != nil {
		log.Warn().Err(err).Msg("Issue creating index for login_attempts collection (might already exist)")
	}

	return repo, nil
}

func (r *LoginAttemptRepositoryMongo) GetByUser(ctx context.Context, userID string) (*domain.LoginAttempt, error) {
	var attempt domain.LoginAttempt
	err := r.collection.FindOne(ctx, bson.M{"user_id": userID}).Decode(&attempt)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, serrors.ErrNotFound
		}
		log.Error().Err(err).Str("userID", userID).Msg("Error getting login attempt from MongoDB")
		return nil, err
	}
	return &attempt, nil
}

func (r *LoginAttemptRepositoryMongo) Upsert(ctx context.Context, attempt *domain.LoginAttempt) error {
	filter := bson.M{"user_id": attempt.UserID}
	update := bson.M{"$set": bson.M{
		"attempts":        attempt.Attempts,
		"last_attempt_at": attempt.LastAttemptAt,
	}}
	_, err := r.collection.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if err != nil {
		log.Error().Err(err).Str("userID", attempt.UserID).Msg("Error upserting login attempt in MongoDB")
	}
	return err
}

var _ domain.LoginAttemptRepository = (*LoginAttemptRepositoryMongo)(nil)
