package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"NeuroBot/internal/db"
	"NeuroBot/internal/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

type userRepository struct {
	mongoRepo *db.Repository[model.User]
}

func NewUserRepository(con *mongo.Database, collection string) UserRepository {
	return &userRepository{
		mongoRepo: db.NewRepository[model.User](con, collection),
	}
}

func (r *userRepository) GetUser(ctx context.Context, userID string) (*model.User, error) {
	ctx, cancel := ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	user, err := r.mongoRepo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user failed: %w", err)
	}
	return user, nil
}

// FindOrCreate inserts the user unless a document with the same id exists.
func (r *userRepository) FindOrCreate(ctx context.Context, user model.User) (*model.User, error) {
	if user.ID == "" {
		return nil, ErrInvalidID
	}

	ctx, cancel := ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	// _id comes from the filter on insert
	_, err := r.mongoRepo.Upsert(ctx, bson.M{"_id": user.ID}, bson.M{"$setOnInsert": bson.M{
		"username":     user.Username,
		"display_name": user.DisplayName,
		"avatar":       user.Avatar,
		"is_assistant": user.IsAssistant,
		"created_at":   user.CreatedAt,
	}})
	if err != nil && !mongo.IsDuplicateKeyError(err) {
		return nil, fmt.Errorf("find or create user failed: %w", err)
	}
	return r.GetUser(ctx, user.ID)
}
