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
	"go.uber.org/zap"
)

type conversationRepository struct {
	mongoRepo *db.Repository[model.Conversation]
	logger    *zap.Logger
}

func NewConversationRepository(con *mongo.Database, collection string, logger *zap.Logger) ConversationRepository {
	return &conversationRepository{
		mongoRepo: db.NewRepository[model.Conversation](con, collection),
		logger:    logger,
	}
}

// GetConversation fetches a conversation document by ID
func (r *conversationRepository) GetConversation(ctx context.Context, conversationID string) (*model.Conversation, error) {
	if conversationID == "" {
		return nil, ErrInvalidConversationID
	}

	ctx, cancel := ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	conversation, err := r.mongoRepo.FindByID(ctx, conversationID)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			r.logger.Debug("conversation not found",
				zap.String("conversation_id", conversationID),
			)
			return nil, ErrNotFound
		}
		r.logger.Error("failed to fetch conversation",
			zap.String("conversation_id", conversationID),
			zap.Error(err),
		)
		return nil, fmt.Errorf("failed to fetch conversation: %w", err)
	}

	r.logger.Debug("conversation retrieved successfully",
		zap.String("conversation_id", conversationID),
		zap.Int("participants_count", len(conversation.ParticipantIDs)),
	)
	return conversation, nil
}

func (r *conversationRepository) CreateConversation(ctx context.Context, conv *model.Conversation) (string, error) {
	if conv == nil {
		return "", ErrInvalidID
	}

	ctx, cancel := ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	now := time.Now().UTC()
	if conv.ID == "" {
		conv.ID = db.NewObjectID()
	}
	conv.CreatedAt, conv.UpdatedAt = now, now

	if _, err := r.mongoRepo.Create(ctx, *conv); err != nil {
		r.logger.Error("failed to create conversation", zap.Error(err))
		return "", fmt.Errorf("create conversation failed: %w", err)
	}
	return conv.ID, nil
}

func (r *conversationRepository) SaveSummaries(ctx context.Context, conversationID string, summaries []model.SummaryRecord, latest *model.SummaryRecord) error {
	if conversationID == "" {
		return ErrInvalidConversationID
	}

	ctx, cancel := ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	res, err := r.mongoRepo.Update(ctx, bson.M{"_id": conversationID}, bson.M{
		"summaries":      summaries,
		"latest_summary": latest,
		"updated_at":     time.Now().UTC(),
	})
	if err != nil {
		r.logger.Error("failed to save summaries",
			zap.String("conversation_id", conversationID),
			zap.Error(err),
		)
		return fmt.Errorf("save summaries failed: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *conversationRepository) SetLastMessage(ctx context.Context, conversationID string, last model.LastMessage) error {
	ctx, cancel := ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	res, err := r.mongoRepo.Update(ctx, bson.M{"_id": conversationID}, bson.M{
		"last_message": last,
		"updated_at":   time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("set last message failed: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}
