package repo

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"NeuroBot/internal/db"
	"NeuroBot/internal/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

const messagesCollection = "messages"

type messageRepository struct {
	collection *mongo.Collection
	mongoRepo  *db.Repository[model.Message]
	logger     *zap.Logger
}

func NewMessageRepository(con *mongo.Database, collection string, logger *zap.Logger) MessageRepository {
	if collection == "" {
		collection = messagesCollection
	}
	return &messageRepository{
		collection: con.Collection(collection),
		mongoRepo:  db.NewRepository[model.Message](con, collection),
		logger:     logger,
	}
}

// EnsureMessageIndexes creates the index backing the range and history
// queries. Safe to call on every start.
func EnsureMessageIndexes(ctx context.Context, con *mongo.Database, collection string) error {
	if collection == "" {
		collection = messagesCollection
	}
	_, err := con.Collection(collection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "conversation_id", Value: 1}, {Key: "created_at", Value: 1}},
	})
	return err
}

// -----------------------------------------------------------------------------
// InsertMessage
// -----------------------------------------------------------------------------

// InsertMessage stores a new message. Writes are not retried: a failed insert
// means the message was never created.
func (m *messageRepository) InsertMessage(ctx context.Context, msg *model.Message) (string, error) {
	if err := m.validateMessage(msg); err != nil {
		return "", err
	}

	ctx, cancel := ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	if msg.ID == "" {
		msg.ID = db.NewObjectID()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	msg.UpdatedAt = msg.CreatedAt

	if _, err := m.mongoRepo.Create(ctx, *msg); err != nil {
		m.logger.Error("failed to insert message",
			zap.Error(err),
			zap.String("conversation_id", msg.ConversationID),
		)
		return "", fmt.Errorf("insert message failed: %w", err)
	}

	m.logger.Debug("message inserted successfully",
		zap.String("message_id", msg.ID),
		zap.String("conversation_id", msg.ConversationID),
	)
	return msg.ID, nil
}

func (m *messageRepository) GetMessage(ctx context.Context, messageID string) (*model.Message, error) {
	if messageID == "" {
		return nil, ErrInvalidID
	}

	ctx, cancel := ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	msg, err := m.mongoRepo.FindByID(ctx, messageID)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, m.handleReadError(err, messageID)
	}
	return msg, nil
}

// UpdateStatus is a conditional update, so concurrent acks can only move a
// message forward.
func (m *messageRepository) UpdateStatus(ctx context.Context, messageID string, status model.MessageStatus, at time.Time) (bool, error) {
	if messageID == "" {
		return false, ErrInvalidID
	}

	ctx, cancel := ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	filter := db.NewFilter().Eq("_id", messageID).Lt("status", status).Build()
	res, err := m.mongoRepo.Update(ctx, filter, bson.M{
		"status":     status,
		"updated_at": at,
	})
	if err != nil {
		m.logger.Error("failed to update message status",
			zap.String("message_id", messageID),
			zap.String("status", status.String()),
			zap.Error(err),
		)
		return false, fmt.Errorf("update message status failed: %w", err)
	}
	return res.ModifiedCount > 0, nil
}

// -----------------------------------------------------------------------------
// Range queries
// -----------------------------------------------------------------------------

func (m *messageRepository) FindAfter(ctx context.Context, conversationID string, after time.Time) ([]model.Message, error) {
	if err := m.validateConversationID(conversationID); err != nil {
		return nil, err
	}

	ctx, cancel := ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	f := db.NewFilter().Eq("conversation_id", conversationID)
	if !after.IsZero() {
		f.Gt("created_at", after)
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})

	var msgs []model.Message
	err := m.withReadRetry(ctx, conversationID, func() error {
		var err error
		msgs, err = m.mongoRepo.FindAll(ctx, f.Build(), opts)
		return err
	})
	if err != nil {
		return nil, m.handleReadError(err, conversationID)
	}
	return msgs, nil
}

func (m *messageRepository) Recent(ctx context.Context, conversationID string, limit int) ([]model.Message, error) {
	if err := m.validateConversationID(conversationID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return []model.Message{}, nil
	}

	ctx, cancel := ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	filter := db.NewFilter().Eq("conversation_id", conversationID).Build()
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(int64(limit))

	var msgs []model.Message
	err := m.withReadRetry(ctx, conversationID, func() error {
		var err error
		msgs, err = m.mongoRepo.FindAll(ctx, filter, opts)
		return err
	})
	if err != nil {
		return nil, m.handleReadError(err, conversationID)
	}

	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
	})
	return msgs, nil
}

// -----------------------------------------------------------------------------
// FilterMessage
// -----------------------------------------------------------------------------
func (m *messageRepository) FilterMessage(ctx context.Context, conversationID string, page int64) (*db.PaginatedResult[model.Message], error) {
	if err := m.validateConversationID(conversationID); err != nil {
		return nil, err
	}

	ctx, cancel := ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	filter := db.NewFilter().Eq("conversation_id", conversationID).Build()

	m.logger.Debug("filtering messages",
		zap.String("conversation_id", conversationID),
		zap.Int64("page", page),
	)

	var result *db.PaginatedResult[model.Message]
	err := m.withReadRetry(ctx, conversationID, func() error {
		var err error
		result, err = m.mongoRepo.FindWithPagination(ctx, filter, db.PaginationParams{
			Page:     page,
			PageSize: defaultPageSize,
			SortBy:   "created_at",
			SortDesc: false,
		})
		return err
	})
	if err != nil {
		return nil, m.handleReadError(err, conversationID)
	}

	m.logger.Debug("messages filtered successfully",
		zap.String("conversation_id", conversationID),
		zap.Int("count", len(result.Data)),
		zap.Int64("total", result.Total),
	)
	return result, nil
}

// -----------------------------------------------------------------------------
// Private Helper Methods
// -----------------------------------------------------------------------------

func (m *messageRepository) withReadRetry(ctx context.Context, conversationID string, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			if err := waitForRetry(ctx, attempt); err != nil {
				return err
			}
			m.logger.Warn("retrying read",
				zap.String("conversation_id", conversationID),
				zap.Int("attempt", attempt+1),
			)
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		// Don't retry on context cancellation or non-retryable errors
		if !isRetryableError(lastErr) {
			return lastErr
		}
	}
	return fmt.Errorf("%w: %w", ErrMaxRetriesExceeded, lastErr)
}

func (m *messageRepository) validateMessage(msg *model.Message) error {
	if msg == nil {
		return ErrInvalidMessage
	}
	if msg.ConversationID == "" {
		return ErrInvalidConversationID
	}
	return nil
}

func (m *messageRepository) validateConversationID(conversationID string) error {
	if conversationID == "" {
		return ErrInvalidConversationID
	}
	return nil
}

func (m *messageRepository) handleReadError(err error, id string) error {
	if errors.Is(err, context.DeadlineExceeded) {
		m.logger.Error("read timeout", zap.String("id", id))
		return ErrOperationTimeout
	}

	if errors.Is(err, context.Canceled) {
		m.logger.Debug("read cancelled", zap.String("id", id))
		return err
	}

	m.logger.Error("read failed", zap.Error(err), zap.String("id", id))
	return fmt.Errorf("read messages failed: %w", err)
}

func waitForRetry(ctx context.Context, attempt int) error {
	delay := time.Duration(1<<uint(attempt)) * baseRetryDelay
	if delay > maxRetryDelay {
		delay = maxRetryDelay
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return fmt.Errorf("retry wait cancelled: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}

func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	// Context errors are not retryable
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return false
	}

	// MongoDB transient errors
	return mongo.IsTimeout(err) || mongo.IsNetworkError(err)
}
