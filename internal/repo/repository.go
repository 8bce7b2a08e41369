package repo

import (
	"context"
	"errors"
	"time"

	"NeuroBot/internal/db"
	"NeuroBot/internal/model"
)

var (
	ErrNotFound              = errors.New("document not found")
	ErrInvalidMessage        = errors.New("invalid message: message cannot be nil")
	ErrInvalidConversationID = errors.New("invalid conversation ID: cannot be empty")
	ErrInvalidID             = errors.New("invalid ID: cannot be empty")
	ErrOperationTimeout      = errors.New("operation timeout exceeded")
	ErrMaxRetriesExceeded    = errors.New("maximum retry attempts exceeded")
)

const (
	// Timeouts
	defaultWriteTimeout = 5 * time.Second
	defaultReadTimeout  = 30 * time.Second

	// Retry configuration, reads only
	maxRetries     = 3
	baseRetryDelay = 100 * time.Millisecond
	maxRetryDelay  = 2 * time.Second

	defaultPageSize = 15
)

type ConversationRepository interface {
	GetConversation(ctx context.Context, conversationID string) (*model.Conversation, error)
	CreateConversation(ctx context.Context, conv *model.Conversation) (string, error)
	// SaveSummaries replaces the summary list and latest pointer in a
	// single document update.
	SaveSummaries(ctx context.Context, conversationID string, summaries []model.SummaryRecord, latest *model.SummaryRecord) error
	SetLastMessage(ctx context.Context, conversationID string, last model.LastMessage) error
}

type MessageRepository interface {
	InsertMessage(ctx context.Context, msg *model.Message) (string, error)
	GetMessage(ctx context.Context, messageID string) (*model.Message, error)
	// UpdateStatus moves the message to status only if its stored status is
	// lower. It reports whether the document changed.
	UpdateStatus(ctx context.Context, messageID string, status model.MessageStatus, at time.Time) (bool, error)
	// FindAfter returns messages of the conversation created strictly after
	// the given time, oldest first. A zero time returns all of them.
	FindAfter(ctx context.Context, conversationID string, after time.Time) ([]model.Message, error)
	// Recent returns up to limit newest messages, oldest first.
	Recent(ctx context.Context, conversationID string, limit int) ([]model.Message, error)
	FilterMessage(ctx context.Context, conversationID string, page int64) (*db.PaginatedResult[model.Message], error)
}

type UserRepository interface {
	GetUser(ctx context.Context, userID string) (*model.User, error)
	FindOrCreate(ctx context.Context, user model.User) (*model.User, error)
}

// Store bundles the durable-store boundary the realtime core needs.
type Store struct {
	Conversations ConversationRepository
	Messages      MessageRepository
	Users         UserRepository
}

func ensureTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, hadDeadline := ctx.Deadline(); hadDeadline {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
