// Package messagestate drives the Sent -> Delivered -> Seen lifecycle of a
// message and echoes every persisted transition to the sender.
package messagestate

import (
	"context"
	"crypto/sha1"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"NeuroBot/internal/event"
	"NeuroBot/internal/model"
	"NeuroBot/internal/presence"
	"NeuroBot/internal/repo"

	"go.uber.org/zap"
)

const lockShards = 64

var (
	ErrInvalidStatus = errors.New("invalid target status")
	ErrSelfAck       = errors.New("sender cannot acknowledge own message")
)

// StatusStore is the slice of the message repository the machine needs.
type StatusStore interface {
	GetMessage(ctx context.Context, messageID string) (*model.Message, error)
	UpdateStatus(ctx context.Context, messageID string, status model.MessageStatus, at time.Time) (bool, error)
}

// Notifier emits an event to one user's live connections.
type Notifier interface {
	ToUser(conversationID, userID, event string, payload any) int
}

// Transition describes the outcome of Advance.
type Transition struct {
	Message *model.Message
	From    model.MessageStatus
	To      model.MessageStatus
	Changed bool
}

type Machine struct {
	store    StatusStore
	notifier Notifier
	presence presence.Registry
	logger   *zap.Logger
	now      func() time.Time

	// a transition is persisted and emitted under its message's shard lock,
	// so the sender sees statuses in the order they were stored
	locks [lockShards]sync.Mutex
}

func NewMachine(store StatusStore, notifier Notifier, registry presence.Registry, logger *zap.Logger) *Machine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Machine{
		store:    store,
		notifier: notifier,
		presence: registry,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Advance moves a message forward to target. Non-forward transitions are
// no-ops. The sender is notified only after the new status is persisted;
// a persistence error is returned as is and nothing is emitted.
func (m *Machine) Advance(ctx context.Context, messageID string, target model.MessageStatus) (Transition, error) {
	if !target.Valid() {
		return Transition{}, ErrInvalidStatus
	}

	msg, err := m.store.GetMessage(ctx, messageID)
	if err != nil {
		return Transition{}, fmt.Errorf("load message %s: %w", messageID, err)
	}
	return m.advance(ctx, msg, target)
}

func (m *Machine) advance(ctx context.Context, msg *model.Message, target model.MessageStatus) (Transition, error) {
	if !target.Valid() {
		return Transition{}, ErrInvalidStatus
	}

	t := Transition{Message: msg, From: msg.Status, To: msg.Status}
	if target <= msg.Status {
		return t, nil
	}

	mu := m.lockFor(msg.ID)
	mu.Lock()
	defer mu.Unlock()

	at := m.now()
	changed, err := m.store.UpdateStatus(ctx, msg.ID, target, at)
	if err != nil {
		m.logger.Error("status transition not persisted",
			zap.String("message_id", msg.ID),
			zap.String("target", target.String()),
			zap.Error(err),
		)
		return t, fmt.Errorf("persist status %s: %w", target, err)
	}
	if !changed {
		// a concurrent ack got there first
		return t, nil
	}

	msg.Status = target
	msg.UpdatedAt = at
	t.To, t.Changed = target, true

	m.notifier.ToUser(msg.ConversationID, msg.SenderID, event.EventMessageStatus, event.MessageStatusChanged{
		MessageID:      msg.ID,
		ConversationID: msg.ConversationID,
		Status:         target.String(),
		UpdatedAt:      at.UnixMilli(),
	})

	m.logger.Debug("message status advanced",
		zap.String("message_id", msg.ID),
		zap.String("from", t.From.String()),
		zap.String("to", target.String()),
	)
	return t, nil
}

// MarkDelivered advances msg to Delivered when at least one recipient other
// than the sender has a live connection right now.
func (m *Machine) MarkDelivered(ctx context.Context, msg *model.Message, participants []string) (Transition, error) {
	for _, userID := range participants {
		if userID == msg.SenderID {
			continue
		}
		if m.presence.IsOnline(userID) {
			return m.advance(ctx, msg, model.MessageStatusDelivered)
		}
	}
	return Transition{Message: msg, From: msg.Status, To: msg.Status}, nil
}

// MarkSeen records that viewerID has viewed msg.
func (m *Machine) MarkSeen(ctx context.Context, msg *model.Message, viewerID string) (Transition, error) {
	return m.ack(ctx, msg, viewerID, model.MessageStatusSeen)
}

// MarkDeliveredBy records an explicit delivery ack from a recipient.
func (m *Machine) MarkDeliveredBy(ctx context.Context, msg *model.Message, recipientID string) (Transition, error) {
	return m.ack(ctx, msg, recipientID, model.MessageStatusDelivered)
}

func (m *Machine) ack(ctx context.Context, msg *model.Message, userID string, target model.MessageStatus) (Transition, error) {
	if msg.SenderID == userID {
		return Transition{}, ErrSelfAck
	}
	return m.advance(ctx, msg, target)
}

func (m *Machine) lockFor(messageID string) *sync.Mutex {
	h := sha1.Sum([]byte(messageID))
	return &m.locks[binary.BigEndian.Uint32(h[:4])%lockShards]
}

var _ StatusStore = (repo.MessageRepository)(nil)
