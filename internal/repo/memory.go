package repo

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"NeuroBot/internal/db"
	"NeuroBot/internal/model"

	"github.com/google/uuid"
)

// MemoryStore keeps conversations, messages and users in process memory. It
// backs the "memory" storage driver for local runs and the service tests.
// Every method copies values in and out, matching the single-document
// atomicity of the Mongo store.
type MemoryStore struct {
	mu            sync.RWMutex
	conversations map[string]model.Conversation
	messages      map[string]model.Message
	byConv        map[string][]string // message ids in insertion order
	users         map[string]model.User

	// FailWrites makes every write return this error; tests use it to
	// exercise persistence failure paths.
	FailWrites error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		conversations: make(map[string]model.Conversation),
		messages:      make(map[string]model.Message),
		byConv:        make(map[string][]string),
		users:         make(map[string]model.User),
	}
}

// Store returns the store wrapped as the repository bundle.
func (s *MemoryStore) Store() Store {
	return Store{Conversations: s, Messages: s, Users: s}
}

func (s *MemoryStore) SetFailWrites(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.FailWrites = err
}

// -----------------------------------------------------------------------------
// Conversations
// -----------------------------------------------------------------------------

func (s *MemoryStore) GetConversation(_ context.Context, conversationID string) (*model.Conversation, error) {
	if conversationID == "" {
		return nil, ErrInvalidConversationID
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[conversationID]
	if !ok {
		return nil, ErrNotFound
	}
	return copyConversation(conv), nil
}

func (s *MemoryStore) CreateConversation(_ context.Context, conv *model.Conversation) (string, error) {
	if conv == nil {
		return "", ErrInvalidID
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWrites != nil {
		return "", s.FailWrites
	}

	if conv.ID == "" {
		conv.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	conv.CreatedAt, conv.UpdatedAt = now, now
	s.conversations[conv.ID] = *copyConversation(*conv)
	return conv.ID, nil
}

func (s *MemoryStore) SaveSummaries(_ context.Context, conversationID string, summaries []model.SummaryRecord, latest *model.SummaryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWrites != nil {
		return s.FailWrites
	}

	conv, ok := s.conversations[conversationID]
	if !ok {
		return ErrNotFound
	}
	conv.Summaries = slices.Clone(summaries)
	conv.LatestSummary = nil
	if latest != nil {
		l := *latest
		conv.LatestSummary = &l
	}
	conv.UpdatedAt = time.Now().UTC()
	s.conversations[conversationID] = conv
	return nil
}

func (s *MemoryStore) SetLastMessage(_ context.Context, conversationID string, last model.LastMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWrites != nil {
		return s.FailWrites
	}

	conv, ok := s.conversations[conversationID]
	if !ok {
		return ErrNotFound
	}
	conv.LastMessage = &last
	conv.UpdatedAt = time.Now().UTC()
	s.conversations[conversationID] = conv
	return nil
}

// -----------------------------------------------------------------------------
// Messages
// -----------------------------------------------------------------------------

func (s *MemoryStore) InsertMessage(_ context.Context, msg *model.Message) (string, error) {
	if msg == nil {
		return "", ErrInvalidMessage
	}
	if msg.ConversationID == "" {
		return "", ErrInvalidConversationID
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWrites != nil {
		return "", s.FailWrites
	}

	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	msg.UpdatedAt = msg.CreatedAt

	s.messages[msg.ID] = copyMessage(*msg)
	s.byConv[msg.ConversationID] = append(s.byConv[msg.ConversationID], msg.ID)
	return msg.ID, nil
}

func (s *MemoryStore) GetMessage(_ context.Context, messageID string) (*model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msg, ok := s.messages[messageID]
	if !ok {
		return nil, ErrNotFound
	}
	out := copyMessage(msg)
	return &out, nil
}

func (s *MemoryStore) UpdateStatus(_ context.Context, messageID string, status model.MessageStatus, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWrites != nil {
		return false, s.FailWrites
	}

	msg, ok := s.messages[messageID]
	if !ok || msg.Status >= status {
		return false, nil
	}
	msg.Status = status
	msg.UpdatedAt = at
	s.messages[messageID] = msg
	return true, nil
}

func (s *MemoryStore) FindAfter(_ context.Context, conversationID string, after time.Time) ([]model.Message, error) {
	if conversationID == "" {
		return nil, ErrInvalidConversationID
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Message, 0)
	for _, msg := range s.sortedLocked(conversationID) {
		if after.IsZero() || msg.CreatedAt.After(after) {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (s *MemoryStore) Recent(_ context.Context, conversationID string, limit int) ([]model.Message, error) {
	if conversationID == "" {
		return nil, ErrInvalidConversationID
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.sortedLocked(conversationID)
	if limit <= 0 {
		return []model.Message{}, nil
	}
	if len(all) > limit {
		all = all[len(all)-limit:]
	}
	return all, nil
}

func (s *MemoryStore) FilterMessage(_ context.Context, conversationID string, page int64) (*db.PaginatedResult[model.Message], error) {
	if conversationID == "" {
		return nil, ErrInvalidConversationID
	}
	if page < 1 {
		page = 1
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.sortedLocked(conversationID)
	total := int64(len(all))
	start := (page - 1) * defaultPageSize
	end := start + defaultPageSize
	if start > total {
		start = total
	}
	if end > total {
		end = total
	}

	totalPages := total / defaultPageSize
	if total%defaultPageSize > 0 {
		totalPages++
	}

	return &db.PaginatedResult[model.Message]{
		Data:       all[start:end],
		Total:      total,
		Page:       page,
		PageSize:   defaultPageSize,
		TotalPages: totalPages,
	}, nil
}

func (s *MemoryStore) sortedLocked(conversationID string) []model.Message {
	ids := s.byConv[conversationID]
	out := make([]model.Message, 0, len(ids))
	for _, id := range ids {
		out = append(out, copyMessage(s.messages[id]))
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// -----------------------------------------------------------------------------
// Users
// -----------------------------------------------------------------------------

func (s *MemoryStore) GetUser(_ context.Context, userID string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

func (s *MemoryStore) FindOrCreate(_ context.Context, user model.User) (*model.User, error) {
	if user.ID == "" {
		return nil, ErrInvalidID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.users[user.ID]; ok {
		return &existing, nil
	}
	if s.FailWrites != nil {
		return nil, s.FailWrites
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	s.users[user.ID] = user
	return &user, nil
}

func copyConversation(c model.Conversation) *model.Conversation {
	c.ParticipantIDs = slices.Clone(c.ParticipantIDs)
	c.AdminIDs = slices.Clone(c.AdminIDs)
	c.Summaries = slices.Clone(c.Summaries)
	if c.LatestSummary != nil {
		l := *c.LatestSummary
		c.LatestSummary = &l
	}
	if c.LastMessage != nil {
		l := *c.LastMessage
		c.LastMessage = &l
	}
	return &c
}

func copyMessage(m model.Message) model.Message {
	m.Attachments = slices.Clone(m.Attachments)
	m.Mentions = slices.Clone(m.Mentions)
	return m
}
