package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"NeuroBot/internal/dispatch"
	"NeuroBot/internal/event"
	"NeuroBot/internal/messagestate"
	"NeuroBot/internal/model"
	"NeuroBot/internal/normalize"
	"NeuroBot/internal/repo"
	"NeuroBot/internal/summary"

	"go.uber.org/zap"
)

const (
	defaultMentionPrefix = "@ai"
	assistantTimeout     = 3 * time.Minute
)

// Publisher fans events out to live connections; *delivery.Fanout
// satisfies it.
type Publisher interface {
	Deliver(conversationID string, participants []string, event string, payload any) int
	ToUser(conversationID, userID, event string, payload any) int
}

type ChatConfig struct {
	AssistantID   string
	MentionPrefix string
	ContextSize   int
}

type ChatService interface {
	SendMessage(ctx context.Context, senderID string, in normalize.InboundMessage) (*model.Message, error)
	MarkDelivered(ctx context.Context, userID string, ack event.MessageAckPayload) error
	MarkSeen(ctx context.Context, userID string, ack event.MessageAckPayload) error
	Typing(ctx context.Context, userID string, typing event.TypingPayload) error
	RequestSummary(ctx context.Context, userID, conversationID string) (*model.SummaryRecord, error)
	Messages(ctx context.Context, userID, conversationID string, page int64) ([]model.Message, int64, error)
	Summaries(ctx context.Context, userID, conversationID string) ([]model.SummaryRecord, *model.SummaryRecord, error)
	Close()
}

type chatService struct {
	store      repo.Store
	users      UserService
	publisher  Publisher
	states     *messagestate.Machine
	dispatcher summary.Dispatcher
	summaries  *summary.Cache
	summarizer *summary.Summarizer
	cfg        ChatConfig
	logger     *zap.Logger

	// assistant replies run in the background and are awaited on Close
	wg sync.WaitGroup
}

func NewChatService(
	store repo.Store,
	users UserService,
	publisher Publisher,
	states *messagestate.Machine,
	dispatcher summary.Dispatcher,
	summaries *summary.Cache,
	summarizer *summary.Summarizer,
	cfg ChatConfig,
	logger *zap.Logger,
) ChatService {
	if cfg.MentionPrefix == "" {
		cfg.MentionPrefix = defaultMentionPrefix
	}
	if cfg.ContextSize <= 0 || cfg.ContextSize > dispatch.MaxContextMessages {
		cfg.ContextSize = dispatch.MaxContextMessages
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &chatService{
		store:      store,
		users:      users,
		publisher:  publisher,
		states:     states,
		dispatcher: dispatcher,
		summaries:  summaries,
		summarizer: summarizer,
		cfg:        cfg,
		logger:     logger,
	}
}

// conversationFor loads the conversation and checks membership.
func (s *chatService) conversationFor(ctx context.Context, conversationID, userID string) (*model.Conversation, error) {
	if strings.TrimSpace(conversationID) == "" {
		return nil, ErrInvalidPayload
	}
	conv, err := s.store.Conversations.GetConversation(ctx, conversationID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) || errors.Is(err, repo.ErrInvalidConversationID) {
			return nil, ErrUnknownConversation
		}
		return nil, err
	}
	if !conv.HasParticipant(userID) {
		return nil, ErrNotParticipant
	}
	return conv, nil
}

func (s *chatService) SendMessage(ctx context.Context, senderID string, in normalize.InboundMessage) (*model.Message, error) {
	conv, err := s.conversationFor(ctx, in.ConversationID, senderID)
	if err != nil {
		return nil, err
	}
	if in.IsEmpty() {
		return nil, ErrEmptyMessage
	}

	mentions := Filter(in.Mentions, func(id string) bool {
		return id == s.cfg.AssistantID || conv.HasParticipant(id)
	})
	if mentions == nil {
		mentions = []string{}
	}

	msg := &model.Message{
		ConversationID: conv.ID,
		SenderID:       senderID,
		Text:           in.Text,
		Attachments:    in.Attachments,
		ReplyTo:        in.ReplyTo,
		Mentions:       mentions,
		Status:         model.MessageStatusSent,
	}
	if err := s.post(ctx, conv, msg, in.ClientRef); err != nil {
		return nil, err
	}

	if s.wantsAssistant(senderID, in.Text, mentions) {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.replyAsAssistant(conv, msg)
		}()
	}
	return msg, nil
}

// post stores msg, refreshes the conversation preview, fans the message out
// and marks it delivered when a recipient is online.
func (s *chatService) post(ctx context.Context, conv *model.Conversation, msg *model.Message, clientRef string) error {
	if _, err := s.store.Messages.InsertMessage(ctx, msg); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	if err := s.store.Conversations.SetLastMessage(ctx, conv.ID, model.LastMessage{
		MessageID: msg.ID,
		Text:      msg.Text,
		SenderID:  msg.SenderID,
		SentAt:    msg.CreatedAt,
	}); err != nil {
		s.logger.Warn("failed to update last message",
			zap.String("conversation_id", conv.ID),
			zap.Error(err),
		)
	}

	s.publisher.Deliver(conv.ID, conv.ParticipantIDs, event.EventNewMessage, event.NewMessage{
		Message:   *msg,
		ClientRef: clientRef,
	})

	if _, err := s.states.MarkDelivered(ctx, msg, conv.ParticipantIDs); err != nil {
		s.logger.Warn("failed to mark message delivered",
			zap.String("message_id", msg.ID),
			zap.Error(err),
		)
	}
	return nil
}

func (s *chatService) wantsAssistant(senderID, text string, mentions []string) bool {
	if s.dispatcher == nil || s.cfg.AssistantID == "" || senderID == s.cfg.AssistantID {
		return false
	}
	for _, id := range mentions {
		if id == s.cfg.AssistantID {
			return true
		}
	}
	return hasPrefixFold(text, s.cfg.MentionPrefix)
}

func hasPrefixFold(text, prefix string) bool {
	if len(text) < len(prefix) || !strings.EqualFold(text[:len(prefix)], prefix) {
		return false
	}
	rest := text[len(prefix):]
	return rest == "" || rest[0] == ' ' || rest[0] == ',' || rest[0] == ':' || rest[0] == '\n'
}

// replyAsAssistant asks the dispatcher for an answer to trigger and posts it,
// or posts the categorized failure notice instead.
func (s *chatService) replyAsAssistant(conv *model.Conversation, trigger *model.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), assistantTimeout)
	defer cancel()

	history, err := s.store.Messages.Recent(ctx, conv.ID, s.cfg.ContextSize+1)
	if err != nil {
		s.logger.Warn("failed to load assistant context", zap.String("conversation_id", conv.ID), zap.Error(err))
	}
	history = Filter(history, func(m model.Message) bool {
		return m.ID != trigger.ID && !m.IsSummary() && m.Metadata.Kind != model.MessageKindAssistantError
	})

	prompt := strings.TrimSpace(trigger.Text)
	if hasPrefixFold(prompt, s.cfg.MentionPrefix) {
		prompt = strings.TrimLeft(prompt[len(s.cfg.MentionPrefix):], " ,:\n")
	}
	if prompt == "" {
		prompt = "Continue the conversation."
	}

	res, err := s.dispatcher.Submit(ctx, dispatch.Request{
		ConversationID: conv.ID,
		Prompt:         prompt,
		Context:        history,
	})
	if err != nil {
		s.postAssistantError(ctx, conv, err)
		return
	}

	replyTo := trigger.ID
	reply := &model.Message{
		ConversationID: conv.ID,
		SenderID:       s.cfg.AssistantID,
		Text:           res.Text,
		ReplyTo:        &replyTo,
		Mentions:       []string{},
		Status:         model.MessageStatusSent,
		Metadata:       model.MessageMetadata{Kind: model.MessageKindAssistant, Model: res.Model},
	}
	if err := s.post(ctx, conv, reply, ""); err != nil {
		s.logger.Error("failed to store assistant reply", zap.String("conversation_id", conv.ID), zap.Error(err))
	}
}

// postAssistantError turns a dispatch failure into a visible assistant
// message so every participant sees why no answer arrived.
func (s *chatService) postAssistantError(ctx context.Context, conv *model.Conversation, err error) {
	de := dispatch.Classify(err, "")
	s.logger.Warn("assistant request failed",
		zap.String("conversation_id", conv.ID),
		zap.String("category", string(de.Category)),
		zap.Error(err),
	)

	notice := &model.Message{
		ConversationID: conv.ID,
		SenderID:       s.cfg.AssistantID,
		Text:           de.UserMessage(),
		Mentions:       []string{},
		Status:         model.MessageStatusSent,
		Metadata: model.MessageMetadata{
			Kind:          model.MessageKindAssistantError,
			ErrorCategory: string(de.Category),
			Model:         de.Model,
		},
	}
	if perr := s.post(ctx, conv, notice, ""); perr != nil {
		s.logger.Error("failed to store assistant error notice", zap.String("conversation_id", conv.ID), zap.Error(perr))
	}
}

func (s *chatService) MarkDelivered(ctx context.Context, userID string, ack event.MessageAckPayload) error {
	return s.acknowledge(ctx, userID, ack, s.states.MarkDeliveredBy)
}

func (s *chatService) MarkSeen(ctx context.Context, userID string, ack event.MessageAckPayload) error {
	return s.acknowledge(ctx, userID, ack, s.states.MarkSeen)
}

func (s *chatService) acknowledge(
	ctx context.Context,
	userID string,
	ack event.MessageAckPayload,
	mark func(ctx context.Context, msg *model.Message, userID string) (messagestate.Transition, error),
) error {
	if ack.MessageID == "" {
		return ErrInvalidPayload
	}
	msg, err := s.store.Messages.GetMessage(ctx, ack.MessageID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrUnknownMessage
		}
		return err
	}
	if _, err := s.conversationFor(ctx, msg.ConversationID, userID); err != nil {
		return err
	}

	_, err = mark(ctx, msg, userID)
	if errors.Is(err, messagestate.ErrSelfAck) {
		return nil
	}
	return err
}

func (s *chatService) Typing(ctx context.Context, userID string, typing event.TypingPayload) error {
	conv, err := s.conversationFor(ctx, typing.ConversationID, userID)
	if err != nil {
		return err
	}

	others := Filter(conv.ParticipantIDs, func(id string) bool { return id != userID })
	s.publisher.Deliver(conv.ID, others, event.EventTyping, event.Typing{
		ConversationID: conv.ID,
		UserID:         userID,
		IsTyping:       typing.IsTyping,
	})
	return nil
}

// RequestSummary summarizes everything since the previous summary, posts the
// result as a summary message and announces it with summary:ready.
func (s *chatService) RequestSummary(ctx context.Context, userID, conversationID string) (*model.SummaryRecord, error) {
	conv, err := s.conversationFor(ctx, conversationID, userID)
	if err != nil {
		return nil, err
	}
	if s.summarizer == nil {
		return nil, dispatch.Classify(dispatch.ErrNotConfigured, "")
	}

	rec, err := s.summarizer.Summarize(ctx, summary.Request{
		ConversationID:  conv.ID,
		RequestedBy:     userID,
		RequestedByName: s.users.DisplayName(ctx, userID),
	})
	if err != nil {
		var de *dispatch.Error
		if errors.As(err, &de) {
			s.postAssistantError(ctx, conv, err)
		}
		return nil, err
	}

	msg := &model.Message{
		ConversationID: conv.ID,
		SenderID:       s.cfg.AssistantID,
		Text:           rec.Text,
		Mentions:       []string{},
		Status:         model.MessageStatusSent,
		Metadata: model.MessageMetadata{
			Kind:      model.MessageKindSummary,
			SummaryID: rec.ID,
			Model:     rec.Model,
		},
	}
	if err := s.post(ctx, conv, msg, ""); err != nil {
		return nil, err
	}

	s.publisher.Deliver(conv.ID, conv.ParticipantIDs, event.EventSummaryReady, event.SummaryReady{
		ConversationID: conv.ID,
		SummaryID:      rec.ID,
		MessageCount:   rec.MessageCount,
	})
	return rec, nil
}

func (s *chatService) Messages(ctx context.Context, userID, conversationID string, page int64) ([]model.Message, int64, error) {
	if _, err := s.conversationFor(ctx, conversationID, userID); err != nil {
		return nil, 0, err
	}
	result, err := s.store.Messages.FilterMessage(ctx, conversationID, page)
	if err != nil {
		return nil, 0, err
	}
	return result.Data, result.Total, nil
}

func (s *chatService) Summaries(ctx context.Context, userID, conversationID string) ([]model.SummaryRecord, *model.SummaryRecord, error) {
	if _, err := s.conversationFor(ctx, conversationID, userID); err != nil {
		return nil, nil, err
	}
	return s.summaries.History(ctx, conversationID)
}

// Close waits for background assistant replies.
func (s *chatService) Close() {
	s.wg.Wait()
}
