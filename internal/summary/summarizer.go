package summary

import (
	"context"
	"fmt"
	"strings"
	"time"

	"NeuroBot/internal/dispatch"
	"NeuroBot/internal/model"
	"NeuroBot/internal/repo"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const promptHeader = "Summarize the following chat messages in a few short paragraphs. " +
	"Keep decisions, open questions and action items. Reply with the summary only."

// Dispatcher submits generation work; *dispatch.Queue satisfies it.
type Dispatcher interface {
	Submit(ctx context.Context, req dispatch.Request) (dispatch.Result, error)
}

type Request struct {
	ConversationID  string
	RequestedBy     string
	RequestedByName string
}

// Summarizer produces incremental summaries. Requests for the same
// conversation run one at a time.
type Summarizer struct {
	cache      *Cache
	users      repo.UserRepository
	dispatcher Dispatcher
	logger     *zap.Logger
	locks      *keyedMutex
	now        func() time.Time
}

func NewSummarizer(cache *Cache, users repo.UserRepository, dispatcher Dispatcher, logger *zap.Logger) *Summarizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Summarizer{
		cache:      cache,
		users:      users,
		dispatcher: dispatcher,
		logger:     logger,
		locks:      newKeyedMutex(),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Summarize covers every message since the latest summary. It returns
// ErrNothingNew without calling the dispatcher when there is nothing to
// cover; dispatch failures come back as *dispatch.Error.
func (s *Summarizer) Summarize(ctx context.Context, req Request) (*model.SummaryRecord, error) {
	unlock := s.locks.Lock(req.ConversationID)
	defer unlock()

	requestedAt := s.now()
	msgs, prev, err := s.cache.RangeToSummarize(ctx, req.ConversationID)
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return nil, ErrNothingNew
	}

	prompt := s.buildPrompt(ctx, prev, msgs)
	res, err := s.dispatcher.Submit(ctx, dispatch.Request{
		ConversationID: req.ConversationID,
		Prompt:         prompt,
	})
	if err != nil {
		s.logger.Warn("summary generation failed",
			zap.String("conversation_id", req.ConversationID),
			zap.Error(err),
		)
		return nil, err
	}

	first, last := msgs[0], msgs[len(msgs)-1]
	rec := model.SummaryRecord{
		ID:              uuid.New().String(),
		Text:            res.Text,
		MessageCount:    len(msgs),
		GeneratedAt:     s.now(),
		RequestedBy:     req.RequestedBy,
		RequestedByName: req.RequestedByName,
		CutoffAt:        last.CreatedAt,
		RangeStart:      first.CreatedAt,
		RangeEnd:        last.CreatedAt,
		RequestedAt:     requestedAt,
		Model:           res.Model,
	}
	if _, err := s.cache.Record(ctx, req.ConversationID, rec); err != nil {
		return nil, err
	}

	s.logger.Info("summary generated",
		zap.String("conversation_id", req.ConversationID),
		zap.String("summary_id", rec.ID),
		zap.Int("messages", rec.MessageCount),
		zap.String("model", rec.Model),
	)
	return &rec, nil
}

func (s *Summarizer) buildPrompt(ctx context.Context, prev *model.SummaryRecord, msgs []model.Message) string {
	names := make(map[string]string)
	var b strings.Builder

	b.WriteString(promptHeader)
	b.WriteString("\n\n")
	if prev != nil && prev.Text != "" {
		b.WriteString("Earlier summary, for context:\n")
		b.WriteString(prev.Text)
		b.WriteString("\n\nNew messages:\n")
	}

	for _, m := range msgs {
		fmt.Fprintf(&b, "[%s] %s: %s\n", m.CreatedAt.UTC().Format("2006-01-02 15:04"), s.displayName(ctx, names, m.SenderID), messageLine(m))
	}
	return b.String()
}

func (s *Summarizer) displayName(ctx context.Context, cache map[string]string, userID string) string {
	if name, ok := cache[userID]; ok {
		return name
	}
	name := userID
	if s.users != nil {
		if u, err := s.users.GetUser(ctx, userID); err == nil {
			name = u.Name()
		}
	}
	cache[userID] = name
	return name
}

func messageLine(m model.Message) string {
	text := strings.TrimSpace(m.Text)
	for _, a := range m.Attachments {
		label := a.Name
		if label == "" {
			label = a.URL
		}
		text = strings.TrimSpace(fmt.Sprintf("%s [%s: %s]", text, a.Type, label))
	}
	return text
}
