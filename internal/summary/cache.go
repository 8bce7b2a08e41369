// Package summary keeps each conversation's capped summary history and
// works out which messages a new summary has to cover.
package summary

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"NeuroBot/internal/model"
	"NeuroBot/internal/repo"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultMaxRetained is how many summaries a conversation keeps.
const DefaultMaxRetained = 20

var ErrNothingNew = errors.New("no new messages since the last summary")

type Cache struct {
	conversations repo.ConversationRepository
	messages      repo.MessageRepository
	maxRetained   int
	logger        *zap.Logger
	locks         *keyedMutex
}

func NewCache(conversations repo.ConversationRepository, messages repo.MessageRepository, maxRetained int, logger *zap.Logger) *Cache {
	if maxRetained <= 0 {
		maxRetained = DefaultMaxRetained
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{
		conversations: conversations,
		messages:      messages,
		maxRetained:   maxRetained,
		logger:        logger,
		locks:         newKeyedMutex(),
	}
}

// Latest picks the record with the newest cutoff, using generation time
// when a record has no cutoff or two cutoffs tie. Later entries win exact
// ties.
func Latest(records []model.SummaryRecord) *model.SummaryRecord {
	var best *model.SummaryRecord
	for i := range records {
		r := &records[i]
		if best == nil || !newer(best, r) {
			best = r
		}
	}
	if best == nil {
		return nil
	}
	out := *best
	return &out
}

// newer reports whether a is strictly newer than b.
func newer(a, b *model.SummaryRecord) bool {
	ak, bk := a.CutoffAt, b.CutoffAt
	if ak.IsZero() {
		ak = a.GeneratedAt
	}
	if bk.IsZero() {
		bk = b.GeneratedAt
	}
	if !ak.Equal(bk) {
		return ak.After(bk)
	}
	return a.GeneratedAt.After(b.GeneratedAt)
}

// History returns the stored records and the latest pointer.
func (c *Cache) History(ctx context.Context, conversationID string) ([]model.SummaryRecord, *model.SummaryRecord, error) {
	conv, err := c.conversations.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, nil, err
	}
	latest := conv.LatestSummary
	if latest == nil {
		latest = Latest(conv.Summaries)
	}
	return conv.Summaries, latest, nil
}

// RangeToSummarize returns the non-summary messages created strictly after
// the latest summary's cutoff, oldest first, together with that summary.
func (c *Cache) RangeToSummarize(ctx context.Context, conversationID string) ([]model.Message, *model.SummaryRecord, error) {
	_, latest, err := c.History(ctx, conversationID)
	if err != nil {
		return nil, nil, err
	}

	var after time.Time
	if latest != nil {
		after = latest.CutoffAt
		if after.IsZero() {
			after = latest.GeneratedAt
		}
	}

	msgs, err := c.messages.FindAfter(ctx, conversationID, after)
	if err != nil {
		return nil, nil, fmt.Errorf("load messages after cutoff: %w", err)
	}

	out := msgs[:0]
	for _, m := range msgs {
		if m.IsSummary() {
			continue
		}
		out = append(out, m)
	}
	return out, latest, nil
}

// Record appends rec, replacing any record with the same ID, drops the
// oldest entries beyond the retention cap and stores the list and the
// latest pointer in one update.
func (c *Cache) Record(ctx context.Context, conversationID string, rec model.SummaryRecord) (*model.SummaryRecord, error) {
	unlock := c.locks.Lock(conversationID)
	defer unlock()

	conv, err := c.conversations.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}

	list := make([]model.SummaryRecord, 0, len(conv.Summaries)+1)
	for _, r := range conv.Summaries {
		if r.ID != rec.ID {
			list = append(list, r)
		}
	}
	list = append(list, rec)
	if over := len(list) - c.maxRetained; over > 0 {
		list = list[over:]
	}

	latest := Latest(list)
	if err := c.conversations.SaveSummaries(ctx, conversationID, list, latest); err != nil {
		return nil, fmt.Errorf("save summaries: %w", err)
	}

	c.logger.Debug("summary recorded",
		zap.String("conversation_id", conversationID),
		zap.String("summary_id", rec.ID),
		zap.Int("retained", len(list)),
	)
	return latest, nil
}

// keyedMutex hands out one mutex per key and forgets it once unused.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refMutex)}
}

func (k *keyedMutex) Lock(key string) (unlock func()) {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
