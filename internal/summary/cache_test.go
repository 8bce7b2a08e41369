package summary

import (
	"context"
	"fmt"
	"testing"
	"time"

	"NeuroBot/internal/model"
	"NeuroBot/internal/repo"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var base = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func newStore(t *testing.T) (*repo.MemoryStore, string) {
	t.Helper()
	store := repo.NewMemoryStore()
	id, err := store.CreateConversation(context.Background(), &model.Conversation{
		ID:             "conv-1",
		ParticipantIDs: []string{"u1", "u2"},
	})
	require.NoError(t, err)
	return store, id
}

func addMessage(t *testing.T, store *repo.MemoryStore, convID string, at time.Time, kind string) model.Message {
	t.Helper()
	msg := &model.Message{
		ConversationID: convID,
		SenderID:       "u1",
		Text:           fmt.Sprintf("message at %s", at.Format(time.Kitchen)),
		Status:         model.MessageStatusSent,
		Metadata:       model.MessageMetadata{Kind: kind},
		CreatedAt:      at,
	}
	_, err := store.InsertMessage(context.Background(), msg)
	require.NoError(t, err)
	return *msg
}

func TestRangeToSummarizeIsIncremental(t *testing.T) {
	ctx := context.Background()
	store, convID := newStore(t)
	cache := NewCache(store, store, 0, zap.NewNop())

	var fifth model.Message
	for i := 1; i <= 5; i++ {
		fifth = addMessage(t, store, convID, base.Add(time.Duration(i)*time.Minute), "")
	}

	msgs, prev, err := cache.RangeToSummarize(ctx, convID)
	require.NoError(t, err)
	assert.Nil(t, prev)
	assert.Len(t, msgs, 5)

	_, err = cache.Record(ctx, convID, model.SummaryRecord{
		ID:           "s1",
		Text:         "five messages",
		MessageCount: 5,
		CutoffAt:     fifth.CreatedAt,
		GeneratedAt:  base.Add(10 * time.Minute),
	})
	require.NoError(t, err)

	// the summary message itself never counts as new content
	addMessage(t, store, convID, base.Add(11*time.Minute), model.MessageKindSummary)
	sixth := addMessage(t, store, convID, base.Add(12*time.Minute), "")
	seventh := addMessage(t, store, convID, base.Add(13*time.Minute), "")

	msgs, prev, err = cache.RangeToSummarize(ctx, convID)
	require.NoError(t, err)
	require.NotNil(t, prev)
	assert.Equal(t, "s1", prev.ID)
	require.Len(t, msgs, 2)
	assert.Equal(t, sixth.ID, msgs[0].ID)
	assert.Equal(t, seventh.ID, msgs[1].ID)
}

func TestRangeExcludesMessageAtCutoff(t *testing.T) {
	ctx := context.Background()
	store, convID := newStore(t)
	cache := NewCache(store, store, 0, zap.NewNop())

	at := base.Add(time.Minute)
	addMessage(t, store, convID, at, "")
	_, err := cache.Record(ctx, convID, model.SummaryRecord{ID: "s1", CutoffAt: at, GeneratedAt: at})
	require.NoError(t, err)

	msgs, _, err := cache.RangeToSummarize(ctx, convID)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestRecordCapsAndKeepsPointerInStep(t *testing.T) {
	ctx := context.Background()
	store, convID := newStore(t)
	cache := NewCache(store, store, 3, zap.NewNop())

	for i := 1; i <= 5; i++ {
		at := base.Add(time.Duration(i) * time.Hour)
		latest, err := cache.Record(ctx, convID, model.SummaryRecord{
			ID:          fmt.Sprintf("s%d", i),
			CutoffAt:    at,
			GeneratedAt: at,
		})
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("s%d", i), latest.ID)

		conv, err := store.GetConversation(ctx, convID)
		require.NoError(t, err)
		require.NotNil(t, conv.LatestSummary)
		assert.Equal(t, conv.Summaries[len(conv.Summaries)-1].ID, conv.LatestSummary.ID)
	}

	list, latest, err := cache.History(ctx, convID)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []string{"s3", "s4", "s5"}, []string{list[0].ID, list[1].ID, list[2].ID})
	assert.Equal(t, "s5", latest.ID)
}

func TestRecordDedupesByID(t *testing.T) {
	ctx := context.Background()
	store, convID := newStore(t)
	cache := NewCache(store, store, 0, zap.NewNop())

	_, err := cache.Record(ctx, convID, model.SummaryRecord{ID: "s1", Text: "first", CutoffAt: base})
	require.NoError(t, err)
	_, err = cache.Record(ctx, convID, model.SummaryRecord{ID: "s1", Text: "again", CutoffAt: base})
	require.NoError(t, err)

	list, latest, err := cache.History(ctx, convID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "again", latest.Text)
}

func TestRecordPersistenceFailure(t *testing.T) {
	ctx := context.Background()
	store, convID := newStore(t)
	cache := NewCache(store, store, 0, zap.NewNop())

	store.SetFailWrites(assert.AnError)
	_, err := cache.Record(ctx, convID, model.SummaryRecord{ID: "s1", CutoffAt: base})
	assert.ErrorIs(t, err, assert.AnError)

	store.SetFailWrites(nil)
	list, latest, err := cache.History(ctx, convID)
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Nil(t, latest)
}

func TestLatest(t *testing.T) {
	assert.Nil(t, Latest(nil))

	records := []model.SummaryRecord{
		{ID: "late-cutoff", CutoffAt: base.Add(2 * time.Hour), GeneratedAt: base},
		{ID: "late-generated", CutoffAt: base.Add(time.Hour), GeneratedAt: base.Add(5 * time.Hour)},
		{ID: "no-cutoff", GeneratedAt: base.Add(90 * time.Minute)},
	}
	assert.Equal(t, "late-cutoff", Latest(records).ID)

	records = append(records, model.SummaryRecord{ID: "no-cutoff-newer", GeneratedAt: base.Add(3 * time.Hour)})
	assert.Equal(t, "no-cutoff-newer", Latest(records).ID)

	tie := []model.SummaryRecord{
		{ID: "a", CutoffAt: base, GeneratedAt: base.Add(time.Minute)},
		{ID: "b", CutoffAt: base, GeneratedAt: base},
	}
	assert.Equal(t, "a", Latest(tie).ID)
}
