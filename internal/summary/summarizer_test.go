package summary

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"NeuroBot/internal/dispatch"
	"NeuroBot/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeDispatcher struct {
	mu      sync.Mutex
	prompts []string
	err     error
	delay   time.Duration
}

func (d *fakeDispatcher) Submit(_ context.Context, req dispatch.Request) (dispatch.Result, error) {
	time.Sleep(d.delay)
	d.mu.Lock()
	defer d.mu.Unlock()
	d.prompts = append(d.prompts, req.Prompt)
	if d.err != nil {
		return dispatch.Result{}, d.err
	}
	return dispatch.Result{Text: "summary text", Model: "m1"}, nil
}

func (d *fakeDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.prompts)
}

func TestSummarizeRecordsCutoff(t *testing.T) {
	ctx := context.Background()
	store, convID := newStore(t)
	_, err := store.FindOrCreate(ctx, model.User{ID: "u1", DisplayName: "Ada"})
	require.NoError(t, err)

	addMessage(t, store, convID, base.Add(time.Minute), "")
	last := addMessage(t, store, convID, base.Add(2*time.Minute), "")

	d := &fakeDispatcher{}
	s := NewSummarizer(NewCache(store, store, 0, nil), store, d, zap.NewNop())

	rec, err := s.Summarize(ctx, Request{ConversationID: convID, RequestedBy: "u2", RequestedByName: "Bo"})
	require.NoError(t, err)
	assert.Equal(t, "summary text", rec.Text)
	assert.Equal(t, 2, rec.MessageCount)
	assert.True(t, rec.CutoffAt.Equal(last.CreatedAt))
	assert.True(t, rec.RangeStart.Equal(base.Add(time.Minute)))
	assert.Equal(t, "m1", rec.Model)
	assert.Equal(t, "u2", rec.RequestedBy)
	assert.Contains(t, d.prompts[0], "Ada: message at")

	_, err = s.Summarize(ctx, Request{ConversationID: convID})
	assert.ErrorIs(t, err, ErrNothingNew)
	assert.Equal(t, 1, d.count())

	addMessage(t, store, convID, base.Add(3*time.Minute), "")
	_, err = s.Summarize(ctx, Request{ConversationID: convID})
	require.NoError(t, err)
	assert.True(t, strings.Contains(d.prompts[1], "Earlier summary, for context:\nsummary text"))
}

func TestSummarizeSerializesPerConversation(t *testing.T) {
	ctx := context.Background()
	store, convID := newStore(t)
	addMessage(t, store, convID, base.Add(time.Minute), "")

	d := &fakeDispatcher{delay: 20 * time.Millisecond}
	s := NewSummarizer(NewCache(store, store, 0, nil), store, d, zap.NewNop())

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.Summarize(ctx, Request{ConversationID: convID})
		}(i)
	}
	wg.Wait()

	nothingNew := 0
	for _, err := range errs {
		if err != nil {
			assert.ErrorIs(t, err, ErrNothingNew)
			nothingNew++
		}
	}
	assert.Equal(t, 1, nothingNew)
	assert.Equal(t, 1, d.count())

	list, _, err := s.cache.History(ctx, convID)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestSummarizeDispatchFailureRecordsNothing(t *testing.T) {
	ctx := context.Background()
	store, convID := newStore(t)
	addMessage(t, store, convID, base.Add(time.Minute), "")

	d := &fakeDispatcher{err: &dispatch.Error{Category: dispatch.CategoryRateLimited}}
	s := NewSummarizer(NewCache(store, store, 0, nil), store, d, zap.NewNop())

	_, err := s.Summarize(ctx, Request{ConversationID: convID})
	assert.Equal(t, dispatch.CategoryRateLimited, dispatch.CategoryOf(err))

	list, latest, err := s.cache.History(ctx, convID)
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Nil(t, latest)
}
