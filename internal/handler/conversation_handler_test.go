package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"NeuroBot/internal/dispatch"
	"NeuroBot/internal/model"
	"NeuroBot/internal/service"
	"NeuroBot/internal/summary"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubChat struct {
	service.ChatService
	summaryErr error
	gotUser    string
	gotConv    string
}

func (s *stubChat) RequestSummary(_ context.Context, userID, conversationID string) (*model.SummaryRecord, error) {
	s.gotUser, s.gotConv = userID, conversationID
	if s.summaryErr != nil {
		return nil, s.summaryErr
	}
	return &model.SummaryRecord{ID: "s1", Text: "recap"}, nil
}

func (s *stubChat) Messages(context.Context, string, string, int64) ([]model.Message, int64, error) {
	return []model.Message{{ID: "m1"}}, 1, nil
}

type envelope struct {
	HttpStatusCode int
	ResponseBody   json.RawMessage
	IsSuccess      bool
	Message        string
}

func serve(t *testing.T, chat service.ChatService, method, target string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	h := NewConversationHandler(chat, zap.NewNop())
	r := gin.New()
	r.GET("/api/conversations/:id/messages", h.GetMessages)
	r.POST("/api/conversations/:id/summaries", h.CreateSummary)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(method, target, nil))

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return w, env
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{service.ErrInvalidPayload, http.StatusBadRequest},
		{fmt.Errorf("wrapped: %w", service.ErrNotParticipant), http.StatusForbidden},
		{service.ErrUnknownConversation, http.StatusNotFound},
		{summary.ErrNothingNew, http.StatusConflict},
		{&dispatch.Error{Category: dispatch.CategoryNotConfigured, Err: dispatch.ErrNotConfigured}, http.StatusServiceUnavailable},
		{&dispatch.Error{Category: dispatch.CategoryRateLimited}, http.StatusTooManyRequests},
		{&dispatch.Error{Category: dispatch.CategoryAuthFailure}, http.StatusBadGateway},
		{&dispatch.Error{Category: dispatch.CategoryModelUnavailable}, http.StatusBadGateway},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, statusFor(tc.err), tc.err.Error())
	}
}

func TestCreateSummaryEnvelope(t *testing.T) {
	chat := &stubChat{}
	w, env := serve(t, chat, http.MethodPost, "/api/conversations/c1/summaries?userId=alice")

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.True(t, env.IsSuccess)
	assert.Equal(t, http.StatusCreated, env.HttpStatusCode)
	assert.Equal(t, "alice", chat.gotUser)
	assert.Equal(t, "c1", chat.gotConv)

	var rec model.SummaryRecord
	require.NoError(t, json.Unmarshal(env.ResponseBody, &rec))
	assert.Equal(t, "recap", rec.Text)
}

func TestCreateSummaryNothingNew(t *testing.T) {
	w, env := serve(t, &stubChat{summaryErr: summary.ErrNothingNew}, http.MethodPost, "/api/conversations/c1/summaries?userId=alice")

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.False(t, env.IsSuccess)
	assert.JSONEq(t, `{"code":"nothing_new"}`, string(env.ResponseBody))
}

func TestCreateSummaryShowsAssistantMessage(t *testing.T) {
	err := &dispatch.Error{Category: dispatch.CategoryRateLimited, Err: errors.New("429")}
	w, env := serve(t, &stubChat{summaryErr: err}, http.MethodPost, "/api/conversations/c1/summaries?userId=alice")

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, dispatch.UserMessage(dispatch.CategoryRateLimited), env.Message)
	assert.JSONEq(t, `{"code":"ai_rate_limited"}`, string(env.ResponseBody))
}

func TestGetMessagesRejectsBadPage(t *testing.T) {
	w, env := serve(t, &stubChat{}, http.MethodGet, "/api/conversations/c1/messages?userId=alice&page=0")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid page number", env.Message)

	w, env = serve(t, &stubChat{}, http.MethodGet, "/api/conversations/c1/messages?userId=alice&page=2")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, env.IsSuccess)
}
