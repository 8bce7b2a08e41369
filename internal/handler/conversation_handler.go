package handler

import (
	"errors"
	"net/http"
	"strconv"

	"NeuroBot/internal/dispatch"
	"NeuroBot/internal/service"
	"NeuroBot/internal/summary"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type ConversationHandler interface {
	GetMessages(c *gin.Context)
	GetSummaries(c *gin.Context)
	CreateSummary(c *gin.Context)
}

type conversationHandler struct {
	service service.ChatService
	logger  *zap.Logger
}

func NewConversationHandler(service service.ChatService, logger *zap.Logger) ConversationHandler {
	return &conversationHandler{
		service: service,
		logger:  logger,
	}
}

// GetMessages returns one page of a conversation's messages
// @Router /api/conversations/{id}/messages [get]
func (h *conversationHandler) GetMessages(c *gin.Context) {
	page := c.DefaultQuery("page", "1")
	pageNumber, err := strconv.ParseInt(page, 10, 64)
	if err != nil || pageNumber < 1 {
		respond(c, http.StatusBadRequest, nil, "Invalid page number")
		return
	}

	msgs, total, err := h.service.Messages(c.Request.Context(), c.Query("userId"), c.Param("id"), pageNumber)
	if err != nil {
		h.fail(c, err)
		return
	}

	respond(c, http.StatusOK, gin.H{
		"messages": msgs,
		"total":    total,
		"page":     pageNumber,
	}, "Messages retrieved successfully")
}

// GetSummaries returns the retained summaries and the latest one
// @Router /api/conversations/{id}/summaries [get]
func (h *conversationHandler) GetSummaries(c *gin.Context) {
	list, latest, err := h.service.Summaries(c.Request.Context(), c.Query("userId"), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}

	respond(c, http.StatusOK, gin.H{
		"summaries": list,
		"latest":    latest,
	}, "Summaries retrieved successfully")
}

// CreateSummary summarizes everything since the previous summary
// @Router /api/conversations/{id}/summaries [post]
func (h *conversationHandler) CreateSummary(c *gin.Context) {
	rec, err := h.service.RequestSummary(c.Request.Context(), c.Query("userId"), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusCreated, rec, "Summary generated")
}

func (h *conversationHandler) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("conversation request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}

	message := err.Error()
	var de *dispatch.Error
	if errors.As(err, &de) {
		message = de.UserMessage()
	}
	respond(c, status, gin.H{"code": service.ErrorCode(err)}, message)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidPayload):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrNotParticipant):
		return http.StatusForbidden
	case errors.Is(err, service.ErrUnknownConversation):
		return http.StatusNotFound
	case errors.Is(err, summary.ErrNothingNew):
		return http.StatusConflict
	}

	switch dispatch.CategoryOf(err) {
	case dispatch.CategoryNotConfigured:
		return http.StatusServiceUnavailable
	case dispatch.CategoryRateLimited:
		return http.StatusTooManyRequests
	case dispatch.CategoryModelUnavailable, dispatch.CategoryAuthFailure, dispatch.CategoryServerError:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// respond writes the common response envelope.
func respond(c *gin.Context, status int, body any, message string) {
	c.JSON(status, gin.H{
		"HttpStatusCode": status,
		"ResponseBody":   body,
		"IsSuccess":      status < http.StatusBadRequest,
		"Message":        message,
	})
}
