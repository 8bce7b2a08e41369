package service

import (
	"errors"

	"NeuroBot/internal/dispatch"
	"NeuroBot/internal/summary"
)

// Validation errors. They are reported to the requesting connection only.
var (
	ErrUnknownConversation = errors.New("conversation not found")
	ErrNotParticipant      = errors.New("user is not a participant of this conversation")
	ErrEmptyMessage        = errors.New("message has no text and no attachments")
	ErrInvalidPayload      = errors.New("invalid payload")
	ErrUnknownMessage      = errors.New("message not found")
)

// Error codes sent in the error event.
const (
	CodeUnknownConversation = "unknown_conversation"
	CodeNotParticipant      = "not_participant"
	CodeEmptyMessage        = "empty_message"
	CodeInvalidPayload      = "invalid_payload"
	CodeUnknownMessage      = "unknown_message"
	CodeNothingNew          = "nothing_new"
	CodeInternal            = "internal_error"
)

// ErrorCode maps a service error to its wire code.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrUnknownConversation):
		return CodeUnknownConversation
	case errors.Is(err, ErrNotParticipant):
		return CodeNotParticipant
	case errors.Is(err, ErrEmptyMessage):
		return CodeEmptyMessage
	case errors.Is(err, ErrInvalidPayload):
		return CodeInvalidPayload
	case errors.Is(err, ErrUnknownMessage):
		return CodeUnknownMessage
	case errors.Is(err, summary.ErrNothingNew):
		return CodeNothingNew
	}

	var de *dispatch.Error
	if errors.As(err, &de) {
		return "ai_" + string(de.Category)
	}
	return CodeInternal
}

// IsValidation reports errors caused by the request rather than the server.
func IsValidation(err error) bool {
	switch ErrorCode(err) {
	case CodeUnknownConversation, CodeNotParticipant, CodeEmptyMessage, CodeInvalidPayload, CodeUnknownMessage, CodeNothingNew:
		return true
	}
	return false
}
