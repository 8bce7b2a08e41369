package dispatch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Category groups upstream failures into the handful of cases a chat user
// can be told about.
type Category string

const (
	CategoryNotConfigured    Category = "not_configured"
	CategoryModelUnavailable Category = "model_unavailable"
	CategoryRateLimited      Category = "rate_limited"
	CategoryAuthFailure      Category = "auth_failure"
	CategoryServerError      Category = "server_error"
	CategoryUnknown          Category = "unknown"
)

var (
	ErrNotConfigured = errors.New("ai provider is not configured")
	ErrNoCandidates  = errors.New("no candidate models available")
	ErrQueueClosed   = errors.New("dispatch queue is closed")
)

var userMessages = map[Category]string{
	CategoryNotConfigured:    "The AI assistant is not configured on this server.",
	CategoryModelUnavailable: "The AI model is currently unavailable. Please try again later.",
	CategoryRateLimited:      "The AI assistant is receiving too many requests right now. Please wait a moment and try again.",
	CategoryAuthFailure:      "The AI assistant could not authenticate with its provider. Please contact an administrator.",
	CategoryServerError:      "The AI provider is having trouble right now. Please try again shortly.",
	CategoryUnknown:          "Something went wrong while generating a response. Please try again.",
}

// UserMessage returns the fixed user-facing text for a category.
func UserMessage(c Category) string {
	if msg, ok := userMessages[c]; ok {
		return msg
	}
	return userMessages[CategoryUnknown]
}

// UpstreamError is what a Provider returns for a failed call.
type UpstreamError struct {
	Status  int    // HTTP status, 0 when the request never got a response
	Code    string // provider error code, e.g. "model_not_found"
	Message string
	Err     error
}

func (e *UpstreamError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("upstream status %d (%s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("upstream status %d: %s", e.Status, e.Message)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// Error is the categorized failure handed back to callers of the queue.
type Error struct {
	Category Category
	Model    string
	Status   int
	Err      error
}

func (e *Error) Error() string {
	if e.Model != "" {
		return fmt.Sprintf("dispatch %s (model %s): %v", e.Category, e.Model, e.Err)
	}
	return fmt.Sprintf("dispatch %s: %v", e.Category, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// UserMessage is the text shown in the conversation instead of an answer.
func (e *Error) UserMessage() string { return UserMessage(e.Category) }

// CategoryOf returns the category of any error produced by the queue.
func CategoryOf(err error) Category {
	var de *Error
	if errors.As(err, &de) {
		return de.Category
	}
	return Classify(err, "").Category
}

// Classify maps an upstream failure to a category.
func Classify(err error, model string) *Error {
	var de *Error
	if errors.As(err, &de) {
		return de
	}

	out := &Error{Category: CategoryUnknown, Model: model, Err: err}
	if errors.Is(err, ErrNotConfigured) {
		out.Category = CategoryNotConfigured
		return out
	}
	if errors.Is(err, ErrNoCandidates) {
		out.Category = CategoryModelUnavailable
		return out
	}
	if errors.Is(err, context.DeadlineExceeded) {
		out.Category = CategoryServerError
		return out
	}

	var ue *UpstreamError
	if !errors.As(err, &ue) {
		return out
	}
	out.Status = ue.Status

	text := strings.ToLower(ue.Code + " " + ue.Message)
	switch {
	case ue.Status == http.StatusUnauthorized, ue.Status == http.StatusForbidden:
		out.Category = CategoryAuthFailure
	case ue.Status == http.StatusTooManyRequests, strings.Contains(text, "quota"), strings.Contains(text, "rate limit"):
		out.Category = CategoryRateLimited
	case ue.Status >= 500:
		out.Category = CategoryServerError
	case ue.Status == http.StatusNotFound, isModelMissing(text):
		out.Category = CategoryModelUnavailable
	}
	return out
}

// isModelMissing matches provider text that names the model as the missing
// piece; a bare "not found" could be about anything.
func isModelMissing(text string) bool {
	if strings.Contains(text, "model_not_found") {
		return true
	}
	if !strings.Contains(text, "model") {
		return false
	}
	for _, marker := range []string{"does not exist", "not found", "unsupported", "is not available", "not supported"} {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return false
}
