package dispatch

import (
	"context"
	"strings"

	"NeuroBot/internal/model"
)

// Roles of a prior turn sent upstream
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// MaxContextMessages caps how much history goes upstream with a prompt.
const MaxContextMessages = 10

// Turn is one prior message in upstream form.
type Turn struct {
	Role string
	Text string
}

// GenerationConfig is passed through to the provider unchanged.
type GenerationConfig struct {
	SystemInstruction string  `json:"systemInstruction"`
	Temperature       float32 `json:"temperature"`
	TopP              float32 `json:"topP"`
	MaxOutputTokens   int     `json:"maxOutputTokens"`
}

// Provider is the upstream text-generation boundary. Errors should be
// *UpstreamError so they can be categorized.
type Provider interface {
	ListModels(ctx context.Context) ([]string, error)
	Generate(ctx context.Context, modelID string, history []Turn, prompt string, cfg GenerationConfig) (string, error)
}

// ShapeContext keeps the most recent limit messages, tags each as an
// assistant or user turn and drops the ones without text.
func ShapeContext(msgs []model.Message, assistantID string, limit int) []Turn {
	if limit <= 0 || limit > MaxContextMessages {
		limit = MaxContextMessages
	}
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}

	turns := make([]Turn, 0, len(msgs))
	for _, m := range msgs {
		text := strings.TrimSpace(m.Text)
		if text == "" {
			continue
		}
		role := RoleUser
		if assistantID != "" && m.SenderID == assistantID {
			role = RoleAssistant
		}
		turns = append(turns, Turn{Role: role, Text: text})
	}
	return turns
}
