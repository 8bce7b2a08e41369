package dispatch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
)

const defaultProviderTimeout = 60 * time.Second

// OpenAIConfig points the provider at any OpenAI-compatible endpoint.
type OpenAIConfig struct {
	BaseURL string        `json:"baseUrl"`
	APIKey  string        `json:"-"`
	Timeout time.Duration `json:"-"`
}

type openAIProvider struct {
	client *openai.Client
}

// NewOpenAIProvider returns ErrNotConfigured when no API key is set.
func NewOpenAIProvider(cfg OpenAIConfig) (Provider, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrNotConfigured
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultProviderTimeout
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	clientConfig.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	return &openAIProvider{client: openai.NewClientWithConfig(clientConfig)}, nil
}

// nonChatModels are substrings of model ids that cannot serve chat completions.
var nonChatModels = []string{"embedding", "whisper", "tts", "dall-e", "moderation", "davinci", "babbage", "transcribe", "image", "realtime"}

func (p *openAIProvider) ListModels(ctx context.Context) ([]string, error) {
	list, err := p.client.ListModels(ctx)
	if err != nil {
		return nil, upstreamError(err)
	}

	ids := make([]string, 0, len(list.Models))
	for _, m := range list.Models {
		if isChatModel(m.ID) {
			ids = append(ids, m.ID)
		}
	}
	return ids, nil
}

func isChatModel(id string) bool {
	lower := strings.ToLower(id)
	if lower == "" {
		return false
	}
	for _, marker := range nonChatModels {
		if strings.Contains(lower, marker) {
			return false
		}
	}
	return true
}

func (p *openAIProvider) Generate(ctx context.Context, modelID string, history []Turn, prompt string, cfg GenerationConfig) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(history)+2)
	if cfg.SystemInstruction != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: cfg.SystemInstruction,
		})
	}
	for _, t := range history {
		role := openai.ChatMessageRoleUser
		if t.Role == RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: t.Text})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: prompt,
	})

	req := openai.ChatCompletionRequest{
		Model:       modelID,
		Messages:    messages,
		Temperature: cfg.Temperature,
		TopP:        cfg.TopP,
		MaxTokens:   cfg.MaxOutputTokens,
	}

	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", upstreamError(err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", &UpstreamError{Status: http.StatusBadGateway, Message: "empty chat response"}
	}
	return resp.Choices[0].Message.Content, nil
}

// upstreamError converts go-openai errors so Classify can read the status
// and provider code.
func upstreamError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		code := ""
		if apiErr.Code != nil {
			code = fmt.Sprint(apiErr.Code)
		}
		return &UpstreamError{
			Status:  apiErr.HTTPStatusCode,
			Code:    code,
			Message: apiErr.Message,
			Err:     err,
		}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &UpstreamError{
			Status:  reqErr.HTTPStatusCode,
			Message: reqErr.Error(),
			Err:     err,
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &UpstreamError{Message: err.Error(), Err: err}
}
