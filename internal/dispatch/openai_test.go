package dispatch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/models", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data": []map[string]any{
				{"id": "gpt-4o", "object": "model"},
				{"id": "text-embedding-3-small", "object": "model"},
				{"id": "whisper-1", "object": "model"},
				{"id": "local-chat", "object": "model"},
			},
		})
	})
	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		w.Header().Set("Content-Type", "application/json")

		switch req.Model {
		case "missing":
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{
				"message": "The model `missing` does not exist",
				"type":    "invalid_request_error",
				"code":    "model_not_found",
			}})
		case "limited":
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{
				"message": "Rate limit reached",
				"type":    "requests",
			}})
		case "empty":
			_ = json.NewEncoder(w).Encode(map[string]any{"id": "x", "choices": []any{}})
		default:
			last := req.Messages[len(req.Messages)-1]
			_ = json.NewEncoder(w).Encode(map[string]any{
				"id": "x",
				"choices": []map[string]any{{
					"index":   0,
					"message": map[string]any{"role": "assistant", "content": "echo " + last.Content + " roles " + rolesOf(req.Messages)},
				}},
			})
		}
	})
	return httptest.NewServer(mux)
}

func rolesOf(msgs []struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}) string {
	out := ""
	for _, m := range msgs {
		out += m.Role[:1]
	}
	return out
}

func TestOpenAIProviderRequiresKey(t *testing.T) {
	_, err := NewOpenAIProvider(OpenAIConfig{BaseURL: "http://localhost"})
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestOpenAIProvider(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()

	p, err := NewOpenAIProvider(OpenAIConfig{BaseURL: srv.URL + "/v1/", APIKey: "test"})
	require.NoError(t, err)
	ctx := context.Background()

	models, err := p.ListModels(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"gpt-4o", "local-chat"}, models)

	text, err := p.Generate(ctx, "gpt-4o",
		[]Turn{{Role: RoleUser, Text: "a"}, {Role: RoleAssistant, Text: "b"}},
		"hello", GenerationConfig{SystemInstruction: "be brief"})
	require.NoError(t, err)
	assert.Equal(t, "echo hello roles suau", text)

	_, err = p.Generate(ctx, "missing", nil, "hello", GenerationConfig{})
	require.Error(t, err)
	assert.Equal(t, CategoryModelUnavailable, Classify(err, "missing").Category)

	_, err = p.Generate(ctx, "limited", nil, "hello", GenerationConfig{})
	assert.Equal(t, CategoryRateLimited, Classify(err, "limited").Category)

	_, err = p.Generate(ctx, "empty", nil, "hello", GenerationConfig{})
	assert.Equal(t, CategoryServerError, Classify(err, "empty").Category)
}
