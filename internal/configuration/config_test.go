package configuration

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("NEUROBOT_STORAGE_DRIVER", "memory")

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, StorageMemory, cfg.Storage.Driver)
	assert.Equal(t, 2, cfg.AI.MaxConcurrent)
	assert.Equal(t, 15, cfg.AI.RatePerMinute)
	assert.Equal(t, "@ai", cfg.Assistant.MentionPrefix)
	assert.Equal(t, 20, cfg.Summary.MaxRetained)
	assert.Equal(t, "messages", cfg.ChatDatabase.MessagesCollection)
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `{
		"storage": {"driver": "mongo"},
		"mongo": {"uri": "mongodb://file:27017", "database": "chat"},
		"server": {"app_port": 9000, "allowed_origins": ["http://localhost:4200"]},
		"ai": {"model": "gpt-4o", "ratePerMinute": 30}
	}`)
	t.Setenv("NEUROBOT_MONGO_URI", "mongodb://env:27017")
	t.Setenv("NEUROBOT_AI_API_KEY", "secret")
	t.Setenv("NEUROBOT_AI_FALLBACK_MODELS", "a,b")
	t.Setenv("NEUROBOT_SERVER_ALLOWED_ORIGINS", "https://one.test,https://two.test")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "mongodb://env:27017", cfg.ChatDatabase.Uri)
	assert.Equal(t, "chat", cfg.ChatDatabase.Database)
	assert.Equal(t, 9000, cfg.Server.AppPort)
	assert.Equal(t, []string{"https://one.test", "https://two.test"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "secret", cfg.AI.APIKey)
	assert.Equal(t, "gpt-4o", cfg.AI.Model)
	assert.Equal(t, 30, cfg.AI.RatePerMinute)
	assert.Equal(t, []string{"a", "b"}, cfg.AI.FallbackModels)
}

func TestValidate(t *testing.T) {
	t.Setenv("NEUROBOT_STORAGE_DRIVER", "mongo")
	_, err := LoadConfig("")
	assert.ErrorContains(t, err, "mongo.uri")

	t.Setenv("NEUROBOT_STORAGE_DRIVER", "sqlite")
	_, err = LoadConfig("")
	assert.ErrorContains(t, err, "unknown storage driver")
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.json"))
	assert.Error(t, err)
}
