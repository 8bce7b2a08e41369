package configuration

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix prefixes every environment override, e.g. NEUROBOT_AI_API_KEY.
const EnvPrefix = "NEUROBOT"

const (
	StorageMongo  = "mongo"
	StorageMemory = "memory"
)

type StorageConfig struct {
	Driver string `json:"driver" envconfig:"DRIVER"`
}

type MongoConfig struct {
	Uri                     string `json:"uri" envconfig:"URI"`
	Database                string `json:"database" envconfig:"DATABASE"`
	MessagesCollection      string `json:"messagesCollection" envconfig:"MESSAGES_COLLECTION"`
	ConversationsCollection string `json:"conversationsCollection" envconfig:"CONVERSATIONS_COLLECTION"`
	UsersCollection         string `json:"usersCollection" envconfig:"USERS_COLLECTION"`
}

type ServerConfig struct {
	AppPort        int      `json:"app_port" envconfig:"APP_PORT"`
	SocketPort     int      `json:"socket_port" envconfig:"SOCKET_PORT"`
	SocketRoute    string   `json:"socket_route" envconfig:"SOCKET_ROUTE"`
	AllowedOrigins []string `json:"allowed_origins" envconfig:"ALLOWED_ORIGINS"`
}

type AIConfig struct {
	BaseURL           string   `json:"baseUrl" envconfig:"BASE_URL"`
	APIKey            string   `json:"apiKey" envconfig:"API_KEY"`
	Model             string   `json:"model" envconfig:"MODEL"`
	FallbackModels    []string `json:"fallbackModels" envconfig:"FALLBACK_MODELS"`
	MaxConcurrent     int      `json:"maxConcurrent" envconfig:"MAX_CONCURRENT"`
	RatePerMinute     int      `json:"ratePerMinute" envconfig:"RATE_PER_MINUTE"`
	RetryDelayMs      int      `json:"retryDelayMs" envconfig:"RETRY_DELAY_MS"`
	TimeoutSeconds    int      `json:"timeoutSeconds" envconfig:"TIMEOUT_SECONDS"`
	SystemInstruction string   `json:"systemInstruction" envconfig:"SYSTEM_INSTRUCTION"`
	Temperature       float32  `json:"temperature" envconfig:"TEMPERATURE"`
	TopP              float32  `json:"topP" envconfig:"TOP_P"`
	MaxOutputTokens   int      `json:"maxOutputTokens" envconfig:"MAX_OUTPUT_TOKENS"`
}

func (c AIConfig) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelayMs) * time.Millisecond
}

func (c AIConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

type AssistantConfig struct {
	ID            string `json:"id" envconfig:"ID"`
	Name          string `json:"name" envconfig:"NAME"`
	MentionPrefix string `json:"mentionPrefix" envconfig:"MENTION_PREFIX"`
	ContextSize   int    `json:"contextSize" envconfig:"CONTEXT_SIZE"`
}

type SummaryConfig struct {
	MaxRetained int `json:"maxRetained" envconfig:"MAX_RETAINED"`
}

type LogConfig struct {
	Level       string `json:"level" envconfig:"LEVEL"`
	Development bool   `json:"development" envconfig:"DEVELOPMENT"`
}

type Config struct {
	Storage      StorageConfig   `json:"storage" envconfig:"STORAGE"`
	ChatDatabase MongoConfig     `json:"mongo" envconfig:"MONGO"`
	Server       ServerConfig    `json:"server" envconfig:"SERVER"`
	AI           AIConfig        `json:"ai" envconfig:"AI"`
	Assistant    AssistantConfig `json:"assistant" envconfig:"ASSISTANT"`
	Summary      SummaryConfig   `json:"summary" envconfig:"SUMMARY"`
	Log          LogConfig       `json:"log" envconfig:"LOG"`
}

// LoadConfig reads the JSON file at config_path, when given, then applies
// NEUROBOT_* environment overrides and fills defaults.
func LoadConfig(config_path string) (*Config, error) {
	var config Config

	if config_path != "" {
		file, err := os.ReadFile(config_path)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(file, &config); err != nil {
			return nil, fmt.Errorf("parse %s: %w", config_path, err)
		}
	}

	if err := envconfig.Process(EnvPrefix, &config); err != nil {
		return nil, fmt.Errorf("environment overrides: %w", err)
	}

	config.applyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Storage.Driver == "" {
		c.Storage.Driver = StorageMongo
	}
	if c.ChatDatabase.Database == "" {
		c.ChatDatabase.Database = "neurobot"
	}
	if c.ChatDatabase.MessagesCollection == "" {
		c.ChatDatabase.MessagesCollection = "messages"
	}
	if c.ChatDatabase.ConversationsCollection == "" {
		c.ChatDatabase.ConversationsCollection = "conversations"
	}
	if c.ChatDatabase.UsersCollection == "" {
		c.ChatDatabase.UsersCollection = "users"
	}
	if c.Server.AppPort == 0 {
		c.Server.AppPort = 8080
	}
	if c.Server.SocketPort == 0 {
		c.Server.SocketPort = 8081
	}
	if c.Server.SocketRoute == "" {
		c.Server.SocketRoute = "ws"
	}
	if c.AI.MaxConcurrent == 0 {
		c.AI.MaxConcurrent = 2
	}
	if c.AI.RatePerMinute == 0 {
		c.AI.RatePerMinute = 15
	}
	if c.AI.RetryDelayMs == 0 {
		c.AI.RetryDelayMs = 1000
	}
	if c.AI.TimeoutSeconds == 0 {
		c.AI.TimeoutSeconds = 60
	}
	if c.Assistant.ID == "" {
		c.Assistant.ID = "neurobot-assistant"
	}
	if c.Assistant.Name == "" {
		c.Assistant.Name = "NeuroBot"
	}
	if c.Assistant.MentionPrefix == "" {
		c.Assistant.MentionPrefix = "@ai"
	}
	if c.Assistant.ContextSize == 0 {
		c.Assistant.ContextSize = 10
	}
	if c.Summary.MaxRetained == 0 {
		c.Summary.MaxRetained = 20
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

func (c *Config) Validate() error {
	var errs []error
	switch c.Storage.Driver {
	case StorageMongo:
		if c.ChatDatabase.Uri == "" {
			errs = append(errs, errors.New("mongo.uri is required for the mongo storage driver"))
		}
	case StorageMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown storage driver %q", c.Storage.Driver))
	}
	if c.AI.MaxConcurrent < 0 || c.AI.RatePerMinute < 0 {
		errs = append(errs, errors.New("ai limits must be positive"))
	}
	if c.Assistant.ContextSize < 0 || c.Assistant.ContextSize > 10 {
		errs = append(errs, errors.New("assistant.contextSize must be between 1 and 10"))
	}
	return errors.Join(errs...)
}
