package configuration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"NeuroBot/internal/db"
	"NeuroBot/internal/delivery"
	"NeuroBot/internal/dispatch"
	"NeuroBot/internal/handler"
	"NeuroBot/internal/hub"
	"NeuroBot/internal/messagestate"
	"NeuroBot/internal/model"
	"NeuroBot/internal/presence"
	"NeuroBot/internal/repo"
	"NeuroBot/internal/service"
	"NeuroBot/internal/summary"

	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

type Container struct {
	ConversationHandler handler.ConversationHandler
	MonitorHandler      handler.MonitorHandler
	Hub                 *hub.Hub
	Queue               *dispatch.Queue
	Chat                service.ChatService
	Store               repo.Store
	Config              Config
	Logger              *zap.Logger

	// private - for cleanup
	mongoClient *mongo.Database
}

func NewLogger(cfg LogConfig) (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}

	zc := zap.NewProductionConfig()
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = level
	return zc.Build()
}

func BuildContainer(configPath string) (*Container, error) {
	config, err := LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := NewLogger(config.Log)
	if err != nil {
		return nil, err
	}
	logger.Info("config loaded",
		zap.String("storage", config.Storage.Driver),
		zap.Int("app_port", config.Server.AppPort),
		zap.Int("socket_port", config.Server.SocketPort),
		zap.String("ai_model", config.AI.Model),
		zap.Bool("ai_configured", config.AI.APIKey != ""),
	)

	c := &Container{Config: *config, Logger: logger}

	store, err := c.openStore()
	if err != nil {
		return nil, err
	}
	c.Store = store

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := store.Users.FindOrCreate(ctx, model.User{
		ID:          config.Assistant.ID,
		Username:    config.Assistant.ID,
		DisplayName: config.Assistant.Name,
		IsAssistant: true,
	}); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("ensure assistant user: %w", err)
	}

	provider, err := dispatch.NewOpenAIProvider(dispatch.OpenAIConfig{
		BaseURL: config.AI.BaseURL,
		APIKey:  config.AI.APIKey,
		Timeout: config.AI.Timeout(),
	})
	if err != nil {
		if !errors.Is(err, dispatch.ErrNotConfigured) {
			_ = c.Close()
			return nil, err
		}
		logger.Warn("ai provider not configured; assistant requests will report it")
	}

	c.Queue = dispatch.NewQueue(dispatch.Config{
		MaxConcurrent:      config.AI.MaxConcurrent,
		RatePerMinute:      config.AI.RatePerMinute,
		RetryDelay:         config.AI.RetryDelay(),
		MaxContextMessages: config.Assistant.ContextSize,
		AssistantID:        config.Assistant.ID,
		Model:              config.AI.Model,
		FallbackModels:     config.AI.FallbackModels,
		Generation: dispatch.GenerationConfig{
			SystemInstruction: config.AI.SystemInstruction,
			Temperature:       config.AI.Temperature,
			TopP:              config.AI.TopP,
			MaxOutputTokens:   config.AI.MaxOutputTokens,
		},
	}, provider, logger.Named("dispatch"))

	registry := presence.NewRegistry()
	fanout := delivery.NewFanout(registry, logger.Named("fanout"))
	machine := messagestate.NewMachine(store.Messages, fanout, registry, logger.Named("status"))
	cache := summary.NewCache(store.Conversations, store.Messages, config.Summary.MaxRetained, logger.Named("summary"))
	summarizer := summary.NewSummarizer(cache, store.Users, c.Queue, logger.Named("summary"))
	users := service.NewUserService(store.Users)

	c.Chat = service.NewChatService(store, users, fanout, machine, c.Queue, cache, summarizer, service.ChatConfig{
		AssistantID:   config.Assistant.ID,
		MentionPrefix: config.Assistant.MentionPrefix,
		ContextSize:   config.Assistant.ContextSize,
	}, logger.Named("chat"))

	c.Hub = hub.NewHub(hub.Config{AllowedOrigins: config.Server.AllowedOrigins}, registry, fanout, c.Chat, users, logger.Named("hub"))
	c.ConversationHandler = handler.NewConversationHandler(c.Chat, logger.Named("http"))
	c.MonitorHandler = handler.NewMonitorHandler(hub.NewMonitorService(c.Hub, c.Queue))

	return c, nil
}

func (c *Container) openStore() (repo.Store, error) {
	cfg := c.Config.ChatDatabase
	if c.Config.Storage.Driver == StorageMemory {
		c.Logger.Warn("using in-memory storage; data is lost on restart")
		return repo.NewMemoryStore().Store(), nil
	}

	con, err := db.OpenConnection(cfg.Uri, cfg.Database)
	if err != nil {
		return repo.Store{}, err
	}
	c.mongoClient = con

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := repo.EnsureMessageIndexes(ctx, con, cfg.MessagesCollection); err != nil {
		c.Logger.Warn("failed to ensure message indexes", zap.Error(err))
	}

	return repo.Store{
		Conversations: repo.NewConversationRepository(con, cfg.ConversationsCollection, c.Logger.Named("repo")),
		Messages:      repo.NewMessageRepository(con, cfg.MessagesCollection, c.Logger.Named("repo")),
		Users:         repo.NewUserRepository(con, cfg.UsersCollection),
	}, nil
}

// Close gracefully shuts down all connections
func (c *Container) Close() error {
	// Stop the hub first (closes all WebSocket connections)
	if c.Hub != nil {
		c.Hub.Stop()
	}

	// Queued assistant work is rejected, in-flight calls finish
	if c.Queue != nil {
		c.Queue.Close()
	}
	if c.Chat != nil {
		c.Chat.Close()
	}

	// Close MongoDB connection pool
	if c.mongoClient != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := c.mongoClient.Client().Disconnect(ctx); err != nil {
			return fmt.Errorf("failed to close MongoDB connection: %w", err)
		}
	}

	// Sync logger
	if c.Logger != nil {
		_ = c.Logger.Sync()
	}

	return nil
}
