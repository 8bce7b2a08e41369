package dispatch

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// DefaultFallbackModels is tried after the configured and discovered models.
var DefaultFallbackModels = []string{
	"gpt-4o-mini",
	"gpt-4o",
	"gpt-4.1-mini",
	"gpt-3.5-turbo",
}

// modelHandle is the per-model state reused across requests.
type modelHandle struct {
	ID        string
	Config    GenerationConfig
	CreatedAt time.Time
}

// catalog assembles the ordered candidate chain and owns the model handles.
type catalog struct {
	configured string
	fallback   []string
	provider   Provider
	gen        GenerationConfig
	logger     *zap.Logger

	group singleflight.Group

	mu         sync.Mutex
	discovered []string // nil until the first successful, non-empty discovery
	handles    map[string]*modelHandle
}

func newCatalog(configured string, fallback []string, provider Provider, gen GenerationConfig, logger *zap.Logger) *catalog {
	return &catalog{
		configured: strings.TrimSpace(configured),
		fallback:   fallback,
		provider:   provider,
		gen:        gen,
		logger:     logger,
		handles:    make(map[string]*modelHandle),
	}
}

// Candidates returns configured, discovered and fallback models in that
// order with case-insensitive duplicates removed.
func (c *catalog) Candidates(ctx context.Context) []string {
	chain := make([]string, 0, 1+len(c.fallback))
	chain = append(chain, c.configured)
	chain = append(chain, c.discover(ctx)...)
	chain = append(chain, c.fallback...)
	return dedupeFold(chain)
}

func (c *catalog) discover(ctx context.Context) []string {
	c.mu.Lock()
	if c.discovered != nil {
		out := append([]string(nil), c.discovered...)
		c.mu.Unlock()
		return out
	}
	c.mu.Unlock()

	v, err, _ := c.group.Do("models", func() (any, error) {
		return c.provider.ListModels(ctx)
	})
	if err != nil {
		c.logger.Warn("model discovery failed", zap.Error(err))
		return nil
	}

	ids := dedupeFold(v.([]string))
	if len(ids) == 0 {
		return nil
	}

	c.mu.Lock()
	if c.discovered == nil {
		c.discovered = ids
		c.logger.Info("discovered upstream models", zap.Strings("models", ids))
	}
	c.mu.Unlock()
	return append([]string(nil), ids...)
}

func (c *catalog) handle(modelID string) *modelHandle {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := strings.ToLower(modelID)
	h, ok := c.handles[key]
	if !ok {
		h = &modelHandle{ID: modelID, Config: c.gen, CreatedAt: time.Now()}
		c.handles[key] = h
	}
	return h
}

func (c *catalog) evict(modelID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.handles, strings.ToLower(modelID))
}

func (c *catalog) hasHandle(modelID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.handles[strings.ToLower(modelID)]
	return ok
}

func dedupeFold(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		key := strings.ToLower(id)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, id)
	}
	return out
}
