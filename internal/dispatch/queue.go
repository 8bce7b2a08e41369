// Package dispatch guards the upstream text-generation provider: requests
// wait in a FIFO queue, at most MaxConcurrent run at once, at most
// RatePerMinute start in any trailing window, and each request walks an
// ordered chain of candidate models.
package dispatch

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"NeuroBot/internal/model"

	"go.uber.org/zap"
)

const (
	defaultMaxConcurrent = 2
	defaultRatePerMinute = 15
	defaultWindow        = time.Minute
	defaultRetryDelay    = time.Second
)

type Config struct {
	MaxConcurrent      int              `json:"maxConcurrent"`
	RatePerMinute      int              `json:"ratePerMinute"`
	Window             time.Duration    `json:"-"`
	RetryDelay         time.Duration    `json:"-"`
	MaxContextMessages int              `json:"maxContextMessages"`
	AssistantID        string           `json:"assistantId"`
	Model              string           `json:"model"`
	FallbackModels     []string         `json:"fallbackModels"`
	Generation         GenerationConfig `json:"generation"`
}

func (c *Config) applyDefaults() {
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = defaultMaxConcurrent
	}
	if c.RatePerMinute <= 0 {
		c.RatePerMinute = defaultRatePerMinute
	}
	if c.Window <= 0 {
		c.Window = defaultWindow
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = defaultRetryDelay
	}
	if c.MaxContextMessages <= 0 || c.MaxContextMessages > MaxContextMessages {
		c.MaxContextMessages = MaxContextMessages
	}
	if c.FallbackModels == nil {
		c.FallbackModels = DefaultFallbackModels
	}
}

// Request is one unit of work for the upstream provider.
type Request struct {
	ConversationID string
	Prompt         string
	Context        []model.Message
}

// Result is a successful generation.
type Result struct {
	Text  string
	Model string
}

type outcome struct {
	res Result
	err error
}

// job is a Request plus its completion handle; it settles exactly once.
type job struct {
	req  Request
	done chan outcome
	once sync.Once
}

func (j *job) settle(res Result, err error) {
	j.once.Do(func() {
		j.done <- outcome{res: res, err: err}
	})
}

type Option func(*Queue)

// WithClock replaces the wall clock, for tests.
func WithClock(c Clock) Option {
	return func(q *Queue) {
		q.clock = c
	}
}

type Queue struct {
	cfg      Config
	provider Provider
	catalog  *catalog
	clock    Clock
	logger   *zap.Logger

	mu       sync.Mutex
	pending  []*job
	inFlight int
	starts   []time.Time // start times inside the window, oldest first
	recheck  Timer
	closed   bool
	wg       sync.WaitGroup
}

// NewQueue builds a queue. A nil provider is allowed: every request then
// fails with CategoryNotConfigured.
func NewQueue(cfg Config, provider Provider, logger *zap.Logger, opts ...Option) *Queue {
	cfg.applyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}

	q := &Queue{
		cfg:      cfg,
		provider: provider,
		clock:    realClock{},
		logger:   logger,
	}
	if provider != nil {
		q.catalog = newCatalog(cfg.Model, cfg.FallbackModels, provider, cfg.Generation, logger)
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Submit enqueues req and waits for its result. Returning early because ctx
// ended does not cancel the request; it still runs to completion.
func (q *Queue) Submit(ctx context.Context, req Request) (Result, error) {
	j := q.enqueue(req)
	select {
	case o := <-j.done:
		return o.res, o.err
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

func (q *Queue) enqueue(req Request) *job {
	j := &job{req: req, done: make(chan outcome, 1)}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		j.settle(Result{}, &Error{Category: CategoryUnknown, Err: ErrQueueClosed})
		return j
	}
	q.pending = append(q.pending, j)
	queueDepth.Inc()
	q.mu.Unlock()

	q.pump()
	return j
}

// pump starts as many queued requests as the concurrency cap and the rate
// window allow.
func (q *Queue) pump() {
	q.mu.Lock()
	defer q.mu.Unlock()

	for !q.closed && q.inFlight < q.cfg.MaxConcurrent && len(q.pending) > 0 {
		now := q.clock.Now()
		q.pruneLocked(now)
		if len(q.starts) >= q.cfg.RatePerMinute {
			q.deferLocked(now)
			return
		}

		j := q.pending[0]
		q.pending[0] = nil
		q.pending = q.pending[1:]
		q.inFlight++
		q.starts = append(q.starts, now)

		queueDepth.Dec()
		inFlightGauge.Inc()
		startedTotal.Inc()

		q.wg.Add(1)
		go q.run(j)
	}
}

func (q *Queue) pruneLocked(now time.Time) {
	cut := 0
	for cut < len(q.starts) && now.Sub(q.starts[cut]) >= q.cfg.Window {
		cut++
	}
	if cut > 0 {
		q.starts = append(q.starts[:0], q.starts[cut:]...)
	}
}

// deferLocked schedules a single re-check. It fires after RetryDelay, or
// sooner if the oldest start leaves the window first.
func (q *Queue) deferLocked(now time.Time) {
	if q.recheck != nil {
		return
	}

	delay := q.cfg.RetryDelay
	if free := q.starts[0].Add(q.cfg.Window).Sub(now); free > 0 && free < delay {
		delay = free
	}

	deferredTotal.Inc()
	q.logger.Debug("rate window full, deferring dispatch",
		zap.Int("queued", len(q.pending)),
		zap.Duration("delay", delay),
	)

	q.recheck = q.clock.AfterFunc(delay, func() {
		q.mu.Lock()
		q.recheck = nil
		q.mu.Unlock()
		q.pump()
	})
}

func (q *Queue) run(j *job) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("dispatch worker panic", zap.Any("panic", r))
			j.settle(Result{}, &Error{Category: CategoryUnknown, Err: fmt.Errorf("panic: %v", r)})
		}

		q.mu.Lock()
		q.inFlight--
		q.mu.Unlock()
		inFlightGauge.Dec()
		q.wg.Done()
		q.pump()
	}()

	res, err := q.generate(context.Background(), j.req)
	if err != nil {
		completedTotal.WithLabelValues(string(CategoryOf(err))).Inc()
		j.settle(Result{}, err)
		return
	}
	completedTotal.WithLabelValues("ok").Inc()
	j.settle(res, nil)
}

// generate walks the candidate chain. Model-unavailable moves on to the
// next candidate; every other error ends the request.
func (q *Queue) generate(ctx context.Context, req Request) (Result, error) {
	if q.provider == nil {
		return Result{}, &Error{Category: CategoryNotConfigured, Err: ErrNotConfigured}
	}

	turns := ShapeContext(req.Context, q.cfg.AssistantID, q.cfg.MaxContextMessages)
	candidates := q.catalog.Candidates(ctx)

	var lastErr *Error
	for _, modelID := range candidates {
		h := q.catalog.handle(modelID)
		text, err := q.provider.Generate(ctx, h.ID, turns, req.Prompt, h.Config)
		if err == nil {
			q.logger.Debug("generation succeeded",
				zap.String("conversation_id", req.ConversationID),
				zap.String("model", modelID),
			)
			return Result{Text: strings.TrimSpace(text), Model: modelID}, nil
		}

		lastErr = Classify(err, modelID)
		if lastErr.Category != CategoryModelUnavailable {
			q.logger.Warn("generation failed",
				zap.String("conversation_id", req.ConversationID),
				zap.String("model", modelID),
				zap.String("category", string(lastErr.Category)),
				zap.Error(err),
			)
			return Result{}, lastErr
		}

		q.catalog.evict(modelID)
		fallbackTotal.WithLabelValues(modelID).Inc()
		q.logger.Info("model unavailable, trying next candidate",
			zap.String("model", modelID),
			zap.Error(err),
		)
	}

	if lastErr == nil {
		return Result{}, &Error{Category: CategoryModelUnavailable, Err: ErrNoCandidates}
	}
	return Result{}, lastErr
}

// HasModelHandle reports whether a cached handle exists for the model.
func (q *Queue) HasModelHandle(modelID string) bool {
	if q.catalog == nil {
		return false
	}
	return q.catalog.hasHandle(modelID)
}

// Snapshot reports the queue state for the monitor endpoint.
func (q *Queue) Snapshot() model.DispatchStats {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.pruneLocked(q.clock.Now())
	return model.DispatchStats{
		Queued:        len(q.pending),
		InFlight:      q.inFlight,
		WindowStarts:  len(q.starts),
		MaxConcurrent: q.cfg.MaxConcurrent,
		RatePerMinute: q.cfg.RatePerMinute,
	}
}

// Close rejects everything still queued and waits for in-flight requests.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	if q.recheck != nil {
		q.recheck.Stop()
		q.recheck = nil
	}
	pending := q.pending
	q.pending = nil
	q.mu.Unlock()

	for _, j := range pending {
		queueDepth.Dec()
		j.settle(Result{}, &Error{Category: CategoryUnknown, Err: ErrQueueClosed})
	}
	q.wg.Wait()
}
