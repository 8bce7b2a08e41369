package dispatch

import (
	"context"
	"sort"
	"sync"
	"time"
)

type generateFunc func(modelID string, history []Turn, prompt string) (string, error)

type fakeProvider struct {
	mu        sync.Mutex
	models    []string
	listErr   error
	listCalls int
	gen       generateFunc
	calls     []string
	history   [][]Turn
}

func (p *fakeProvider) ListModels(ctx context.Context) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listCalls++
	return append([]string(nil), p.models...), p.listErr
}

func (p *fakeProvider) Generate(ctx context.Context, modelID string, history []Turn, prompt string, cfg GenerationConfig) (string, error) {
	p.mu.Lock()
	p.calls = append(p.calls, modelID)
	p.history = append(p.history, history)
	gen := p.gen
	p.mu.Unlock()

	if gen == nil {
		return "ok from " + modelID, nil
	}
	return gen(modelID, history, prompt)
}

func (p *fakeProvider) called() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

func (p *fakeProvider) listCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.listCalls
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Time
	fn      func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	was := !t.stopped
	t.stopped = true
	return was
}

// fakeClock fires timers only from Advance, in deadline order.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now.Add(d), fn: f}
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		sort.Slice(c.timers, func(i, j int) bool { return c.timers[i].at.Before(c.timers[j].at) })
		var next *fakeTimer
		for len(c.timers) > 0 {
			t := c.timers[0]
			if t.stopped {
				c.timers = c.timers[1:]
				continue
			}
			if t.at.After(target) {
				break
			}
			next = t
			c.timers = c.timers[1:]
			c.now = t.at
			t.stopped = true
			break
		}
		if next == nil {
			c.now = target
			c.mu.Unlock()
			return
		}
		c.mu.Unlock()
		next.fn()
	}
}

func (c *fakeClock) pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped {
			n++
		}
	}
	return n
}
