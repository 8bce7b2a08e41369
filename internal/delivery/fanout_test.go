package delivery

import (
	"sync"
	"testing"

	"NeuroBot/internal/presence"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type emitted struct {
	event   string
	payload any
}

type recordingConn struct {
	id     string
	mu     sync.Mutex
	events []emitted
	reject bool
}

func (c *recordingConn) ID() string { return c.id }

func (c *recordingConn) Emit(event string, payload any) bool {
	if c.reject {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, emitted{event, payload})
	return true
}

func (c *recordingConn) received() []emitted {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]emitted(nil), c.events...)
}

func TestDeliverReachesOnlyParticipantConnections(t *testing.T) {
	reg := presence.NewRegistry()
	u1a, u1b := &recordingConn{id: "u1a"}, &recordingConn{id: "u1b"}
	u2 := &recordingConn{id: "u2"}
	outsider := &recordingConn{id: "out"}
	reg.Register("u1", u1a)
	reg.Register("u1", u1b)
	reg.Register("u2", u2)
	reg.Register("u9", outsider)

	f := NewFanout(reg, zap.NewNop())
	n := f.Deliver("conv", []string{"u1", "u2", "u3"}, "message:new", "hello")

	assert.Equal(t, 3, n)
	for _, c := range []*recordingConn{u1a, u1b, u2} {
		got := c.received()
		require.Len(t, got, 1, c.id)
		assert.Equal(t, "message:new", got[0].event)
		assert.Equal(t, "hello", got[0].payload)
	}
	assert.Empty(t, outsider.received())
}

func TestDeliverOfflineParticipantIsSilent(t *testing.T) {
	f := NewFanout(presence.NewRegistry(), nil)
	assert.Zero(t, f.Deliver("conv", []string{"ghost"}, "message:new", nil))
}

func TestDeliverDeduplicatesParticipants(t *testing.T) {
	reg := presence.NewRegistry()
	c := &recordingConn{id: "c"}
	reg.Register("u1", c)

	f := NewFanout(reg, nil)
	f.Deliver("conv", []string{"u1", "u1"}, "e", 1)
	assert.Len(t, c.received(), 1)
}

func TestDeliverCountsRejectedConnections(t *testing.T) {
	reg := presence.NewRegistry()
	reg.Register("u1", &recordingConn{id: "full", reject: true})
	ok := &recordingConn{id: "ok"}
	reg.Register("u1", ok)

	f := NewFanout(reg, nil)
	assert.Equal(t, 1, f.Deliver("conv", []string{"u1"}, "e", 1))
	assert.Len(t, ok.received(), 1)
}

// Concurrent deliveries on one conversation serialize without losing events.
func TestDeliverIsAtomicPerConversation(t *testing.T) {
	reg := presence.NewRegistry()
	a := &recordingConn{id: "a"}
	reg.Register("u1", a)
	reg.Register("u2", &recordingConn{id: "b"})
	f := NewFanout(reg, nil)

	var wg sync.WaitGroup
	for g := 0; g < 2; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				f.Deliver("conv", []string{"u1", "u1", "u2"}, "e", g)
			}
		}(g)
	}
	wg.Wait()

	assert.Len(t, a.received(), 400)
}

func TestToUserAndBroadcast(t *testing.T) {
	reg := presence.NewRegistry()
	a, b := &recordingConn{id: "a"}, &recordingConn{id: "b"}
	reg.Register("u1", a)
	reg.Register("u2", b)
	f := NewFanout(reg, nil)

	assert.Equal(t, 1, f.ToUser("conv", "u1", "message:status", "x"))
	assert.Len(t, a.received(), 1)
	assert.Empty(t, b.received())

	assert.Equal(t, 1, f.Broadcast("presence:changed", "p", "u1"))
	assert.Len(t, b.received(), 1)
}
