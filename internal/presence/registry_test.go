package presence

import (
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct{ id string }

func (f *fakeConn) ID() string { return f.id }
func (f *fakeConn) Emit(string, any) bool { return true }

func TestRegisterReportsFirstConnectionOnly(t *testing.T) {
	r := NewRegistry()
	a, b := &fakeConn{"a"}, &fakeConn{"b"}

	assert.True(t, r.Register("u1", a))
	assert.False(t, r.Register("u1", b))
	assert.False(t, r.Register("u1", a), "duplicate register is a no-op")

	conns := r.ConnectionsFor("u1")
	require.Len(t, conns, 2)
	assert.Equal(t, "a", conns[0].ID())
	assert.Equal(t, "b", conns[1].ID())
}

func TestUnregisterReportsOfflineExactlyOnce(t *testing.T) {
	r := NewRegistry()
	a, b := &fakeConn{"a"}, &fakeConn{"b"}
	r.Register("u1", a)
	r.Register("u1", b)

	assert.False(t, r.Unregister("u1", a))
	assert.True(t, r.IsOnline("u1"))
	assert.True(t, r.Unregister("u1", b))
	assert.False(t, r.IsOnline("u1"))

	assert.False(t, r.Unregister("u1", b), "duplicate unregister is a no-op")
	assert.False(t, r.Unregister("u1", a))
	assert.Empty(t, r.ConnectionsFor("u1"))
}

func TestUnregisterUnknownConnectionKeepsEntry(t *testing.T) {
	r := NewRegistry()
	r.Register("u1", &fakeConn{"a"})

	assert.False(t, r.Unregister("u1", &fakeConn{"zzz"}))
	assert.False(t, r.Unregister("u2", &fakeConn{"a"}))
	assert.True(t, r.IsOnline("u1"))
}

// Random register/unregister sequences must keep presence equal to count > 0.
func TestPresenceMatchesLiveCount(t *testing.T) {
	r := NewRegistry()
	rng := rand.New(rand.NewSource(7))
	live := map[string]map[string]bool{}
	users := []string{"u1", "u2", "u3"}

	for i := 0; i < 2000; i++ {
		u := users[rng.Intn(len(users))]
		c := &fakeConn{fmt.Sprintf("c%d", rng.Intn(4))}
		if live[u] == nil {
			live[u] = map[string]bool{}
		}

		if rng.Intn(2) == 0 {
			wasEmpty := len(live[u]) == 0
			already := live[u][c.id]
			online := r.Register(u, c)
			live[u][c.id] = true
			assert.Equal(t, wasEmpty && !already, online)
		} else {
			had := live[u][c.id]
			offline := r.Unregister(u, c)
			delete(live[u], c.id)
			assert.Equal(t, had && len(live[u]) == 0, offline)
		}

		for _, id := range users {
			assert.Equal(t, len(live[id]) > 0, r.IsOnline(id))
			assert.Len(t, r.ConnectionsFor(id), len(live[id]))
		}
	}
}

func TestConcurrentRegisterUnregister(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c := &fakeConn{fmt.Sprintf("c%d", i)}
			user := fmt.Sprintf("u%d", i%5)
			r.Register(user, c)
			_ = r.ConnectionsFor(user)
			r.Unregister(user, c)
		}(i)
	}
	wg.Wait()

	users, conns := r.Count()
	assert.Zero(t, users)
	assert.Zero(t, conns)
	assert.Empty(t, r.OnlineUsers())
}
