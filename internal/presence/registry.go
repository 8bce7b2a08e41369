package presence

import (
	"sort"
	"sync"
)

// Connection is one live, bidirectional event channel owned by a user.
type Connection interface {
	ID() string
	// Emit enqueues the event without blocking. It returns false when the
	// connection is closed or cannot accept more events.
	Emit(event string, payload any) bool
}

// Registry maps user identities to their live connections.
type Registry interface {
	Register(userID string, conn Connection) (wentOnline bool)
	Unregister(userID string, conn Connection) (wentOffline bool)
	ConnectionsFor(userID string) []Connection
	IsOnline(userID string) bool
	OnlineUsers() []string
	Count() (users int, connections int)
}

type registry struct {
	mu    sync.RWMutex
	users map[string][]Connection // insertion ordered, unique by ID
}

// NewRegistry creates an empty in-process registry. One mutex guards the
// whole map since fan-out reads race with connect/disconnect writes.
func NewRegistry() Registry {
	return &registry{
		users: make(map[string][]Connection),
	}
}

func (r *registry) Register(userID string, conn Connection) bool {
	if userID == "" || conn == nil {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	conns, ok := r.users[userID]
	for _, c := range conns {
		if c.ID() == conn.ID() {
			return false
		}
	}

	r.users[userID] = append(conns, conn)
	return !ok
}

func (r *registry) Unregister(userID string, conn Connection) bool {
	if conn == nil {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	conns, ok := r.users[userID]
	if !ok {
		return false
	}

	idx := -1
	for i, c := range conns {
		if c.ID() == conn.ID() {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false
	}

	if len(conns) == 1 {
		delete(r.users, userID)
		return true
	}

	next := make([]Connection, 0, len(conns)-1)
	next = append(next, conns[:idx]...)
	next = append(next, conns[idx+1:]...)
	r.users[userID] = next
	return false
}

// ConnectionsFor returns a snapshot; callers may emit without holding the lock.
func (r *registry) ConnectionsFor(userID string) []Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := r.users[userID]
	if len(conns) == 0 {
		return nil
	}
	out := make([]Connection, len(conns))
	copy(out, conns)
	return out
}

func (r *registry) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.users[userID]
	return ok
}

func (r *registry) OnlineUsers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.users))
	for id := range r.users {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (r *registry) Count() (int, int) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	total := 0
	for _, conns := range r.users {
		total += len(conns)
	}
	return len(r.users), total
}
