package delivery

import (
	"crypto/sha1"
	"encoding/binary"
	"sync"

	"NeuroBot/internal/presence"

	"go.uber.org/zap"
)

const (
	shardCount = 64 // conversations sharing a shard share a lock
)

// Fanout routes events to every live connection of a set of users.
type Fanout struct {
	registry presence.Registry
	shards   [shardCount]sync.Mutex
	logger   *zap.Logger
}

func NewFanout(registry presence.Registry, logger *zap.Logger) *Fanout {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fanout{
		registry: registry,
		logger:   logger,
	}
}

// Deliver emits payload tagged with event to every live connection of every
// participant and returns the number of connections that accepted it.
// Participants without connections are skipped. All emissions of one call
// happen under the conversation's lock, so deliveries on the same
// conversation never interleave.
func (f *Fanout) Deliver(conversationID string, participants []string, event string, payload any) int {
	mu := &f.shards[getShard(conversationID)]
	mu.Lock()
	defer mu.Unlock()

	delivered := 0
	seen := make(map[string]struct{}, len(participants))
	for _, userID := range participants {
		if _, dup := seen[userID]; dup {
			continue
		}
		seen[userID] = struct{}{}
		delivered += f.emitAll(userID, event, payload)
	}

	f.logger.Debug("fan-out complete",
		zap.String("conversation_id", conversationID),
		zap.String("event", event),
		zap.Int("participants", len(participants)),
		zap.Int("connections", delivered),
	)
	return delivered
}

// ToUser emits to the connections of a single user within the conversation's
// ordering domain.
func (f *Fanout) ToUser(conversationID, userID, event string, payload any) int {
	mu := &f.shards[getShard(conversationID)]
	mu.Lock()
	defer mu.Unlock()
	return f.emitAll(userID, event, payload)
}

// Broadcast emits to every online user. Used for presence changes, which
// belong to no conversation.
func (f *Fanout) Broadcast(event string, payload any, exceptUserID string) int {
	delivered := 0
	for _, userID := range f.registry.OnlineUsers() {
		if userID == exceptUserID {
			continue
		}
		delivered += f.emitAll(userID, event, payload)
	}
	return delivered
}

func (f *Fanout) emitAll(userID, event string, payload any) int {
	n := 0
	for _, conn := range f.registry.ConnectionsFor(userID) {
		if conn.Emit(event, payload) {
			n++
			continue
		}
		f.logger.Warn("connection rejected event",
			zap.String("user_id", userID),
			zap.String("connection_id", conn.ID()),
			zap.String("event", event),
		)
	}
	return n
}

func getShard(conversationID string) uint32 {
	if conversationID == "" {
		return 0
	}

	h := sha1.Sum([]byte(conversationID))
	return binary.BigEndian.Uint32(h[:4]) % shardCount
}
