// Package hub owns the websocket transport: it upgrades connections,
// registers them in the presence registry and routes inbound events to the
// chat service through a worker pool. Events from one connection always
// land on the same worker, so they are handled in arrival order.
package hub

import (
	"context"
	"crypto/sha1"
	"encoding/binary"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"sync"
	"time"

	"NeuroBot/internal/delivery"
	"NeuroBot/internal/event"
	"NeuroBot/internal/normalize"
	"NeuroBot/internal/presence"
	"NeuroBot/internal/service"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const handlerTimeout = 30 * time.Second

type inboundMessage struct {
	event  event.WsEvent
	client *Client
}

type Config struct {
	AllowedOrigins []string
}

type Hub struct {
	registry presence.Registry
	fanout   *delivery.Fanout
	chat     service.ChatService
	users    service.UserService
	logger   *zap.Logger
	upgrader websocket.Upgrader

	register   chan *Client
	unregister chan *Client
	inbound    []chan inboundMessage
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	stopOnce   sync.Once
}

func NewHub(cfg Config, registry presence.Registry, fanout *delivery.Fanout, chat service.ChatService, users service.UserService, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		registry:   registry,
		fanout:     fanout,
		chat:       chat,
		users:      users,
		logger:     logger,
		register:   make(chan *Client, 1024),
		unregister: make(chan *Client, 1024),
		inbound:    make([]chan inboundMessage, workerPoolSize),
		ctx:        ctx,
		cancel:     cancel,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     checkOrigin(cfg.AllowedOrigins),
	}

	// run manager loop
	go h.run()

	// start worker loop, one queue per worker
	for i := range h.inbound {
		h.inbound[i] = make(chan inboundMessage, inboundBufSize)
		h.wg.Add(1)
		go func(queue <-chan inboundMessage) {
			defer h.wg.Done()
			for {
				select {
				case <-h.ctx.Done():
					return
				case in, ok := <-queue:
					if !ok {
						return
					}
					h.handleEvent(in.event, in.client)
				}
			}
		}(h.inbound[i])
	}

	return h
}

// inboundFor returns the worker queue that owns a connection.
func (h *Hub) inboundFor(clientID string) chan<- inboundMessage {
	sum := sha1.Sum([]byte(clientID))
	return h.inbound[binary.BigEndian.Uint32(sum[:4])%uint32(len(h.inbound))]
}

func (h *Hub) handleEvent(ev event.WsEvent, c *Client) {
	ctx, cancel := context.WithTimeout(h.ctx, handlerTimeout)
	defer cancel()

	inboundEvents.WithLabelValues(ev.Event).Inc()

	var err error
	switch ev.Event {
	case event.EventSendMessage:
		var in normalize.InboundMessage
		if in, err = normalize.DecodeSendMessage(ev.Payload); err != nil {
			err = errors.Join(service.ErrInvalidPayload, err)
			break
		}
		_, err = h.chat.SendMessage(ctx, c.userID, in)

	case event.EventMessageDelivered, event.EventMessageSeen:
		var ack event.MessageAckPayload
		if err = decode(ev.Payload, &ack); err != nil {
			break
		}
		if ev.Event == event.EventMessageSeen {
			err = h.chat.MarkSeen(ctx, c.userID, ack)
		} else {
			err = h.chat.MarkDelivered(ctx, c.userID, ack)
		}

	case event.EventTyping:
		var typing event.TypingPayload
		if err = decode(ev.Payload, &typing); err != nil {
			break
		}
		err = h.chat.Typing(ctx, c.userID, typing)

	case event.EventSummaryRequest:
		var req event.SummaryRequestPayload
		if err = decode(ev.Payload, &req); err != nil {
			break
		}
		_, err = h.chat.RequestSummary(ctx, c.userID, req.ConversationID)

	default:
		h.logger.Debug("unknown event type", zap.String("event", ev.Event))
		err = service.ErrInvalidPayload
	}

	if err == nil {
		return
	}

	code := service.ErrorCode(err)
	if !service.IsValidation(err) {
		h.logger.Error("event handling failed",
			zap.String("event", ev.Event),
			zap.String("user_id", c.userID),
			zap.String("code", code),
			zap.Error(err),
		)
	}
	c.sendError(ev.Event, err, code)
}

func decode(raw json.RawMessage, v any) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return errors.Join(service.ErrInvalidPayload, err)
	}
	return nil
}

func (h *Hub) addClient(c *Client) {
	wentOnline := h.registry.Register(c.userID, c)
	connectedClients.Inc()

	c.Emit(event.EventConnectionEstablished, event.ConnectionEstablished{
		ConnectionID: c.id,
		UserID:       c.userID,
		OnlineUsers:  h.registry.OnlineUsers(),
	})

	if wentOnline {
		h.fanout.Broadcast(event.EventPresenceChanged, event.PresenceChanged{UserID: c.userID, Online: true}, c.userID)
	}
}

func (h *Hub) removeClient(c *Client) {
	c.Close()

	present := slices.ContainsFunc(h.registry.ConnectionsFor(c.userID), func(p presence.Connection) bool {
		return p.ID() == c.id
	})
	if !present {
		return
	}
	connectedClients.Dec()

	if !h.registry.Unregister(c.userID, c) {
		h.logger.Debug("client removed, user still online", zap.String("client_id", c.id), zap.String("user_id", c.userID))
		return
	}

	h.fanout.Broadcast(event.EventPresenceChanged, event.PresenceChanged{UserID: c.userID, Online: false}, c.userID)
	h.logger.Info("user went offline", zap.String("user_id", c.userID))
}

func (h *Hub) run() {
	for {
		select {
		case <-h.ctx.Done():
			return
		case c := <-h.register:
			h.addClient(c)
		case c := <-h.unregister:
			h.removeClient(c)
		}
	}
}

func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		h.cancel()

		for _, userID := range h.registry.OnlineUsers() {
			for _, conn := range h.registry.ConnectionsFor(userID) {
				if c, ok := conn.(*Client); ok {
					c.Close()
				}
				h.registry.Unregister(userID, conn)
			}
		}
		connectedClients.Set(0)

		h.wg.Wait()
	})
}

func checkOrigin(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(allowed) == 0 {
			return true
		}
		for _, a := range allowed {
			if a == "*" || a == origin {
				return true
			}
		}
		return false
	}
}

// ServeWS upgrades the request and registers the connection for userID.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, userID string) {
	if _, err := h.users.EnsureUser(r.Context(), userID); err != nil {
		h.logger.Error("failed to load user", zap.String("user_id", userID), zap.Error(err))
		http.Error(w, "unable to load user", http.StatusInternalServerError)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	RegisterClient(userID, conn, h)
}
