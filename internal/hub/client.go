package hub

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"sync"
	"time"

	"NeuroBot/internal/event"
	"NeuroBot/internal/service"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type Client struct {
	id      string
	userID  string
	conn    *websocket.Conn
	manager *Hub
	egress  chan event.WsEvent
	inbound chan<- inboundMessage
	logger  *zap.Logger

	// cancel or stop goroutine
	cancel         context.CancelFunc
	ctx            context.Context
	once           sync.Once
	connClosed     chan struct{}
	connClosedOnce sync.Once
	closed         bool         // tracks if client is closed
	closedMu       sync.RWMutex // protects closed flag and egress close
}

var (
	// tuning parameters
	writeWait          = 10 * time.Second       // time allowed to write a message to the peer
	pongWait           = 20 * time.Second       // time allowed to read the next pong message from the peer
	pingInterval       = (pongWait * 9) / 10    // send pings to peer with this period
	maxMessageSize     = 64 * 1024              // max inbound message size (64KB)
	sendBufSize        = 256                    // per-connection outbound buffer size
	workerPoolSize     = 16                     // number of workers to process inbound messages
	inboundBufSize     = 256                    // per-worker inbound queue size
	kickOnFull         = true                   // when true, disconnect client when egress is full
	registerTimeout    = 5 * time.Second        // timeout for client registration
	unregisterTimeout  = 5 * time.Second        // timeout for client unregistration
	inboundSendTimeout = 500 * time.Millisecond // timeout for sending to inbound channel
)

// RegisterClient creates a new client with a single WebSocket connection
func RegisterClient(userID string, conn *websocket.Conn, h *Hub) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	clientID := uuid.New().String()

	client := &Client{
		id:         clientID,
		userID:     userID,
		conn:       conn,
		manager:    h,
		egress:     make(chan event.WsEvent, sendBufSize),
		inbound:    h.inboundFor(clientID),
		logger:     h.logger.With(zap.String("client_id", clientID), zap.String("user_id", userID)),
		cancel:     cancel,
		ctx:        ctx,
		connClosed: make(chan struct{}),
	}

	// the writer must be running before registration emits to the client
	go client.WriteMessage()

	select {
	case h.register <- client:
		go client.ReadMessages()
		client.logger.Info("client registered")
		return client
	case <-time.After(registerTimeout):
		client.logger.Warn("failed to register client: timeout")
		client.Close()
		return nil
	}
}

// ID identifies the connection in the presence registry.
func (c *Client) ID() string { return c.id }

func (c *Client) UserID() string { return c.userID }

// Emit queues an event without blocking. A full egress buffer counts as a
// slow consumer and the client is disconnected.
func (c *Client) Emit(name string, payload any) bool {
	ev := event.New(name, payload)

	c.closedMu.RLock()
	if c.closed {
		c.closedMu.RUnlock()
		return false
	}
	select {
	case c.egress <- ev:
		c.closedMu.RUnlock()
		return true
	default:
	}
	c.closedMu.RUnlock()

	droppedEvents.Inc()
	c.logger.Warn("egress full", zap.String("event", name))
	if kickOnFull {
		go c.kick()
	}
	return false
}

func (c *Client) kick() {
	select {
	case c.manager.unregister <- c:
	case <-time.After(unregisterTimeout):
		c.logger.Warn("failed to unregister client: timeout")
		c.Close()
	}
}

func (c *Client) sendError(ev string, err error, code string) {
	c.Emit(event.EventError, event.Error{Code: code, Message: err.Error(), Event: ev})
}

func (c *Client) ReadMessages() {
	defer func() {
		select {
		case c.manager.unregister <- c:
			// unregistered successfully
		case <-time.After(unregisterTimeout):
			c.logger.Warn("failed to unregister client: timeout")
		}
		c.Close()
	}()

	c.conn.SetReadLimit(int64(maxMessageSize))
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(c.pongHandler)

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
			var ev event.WsEvent

			if err := c.conn.ReadJSON(&ev); err != nil {
				if websocket.IsCloseError(err,
					websocket.CloseNormalClosure,
					websocket.CloseGoingAway,
					websocket.CloseAbnormalClosure,
				) {
					c.logger.Info("client disconnected")
					return
				}

				if ne, ok := err.(net.Error); ok && ne.Timeout() {
					c.logger.Info("client timed out, closing connection")
					return
				}

				// a frame that is not an envelope is reported, not fatal
				var syntaxErr *json.SyntaxError
				var typeErr *json.UnmarshalTypeError
				if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
					c.sendError("", err, service.CodeInvalidPayload)
					continue
				}

				c.logger.Warn("error reading from client", zap.Error(err))
				return
			}

			select {
			case c.inbound <- inboundMessage{client: c, event: ev}:
				// accepted for processing
			case <-time.After(inboundSendTimeout):
				c.logger.Warn("inbound send timeout: dropping client")
				c.cancel()
				c.conn.Close()
			case <-c.ctx.Done():
				return
			}
		}
	}
}

func (c *Client) WriteMessage() {
	ticker := time.NewTicker(pingInterval)

	defer func() {
		ticker.Stop()
		c.Close()
		_ = c.conn.Close()

		c.connClosedOnce.Do(func() {
			close(c.connClosed)
		})
	}()

	for {
		select {
		case <-c.ctx.Done():
			return
		case ev, ok := <-c.egress:
			if !ok {
				if err := c.conn.WriteMessage(websocket.CloseMessage, nil); err != nil {
					c.logger.Debug("connection closed", zap.Error(err))
				}
				return
			}

			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(ev); err != nil {
				c.logger.Warn("write error", zap.Error(err))
				return
			}
			sentEvents.WithLabelValues(ev.Event).Inc()
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.logger.Debug("ping failed", zap.Error(err))
				return
			}
		}
	}
}

func (c *Client) pongHandler(string) error {
	return c.conn.SetReadDeadline(time.Now().Add(pongWait))
}

func (c *Client) Close() {
	c.once.Do(func() {
		c.closedMu.Lock()
		c.closed = true
		close(c.egress)
		c.closedMu.Unlock()

		c.cancel()

		// Wait for WriteMessage to close conn, or force close after timeout
		go func() {
			select {
			case <-c.connClosed:
			case <-time.After(5 * time.Second):
				_ = c.conn.Close()
				c.logger.Warn("safety timeout: force closed connection")
			}
		}()
	})
}

// IsClosed returns true if the client has been closed
func (c *Client) IsClosed() bool {
	c.closedMu.RLock()
	defer c.closedMu.RUnlock()
	return c.closed
}
