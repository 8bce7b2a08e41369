package event

import (
	"encoding/json"

	"NeuroBot/internal/model"
)

// Inbound event types - client to server
const (
	EventSendMessage      = "message:send"
	EventMessageDelivered = "message:delivered"
	EventMessageSeen      = "message:seen"
	EventTyping           = "typing"
	EventSummaryRequest   = "summary:request"
)

// Outbound event types - server to client
const (
	EventConnectionEstablished = "connection:established"
	EventPresenceChanged       = "presence:changed"
	EventNewMessage            = "message:new"
	EventMessageStatus         = "message:status"
	EventSummaryReady          = "summary:ready"
	EventError                 = "error"
)

// WsEvent is the envelope exchanged over a websocket connection
type WsEvent struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// -----------------------------------------------------------------
// Client to Server payloads
// -----------------------------------------------------------------

// SendMessagePayload is the raw, untrusted shape of a new message.
// Attachments is left raw; it goes through the normalizer before use.
type SendMessagePayload struct {
	ConversationID string          `json:"conversationId"`
	Text           string          `json:"text"`
	Attachments    json.RawMessage `json:"attachments"`
	ReplyTo        *string         `json:"replyTo"`
	Mentions       json.RawMessage `json:"mentions"`
	ClientRef      string          `json:"clientRef,omitempty"` // echoed back so the sender can reconcile
}

// MessageAckPayload acknowledges delivery or viewing of a message
type MessageAckPayload struct {
	MessageID      string `json:"messageId"`
	ConversationID string `json:"conversationId"`
}

// TypingPayload toggles the typing indicator
type TypingPayload struct {
	ConversationID string `json:"conversationId"`
	IsTyping       bool   `json:"isTyping"`
}

// SummaryRequestPayload asks for an incremental summary
type SummaryRequestPayload struct {
	ConversationID string `json:"conversationId"`
}

// -----------------------------------------------------------------
// Server to Client payloads
// -----------------------------------------------------------------

// ConnectionEstablished is the first event sent on a new connection
type ConnectionEstablished struct {
	ConnectionID string   `json:"connectionId"`
	UserID       string   `json:"userId"`
	OnlineUsers  []string `json:"onlineUsers"`
}

// PresenceChanged is broadcast when a user goes online or offline
type PresenceChanged struct {
	UserID string `json:"userId"`
	Online bool   `json:"online"`
}

// NewMessage carries a stored message. ClientRef echoes the sender's
// reference so it can replace its optimistic copy.
type NewMessage struct {
	model.Message
	ClientRef string `json:"clientRef,omitempty"`
}

// MessageStatusChanged is sent to the sender of a message
type MessageStatusChanged struct {
	MessageID      string `json:"messageId"`
	ConversationID string `json:"conversationId"`
	Status         string `json:"status"`
	UpdatedAt      int64  `json:"updatedAt"`
}

// Typing is relayed to the other participants
type Typing struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
	IsTyping       bool   `json:"isTyping"`
}

// SummaryReady tells participants a new summary was recorded
type SummaryReady struct {
	ConversationID string `json:"conversationId"`
	SummaryID      string `json:"summaryId"`
	MessageCount   int    `json:"messageCount"`
}

// Error is sent only to the originating connection
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Event   string `json:"event,omitempty"`
}

// New builds an envelope from any payload. Marshal failures produce an
// envelope with a null payload.
func New(name string, payload any) WsEvent {
	raw, err := json.Marshal(payload)
	if err != nil {
		raw = json.RawMessage("null")
	}
	return WsEvent{Event: name, Payload: raw}
}
