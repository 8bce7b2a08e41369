package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageStatus is the delivery state of a message. Values are ordered so a
// transition is valid only when the target is strictly greater.
type MessageStatus int

const (
	MessageStatusUnknown   MessageStatus = 0
	MessageStatusSent      MessageStatus = 1
	MessageStatusDelivered MessageStatus = 2
	MessageStatusSeen      MessageStatus = 3
)

func (s MessageStatus) String() string {
	switch s {
	case MessageStatusSent:
		return "sent"
	case MessageStatusDelivered:
		return "delivered"
	case MessageStatusSeen:
		return "seen"
	default:
		return "unknown"
	}
}

// Valid reports whether s is one of the known states.
func (s MessageStatus) Valid() bool {
	return s >= MessageStatusSent && s <= MessageStatusSeen
}

// ParseMessageStatus maps the wire name back to a status.
func ParseMessageStatus(v string) (MessageStatus, error) {
	switch v {
	case "sent":
		return MessageStatusSent, nil
	case "delivered":
		return MessageStatusDelivered, nil
	case "seen":
		return MessageStatusSeen, nil
	}
	return MessageStatusUnknown, fmt.Errorf("unknown message status %q", v)
}

func (s MessageStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *MessageStatus) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		parsed, err := ParseMessageStatus(name)
		if err != nil {
			return err
		}
		*s = parsed
		return nil
	}

	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("message status must be a string or number: %w", err)
	}
	*s = MessageStatus(n)
	return nil
}

// Message kinds carried in metadata
const (
	MessageKindUser           = ""
	MessageKindAssistant      = "assistant"
	MessageKindAssistantError = "assistant_error"
	MessageKindSummary        = "summary"
)

// Message represents a chat message in the durable store
type Message struct {
	ID             string          `json:"id" bson:"_id"`
	ConversationID string          `json:"conversationId" bson:"conversation_id"`
	SenderID       string          `json:"senderId" bson:"sender_id"`
	Text           string          `json:"text" bson:"text"`
	Attachments    []Attachment    `json:"attachments" bson:"attachments"`
	ReplyTo        *string         `json:"replyTo" bson:"reply_to"`
	Mentions       []string        `json:"mentions" bson:"mentions"`
	Status         MessageStatus   `json:"status" bson:"status"`
	Metadata       MessageMetadata `json:"metadata" bson:"metadata"`
	CreatedAt      time.Time       `json:"createdAt" bson:"created_at"`
	UpdatedAt      time.Time       `json:"updatedAt" bson:"updated_at"`
}

// MessageMetadata tags assistant-authored and summary messages
type MessageMetadata struct {
	Kind          string `json:"kind,omitempty" bson:"kind,omitempty"`
	SummaryID     string `json:"summaryId,omitempty" bson:"summary_id,omitempty"`
	ErrorCategory string `json:"errorCategory,omitempty" bson:"error_category,omitempty"`
	Model         string `json:"model,omitempty" bson:"model,omitempty"`
}

// IsSummary reports whether the message carries a generated summary.
func (m *Message) IsSummary() bool {
	return m.Metadata.Kind == MessageKindSummary
}

// Attachment types accepted on the wire; anything else is stored as image.
const (
	AttachmentImage    = "image"
	AttachmentVideo    = "video"
	AttachmentAudio    = "audio"
	AttachmentFile     = "file"
	AttachmentDocument = "document"
)

// Attachment is a file reference carried by a message
type Attachment struct {
	URL  string `json:"url" bson:"url"`
	Type string `json:"type" bson:"type"`
	Name string `json:"name,omitempty" bson:"name,omitempty"`
}

// ErrorPayload represents an error response sent to client via WebSocket
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
