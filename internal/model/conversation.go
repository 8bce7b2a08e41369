package model

import (
	"slices"
	"time"
)

// Conversation represents a chat conversation/room in the durable store
type Conversation struct {
	ID             string          `json:"id" bson:"_id"`
	Name           string          `json:"name" bson:"name"`
	ParticipantIDs []string        `json:"participantIds" bson:"participant_ids"`
	AdminIDs       []string        `json:"adminIds" bson:"admin_ids"`
	CreatedBy      string          `json:"createdBy" bson:"created_by"`
	Summaries      []SummaryRecord `json:"summaries" bson:"summaries"`
	LatestSummary  *SummaryRecord  `json:"latestSummary" bson:"latest_summary"`
	LastMessage    *LastMessage    `json:"lastMessage" bson:"last_message"`
	CreatedAt      time.Time       `json:"createdAt" bson:"created_at"`
	UpdatedAt      time.Time       `json:"updatedAt" bson:"updated_at"`
}

// HasParticipant reports whether userID belongs to the conversation.
func (c *Conversation) HasParticipant(userID string) bool {
	return slices.Contains(c.ParticipantIDs, userID)
}

// LastMessage stores the most recent message preview
type LastMessage struct {
	MessageID string    `json:"messageId" bson:"message_id"`
	Text      string    `json:"text" bson:"text"`
	SenderID  string    `json:"senderId" bson:"sender_id"`
	SentAt    time.Time `json:"sentAt" bson:"sent_at"`
}
