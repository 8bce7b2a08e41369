package model

import "time"

// SummaryRecord is one generated conversation summary
type SummaryRecord struct {
	ID              string    `json:"id" bson:"id"`
	Text            string    `json:"text" bson:"text"`
	MessageCount    int       `json:"messageCount" bson:"message_count"`
	GeneratedAt     time.Time `json:"generatedAt" bson:"generated_at"`
	RequestedBy     string    `json:"requestedBy" bson:"requested_by"`
	RequestedByName string    `json:"requestedByName" bson:"requested_by_name"`
	CutoffAt        time.Time `json:"cutoffAt" bson:"cutoff_at"`     // timestamp of the last covered message
	RangeStart      time.Time `json:"rangeStart" bson:"range_start"` // first covered message
	RangeEnd        time.Time `json:"rangeEnd" bson:"range_end"`
	RequestedAt     time.Time `json:"requestedAt" bson:"requested_at"`
	Model           string    `json:"model,omitempty" bson:"model,omitempty"`
}
