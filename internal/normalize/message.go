package normalize

import (
	"encoding/json"
	"errors"
	"strings"

	"NeuroBot/internal/model"
)

var ErrNotAnObject = errors.New("payload must be a JSON object")

// InboundMessage is the canonical shape of a send-message event once it has
// crossed the normalizer boundary.
type InboundMessage struct {
	ConversationID string
	Text           string
	Attachments    []model.Attachment
	ReplyTo        *string
	Mentions       []string
	ClientRef      string
}

// IsEmpty reports a message with neither text nor attachments.
func (m InboundMessage) IsEmpty() bool {
	return m.Text == "" && len(m.Attachments) == 0
}

// DecodeSendMessage reads a send-message payload field by field so a single
// malformed field never rejects the whole message. The only error is a
// payload that is not an object at all.
func DecodeSendMessage(raw json.RawMessage) (InboundMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return InboundMessage{}, ErrNotAnObject
	}

	msg := InboundMessage{
		ConversationID: looseString(fields["conversationId"]),
		Text:           strings.TrimSpace(looseString(fields["text"])),
		Attachments:    Attachments(json.RawMessage(fields["attachments"])),
		Mentions:       Mentions(fields["mentions"]),
		ClientRef:      looseString(fields["clientRef"]),
	}
	if reply := looseString(fields["replyTo"]); reply != "" {
		msg.ReplyTo = &reply
	}
	return msg, nil
}

// Mentions accepts a JSON array of ids, a single id, or a comma separated
// string, and returns unique non-empty ids in first-seen order.
func Mentions(raw json.RawMessage) []string {
	out := make([]string, 0)
	if len(raw) == 0 {
		return out
	}

	var list []any
	if err := json.Unmarshal(raw, &list); err != nil {
		list = []any{looseString(raw)}
	}

	seen := make(map[string]struct{})
	for _, item := range list {
		var ids []string
		switch v := item.(type) {
		case string:
			ids = strings.Split(v, ",")
		case float64:
			b, _ := json.Marshal(v)
			ids = []string{string(b)}
		}
		for _, id := range ids {
			id = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(id), "@"))
			if id == "" {
				continue
			}
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}

// looseString reads a JSON string or number; anything else is empty.
func looseString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}
