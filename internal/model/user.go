package model

import "time"

// User represents a user document in the durable store
type User struct {
	ID          string    `json:"id" bson:"_id"`
	Username    string    `json:"username" bson:"username"`
	DisplayName string    `json:"displayName" bson:"display_name"`
	Avatar      string    `json:"avatar" bson:"avatar"`
	IsAssistant bool      `json:"isAssistant" bson:"is_assistant"`
	CreatedAt   time.Time `json:"createdAt" bson:"created_at"`
}

// Name returns the best display label for the user.
func (u *User) Name() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.Username
}
