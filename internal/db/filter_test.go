package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson"
)

func TestFilterBuilder(t *testing.T) {
	got := NewFilter().
		Eq("conversation_id", "c1").
		Gt("created_at", 5).
		Lt("status", 3).
		Build()

	assert.Equal(t, bson.M{
		"conversation_id": "c1",
		"created_at":      bson.M{"$gt": 5},
		"status":          bson.M{"$lt": 3},
	}, got)
}

func TestFilterBuilderRangeOnOneField(t *testing.T) {
	got := NewFilter().Gt("created_at", 1).Lt("created_at", 9).Build()
	assert.Equal(t, bson.M{"created_at": bson.M{"$gt": 1, "$lt": 9}}, got)
}

func TestNewObjectIDIsHex(t *testing.T) {
	id := NewObjectID()
	assert.Len(t, id, 24)
	assert.NotEqual(t, id, NewObjectID())
}
