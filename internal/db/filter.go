package db

import (
	"go.mongodb.org/mongo-driver/bson"
)

// FilterBuilder assembles the bson filters used by the message queries:
// equality on the owning conversation plus open ranges on time or status.
type FilterBuilder struct {
	filter bson.M
}

func NewFilter() *FilterBuilder {
	return &FilterBuilder{filter: bson.M{}}
}

func (f *FilterBuilder) Eq(field string, value any) *FilterBuilder {
	f.filter[field] = value
	return f
}

// Gt sets field > value, e.g. messages after a summary cutoff.
func (f *FilterBuilder) Gt(field string, value any) *FilterBuilder {
	return f.op(field, "$gt", value)
}

// Lt sets field < value, e.g. the forward-only status guard.
func (f *FilterBuilder) Lt(field string, value any) *FilterBuilder {
	return f.op(field, "$lt", value)
}

// op merges into an existing operator document so a field can carry both
// bounds of a range.
func (f *FilterBuilder) op(field, operator string, value any) *FilterBuilder {
	if cond, ok := f.filter[field].(bson.M); ok {
		cond[operator] = value
		return f
	}
	f.filter[field] = bson.M{operator: value}
	return f
}

func (f *FilterBuilder) Build() bson.M {
	return f.filter
}
