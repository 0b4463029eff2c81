package observability

import "context"

// Tag is a key/value dimension attached to a metric sample.
type Tag struct {
	Key   string
	Value string
}

// T builds a Tag.
func T(key, value string) Tag {
	return Tag{Key: key, Value: value}
}

// Sink receives metrics and method enter/exit notifications.
//
// EnterMethod returns a context that must be handed to the matching
// ExitMethod call.
type Sink interface {
	RecordMetric(ctx context.Context, name string, value float64, tags ...Tag)
	EnterMethod(ctx context.Context, component, method string) context.Context
	ExitMethod(ctx context.Context, err error)
}

// NopSink discards everything.
type NopSink struct{}

var _ Sink = NopSink{}

func (NopSink) RecordMetric(context.Context, string, float64, ...Tag) {}

func (NopSink) EnterMethod(ctx context.Context, _, _ string) context.Context { return ctx }

func (NopSink) ExitMethod(context.Context, error) {}

// OrNop returns s, or NopSink when s is nil.
func OrNop(s Sink) Sink {
	if s == nil {
		return NopSink{}
	}
	return s
}
