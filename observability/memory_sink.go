package observability

import (
	"context"
	"sync"
)

// Measurement is one sample captured by MemorySink.
type Measurement struct {
	Name  string
	Value float64
	Tags  map[string]string
}

// MethodCall is one EnterMethod/ExitMethod pair captured by MemorySink.
type MethodCall struct {
	Component string
	Method    string
	Err       error
}

// MemorySink keeps every sample in memory. Intended for tests.
type MemorySink struct {
	mu           sync.Mutex
	measurements []Measurement
	calls        []MethodCall
}

var _ Sink = (*MemorySink)(nil)

// NewMemorySink creates an empty MemorySink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) RecordMetric(_ context.Context, name string, value float64, tags ...Tag) {
	m := Measurement{Name: name, Value: value, Tags: make(map[string]string, len(tags))}
	for _, t := range tags {
		m.Tags[t.Key] = t.Value
	}
	s.mu.Lock()
	s.measurements = append(s.measurements, m)
	s.mu.Unlock()
}

func (s *MemorySink) EnterMethod(ctx context.Context, component, method string) context.Context {
	return withMethodFrame(ctx, component, method)
}

func (s *MemorySink) ExitMethod(ctx context.Context, err error) {
	frame := methodFrameFromContext(ctx)
	if frame == nil {
		return
	}
	s.mu.Lock()
	s.calls = append(s.calls, MethodCall{Component: frame.Component, Method: frame.Method, Err: err})
	s.mu.Unlock()
}

// Measurements returns the samples recorded under name, in order.
func (s *MemorySink) Measurements(name string) []Measurement {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Measurement
	for _, m := range s.measurements {
		if m.Name == name {
			out = append(out, m)
		}
	}
	return out
}

// Count returns how many samples named name carry tag key=value.
// An empty key counts every sample of that name.
func (s *MemorySink) Count(name, key, value string) int {
	n := 0
	for _, m := range s.Measurements(name) {
		if key == "" || m.Tags[key] == value {
			n++
		}
	}
	return n
}

// Calls returns the completed method calls, in order.
func (s *MemorySink) Calls() []MethodCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]MethodCall(nil), s.calls...)
}

// Reset drops everything recorded so far.
func (s *MemorySink) Reset() {
	s.mu.Lock()
	s.measurements = nil
	s.calls = nil
	s.mu.Unlock()
}
