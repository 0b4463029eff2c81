package observability

import (
	"context"
	"errors"
	"time"
)

// methodFrame records a method entered through Sink.EnterMethod.
type methodFrame struct {
	Component string
	Method    string
	Start     time.Time
}

type methodFrameKey struct{}

func withMethodFrame(ctx context.Context, component, method string) context.Context {
	return context.WithValue(ctx, methodFrameKey{}, &methodFrame{
		Component: component,
		Method:    method,
		Start:     time.Now(),
	})
}

// methodFrameFromContext returns the innermost frame, or nil.
func methodFrameFromContext(ctx context.Context) *methodFrame {
	if f, ok := ctx.Value(methodFrameKey{}).(*methodFrame); ok {
		return f
	}
	return nil
}

// statusOf maps an error to the status tag used on method metrics.
func statusOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "error"
	}
}
