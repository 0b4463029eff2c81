package observability

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/kbukum/switchyard/logger"
)

// MetricMethodDuration is recorded by ExitMethod, in seconds.
const MetricMethodDuration = "method.duration"

// OtelSink records metrics as OpenTelemetry histograms and methods as spans.
// One Float64Histogram is created lazily per metric name.
type OtelSink struct {
	meter      metric.Meter
	tracer     trace.Tracer
	histograms sync.Map // name -> metric.Float64Histogram
}

var _ Sink = (*OtelSink)(nil)

// NewOtelSink creates a sink on the given meter and tracer.
func NewOtelSink(meter metric.Meter, tracer trace.Tracer) *OtelSink {
	return &OtelSink{meter: meter, tracer: tracer}
}

// RecordMetric records value on the histogram named name.
func (s *OtelSink) RecordMetric(ctx context.Context, name string, value float64, tags ...Tag) {
	h, ok := s.histogram(name)
	if !ok {
		return
	}
	h.Record(ctx, value, metric.WithAttributes(attributes(tags)...))
}

// EnterMethod starts a span named component.method.
func (s *OtelSink) EnterMethod(ctx context.Context, component, method string) context.Context {
	ctx, _ = s.tracer.Start(ctx, component+"."+method,
		trace.WithAttributes(
			attribute.String(AttrComponent, component),
			attribute.String(AttrMethod, method),
		),
	)
	return withMethodFrame(ctx, component, method)
}

// ExitMethod ends the span started by EnterMethod and records its duration.
func (s *OtelSink) ExitMethod(ctx context.Context, err error) {
	frame := methodFrameFromContext(ctx)
	span := trace.SpanFromContext(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()

	if frame == nil {
		return
	}
	s.RecordMetric(ctx, MetricMethodDuration, time.Since(frame.Start).Seconds(),
		T(AttrComponent, frame.Component),
		T(AttrMethod, frame.Method),
		T(AttrStatus, statusOf(err)),
	)
}

func (s *OtelSink) histogram(name string) (metric.Float64Histogram, bool) {
	if h, ok := s.histograms.Load(name); ok {
		return h.(metric.Float64Histogram), true
	}
	h, err := s.meter.Float64Histogram(name)
	if err != nil {
		logger.Warn("failed to create histogram", logger.Fields("metric", name, logger.FieldError, err))
		return nil, false
	}
	actual, _ := s.histograms.LoadOrStore(name, h)
	return actual.(metric.Float64Histogram), true
}

func attributes(tags []Tag) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, len(tags))
	for i, t := range tags {
		attrs[i] = attribute.String(t.Key, t.Value)
	}
	return attrs
}
