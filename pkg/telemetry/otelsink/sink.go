// Package otelsink emits reconstructed build traces as OpenTelemetry spans.
package otelsink

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/buildtrace/buildtrace/pkg/buildtrace"
)

// Sink implements buildtrace.Sink on top of an OpenTelemetry tracer.
// The tracer is injected; Sink never consults the global provider.
type Sink struct {
	tracer trace.Tracer
	kind   trace.SpanKind
}

// Option configures a Sink.
type Option func(*Sink)

// WithSpanKind sets the span kind of emitted spans. Defaults to internal.
func WithSpanKind(kind trace.SpanKind) Option {
	return func(s *Sink) {
		s.kind = kind
	}
}

// New returns a sink that starts spans with tracer.
func New(tracer trace.Tracer, opts ...Option) *Sink {
	s := &Sink{
		tracer: tracer,
		kind:   trace.SpanKindInternal,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StartSpan starts a span as a child of the span carried by ctx. An unset
// start lets the SDK pick the current time.
func (s *Sink) StartSpan(ctx context.Context, name string, start buildtrace.Timestamp, attrs []buildtrace.Attribute) (context.Context, buildtrace.Handle) {
	opts := []trace.SpanStartOption{
		trace.WithSpanKind(s.kind),
		trace.WithAttributes(toKeyValues(attrs)...),
	}
	if start.IsSet() {
		opts = append(opts, trace.WithTimestamp(start.Time()))
	}
	return s.tracer.Start(ctx, name, opts...)
}

// EndSpan ends the span. An unset end lets the SDK pick the current time.
func (s *Sink) EndSpan(h buildtrace.Handle, end buildtrace.Timestamp) {
	span, ok := h.(trace.Span)
	if !ok {
		return
	}
	if end.IsSet() {
		span.End(trace.WithTimestamp(end.Time()))
		return
	}
	span.End()
}

// SetFailure marks the span with an error status.
func (s *Sink) SetFailure(h buildtrace.Handle, reason string) {
	span, ok := h.(trace.Span)
	if !ok {
		return
	}
	span.SetStatus(codes.Error, reason)
}

func toKeyValues(attrs []buildtrace.Attribute) []attribute.KeyValue {
	kvs := make([]attribute.KeyValue, 0, len(attrs))
	for _, a := range attrs {
		kvs = append(kvs, attribute.String(a.Key, a.Value))
	}
	return kvs
}

// SpanOf returns the OpenTelemetry span behind an emitted handle.
func SpanOf(h buildtrace.Handle) (trace.Span, bool) {
	span, ok := h.(trace.Span)
	return span, ok
}

// Traceparent returns the W3C traceparent header value for span.
func Traceparent(span trace.Span) string {
	carrier := propagation.MapCarrier{}
	ctx := trace.ContextWithSpan(context.Background(), span)
	propagation.TraceContext{}.Inject(ctx, carrier)
	return carrier.Get("traceparent")
}

// UberTraceID formats the span context as trace:span:parent:flags, the
// format Jaeger clients read from the uber-trace-id header.
func UberTraceID(span trace.Span) string {
	sc := span.SpanContext()
	if !sc.IsValid() {
		return ""
	}
	return fmt.Sprintf("%s:%s:0:%s", sc.TraceID(), sc.SpanID(), sc.TraceFlags())
}

// ExploreURL returns a Grafana Explore link that opens traceID in Tempo.
// An empty grafanaURL or trace ID yields "".
func ExploreURL(grafanaURL, traceID string) string {
	base := strings.TrimRight(strings.TrimSpace(grafanaURL), "/")
	if base == "" || traceID == "" {
		return ""
	}
	left := fmt.Sprintf(`["now-1h","now","Tempo",{"queryType":"traceId","query":"%s"}]`, traceID)
	return base + "/explore?orgId=1&left=" + url.QueryEscape(left)
}
