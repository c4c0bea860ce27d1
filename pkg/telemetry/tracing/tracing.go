// Package tracing builds the OpenTelemetry tracer provider used to export
// reconstructed build traces.
package tracing

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"google.golang.org/grpc/credentials"

	"github.com/buildtrace/buildtrace/config"
	"github.com/buildtrace/buildtrace/pkg/logger"
)

// Exporter kinds.
const (
	ExporterOTLPGRPC = "otlpgrpc"
	ExporterOTLPHTTP = "otlphttp"
	ExporterConsole  = "console"
)

// Resource attribute keys describing the build that produced the trace.
const (
	AttrBuildRepository  = "build.repository"
	AttrBuildActor       = "build.actor"
	AttrBuildSHA         = "build.sha"
	AttrBuildWorkflowURL = "build.workflow_url"
)

// BuildInfo describes the service and the build being traced.
type BuildInfo struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	Repository     string
	Actor          string
	SHA            string
	WorkflowURL    string
}

func (b BuildInfo) attributes() []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		semconv.ServiceName(b.ServiceName),
		semconv.ServiceVersion(b.ServiceVersion),
	}
	if b.Environment != "" {
		attrs = append(attrs, semconv.DeploymentEnvironmentName(b.Environment))
	}
	for _, kv := range []struct{ key, value string }{
		{AttrBuildRepository, b.Repository},
		{AttrBuildActor, b.Actor},
		{AttrBuildSHA, b.SHA},
		{AttrBuildWorkflowURL, b.WorkflowURL},
	} {
		if kv.value != "" {
			attrs = append(attrs, attribute.String(kv.key, kv.value))
		}
	}
	return attrs
}

var reportExporterFailure = func(err error, exporter, endpoint string, spanCount int) {
	logger.Warn("tracing exporter failed",
		"error", err,
		"exporter", exporter,
		"endpoint", endpoint,
		"span_count", spanCount,
	)
}

// consoleWriter receives spans from the console exporter.
var consoleWriter io.Writer = os.Stderr

var newExporter = func(ctx context.Context, cfg config.TracingConfig) (sdktrace.SpanExporter, error) {
	switch exporterKind(cfg) {
	case ExporterOTLPGRPC:
		return newOTLPGRPCExporter(ctx, cfg)
	case ExporterOTLPHTTP:
		return newOTLPHTTPExporter(ctx, cfg)
	case ExporterConsole:
		return stdouttrace.New(
			stdouttrace.WithWriter(consoleWriter),
			stdouttrace.WithPrettyPrint(),
		)
	default:
		return nil, fmt.Errorf("unsupported tracing exporter %q", cfg.Exporter)
	}
}

func newOTLPGRPCExporter(ctx context.Context, cfg config.TracingConfig) (sdktrace.SpanExporter, error) {
	endpoint := normalizeEndpoint(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("tracing endpoint cannot be empty")
	}

	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithTimeout(cfg.Timeout),
	}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	} else {
		opts = append(opts, otlptracegrpc.WithTLSCredentials(credentials.NewClientTLSFromCert(nil, "")))
	}
	if len(cfg.Headers) > 0 {
		opts = append(opts, otlptracegrpc.WithHeaders(cfg.Headers))
	}

	return otlptracegrpc.New(ctx, opts...)
}

func newOTLPHTTPExporter(ctx context.Context, cfg config.TracingConfig) (sdktrace.SpanExporter, error) {
	raw := strings.TrimSpace(cfg.Endpoint)
	if raw == "" {
		return nil, fmt.Errorf("tracing endpoint cannot be empty")
	}

	opts := []otlptracehttp.Option{
		otlptracehttp.WithTimeout(cfg.Timeout),
	}
	if strings.Contains(raw, "://") {
		opts = append(opts, otlptracehttp.WithEndpointURL(raw))
	} else {
		opts = append(opts, otlptracehttp.WithEndpoint(raw))
		if cfg.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
	}
	if len(cfg.Headers) > 0 {
		opts = append(opts, otlptracehttp.WithHeaders(cfg.Headers))
	}

	return otlptracehttp.New(ctx, opts...)
}

type isolatingExporter struct {
	exporter sdktrace.SpanExporter
	kind     string
	endpoint string
}

func (e *isolatingExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	if err := e.exporter.ExportSpans(ctx, spans); err != nil {
		reportExporterFailure(err, e.kind, e.endpoint, len(spans))
		return nil
	}
	return nil
}

func (e *isolatingExporter) Shutdown(ctx context.Context) error {
	return e.exporter.Shutdown(ctx)
}

// Provider owns the tracer provider for one process. It is never
// installed as the global provider; callers pass tracers explicitly.
type Provider struct {
	provider   trace.TracerProvider
	sdk        *sdktrace.TracerProvider
	propagator propagation.TextMapPropagator
}

// Tracer returns a named tracer.
func (p *Provider) Tracer(name string, opts ...trace.TracerOption) trace.Tracer {
	return p.provider.Tracer(name, opts...)
}

// TracerProvider returns the underlying provider.
func (p *Provider) TracerProvider() trace.TracerProvider {
	return p.provider
}

// Enabled reports whether spans are exported.
func (p *Provider) Enabled() bool {
	return p.sdk != nil
}

// Extract returns ctx carrying the remote span context found in carrier,
// e.g. {"traceparent": os.Getenv("TRACEPARENT")}.
func (p *Provider) Extract(ctx context.Context, carrier map[string]string) context.Context {
	return p.propagator.Extract(ctx, propagation.MapCarrier(carrier))
}

// ForceFlush exports all ended spans.
func (p *Provider) ForceFlush(ctx context.Context) error {
	if p.sdk == nil {
		return nil
	}
	if err := p.sdk.ForceFlush(ctx); err != nil {
		return fmt.Errorf("force flush tracing provider: %w", err)
	}
	return nil
}

// Shutdown flushes pending spans and releases exporter resources.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.sdk == nil {
		return nil
	}
	if err := p.sdk.ForceFlush(ctx); err != nil {
		_ = p.sdk.Shutdown(ctx)
		return fmt.Errorf("force flush tracing provider: %w", err)
	}
	if err := p.sdk.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown tracing provider: %w", err)
	}
	return nil
}

func newPropagator() propagation.TextMapPropagator {
	return propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	)
}

// Init creates a tracer provider for cfg. When tracing is disabled the
// provider hands out no-op tracers.
func Init(ctx context.Context, cfg config.TracingConfig, info BuildInfo) (*Provider, error) {
	if !cfg.Enabled {
		return &Provider{
			provider:   noop.NewTracerProvider(),
			propagator: newPropagator(),
		}, nil
	}

	kind := exporterKind(cfg)
	if kind == "" {
		return nil, fmt.Errorf("tracing exporter cannot be empty")
	}
	if kind != ExporterConsole && strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, fmt.Errorf("tracing endpoint cannot be empty")
	}
	if cfg.Timeout <= 0 {
		return nil, fmt.Errorf("tracing timeout must be > 0")
	}

	exp, err := newExporter(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create tracing exporter: %w", err)
	}
	exp = &isolatingExporter{
		exporter: exp,
		kind:     kind,
		endpoint: normalizeEndpoint(cfg.Endpoint),
	}

	res, err := resource.New(ctx, resource.WithAttributes(info.attributes()...))
	if err != nil {
		_ = exp.Shutdown(ctx)
		return nil, fmt.Errorf("create tracing resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp, sdktrace.WithExportTimeout(cfg.Timeout)),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(selectSampler(cfg)),
	)

	return &Provider{
		provider:   tp,
		sdk:        tp,
		propagator: newPropagator(),
	}, nil
}

func exporterKind(cfg config.TracingConfig) string {
	return strings.ToLower(strings.TrimSpace(cfg.Exporter))
}

func selectSampler(cfg config.TracingConfig) sdktrace.Sampler {
	switch strings.ToLower(strings.TrimSpace(cfg.Sampler)) {
	case "always_on":
		return sdktrace.AlwaysSample()
	case "always_off":
		return sdktrace.NeverSample()
	default:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRate))
	}
}

func normalizeEndpoint(endpoint string) string {
	raw := strings.TrimSpace(endpoint)
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, "://") {
		return raw
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	if parsed.Host != "" {
		return parsed.Host
	}
	return raw
}
