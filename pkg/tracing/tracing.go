// Package tracing builds the OpenTelemetry tracer provider that scan
// sessions record their spans on, exporting over OTLP/gRPC.
package tracing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/waftester/webscan/pkg/defaults"
	"github.com/waftester/webscan/pkg/duration"
)

// DefaultEndpoint is the standard OTLP/gRPC collector address.
const DefaultEndpoint = "localhost:4317"

// InstrumentationName names the tracer the scan engine uses.
const InstrumentationName = "github.com/waftester/webscan/pkg/scan"

// Options configures the exporter.
type Options struct {
	// Endpoint is the collector host:port. Empty disables export.
	Endpoint string

	// ServiceName defaults to the tool name.
	ServiceName string

	// Insecure disables TLS to the collector.
	Insecure bool

	// Headers are sent with every export, e.g. auth tokens.
	Headers map[string]string

	// ConnectTimeout bounds exporter creation.
	ConnectTimeout time.Duration

	// ShutdownTimeout bounds the final flush.
	ShutdownTimeout time.Duration

	// Global also installs the provider with otel.SetTracerProvider.
	Global bool
}

// Provider wraps the SDK tracer provider. A Provider built without an
// endpoint hands out no-op tracers.
type Provider struct {
	opts Options
	sdk  *sdktrace.TracerProvider
}

// New creates a Provider exporting to opts.Endpoint.
func New(ctx context.Context, opts Options) (*Provider, error) {
	if opts.ServiceName == "" {
		opts.ServiceName = defaults.ToolName
	}
	if opts.ConnectTimeout == 0 {
		opts.ConnectTimeout = duration.ExporterConnect
	}
	if opts.ShutdownTimeout == 0 {
		opts.ShutdownTimeout = duration.ShutdownTimeout
	}
	if opts.Endpoint == "" {
		return &Provider{opts: opts}, nil
	}

	var dialOpts []grpc.DialOption
	if opts.Insecure {
		dialOpts = append(dialOpts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}
	exporterOpts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(opts.Endpoint),
		otlptracegrpc.WithDialOption(dialOpts...),
	}
	if opts.Insecure {
		exporterOpts = append(exporterOpts, otlptracegrpc.WithInsecure())
	}
	if len(opts.Headers) > 0 {
		exporterOpts = append(exporterOpts, otlptracegrpc.WithHeaders(opts.Headers))
	}

	ctx, cancel := context.WithTimeout(ctx, opts.ConnectTimeout)
	defer cancel()
	exporter, err := otlptracegrpc.New(ctx, exporterOpts...)
	if err != nil {
		return nil, fmt.Errorf("tracing: exporter: %w", err)
	}
	return newWithExporter(opts, sdktrace.WithBatcher(exporter)), nil
}

// NewWithProcessor builds a Provider around a caller-supplied span
// processor, e.g. an in-memory recorder in tests.
func NewWithProcessor(opts Options, sp sdktrace.SpanProcessor) *Provider {
	if opts.ServiceName == "" {
		opts.ServiceName = defaults.ToolName
	}
	if opts.ShutdownTimeout == 0 {
		opts.ShutdownTimeout = duration.ShutdownTimeout
	}
	return newWithExporter(opts, sdktrace.WithSpanProcessor(sp))
}

func newWithExporter(opts Options, register sdktrace.TracerProviderOption) *Provider {
	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(opts.ServiceName),
		semconv.ServiceVersion(defaults.Version),
		attribute.String("service.component", "scanner"),
	)
	tp := sdktrace.NewTracerProvider(
		register,
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	if opts.Global {
		otel.SetTracerProvider(tp)
	}
	return &Provider{opts: opts, sdk: tp}
}

// Enabled reports whether spans are exported.
func (p *Provider) Enabled() bool { return p.sdk != nil }

// Endpoint returns the collector address, or "".
func (p *Provider) Endpoint() string { return p.opts.Endpoint }

// Tracer returns the scan engine's tracer.
func (p *Provider) Tracer() trace.Tracer {
	if p.sdk == nil {
		return noop.NewTracerProvider().Tracer(InstrumentationName)
	}
	return p.sdk.Tracer(InstrumentationName, trace.WithInstrumentationVersion(defaults.Version))
}

// Shutdown flushes pending spans and stops the exporter.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.sdk == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, p.opts.ShutdownTimeout)
	defer cancel()
	if err := p.sdk.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("tracing: shutdown: %w", err)
	}
	return nil
}
