package tracing

import (
	"context"
	"fmt"
	"os"
	"path"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/zipkin"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
	traceapi "go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	version "github.com/poolfs/poolfs"
	"github.com/poolfs/poolfs/pool"
)

const tracerName = "poolfs"

// Resource attribute keys describing the mount a trace came from.
const (
	MountPointKey = attribute.Key("poolfs.mountpoint")
	PoolBlocksKey = attribute.Key("poolfs.pool.blocks")
	BlockSizeKey  = attribute.Key("poolfs.pool.block_size")
)

// Session identifies one mount of the filesystem. Its fields are attached
// to every exported span.
type Session struct {
	ID         string
	MountPoint string
	Blocks     int
}

func (s Session) attributes() []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		semconv.ServiceNameKey.String(tracerName),
		semconv.ServiceVersionKey.String(version.CurrentVersionNumber),
		BlockSizeKey.Int(pool.BlockSize),
	}
	if s.ID != "" {
		attrs = append(attrs, semconv.ServiceInstanceIDKey.String(s.ID))
	}
	if s.MountPoint != "" {
		attrs = append(attrs, MountPointKey.String(s.MountPoint))
	}
	if s.Blocks > 0 {
		attrs = append(attrs, PoolBlocksKey.Int(s.Blocks))
	}
	return attrs
}

// ShutdownTracerProvider is a TracerProvider that can be flushed and
// stopped when the mount goes away.
type ShutdownTracerProvider interface {
	traceapi.TracerProvider
	Shutdown(ctx context.Context) error
}

type noopShutdownTracerProvider struct{ traceapi.TracerProvider }

func (n *noopShutdownTracerProvider) Shutdown(ctx context.Context) error { return nil }

type exporterFunc func(ctx context.Context) (trace.SpanExporter, error)

// exporters maps OTEL_TRACES_EXPORTER values to their constructors.
// stdout is left out: the daemon's stdout belongs to the mount command.
var exporters = map[string]exporterFunc{
	"otlp":   newOTLPExporter,
	"zipkin": newZipkinExporter,
	"file":   newFileExporterFromEnv,
}

func otlpProtocol() string {
	if v := os.Getenv("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL"); v != "" {
		return v
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_PROTOCOL"); v != "" {
		return v
	}
	return "http/protobuf"
}

func newOTLPExporter(ctx context.Context) (trace.SpanExporter, error) {
	switch proto := otlpProtocol(); proto {
	case "http/protobuf":
		exp, err := otlptracehttp.New(ctx)
		if err != nil {
			return nil, fmt.Errorf("building OTLP HTTP exporter: %w", err)
		}
		return exp, nil
	case "grpc":
		exp, err := otlptracegrpc.New(ctx)
		if err != nil {
			return nil, fmt.Errorf("building OTLP gRPC exporter: %w", err)
		}
		return exp, nil
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", proto)
	}
}

func newZipkinExporter(context.Context) (trace.SpanExporter, error) {
	exp, err := zipkin.New("")
	if err != nil {
		return nil, fmt.Errorf("building Zipkin exporter: %w", err)
	}
	return exp, nil
}

func newFileExporterFromEnv(context.Context) (trace.SpanExporter, error) {
	file := os.Getenv("OTEL_EXPORTER_FILE_PATH")
	if file == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("finding working directory for the trace file: %w", err)
		}
		file = path.Join(cwd, "traces.json")
	}
	return newFileExporter(file)
}

func buildExporters(ctx context.Context) ([]trace.SpanExporter, error) {
	var out []trace.SpanExporter
	for _, name := range strings.Split(os.Getenv("OTEL_TRACES_EXPORTER"), ",") {
		name = strings.TrimSpace(name)
		if name == "" || name == "none" {
			continue
		}
		build, ok := exporters[name]
		if !ok {
			return nil, fmt.Errorf("unknown or unsupported exporter %q", name)
		}
		exp, err := build(ctx)
		if err != nil {
			return nil, err
		}
		out = append(out, exp)
	}
	return out, nil
}

// NewTracerProvider builds a TracerProvider from the OTEL_* environment.
// With no exporter configured it returns a no-op provider.
func NewTracerProvider(ctx context.Context, s Session) (ShutdownTracerProvider, error) {
	exps, err := buildExporters(ctx)
	if err != nil {
		return nil, err
	}
	if len(exps) == 0 {
		return &noopShutdownTracerProvider{TracerProvider: noop.NewTracerProvider()}, nil
	}

	r, err := resource.Merge(resource.Default(), resource.NewSchemaless(s.attributes()...))
	if err != nil {
		return nil, err
	}
	opts := []trace.TracerProviderOption{trace.WithResource(r)}
	for _, exp := range exps {
		opts = append(opts, trace.WithBatcher(exp))
	}
	return trace.NewTracerProvider(opts...), nil
}

// Span starts a span named <component>.<name> on the global provider.
func Span(ctx context.Context, componentName string, spanName string, opts ...traceapi.SpanStartOption) (context.Context, traceapi.Span) {
	return otel.Tracer(tracerName).Start(ctx, componentName+"."+spanName, opts...)
}
