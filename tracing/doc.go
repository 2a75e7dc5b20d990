// Package tracing configures the poolfs tracer and keeps span names
// consistent across the FUSE adapter and the daemon.
//
// Tracing is configured through environment variables, as consistent with the OpenTelemetry spec as possible:
//
// https://github.com/open-telemetry/opentelemetry-specification/blob/main/specification/sdk-environment-variables.md
//
//   - OTEL_TRACES_EXPORTER: a comma-separated list of exporters
//   - otlp
//   - zipkin
//   - file
//   - none
//
// OTLP HTTP/gRPC:
//
//   - OTEL_EXPORTER_OTLP_PROTOCOL
//   - one of [grpc, http/protobuf]
//   - default: http/protobuf
//   - OTEL_EXPORTER_OTLP_ENDPOINT
//
// Zipkin:
//
//   - OTEL_EXPORTER_ZIPKIN_ENDPOINT
//
// File:
//
//   - OTEL_EXPORTER_FILE_PATH
//   - file path to write JSON traces
//   - default: `$PWD/traces.json`
//
// # Implementer Notes
//
// Span names follow a convention of <Component>.<Span>, for example
// component=FUSE.File + span=Write -> FUSE.File.Write.
//
// Every exported span carries the mount session as resource attributes:
// service.instance.id, poolfs.mountpoint and the pool geometry.
//
// We follow the OpenTelemetry convention of using whatever TracerProvider is registered globally.
package tracing
