package tracing

import (
	"context"
	"fmt"
	"os"

	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/trace"
)

// fileExporter wraps a stdouttrace exporter writing to a file and closes
// the file on shutdown.
type fileExporter struct {
	*stdouttrace.Exporter
	file *os.File
}

func newFileExporter(file string) (*fileExporter, error) {
	f, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening '%s' for OpenTelemetry file exporter: %w", file, err)
	}
	stdoutExporter, err := stdouttrace.New(stdouttrace.WithWriter(f))
	if err != nil {
		f.Close()
		return nil, err
	}
	return &fileExporter{
		Exporter: stdoutExporter,
		file:     f,
	}, nil
}

func (e *fileExporter) Shutdown(ctx context.Context) error {
	if err := e.Exporter.Shutdown(ctx); err != nil {
		return err
	}
	if err := e.file.Close(); err != nil {
		return fmt.Errorf("closing trace file: %w", err)
	}
	return nil
}

var _ trace.SpanExporter = (*fileExporter)(nil)
