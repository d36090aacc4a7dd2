package observability

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/contrib/processors/minsev"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// serviceName identifies this process in exported telemetry.
const serviceName = "genbridge"

// Instrument installs the process-wide slog default. The returned shutdown
// function flushes exporters; it is a no-op for the plain stdout formats.
func Instrument(ctx context.Context, level slog.Level, logFormat string) (func(context.Context) error, error) {
	noop := func(context.Context) error { return nil }

	switch strings.ToLower(logFormat) {
	case "json":
		slog.SetDefault(slog.New(newTraceContextHandler(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}),
		)))
		return noop, nil
	case "text":
		slog.SetDefault(slog.New(newTraceContextHandler(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}),
		)))
		return noop, nil
	case "otlp":
		provider, err := newOTLPLoggerProvider(ctx, level)
		if err != nil {
			return nil, err
		}
		slog.SetDefault(slog.New(newTraceContextHandler(
			otelslog.NewHandler(serviceName, otelslog.WithLoggerProvider(provider)),
		)))
		return provider.Shutdown, nil
	default:
		return nil, fmt.Errorf("unsupported log format %q (expected: json, text, otlp)", logFormat)
	}
}

// newOTLPLoggerProvider builds a logger provider exporting via OTLP, honoring
// OTEL_EXPORTER_OTLP_PROTOCOL (grpc or http/protobuf; "stdout" exports to
// stdout for local debugging). Records below the configured level are dropped
// before export.
func newOTLPLoggerProvider(ctx context.Context, level slog.Level) (*sdklog.LoggerProvider, error) {
	var (
		exporter sdklog.Exporter
		err      error
	)
	switch os.Getenv("OTEL_EXPORTER_OTLP_PROTOCOL") {
	case "grpc":
		exporter, err = otlploggrpc.New(ctx)
	case "stdout":
		exporter, err = stdoutlog.New()
	default:
		exporter, err = otlploghttp.New(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("create log exporter: %w", err)
	}

	processor := minsev.NewLogProcessor(sdklog.NewBatchProcessor(exporter), minSeverity(level))
	return sdklog.NewLoggerProvider(sdklog.WithProcessor(processor)), nil
}

func minSeverity(level slog.Level) minsev.Severity {
	switch {
	case level <= slog.LevelDebug:
		return minsev.SeverityDebug
	case level <= slog.LevelInfo:
		return minsev.SeverityInfo
	case level <= slog.LevelWarn:
		return minsev.SeverityWarn
	default:
		return minsev.SeverityError
	}
}
