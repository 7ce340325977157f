package observability

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"codeberg.org/mutker/co2scale/internal/errors"
	"codeberg.org/mutker/co2scale/internal/logger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const defaultServiceName = "co2scale"

// TracingConfig governs how tracing is initialised.
type TracingConfig struct {
	Enabled     bool
	ServiceName string
	Exporter    string // stdout
	SampleRatio float64
	// Writer receives exported spans. Defaults to os.Stderr so spans do not
	// mix with command output.
	Writer io.Writer
}

// ShutdownFunc flushes and stops the tracer provider.
type ShutdownFunc func(context.Context) error

// InitTracing installs a tracer provider and propagators. When tracing is
// disabled a no-op provider is installed and the shutdown is a no-op.
func InitTracing(ctx context.Context, cfg TracingConfig, log logger.Logger) (ShutdownFunc, error) {
	errFactory := errors.New()
	if log == nil {
		log = logger.Nop()
	}

	if !cfg.Enabled {
		otel.SetTracerProvider(noop.NewTracerProvider())
		otel.SetTextMapPropagator(propagation.TraceContext{})
		log.Debug().Msg("Tracing disabled, using no-op tracer provider")
		return func(context.Context) error { return nil }, nil
	}

	exp, err := exporterFromConfig(cfg)
	if err != nil {
		return nil, err
	}

	service := cfg.ServiceName
	if service == "" {
		service = defaultServiceName
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			attribute.String("service.name", service),
			attribute.String("service.namespace", "co2scale"),
		),
	)
	if err != nil {
		return nil, errFactory.Wrap(ErrTracingInit, err)
	}

	ratio := cfg.SampleRatio
	if ratio <= 0 || ratio > 1 {
		ratio = 1
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))),
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(
		propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		),
	)

	log.Info().
		Str("service_name", service).
		Float64("sample_ratio", ratio).
		Msg("Tracing enabled")

	return tp.Shutdown, nil
}

func exporterFromConfig(cfg TracingConfig) (sdktrace.SpanExporter, error) {
	w := cfg.Writer
	if w == nil {
		w = os.Stderr
	}

	switch strings.ToLower(cfg.Exporter) {
	case "stdout", "":
		exp, err := stdouttrace.New(
			stdouttrace.WithWriter(w),
			stdouttrace.WithoutTimestamps(),
		)
		if err != nil {
			return nil, errors.New().Wrap(ErrTracingInit, err)
		}
		return exp, nil
	default:
		return nil, errors.New().WithData(ErrTracingExporter, cfg.Exporter)
	}
}

// ShutdownWithTimeout runs shutdown with a bounded timeout and logs, rather
// than returns, any failure.
func ShutdownWithTimeout(ctx context.Context, shutdown ShutdownFunc, log logger.Logger) {
	if shutdown == nil {
		return
	}
	if log == nil {
		log = logger.Nop()
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("Tracing shutdown failed")
	}
}
