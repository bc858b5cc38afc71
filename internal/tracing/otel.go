package tracing

import (
	"context"
	"errors"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// Config describes the process-wide tracer provider.
type Config struct {
	ServiceName    string
	ServiceVersion string
	// SampleRatio is the parent-based sampling ratio in [0, 1].
	// Values outside that range are clamped.
	SampleRatio float64
}

var (
	setupOnce sync.Once
	setupErr  error

	activeMu sync.Mutex
	active   *sdktrace.TracerProvider
)

// Init installs the global tracer provider. Only the first call takes
// effect; later calls return the first call's result.
func Init(cfg Config) error {
	setupOnce.Do(func() {
		if cfg.ServiceName == "" {
			setupErr = errors.New("service name is required")
			return
		}

		attrs := []attribute.KeyValue{semconv.ServiceName(cfg.ServiceName)}
		if cfg.ServiceVersion != "" {
			attrs = append(attrs, semconv.ServiceVersion(cfg.ServiceVersion))
		}

		res, err := resource.Merge(
			resource.Default(),
			resource.NewWithAttributes(semconv.SchemaURL, attrs...),
		)
		if err != nil {
			setupErr = err
			return
		}

		ratio := cfg.SampleRatio
		if ratio < 0 {
			ratio = 0
		} else if ratio > 1 {
			ratio = 1
		}

		tp := sdktrace.NewTracerProvider(
			sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))),
			sdktrace.WithResource(res),
		)

		activeMu.Lock()
		active = tp
		activeMu.Unlock()
		otel.SetTracerProvider(tp)
	})

	return setupErr
}

// Shutdown flushes and stops the provider installed by Init. Calling it
// before Init, or after a failed Init, is a no-op.
func Shutdown(ctx context.Context) error {
	activeMu.Lock()
	tp := active
	activeMu.Unlock()

	if tp == nil {
		return nil
	}
	return tp.Shutdown(ctx)
}

// StartSpan opens a span on the named tracer. When the context carries
// no trace ID yet, the span's own trace ID is written back so log lines
// and exported spans share one correlation key.
func StartSpan(ctx context.Context, tracerName, spanName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if ctx == nil {
		ctx = context.Background()
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, spanName, trace.WithAttributes(attrs...))

	if GetTraceID(ctx) != "" {
		return ctx, span
	}
	if sc := span.SpanContext(); sc.IsValid() {
		ctx = WithTraceID(ctx, sc.TraceID().String())
	}

	return ctx, span
}
