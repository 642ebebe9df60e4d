// Package tracing provides the OpenTelemetry tracer used to wrap component
// operations in spans. The donor's tracing package instruments inbound gin
// requests; this core has no HTTP surface (Non-goals), so only the provider
// bootstrap, tracer constructor, and a span-start helper survive,
// generalized to any caller.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the tracer provider.
type Config struct {
	Enabled          bool
	ServiceName      string
	ExporterEndpoint string
}

// NewProvider builds the SDK tracer provider and registers it as the global
// provider, with an OnStop shutdown hook. Disabled deployments get an SDK
// provider with no exporter that samples nothing (NeverSample), registered
// globally the same way.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (*sdktrace.TracerProvider, error) {
	opts := []otlptracegrpc.Option{otlptracegrpc.WithInsecure()}
	if cfg.ExporterEndpoint != "" {
		opts = append(opts, otlptracegrpc.WithEndpoint(cfg.ExporterEndpoint))
	}

	var provider *sdktrace.TracerProvider
	if !cfg.Enabled {
		provider = sdktrace.NewTracerProvider(sdktrace.WithSampler(sdktrace.NeverSample()))
	} else {
		exporter, err := otlptracegrpc.New(context.Background(), opts...)
		if err != nil {
			return nil, err
		}
		provider = sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exporter),
			sdktrace.WithSampler(sdktrace.AlwaysSample()),
		)
	}
	otel.SetTracerProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				return provider.Shutdown(ctx)
			},
		})
	}
	if log != nil {
		log.Info("tracing initialized", zap.Bool("enabled", cfg.Enabled))
	}
	return provider, nil
}

// Tracer returns the named tracer for a component (e.g. "pspcore/ledger").
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}

// StartSpan starts a span named operation under tracer, tagging it with the
// given attributes.
func StartSpan(ctx context.Context, tracerName, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx, span := Tracer(tracerName).Start(ctx, operation)
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	return ctx, span
}
