// Package observability composes the logger, tracer, and meter providers
// behind one fx module, following the donor's internal/observability/fx.go
// config-fan-out shape.
package observability

import (
	"github.com/smallbiznis/payroll-psp-core/internal/config"
	"github.com/smallbiznis/payroll-psp-core/internal/observability/logger"
	"github.com/smallbiznis/payroll-psp-core/internal/observability/metrics"
	"github.com/smallbiznis/payroll-psp-core/internal/observability/tracing"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
)

var Module = fx.Module("observability",
	fx.Provide(
		provideLoggerConfig,
		logger.New,
		provideTracingConfig,
		tracing.NewProvider,
		provideMetricsConfig,
		metrics.NewProvider,
		metrics.New,
	),
	fx.Invoke(ensureTracingProvider),
)

func ensureTracingProvider(_ *sdktrace.TracerProvider) {}

func provideLoggerConfig(cfg config.Config) logger.Config {
	return logger.Config{
		ServiceName:   cfg.AppName,
		Environment:   cfg.Environment,
		Version:       cfg.AppVersion,
		Level:         cfg.LogLevel,
		Format:        cfg.LogFormat,
		IncludeCaller: true,
	}
}

func provideTracingConfig(cfg config.Config) tracing.Config {
	return tracing.Config{
		Enabled:          cfg.MetricsEnable,
		ServiceName:      cfg.AppName,
		ExporterEndpoint: cfg.OTLPEndpoint,
	}
}

func provideMetricsConfig(cfg config.Config) metrics.Config {
	return metrics.Config{
		Enabled:          cfg.MetricsEnable,
		ExporterEndpoint: cfg.OTLPEndpoint,
		ServiceName:      cfg.AppName,
	}
}
