// Package metrics exposes the core's application-level OpenTelemetry
// instruments, following the donor's internal/observability/metrics package
// shape (OTLP exporter selection, named fx-provided *Metrics struct).
package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ServiceName      string
}

// Metrics exposes the core's domain instruments.
type Metrics struct {
	ledgerEntries       metric.Int64Counter
	gateEvaluations     metric.Int64Counter
	instructionsCreated metric.Int64Counter
	reconciliationRecs  metric.Int64Counter
	reconciliationErrs  metric.Int64Counter
	liabilityEvents     metric.Int64Counter
	eventsAppended      metric.Int64Counter
}

// NewProvider builds the meter provider and registers an OnStop shutdown hook.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
	if cfg.ExporterEndpoint != "" {
		opts = append(opts, otlpmetricgrpc.WithEndpoint(cfg.ExporterEndpoint))
	}
	exporter, err := otlpmetricgrpc.New(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("create otlp metric exporter: %w", err)
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				return provider.Shutdown(ctx)
			},
		})
	}
	if log != nil {
		log.Info("metrics initialized", zap.String("endpoint", cfg.ExporterEndpoint))
	}
	return provider, nil
}

// New builds the named instruments against provider.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "pspcore"
	}
	meter := provider.Meter(name)

	m := &Metrics{}
	var err error
	if m.ledgerEntries, err = meter.Int64Counter("pspcore_ledger_entries_total"); err != nil {
		return nil, err
	}
	if m.gateEvaluations, err = meter.Int64Counter("pspcore_gate_evaluations_total"); err != nil {
		return nil, err
	}
	if m.instructionsCreated, err = meter.Int64Counter("pspcore_payment_instructions_total"); err != nil {
		return nil, err
	}
	if m.reconciliationRecs, err = meter.Int64Counter("pspcore_reconciliation_records_total"); err != nil {
		return nil, err
	}
	if m.reconciliationErrs, err = meter.Int64Counter("pspcore_reconciliation_errors_total"); err != nil {
		return nil, err
	}
	if m.liabilityEvents, err = meter.Int64Counter("pspcore_liability_events_total"); err != nil {
		return nil, err
	}
	if m.eventsAppended, err = meter.Int64Counter("pspcore_domain_events_appended_total"); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Metrics) RecordLedgerEntry(ctx context.Context, entryType string) {
	if m == nil {
		return
	}
	m.ledgerEntries.Add(ctx, 1, metric.WithAttributes(attribute.String("entry_type", entryType)))
}

func (m *Metrics) RecordGateEvaluation(ctx context.Context, gate, outcome string) {
	if m == nil {
		return
	}
	m.gateEvaluations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("gate", gate),
		attribute.String("outcome", outcome),
	))
}

func (m *Metrics) RecordInstructionCreated(ctx context.Context, purpose string) {
	if m == nil {
		return
	}
	m.instructionsCreated.Add(ctx, 1, metric.WithAttributes(attribute.String("purpose", purpose)))
}

func (m *Metrics) RecordReconciliationRecord(ctx context.Context, rail string) {
	if m == nil {
		return
	}
	m.reconciliationRecs.Add(ctx, 1, metric.WithAttributes(attribute.String("rail", rail)))
}

func (m *Metrics) RecordReconciliationError(ctx context.Context) {
	if m == nil {
		return
	}
	m.reconciliationErrs.Add(ctx, 1)
}

func (m *Metrics) RecordLiabilityEvent(ctx context.Context, liabilityParty string) {
	if m == nil {
		return
	}
	m.liabilityEvents.Add(ctx, 1, metric.WithAttributes(attribute.String("liability_party", liabilityParty)))
}

func (m *Metrics) RecordEventAppended(ctx context.Context, category string) {
	if m == nil {
		return
	}
	m.eventsAppended.Add(ctx, 1, metric.WithAttributes(attribute.String("category", category)))
}
