package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
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
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes application-level instruments.
type Metrics struct {
	pledgesCreated  metric.Int64Counter
	webhookEvents   metric.Int64Counter
	idempotencyHits metric.Int64Counter
	totalsReads     metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	return provider, nil
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	switch strings.ToLower(strings.TrimSpace(protocol)) {
	case "", "grpc":
		return otlpmetricgrpc.New(context.Background(),
			otlpmetricgrpc.WithEndpoint(endpoint),
			otlpmetricgrpc.WithInsecure(),
		)
	case "http", "http/protobuf":
		return otlpmetrichttp.New(context.Background(),
			otlpmetrichttp.WithEndpoint(endpoint),
			otlpmetrichttp.WithInsecure(),
		)
	default:
		return nil, fmt.Errorf("unsupported otlp protocol %q", protocol)
	}
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "fundway"
	}
	meter := provider.Meter(name)

	pledgesCreated, err := meter.Int64Counter("fundway_pledges_created_total")
	if err != nil {
		return nil, err
	}
	webhookEvents, err := meter.Int64Counter("fundway_webhook_events_total")
	if err != nil {
		return nil, err
	}
	idempotencyHits, err := meter.Int64Counter("fundway_idempotency_hits_total")
	if err != nil {
		return nil, err
	}
	totalsReads, err := meter.Int64Counter("fundway_totals_reads_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		pledgesCreated:  pledgesCreated,
		webhookEvents:   webhookEvents,
		idempotencyHits: idempotencyHits,
		totalsReads:     totalsReads,
	}, nil
}

// RecordPledgeCreated increments pledge creation counts.
func (m *Metrics) RecordPledgeCreated(ctx context.Context, currency string) {
	if m == nil {
		return
	}
	m.pledgesCreated.Add(ctx, 1, metric.WithAttributes(
		attribute.String("currency", strings.ToUpper(strings.TrimSpace(currency))),
	))
}

// RecordWebhookEvent increments webhook counts by outcome.
func (m *Metrics) RecordWebhookEvent(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.webhookEvents.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", strings.TrimSpace(outcome)),
	))
}

// RecordIdempotencyHit increments idempotency hit counts by tier.
func (m *Metrics) RecordIdempotencyHit(ctx context.Context, tier string) {
	if m == nil {
		return
	}
	m.idempotencyHits.Add(ctx, 1, metric.WithAttributes(
		attribute.String("tier", strings.TrimSpace(tier)),
	))
}

// RecordTotalsRead increments totals read counts by data source.
func (m *Metrics) RecordTotalsRead(ctx context.Context, source string) {
	if m == nil {
		return
	}
	m.totalsReads.Add(ctx, 1, metric.WithAttributes(
		attribute.String("source", strings.TrimSpace(source)),
	))
}
