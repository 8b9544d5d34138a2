package observability

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"storefront-backend/internal/config"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/exemplar"
)

const meterName = "storefront-backend"

type AppMetrics struct {
	accountFlowCounter       metric.Int64Counter
	accountReqDuration       metric.Float64Histogram
	effectDispatchCounter    metric.Int64Counter
	effectProcessCounter     metric.Int64Counter
	effectProcessDuration    metric.Float64Histogram
	walletCreditCounter      metric.Int64Counter
	rateLimitDecisionCounter metric.Int64Counter
	healthCheckResultCounter metric.Int64Counter
	healthCheckDuration      metric.Float64Histogram
}

var (
	metricsMu  sync.RWMutex
	appMetrics *AppMetrics
)

func InitMetrics(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*sdkmetric.MeterProvider, error) {
	if !cfg.OTELMetricsEnabled {
		mp := sdkmetric.NewMeterProvider()
		otel.SetMeterProvider(mp)
		logger.Info("otel metrics disabled")
		return mp, nil
	}

	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.OTELExporterOTLPEndpoint)}
	if cfg.OTELExporterOTLPInsecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	exporter, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create otlp metric exporter: %w", err)
	}

	res, err := newResource(ctx, cfg)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(cfg.OTELMetricsExportInterval))
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
		sdkmetric.WithExemplarFilter(exemplar.TraceBasedFilter),
		sdkmetric.WithView(sdkmetric.NewView(
			sdkmetric.Instrument{Name: "account.request.duration"},
			sdkmetric.Stream{
				Aggregation: sdkmetric.AggregationExplicitBucketHistogram{
					Boundaries: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
				},
			},
		)),
	)
	otel.SetMeterProvider(mp)

	meter := mp.Meter(meterName)
	accountFlow, err := meter.Int64Counter(
		"account.flow.events",
		metric.WithDescription("Account lifecycle flow events by flow and outcome"),
	)
	if err != nil {
		return nil, err
	}
	accountReqDuration, err := meter.Float64Histogram(
		"account.request.duration",
		metric.WithUnit("s"),
		metric.WithDescription("Duration of account endpoint requests in seconds"),
	)
	if err != nil {
		return nil, err
	}
	effectDispatch, err := meter.Int64Counter(
		"effect.dispatch.events",
		metric.WithDescription("Effects submitted to the stream by kind and outcome"),
	)
	if err != nil {
		return nil, err
	}
	effectProcess, err := meter.Int64Counter(
		"effect.process.events",
		metric.WithDescription("Effects processed by the runner by kind and outcome"),
	)
	if err != nil {
		return nil, err
	}
	effectProcessDuration, err := meter.Float64Histogram(
		"effect.process.duration",
		metric.WithUnit("s"),
		metric.WithDescription("Duration of effect handler invocations in seconds"),
	)
	if err != nil {
		return nil, err
	}
	walletCredit, err := meter.Int64Counter(
		"wallet.credit.events",
		metric.WithDescription("Wallet credit attempts by outcome (applied, duplicate, error)"),
	)
	if err != nil {
		return nil, err
	}
	rateLimitDecisions, err := meter.Int64Counter(
		"http.rate_limit.decisions",
		metric.WithDescription("Rate limiter allow/throttle decisions by scope"),
	)
	if err != nil {
		return nil, err
	}
	healthCheckResults, err := meter.Int64Counter("health.check.results")
	if err != nil {
		return nil, err
	}
	healthCheckDuration, err := meter.Float64Histogram(
		"health.check.duration",
		metric.WithUnit("s"),
		metric.WithDescription("Duration of health dependency checks in seconds"),
	)
	if err != nil {
		return nil, err
	}

	metricsMu.Lock()
	appMetrics = &AppMetrics{
		accountFlowCounter:       accountFlow,
		accountReqDuration:       accountReqDuration,
		effectDispatchCounter:    effectDispatch,
		effectProcessCounter:     effectProcess,
		effectProcessDuration:    effectProcessDuration,
		walletCreditCounter:      walletCredit,
		rateLimitDecisionCounter: rateLimitDecisions,
		healthCheckResultCounter: healthCheckResults,
		healthCheckDuration:      healthCheckDuration,
	}
	metricsMu.Unlock()

	logger.Info("otel metrics initialized", "endpoint", cfg.OTELExporterOTLPEndpoint)
	return mp, nil
}

func current() *AppMetrics {
	metricsMu.RLock()
	defer metricsMu.RUnlock()
	return appMetrics
}

// RecordAccountFlow counts a lifecycle flow event, e.g. ("register",
// "success") or ("verify_email", "invalid_link").
func RecordAccountFlow(ctx context.Context, flow, outcome string) {
	m := current()
	if m == nil {
		return
	}
	m.accountFlowCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("flow", flow),
		attribute.String("outcome", outcome),
	))
}

func RecordAccountRequestDuration(ctx context.Context, endpoint, status string, duration time.Duration) {
	m := current()
	if m == nil {
		return
	}
	m.accountReqDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("endpoint", endpoint),
		attribute.String("status", status),
	))
}

func RecordEffectDispatch(ctx context.Context, kind, outcome string) {
	m := current()
	if m == nil {
		return
	}
	m.effectDispatchCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("outcome", outcome),
	))
}

func RecordEffectProcess(ctx context.Context, kind, outcome string, duration time.Duration) {
	m := current()
	if m == nil {
		return
	}
	m.effectProcessCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("outcome", outcome),
	))
	m.effectProcessDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("kind", kind),
	))
}

func RecordWalletCredit(ctx context.Context, outcome string) {
	m := current()
	if m == nil {
		return
	}
	m.walletCreditCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", outcome),
	))
}

func RecordRateLimitDecision(ctx context.Context, scope, outcome string) {
	m := current()
	if m == nil {
		return
	}
	m.rateLimitDecisionCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("scope", scope),
		attribute.String("outcome", outcome),
	))
}

func RecordHealthCheckResult(ctx context.Context, check, outcome string) {
	m := current()
	if m == nil {
		return
	}
	m.healthCheckResultCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("check", check),
		attribute.String("outcome", outcome),
	))
}

func RecordHealthCheckDuration(ctx context.Context, check string, duration time.Duration) {
	m := current()
	if m == nil {
		return
	}
	m.healthCheckDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("check", check),
	))
}
