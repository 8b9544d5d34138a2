package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"storefront-backend/internal/config"

	"go.opentelemetry.io/otel/attribute"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

type shutdowner interface {
	Shutdown(ctx context.Context) error
}

// Runtime bundles the OTel providers shared by the api and worker binaries.
// Logs, metrics and traces all attach the same storefront resource, so the
// account flows can be joined across the three signals.
type Runtime struct {
	LoggerProvider *sdklog.LoggerProvider
	MeterProvider  *sdkmetric.MeterProvider
	TracerProvider *sdktrace.TracerProvider
}

// newResource builds the resource every exporter in this process reports
// under. One definition keeps api and worker telemetry attributable to the
// same service identity.
func newResource(ctx context.Context, cfg *config.Config) (*sdkresource.Resource, error) {
	res, err := sdkresource.New(ctx,
		sdkresource.WithAttributes(
			attribute.String("service.name", cfg.OTELServiceName),
			attribute.String("service.namespace", "storefront"),
			attribute.String("deployment.environment", cfg.OTELEnvironment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create otel resource: %w", err)
	}
	return res, nil
}

// InitRuntime brings up logs, then metrics, then tracing. A failure part-way
// shuts the already-started providers back down in reverse order.
func InitRuntime(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Runtime, error) {
	var started []shutdowner
	rollback := func() {
		for i := len(started) - 1; i >= 0; i-- {
			_ = started[i].Shutdown(ctx)
		}
	}

	lp, err := InitLogs(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	if lp != nil {
		started = append(started, lp)
	}

	mp, err := InitMetrics(ctx, cfg, logger)
	if err != nil {
		rollback()
		return nil, err
	}
	if mp != nil {
		started = append(started, mp)
	}

	tp, err := InitTracing(ctx, cfg, logger)
	if err != nil {
		rollback()
		return nil, err
	}

	return &Runtime{LoggerProvider: lp, MeterProvider: mp, TracerProvider: tp}, nil
}

func (r *Runtime) Shutdown(ctx context.Context) error {
	if r == nil {
		return nil
	}
	var errs []error
	if r.LoggerProvider != nil {
		if err := r.LoggerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if r.MeterProvider != nil {
		if err := r.MeterProvider.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if r.TracerProvider != nil {
		if err := r.TracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
