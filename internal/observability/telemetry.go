// Package observability wires OpenTelemetry tracing and metrics into the
// proxy. Everything is off unless an exporter is configured.
package observability

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const shutdownTimeout = 5 * time.Second

// Telemetry owns the providers created by Init.
type Telemetry struct {
	config         *Config
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
	metrics        *Metrics

	shutdownFuncs []func(context.Context) error
	shutdownOnce  sync.Once
}

// Init builds the providers cfg asks for and installs them globally. The
// returned cleanup flushes them; it is safe to call on every path.
func Init(ctx context.Context, cfg *Config) (*Telemetry, func(), error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	tel := &Telemetry{config: cfg}
	if !cfg.ShouldEnable() {
		return tel, func() {}, nil
	}
	if err := tel.start(ctx); err != nil {
		tel.Cleanup()
		return nil, nil, err
	}
	return tel, tel.Cleanup, nil
}

func (t *Telemetry) start(ctx context.Context) error {
	if t.config.TracesEnabled {
		tp, err := initTracerProvider(ctx, t.config)
		if err != nil {
			return err
		}
		t.tracerProvider = tp
		t.shutdownFuncs = append(t.shutdownFuncs, tp.Shutdown)
		otel.SetTracerProvider(tp)
	}

	if t.config.MetricsEnabled {
		mp, err := initMeterProvider(ctx, t.config)
		if err != nil {
			return err
		}
		t.meterProvider = mp
		t.shutdownFuncs = append(t.shutdownFuncs, mp.Shutdown)
		otel.SetMeterProvider(mp)

		if t.metrics, err = InitMetrics(mp); err != nil {
			return err
		}
	}
	return nil
}

// TracerProvider returns the configured provider, or a no-op one.
func (t *Telemetry) TracerProvider() trace.TracerProvider {
	if t.tracerProvider != nil {
		return t.tracerProvider
	}
	return noop.NewTracerProvider()
}

func (t *Telemetry) MeterProvider() metric.MeterProvider {
	if t.meterProvider != nil {
		return t.meterProvider
	}
	return otel.GetMeterProvider()
}

// Metrics is nil when metrics are disabled.
func (t *Telemetry) Metrics() *Metrics {
	return t.metrics
}

// Shutdown flushes pending spans and metrics. Later calls do nothing.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	var errs []error
	t.shutdownOnce.Do(func() {
		for _, fn := range t.shutdownFuncs {
			errs = append(errs, fn(ctx))
		}
	})
	return errors.Join(errs...)
}

// Cleanup is Shutdown bounded by a short timeout, for defer.
func (t *Telemetry) Cleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	_ = t.Shutdown(ctx)
}

func (t *Telemetry) Config() *Config {
	return t.config
}
