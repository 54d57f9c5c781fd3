package observability

import (
	"context"
	"fmt"
	"os"

	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Metrics holds the proxy's metric instruments.
type Metrics struct {
	// HTTP server metrics
	HTTPRequestCount    metric.Int64Counter
	HTTPRequestDuration metric.Float64Histogram
	HTTPResponseSize    metric.Int64Histogram

	// SQL execution metrics
	SQLExecutionCount    metric.Int64Counter
	SQLExecutionDuration metric.Float64Histogram
	SQLAttempts          metric.Int64Histogram
}

// InitMetrics initializes and returns metric instruments.
func InitMetrics(mp metric.MeterProvider) (*Metrics, error) {
	meter := mp.Meter("wmai")

	m := &Metrics{}

	var err error
	m.HTTPRequestCount, err = meter.Int64Counter(
		"http.server.request_count",
		metric.WithDescription("Number of HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request count counter: %w", err)
	}

	m.HTTPRequestDuration, err = meter.Float64Histogram(
		"http.server.request_duration",
		metric.WithDescription("HTTP request latency"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request duration histogram: %w", err)
	}

	m.HTTPResponseSize, err = meter.Int64Histogram(
		"http.server.response_size",
		metric.WithDescription("HTTP response size in bytes"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create response size histogram: %w", err)
	}

	m.SQLExecutionCount, err = meter.Int64Counter(
		"sql.execution.count",
		metric.WithDescription("Number of SQL executions by method and status"),
		metric.WithUnit("{execution}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create execution count counter: %w", err)
	}

	m.SQLExecutionDuration, err = meter.Float64Histogram(
		"sql.execution.duration",
		metric.WithDescription("SQL execution latency across the whole strategy cascade"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create execution duration histogram: %w", err)
	}

	m.SQLAttempts, err = meter.Int64Histogram(
		"sql.execution.attempts",
		metric.WithDescription("Strategy attempts per SQL execution"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create attempts histogram: %w", err)
	}

	return m, nil
}

// initMeterProvider initializes the meter provider based on config.
func initMeterProvider(ctx context.Context, cfg *Config) (*sdkmetric.MeterProvider, error) {
	var reader sdkmetric.Reader

	switch cfg.Exporter {
	case ExporterStdout:
		exporter, err := stdoutmetric.New(stdoutmetric.WithWriter(os.Stderr))
		if err != nil {
			return nil, fmt.Errorf("failed to create stdout metric exporter: %w", err)
		}
		reader = sdkmetric.NewPeriodicReader(exporter)
	case ExporterOTLP:
		conn, err := dialCollector(ctx, cfg.Endpoint)
		if err != nil {
			return nil, err
		}
		exporter, err := otlpmetricgrpc.New(ctx, otlpmetricgrpc.WithGRPCConn(conn))
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP metrics exporter: %w", err)
		}
		reader = sdkmetric.NewPeriodicReader(exporter)
	default:
		return nil, fmt.Errorf("unknown exporter: %s", cfg.Exporter)
	}

	res, err := newResource(ctx, cfg)
	if err != nil {
		return nil, err
	}

	return sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(reader),
		sdkmetric.WithResource(res),
	), nil
}

// ObserveExecution records one finished SQL execution. It is a no-op when
// metrics are disabled.
func (t *Telemetry) ObserveExecution(ctx context.Context, method, status string, durationMs int64, attempts int) {
	if t == nil || t.metrics == nil {
		return
	}
	if method == "" {
		method = "none"
	}
	attrs := metric.WithAttributes(AttrSQLMethod.String(method), AttrSQLStatus.String(status))
	t.metrics.SQLExecutionCount.Add(ctx, 1, attrs)
	t.metrics.SQLExecutionDuration.Record(ctx, float64(durationMs), attrs)
	t.metrics.SQLAttempts.Record(ctx, int64(attempts), attrs)
}
