package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ChartMetrics holds custom metrics for chart-data requests.
// A nil *ChartMetrics records nothing.
type ChartMetrics struct {
	requestDuration metric.Float64Histogram
	requestCounter  metric.Int64Counter
	errorCounter    metric.Int64Counter
	activeRequests  metric.Int64UpDownCounter
	resultRows      metric.Int64Histogram
	queryRetries    metric.Int64Counter
}

// InitChartMetrics initializes chart-specific metrics.
func InitChartMetrics() (*ChartMetrics, error) {
	meter := otel.Meter("tidb-charts")

	requestDuration, err := meter.Float64Histogram(
		"charts.request.duration",
		metric.WithDescription("Duration of chart-data requests in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request duration histogram: %w", err)
	}

	requestCounter, err := meter.Int64Counter(
		"charts.requests.total",
		metric.WithDescription("Total number of chart-data requests"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request counter: %w", err)
	}

	errorCounter, err := meter.Int64Counter(
		"charts.errors.total",
		metric.WithDescription("Total number of failed chart-data requests by error kind"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create error counter: %w", err)
	}

	activeRequests, err := meter.Int64UpDownCounter(
		"charts.requests.active",
		metric.WithDescription("Number of in-flight chart-data requests"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create active requests counter: %w", err)
	}

	resultRows, err := meter.Int64Histogram(
		"charts.result.rows",
		metric.WithDescription("Number of normalized rows returned per chart"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create result rows histogram: %w", err)
	}

	queryRetries, err := meter.Int64Counter(
		"charts.query.retries.total",
		metric.WithDescription("Number of chart queries retried after a transient connection error"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create query retries counter: %w", err)
	}

	return &ChartMetrics{
		requestDuration: requestDuration,
		requestCounter:  requestCounter,
		errorCounter:    errorCounter,
		activeRequests:  activeRequests,
		resultRows:      resultRows,
		queryRetries:    queryRetries,
	}, nil
}

// RequestStarted marks a chart request in flight. Call the returned func when it ends.
func (m *ChartMetrics) RequestStarted(ctx context.Context) func() {
	if m == nil {
		return func() {}
	}
	m.activeRequests.Add(ctx, 1)
	return func() {
		m.activeRequests.Add(ctx, -1)
	}
}

// RecordRequest records a chart request with its duration and outcome.
// errorKind is empty on success.
func (m *ChartMetrics) RecordRequest(ctx context.Context, duration time.Duration, plan string, errorKind string) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("plan", plan),
		attribute.Bool("has_errors", errorKind != ""),
	}

	m.requestDuration.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
	m.requestCounter.Add(ctx, 1, metric.WithAttributes(attrs...))

	if errorKind != "" {
		m.errorCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("error_kind", errorKind),
		))
	}
}

// RecordResultRows records the number of rows returned.
func (m *ChartMetrics) RecordResultRows(ctx context.Context, count int64, plan string) {
	if m == nil {
		return
	}
	m.resultRows.Record(ctx, count, metric.WithAttributes(
		attribute.String("plan", plan),
	))
}

// RecordQueryRetry counts one retry of a chart query.
func (m *ChartMetrics) RecordQueryRetry(ctx context.Context) {
	if m == nil {
		return
	}
	m.queryRetries.Add(ctx, 1)
}
