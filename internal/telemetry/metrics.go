// Package telemetry provides OpenTelemetry instrumentation for the cache
// sync pipeline.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// SyncMetricsMeterName is the name used for the sync metrics meter
const SyncMetricsMeterName = "github.com/arkeo-network/arkeo-cache-sync/sync"

// SyncMetrics holds the OpenTelemetry instruments for sync cycle metrics
type SyncMetrics struct {
	cycleDuration  metric.Float64Histogram
	sourceFailures metric.Int64Counter
	metadataFetch  metric.Int64Counter
}

// NewSyncMetrics creates a new SyncMetrics instance with the given meter provider.
// If provider is nil, it returns nil (no-op metrics).
func NewSyncMetrics(provider metric.MeterProvider) (*SyncMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(SyncMetricsMeterName)

	cycleDuration, err := meter.Float64Histogram(
		"arkeo_cache_sync_cycle_duration_seconds",
		metric.WithDescription("Duration of sync cycles in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300),
	)
	if err != nil {
		return nil, err
	}

	sourceFailures, err := meter.Int64Counter(
		"arkeo_cache_sync_source_failures_total",
		metric.WithDescription("Number of source queries that failed"),
		metric.WithUnit("{query}"),
	)
	if err != nil {
		return nil, err
	}

	metadataFetch, err := meter.Int64Counter(
		"arkeo_cache_sync_metadata_fetches_total",
		metric.WithDescription("Number of metadata URI fetch attempts"),
		metric.WithUnit("{fetch}"),
	)
	if err != nil {
		return nil, err
	}

	return &SyncMetrics{
		cycleDuration:  cycleDuration,
		sourceFailures: sourceFailures,
		metadataFetch:  metadataFetch,
	}, nil
}

// RecordCycleDuration records the duration of one sync cycle
func (m *SyncMetrics) RecordCycleDuration(ctx context.Context, duration time.Duration, success bool) {
	if m == nil || m.cycleDuration == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.Bool("success", success),
	}

	m.cycleDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordSourceFailure records a failed source query
func (m *SyncMetrics) RecordSourceFailure(ctx context.Context, source string) {
	if m == nil || m.sourceFailures == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("source", source),
	}

	m.sourceFailures.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordMetadataFetches records metadata fetch attempts for one cycle
func (m *SyncMetrics) RecordMetadataFetches(ctx context.Context, fetched int) {
	if m == nil || m.metadataFetch == nil {
		return
	}

	m.metadataFetch.Add(ctx, int64(fetched))
}
