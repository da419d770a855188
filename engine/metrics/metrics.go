// Package metrics records pipeline and chain telemetry through the global
// OpenTelemetry meter provider. Recording is best-effort: a meter that fails
// to initialise silently disables the instruments.
package metrics

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "ragplane.engine"

var (
	metricsOnce      sync.Once
	metricsMu        sync.Mutex
	metricsInitErr   error
	ingestDuration   metric.Float64Histogram
	documentCounter  metric.Int64Counter
	chunkCounter     metric.Int64Counter
	chainLatency     metric.Float64Histogram
	toolCallCounter  metric.Int64Counter
	taskStateCounter metric.Int64Counter
)

// RecordIngestDuration records one loader pipeline run.
func RecordIngestDuration(ctx context.Context, loaderID string, d time.Duration) {
	if err := ensureMetrics(); err != nil || ingestDuration == nil {
		return
	}
	ingestDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("loader_id", loaderID)))
}

// RecordDocumentsLoaded counts documents produced by a loader run.
func RecordDocumentsLoaded(ctx context.Context, loaderID string, n int) {
	if n <= 0 {
		return
	}
	if err := ensureMetrics(); err != nil || documentCounter == nil {
		return
	}
	documentCounter.Add(ctx, int64(n), metric.WithAttributes(attribute.String("loader_id", loaderID)))
}

// RecordChunks counts chunks produced by a transformer run.
func RecordChunks(ctx context.Context, transformerID string, n int) {
	if n <= 0 {
		return
	}
	if err := ensureMetrics(); err != nil || chunkCounter == nil {
		return
	}
	chunkCounter.Add(ctx, int64(n), metric.WithAttributes(attribute.String("transformer_id", transformerID)))
}

// RecordChainLatency records one chain invocation by surface.
func RecordChainLatency(ctx context.Context, chainID, surface string, d time.Duration) {
	if err := ensureMetrics(); err != nil || chainLatency == nil {
		return
	}
	chainLatency.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String("chain_id", chainID),
		attribute.String("surface", surface),
	))
}

// RecordToolCall counts one agent tool dispatch.
func RecordToolCall(ctx context.Context, chainID, toolName string) {
	if err := ensureMetrics(); err != nil || toolCallCounter == nil {
		return
	}
	toolCallCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("chain_id", chainID),
		attribute.String("tool", toolName),
	))
}

// RecordTaskTransition counts task status transitions.
func RecordTaskTransition(ctx context.Context, endpoint, status string) {
	if err := ensureMetrics(); err != nil || taskStateCounter == nil {
		return
	}
	taskStateCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("endpoint", endpoint),
		attribute.String("status", status),
	))
}

// ResetForTesting clears instrument state so tests observe fresh meters.
func ResetForTesting() {
	metricsMu.Lock()
	metricsOnce = sync.Once{}
	metricsInitErr = nil
	ingestDuration = nil
	documentCounter = nil
	chunkCounter = nil
	chainLatency = nil
	toolCallCounter = nil
	taskStateCounter = nil
	metricsMu.Unlock()
}

func ensureMetrics() error {
	metricsOnce.Do(func() {
		meter := otel.GetMeterProvider().Meter(meterName)
		metricsInitErr = initInstruments(meter)
	})
	return metricsInitErr
}

func initInstruments(meter metric.Meter) error {
	var err error
	ingestDuration, err = meter.Float64Histogram(
		"ragplane_ingest_duration_seconds",
		metric.WithDescription("Latency of document loader runs"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120),
	)
	if err != nil {
		return err
	}
	documentCounter, err = meter.Int64Counter(
		"ragplane_documents_loaded_total",
		metric.WithDescription("Documents produced by loader runs"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return err
	}
	chunkCounter, err = meter.Int64Counter(
		"ragplane_chunks_total",
		metric.WithDescription("Chunks produced by transformer runs"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return err
	}
	chainLatency, err = meter.Float64Histogram(
		"ragplane_chain_latency_seconds",
		metric.WithDescription("Latency of chain invocations by surface"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60),
	)
	if err != nil {
		return err
	}
	toolCallCounter, err = meter.Int64Counter(
		"ragplane_tool_calls_total",
		metric.WithDescription("Agent tool dispatches"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return err
	}
	taskStateCounter, err = meter.Int64Counter(
		"ragplane_task_transitions_total",
		metric.WithDescription("Background task status transitions"),
		metric.WithUnit("1"),
	)
	return err
}
