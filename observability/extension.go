// Package observability provides an OpenTelemetry metrics extension for
// the coordinator. Register it on the engine to record counters for
// worker churn, chunk throughput, item failures, and run outcomes.
package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/ostrokach/biskit/hook"
	"github.com/ostrokach/biskit/id"
	"github.com/ostrokach/biskit/sched"
	"github.com/ostrokach/biskit/work"
)

const instrumentationName = "github.com/ostrokach/biskit/observability"

// Compile-time interface checks.
var (
	_ hook.Extension      = (*MetricsExtension)(nil)
	_ hook.WorkerReady    = (*MetricsExtension)(nil)
	_ hook.WorkerDead     = (*MetricsExtension)(nil)
	_ hook.ChunkAssigned  = (*MetricsExtension)(nil)
	_ hook.ChunkCompleted = (*MetricsExtension)(nil)
	_ hook.ItemFailed     = (*MetricsExtension)(nil)
	_ hook.AllDone        = (*MetricsExtension)(nil)
)

// MetricsExtension records coordinator lifecycle metrics.
type MetricsExtension struct {
	WorkersReady    metric.Int64Counter
	WorkersDead     metric.Int64Counter
	ChunksAssigned  metric.Int64Counter
	ChunksCompleted metric.Int64Counter
	ChunkDuration   metric.Float64Histogram
	ItemsDone       metric.Int64Counter
	ItemsFailed     metric.Int64Counter
	RunsFinished    metric.Int64Counter
}

// NewMetricsExtension creates a MetricsExtension on the global meter
// provider.
func NewMetricsExtension() (*MetricsExtension, error) {
	return NewMetricsExtensionWithMeter(otel.Meter(instrumentationName))
}

// NewMetricsExtensionWithMeter creates a MetricsExtension with the
// provided meter.
func NewMetricsExtensionWithMeter(meter metric.Meter) (*MetricsExtension, error) {
	m := &MetricsExtension{}
	var err error

	if m.WorkersReady, err = meter.Int64Counter("biskit.worker.ready",
		metric.WithDescription("Workers that completed initialization")); err != nil {
		return nil, err
	}
	if m.WorkersDead, err = meter.Int64Counter("biskit.worker.dead",
		metric.WithDescription("Workers presumed or observed dead")); err != nil {
		return nil, err
	}
	if m.ChunksAssigned, err = meter.Int64Counter("biskit.chunk.assigned",
		metric.WithDescription("Chunks dispatched to workers")); err != nil {
		return nil, err
	}
	if m.ChunksCompleted, err = meter.Int64Counter("biskit.chunk.completed",
		metric.WithDescription("Chunks fully delivered")); err != nil {
		return nil, err
	}
	if m.ChunkDuration, err = meter.Float64Histogram("biskit.chunk.duration",
		metric.WithDescription("Chunk turnaround time"),
		metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if m.ItemsDone, err = meter.Int64Counter("biskit.item.done",
		metric.WithDescription("Items with a delivered result")); err != nil {
		return nil, err
	}
	if m.ItemsFailed, err = meter.Int64Counter("biskit.item.failed",
		metric.WithDescription("Items that exhausted their retry budget")); err != nil {
		return nil, err
	}
	if m.RunsFinished, err = meter.Int64Counter("biskit.run.finished",
		metric.WithDescription("Runs that reached a terminal state")); err != nil {
		return nil, err
	}
	return m, nil
}

// Name implements hook.Extension.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnWorkerReady implements hook.WorkerReady.
func (m *MetricsExtension) OnWorkerReady(ctx context.Context, _ id.WorkerID, host string) error {
	m.WorkersReady.Add(ctx, 1, metric.WithAttributes(attribute.String("host", host)))
	return nil
}

// OnWorkerDead implements hook.WorkerDead.
func (m *MetricsExtension) OnWorkerDead(ctx context.Context, _ id.WorkerID, host, reason string) error {
	m.WorkersDead.Add(ctx, 1, metric.WithAttributes(
		attribute.String("host", host),
		attribute.String("reason", reason),
	))
	return nil
}

// OnChunkAssigned implements hook.ChunkAssigned.
func (m *MetricsExtension) OnChunkAssigned(ctx context.Context, _ *sched.Chunk) error {
	m.ChunksAssigned.Add(ctx, 1)
	return nil
}

// OnChunkCompleted implements hook.ChunkCompleted.
func (m *MetricsExtension) OnChunkCompleted(ctx context.Context, c *sched.Chunk, elapsed time.Duration) error {
	m.ChunksCompleted.Add(ctx, 1)
	m.ChunkDuration.Record(ctx, elapsed.Seconds())
	m.ItemsDone.Add(ctx, int64(len(c.ItemIDs)))
	return nil
}

// OnItemFailed implements hook.ItemFailed.
func (m *MetricsExtension) OnItemFailed(ctx context.Context, _ string, _ int) error {
	m.ItemsFailed.Add(ctx, 1)
	return nil
}

// OnAllDone implements hook.AllDone.
func (m *MetricsExtension) OnAllDone(ctx context.Context, _ work.Results, failedIDs []string) error {
	outcome := "done"
	if len(failedIDs) > 0 {
		outcome = "failed"
	}
	m.RunsFinished.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	return nil
}
