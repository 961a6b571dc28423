package knowledge

import (
	"context"
	"sync"
	"time"

	"github.com/compozy/techrag/engine/infra/monitoring/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	metricsOnce        sync.Once
	metricsMu          sync.Mutex
	metricsInitErr     error
	queryLatencyHist   metric.Float64Histogram
	queryEmptyCounter  metric.Int64Counter
	ingestChunkCounter metric.Int64Counter
	ingestDurationHist metric.Float64Histogram
	parentFetchCounter metric.Int64Counter
)

func RecordQueryLatency(ctx context.Context, provider string, d time.Duration) {
	if err := ensureMetrics(); err != nil || queryLatencyHist == nil {
		return
	}
	queryLatencyHist.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("provider", provider)))
}

func RecordQueryEmpty(ctx context.Context, filtered bool) {
	if err := ensureMetrics(); err != nil || queryEmptyCounter == nil {
		return
	}
	queryEmptyCounter.Add(ctx, 1, metric.WithAttributes(attribute.Bool("filtered", filtered)))
}

func RecordIngest(ctx context.Context, chunks int, d time.Duration) {
	if err := ensureMetrics(); err != nil || ingestChunkCounter == nil || ingestDurationHist == nil {
		return
	}
	ingestDurationHist.Record(ctx, d.Seconds())
	if chunks > 0 {
		ingestChunkCounter.Add(ctx, int64(chunks))
	}
}

func RecordParentFetch(ctx context.Context, found int) {
	if err := ensureMetrics(); err != nil || parentFetchCounter == nil {
		return
	}
	parentFetchCounter.Add(ctx, int64(found))
}

func ResetMetricsForTesting() {
	metricsMu.Lock()
	metricsOnce = sync.Once{}
	metricsInitErr = nil
	queryLatencyHist = nil
	queryEmptyCounter = nil
	ingestChunkCounter = nil
	ingestDurationHist = nil
	parentFetchCounter = nil
	metricsMu.Unlock()
}

func ensureMetrics() error {
	metricsOnce.Do(func() {
		meter := otel.GetMeterProvider().Meter("techrag.knowledge")
		metricsInitErr = initMetrics(meter)
	})
	return metricsInitErr
}

func initMetrics(meter metric.Meter) error {
	var err error
	queryLatencyHist, err = meter.Float64Histogram(
		metrics.MetricNameWithSubsystem("knowledge", "query_latency_seconds"),
		metric.WithDescription("Latency of hybrid search queries"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5),
	)
	if err != nil {
		return err
	}
	queryEmptyCounter, err = meter.Int64Counter(
		metrics.MetricNameWithSubsystem("knowledge", "query_empty_total"),
		metric.WithDescription("Number of searches that returned no results"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return err
	}
	ingestChunkCounter, err = meter.Int64Counter(
		metrics.MetricNameWithSubsystem("knowledge", "chunks_total"),
		metric.WithDescription("Number of chunks persisted by ingestion"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return err
	}
	ingestDurationHist, err = meter.Float64Histogram(
		metrics.MetricNameWithSubsystem("knowledge", "ingest_duration_seconds"),
		metric.WithDescription("Latency of ingestion runs"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120),
	)
	if err != nil {
		return err
	}
	parentFetchCounter, err = meter.Int64Counter(
		metrics.MetricNameWithSubsystem("knowledge", "parents_fetched_total"),
		metric.WithDescription("Number of parent documents loaded for expansion"),
		metric.WithUnit("1"),
	)
	return err
}
