package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/compozy/techrag/engine/infra/monitoring/metrics"
	"github.com/compozy/techrag/pkg/logger"
)

// confidenceBands are the upper bounds of the confidence distribution.
var confidenceBands = []struct {
	label string
	upper float64
}{
	{"0.0-0.2", 0.2},
	{"0.2-0.4", 0.4},
	{"0.4-0.6", 0.6},
	{"0.6-0.8", 0.8},
	{"0.8-1.0", 1.0},
}

func confidenceBand(c float64) string {
	for _, b := range confidenceBands {
		if c < b.upper {
			return b.label
		}
	}
	return confidenceBands[len(confidenceBands)-1].label
}

// StepStats aggregates executions of one step.
type StepStats struct {
	Count        int64   `json:"count"`
	Errors       int64   `json:"errors"`
	MeanDuration float64 `json:"mean_duration_seconds"`
	ErrorRate    float64 `json:"error_rate"`
}

// SessionStats aggregates finished sessions.
type SessionStats struct {
	Total         int64            `json:"total"`
	MeanLatency   float64          `json:"mean_latency_seconds"`
	WebSearchRate float64          `json:"web_search_rate"`
	Confidence    map[string]int64 `json:"confidence"`
}

// Summary is the aggregate view served to operators.
type Summary struct {
	Steps    map[StepName]StepStats `json:"steps"`
	Sessions SessionStats           `json:"sessions"`
}

// Sink persists aggregate counters outside the process.
type Sink interface {
	RecordStep(ctx context.Context, step StepName, d time.Duration, failed bool) error
	RecordSession(ctx context.Context, d time.Duration, webSearch bool, confidence float64) error
}

// SummaryReader is a Sink that can report the aggregate it holds.
type SummaryReader interface {
	Summary(ctx context.Context) (Summary, error)
}

type stepAgg struct {
	count  int64
	errors int64
	total  time.Duration
}

// Collector is shared by every session; it is safe for concurrent use.
type Collector struct {
	mu           sync.Mutex
	steps        map[StepName]*stepAgg
	sessions     int64
	totalLatency time.Duration
	webSearches  int64
	confidence   map[string]int64
	sink         Sink

	stepDuration    metric.Float64Histogram
	stepErrors      metric.Int64Counter
	sessionDuration metric.Float64Histogram
	sessionTotal    metric.Int64Counter
	confidenceHist  metric.Float64Histogram
}

type CollectorOption func(*Collector)

func WithSink(s Sink) CollectorOption {
	return func(c *Collector) {
		c.sink = s
	}
}

// NewCollector builds a collector on meter, or the global meter provider when nil.
func NewCollector(meter metric.Meter, opts ...CollectorOption) (*Collector, error) {
	if meter == nil {
		meter = otel.GetMeterProvider().Meter("techrag.agent")
	}
	c := &Collector{
		steps:      make(map[StepName]*stepAgg),
		confidence: make(map[string]int64),
	}
	for _, opt := range opts {
		opt(c)
	}
	if err := c.initInstruments(meter); err != nil {
		return nil, fmt.Errorf("failed to create agent metrics: %w", err)
	}
	return c, nil
}

func (c *Collector) initInstruments(meter metric.Meter) error {
	var err error
	c.stepDuration, err = meter.Float64Histogram(
		metrics.MetricNameWithSubsystem("agent", "step_duration_seconds"),
		metric.WithDescription("Duration of agent step executions"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(metrics.StepDurationBuckets...),
	)
	if err != nil {
		return err
	}
	c.stepErrors, err = meter.Int64Counter(
		metrics.MetricNameWithSubsystem("agent", "step_errors_total"),
		metric.WithDescription("Agent step executions that did not succeed"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return err
	}
	c.sessionDuration, err = meter.Float64Histogram(
		metrics.MetricNameWithSubsystem("agent", "session_duration_seconds"),
		metric.WithDescription("Duration of question sessions"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(metrics.SessionDurationBuckets...),
	)
	if err != nil {
		return err
	}
	c.sessionTotal, err = meter.Int64Counter(
		metrics.MetricNameWithSubsystem("agent", "sessions_total"),
		metric.WithDescription("Question sessions completed"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return err
	}
	c.confidenceHist, err = meter.Float64Histogram(
		metrics.MetricNameWithSubsystem("agent", "answer_confidence"),
		metric.WithDescription("Confidence of returned answers"),
		metric.WithUnit("1"),
		metric.WithExplicitBucketBoundaries(metrics.ConfidenceBuckets...),
	)
	return err
}

// RecordStep adds one step execution.
func (c *Collector) RecordStep(ctx context.Context, step StepName, res *StepResult) {
	failed := !res.Success
	c.mu.Lock()
	agg, ok := c.steps[step]
	if !ok {
		agg = &stepAgg{}
		c.steps[step] = agg
	}
	agg.count++
	agg.total += res.Metrics.Duration
	if failed {
		agg.errors++
	}
	c.mu.Unlock()

	attrs := metric.WithAttributes(attribute.String("step", string(step)))
	c.stepDuration.Record(ctx, res.Metrics.Duration.Seconds(), attrs)
	if failed {
		c.stepErrors.Add(ctx, 1, attrs)
	}
	if c.sink != nil {
		if err := c.sink.RecordStep(ctx, step, res.Metrics.Duration, failed); err != nil {
			logger.FromContext(ctx).Warn("Failed to persist step metrics", "step", string(step), "error", err)
		}
	}
}

// RecordSession adds one finished session.
func (c *Collector) RecordSession(ctx context.Context, d time.Duration, webSearch bool, confidence float64) {
	band := confidenceBand(confidence)
	c.mu.Lock()
	c.sessions++
	c.totalLatency += d
	if webSearch {
		c.webSearches++
	}
	c.confidence[band]++
	c.mu.Unlock()

	attrs := metric.WithAttributes(attribute.Bool("web_search", webSearch))
	c.sessionTotal.Add(ctx, 1, attrs)
	c.sessionDuration.Record(ctx, d.Seconds(), attrs)
	c.confidenceHist.Record(ctx, confidence)
	if c.sink != nil {
		if err := c.sink.RecordSession(ctx, d, webSearch, confidence); err != nil {
			logger.FromContext(ctx).Warn("Failed to persist session metrics", "error", err)
		}
	}
}

// Summary reports what this process has recorded.
func (c *Collector) Summary() Summary {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := Summary{
		Steps: make(map[StepName]StepStats, len(c.steps)),
		Sessions: SessionStats{
			Total:      c.sessions,
			Confidence: make(map[string]int64, len(c.confidence)),
		},
	}
	for name, agg := range c.steps {
		out.Steps[name] = newStepStats(agg.count, agg.errors, agg.total.Seconds())
	}
	if c.sessions > 0 {
		out.Sessions.MeanLatency = c.totalLatency.Seconds() / float64(c.sessions)
		out.Sessions.WebSearchRate = float64(c.webSearches) / float64(c.sessions)
	}
	for band, n := range c.confidence {
		out.Sessions.Confidence[band] = n
	}
	return out
}

// AggregateSummary prefers the sink's cross-process view when it has one.
func (c *Collector) AggregateSummary(ctx context.Context) (Summary, error) {
	if reader, ok := c.sink.(SummaryReader); ok {
		return reader.Summary(ctx)
	}
	return c.Summary(), nil
}

func newStepStats(count, errors int64, totalSeconds float64) StepStats {
	s := StepStats{Count: count, Errors: errors}
	if count > 0 {
		s.MeanDuration = totalSeconds / float64(count)
		s.ErrorRate = float64(errors) / float64(count)
	}
	return s
}
