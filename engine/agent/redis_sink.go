package agent

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	fieldCount      = "count"
	fieldErrors     = "errors"
	fieldDuration   = "duration_seconds"
	fieldTotal      = "total"
	fieldLatency    = "latency_seconds"
	fieldWebSearch  = "web_search"
	confidenceField = "confidence:"
)

// RedisSink keeps aggregate counters in Redis hashes so several processes
// share one view.
type RedisSink struct {
	client redis.Cmdable
	prefix string
}

func NewRedisSink(client redis.Cmdable, prefix string) *RedisSink {
	if prefix == "" {
		prefix = "techrag:metrics"
	}
	return &RedisSink{client: client, prefix: strings.TrimRight(prefix, ":")}
}

func (r *RedisSink) stepKey(step StepName) string {
	return r.prefix + ":step:" + string(step)
}

func (r *RedisSink) sessionKey() string {
	return r.prefix + ":sessions"
}

func (r *RedisSink) RecordStep(ctx context.Context, step StepName, d time.Duration, failed bool) error {
	key := r.stepKey(step)
	_, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HIncrBy(ctx, key, fieldCount, 1)
		if failed {
			p.HIncrBy(ctx, key, fieldErrors, 1)
		}
		p.HIncrByFloat(ctx, key, fieldDuration, d.Seconds())
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis sink: record step %s: %w", step, err)
	}
	return nil
}

func (r *RedisSink) RecordSession(ctx context.Context, d time.Duration, webSearch bool, confidence float64) error {
	key := r.sessionKey()
	_, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HIncrBy(ctx, key, fieldTotal, 1)
		p.HIncrByFloat(ctx, key, fieldLatency, d.Seconds())
		if webSearch {
			p.HIncrBy(ctx, key, fieldWebSearch, 1)
		}
		p.HIncrBy(ctx, key, confidenceField+confidenceBand(confidence), 1)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis sink: record session: %w", err)
	}
	return nil
}

// Summary reads every step hash and the session hash.
func (r *RedisSink) Summary(ctx context.Context) (Summary, error) {
	out := Summary{
		Steps:    make(map[StepName]StepStats),
		Sessions: SessionStats{Confidence: make(map[string]int64)},
	}
	for _, step := range Steps() {
		h, err := r.client.HGetAll(ctx, r.stepKey(step)).Result()
		if err != nil {
			return Summary{}, fmt.Errorf("redis sink: read step %s: %w", step, err)
		}
		if len(h) == 0 {
			continue
		}
		out.Steps[step] = newStepStats(parseInt(h[fieldCount]), parseInt(h[fieldErrors]), parseFloat(h[fieldDuration]))
	}
	h, err := r.client.HGetAll(ctx, r.sessionKey()).Result()
	if err != nil {
		return Summary{}, fmt.Errorf("redis sink: read sessions: %w", err)
	}
	total := parseInt(h[fieldTotal])
	out.Sessions.Total = total
	if total > 0 {
		out.Sessions.MeanLatency = parseFloat(h[fieldLatency]) / float64(total)
		out.Sessions.WebSearchRate = float64(parseInt(h[fieldWebSearch])) / float64(total)
	}
	for field, v := range h {
		if band, ok := strings.CutPrefix(field, confidenceField); ok {
			out.Sessions.Confidence[band] = parseInt(v)
		}
	}
	return out, nil
}

func parseInt(s string) int64 {
	v, _ := strconv.ParseInt(s, 10, 64)
	return v
}

func parseFloat(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}
