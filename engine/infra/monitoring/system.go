package monitoring

import (
	"context"
	"runtime"
	"runtime/debug"
	"time"

	"github.com/compozy/techrag/engine/infra/monitoring/metrics"
	"github.com/compozy/techrag/pkg/logger"
	buildversion "github.com/compozy/techrag/pkg/version"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const unknownBuildValue = "unknown"

// systemMetrics reports build information and process uptime.
type systemMetrics struct {
	started      time.Time
	buildInfo    metric.Float64Gauge
	uptime       metric.Float64ObservableGauge
	registration metric.Registration
}

func newSystemMetrics(ctx context.Context, meter metric.Meter) (*systemMetrics, error) {
	s := &systemMetrics{started: time.Now()}
	var err error
	s.buildInfo, err = meter.Float64Gauge(
		metrics.MetricName("build_info"),
		metric.WithDescription("Build information (value=1)"),
	)
	if err != nil {
		return nil, err
	}
	s.uptime, err = meter.Float64ObservableGauge(
		metrics.MetricName("uptime_seconds"),
		metric.WithDescription("Process uptime in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}
	s.registration, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		o.ObserveFloat64(s.uptime, time.Since(s.started).Seconds())
		return nil
	}, s.uptime)
	if err != nil {
		return nil, err
	}
	b := currentBuild()
	s.buildInfo.Record(ctx, 1, metric.WithAttributes(
		attribute.String("version", b.version),
		attribute.String("commit_hash", b.commit),
		attribute.String("go_version", b.goVersion),
	))
	logger.FromContext(ctx).Debug("System metrics registered", "version", b.version, "commit", b.commit)
	return s, nil
}

func (s *systemMetrics) close() error {
	if s == nil || s.registration == nil {
		return nil
	}
	err := s.registration.Unregister()
	s.registration = nil
	return err
}

type build struct {
	version   string
	commit    string
	goVersion string
}

// currentBuild prefers ldflags values and falls back to module build info.
func currentBuild() build {
	b := build{
		version:   buildversion.Version,
		commit:    buildversion.CommitHash,
		goVersion: runtime.Version(),
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return b
	}
	if b.version == unknownBuildValue && info.Main.Version != "" && info.Main.Version != "(devel)" {
		b.version = info.Main.Version
	}
	if b.commit == unknownBuildValue {
		for _, setting := range info.Settings {
			if setting.Key == "vcs.revision" {
				b.commit = setting.Value
				break
			}
		}
	}
	return b
}
