package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMetricName(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "adds prefix", input: "sessions_total", expected: "techrag_sessions_total"},
		{name: "keeps prefixed", input: "techrag_custom_metric", expected: "techrag_custom_metric"},
		{name: "blank returns prefix", input: "", expected: "techrag_"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, MetricName(tt.input))
		})
	}
}

func TestMetricNameWithSubsystem(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name       string
		subsystem  string
		metricName string
		expected   string
	}{
		{name: "subsystem and name", subsystem: "agent", metricName: "steps_total", expected: "techrag_agent_steps_total"},
		{name: "subsystem trims underscore", subsystem: "_knowledge_", metricName: "queries_total", expected: "techrag_knowledge_queries_total"},
		{name: "empty name", subsystem: "websearch", metricName: "", expected: "techrag_websearch"},
		{name: "empty subsystem", subsystem: "", metricName: "uptime_seconds", expected: "techrag_uptime_seconds"},
		{name: "already prefixed", subsystem: "agent", metricName: "techrag_existing", expected: "techrag_existing"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, MetricNameWithSubsystem(tt.subsystem, tt.metricName))
		})
	}
}
