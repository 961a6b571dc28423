package monitoring

import (
	"testing"

	"github.com/compozy/techrag/pkg/config"
	"github.com/stretchr/testify/assert"
)

func TestDefaultConfig(t *testing.T) {
	t.Run("Should return config with default values", func(t *testing.T) {
		cfg := DefaultConfig()
		assert.False(t, cfg.Enabled)
		assert.Equal(t, "/metrics", cfg.Path)
		assert.NoError(t, cfg.Validate())
	})
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		wantErr string
	}{
		{name: "Should reject empty path", path: "", wantErr: "cannot be empty"},
		{name: "Should reject relative path", path: "metrics", wantErr: "must start with '/'"},
		{name: "Should reject api paths", path: "/api/metrics", wantErr: "cannot be under /api/"},
		{name: "Should reject query parameters", path: "/metrics?x=1", wantErr: "query parameters"},
		{name: "Should accept custom path", path: "/internal/metrics"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := (&Config{Enabled: true, Path: tt.path}).Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestFromMetricsConfig(t *testing.T) {
	t.Run("Should map the metrics section", func(t *testing.T) {
		cfg := FromMetricsConfig(&config.MetricsConfig{PrometheusEnabled: true, Path: " /internal/metrics "})
		assert.True(t, cfg.Enabled)
		assert.Equal(t, "/internal/metrics", cfg.Path)
	})

	t.Run("Should fall back to defaults", func(t *testing.T) {
		assert.Equal(t, DefaultConfig(), FromMetricsConfig(nil))
		cfg := FromMetricsConfig(&config.MetricsConfig{})
		assert.False(t, cfg.Enabled)
		assert.Equal(t, "/metrics", cfg.Path)
	})
}
