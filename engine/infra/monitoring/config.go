package monitoring

import (
	"errors"
	"fmt"
	"strings"

	"github.com/compozy/techrag/pkg/config"
)

const defaultPath = "/metrics"

// Config holds configuration for the monitoring service.
type Config struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Path    string `json:"path"    yaml:"path"`
}

func DefaultConfig() *Config {
	return &Config{
		Enabled: false,
		Path:    defaultPath,
	}
}

// FromMetricsConfig maps the application metrics section.
func FromMetricsConfig(m *config.MetricsConfig) *Config {
	cfg := DefaultConfig()
	if m == nil {
		return cfg
	}
	cfg.Enabled = m.PrometheusEnabled
	if p := strings.TrimSpace(m.Path); p != "" {
		cfg.Path = p
	}
	return cfg
}

func (c *Config) Validate() error {
	switch {
	case c.Path == "":
		return errors.New("monitoring path cannot be empty")
	case !strings.HasPrefix(c.Path, "/"):
		return fmt.Errorf("monitoring path must start with '/': got %s", c.Path)
	case strings.HasPrefix(c.Path, "/api/"):
		// the API group owns /api/
		return errors.New("monitoring path cannot be under /api/")
	case strings.ContainsAny(c.Path, "?#"):
		return errors.New("monitoring path cannot contain query parameters")
	}
	return nil
}
