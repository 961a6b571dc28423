package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockSource struct {
	data       map[string]any
	sourceType SourceType
	err        error
}

func (m *mockSource) Load() (map[string]any, error) {
	return m.data, m.err
}

func (m *mockSource) Type() SourceType {
	return m.sourceType
}

func TestLoader_Load(t *testing.T) {
	t.Run("Should load default configuration when no sources provided", func(t *testing.T) {
		cfg, err := NewService().Load(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "0.0.0.0", cfg.Server.Host)
		assert.Equal(t, 5080, cfg.Server.Port)
		assert.Equal(t, "development", cfg.Runtime.Environment)
		assert.Equal(t, 0.85, cfg.Agent.ConfidenceThreshold)
		assert.Equal(t, 60, cfg.Agent.RRFConstant)
		assert.Equal(t, 12, cfg.Agent.MaxIterations)
		assert.Equal(t, 10*time.Second, cfg.Agent.Steps.Retrieve.Timeout)
		assert.Equal(t, "memory", cfg.VectorDB.Provider)
	})

	t.Run("Should apply sources in precedence order", func(t *testing.T) {
		loader := NewService()
		first := &mockSource{
			data: map[string]any{
				"server": map[string]any{"host": "one.example.com", "port": 9001},
			},
			sourceType: SourceYAML,
		}
		second := &mockSource{
			data:       map[string]any{"server": map[string]any{"host": "two.example.com"}},
			sourceType: SourceCLI,
		}
		cfg, err := loader.Load(context.Background(), first, second)
		require.NoError(t, err)
		assert.Equal(t, "two.example.com", cfg.Server.Host)
		assert.Equal(t, 9001, cfg.Server.Port)
		assert.Equal(t, SourceCLI, loader.GetSource("server.host"))
		assert.Equal(t, SourceYAML, loader.GetSource("server.port"))
		assert.Equal(t, SourceDefault, loader.GetSource("server.timeout"))
	})

	t.Run("Should give explicit environment mappings the highest precedence", func(t *testing.T) {
		t.Setenv("AGENT_TOP_K", "9")
		t.Setenv("WEB_SEARCH_API_KEY", "brave-secret")
		t.Setenv("WEB_SEARCH_DENY_DOMAINS", "pinterest.com,amazon.com")
		loader := NewService()
		yamlSource := &mockSource{
			data:       map[string]any{"agent": map[string]any{"top_k": 3}},
			sourceType: SourceYAML,
		}
		cfg, err := loader.Load(context.Background(), yamlSource)
		require.NoError(t, err)
		assert.Equal(t, 9, cfg.Agent.TopK)
		assert.Equal(t, "brave-secret", cfg.WebSearch.APIKey.Value())
		assert.Equal(t, []string{"pinterest.com", "amazon.com"}, cfg.WebSearch.DenyDomains)
		assert.Equal(t, SourceEnv, loader.GetSource("agent.top_k"))
	})

	t.Run("Should map prefixed environment variables without explicit tags", func(t *testing.T) {
		t.Setenv("TECHRAG_LLM_JUDGE_MAX_TOKENS", "128")
		t.Setenv("TECHRAG_VECTOR_DB_ENSURE_INDEX", "true")
		cfg, err := NewService().Load(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 128, cfg.LLM.JudgeMaxTokens)
		assert.True(t, cfg.VectorDB.EnsureIndex)
	})

	t.Run("Should fail validation for out of range values", func(t *testing.T) {
		source := &mockSource{
			data:       map[string]any{"agent": map[string]any{"confidence_threshold": 1.5}},
			sourceType: SourceYAML,
		}
		_, err := NewService().Load(context.Background(), source)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "validation failed")
	})

	t.Run("Should require a DSN for the pgvector provider", func(t *testing.T) {
		source := &mockSource{
			data:       map[string]any{"vector_db": map[string]any{"provider": "pgvector"}},
			sourceType: SourceYAML,
		}
		_, err := NewService().Load(context.Background(), source)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "vector_db.dsn")
	})

	t.Run("Should propagate source errors", func(t *testing.T) {
		source := &mockSource{err: assert.AnError, sourceType: SourceYAML}
		_, err := NewService().Load(context.Background(), source)
		assert.ErrorIs(t, err, assert.AnError)
	})
}

func TestYAMLProvider(t *testing.T) {
	t.Run("Should load nested values and durations from a file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "techrag.yaml")
		content := []byte(`
agent:
  max_iterations: 6
  steps:
    grade:
      timeout: 5s
      retries: 2
web_search:
  enabled: true
  allow_domains:
    - awwa.org
    - asce.org
  freshness: ~
`)
		require.NoError(t, os.WriteFile(path, content, 0o600))
		cfg, err := NewService().Load(context.Background(), NewYAMLProvider(path))
		require.NoError(t, err)
		assert.Equal(t, 6, cfg.Agent.MaxIterations)
		assert.Equal(t, 5*time.Second, cfg.Agent.Steps.Grade.Timeout)
		assert.Equal(t, 2, cfg.Agent.Steps.Grade.Retries)
		assert.True(t, cfg.WebSearch.Enabled)
		assert.Equal(t, []string{"awwa.org", "asce.org"}, cfg.WebSearch.AllowDomains)
		assert.Equal(t, "", cfg.WebSearch.Freshness)
	})

	t.Run("Should return no values for a missing file", func(t *testing.T) {
		data, err := NewYAMLProvider(filepath.Join(t.TempDir(), "absent.yaml")).Load()
		require.NoError(t, err)
		assert.Empty(t, data)
	})
}

func TestCLIProvider(t *testing.T) {
	t.Run("Should map known flags and ignore the rest", func(t *testing.T) {
		data, err := NewCLIProvider(map[string]any{"port": 7000, "unknown": true}).Load()
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"server": map[string]any{"port": 7000}}, data)
	})
}

func TestTransformEnvKey(t *testing.T) {
	t.Run("Should convert prefixed names into config paths", func(t *testing.T) {
		assert.Equal(t, "agent.top_k", transformEnvKey("TECHRAG_AGENT_TOP_K"))
		assert.Equal(t, "web_search.count", transformEnvKey("TECHRAG_WEB_SEARCH_COUNT"))
		assert.Equal(t, "", transformEnvKey("PATH"))
	})
}

func TestEnvMappings(t *testing.T) {
	t.Run("Should derive mappings from env tags", func(t *testing.T) {
		m := GenerateEnvToConfigMap()
		assert.Equal(t, "agent.max_iterations", m["AGENT_MAX_ITERATIONS"])
		assert.Equal(t, "vector_db.dsn", m["VECTOR_DB_DSN"])
	})

	t.Run("Should flag sensitive paths", func(t *testing.T) {
		assert.True(t, IsSensitiveConfigPath("web_search.api_key"))
		assert.False(t, IsSensitiveConfigPath("web_search.count"))
	})
}

func TestFromContext(t *testing.T) {
	t.Run("Should fall back to defaults", func(t *testing.T) {
		assert.Equal(t, Default().Agent.TopK, FromContext(context.Background()).Agent.TopK)
	})

	t.Run("Should return the attached configuration", func(t *testing.T) {
		cfg := Default()
		cfg.Agent.TopK = 42
		assert.Same(t, cfg, FromContext(ContextWithConfig(context.Background(), cfg)))
	})
}
