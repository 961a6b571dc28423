package config

import (
	"context"
	"time"
)

// Config represents the complete configuration for the techrag engine.
type Config struct {
	Runtime   RuntimeConfig   `koanf:"runtime"`
	Server    ServerConfig    `koanf:"server"`
	Agent     AgentConfig     `koanf:"agent"`
	LLM       LLMConfig       `koanf:"llm"`
	Embedder  EmbedderConfig  `koanf:"embedder"`
	VectorDB  VectorDBConfig  `koanf:"vector_db"`
	Database  DatabaseConfig  `koanf:"database"`
	WebSearch WebSearchConfig `koanf:"web_search"`
	Metrics   MetricsConfig   `koanf:"metrics"`
}

// RuntimeConfig contains runtime behavior configuration.
type RuntimeConfig struct {
	Environment string `koanf:"environment" env:"TECHRAG_ENV"       validate:"oneof=development staging production test"`
	LogLevel    string `koanf:"log_level"   env:"TECHRAG_LOG_LEVEL" validate:"oneof=debug info warn error disabled"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Host    string        `koanf:"host"    env:"SERVER_HOST"    validate:"required"`
	Port    int           `koanf:"port"    env:"SERVER_PORT"    validate:"min=1,max=65535"`
	Timeout time.Duration `koanf:"timeout" env:"SERVER_TIMEOUT"`
}

// AgentConfig tunes the question answering loop.
type AgentConfig struct {
	// MaxIterations counts step executions, not retrieval rounds: a
	// retrieve, grade, reformulate cycle spends three. The state manager
	// falls back to 3 only when no budget is given.
	MaxIterations       int           `koanf:"max_iterations"       env:"AGENT_MAX_ITERATIONS"       validate:"min=1"`
	ConfidenceThreshold float64       `koanf:"confidence_threshold" env:"AGENT_CONFIDENCE_THRESHOLD" validate:"gt=0,lte=1"`
	RelevanceThreshold  float64       `koanf:"relevance_threshold"  env:"AGENT_RELEVANCE_THRESHOLD"  validate:"gte=0,lte=1"`
	TopK                int           `koanf:"top_k"                env:"AGENT_TOP_K"                validate:"min=1,max=100"`
	MinScore            float64       `koanf:"min_score"            env:"AGENT_MIN_SCORE"            validate:"gte=0,lte=1"`
	RRFConstant         int           `koanf:"rrf_constant"         env:"AGENT_RRF_CONSTANT"         validate:"min=1"`
	ParentExpansion     bool          `koanf:"parent_expansion"     env:"AGENT_PARENT_EXPANSION"`
	GradingConcurrency  int           `koanf:"grading_concurrency"  env:"AGENT_GRADING_CONCURRENCY"  validate:"min=1,max=64"`
	JudgmentCacheSize   int           `koanf:"judgment_cache_size"  env:"AGENT_JUDGMENT_CACHE_SIZE"  validate:"min=0"`
	ExcerptChars        int           `koanf:"excerpt_chars"        env:"AGENT_EXCERPT_CHARS"        validate:"min=100"`
	MaxEvidence         int           `koanf:"max_evidence"         env:"AGENT_MAX_EVIDENCE"         validate:"min=1"`
	RecencyWindow       time.Duration `koanf:"recency_window"       env:"AGENT_RECENCY_WINDOW"`
	Steps               StepsConfig   `koanf:"steps"`
}

// StepsConfig holds the execution budget of every step.
type StepsConfig struct {
	Retrieve    StepBudgetConfig `koanf:"retrieve"`
	Grade       StepBudgetConfig `koanf:"grade"`
	Reformulate StepBudgetConfig `koanf:"reformulate"`
	WebSearch   StepBudgetConfig `koanf:"web_search"`
	Generate    StepBudgetConfig `koanf:"generate"`
}

type StepBudgetConfig struct {
	Timeout time.Duration `koanf:"timeout"`
	Retries int           `koanf:"retries" validate:"min=0,max=5"`
}

// LLMConfig contains inference endpoint and sampling settings.
type LLMConfig struct {
	BaseURL                  string        `koanf:"base_url"                  env:"LLM_BASE_URL"            validate:"required,url"`
	Timeout                  time.Duration `koanf:"timeout"                   env:"LLM_TIMEOUT"`
	JudgeModel               string        `koanf:"judge_model"               env:"LLM_JUDGE_MODEL"         validate:"required"`
	ReformulationModel       string        `koanf:"reformulation_model"       env:"LLM_REFORMULATION_MODEL" validate:"required"`
	GenerationModel          string        `koanf:"generation_model"          env:"LLM_GENERATION_MODEL"    validate:"required"`
	JudgeTemperature         float64       `koanf:"judge_temperature"                                       validate:"gte=0,lte=2"`
	ReformulationTemperature float64       `koanf:"reformulation_temperature"                               validate:"gte=0,lte=2"`
	GenerationTemperature    float64       `koanf:"generation_temperature"                                  validate:"gte=0,lte=2"`
	TopP                     float64       `koanf:"top_p"                                                   validate:"gt=0,lte=1"`
	JudgeMaxTokens           int           `koanf:"judge_max_tokens"                                        validate:"min=1"`
	ReformulationMaxTokens   int           `koanf:"reformulation_max_tokens"                                validate:"min=1"`
	GenerationMaxTokens      int           `koanf:"generation_max_tokens"                                   validate:"min=1"`
}

// EmbedderConfig contains the embedding model settings.
type EmbedderConfig struct {
	BaseURL string `koanf:"base_url" env:"EMBEDDER_BASE_URL" validate:"required,url"`
	Model   string `koanf:"model"    env:"EMBEDDER_MODEL"    validate:"required"`
}

// VectorDBConfig selects and configures the chunk store.
type VectorDBConfig struct {
	Provider     string          `koanf:"provider"      env:"VECTOR_DB_PROVIDER"      validate:"oneof=pgvector memory"`
	DSN          SensitiveString `koanf:"dsn"           env:"VECTOR_DB_DSN"           sensitive:"true"`
	Table        string          `koanf:"table"         env:"VECTOR_DB_TABLE"         validate:"required"`
	Dimension    int             `koanf:"dimension"     env:"VECTOR_DB_DIMENSION"     validate:"min=1"`
	HybridWeight float64         `koanf:"hybrid_weight" env:"VECTOR_DB_HYBRID_WEIGHT" validate:"gte=0,lte=1"`
	EnsureIndex  bool            `koanf:"ensure_index"  env:"VECTOR_DB_ENSURE_INDEX"`
}

// DatabaseConfig points at the relational store holding parent documents.
type DatabaseConfig struct {
	DSN         SensitiveString `koanf:"dsn"          env:"DB_DSN"          sensitive:"true"`
	ParentTable string          `koanf:"parent_table" env:"DB_PARENT_TABLE" validate:"required"`
	MaxConns    int32           `koanf:"max_conns"    env:"DB_MAX_CONNS"    validate:"min=1"`
}

// WebSearchConfig configures the web search fallback.
type WebSearchConfig struct {
	Enabled                 bool            `koanf:"enabled"                   env:"WEB_SEARCH_ENABLED"`
	APIKey                  SensitiveString `koanf:"api_key"                   env:"WEB_SEARCH_API_KEY"   sensitive:"true"`
	BaseURL                 string          `koanf:"base_url"                  env:"WEB_SEARCH_BASE_URL"  validate:"required,url"`
	Timeout                 time.Duration   `koanf:"timeout"                   env:"WEB_SEARCH_TIMEOUT"`
	Count                   int             `koanf:"count"                     env:"WEB_SEARCH_COUNT"     validate:"min=1,max=20"`
	Country                 string          `koanf:"country"                   env:"WEB_SEARCH_COUNTRY"`
	SearchLang              string          `koanf:"search_lang"               env:"WEB_SEARCH_LANG"`
	SafeSearch              string          `koanf:"safe_search"               env:"WEB_SEARCH_SAFESEARCH" validate:"oneof=off moderate strict"`
	Freshness               string          `koanf:"freshness"                 env:"WEB_SEARCH_FRESHNESS"`
	AllowDomains            []string        `koanf:"allow_domains"             env:"WEB_SEARCH_ALLOW_DOMAINS"`
	DenyDomains             []string        `koanf:"deny_domains"              env:"WEB_SEARCH_DENY_DOMAINS"`
	MaxContentLength        int             `koanf:"max_content_length"        env:"WEB_SEARCH_MAX_CONTENT" validate:"min=100"`
	RequireCalculationMatch bool            `koanf:"require_calculation_match"`
}

// MetricsConfig controls aggregate metrics persistence and exposition.
type MetricsConfig struct {
	RedisURL          SensitiveString `koanf:"redis_url"          env:"METRICS_REDIS_URL" sensitive:"true"`
	KeyPrefix         string          `koanf:"key_prefix"         env:"METRICS_KEY_PREFIX"`
	PrometheusEnabled bool            `koanf:"prometheus_enabled" env:"METRICS_PROMETHEUS_ENABLED"`
	Path              string          `koanf:"path"               env:"METRICS_PATH"`
}

// Service defines the configuration loading service.
type Service interface {
	Load(ctx context.Context, sources ...Source) (*Config, error)
	Validate(config *Config) error
	// GetSource reports which source provided the value at key.
	GetSource(key string) SourceType
}

// Source defines the interface for configuration sources.
type Source interface {
	Load() (map[string]any, error)
	Type() SourceType
}

// SourceType identifies the type of configuration source.
type SourceType string

const (
	SourceCLI     SourceType = "cli"
	SourceYAML    SourceType = "yaml"
	SourceEnv     SourceType = "env"
	SourceDefault SourceType = "default"
)

// Metadata contains metadata about configuration sources.
type Metadata struct {
	Sources  map[string]SourceType `json:"sources"`
	LoadedAt time.Time             `json:"loaded_at"`
}

// Default returns a Config with default values for local development.
func Default() *Config {
	return &Config{
		Runtime: RuntimeConfig{
			Environment: "development",
			LogLevel:    "info",
		},
		Server: ServerConfig{
			Host:    "0.0.0.0",
			Port:    5080,
			Timeout: 60 * time.Second,
		},
		Agent: AgentConfig{
			MaxIterations:       12,
			ConfidenceThreshold: 0.85,
			RelevanceThreshold:  0.6,
			TopK:                5,
			MinScore:            0.3,
			RRFConstant:         60,
			ParentExpansion:     false,
			GradingConcurrency:  4,
			JudgmentCacheSize:   1024,
			ExcerptChars:        1200,
			MaxEvidence:         6,
			RecencyWindow:       2 * 365 * 24 * time.Hour,
			Steps: StepsConfig{
				Retrieve:    StepBudgetConfig{Timeout: 10 * time.Second, Retries: 1},
				Grade:       StepBudgetConfig{Timeout: 45 * time.Second, Retries: 0},
				Reformulate: StepBudgetConfig{Timeout: 20 * time.Second, Retries: 0},
				WebSearch:   StepBudgetConfig{Timeout: 15 * time.Second, Retries: 1},
				Generate:    StepBudgetConfig{Timeout: 60 * time.Second, Retries: 1},
			},
		},
		LLM: LLMConfig{
			BaseURL:                  "http://localhost:11434",
			Timeout:                  60 * time.Second,
			JudgeModel:               "llama3.1:8b",
			ReformulationModel:       "llama3.1:8b",
			GenerationModel:          "llama3.1:8b",
			JudgeTemperature:         0.1,
			ReformulationTemperature: 0.7,
			GenerationTemperature:    0.2,
			TopP:                     0.9,
			JudgeMaxTokens:           256,
			ReformulationMaxTokens:   300,
			GenerationMaxTokens:      1024,
		},
		Embedder: EmbedderConfig{
			BaseURL: "http://localhost:11434",
			Model:   "nomic-embed-text",
		},
		VectorDB: VectorDBConfig{
			Provider:     "memory",
			Table:        "knowledge_chunks",
			Dimension:    768,
			HybridWeight: 0.7,
		},
		Database: DatabaseConfig{
			ParentTable: "parent_documents",
			MaxConns:    8,
		},
		WebSearch: WebSearchConfig{
			Enabled:          false,
			BaseURL:          "https://api.search.brave.com/res/v1",
			Timeout:          10 * time.Second,
			Count:            10,
			Country:          "US",
			SafeSearch:       "moderate",
			MaxContentLength: 1500,
		},
		Metrics: MetricsConfig{
			KeyPrefix:         "techrag:metrics",
			PrometheusEnabled: true,
			Path:              "/metrics",
		},
	}
}
