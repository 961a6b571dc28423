package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/compozy/techrag/engine/agent"
	"github.com/compozy/techrag/engine/core"
	"github.com/compozy/techrag/engine/infra/monitoring"
	"github.com/compozy/techrag/engine/knowledge"
	"github.com/compozy/techrag/engine/knowledge/embedder"
	"github.com/compozy/techrag/engine/knowledge/parents"
	"github.com/compozy/techrag/engine/knowledge/vectordb"
	"github.com/compozy/techrag/engine/llm"
	"github.com/compozy/techrag/engine/websearch"
	"github.com/compozy/techrag/pkg/config"
	"github.com/compozy/techrag/pkg/logger"
	"github.com/redis/go-redis/v9"
)

const embeddingCacheSize = 2048

// runtime holds the long-lived services a command needs.
type runtime struct {
	config       *config.Config
	embedder     *embedder.Ollama
	store        vectordb.Store
	parents      *parents.Store
	monitoring   *monitoring.Service
	collector    *agent.Collector
	orchestrator *agent.Orchestrator
	closers      []func(context.Context) error
}

// newKnowledgeRuntime wires the embedder, vector store and parent store.
func newKnowledgeRuntime(ctx context.Context, cfg *config.Config) (*runtime, error) {
	rt := &runtime{config: cfg}
	emb, err := embedder.New(&embedder.Config{
		BaseURL:   cfg.Embedder.BaseURL,
		Model:     cfg.Embedder.Model,
		Timeout:   cfg.LLM.Timeout,
		CacheSize: embeddingCacheSize,
	})
	if err != nil {
		return nil, err
	}
	rt.embedder = emb
	store, err := vectordb.New(ctx, &vectordb.Config{
		Provider:     vectordb.Provider(cfg.VectorDB.Provider),
		DSN:          cfg.VectorDB.DSN.Value(),
		Table:        cfg.VectorDB.Table,
		Dimension:    cfg.VectorDB.Dimension,
		EnsureIndex:  cfg.VectorDB.EnsureIndex,
		HybridWeight: cfg.VectorDB.HybridWeight,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open vector store: %s", core.RedactError(err))
	}
	rt.store = store
	rt.closers = append(rt.closers, store.Close)
	if dsn := cfg.Database.DSN.Value(); dsn != "" {
		ps, err := parents.Open(ctx, &parents.Config{
			DSN:      dsn,
			Table:    cfg.Database.ParentTable,
			MaxConns: cfg.Database.MaxConns,
		})
		if err != nil {
			_ = rt.Close(ctx)
			return nil, fmt.Errorf("failed to open parent store: %s", core.RedactError(err))
		}
		rt.parents = ps
		rt.closers = append(rt.closers, func(context.Context) error {
			ps.Close()
			return nil
		})
	}
	return rt, nil
}

// newAgentRuntime extends the knowledge runtime with the answering loop.
func newAgentRuntime(ctx context.Context, cfg *config.Config) (*runtime, error) {
	log := logger.FromContext(ctx)
	rt, err := newKnowledgeRuntime(ctx, cfg)
	if err != nil {
		return nil, err
	}
	rt.monitoring = monitoring.NewMonitoringServiceWithFallback(ctx, monitoring.FromMetricsConfig(&cfg.Metrics))
	rt.monitoring.SetAsGlobal()
	rt.closers = append(rt.closers, rt.monitoring.Shutdown)
	if err := rt.buildAgent(ctx, cfg); err != nil {
		_ = rt.Close(ctx)
		return nil, err
	}
	log.Debug("Runtime ready",
		"vector_provider", cfg.VectorDB.Provider,
		"parent_store", rt.parents != nil,
		"web_search", cfg.WebSearch.Enabled)
	return rt, nil
}

func (rt *runtime) buildAgent(ctx context.Context, cfg *config.Config) error {
	searcher, err := knowledge.NewHybridSearcher(rt.embedder, rt.store, cfg.VectorDB.Provider, cfg.VectorDB.HybridWeight)
	if err != nil {
		return err
	}
	completer, err := llm.NewOllamaClient(cfg.LLM.BaseURL, llm.WithTimeout(cfg.LLM.Timeout))
	if err != nil {
		return err
	}
	deps := agent.Dependencies{Searcher: searcher, LLM: completer}
	if rt.parents != nil {
		deps.Parents = rt.parents
	}
	if cfg.WebSearch.Enabled && cfg.WebSearch.APIKey.Value() != "" {
		provider, err := websearch.NewBrave(&websearch.BraveConfig{
			BaseURL: cfg.WebSearch.BaseURL,
			APIKey:  cfg.WebSearch.APIKey.Value(),
			Timeout: cfg.WebSearch.Timeout,
			Retries: cfg.Agent.Steps.WebSearch.Retries,
		})
		if err != nil {
			return err
		}
		deps.WebSearch = provider
	}
	var opts []agent.CollectorOption
	if url := cfg.Metrics.RedisURL.Value(); url != "" {
		redisOpts, err := redis.ParseURL(url)
		if err != nil {
			return fmt.Errorf("invalid metrics redis url: %s", core.RedactError(err))
		}
		client := redis.NewClient(redisOpts)
		rt.closers = append(rt.closers, func(context.Context) error { return client.Close() })
		opts = append(opts, agent.WithSink(agent.NewRedisSink(client, cfg.Metrics.KeyPrefix)))
	}
	collector, err := agent.NewCollector(rt.monitoring.Meter(), opts...)
	if err != nil {
		return err
	}
	rt.collector = collector
	deps.Metrics = collector
	orch, err := agent.NewOrchestrator(agent.SettingsFromConfig(cfg), deps)
	if err != nil {
		return err
	}
	rt.orchestrator = orch
	logger.FromContext(ctx).Debug("Agent ready", "web_search_provider", deps.WebSearch != nil)
	return nil
}

// ingester builds an ingester over the runtime stores.
func (rt *runtime) ingester(opts knowledge.IngestOptions) (*knowledge.Ingester, error) {
	var writer knowledge.ParentWriter
	if rt.parents != nil {
		writer = rt.parents
	}
	return knowledge.NewIngester(rt.embedder, rt.store, writer, opts)
}

// seed ingests the documents of each file.
func (rt *runtime) seed(ctx context.Context, paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	in, err := rt.ingester(knowledge.IngestOptions{})
	if err != nil {
		return err
	}
	for _, path := range paths {
		docs, err := knowledge.LoadDocuments(strings.TrimSpace(path))
		if err != nil {
			return err
		}
		res, err := in.Ingest(ctx, docs)
		if err != nil {
			return fmt.Errorf("failed to ingest %s: %w", path, err)
		}
		logger.FromContext(ctx).Info("Seeded knowledge base", "file", path, "documents", res.Documents, "chunks", res.Chunks)
	}
	return nil
}

// Close releases resources in reverse order of acquisition.
func (rt *runtime) Close(ctx context.Context) error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	rt.closers = nil
	return errors.Join(errs...)
}
