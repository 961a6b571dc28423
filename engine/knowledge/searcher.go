package knowledge

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/compozy/techrag/engine/core"
	"github.com/compozy/techrag/engine/knowledge/vectordb"
	"github.com/compozy/techrag/pkg/logger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const defaultTopK = 5

// HybridSearcher embeds the query and runs a blended vector/lexical search over a store.
type HybridSearcher struct {
	embedder     Embedder
	store        vectordb.Store
	provider     string
	hybridWeight float64
	tracer       trace.Tracer
}

// NewHybridSearcher wires an embedder to a vector store. hybridWeight is the
// vector share of the blended score; zero disables lexical scoring.
func NewHybridSearcher(emb Embedder, store vectordb.Store, provider string, hybridWeight float64) (*HybridSearcher, error) {
	if emb == nil {
		return nil, errors.New("knowledge: searcher embedder is required")
	}
	if store == nil {
		return nil, errors.New("knowledge: searcher vector store is required")
	}
	return &HybridSearcher{
		embedder:     emb,
		store:        store,
		provider:     provider,
		hybridWeight: hybridWeight,
		tracer:       otel.Tracer("techrag.knowledge.searcher"),
	}, nil
}

func (s *HybridSearcher) Search(ctx context.Context, query string, opts SearchOptions) (results []SearchResult, err error) {
	if strings.TrimSpace(query) == "" {
		return nil, errors.New("knowledge: query is required")
	}
	filters := buildFilters(opts)
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "techrag.knowledge.search", trace.WithAttributes(
		attribute.String("provider", s.provider),
		attribute.Int("top_k", opts.TopK),
		attribute.Int("filters", len(filters)),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetAttributes(attribute.Int("results", len(results)))
			if len(results) == 0 {
				RecordQueryEmpty(ctx, len(filters) > 0)
			}
		}
		RecordQueryLatency(ctx, s.provider, time.Since(start))
		span.End()
	}()
	vector, err := s.embedQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	topK := opts.TopK
	if topK <= 0 {
		topK = defaultTopK
	}
	matches, err := s.store.Search(ctx, vector, vectordb.SearchOptions{
		TopK:         topK,
		MinScore:     opts.MinScore,
		Filters:      filters,
		QueryText:    query,
		HybridWeight: s.hybridWeight,
	})
	if err != nil {
		return nil, err
	}
	results = make([]SearchResult, len(matches))
	for i := range matches {
		results[i] = SearchResult{
			ID:       matches[i].ID,
			Content:  matches[i].Text,
			Score:    matches[i].Score,
			Metadata: core.CloneMap(matches[i].Metadata),
		}
	}
	logger.FromContext(ctx).Debug("Hybrid search executed",
		"provider", s.provider,
		"results", len(results),
		"filters", len(filters),
	)
	return results, nil
}

func (s *HybridSearcher) embedQuery(ctx context.Context, query string) ([]float32, error) {
	spanCtx, span := s.tracer.Start(ctx, "techrag.knowledge.embed_query")
	defer span.End()
	vector, err := s.embedder.EmbedQuery(spanCtx, query)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return vector, nil
}

func buildFilters(opts SearchOptions) map[string]string {
	filters := make(map[string]string)
	if v := strings.TrimSpace(opts.Category); v != "" {
		filters[MetaCategory] = v
	}
	if v := strings.TrimSpace(opts.Region); v != "" {
		filters[MetaRegion] = v
	}
	if v := strings.TrimSpace(opts.Language); v != "" {
		filters[MetaLanguage] = v
	}
	return filters
}
