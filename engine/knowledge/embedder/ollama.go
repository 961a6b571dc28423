package embedder

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/ollama/ollama/api"

	"github.com/compozy/techrag/engine/llm"
	"github.com/compozy/techrag/pkg/logger"
)

var (
	errMissingModel = errors.New("embedder model is required")
	errMissingURL   = errors.New("embedder base url is required")
)

// Config describes the Ollama embedding endpoint.
type Config struct {
	BaseURL   string
	Model     string
	Timeout   time.Duration
	CacheSize int
}

// Ollama embeds text through the Ollama /api/embed endpoint.
type Ollama struct {
	model   string
	client  *api.Client
	cacheMu sync.Mutex
	cache   *lru.Cache[string, []float32]
}

// New constructs an Ollama-backed embedder.
func New(cfg *Config) (*Ollama, error) {
	if cfg == nil {
		return nil, errors.New("embedder config is required")
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errMissingURL
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, errMissingModel
	}
	client, err := llm.NewOllamaAPIClient(cfg.BaseURL, llm.WithTimeout(cfg.Timeout))
	if err != nil {
		return nil, fmt.Errorf("embedder %q: %w", cfg.Model, err)
	}
	e := &Ollama{model: cfg.Model, client: client}
	if cfg.CacheSize > 0 {
		cache, err := lru.New[string, []float32](cfg.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("embedder %q: init cache: %w", cfg.Model, err)
		}
		e.cache = cache
	}
	return e, nil
}

// Model returns the embedding model name.
func (e *Ollama) Model() string {
	return e.model
}

// EmbedQuery embeds a single text, consulting the cache first.
func (e *Ollama) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if vector, ok := e.lookup(text); ok {
		return vector, nil
	}
	vectors, err := e.embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if len(vectors) != 1 {
		return nil, e.withContext(fmt.Errorf("received %d embeddings for 1 text", len(vectors)))
	}
	e.store(text, vectors[0])
	return vectors[0], nil
}

// EmbedDocuments embeds texts in one request, reusing cached vectors.
func (e *Ollama) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))
	missingIdx := make(map[string][]int)
	missing := make([]string, 0, len(texts))
	for i, text := range texts {
		if vector, ok := e.lookup(text); ok {
			results[i] = vector
			continue
		}
		if _, seen := missingIdx[text]; !seen {
			missing = append(missing, text)
		}
		missingIdx[text] = append(missingIdx[text], i)
	}
	if len(missing) == 0 {
		return results, nil
	}
	embedded, err := e.embed(ctx, missing)
	if err != nil {
		return nil, err
	}
	if len(embedded) != len(missing) {
		return nil, e.withContext(fmt.Errorf("received %d embeddings for %d texts", len(embedded), len(missing)))
	}
	for i, text := range missing {
		for _, idx := range missingIdx[text] {
			results[idx] = cloneVector(embedded[i])
		}
		e.store(text, embedded[i])
	}
	return results, nil
}

func (e *Ollama) embed(ctx context.Context, input any) ([][]float32, error) {
	start := time.Now()
	resp, err := e.client.Embed(ctx, &api.EmbedRequest{Model: e.model, Input: input})
	if err != nil {
		return nil, e.withContext(err)
	}
	logger.FromContext(ctx).Debug("Embeddings generated",
		"model", e.model,
		"count", len(resp.Embeddings),
		"duration", time.Since(start),
	)
	return resp.Embeddings, nil
}

func (e *Ollama) lookup(text string) ([]float32, bool) {
	if e.cache == nil {
		return nil, false
	}
	e.cacheMu.Lock()
	value, ok := e.cache.Get(cacheKey(text))
	e.cacheMu.Unlock()
	if !ok {
		return nil, false
	}
	return cloneVector(value), true
}

func (e *Ollama) store(text string, vector []float32) {
	if e.cache == nil || len(vector) == 0 {
		return
	}
	e.cacheMu.Lock()
	e.cache.Add(cacheKey(text), cloneVector(vector))
	e.cacheMu.Unlock()
}

func (e *Ollama) withContext(err error) error {
	return fmt.Errorf("embedder %q: %w", e.model, err)
}

func cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

func cloneVector(src []float32) []float32 {
	if len(src) == 0 {
		return nil
	}
	dst := make([]float32, len(src))
	copy(dst, src)
	return dst
}
