package knowledge

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compozy/techrag/engine/knowledge/vectordb"
)

type stubEmbedder struct {
	vectors map[string][]float32
	err     error
	calls   int
}

func (s *stubEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if v, ok := s.vectors[text]; ok {
		return v, nil
	}
	return []float32{1, 0}, nil
}

func (s *stubEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := s.EmbedQuery(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func seededStore(t *testing.T) vectordb.Store {
	t.Helper()
	store := vectordb.NewMemoryStore(2)
	require.NoError(t, store.Upsert(context.Background(), []vectordb.Record{
		{ID: "us", Text: "pipe sizing per AWWA", Embedding: []float32{1, 0},
			Metadata: map[string]any{MetaCategory: "hydraulic", MetaRegion: "US", MetaLanguage: "en"}},
		{ID: "mx", Text: "dimensionamiento de tuberias", Embedding: []float32{0.8, 0.2},
			Metadata: map[string]any{MetaCategory: "hydraulic", MetaRegion: "MX", MetaLanguage: "es"}},
		{ID: "beam", Text: "beam design", Embedding: []float32{0, 1},
			Metadata: map[string]any{MetaCategory: "structural", MetaRegion: "US", MetaLanguage: "en"}},
	}))
	return store
}

func TestHybridSearcher_Search(t *testing.T) {
	ctx := context.Background()

	t.Run("Should translate categorical options into store filters", func(t *testing.T) {
		searcher, err := NewHybridSearcher(&stubEmbedder{}, seededStore(t), "memory", 0)
		require.NoError(t, err)
		results, err := searcher.Search(ctx, "pipe sizing", SearchOptions{TopK: 5, Category: "hydraulic", Region: "MX"})
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "mx", results[0].ID)
		assert.Equal(t, "es", MetaString(results[0].Metadata, MetaLanguage))
	})

	t.Run("Should rank unfiltered results by score", func(t *testing.T) {
		searcher, err := NewHybridSearcher(&stubEmbedder{}, seededStore(t), "memory", 0)
		require.NoError(t, err)
		results, err := searcher.Search(ctx, "pipe sizing", SearchOptions{TopK: 2})
		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Equal(t, []string{"us", "mx"}, []string{results[0].ID, results[1].ID})
		assert.GreaterOrEqual(t, results[0].Score, results[1].Score)
	})

	t.Run("Should propagate embedder failures", func(t *testing.T) {
		boom := errors.New("embedder down")
		searcher, err := NewHybridSearcher(&stubEmbedder{err: boom}, seededStore(t), "memory", 0.7)
		require.NoError(t, err)
		_, err = searcher.Search(ctx, "pipe sizing", SearchOptions{})
		assert.ErrorIs(t, err, boom)
	})

	t.Run("Should reject blank queries", func(t *testing.T) {
		searcher, err := NewHybridSearcher(&stubEmbedder{}, seededStore(t), "memory", 0)
		require.NoError(t, err)
		_, err = searcher.Search(ctx, "  ", SearchOptions{})
		assert.Error(t, err)
	})
}

func TestNewHybridSearcher(t *testing.T) {
	t.Run("Should require collaborators", func(t *testing.T) {
		_, err := NewHybridSearcher(nil, vectordb.NewMemoryStore(2), "memory", 0)
		assert.Error(t, err)
		_, err = NewHybridSearcher(&stubEmbedder{}, nil, "memory", 0)
		assert.Error(t, err)
	})
}

func TestMetaString(t *testing.T) {
	t.Run("Should stringify scalar metadata values", func(t *testing.T) {
		meta := map[string]any{"a": "x", "b": float64(3), "c": 7, "d": true}
		assert.Equal(t, "x", MetaString(meta, "a"))
		assert.Equal(t, "3", MetaString(meta, "b"))
		assert.Equal(t, "7", MetaString(meta, "c"))
		assert.Equal(t, "", MetaString(meta, "d"))
		assert.Equal(t, "", MetaString(nil, "a"))
	})
}
