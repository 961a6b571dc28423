package vectordb

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedMemory(t *testing.T) Store {
	t.Helper()
	store := NewMemoryStore(3)
	err := store.Upsert(context.Background(), []Record{
		{
			ID:        "darcy",
			Text:      "Darcy-Weisbach head loss in pipes",
			Embedding: []float32{1, 0, 0},
			Metadata:  map[string]any{"category": "hydraulic", "language": "en"},
		},
		{
			ID:        "hazen",
			Text:      "Hazen-Williams coefficient tables",
			Embedding: []float32{0.9, 0.1, 0},
			Metadata:  map[string]any{"category": "hydraulic", "language": "en"},
		},
		{
			ID:        "beam",
			Text:      "Beam deflection limits",
			Embedding: []float32{0, 1, 0},
			Metadata:  map[string]any{"category": "structural", "language": "en"},
		},
	})
	require.NoError(t, err)
	return store
}

func TestMemoryStore_Search(t *testing.T) {
	ctx := context.Background()

	t.Run("Should rank by cosine similarity", func(t *testing.T) {
		matches, err := seedMemory(t).Search(ctx, []float32{1, 0, 0}, SearchOptions{TopK: 2})
		require.NoError(t, err)
		require.Len(t, matches, 2)
		assert.Equal(t, "darcy", matches[0].ID)
		assert.Equal(t, "hazen", matches[1].ID)
		assert.InDelta(t, 1.0, matches[0].Score, 1e-9)
	})

	t.Run("Should apply metadata filters and min score", func(t *testing.T) {
		matches, err := seedMemory(t).Search(ctx, []float32{0, 1, 0}, SearchOptions{
			TopK:     5,
			MinScore: 0.5,
			Filters:  map[string]string{"category": "structural"},
		})
		require.NoError(t, err)
		require.Len(t, matches, 1)
		assert.Equal(t, "beam", matches[0].ID)
	})

	t.Run("Should blend lexical overlap when query text is present", func(t *testing.T) {
		matches, err := seedMemory(t).Search(ctx, []float32{1, 0, 0}, SearchOptions{
			TopK:         3,
			QueryText:    "hazen williams coefficient",
			HybridWeight: 0.5,
		})
		require.NoError(t, err)
		require.NotEmpty(t, matches)
		assert.Equal(t, "hazen", matches[0].ID)
	})

	t.Run("Should reject mismatched dimensions", func(t *testing.T) {
		_, err := seedMemory(t).Search(ctx, []float32{1, 0}, SearchOptions{})
		assert.Error(t, err)
		err = NewMemoryStore(3).Upsert(ctx, []Record{{ID: "x", Embedding: []float32{1}}})
		assert.Error(t, err)
	})

	t.Run("Should return copies of metadata", func(t *testing.T) {
		store := seedMemory(t)
		matches, err := store.Search(ctx, []float32{1, 0, 0}, SearchOptions{TopK: 1})
		require.NoError(t, err)
		matches[0].Metadata["category"] = "changed"
		again, err := store.Search(ctx, []float32{1, 0, 0}, SearchOptions{TopK: 1})
		require.NoError(t, err)
		assert.Equal(t, "hydraulic", again[0].Metadata["category"])
	})
}

func TestMemoryStore_Delete(t *testing.T) {
	ctx := context.Background()

	t.Run("Should delete by id and by metadata", func(t *testing.T) {
		store := seedMemory(t)
		require.NoError(t, store.Delete(ctx, Filter{IDs: []string{"darcy"}}))
		require.NoError(t, store.Delete(ctx, Filter{Metadata: map[string]string{"category": "structural"}}))
		matches, err := store.Search(ctx, []float32{1, 1, 0}, SearchOptions{TopK: 5})
		require.NoError(t, err)
		require.Len(t, matches, 1)
		assert.Equal(t, "hazen", matches[0].ID)
	})
}

func TestNew(t *testing.T) {
	t.Run("Should build the memory provider", func(t *testing.T) {
		store, err := New(context.Background(), &Config{Provider: ProviderMemory, Dimension: 4})
		require.NoError(t, err)
		assert.NotNil(t, store)
	})

	t.Run("Should validate configuration", func(t *testing.T) {
		_, err := New(context.Background(), &Config{Provider: ProviderPGVector, Dimension: 4})
		assert.ErrorIs(t, err, errMissingDSN)
		_, err = New(context.Background(), &Config{Provider: ProviderMemory})
		assert.ErrorIs(t, err, errInvalidDimension)
		_, err = New(context.Background(), &Config{Provider: "qdrant", Dimension: 4})
		assert.Error(t, err)
	})
}
