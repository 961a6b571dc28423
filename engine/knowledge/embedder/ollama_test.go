package embedder

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/ollama/ollama/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEmbedServer(t *testing.T, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/embed", r.URL.Path)
		calls.Add(1)
		var req api.EmbedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		var inputs []string
		switch v := req.Input.(type) {
		case string:
			inputs = []string{v}
		case []any:
			for _, item := range v {
				inputs = append(inputs, item.(string))
			}
		}
		out := api.EmbedResponse{Model: req.Model}
		for _, in := range inputs {
			out.Embeddings = append(out.Embeddings, []float32{float32(len(in)), 1})
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(out))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOllama_EmbedQuery(t *testing.T) {
	t.Run("Should embed and cache query vectors", func(t *testing.T) {
		var calls atomic.Int32
		srv := newEmbedServer(t, &calls)
		emb, err := New(&Config{BaseURL: srv.URL, Model: "nomic-embed-text", CacheSize: 8})
		require.NoError(t, err)
		first, err := emb.EmbedQuery(context.Background(), "head loss")
		require.NoError(t, err)
		assert.Equal(t, []float32{9, 1}, first)
		first[0] = 100
		second, err := emb.EmbedQuery(context.Background(), "head loss")
		require.NoError(t, err)
		assert.Equal(t, []float32{9, 1}, second)
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("Should surface server errors", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, `{"error":"model not found"}`, http.StatusNotFound)
		}))
		defer srv.Close()
		emb, err := New(&Config{BaseURL: srv.URL, Model: "missing"})
		require.NoError(t, err)
		_, err = emb.EmbedQuery(context.Background(), "q")
		require.Error(t, err)
		assert.Contains(t, err.Error(), `embedder "missing"`)
	})
}

func TestOllama_EmbedDocuments(t *testing.T) {
	t.Run("Should only request texts missing from the cache", func(t *testing.T) {
		var calls atomic.Int32
		srv := newEmbedServer(t, &calls)
		emb, err := New(&Config{BaseURL: srv.URL, Model: "m", CacheSize: 8})
		require.NoError(t, err)
		_, err = emb.EmbedQuery(context.Background(), "ab")
		require.NoError(t, err)
		vectors, err := emb.EmbedDocuments(context.Background(), []string{"ab", "abc", "abc"})
		require.NoError(t, err)
		require.Len(t, vectors, 3)
		assert.Equal(t, []float32{2, 1}, vectors[0])
		assert.Equal(t, []float32{3, 1}, vectors[1])
		assert.Equal(t, vectors[1], vectors[2])
		assert.Equal(t, int32(2), calls.Load())
	})
}

func TestNew(t *testing.T) {
	t.Run("Should validate config", func(t *testing.T) {
		_, err := New(nil)
		assert.Error(t, err)
		_, err = New(&Config{Model: "m"})
		assert.ErrorIs(t, err, errMissingURL)
		_, err = New(&Config{BaseURL: "http://localhost:11434"})
		assert.ErrorIs(t, err, errMissingModel)
		_, err = New(&Config{BaseURL: "not a url", Model: "m"})
		assert.Error(t, err)
	})
}
