package vectordb

import (
	"context"
	"regexp"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*pgStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	store := newPGStoreWithPool(mock, &Config{Table: "chunks", Dimension: 3})
	return store, mock
}

func TestPGStore_BuildSearchQuery(t *testing.T) {
	t.Run("Should build a vector only query with sorted filters", func(t *testing.T) {
		store, _ := newMockStore(t)
		sql, args := store.buildSearchQuery([]float32{1, 0, 0}, SearchOptions{
			TopK:     4,
			MinScore: 0.3,
			Filters:  map[string]string{"region": "US", "category": "hydraulic"},
		})
		assert.Contains(t, sql, "1 - (embedding <=> $1) AS score")
		assert.Contains(t, sql, "metadata ->> $2 = $3 AND metadata ->> $4 = $5")
		assert.Contains(t, sql, "WHERE score >= $6")
		assert.Contains(t, sql, "LIMIT $7")
		require.Len(t, args, 7)
		assert.Equal(t, "category", args[1])
		assert.Equal(t, "region", args[3])
		assert.Equal(t, 4, args[6])
	})

	t.Run("Should blend ts_rank_cd when query text and weight are set", func(t *testing.T) {
		store, _ := newMockStore(t)
		sql, args := store.buildSearchQuery([]float32{1, 0, 0}, SearchOptions{
			QueryText:    "head loss",
			HybridWeight: 0.7,
		})
		assert.Contains(t, sql, "$2 * (1 - (embedding <=> $1)) + (1 - $2) * ts_rank_cd")
		assert.Contains(t, sql, "plainto_tsquery('simple', $3)")
		assert.NotContains(t, sql, "score >=")
		require.Len(t, args, 4)
		assert.Equal(t, 0.7, args[1])
		assert.Equal(t, "head loss", args[2])
		assert.Equal(t, defaultTopK, args[3])
	})
}

func TestPGStore_Search(t *testing.T) {
	t.Run("Should scan rows into matches", func(t *testing.T) {
		store, mock := newMockStore(t)
		rows := mock.NewRows([]string{"id", "document", "metadata", "score"}).
			AddRow("c1", "Darcy friction factor", []byte(`{"category":"hydraulic","parent_id":"p1"}`), 0.91).
			AddRow("c2", "Moody chart", []byte(nil), 0.72)
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, document, metadata, score FROM (SELECT`)).
			WithArgs(pgxmock.AnyArg(), 2).
			WillReturnRows(rows)
		matches, err := store.Search(context.Background(), []float32{1, 0, 0}, SearchOptions{TopK: 2})
		require.NoError(t, err)
		require.Len(t, matches, 2)
		assert.Equal(t, "c1", matches[0].ID)
		assert.Equal(t, "p1", matches[0].Metadata["parent_id"])
		assert.Empty(t, matches[1].Metadata)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Should wrap query failures", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectQuery("SELECT").WillReturnError(assert.AnError)
		_, err := store.Search(context.Background(), []float32{1, 0, 0}, SearchOptions{})
		assert.ErrorIs(t, err, assert.AnError)
	})

	t.Run("Should reject mismatched dimensions", func(t *testing.T) {
		store, _ := newMockStore(t)
		_, err := store.Search(context.Background(), []float32{1}, SearchOptions{})
		assert.Error(t, err)
	})
}

func TestPGStore_Upsert(t *testing.T) {
	t.Run("Should upsert records inside a transaction", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectBeginTx(pgxmock.AnyArg())
		mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "chunks"`)).
			WithArgs("c1", pgxmock.AnyArg(), "text", pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectCommit()
		err := store.Upsert(context.Background(), []Record{
			{ID: "c1", Text: "text", Embedding: []float32{1, 2, 3}, Metadata: map[string]any{"k": "v"}},
		})
		require.NoError(t, err)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Should roll back on dimension mismatch", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectBeginTx(pgxmock.AnyArg())
		mock.ExpectRollback()
		err := store.Upsert(context.Background(), []Record{{ID: "bad", Embedding: []float32{1}}})
		require.Error(t, err)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPGStore_Delete(t *testing.T) {
	t.Run("Should delete by ids", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "chunks" WHERE 1=1 AND id = ANY($1)`)).
			WithArgs([]string{"a", "b"}).
			WillReturnResult(pgxmock.NewResult("DELETE", 2))
		require.NoError(t, store.Delete(context.Background(), Filter{IDs: []string{"a", "b"}}))
		require.NoError(t, mock.ExpectationsWereMet())
	})
}
