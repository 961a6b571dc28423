package vectordb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
)

// pgPool is the subset of pgxpool.Pool used by the store.
type pgPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
	Close()
}

type pgStore struct {
	pool       pgPool
	table      string
	tableIdent string
	dimension  int
	ensureIdx  bool
}

func newPGStore(ctx context.Context, cfg *Config) (Store, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("vector_db: failed to connect to postgres: %w", err)
	}
	store := newPGStoreWithPool(pool, cfg)
	if err := store.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

func newPGStoreWithPool(pool pgPool, cfg *Config) *pgStore {
	table := cfg.Table
	if table == "" {
		table = "knowledge_chunks"
	}
	return &pgStore{
		pool:       pool,
		table:      table,
		tableIdent: pgx.Identifier{table}.Sanitize(),
		dimension:  cfg.Dimension,
		ensureIdx:  cfg.EnsureIndex,
	}
}

func (p *pgStore) ensureSchema(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("pgvector: enable extension: %w", err)
	}
	createTable := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id TEXT PRIMARY KEY,
		embedding vector(%d),
		document TEXT,
		metadata JSONB,
		updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	)`, p.tableIdent, p.dimension)
	if _, err := p.pool.Exec(ctx, createTable); err != nil {
		return fmt.Errorf("pgvector: create table: %w", err)
	}
	if !p.ensureIdx {
		return nil
	}
	vectorIdx := pgx.Identifier{p.table + "_embedding_idx"}.Sanitize()
	lexicalIdx := pgx.Identifier{p.table + "_document_tsv_idx"}.Sanitize()
	statements := []string{
		fmt.Sprintf(
			"CREATE INDEX IF NOT EXISTS %s ON %s USING ivfflat (embedding vector_cosine_ops)",
			vectorIdx, p.tableIdent,
		),
		fmt.Sprintf(
			"CREATE INDEX IF NOT EXISTS %s ON %s USING gin (to_tsvector('simple', document))",
			lexicalIdx, p.tableIdent,
		),
	}
	for _, stmt := range statements {
		if _, err := p.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("pgvector: create index: %w", err)
		}
	}
	return nil
}

func (p *pgStore) Upsert(ctx context.Context, records []Record) (err error) {
	if len(records) == 0 {
		return nil
	}
	tx, txErr := p.pool.BeginTx(ctx, pgx.TxOptions{})
	if txErr != nil {
		return fmt.Errorf("pgvector: begin tx: %w", txErr)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				err = fmt.Errorf("pgvector: rollback failed: %w; original error: %v", rbErr, err)
			}
			return
		}
		if commitErr := tx.Commit(ctx); commitErr != nil {
			err = fmt.Errorf("pgvector: commit: %w", commitErr)
		}
	}()
	stmt := fmt.Sprintf(`INSERT INTO %s (id, embedding, document, metadata, updated_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO UPDATE SET
    embedding = excluded.embedding,
    document = excluded.document,
    metadata = excluded.metadata,
    updated_at = excluded.updated_at`, p.tableIdent)
	for i := range records {
		rec := records[i]
		if len(rec.Embedding) != p.dimension {
			return fmt.Errorf(
				"pgvector: record %q dimension mismatch (got %d want %d)",
				rec.ID,
				len(rec.Embedding),
				p.dimension,
			)
		}
		metadata, marshalErr := json.Marshal(rec.Metadata)
		if marshalErr != nil {
			return fmt.Errorf("pgvector: marshal metadata for %q: %w", rec.ID, marshalErr)
		}
		vector := pgvector.NewVector(rec.Embedding)
		if _, execErr := tx.Exec(ctx, stmt, rec.ID, vector, rec.Text, metadata, time.Now().UTC()); execErr != nil {
			return fmt.Errorf("pgvector: upsert %q: %w", rec.ID, execErr)
		}
	}
	return nil
}

// buildSearchQuery ranks by cosine similarity, blended with ts_rank_cd when
// query text is supplied.
func (p *pgStore) buildSearchQuery(query []float32, opts SearchOptions) (string, []any) {
	topK := opts.TopK
	if topK <= 0 {
		topK = defaultTopK
	}
	args := []any{pgvector.NewVector(query)}
	argPos := 2
	scoreExpr := "1 - (embedding <=> $1)"
	if strings.TrimSpace(opts.QueryText) != "" && opts.HybridWeight > 0 && opts.HybridWeight < 1 {
		scoreExpr = fmt.Sprintf(
			"$%d * (1 - (embedding <=> $1)) + (1 - $%d) * "+
				"ts_rank_cd(to_tsvector('simple', document), plainto_tsquery('simple', $%d), 32)",
			argPos, argPos, argPos+1,
		)
		args = append(args, opts.HybridWeight, opts.QueryText)
		argPos += 2
	}
	b := strings.Builder{}
	b.WriteString("SELECT id, document, metadata, score FROM (SELECT id, document, metadata, ")
	b.WriteString(scoreExpr)
	b.WriteString(" AS score FROM ")
	b.WriteString(p.tableIdent)
	b.WriteString(" WHERE 1=1")
	for _, key := range sortedKeys(opts.Filters) {
		b.WriteString(fmt.Sprintf(" AND metadata ->> $%d = $%d", argPos, argPos+1))
		args = append(args, key, opts.Filters[key])
		argPos += 2
	}
	b.WriteString(") ranked")
	if opts.MinScore > 0 {
		b.WriteString(fmt.Sprintf(" WHERE score >= $%d", argPos))
		args = append(args, opts.MinScore)
		argPos++
	}
	b.WriteString(fmt.Sprintf(" ORDER BY score DESC, id ASC LIMIT $%d", argPos))
	args = append(args, topK)
	return b.String(), args
}

func (p *pgStore) Search(ctx context.Context, query []float32, opts SearchOptions) ([]Match, error) {
	if len(query) != p.dimension {
		return nil, errors.New("pgvector: query dimension mismatch")
	}
	sql, args := p.buildSearchQuery(query, opts)
	rows, err := p.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("pgvector: search: %w", err)
	}
	defer rows.Close()
	results := make([]Match, 0, opts.TopK)
	for rows.Next() {
		var (
			id          string
			document    string
			metadataRaw []byte
			score       float64
		)
		if err := rows.Scan(&id, &document, &metadataRaw, &score); err != nil {
			return nil, fmt.Errorf("pgvector: scan: %w", err)
		}
		meta := make(map[string]any)
		if len(metadataRaw) > 0 {
			if err := json.Unmarshal(metadataRaw, &meta); err != nil {
				return nil, fmt.Errorf("pgvector: decode metadata: %w", err)
			}
		}
		results = append(results, Match{ID: id, Score: score, Text: document, Metadata: meta})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgvector: search rows: %w", err)
	}
	return results, nil
}

func (p *pgStore) Delete(ctx context.Context, filter Filter) error {
	if len(filter.IDs) == 0 && len(filter.Metadata) == 0 {
		return nil
	}
	b := strings.Builder{}
	b.WriteString("DELETE FROM ")
	b.WriteString(p.tableIdent)
	b.WriteString(" WHERE 1=1")
	args := make([]any, 0)
	argPos := 1
	if len(filter.IDs) > 0 {
		b.WriteString(fmt.Sprintf(" AND id = ANY($%d)", argPos))
		args = append(args, filter.IDs)
		argPos++
	}
	for _, key := range sortedKeys(filter.Metadata) {
		b.WriteString(fmt.Sprintf(" AND metadata ->> $%d = $%d", argPos, argPos+1))
		args = append(args, key, filter.Metadata[key])
		argPos += 2
	}
	if _, err := p.pool.Exec(ctx, b.String(), args...); err != nil {
		return fmt.Errorf("pgvector: delete: %w", err)
	}
	return nil
}

func (p *pgStore) Close(_ context.Context) error {
	p.pool.Close()
	return nil
}
