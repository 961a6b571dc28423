// Package parents stores full parent documents that retrieval chunks point back to.
package parents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/compozy/techrag/engine/knowledge"
	"github.com/compozy/techrag/pkg/logger"
)

// DB is the subset of pgxpool.Pool the store needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Close()
}

type Config struct {
	DSN      string
	Table    string
	MaxConns int32
}

// Store implements knowledge.ParentStore and knowledge.ParentWriter on Postgres.
type Store struct {
	db    DB
	table string
	qb    sq.StatementBuilderType
}

type parentRow struct {
	ID       string `db:"id"`
	Content  string `db:"content"`
	Title    string `db:"title"`
	Category string `db:"category"`
	Region   string `db:"region"`
	Language string `db:"language"`
	Metadata []byte `db:"metadata"`
}

var columns = []string{"id", "content", "title", "category", "region", "language", "metadata"}

// Open connects a pool and makes sure the parent table exists.
func Open(ctx context.Context, cfg *Config) (*Store, error) {
	if cfg == nil || strings.TrimSpace(cfg.DSN) == "" {
		return nil, errors.New("parents: dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parents: parse dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("parents: connect: %w", err)
	}
	store := NewWithDB(pool, cfg.Table)
	if err := store.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

// NewWithDB wraps an existing connection pool.
func NewWithDB(db DB, table string) *Store {
	if table == "" {
		table = "parent_documents"
	}
	return &Store{
		db:    db,
		table: pgx.Identifier{table}.Sanitize(),
		qb:    sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	stmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id TEXT PRIMARY KEY,
		content TEXT NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		category TEXT NOT NULL DEFAULT '',
		region TEXT NOT NULL DEFAULT '',
		language TEXT NOT NULL DEFAULT '',
		metadata JSONB,
		updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	)`, s.table)
	if _, err := s.db.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("parents: create table: %w", err)
	}
	return nil
}

// FetchParents loads parents by id, returned in request order. Unknown ids are skipped.
func (s *Store) FetchParents(ctx context.Context, ids []string) ([]knowledge.ParentDocument, error) {
	ids = distinct(ids)
	if len(ids) == 0 {
		return nil, nil
	}
	query, args, err := s.qb.Select(columns...).From(s.table).Where(sq.Eq{"id": ids}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("parents: build query: %w", err)
	}
	var rows []parentRow
	if err := pgxscan.Select(ctx, s.db, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("parents: fetch: %w", err)
	}
	byID := make(map[string]knowledge.ParentDocument, len(rows))
	for i := range rows {
		doc, err := rows[i].toDocument()
		if err != nil {
			return nil, err
		}
		byID[doc.ID] = doc
	}
	out := make([]knowledge.ParentDocument, 0, len(byID))
	for _, id := range ids {
		if doc, ok := byID[id]; ok {
			out = append(out, doc)
		}
	}
	knowledge.RecordParentFetch(ctx, len(out))
	logger.FromContext(ctx).Debug("Parent documents fetched", "requested", len(ids), "found", len(out))
	return out, nil
}

// UpsertParents writes parents in a single statement.
func (s *Store) UpsertParents(ctx context.Context, docs []knowledge.ParentDocument) error {
	if len(docs) == 0 {
		return nil
	}
	insert := s.qb.Insert(s.table).Columns(columns...)
	for i := range docs {
		meta, err := json.Marshal(docs[i].Metadata)
		if err != nil {
			return fmt.Errorf("parents: marshal metadata for %q: %w", docs[i].ID, err)
		}
		insert = insert.Values(
			docs[i].ID, docs[i].Content, docs[i].Title,
			docs[i].Category, docs[i].Region, docs[i].Language, meta,
		)
	}
	insert = insert.Suffix(`ON CONFLICT (id) DO UPDATE SET
		content = excluded.content,
		title = excluded.title,
		category = excluded.category,
		region = excluded.region,
		language = excluded.language,
		metadata = excluded.metadata,
		updated_at = NOW()`)
	query, args, err := insert.ToSql()
	if err != nil {
		return fmt.Errorf("parents: build upsert: %w", err)
	}
	if _, err := s.db.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("parents: upsert: %w", err)
	}
	return nil
}

func (s *Store) Close() {
	s.db.Close()
}

func (r *parentRow) toDocument() (knowledge.ParentDocument, error) {
	doc := knowledge.ParentDocument{
		ID:       r.ID,
		Content:  r.Content,
		Title:    r.Title,
		Category: r.Category,
		Region:   r.Region,
		Language: r.Language,
	}
	if len(r.Metadata) > 0 {
		if err := json.Unmarshal(r.Metadata, &doc.Metadata); err != nil {
			return doc, fmt.Errorf("parents: decode metadata for %q: %w", r.ID, err)
		}
	}
	return doc, nil
}

func distinct(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
