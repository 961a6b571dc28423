// Package knowledge exposes the document search capabilities used by the agent.
package knowledge

import (
	"context"
	"strconv"
)

// Metadata keys stored alongside every chunk.
const (
	MetaSource      = "source"
	MetaTitle       = "title"
	MetaPage        = "page"
	MetaSection     = "section"
	MetaCategory    = "category"
	MetaRegion      = "region"
	MetaLanguage    = "language"
	MetaStandard    = "standard"
	MetaLastUpdated = "last_updated"
	MetaParentID    = "parent_id"
	MetaURL         = "url"
)

// SearchOptions narrows a hybrid search. Empty categorical fields are not filtered.
type SearchOptions struct {
	TopK     int
	MinScore float64
	Category string
	Region   string
	Language string
}

// SearchResult is one ranked chunk.
type SearchResult struct {
	ID       string
	Content  string
	Score    float64
	Metadata map[string]any
}

// ParentDocument is the full source record a chunk was cut from.
type ParentDocument struct {
	ID       string
	Content  string
	Title    string
	Category string
	Region   string
	Language string
	Metadata map[string]any
}

// Embedder turns a query into a vector.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// DocumentEmbedder embeds batches for ingestion.
type DocumentEmbedder interface {
	Embedder
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
}

// Searcher runs hybrid (vector + lexical) search.
type Searcher interface {
	Search(ctx context.Context, query string, opts SearchOptions) ([]SearchResult, error)
}

// ParentStore batch-fetches parent documents by id.
type ParentStore interface {
	FetchParents(ctx context.Context, ids []string) ([]ParentDocument, error)
}

// ParentWriter persists parent documents during ingestion.
type ParentWriter interface {
	UpsertParents(ctx context.Context, docs []ParentDocument) error
}

// MetaString reads a string metadata value, tolerating missing keys and non-string values.
func MetaString(meta map[string]any, key string) string {
	if meta == nil {
		return ""
	}
	switch v := meta[key].(type) {
	case string:
		return v
	case nil:
		return ""
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	default:
		return ""
	}
}
