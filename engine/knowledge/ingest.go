package knowledge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sethvargo/go-retry"
	"gopkg.in/yaml.v3"

	"github.com/compozy/techrag/engine/knowledge/vectordb"
	"github.com/compozy/techrag/pkg/logger"
)

// SourceDocument is one entry of an ingestion file.
type SourceDocument struct {
	ID          string `yaml:"id"`
	Title       string `yaml:"title"`
	Content     string `yaml:"content"`
	Source      string `yaml:"source"`
	Category    string `yaml:"category"`
	Region      string `yaml:"region"`
	Language    string `yaml:"language"`
	Standard    string `yaml:"standard"`
	Section     string `yaml:"section"`
	Page        int    `yaml:"page"`
	LastUpdated string `yaml:"last_updated"`
	URL         string `yaml:"url"`
}

type sourceFile struct {
	Documents []SourceDocument `yaml:"documents"`
}

// LoadDocuments reads an ingestion YAML file.
func LoadDocuments(path string) ([]SourceDocument, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("knowledge: open %s: %w", path, err)
	}
	defer f.Close()
	return ParseDocuments(f)
}

// ParseDocuments decodes and validates ingestion YAML.
func ParseDocuments(r io.Reader) ([]SourceDocument, error) {
	var file sourceFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("knowledge: decode documents: %w", err)
	}
	seen := make(map[string]struct{}, len(file.Documents))
	for i := range file.Documents {
		doc := &file.Documents[i]
		doc.ID = strings.TrimSpace(doc.ID)
		if doc.ID == "" {
			return nil, fmt.Errorf("knowledge: document %d has no id", i)
		}
		if strings.TrimSpace(doc.Content) == "" {
			return nil, fmt.Errorf("knowledge: document %q has no content", doc.ID)
		}
		if _, dup := seen[doc.ID]; dup {
			return nil, fmt.Errorf("knowledge: duplicate document id %q", doc.ID)
		}
		seen[doc.ID] = struct{}{}
	}
	return file.Documents, nil
}

// IngestOptions controls chunking and batching.
type IngestOptions struct {
	ChunkSize    int
	ChunkOverlap int
	BatchSize    int
	Retries      uint64
}

func (o IngestOptions) normalized() IngestOptions {
	if o.ChunkSize <= 0 {
		o.ChunkSize = 1200
	}
	if o.ChunkOverlap < 0 || o.ChunkOverlap >= o.ChunkSize {
		o.ChunkOverlap = 0
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 16
	}
	return o
}

type IngestResult struct {
	Documents int
	Chunks    int
	Parents   int
}

// Ingester embeds documents and writes them to the vector store.
type Ingester struct {
	embedder DocumentEmbedder
	store    vectordb.Store
	parents  ParentWriter
	opts     IngestOptions
}

// NewIngester builds an ingester. parents may be nil, in which case
// split documents are stored without their full parent record.
func NewIngester(emb DocumentEmbedder, store vectordb.Store, parents ParentWriter, opts IngestOptions) (*Ingester, error) {
	if emb == nil {
		return nil, errors.New("knowledge: ingest embedder is required")
	}
	if store == nil {
		return nil, errors.New("knowledge: ingest vector store is required")
	}
	return &Ingester{embedder: emb, store: store, parents: parents, opts: opts.normalized()}, nil
}

type chunk struct {
	id       string
	text     string
	metadata map[string]any
}

func (in *Ingester) Ingest(ctx context.Context, docs []SourceDocument) (*IngestResult, error) {
	log := logger.FromContext(ctx)
	start := time.Now()
	result := &IngestResult{Documents: len(docs)}
	chunks := make([]chunk, 0, len(docs))
	parents := make([]ParentDocument, 0)
	for i := range docs {
		doc := &docs[i]
		pieces := SplitText(doc.Content, in.opts.ChunkSize, in.opts.ChunkOverlap)
		split := len(pieces) > 1
		for n, piece := range pieces {
			meta := documentMetadata(doc)
			id := doc.ID
			if split {
				id = fmt.Sprintf("%s#%d", doc.ID, n)
				meta[MetaParentID] = doc.ID
			}
			chunks = append(chunks, chunk{id: id, text: piece, metadata: meta})
		}
		if split {
			parents = append(parents, ParentDocument{
				ID:       doc.ID,
				Content:  doc.Content,
				Title:    doc.Title,
				Category: doc.Category,
				Region:   doc.Region,
				Language: doc.Language,
				Metadata: documentMetadata(doc),
			})
		}
	}
	if in.parents != nil && len(parents) > 0 {
		if err := in.parents.UpsertParents(ctx, parents); err != nil {
			return nil, fmt.Errorf("knowledge: store parents: %w", err)
		}
		result.Parents = len(parents)
	}
	for offset := 0; offset < len(chunks); offset += in.opts.BatchSize {
		end := min(offset+in.opts.BatchSize, len(chunks))
		if err := in.persistBatch(ctx, chunks[offset:end]); err != nil {
			return nil, err
		}
		result.Chunks += end - offset
	}
	RecordIngest(ctx, result.Chunks, time.Since(start))
	log.Info("Knowledge ingestion completed",
		"documents", result.Documents,
		"chunks", result.Chunks,
		"parents", result.Parents,
		"duration", time.Since(start),
	)
	return result, nil
}

func (in *Ingester) persistBatch(ctx context.Context, batch []chunk) error {
	texts := make([]string, len(batch))
	for i := range batch {
		texts[i] = batch[i].text
	}
	var vectors [][]float32
	backoff := retry.WithMaxRetries(in.opts.Retries, retry.NewExponential(200*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		out, err := in.embedder.EmbedDocuments(ctx, texts)
		if err != nil {
			logger.FromContext(ctx).Warn("Embedding batch failed", "size", len(texts), "error", err)
			return retry.RetryableError(err)
		}
		vectors = out
		return nil
	})
	if err != nil {
		return fmt.Errorf("knowledge: embed batch: %w", err)
	}
	if len(vectors) != len(batch) {
		return fmt.Errorf("knowledge: received %d embeddings for %d chunks", len(vectors), len(batch))
	}
	records := make([]vectordb.Record, len(batch))
	for i := range batch {
		records[i] = vectordb.Record{
			ID:        batch[i].id,
			Text:      batch[i].text,
			Embedding: vectors[i],
			Metadata:  batch[i].metadata,
		}
	}
	if err := in.store.Upsert(ctx, records); err != nil {
		return fmt.Errorf("knowledge: upsert batch: %w", err)
	}
	return nil
}

func documentMetadata(doc *SourceDocument) map[string]any {
	meta := map[string]any{}
	set := func(key, value string) {
		if v := strings.TrimSpace(value); v != "" {
			meta[key] = v
		}
	}
	set(MetaSource, doc.Source)
	set(MetaTitle, doc.Title)
	set(MetaCategory, doc.Category)
	set(MetaRegion, doc.Region)
	set(MetaLanguage, doc.Language)
	set(MetaStandard, doc.Standard)
	set(MetaSection, doc.Section)
	set(MetaLastUpdated, doc.LastUpdated)
	set(MetaURL, doc.URL)
	if doc.Page > 0 {
		meta[MetaPage] = doc.Page
	}
	if _, ok := meta[MetaSource]; !ok {
		meta[MetaSource] = doc.ID
	}
	return meta
}

// SplitText packs paragraphs into chunks of at most size runes. Paragraphs
// longer than size are cut on rune boundaries with overlap runes repeated.
func SplitText(text string, size, overlap int) []string {
	text = strings.TrimSpace(strings.ReplaceAll(text, "\r\n", "\n"))
	if text == "" {
		return nil
	}
	if utf8.RuneCountInString(text) <= size {
		return []string{text}
	}
	var (
		out     []string
		current strings.Builder
	)
	flush := func() {
		if s := strings.TrimSpace(current.String()); s != "" {
			out = append(out, s)
		}
		current.Reset()
	}
	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		paraLen := utf8.RuneCountInString(para)
		if paraLen > size {
			flush()
			out = append(out, hardSplit(para, size, overlap)...)
			continue
		}
		if current.Len() > 0 && utf8.RuneCountInString(current.String())+2+paraLen > size {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(para)
	}
	flush()
	return out
}

func hardSplit(text string, size, overlap int) []string {
	runes := []rune(text)
	step := size - overlap
	var out []string
	for start := 0; start < len(runes); start += step {
		end := min(start+size, len(runes))
		out = append(out, strings.TrimSpace(string(runes[start:end])))
		if end == len(runes) {
			break
		}
	}
	return out
}
