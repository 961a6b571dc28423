package agent

import (
	"context"
	"fmt"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/compozy/techrag/engine/domain"
	"github.com/compozy/techrag/engine/knowledge"
	"github.com/compozy/techrag/pkg/logger"
)

const (
	SearchMethodHybrid        = "hybrid"
	SearchMethodHybridRelaxed = "hybrid_relaxed"
	SearchMethodRRF           = "rrf_multi_query"

	minStrictResults    = 3
	relaxedScoreScaling = 0.8
)

// RetrieveOutput is the Data of a successful retrieval.
type RetrieveOutput struct {
	Documents []Document
	Method    string
	Queries   int
	Parents   int
}

type retrieveStep struct {
	stepBase
	searcher knowledge.Searcher
	parents  knowledge.ParentStore
	settings *Settings
}

func (r *retrieveStep) Name() StepName { return StepRetrieve }

func (r *retrieveStep) fallbackNext() StepName { return "" }

func (r *retrieveStep) Execute(ctx context.Context, s State, m Mutator) StepResult {
	log := logger.FromContext(ctx)
	var (
		docs   []Document
		method string
		calls  int
		err    error
	)
	queries := 1
	if len(s.ReformulatedQueries) > 0 {
		qs := uniqueQueries(append([]string{s.OriginalQuestion}, s.ReformulatedQueries...))
		queries = len(qs)
		docs, calls, err = r.multiQuery(ctx, &s, qs)
		method = SearchMethodRRF
	} else {
		docs, method, calls, err = r.twoStage(ctx, &s, s.CurrentQuery)
	}
	if err != nil {
		// the runner records the failure once retries are spent
		m.Update(Patch{RetrievedDocuments: Ptr([]Document{})})
		return fail(stepError(StepRetrieve, ErrCodeRetrievalFailed, err), "", calls)
	}
	patch := Patch{
		RetrievedDocuments: Ptr(docs),
		SearchMethod:       Ptr(method),
	}
	out := RetrieveOutput{Documents: docs, Method: method, Queries: queries}
	if r.settings.ParentExpansion && r.parents != nil {
		parents, perr := r.expandParents(ctx, docs)
		calls++
		if perr != nil {
			m.LogError(StepRetrieve, fmt.Sprintf("parent expansion failed: %v", perr))
		} else {
			patch.ParentDocuments = Ptr(parents)
			out.Parents = len(parents)
		}
	}
	m.Update(patch)
	log.Debug("Retrieved documents", "count", len(docs), "method", method, "queries", queries)
	return succeed(StepGrade, out, calls)
}

// twoStage runs a filtered search and widens it when it returns too little.
func (r *retrieveStep) twoStage(ctx context.Context, s *State, query string) ([]Document, string, int, error) {
	topK := r.settings.topK()
	strictOpts := knowledge.SearchOptions{
		TopK:     2 * topK,
		MinScore: r.settings.MinScore,
		Region:   s.Region,
		Language: s.QueryLanguage,
	}
	if s.EngineeringDomain != domain.General {
		strictOpts.Category = string(s.EngineeringDomain)
	}
	strict, err := r.searcher.Search(ctx, query, strictOpts)
	if err != nil {
		return nil, "", 1, err
	}
	if len(strict) >= minStrictResults {
		return toDocuments(strict), SearchMethodHybrid, 1, nil
	}
	relaxed, err := r.searcher.Search(ctx, query, knowledge.SearchOptions{
		TopK:     2 * topK,
		MinScore: r.settings.MinScore * relaxedScoreScaling,
	})
	if err != nil {
		return nil, "", 2, err
	}
	merged := mergeByID(toDocuments(strict), toDocuments(relaxed))
	if len(merged) > 2*topK {
		merged = merged[:2*topK]
	}
	return merged, SearchMethodHybridRelaxed, 2, nil
}

// multiQuery searches every query concurrently and fuses the rankings.
// One failed search fails the whole round.
func (r *retrieveStep) multiQuery(ctx context.Context, s *State, queries []string) ([]Document, int, error) {
	lists := make([][]Document, len(queries))
	callCounts := make([]int, len(queries))
	g, gctx := errgroup.WithContext(ctx)
	for i, q := range queries {
		g.Go(func() error {
			docs, _, calls, err := r.twoStage(gctx, s, q)
			callCounts[i] = calls
			if err != nil {
				return fmt.Errorf("query %d: %w", i, err)
			}
			lists[i] = docs
			return nil
		})
	}
	err := g.Wait()
	calls := 0
	for _, c := range callCounts {
		calls += c
	}
	if err != nil {
		return nil, calls, err
	}
	k := r.settings.RRFConstant
	return FuseRankings(lists, k, r.settings.topK()), calls, nil
}

func (r *retrieveStep) expandParents(ctx context.Context, docs []Document) ([]knowledge.ParentDocument, error) {
	ids := make([]string, 0, len(docs))
	seen := make(map[string]struct{})
	for i := range docs {
		id := docs[i].Metadata.ParentID
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	return r.parents.FetchParents(ctx, ids)
}

func mergeByID(primary, secondary []Document) []Document {
	out := make([]Document, 0, len(primary)+len(secondary))
	seen := make(map[string]struct{}, len(primary)+len(secondary))
	for _, list := range [][]Document{primary, secondary} {
		for i := range list {
			if _, ok := seen[list[i].ID]; ok {
				continue
			}
			seen[list[i].ID] = struct{}{}
			out = append(out, list[i])
		}
	}
	return out
}

func uniqueQueries(qs []string) []string {
	out := make([]string, 0, len(qs))
	seen := make(map[string]struct{}, len(qs))
	for _, q := range qs {
		key := normalizeQuery(q)
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, q)
	}
	return out
}

func toDocuments(results []knowledge.SearchResult) []Document {
	out := make([]Document, 0, len(results))
	for i := range results {
		r := &results[i]
		out = append(out, Document{
			ID:       r.ID,
			Content:  r.Content,
			Score:    r.Score,
			Metadata: metadataFromMap(r.Metadata),
		})
	}
	return out
}

func metadataFromMap(meta map[string]any) DocumentMetadata {
	page, _ := strconv.Atoi(knowledge.MetaString(meta, knowledge.MetaPage))
	return DocumentMetadata{
		Source:      knowledge.MetaString(meta, knowledge.MetaSource),
		Title:       knowledge.MetaString(meta, knowledge.MetaTitle),
		Page:        page,
		Section:     knowledge.MetaString(meta, knowledge.MetaSection),
		Category:    knowledge.MetaString(meta, knowledge.MetaCategory),
		Region:      knowledge.MetaString(meta, knowledge.MetaRegion),
		Language:    knowledge.MetaString(meta, knowledge.MetaLanguage),
		Standard:    knowledge.MetaString(meta, knowledge.MetaStandard),
		LastUpdated: knowledge.MetaString(meta, knowledge.MetaLastUpdated),
		ParentID:    knowledge.MetaString(meta, knowledge.MetaParentID),
		URL:         knowledge.MetaString(meta, knowledge.MetaURL),
	}
}
