package agent

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compozy/techrag/engine/knowledge"
	"github.com/compozy/techrag/engine/websearch"
)

func threeManuals() *stubSearcher {
	return fixedResults(
		result("m1", "Pipe sizing with the continuity equation Q = v·A at 1.5 m/s.", 0.9,
			map[string]any{knowledge.MetaSource: "manual.pdf", knowledge.MetaTitle: "Hydraulics Manual", knowledge.MetaParentID: "p1"}),
		result("m2", "Pipe sizing tables for water mains.", 0.8,
			map[string]any{knowledge.MetaSource: "manual.pdf", knowledge.MetaParentID: "p1"}),
		result("m3", "Pipe sizing for pumped systems.", 0.7,
			map[string]any{knowledge.MetaSource: "pumps.pdf", knowledge.MetaParentID: "p2"}),
	)
}

func newTestOrchestrator(t *testing.T, settings Settings, deps Dependencies) *Orchestrator {
	t.Helper()
	if deps.Clock == nil {
		deps.Clock = fixedClock{now: testNow}
	}
	o, err := NewOrchestrator(settings, deps)
	require.NoError(t, err)
	return o
}

func TestNewOrchestrator(t *testing.T) {
	t.Run("Should require a searcher and a model", func(t *testing.T) {
		_, err := NewOrchestrator(testSettings(), Dependencies{LLM: (&scriptedLLM{}).Completer()})
		assert.Error(t, err)
		_, err = NewOrchestrator(testSettings(), Dependencies{Searcher: threeManuals()})
		assert.Error(t, err)
	})

	t.Run("Should dispatch every executable step", func(t *testing.T) {
		o := newTestOrchestrator(t, testSettings(), Dependencies{Searcher: threeManuals(), LLM: (&scriptedLLM{}).Completer()})
		for _, name := range Steps() {
			step, err := o.step(name)
			require.NoError(t, err)
			assert.Equal(t, name, step.Name())
		}
		_, err := o.step(StepEnd)
		assert.Error(t, err)
		_, err = o.step("summarize")
		assert.Error(t, err)
	})
}

func TestOrchestrator_Ask(t *testing.T) {
	ctx := context.Background()

	t.Run("Should reject an empty question", func(t *testing.T) {
		o := newTestOrchestrator(t, testSettings(), Dependencies{Searcher: threeManuals(), LLM: (&scriptedLLM{}).Completer()})
		_, err := o.Ask(ctx, "   ")
		assert.ErrorIs(t, err, ErrEmptyQuestion)
	})

	t.Run("Should answer from relevant documents", func(t *testing.T) {
		script := &scriptedLLM{
			judge:    judgeJSON(`{"relevant": true, "score": 0.9, "reason": "direct"}`),
			generate: func(string) (string, error) { return "Use Q = v·A with a design velocity [2].", nil },
		}
		collector := newTestCollector(t)
		parents := &stubParents{}
		settings := testSettings()
		settings.ParentExpansion = true
		o := newTestOrchestrator(t, settings, Dependencies{
			Searcher: threeManuals(), Parents: parents, LLM: script.Completer(), Metrics: collector,
		})

		answer, err := o.Ask(ctx, scenarioQuestion)

		require.NoError(t, err)
		assert.Equal(t, "Use Q = v·A with a design velocity [2].", answer.Answer)
		assert.NotEmpty(t, answer.SessionID)
		assert.Equal(t, []StepName{StepRetrieve, StepGrade, StepGenerate}, answer.Metrics.NodesVisited)
		assert.Equal(t, 3, answer.Metrics.Iterations)
		assert.Equal(t, 3, answer.Metrics.DocumentsRetrieved)
		assert.False(t, answer.Metrics.WebSearchUsed)
		assert.False(t, answer.Metrics.ReformulationUsed)
		assert.Greater(t, answer.Confidence, 0.0)
		assert.LessOrEqual(t, answer.Confidence, 1.0)
		assert.Equal(t, []string{"p1", "p2"}, parents.ids)

		require.Len(t, answer.Sources, 2)
		assert.True(t, answer.Sources[0].Cited)
		assert.False(t, answer.Sources[1].Cited)

		summary := collector.Summary()
		assert.Equal(t, int64(1), summary.Sessions.Total)
		assert.Equal(t, int64(1), summary.Steps[StepGenerate].Count)
	})

	t.Run("Should reformulate and re-enter retrieval when nothing is relevant", func(t *testing.T) {
		searcher := threeManuals()
		script := &scriptedLLM{
			judge:       judgeJSON(`{"relevant": false, "score": 0.05, "reason": "off topic"}`),
			reformulate: func(string) (string, error) { return scenarioReformulations, nil },
		}
		settings := testSettings()
		settings.MaxIterations = 4
		o := newTestOrchestrator(t, settings, Dependencies{Searcher: searcher, LLM: script.Completer()})

		answer, err := o.Ask(ctx, scenarioQuestion)

		require.NoError(t, err)
		assert.Equal(t, []StepName{StepRetrieve, StepGrade, StepReformulate, StepRetrieve}, answer.Metrics.NodesVisited)
		assert.True(t, answer.Metrics.ReformulationUsed)
		assert.Equal(t, incompleteAnswer, answer.Answer)
		queries := searcher.Queries()
		require.Len(t, queries, 7)
		assert.Equal(t, scenarioQuestion, queries[0])
		assert.ElementsMatch(t, []string{
			scenarioQuestion,
			"Pipe diameter selection for a design flow of 50 liters per second",
			"conduit diameter selection for a design flow of 50 liters per second",
			"Hydraulic sizing criteria for water mains carrying 50 L/s",
			"Hydraulic sizing criteria for water mains carrying 50 liters per second",
			"Recommended velocity range when selecting pipeline diameter",
		}, queries[1:])
	})

	t.Run("Should fall back to web search and generation", func(t *testing.T) {
		script := &scriptedLLM{
			judge:    judgeJSON(`{"relevant": false, "score": 0.1}`),
			generate: func(string) (string, error) { return "Per the reference [1].", nil },
		}
		provider := &stubProvider{resp: webResponse(websearch.Result{
			Title: "Pipe flow design", URL: "https://www.usbr.gov/pipe", Description: "hydraulic pipe sizing",
		})}
		settings := testSettings()
		settings.WebSearch.Enabled = true
		settings.WebSearch.HasCredentials = true
		o := newTestOrchestrator(t, settings, Dependencies{Searcher: threeManuals(), LLM: script.Completer(), WebSearch: provider})

		answer, err := o.Ask(ctx, scenarioQuestion)

		require.NoError(t, err)
		assert.Equal(t, []StepName{StepRetrieve, StepGrade, StepWebSearch, StepGenerate}, answer.Metrics.NodesVisited)
		assert.True(t, answer.Metrics.WebSearchUsed)
		require.Len(t, answer.Sources, 1)
		assert.True(t, answer.Sources[0].Web)
		assert.True(t, answer.Sources[0].Cited)
		assert.InDelta(t, 0.5, answer.Confidence, 1e-9)
	})

	t.Run("Should end the session when retrieval fails", func(t *testing.T) {
		searcher := &stubSearcher{fn: func(string, knowledge.SearchOptions) ([]knowledge.SearchResult, error) {
			return nil, errors.New("vector store unreachable")
		}}
		script := &scriptedLLM{}
		o := newTestOrchestrator(t, testSettings(), Dependencies{Searcher: searcher, LLM: script.Completer()})

		answer, err := o.Ask(ctx, scenarioQuestion)

		require.NoError(t, err)
		assert.Equal(t, []StepName{StepRetrieve}, answer.Metrics.NodesVisited)
		assert.Equal(t, 0.0, answer.Confidence)
		assert.Empty(t, answer.Sources)
		assert.Equal(t, 0, script.Calls("judge"))
	})

	t.Run("Should stop at the iteration budget", func(t *testing.T) {
		script := &scriptedLLM{
			judge:       judgeJSON(`{"relevant": false, "score": 0.05}`),
			reformulate: func(string) (string, error) { return "", errors.New("offline") },
		}
		settings := testSettings()
		settings.MaxIterations = 2
		o := newTestOrchestrator(t, settings, Dependencies{Searcher: threeManuals(), LLM: script.Completer()})
		answer, err := o.Ask(ctx, scenarioQuestion)
		require.NoError(t, err)
		assert.Len(t, answer.Metrics.NodesVisited, 2)
		assert.Equal(t, 2, answer.Metrics.Iterations)
	})

	t.Run("Should stop reformulating after three rounds", func(t *testing.T) {
		script := &scriptedLLM{
			judge:       judgeJSON(`{"relevant": false, "score": 0.05}`),
			reformulate: func(string) (string, error) { return "", errors.New("offline") },
		}
		o := newTestOrchestrator(t, testSettings(), Dependencies{Searcher: threeManuals(), LLM: script.Completer()})
		answer, err := o.Ask(ctx, "pipe sizing")
		require.NoError(t, err)
		rounds := 0
		for _, n := range answer.Metrics.NodesVisited {
			if n == StepReformulate {
				rounds++
			}
		}
		assert.Equal(t, 3, rounds)
		assert.Equal(t, StepGenerate, answer.Metrics.NodesVisited[len(answer.Metrics.NodesVisited)-1])
		assert.Equal(t, noEvidenceAnswer, answer.Answer)
	})
}

func TestAssembleSources(t *testing.T) {
	t.Run("Should keep the best document per source and list cited sources first", func(t *testing.T) {
		s := NewState("s1", "q", 3)
		s.GradedDocuments = []GradedDocument{
			{Document: Document{ID: "a1", Metadata: DocumentMetadata{Source: "a.pdf", Title: "A low"}}, RelevanceScore: 0.7, Relevant: true},
			{Document: Document{ID: "a2", Metadata: DocumentMetadata{Source: "a.pdf", Title: "A high"}}, RelevanceScore: 0.9, Relevant: true},
			{Document: Document{ID: "b1", Metadata: DocumentMetadata{Source: "b.pdf"}}, RelevanceScore: 0.8, Relevant: true},
			{Document: Document{ID: "c1", Metadata: DocumentMetadata{Source: "c.pdf"}}, RelevanceScore: 0.95},
		}
		s.WebSearchResults = []Document{
			{ID: "w1", Score: 0.5, Metadata: DocumentMetadata{URL: "https://x.org/a", Source: "https://x.org/a"}},
		}
		s.Citations = []string{"https://x.org/a"}

		sources := assembleSources(&s)

		require.Len(t, sources, 3)
		assert.Equal(t, "https://x.org/a", sources[0].Key)
		assert.True(t, sources[0].Cited)
		assert.True(t, sources[0].Web)
		assert.Equal(t, "a.pdf", sources[1].Key)
		assert.Equal(t, "A high", sources[1].Title)
		assert.InDelta(t, 0.9, sources[1].Relevance, 1e-9)
		assert.Equal(t, "b.pdf", sources[2].Key)
		for _, src := range sources {
			assert.False(t, strings.HasPrefix(src.Key, "c"))
		}
	})
}
