package agent

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"github.com/compozy/techrag/engine/core"
	"github.com/compozy/techrag/engine/domain"
	"github.com/compozy/techrag/engine/llm"
	"github.com/compozy/techrag/pkg/logger"
)

const (
	judgmentWeight  = 0.7
	heuristicWeight = 0.3

	maxReformulationRounds = 3
	shortQuestionWords     = 5
	weakMeanRelevance      = 0.5
	strongMeanRelevance    = 0.7
	strongRelevantCount    = 3
	minRelevantCount       = 2
)

// GradeOutput is the Data of a grading pass.
type GradeOutput struct {
	Relevant          int
	MeanRelevance     float64
	ShouldWebSearch   bool
	ShouldReformulate bool
}

type gradeStep struct {
	stepBase
	llm      llm.ChatCompleter
	settings *Settings
	cache    *lru.Cache[string, Judgment]
}

func newGradeStep(c llm.ChatCompleter, settings *Settings) *gradeStep {
	g := &gradeStep{llm: c, settings: settings}
	if settings.JudgmentCacheSize > 0 {
		if cache, err := lru.New[string, Judgment](settings.JudgmentCacheSize); err == nil {
			g.cache = cache
		}
	}
	return g
}

func (g *gradeStep) Name() StepName { return StepGrade }

func (g *gradeStep) fallbackNext() StepName { return StepGenerate }

func (g *gradeStep) Execute(ctx context.Context, s State, m Mutator) StepResult {
	docs := s.RetrievedDocuments
	graded := make([]GradedDocument, len(docs))
	var calls atomic.Int64
	var eg errgroup.Group
	eg.SetLimit(max(g.settings.GradingConcurrency, 1))
	for i := range docs {
		eg.Go(func() error {
			graded[i] = g.gradeOne(ctx, &s, &docs[i], m, &calls)
			return nil
		})
	}
	_ = eg.Wait()

	scores := make([]float64, len(graded))
	relevant := 0
	sum := 0.0
	for i := range graded {
		scores[i] = graded[i].RelevanceScore
		sum += scores[i]
		if graded[i].Relevant {
			relevant++
		}
	}
	mean := 0.0
	if len(graded) > 0 {
		mean = sum / float64(len(graded))
	}
	session := SessionFromContext(ctx)
	web := g.shouldWebSearch(&s, graded, relevant, mean, session.Now())
	reformulate := shouldReformulate(&s, relevant, mean)
	m.Update(Patch{
		GradedDocuments:   Ptr(graded),
		RelevanceScores:   Ptr(scores),
		ShouldWebSearch:   Ptr(web),
		ShouldReformulate: Ptr(reformulate),
	})
	logger.FromContext(ctx).Debug("Graded documents",
		"total", len(graded), "relevant", relevant, "mean", mean,
		"web_search", web, "reformulate", reformulate)
	out := GradeOutput{Relevant: relevant, MeanRelevance: mean, ShouldWebSearch: web, ShouldReformulate: reformulate}
	return succeed(nextAfterGrade(relevant > 0, web, reformulate), out, int(calls.Load()))
}

// nextAfterGrade never routes back to reformulation once the round cap has
// cleared shouldReformulate; generation is the last resort.
func nextAfterGrade(anyRelevant, web, reformulate bool) StepName {
	switch {
	case anyRelevant:
		return StepGenerate
	case web:
		return StepWebSearch
	case reformulate:
		return StepReformulate
	default:
		return StepGenerate
	}
}

func (g *gradeStep) gradeOne(ctx context.Context, s *State, doc *Document, m Mutator, calls *atomic.Int64) GradedDocument {
	j, err := g.judge(ctx, s, doc, calls)
	if err != nil {
		m.LogError(StepGrade, fmt.Sprintf("judgment for %s failed: %v", doc.ID, err))
		j = Judgment{Score: defaultJudgmentScore, Reason: "judgment unavailable", fallback: true}
	}
	h := technicalScore(s, doc.Content)
	final := clamp01(judgmentWeight*j.Score + heuristicWeight*h)
	return GradedDocument{
		Document:       *doc,
		RelevanceScore: final,
		Relevant:       !j.fallback && final >= g.settings.RelevanceThreshold,
		Reason:         j.Reason,
		JudgmentScore:  j.Score,
		HeuristicScore: h,
	}
}

func (g *gradeStep) judge(ctx context.Context, s *State, doc *Document, calls *atomic.Int64) (Judgment, error) {
	key := core.HashString(s.OriginalQuestion + "\x00" + doc.ID)
	if g.cache != nil {
		if j, ok := g.cache.Get(key); ok {
			return j, nil
		}
	}
	calls.Add(1)
	raw, err := g.llm.Complete(ctx, llm.CompletionRequest{
		Model:       g.settings.Judge.Model,
		System:      judgeSystemPrompt,
		Prompt:      judgePrompt(s, doc, g.settings.ExcerptChars),
		Temperature: g.settings.Judge.Temperature,
		TopP:        g.settings.Judge.TopP,
		MaxTokens:   g.settings.Judge.MaxTokens,
		JSON:        true,
	})
	if err != nil {
		return Judgment{}, err
	}
	j := ParseJudgment(raw)
	if g.cache != nil && !j.fallback {
		g.cache.Add(key, j)
	}
	return j, nil
}

func (g *gradeStep) shouldWebSearch(s *State, graded []GradedDocument, relevant int, mean float64, now time.Time) bool {
	if !g.settings.WebSearch.Enabled {
		return false
	}
	if relevant == 0 || mean < weakMeanRelevance {
		return true
	}
	if !domain.NeedsRecency(s.OriginalQuestion) {
		return false
	}
	for i := range graded {
		if graded[i].Relevant && isRecent(graded[i].Metadata.LastUpdated, now, g.settings.RecencyWindow) {
			return false
		}
	}
	return true
}

func shouldReformulate(s *State, relevant int, mean float64) bool {
	if s.ReformulationRounds >= maxReformulationRounds {
		return false
	}
	if relevant >= strongRelevantCount && mean >= strongMeanRelevance {
		return false
	}
	short := len(strings.Fields(s.OriginalQuestion)) < shortQuestionWords
	return relevant < minRelevantCount || mean < weakMeanRelevance || short
}

var dateLayouts = []string{time.RFC3339, "2006-01-02", "2006-01", "2006"}

func isRecent(value string, now time.Time, window time.Duration) bool {
	value = strings.TrimSpace(value)
	if value == "" {
		return false
	}
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, value)
		if err != nil {
			continue
		}
		if window <= 0 {
			return true
		}
		return now.Sub(t) <= window
	}
	return false
}

const judgeSystemPrompt = "You grade whether a document helps answer a technical engineering question. " +
	`Reply with one JSON object only: {"relevant": true or false, "score": number from 0 to 1, "reason": short sentence}.`

func judgePrompt(s *State, doc *Document, excerptChars int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n", s.OriginalQuestion)
	fmt.Fprintf(&b, "Domain: %s\n", s.EngineeringDomain.Label())
	if label := s.CalculationType.Label(); label != "" {
		fmt.Fprintf(&b, "Calculation: %s\n", label)
	}
	if len(s.ApplicableStandards) > 0 {
		fmt.Fprintf(&b, "Standards: %s\n", strings.Join(s.ApplicableStandards, ", "))
	}
	b.WriteString("\nDocument excerpt:\n")
	b.WriteString(truncateRunes(doc.Content, excerptChars))
	b.WriteString("\n\nScoring rubric:\n")
	b.WriteString("1.0 gives the procedure, formula or values needed to answer.\n")
	b.WriteString("0.7 covers the same topic with partially usable detail.\n")
	b.WriteString("0.4 is related background only.\n")
	b.WriteString("0.0 is unrelated.\n")
	return b.String()
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
