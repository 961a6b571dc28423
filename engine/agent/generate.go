package agent

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/compozy/techrag/engine/llm"
	"github.com/compozy/techrag/pkg/logger"
)

const (
	noEvidenceConfidence = 0.2
	noEvidenceAnswer     = "I could not find enough reliable evidence to answer this question. " +
		"Try adding the calculation type, the applicable standard or the region."
	fallbackAnswer = "The answer could not be generated from the collected evidence. Please try again."
)

var citationRe = regexp.MustCompile(`\[(\d+)\]`)

// GenerateOutput is the Data of a generation pass.
type GenerateOutput struct {
	Evidence   int
	Confidence float64
	Citations  []string
}

type generateStep struct {
	stepBase
	llm      llm.ChatCompleter
	settings *Settings
}

func (g *generateStep) Name() StepName { return StepGenerate }

func (g *generateStep) fallbackNext() StepName { return StepEnd }

// Execute writes a grounded answer over the relevant graded documents and
// the web results. Confidence follows the mean relevance of the evidence,
// discounted when the answer cites little of it.
func (g *generateStep) Execute(ctx context.Context, s State, m Mutator) StepResult {
	evidence := collectEvidence(&s, g.settings.MaxEvidence)
	if len(evidence) == 0 {
		m.Update(Patch{
			Generation: Ptr(noEvidenceAnswer),
			Confidence: Ptr(noEvidenceConfidence),
			Citations:  Ptr([]string{}),
		})
		return succeed(StepEnd, GenerateOutput{Confidence: noEvidenceConfidence}, 0)
	}
	text, err := g.llm.Complete(ctx, llm.CompletionRequest{
		Model:       g.settings.Generation.Model,
		System:      generateSystemPrompt,
		Prompt:      generatePrompt(&s, evidence, g.settings.ExcerptChars),
		Temperature: g.settings.Generation.Temperature,
		TopP:        g.settings.Generation.TopP,
		MaxTokens:   g.settings.Generation.MaxTokens,
	})
	if err == nil && strings.TrimSpace(text) == "" {
		err = fmt.Errorf("empty completion")
	}
	if err != nil {
		m.LogError(StepGenerate, fmt.Sprintf("generation failed: %v", err))
		m.Update(Patch{
			Generation: Ptr(fallbackAnswer),
			Confidence: Ptr(0.0),
			Citations:  Ptr([]string{}),
		})
		return fail(stepError(StepGenerate, ErrCodeGenerationFailed, err), StepEnd, 1)
	}
	text = strings.TrimSpace(text)
	cited := citedIndexes(text, len(evidence))
	citations := make([]string, 0, len(evidence))
	sum := 0.0
	for i := range evidence {
		sum += evidence[i].score
	}
	if len(cited) == 0 {
		for i := range evidence {
			citations = append(citations, evidence[i].doc.SourceKey())
		}
	} else {
		for _, i := range cited {
			citations = appendUniqueString(citations, evidence[i].doc.SourceKey())
		}
	}
	citedRatio := 1.0
	if len(cited) > 0 {
		citedRatio = float64(len(cited)) / float64(len(evidence))
	}
	confidence := clamp01(sum / float64(len(evidence)) * (0.8 + 0.2*citedRatio))
	m.Update(Patch{
		Generation: Ptr(text),
		Confidence: Ptr(confidence),
		Citations:  Ptr(citations),
	})
	logger.FromContext(ctx).Debug("Generated answer", "evidence", len(evidence), "confidence", confidence)
	return succeed(StepEnd, GenerateOutput{Evidence: len(evidence), Confidence: confidence, Citations: citations}, 1)
}

type evidenceItem struct {
	doc   Document
	score float64
}

// collectEvidence orders relevant graded documents by score, then web
// results, and caps the total.
func collectEvidence(s *State, limit int) []evidenceItem {
	relevant := s.RelevantDocuments()
	sort.SliceStable(relevant, func(i, j int) bool {
		return relevant[i].RelevanceScore > relevant[j].RelevanceScore
	})
	out := make([]evidenceItem, 0, len(relevant)+len(s.WebSearchResults))
	for i := range relevant {
		out = append(out, evidenceItem{doc: relevant[i].Document, score: relevant[i].RelevanceScore})
	}
	for i := range s.WebSearchResults {
		out = append(out, evidenceItem{doc: s.WebSearchResults[i], score: s.WebSearchResults[i].Score})
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// citedIndexes returns the distinct zero-based evidence indexes referenced as [n].
func citedIndexes(text string, n int) []int {
	var out []int
	seen := make(map[int]struct{})
	for _, m := range citationRe.FindAllStringSubmatch(text, -1) {
		v, err := strconv.Atoi(m[1])
		if err != nil || v < 1 || v > n {
			continue
		}
		if _, ok := seen[v-1]; ok {
			continue
		}
		seen[v-1] = struct{}{}
		out = append(out, v-1)
	}
	return out
}

func appendUniqueString(list []string, v string) []string {
	for _, x := range list {
		if x == v {
			return list
		}
	}
	return append(list, v)
}

const generateSystemPrompt = "Answer the question using only the numbered sources. " +
	"Cite sources with [n] after the statements they support. " +
	"If the sources do not settle the question, say what is missing."

func generatePrompt(s *State, evidence []evidenceItem, excerptChars int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n", s.OriginalQuestion)
	profile := []string{s.EngineeringDomain.Label()}
	if label := s.CalculationType.Label(); label != "" {
		profile = append(profile, label)
	}
	profile = append(profile, s.ApplicableStandards...)
	if s.Region != "" {
		profile = append(profile, "region "+s.Region)
	}
	fmt.Fprintf(&b, "Context: %s\n", strings.Join(profile, "; "))
	b.WriteString("\nSources:\n")
	for i := range evidence {
		d := &evidence[i].doc
		title := d.Metadata.Title
		if title == "" {
			title = d.SourceKey()
		}
		fmt.Fprintf(&b, "[%d] %s\n%s\n\n", i+1, title, truncateRunes(d.Content, excerptChars))
	}
	if s.QueryLanguage == "es" {
		b.WriteString("Answer in Spanish.\n")
	} else {
		b.WriteString("Answer in English.\n")
	}
	return b.String()
}
