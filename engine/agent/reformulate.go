package agent

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/compozy/techrag/engine/domain"
	"github.com/compozy/techrag/engine/llm"
	"github.com/compozy/techrag/pkg/logger"
)

const (
	maxParsedReformulations = 4
	maxReformulations       = 5
	maxTemplateQueries      = 3
	minReformulationRunes   = 10
)

// ReformulateOutput is the Data of a reformulation round.
type ReformulateOutput struct {
	Queries  []string
	Fallback bool
}

var (
	listMarkerRe = regexp.MustCompile(`^\s*(?:\d+\s*[.):-]|[-*•·])`)
	metaPrefixes = []string{
		"here are", "here is", "sure", "alternative", "reformulat", "rephras", "note:", "these ",
		"i hope", "as an ai", "aquí", "aqui", "claro", "reformulaci", "estas ",
	}
)

type reformulateStep struct {
	stepBase
	llm      llm.ChatCompleter
	settings *Settings
}

func (r *reformulateStep) Name() StepName { return StepReformulate }

func (r *reformulateStep) fallbackNext() StepName { return StepRetrieve }

// Execute always routes back to retrieval, falling back to templates when
// the model gives nothing usable.
func (r *reformulateStep) Execute(ctx context.Context, s State, m Mutator) StepResult {
	raw, err := r.llm.Complete(ctx, llm.CompletionRequest{
		Model:       r.settings.Reformulation.Model,
		System:      reformulateSystemPrompt,
		Prompt:      reformulatePrompt(&s),
		Temperature: r.settings.Reformulation.Temperature,
		TopP:        r.settings.Reformulation.TopP,
		MaxTokens:   r.settings.Reformulation.MaxTokens,
	})
	var candidates []string
	if err == nil {
		candidates = ParseReformulations(raw)
	}
	fallback := len(candidates) == 0
	var fresh []string
	if fallback {
		reason := "no usable reformulations in model output"
		if err != nil {
			reason = err.Error()
		}
		m.LogError(StepReformulate, "reformulation fell back to templates: "+reason)
		fresh = templateReformulations(&s)
	} else {
		fresh = expandReformulations(&s, candidates)
	}
	patch := Patch{
		AppendReformulated:  fresh,
		ReformulationRounds: Ptr(s.ReformulationRounds + 1),
	}
	if len(fresh) > 0 {
		patch.CurrentQuery = Ptr(fresh[0])
	}
	m.Update(patch)
	logger.FromContext(ctx).Debug("Reformulated question",
		"round", s.ReformulationRounds+1, "queries", len(fresh), "fallback", fallback)
	return succeed(StepRetrieve, ReformulateOutput{Queries: fresh, Fallback: fallback}, 1)
}

// ParseReformulations keeps plain lines of model output, dropping short,
// numbered, bulleted and commentary lines.
func ParseReformulations(raw string) []string {
	out := make([]string, 0, maxParsedReformulations)
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || listMarkerRe.MatchString(line) {
			continue
		}
		line = strings.Trim(line, "\"'`")
		if utf8.RuneCountInString(line) < minReformulationRunes || isMetaLine(line) {
			continue
		}
		out = append(out, line)
		if len(out) == maxParsedReformulations {
			break
		}
	}
	return out
}

func isMetaLine(line string) bool {
	lower := strings.ToLower(line)
	for _, p := range metaPrefixes {
		if strings.HasPrefix(lower, p) {
			return true
		}
	}
	return strings.HasSuffix(lower, ":")
}

// expandReformulations follows every candidate with its synonym and pattern
// variants, when it has them.
func expandReformulations(s *State, candidates []string) []string {
	seen := seenQueries(s)
	out := make([]string, 0, maxReformulations)
	add := func(q string) {
		key := normalizeQuery(q)
		if key == "" || len(out) >= maxReformulations {
			return
		}
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		out = append(out, q)
	}
	for _, c := range candidates {
		add(c)
		if v, ok := domain.SynonymVariant(c); ok {
			add(v)
		}
		if v, ok := domain.PatternVariant(c); ok {
			add(v)
		}
	}
	return out
}

func templateReformulations(s *State) []string {
	base := strings.TrimSpace(strings.TrimRight(strings.TrimSpace(s.OriginalQuestion), "?¿!. "))
	base = strings.TrimLeft(base, "¿¡")
	candidates := []string{
		base + " " + s.EngineeringDomain.Label(),
		"how to " + base,
	}
	if label := s.CalculationType.Label(); label != "" {
		candidates = append(candidates, base+" "+label)
	}
	if len(s.ApplicableStandards) > 0 {
		candidates = append(candidates, base+" "+s.ApplicableStandards[0])
	}
	if v, ok := domain.PatternVariant(base); ok {
		candidates = append(candidates, v)
	}
	seen := seenQueries(s)
	out := make([]string, 0, maxTemplateQueries)
	for _, c := range candidates {
		key := normalizeQuery(c)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, c)
		if len(out) == maxTemplateQueries {
			break
		}
	}
	return out
}

func seenQueries(s *State) map[string]struct{} {
	seen := make(map[string]struct{}, len(s.ReformulatedQueries)+1)
	seen[normalizeQuery(s.OriginalQuestion)] = struct{}{}
	for _, q := range s.ReformulatedQueries {
		seen[normalizeQuery(q)] = struct{}{}
	}
	return seen
}

func normalizeQuery(q string) string {
	return strings.Join(strings.Fields(strings.ToLower(q)), " ")
}

const reformulateSystemPrompt = "You rewrite technical engineering questions so a document search finds better evidence. " +
	"Return 3 or 4 alternative phrasings, one per line, with no numbering, bullets or commentary."

func reformulatePrompt(s *State) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n", s.OriginalQuestion)
	fmt.Fprintf(&b, "Domain: %s\n", s.EngineeringDomain.Label())
	if label := s.CalculationType.Label(); label != "" {
		fmt.Fprintf(&b, "Calculation: %s\n", label)
	}
	if len(s.ApplicableStandards) > 0 {
		fmt.Fprintf(&b, "Standards: %s\n", strings.Join(s.ApplicableStandards, ", "))
	}
	if kw := domain.SearchKeywords(s.EngineeringDomain, s.QueryLanguage, 6); len(kw) > 0 {
		fmt.Fprintf(&b, "Useful terms: %s\n", strings.Join(kw, ", "))
	}
	if len(s.ReformulatedQueries) > 0 {
		b.WriteString("These phrasings already failed, do not repeat them:\n")
		for _, q := range s.ReformulatedQueries {
			fmt.Fprintf(&b, "%s\n", q)
		}
	}
	if s.QueryLanguage == "es" {
		b.WriteString("Write the alternatives in Spanish.\n")
	} else {
		b.WriteString("Write the alternatives in English.\n")
	}
	return b.String()
}
