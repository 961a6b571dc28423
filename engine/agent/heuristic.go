package agent

import (
	"regexp"

	"github.com/compozy/techrag/engine/domain"
)

var (
	formulaRe = regexp.MustCompile(
		`\b[A-Za-z][A-Za-z0-9_]{0,3}\s*=\s*[-\w(√]|[αβγδεζηθλμνπρστφωΔΣ]|\d(?:\.\d+)?\s*[x×·]\s*10\^?-?\d+|\d(?:\.\d+)?[eE][-+]?\d+\b`,
	)
	unitRe = regexp.MustCompile(
		`(?i)\d(?:[.,]\d+)?\s*(?:m3/s|m³/s|m/s|l/s|gpm|kpa|mpa|psi|bar|kn|kw|hp|kv|hz|mm|cm|km|pa|kg|m²|m³|m)\b`,
	)
)

// technicalScore rates how technical content is for the session profile.
// It starts at 0.5 and is capped at 1.
func technicalScore(s *State, content string) float64 {
	score := 0.5
	if s.CalculationType != domain.NoCalculation {
		terms := append(domain.CalculationKeywords(s.CalculationType), s.CalculationType.Label())
		if domain.ContainsAnyTerm(content, terms) {
			score += 0.2
		}
	}
	if n := len(s.ApplicableStandards); n > 0 {
		hits := 0
		for _, std := range s.ApplicableStandards {
			if domain.MentionsStandard(content, std) {
				hits++
			}
		}
		score += 0.15 * float64(hits) / float64(n)
	}
	if formulaRe.MatchString(content) {
		score += 0.1
	}
	if unitRe.MatchString(content) {
		score += 0.05
	}
	return min(score, 1)
}
