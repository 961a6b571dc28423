package domain

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ContainsTerm reports whether term occurs in text on word boundaries,
// ignoring case.
func ContainsTerm(text, term string) bool {
	return indexTerm(strings.ToLower(text), strings.ToLower(term)) >= 0
}

// indexTerm expects lowercase inputs.
func indexTerm(text, term string) int {
	if term == "" {
		return -1
	}
	offset := 0
	for {
		i := strings.Index(text[offset:], term)
		if i < 0 {
			return -1
		}
		start := offset + i
		end := start + len(term)
		if boundaryBefore(text, start) && boundaryAfter(text, end) {
			return start
		}
		offset = start + 1
		if offset >= len(text) {
			return -1
		}
	}
}

func boundaryBefore(s string, i int) bool {
	if i == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(s[:i])
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

func boundaryAfter(s string, i int) bool {
	if i >= len(s) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(s[i:])
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

func containsAny(text string, terms []string) bool {
	for _, t := range terms {
		if indexTerm(text, t) >= 0 {
			return true
		}
	}
	return false
}

// ContainsAnyTerm reports whether text contains any of terms.
func ContainsAnyTerm(text string, terms []string) bool {
	return containsAny(strings.ToLower(text), terms)
}

var (
	spanishMarkers = []string{
		"cómo", "como", "qué", "que", "cuál", "cual", "para", "una", "del", "los", "las",
		"el", "la", "de", "en", "con", "por", "es", "tubería", "caudal",
	}
	englishMarkers = []string{
		"how", "what", "which", "the", "for", "a", "an", "of", "in", "with", "is", "to", "pipe", "flow",
	}
)

// DetectLanguage returns "es" for Spanish questions and "en" otherwise.
func DetectLanguage(text string) string {
	lower := strings.ToLower(text)
	if strings.ContainsAny(lower, "¿¡ñ") {
		return "es"
	}
	words := strings.FieldsFunc(lower, func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	es, en := 0, 0
	for _, w := range words {
		for _, m := range spanishMarkers {
			if w == m {
				es++
				break
			}
		}
		for _, m := range englishMarkers {
			if w == m {
				en++
				break
			}
		}
	}
	if es > en {
		return "es"
	}
	return "en"
}

// DetectDomain returns the first domain whose keywords appear in text.
func DetectDomain(text string) Domain {
	lower := strings.ToLower(text)
	for _, r := range domainRules {
		if containsAny(lower, r.pack.all()) {
			return r.domain
		}
	}
	return General
}

// DetectCalculationType returns the first matching calculation or NoCalculation.
func DetectCalculationType(text string) CalculationType {
	lower := strings.ToLower(text)
	for _, r := range calculationRules {
		if containsAny(lower, r.pack.all()) {
			return r.calc
		}
	}
	return NoCalculation
}

var standardRe = regexp.MustCompile(
	`(?i)\b(AWWA\s*[A-Z]?\d{2,4}|ASCE\s*\d{1,3}(?:-\d{2})?|ASME\s*B?\d+(?:\.\d+)?|ACI\s*\d{3}(?:-\d{2})?|` +
		`ISO\s*\d{3,5}(?:-\d+)?|(?-i:EN)\s*\d{3,5}(?:-\d+)?|IEC\s*\d{4,5}(?:-\d+)?|NFPA\s*\d{1,4}|DIN\s*\d{3,5}|` +
		`ASTM\s*[A-Z]\d{1,4}|IEEE\s*\d{3,4}|AISC\s*\d{3}|Eurocode\s*\d|NEC)\b`,
)

var spaceRe = regexp.MustCompile(`\s+`)

// DetectStandards returns the distinct standards cited in text, in order.
func DetectStandards(text string) []string {
	matches := standardRe.FindAllString(text, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(matches))
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		norm := normalizeStandard(m)
		if _, ok := seen[norm]; ok {
			continue
		}
		seen[norm] = struct{}{}
		out = append(out, norm)
	}
	return out
}

func normalizeStandard(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	if strings.HasPrefix(s, "EUROCODE") {
		return "Eurocode " + strings.TrimSpace(strings.TrimPrefix(s, "EUROCODE"))
	}
	return spaceRe.ReplaceAllString(s, " ")
}

// MentionsStandard reports whether text cites std, tolerating spacing differences.
func MentionsStandard(text, std string) bool {
	compact := func(s string) string {
		return strings.ToLower(spaceRe.ReplaceAllString(s, ""))
	}
	return strings.Contains(compact(text), compact(std))
}

var recencyTerms = []string{
	"latest", "currently", "up to date", "newest", "recent", "updated", "new edition", "this year",
	"último", "ultimo", "última", "ultima", "actualmente", "vigente", "reciente", "nueva edición", "actualizado",
}

var yearRe = regexp.MustCompile(`\b20[2-9]\d\b`)

// NeedsRecency reports whether text asks for current information.
func NeedsRecency(text string) bool {
	return ContainsAnyTerm(text, recencyTerms) || yearRe.MatchString(text)
}
