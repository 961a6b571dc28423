package domain

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// termPairs are bidirectional synonyms.
var termPairs = [][2]string{
	{"pipe", "conduit"},
	{"head loss", "friction loss"},
	{"pressure drop", "head loss"},
	{"flow rate", "discharge"},
	{"water hammer", "hydraulic transient"},
	{"tank", "reservoir"},
	{"pump", "centrifugal pump"},
	{"beam", "girder"},
	{"foundation", "footing"},
	{"voltage drop", "voltage loss"},
	{"tubería", "conducción"},
	{"pérdida de carga", "pérdida de presión"},
	{"caudal", "gasto"},
	{"golpe de ariete", "transitorio hidráulico"},
	{"tanque", "depósito"},
}

var (
	synonyms     map[string][]string
	orderedTerms []string
)

func init() {
	synonyms = make(map[string][]string)
	for _, p := range termPairs {
		synonyms[p[0]] = append(synonyms[p[0]], p[1])
		synonyms[p[1]] = append(synonyms[p[1]], p[0])
	}
	for term := range synonyms {
		orderedTerms = append(orderedTerms, term)
	}
	// longest first so multi-word terms win over their parts
	sort.Slice(orderedTerms, func(i, j int) bool {
		if len(orderedTerms[i]) != len(orderedTerms[j]) {
			return len(orderedTerms[i]) > len(orderedTerms[j])
		}
		return orderedTerms[i] < orderedTerms[j]
	})
}

// Synonyms returns the synonyms recorded for term.
func Synonyms(term string) []string {
	return synonyms[strings.ToLower(term)]
}

type patternRule struct {
	re   *regexp.Regexp
	repl string
}

var patternRules = []patternRule{
	{regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*l/s\b`), "$1 liters per second"},
	{regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*gpm\b`), "$1 gallons per minute"},
	{regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*m3/s\b`), "$1 cubic meters per second"},
	{regexp.MustCompile(`(?i)\bsize (?:a|the) pipe\b`), "select the pipe diameter"},
}

// SynonymVariant substitutes the first synonym of the first mapped term
// found in text. ok is false when text contains no mapped term.
func SynonymVariant(text string) (string, bool) {
	lower, offsets := lowerWithOffsets(text)
	for _, term := range orderedTerms {
		i := indexTerm(lower, term)
		if i < 0 {
			continue
		}
		start, end := offsets[i], offsets[i+len(term)]
		return text[:start] + synonyms[term][0] + text[end:], true
	}
	return "", false
}

// lowerWithOffsets lowercases text rune by rune. offsets[j] is the byte
// offset in text of the rune that produced lowered byte j; the final entry
// is len(text). Lowercasing may change a rune's encoded length.
func lowerWithOffsets(text string) (string, []int) {
	var b strings.Builder
	b.Grow(len(text))
	offsets := make([]int, 0, len(text)+1)
	for i, r := range text {
		l := unicode.ToLower(r)
		for range utf8.RuneLen(l) {
			offsets = append(offsets, i)
		}
		b.WriteRune(l)
	}
	return b.String(), append(offsets, len(text))
}

// PatternVariant applies the first rewrite rule that matches text.
func PatternVariant(text string) (string, bool) {
	for _, r := range patternRules {
		if r.re.MatchString(text) {
			return r.re.ReplaceAllString(text, r.repl), true
		}
	}
	return "", false
}
