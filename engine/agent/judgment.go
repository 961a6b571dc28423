package agent

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// Judgment is the parsed verdict of the relevance judge.
type Judgment struct {
	Relevant bool
	Score    float64
	Reason   string
	// fallback marks a neutral default that carries no verdict.
	fallback bool
}

const (
	keywordPositiveScore = 0.65
	keywordNegativeScore = 0.25
	defaultJudgmentScore = 0.5
)

var (
	fenceRe         = regexp.MustCompile("(?s)```[a-zA-Z]*\\s*(.*?)\\s*```")
	positiveRe      = regexp.MustCompile(`(?i)"?relevant"?\s*[:=]\s*"?(?:true|yes)\b`)
	negativeRe      = regexp.MustCompile(`(?i)"?relevant"?\s*[:=]\s*"?(?:false|no)\b|\bnot relevant\b|\birrelevant\b`)
	scoreFallbackRe = regexp.MustCompile(`(?i)"?score"?\s*[:=]\s*"?(\d+(?:\.\d+)?)`)
)

// ParseJudgment reads judge output in layers: fenced or bare JSON object,
// then keyword heuristics on the raw text, then a neutral default. It never fails.
func ParseJudgment(raw string) Judgment {
	text := strings.TrimSpace(raw)
	if m := fenceRe.FindStringSubmatch(text); m != nil {
		text = m[1]
	}
	if obj, ok := extractObject(text); ok {
		if j, ok := judgmentFromJSON(obj); ok {
			return j
		}
	}
	return judgmentFromKeywords(raw)
}

func judgmentFromJSON(obj string) (Judgment, bool) {
	if !gjson.Valid(obj) {
		return Judgment{}, false
	}
	rel := gjson.Get(obj, "relevant")
	score := gjson.Get(obj, "score")
	if !rel.Exists() && !score.Exists() {
		return Judgment{}, false
	}
	j := Judgment{Reason: gjson.Get(obj, "reason").String()}
	switch rel.Type {
	case gjson.True, gjson.False:
		j.Relevant = rel.Bool()
	case gjson.String:
		j.Relevant = strings.EqualFold(strings.TrimSpace(rel.Str), "true")
	}
	switch {
	case score.Type == gjson.Number:
		j.Score = score.Num
	case score.Type == gjson.String:
		v, err := strconv.ParseFloat(strings.TrimSpace(score.Str), 64)
		if err != nil {
			return Judgment{}, false
		}
		j.Score = v
	case j.Relevant:
		j.Score = keywordPositiveScore
	default:
		j.Score = keywordNegativeScore
	}
	if !rel.Exists() {
		j.Relevant = j.Score >= defaultJudgmentScore
	}
	if j.Reason == "" {
		j.Reason = "no reason given"
	}
	return j, true
}

func judgmentFromKeywords(raw string) Judgment {
	switch {
	case negativeRe.MatchString(raw):
		return Judgment{Relevant: false, Score: keywordNegativeScore, Reason: "keyword fallback: judged not relevant"}
	case positiveRe.MatchString(raw):
		return Judgment{Relevant: true, Score: keywordPositiveScore, Reason: "keyword fallback: judged relevant"}
	}
	if m := scoreFallbackRe.FindStringSubmatch(raw); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			return Judgment{Relevant: v >= defaultJudgmentScore, Score: v, Reason: "keyword fallback: score only"}
		}
	}
	return Judgment{Relevant: false, Score: defaultJudgmentScore, Reason: "unparseable judgment output", fallback: true}
}

// extractObject returns the first balanced {...} in s, skipping braces inside strings.
func extractObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}
