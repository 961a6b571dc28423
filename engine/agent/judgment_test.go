package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseJudgment(t *testing.T) {
	cases := []struct {
		name     string
		raw      string
		relevant bool
		score    float64
	}{
		{"Should read a bare JSON object", `{"relevant": true, "score": 0.82, "reason": "gives the formula"}`, true, 0.82},
		{"Should strip code fences", "```json\n{\"relevant\": false, \"score\": 0.1, \"reason\": \"off topic\"}\n```", false, 0.1},
		{"Should find an object inside prose", `Sure! {"relevant": true, "score": 0.9, "reason": "uses {braces} in text"} hope it helps`, true, 0.9},
		{"Should accept string typed fields", `{"relevant": "true", "score": "0.7"}`, true, 0.7},
		{"Should derive relevance from a lone score", `{"score": 0.3}`, false, 0.3},
		{"Should keep out of range scores for the caller to clamp", `{"relevant": true, "score": 4.2}`, true, 4.2},
		{"Should fall back to keywords for malformed output", `{"relevant": true, "score": }`, true, 0.65},
		{"Should treat relevant: true in prose as a positive verdict", "The excerpt covers it. relevant: true", true, 0.65},
		{"Should treat not relevant as a negative verdict", "This document is not relevant to pipes.", false, 0.25},
		{"Should read a score from prose", "score = 0.8 overall", true, 0.8},
		{"Should default to a neutral score", "I cannot tell.", false, 0.5},
		{"Should default on empty output", "", false, 0.5},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			j := ParseJudgment(tc.raw)
			assert.Equal(t, tc.relevant, j.Relevant)
			assert.InDelta(t, tc.score, j.Score, 1e-9)
			assert.NotEmpty(t, j.Reason)
		})
	}

	t.Run("Should mark only the neutral default as a fallback", func(t *testing.T) {
		assert.True(t, ParseJudgment("???").fallback)
		assert.False(t, ParseJudgment("relevant: true").fallback)
	})
}

func TestTechnicalScore(t *testing.T) {
	s := NewState("s1", "Head loss in a pipe per AWWA M11 and ISO 4064?", 3)

	t.Run("Should start at the base score for plain prose", func(t *testing.T) {
		assert.InDelta(t, 0.5, technicalScore(&s, "General notes about maintenance."), 1e-9)
	})

	t.Run("Should add every technical signal and cap at one", func(t *testing.T) {
		content := "Head loss hf = f (L/D) v²/2g per AWWA M11 and ISO 4064, with v = 2.1 m/s and Δh in kPa."
		assert.InDelta(t, 1.0, technicalScore(&s, content), 1e-9)
	})

	t.Run("Should credit standards proportionally", func(t *testing.T) {
		assert.InDelta(t, 0.575, technicalScore(&s, "See AWWA M11 chapter 4."), 1e-9)
	})
}
