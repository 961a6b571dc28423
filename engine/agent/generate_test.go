package agent

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func evidenceState() State {
	s := NewState("s1", scenarioQuestion, 12)
	s.GradedDocuments = []GradedDocument{
		{Document: Document{ID: "b", Content: "second manual", Metadata: DocumentMetadata{Source: "b.pdf"}}, RelevanceScore: 0.7, Relevant: true},
		{Document: Document{ID: "c", Content: "unrelated text", Metadata: DocumentMetadata{Source: "c.pdf"}}, RelevanceScore: 0.3},
		{Document: Document{ID: "a", Content: "first manual", Metadata: DocumentMetadata{Source: "a.pdf", Title: "Manual A"}}, RelevanceScore: 0.9, Relevant: true},
	}
	s.WebSearchResults = []Document{
		{ID: "web_1", Content: "web page", Score: 0.5, Metadata: DocumentMetadata{URL: "https://usbr.gov/p"}},
	}
	return s
}

func runGenerate(t *testing.T, settings Settings, script *scriptedLLM, s State) (StepResult, State) {
	t.Helper()
	step := &generateStep{llm: script.Completer(), settings: &settings}
	m := newTestManager(s)
	res := step.Execute(testContext(), m.Snapshot(), m)
	return res, m.Snapshot()
}

func TestGenerateStep(t *testing.T) {
	t.Run("Should answer without a model call when there is no evidence", func(t *testing.T) {
		script := &scriptedLLM{}
		res, state := runGenerate(t, testSettings(), script, NewState("s1", scenarioQuestion, 12))
		require.True(t, res.Success)
		assert.Equal(t, StepEnd, res.NextStep)
		assert.Equal(t, noEvidenceAnswer, state.Generation)
		assert.Equal(t, noEvidenceConfidence, state.Confidence)
		assert.Equal(t, 0, script.Calls("generate"))
	})

	t.Run("Should ground the answer and cite referenced sources", func(t *testing.T) {
		var prompt string
		script := &scriptedLLM{generate: func(p string) (string, error) {
			prompt = p
			return "Use Q = v·A [1]. Check the velocity limits [3] [3].", nil
		}}
		res, state := runGenerate(t, testSettings(), script, evidenceState())

		require.True(t, res.Success)
		assert.Equal(t, StepEnd, res.NextStep)
		assert.Contains(t, prompt, "[1] Manual A\nfirst manual")
		assert.Contains(t, prompt, "[2] b.pdf\nsecond manual")
		assert.Contains(t, prompt, "[3] https://usbr.gov/p\nweb page")
		assert.NotContains(t, prompt, "unrelated text")
		assert.Contains(t, prompt, "hydraulic engineering; pipe sizing")
		assert.Equal(t, []string{"a.pdf", "https://usbr.gov/p"}, state.Citations)
		assert.InDelta(t, 0.7*(0.8+0.2*2.0/3.0), state.Confidence, 1e-9)
		assert.Equal(t, "Use Q = v·A [1]. Check the velocity limits [3] [3].", state.Generation)
	})

	t.Run("Should cite all evidence when the answer has no markers", func(t *testing.T) {
		script := &scriptedLLM{generate: func(string) (string, error) { return "Use the continuity equation.", nil }}
		_, state := runGenerate(t, testSettings(), script, evidenceState())
		assert.Equal(t, []string{"a.pdf", "b.pdf", "https://usbr.gov/p"}, state.Citations)
		assert.InDelta(t, 0.7, state.Confidence, 1e-9)
	})

	t.Run("Should ignore markers outside the evidence range", func(t *testing.T) {
		script := &scriptedLLM{generate: func(string) (string, error) { return "See [9] and [0].", nil }}
		_, state := runGenerate(t, testSettings(), script, evidenceState())
		assert.Len(t, state.Citations, 3)
	})

	t.Run("Should cap the evidence", func(t *testing.T) {
		settings := testSettings()
		settings.MaxEvidence = 2
		script := &scriptedLLM{generate: func(string) (string, error) { return "Answer [2].", nil }}
		res, state := runGenerate(t, settings, script, evidenceState())
		assert.Equal(t, 2, res.Data.(GenerateOutput).Evidence)
		assert.Equal(t, []string{"b.pdf"}, state.Citations)
	})

	t.Run("Should fall back with zero confidence when the model fails", func(t *testing.T) {
		script := &scriptedLLM{generate: func(string) (string, error) { return "", errors.New("timeout") }}
		res, state := runGenerate(t, testSettings(), script, evidenceState())
		assert.False(t, res.Success)
		require.Error(t, res.Err)
		assert.Equal(t, StepEnd, res.NextStep)
		assert.Equal(t, fallbackAnswer, state.Generation)
		assert.Equal(t, 0.0, state.Confidence)
		require.Len(t, state.Errors, 1)
		assert.True(t, state.Errors[0].Recoverable)
	})

	t.Run("Should treat a blank completion as a failure", func(t *testing.T) {
		script := &scriptedLLM{generate: func(string) (string, error) { return "   ", nil }}
		res, state := runGenerate(t, testSettings(), script, evidenceState())
		assert.False(t, res.Success)
		assert.Equal(t, fallbackAnswer, state.Generation)
	})
}
