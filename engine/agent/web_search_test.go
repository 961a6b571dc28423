package agent

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compozy/techrag/engine/core"
	"github.com/compozy/techrag/engine/websearch"
)

func webSettings() Settings {
	s := testSettings()
	s.WebSearch.Enabled = true
	s.WebSearch.HasCredentials = true
	s.WebSearch.DenyDomains = []string{"pinterest.com"}
	s.WebSearch.AllowDomains = []string{"usbr.gov"}
	return s
}

func runWebSearch(t *testing.T, settings Settings, provider websearch.Provider) (StepResult, State) {
	t.Helper()
	step := &webSearchStep{provider: provider, settings: &settings}
	m := newTestManager(NewState("s1", scenarioQuestion, 12))
	res := step.Execute(testContext(), m.Snapshot(), m)
	return res, m.Snapshot()
}

func TestWebSearchStep(t *testing.T) {
	good := websearch.Result{
		Title:         "Pipe sizing guide",
		URL:           "https://www.usbr.gov/pipe.html",
		Description:   "<b>Pipe</b> flow &amp; head loss for hydraulic design",
		ExtraSnippets: []string{"Velocity 1.5 m/s per AWWA M11"},
		PageAge:       "2025-05-01",
		Language:      "en",
	}

	t.Run("Should skip to generation when disabled", func(t *testing.T) {
		provider := &stubProvider{}
		res, _ := runWebSearch(t, testSettings(), provider)
		require.True(t, res.Success)
		assert.Equal(t, StepGenerate, res.NextStep)
		assert.Equal(t, "disabled", res.Data.(WebSearchOutput).Skipped)
		assert.Empty(t, provider.queries)
	})

	t.Run("Should skip to generation without credentials", func(t *testing.T) {
		settings := webSettings()
		settings.WebSearch.HasCredentials = false
		provider := &stubProvider{}
		res, _ := runWebSearch(t, settings, provider)
		assert.True(t, res.Success)
		assert.Equal(t, StepGenerate, res.NextStep)
		assert.Empty(t, provider.queries)

		res, _ = runWebSearch(t, webSettings(), nil)
		assert.Equal(t, "no credentials", res.Data.(WebSearchOutput).Skipped)
	})

	t.Run("Should filter results and convert the accepted ones", func(t *testing.T) {
		provider := &stubProvider{resp: webResponse(
			good,
			websearch.Result{Title: "pipe flow pins", URL: "https://img.pinterest.com/x"},
			websearch.Result{Title: "Buy now: pipe fittings", URL: "https://shop.example.com", Description: "best price on pipe"},
			websearch.Result{Title: "Beam design", URL: "https://example.org/beam", Description: "steel beam"},
			good,
		)}
		res, state := runWebSearch(t, webSettings(), provider)

		require.True(t, res.Success)
		assert.Equal(t, StepGenerate, res.NextStep)
		require.Len(t, provider.queries, 1)
		q := provider.queries[0]
		assert.Contains(t, q.Q, scenarioQuestion)
		assert.Contains(t, q.Q, "pipeline")
		assert.Contains(t, q.Q, "pipe sizing")
		assert.Contains(t, q.Q, "(site:usbr.gov)")
		assert.Equal(t, "en", q.Language)
		assert.Equal(t, 10, q.Count)

		require.Len(t, state.WebSearchResults, 1)
		doc := state.WebSearchResults[0]
		assert.Equal(t, "web_"+core.ShortHash(good.URL, 16), doc.ID)
		assert.Equal(t, "Pipe sizing guide\nPipe flow & head loss for hydraulic design\nVelocity 1.5 m/s per AWWA M11", doc.Content)
		assert.Equal(t, webEvidenceScore, doc.Score)
		assert.Equal(t, "US", doc.Metadata.Region)
		assert.Equal(t, "AWWA M11", doc.Metadata.Standard)
		assert.Equal(t, "en", doc.Metadata.Language)
		assert.Equal(t, "2025-05-01", doc.Metadata.LastUpdated)
		assert.Equal(t, good.URL, doc.SourceKey())
		out := res.Data.(WebSearchOutput)
		assert.Equal(t, 5, out.Received)
		assert.Equal(t, 1, out.Accepted)
	})

	t.Run("Should require a calculation match when configured", func(t *testing.T) {
		settings := webSettings()
		settings.WebSearch.RequireCalculationMatch = true
		other := good
		other.URL = "https://www.usbr.gov/other.html"
		other.Title = "Pipe pressure classes"
		other.Description = "hydraulic pipe ratings"
		other.ExtraSnippets = nil
		withCalc := good
		withCalc.Title = "Pipe sizing guide"
		provider := &stubProvider{resp: webResponse(other, withCalc)}
		_, state := runWebSearch(t, settings, provider)
		require.Len(t, state.WebSearchResults, 1)
		assert.Equal(t, withCalc.URL, state.WebSearchResults[0].Metadata.URL)
	})

	t.Run("Should truncate content", func(t *testing.T) {
		settings := webSettings()
		settings.WebSearch.MaxContentLength = 20
		_, state := runWebSearch(t, settings, &stubProvider{resp: webResponse(good)})
		require.Len(t, state.WebSearchResults, 1)
		assert.Equal(t, "Pipe sizing guide\nPi", state.WebSearchResults[0].Content)
	})

	t.Run("Should still route to generation when the provider fails", func(t *testing.T) {
		provider := &stubProvider{err: errors.New("status 500 token=abc123")}
		res, state := runWebSearch(t, webSettings(), provider)
		assert.False(t, res.Success)
		require.Error(t, res.Err)
		assert.Equal(t, StepGenerate, res.NextStep)
		require.Len(t, state.Errors, 1)
		assert.True(t, state.Errors[0].Recoverable)
		assert.NotContains(t, state.Errors[0].Message, "abc123")
		assert.Equal(t, ErrCodeWebSearchFailed, core.ErrorCode(res.Err))
	})

	t.Run("Should tolerate an empty response", func(t *testing.T) {
		res, state := runWebSearch(t, webSettings(), &stubProvider{})
		assert.True(t, res.Success)
		assert.Empty(t, state.WebSearchResults)
	})
}

func TestDeniedHost(t *testing.T) {
	deny := []string{"pinterest.com", " Example.NET "}
	assert.True(t, deniedHost("https://pinterest.com/a", deny))
	assert.True(t, deniedHost("https://www.pinterest.com/a", deny))
	assert.True(t, deniedHost("https://shop.example.net", deny))
	assert.False(t, deniedHost("https://notpinterest.com", deny))
	assert.False(t, deniedHost("https://usbr.gov", deny))
}
