package agent

import (
	"context"
	"fmt"
	"html"
	"net/url"
	"regexp"
	"strings"

	"github.com/compozy/techrag/engine/core"
	"github.com/compozy/techrag/engine/domain"
	"github.com/compozy/techrag/engine/websearch"
	"github.com/compozy/techrag/pkg/logger"
)

// webEvidenceScore is the relevance assigned to accepted web results; they
// are never graded.
const webEvidenceScore = 0.5

// WebSearchOutput is the Data of a web search pass.
type WebSearchOutput struct {
	Query    string
	Received int
	Accepted int
	Skipped  string
}

var (
	tagRe        = regexp.MustCompile(`<[^>]*>`)
	boilerplates = []string{"cookie policy", "accept cookies", "subscribe to our newsletter", "all rights reserved", "sign up", "log in"}
	commercial   = []string{
		"buy now", "best price", "free shipping", "add to cart", "shop now", "on sale", "discount", "for sale",
		"comprar ahora", "mejor precio", "envío gratis", "oferta", "en venta", "descuento",
	}
)

type webSearchStep struct {
	stepBase
	provider websearch.Provider
	settings *Settings
}

func (w *webSearchStep) Name() StepName { return StepWebSearch }

func (w *webSearchStep) fallbackNext() StepName { return StepGenerate }

// Execute always routes to generation, even when the provider fails.
func (w *webSearchStep) Execute(ctx context.Context, s State, m Mutator) StepResult {
	cfg := &w.settings.WebSearch
	switch {
	case !cfg.Enabled:
		return succeed(StepGenerate, WebSearchOutput{Skipped: "disabled"}, 0)
	case w.provider == nil || !cfg.HasCredentials:
		return succeed(StepGenerate, WebSearchOutput{Skipped: "no credentials"}, 0)
	}
	query := augmentedQuery(&s, cfg.AllowDomains)
	resp, err := w.provider.Search(ctx, websearch.Query{
		Q:          query,
		Count:      cfg.Count,
		Language:   firstNonEmpty(cfg.SearchLang, s.QueryLanguage),
		Country:    cfg.Country,
		SafeSearch: cfg.SafeSearch,
		Freshness:  cfg.Freshness,
	})
	if err != nil {
		m.LogError(StepWebSearch, fmt.Sprintf("web search failed: %s", core.RedactError(err)))
		return fail(stepError(StepWebSearch, ErrCodeWebSearchFailed, err), StepGenerate, 1)
	}
	results := resp.Results()
	docs := make([]Document, 0, len(results))
	seen := make(map[string]struct{}, len(results))
	for i := range results {
		r := &results[i]
		if _, dup := seen[r.URL]; dup || !w.accept(&s, r) {
			continue
		}
		seen[r.URL] = struct{}{}
		docs = append(docs, webDocument(r, cfg.MaxContentLength))
	}
	m.Update(Patch{WebSearchResults: Ptr(docs)})
	logger.FromContext(ctx).Debug("Web search finished", "received", len(results), "accepted", len(docs))
	return succeed(StepGenerate, WebSearchOutput{Query: query, Received: len(results), Accepted: len(docs)}, 1)
}

func augmentedQuery(s *State, allow []string) string {
	parts := []string{strings.TrimSpace(s.CurrentQuery)}
	if s.EngineeringDomain != domain.General {
		parts = append(parts, domain.SearchKeywords(s.EngineeringDomain, s.QueryLanguage, 2)...)
	}
	if label := s.CalculationType.Label(); label != "" && !domain.ContainsTerm(s.CurrentQuery, label) {
		parts = append(parts, label)
	}
	if len(allow) > 0 {
		sites := make([]string, 0, len(allow))
		for _, d := range allow {
			sites = append(sites, "site:"+strings.TrimSpace(d))
		}
		parts = append(parts, "("+strings.Join(sites, " OR ")+")")
	}
	return strings.Join(parts, " ")
}

func (w *webSearchStep) accept(s *State, r *websearch.Result) bool {
	if r.URL == "" || deniedHost(r.URL, w.settings.WebSearch.DenyDomains) {
		return false
	}
	text := r.Title + " " + r.Description + " " + strings.Join(r.ExtraSnippets, " ")
	if s.EngineeringDomain != domain.General && !domain.ContainsAnyTerm(text, domain.Keywords(s.EngineeringDomain)) {
		return false
	}
	if w.settings.WebSearch.RequireCalculationMatch && s.CalculationType != domain.NoCalculation &&
		!domain.ContainsAnyTerm(text, domain.CalculationKeywords(s.CalculationType)) {
		return false
	}
	return !domain.ContainsAnyTerm(text, commercial)
}

// deniedHost matches the host and its subdomains against deny.
func deniedHost(rawURL string, deny []string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return true
	}
	host := strings.ToLower(u.Hostname())
	for _, d := range deny {
		d = strings.ToLower(strings.TrimSpace(d))
		if d != "" && (host == d || strings.HasSuffix(host, "."+d)) {
			return true
		}
	}
	return false
}

func webDocument(r *websearch.Result, maxLen int) Document {
	parts := []string{cleanText(r.Title), cleanText(r.Description)}
	for _, snip := range r.ExtraSnippets {
		parts = append(parts, cleanText(snip))
	}
	content := truncateRunes(strings.Join(nonEmpty(parts), "\n"), maxLen)
	lang := r.Language
	if lang == "" {
		lang = domain.DetectLanguage(content)
	}
	standard := ""
	if stds := domain.DetectStandards(content); len(stds) > 0 {
		standard = stds[0]
	}
	return Document{
		ID:      "web_" + core.ShortHash(r.URL, 16),
		Content: content,
		Score:   webEvidenceScore,
		Metadata: DocumentMetadata{
			Source:      r.URL,
			Title:       cleanText(r.Title),
			Region:      domain.RegionFromURL(r.URL, content),
			Language:    lang,
			Standard:    standard,
			LastUpdated: r.PageAge,
			URL:         r.URL,
		},
	}
}

func cleanText(s string) string {
	s = html.UnescapeString(tagRe.ReplaceAllString(s, " "))
	s = strings.Join(strings.Fields(s), " ")
	lower := strings.ToLower(s)
	if len(lower) != len(s) {
		return s
	}
	for _, b := range boilerplates {
		if i := strings.Index(lower, b); i >= 0 {
			s = strings.TrimSpace(s[:i])
			lower = lower[:i]
		}
	}
	return s
}

func nonEmpty(in []string) []string {
	out := in[:0]
	for _, s := range in {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
