// Package websearch adapts external web search APIs.
package websearch

import (
	"context"
	"errors"
)

// Query holds the provider-neutral search parameters.
type Query struct {
	Q          string
	Count      int
	Language   string
	Country    string
	SafeSearch string
	Freshness  string
}

// Result is one organic web result.
type Result struct {
	Title         string   `json:"title"`
	URL           string   `json:"url"`
	Description   string   `json:"description"`
	ExtraSnippets []string `json:"extra_snippets,omitempty"`
	PageAge       string   `json:"page_age,omitempty"`
	Language      string   `json:"language,omitempty"`
}

// Response mirrors {web:{results:[...]}}.
type Response struct {
	Web struct {
		Results []Result `json:"results"`
	} `json:"web"`
}

// Results returns the organic results, tolerating a nil response.
func (r *Response) Results() []Result {
	if r == nil {
		return nil
	}
	return r.Web.Results
}

// Provider runs a web search.
type Provider interface {
	Search(ctx context.Context, q Query) (*Response, error)
}

var (
	ErrMissingAPIKey = errors.New("websearch: api key is required")
	ErrEmptyQuery    = errors.New("websearch: query is required")
)
