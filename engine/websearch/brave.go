package websearch

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/compozy/techrag/engine/core"
	"github.com/compozy/techrag/pkg/logger"
)

const (
	ErrCodeRequest  = "WEB_SEARCH_REQUEST_ERROR"
	ErrCodeStatus   = "WEB_SEARCH_STATUS_ERROR"
	defaultTimeout  = 10 * time.Second
	maxResultsCount = 20
)

// BraveConfig configures the Brave-compatible adapter.
type BraveConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	Retries int
}

// Brave calls a Brave-compatible /web/search endpoint.
type Brave struct {
	client *resty.Client
}

func NewBrave(cfg *BraveConfig) (*Brave, error) {
	if cfg == nil || strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("websearch: base url is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetHeader("X-Subscription-Token", cfg.APIKey).
		SetRetryCount(cfg.Retries).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second)
	client.AddRetryCondition(retryCondition)
	return &Brave{client: client}, nil
}

func retryCondition(r *resty.Response, err error) bool {
	if err != nil {
		return true
	}
	if r == nil {
		return false
	}
	code := r.StatusCode()
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

func (b *Brave) Search(ctx context.Context, q Query) (*Response, error) {
	if strings.TrimSpace(q.Q) == "" {
		return nil, ErrEmptyQuery
	}
	params := map[string]string{"q": q.Q}
	if q.Count > 0 {
		params["count"] = strconv.Itoa(min(q.Count, maxResultsCount))
	}
	setIf(params, "search_lang", q.Language)
	setIf(params, "country", q.Country)
	setIf(params, "safesearch", q.SafeSearch)
	setIf(params, "freshness", q.Freshness)
	var out Response
	start := time.Now()
	resp, err := b.client.R().
		SetContext(ctx).
		SetQueryParams(params).
		SetResult(&out).
		Get("/web/search")
	if err != nil {
		return nil, core.NewError(err, ErrCodeRequest, nil)
	}
	if resp.IsError() {
		return nil, core.NewError(
			fmt.Errorf("web search returned status %d", resp.StatusCode()),
			ErrCodeStatus,
			map[string]any{"status": resp.StatusCode()},
		)
	}
	logger.FromContext(ctx).Debug("Web search completed",
		"results", len(out.Web.Results),
		"duration", time.Since(start),
	)
	return &out, nil
}

func setIf(params map[string]string, key, value string) {
	if v := strings.TrimSpace(value); v != "" {
		params[key] = v
	}
}
