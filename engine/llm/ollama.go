package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/compozy/techrag/pkg/logger"
	"github.com/ollama/ollama/api"
)

const defaultOllamaTimeout = 2 * time.Minute

// OllamaClient completes prompts through the Ollama generate endpoint.
type OllamaClient struct {
	client *api.Client
}

type OllamaOption func(*ollamaOptions)

type ollamaOptions struct {
	httpClient *http.Client
	timeout    time.Duration
}

// WithHTTPClient overrides the HTTP client used for API requests.
func WithHTTPClient(c *http.Client) OllamaOption {
	return func(o *ollamaOptions) {
		o.httpClient = c
	}
}

// WithTimeout overrides the default HTTP timeout.
func WithTimeout(d time.Duration) OllamaOption {
	return func(o *ollamaOptions) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// NewOllamaAPIClient builds an Ollama SDK client for baseURL.
func NewOllamaAPIClient(baseURL string, opts ...OllamaOption) (*api.Client, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid Ollama API URL %q", baseURL)
	}
	o := ollamaOptions{timeout: defaultOllamaTimeout}
	for _, opt := range opts {
		opt(&o)
	}
	httpClient := o.httpClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: o.timeout}
	}
	return api.NewClient(parsed, httpClient), nil
}

func NewOllamaClient(baseURL string, opts ...OllamaOption) (*OllamaClient, error) {
	client, err := NewOllamaAPIClient(baseURL, opts...)
	if err != nil {
		return nil, err
	}
	return &OllamaClient{client: client}, nil
}

func (c *OllamaClient) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	if strings.TrimSpace(req.Model) == "" {
		return "", errors.New("model is required")
	}
	stream := false
	genReq := &api.GenerateRequest{
		Model:   req.Model,
		System:  req.System,
		Prompt:  req.Prompt,
		Stream:  &stream,
		Options: samplingOptions(req),
	}
	if req.JSON {
		genReq.Format = json.RawMessage(`"json"`)
	}
	var (
		out       strings.Builder
		evalCount int
	)
	start := time.Now()
	err := c.client.Generate(ctx, genReq, func(resp api.GenerateResponse) error {
		out.WriteString(resp.Response)
		if resp.Done {
			evalCount = resp.EvalCount
		}
		return nil
	})
	if err != nil {
		return "", classifyError(err, req.Model)
	}
	text := strings.TrimSpace(out.String())
	logger.FromContext(ctx).Debug("Ollama completion finished",
		"model", req.Model,
		"duration", time.Since(start),
		"eval_count", evalCount,
		"chars", len(text),
	)
	if text == "" {
		return "", newError(errors.New("empty completion"), ErrCodeEmptyResponse, 0, true, req.Model)
	}
	return text, nil
}

func samplingOptions(req CompletionRequest) map[string]any {
	options := map[string]any{
		"temperature": req.Temperature,
	}
	if req.TopP > 0 {
		options["top_p"] = req.TopP
	}
	if req.MaxTokens > 0 {
		options["num_predict"] = req.MaxTokens
	}
	return options
}
