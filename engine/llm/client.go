// Package llm provides the text completion capability used by the agent steps.
package llm

import "context"

// CompletionRequest describes one prompt completion.
type CompletionRequest struct {
	Model       string
	System      string
	Prompt      string
	Temperature float64
	TopP        float64
	MaxTokens   int
	// JSON asks the backend to constrain output to a JSON value.
	JSON bool
}

// ChatCompleter turns a prompt into text.
type ChatCompleter interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// CompleterFunc adapts a function to ChatCompleter.
type CompleterFunc func(ctx context.Context, req CompletionRequest) (string, error)

func (f CompleterFunc) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	return f(ctx, req)
}
