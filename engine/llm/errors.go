package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/compozy/techrag/engine/core"
	"github.com/ollama/ollama/api"
)

const (
	ErrCodeRequest        = "LLM_REQUEST_ERROR"
	ErrCodeEmptyResponse  = "LLM_EMPTY_RESPONSE"
	ErrCodeRateLimit      = "LLM_RATE_LIMIT"
	ErrCodeUnavailable    = "LLM_UNAVAILABLE"
	ErrCodeInvalidRequest = "LLM_INVALID_REQUEST"
	ErrCodeTimeout        = "LLM_TIMEOUT"
)

// Error is returned by completion backends.
type Error struct {
	cause      *core.Error
	HTTPStatus int
	retryable  bool
}

func (e *Error) Error() string {
	return e.cause.Error()
}

func (e *Error) Unwrap() error {
	return e.cause
}

func (e *Error) Code() string {
	return e.cause.Code
}

func (e *Error) Retryable() bool {
	return e.retryable
}

func newError(err error, code string, status int, retryable bool, model string) *Error {
	return &Error{
		cause:      core.NewError(err, code, map[string]any{"model": model, "http_status": status}),
		HTTPStatus: status,
		retryable:  retryable,
	}
}

// classifyError maps transport and API failures onto coded errors.
func classifyError(err error, model string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return newError(err, ErrCodeTimeout, 0, true, model)
	}
	var statusErr api.StatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.StatusCode == http.StatusTooManyRequests:
			return newError(err, ErrCodeRateLimit, statusErr.StatusCode, true, model)
		case statusErr.StatusCode >= http.StatusInternalServerError:
			return newError(err, ErrCodeUnavailable, statusErr.StatusCode, true, model)
		default:
			return newError(err, ErrCodeInvalidRequest, statusErr.StatusCode, false, model)
		}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return newError(err, ErrCodeUnavailable, 0, true, model)
	}
	return newError(fmt.Errorf("completion failed: %w", err), ErrCodeRequest, 0, false, model)
}
