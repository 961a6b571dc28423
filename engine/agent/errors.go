package agent

import (
	"errors"
	"fmt"

	"github.com/compozy/techrag/engine/core"
)

// ErrFatal marks a step error that must stop the session instead of being retried.
var ErrFatal = errors.New("fatal step error")

const (
	ErrCodeRetrievalFailed   = "RETRIEVAL_FAILED"
	ErrCodeStepTimeout       = "STEP_TIMEOUT"
	ErrCodeStepPanic         = "STEP_PANIC"
	ErrCodeInvalidTransition = "INVALID_TRANSITION"
	ErrCodeGenerationFailed  = "GENERATION_FAILED"
	ErrCodeWebSearchFailed   = "WEB_SEARCH_FAILED"
	ErrCodeUnknownStep       = "UNKNOWN_STEP"
)

// Fatal wraps err so the runner treats it as non-recoverable.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrFatal, err)
}

func stepError(node StepName, code string, err error) *core.Error {
	return core.NewError(err, code, map[string]any{"node": string(node)})
}
