package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/compozy/techrag/engine/core"
	"github.com/compozy/techrag/pkg/logger"
)

// StepBudget bounds one step execution.
type StepBudget struct {
	Timeout time.Duration
	Retries int
	Backoff time.Duration
}

// guardedMutator drops writes once its attempt has been abandoned.
type guardedMutator struct {
	mu     sync.Mutex
	target Mutator
	closed bool
}

func (g *guardedMutator) Update(p Patch) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.closed {
		g.target.Update(p)
	}
}

func (g *guardedMutator) LogError(node StepName, message string) {
	g.LogFailure(node, message, true)
}

func (g *guardedMutator) LogFailure(node StepName, message string, recoverable bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.closed {
		g.target.LogFailure(node, message, recoverable)
	}
}

func (g *guardedMutator) close() {
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()
}

type stepRunner struct {
	budgets map[StepName]StepBudget
}

func (r *stepRunner) budget(name StepName) StepBudget {
	return r.budgets[name]
}

// run executes step with its timeout and retry budget. Hard failures are
// retried; exhausted retries are logged as recoverable unless they wrap ErrFatal.
func (r *stepRunner) run(ctx context.Context, step Step, mgr *StateManager) StepResult {
	name := step.Name()
	budget := r.budget(name)
	log := logger.FromContext(ctx).With("step", string(name))
	start := time.Now()
	calls := 0
	var result StepResult
	backoff := retry.WithMaxRetries(uint64(max(budget.Retries, 0)), retry.NewConstant(max(budget.Backoff, time.Millisecond)))
	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		res, err := r.attempt(ctx, step, mgr, budget.Timeout)
		calls += res.Metrics.ExternalCalls
		if err == nil && !res.Success && res.NextStep == "" {
			err = res.Err
			if err == nil {
				err = fmt.Errorf("%s failed without a reason", name)
			}
		}
		if err != nil {
			log.Warn("Step attempt failed", "attempt", attempt, "error", core.RedactError(err))
			if errors.Is(err, ErrFatal) {
				return err
			}
			return retry.RetryableError(err)
		}
		result = res
		return nil
	})
	if err != nil {
		recoverable := !errors.Is(err, ErrFatal)
		mgr.LogFailure(name, fmt.Sprintf("%s gave up after %d attempt(s): %v", name, attempt, err), recoverable)
		next := step.fallbackNext()
		if !recoverable {
			next = ""
		}
		result = fail(err, next, 0)
	}
	result.Metrics.ExternalCalls = calls
	result.Metrics.Duration = time.Since(start)
	return result
}

func (r *stepRunner) attempt(ctx context.Context, step Step, mgr *StateManager, timeout time.Duration) (StepResult, error) {
	attemptCtx := ctx
	cancel := func() {}
	if timeout > 0 {
		attemptCtx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()
	guard := &guardedMutator{target: mgr}
	done := make(chan struct {
		res StepResult
		err error
	}, 1)
	snapshot := mgr.Snapshot()
	go func() {
		var out struct {
			res StepResult
			err error
		}
		defer func() {
			if p := recover(); p != nil {
				out.err = stepError(step.Name(), ErrCodeStepPanic, fmt.Errorf("panic: %v", p))
			}
			done <- out
		}()
		out.res = step.Execute(attemptCtx, snapshot, guard)
	}()
	select {
	case out := <-done:
		guard.close()
		return out.res, out.err
	case <-attemptCtx.Done():
		guard.close()
		err := attemptCtx.Err()
		if errors.Is(err, context.DeadlineExceeded) {
			return StepResult{}, stepError(step.Name(), ErrCodeStepTimeout,
				fmt.Errorf("%s exceeded %s", step.Name(), timeout))
		}
		return StepResult{}, Fatal(err)
	}
}
