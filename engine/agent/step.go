package agent

import (
	"context"
	"time"
)

// StepMetrics describes one step execution.
type StepMetrics struct {
	Duration      time.Duration
	ExternalCalls int
}

// StepResult is the outcome of a step. Success false always carries Err.
type StepResult struct {
	Success  bool
	Data     any
	Err      error
	NextStep StepName
	Metrics  StepMetrics
}

func succeed(next StepName, data any, calls int) StepResult {
	return StepResult{Success: true, Data: data, NextStep: next, Metrics: StepMetrics{ExternalCalls: calls}}
}

func fail(err error, next StepName, calls int) StepResult {
	return StepResult{Success: false, Err: err, NextStep: next, Metrics: StepMetrics{ExternalCalls: calls}}
}

// Step is implemented only by the steps of this package.
type Step interface {
	Name() StepName
	// Execute must not panic; external failures become fallbacks or Success false.
	Execute(ctx context.Context, snapshot State, m Mutator) StepResult
	// fallbackNext is where the session goes if the step cannot complete at all.
	fallbackNext() StepName
	sealed()
}

type stepBase struct{}

func (stepBase) sealed() {}

// Steps lists every executable step in routing order.
func Steps() []StepName {
	return []StepName{StepRetrieve, StepGrade, StepReformulate, StepWebSearch, StepGenerate}
}
