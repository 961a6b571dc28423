package agent

import (
	"math"
	"sync"

	"github.com/compozy/techrag/engine/core"
)

const (
	DefaultMaxIterations       = 3
	DefaultConfidenceThreshold = 0.85
)

// Mutator is the write handle a step receives.
type Mutator interface {
	Update(p Patch)
	LogError(node StepName, message string)
	LogFailure(node StepName, message string, recoverable bool)
}

// StateManager owns the canonical session state. Every write goes through
// Update, which records the prior state in an append-only history.
type StateManager struct {
	mu                  sync.Mutex
	state               State
	history             []State
	confidenceThreshold float64
	transitions         map[StepName][]Transition
	clock               Clock
}

type ManagerOption func(*StateManager)

func WithConfidenceThreshold(v float64) ManagerOption {
	return func(m *StateManager) {
		if v > 0 {
			m.confidenceThreshold = v
		}
	}
}

func WithTransitions(ts []Transition) ManagerOption {
	return func(m *StateManager) {
		m.transitions = indexTransitions(ts)
	}
}

func WithClock(c Clock) ManagerOption {
	return func(m *StateManager) {
		if c != nil {
			m.clock = c
		}
	}
}

func NewStateManager(initial State, opts ...ManagerOption) *StateManager {
	if initial.MaxIterations <= 0 {
		initial.MaxIterations = DefaultMaxIterations
	}
	m := &StateManager{
		state:               initial,
		confidenceThreshold: DefaultConfidenceThreshold,
		transitions:         indexTransitions(DefaultTransitions()),
		clock:               SystemClock,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Snapshot returns a deep copy of the current state.
func (m *StateManager) Snapshot() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copyState(&m.state)
}

// History returns copies of every pre-update state, oldest first.
func (m *StateManager) History() []State {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]State, len(m.history))
	for i := range m.history {
		out[i] = copyState(&m.history[i])
	}
	return out
}

// Update merges p into the state.
func (m *StateManager) Update(p Patch) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = append(m.history, copyState(&m.state))
	applyPatch(&m.state, &p)
}

func (m *StateManager) LogError(node StepName, message string) {
	m.LogFailure(node, message, true)
}

// LogFailure appends an error record. It never fails.
func (m *StateManager) LogFailure(node StepName, message string, recoverable bool) {
	m.Update(Patch{AppendErrors: []StepError{{
		Node:        node,
		Message:     core.RedactString(message),
		Timestamp:   m.clock.Now(),
		Recoverable: recoverable,
	}}})
}

func (m *StateManager) IncrementIteration() {
	m.mu.Lock()
	next := m.state.Iteration + 1
	m.mu.Unlock()
	m.Update(Patch{Iteration: &next})
}

// ShouldContinue reports whether the loop may run another step.
func (m *StateManager) ShouldContinue() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := &m.state
	if s.Iteration >= s.MaxIterations {
		return false
	}
	if s.Confidence >= m.confidenceThreshold {
		return false
	}
	return !s.HasFatalError()
}

// NextStep returns the target of the first transition out of current whose
// guard holds. ok is false when none applies.
func (m *StateManager) NextStep(current StepName) (StepName, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.transitions[current] {
		if t.Guard == nil || t.Guard(&m.state) {
			return t.To, true
		}
	}
	return "", false
}

func applyPatch(s *State, p *Patch) {
	if p.CurrentQuery != nil {
		s.CurrentQuery = *p.CurrentQuery
	}
	if len(p.AppendReformulated) > 0 {
		s.ReformulatedQueries = append(s.ReformulatedQueries, p.AppendReformulated...)
	}
	if p.RetrievedDocuments != nil {
		s.RetrievedDocuments = *p.RetrievedDocuments
	}
	if p.GradedDocuments != nil {
		s.GradedDocuments = *p.GradedDocuments
	}
	if p.WebSearchResults != nil {
		s.WebSearchResults = *p.WebSearchResults
	}
	if p.ParentDocuments != nil {
		s.ParentDocuments = *p.ParentDocuments
	}
	if p.SearchMethod != nil {
		s.SearchMethod = *p.SearchMethod
	}
	if p.Generation != nil {
		s.Generation = *p.Generation
	}
	if p.Confidence != nil {
		s.Confidence = clamp01(*p.Confidence)
	}
	if p.Citations != nil {
		s.Citations = *p.Citations
	}
	if p.Iteration != nil && *p.Iteration > s.Iteration {
		s.Iteration = *p.Iteration
	}
	if p.ReformulationRounds != nil && *p.ReformulationRounds > s.ReformulationRounds {
		s.ReformulationRounds = *p.ReformulationRounds
	}
	if p.ShouldWebSearch != nil {
		s.ShouldWebSearch = *p.ShouldWebSearch
	}
	if p.ShouldReformulate != nil {
		s.ShouldReformulate = *p.ShouldReformulate
	}
	if p.RelevanceScores != nil {
		s.RelevanceScores = *p.RelevanceScores
	}
	if p.ProcessingTime != nil {
		s.ProcessingTime = *p.ProcessingTime
	}
	if len(p.AppendNodesVisited) > 0 {
		s.NodesVisited = append(s.NodesVisited, p.AppendNodesVisited...)
	}
	if len(p.AppendErrors) > 0 {
		s.Errors = append(s.Errors, p.AppendErrors...)
	}
}

func copyState(s *State) State {
	out, err := core.DeepCopy(*s)
	if err != nil {
		return *s
	}
	return out
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
