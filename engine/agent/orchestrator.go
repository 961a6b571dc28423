package agent

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/compozy/techrag/engine/knowledge"
	"github.com/compozy/techrag/engine/llm"
	"github.com/compozy/techrag/engine/websearch"
	"github.com/compozy/techrag/pkg/logger"
)

const (
	genericFailureAnswer = "Something went wrong while answering the question. Please try again later."
	incompleteAnswer     = "The question could not be answered within the allowed number of steps."
)

var ErrEmptyQuestion = errors.New("question is required")

// Dependencies are the capabilities an orchestrator is built from.
// Searcher and LLM are required.
type Dependencies struct {
	Searcher  knowledge.Searcher
	Parents   knowledge.ParentStore
	LLM       llm.ChatCompleter
	WebSearch websearch.Provider
	Metrics   *Collector
	Clock     Clock
}

// Source is one piece of evidence listed with an answer.
type Source struct {
	Key       string  `json:"key"`
	Title     string  `json:"title,omitempty"`
	URL       string  `json:"url,omitempty"`
	Relevance float64 `json:"relevance"`
	Cited     bool    `json:"cited"`
	Web       bool    `json:"web"`
	Standard  string  `json:"standard,omitempty"`
	Region    string  `json:"region,omitempty"`
}

// AnswerMetrics describe how an answer was produced.
type AnswerMetrics struct {
	ProcessingTime     float64    `json:"processingTime"`
	Iterations         int        `json:"iterations"`
	NodesVisited       []StepName `json:"nodesVisited"`
	DocumentsRetrieved int        `json:"documentsRetrieved"`
	WebSearchUsed      bool       `json:"webSearchUsed"`
	ReformulationUsed  bool       `json:"reformulationUsed"`
}

// Answer is the result of one session.
type Answer struct {
	SessionID  string        `json:"sessionId"`
	Answer     string        `json:"answer"`
	Confidence float64       `json:"confidence"`
	Sources    []Source      `json:"sources"`
	Metrics    AnswerMetrics `json:"metrics"`
}

// Orchestrator answers questions. It holds no per-session state and may be
// shared by concurrent callers.
type Orchestrator struct {
	settings    Settings
	deps        Dependencies
	transitions []Transition
	runner      *stepRunner

	retrieve    *retrieveStep
	grade       *gradeStep
	reformulate *reformulateStep
	webSearch   *webSearchStep
	generate    *generateStep
}

func NewOrchestrator(settings Settings, deps Dependencies) (*Orchestrator, error) {
	if deps.Searcher == nil {
		return nil, errors.New("agent: searcher is required")
	}
	if deps.LLM == nil {
		return nil, errors.New("agent: llm is required")
	}
	if deps.Clock == nil {
		deps.Clock = SystemClock
	}
	o := &Orchestrator{
		settings:    settings,
		deps:        deps,
		transitions: DefaultTransitions(),
		runner:      &stepRunner{budgets: settings.Budgets},
	}
	o.retrieve = &retrieveStep{searcher: deps.Searcher, parents: deps.Parents, settings: &o.settings}
	o.grade = newGradeStep(deps.LLM, &o.settings)
	o.reformulate = &reformulateStep{llm: deps.LLM, settings: &o.settings}
	o.webSearch = &webSearchStep{provider: deps.WebSearch, settings: &o.settings}
	o.generate = &generateStep{llm: deps.LLM, settings: &o.settings}
	return o, nil
}

func (o *Orchestrator) step(name StepName) (Step, error) {
	switch name {
	case StepRetrieve:
		return o.retrieve, nil
	case StepGrade:
		return o.grade, nil
	case StepReformulate:
		return o.reformulate, nil
	case StepWebSearch:
		return o.webSearch, nil
	case StepGenerate:
		return o.generate, nil
	case StepEnd:
		return nil, stepError(name, ErrCodeUnknownStep, errors.New("end is not executable"))
	default:
		return nil, stepError(name, ErrCodeUnknownStep, fmt.Errorf("unknown step %q", name))
	}
}

// Ask runs one session. The only error is an empty question; every other
// failure is folded into the answer.
func (o *Orchestrator) Ask(ctx context.Context, question string) (answer *Answer, err error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}
	session := NewSession(o.deps.Clock)
	ctx = ContextWithSession(ctx, session)
	log := logger.FromContext(ctx).With("session_id", session.ID)
	ctx = logger.ContextWithLogger(ctx, log)
	mgr := NewStateManager(
		NewState(session.ID, question, o.settings.MaxIterations),
		WithConfidenceThreshold(o.settings.ConfidenceThreshold),
		WithTransitions(o.transitions),
		WithClock(session.Clock),
	)
	defer func() {
		if p := recover(); p != nil {
			log.Error("Session aborted", "panic", fmt.Sprint(p))
			answer = &Answer{
				SessionID: session.ID,
				Answer:    genericFailureAnswer,
				Sources:   []Source{},
				Metrics:   AnswerMetrics{ProcessingTime: session.Elapsed().Seconds(), NodesVisited: []StepName{}},
			}
			err = nil
			if o.deps.Metrics != nil {
				o.deps.Metrics.RecordSession(ctx, session.Elapsed(), false, 0)
			}
		}
	}()
	log.Info("Answering question", "domain", mgr.Snapshot().EngineeringDomain.String())
	o.run(ctx, mgr)
	elapsed := session.Elapsed()
	mgr.Update(Patch{ProcessingTime: Ptr(elapsed)})
	final := mgr.Snapshot()
	answer = assembleAnswer(&final)
	if o.deps.Metrics != nil {
		o.deps.Metrics.RecordSession(ctx, elapsed, answer.Metrics.WebSearchUsed, answer.Confidence)
	}
	log.Info("Answered question",
		"confidence", answer.Confidence,
		"iterations", final.Iteration,
		"errors", len(final.Errors),
		"duration", elapsed)
	return answer, nil
}

// run drives the step loop until a terminal step, a hard failure or the
// termination policy stops it.
func (o *Orchestrator) run(ctx context.Context, mgr *StateManager) {
	log := logger.FromContext(ctx)
	machine := newMachine(o.transitions)
	current := StepRetrieve
	for mgr.ShouldContinue() {
		mgr.Update(Patch{AppendNodesVisited: []StepName{current}})
		step, err := o.step(current)
		if err != nil {
			mgr.LogFailure(current, err.Error(), false)
			return
		}
		res := o.runner.run(ctx, step, mgr)
		if o.deps.Metrics != nil {
			o.deps.Metrics.RecordStep(ctx, current, &res)
		}
		if !res.Success && res.NextStep == "" {
			log.Warn("Step failed without a next step", "step", current.String(), "error", res.Err)
			return
		}
		next := res.NextStep
		if next == "" {
			if routed, ok := mgr.NextStep(current); ok {
				next = routed
			} else {
				next = StepEnd
			}
		}
		if err := advance(ctx, machine, next); err != nil {
			mgr.LogFailure(current, stepError(current, ErrCodeInvalidTransition, err).Error(), false)
			return
		}
		mgr.IncrementIteration()
		if next == StepEnd {
			return
		}
		current = next
	}
}

func assembleAnswer(s *State) *Answer {
	text := s.Generation
	if text == "" {
		text = incompleteAnswer
	}
	visited := append([]StepName{}, s.NodesVisited...)
	webUsed := false
	for _, n := range visited {
		if n == StepWebSearch {
			webUsed = true
			break
		}
	}
	return &Answer{
		SessionID:  s.SessionID,
		Answer:     text,
		Confidence: s.Confidence,
		Sources:    assembleSources(s),
		Metrics: AnswerMetrics{
			ProcessingTime:     s.ProcessingTime.Seconds(),
			Iterations:         s.Iteration,
			NodesVisited:       visited,
			DocumentsRetrieved: len(s.RetrievedDocuments),
			WebSearchUsed:      webUsed,
			ReformulationUsed:  len(s.ReformulatedQueries) > 0,
		},
	}
}

// assembleSources keeps the best scored relevant document per source key,
// appends web results, and lists cited sources first.
func assembleSources(s *State) []Source {
	cited := make(map[string]struct{}, len(s.Citations))
	for _, c := range s.Citations {
		cited[c] = struct{}{}
	}
	index := make(map[string]int)
	out := make([]Source, 0)
	for _, g := range s.RelevantDocuments() {
		key := g.SourceKey()
		src := sourceFrom(&g.Document, g.RelevanceScore, false)
		if i, ok := index[key]; ok {
			if out[i].Relevance < src.Relevance {
				out[i] = src
			}
			continue
		}
		index[key] = len(out)
		out = append(out, src)
	}
	for i := range s.WebSearchResults {
		d := &s.WebSearchResults[i]
		key := d.SourceKey()
		if _, ok := index[key]; ok {
			continue
		}
		index[key] = len(out)
		out = append(out, sourceFrom(d, d.Score, true))
	}
	for i := range out {
		_, out[i].Cited = cited[out[i].Key]
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Cited != out[j].Cited {
			return out[i].Cited
		}
		return out[i].Relevance > out[j].Relevance
	})
	return out
}

func sourceFrom(d *Document, relevance float64, web bool) Source {
	return Source{
		Key:       d.SourceKey(),
		Title:     d.Metadata.Title,
		URL:       d.Metadata.URL,
		Relevance: relevance,
		Web:       web,
		Standard:  d.Metadata.Standard,
		Region:    d.Metadata.Region,
	}
}
