package agent

import (
	"context"
	"fmt"

	"github.com/looplab/fsm"
)

// Guard is a predicate over the current state.
type Guard func(s *State) bool

// Transition is an edge of the routing table. A nil Guard always matches.
type Transition struct {
	From  StepName
	To    StepName
	Guard Guard
}

func anyRelevant(s *State) bool {
	for i := range s.GradedDocuments {
		if s.GradedDocuments[i].Relevant {
			return true
		}
	}
	return false
}

// DefaultTransitions is the routing table, in evaluation order.
func DefaultTransitions() []Transition {
	return []Transition{
		{From: StepRetrieve, To: StepGrade},
		{From: StepGrade, To: StepGenerate, Guard: anyRelevant},
		{From: StepGrade, To: StepReformulate, Guard: func(s *State) bool {
			return s.ShouldReformulate && !s.ShouldWebSearch
		}},
		{From: StepGrade, To: StepWebSearch, Guard: func(s *State) bool { return s.ShouldWebSearch }},
		{From: StepReformulate, To: StepRetrieve},
		{From: StepWebSearch, To: StepGenerate},
		{From: StepGenerate, To: StepEnd},
	}
}

func indexTransitions(ts []Transition) map[StepName][]Transition {
	out := make(map[StepName][]Transition)
	for _, t := range ts {
		out[t.From] = append(out[t.From], t)
	}
	return out
}

// newMachine builds a validator for the routing table. Each event is named
// after its destination; end is reachable from every step.
func newMachine(ts []Transition) *fsm.FSM {
	sources := make(map[StepName][]string)
	order := make([]StepName, 0)
	for _, t := range ts {
		if _, ok := sources[t.To]; !ok {
			order = append(order, t.To)
		}
		sources[t.To] = appendUnique(sources[t.To], string(t.From))
	}
	for _, s := range Steps() {
		if _, ok := sources[StepEnd]; !ok {
			order = append(order, StepEnd)
		}
		sources[StepEnd] = appendUnique(sources[StepEnd], string(s))
	}
	events := make(fsm.Events, 0, len(order))
	for _, dst := range order {
		events = append(events, fsm.EventDesc{Name: string(dst), Src: sources[dst], Dst: string(dst)})
	}
	return fsm.NewFSM(string(StepRetrieve), events, fsm.Callbacks{})
}

// advance moves the machine to next, rejecting edges outside the routing table.
func advance(ctx context.Context, m *fsm.FSM, next StepName) error {
	if !m.Can(string(next)) {
		return fmt.Errorf("transition %s -> %s is not allowed", m.Current(), next)
	}
	return m.Event(ctx, string(next))
}

func appendUnique(list []string, v string) []string {
	for _, x := range list {
		if x == v {
			return list
		}
	}
	return append(list, v)
}
