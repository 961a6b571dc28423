// Package agent runs the retrieve, grade, reformulate, web search and generate
// loop that answers one technical question.
package agent

import (
	"time"

	"github.com/compozy/techrag/engine/domain"
	"github.com/compozy/techrag/engine/knowledge"
)

// StepName identifies a node of the answering state machine.
type StepName string

const (
	StepRetrieve    StepName = "retrieve"
	StepGrade       StepName = "grade"
	StepGenerate    StepName = "generate"
	StepReformulate StepName = "reformulate"
	StepWebSearch   StepName = "webSearch"
	StepEnd         StepName = "end"
)

func (s StepName) String() string {
	return string(s)
}

// DocumentMetadata describes where a piece of evidence came from.
type DocumentMetadata struct {
	Source      string `json:"source"`
	Title       string `json:"title,omitempty"`
	Page        int    `json:"page,omitempty"`
	Section     string `json:"section,omitempty"`
	Category    string `json:"category,omitempty"`
	Region      string `json:"region,omitempty"`
	Language    string `json:"language,omitempty"`
	Standard    string `json:"standard,omitempty"`
	LastUpdated string `json:"last_updated,omitempty"`
	ParentID    string `json:"parent_id,omitempty"`
	URL         string `json:"url,omitempty"`
}

// Document is a unit of evidence. Documents are read-only once produced.
type Document struct {
	ID        string           `json:"id"`
	Content   string           `json:"content"`
	Metadata  DocumentMetadata `json:"metadata"`
	Embedding []float32        `json:"-"`
	Score     float64          `json:"score"`
}

// SourceKey identifies the origin of a document for deduplication and citation.
func (d *Document) SourceKey() string {
	switch {
	case d.Metadata.URL != "":
		return d.Metadata.URL
	case d.Metadata.Source != "":
		return d.Metadata.Source
	default:
		return d.ID
	}
}

// GradedDocument is a document with its combined relevance verdict.
type GradedDocument struct {
	Document
	RelevanceScore float64 `json:"relevance_score"`
	Relevant       bool    `json:"relevant"`
	Reason         string  `json:"reason"`
	JudgmentScore  float64 `json:"judgment_score"`
	HeuristicScore float64 `json:"heuristic_score"`
}

// StepError records a failure observed while running a step.
type StepError struct {
	Node        StepName  `json:"node"`
	Message     string    `json:"message"`
	Timestamp   time.Time `json:"timestamp"`
	Recoverable bool      `json:"recoverable"`
}

// State is the per-question session record.
type State struct {
	SessionID           string
	OriginalQuestion    string
	CurrentQuery        string
	ReformulatedQueries []string

	QueryLanguage       string
	EngineeringDomain   domain.Domain
	CalculationType     domain.CalculationType
	ApplicableStandards []string
	Region              string

	RetrievedDocuments []Document
	GradedDocuments    []GradedDocument
	WebSearchResults   []Document
	ParentDocuments    []knowledge.ParentDocument
	SearchMethod       string

	Generation string
	Confidence float64
	Citations  []string

	Iteration           int
	MaxIterations       int
	ReformulationRounds int
	ShouldWebSearch     bool
	ShouldReformulate   bool

	RelevanceScores []float64
	ProcessingTime  time.Duration
	NodesVisited    []StepName
	Errors          []StepError
}

// NewState profiles question and builds the initial session state.
func NewState(sessionID, question string, maxIterations int) State {
	profile := domain.Detect(question)
	return State{
		SessionID:           sessionID,
		OriginalQuestion:    question,
		CurrentQuery:        question,
		QueryLanguage:       profile.Language,
		EngineeringDomain:   profile.Domain,
		CalculationType:     profile.CalculationType,
		ApplicableStandards: profile.Standards,
		Region:              profile.Region,
		MaxIterations:       maxIterations,
	}
}

// RelevantDocuments returns graded documents marked relevant, in grading order.
func (s *State) RelevantDocuments() []GradedDocument {
	out := make([]GradedDocument, 0, len(s.GradedDocuments))
	for i := range s.GradedDocuments {
		if s.GradedDocuments[i].Relevant {
			out = append(out, s.GradedDocuments[i])
		}
	}
	return out
}

// HasFatalError reports whether any recorded error is non-recoverable.
func (s *State) HasFatalError() bool {
	for i := range s.Errors {
		if !s.Errors[i].Recoverable {
			return true
		}
	}
	return false
}

// Patch is a partial update. Nil pointers leave fields unchanged; Append*
// slices are appended.
type Patch struct {
	CurrentQuery        *string
	AppendReformulated  []string
	RetrievedDocuments  *[]Document
	GradedDocuments     *[]GradedDocument
	WebSearchResults    *[]Document
	ParentDocuments     *[]knowledge.ParentDocument
	SearchMethod        *string
	Generation          *string
	Confidence          *float64
	Citations           *[]string
	Iteration           *int
	ReformulationRounds *int
	ShouldWebSearch     *bool
	ShouldReformulate   *bool
	RelevanceScores     *[]float64
	ProcessingTime      *time.Duration
	AppendNodesVisited  []StepName
	AppendErrors        []StepError
}

// Ptr returns a pointer to v, for building patches.
func Ptr[T any](v T) *T {
	return &v
}
