// Package interview implements the interview orchestration engine: the
// question catalog, the response-quality scoring heuristics, the turn state
// machine, per-turn metrics publishing, and the end-of-session finalizer.
//
// One State value models exactly one candidate session. It is owned and
// mutated exclusively by a [Controller] for the lifetime of the session and
// becomes immutable once the session ends.
package interview

import "time"

// Phase identifies which kind of answer the engine is waiting for.
type Phase string

const (
	// PhaseMain means the engine awaits an answer to the current main question.
	PhaseMain Phase = "main"

	// PhaseFollowUp means the engine awaits an answer to a follow-up probe.
	PhaseFollowUp Phase = "followup"
)

// Category selects a question set from the built-in catalog.
type Category string

const (
	CategoryGeneral      Category = "general"
	CategoryTechnical    Category = "technical"
	CategoryBehavioral   Category = "behavioral"
	CategoryLeadership   Category = "leadership"
	CategorySystemDesign Category = "system-design"
)

// IsValid reports whether c is a recognised interview category.
func (c Category) IsValid() bool {
	switch c {
	case CategoryGeneral, CategoryTechnical, CategoryBehavioral, CategoryLeadership, CategorySystemDesign:
		return true
	}
	return false
}

// Config holds the per-session interview parameters. Construct from user
// input via [Config.Normalize], which silently replaces out-of-range values
// with defaults — configuration problems are never surfaced to the candidate.
type Config struct {
	// Category selects the question set. Unknown values fall back to
	// CategoryGeneral during question selection.
	Category Category

	// NumQuestions is how many questions to ask. Minimum 1.
	NumQuestions int

	// MaxAttempts is how many answers a candidate may give per main question
	// before the engine moves on. Minimum 1.
	MaxAttempts int

	// MaxFollowUps is how many follow-up probes are asked after a passed main
	// answer. Zero disables follow-ups entirely.
	MaxFollowUps int

	// AllowAdaptiveFollowUps toggles LLM-generated follow-ups instead of the
	// fixed probe bank.
	AllowAdaptiveFollowUps bool

	// Mode is an opaque display label echoed into the session report.
	Mode string

	// OrganizationLabel and RoleLabel are opaque display labels used in
	// spoken prompts and echoed into the report.
	OrganizationLabel string
	RoleLabel         string
}

// Default interview parameters.
const (
	DefaultNumQuestions = 5
	DefaultMaxAttempts  = 2
	DefaultMaxFollowUps = 1
)

// Normalize returns a copy of c with every out-of-range field replaced by its
// default. It never fails: unknown categories are kept as-is (question
// selection falls back to the general set) and non-positive counts become
// the documented minimums.
func (c Config) Normalize() Config {
	if c.Category == "" {
		c.Category = CategoryGeneral
	}
	if c.NumQuestions < 1 {
		c.NumQuestions = DefaultNumQuestions
	}
	if c.MaxAttempts < 1 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.MaxFollowUps < 0 {
		c.MaxFollowUps = DefaultMaxFollowUps
	}
	if c.OrganizationLabel == "" {
		c.OrganizationLabel = "the team"
	}
	if c.RoleLabel == "" {
		c.RoleLabel = "this role"
	}
	return c
}

// QuestionState tracks everything that happened on one question. Created once
// per question at session start and mutated only by the [Controller].
type QuestionState struct {
	// Question is the question text as asked.
	Question string

	// Attempts counts submitted main answers, bounded by Config.MaxAttempts.
	Attempts int

	// Passed reports whether any attempt cleared the quality threshold.
	Passed bool

	// Responses holds every main answer in submission order.
	Responses []string

	// Feedback holds the verdict feedback string for each attempt.
	Feedback []string

	// FollowUpCount counts submitted follow-up answers, bounded by
	// Config.MaxFollowUps.
	FollowUpCount int

	// FollowUpResponses holds every follow-up answer in submission order.
	FollowUpResponses []string
}

// TurnMetrics is the structured per-turn payload emitted on the live metrics
// channel and attached to conversation history entries.
type TurnMetrics struct {
	QuestionNumber       int   `json:"question_number"`
	TotalQuestions       int   `json:"total_questions"`
	Phase                Phase `json:"phase"`
	AttemptOrFollowUp    int   `json:"attempt_or_followup_index"`
	ConfidenceScore      int   `json:"confidence_score"`
	ProfessionalismScore int   `json:"professionalism_score"`
	QualityScore         int   `json:"quality_score"`
	FillerCountTurn      int   `json:"filler_count_this_turn"`
	FillerCountTotal     int   `json:"filler_count_total"`
	Ended                bool  `json:"ended"`
}

// HistoryEntry is one record in the append-only conversation history.
type HistoryEntry struct {
	// Role is "candidate" or "interviewer".
	Role string `json:"role"`

	// Text is what was said.
	Text string `json:"text"`

	// Timestamp is when the entry was recorded. Entries are non-decreasing
	// in time.
	Timestamp time.Time `json:"timestamp"`

	// QuestionIndex is the zero-based index of the question active when the
	// entry was recorded.
	QuestionIndex int `json:"question_index"`

	// Phase is the turn phase active when the entry was recorded.
	Phase Phase `json:"phase"`

	// Metrics carries the scored turn metrics for candidate entries.
	// Nil for interviewer entries.
	Metrics *TurnMetrics `json:"metrics,omitempty"`
}

// State is the mutable record of one interview session's progress.
// It is private to its session: exactly one Controller owns it and all
// mutation happens on the session's turn-handling goroutine.
type State struct {
	// CandidateID identifies the candidate this session belongs to.
	CandidateID string

	// Config holds the normalized session parameters.
	Config Config

	// Questions is the ordered question list selected at session start.
	Questions []string

	// QuestionStates tracks progress per question, 1:1 with Questions.
	QuestionStates []*QuestionState

	// CurrentIndex is the active question index, in [0, len(Questions)].
	// It reaches len(Questions) exactly once, when the session ends.
	CurrentIndex int

	// CurrentPhase is the active turn phase.
	CurrentPhase Phase

	// WaitingForUser is true iff the engine is prepared to accept the next
	// utterance. It doubles as the serialization guard against duplicate or
	// out-of-order delivery.
	WaitingForUser bool

	// Ended transitions from false to true exactly once.
	Ended bool

	// FillerTotal is the cumulative filler-word count across all turns.
	FillerTotal int

	// History is the append-only conversation record.
	History []HistoryEntry

	// StartedAt is the session start time.
	StartedAt time.Time
}

// NewState creates the session state for candidateID with cfg (normalized by
// the caller) and the selected question list. The engine starts awaiting the
// answer to question zero.
func NewState(candidateID string, cfg Config, questions []string, now time.Time) *State {
	states := make([]*QuestionState, len(questions))
	for i, q := range questions {
		states[i] = &QuestionState{Question: q}
	}
	return &State{
		CandidateID:    candidateID,
		Config:         cfg,
		Questions:      questions,
		QuestionStates: states,
		CurrentPhase:   PhaseMain,
		WaitingForUser: true,
		StartedAt:      now,
	}
}

// Current returns the active QuestionState, or nil when the session has
// advanced past the last question.
func (s *State) Current() *QuestionState {
	if s.CurrentIndex >= len(s.QuestionStates) {
		return nil
	}
	return s.QuestionStates[s.CurrentIndex]
}

// AppendHistory records an entry, clamping its timestamp so that history
// timestamps never decrease even when transport delivery reorders clocks.
func (s *State) AppendHistory(entry HistoryEntry) {
	if n := len(s.History); n > 0 && entry.Timestamp.Before(s.History[n-1].Timestamp) {
		entry.Timestamp = s.History[n-1].Timestamp
	}
	s.History = append(s.History, entry)
}
