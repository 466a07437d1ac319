package interview

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Action tells the session worker what kind of turn just happened and what
// the prompt in the returned [Turn] means.
type Action string

const (
	// ActionIgnore means the utterance was dropped by a guard; nothing to say.
	ActionIgnore Action = "ignore"

	// ActionRetry means the answer did not pass and the candidate gets
	// another attempt at the same question.
	ActionRetry Action = "retry"

	// ActionFollowUp means the prompt is a follow-up probe on the current
	// question.
	ActionFollowUp Action = "followup"

	// ActionAdvance means the prompt is the next main question.
	ActionAdvance Action = "advance"

	// ActionEnd means the session just ended and finalization has run.
	ActionEnd Action = "end"
)

// Turn is the outcome of handling one utterance. Prompt is the complete text
// the interviewer should speak next; empty for ignored and ended turns,
// where the finalizer owns the closing remarks.
type Turn struct {
	Action   Action
	Prompt   string
	Feedback string
	Metrics  *TurnMetrics
}

// TurnObserver receives the scored metrics of every accepted turn.
// Implementations must never block the turn loop for long and must not
// panic; the controller treats observation as best-effort.
type TurnObserver interface {
	ObserveTurn(ctx context.Context, m TurnMetrics)
}

// SessionFinalizer is invoked exactly once when the session ends.
type SessionFinalizer interface {
	Finalize(ctx context.Context, st *State)
}

// Controller owns one session's [State] and drives the turn state machine.
// It is not safe for concurrent use: the session worker serializes all calls
// on a single goroutine, which is also what enforces the one-utterance-at-a-
// time processing guarantee.
type Controller struct {
	state     *State
	scorer    *Scorer
	followUps FollowUpSource
	observer  TurnObserver
	finalizer SessionFinalizer
	log       *slog.Logger
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithFollowUpSource sets the follow-up probe source. Without one, passed
// answers advance straight to the next question.
func WithFollowUpSource(src FollowUpSource) ControllerOption {
	return func(c *Controller) { c.followUps = src }
}

// WithObserver sets the per-turn metrics observer.
func WithObserver(obs TurnObserver) ControllerOption {
	return func(c *Controller) { c.observer = obs }
}

// WithFinalizer sets the end-of-session finalizer.
func WithFinalizer(f SessionFinalizer) ControllerOption {
	return func(c *Controller) { c.finalizer = f }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(log *slog.Logger) ControllerOption {
	return func(c *Controller) { c.log = log }
}

// NewController wires a Controller over st. The scorer may be nil, in which
// case the default vocabulary is used.
func NewController(st *State, scorer *Scorer, opts ...ControllerOption) *Controller {
	if scorer == nil {
		scorer = NewScorer(Vocabulary{})
	}
	c := &Controller{state: st, scorer: scorer, log: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State exposes the underlying session state for the worker and finalizer.
func (c *Controller) State() *State { return c.state }

// HandleUtterance processes one finalized candidate utterance and returns
// what should happen next. Utterances arriving while the engine is not
// waiting for the candidate, after the session has ended, or after the last
// question are dropped without mutating any state.
func (c *Controller) HandleUtterance(ctx context.Context, text string, ts time.Time) Turn {
	st := c.state
	switch {
	case st.Ended:
		c.log.Debug("dropping utterance, session already ended", "candidate", st.CandidateID)
		return Turn{Action: ActionIgnore}
	case !st.WaitingForUser:
		c.log.Debug("dropping utterance, not awaiting input", "candidate", st.CandidateID)
		return Turn{Action: ActionIgnore}
	case st.CurrentIndex >= len(st.Questions):
		c.log.Debug("dropping utterance, no active question", "candidate", st.CandidateID)
		return Turn{Action: ActionIgnore}
	}

	st.WaitingForUser = false

	if st.CurrentPhase == PhaseFollowUp {
		return c.handleFollowUpAnswer(ctx, text, ts)
	}
	return c.handleMainAnswer(ctx, text, ts)
}

func (c *Controller) handleMainAnswer(ctx context.Context, text string, ts time.Time) Turn {
	st := c.state
	qs := st.Current()
	qs.Attempts++
	qs.Responses = append(qs.Responses, text)

	fillers, fillerMatches := c.scorer.DetectFillers(text)
	st.FillerTotal += fillers
	passed, feedback, quality := c.scorer.QualityVerdict(text, fillers)
	qs.Feedback = append(qs.Feedback, feedback)
	if passed {
		qs.Passed = true
	}

	metrics := c.buildMetrics(PhaseMain, qs.Attempts, quality, fillers, text)
	c.recordTurn(ctx, text, feedback, ts, metrics)

	c.log.Info("scored main answer",
		"candidate", st.CandidateID,
		"question", st.CurrentIndex+1,
		"attempt", qs.Attempts,
		"passed", passed,
		"quality", quality,
		"fillers", fillerMatches)

	switch {
	case passed && st.Config.MaxFollowUps > 0 && c.followUps != nil:
		probe, err := c.followUps.NextFollowUp(ctx, qs.Question, text)
		if err != nil {
			c.log.Warn("follow-up unavailable, advancing", "error", err)
			return c.advance(ctx)
		}
		st.CurrentPhase = PhaseFollowUp
		st.WaitingForUser = true
		c.recordPrompt(probe, ts)
		return Turn{Action: ActionFollowUp, Prompt: probe, Feedback: feedback, Metrics: &metrics}

	case passed || qs.Attempts >= st.Config.MaxAttempts:
		turn := c.advance(ctx)
		turn.Feedback = feedback
		turn.Metrics = &metrics
		return turn

	default:
		st.WaitingForUser = true
		prompt := fmt.Sprintf("Let's take another run at it: %s. Remember, %s", qs.Question, feedback)
		c.recordPrompt(prompt, ts)
		return Turn{Action: ActionRetry, Prompt: prompt, Feedback: feedback, Metrics: &metrics}
	}
}

func (c *Controller) handleFollowUpAnswer(ctx context.Context, text string, ts time.Time) Turn {
	st := c.state
	qs := st.Current()
	qs.FollowUpCount++
	qs.FollowUpResponses = append(qs.FollowUpResponses, text)

	fillers, _ := c.scorer.DetectFillers(text)
	st.FillerTotal += fillers
	_, feedback, quality := c.scorer.QualityVerdict(text, fillers)

	metrics := c.buildMetrics(PhaseFollowUp, qs.FollowUpCount, quality, fillers, text)
	c.recordTurn(ctx, text, "", ts, metrics)

	c.log.Info("recorded follow-up answer",
		"candidate", st.CandidateID,
		"question", st.CurrentIndex+1,
		"followup", qs.FollowUpCount)

	if qs.FollowUpCount >= st.Config.MaxFollowUps {
		turn := c.advance(ctx)
		turn.Metrics = &metrics
		return turn
	}

	probe, err := c.followUps.NextFollowUp(ctx, qs.Question, text)
	if err != nil {
		c.log.Warn("follow-up unavailable, advancing", "error", err)
		turn := c.advance(ctx)
		turn.Metrics = &metrics
		return turn
	}
	st.WaitingForUser = true
	c.recordPrompt(probe, ts)
	return Turn{Action: ActionFollowUp, Prompt: probe, Feedback: feedback, Metrics: &metrics}
}

// advance moves to the next question or, past the last one, ends the
// session. Ending flips Ended exactly once and hands the state to the
// finalizer; the finalizer carries its own idempotency guard on top.
func (c *Controller) advance(ctx context.Context) Turn {
	st := c.state
	st.CurrentIndex++
	st.CurrentPhase = PhaseMain

	if st.CurrentIndex >= len(st.Questions) {
		st.CurrentIndex = len(st.Questions)
		st.Ended = true
		st.WaitingForUser = false
		if c.finalizer != nil {
			c.finalizer.Finalize(ctx, st)
		}
		return Turn{Action: ActionEnd}
	}

	st.WaitingForUser = true
	prompt := fmt.Sprintf("Thank you. Next question: %s", st.Questions[st.CurrentIndex])
	c.recordPrompt(prompt, time.Now())
	return Turn{Action: ActionAdvance, Prompt: prompt}
}

// ForceEnd terminates the session immediately regardless of the current
// phase, used for the session wall-clock cap and transport loss. Safe to
// call on an already-ended session.
func (c *Controller) ForceEnd(ctx context.Context, reason string) {
	st := c.state
	if st.Ended {
		return
	}
	c.log.Warn("forcing session end", "candidate", st.CandidateID, "reason", reason)
	st.CurrentIndex = len(st.Questions)
	st.CurrentPhase = PhaseMain
	st.WaitingForUser = false
	st.Ended = true
	if c.finalizer != nil {
		c.finalizer.Finalize(ctx, st)
	}
}

func (c *Controller) buildMetrics(phase Phase, attempt, quality, fillers int, text string) TurnMetrics {
	st := c.state
	return TurnMetrics{
		QuestionNumber:       st.CurrentIndex + 1,
		TotalQuestions:       len(st.Questions),
		Phase:                phase,
		AttemptOrFollowUp:    attempt,
		ConfidenceScore:      c.scorer.ConfidenceScore(text),
		ProfessionalismScore: c.scorer.ProfessionalismScore(text, fillers),
		QualityScore:         quality,
		FillerCountTurn:      fillers,
		FillerCountTotal:     st.FillerTotal,
		Ended:                st.Ended,
	}
}

// recordTurn appends the candidate answer (with metrics) and any feedback to
// history, then notifies the observer.
func (c *Controller) recordTurn(ctx context.Context, text, feedback string, ts time.Time, m TurnMetrics) {
	st := c.state
	st.AppendHistory(HistoryEntry{
		Role:          "candidate",
		Text:          text,
		Timestamp:     ts,
		QuestionIndex: st.CurrentIndex,
		Phase:         m.Phase,
		Metrics:       &m,
	})
	if feedback != "" {
		st.AppendHistory(HistoryEntry{
			Role:          "interviewer",
			Text:          feedback,
			Timestamp:     ts,
			QuestionIndex: st.CurrentIndex,
			Phase:         m.Phase,
		})
	}
	if c.observer != nil {
		c.observer.ObserveTurn(ctx, m)
	}
}

func (c *Controller) recordPrompt(text string, ts time.Time) {
	st := c.state
	st.AppendHistory(HistoryEntry{
		Role:          "interviewer",
		Text:          text,
		Timestamp:     ts,
		QuestionIndex: min(st.CurrentIndex, len(st.Questions)-1),
		Phase:         st.CurrentPhase,
	})
}
