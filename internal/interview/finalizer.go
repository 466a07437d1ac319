package interview

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/intervox/intervox/internal/observe"
	"github.com/intervox/intervox/internal/report"
	"github.com/intervox/intervox/internal/resilience"
	"github.com/intervox/intervox/pkg/provider/llm"
	"github.com/intervox/intervox/pkg/voice"
)

// Uploader delivers a finished report to an external collector.
type Uploader interface {
	Upload(ctx context.Context, rep *report.SessionReport) error
}

// DefaultGraceDelay is how long the finalizer waits after the closing
// remarks before tearing the voice transport down, so the last sentence is
// not cut off mid-word.
const DefaultGraceDelay = 3 * time.Second

// Finalizer runs the end-of-session sequence: aggregate the state into a
// report, synthesise narrative feedback, persist, hand the upload to the
// background, speak the closing remarks, and close the transport.
//
// Finalize runs at most once per Finalizer; the controller may trigger it
// from both the normal advance path and a forced end without double effects.
// Every failure inside finalization is logged and absorbed, never raised:
// a full report with a generic narrative still counts as a successful
// session end.
type Finalizer struct {
	mu   sync.Mutex
	done bool

	store    report.Store
	uploader Uploader
	narrator llm.Provider
	retry    *resilience.Retryer
	runtime  voice.Runtime
	tasks    TaskTracker
	metrics  *observe.Metrics
	grace    time.Duration
	now      func() time.Time
	log      *slog.Logger
}

// FinalizerConfig configures a [Finalizer]. Store is required; everything
// else degrades gracefully when nil.
type FinalizerConfig struct {
	Store    report.Store
	Uploader Uploader
	Narrator llm.Provider
	Retry    *resilience.Retryer
	Runtime  voice.Runtime
	Tasks    TaskTracker
	Metrics  *observe.Metrics
	// GraceDelay overrides DefaultGraceDelay. Negative disables the wait.
	GraceDelay time.Duration
	// Now overrides the clock, for tests.
	Now    func() time.Time
	Logger *slog.Logger
}

// NewFinalizer builds a Finalizer from cfg.
func NewFinalizer(cfg FinalizerConfig) *Finalizer {
	if cfg.Retry == nil {
		cfg.Retry = resilience.NewRetryer(resilience.RetryerConfig{Name: "finalizer"})
	}
	if cfg.GraceDelay == 0 {
		cfg.GraceDelay = DefaultGraceDelay
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Finalizer{
		store:    cfg.Store,
		uploader: cfg.Uploader,
		narrator: cfg.Narrator,
		retry:    cfg.Retry,
		runtime:  cfg.Runtime,
		tasks:    cfg.Tasks,
		metrics:  cfg.Metrics,
		grace:    cfg.GraceDelay,
		now:      cfg.Now,
		log:      cfg.Logger,
	}
}

// Finalize implements [SessionFinalizer]. Duplicate triggers log and return
// without side effects.
func (f *Finalizer) Finalize(ctx context.Context, st *State) {
	f.mu.Lock()
	if f.done {
		f.mu.Unlock()
		f.log.Warn("duplicate finalize trigger ignored", "candidate", st.CandidateID)
		return
	}
	f.done = true
	f.mu.Unlock()

	start := f.now()
	rep := f.buildReport(st, start)
	rep.Narrative = f.narrative(ctx, st, rep)

	if f.store != nil {
		key, err := f.store.Save(ctx, rep)
		if err != nil {
			f.log.Error("persist session report", "interview", rep.InterviewID, "error", err)
			f.recordDelivery(ctx, "store", "error")
		} else {
			f.log.Info("session report persisted", "interview", rep.InterviewID, "key", key)
			f.recordDelivery(ctx, "store", "ok")
		}
	}

	if f.uploader != nil {
		f.background(func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()
			if err := f.uploader.Upload(ctx, rep); err != nil {
				f.log.Error("upload session report", "interview", rep.InterviewID, "error", err)
				f.recordDelivery(ctx, "upload", "error")
				return nil
			}
			f.recordDelivery(ctx, "upload", "ok")
			return nil
		})
	}

	f.publishSummary(ctx, rep)
	f.sayGoodbye(ctx, st, rep)

	if f.metrics != nil {
		f.metrics.FinalizeDuration.Record(ctx, f.now().Sub(start).Seconds())
	}
	f.log.Info("session finalized",
		"candidate", st.CandidateID,
		"interview", rep.InterviewID,
		"questions_passed", rep.Summary.QuestionsPassed,
		"duration_seconds", rep.DurationSeconds)
}

// buildReport aggregates st into the durable report structure.
func (f *Finalizer) buildReport(st *State, endedAt time.Time) *report.SessionReport {
	summary := report.Summary{TotalQuestions: len(st.QuestionStates)}
	details := make([]report.QuestionDetail, 0, len(st.QuestionStates))
	for _, qs := range st.QuestionStates {
		if qs.Passed {
			summary.QuestionsPassed++
		} else {
			summary.QuestionsFailed++
		}
		summary.TotalAttempts += qs.Attempts
		summary.TotalFollowUps += qs.FollowUpCount
		details = append(details, report.QuestionDetail{
			Question:          qs.Question,
			Attempts:          qs.Attempts,
			Passed:            qs.Passed,
			Responses:         qs.Responses,
			FollowUpResponses: qs.FollowUpResponses,
			Feedback:          qs.Feedback,
		})
	}
	summary.FillerWordsTotal = st.FillerTotal
	if summary.TotalQuestions > 0 {
		summary.PassRate = float64(summary.QuestionsPassed) / float64(summary.TotalQuestions) * 100
	}

	conversation := make([]report.ConversationEntry, 0, len(st.History))
	for _, h := range st.History {
		entry := report.ConversationEntry{
			Role:          h.Role,
			Text:          h.Text,
			Timestamp:     h.Timestamp,
			QuestionIndex: h.QuestionIndex,
			Phase:         string(h.Phase),
		}
		if h.Metrics != nil {
			entry.Metrics = map[string]any{
				"confidence_score":      h.Metrics.ConfidenceScore,
				"professionalism_score": h.Metrics.ProfessionalismScore,
				"quality_score":         h.Metrics.QualityScore,
				"filler_count":          h.Metrics.FillerCountTurn,
			}
		}
		conversation = append(conversation, entry)
	}

	return &report.SessionReport{
		InterviewID: report.Key(st.CandidateID, endedAt),
		CandidateID: st.CandidateID,
		Config: report.ConfigEcho{
			Category:     string(st.Config.Category),
			NumQuestions: st.Config.NumQuestions,
			MaxAttempts:  st.Config.MaxAttempts,
			MaxFollowUps: st.Config.MaxFollowUps,
			Mode:         st.Config.Mode,
			Organization: st.Config.OrganizationLabel,
			Role:         st.Config.RoleLabel,
		},
		StartedAt:       st.StartedAt,
		EndedAt:         endedAt,
		DurationSeconds: endedAt.Sub(st.StartedAt).Seconds(),
		Questions:       details,
		Summary:         summary,
		Conversation:    conversation,
	}
}

const narrativeSystemPrompt = "You are an interview coach. Given a structured summary of a " +
	"finished interview, write three to five sentences of constructive spoken feedback for the " +
	"candidate: what went well, what to improve, and one concrete next step. Plain prose, " +
	"no lists, no numbers the summary does not contain."

// narrative asks the language model for closing feedback, falling back to a
// generic paragraph built from the aggregates when no model is configured or
// the call fails.
func (f *Finalizer) narrative(ctx context.Context, st *State, rep *report.SessionReport) string {
	fallback := fmt.Sprintf(
		"You completed %d of %d questions successfully with %d filler words overall. "+
			"Focus on concrete outcomes in your answers and keep practicing.",
		rep.Summary.QuestionsPassed, rep.Summary.TotalQuestions, rep.Summary.FillerWordsTotal)

	if f.narrator == nil {
		return fallback
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Role: %s at %s\n", st.Config.RoleLabel, st.Config.OrganizationLabel)
	fmt.Fprintf(&sb, "Questions passed: %d of %d\n", rep.Summary.QuestionsPassed, rep.Summary.TotalQuestions)
	fmt.Fprintf(&sb, "Total attempts: %d, filler words: %d\n", rep.Summary.TotalAttempts, rep.Summary.FillerWordsTotal)
	for i, q := range rep.Questions {
		fmt.Fprintf(&sb, "Q%d (%s): passed=%v, feedback=%s\n",
			i+1, q.Question, q.Passed, strings.Join(q.Feedback, " | "))
	}

	callStart := f.now()
	resp, err := resilience.DoValue(ctx, f.retry, "narrative synthesis", func(ctx context.Context) (*llm.CompletionResponse, error) {
		return f.narrator.Complete(ctx, llm.CompletionRequest{
			SystemPrompt: narrativeSystemPrompt,
			Messages:     []llm.Message{{Role: "user", Content: sb.String()}},
			Temperature:  0.6,
			MaxTokens:    300,
		})
	})
	if f.metrics != nil {
		f.metrics.RecordLLMCall(ctx, "narrative", f.now().Sub(callStart))
	}
	if err != nil {
		f.log.Warn("narrative synthesis failed, using fallback", "error", err)
		if f.metrics != nil {
			f.metrics.RecordProviderError(ctx, "narrative")
		}
		return fallback
	}
	text := strings.TrimSpace(resp.Content)
	if text == "" {
		return fallback
	}
	return text
}

// summaryEventType labels the end-of-session data-channel payload consumed
// by connected front-ends.
const summaryEventType = "agent.post_interview_summary"

// maxFeedbackBytes caps the narrative text carried in the summary event.
const maxFeedbackBytes = 500

// publishSummary pushes the aggregate results over the voice data channel so
// front-ends can render the outcome without polling the report store. Best
// effort: a failure is logged and never aborts finalization.
func (f *Finalizer) publishSummary(ctx context.Context, rep *report.SessionReport) {
	if f.runtime == nil {
		return
	}
	feedback := rep.Narrative
	if len(feedback) > maxFeedbackBytes {
		feedback = feedback[:maxFeedbackBytes]
	}
	payload, err := json.Marshal(struct {
		Type       string         `json:"type"`
		Metrics    report.Summary `json:"metrics"`
		AIFeedback string         `json:"ai_feedback"`
	}{Type: summaryEventType, Metrics: rep.Summary, AIFeedback: feedback})
	if err != nil {
		f.log.Warn("encode summary event", "interview", rep.InterviewID, "error", err)
		return
	}

	pubCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := f.runtime.PublishData(pubCtx, payload); err != nil {
		f.log.Warn("publish summary event", "interview", rep.InterviewID, "error", err)
	}
}

// sayGoodbye speaks the closing remarks, waits out the grace delay, and
// closes the voice transport. Speech failure does not skip the transport
// close.
func (f *Finalizer) sayGoodbye(ctx context.Context, st *State, rep *report.SessionReport) {
	if f.runtime == nil {
		return
	}
	closing := fmt.Sprintf("That concludes the interview. You answered %d of %d questions successfully. %s Thank you for your time.",
		rep.Summary.QuestionsPassed, rep.Summary.TotalQuestions, rep.Narrative)
	if err := f.runtime.Speak(ctx, closing, false); err != nil {
		f.log.Warn("speak closing remarks", "error", err)
	}

	if f.grace > 0 {
		timer := time.NewTimer(f.grace)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
		}
	}

	if err := f.runtime.End(ctx); err != nil {
		f.log.Warn("close voice transport", "error", err)
	}
}

func (f *Finalizer) recordDelivery(ctx context.Context, sink, status string) {
	if f.metrics != nil {
		f.metrics.RecordReportDelivery(ctx, sink, status)
	}
}

// background runs fn through the task tracker when present, inline otherwise.
func (f *Finalizer) background(fn func() error) {
	if f.tasks != nil {
		f.tasks.Go(fn)
		return
	}
	fn()
}
