// Package session runs one interview session end to end: it owns the voice
// transport, serializes incoming utterances into the turn controller, and
// enforces the session wall-clock cap.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/intervox/intervox/internal/interview"
	"github.com/intervox/intervox/internal/observe"
	"github.com/intervox/intervox/internal/resilience"
	"github.com/intervox/intervox/pkg/voice"
)

// DefaultSessionCap is the wall-clock limit on a session. Exceeding it
// forces an immediate finalize regardless of interview progress.
const DefaultSessionCap = 2 * time.Hour

// Worker drives a single interview session. All turn handling happens on the
// goroutine that calls [Worker.Run]; that single loop is what guarantees
// utterances are processed one at a time, in arrival order.
type Worker struct {
	controller *interview.Controller
	runtime    voice.Runtime
	retry      *resilience.Retryer
	tasks      *errgroup.Group
	cap        time.Duration
	metrics    *observe.Metrics
	log        *slog.Logger
}

// WorkerConfig configures a [Worker]. Controller and Runtime are required.
type WorkerConfig struct {
	Controller *interview.Controller
	Runtime    voice.Runtime

	// Retry wraps speech output. Defaults to the package retry defaults.
	Retry *resilience.Retryer

	// Tasks tracks background work started during the session (metric
	// publishes, report upload). Run waits for it before returning.
	Tasks *errgroup.Group

	// SessionCap overrides DefaultSessionCap. Negative disables the cap.
	SessionCap time.Duration

	Metrics *observe.Metrics
	Logger  *slog.Logger
}

// NewWorker builds a Worker from cfg.
func NewWorker(cfg WorkerConfig) *Worker {
	if cfg.Retry == nil {
		cfg.Retry = resilience.NewRetryer(resilience.RetryerConfig{Name: "speech"})
	}
	if cfg.Tasks == nil {
		cfg.Tasks = &errgroup.Group{}
	}
	if cfg.SessionCap == 0 {
		cfg.SessionCap = DefaultSessionCap
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Worker{
		controller: cfg.Controller,
		runtime:    cfg.Runtime,
		retry:      cfg.Retry,
		tasks:      cfg.Tasks,
		cap:        cfg.SessionCap,
		metrics:    cfg.Metrics,
		log:        cfg.Logger,
	}
}

// Run conducts the interview until it ends, the transport disconnects, the
// session cap fires, or ctx is cancelled. It always finalizes the session
// before returning and waits for background tasks to drain.
func (w *Worker) Run(ctx context.Context) error {
	st := w.controller.State()
	w.log.Info("session starting",
		"candidate", st.CandidateID,
		"category", st.Config.Category,
		"questions", len(st.Questions))

	if w.metrics != nil {
		w.metrics.ActiveSessions.Add(ctx, 1)
		defer w.metrics.ActiveSessions.Add(context.Background(), -1)
	}

	w.speak(ctx, greeting(st))

	var capC <-chan time.Time
	if w.cap > 0 {
		capTimer := time.NewTimer(w.cap)
		defer capTimer.Stop()
		capC = capTimer.C
	}

loop:
	for {
		select {
		case <-ctx.Done():
			w.forceEnd("shutdown requested")
			break loop

		case <-capC:
			w.forceEnd("session cap reached")
			break loop

		case utt, ok := <-w.runtime.Utterances():
			if !ok {
				w.forceEnd("voice transport closed")
				break loop
			}
			if w.handleUtterance(ctx, utt) {
				break loop
			}
		}
	}

	if err := w.tasks.Wait(); err != nil {
		w.log.Warn("background task failed", "error", err)
	}
	w.log.Info("session worker stopped", "candidate", st.CandidateID)
	return nil
}

// handleUtterance feeds one utterance through the controller and speaks the
// resulting prompt. Returns true when the session just ended.
func (w *Worker) handleUtterance(ctx context.Context, utt voice.Utterance) bool {
	start := time.Now()
	turn := w.controller.HandleUtterance(ctx, utt.Text, utt.Timestamp)

	if w.metrics != nil {
		if turn.Action == interview.ActionIgnore {
			w.metrics.DroppedUtterances.Add(ctx, 1)
		} else {
			w.metrics.TurnDuration.Record(ctx, time.Since(start).Seconds())
		}
	}

	if turn.Prompt != "" {
		w.speak(ctx, turn.Prompt)
	}
	return turn.Action == interview.ActionEnd
}

// forceEnd finalizes the session with a bounded context so shutdown cannot
// hang on a slow store or provider.
func (w *Worker) forceEnd(reason string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	w.controller.ForceEnd(ctx, reason)
}

// speak delivers text through the voice transport with retries. Speech
// failure never stops the interview; the candidate side may still have
// received partial output and the transcript stays authoritative.
func (w *Worker) speak(ctx context.Context, text string) {
	err := w.retry.Do(ctx, "speak prompt", func(ctx context.Context) error {
		return w.runtime.Speak(ctx, text, false)
	})
	if err != nil {
		w.log.Warn("speech delivery failed", "error", err)
	}
}

// greeting composes the spoken session opening, ending with the first
// question.
func greeting(st *interview.State) string {
	return fmt.Sprintf(
		"Welcome to your %s interview with %s. I will ask %d questions; take your time with each answer. First question: %s",
		st.Config.RoleLabel, st.Config.OrganizationLabel, len(st.Questions), st.Questions[0])
}
