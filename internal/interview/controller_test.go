package interview

import (
	"context"
	"errors"
	"testing"
	"time"
)

// recordingFinalizer counts Finalize invocations.
type recordingFinalizer struct {
	calls int
	last  *State
}

func (f *recordingFinalizer) Finalize(_ context.Context, st *State) {
	f.calls++
	f.last = st
}

// failingFollowUps always reports that no probe is available.
type failingFollowUps struct{}

func (failingFollowUps) NextFollowUp(context.Context, string, string) (string, error) {
	return "", errors.New("provider unavailable")
}

// recordingObserver captures every observed turn.
type recordingObserver struct {
	turns []TurnMetrics
}

func (o *recordingObserver) ObserveTurn(_ context.Context, m TurnMetrics) {
	o.turns = append(o.turns, m)
}

func newTestState(cfg Config, questions ...string) *State {
	if len(questions) == 0 {
		questions = []string{"Tell me about a project.", "Describe a failure.", "What are your goals?"}
	}
	return NewState("cand-1", cfg.Normalize(), questions, time.Now())
}

const failingAnswer = "It went fine I suppose."

func TestControllerGuards(t *testing.T) {
	ctx := context.Background()

	t.Run("drops when not waiting for user", func(t *testing.T) {
		st := newTestState(Config{MaxFollowUps: 0})
		st.WaitingForUser = false
		c := NewController(st, nil)
		turn := c.HandleUtterance(ctx, longSpecificAnswer, time.Now())
		if turn.Action != ActionIgnore {
			t.Errorf("Action = %v, want %v", turn.Action, ActionIgnore)
		}
		if got := st.QuestionStates[0].Attempts; got != 0 {
			t.Errorf("Attempts = %d, want 0 (state must not change)", got)
		}
		if len(st.History) != 0 {
			t.Errorf("history length = %d, want 0", len(st.History))
		}
	})

	t.Run("drops after session ended", func(t *testing.T) {
		st := newTestState(Config{MaxFollowUps: 0})
		st.Ended = true
		st.WaitingForUser = true
		c := NewController(st, nil)
		if turn := c.HandleUtterance(ctx, longSpecificAnswer, time.Now()); turn.Action != ActionIgnore {
			t.Errorf("Action = %v, want %v", turn.Action, ActionIgnore)
		}
	})

	t.Run("drops past the last question", func(t *testing.T) {
		st := newTestState(Config{MaxFollowUps: 0})
		st.CurrentIndex = len(st.Questions)
		st.WaitingForUser = true
		c := NewController(st, nil)
		if turn := c.HandleUtterance(ctx, longSpecificAnswer, time.Now()); turn.Action != ActionIgnore {
			t.Errorf("Action = %v, want %v", turn.Action, ActionIgnore)
		}
	})
}

// TestControllerFullSession drives a three-question interview: first question
// passes immediately, second fails both attempts, third fails once then
// passes. Five attempts total, two questions passed.
func TestControllerFullSession(t *testing.T) {
	ctx := context.Background()
	fin := &recordingFinalizer{}
	obs := &recordingObserver{}
	st := newTestState(Config{MaxAttempts: 2, MaxFollowUps: 0})
	c := NewController(st, nil, WithFinalizer(fin), WithObserver(obs))

	steps := []struct {
		answer     string
		wantAction Action
	}{
		{longSpecificAnswer, ActionAdvance}, // Q1 pass
		{failingAnswer, ActionRetry},        // Q2 attempt 1 fails
		{failingAnswer, ActionAdvance},      // Q2 attempt 2 fails, move on
		{failingAnswer, ActionRetry},        // Q3 attempt 1 fails
		{longSpecificAnswer, ActionEnd},     // Q3 attempt 2 passes, session over
	}

	for i, step := range steps {
		turn := c.HandleUtterance(ctx, step.answer, time.Now())
		if turn.Action != step.wantAction {
			t.Fatalf("step %d: Action = %v, want %v", i, turn.Action, step.wantAction)
		}
	}

	if !st.Ended {
		t.Error("Ended = false, want true")
	}
	if st.CurrentIndex != len(st.Questions) {
		t.Errorf("CurrentIndex = %d, want %d", st.CurrentIndex, len(st.Questions))
	}
	if fin.calls != 1 {
		t.Errorf("finalizer calls = %d, want 1", fin.calls)
	}

	var attempts, passed int
	for _, qs := range st.QuestionStates {
		attempts += qs.Attempts
		if qs.Passed {
			passed++
		}
	}
	if attempts != 5 {
		t.Errorf("total attempts = %d, want 5", attempts)
	}
	if passed != 2 {
		t.Errorf("questions passed = %d, want 2", passed)
	}
	if len(obs.turns) != 5 {
		t.Errorf("observed turns = %d, want 5", len(obs.turns))
	}

	// Late utterance after the end changes nothing.
	if turn := c.HandleUtterance(ctx, longSpecificAnswer, time.Now()); turn.Action != ActionIgnore {
		t.Errorf("post-end Action = %v, want %v", turn.Action, ActionIgnore)
	}
	if fin.calls != 1 {
		t.Errorf("finalizer calls after late utterance = %d, want 1", fin.calls)
	}
}

func TestControllerFollowUpFlow(t *testing.T) {
	ctx := context.Background()
	fin := &recordingFinalizer{}
	st := newTestState(Config{MaxAttempts: 2, MaxFollowUps: 1}, "Only question?")
	c := NewController(st, nil,
		WithFinalizer(fin),
		WithFollowUpSource(NewFixedFollowUps(nil)),
	)

	turn := c.HandleUtterance(ctx, longSpecificAnswer, time.Now())
	if turn.Action != ActionFollowUp {
		t.Fatalf("Action = %v, want %v", turn.Action, ActionFollowUp)
	}
	if turn.Prompt == "" {
		t.Error("follow-up prompt is empty")
	}
	if st.CurrentPhase != PhaseFollowUp {
		t.Errorf("CurrentPhase = %v, want %v", st.CurrentPhase, PhaseFollowUp)
	}
	if !st.WaitingForUser {
		t.Error("WaitingForUser = false, want true")
	}

	turn = c.HandleUtterance(ctx, longSpecificAnswer, time.Now())
	if turn.Action != ActionEnd {
		t.Fatalf("Action = %v, want %v", turn.Action, ActionEnd)
	}
	qs := st.QuestionStates[0]
	if qs.FollowUpCount != 1 {
		t.Errorf("FollowUpCount = %d, want 1", qs.FollowUpCount)
	}
	if len(qs.FollowUpResponses) != 1 {
		t.Errorf("FollowUpResponses = %d entries, want 1", len(qs.FollowUpResponses))
	}
	if fin.calls != 1 {
		t.Errorf("finalizer calls = %d, want 1", fin.calls)
	}
}

func TestControllerFollowUpFailureSkips(t *testing.T) {
	ctx := context.Background()
	st := newTestState(Config{MaxAttempts: 2, MaxFollowUps: 2}, "Q1?", "Q2?")
	c := NewController(st, nil, WithFollowUpSource(failingFollowUps{}))

	turn := c.HandleUtterance(ctx, longSpecificAnswer, time.Now())
	if turn.Action != ActionAdvance {
		t.Fatalf("Action = %v, want %v (follow-up failure must skip, not retry)", turn.Action, ActionAdvance)
	}
	if st.CurrentIndex != 1 {
		t.Errorf("CurrentIndex = %d, want 1", st.CurrentIndex)
	}
	if st.CurrentPhase != PhaseMain {
		t.Errorf("CurrentPhase = %v, want %v", st.CurrentPhase, PhaseMain)
	}
}

func TestControllerForceEnd(t *testing.T) {
	ctx := context.Background()
	fin := &recordingFinalizer{}
	st := newTestState(Config{MaxFollowUps: 0})
	c := NewController(st, nil, WithFinalizer(fin))

	c.ForceEnd(ctx, "session cap reached")
	if !st.Ended {
		t.Error("Ended = false, want true")
	}
	if st.CurrentIndex != len(st.Questions) {
		t.Errorf("CurrentIndex = %d, want %d", st.CurrentIndex, len(st.Questions))
	}
	if fin.calls != 1 {
		t.Errorf("finalizer calls = %d, want 1", fin.calls)
	}

	// Idempotent on an ended session.
	c.ForceEnd(ctx, "again")
	if fin.calls != 1 {
		t.Errorf("finalizer calls after second ForceEnd = %d, want 1", fin.calls)
	}
}

func TestControllerHistoryTimestampsNonDecreasing(t *testing.T) {
	ctx := context.Background()
	st := newTestState(Config{MaxAttempts: 3, MaxFollowUps: 0}, "Q1?")
	c := NewController(st, nil)

	base := time.Now()
	c.HandleUtterance(ctx, failingAnswer, base)
	// Delivered with an earlier timestamp than the previous turn.
	c.HandleUtterance(ctx, failingAnswer, base.Add(-time.Minute))

	for i := 1; i < len(st.History); i++ {
		if st.History[i].Timestamp.Before(st.History[i-1].Timestamp) {
			t.Fatalf("history[%d] timestamp %v precedes history[%d] %v",
				i, st.History[i].Timestamp, i-1, st.History[i-1].Timestamp)
		}
	}
}

func TestConfigNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   Config
		want Config
	}{
		{
			name: "zero value gets defaults",
			in:   Config{},
			want: Config{
				Category:          CategoryGeneral,
				NumQuestions:      DefaultNumQuestions,
				MaxAttempts:       DefaultMaxAttempts,
				MaxFollowUps:      0,
				OrganizationLabel: "the team",
				RoleLabel:         "this role",
			},
		},
		{
			name: "negative counts replaced",
			in:   Config{NumQuestions: -3, MaxAttempts: -1, MaxFollowUps: -2},
			want: Config{
				Category:          CategoryGeneral,
				NumQuestions:      DefaultNumQuestions,
				MaxAttempts:       DefaultMaxAttempts,
				MaxFollowUps:      DefaultMaxFollowUps,
				OrganizationLabel: "the team",
				RoleLabel:         "this role",
			},
		},
		{
			name: "explicit zero follow-ups preserved",
			in:   Config{Category: CategoryTechnical, NumQuestions: 3, MaxAttempts: 1, OrganizationLabel: "Acme", RoleLabel: "SRE"},
			want: Config{
				Category:          CategoryTechnical,
				NumQuestions:      3,
				MaxAttempts:       1,
				MaxFollowUps:      0,
				OrganizationLabel: "Acme",
				RoleLabel:         "SRE",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.in.Normalize(); got != tt.want {
				t.Errorf("Normalize() = %+v, want %+v", got, tt.want)
			}
		})
	}
}
