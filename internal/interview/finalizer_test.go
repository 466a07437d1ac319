package interview

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/intervox/intervox/internal/report"
	"github.com/intervox/intervox/pkg/provider/llm"
	llmmock "github.com/intervox/intervox/pkg/provider/llm/mock"
	voicemock "github.com/intervox/intervox/pkg/voice/mock"
)

// recordingStore captures saved reports.
type recordingStore struct {
	mu    sync.Mutex
	saved []*report.SessionReport
	err   error
}

func (s *recordingStore) Save(_ context.Context, rep *report.SessionReport) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	s.saved = append(s.saved, rep)
	return rep.InterviewID, nil
}

func (s *recordingStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.saved)
}

// recordingUploader captures uploaded reports.
type recordingUploader struct {
	mu       sync.Mutex
	uploaded []*report.SessionReport
}

func (u *recordingUploader) Upload(_ context.Context, rep *report.SessionReport) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.uploaded = append(u.uploaded, rep)
	return nil
}

func (u *recordingUploader) count() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.uploaded)
}

// finishedState builds an ended session with known aggregates: three
// questions, two passed, five attempts, one follow-up, seven fillers.
func finishedState() *State {
	st := newTestState(Config{MaxAttempts: 2, MaxFollowUps: 1}.Normalize())
	st.QuestionStates[0].Attempts = 1
	st.QuestionStates[0].Passed = true
	st.QuestionStates[0].Responses = []string{"answer one"}
	st.QuestionStates[0].Feedback = []string{"good length (score: 85/100)"}
	st.QuestionStates[0].FollowUpCount = 1
	st.QuestionStates[0].FollowUpResponses = []string{"follow-up answer"}
	st.QuestionStates[1].Attempts = 2
	st.QuestionStates[1].Responses = []string{"too short", "still short"}
	st.QuestionStates[1].Feedback = []string{"too short (score: 15/100)", "too short (score: 15/100)"}
	st.QuestionStates[2].Attempts = 2
	st.QuestionStates[2].Passed = true
	st.QuestionStates[2].Responses = []string{"first try", "second try"}
	st.QuestionStates[2].Feedback = []string{"lacks specifics (score: 35/100)", "concrete (score: 85/100)"}
	st.FillerTotal = 7
	st.CurrentIndex = len(st.Questions)
	st.Ended = true
	st.AppendHistory(HistoryEntry{Role: "candidate", Text: "answer one", Timestamp: st.StartedAt})
	return st
}

func TestFinalizerBuildsAndPersistsReport(t *testing.T) {
	store := &recordingStore{}
	up := &recordingUploader{}
	rt := voicemock.New()
	ended := time.Date(2026, 8, 26, 15, 4, 5, 0, time.UTC)

	f := NewFinalizer(FinalizerConfig{
		Store:      store,
		Uploader:   up,
		Runtime:    rt,
		GraceDelay: -1,
		Now:        func() time.Time { return ended },
	})

	st := finishedState()
	st.StartedAt = ended.Add(-10 * time.Minute)
	f.Finalize(context.Background(), st)

	if store.count() != 1 {
		t.Fatalf("saved reports = %d, want 1", store.count())
	}
	rep := store.saved[0]

	if want := "interview_cand-1_20260826T150405Z"; rep.InterviewID != want {
		t.Errorf("InterviewID = %q, want %q", rep.InterviewID, want)
	}
	if rep.Summary.TotalQuestions != 3 {
		t.Errorf("TotalQuestions = %d, want 3", rep.Summary.TotalQuestions)
	}
	if rep.Summary.QuestionsPassed != 2 {
		t.Errorf("QuestionsPassed = %d, want 2", rep.Summary.QuestionsPassed)
	}
	if rep.Summary.QuestionsFailed != 1 {
		t.Errorf("QuestionsFailed = %d, want 1", rep.Summary.QuestionsFailed)
	}
	if rep.Summary.TotalAttempts != 5 {
		t.Errorf("TotalAttempts = %d, want 5", rep.Summary.TotalAttempts)
	}
	if rep.Summary.TotalFollowUps != 1 {
		t.Errorf("TotalFollowUps = %d, want 1", rep.Summary.TotalFollowUps)
	}
	if rep.Summary.FillerWordsTotal != 7 {
		t.Errorf("FillerWordsTotal = %d, want 7", rep.Summary.FillerWordsTotal)
	}
	if want := 200.0 / 3.0; rep.Summary.PassRate < want-0.01 || rep.Summary.PassRate > want+0.01 {
		t.Errorf("PassRate = %.2f, want %.2f", rep.Summary.PassRate, want)
	}
	if rep.DurationSeconds != 600 {
		t.Errorf("DurationSeconds = %.0f, want 600", rep.DurationSeconds)
	}
	if rep.Narrative == "" {
		t.Error("Narrative is empty, want fallback text")
	}
	if len(rep.Conversation) != 1 {
		t.Errorf("Conversation entries = %d, want 1", len(rep.Conversation))
	}

	if up.count() != 1 {
		t.Errorf("uploads = %d, want 1", up.count())
	}
	spoken := rt.Spoken()
	if len(spoken) != 1 {
		t.Fatalf("spoken closing remarks = %d, want 1", len(spoken))
	}
	if !strings.Contains(spoken[0].Text, "2 of 3") {
		t.Errorf("closing remarks %q, want the pass count", spoken[0].Text)
	}
	if !rt.HasEnded() {
		t.Error("voice transport was not closed")
	}
}

func TestFinalizerRunsExactlyOnce(t *testing.T) {
	store := &recordingStore{}
	f := NewFinalizer(FinalizerConfig{Store: store, GraceDelay: -1})
	st := finishedState()

	f.Finalize(context.Background(), st)
	f.Finalize(context.Background(), st)

	if store.count() != 1 {
		t.Errorf("saved reports = %d, want 1 (duplicate trigger must be ignored)", store.count())
	}
}

func TestFinalizerNarrative(t *testing.T) {
	t.Run("uses model output", func(t *testing.T) {
		store := &recordingStore{}
		p := &llmmock.Provider{
			CompleteResponse: &llm.CompletionResponse{Content: "Strong answers overall; tighten the short ones."},
		}
		f := NewFinalizer(FinalizerConfig{Store: store, Narrator: p, GraceDelay: -1})
		f.Finalize(context.Background(), finishedState())

		if got := store.saved[0].Narrative; got != "Strong answers overall; tighten the short ones." {
			t.Errorf("Narrative = %q, want model output", got)
		}
		if p.CallCount() != 1 {
			t.Errorf("model calls = %d, want 1", p.CallCount())
		}
	})

	t.Run("falls back when model fails", func(t *testing.T) {
		store := &recordingStore{}
		p := &llmmock.Provider{CompleteErr: errors.New("backend down")}
		f := NewFinalizer(FinalizerConfig{Store: store, Narrator: p, GraceDelay: -1})
		f.Finalize(context.Background(), finishedState())

		got := store.saved[0].Narrative
		if got == "" {
			t.Fatal("Narrative is empty, want fallback")
		}
		if !strings.Contains(got, "2 of 3") {
			t.Errorf("fallback narrative = %q, want aggregates embedded", got)
		}
	})
}

func TestFinalizerPublishesSummaryEvent(t *testing.T) {
	store := &recordingStore{}
	rt := voicemock.New()
	p := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: strings.Repeat("Solid answers. ", 50)},
	}
	f := NewFinalizer(FinalizerConfig{Store: store, Narrator: p, Runtime: rt, GraceDelay: -1})

	f.Finalize(context.Background(), finishedState())

	payloads := rt.PublishedPayloads()
	if len(payloads) != 1 {
		t.Fatalf("published payloads = %d, want 1", len(payloads))
	}
	var event struct {
		Type       string         `json:"type"`
		Metrics    report.Summary `json:"metrics"`
		AIFeedback string         `json:"ai_feedback"`
	}
	if err := json.Unmarshal(payloads[0], &event); err != nil {
		t.Fatalf("summary event is not valid JSON: %v", err)
	}
	if event.Type != "agent.post_interview_summary" {
		t.Errorf("event type = %q, want agent.post_interview_summary", event.Type)
	}
	if event.Metrics.TotalQuestions != 3 || event.Metrics.QuestionsPassed != 2 {
		t.Errorf("event metrics = %+v, want 2 of 3 passed", event.Metrics)
	}
	if len(event.AIFeedback) == 0 || len(event.AIFeedback) > 500 {
		t.Errorf("ai_feedback length = %d, want 1..500", len(event.AIFeedback))
	}
}

func TestFinalizerSummaryEventWithoutRuntime(t *testing.T) {
	store := &recordingStore{}
	f := NewFinalizer(FinalizerConfig{Store: store, GraceDelay: -1})

	// Must not panic with no voice transport attached.
	f.Finalize(context.Background(), finishedState())
	if store.count() != 1 {
		t.Errorf("saved reports = %d, want 1", store.count())
	}
}

func TestFinalizerSurvivesStoreFailure(t *testing.T) {
	store := &recordingStore{err: errors.New("disk full")}
	rt := voicemock.New()
	f := NewFinalizer(FinalizerConfig{Store: store, Runtime: rt, GraceDelay: -1})

	// Must not panic and must still close the transport.
	f.Finalize(context.Background(), finishedState())
	if !rt.HasEnded() {
		t.Error("voice transport was not closed after store failure")
	}
}
