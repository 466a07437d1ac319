package app_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/intervox/intervox/internal/app"
	"github.com/intervox/intervox/internal/config"
	"github.com/intervox/intervox/internal/report"
	llmmock "github.com/intervox/intervox/pkg/provider/llm/mock"
	voicemock "github.com/intervox/intervox/pkg/voice/mock"
)

// recordingStore captures saved reports in memory.
type recordingStore struct {
	mu    sync.Mutex
	saved []*report.SessionReport
}

func (s *recordingStore) Save(_ context.Context, rep *report.SessionReport) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, rep)
	return rep.InterviewID, nil
}

func (s *recordingStore) reports() []*report.SessionReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*report.SessionReport, len(s.saved))
	copy(out, s.saved)
	return out
}

// testConfig returns a minimal one-question config for fast sessions.
func testConfig() *config.Config {
	zero := 0
	return &config.Config{
		Server: config.ServerConfig{
			ListenAddr: "127.0.0.1:0",
			LogLevel:   config.LogInfo,
		},
		Interview: config.InterviewConfig{
			Category:     "behavioral",
			NumQuestions: 1,
			MaxAttempts:  2,
			MaxFollowUps: &zero,
			GraceDelay:   "1ms",
		},
	}
}

// passingAnswer clears the quality bar: specific language, no fillers, and
// more than eighty words.
const passingAnswer = "I led the incident response when our payment queue backed up " +
	"and specifically I implemented a circuit breaker that resulted in a forty percent " +
	"drop in timeout errors. " +
	"The rollout covered three regions and we measured error budgets before and after each stage to confirm the improvement held. " +
	"The rollout covered three regions and we measured error budgets before and after each stage to confirm the improvement held. " +
	"The rollout covered three regions and we measured error budgets before and after each stage to confirm the improvement held."

func TestNew_WithInjectedStore(t *testing.T) {
	t.Parallel()

	store := &recordingStore{}
	application, err := app.New(
		context.Background(),
		testConfig(),
		&app.Providers{LLM: &llmmock.Provider{}},
		app.WithStore(store),
	)
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}
	if application == nil {
		t.Fatal("New() returned nil app")
	}
}

func TestNew_FileStoreFromConfig(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Report.Dir = t.TempDir()

	application, err := app.New(context.Background(), cfg, &app.Providers{})
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}
	if application == nil {
		t.Fatal("New() returned nil app")
	}
}

func TestStartSession_RunsToCompletion(t *testing.T) {
	t.Parallel()

	store := &recordingStore{}
	application, err := app.New(
		context.Background(),
		testConfig(),
		&app.Providers{LLM: &llmmock.Provider{}},
		app.WithStore(store),
	)
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	rt := voicemock.New()
	done := make(chan error, 1)
	go func() { done <- application.StartSession(ctx, "cand-42", rt) }()

	// Wait for the greeting before answering.
	deadline := time.After(2 * time.Second)
	for len(rt.Spoken()) == 0 {
		select {
		case <-deadline:
			t.Fatal("no greeting spoken")
		case <-time.After(5 * time.Millisecond):
		}
	}
	rt.Commit(passingAnswer, time.Now())

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("StartSession returned error: %v", err)
		}
	case <-time.After(4 * time.Second):
		t.Fatal("session did not complete")
	}

	if !rt.HasEnded() {
		t.Error("voice transport was not ended")
	}
	saved := store.reports()
	if len(saved) != 1 {
		t.Fatalf("saved reports = %d, want 1", len(saved))
	}
	rep := saved[0]
	if rep.CandidateID != "cand-42" {
		t.Errorf("CandidateID = %q, want %q", rep.CandidateID, "cand-42")
	}
	if rep.Summary.QuestionsPassed != 1 {
		t.Errorf("QuestionsPassed = %d, want 1", rep.Summary.QuestionsPassed)
	}
	if len(rt.PublishedPayloads()) == 0 {
		t.Error("no turn metrics published to the transport")
	}
}

func TestStartSession_IndependentSessions(t *testing.T) {
	t.Parallel()

	store := &recordingStore{}
	application, err := app.New(
		context.Background(),
		testConfig(),
		&app.Providers{},
		app.WithStore(store),
	)
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	for _, candidate := range []string{"cand-a", "cand-b"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rt := voicemock.New()
			done := make(chan error, 1)
			go func() { done <- application.StartSession(ctx, candidate, rt) }()
			for len(rt.Spoken()) == 0 && ctx.Err() == nil {
				time.Sleep(5 * time.Millisecond)
			}
			rt.Commit(passingAnswer, time.Now())
			<-done
		}()
	}
	wg.Wait()

	if got := len(store.reports()); got != 2 {
		t.Errorf("saved reports = %d, want 2", got)
	}
}

// TestStartSession_SlowUploadDoesNotBlockOtherSessions pins down task
// ownership: one session's in-flight upload must not delay another session's
// completion.
func TestStartSession_SlowUploadDoesNotBlockOtherSessions(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	blocked := make(chan struct{})
	var blockOnce sync.Once
	collector := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if strings.Contains(string(body), "cand-b") {
			blockOnce.Do(func() { close(blocked) })
			<-release
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer collector.Close()

	store := &recordingStore{}
	application, err := app.New(
		context.Background(),
		testConfig(),
		&app.Providers{},
		app.WithStore(store),
		app.WithUploader(report.NewUploader(report.UploaderConfig{
			Endpoint: collector.URL,
			Secret:   "test-secret",
		})),
	)
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	runSession := func(candidate string) chan error {
		done := make(chan error, 1)
		rt := voicemock.New()
		go func() { done <- application.StartSession(ctx, candidate, rt) }()
		go func() {
			for len(rt.Spoken()) == 0 && ctx.Err() == nil {
				time.Sleep(5 * time.Millisecond)
			}
			rt.Commit(passingAnswer, time.Now())
		}()
		return done
	}

	doneB := runSession("cand-b")
	select {
	case <-blocked:
	case <-time.After(5 * time.Second):
		t.Fatal("session B's upload never reached the collector")
	}

	doneA := runSession("cand-a")
	select {
	case err := <-doneA:
		if err != nil {
			t.Fatalf("session A returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("session A did not complete while session B's upload was in flight")
	}

	select {
	case <-doneB:
		t.Fatal("session B completed while its upload was still blocked")
	default:
	}

	close(release)
	select {
	case err := <-doneB:
		if err != nil {
			t.Fatalf("session B returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("session B did not complete after the upload was released")
	}
}
