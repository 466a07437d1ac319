package config

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/intervox/intervox/internal/interview"
	"github.com/intervox/intervox/pkg/provider/llm"
	llmmock "github.com/intervox/intervox/pkg/provider/llm/mock"
)

const fullConfig = `
server:
  listen_addr: ":8080"
  log_level: debug
providers:
  llm:
    name: openrouter
    api_key: sk-test
    base_url: https://openrouter.ai/api/v1
    model: openai/gpt-4o-mini
interview:
  category: technical
  num_questions: 3
  max_attempts: 2
  max_followups: 0
  allow_adaptive_followups: true
  mode: screening
  organization_label: Acme
  role_label: Backend Engineer
  session_cap: 90m
  grace_delay: 5s
report:
  dir: /var/lib/intervox/reports
  postgres_dsn: postgres://localhost/intervox
  upload:
    url: https://collector.example.com/reports
    secret: topsecret
`

func TestLoadFromReader(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader(fullConfig))
	if err != nil {
		t.Fatalf("LoadFromReader() error = %v", err)
	}

	if cfg.Server.ListenAddr != ":8080" {
		t.Errorf("ListenAddr = %q, want %q", cfg.Server.ListenAddr, ":8080")
	}
	if cfg.Server.LogLevel != LogDebug {
		t.Errorf("LogLevel = %q, want %q", cfg.Server.LogLevel, LogDebug)
	}
	if cfg.Providers.LLM.Name != "openrouter" {
		t.Errorf("LLM.Name = %q, want %q", cfg.Providers.LLM.Name, "openrouter")
	}
	if cfg.Report.PostgresDSN == "" {
		t.Error("PostgresDSN is empty")
	}
	if cfg.Report.Upload.Secret != "topsecret" {
		t.Errorf("Upload.Secret = %q, want %q", cfg.Report.Upload.Secret, "topsecret")
	}

	eng := cfg.Interview.ToEngine()
	if eng.Category != interview.CategoryTechnical {
		t.Errorf("Category = %q, want %q", eng.Category, interview.CategoryTechnical)
	}
	if eng.NumQuestions != 3 {
		t.Errorf("NumQuestions = %d, want 3", eng.NumQuestions)
	}
	if eng.MaxFollowUps != 0 {
		t.Errorf("MaxFollowUps = %d, want 0 (explicit zero must disable follow-ups)", eng.MaxFollowUps)
	}
	if got := cfg.Interview.SessionCapDuration(); got != 90*time.Minute {
		t.Errorf("SessionCapDuration() = %v, want 90m", got)
	}
	if got := cfg.Interview.GraceDelayDuration(); got != 5*time.Second {
		t.Errorf("GraceDelayDuration() = %v, want 5s", got)
	}
}

func TestLoadFromReaderRejectsUnknownFields(t *testing.T) {
	_, err := LoadFromReader(strings.NewReader("server:\n  listen_adr: ':8080'\n"))
	if err == nil {
		t.Fatal("expected error for unknown field, got nil")
	}
}

func TestLoadFromReaderRejectsInvalidLogLevel(t *testing.T) {
	_, err := LoadFromReader(strings.NewReader("server:\n  log_level: verbose\n"))
	if err == nil {
		t.Fatal("expected error for invalid log level, got nil")
	}
}

func TestInterviewDefaultsAreSoft(t *testing.T) {
	// Bad interview values load fine and normalize at session start.
	cfg, err := LoadFromReader(strings.NewReader(`
interview:
  category: astrology
  num_questions: -4
  max_attempts: 0
  session_cap: soon
`))
	if err != nil {
		t.Fatalf("LoadFromReader() error = %v", err)
	}

	eng := cfg.Interview.ToEngine()
	if eng.NumQuestions != interview.DefaultNumQuestions {
		t.Errorf("NumQuestions = %d, want default %d", eng.NumQuestions, interview.DefaultNumQuestions)
	}
	if eng.MaxAttempts != interview.DefaultMaxAttempts {
		t.Errorf("MaxAttempts = %d, want default %d", eng.MaxAttempts, interview.DefaultMaxAttempts)
	}
	if eng.MaxFollowUps != interview.DefaultMaxFollowUps {
		t.Errorf("MaxFollowUps = %d, want default %d", eng.MaxFollowUps, interview.DefaultMaxFollowUps)
	}
	if got := cfg.Interview.SessionCapDuration(); got != DefaultSessionCap {
		t.Errorf("SessionCapDuration() = %v, want default %v", got, DefaultSessionCap)
	}
	if got := cfg.Interview.GraceDelayDuration(); got != DefaultGraceDelay {
		t.Errorf("GraceDelayDuration() = %v, want default %v", got, DefaultGraceDelay)
	}
	if len(interview.SelectQuestions(eng.Category, eng.NumQuestions)) == 0 {
		t.Error("unknown category produced no questions")
	}
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	reg.RegisterLLM("mock", func(entry ProviderEntry) (llm.Provider, error) {
		return &llmmock.Provider{}, nil
	})

	if _, err := reg.CreateLLM(ProviderEntry{Name: "mock"}); err != nil {
		t.Errorf("CreateLLM(mock) error = %v", err)
	}

	_, err := reg.CreateLLM(ProviderEntry{Name: "missing"})
	if !errors.Is(err, ErrProviderNotRegistered) {
		t.Errorf("CreateLLM(missing) error = %v, want ErrProviderNotRegistered", err)
	}
}
