package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"time"

	"github.com/intervox/intervox/internal/interview"
	"gopkg.in/yaml.v3"
)

// ValidLLMProviderNames lists known language-model provider names.
// Used by [Validate] to warn about unrecognised provider names.
var ValidLLMProviderNames = []string{
	"openai", "openrouter", "anthropic", "ollama", "gemini",
	"deepseek", "mistral", "groq", "llamacpp", "llamafile",
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values. Only settings
// that would break the server itself are hard errors; interview parameters
// are deliberately soft because they are normalized at session start and a
// typo there must never prevent interviews from running.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Provider name validation, warn for unknown names.
	if name := cfg.Providers.LLM.Name; name != "" && !slices.Contains(ValidLLMProviderNames, name) {
		slog.Warn("unknown LLM provider name, may be a typo or third-party provider",
			"name", name,
			"known", ValidLLMProviderNames,
		)
	}

	// Provider availability warnings
	if cfg.Providers.LLM.Name == "" {
		if cfg.Interview.AllowAdaptiveFollowUps {
			slog.Warn("interview.allow_adaptive_followups is set but no LLM provider is configured; the fixed probe bank will be used")
		}
		slog.Warn("no LLM provider configured; narrative feedback will use the built-in fallback text")
	}

	// Interview parameter warnings, normalized rather than rejected.
	if c := cfg.Interview.Category; c != "" && !interview.Category(c).IsValid() {
		slog.Warn("unknown interview category; the general question set will be used",
			"category", c)
	}
	if cfg.Interview.NumQuestions < 0 {
		slog.Warn("interview.num_questions is negative; the default will be used",
			"num_questions", cfg.Interview.NumQuestions)
	}
	if cfg.Interview.MaxAttempts < 0 {
		slog.Warn("interview.max_attempts is negative; the default will be used",
			"max_attempts", cfg.Interview.MaxAttempts)
	}
	warnDuration("interview.session_cap", cfg.Interview.SessionCap)
	warnDuration("interview.grace_delay", cfg.Interview.GraceDelay)

	// Report delivery
	if cfg.Report.Upload.URL != "" && cfg.Report.Upload.Secret == "" {
		slog.Warn("report.upload.url is set but report.upload.secret is empty; uploads will be skipped")
	}

	return errors.Join(errs...)
}

// warnDuration logs when a duration string is present but unparsable.
func warnDuration(field, value string) {
	if value == "" {
		return
	}
	if d, err := time.ParseDuration(value); err != nil || d <= 0 {
		slog.Warn("invalid duration; the default will be used", "field", field, "value", value)
	}
}
