// Package config provides the configuration schema, loader, and provider
// registry for the intervox interview server.
package config

import (
	"time"

	"github.com/intervox/intervox/internal/interview"
)

// LogLevel controls log verbosity for the intervox server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Default durations applied when the corresponding fields are empty or
// unparsable.
const (
	DefaultSessionCap = 2 * time.Hour
	DefaultGraceDelay = 3 * time.Second
)

// Config is the root configuration structure for intervox.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Providers ProvidersConfig `yaml:"providers"`
	Interview InterviewConfig `yaml:"interview"`
	Report    ReportConfig    `yaml:"report"`
}

// ServerConfig holds network and logging settings for the intervox server.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// ProvidersConfig declares which language-model provider to use. The Name
// field selects a factory registered in the [Registry].
type ProvidersConfig struct {
	LLM ProviderEntry `yaml:"llm"`
}

// ProviderEntry is the common configuration block for an external provider.
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "openai",
	// "openrouter", "ollama").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "gpt-4o").
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by
	// the standard fields above.
	Options map[string]any `yaml:"options"`
}

// InterviewConfig holds the per-session interview parameters. Invalid values
// never fail the load: [InterviewConfig.ToEngine] silently replaces them with
// defaults so a bad config cannot break a candidate's session.
type InterviewConfig struct {
	// Category selects the question set: general, technical, behavioral,
	// leadership, or system-design.
	Category string `yaml:"category"`

	// NumQuestions is how many questions to ask. Default: 5.
	NumQuestions int `yaml:"num_questions"`

	// MaxAttempts is how many answers a candidate may give per question.
	// Default: 2.
	MaxAttempts int `yaml:"max_attempts"`

	// MaxFollowUps is how many follow-up probes follow a passed answer.
	// Zero disables follow-ups. Default: 1.
	MaxFollowUps *int `yaml:"max_followups"`

	// AllowAdaptiveFollowUps enables LLM-generated follow-ups instead of the
	// fixed probe bank. Requires a configured LLM provider.
	AllowAdaptiveFollowUps bool `yaml:"allow_adaptive_followups"`

	// Mode is an opaque display label echoed into the session report.
	Mode string `yaml:"mode"`

	// OrganizationLabel and RoleLabel appear in spoken prompts and reports.
	OrganizationLabel string `yaml:"organization_label"`
	RoleLabel         string `yaml:"role_label"`

	// SessionCap is the wall-clock limit on a session as a duration string
	// (e.g. "90m"). Exceeding it forces an immediate finalize. Default: "2h".
	SessionCap string `yaml:"session_cap"`

	// GraceDelay is how long to wait after the closing remarks before the
	// transport is torn down (e.g. "3s"). Default: "3s".
	GraceDelay string `yaml:"grace_delay"`
}

// ReportConfig controls where finished session reports go.
type ReportConfig struct {
	// Dir is the directory JSON reports are written to when no Postgres DSN
	// is configured. Default: "reports".
	Dir string `yaml:"dir"`

	// PostgresDSN, when set, stores reports in PostgreSQL instead of files.
	PostgresDSN string `yaml:"postgres_dsn"`

	// Upload configures delivery of reports to an external collector.
	Upload UploadConfig `yaml:"upload"`
}

// UploadConfig configures the signed report upload.
type UploadConfig struct {
	// URL is the collector endpoint reports are POSTed to. Empty disables
	// uploads.
	URL string `yaml:"url"`

	// Secret is the shared HMAC-SHA256 key used to sign request bodies.
	// Empty skips uploads with a warning rather than sending unsigned data.
	Secret string `yaml:"secret"`
}

// ToEngine converts the raw YAML values into the engine's normalized session
// parameters.
func (c InterviewConfig) ToEngine() interview.Config {
	maxFollowUps := interview.DefaultMaxFollowUps
	if c.MaxFollowUps != nil {
		maxFollowUps = *c.MaxFollowUps
	}
	cfg := interview.Config{
		Category:               interview.Category(c.Category),
		NumQuestions:           c.NumQuestions,
		MaxAttempts:            c.MaxAttempts,
		MaxFollowUps:           maxFollowUps,
		AllowAdaptiveFollowUps: c.AllowAdaptiveFollowUps,
		Mode:                   c.Mode,
		OrganizationLabel:      c.OrganizationLabel,
		RoleLabel:              c.RoleLabel,
	}
	return cfg.Normalize()
}

// SessionCapDuration parses SessionCap, falling back to the default on empty
// or unparsable input.
func (c InterviewConfig) SessionCapDuration() time.Duration {
	return parseDuration(c.SessionCap, DefaultSessionCap)
}

// GraceDelayDuration parses GraceDelay, falling back to the default on empty
// or unparsable input.
func (c InterviewConfig) GraceDelayDuration() time.Duration {
	return parseDuration(c.GraceDelay, DefaultGraceDelay)
}

func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
