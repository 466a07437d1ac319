// Command intervoxd is the main entry point for the intervox interview server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/intervox/intervox/internal/app"
	"github.com/intervox/intervox/internal/config"
	"github.com/intervox/intervox/internal/observe"
	"github.com/intervox/intervox/pkg/provider/llm"
	"github.com/intervox/intervox/pkg/provider/llm/anyllm"
	oaillm "github.com/intervox/intervox/pkg/provider/llm/openai"
)

// openRouterBaseURL is the default endpoint for the "openrouter" provider,
// which speaks the OpenAI chat completion protocol.
const openRouterBaseURL = "https://openrouter.ai/api/v1"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	console := flag.Bool("console", false, "run one interview session over stdin/stdout and exit")
	candidate := flag.String("candidate", "candidate", "candidate identifier for the console session")
	flag.Parse()

	// ── Environment overlay ────────────────────────────────────────────────────
	// Credentials live in the environment, optionally seeded from a .env file.
	// A missing .env is fine.
	_ = godotenv.Load()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "intervoxd: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "intervoxd: %v\n", err)
		}
		return 1
	}
	applyEnvCredentials(cfg)

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("intervoxd starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(context.Background(), "intervox")
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg)

	application, err := app.New(ctx, cfg, providers)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	// ── Console session (optional) ────────────────────────────────────────────
	// Runs one full interview over stdin/stdout, then triggers shutdown.
	if *console {
		go func() {
			rt := newConsoleRuntime(os.Stdin, os.Stdout)
			if err := application.StartSession(ctx, *candidate, rt); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("console session error", "err", err)
			}
			stop()
		}()
	}

	slog.Info("server ready — press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping…")

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	if err := otelShutdown(shutdownCtx); err != nil {
		slog.Warn("telemetry shutdown error", "err", err)
	}
	slog.Info("goodbye")
	return 0
}

// ─── Provider wiring ──────────────────────────────────────────────────────────

// builtinLLMProviders lists the language-model backends that ship with
// intervoxd. Used for startup logging.
var builtinLLMProviders = []string{
	"openai", "openrouter", "anthropic", "ollama", "gemini",
	"deepseek", "mistral", "groq", "llamacpp", "llamafile",
}

// registerBuiltinProviders wires all built-in provider factories into reg.
func registerBuiltinProviders(reg *config.Registry) {
	// openai, anthropic, gemini, deepseek, mistral, groq, llamacpp, llamafile
	// all share the same pattern: optional APIKey + optional BaseURL.
	for _, providerName := range []string{
		"openai", "anthropic", "gemini",
		"deepseek", "mistral", "groq", "llamacpp", "llamafile",
	} {
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	// ollama is a local server; it uses BaseURL for the address, not an API key.
	reg.RegisterLLM("ollama", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.New("ollama", entry.Model, opts...)
	})

	// openrouter exposes many models behind the OpenAI wire protocol, so it
	// goes through the OpenAI client with a different base URL.
	reg.RegisterLLM("openrouter", func(entry config.ProviderEntry) (llm.Provider, error) {
		baseURL := entry.BaseURL
		if baseURL == "" {
			baseURL = openRouterBaseURL
		}
		return oaillm.New(entry.APIKey, entry.Model, oaillm.WithBaseURL(baseURL))
	})

	for _, name := range builtinLLMProviders {
		slog.Debug("registered provider", "kind", "llm", "name", name)
	}
}

// buildProviders instantiates the providers named in cfg using the registry.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{}

	if name := cfg.Providers.LLM.Name; name != "" {
		p, err := reg.CreateLLM(cfg.Providers.LLM)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			slog.Warn("unknown llm provider — narrative and adaptive features disabled", "name", name)
		} else if err != nil {
			return nil, fmt.Errorf("create llm provider %q: %w", name, err)
		} else {
			ps.LLM = p
			slog.Info("provider created", "kind", "llm", "name", name)
		}
	}

	return ps, nil
}

// applyEnvCredentials fills credential fields left empty in the YAML from
// the environment, so keys never need to live in the config file.
func applyEnvCredentials(cfg *config.Config) {
	if cfg.Providers.LLM.APIKey == "" {
		cfg.Providers.LLM.APIKey = os.Getenv(apiKeyEnvVar(cfg.Providers.LLM.Name))
	}
	if cfg.Report.Upload.Secret == "" {
		cfg.Report.Upload.Secret = os.Getenv("INTERVOX_UPLOAD_SECRET")
	}
	if cfg.Report.PostgresDSN == "" {
		cfg.Report.PostgresDSN = os.Getenv("INTERVOX_POSTGRES_DSN")
	}
}

// apiKeyEnvVar maps a provider name to its conventional API key variable,
// e.g. "openai" to OPENAI_API_KEY.
func apiKeyEnvVar(providerName string) string {
	if providerName == "" {
		return ""
	}
	return strings.ToUpper(strings.ReplaceAll(providerName, "-", "_")) + "_API_KEY"
}

// ─── Startup summary ──────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	engineCfg := cfg.Interview.ToEngine()

	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║        intervox — startup summary     ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printField("LLM", providerLabel(cfg.Providers.LLM.Name, cfg.Providers.LLM.Model))
	printField("Category", string(engineCfg.Category))
	printField("Questions", fmt.Sprintf("%d", engineCfg.NumQuestions))
	if cfg.Report.PostgresDSN != "" {
		printField("Report store", "postgres")
	} else {
		printField("Report store", "file")
	}
	if cfg.Report.Upload.URL != "" {
		printField("Report upload", "enabled")
	} else {
		printField("Report upload", "(disabled)")
	}
	if cfg.Server.ListenAddr != "" {
		printField("Listen addr", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func providerLabel(name, model string) string {
	if name == "" {
		return "(not configured)"
	}
	if model != "" {
		return name + " / " + model
	}
	return name
}

func printField(label, value string) {
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-15s : %-19s ║\n", label, value)
}

// ─── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
