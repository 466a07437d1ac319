// Package app wires all intervox subsystems into a running server.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves HTTP and blocks until the context is cancelled,
// and Shutdown tears everything down in order.
//
// For testing, inject mock implementations via functional options
// (WithStore, WithUploader). When an option is not provided, New creates
// real implementations from the config.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/intervox/intervox/internal/config"
	"github.com/intervox/intervox/internal/httpapi"
	"github.com/intervox/intervox/internal/interview"
	"github.com/intervox/intervox/internal/live"
	"github.com/intervox/intervox/internal/observe"
	"github.com/intervox/intervox/internal/report"
	"github.com/intervox/intervox/internal/session"
	"github.com/intervox/intervox/pkg/provider/llm"
	"github.com/intervox/intervox/pkg/voice"
)

// Providers holds one interface value per provider slot. Nil means the
// provider is not configured. Populated by main.go via the config registry.
type Providers struct {
	LLM llm.Provider
}

// App owns all subsystem lifetimes for the intervox server.
type App struct {
	cfg       *config.Config
	providers *Providers

	// Subsystems — initialised in New, torn down in Shutdown.
	metrics  *observe.Metrics
	store    report.Store
	uploader *report.Uploader
	hub      *live.Hub
	server   *http.Server

	// sessions tracks in-flight StartSession calls so Shutdown can wait for
	// them. Each session owns its own task group; there is no app-wide one.
	sessions sync.WaitGroup

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithStore injects a report store instead of creating one from config.
func WithStore(s report.Store) Option {
	return func(a *App) { a.store = s }
}

// WithUploader injects a report uploader instead of creating one from config.
func WithUploader(u *report.Uploader) Option {
	return func(a *App) { a.uploader = u }
}

// WithMetrics injects a metrics set instead of using the process default.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry). Use Option functions
// to inject test doubles for any subsystem.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}

	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	if err := a.initStore(ctx); err != nil {
		return nil, fmt.Errorf("app: init report store: %w", err)
	}
	a.initUploader()
	a.hub = live.NewHub(a.metrics)
	a.initHTTP()

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initStore sets up the PostgreSQL store when a DSN is configured, the JSON
// file store otherwise.
func (a *App) initStore(ctx context.Context) error {
	if a.store != nil {
		return nil // injected
	}

	if dsn := a.cfg.Report.PostgresDSN; dsn != "" {
		store, err := report.NewPostgresStore(ctx, dsn)
		if err != nil {
			return err
		}
		a.store = store
		a.closers = append(a.closers, func() error {
			store.Close()
			return nil
		})
		slog.Info("report store ready", "backend", "postgres")
		return nil
	}

	dir := a.cfg.Report.Dir
	store, err := report.NewFileStore(dir)
	if err != nil {
		return err
	}
	a.store = store
	slog.Info("report store ready", "backend", "file", "dir", dir)
	return nil
}

// initUploader creates the signed report uploader when a collector URL is
// configured.
func (a *App) initUploader() {
	if a.uploader != nil {
		return
	}
	upload := a.cfg.Report.Upload
	if upload.URL == "" {
		return
	}
	a.uploader = report.NewUploader(report.UploaderConfig{
		Endpoint: upload.URL,
		Secret:   upload.Secret,
	})
	slog.Info("report uploader ready", "endpoint", upload.URL)
}

// initHTTP builds the HTTP surface: probes, summary API, Prometheus scrape
// endpoint, and the live metrics websocket.
func (a *App) initHTTP() {
	api := httpapi.New(httpapi.HandlerConfig{
		Checkers:   a.readinessCheckers(),
		Summarizer: a.providers.LLM,
		Reports:    a.reportLister(),
		Metrics:    a.metrics,
	})

	mux := http.NewServeMux()
	api.Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.Handle("GET /live/metrics", a.hub)

	a.server = &http.Server{
		Addr:              a.cfg.Server.ListenAddr,
		Handler:           observe.Middleware(a.metrics)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// reportLister exposes candidate report history over the API when the store
// supports it. The file store keeps no candidate index, so the route is only
// served with postgres.
func (a *App) reportLister() httpapi.ReportLister {
	if pg, ok := a.store.(*report.PostgresStore); ok {
		return pg
	}
	return nil
}

// readinessCheckers lists the dependency probes served under /readyz.
func (a *App) readinessCheckers() []httpapi.Checker {
	var checks []httpapi.Checker
	if pg, ok := a.store.(*report.PostgresStore); ok {
		checks = append(checks, httpapi.Checker{Name: "postgres", Check: pg.Ping})
	}
	return checks
}

// ─── Sessions ────────────────────────────────────────────────────────────────

// StartSession runs one complete interview over the given voice runtime and
// blocks until the session finalizes. Each call builds a fresh state machine
// and its own background task group, so concurrent sessions are independent:
// one session's in-flight upload never delays another session's completion.
func (a *App) StartSession(ctx context.Context, candidateID string, rt voice.Runtime) error {
	a.sessions.Add(1)
	defer a.sessions.Done()

	tasks := &errgroup.Group{}
	engineCfg := a.cfg.Interview.ToEngine()
	questions := interview.SelectQuestions(engineCfg.Category, engineCfg.NumQuestions)
	st := interview.NewState(candidateID, engineCfg, questions, time.Now())

	publisher := interview.NewPublisher(interview.PublisherConfig{
		Runtime: rt,
		Hub:     a.hub,
		Metrics: a.metrics,
		Tasks:   tasks,
	})

	finalizer := interview.NewFinalizer(interview.FinalizerConfig{
		Store:      a.store,
		Uploader:   a.uploaderOrNil(),
		Narrator:   a.providers.LLM,
		Runtime:    rt,
		Tasks:      tasks,
		Metrics:    a.metrics,
		GraceDelay: a.cfg.Interview.GraceDelayDuration(),
	})

	ctrlOpts := []interview.ControllerOption{
		interview.WithObserver(publisher),
		interview.WithFinalizer(finalizer),
		interview.WithFollowUpSource(a.followUpSource(engineCfg)),
	}
	ctrl := interview.NewController(st, nil, ctrlOpts...)

	worker := session.NewWorker(session.WorkerConfig{
		Controller: ctrl,
		Runtime:    rt,
		Tasks:      tasks,
		SessionCap: a.cfg.Interview.SessionCapDuration(),
		Metrics:    a.metrics,
	})
	return worker.Run(ctx)
}

// uploaderOrNil returns the uploader as the finalizer's interface type.
// A plain a.uploader assignment would yield a non-nil interface holding a
// nil pointer when uploads are disabled.
func (a *App) uploaderOrNil() interview.Uploader {
	if a.uploader == nil {
		return nil
	}
	return a.uploader
}

// followUpSource picks the follow-up generator for a session: adaptive when
// enabled and an LLM provider exists, the fixed probe bank otherwise.
func (a *App) followUpSource(engineCfg interview.Config) interview.FollowUpSource {
	if engineCfg.AllowAdaptiveFollowUps && a.providers.LLM != nil {
		return interview.NewAdaptiveFollowUps(a.providers.LLM, nil, a.metrics, engineCfg.RoleLabel)
	}
	return interview.NewFixedFollowUps(nil)
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves HTTP and blocks until ctx is cancelled or the listener fails.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", a.server.Addr)
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("app: http server: %w", err)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in order: stop accepting HTTP traffic,
// close live subscribers, wait for tracked background work, then run the
// remaining closers. It respects the context deadline.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		if err := a.server.Shutdown(ctx); err != nil {
			slog.Warn("http shutdown error", "err", err)
			shutdownErr = err
		}
		a.hub.Close()

		// Each StartSession waits for its own task group before returning,
		// so waiting for the sessions covers their background work too.
		waitDone := make(chan struct{})
		go func() {
			a.sessions.Wait()
			close(waitDone)
		}()
		select {
		case <-waitDone:
		case <-ctx.Done():
			slog.Warn("shutdown deadline exceeded waiting for active sessions")
			shutdownErr = ctx.Err()
		}

		for i, closer := range a.closers {
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
