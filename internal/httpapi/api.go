// Package httpapi serves the intervox HTTP surface: liveness and readiness
// probes, and the transcript summary endpoint used by dashboards after a
// session.
//
//   - GET  /healthz                  — liveness; always 200 while the process serves HTTP.
//   - GET  /readyz                   — readiness; 200 only when every dependency check passes.
//   - POST /api/summary              — summarise a raw transcript (heuristic or LLM-backed).
//   - GET  /api/reports/{candidate}  — recent session reports for a candidate (postgres only).
package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/intervox/intervox/internal/observe"
	"github.com/intervox/intervox/internal/report"
	"github.com/intervox/intervox/internal/resilience"
	"github.com/intervox/intervox/pkg/provider/llm"
)

// checkTimeout bounds a single readiness check.
const checkTimeout = 5 * time.Second

// Checker is a named dependency probe evaluated by /readyz. Check must
// return nil when the dependency is healthy and respect ctx cancellation.
type Checker struct {
	Name  string
	Check func(ctx context.Context) error
}

// ReportLister retrieves stored session reports for a candidate, newest
// first. Implemented by [report.PostgresStore].
type ReportLister interface {
	Recent(ctx context.Context, candidateID string, limit int) ([]report.SessionReport, error)
}

// Handler serves the intervox API routes. Construct with [New]; the checker
// list and summarizer are fixed afterwards, so the handler is safe for
// concurrent use.
type Handler struct {
	checkers   []Checker
	summarizer llm.Provider
	reports    ReportLister
	retry      *resilience.Retryer
	metrics    *observe.Metrics
	log        *slog.Logger
}

// HandlerConfig configures a [Handler].
type HandlerConfig struct {
	// Checkers are evaluated sequentially on each /readyz request.
	Checkers []Checker

	// Summarizer, when non-nil, backs /api/summary with a language model.
	// When nil (or when the model fails) the endpoint answers with the
	// lexical heuristics instead.
	Summarizer llm.Provider

	// Reports, when non-nil, backs GET /api/reports/{candidate}. The route
	// is not registered when nil (file store deployments).
	Reports ReportLister

	// Retry overrides the retry policy for summarizer calls.
	Retry *resilience.Retryer

	// Metrics defaults to [observe.DefaultMetrics].
	Metrics *observe.Metrics

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// New creates a [Handler] from cfg.
func New(cfg HandlerConfig) *Handler {
	if cfg.Retry == nil {
		cfg.Retry = resilience.NewRetryer(resilience.RetryerConfig{Name: "summary"})
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	checkers := make([]Checker, len(cfg.Checkers))
	copy(checkers, cfg.Checkers)
	return &Handler{
		checkers:   checkers,
		summarizer: cfg.Summarizer,
		reports:    cfg.Reports,
		retry:      cfg.Retry,
		metrics:    cfg.Metrics,
		log:        cfg.Logger,
	}
}

// Register adds the API routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.healthz)
	mux.HandleFunc("GET /readyz", h.readyz)
	mux.HandleFunc("POST /api/summary", h.summary)
	if h.reports != nil {
		mux.HandleFunc("GET /api/reports/{candidate}", h.candidateReports)
	}
}

// probeResult is the JSON response body for the probe endpoints.
type probeResult struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func (h *Handler) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, probeResult{Status: "ok"})
}

func (h *Handler) readyz(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string, len(h.checkers))
	status := http.StatusOK
	res := probeResult{Status: "ok", Checks: checks}

	for _, c := range h.checkers {
		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		err := c.Check(ctx)
		cancel()
		if err != nil {
			checks[c.Name] = "fail: " + err.Error()
			res.Status = "fail"
			status = http.StatusServiceUnavailable
		} else {
			checks[c.Name] = "ok"
		}
	}

	writeJSON(w, status, res)
}

// candidateReports handles GET /api/reports/{candidate}. The optional ?limit=
// query parameter caps the number of reports returned; the store applies its
// default when absent.
func (h *Handler) candidateReports(w http.ResponseWriter, r *http.Request) {
	candidate := r.PathValue("candidate")
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}

	reports, err := h.reports.Recent(r.Context(), candidate, limit)
	if err != nil {
		observe.Logger(r.Context()).Error("report lookup failed", "candidate", candidate, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "report lookup failed"})
		return
	}
	if reports == nil {
		reports = []report.SessionReport{}
	}
	writeJSON(w, http.StatusOK, reports)
}

// writeJSON encodes v as JSON and writes it with the given status code. On
// encoding failure it falls back to a plain-text 500 response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
