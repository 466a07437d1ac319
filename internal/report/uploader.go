package report

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/intervox/intervox/internal/resilience"
)

// Uploader delivers finished reports to an external collector over HTTP,
// signing each request body with HMAC-SHA256 so the collector can verify the
// sender. Transient failures (network errors, 5xx) are retried; 4xx rejections
// are permanent. A circuit breaker stops hammering a collector that is down.
type Uploader struct {
	endpoint string
	secret   string
	client   *http.Client
	retry    *resilience.Retryer
	breaker  *resilience.CircuitBreaker
	log      *slog.Logger
}

// UploaderConfig configures an [Uploader].
type UploaderConfig struct {
	// Endpoint is the collector URL reports are POSTed to.
	Endpoint string

	// Secret is the shared HMAC key. Empty disables uploads: Upload logs a
	// warning and returns nil rather than sending unsigned payloads.
	Secret string

	// Client is the HTTP client to use. Defaults to one with a 30s timeout.
	Client *http.Client

	// Retry overrides the default retry policy.
	Retry *resilience.RetryerConfig

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// SignatureHeader carries the hex-encoded HMAC-SHA256 of the request body.
const SignatureHeader = "x-agent-signature"

// NewUploader builds an Uploader from cfg.
func NewUploader(cfg UploaderConfig) *Uploader {
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	retryCfg := resilience.RetryerConfig{Name: "report upload"}
	if cfg.Retry != nil {
		retryCfg = *cfg.Retry
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Uploader{
		endpoint: cfg.Endpoint,
		secret:   cfg.Secret,
		client:   client,
		retry:    resilience.NewRetryer(retryCfg),
		breaker: resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			Name: "report upload",
		}),
		log: log,
	}
}

// Upload POSTs rep to the collector. Called in the background by the
// finalizer; errors are returned for logging but never affect the session.
func (u *Uploader) Upload(ctx context.Context, rep *SessionReport) error {
	if u.secret == "" {
		u.log.Warn("upload secret not configured, skipping report upload",
			"interview", rep.InterviewID)
		return nil
	}

	body, err := json.Marshal(rep)
	if err != nil {
		return fmt.Errorf("report: marshal upload payload: %w", err)
	}
	signature := Sign(u.secret, body)

	err = u.retry.Do(ctx, "upload report", func(ctx context.Context) error {
		return u.breaker.Execute(func() error {
			return u.post(ctx, body, signature)
		})
	})
	if err != nil {
		return fmt.Errorf("report: upload %s: %w", rep.InterviewID, err)
	}
	u.log.Info("report uploaded", "interview", rep.InterviewID, "endpoint", u.endpoint)
	return nil
}

func (u *Uploader) post(ctx context.Context, body []byte, signature string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.endpoint, bytes.NewReader(body))
	if err != nil {
		return resilience.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SignatureHeader, signature)

	resp, err := u.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 500:
		return resilience.Transient(fmt.Errorf("collector returned %s", resp.Status))
	default:
		return resilience.Permanent(fmt.Errorf("collector rejected upload: %s", resp.Status))
	}
}

// Sign returns the hex-encoded HMAC-SHA256 of body under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
