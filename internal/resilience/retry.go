// Package resilience provides the retry and circuit-breaker primitives that
// guard every outbound call the interview engine makes: LLM completions,
// speech-output requests, and remote report delivery.
//
// The central type is [Retryer], which wraps a unit of work with a bounded
// per-attempt timeout and exponential backoff between attempts. Only
// transient failures (timeouts, connection errors) are retried; anything
// marked permanent via [Permanent] is re-raised immediately so that
// authentication and validation errors never burn the retry budget.
//
// All types are safe for concurrent use.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"syscall"
	"time"
)

// Default retry parameters.
const (
	defaultMaxAttempts    = 3
	defaultInitialBackoff = 500 * time.Millisecond
	defaultMaxBackoff     = 10 * time.Second
	defaultAttemptTimeout = 15 * time.Second
)

// ErrAttemptsExhausted is returned (wrapped) when every attempt failed with a
// transient error. The caller is responsible for a degraded fallback.
var ErrAttemptsExhausted = errors.New("all attempts exhausted")

// permanentError marks an error that must not be retried.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so that a [Retryer] re-raises it immediately instead of
// retrying. Use for authentication failures, validation errors, and any other
// failure that will not go away on its own. Wrapping nil returns nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err (or anything it wraps) was marked with
// [Permanent].
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// Transient wraps err so that a [Retryer] retries it even though it is not
// structurally recognisable as a transport failure. Use for application-level
// failures known to be retryable, such as HTTP 5xx responses. Wrapping nil
// returns nil.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// isTransient reports whether err belongs to a failure class worth retrying:
// timeouts, connection failures, unexpected stream termination, and anything
// marked with [Transient]. Errors marked permanent are never transient. The
// parent context expiring is not transient either, since the caller has
// given up.
func isTransient(err error) bool {
	if err == nil || IsPermanent(err) {
		return false
	}
	var te *transientError
	if errors.As(err, &te) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return false
}

// RetryerConfig holds tuning knobs for a [Retryer].
type RetryerConfig struct {
	// Name is a human-readable label used in log messages.
	Name string

	// MaxAttempts is the total number of attempts, including the first.
	// Default: 3.
	MaxAttempts int

	// InitialBackoff is the delay before the second attempt. Doubles each
	// attempt up to MaxBackoff. Default: 500ms.
	InitialBackoff time.Duration

	// MaxBackoff is the upper limit on the backoff duration. Default: 10s.
	MaxBackoff time.Duration

	// AttemptTimeout bounds each individual attempt. Default: 15s.
	AttemptTimeout time.Duration
}

// Retryer executes units of work with bounded timeout, retries, and
// exponential backoff. The zero value is not usable; construct with
// [NewRetryer].
type Retryer struct {
	name           string
	maxAttempts    int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	attemptTimeout time.Duration
}

// NewRetryer creates a [Retryer] with the supplied configuration.
// Zero-value config fields are replaced with the package defaults.
func NewRetryer(cfg RetryerConfig) *Retryer {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = defaultInitialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = defaultMaxBackoff
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = defaultAttemptTimeout
	}
	return &Retryer{
		name:           cfg.Name,
		maxAttempts:    cfg.MaxAttempts,
		initialBackoff: cfg.InitialBackoff,
		maxBackoff:     cfg.MaxBackoff,
		attemptTimeout: cfg.AttemptTimeout,
	}
}

// Do runs fn with a per-attempt deadline derived from ctx. It retries
// transient failures up to MaxAttempts times with exponential backoff.
// Permanent failures and parent-context cancellation are returned
// immediately. After the budget is spent, the last error is returned wrapped
// with [ErrAttemptsExhausted].
func (r *Retryer) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	backoff := r.initialBackoff
	var lastErr error

	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%s: %s: %w", r.name, op, err)
		}

		attemptCtx, cancel := context.WithTimeout(ctx, r.attemptTimeout)
		err := fn(attemptCtx)
		cancel()

		if err == nil {
			return nil
		}
		lastErr = err

		if ctx.Err() != nil {
			// The parent gave up; don't reclassify its deadline as transient.
			return fmt.Errorf("%s: %s: %w", r.name, op, ctx.Err())
		}
		if !isTransient(err) {
			slog.Warn("non-transient failure, not retrying",
				"component", r.name, "op", op, "attempt", attempt, "error", err)
			return err
		}

		slog.Warn("transient failure",
			"component", r.name,
			"op", op,
			"attempt", attempt,
			"max_attempts", r.maxAttempts,
			"backoff", backoff,
			"error", err,
		)

		if attempt == r.maxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%s: %s: %w", r.name, op, ctx.Err())
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > r.maxBackoff {
			backoff = r.maxBackoff
		}
	}

	return fmt.Errorf("%s: %s: %w: %w", r.name, op, ErrAttemptsExhausted, lastErr)
}

// DoValue is the result-returning counterpart of [Retryer.Do]. It is a
// package-level function because Go does not support method-level type
// parameters.
func DoValue[T any](ctx context.Context, r *Retryer, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := r.Do(ctx, op, func(ctx context.Context) error {
		var innerErr error
		result, innerErr = fn(ctx)
		return innerErr
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}
