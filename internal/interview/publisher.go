package interview

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/intervox/intervox/internal/observe"
	"github.com/intervox/intervox/pkg/voice"
)

// TaskTracker runs background work whose completion is awaited at shutdown.
// *errgroup.Group satisfies it directly.
type TaskTracker interface {
	Go(f func() error)
}

// Broadcaster fans a payload out to live subscribers. Implemented by the
// websocket hub.
type Broadcaster interface {
	Broadcast(ctx context.Context, payload []byte)
}

// Publisher implements [TurnObserver] by pushing each turn's metrics onto the
// voice transport's data channel and the live websocket hub, and recording
// the OTel instruments. Delivery is strictly fire-and-forget: failures are
// logged and dropped so a dead dashboard can never stall or end an interview.
type Publisher struct {
	runtime voice.Runtime
	hub     Broadcaster
	metrics *observe.Metrics
	tasks   TaskTracker
	timeout time.Duration
	log     *slog.Logger
}

// PublisherConfig configures a [Publisher]. Every sink is optional; a nil
// sink is skipped.
type PublisherConfig struct {
	Runtime voice.Runtime
	Hub     Broadcaster
	Metrics *observe.Metrics
	Tasks   TaskTracker
	// PublishTimeout bounds each delivery attempt. Default: 2s.
	PublishTimeout time.Duration
	Logger         *slog.Logger
}

// NewPublisher builds a Publisher from cfg.
func NewPublisher(cfg PublisherConfig) *Publisher {
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 2 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Publisher{
		runtime: cfg.Runtime,
		hub:     cfg.Hub,
		metrics: cfg.Metrics,
		tasks:   cfg.Tasks,
		timeout: cfg.PublishTimeout,
		log:     cfg.Logger,
	}
}

// ObserveTurn publishes m to every configured sink. It never returns an error
// and never panics; serialization failure or sink failure only produces a log
// line.
func (p *Publisher) ObserveTurn(ctx context.Context, m TurnMetrics) {
	if p.metrics != nil {
		p.metrics.RecordTurn(ctx, string(m.Phase), m.QualityScore, m.ConfidenceScore)
		p.metrics.FillerWords.Add(ctx, int64(m.FillerCountTurn))
	}

	payload, err := json.Marshal(m)
	if err != nil {
		p.log.Error("marshal turn metrics", "error", err)
		return
	}
	p.dispatch(func() {
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		defer cancel()
		if p.runtime != nil {
			if err := p.runtime.PublishData(ctx, payload); err != nil {
				p.log.Warn("publish turn metrics to data channel", "error", err)
			}
		}
		if p.hub != nil {
			p.hub.Broadcast(ctx, payload)
		}
	})
}

// dispatch runs fn in the background when a task tracker is configured,
// inline otherwise, recovering any panic either way.
func (p *Publisher) dispatch(fn func()) {
	run := func() error {
		defer func() {
			if r := recover(); r != nil {
				p.log.Error("metrics publish panicked", "panic", r)
			}
		}()
		fn()
		return nil
	}
	if p.tasks != nil {
		p.tasks.Go(run)
		return
	}
	run()
}
