// Package live broadcasts per-turn interview metrics to websocket
// subscribers, typically a recruiter-facing dashboard watching a session in
// real time.
package live

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/intervox/intervox/internal/observe"
)

// Hub accepts websocket subscribers and fans broadcast payloads out to all
// of them. Slow or dead subscribers are dropped rather than allowed to slow
// the broadcast down. Safe for concurrent use.
type Hub struct {
	mu           sync.Mutex
	conns        map[*websocket.Conn]struct{}
	writeTimeout time.Duration
	metrics      *observe.Metrics
	log          *slog.Logger
}

// NewHub creates an empty hub. metrics may be nil.
func NewHub(metrics *observe.Metrics) *Hub {
	return &Hub{
		conns:        make(map[*websocket.Conn]struct{}),
		writeTimeout: 2 * time.Second,
		metrics:      metrics,
		log:          slog.Default(),
	}
}

// ServeHTTP upgrades the request to a websocket and keeps the connection
// subscribed until the client disconnects. Subscribers only receive; any
// message they send is discarded.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.log.Warn("websocket accept failed", "error", err)
		return
	}

	ctx := c.CloseRead(r.Context())
	h.add(r.Context(), c)
	defer h.remove(r.Context(), c)

	<-ctx.Done()
	c.Close(websocket.StatusNormalClosure, "")
}

// Broadcast sends payload to every subscriber as a text message. Failed
// writes unsubscribe and close the offending connection.
func (h *Hub) Broadcast(ctx context.Context, payload []byte) {
	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		wctx, cancel := context.WithTimeout(ctx, h.writeTimeout)
		err := c.Write(wctx, websocket.MessageText, payload)
		cancel()
		if err != nil {
			h.log.Debug("dropping live subscriber", "error", err)
			h.remove(ctx, c)
			c.Close(websocket.StatusPolicyViolation, "write failed")
		}
	}
}

// SubscriberCount returns the number of connected subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.conns = make(map[*websocket.Conn]struct{})
	h.mu.Unlock()

	for _, c := range conns {
		c.Close(websocket.StatusGoingAway, "server shutting down")
	}
}

func (h *Hub) add(ctx context.Context, c *websocket.Conn) {
	h.mu.Lock()
	h.conns[c] = struct{}{}
	h.mu.Unlock()
	if h.metrics != nil {
		h.metrics.LiveSubscribers.Add(ctx, 1)
	}
}

func (h *Hub) remove(ctx context.Context, c *websocket.Conn) {
	h.mu.Lock()
	_, present := h.conns[c]
	delete(h.conns, c)
	h.mu.Unlock()
	if present && h.metrics != nil {
		h.metrics.LiveSubscribers.Add(ctx, -1)
	}
}
