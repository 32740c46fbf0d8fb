// Package stream implements Server-Sent Events (SSE) streaming of the risk
// event feed. Clients connect via GET /api/v1/stream/feed and receive the
// current top events, then a fresh snapshot whenever the feed changes.
//
// SSE message format:
//
//	data: {"type":"feed","t":"2026-02-06T04:00:00Z","events":[...]}\n\n
//
// The first message on every connection is a full snapshot, so reconnecting
// clients never need to replay history. Keep-alive comments (:\n\n) are sent
// every KeepaliveInterval while the feed is unchanged.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/asride/kessler/internal/events"
	"github.com/asride/kessler/internal/httputil"
	"github.com/asride/kessler/internal/metrics"
)

// FeedFunc returns the current feed page. It must not fail; an unavailable
// store yields an empty page.
type FeedFunc func(ctx context.Context) []events.RiskEvent

// Config holds streaming configuration loaded from environment variables.
type Config struct {
	MaxConcurrentPerIP int           // Max concurrent streams per IP (default: 10).
	MaxTotal           int           // Max concurrent streams overall (default: 1000).
	PollInterval       time.Duration // How often the feed is re-read (default: 5s).
	KeepaliveInterval  time.Duration // Keep-alive ping interval (default: 30s).
	TrustProxy         bool          // Use X-Forwarded-For for the per-IP limit.
}

// DefaultConfig returns the default streaming limits.
func DefaultConfig() Config {
	return Config{
		MaxConcurrentPerIP: 10,
		MaxTotal:           1000,
		PollInterval:       5 * time.Second,
		KeepaliveInterval:  30 * time.Second,
	}
}

// Handler manages SSE streaming connections.
type Handler struct {
	feed    FeedFunc
	config  Config
	slots   *streamSlots
	logger  *slog.Logger
}

// NewHandler creates a new streaming handler.
func NewHandler(feed FeedFunc, config Config, logger *slog.Logger) *Handler {
	return &Handler{
		feed:    feed,
		config:  config,
		slots:   newStreamSlots(config.MaxConcurrentPerIP, config.MaxTotal),
		logger:  logger,
	}
}

// HandleFeed serves the SSE feed stream.
// GET /api/v1/stream/feed?interval=5
func (h *Handler) HandleFeed(w http.ResponseWriter, r *http.Request) {
	poll := h.config.PollInterval
	if v := r.URL.Query().Get("interval"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 300 {
			writeError(w, http.StatusBadRequest, "invalid interval parameter, must be 1-300")
			return
		}
		poll = time.Duration(n) * time.Second
	}

	ip := httputil.ClientIP(r, h.config.TrustProxy)
	release, err := h.slots.acquire(ip)
	if err != nil {
		status, reason := http.StatusTooManyRequests, "per_ip_limit"
		if errors.Is(err, errServerFull) {
			status, reason = http.StatusServiceUnavailable, "capacity"
		}
		metrics.IncStreamErrors(reason)
		h.logger.Warn("stream rejected",
			"component", "stream",
			"remote_ip", ip,
			"reason", reason,
			"open_for_ip", h.slots.count(ip),
		)
		w.Header().Set("Retry-After", "30")
		writeError(w, status, err.Error())
		return
	}

	metrics.IncStreamConnections("connect")
	metrics.IncStreamsActive()

	startTime := time.Now()
	h.logger.Info("stream connected",
		"component", "stream",
		"remote_ip", ip,
		"user_agent", r.Header.Get("User-Agent"),
		"interval_seconds", int(poll.Seconds()),
	)

	defer func() {
		release()
		metrics.IncStreamConnections("disconnect")
		metrics.DecStreamsActive()
		h.logger.Info("stream disconnected",
			"component", "stream",
			"remote_ip", ip,
			"duration_seconds", int(time.Since(startTime).Seconds()),
		)
	}()

	if _, ok := w.(http.Flusher); !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	c := newClient(w, ip, h.logger)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	// Long-lived: the server's WriteTimeout would cut the stream.
	if err := c.rc.SetWriteDeadline(time.Time{}); err != nil {
		h.logger.Debug("could not clear write deadline", "component", "stream", "error", err)
	}

	// Jittered retry (3-7s) spreads reconnects after a restart.
	if _, err := fmt.Fprintf(w, "retry: %d\n\n", 3000+rand.Intn(4000)); err != nil {
		return
	}
	c.run(r.Context(), h.feed, poll, h.config.KeepaliveInterval)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// feedMessage carries one feed snapshot. Events is pre-encoded so unchanged
// snapshots can be detected without re-encoding.
type feedMessage struct {
	Type   string          `json:"type"`
	T      string          `json:"t"`
	Events json.RawMessage `json:"events"`
}
