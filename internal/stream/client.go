package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/asride/kessler/internal/metrics"
)

// writeWindow bounds how long a single frame may take to reach the client.
const writeWindow = 30 * time.Second

var keepaliveFrame = []byte(":\n\n")

// client is one subscriber's connection.
type client struct {
	w      http.ResponseWriter
	rc     *http.ResponseController
	ip     string
	logger *slog.Logger

	last         []byte // events payload of the last snapshot sent
	messagesSent int64
	bytesSent    int64
}

func newClient(w http.ResponseWriter, ip string, logger *slog.Logger) *client {
	return &client{w: w, rc: http.NewResponseController(w), ip: ip, logger: logger}
}

// run publishes feed snapshots until ctx ends or a write fails. A snapshot
// goes out first, then again whenever the feed changes; a keep-alive comment
// fills every idle keepalive interval.
func (c *client) run(ctx context.Context, feed FeedFunc, poll, keepalive time.Duration) {
	if err := c.publish(ctx, feed); err != nil {
		c.fail("send_error", err)
		return
	}

	pollTicker := time.NewTicker(poll)
	defer pollTicker.Stop()
	idle := time.NewTimer(keepalive)
	defer idle.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-pollTicker.C:
			before := c.messagesSent
			if err := c.publish(ctx, feed); err != nil {
				c.fail("send_error", err)
				return
			}
			if c.messagesSent != before {
				idle.Reset(keepalive)
			}
		case <-idle.C:
			if err := c.sendKeepalive(); err != nil {
				c.fail("send_error", err)
				return
			}
			idle.Reset(keepalive)
		}
	}
}

// publish sends the current feed unless it matches the last snapshot sent.
// An unencodable page is logged and skipped.
func (c *client) publish(ctx context.Context, feed FeedFunc) error {
	payload, err := json.Marshal(feed(ctx))
	if err != nil {
		c.fail("marshal_error", err)
		return nil
	}
	if c.last != nil && bytes.Equal(payload, c.last) {
		return nil
	}
	msg := feedMessage{Type: "feed", T: time.Now().UTC().Format(time.RFC3339), Events: payload}
	if err := c.sendJSON(msg); err != nil {
		return err
	}
	c.last = payload
	return nil
}

// sendJSON writes v as one "data: {json}\n\n" frame.
func (c *client) sendJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding frame: %w", err)
	}
	var frame bytes.Buffer
	frame.Grow(len(data) + 8)
	frame.WriteString("data: ")
	frame.Write(data)
	frame.WriteString("\n\n")

	if err := c.write(frame.Bytes()); err != nil {
		return err
	}
	c.messagesSent++
	metrics.IncStreamMessages()
	return nil
}

// sendKeepalive writes an SSE comment frame.
func (c *client) sendKeepalive() error {
	return c.write(keepaliveFrame)
}

// write pushes frame out under a fresh write deadline.
func (c *client) write(frame []byte) error {
	if err := c.rc.SetWriteDeadline(time.Now().Add(writeWindow)); err != nil {
		c.logger.Debug("write deadline unsupported", "component", "stream", "error", err)
	}
	n, err := c.w.Write(frame)
	c.bytesSent += int64(n)
	metrics.AddStreamBytes(int64(n))
	if err != nil {
		return fmt.Errorf("writing frame: %w", err)
	}
	if err := c.rc.Flush(); err != nil {
		return fmt.Errorf("flushing frame: %w", err)
	}
	return nil
}

func (c *client) fail(reason string, err error) {
	metrics.IncStreamErrors(reason)
	c.logger.Warn("stream error", "component", "stream", "remote_ip", c.ip, "reason", reason, "error", err)
}
