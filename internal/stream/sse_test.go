package stream

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/asride/kessler/internal/events"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))
}

func staticFeed(evs ...events.RiskEvent) FeedFunc {
	return func(ctx context.Context) []events.RiskEvent {
		if evs == nil {
			return []events.RiskEvent{}
		}
		return evs
	}
}

func testConfig() Config {
	return Config{
		MaxConcurrentPerIP: 10,
		MaxTotal:           100,
		PollInterval:       20 * time.Millisecond,
		KeepaliveInterval:  30 * time.Second,
	}
}

// dataMessages returns the decoded "data:" payloads of an SSE body.
func dataMessages(t *testing.T, body string) []map[string]any {
	t.Helper()
	var msgs []map[string]any
	scanner := bufio.NewScanner(strings.NewReader(body))
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var msg map[string]any
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &msg); err != nil {
			t.Errorf("invalid JSON in SSE data line: %v", err)
			continue
		}
		msgs = append(msgs, msg)
	}
	return msgs
}

// TestSSEMessageFormat verifies the SSE wire format: "data: {json}\n\n".
func TestSSEMessageFormat(t *testing.T) {
	handler := NewHandler(staticFeed(events.RiskEvent{ID: 1, Primary: "ISS (ZARYA)", Probability: 99.9}), testConfig(), testLogger())

	req := httptest.NewRequest("GET", "/api/v1/stream/feed", nil)
	req.RemoteAddr = "127.0.0.1:12345"
	ctx, cancel := context.WithTimeout(req.Context(), 200*time.Millisecond)
	defer cancel()
	req = req.WithContext(ctx)

	w := httptest.NewRecorder()
	handler.HandleFeed(w, req)

	resp := w.Result()
	if resp.Header.Get("Content-Type") != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", resp.Header.Get("Content-Type"))
	}
	if resp.Header.Get("Cache-Control") != "no-cache" {
		t.Errorf("Cache-Control = %q, want no-cache", resp.Header.Get("Cache-Control"))
	}

	body := w.Body.String()
	msgs := dataMessages(t, body)
	if len(msgs) != 1 {
		t.Fatalf("got %d feed messages, want 1 (unchanged feed is not resent)", len(msgs))
	}
	if msgs[0]["type"] != "feed" {
		t.Errorf("type = %v, want feed", msgs[0]["type"])
	}
	evs, ok := msgs[0]["events"].([]any)
	if !ok || len(evs) != 1 {
		t.Fatalf("events = %v, want 1-element array", msgs[0]["events"])
	}
	if evs[0].(map[string]any)["primary"] != "ISS (ZARYA)" {
		t.Errorf("events[0] = %v", evs[0])
	}

	for _, line := range strings.Split(body, "\n") {
		if line == "" || line == ":" {
			continue
		}
		if !strings.HasPrefix(line, "data: ") && !strings.HasPrefix(line, "retry: ") {
			t.Errorf("unexpected SSE line: %q", line)
		}
	}
}

// TestFeedChangesAreStreamed verifies a new snapshot is sent when the feed changes.
func TestFeedChangesAreStreamed(t *testing.T) {
	var polls atomic.Int32
	feed := func(ctx context.Context) []events.RiskEvent {
		n := polls.Add(1)
		if n < 3 {
			return []events.RiskEvent{}
		}
		return []events.RiskEvent{{ID: 7, Primary: "CSS (TIANHE)", Probability: 88}}
	}
	handler := NewHandler(feed, testConfig(), testLogger())

	req := httptest.NewRequest("GET", "/api/v1/stream/feed", nil)
	ctx, cancel := context.WithTimeout(req.Context(), 300*time.Millisecond)
	defer cancel()
	w := httptest.NewRecorder()
	handler.HandleFeed(w, req.WithContext(ctx))

	msgs := dataMessages(t, w.Body.String())
	if len(msgs) != 2 {
		t.Fatalf("got %d feed messages, want 2", len(msgs))
	}
	if evs := msgs[0]["events"].([]any); len(evs) != 0 {
		t.Errorf("first snapshot = %v, want empty", evs)
	}
	if evs := msgs[1]["events"].([]any); len(evs) != 1 {
		t.Errorf("second snapshot = %v, want 1 event", evs)
	}
}

func TestFeedMessageJSON(t *testing.T) {
	msg := feedMessage{Type: "feed", T: "2026-02-06T04:00:00Z", Events: json.RawMessage(`[]`)}
	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatal(err)
	}
	want := `{"type":"feed","t":"2026-02-06T04:00:00Z","events":[]}`
	if string(data) != want {
		t.Errorf("json = %s, want %s", data, want)
	}
}

// TestStreamSlots verifies per-IP concurrent stream limits.
func TestStreamSlots(t *testing.T) {
	slots := newStreamSlots(3, 100)

	var releases []func()
	for i := 0; i < 3; i++ {
		release, err := slots.acquire("10.0.0.1")
		if err != nil {
			t.Fatalf("acquire %d: %v", i+1, err)
		}
		releases = append(releases, release)
	}
	if _, err := slots.acquire("10.0.0.1"); err != errPerIPLimit {
		t.Errorf("acquire beyond limit err = %v, want errPerIPLimit", err)
	}
	if _, err := slots.acquire("10.0.0.2"); err != nil {
		t.Error("different IP should not be limited")
	}

	releases[0]()
	releases[0]()
	if c := slots.count("10.0.0.1"); c != 2 {
		t.Errorf("count after double release = %d, want 2", c)
	}
	if _, err := slots.acquire("10.0.0.1"); err != nil {
		t.Error("acquire after release should succeed")
	}
	if a := slots.active(); a != 4 {
		t.Errorf("active = %d, want 4", a)
	}
}

func TestStreamSlotsCapacity(t *testing.T) {
	slots := newStreamSlots(5, 2)
	_, err1 := slots.acquire("10.0.0.1")
	_, err2 := slots.acquire("10.0.0.2")
	if err1 != nil || err2 != nil {
		t.Fatal("first two acquires should succeed")
	}
	if _, err := slots.acquire("10.0.0.3"); err != errServerFull {
		t.Errorf("err = %v, want errServerFull", err)
	}
}

func TestStreamSlotsConcurrent(t *testing.T) {
	slots := newStreamSlots(100, 1000)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if release, err := slots.acquire("10.0.0.1"); err == nil {
				defer release()
				time.Sleep(10 * time.Millisecond)
			}
		}()
	}
	wg.Wait()

	if c := slots.count("10.0.0.1"); c != 0 {
		t.Errorf("count after all released = %d, want 0", c)
	}
	if a := slots.active(); a != 0 {
		t.Errorf("active = %d, want 0", a)
	}
}

// TestRateLimitHTTPResponse verifies 429 response when limit exceeded.
func TestRateLimitHTTPResponse(t *testing.T) {
	cfg := testConfig()
	cfg.MaxConcurrentPerIP = 1
	handler := NewHandler(staticFeed(), cfg, testLogger())

	ready := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		req := httptest.NewRequest("GET", "/api/v1/stream/feed", nil)
		req.RemoteAddr = "10.0.0.1:12345"
		ctx, cancel := context.WithCancel(req.Context())
		req = req.WithContext(ctx)
		w := httptest.NewRecorder()

		go func() {
			time.Sleep(50 * time.Millisecond)
			close(ready)
			time.Sleep(200 * time.Millisecond)
			cancel()
		}()

		handler.HandleFeed(w, req)
	}()

	<-ready

	req := httptest.NewRequest("GET", "/api/v1/stream/feed", nil)
	req.RemoteAddr = "10.0.0.1:54321"
	w := httptest.NewRecorder()
	handler.HandleFeed(w, req)

	if w.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After header")
	}

	<-done
	if c := handler.slots.count("10.0.0.1"); c != 0 {
		t.Errorf("slot not released after disconnect: count = %d", c)
	}
}

// TestInvalidQueryParams verifies error responses for bad interval values.
func TestInvalidQueryParams(t *testing.T) {
	handler := NewHandler(staticFeed(), testConfig(), testLogger())

	for _, q := range []string{"?interval=0", "?interval=301", "?interval=abc"} {
		t.Run(q, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/api/v1/stream/feed"+q, nil)
			req.RemoteAddr = "127.0.0.1:12345"
			w := httptest.NewRecorder()
			handler.HandleFeed(w, req)

			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
			}
		})
	}
}

// TestKeepaliveFrame verifies keep-alive is an SSE comment.
func TestKeepaliveFrame(t *testing.T) {
	w := httptest.NewRecorder()
	c := newClient(w, "127.0.0.1", testLogger())
	if err := c.sendKeepalive(); err != nil {
		t.Fatal(err)
	}
	if got := w.Body.String(); got != ":\n\n" {
		t.Errorf("keepalive = %q, want %q", got, ":\n\n")
	}
	if c.messagesSent != 0 {
		t.Error("keepalive should not count as a message")
	}
	if c.bytesSent != 3 {
		t.Errorf("bytesSent = %d, want 3", c.bytesSent)
	}
}

func TestCapacityHTTPResponse(t *testing.T) {
	cfg := testConfig()
	cfg.MaxTotal = 1
	handler := NewHandler(staticFeed(), cfg, testLogger())
	release, err := handler.slots.acquire("10.0.0.9")
	if err != nil {
		t.Fatal(err)
	}
	defer release()

	req := httptest.NewRequest("GET", "/api/v1/stream/feed", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	w := httptest.NewRecorder()
	handler.HandleFeed(w, req)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
}
