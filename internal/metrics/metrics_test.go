package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestNormalizeRoute(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		// Known exact routes.
		{"/healthz", "/healthz"},
		{"/readyz", "/readyz"},
		{"/metrics", "/metrics"},
		{"/api/v1/status", "/api/v1/status"},
		{"/api/v1/analyze-risk", "/api/v1/analyze-risk"},
		{"/api/v1/satellites", "/api/v1/satellites"},
		{"/api/v1/feed", "/api/v1/feed"},
		{"/api/v1/history", "/api/v1/history"},
		{"/api/v1/stream/feed", "/api/v1/stream/feed"},

		// Parameterized constellation routes collapse to one label.
		{"/api/v1/constellation/STARLINK", "/api/v1/constellation/{name}"},
		{"/api/v1/constellation/gps", "/api/v1/constellation/{name}"},

		// Unknown/bot paths collapse to "other".
		{"/api/v1/constellation/", "other"},
		{"/wp-admin", "other"},
		{"/.env", "other"},
		{"/api/v2/something", "other"},
		{"/", "other"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := normalizeRoute(tt.path); got != tt.want {
				t.Errorf("normalizeRoute(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

// TestMetricsCardinality verifies that 100 distinct constellation names
// produce exactly 1 path label.
func TestMetricsCardinality(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		label := normalizeRoute("/api/v1/constellation/" + string(rune('A'+i%26)) + string(rune('0'+i/26)))
		seen[label] = true
	}
	if len(seen) != 1 {
		t.Errorf("expected 1 unique label for parameterized paths, got %d: %v", len(seen), seen)
	}
}

func TestMiddlewareCountsRequests(t *testing.T) {
	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("/api/v1/feed", "GET", "418"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/api/v1/feed", nil))
	after := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("/api/v1/feed", "GET", "418"))

	if after-before != 1 {
		t.Errorf("request counter delta = %v, want 1", after-before)
	}
}

func TestRecordEventWrite(t *testing.T) {
	okBefore := testutil.ToFloat64(eventWritesTotal.WithLabelValues("audit", "ok"))
	failBefore := testutil.ToFloat64(eventWritesTotal.WithLabelValues("audit", "failed"))

	RecordEventWrite("audit", nil)
	RecordEventWrite("audit", errors.New("down"))

	if d := testutil.ToFloat64(eventWritesTotal.WithLabelValues("audit", "ok")) - okBefore; d != 1 {
		t.Errorf("ok delta = %v", d)
	}
	if d := testutil.ToFloat64(eventWritesTotal.WithLabelValues("audit", "failed")) - failBefore; d != 1 {
		t.Errorf("failed delta = %v", d)
	}
}

func TestHandlerExposesCollectors(t *testing.T) {
	SetCatalogObjects(42)

	w := httptest.NewRecorder()
	Handler().ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))

	if !strings.Contains(w.Body.String(), "kessler_catalog_objects 42") {
		t.Error("expected kessler_catalog_objects gauge in exposition output")
	}
}

func histogramCount(t *testing.T, o prometheus.Observer) uint64 {
	t.Helper()
	var m dto.Metric
	if err := o.(prometheus.Metric).Write(&m); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	return m.GetHistogram().GetSampleCount()
}

func TestObserveAnalysis(t *testing.T) {
	before := histogramCount(t, analysisDurationSeconds.WithLabelValues("CAUTION"))
	ObserveAnalysis(3*time.Millisecond, "CAUTION")
	ObserveAnalysis(40*time.Millisecond, "CAUTION")

	if d := histogramCount(t, analysisDurationSeconds.WithLabelValues("CAUTION")) - before; d != 2 {
		t.Errorf("sample count delta = %d, want 2", d)
	}
}

func TestRecordSweep(t *testing.T) {
	evaluated := testutil.ToFloat64(sweepPairsTotal.WithLabelValues("evaluated"))
	alerts := testutil.ToFloat64(sweepPairsTotal.WithLabelValues("alert"))
	var m dto.Metric
	if err := sweepDurationSeconds.Write(&m); err != nil {
		t.Fatal(err)
	}
	runs := m.GetHistogram().GetSampleCount()

	RecordSweep(2*time.Second, 10, 3, 1)

	if d := testutil.ToFloat64(sweepPairsTotal.WithLabelValues("evaluated")) - evaluated; d != 10 {
		t.Errorf("evaluated delta = %v, want 10", d)
	}
	if d := testutil.ToFloat64(sweepPairsTotal.WithLabelValues("alert")) - alerts; d != 3 {
		t.Errorf("alert delta = %v, want 3", d)
	}
	m.Reset()
	if err := sweepDurationSeconds.Write(&m); err != nil {
		t.Fatal(err)
	}
	if got := m.GetHistogram().GetSampleCount(); got != runs+1 {
		t.Errorf("sweep runs = %d, want %d", got, runs+1)
	}
}
