// Package metrics exposes the service's Prometheus collectors.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kessler_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"path", "method", "code"},
	)

	httpDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kessler_http_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)

	analysisDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kessler_analysis_duration_seconds",
			Help:    "Conjunction analysis duration in seconds, labeled by decision tier.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"tier"},
	)

	analysisFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kessler_analysis_failures_total",
			Help: "Conjunction analyses that did not produce a result, by reason.",
		},
		[]string{"reason"},
	)

	propagationFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "kessler_propagation_failures_total",
			Help: "State vector requests the propagator could not satisfy.",
		},
	)

	ingestSourcesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kessler_ingest_sources_total",
			Help: "Element-set sources processed during catalog ingestion, by outcome.",
		},
		[]string{"outcome"},
	)

	catalogObjects = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "kessler_catalog_objects",
			Help: "Number of tracked objects in the catalog.",
		},
	)

	eventWritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kessler_event_store_writes_total",
			Help: "Event store writes, by record kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)

	sweepPairsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kessler_sweep_pairs_total",
			Help: "Object pairs evaluated by the sweep job, by outcome.",
		},
		[]string{"outcome"},
	)

	sweepDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "kessler_sweep_duration_seconds",
			Help:    "Duration of one sweep pass in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		},
	)

	rateLimitedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "kessler_rate_limited_total",
			Help: "Requests rejected by the per-client rate limiter.",
		},
	)

	streamConnectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kessler_stream_connections_total",
			Help: "SSE feed stream connection events.",
		},
		[]string{"event"},
	)

	streamsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "kessler_streams_active",
			Help: "Currently open SSE feed streams.",
		},
	)

	streamMessagesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "kessler_stream_messages_total",
			Help: "SSE messages sent.",
		},
	)

	streamBytesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "kessler_stream_bytes_total",
			Help: "SSE bytes sent.",
		},
	)

	streamErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kessler_stream_errors_total",
			Help: "SSE stream errors by reason.",
		},
		[]string{"reason"},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpDurationSeconds,
		analysisDurationSeconds,
		analysisFailuresTotal,
		propagationFailuresTotal,
		ingestSourcesTotal,
		catalogObjects,
		eventWritesTotal,
		sweepPairsTotal,
		sweepDurationSeconds,
		rateLimitedTotal,
		streamConnectionsTotal,
		streamsActive,
		streamMessagesTotal,
		streamBytesTotal,
		streamErrorsTotal,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveAnalysis records a completed conjunction analysis.
func ObserveAnalysis(d time.Duration, tier string) {
	analysisDurationSeconds.WithLabelValues(tier).Observe(d.Seconds())
}

// IncAnalysisFailures counts an analysis that ended without a result.
func IncAnalysisFailures(reason string) {
	analysisFailuresTotal.WithLabelValues(reason).Inc()
}

// IncPropagationFailures counts one failed state vector request.
func IncPropagationFailures() {
	propagationFailuresTotal.Inc()
}

// RecordIngestSource counts one ingestion source outcome ("ok" or "failed").
func RecordIngestSource(outcome string) {
	ingestSourcesTotal.WithLabelValues(outcome).Inc()
}

// SetCatalogObjects sets the tracked object gauge.
func SetCatalogObjects(n int) {
	catalogObjects.Set(float64(n))
}

// RecordEventWrite counts an event store write for kind ("event" or "audit").
func RecordEventWrite(kind string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "failed"
	}
	eventWritesTotal.WithLabelValues(kind, outcome).Inc()
}

// RecordSweep records the outcome of one sweep pass.
func RecordSweep(d time.Duration, evaluated, alerts, failed int) {
	sweepDurationSeconds.Observe(d.Seconds())
	sweepPairsTotal.WithLabelValues("evaluated").Add(float64(evaluated))
	sweepPairsTotal.WithLabelValues("alert").Add(float64(alerts))
	sweepPairsTotal.WithLabelValues("failed").Add(float64(failed))
}

// IncRateLimited counts a rejected request.
func IncRateLimited() {
	rateLimitedTotal.Inc()
}

// IncStreamConnections counts a stream "connect" or "disconnect".
func IncStreamConnections(event string) {
	streamConnectionsTotal.WithLabelValues(event).Inc()
}

// IncStreamsActive increments the open stream gauge.
func IncStreamsActive() {
	streamsActive.Inc()
}

// DecStreamsActive decrements the open stream gauge.
func DecStreamsActive() {
	streamsActive.Dec()
}

// IncStreamMessages counts one SSE message.
func IncStreamMessages() {
	streamMessagesTotal.Inc()
}

// AddStreamBytes adds n bytes to the SSE byte counter.
func AddStreamBytes(n int64) {
	streamBytesTotal.Add(float64(n))
}

// IncStreamErrors counts a stream error by reason.
func IncStreamErrors(reason string) {
	streamErrorsTotal.WithLabelValues(reason).Inc()
}

// knownRoutes are exact paths reported with their own label.
var knownRoutes = map[string]bool{
	"/healthz":             true,
	"/readyz":              true,
	"/metrics":             true,
	"/api/v1/status":       true,
	"/api/v1/analyze-risk": true,
	"/api/v1/satellites":   true,
	"/api/v1/feed":         true,
	"/api/v1/history":      true,
	"/api/v1/stream/feed":  true,
}

const constellationPrefix = "/api/v1/constellation/"

// normalizeRoute maps a request path to a bounded set of metric labels.
func normalizeRoute(path string) string {
	if knownRoutes[path] {
		return path
	}
	if strings.HasPrefix(path, constellationPrefix) && len(path) > len(constellationPrefix) {
		return constellationPrefix + "{name}"
	}
	return "other"
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Flush lets SSE handlers flush through the wrapper.
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Middleware records request count and duration for each request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		route := normalizeRoute(r.URL.Path)
		httpRequestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(rw.statusCode)).Inc()
		httpDurationSeconds.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}
