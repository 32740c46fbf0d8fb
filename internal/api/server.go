// Package api serves the conjunction assessment HTTP surface.
package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/asride/kessler/internal/auth"
	"github.com/asride/kessler/internal/catalog"
	"github.com/asride/kessler/internal/conjunction"
	"github.com/asride/kessler/internal/events"
	"github.com/asride/kessler/internal/health"
	"github.com/asride/kessler/internal/metrics"
	"github.com/asride/kessler/internal/stream"
)

// Config holds HTTP server configuration.
type Config struct {
	Addr           string
	Auth           auth.Config
	RateLimitRPS   float64 // analyze requests per second per IP; <= 0 disables
	RateLimitBurst int
	TrustProxy     bool
	AnalyzeTimeout time.Duration
	Stream         stream.Config
}

// DefaultConfig returns the default server configuration.
func DefaultConfig() Config {
	return Config{
		Addr:           ":8080",
		RateLimitRPS:   2,
		RateLimitBurst: 5,
		AnalyzeTimeout: 10 * time.Second,
		Stream:         stream.DefaultConfig(),
	}
}

// Deps are the collaborators the handlers serve from.
type Deps struct {
	Catalog *catalog.Catalog
	Engine  *conjunction.Engine
	Store   events.Store
}

// Server holds the HTTP server and its dependencies.
type Server struct {
	httpServer *http.Server
	limiter    *ipRateLimiter
	logger     *slog.Logger
}

// NewServer creates a configured HTTP server.
func NewServer(cfg Config, deps Deps, logger *slog.Logger) *Server {
	h := &handlers{
		catalog:        deps.Catalog,
		engine:         deps.Engine,
		store:          deps.Store,
		analyzeTimeout: cfg.AnalyzeTimeout,
		logger:         logger,
	}
	guard := auth.New(cfg.Auth)
	limiter := newIPRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, cfg.TrustProxy)
	streamCfg := cfg.Stream
	streamCfg.TrustProxy = cfg.TrustProxy
	feedStream := stream.NewHandler(h.feedPage, streamCfg, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", health.Healthz)
	mux.HandleFunc("GET /readyz", health.Readyz(deps.Catalog.Loaded))
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /api/v1/status", h.status)
	mux.HandleFunc("POST /api/v1/analyze-risk", guard.Require(limiter.limit(h.analyzeRisk)))
	mux.HandleFunc("GET /api/v1/satellites", h.satellites)
	mux.HandleFunc("GET /api/v1/constellation/{name}", h.constellation)
	mux.HandleFunc("GET /api/v1/feed", h.feed)
	mux.HandleFunc("GET /api/v1/history", guard.Require(h.history))
	mux.HandleFunc("GET /api/v1/stream/feed", guard.Require(feedStream.HandleFeed))

	// Build middleware chain: metrics -> logging -> mux. Auth is per route.
	var handler http.Handler = mux
	handler = loggingMiddleware(logger)(handler)
	handler = metrics.Middleware(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:              cfg.Addr,
			Handler:           handler,
			ReadTimeout:       10 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		limiter: limiter,
		logger:  logger,
	}
}

// Handler returns the fully wrapped request handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// HTTPServer returns the underlying *http.Server for external control (e.g. shutdown).
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// EvictIdleClients drops per-IP rate limiters unused for maxAge.
func (s *Server) EvictIdleClients(maxAge time.Duration) {
	s.limiter.Evict(maxAge)
}

// probePath returns true for health/readiness probe paths that should not log at INFO.
func probePath(path string) bool {
	return path == "/healthz" || path == "/readyz"
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.statusCode = code
	sr.ResponseWriter.WriteHeader(code)
}

// Flush keeps SSE streaming working through the recorder.
func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (sr *statusRecorder) Unwrap() http.ResponseWriter {
	return sr.ResponseWriter
}

func loggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sr := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(sr, r)

			duration := time.Since(start)
			level := slog.LevelInfo
			if probePath(r.URL.Path) {
				level = slog.LevelDebug
			}

			logger.Log(r.Context(), level, "request",
				"component", "api",
				"method", r.Method,
				"path", r.URL.Path,
				"status", strconv.Itoa(sr.statusCode),
				"duration_ms", duration.Milliseconds(),
				"remote_ip", r.RemoteAddr,
			)
		})
	}
}
