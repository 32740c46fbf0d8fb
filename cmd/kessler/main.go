package main

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/asride/kessler/internal/api"
	"github.com/asride/kessler/internal/auth"
	"github.com/asride/kessler/internal/catalog"
	"github.com/asride/kessler/internal/conjunction"
	"github.com/asride/kessler/internal/events"
	"github.com/asride/kessler/internal/propagation"
	"github.com/asride/kessler/internal/stream"
	"github.com/asride/kessler/internal/sweep"
	"github.com/asride/kessler/internal/tle"
	"github.com/asride/kessler/internal/tracing"
)

// defaultSources are the CelesTrak groups loaded when KESSLER_TLE_SOURCES is unset.
var defaultSources = []string{
	"https://celestrak.org/NORAD/elements/gp.php?GROUP=stations&FORMAT=tle",
	"https://celestrak.org/NORAD/elements/gp.php?GROUP=science&FORMAT=tle",
	"https://celestrak.org/NORAD/elements/gp.php?GROUP=weather&FORMAT=tle",
}

type tleConfig struct {
	Sources  []string
	CacheDir string
	MaxFiles int
}

type engineConfig struct {
	Match  catalog.MatchStrategy
	Search conjunction.UniformGrid
	Track  conjunction.TrackConfig
}

type sweepConfig struct {
	Enabled bool
	Workers int
	sweep.Config
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(os.Getenv("KESSLER_LOG_LEVEL")),
	}))

	authCfg, err := loadAuthConfig(logger)
	if err != nil {
		logger.Error("invalid auth configuration", "error", err)
		os.Exit(1)
	}
	engineCfg, err := loadEngineConfig(logger)
	if err != nil {
		logger.Error("invalid engine configuration", "error", err)
		os.Exit(1)
	}
	serverCfg := loadServerConfig(logger)
	serverCfg.Auth = authCfg
	serverCfg.Stream = loadStreamConfig(logger)
	tleCfg := loadTLEConfig(logger)
	storeCfg := loadStoreConfig(logger)
	sweepCfg := loadSweepConfig(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, loadTracingConfig(logger), logger)
	if err != nil {
		logger.Error("tracing init failed", "error", err)
		os.Exit(1)
	}

	// The catalog is fully loaded before the server accepts requests.
	var tleCache *tle.Cache
	if tleCfg.CacheDir != "" {
		tleCache = tle.NewCache(tleCfg.CacheDir, tleCfg.MaxFiles)
	}
	sources := make([]tle.Source, 0, len(tleCfg.Sources))
	for _, loc := range tleCfg.Sources {
		sources = append(sources, tle.WithCache(tle.NewSource(loc, logger), tleCache, logger))
	}
	cat := catalog.New(logger, catalog.WithMatchStrategy(engineCfg.Match))
	report := cat.Ingest(ctx, sources)
	logger.Info("catalog ready",
		"objects", report.Loaded,
		"sources", report.Sources,
		"failed_sources", len(report.Failures),
	)

	store, err := events.Open(ctx, storeCfg, logger)
	if err != nil {
		logger.Error("event store unavailable", "backend", storeCfg.Backend, "error", err)
		os.Exit(1)
	}
	recorder := events.NewRecorder(store, events.DefaultWriteTimeout, logger)

	adapter := propagation.NewSGP4Adapter(logger)
	engine := conjunction.NewEngine(cat, adapter, logger,
		conjunction.WithSearch(engineCfg.Search),
		conjunction.WithTrackConfig(engineCfg.Track),
		conjunction.WithAuditSink(recorder),
	)

	sweepDone := make(chan struct{})
	if sweepCfg.Enabled {
		pool := propagation.NewWorkerPool(sweepCfg.Workers, logger)
		sweeper := sweep.New(engine, cat, store, pool, sweepCfg.Config, logger)
		go func() {
			defer close(sweepDone)
			sweeper.Run(ctx)
		}()
	} else {
		close(sweepDone)
	}

	srv := api.NewServer(serverCfg, api.Deps{Catalog: cat, Engine: engine, Store: store}, logger)

	// Drop idle per-IP limiters.
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				srv.EvictIdleClients(10 * time.Minute)
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		logger.Info("starting server",
			"addr", serverCfg.Addr,
			"auth_enabled", authCfg.Enabled,
			"event_store", storeCfg.Backend,
			"sweep_enabled", sweepCfg.Enabled,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server listen error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.HTTPServer().Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
	<-sweepDone
	recorder.Wait()
	if err := store.Close(); err != nil {
		logger.Warn("event store close error", "error", err)
	}
	tracing.Shutdown(shutdownCtx, shutdownTracing, logger)

	logger.Info("server stopped")
}

func logLevel(v string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(v)); err != nil {
		return slog.LevelInfo
	}
	return level
}

func loadAuthConfig(logger *slog.Logger) (auth.Config, error) {
	cfg := auth.Config{}

	enabledStr := os.Getenv("KESSLER_AUTH_ENABLED")
	if enabledStr != "" {
		enabled, err := strconv.ParseBool(enabledStr)
		if err != nil {
			return cfg, errors.New("KESSLER_AUTH_ENABLED must be a boolean value (true/false/1/0)")
		}
		cfg.Enabled = enabled
	}

	if cfg.Enabled {
		cfg.Token = os.Getenv("KESSLER_AUTH_TOKEN")
		if cfg.Token == "" {
			return cfg, errors.New("KESSLER_AUTH_TOKEN is required when auth is enabled")
		}
		logger.Info("auth enabled")
	}

	return cfg, nil
}

func loadServerConfig(logger *slog.Logger) api.Config {
	cfg := api.DefaultConfig()

	if v := os.Getenv("KESSLER_HTTP_ADDR"); v != "" {
		cfg.Addr = v
	}

	if v := os.Getenv("KESSLER_RATE_LIMIT_RPS"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 {
			logger.Warn("invalid KESSLER_RATE_LIMIT_RPS value, using default", "value", v, "default", cfg.RateLimitRPS)
		} else {
			cfg.RateLimitRPS = f
		}
	}

	if v := os.Getenv("KESSLER_RATE_LIMIT_BURST"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid KESSLER_RATE_LIMIT_BURST value, using default", "value", v, "default", cfg.RateLimitBurst)
		} else {
			cfg.RateLimitBurst = n
		}
	}

	if v := os.Getenv("KESSLER_TRUST_PROXY"); v != "" {
		trust, err := strconv.ParseBool(v)
		if err != nil {
			logger.Warn("invalid KESSLER_TRUST_PROXY value, defaulting to false", "value", v)
		} else {
			cfg.TrustProxy = trust
		}
	}

	if v := os.Getenv("KESSLER_ANALYZE_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			logger.Warn("invalid KESSLER_ANALYZE_TIMEOUT value, using default", "value", v, "default", cfg.AnalyzeTimeout)
		} else {
			cfg.AnalyzeTimeout = d
		}
	}

	logger.Info("server config",
		"addr", cfg.Addr,
		"analyze_timeout", cfg.AnalyzeTimeout,
		"rate_limit_rps", cfg.RateLimitRPS,
		"rate_limit_burst", cfg.RateLimitBurst,
		"trust_proxy", cfg.TrustProxy,
	)

	return cfg
}

func loadTLEConfig(logger *slog.Logger) tleConfig {
	cfg := tleConfig{
		Sources:  defaultSources,
		CacheDir: "/tmp/kessler/tle",
		MaxFiles: 5,
	}

	if v := os.Getenv("KESSLER_TLE_SOURCES"); v != "" {
		cfg.Sources = splitList(v)
	}

	if v, ok := os.LookupEnv("KESSLER_TLE_CACHE_DIR"); ok {
		cfg.CacheDir = v
	}

	logger.Info("TLE config",
		"sources", cfg.Sources,
		"cache_dir", cfg.CacheDir,
	)

	return cfg
}

func loadEngineConfig(logger *slog.Logger) (engineConfig, error) {
	cfg := engineConfig{
		Search: conjunction.DefaultUniformGrid(),
		Track:  conjunction.DefaultTrackConfig(),
	}

	match, err := catalog.ParseMatchStrategy(os.Getenv("KESSLER_MATCH_STRATEGY"))
	if err != nil {
		return cfg, err
	}
	cfg.Match = match

	if v := os.Getenv("KESSLER_SEARCH_WINDOW_MINUTES"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || !(f > 0) || math.IsInf(f, 1) {
			logger.Warn("invalid KESSLER_SEARCH_WINDOW_MINUTES value, using default", "value", v, "default", conjunction.DefaultWindowMinutes)
		} else {
			cfg.Search.WindowMinutes = f
		}
	}

	if v := os.Getenv("KESSLER_SEARCH_SAMPLES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid KESSLER_SEARCH_SAMPLES value, using default", "value", v, "default", conjunction.DefaultSamples)
		} else {
			cfg.Search.Samples = n
		}
	}

	logger.Info("engine config",
		"match_strategy", cfg.Match.Name(),
		"search_window_minutes", cfg.Search.WindowMinutes,
		"search_samples", cfg.Search.Samples,
	)

	return cfg, nil
}

func loadStoreConfig(logger *slog.Logger) events.Config {
	cfg := events.DefaultConfig()

	if v := os.Getenv("KESSLER_EVENT_STORE"); v != "" {
		cfg.Backend = strings.ToLower(v)
	}
	if v := os.Getenv("KESSLER_MYSQL_DSN"); v != "" {
		cfg.MySQLDSN = v
	}
	if v := os.Getenv("KESSLER_REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}

	if v := os.Getenv("KESSLER_REDIS_DB"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			logger.Warn("invalid KESSLER_REDIS_DB value, using default", "value", v, "default", cfg.RedisDB)
		} else {
			cfg.RedisDB = n
		}
	}

	logger.Info("event store config",
		"backend", cfg.Backend,
		"redis_addr", cfg.RedisAddr,
	)

	return cfg
}

func loadSweepConfig(logger *slog.Logger) sweepConfig {
	cfg := sweepConfig{
		Workers: runtime.NumCPU(),
		Config:  sweep.DefaultConfig(),
	}

	if v := os.Getenv("KESSLER_SWEEP_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			logger.Warn("invalid KESSLER_SWEEP_ENABLED value, defaulting to false", "value", v)
		} else {
			cfg.Enabled = enabled
		}
	}

	if v := os.Getenv("KESSLER_SWEEP_INTERVAL"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid KESSLER_SWEEP_INTERVAL value, using default", "value", v, "default", cfg.Interval.Seconds())
		} else {
			cfg.Interval = time.Duration(n) * time.Second
		}
	}

	if v := os.Getenv("KESSLER_SWEEP_PRIMARIES"); v != "" {
		cfg.Primaries = splitList(v)
	}
	if v := os.Getenv("KESSLER_SWEEP_SECONDARY"); v != "" {
		cfg.SecondaryTerm = v
	}

	if v := os.Getenv("KESSLER_SWEEP_MAX_PAIRS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid KESSLER_SWEEP_MAX_PAIRS value, using default", "value", v, "default", cfg.MaxPairs)
		} else {
			cfg.MaxPairs = n
		}
	}

	if v := os.Getenv("KESSLER_SWEEP_THRESHOLD"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 || f > 100 {
			logger.Warn("invalid KESSLER_SWEEP_THRESHOLD value, using default", "value", v, "default", cfg.Threshold)
		} else {
			cfg.Threshold = f
		}
	}

	if v := os.Getenv("KESSLER_SWEEP_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid KESSLER_SWEEP_WORKERS value, using default", "value", v, "default", cfg.Workers)
		} else {
			cfg.Workers = n
		}
	}

	logger.Info("sweep config",
		"enabled", cfg.Enabled,
		"interval_seconds", cfg.Interval.Seconds(),
		"primaries", cfg.Primaries,
		"secondary", cfg.SecondaryTerm,
		"max_pairs", cfg.MaxPairs,
		"threshold", cfg.Threshold,
		"workers", cfg.Workers,
	)

	return cfg
}

func loadStreamConfig(logger *slog.Logger) stream.Config {
	cfg := stream.DefaultConfig()

	if v := os.Getenv("KESSLER_STREAM_MAX_CONCURRENT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid KESSLER_STREAM_MAX_CONCURRENT value, using default", "value", v, "default", cfg.MaxConcurrentPerIP)
		} else {
			cfg.MaxConcurrentPerIP = n
		}
	}

	if v := os.Getenv("KESSLER_STREAM_MAX_TOTAL"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid KESSLER_STREAM_MAX_TOTAL value, using default", "value", v, "default", cfg.MaxTotal)
		} else {
			cfg.MaxTotal = n
		}
	}

	if v := os.Getenv("KESSLER_STREAM_POLL_INTERVAL"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid KESSLER_STREAM_POLL_INTERVAL value, using default", "value", v, "default", cfg.PollInterval.Seconds())
		} else {
			cfg.PollInterval = time.Duration(n) * time.Second
		}
	}

	if v := os.Getenv("KESSLER_STREAM_KEEPALIVE_INTERVAL"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid KESSLER_STREAM_KEEPALIVE_INTERVAL value, using default", "value", v, "default", cfg.KeepaliveInterval.Seconds())
		} else {
			cfg.KeepaliveInterval = time.Duration(n) * time.Second
		}
	}

	logger.Info("stream config",
		"max_concurrent_per_ip", cfg.MaxConcurrentPerIP,
		"max_total", cfg.MaxTotal,
		"poll_interval_seconds", cfg.PollInterval.Seconds(),
		"keepalive_interval_seconds", cfg.KeepaliveInterval.Seconds(),
	)

	return cfg
}

func loadTracingConfig(logger *slog.Logger) tracing.Config {
	cfg := tracing.DefaultConfig()

	if v := os.Getenv("KESSLER_TRACING_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			logger.Warn("invalid KESSLER_TRACING_ENABLED value, defaulting to false", "value", v)
		} else {
			cfg.Enabled = enabled
		}
	}
	if v := os.Getenv("KESSLER_TRACING_EXPORTER"); v != "" {
		cfg.Exporter = v
	}
	if v := os.Getenv("KESSLER_TRACING_ENDPOINT"); v != "" {
		cfg.Endpoint = v
	}

	if v := os.Getenv("KESSLER_TRACING_SAMPLE_RATIO"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 || f > 1 {
			logger.Warn("invalid KESSLER_TRACING_SAMPLE_RATIO value, using default", "value", v, "default", cfg.SampleRatio)
		} else {
			cfg.SampleRatio = f
		}
	}

	return cfg
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
