// Package sweep periodically screens configured primary assets against a
// set of secondary objects and raises a risk event for every pair whose
// score crosses the alert threshold.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/asride/kessler/internal/catalog"
	"github.com/asride/kessler/internal/conjunction"
	"github.com/asride/kessler/internal/events"
	"github.com/asride/kessler/internal/metrics"
	"github.com/asride/kessler/internal/propagation"
)

const tracerName = "github.com/asride/kessler/internal/sweep"

// Analyzer runs one analysis at an explicit instant.
type Analyzer interface {
	AnalyzeAt(ctx context.Context, q conjunction.Query, ref time.Time) (conjunction.Result, error)
}

// Catalog is the catalog view the sweep needs to build pairs.
type Catalog interface {
	Resolve(name string) (catalog.TrackedObject, error)
	ListMatching(term string, limit int) []catalog.TrackedObject
}

// Config controls pair selection and scheduling.
type Config struct {
	Interval      time.Duration
	Primaries     []string
	SecondaryTerm string
	MaxPairs      int
	Threshold     float64
}

// DefaultConfig screens the ISS against catalogued debris every five minutes.
func DefaultConfig() Config {
	return Config{
		Interval:      5 * time.Minute,
		Primaries:     []string{"ISS (ZARYA)"},
		SecondaryTerm: "DEB",
		MaxPairs:      200,
		Threshold:     80,
	}
}

// Pair is one primary/secondary combination to assess.
type Pair struct {
	Primary   string
	Secondary string
}

// Report summarises one sweep pass.
type Report struct {
	Reference     time.Time
	Pairs         int
	Evaluated     int
	Failed        int
	Alerts        int
	StoreFailures int
	Duration      time.Duration
}

// Sweeper runs sweep passes on a worker pool.
type Sweeper struct {
	engine  Analyzer
	catalog Catalog
	store   events.Store
	pool    *propagation.WorkerPool
	cfg     Config
	now     func() time.Time
	tracer  trace.Tracer
	logger  *slog.Logger
}

// New returns a Sweeper writing alerts to store.
func New(engine Analyzer, cat Catalog, store events.Store, pool *propagation.WorkerPool, cfg Config, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		engine:  engine,
		catalog: cat,
		store:   store,
		pool:    pool,
		cfg:     cfg,
		now:     time.Now,
		tracer:  otel.Tracer(tracerName),
		logger:  logger,
	}
}

// Pairs builds the pair list: every resolvable primary against each
// secondary matching SecondaryTerm, excluding itself, capped at MaxPairs.
func (s *Sweeper) Pairs() []Pair {
	limit := s.cfg.MaxPairs
	if limit <= 0 {
		limit = DefaultConfig().MaxPairs
	}
	secondaries := s.catalog.ListMatching(s.cfg.SecondaryTerm, limit)

	var pairs []Pair
	for _, name := range s.cfg.Primaries {
		primary, err := s.catalog.Resolve(name)
		if err != nil {
			s.logger.Warn("sweep primary not found", "component", "sweep", "primary", name, "error", err)
			continue
		}
		for _, sec := range secondaries {
			if len(pairs) >= limit {
				return pairs
			}
			if sec.Name == primary.Name {
				continue
			}
			pairs = append(pairs, Pair{Primary: primary.Name, Secondary: sec.Name})
		}
	}
	return pairs
}

// RunOnce screens every pair at ref. A failing pair is logged and counted;
// only cancellation of ctx is returned as an error.
func (s *Sweeper) RunOnce(ctx context.Context, ref time.Time) (Report, error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "sweep.run")
	defer span.End()

	pairs := s.Pairs()
	report := Report{Reference: ref.UTC(), Pairs: len(pairs)}

	var alerts, storeFailures atomic.Int64
	ok, failed := s.pool.Run(ctx, len(pairs), func(ctx context.Context, idx int) error {
		p := pairs[idx]
		res, err := s.engine.AnalyzeAt(ctx, conjunction.Query{ObjectA: p.Primary, ObjectB: p.Secondary}, ref)
		if err != nil {
			return fmt.Errorf("%s / %s: %w", p.Primary, p.Secondary, err)
		}
		if res.RiskScore <= s.cfg.Threshold {
			return nil
		}
		alerts.Add(1)
		err = s.store.AppendEvent(ctx, events.EventFromResult(res))
		metrics.RecordEventWrite("event", err)
		if err != nil {
			storeFailures.Add(1)
			s.logger.Warn("risk event write failed",
				"component", "sweep",
				"primary", p.Primary,
				"secondary", p.Secondary,
				"error", err,
			)
		}
		return nil
	})

	report.Evaluated = ok
	report.Failed = failed
	report.Alerts = int(alerts.Load())
	report.StoreFailures = int(storeFailures.Load())
	report.Duration = time.Since(start)

	metrics.RecordSweep(report.Duration, report.Evaluated, report.Alerts, report.Failed)
	span.SetAttributes(
		attribute.Int("pairs", report.Pairs),
		attribute.Int("alerts", report.Alerts),
		attribute.Int("failed", report.Failed),
	)
	s.logger.Info("sweep complete",
		"component", "sweep",
		"pairs", report.Pairs,
		"evaluated", report.Evaluated,
		"failed", report.Failed,
		"alerts", report.Alerts,
		"duration_ms", report.Duration.Milliseconds(),
	)
	return report, ctx.Err()
}

// Run sweeps immediately and then every Interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	interval := s.cfg.Interval
	if interval <= 0 {
		interval = DefaultConfig().Interval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := s.RunOnce(ctx, s.now()); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("sweep failed", "component", "sweep", "error", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
