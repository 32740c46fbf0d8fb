// Package conjunction assesses collision risk between two catalogued objects.
//
// An analysis resolves both names, runs the closest-approach search, scores
// the result and samples both ground tracks. The Engine holds no mutable
// state of its own; concurrent analyses share only the read-only catalog and
// the propagation adapter.
package conjunction

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/asride/kessler/internal/catalog"
	"github.com/asride/kessler/internal/metrics"
	"github.com/asride/kessler/internal/propagation"
	"github.com/asride/kessler/internal/risk"
)

const tracerName = "github.com/asride/kessler/internal/conjunction"

// Catalog is the read side of the object catalog the engine needs.
type Catalog interface {
	Resolve(name string) (catalog.TrackedObject, error)
	Matching(term string) iter.Seq[catalog.TrackedObject]
}

// AuditSink persists completed analyses. Record must not block; the returned
// channel yields the outcome once and is then closed.
type AuditSink interface {
	Record(ctx context.Context, r Result) <-chan error
}

// Query names the two objects to assess.
type Query struct {
	ObjectA string `json:"object_a_name"`
	ObjectB string `json:"object_b_name"`
}

// ObjectReport describes one object at the reference instant.
type ObjectReport struct {
	Name        string      `json:"name"`
	NORADID     int         `json:"norad_id"`
	Lat         float64     `json:"lat"`
	Lon         float64     `json:"lon"`
	Alt         float64     `json:"alt"`
	VelocityKmS float64     `json:"velocity_km_s"`
	GroundTrack GroundTrack `json:"ground_track"`
}

// Result is one conjunction assessment.
type Result struct {
	ReferenceTime          time.Time    `json:"reference_time"`
	MissDistanceKm         float64      `json:"miss_distance_km"`
	TimeToClosestApproachS float64      `json:"time_to_closest_approach_s"`
	RelativeVelocityKmS    float64      `json:"relative_velocity_km_s"`
	RiskScore              float64      `json:"risk_score"`
	DecisionTier           risk.Tier    `json:"decision_tier"`
	Decision               string       `json:"decision"`
	ObjectA                ObjectReport `json:"object_a"`
	ObjectB                ObjectReport `json:"object_b"`
}

// Analysis is a result together with the outcome of persisting it. The
// result is final as soon as Analyze returns; Persisted yields nil or the
// persistence error once the audit write finishes and is then closed.
type Analysis struct {
	Result    Result
	Persisted <-chan error
}

// Engine runs conjunction analyses.
type Engine struct {
	catalog Catalog
	adapter propagation.Adapter
	search  SearchStrategy
	track   TrackConfig
	audit   AuditSink
	tracer  trace.Tracer
	now     func() time.Time
	logger  *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithSearch replaces the default uniform grid search.
func WithSearch(s SearchStrategy) Option {
	return func(e *Engine) { e.search = s }
}

// WithTrackConfig replaces the default ground-track window.
func WithTrackConfig(cfg TrackConfig) Option {
	return func(e *Engine) { e.track = cfg }
}

// WithAuditSink persists every result produced by Analyze.
func WithAuditSink(s AuditSink) Option {
	return func(e *Engine) { e.audit = s }
}

// WithClock sets the source of reference instants for Analyze.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithTracer replaces the tracer taken from the global provider.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) { e.tracer = t }
}

// NewEngine returns an engine over cat and adapter.
func NewEngine(cat Catalog, adapter propagation.Adapter, logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		catalog: cat,
		adapter: adapter,
		search:  DefaultUniformGrid(),
		track:   DefaultTrackConfig(),
		tracer:  otel.Tracer(tracerName),
		now:     time.Now,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Analyze assesses q at the current instant and hands the result to the
// audit sink, if any. Persistence never fails or delays the analysis.
func (e *Engine) Analyze(ctx context.Context, q Query) (*Analysis, error) {
	res, err := e.AnalyzeAt(ctx, q, e.now())
	if err != nil {
		return nil, err
	}

	a := &Analysis{Result: res}
	if e.audit != nil {
		a.Persisted = e.audit.Record(context.WithoutCancel(ctx), res)
	} else {
		done := make(chan error)
		close(done)
		a.Persisted = done
	}
	return a, nil
}

// AnalyzeAt assesses q at ref without persisting anything.
func (e *Engine) AnalyzeAt(ctx context.Context, q Query, ref time.Time) (Result, error) {
	start := time.Now()
	ref = ref.UTC()

	ctx, span := e.tracer.Start(ctx, "conjunction.analyze", trace.WithAttributes(
		attribute.String("object_a", q.ObjectA),
		attribute.String("object_b", q.ObjectB),
	))
	defer span.End()

	res, err := e.analyze(ctx, q, ref)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		metrics.IncAnalysisFailures(failureReason(err))
		return Result{}, err
	}

	span.SetAttributes(
		attribute.Float64("miss_distance_km", res.MissDistanceKm),
		attribute.Float64("risk_score", res.RiskScore),
		attribute.String("decision_tier", res.DecisionTier.String()),
	)
	metrics.ObserveAnalysis(time.Since(start), res.DecisionTier.String())
	e.logger.Debug("conjunction analysed",
		"component", "conjunction",
		"object_a", res.ObjectA.Name,
		"object_b", res.ObjectB.Name,
		"miss_distance_km", res.MissDistanceKm,
		"risk_score", res.RiskScore,
		"tier", res.DecisionTier.String(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}

func (e *Engine) analyze(ctx context.Context, q Query, ref time.Time) (Result, error) {
	objA, err := e.catalog.Resolve(q.ObjectA)
	if err != nil {
		return Result{}, err
	}
	objB, err := e.catalog.Resolve(q.ObjectB)
	if err != nil {
		return Result{}, err
	}

	stateA, err := e.adapter.StateAt(objA.Elements, ref)
	if err != nil {
		return Result{}, fmt.Errorf("%s: %w", objA.Name, err)
	}
	stateB, err := e.adapter.StateAt(objB.Elements, ref)
	if err != nil {
		return Result{}, fmt.Errorf("%s: %w", objB.Name, err)
	}

	approach, err := e.search.FindClosestApproach(ctx, e.adapter, objA.Elements, objB.Elements, ref)
	if err != nil {
		return Result{}, fmt.Errorf("closest approach %s / %s: %w", objA.Name, objB.Name, err)
	}

	relVel := [3]float64{
		stateA.Velocity[0] - stateB.Velocity[0],
		stateA.Velocity[1] - stateB.Velocity[1],
		stateA.Velocity[2] - stateB.Velocity[2],
	}
	relSpeed := magnitude(relVel)
	score, tier := risk.Score(approach.MissDistanceKm, relSpeed)

	reportA, err := e.report(objA, stateA, ref)
	if err != nil {
		return Result{}, err
	}
	reportB, err := e.report(objB, stateB, ref)
	if err != nil {
		return Result{}, err
	}

	return Result{
		ReferenceTime:          ref,
		MissDistanceKm:         approach.MissDistanceKm,
		TimeToClosestApproachS: approach.OffsetSeconds,
		RelativeVelocityKmS:    relSpeed,
		RiskScore:              score,
		DecisionTier:           tier,
		Decision:               tier.Advisory(),
		ObjectA:                reportA,
		ObjectB:                reportB,
	}, nil
}

func (e *Engine) report(obj catalog.TrackedObject, sv propagation.StateVector, ref time.Time) (ObjectReport, error) {
	track, err := SampleGroundTrack(e.adapter, obj.Elements, ref, e.track)
	if err != nil {
		return ObjectReport{}, fmt.Errorf("ground track %s: %w", obj.Name, err)
	}
	return ObjectReport{
		Name:        obj.Name,
		NORADID:     obj.NORADID,
		Lat:         sv.Subpoint.LatDeg,
		Lon:         sv.Subpoint.LonDeg,
		Alt:         sv.Subpoint.ElevationKm,
		VelocityKmS: magnitude(sv.Velocity),
		GroundTrack: track,
	}, nil
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, catalog.ErrObjectNotFound):
		return "not_found"
	case errors.Is(err, catalog.ErrCatalogNotLoaded):
		return "not_loaded"
	case errors.Is(err, propagation.ErrPropagation):
		return "propagation"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "other"
	}
}
