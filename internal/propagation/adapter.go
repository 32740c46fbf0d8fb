package propagation

import (
	"log/slog"
	"sync"
	"time"

	"github.com/asride/kessler/internal/metrics"
	"github.com/asride/kessler/internal/transform"
)

// sgp4Entry is a cached propagator, or the error that prevented building one.
type sgp4Entry struct {
	orbit *orbit
	err   error
}

// SGP4Adapter is the Adapter backed by go-satellite. Initialised propagators
// are cached per element set, so repeated calls for the same object skip SGP4
// setup.
type SGP4Adapter struct {
	mu     sync.RWMutex
	cache  map[ElementSet]sgp4Entry
	logger *slog.Logger
}

// NewSGP4Adapter creates an adapter with an empty propagator cache.
func NewSGP4Adapter(logger *slog.Logger) *SGP4Adapter {
	return &SGP4Adapter{
		cache:  make(map[ElementSet]sgp4Entry),
		logger: logger,
	}
}

// propagator returns the cached propagator for es, building it on first use
// (double-checked locking).
func (a *SGP4Adapter) propagator(es ElementSet) (*orbit, error) {
	a.mu.RLock()
	e, ok := a.cache[es]
	a.mu.RUnlock()
	if ok {
		return e.orbit, e.err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if e, ok := a.cache[es]; ok {
		return e.orbit, e.err
	}

	o, err := newOrbit(es)
	if err != nil {
		a.logger.Warn("sgp4 init failed", "component", "propagation", "norad_id", es.NORADID, "error", err)
	}
	a.cache[es] = sgp4Entry{orbit: o, err: err}
	return o, err
}

// StateAt propagates es to t. Errors are *PropagationError.
func (a *SGP4Adapter) StateAt(es ElementSet, t time.Time) (StateVector, error) {
	o, err := a.propagator(es)
	if err != nil {
		metrics.IncPropagationFailures()
		return StateVector{}, &PropagationError{NORADID: es.NORADID, Time: t, Err: err}
	}

	// Use the same whole-second instant for SGP4 and the Earth rotation angle.
	ts := t.UTC().Truncate(time.Second)
	teme, err := o.teme(ts)
	if err != nil {
		metrics.IncPropagationFailures()
		return StateVector{}, &PropagationError{NORADID: es.NORADID, Time: t, Err: err}
	}

	sub := transform.Subpoint(teme.Pos, ts)
	return StateVector{
		Time:     t,
		Position: teme.Pos,
		Velocity: teme.Vel,
		Subpoint: Subpoint{
			LatDeg:      sub.LatDeg,
			LonDeg:      sub.LonDeg,
			ElevationKm: sub.AltKm,
		},
	}, nil
}

// CachedCount returns the number of element sets with a cached propagator.
func (a *SGP4Adapter) CachedCount() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.cache)
}
