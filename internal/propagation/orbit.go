package propagation

import (
	"errors"
	"fmt"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"

	"github.com/asride/kessler/internal/transform"
)

// errDegenerateState is returned when SGP4 produces a position no object
// could occupy, typically an element set propagated long past decay.
var errDegenerateState = errors.New("sgp4 produced a degenerate state")

// orbit is an initialised SGP4 model for one element set.
//
// satellite.Propagate takes the model by value and hides SGP4 error codes,
// so failures are detected from the output instead.
type orbit struct {
	sat     satellite.Satellite
	noradID int
}

// newOrbit validates es and initialises its SGP4 model. Validation comes
// first because go-satellite calls log.Fatal on malformed lines.
func newOrbit(es ElementSet) (*orbit, error) {
	if err := es.Validate(); err != nil {
		return nil, err
	}
	sat := satellite.TLEToSat(es.Line1, es.Line2, satellite.GravityWGS84)
	if sat.Error != 0 {
		return nil, fmt.Errorf("sgp4 init: code %d: %s", sat.Error, sat.ErrorStr)
	}
	return &orbit{sat: sat, noradID: es.NORADID}, nil
}

// teme returns position and velocity (km, km/s) at t, resolved to the whole
// second.
func (o *orbit) teme(t time.Time) (transform.State, error) {
	t = t.UTC()
	pos, vel := satellite.Propagate(o.sat, t.Year(), int(t.Month()), t.Day(), t.Hour(), t.Minute(), t.Second())

	state := transform.State{
		Pos: transform.Vec3{pos.X, pos.Y, pos.Z},
		Vel: transform.Vec3{vel.X, vel.Y, vel.Z},
	}
	if !state.Pos.Finite() || !state.Vel.Finite() {
		return transform.State{}, fmt.Errorf("%w: non-finite output", errDegenerateState)
	}
	if !transform.Plausible(state.Pos) {
		return transform.State{}, fmt.Errorf("%w: radius %.1f km", errDegenerateState, state.Pos.Norm())
	}
	return state, nil
}
