package propagation

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ElementSet is the orbital element set of one tracked object. Callers treat
// it as an opaque token and hand it back to an Adapter.
type ElementSet struct {
	NORADID int
	Line1   string
	Line2   string
}

// tleLineLen is the fixed width of both TLE data lines.
const tleLineLen = 69

// Validate checks the fixed-width layout SGP4 initialisation relies on: two
// 69-column lines numbered 1 and 2 that carry the same catalog number.
func (es ElementSet) Validate() error {
	l1 := strings.TrimSpace(es.Line1)
	l2 := strings.TrimSpace(es.Line2)
	switch {
	case len(l1) != tleLineLen:
		return fmt.Errorf("line 1 has %d columns, want %d", len(l1), tleLineLen)
	case len(l2) != tleLineLen:
		return fmt.Errorf("line 2 has %d columns, want %d", len(l2), tleLineLen)
	case l1[0] != '1' || l2[0] != '2':
		return fmt.Errorf("line numbers %q/%q, want 1/2", l1[0], l2[0])
	case l1[2:7] != l2[2:7]:
		return fmt.Errorf("catalog number mismatch: %q vs %q", l1[2:7], l2[2:7])
	}
	return nil
}

// Subpoint is the geodetic point directly beneath an object.
type Subpoint struct {
	LatDeg      float64
	LonDeg      float64
	ElevationKm float64
}

// StateVector is one object's state at one instant.
// Position and Velocity are inertial (TEME) in km and km/s.
type StateVector struct {
	Time     time.Time
	Position [3]float64
	Velocity [3]float64
	Subpoint Subpoint
}

// Adapter produces state vectors for element sets. Implementations must be
// safe for concurrent use.
type Adapter interface {
	StateAt(es ElementSet, t time.Time) (StateVector, error)
}

// ErrPropagation is matched by every error an Adapter returns.
var ErrPropagation = errors.New("propagation failed")

// PropagationError reports that an element set could not be propagated to an instant.
type PropagationError struct {
	NORADID int
	Time    time.Time
	Err     error
}

func (e *PropagationError) Error() string {
	return fmt.Sprintf("propagating NORAD %d to %s: %v", e.NORADID, e.Time.UTC().Format(time.RFC3339), e.Err)
}

func (e *PropagationError) Unwrap() error { return e.Err }

// Is makes every PropagationError match ErrPropagation.
func (e *PropagationError) Is(target error) bool { return target == ErrPropagation }
