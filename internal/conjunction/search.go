package conjunction

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/asride/kessler/internal/propagation"
)

// Approach is the closest approach found within a search window.
type Approach struct {
	MissDistanceKm float64
	OffsetSeconds  float64
}

// SearchStrategy finds the instant within a lookahead window at which two
// objects are closest. Implementations must query both objects at identical
// instants and abort on the first propagation failure.
type SearchStrategy interface {
	FindClosestApproach(ctx context.Context, adapter propagation.Adapter, a, b propagation.ElementSet, ref time.Time) (Approach, error)
}

// Default search grid.
const (
	DefaultWindowMinutes = 60.0
	DefaultSamples       = 120
)

// UniformGrid samples the window at Samples evenly spaced instants after the
// reference instant, which is itself the initial candidate. Resolution is
// WindowMinutes/Samples, so the true minimum between grid points is not
// found. Every sample is evaluated.
type UniformGrid struct {
	WindowMinutes float64
	Samples       int
}

// DefaultUniformGrid returns the 60 minute, 120 sample grid.
func DefaultUniformGrid() UniformGrid {
	return UniformGrid{WindowMinutes: DefaultWindowMinutes, Samples: DefaultSamples}
}

// FindClosestApproach makes exactly Samples+1 StateAt calls per object.
// A sample replaces the current minimum only when strictly closer, so ties
// keep the earliest offset.
func (g UniformGrid) FindClosestApproach(ctx context.Context, adapter propagation.Adapter, a, b propagation.ElementSet, ref time.Time) (Approach, error) {
	if g.Samples <= 0 || g.WindowMinutes <= 0 {
		return Approach{}, fmt.Errorf("invalid search grid: window=%v min samples=%d", g.WindowMinutes, g.Samples)
	}

	best, err := separation(adapter, a, b, ref)
	if err != nil {
		return Approach{}, err
	}
	approach := Approach{MissDistanceKm: best}

	stepMinutes := g.WindowMinutes / float64(g.Samples)
	for i := 1; i <= g.Samples; i++ {
		if err := ctx.Err(); err != nil {
			return Approach{}, err
		}
		offset := time.Duration(float64(i) * stepMinutes * float64(time.Minute))
		d, err := separation(adapter, a, b, ref.Add(offset))
		if err != nil {
			return Approach{}, err
		}
		if d < approach.MissDistanceKm {
			approach = Approach{MissDistanceKm: d, OffsetSeconds: offset.Seconds()}
		}
	}
	return approach, nil
}

// separation is the straight-line distance between a and b at t, in the
// adapter's inertial frame.
func separation(adapter propagation.Adapter, a, b propagation.ElementSet, t time.Time) (float64, error) {
	sa, err := adapter.StateAt(a, t)
	if err != nil {
		return 0, err
	}
	sb, err := adapter.StateAt(b, t)
	if err != nil {
		return 0, err
	}
	return distance(sa.Position, sb.Position), nil
}

func distance(p, q [3]float64) float64 {
	dx := p[0] - q[0]
	dy := p[1] - q[1]
	dz := p[2] - q[2]
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

func magnitude(v [3]float64) float64 {
	return math.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
}
