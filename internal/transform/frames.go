// Package transform converts SGP4 output between reference frames.
//
// SGP4 produces TEME (True Equator Mean Equinox) vectors. Miss distances are
// measured in TEME directly; subpoints rotate into the Earth-fixed frame by
// GMST alone and then project onto the WGS-84 ellipsoid. Polar motion and the
// equation of the equinoxes are ignored (tens of metres at most).
//
// All distances are kilometres, all speeds km/s.
package transform

import (
	"math"
	"time"
)

// Plausible geocentric radius bounds for tracked objects, in km.
const (
	MinOrbitRadiusKm = 6200.0
	MaxOrbitRadiusKm = 50000.0
)

// Vec3 is a Cartesian vector.
type Vec3 [3]float64

// Norm returns the Euclidean length of v.
func (v Vec3) Norm() float64 {
	return math.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
}

// Sub returns v - w.
func (v Vec3) Sub(w Vec3) Vec3 {
	return Vec3{v[0] - w[0], v[1] - w[1], v[2] - w[2]}
}

// Finite reports whether no component is NaN or infinite.
func (v Vec3) Finite() bool {
	for _, c := range v {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}

// State is a position and velocity in one frame.
type State struct {
	Pos Vec3
	Vel Vec3
}

// ToECEF rotates a TEME state into the Earth-fixed frame at t.
func ToECEF(teme State, t time.Time) State {
	return rotate(teme, GMST(t))
}

// rotate applies R3(theta) to position and velocity and removes the frame's
// rotation from the velocity: v' = R3 v - ω × r'.
func rotate(s State, theta float64) State {
	sin, cos := math.Sincos(theta)
	r := func(v Vec3) Vec3 {
		return Vec3{cos*v[0] + sin*v[1], cos*v[1] - sin*v[0], v[2]}
	}
	pos := r(s.Pos)
	vel := r(s.Vel)
	vel[0] += OmegaEarth * pos[1]
	vel[1] -= OmegaEarth * pos[0]
	return State{Pos: pos, Vel: vel}
}

// Subpoint returns the geodetic point beneath a TEME position at t.
func Subpoint(teme Vec3, t time.Time) Geodetic {
	return FromECEF(ToECEF(State{Pos: teme}, t).Pos)
}

// Plausible reports whether pos is finite and within the radius bounds of an
// Earth-orbiting object.
func Plausible(pos Vec3) bool {
	if !pos.Finite() {
		return false
	}
	r := pos.Norm()
	return r >= MinOrbitRadiusKm && r <= MaxOrbitRadiusKm
}
