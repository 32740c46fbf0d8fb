package transform

import (
	"math"
	"testing"
	"time"
)

func TestGeodeticECEFAxes(t *testing.T) {
	// Sea level on the equator sits on the semi-major axis, the pole on the
	// semi-minor axis.
	if r := (Geodetic{}).ECEF().Norm(); math.Abs(r-6378.137) > 1e-6 {
		t.Errorf("equatorial radius = %.6f km, want 6378.137", r)
	}
	if r := (Geodetic{LatDeg: 90}).ECEF().Norm(); math.Abs(r-6356.7523) > 1e-3 {
		t.Errorf("polar radius = %.4f km, want ~6356.752", r)
	}
}

func TestFromECEFRoundTrip(t *testing.T) {
	tests := []Geodetic{
		{LatDeg: 0, LonDeg: 0, AltKm: 420},
		{LatDeg: 51.64, LonDeg: -74.0, AltKm: 415},
		{LatDeg: -33.9, LonDeg: 151.2, AltKm: 550},
		{LatDeg: 55.0, LonDeg: 179.5, AltKm: 20200},
		{LatDeg: -89.9, LonDeg: 10, AltKm: 800},
	}

	for _, want := range tests {
		got := FromECEF(want.ECEF())
		if math.Abs(got.LatDeg-want.LatDeg) > 1e-6 || math.Abs(got.LonDeg-want.LonDeg) > 1e-6 {
			t.Errorf("lat/lon = %.8f/%.8f, want %.8f/%.8f", got.LatDeg, got.LonDeg, want.LatDeg, want.LonDeg)
		}
		if math.Abs(got.AltKm-want.AltKm) > 1e-5 {
			t.Errorf("alt = %.6f km, want %.6f km", got.AltKm, want.AltKm)
		}
	}
}

func TestFromECEFOverPole(t *testing.T) {
	got := FromECEF(Vec3{0, 0, 7000})
	if math.Abs(got.LatDeg-90) > 1e-9 {
		t.Errorf("lat = %.9f, want 90", got.LatDeg)
	}
	if want := 7000 - 6356.7523; math.Abs(got.AltKm-want) > 1e-3 {
		t.Errorf("alt = %.4f km, want %.4f", got.AltKm, want)
	}
}

func TestSubpointAltitude(t *testing.T) {
	// A point 6778 km out in the equatorial plane is ~400 km above the equator
	// whatever the rotation angle.
	sub := Subpoint(Vec3{6778, 0, 0}, time.Date(2026, 2, 6, 12, 0, 0, 0, time.UTC))

	if math.Abs(sub.LatDeg) > 1e-6 {
		t.Errorf("lat = %.6f, want 0", sub.LatDeg)
	}
	if math.Abs(sub.AltKm-(6778.0-6378.137)) > 1e-6 {
		t.Errorf("alt = %.3f km, want %.3f km", sub.AltKm, 6778.0-6378.137)
	}
	if sub.LonDeg < -180 || sub.LonDeg > 180 {
		t.Errorf("lon = %.3f out of range", sub.LonDeg)
	}
}
