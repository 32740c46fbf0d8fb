package transform

import (
	"time"

	satellite "github.com/joshuaferrara/go-satellite"
)

// OmegaEarth is Earth's rotation rate in rad/s (IAU value).
const OmegaEarth = 7.292115146706979e-5

// JulianDate converts t to a UTC Julian Date, keeping sub-second precision
// that satellite.JDay drops.
func JulianDate(t time.Time) float64 {
	t = t.UTC()
	jd := satellite.JDay(t.Year(), int(t.Month()), t.Day(), t.Hour(), t.Minute(), t.Second())
	return jd + float64(t.Nanosecond())/1e9/86400.0
}

// GMST returns Greenwich Mean Sidereal Time in radians, in [0, 2π), using the
// IAU-82 model.
func GMST(t time.Time) float64 {
	return satellite.ThetaG_JD(JulianDate(t))
}
