package transform

import "math"

// WGS-84 ellipsoid, km.
const (
	wgs84A  = 6378.137
	wgs84F  = 1.0 / 298.257223563
	wgs84E2 = wgs84F * (2 - wgs84F)
)

const (
	latTolerance = 1e-12 // radians
	maxLatIter   = 10
)

// Geodetic is a point relative to the WGS-84 ellipsoid.
type Geodetic struct {
	LatDeg float64
	LonDeg float64
	AltKm  float64
}

// primeVertical is the ellipsoid's radius of curvature in the prime vertical.
func primeVertical(sinLat float64) float64 {
	return wgs84A / math.Sqrt(1-wgs84E2*sinLat*sinLat)
}

// ECEF returns the Earth-fixed position of g.
func (g Geodetic) ECEF() Vec3 {
	lat := g.LatDeg * math.Pi / 180
	lon := g.LonDeg * math.Pi / 180
	sinLat, cosLat := math.Sincos(lat)
	sinLon, cosLon := math.Sincos(lon)
	n := primeVertical(sinLat)
	return Vec3{
		(n + g.AltKm) * cosLat * cosLon,
		(n + g.AltKm) * cosLat * sinLon,
		(n*(1-wgs84E2) + g.AltKm) * sinLat,
	}
}

// FromECEF converts an Earth-fixed position to geodetic coordinates by
// fixed-point iteration on latitude.
func FromECEF(r Vec3) Geodetic {
	p := math.Hypot(r[0], r[1])
	lon := math.Atan2(r[1], r[0])

	lat := math.Atan2(r[2], p*(1-wgs84E2))
	for i := 0; i < maxLatIter; i++ {
		next := math.Atan2(r[2]+wgs84E2*primeVertical(math.Sin(lat))*math.Sin(lat), p)
		done := math.Abs(next-lat) < latTolerance
		lat = next
		if done {
			break
		}
	}

	sinLat, cosLat := math.Sincos(lat)
	n := primeVertical(sinLat)
	var alt float64
	if math.Abs(cosLat) > 1e-10 {
		alt = p/cosLat - n
	} else {
		// Over a pole the horizontal distance carries no information.
		alt = math.Abs(r[2]) - n*(1-wgs84E2)
	}

	return Geodetic{
		LatDeg: lat * 180 / math.Pi,
		LonDeg: lon * 180 / math.Pi,
		AltKm:  alt,
	}
}
