// Package geo holds the coordinate type and the great-circle distance
// calculation the alert engine is built on.
package geo

import "math"

// Coordinate is a latitude/longitude pair in degrees. Values are taken
// as-is from the location or geocoding provider; no range validation
// happens here.
type Coordinate struct {
	Lat float64 `json:"latitude"`
	Lon float64 `json:"longitude"`
}

const (
	degToRad = math.Pi / 180

	// earthDiameterKm is twice the Earth mean radius (R = 6371 km).
	earthDiameterKm = 12742
)

// DistanceKm returns the great-circle distance between a and b in
// kilometers, using the haversine formula on a sphere of Earth's mean
// radius.
func DistanceKm(a, b Coordinate) float64 {
	h := 0.5 - math.Cos((b.Lat-a.Lat)*degToRad)/2 +
		math.Cos(a.Lat*degToRad)*math.Cos(b.Lat*degToRad)*
			(1-math.Cos((b.Lon-a.Lon)*degToRad))/2

	// Floating-point error can push h a hair outside [0, 1] when the
	// points coincide or are antipodal, which would make Asin return NaN.
	if h < 0 {
		h = 0
	} else if h > 1 {
		h = 1
	}

	return earthDiameterKm * math.Asin(math.Sqrt(h))
}
