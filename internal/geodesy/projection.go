// Package geodesy converts between geodetic coordinates and a local
// north/east tangent plane anchored at a reference point. The projection is
// equirectangular and only valid over short baselines.
package geodesy

import (
	"math"

	geo "github.com/kellydunn/golang-geo"
)

// EarthRadius is the mean earth radius in metres used by the projection.
const EarthRadius = 6371000.0

// Coordinate is a geodetic position in degrees.
type Coordinate struct {
	Latitude  float64
	Longitude float64
}

func degToRad(d float64) float64 { return d * math.Pi / 180 }
func radToDeg(r float64) float64 { return r * 180 / math.Pi }

// ToLocal returns the north and east offsets in metres of c from ref.
func ToLocal(ref, c Coordinate) (north, east float64) {
	dLat := degToRad(c.Latitude - ref.Latitude)
	dLon := degToRad(c.Longitude - ref.Longitude)
	north = dLat * EarthRadius
	east = dLon * EarthRadius * math.Cos(degToRad(ref.Latitude))
	return north, east
}

// FromLocal is the inverse of ToLocal.
func FromLocal(ref Coordinate, north, east float64) Coordinate {
	dLat := radToDeg(north / EarthRadius)
	dLon := radToDeg(east / (EarthRadius * math.Cos(degToRad(ref.Latitude))))
	return Coordinate{
		Latitude:  ref.Latitude + dLat,
		Longitude: ref.Longitude + dLon,
	}
}

// Distance returns the great-circle distance between a and b in metres.
// Used to report calibration residuals, which are independent of the
// projection's flat-earth assumption.
func Distance(a, b Coordinate) float64 {
	pa := geo.NewPoint(a.Latitude, a.Longitude)
	pb := geo.NewPoint(b.Latitude, b.Longitude)
	return pa.GreatCircleDistance(pb) * 1000
}
