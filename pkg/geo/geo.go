// Package geo provides the small amount of spherical geometry the guidance
// engine needs: great-circle distance, initial bearing and circular angle math.
package geo

import (
	"fmt"
	"math"
)

// EarthRadiusMeters is the mean Earth radius used for haversine distances.
const EarthRadiusMeters = 6371000.0

// Point is a WGS84 coordinate in decimal degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// String formats the point as "lat,lon" with 6 decimals (~10 cm).
func (p Point) String() string {
	return fmt.Sprintf("%.6f,%.6f", p.Lat, p.Lon)
}

// Valid reports whether the point is finite and inside the WGS84 range.
func (p Point) Valid() bool {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lon) || math.IsInf(p.Lat, 0) || math.IsInf(p.Lon, 0) {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lon >= -180 && p.Lon <= 180
}

// Distance returns the haversine distance in meters between a and b.
func Distance(a, b Point) float64 {
	lat1 := Radians(a.Lat)
	lat2 := Radians(b.Lat)
	dLat := Radians(b.Lat - a.Lat)
	dLon := Radians(b.Lon - a.Lon)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return EarthRadiusMeters * c
}

// Bearing returns the initial great-circle bearing from a to b in [0,360).
// 0 is north, 90 is east.
func Bearing(a, b Point) float64 {
	lat1 := Radians(a.Lat)
	lat2 := Radians(b.Lat)
	dLon := Radians(b.Lon - a.Lon)

	y := math.Sin(dLon) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLon)

	return Normalize(Degrees(math.Atan2(y, x)))
}

// Offset returns the point reached by travelling meters along bearingDeg from p.
// Used by the simulator and tests to place points at known distances.
func Offset(p Point, bearingDeg, meters float64) Point {
	lat1 := Radians(p.Lat)
	lon1 := Radians(p.Lon)
	brng := Radians(bearingDeg)
	d := meters / EarthRadiusMeters

	lat2 := math.Asin(math.Sin(lat1)*math.Cos(d) + math.Cos(lat1)*math.Sin(d)*math.Cos(brng))
	lon2 := lon1 + math.Atan2(math.Sin(brng)*math.Sin(d)*math.Cos(lat1), math.Cos(d)-math.Sin(lat1)*math.Sin(lat2))

	return Point{Lat: Degrees(lat2), Lon: Normalize(Degrees(lon2)+180) - 180}
}

// Normalize maps any angle in degrees to [0,360).
func Normalize(deg float64) float64 {
	d := math.Mod(deg, 360)
	if d < 0 {
		d += 360
	}
	if d >= 360 {
		d = 0
	}
	return d
}

// ShortestDelta returns the signed shortest rotation from `from` to `to` in
// degrees, in [-180,180). Positive means clockwise (to the right).
//
// This is ((to - from + 540) mod 360) - 180, computed so that inputs outside
// [0,360) still wrap correctly.
func ShortestDelta(from, to float64) float64 {
	return Normalize(to-from+540) - 180
}

// Radians converts degrees to radians.
func Radians(deg float64) float64 {
	return deg * math.Pi / 180.0
}

// Degrees converts radians to degrees.
func Degrees(rad float64) float64 {
	return rad * 180.0 / math.Pi
}
