// Package route models the waypoint sequence a pedestrian follows and fetches
// it from remote providers.
//
// Providers return the raw GeoJSON payload; Parse turns it into ordered
// waypoints and line geometry. Keeping the two apart lets the guidance engine
// report fetch and parse failures separately and lets the cache store the
// payload verbatim.
package route

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/teslashibe/go-wayfinder/pkg/geo"
)

// Point types used by walking-route APIs.
const (
	PointStart = "SP"
	PointGuide = "GP"
	PointEnd   = "EP"
)

// Waypoint is an ordered route point with optional spoken guidance text.
type Waypoint struct {
	Index       int       `json:"index"`
	Point       geo.Point `json:"point"`
	Description string    `json:"description,omitempty"`
	Name        string    `json:"name,omitempty"`
	PointType   string    `json:"point_type,omitempty"`
	TurnType    *int      `json:"turn_type,omitempty"`
}

// Line is one segment of route geometry. Guidance ignores it; it is kept for
// clients that draw the route.
type Line struct {
	Index       int         `json:"index"`
	HasIndex    bool        `json:"-"`
	Points      []geo.Point `json:"points"`
	Description string      `json:"description,omitempty"`
	Distance    *int        `json:"distance,omitempty"`
	Time        *int        `json:"time,omitempty"`
}

// Route is a parsed walking route.
type Route struct {
	Waypoints     []Waypoint `json:"waypoints"`
	Lines         []Line     `json:"lines"`
	TotalDistance *int       `json:"total_distance,omitempty"` // meters
	TotalTime     *int       `json:"total_time,omitempty"`     // seconds
	Skipped       int        `json:"skipped"`
}

// Last returns the highest waypoint index, or -1 for an empty route.
func (r *Route) Last() int {
	last := -1
	for _, w := range r.Waypoints {
		if w.Index > last {
			last = w.Index
		}
	}
	return last
}

// Next returns the first waypoint with index > after.
func (r *Route) Next(after int) (Waypoint, bool) {
	for _, w := range r.Waypoints {
		if w.Index > after {
			return w, true
		}
	}
	return Waypoint{}, false
}

// NextBeyond returns the first waypoint with index > after that is at least
// minDistance meters from pos.
func (r *Route) NextBeyond(after int, pos geo.Point, minDistance float64) (Waypoint, bool) {
	for _, w := range r.Waypoints {
		if w.Index <= after {
			continue
		}
		if geo.Distance(pos, w.Point) >= minDistance {
			return w, true
		}
	}
	return Waypoint{}, false
}

// Destination is the user's chosen target. Coordinates arrive as strings from
// search results and are validated by Point.
type Destination struct {
	Name string `json:"name"`
	Lat  string `json:"lat"`
	Lon  string `json:"lon"`
}

// DisplayName returns the name or a generic fallback.
func (d Destination) DisplayName() string {
	if strings.TrimSpace(d.Name) == "" {
		return "destination"
	}
	return d.Name
}

// Point parses and validates the destination coordinates.
// Empty coordinates return ErrNoDestination, anything non-numeric or out of
// range returns ErrInvalidCoordinate.
func (d Destination) Point() (geo.Point, error) {
	latS, lonS := strings.TrimSpace(d.Lat), strings.TrimSpace(d.Lon)
	if latS == "" && lonS == "" {
		return geo.Point{}, ErrNoDestination
	}
	lat, err := strconv.ParseFloat(latS, 64)
	if err != nil {
		return geo.Point{}, fmt.Errorf("%w: latitude %q", ErrInvalidCoordinate, d.Lat)
	}
	lon, err := strconv.ParseFloat(lonS, 64)
	if err != nil {
		return geo.Point{}, fmt.Errorf("%w: longitude %q", ErrInvalidCoordinate, d.Lon)
	}
	p := geo.Point{Lat: lat, Lon: lon}
	if !p.Valid() {
		return geo.Point{}, fmt.Errorf("%w: %s out of range", ErrInvalidCoordinate, p)
	}
	return p, nil
}

// Request is a route search from the current position to a destination.
type Request struct {
	Origin          geo.Point
	OriginName      string
	Destination     geo.Point
	DestinationName string
}

// Payload is a raw GeoJSON FeatureCollection as returned by a provider.
type Payload []byte

// Provider fetches walking routes.
type Provider interface {
	// Fetch returns the raw route payload for the request.
	Fetch(ctx context.Context, req Request) (Payload, error)

	// Name identifies the provider in logs and errors.
	Name() string
}
