package route

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/teslashibe/go-wayfinder/pkg/geo"
)

// Number is an optional number that tolerates the loose encodings walking
// APIs produce: JSON numbers, numeric strings, and "", "NaN", "N/A" or "-"
// for "no value".
type Number struct {
	Value float64
	Valid bool
}

// UnmarshalJSON implements json.Unmarshaler. It never fails on a scalar.
func (n *Number) UnmarshalJSON(data []byte) error {
	*n = Number{}
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}

	var raw string
	switch data[0] {
	case '"':
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil
		}
	case '{', '[':
		return nil
	default:
		raw = string(data)
	}

	raw = strings.TrimSpace(raw)
	switch strings.ToUpper(raw) {
	case "", "NAN", "N/A", "-":
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	*n = Number{Value: v, Valid: true}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (n Number) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(n.Value)
}

// Int returns the value truncated to an int pointer, nil when absent.
func (n Number) Int() *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Value)
	return &v
}

// featureCollection mirrors the GeoJSON payload. Geometry coordinates stay raw
// because their shape depends on the geometry type.
type featureCollection struct {
	Type     string    `json:"type"`
	Features []feature `json:"features"`
}

type feature struct {
	Type       string     `json:"type"`
	Geometry   geometry   `json:"geometry"`
	Properties properties `json:"properties"`
}

type geometry struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
}

type properties struct {
	TotalDistance Number `json:"totalDistance"`
	TotalTime     Number `json:"totalTime"`
	Index         Number `json:"index"`
	LineIndex     Number `json:"lineIndex"`
	PointIndex    Number `json:"pointIndex"`
	Name          string `json:"name"`
	Description   string `json:"description"`
	FacilityType  Number `json:"facilityType"`
	FacilityName  string `json:"facilityName"`
	TurnType      Number `json:"turnType"`
	PointType     string `json:"pointType"`
	NearPoiX      Number `json:"nearPoiX"`
	NearPoiY      Number `json:"nearPoiY"`
	Distance      Number `json:"distance"`
	Time          Number `json:"time"`
	RoadType      Number `json:"roadType"`
}

// Parse decodes a GeoJSON FeatureCollection into a route.
//
// Point features become waypoints sorted by pointIndex; LineString features
// become lines sorted by lineIndex with unindexed lines last. Individual
// features that are malformed are skipped with a warning. Parse fails only
// when the payload as a whole cannot be read or yields no waypoint.
func Parse(data []byte, logger *slog.Logger) (*Route, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "route.parser")

	var fc featureCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if fc.Type != "" && fc.Type != "FeatureCollection" {
		return nil, fmt.Errorf("%w: unexpected type %q", ErrMalformedPayload, fc.Type)
	}

	r := &Route{}
	for i, f := range fc.Features {
		props := f.Properties
		if r.TotalDistance == nil {
			r.TotalDistance = props.TotalDistance.Int()
		}
		if r.TotalTime == nil {
			r.TotalTime = props.TotalTime.Int()
		}

		switch f.Geometry.Type {
		case "Point":
			w, err := parseWaypoint(f)
			if err != nil {
				r.Skipped++
				logger.Warn("skipping waypoint", "feature", i, "error", err)
				continue
			}
			r.Waypoints = append(r.Waypoints, w)

		case "LineString":
			l, err := parseLine(f)
			if err != nil {
				r.Skipped++
				logger.Warn("skipping line", "feature", i, "error", err)
				continue
			}
			r.Lines = append(r.Lines, l)

		default:
			r.Skipped++
			logger.Warn("skipping unsupported geometry", "feature", i, "type", f.Geometry.Type)
		}
	}

	sort.SliceStable(r.Waypoints, func(i, j int) bool {
		return r.Waypoints[i].Index < r.Waypoints[j].Index
	})
	sort.SliceStable(r.Lines, func(i, j int) bool {
		a, b := r.Lines[i], r.Lines[j]
		if a.HasIndex != b.HasIndex {
			return a.HasIndex
		}
		return a.Index < b.Index
	})

	if len(r.Waypoints) == 0 {
		return nil, ErrNoWaypoints
	}

	logger.Debug("route parsed",
		"waypoints", len(r.Waypoints),
		"lines", len(r.Lines),
		"skipped", r.Skipped,
	)
	return r, nil
}

func parseWaypoint(f feature) (Waypoint, error) {
	props := f.Properties
	if !props.PointIndex.Valid {
		return Waypoint{}, fmt.Errorf("missing pointIndex")
	}
	if strings.TrimSpace(props.PointType) == "" {
		return Waypoint{}, fmt.Errorf("missing pointType")
	}
	p, err := decodePosition(f.Geometry.Coordinates)
	if err != nil {
		return Waypoint{}, err
	}
	return Waypoint{
		Index:       int(props.PointIndex.Value),
		Point:       p,
		Description: strings.TrimSpace(props.Description),
		Name:        props.Name,
		PointType:   props.PointType,
		TurnType:    props.TurnType.Int(),
	}, nil
}

func parseLine(f feature) (Line, error) {
	var coords []json.RawMessage
	if err := json.Unmarshal(f.Geometry.Coordinates, &coords); err != nil {
		return Line{}, fmt.Errorf("line coordinates: %w", err)
	}
	points := make([]geo.Point, 0, len(coords))
	for _, c := range coords {
		p, err := decodePosition(c)
		if err != nil {
			return Line{}, err
		}
		points = append(points, p)
	}
	props := f.Properties
	return Line{
		Index:       int(props.LineIndex.Value),
		HasIndex:    props.LineIndex.Valid,
		Points:      points,
		Description: props.Description,
		Distance:    props.Distance.Int(),
		Time:        props.Time.Int(),
	}, nil
}

// decodePosition reads a GeoJSON position, [lon, lat, ...].
func decodePosition(raw json.RawMessage) (geo.Point, error) {
	var pos []float64
	if err := json.Unmarshal(raw, &pos); err != nil {
		return geo.Point{}, fmt.Errorf("position: %w", err)
	}
	if len(pos) < 2 {
		return geo.Point{}, fmt.Errorf("position needs lon and lat, got %d values", len(pos))
	}
	p := geo.Point{Lat: pos[1], Lon: pos[0]}
	if !p.Valid() {
		return geo.Point{}, fmt.Errorf("position %s out of range", p)
	}
	return p, nil
}

// Encode builds a GeoJSON FeatureCollection from waypoints and lines. It is the
// inverse of Parse for the fields guidance uses.
func Encode(waypoints []Waypoint, lines []Line) (Payload, error) {
	type outFeature struct {
		Type       string         `json:"type"`
		Geometry   map[string]any `json:"geometry"`
		Properties map[string]any `json:"properties"`
	}
	out := struct {
		Type     string       `json:"type"`
		Features []outFeature `json:"features"`
	}{Type: "FeatureCollection"}

	for _, w := range waypoints {
		props := map[string]any{
			"pointIndex":  w.Index,
			"pointType":   w.PointType,
			"description": w.Description,
			"name":        w.Name,
		}
		if w.TurnType != nil {
			props["turnType"] = *w.TurnType
		}
		out.Features = append(out.Features, outFeature{
			Type: "Feature",
			Geometry: map[string]any{
				"type":        "Point",
				"coordinates": []float64{w.Point.Lon, w.Point.Lat},
			},
			Properties: props,
		})
	}
	for _, l := range lines {
		coords := make([][]float64, 0, len(l.Points))
		for _, p := range l.Points {
			coords = append(coords, []float64{p.Lon, p.Lat})
		}
		props := map[string]any{"description": l.Description}
		if l.HasIndex {
			props["lineIndex"] = l.Index
		}
		if l.Distance != nil {
			props["distance"] = *l.Distance
		}
		if l.Time != nil {
			props["time"] = *l.Time
		}
		out.Features = append(out.Features, outFeature{
			Type: "Feature",
			Geometry: map[string]any{
				"type":        "LineString",
				"coordinates": coords,
			},
			Properties: props,
		})
	}
	return json.Marshal(out)
}
