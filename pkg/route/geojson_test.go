package route

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-wayfinder/internal/log"
	"github.com/teslashibe/go-wayfinder/pkg/geo"
)

const samplePayload = `{
  "type": "FeatureCollection",
  "features": [
    {"type": "Feature",
     "geometry": {"type": "LineString", "coordinates": [[126.9780, 37.5665], [126.9782, 37.5668]]},
     "properties": {"lineIndex": 1, "description": "Walk 30m", "distance": "30", "time": 25}},
    {"type": "Feature",
     "geometry": {"type": "Point", "coordinates": [126.9782, 37.5668]},
     "properties": {"pointIndex": "2", "pointType": "EP", "description": "Arrived", "turnType": 201}},
    {"type": "Feature",
     "geometry": {"type": "Point", "coordinates": [126.9780, 37.5665]},
     "properties": {"totalDistance": 65, "totalTime": "N/A", "pointIndex": 0, "pointType": "SP",
                    "description": "Start walking", "turnType": "200", "nearPoiX": "", "facilityType": "11"}},
    {"type": "Feature",
     "geometry": {"type": "Point", "coordinates": [126.9781, 37.5666]},
     "properties": {"pointIndex": 1, "pointType": "GP", "description": "Turn right", "turnType": "NaN"}},
    {"type": "Feature",
     "geometry": {"type": "LineString", "coordinates": [[126.9782, 37.5668], [126.9783, 37.5669]]},
     "properties": {"description": "no index"}},
    {"type": "Feature",
     "geometry": {"type": "LineString", "coordinates": [[126.9779, 37.5664], [126.9780, 37.5665]]},
     "properties": {"lineIndex": 0, "distance": "-"}}
  ]
}`

func TestParseOrdersFeatures(t *testing.T) {
	r, err := Parse([]byte(samplePayload), log.Discard())
	require.NoError(t, err)

	require.Len(t, r.Waypoints, 3)
	for i, w := range r.Waypoints {
		assert.Equal(t, i, w.Index)
	}
	assert.Equal(t, "Start walking", r.Waypoints[0].Description)
	assert.Equal(t, PointEnd, r.Waypoints[2].PointType)
	assert.InDelta(t, 37.5665, r.Waypoints[0].Point.Lat, 1e-9)
	assert.InDelta(t, 126.9780, r.Waypoints[0].Point.Lon, 1e-9)

	require.NotNil(t, r.Waypoints[0].TurnType)
	assert.Equal(t, 200, *r.Waypoints[0].TurnType)
	assert.Nil(t, r.Waypoints[1].TurnType, "NaN turn type decodes to nil")

	require.Len(t, r.Lines, 3)
	assert.Equal(t, 0, r.Lines[0].Index)
	assert.Equal(t, 1, r.Lines[1].Index)
	assert.False(t, r.Lines[2].HasIndex, "unindexed line sorts last")
	assert.Nil(t, r.Lines[0].Distance)
	require.NotNil(t, r.Lines[1].Distance)
	assert.Equal(t, 30, *r.Lines[1].Distance)

	require.NotNil(t, r.TotalDistance)
	assert.Equal(t, 65, *r.TotalDistance)
	assert.Nil(t, r.TotalTime)
	assert.Equal(t, 2, r.Last())
}

func TestParseSkipsMalformedWaypoints(t *testing.T) {
	payload := `{"type":"FeatureCollection","features":[
	  {"type":"Feature","geometry":{"type":"Point","coordinates":[127.0,37.0]},"properties":{"pointIndex":0,"pointType":"SP"}},
	  {"type":"Feature","geometry":{"type":"Point","coordinates":[127.0,37.0]},"properties":{"pointType":"GP"}},
	  {"type":"Feature","geometry":{"type":"Point","coordinates":[127.0,37.0]},"properties":{"pointIndex":2}},
	  {"type":"Feature","geometry":{"type":"Point","coordinates":[127.0]},"properties":{"pointIndex":3,"pointType":"GP"}},
	  {"type":"Feature","geometry":{"type":"Polygon","coordinates":[]},"properties":{}}
	]}`

	r, err := Parse([]byte(payload), log.Discard())
	require.NoError(t, err)
	require.Len(t, r.Waypoints, 1)
	assert.Equal(t, 4, r.Skipped)
}

func TestParseFailures(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    error
	}{
		{"not json", `<html>oops</html>`, ErrMalformedPayload},
		{"wrong type", `{"type":"Feature","features":[]}`, ErrMalformedPayload},
		{"empty collection", `{"type":"FeatureCollection","features":[]}`, ErrNoWaypoints},
		{"only lines", `{"type":"FeatureCollection","features":[
			{"type":"Feature","geometry":{"type":"LineString","coordinates":[[127,37],[127.1,37.1]]},"properties":{}}]}`, ErrNoWaypoints},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.payload), log.Discard())
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestNumberLenient(t *testing.T) {
	tests := []struct {
		in    string
		valid bool
		value float64
	}{
		{`11`, true, 11},
		{`"11"`, true, 11},
		{`" 3.5 "`, true, 3.5},
		{`""`, false, 0},
		{`"NaN"`, false, 0},
		{`"nan"`, false, 0},
		{`"N/A"`, false, 0},
		{`"-"`, false, 0},
		{`null`, false, 0},
		{`"abc"`, false, 0},
		{`{}`, false, 0},
	}
	for _, tt := range tests {
		var n Number
		require.NoError(t, json.Unmarshal([]byte(tt.in), &n), tt.in)
		assert.Equal(t, tt.valid, n.Valid, tt.in)
		assert.Equal(t, tt.value, n.Value, tt.in)
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	turn := 13
	waypoints := []Waypoint{
		{Index: 0, Point: geo.Point{Lat: 37.1, Lon: 127.1}, Description: "go", PointType: PointStart},
		{Index: 1, Point: geo.Point{Lat: 37.2, Lon: 127.2}, Description: "right", PointType: PointGuide, TurnType: &turn},
	}
	payload, err := Encode(waypoints, nil)
	require.NoError(t, err)

	r, err := Parse(payload, log.Discard())
	require.NoError(t, err)
	assert.Equal(t, waypoints, r.Waypoints)
}

func TestRouteNavigationHelpers(t *testing.T) {
	start := geo.Point{Lat: 37.0, Lon: 127.0}
	r := &Route{Waypoints: []Waypoint{
		{Index: 0, Point: start},
		{Index: 1, Point: geo.Offset(start, 0, 5)},
		{Index: 2, Point: geo.Offset(start, 0, 50)},
	}}

	w, ok := r.Next(-1)
	require.True(t, ok)
	assert.Equal(t, 0, w.Index)

	w, ok = r.NextBeyond(-1, start, 8)
	require.True(t, ok)
	assert.Equal(t, 2, w.Index, "points closer than 8 m are skipped")

	_, ok = r.Next(2)
	assert.False(t, ok)
}
