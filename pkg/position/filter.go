// Package position smooths noisy GPS fixes with a one-dimensional-variance
// Kalman filter applied independently to latitude and longitude.
//
// The filter tracks a single variance in square meters. Between fixes the
// variance grows with elapsed time times the squared process noise; each fix
// pulls the state towards the measurement by the Kalman gain.
package position

import (
	"math"
	"time"

	"github.com/teslashibe/go-wayfinder/pkg/geo"
)

// Defaults for a walking pedestrian.
const (
	DefaultProcessNoise = 3.0 // meters per second
	DefaultMinAccuracy  = 1.0 // meters

	uninitialized = -1.0
)

// Fix is a raw position measurement from a location source.
type Fix struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Accuracy  float64   `json:"accuracy"` // meters, 1-sigma
	Time      time.Time `json:"time"`
}

// Point returns the fix as a geo.Point.
func (f Fix) Point() geo.Point {
	return geo.Point{Lat: f.Latitude, Lon: f.Longitude}
}

// Filtered is the filter output after an update.
type Filtered struct {
	Point    geo.Point `json:"point"`
	Accuracy float64   `json:"accuracy"` // sqrt(variance), meters
	Time     time.Time `json:"time"`
}

// State is the mutable filter state.
type State struct {
	Lat        float64
	Lon        float64
	Variance   float64 // m^2, -1 until the first fix
	LastUpdate time.Time
}

// Config holds filter parameters.
type Config struct {
	ProcessNoise float64 `yaml:"process_noise" json:"process_noise" validate:"gte=0"`
	MinAccuracy  float64 `yaml:"min_accuracy" json:"min_accuracy" validate:"gt=0"`
}

// DefaultConfig returns parameters suited to walking speed.
func DefaultConfig() Config {
	return Config{
		ProcessNoise: DefaultProcessNoise,
		MinAccuracy:  DefaultMinAccuracy,
	}
}

// Filter is a Kalman-style 2D position filter. Not safe for concurrent use.
type Filter struct {
	cfg   Config
	state State
}

// NewFilter creates an uninitialized filter.
func NewFilter(cfg Config) *Filter {
	if cfg.MinAccuracy <= 0 {
		cfg.MinAccuracy = DefaultMinAccuracy
	}
	return &Filter{
		cfg:   cfg,
		state: State{Variance: uninitialized},
	}
}

// Initialize seeds the filter directly from a measurement.
func (f *Filter) Initialize(lat, lon, accuracy float64, ts time.Time) {
	acc := f.clamp(accuracy)
	f.state = State{
		Lat:        lat,
		Lon:        lon,
		Variance:   acc * acc,
		LastUpdate: ts,
	}
}

// Update applies a measurement and returns the filtered position.
// Calling Update on an uninitialized filter seeds it from the measurement.
func (f *Filter) Update(lat, lon, accuracy float64, ts time.Time) Filtered {
	acc := f.clamp(accuracy)

	if f.state.Variance < 0 {
		f.Initialize(lat, lon, acc, ts)
		return f.output()
	}

	if elapsed := ts.Sub(f.state.LastUpdate).Seconds(); elapsed > 0 {
		f.state.Variance += elapsed * f.cfg.ProcessNoise * f.cfg.ProcessNoise
		f.state.LastUpdate = ts
	}

	k := f.state.Variance / (f.state.Variance + acc*acc)
	f.state.Lat += k * (lat - f.state.Lat)
	f.state.Lon += k * (lon - f.state.Lon)
	f.state.Variance = (1 - k) * f.state.Variance

	return f.output()
}

// UpdateFix is Update for a Fix value.
func (f *Filter) UpdateFix(fix Fix) Filtered {
	return f.Update(fix.Latitude, fix.Longitude, fix.Accuracy, fix.Time)
}

// Initialized reports whether at least one fix has been applied.
func (f *Filter) Initialized() bool {
	return f.state.Variance >= 0
}

// State returns a copy of the current filter state.
func (f *Filter) State() State {
	return f.state
}

// Current returns the filtered position and whether the filter is initialized.
func (f *Filter) Current() (Filtered, bool) {
	if !f.Initialized() {
		return Filtered{}, false
	}
	return f.output(), true
}

// Accuracy returns sqrt(variance), or NaN when uninitialized.
func (f *Filter) Accuracy() float64 {
	if !f.Initialized() {
		return math.NaN()
	}
	return math.Sqrt(f.state.Variance)
}

// Reset returns the filter to the uninitialized state.
func (f *Filter) Reset() {
	f.state = State{Variance: uninitialized}
}

func (f *Filter) output() Filtered {
	return Filtered{
		Point:    geo.Point{Lat: f.state.Lat, Lon: f.state.Lon},
		Accuracy: math.Sqrt(f.state.Variance),
		Time:     f.state.LastUpdate,
	}
}

func (f *Filter) clamp(accuracy float64) float64 {
	if math.IsNaN(accuracy) || accuracy < f.cfg.MinAccuracy {
		return f.cfg.MinAccuracy
	}
	return accuracy
}
