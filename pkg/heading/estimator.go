// Package heading turns raw orientation-sensor samples into a stable compass
// heading in [0,360).
//
// A fused rotation-vector sensor is preferred. Devices without one fall back to
// combining the latest accelerometer and magnetometer readings. Every raw heading
// goes through an optional spike filter and an exponential low-pass filter that
// works on the circle, so 359 -> 1 is a 2 degree step and not a 358 degree one.
package heading

import (
	"log/slog"
	"math"
	"time"

	"github.com/teslashibe/go-wayfinder/pkg/geo"
)

// Rotation is the current screen rotation of the device.
type Rotation int

// Display rotations, matching the four orientations a phone reports.
const (
	Rotation0   Rotation = 0
	Rotation90  Rotation = 90
	Rotation180 Rotation = 180
	Rotation270 Rotation = 270
)

// SensorKind identifies which orientation sensor produced a sample.
type SensorKind string

const (
	SensorRotationVector SensorKind = "rotation_vector"
	SensorAccelerometer  SensorKind = "accelerometer"
	SensorMagnetometer   SensorKind = "magnetometer"
)

// Sample is one raw orientation-sensor reading.
type Sample struct {
	Kind   SensorKind `json:"kind"`
	Values []float64  `json:"values"`
	Time   time.Time  `json:"time"`
}

// Capabilities describes which orientation sensors a device has.
type Capabilities struct {
	RotationVector bool `json:"rotation_vector"`
	Accelerometer  bool `json:"accelerometer"`
	Magnetometer   bool `json:"magnetometer"`
}

// Available reports whether any heading can be produced at all.
func (c Capabilities) Available() bool {
	return c.RotationVector || (c.Accelerometer && c.Magnetometer)
}

// Config holds the smoothing parameters.
type Config struct {
	// Alpha is the low-pass weight of a new reading (0-1, lower = smoother).
	Alpha float64 `yaml:"alpha" json:"alpha" validate:"gt=0,lte=1"`

	// SpikeThreshold rejects readings further than this many degrees from the
	// current smoothed heading. 0 disables the filter.
	SpikeThreshold float64 `yaml:"spike_threshold" json:"spike_threshold" validate:"gte=0,lte=180"`
}

// DefaultConfig returns the recommended smoothing configuration.
func DefaultConfig() Config {
	return Config{
		Alpha:          0.15,
		SpikeThreshold: 0, // disabled
	}
}

// Estimator fuses orientation samples into a smoothed heading.
// It is not safe for concurrent use; the guidance engine drives it from its
// control goroutine.
type Estimator struct {
	cfg      Config
	caps     Capabilities
	rotation Rotation
	onChange func(deg float64)
	logger   *slog.Logger

	// acc+mag fallback buffers
	acc, mag       [3]float64
	hasAcc, hasMag bool

	smoothed   float64
	hasHeading bool

	accepted uint64
	rejected uint64
}

// Option configures an Estimator.
type Option func(*Estimator)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Estimator) {
		e.logger = logger
	}
}

// WithCallback registers the heading-changed callback, invoked once per
// accepted update with the new smoothed heading.
func WithCallback(fn func(deg float64)) Option {
	return func(e *Estimator) {
		e.onChange = fn
	}
}

// NewEstimator creates an estimator for a device with the given sensors.
func NewEstimator(cfg Config, caps Capabilities, opts ...Option) *Estimator {
	e := &Estimator{
		cfg:      cfg,
		caps:     caps,
		rotation: Rotation0,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("component", "heading.estimator")

	if !caps.Available() {
		e.logger.Warn("no usable orientation sensor, heading disabled",
			"rotation_vector", caps.RotationVector,
			"accelerometer", caps.Accelerometer,
			"magnetometer", caps.Magnetometer,
		)
	}
	return e
}

// SetCapabilities replaces the sensor capabilities, e.g. after a new device
// connects. Fallback buffers are cleared.
func (e *Estimator) SetCapabilities(caps Capabilities) {
	e.caps = caps
	e.hasAcc, e.hasMag = false, false
}

// Capabilities returns the configured sensor capabilities.
func (e *Estimator) Capabilities() Capabilities {
	return e.caps
}

// SetDisplayRotation sets the screen rotation used for axis remapping.
func (e *Estimator) SetDisplayRotation(r Rotation) {
	e.rotation = r
}

// SetConfig updates smoothing parameters at runtime.
func (e *Estimator) SetConfig(cfg Config) {
	e.cfg = cfg
}

// Process consumes one raw sample. It returns the new smoothed heading and true
// when the sample produced an accepted update.
func (e *Estimator) Process(s Sample) (float64, bool) {
	switch s.Kind {
	case SensorRotationVector:
		if !e.caps.RotationVector {
			return 0, false
		}
		r, ok := rotationFromVector(s.Values)
		if !ok {
			return 0, false
		}
		return e.Update(azimuth(remap(r, e.rotation)))

	case SensorAccelerometer:
		if !copyVector(&e.acc, s.Values) {
			return 0, false
		}
		e.hasAcc = true

	case SensorMagnetometer:
		if !copyVector(&e.mag, s.Values) {
			return 0, false
		}
		e.hasMag = true

	default:
		return 0, false
	}

	// A device with a rotation vector never uses the fallback path.
	if e.caps.RotationVector || !e.hasAcc || !e.hasMag {
		return 0, false
	}
	r, ok := rotationFromAccMag(e.acc, e.mag)
	if !ok {
		return 0, false
	}
	return e.Update(azimuth(remap(r, e.rotation)))
}

// Update feeds a raw heading in degrees through the spike filter and the
// circular low-pass filter.
func (e *Estimator) Update(raw float64) (float64, bool) {
	if math.IsNaN(raw) || math.IsInf(raw, 0) {
		return 0, false
	}
	raw = geo.Normalize(raw)

	if !e.hasHeading {
		e.smoothed = raw
		e.hasHeading = true
		e.publish()
		return e.smoothed, true
	}

	delta := geo.ShortestDelta(e.smoothed, raw)
	if e.cfg.SpikeThreshold > 0 && math.Abs(delta) > e.cfg.SpikeThreshold {
		e.rejected++
		e.logger.Debug("heading spike rejected",
			"raw", raw,
			"smoothed", e.smoothed,
			"delta", delta,
		)
		return e.smoothed, false
	}

	e.smoothed = geo.Normalize(e.smoothed + e.cfg.Alpha*delta)
	e.publish()
	return e.smoothed, true
}

func (e *Estimator) publish() {
	e.accepted++
	if e.onChange != nil {
		e.onChange(e.smoothed)
	}
}

// Heading returns the current smoothed heading and whether one exists yet.
func (e *Estimator) Heading() (float64, bool) {
	return e.smoothed, e.hasHeading
}

// Stats returns the number of accepted and rejected updates since the last reset.
func (e *Estimator) Stats() (accepted, rejected uint64) {
	return e.accepted, e.rejected
}

// Reset drops all smoothing and fallback state. Called when tracking stops.
func (e *Estimator) Reset() {
	e.hasAcc, e.hasMag = false, false
	e.acc, e.mag = [3]float64{}, [3]float64{}
	e.smoothed = 0
	e.hasHeading = false
	e.accepted, e.rejected = 0, 0
}

func copyVector(dst *[3]float64, values []float64) bool {
	if len(values) < 3 {
		return false
	}
	copy(dst[:], values[:3])
	return true
}
