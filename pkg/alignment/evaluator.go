// Package alignment decides whether the user faces the next waypoint.
//
// Each evaluation compares the bearing to the target with the current heading,
// classifies the result as aligned or unaligned (left or right, with a haptic
// intensity bucket) and debounces completion over consecutive aligned ticks.
package alignment

import (
	"math"
	"time"

	"github.com/teslashibe/go-wayfinder/pkg/geo"
)

// Direction is the way the user needs to turn.
type Direction int

const (
	DirectionNone Direction = iota
	DirectionLeft
	DirectionRight
)

func (d Direction) String() string {
	switch d {
	case DirectionLeft:
		return "left"
	case DirectionRight:
		return "right"
	default:
		return "none"
	}
}

// Bucket groups the absolute angular error into five haptic intensity levels.
type Bucket int

const (
	BucketNear     Bucket = iota // threshold < absDiff <= 25
	BucketSlight                 // 25 < absDiff <= 40
	BucketMedium                 // 40 < absDiff <= 60
	BucketLarge                  // 60 < absDiff <= 90
	BucketOpposite               // absDiff > 90
)

func (b Bucket) String() string {
	switch b {
	case BucketNear:
		return "near"
	case BucketSlight:
		return "slight"
	case BucketMedium:
		return "medium"
	case BucketLarge:
		return "large"
	case BucketOpposite:
		return "opposite"
	default:
		return "unknown"
	}
}

// Vibration is the one-shot pulse length for the bucket. Pulses get longer
// (stronger) as the user gets closer to the target direction.
func (b Bucket) Vibration() time.Duration {
	switch b {
	case BucketOpposite:
		return 50 * time.Millisecond
	case BucketLarge:
		return 100 * time.Millisecond
	case BucketMedium:
		return 150 * time.Millisecond
	case BucketSlight:
		return 250 * time.Millisecond
	default:
		return 350 * time.Millisecond
	}
}

// BucketFor maps an absolute angular difference in degrees to a bucket.
func BucketFor(absDiff float64) Bucket {
	switch {
	case absDiff > 90:
		return BucketOpposite
	case absDiff > 60:
		return BucketLarge
	case absDiff > 40:
		return BucketMedium
	case absDiff > 25:
		return BucketSlight
	default:
		return BucketNear
	}
}

// CompletionPattern is the waveform played when alignment completes:
// off/on durations starting with an initial delay.
var CompletionPattern = []time.Duration{
	0,
	300 * time.Millisecond,
	150 * time.Millisecond,
	300 * time.Millisecond,
	150 * time.Millisecond,
	300 * time.Millisecond,
}

// Announce tells the caller how to voice an unaligned result.
type Announce int

const (
	AnnounceNone   Announce = iota
	AnnounceNormal          // speak only if nothing is being spoken
	AnnounceForce           // interrupt the current utterance
)

// Defaults.
const (
	DefaultThreshold    = 20.0
	DefaultStableChecks = 3
)

// Config holds evaluator parameters.
type Config struct {
	Threshold    float64 `yaml:"threshold" json:"threshold" validate:"gt=0,lt=180"`
	StableChecks int     `yaml:"stable_checks" json:"stable_checks" validate:"gte=1"`
}

// DefaultConfig returns a 20 degree threshold with 3 stable checks.
func DefaultConfig() Config {
	return Config{
		Threshold:    DefaultThreshold,
		StableChecks: DefaultStableChecks,
	}
}

// Result is the outcome of one evaluation tick.
type Result struct {
	Bearing   float64   `json:"bearing"`
	Diff      float64   `json:"diff"`
	AbsDiff   float64   `json:"abs_diff"`
	Aligned   bool      `json:"aligned"`
	Direction Direction `json:"direction"`
	Bucket    Bucket    `json:"bucket"`
	Announce  Announce  `json:"announce"`
	Stable    int       `json:"stable"`
	Completed bool      `json:"completed"`
}

// Diff returns the signed shortest rotation from heading to bearing in
// [-180,180). Positive means the target lies clockwise (to the right).
func Diff(bearing, heading float64) float64 {
	return math.Mod(bearing-heading+540, 360) - 180
}

// Classify returns whether diff is within threshold and, if not, which way to
// turn.
func Classify(diff, threshold float64) (aligned bool, dir Direction) {
	if math.Abs(diff) <= threshold {
		return true, DirectionNone
	}
	if diff > 0 {
		return false, DirectionRight
	}
	return false, DirectionLeft
}

// Evaluator carries the debounce counter and the last announced direction
// between ticks. It is owned by the guidance control goroutine.
type Evaluator struct {
	cfg           Config
	stable        int
	lastDirection Direction
}

// NewEvaluator creates an evaluator.
func NewEvaluator(cfg Config) *Evaluator {
	if cfg.StableChecks < 1 {
		cfg.StableChecks = DefaultStableChecks
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultThreshold
	}
	return &Evaluator{cfg: cfg}
}

// Config returns the evaluator configuration.
func (e *Evaluator) Config() Config {
	return e.cfg
}

// Evaluate runs one alignment tick for a user at pos facing heading with the
// given target.
func (e *Evaluator) Evaluate(pos geo.Point, heading float64, target geo.Point) Result {
	return e.EvaluateBearing(geo.Bearing(pos, target), heading)
}

// EvaluateBearing runs one alignment tick against a precomputed bearing.
func (e *Evaluator) EvaluateBearing(bearing, heading float64) Result {
	diff := Diff(bearing, heading)
	r := Result{
		Bearing: bearing,
		Diff:    diff,
		AbsDiff: math.Abs(diff),
	}

	aligned, dir := Classify(diff, e.cfg.Threshold)
	if !aligned {
		e.stable = 0
		r.Direction = dir
		r.Bucket = BucketFor(r.AbsDiff)
		if dir != e.lastDirection {
			r.Announce = AnnounceForce
			e.lastDirection = dir
		} else {
			r.Announce = AnnounceNormal
		}
		return r
	}

	r.Aligned = true
	e.stable++
	r.Stable = e.stable
	if e.stable >= e.cfg.StableChecks {
		r.Completed = true
		e.stable = 0
		e.lastDirection = DirectionNone
	}
	return r
}

// Stable returns the current count of consecutive aligned ticks.
func (e *Evaluator) Stable() int {
	return e.stable
}

// LastDirection returns the last announced direction.
func (e *Evaluator) LastDirection() Direction {
	return e.lastDirection
}

// Reset clears the debounce counter and direction memory.
func (e *Evaluator) Reset() {
	e.stable = 0
	e.lastDirection = DirectionNone
}
