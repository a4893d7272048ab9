package guidance

import (
	"errors"
	"fmt"
)

// Sentinel errors for common error conditions.
var (
	// ErrNoPosition is the cause of InputMissing when no fix has arrived.
	ErrNoPosition = errors.New("guidance: current position unknown")

	// ErrCancelled is the cause of a user cancellation.
	ErrCancelled = errors.New("guidance: navigation cancelled")

	// ErrSuperseded is the cause when a new destination replaces an active session.
	ErrSuperseded = errors.New("guidance: replaced by new destination")

	// ErrMissingDependency is returned by New when a required collaborator is nil.
	ErrMissingDependency = errors.New("guidance: missing dependency")

	// ErrClosed is returned when the engine has been closed.
	ErrClosed = errors.New("guidance: engine closed")
)

// FailureKind classifies session failures.
type FailureKind int

const (
	InputMissing FailureKind = iota
	InvalidCoordinate
	FetchFailure
	ParseFailure
	SensorUnavailable
	Cancelled
)

func (k FailureKind) String() string {
	switch k {
	case InputMissing:
		return "input_missing"
	case InvalidCoordinate:
		return "invalid_coordinate"
	case FetchFailure:
		return "fetch_failure"
	case ParseFailure:
		return "parse_failure"
	case SensorUnavailable:
		return "sensor_unavailable"
	case Cancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("failure(%d)", int(k))
	}
}

// Fatal reports whether the kind ends the session. SensorUnavailable only
// degrades guidance.
func (k FailureKind) Fatal() bool {
	return k != SensorUnavailable
}

// Failure describes why a session failed. It is carried on the Error state
// and never returned across the engine boundary as a panic or error value.
type Failure struct {
	Kind   FailureKind
	Reason string
	Err    error
}

// Error implements the error interface.
func (f *Failure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("%s: %s: %v", f.Kind, f.Reason, f.Err)
	}
	return fmt.Sprintf("%s: %s", f.Kind, f.Reason)
}

// Unwrap returns the underlying error.
func (f *Failure) Unwrap() error {
	return f.Err
}

func newFailure(kind FailureKind, reason string, err error) *Failure {
	return &Failure{Kind: kind, Reason: reason, Err: err}
}
