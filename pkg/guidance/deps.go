package guidance

import (
	"time"

	"github.com/teslashibe/go-wayfinder/pkg/alignment"
	"github.com/teslashibe/go-wayfinder/pkg/haptic"
	"github.com/teslashibe/go-wayfinder/pkg/heading"
	"github.com/teslashibe/go-wayfinder/pkg/position"
	"github.com/teslashibe/go-wayfinder/pkg/route"
	"github.com/teslashibe/go-wayfinder/pkg/speech"
)

// LocationSink receives location events. *Engine implements it.
type LocationSink interface {
	HandleLocation(fix position.Fix)
	HandleAccuracyChanged(accuracy float64)
	HandleSignalWeak()
	HandleSignalRestored()
}

// LocationSource delivers position fixes while started.
type LocationSource interface {
	Start(sink LocationSink) error
	Stop()
}

// LastKnownLocator is an optional LocationSource extension. Sources that see
// fixes while not streaming report the latest one for route planning.
type LastKnownLocator interface {
	LastKnown() (position.Fix, bool)
}

// OrientationSink receives orientation samples. *Engine implements it.
type OrientationSink interface {
	HandleOrientation(s heading.Sample)
	SetDisplayRotation(r heading.Rotation)
}

// OrientationSource delivers raw orientation samples while started.
type OrientationSource interface {
	Start(sink OrientationSink) error
	Stop()
	Capabilities() heading.Capabilities
}

// Speaker voices text. *speech.Speaker implements it.
type Speaker interface {
	Speak(text string, cb speech.Callbacks) (string, error)
	Stop()
}

// Dependencies are the collaborators an Engine drives.
type Dependencies struct {
	Location    LocationSource
	Orientation OrientationSource
	Speech      Speaker
	Haptics     haptic.Backend // optional, logs when nil
	Routes      route.Provider
}

// EventKind identifies an observer event.
type EventKind string

const (
	EventStateChanged EventKind = "state_changed"
	EventSpeech       EventKind = "speech"
	EventWaypoint     EventKind = "waypoint"
	EventAlignment    EventKind = "alignment"
	EventCorrection   EventKind = "correction"
	EventLocation     EventKind = "location"
	EventHeading      EventKind = "heading"
	EventSignal       EventKind = "signal"
	EventTracking     EventKind = "tracking"
	EventRoute        EventKind = "route"
)

// Event is published to observers from the control goroutine.
type Event struct {
	Kind    EventKind `json:"kind"`
	Time    time.Time `json:"time"`
	Session string    `json:"session"`

	State *State `json:"state,omitempty"`
	Prev  *State `json:"prev,omitempty"`

	Text     string             `json:"text,omitempty"`
	Index    int                `json:"index,omitempty"`
	Heading  float64            `json:"heading,omitempty"`
	Position *position.Filtered `json:"position,omitempty"`
	Result   *alignment.Result  `json:"result,omitempty"`
	Detail   string             `json:"detail,omitempty"`
	Value    float64            `json:"value,omitempty"`
	Duration time.Duration      `json:"duration,omitempty"`
}

// Observer receives engine events. Observe runs on the control goroutine and
// must not block.
type Observer interface {
	Observe(ev Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ev Event)

// Observe implements Observer.
func (f ObserverFunc) Observe(ev Event) {
	f(ev)
}
