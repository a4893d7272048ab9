// Package device bridges a phone connected over websocket to the guidance
// engine. The phone streams location and orientation and renders speech and
// vibration on request.
package device

import (
	"time"

	"github.com/teslashibe/go-wayfinder/pkg/heading"
)

// Frame types sent by the phone.
const (
	TypeHello        = "hello"
	TypeLocation     = "location"
	TypeAccuracy     = "accuracy"
	TypeSignal       = "signal"
	TypeOrientation  = "orientation"
	TypeRotation     = "rotation"
	TypeSpeechReady  = "speech_ready"
	TypeSpeechFailed = "speech_failed"
	TypeSpeechStart  = "speech_start"
	TypeSpeechDone   = "speech_done"
	TypeSpeechError  = "speech_error"
	TypeNavigate     = "navigate"
	TypeCancel       = "cancel"
)

// Frame types sent to the phone.
const (
	TypeLocationStart    = "location_start"
	TypeLocationStop     = "location_stop"
	TypeOrientationStart = "orientation_start"
	TypeOrientationStop  = "orientation_stop"
	TypeSpeak            = "speak"
	TypeSpeechStop       = "speech_stop"
	TypeVibrate          = "vibrate"
	TypeVibratePattern   = "vibrate_pattern"
)

// Frame is the JSON envelope for both directions. Only the fields relevant
// to Type are set.
type Frame struct {
	Type string `json:"type"`

	// hello
	Capabilities *heading.Capabilities `json:"capabilities,omitempty"`

	// location, accuracy
	Lat      float64    `json:"lat,omitempty"`
	Lon      float64    `json:"lon,omitempty"`
	Accuracy float64    `json:"accuracy,omitempty"`
	Time     *time.Time `json:"time,omitempty"`

	// signal: "weak" or "restored"
	State string `json:"state,omitempty"`

	// orientation, rotation
	Kind     heading.SensorKind `json:"kind,omitempty"`
	Values   []float64          `json:"values,omitempty"`
	Rotation int                `json:"rotation,omitempty"`

	// speech
	ID    string `json:"id,omitempty"`
	Text  string `json:"text,omitempty"`
	Error string `json:"error,omitempty"`

	// vibration, milliseconds
	Millis  int64   `json:"ms,omitempty"`
	Pattern []int64 `json:"pattern,omitempty"`

	// navigate
	Name string `json:"name,omitempty"`
	// Destination coordinates travel as strings, as search results deliver them.
	DestLat string `json:"dest_lat,omitempty"`
	DestLon string `json:"dest_lon,omitempty"`
}
