package device

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/go-wayfinder/pkg/guidance"
	"github.com/teslashibe/go-wayfinder/pkg/haptic"
	"github.com/teslashibe/go-wayfinder/pkg/heading"
	"github.com/teslashibe/go-wayfinder/pkg/position"
	"github.com/teslashibe/go-wayfinder/pkg/route"
	"github.com/teslashibe/go-wayfinder/pkg/speech"
)

// Sentinel errors.
var (
	ErrMalformedFrame = errors.New("device: malformed frame")
	ErrUnknownFrame   = errors.New("device: unknown frame type")
	ErrDisconnected   = errors.New("device: disconnected")
	ErrSpeechTimeout  = errors.New("device: utterance timed out")
)

// DefaultSpeechTimeout bounds how long an utterance may wait for its
// speech_done or speech_error frame.
const DefaultSpeechTimeout = 30 * time.Second

// Sender delivers frames to the phone. *hub.Hub implements it.
type Sender interface {
	BroadcastJSON(v any) error
}

// Readiness is told when the phone's speech engine comes and goes.
// *speech.Speaker implements it.
type Readiness interface {
	MarkReady()
	MarkFailed(err error)
}

// Bridge adapts one connected phone to the engine's collaborator contracts.
// It is safe for concurrent use.
type Bridge struct {
	send   Sender
	logger *slog.Logger
	now    func() time.Time

	onNavigate    func(route.Destination)
	onCancel      func()
	speechTimeout time.Duration

	mu         sync.Mutex
	connected  bool
	caps       heading.Capabilities
	locSink    guidance.LocationSink
	lastFix    *position.Fix
	oriSink    guidance.OrientationSink
	readiness  Readiness
	utterances map[string]*pendingUtterance
}

type pendingUtterance struct {
	cb    speech.Callbacks
	timer *time.Timer
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Bridge) {
		b.logger = l
	}
}

// WithNavigateHandler is called when the phone requests a destination.
func WithNavigateHandler(fn func(route.Destination)) Option {
	return func(b *Bridge) {
		b.onNavigate = fn
	}
}

// WithCancelHandler is called when the phone cancels navigation.
func WithCancelHandler(fn func()) Option {
	return func(b *Bridge) {
		b.onCancel = fn
	}
}

// WithSpeechTimeout sets how long an utterance may stay unanswered before it
// fails with ErrSpeechTimeout. Zero disables the timeout.
func WithSpeechTimeout(d time.Duration) Option {
	return func(b *Bridge) {
		b.speechTimeout = d
	}
}

// NewBridge creates a bridge sending frames through send.
func NewBridge(send Sender, opts ...Option) *Bridge {
	b := &Bridge{
		send:          send,
		logger:        slog.Default(),
		now:           time.Now,
		speechTimeout: DefaultSpeechTimeout,
		utterances:    make(map[string]*pendingUtterance),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.With("component", "device.bridge")
	return b
}

// AttachSpeaker registers the readiness target for speech_ready and
// speech_failed frames.
func (b *Bridge) AttachSpeaker(r Readiness) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.readiness = r
}

// Connected reports whether a phone has said hello.
func (b *Bridge) Connected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connected
}

// Disconnected drops the phone. Active utterances fail with ErrDisconnected
// and speech goes back to queueing.
func (b *Bridge) Disconnected() {
	b.mu.Lock()
	if !b.connected {
		b.mu.Unlock()
		return
	}
	b.connected = false
	pending := b.takeUtterances()
	r := b.readiness
	b.mu.Unlock()

	b.logger.Info("device disconnected", "utterances_dropped", len(pending))
	for _, cb := range pending {
		fail(cb, ErrDisconnected)
	}
	if r != nil {
		r.MarkFailed(ErrDisconnected)
	}
}

// HandleFrame applies one inbound JSON frame.
func (b *Bridge) HandleFrame(data []byte) error {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	switch f.Type {
	case TypeHello:
		b.hello(f)

	case TypeLocation:
		at := b.now()
		if f.Time != nil {
			at = *f.Time
		}
		fix := position.Fix{Latitude: f.Lat, Longitude: f.Lon, Accuracy: f.Accuracy, Time: at}
		b.mu.Lock()
		b.lastFix = &fix
		sink := b.locSink
		b.mu.Unlock()
		if sink != nil {
			sink.HandleLocation(fix)
		}

	case TypeAccuracy:
		if sink := b.location(); sink != nil {
			sink.HandleAccuracyChanged(f.Accuracy)
		}

	case TypeSignal:
		sink := b.location()
		if sink == nil {
			return nil
		}
		switch f.State {
		case "weak":
			sink.HandleSignalWeak()
		case "restored":
			sink.HandleSignalRestored()
		default:
			return fmt.Errorf("%w: signal state %q", ErrMalformedFrame, f.State)
		}

	case TypeOrientation:
		if sink := b.orientation(); sink != nil {
			sink.HandleOrientation(heading.Sample{Kind: f.Kind, Values: f.Values, Time: b.now()})
		}

	case TypeRotation:
		r := heading.Rotation(f.Rotation)
		switch r {
		case heading.Rotation0, heading.Rotation90, heading.Rotation180, heading.Rotation270:
		default:
			return fmt.Errorf("%w: rotation %d", ErrMalformedFrame, f.Rotation)
		}
		if sink := b.orientation(); sink != nil {
			sink.SetDisplayRotation(r)
		}

	case TypeSpeechReady:
		if r := b.speaker(); r != nil {
			r.MarkReady()
		}

	case TypeSpeechFailed:
		if r := b.speaker(); r != nil {
			r.MarkFailed(errors.New(f.Error))
		}

	case TypeSpeechStart:
		if cb, ok := b.utterance(f.ID, false); ok && cb.OnStart != nil {
			cb.OnStart()
		}

	case TypeSpeechDone:
		if cb, ok := b.utterance(f.ID, true); ok && cb.OnDone != nil {
			cb.OnDone()
		}

	case TypeSpeechError:
		err := speech.ErrInterrupted
		if f.Error != "" && f.Error != "interrupted" {
			err = errors.New(f.Error)
		}
		if cb, ok := b.utterance(f.ID, true); ok {
			fail(cb, err)
		}

	case TypeNavigate:
		if b.onNavigate != nil {
			b.onNavigate(route.Destination{Name: f.Name, Lat: f.DestLat, Lon: f.DestLon})
		}

	case TypeCancel:
		if b.onCancel != nil {
			b.onCancel()
		}

	default:
		return fmt.Errorf("%w: %q", ErrUnknownFrame, f.Type)
	}
	return nil
}

// hello marks the phone connected and resumes any streams the engine has
// already started.
func (b *Bridge) hello(f Frame) {
	b.mu.Lock()
	b.connected = true
	if f.Capabilities != nil {
		b.caps = *f.Capabilities
	}
	caps := b.caps
	resumeLoc := b.locSink != nil
	resumeOri := b.oriSink != nil
	b.mu.Unlock()

	b.logger.Info("device connected",
		"rotation_vector", caps.RotationVector,
		"accelerometer", caps.Accelerometer,
		"magnetometer", caps.Magnetometer,
	)
	if resumeLoc {
		b.emit(Frame{Type: TypeLocationStart})
	}
	if resumeOri {
		b.emit(Frame{Type: TypeOrientationStart})
	}
}

func (b *Bridge) location() guidance.LocationSink {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.locSink
}

func (b *Bridge) orientation() guidance.OrientationSink {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.oriSink
}

func (b *Bridge) speaker() Readiness {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.readiness
}

func (b *Bridge) utterance(id string, remove bool) (speech.Callbacks, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.utterances[id]
	if !ok {
		return speech.Callbacks{}, false
	}
	if remove {
		p.stop()
		delete(b.utterances, id)
	}
	return p.cb, true
}

// takeUtterances empties the utterance table. Caller holds mu.
func (b *Bridge) takeUtterances() []speech.Callbacks {
	out := make([]speech.Callbacks, 0, len(b.utterances))
	for id, p := range b.utterances {
		p.stop()
		out = append(out, p.cb)
		delete(b.utterances, id)
	}
	return out
}

// expire fails p if it is still waiting for the phone.
func (b *Bridge) expire(id string, p *pendingUtterance) {
	b.mu.Lock()
	if b.utterances[id] != p {
		b.mu.Unlock()
		return
	}
	delete(b.utterances, id)
	b.mu.Unlock()

	b.logger.Warn("utterance unanswered, giving up", "id", id, "timeout", b.speechTimeout)
	fail(p.cb, ErrSpeechTimeout)
}

func (p *pendingUtterance) stop() {
	if p.timer != nil {
		p.timer.Stop()
	}
}

// emit sends f when a phone is connected.
func (b *Bridge) emit(f Frame) error {
	if !b.Connected() {
		return ErrDisconnected
	}
	if err := b.send.BroadcastJSON(f); err != nil {
		b.logger.Warn("frame send failed", "type", f.Type, "error", err)
		return fmt.Errorf("send %s: %w", f.Type, err)
	}
	return nil
}

func fail(cb speech.Callbacks, err error) {
	if cb.OnError != nil {
		cb.OnError(err)
	}
}

// Location returns the location source view of the bridge.
func (b *Bridge) Location() *Location { return &Location{b: b} }

// Orientation returns the orientation source view of the bridge.
func (b *Bridge) Orientation() *Orientation { return &Orientation{b: b} }

// Speech returns the speech backend view of the bridge.
func (b *Bridge) Speech() *Speech { return &Speech{b: b} }

// Haptics returns the haptic backend view of the bridge.
func (b *Bridge) Haptics() *Haptics { return &Haptics{b: b} }

// Location implements guidance.LocationSource.
type Location struct{ b *Bridge }

// Start asks the phone to stream fixes to sink.
func (l *Location) Start(sink guidance.LocationSink) error {
	l.b.mu.Lock()
	l.b.locSink = sink
	l.b.mu.Unlock()
	l.b.emit(Frame{Type: TypeLocationStart})
	return nil
}

// LastKnown returns the latest fix the phone sent, streaming or not.
func (l *Location) LastKnown() (position.Fix, bool) {
	l.b.mu.Lock()
	defer l.b.mu.Unlock()
	if l.b.lastFix == nil {
		return position.Fix{}, false
	}
	return *l.b.lastFix, true
}

// Stop ends the stream.
func (l *Location) Stop() {
	l.b.mu.Lock()
	l.b.locSink = nil
	l.b.mu.Unlock()
	l.b.emit(Frame{Type: TypeLocationStop})
}

// Orientation implements guidance.OrientationSource.
type Orientation struct{ b *Bridge }

// Start asks the phone to stream orientation samples to sink.
func (o *Orientation) Start(sink guidance.OrientationSink) error {
	o.b.mu.Lock()
	o.b.oriSink = sink
	o.b.mu.Unlock()
	o.b.emit(Frame{Type: TypeOrientationStart})
	return nil
}

// Stop ends the stream.
func (o *Orientation) Stop() {
	o.b.mu.Lock()
	o.b.oriSink = nil
	o.b.mu.Unlock()
	o.b.emit(Frame{Type: TypeOrientationStop})
}

// Capabilities returns what the phone reported in hello.
func (o *Orientation) Capabilities() heading.Capabilities {
	o.b.mu.Lock()
	defer o.b.mu.Unlock()
	return o.b.caps
}

// Speech implements speech.Backend. A new utterance replaces the active one.
type Speech struct{ b *Bridge }

// Speak sends u to the phone.
func (s *Speech) Speak(u speech.Utterance, cb speech.Callbacks) error {
	b := s.b
	b.mu.Lock()
	if !b.connected {
		b.mu.Unlock()
		return speech.ErrNotReady
	}
	replaced := b.takeUtterances()
	p := &pendingUtterance{cb: cb}
	if b.speechTimeout > 0 {
		p.timer = time.AfterFunc(b.speechTimeout, func() { b.expire(u.ID, p) })
	}
	b.utterances[u.ID] = p
	b.mu.Unlock()

	for _, prev := range replaced {
		fail(prev, speech.ErrInterrupted)
	}
	if err := b.emit(Frame{Type: TypeSpeak, ID: u.ID, Text: u.Text}); err != nil {
		b.utterance(u.ID, true)
		return err
	}
	return nil
}

// Stop interrupts the active utterance.
func (s *Speech) Stop() {
	b := s.b
	b.mu.Lock()
	active := b.takeUtterances()
	b.mu.Unlock()

	b.emit(Frame{Type: TypeSpeechStop})
	for _, cb := range active {
		fail(cb, speech.ErrInterrupted)
	}
}

// Haptics implements haptic.Backend.
type Haptics struct{ b *Bridge }

// Vibrate sends a one-shot vibration.
func (h *Haptics) Vibrate(d time.Duration) {
	h.b.emit(Frame{Type: TypeVibrate, Millis: d.Milliseconds()})
}

// VibratePattern sends an on/off pattern.
func (h *Haptics) VibratePattern(pattern []time.Duration) {
	h.b.emit(Frame{Type: TypeVibratePattern, Pattern: haptic.Milliseconds(pattern)})
}

var (
	_ guidance.LocationSource    = (*Location)(nil)
	_ guidance.LastKnownLocator  = (*Location)(nil)
	_ guidance.OrientationSource = (*Orientation)(nil)
	_ speech.Backend             = (*Speech)(nil)
	_ haptic.Backend             = (*Haptics)(nil)
)
