package device

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-wayfinder/internal/log"
	"github.com/teslashibe/go-wayfinder/pkg/heading"
	"github.com/teslashibe/go-wayfinder/pkg/position"
	"github.com/teslashibe/go-wayfinder/pkg/route"
	"github.com/teslashibe/go-wayfinder/pkg/speech"
)

type fakeSender struct {
	mu     sync.Mutex
	frames []Frame
	err    error
}

func (s *fakeSender) BroadcastJSON(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.frames = append(s.frames, v.(Frame))
	return nil
}

func (s *fakeSender) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *fakeSender) types() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.frames))
	for i, f := range s.frames {
		out[i] = f.Type
	}
	return out
}

func (s *fakeSender) last() Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames[len(s.frames)-1]
}

type fakeSink struct {
	fixes    []position.Fix
	accuracy []float64
	weak     int
	restored int
	samples  []heading.Sample
	rotation heading.Rotation
}

func (f *fakeSink) HandleLocation(fix position.Fix) { f.fixes = append(f.fixes, fix) }
func (f *fakeSink) HandleAccuracyChanged(a float64) { f.accuracy = append(f.accuracy, a) }
func (f *fakeSink) HandleSignalWeak() { f.weak++ }
func (f *fakeSink) HandleSignalRestored() { f.restored++ }
func (f *fakeSink) HandleOrientation(s heading.Sample) { f.samples = append(f.samples, s) }
func (f *fakeSink) SetDisplayRotation(r heading.Rotation) { f.rotation = r }

func frame(t *testing.T, f Frame) []byte {
	t.Helper()
	b, err := json.Marshal(f)
	require.NoError(t, err)
	return b
}

func connected(t *testing.T, opts ...Option) (*Bridge, *fakeSender) {
	t.Helper()
	s := &fakeSender{}
	b := NewBridge(s, append([]Option{WithLogger(log.Discard())}, opts...)...)
	caps := heading.Capabilities{RotationVector: true}
	require.NoError(t, b.HandleFrame(frame(t, Frame{Type: TypeHello, Capabilities: &caps})))
	return b, s
}

func TestBridgeStreamsToSinks(t *testing.T) {
	b, s := connected(t)
	sink := &fakeSink{}

	require.NoError(t, b.Location().Start(sink))
	require.NoError(t, b.Orientation().Start(sink))
	assert.Equal(t, []string{TypeLocationStart, TypeOrientationStart}, s.types())
	assert.True(t, b.Orientation().Capabilities().RotationVector)

	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, b.HandleFrame(frame(t, Frame{Type: TypeLocation, Lat: 37.5, Lon: 127, Accuracy: 4, Time: &at})))
	require.NoError(t, b.HandleFrame(frame(t, Frame{Type: TypeAccuracy, Accuracy: 12})))
	require.NoError(t, b.HandleFrame(frame(t, Frame{Type: TypeSignal, State: "weak"})))
	require.NoError(t, b.HandleFrame(frame(t, Frame{Type: TypeSignal, State: "restored"})))
	require.NoError(t, b.HandleFrame(frame(t, Frame{Type: TypeOrientation, Kind: heading.SensorRotationVector, Values: []float64{0, 0, 0, 1}})))
	require.NoError(t, b.HandleFrame(frame(t, Frame{Type: TypeRotation, Rotation: 90})))

	require.Len(t, sink.fixes, 1)
	assert.Equal(t, 37.5, sink.fixes[0].Latitude)
	assert.True(t, sink.fixes[0].Time.Equal(at))
	assert.Equal(t, []float64{12}, sink.accuracy)
	assert.Equal(t, 1, sink.weak)
	assert.Equal(t, 1, sink.restored)
	require.Len(t, sink.samples, 1)
	assert.Equal(t, heading.Rotation90, sink.rotation)

	b.Location().Stop()
	require.NoError(t, b.HandleFrame(frame(t, Frame{Type: TypeLocation, Lat: 1, Lon: 1})))
	assert.Len(t, sink.fixes, 1, "no fixes after stop")
	assert.Equal(t, TypeLocationStop, s.last().Type)
}

func TestBridgeRemembersLastFixWhileIdle(t *testing.T) {
	b, _ := connected(t)

	_, ok := b.Location().LastKnown()
	assert.False(t, ok)

	require.NoError(t, b.HandleFrame(frame(t, Frame{Type: TypeLocation, Lat: 37.1, Lon: 127.2, Accuracy: 8})))
	fix, ok := b.Location().LastKnown()
	require.True(t, ok)
	assert.Equal(t, 37.1, fix.Latitude)
	assert.Equal(t, 127.2, fix.Longitude)
	assert.False(t, fix.Time.IsZero())
}

func TestBridgeRejectsBadFrames(t *testing.T) {
	b, _ := connected(t)
	b.Orientation().Start(&fakeSink{})
	b.Location().Start(&fakeSink{})

	assert.ErrorIs(t, b.HandleFrame([]byte("{")), ErrMalformedFrame)
	assert.ErrorIs(t, b.HandleFrame(frame(t, Frame{Type: "teleport"})), ErrUnknownFrame)
	assert.ErrorIs(t, b.HandleFrame(frame(t, Frame{Type: TypeRotation, Rotation: 45})), ErrMalformedFrame)
	assert.ErrorIs(t, b.HandleFrame(frame(t, Frame{Type: TypeSignal, State: "lost"})), ErrMalformedFrame)
}

func TestBridgeSpeech(t *testing.T) {
	b, s := connected(t)
	spk := speech.NewSpeaker(b.Speech(), speech.WithLogger(log.Discard()))
	b.AttachSpeaker(spk)

	var mu sync.Mutex
	var events []string
	record := func(name string) speech.Callbacks {
		return speech.Callbacks{
			OnStart: func() { mu.Lock(); events = append(events, name+":start"); mu.Unlock() },
			OnDone:  func() { mu.Lock(); events = append(events, name+":done"); mu.Unlock() },
			OnError: func(err error) { mu.Lock(); events = append(events, name+":"+err.Error()); mu.Unlock() },
		}
	}

	firstID, err := spk.Speak("first", record("first"))
	require.NoError(t, err)
	assert.Equal(t, 1, spk.Pending(), "queued until the phone's engine is ready")

	require.NoError(t, b.HandleFrame(frame(t, Frame{Type: TypeSpeechReady})))
	speak := s.last()
	assert.Equal(t, TypeSpeak, speak.Type)
	assert.Equal(t, firstID, speak.ID)
	assert.Equal(t, "first", speak.Text)

	require.NoError(t, b.HandleFrame(frame(t, Frame{Type: TypeSpeechStart, ID: firstID})))
	require.NoError(t, b.HandleFrame(frame(t, Frame{Type: TypeSpeechDone, ID: firstID})))

	_, err = spk.Speak("second", record("second"))
	require.NoError(t, err)
	_, err = spk.Speak("third", record("third"))
	require.NoError(t, err)
	spk.Stop()

	assert.Equal(t, []string{
		"first:start",
		"first:done",
		"second:" + speech.ErrInterrupted.Error(),
		"third:" + speech.ErrInterrupted.Error(),
	}, events)
	assert.Equal(t, TypeSpeechStop, s.last().Type)

	// Late frames for finished utterances are ignored.
	require.NoError(t, b.HandleFrame(frame(t, Frame{Type: TypeSpeechDone, ID: firstID})))
	assert.Len(t, events, 4)
}

func TestBridgeSpeakReportsDroppedFrame(t *testing.T) {
	b, s := connected(t)
	full := errors.New("queue full")
	s.fail(full)

	called := false
	err := b.Speech().Speak(speech.Utterance{ID: "u1", Text: "Turn left"}, speech.Callbacks{
		OnError: func(error) { called = true },
	})
	assert.ErrorIs(t, err, full)
	assert.False(t, called, "the caller learns from the return value")

	// The utterance is gone, so a late frame is ignored.
	require.NoError(t, b.HandleFrame(frame(t, Frame{Type: TypeSpeechDone, ID: "u1"})))
}

func TestBridgeUtteranceTimesOut(t *testing.T) {
	b, s := connected(t, WithSpeechTimeout(20*time.Millisecond))

	errs := make(chan error, 2)
	done := make(chan struct{}, 1)
	cb := speech.Callbacks{
		OnDone:  func() { done <- struct{}{} },
		OnError: func(err error) { errs <- err },
	}
	require.NoError(t, b.Speech().Speak(speech.Utterance{ID: "silent", Text: "Destination ahead"}, cb))
	assert.Equal(t, TypeSpeak, s.last().Type)

	select {
	case err := <-errs:
		assert.ErrorIs(t, err, ErrSpeechTimeout)
	case <-time.After(time.Second):
		t.Fatal("utterance never timed out")
	}

	// A speech_done after the timeout does not fire a second callback.
	require.NoError(t, b.HandleFrame(frame(t, Frame{Type: TypeSpeechDone, ID: "silent"})))
	assert.Empty(t, done)
	assert.Empty(t, errs)
}

func TestBridgeAnsweredUtteranceDoesNotTimeOut(t *testing.T) {
	b, _ := connected(t, WithSpeechTimeout(30*time.Millisecond))

	errs := make(chan error, 1)
	require.NoError(t, b.Speech().Speak(speech.Utterance{ID: "u1", Text: "Turn right"}, speech.Callbacks{
		OnError: func(err error) { errs <- err },
	}))
	require.NoError(t, b.HandleFrame(frame(t, Frame{Type: TypeSpeechDone, ID: "u1"})))

	time.Sleep(80 * time.Millisecond)
	assert.Empty(t, errs)
}

func TestBridgeDisconnect(t *testing.T) {
	b, _ := connected(t)
	spk := speech.NewSpeaker(b.Speech(), speech.WithReady(), speech.WithLogger(log.Discard()))
	b.AttachSpeaker(spk)

	var got error
	_, err := spk.Speak("hello", speech.Callbacks{OnError: func(err error) { got = err }})
	require.NoError(t, err)

	b.Disconnected()
	assert.ErrorIs(t, got, ErrDisconnected)
	assert.False(t, spk.Ready())
	assert.False(t, b.Connected())

	err = b.Speech().Speak(speech.Utterance{ID: "x", Text: "y"}, speech.Callbacks{})
	assert.ErrorIs(t, err, speech.ErrNotReady)
}

func TestBridgeResumesStreamsOnHello(t *testing.T) {
	s := &fakeSender{}
	b := NewBridge(s, WithLogger(log.Discard()))

	require.NoError(t, b.Location().Start(&fakeSink{}))
	assert.Empty(t, s.types(), "nothing sent before a phone connects")

	require.NoError(t, b.HandleFrame(frame(t, Frame{Type: TypeHello})))
	assert.Equal(t, []string{TypeLocationStart}, s.types())
}

func TestBridgeHapticsAndControl(t *testing.T) {
	var dest route.Destination
	var cancelled bool
	b, s := connected(t,
		WithNavigateHandler(func(d route.Destination) { dest = d }),
		WithCancelHandler(func() { cancelled = true }),
	)

	b.Haptics().Vibrate(150 * time.Millisecond)
	assert.Equal(t, int64(150), s.last().Millis)
	b.Haptics().VibratePattern([]time.Duration{0, 300 * time.Millisecond})
	assert.Equal(t, []int64{0, 300}, s.last().Pattern)

	require.NoError(t, b.HandleFrame([]byte(`{"type":"navigate","name":"Cafe","dest_lat":"37.57","dest_lon":"126.98"}`)))
	assert.Equal(t, route.Destination{Name: "Cafe", Lat: "37.57", Lon: "126.98"}, dest)
	require.NoError(t, b.HandleFrame([]byte(`{"type":"cancel"}`)))
	assert.True(t, cancelled)
}
