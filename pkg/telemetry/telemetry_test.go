package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	MQTT "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-wayfinder/internal/log"
	"github.com/teslashibe/go-wayfinder/pkg/guidance"
)

type doneToken struct {
	err error
}

func (t doneToken) Wait() bool                     { return true }
func (t doneToken) WaitTimeout(time.Duration) bool { return true }
func (t doneToken) Error() error                   { return t.err }

func (t doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type published struct {
	topic    string
	retained bool
	payload  []byte
}

type fakeClient struct {
	mu          sync.Mutex
	connectErr  error
	publishErr  error
	messages    []published
	disconnects int
}

func (f *fakeClient) Connect() MQTT.Token { return doneToken{err: f.connectErr} }

func (f *fakeClient) Disconnect(uint) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnects++
}

func (f *fakeClient) Publish(topic string, _ byte, retained bool, payload interface{}) MQTT.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, published{topic: topic, retained: retained, payload: payload.([]byte)})
	return doneToken{err: f.publishErr}
}

func (f *fakeClient) sent() []published {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]published(nil), f.messages...)
}

func TestPublisherSendsStateAndEvents(t *testing.T) {
	fc := &fakeClient{}
	p := newPublisher(fc, Config{TopicPrefix: "walk"}, log.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	prev := guidance.State{Phase: guidance.ParsingRoute}
	next := guidance.State{
		Phase:   guidance.Failed,
		Reason:  "route payload unreadable",
		Session: "s1",
		Failure: &guidance.Failure{Kind: guidance.ParseFailure},
	}
	p.Observe(guidance.Event{Kind: guidance.EventStateChanged, Prev: &prev, State: &next})
	p.Observe(guidance.Event{Kind: guidance.EventWaypoint, Index: 2, Text: "Turn right"})
	p.Observe(guidance.Event{Kind: guidance.EventHeading, Heading: 10})

	require.Eventually(t, func() bool { return len(fc.sent()) == 2 }, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	msgs := fc.sent()
	assert.Equal(t, "walk/state", msgs[0].topic)
	assert.True(t, msgs[0].retained)
	var doc statePayload
	require.NoError(t, json.Unmarshal(msgs[0].payload, &doc))
	assert.Equal(t, "error", doc.Phase)
	assert.Equal(t, "parse_failure", doc.Kind)
	assert.Equal(t, "s1", doc.Session)

	assert.Equal(t, "walk/events/waypoint", msgs[1].topic)
	assert.False(t, msgs[1].retained)
	assert.Contains(t, string(msgs[1].payload), `"Turn right"`)

	pub, dropped := p.Stats()
	assert.Equal(t, uint64(2), pub)
	assert.Zero(t, dropped)
	assert.Equal(t, 1, fc.disconnects)
}

func TestPublisherConnectError(t *testing.T) {
	fc := &fakeClient{connectErr: errors.New("refused")}
	p := newPublisher(fc, Config{}, log.Discard())
	err := p.Run(context.Background())
	assert.ErrorContains(t, err, "refused")
}

func TestPublisherDropsWhenQueueFull(t *testing.T) {
	p := newPublisher(&fakeClient{}, Config{QueueSize: 1}, log.Discard())
	for i := 0; i < 3; i++ {
		p.Observe(guidance.Event{Kind: guidance.EventSpeech, Text: "hi"})
	}
	_, dropped := p.Stats()
	assert.Equal(t, uint64(2), dropped)
}

func TestNewPublisherDisabled(t *testing.T) {
	_, err := NewPublisher(DefaultConfig(), log.Discard())
	assert.ErrorIs(t, err, ErrDisabled)
}
