package hub

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-wayfinder/internal/log"
)

// fakeConn records writes and serves reads from a channel.
type fakeConn struct {
	mu      sync.Mutex
	written [][]byte
	inbound chan []byte
	closed  chan struct{}
	once    sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{inbound: make(chan []byte, 8), closed: make(chan struct{})}
}

func (f *fakeConn) SetReadLimit(int64) {}
func (f *fakeConn) SetReadDeadline(time.Time) error { return nil }
func (f *fakeConn) SetWriteDeadline(time.Time) error { return nil }
func (f *fakeConn) SetPongHandler(func(string) error) {}
func (f *fakeConn) Close() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case b := <-f.inbound:
		return 1, b, nil
	case <-f.closed:
		return 0, nil, errors.New("closed")
	}
}

func (f *fakeConn) WriteMessage(kind int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if kind == 1 || kind == 2 {
		f.written = append(f.written, append([]byte(nil), data...))
	}
	return nil
}

func (f *fakeConn) frames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.written))
	for i, b := range f.written {
		out[i] = string(b)
	}
	return out
}

func TestHubBroadcast(t *testing.T) {
	h := New("test", WithLogger(log.Discard()))
	h.Greeting = func() (Message, bool) { return NewJSONMessage([]byte(`{"hello":true}`)), true }

	ctx, cancel := context.WithCancel(context.Background())
	hubDone := make(chan struct{})
	go func() { defer close(hubDone); h.Run(ctx) }()

	conn := newFakeConn()
	var got []string
	var mu sync.Mutex
	c := NewClient(h, conn)
	c.OnMessage = func(b []byte) {
		mu.Lock()
		got = append(got, string(b))
		mu.Unlock()
	}
	clientDone := make(chan struct{})
	go func() { defer close(clientDone); c.Run() }()

	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, h.BroadcastJSON(map[string]int{"n": 1}))
	conn.inbound <- []byte("ping")

	require.Eventually(t, func() bool { return len(conn.frames()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{`{"hello":true}`, `{"n":1}`}, conn.frames())
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, time.Second, 5*time.Millisecond)

	conn.Close()
	<-clientDone
	require.Eventually(t, func() bool { return h.ClientCount() == 0 }, time.Second, 5*time.Millisecond)

	cancel()
	<-hubDone
	assert.False(t, h.IsRunning())
}

func TestClientAfterHubStopped(t *testing.T) {
	h := New("stopped", WithLogger(log.Discard()))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	h.Run(ctx)

	conn := newFakeConn()
	NewClient(h, conn).Run()
	select {
	case <-conn.closed:
	default:
		t.Fatal("connection should be closed")
	}
}

func TestBroadcastDropsWhenFull(t *testing.T) {
	h := New("full", WithLogger(log.Discard()))
	for i := 0; i < cap(h.broadcast)+3; i++ {
		h.Broadcast(NewBinaryMessage([]byte{byte(i)}))
	}
	assert.Equal(t, uint64(3), h.Dropped())
}

func TestBroadcastJSONReportsFullQueue(t *testing.T) {
	h := New("full", WithLogger(log.Discard()))
	for i := 0; i < cap(h.broadcast); i++ {
		require.NoError(t, h.BroadcastJSON(map[string]int{"n": i}))
	}

	err := h.BroadcastJSON(map[string]string{"type": "speak"})
	assert.ErrorIs(t, err, ErrQueueFull)
	assert.Equal(t, uint64(1), h.Dropped())
}
