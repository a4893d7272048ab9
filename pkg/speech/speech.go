// Package speech defines the text-to-speech contract used by the guidance
// engine and a Speaker that buffers requests until the backend is ready.
//
// Backends report progress through Callbacks. Callbacks may fire on any
// goroutine; consumers that need ordering marshal them onto their own loop.
package speech

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Sentinel errors for common error conditions.
var (
	// ErrNotReady is delivered to pending requests dropped because the
	// backend failed to initialise.
	ErrNotReady = errors.New("speech: backend not ready")

	// ErrShutdown is returned after Shutdown.
	ErrShutdown = errors.New("speech: shut down")

	// ErrInterrupted is delivered to an utterance cut off by Stop.
	ErrInterrupted = errors.New("speech: interrupted")

	// ErrEmptyText is returned for blank requests.
	ErrEmptyText = errors.New("speech: empty text")
)

// Callbacks report the lifecycle of one utterance. Any field may be nil.
type Callbacks struct {
	OnStart func()
	OnDone  func()
	OnError func(error)
}

func (c Callbacks) start() {
	if c.OnStart != nil {
		c.OnStart()
	}
}

func (c Callbacks) done() {
	if c.OnDone != nil {
		c.OnDone()
	}
}

func (c Callbacks) fail(err error) {
	if c.OnError != nil {
		c.OnError(err)
	}
}

// Utterance is one speech request.
type Utterance struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Backend speaks text. Speak returns once the request is accepted; progress
// is reported through the callbacks. A new Speak replaces whatever is being
// spoken.
type Backend interface {
	Speak(u Utterance, cb Callbacks) error
	Stop()
}

// Speaker dispatches requests to a Backend, queueing them in FIFO order until
// the backend signals readiness.
type Speaker struct {
	backend Backend
	logger  *slog.Logger

	mu       sync.Mutex
	ready    bool
	shutdown bool
	pending  []pendingRequest
}

type pendingRequest struct {
	u  Utterance
	cb Callbacks
}

// Option configures a Speaker.
type Option func(*Speaker)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Speaker) {
		s.logger = l
	}
}

// WithReady marks the backend ready from the start.
func WithReady() Option {
	return func(s *Speaker) {
		s.ready = true
	}
}

// NewSpeaker creates a speaker for backend.
func NewSpeaker(backend Backend, opts ...Option) *Speaker {
	s := &Speaker{
		backend: backend,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "speech.speaker")
	return s
}

// Speak submits text. Before the backend is ready the request is queued and
// the returned ID is valid immediately.
func (s *Speaker) Speak(text string, cb Callbacks) (string, error) {
	if text == "" {
		return "", ErrEmptyText
	}
	u := Utterance{ID: uuid.NewString(), Text: text}

	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		return "", ErrShutdown
	}
	if !s.ready {
		s.pending = append(s.pending, pendingRequest{u: u, cb: cb})
		n := len(s.pending)
		s.mu.Unlock()
		s.logger.Debug("backend not ready, queued", "id", u.ID, "pending", n)
		return u.ID, nil
	}
	s.mu.Unlock()

	if err := s.backend.Speak(u, cb); err != nil {
		return "", err
	}
	return u.ID, nil
}

// MarkReady flushes queued requests in FIFO order and dispatches later
// requests immediately.
func (s *Speaker) MarkReady() {
	s.mu.Lock()
	if s.shutdown || s.ready {
		s.mu.Unlock()
		return
	}
	s.ready = true
	pending := s.pending
	s.pending = nil
	s.mu.Unlock()

	s.logger.Info("speech backend ready", "pending", len(pending))
	for _, p := range pending {
		if err := s.backend.Speak(p.u, p.cb); err != nil {
			s.logger.Warn("queued utterance failed", "id", p.u.ID, "error", err)
			p.cb.fail(err)
		}
	}
}

// MarkFailed drops queued requests, reporting ErrNotReady to each.
func (s *Speaker) MarkFailed(err error) {
	s.mu.Lock()
	pending := s.pending
	s.pending = nil
	s.ready = false
	s.mu.Unlock()

	s.logger.Error("speech backend failed", "error", err, "dropped", len(pending))
	for _, p := range pending {
		p.cb.fail(ErrNotReady)
	}
}

// Ready reports whether requests are dispatched immediately.
func (s *Speaker) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

// Pending returns the number of queued requests.
func (s *Speaker) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Stop interrupts the current utterance. The engine stays usable.
func (s *Speaker) Stop() {
	s.backend.Stop()
}

// Shutdown stops speech and fails queued requests with ErrShutdown. Further
// Speak calls fail.
func (s *Speaker) Shutdown() {
	s.mu.Lock()
	s.shutdown = true
	s.ready = false
	pending := s.pending
	s.pending = nil
	s.mu.Unlock()

	s.backend.Stop()
	for _, p := range pending {
		p.cb.fail(ErrShutdown)
	}
}
