package speech

import (
	"log/slog"
	"sync"
	"time"
	"unicode/utf8"
)

// DefaultCharDuration approximates speaking pace for LogBackend.
const DefaultCharDuration = 60 * time.Millisecond

// LogBackend "speaks" by logging the text and reports completion after an
// estimated speaking time. Used when no device is connected.
type LogBackend struct {
	perChar time.Duration
	logger  *slog.Logger

	mu      sync.Mutex
	timer   *time.Timer
	current *active
}

// NewLogBackend creates a backend that logs utterances.
func NewLogBackend(logger *slog.Logger, perChar time.Duration) *LogBackend {
	if logger == nil {
		logger = slog.Default()
	}
	if perChar <= 0 {
		perChar = DefaultCharDuration
	}
	return &LogBackend{
		perChar: perChar,
		logger:  logger.With("component", "speech.log"),
	}
}

// Speak implements Backend.
func (b *LogBackend) Speak(u Utterance, cb Callbacks) error {
	d := time.Duration(utf8.RuneCountInString(u.Text)) * b.perChar

	b.mu.Lock()
	prev := b.current
	if b.timer != nil {
		b.timer.Stop()
	}
	cur := &active{u: u, cb: cb}
	b.current = cur
	b.timer = time.AfterFunc(d, func() {
		b.mu.Lock()
		if b.current != cur {
			b.mu.Unlock()
			return
		}
		b.current = nil
		b.mu.Unlock()
		cb.done()
	})
	b.mu.Unlock()

	if prev != nil {
		prev.cb.fail(ErrInterrupted)
	}
	b.logger.Info("speak", "id", u.ID, "text", u.Text, "duration_ms", d.Milliseconds())
	cb.start()
	return nil
}

// Stop implements Backend.
func (b *LogBackend) Stop() {
	b.mu.Lock()
	prev := b.current
	b.current = nil
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	b.mu.Unlock()

	if prev != nil {
		prev.cb.fail(ErrInterrupted)
	}
}
