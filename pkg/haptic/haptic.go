// Package haptic defines the vibration contract used for non-verbal guidance.
// Calls are fire-and-forget; backends never report completion.
package haptic

import (
	"log/slog"
	"sync"
	"time"
)

// Backend drives the device vibrator.
type Backend interface {
	// Vibrate runs a single pulse.
	Vibrate(d time.Duration)

	// VibratePattern plays alternating off/on durations, starting with an
	// initial delay, once.
	VibratePattern(pattern []time.Duration)
}

// Milliseconds converts a pattern to integer milliseconds for wire formats.
func Milliseconds(pattern []time.Duration) []int64 {
	out := make([]int64, len(pattern))
	for i, d := range pattern {
		out[i] = d.Milliseconds()
	}
	return out
}

// LogBackend logs vibrations at debug level. Used when no device is connected.
type LogBackend struct {
	logger *slog.Logger
}

// NewLogBackend creates a logging backend.
func NewLogBackend(logger *slog.Logger) *LogBackend {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogBackend{logger: logger.With("component", "haptic.log")}
}

// Vibrate implements Backend.
func (b *LogBackend) Vibrate(d time.Duration) {
	b.logger.Debug("vibrate", "duration_ms", d.Milliseconds())
}

// VibratePattern implements Backend.
func (b *LogBackend) VibratePattern(pattern []time.Duration) {
	b.logger.Debug("vibrate pattern", "pattern_ms", Milliseconds(pattern))
}

// Call records one haptic invocation.
type Call struct {
	Duration time.Duration
	Pattern  []time.Duration
}

// Mock implements Backend for testing.
type Mock struct {
	mu    sync.Mutex
	calls []Call
}

// NewMock creates a recording backend.
func NewMock() *Mock {
	return &Mock{}
}

// Vibrate implements Backend.
func (m *Mock) Vibrate(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Duration: d})
}

// VibratePattern implements Backend.
func (m *Mock) VibratePattern(pattern []time.Duration) {
	p := append([]time.Duration(nil), pattern...)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Pattern: p})
}

// Calls returns all recorded calls.
func (m *Mock) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}

// Patterns returns only the pattern calls.
func (m *Mock) Patterns() [][]time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out [][]time.Duration
	for _, c := range m.calls {
		if c.Pattern != nil {
			out = append(out, c.Pattern)
		}
	}
	return out
}
