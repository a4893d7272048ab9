package speech

import (
	"sync"
)

// Mock implements Backend for testing.
//
// With AutoComplete set, every utterance starts and finishes inside Speak.
// Otherwise the test drives progress with Complete and Fail.
type Mock struct {
	// SpeakFunc, when set, replaces the default behaviour.
	SpeakFunc func(u Utterance, cb Callbacks) error

	AutoComplete bool

	mu      sync.Mutex
	spoken  []Utterance
	stops   int
	current *active
}

type active struct {
	u  Utterance
	cb Callbacks
}

// NewMock creates a mock backend.
func NewMock(autoComplete bool) *Mock {
	return &Mock{AutoComplete: autoComplete}
}

// Speak implements Backend.
func (m *Mock) Speak(u Utterance, cb Callbacks) error {
	if m.SpeakFunc != nil {
		m.mu.Lock()
		m.spoken = append(m.spoken, u)
		m.mu.Unlock()
		return m.SpeakFunc(u, cb)
	}

	m.mu.Lock()
	m.spoken = append(m.spoken, u)
	prev := m.current
	m.current = &active{u: u, cb: cb}
	auto := m.AutoComplete
	if auto {
		m.current = nil
	}
	m.mu.Unlock()

	if prev != nil {
		prev.cb.fail(ErrInterrupted)
	}
	cb.start()
	if auto {
		cb.done()
	}
	return nil
}

// Stop implements Backend. The active utterance, if any, is reported as
// interrupted.
func (m *Mock) Stop() {
	m.mu.Lock()
	m.stops++
	prev := m.current
	m.current = nil
	m.mu.Unlock()

	if prev != nil {
		prev.cb.fail(ErrInterrupted)
	}
}

// Complete finishes the active utterance. It reports false when nothing is
// being spoken.
func (m *Mock) Complete() bool {
	m.mu.Lock()
	cur := m.current
	m.current = nil
	m.mu.Unlock()

	if cur == nil {
		return false
	}
	cur.cb.done()
	return true
}

// Fail reports err for the active utterance.
func (m *Mock) Fail(err error) bool {
	m.mu.Lock()
	cur := m.current
	m.current = nil
	m.mu.Unlock()

	if cur == nil {
		return false
	}
	cur.cb.fail(err)
	return true
}

// Current returns the active utterance.
func (m *Mock) Current() (Utterance, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return Utterance{}, false
	}
	return m.current.u, true
}

// Spoken returns the text of every utterance passed to Speak, in order.
func (m *Mock) Spoken() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.spoken))
	for i, u := range m.spoken {
		out[i] = u.Text
	}
	return out
}

// Stops returns how many times Stop was called.
func (m *Mock) Stops() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stops
}

// Reset clears recorded calls.
func (m *Mock) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.spoken = nil
	m.stops = 0
	m.current = nil
}
