package guidance

import (
	"context"
	"sync"
	"time"
)

// mailbox is an unbounded FIFO of closures drained by the control goroutine.
// post never blocks, so sensor and speech callbacks can hand off from any
// goroutine.
type mailbox struct {
	mu     sync.Mutex
	queue  []func()
	notify chan struct{}
	closed bool
}

func newMailbox() *mailbox {
	return &mailbox{notify: make(chan struct{}, 1)}
}

func (m *mailbox) post(fn func()) bool {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return false
	}
	m.queue = append(m.queue, fn)
	m.mu.Unlock()

	select {
	case m.notify <- struct{}{}:
	default:
	}
	return true
}

func (m *mailbox) drain() []func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	q := m.queue
	m.queue = nil
	return q
}

func (m *mailbox) close() {
	m.mu.Lock()
	m.closed = true
	m.queue = nil
	m.mu.Unlock()
}

// loop is a periodic ticker whose ticks run on the control goroutine.
type loop struct {
	name   string
	cancel context.CancelFunc
	done   chan struct{}
}

// startLoop starts a loop in *slot unless one is already running. The first
// tick runs immediately, then every period.
func (e *Engine) startLoop(slot **loop, name string, period time.Duration, tick func()) {
	if *slot != nil {
		return
	}
	ctx, cancel := context.WithCancel(e.runCtx)
	lp := &loop{name: name, cancel: cancel, done: make(chan struct{})}
	*slot = lp
	e.loopStarts[name]++
	e.logger.Debug("loop started", "loop", name, "period_ms", period.Milliseconds())

	go func() {
		defer close(lp.done)
		ticker := time.NewTicker(period)
		defer ticker.Stop()

		for {
			if ctx.Err() != nil {
				return
			}
			// A stale tick (loop stopped or replaced after posting) is dropped.
			posted := e.mailbox.post(func() {
				if *slot == lp {
					tick()
				}
			})
			if !posted {
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}

// stopLoop cancels the loop in *slot and waits for its goroutine to exit.
// Stopping an idle slot is a no-op.
func (e *Engine) stopLoop(slot **loop) {
	lp := *slot
	if lp == nil {
		return
	}
	*slot = nil
	lp.cancel()
	<-lp.done
	e.loopStops[lp.name]++
	e.logger.Debug("loop stopped", "loop", lp.name)
}

func (e *Engine) stopLoops() {
	e.stopLoop(&e.alignLoop)
	e.stopLoop(&e.guideLoop)
}
