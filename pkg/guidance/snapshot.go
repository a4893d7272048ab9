package guidance

import (
	"time"

	"github.com/teslashibe/go-wayfinder/pkg/geo"
)

// subscriberBuffer is the per-subscriber channel depth. Slow readers lose the
// oldest states, never the newest.
const subscriberBuffer = 16

// Snapshot is a read-only view of the engine for status endpoints.
type Snapshot struct {
	State State  `json:"state"`
	Phase string `json:"phase"`

	Heading    float64   `json:"heading"`
	HasHeading bool      `json:"has_heading"`
	Position   geo.Point `json:"position"`
	Accuracy   float64   `json:"accuracy"`
	HasFix     bool      `json:"has_fix"`

	Destination string `json:"destination,omitempty"`
	Waypoints   int    `json:"waypoints"`
	LastSpoken  int    `json:"last_spoken"`
	Speaking    bool   `json:"speaking"`

	Tracking        bool `json:"tracking"`
	HeadingTracking bool `json:"heading_tracking"`
	TrackingStarts  int  `json:"tracking_starts"`
	TrackingStops   int  `json:"tracking_stops"`

	Loops      map[string]bool `json:"loops"`
	LoopStarts map[string]int  `json:"loop_starts"`
	LoopStops  map[string]int  `json:"loop_stops"`

	UpdatedAt time.Time `json:"updated_at"`
}

// refresh copies control-goroutine state into the published snapshot.
func (e *Engine) refresh() {
	s := Snapshot{
		State:           e.state,
		Phase:           e.state.Phase.String(),
		Heading:         e.headingDeg,
		HasHeading:      e.hasHeading,
		LastSpoken:      e.lastSpoken,
		Speaking:        e.speaking,
		Tracking:        e.tracking,
		HeadingTracking: e.headingTracking,
		TrackingStarts:  e.trackingStarts,
		TrackingStops:   e.trackingStops,
		Loops: map[string]bool{
			"alignment": e.alignLoop != nil,
			"guidance":  e.guideLoop != nil,
		},
		LoopStarts: copyCounts(e.loopStarts),
		LoopStops:  copyCounts(e.loopStops),
		UpdatedAt:  e.now(),
	}
	switch {
	case e.hasPos:
		s.Position = e.pos.Point
		s.Accuracy = e.pos.Accuracy
		s.HasFix = true
	case e.hasFix:
		s.Position = e.lastFix.Point()
		s.Accuracy = e.lastFix.Accuracy
		s.HasFix = true
	}
	if e.dest.Lat != "" || e.dest.Lon != "" || e.dest.Name != "" {
		s.Destination = e.dest.DisplayName()
	}
	if e.route != nil {
		s.Waypoints = len(e.route.Waypoints)
	}

	e.snapMu.Lock()
	e.snap = s
	e.snapMu.Unlock()
}

func copyCounts(m map[string]int) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// State returns the last published navigation state.
func (e *Engine) State() State {
	e.snapMu.RLock()
	defer e.snapMu.RUnlock()
	return e.snap.State
}

// Snapshot returns the last published status snapshot.
func (e *Engine) Snapshot() Snapshot {
	e.snapMu.RLock()
	defer e.snapMu.RUnlock()
	return e.snap
}

// Subscribe returns a channel receiving every state transition and a function
// that ends the subscription. The channel is closed when Run returns.
func (e *Engine) Subscribe() (<-chan State, func()) {
	e.subsMu.Lock()
	defer e.subsMu.Unlock()

	ch := make(chan State, subscriberBuffer)
	if e.subs == nil {
		close(ch)
		return ch, func() {}
	}
	e.subSeq++
	id := e.subSeq
	e.subs[id] = ch

	return ch, func() {
		e.subsMu.Lock()
		defer e.subsMu.Unlock()
		if c, ok := e.subs[id]; ok {
			delete(e.subs, id)
			close(c)
		}
	}
}

func (e *Engine) broadcast(s State) {
	e.subsMu.Lock()
	defer e.subsMu.Unlock()
	for _, ch := range e.subs {
		select {
		case ch <- s:
			continue
		default:
		}
		// Full: drop the oldest.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- s:
		default:
		}
	}
}

func (e *Engine) closeSubscribers() {
	e.subsMu.Lock()
	defer e.subsMu.Unlock()
	for id, ch := range e.subs {
		close(ch)
		delete(e.subs, id)
	}
	e.subs = nil
}
