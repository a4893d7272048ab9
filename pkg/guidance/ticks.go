package guidance

import (
	"github.com/teslashibe/go-wayfinder/pkg/alignment"
	"github.com/teslashibe/go-wayfinder/pkg/geo"
)

// alignmentTick checks whether the user faces the next unvisited waypoint.
// Unaligned ticks vibrate and announce the turn direction; completion plays
// the completion pattern and moves to guidance once the announcement ends.
func (e *Engine) alignmentTick() {
	if e.state.Phase != AligningDirection {
		e.stopLoop(&e.alignLoop)
		return
	}
	if e.completionPending || !e.hasHeading || !e.hasPos || e.route == nil {
		return
	}
	target, ok := e.route.Next(e.lastSpoken)
	if !ok {
		return
	}

	r := e.evaluator.Evaluate(e.pos.Point, e.headingDeg, target.Point)
	res := r
	e.emit(Event{Kind: EventAlignment, Index: target.Index, Heading: e.headingDeg, Result: &res})

	if !r.Aligned {
		e.deps.Haptics.Vibrate(r.Bucket.Vibration())
		text := e.turnPhrase(r.Direction, false)
		switch r.Announce {
		case alignment.AnnounceForce:
			e.say(text, true, nil)
		case alignment.AnnounceNormal:
			e.say(text, false, nil)
		}
		return
	}
	if !r.Completed {
		return
	}

	e.logger.Info("alignment complete", "target", target.Index, "bearing", r.Bearing, "heading", e.headingDeg)
	e.deps.Haptics.VibratePattern(alignment.CompletionPattern)
	e.completionPending = true
	accepted := e.say(e.cfg.Messages.Aligned, true, func(err error) {
		if err != nil {
			e.completionPending = false
			return
		}
		e.dispatch(TriggerAligned, nil)
	})
	if !accepted {
		e.completionPending = false
	}
}

// guidanceTick repeats a correction when the user drifts off the bearing to
// the next waypoint that is not right underfoot. Corrections never interrupt
// speech and are spaced at least SpeakInterval apart.
func (e *Engine) guidanceTick() {
	if e.state.Phase != GuidingNavigation {
		e.stopLoop(&e.guideLoop)
		return
	}
	if !e.hasHeading || !e.hasPos || e.route == nil {
		return
	}
	target, ok := e.route.NextBeyond(e.lastSpoken, e.pos.Point, e.cfg.SkipDistance)
	if !ok {
		return
	}

	diff := alignment.Diff(geo.Bearing(e.pos.Point, target.Point), e.headingDeg)
	aligned, dir := alignment.Classify(diff, e.cfg.Alignment.Threshold)

	if e.speaking {
		return
	}
	now := e.now()
	if !e.lastCorrection.IsZero() && now.Sub(e.lastCorrection) < e.cfg.SpeakInterval {
		return
	}
	if aligned {
		return
	}

	text := e.turnPhrase(dir, true)
	if e.say(text, false, nil) {
		e.lastCorrection = now
		e.emit(Event{Kind: EventCorrection, Time: now, Text: text, Index: target.Index, Value: diff})
	}
}

func (e *Engine) turnPhrase(dir alignment.Direction, correction bool) string {
	m := e.cfg.Messages
	switch {
	case dir == alignment.DirectionLeft && correction:
		return m.CorrectLeft
	case dir == alignment.DirectionLeft:
		return m.TurnLeft
	case correction:
		return m.CorrectRight
	default:
		return m.TurnRight
	}
}

// checkArrival runs on every filtered fix while tracking. The first
// unvisited waypoint inside ArrivalRadius is handled: its description is
// spoken and the watermark advances. Reaching the last waypoint triggers
// arrival once its announcement ends.
func (e *Engine) checkArrival() {
	if e.route == nil || e.arriving || !e.state.Phase.Tracked() {
		return
	}
	last := e.route.Last()

	for _, w := range e.route.Waypoints {
		if w.Index <= e.lastSpoken {
			continue
		}
		d := geo.Distance(e.pos.Point, w.Point)
		if d >= e.cfg.ArrivalRadius {
			continue
		}

		idx := w.Index
		if w.Description == "" {
			e.logger.Warn("waypoint has no description", "index", idx, "distance_m", d)
			e.lastSpoken = idx
			if idx == last {
				e.arrive()
			}
			return
		}

		accepted := e.say(w.Description, false, func(error) {
			if idx == last {
				e.arrive()
			}
		})
		if !accepted {
			// Busy; retried on the next fix.
			return
		}
		e.lastSpoken = idx
		e.logger.Info("waypoint announced", "index", idx, "distance_m", d, "text", w.Description)
		e.emit(Event{Kind: EventWaypoint, Index: idx, Text: w.Description, Value: d})
		return
	}
}

// arrive stops tracking, announces arrival and finishes the session once
// the announcement ends.
func (e *Engine) arrive() {
	if e.arriving || !e.state.Phase.Tracked() {
		return
	}
	e.arriving = true
	e.logger.Info("destination reached", "session", e.state.Session)
	e.stopTracking()

	finish := func(error) { e.dispatch(TriggerArrived, nil) }
	if !e.say(e.cfg.Messages.Arrival, true, finish) {
		finish(nil)
	}
}
