package guidance

// startTracking starts the location source and a fresh position filter.
// Repeated calls keep one tracking session.
func (e *Engine) startTracking() {
	if e.tracking {
		e.logger.Debug("already tracking, start ignored")
		return
	}
	e.filter.Reset()
	e.hasPos = false
	if err := e.deps.Location.Start(e); err != nil {
		e.logger.Error("location source failed to start", "error", err)
	}
	e.tracking = true
	e.trackingStarts++
	e.logger.Info("location tracking started")
	e.emit(Event{Kind: EventTracking, Detail: "location_started"})
}

// stopTracking stops the location source and drops filter state. A no-op
// when not tracking.
func (e *Engine) stopTracking() {
	if !e.tracking {
		return
	}
	e.deps.Location.Stop()
	e.tracking = false
	e.trackingStops++
	e.filter.Reset()
	e.hasPos = false
	e.logger.Info("location tracking stopped")
	e.emit(Event{Kind: EventTracking, Detail: "location_stopped"})
}

// startHeadingTracking starts the orientation source. Without a usable sensor
// guidance degrades: no heading is published and loop ticks skip decisions.
func (e *Engine) startHeadingTracking() {
	if e.headingTracking {
		return
	}
	caps := e.deps.Orientation.Capabilities()
	e.estimator.SetCapabilities(caps)
	e.estimator.Reset()
	e.hasHeading = false

	if !caps.Available() {
		f := newFailure(SensorUnavailable, "no orientation sensor", nil)
		e.logger.Warn("heading unavailable, continuing without it", "kind", f.Kind)
		e.emit(Event{Kind: EventTracking, Detail: f.Kind.String()})
	}
	if err := e.deps.Orientation.Start(e); err != nil {
		e.logger.Error("orientation source failed to start", "error", err)
	}
	e.headingTracking = true
	e.emit(Event{Kind: EventTracking, Detail: "heading_started"})
}

func (e *Engine) stopHeadingTracking() {
	if !e.headingTracking {
		return
	}
	e.deps.Orientation.Stop()
	e.headingTracking = false
	e.estimator.Reset()
	e.hasHeading = false
	e.emit(Event{Kind: EventTracking, Detail: "heading_stopped"})
}
