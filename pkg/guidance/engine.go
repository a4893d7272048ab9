// Package guidance is the hands-free navigation engine.
//
// An Engine owns the navigation state machine and everything it drives:
// heading estimation, position filtering, the alignment and guidance loops,
// waypoint announcements and arrival. All state lives on a single control
// goroutine started by Run. Public methods are safe from any goroutine; they
// enqueue work onto an unbounded mailbox and return immediately.
//
// Basic usage:
//
//	eng, err := guidance.New(guidance.DefaultConfig(), deps)
//	go eng.Run(ctx)
//	eng.Navigate(route.Destination{Name: "Cafe", Lat: "37.57", Lon: "126.98"})
package guidance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-wayfinder/pkg/alignment"
	"github.com/teslashibe/go-wayfinder/pkg/geo"
	"github.com/teslashibe/go-wayfinder/pkg/haptic"
	"github.com/teslashibe/go-wayfinder/pkg/heading"
	"github.com/teslashibe/go-wayfinder/pkg/position"
	"github.com/teslashibe/go-wayfinder/pkg/route"
)

// Engine runs guidance sessions.
type Engine struct {
	cfg       Config
	deps      Dependencies
	logger    *slog.Logger
	observers []Observer
	now       func() time.Time

	mailbox   *mailbox
	closeOnce sync.Once
	closed    chan struct{}
	runOnce   sync.Once
	wg        sync.WaitGroup

	// Everything below is owned by the control goroutine.
	runCtx context.Context
	state  State

	dest      route.Destination
	payload   route.Payload
	route     *route.Route
	fetchSeq  uint64
	fetchStop context.CancelFunc

	estimator  *heading.Estimator
	filter     *position.Filter
	evaluator  *alignment.Evaluator
	headingDeg float64
	hasHeading bool
	pos        position.Filtered
	hasPos     bool
	lastFix    position.Fix
	hasFix     bool

	lastSpoken        int
	arriving          bool
	completionPending bool
	lastCorrection    time.Time

	speaking  bool
	speechSeq uint64

	tracking        bool
	headingTracking bool
	trackingStarts  int
	trackingStops   int
	alignLoop       *loop
	guideLoop       *loop
	loopStarts      map[string]int
	loopStops       map[string]int

	// Published copies for readers on other goroutines.
	snapMu sync.RWMutex
	snap   Snapshot
	subsMu sync.Mutex
	subs   map[int]chan State
	subSeq int
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithObserver registers an observer. May be given more than once.
func WithObserver(o Observer) Option {
	return func(e *Engine) {
		e.observers = append(e.observers, o)
	}
}

// WithClock overrides the time source used for rate limiting and timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// New creates an engine. Call Run to start processing.
func New(cfg Config, deps Dependencies, opts ...Option) (*Engine, error) {
	switch {
	case deps.Speech == nil:
		return nil, fmt.Errorf("%w: speech", ErrMissingDependency)
	case deps.Routes == nil:
		return nil, fmt.Errorf("%w: routes", ErrMissingDependency)
	case deps.Location == nil:
		return nil, fmt.Errorf("%w: location", ErrMissingDependency)
	case deps.Orientation == nil:
		return nil, fmt.Errorf("%w: orientation", ErrMissingDependency)
	}

	cfg = cfg.withDefaults()
	e := &Engine{
		cfg:        cfg,
		deps:       deps,
		logger:     slog.Default(),
		now:        time.Now,
		mailbox:    newMailbox(),
		closed:     make(chan struct{}),
		runCtx:     context.Background(),
		lastSpoken: -1,
		loopStarts: make(map[string]int),
		loopStops:  make(map[string]int),
		subs:       make(map[int]chan State),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("component", "guidance.engine")
	if e.deps.Haptics == nil {
		e.deps.Haptics = haptic.NewLogBackend(e.logger)
	}

	e.filter = position.NewFilter(cfg.Position)
	e.evaluator = alignment.NewEvaluator(cfg.Alignment)
	e.estimator = heading.NewEstimator(cfg.Heading, deps.Orientation.Capabilities(),
		heading.WithLogger(e.logger),
		heading.WithCallback(e.onHeading),
	)

	e.state = State{Phase: Preparing, Session: uuid.NewString(), Since: e.now()}
	e.refresh()
	return e, nil
}

// Run drains the mailbox until ctx is cancelled or Close is called. On exit
// it stops loops, sensors and any in-flight route request.
func (e *Engine) Run(ctx context.Context) error {
	started := false
	e.runOnce.Do(func() { started = true })
	if !started {
		return fmt.Errorf("guidance: Run called twice")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	e.runCtx = ctx
	e.logger.Info("engine running", "session", e.state.Session)

	defer func() {
		e.shutdown()
		e.mailbox.close()
		e.wg.Wait()
		e.closeSubscribers()
		e.logger.Info("engine stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-e.closed:
			return nil
		case <-e.mailbox.notify:
			for _, fn := range e.mailbox.drain() {
				fn()
			}
			e.refresh()
		}
	}
}

// Close stops Run. Safe to call more than once.
func (e *Engine) Close() {
	e.closeOnce.Do(func() { close(e.closed) })
}

// post hands fn to the control goroutine.
func (e *Engine) post(fn func()) bool {
	return e.mailbox.post(fn)
}

// call runs fn on the control goroutine and waits for it.
func (e *Engine) call(fn func()) error {
	done := make(chan struct{})
	if !e.post(func() {
		fn()
		close(done)
	}) {
		return ErrClosed
	}
	select {
	case <-done:
		return nil
	case <-e.closed:
		return ErrClosed
	}
}

func (e *Engine) shutdown() {
	e.stopLoops()
	e.stopHeadingTracking()
	e.stopTracking()
	e.cancelFetch()
}

// Navigate starts a session towards dest. An active session is failed with
// ErrSuperseded first.
func (e *Engine) Navigate(dest route.Destination) {
	e.post(func() {
		if !e.state.Phase.Terminal() && e.state.Phase != Preparing {
			e.fail(newFailure(Cancelled, "replaced by new destination", ErrSuperseded))
		}
		if e.state.Phase.Terminal() {
			e.dispatch(TriggerReset, nil)
		}
		e.dest = dest
		e.dispatch(TriggerPrepare, nil)
	})
}

// Cancel fails the active session with ErrCancelled.
func (e *Engine) Cancel() {
	e.post(func() {
		e.fail(newFailure(Cancelled, "navigation cancelled", ErrCancelled))
	})
}

// StartTracking starts position tracking. Repeated calls keep one session.
func (e *Engine) StartTracking() {
	e.post(e.startTracking)
}

// StopTracking stops position tracking. A no-op when idle.
func (e *Engine) StopTracking() {
	e.post(e.stopTracking)
}

// HandleLocation implements LocationSink.
func (e *Engine) HandleLocation(fix position.Fix) {
	if fix.Time.IsZero() {
		fix.Time = e.now()
	}
	e.post(func() { e.applyFix(fix) })
}

// HandleAccuracyChanged implements LocationSink.
func (e *Engine) HandleAccuracyChanged(accuracy float64) {
	e.post(func() {
		e.logger.Debug("location accuracy changed", "accuracy", accuracy)
		e.emit(Event{Kind: EventSignal, Detail: "accuracy_changed", Value: accuracy})
	})
}

// HandleSignalWeak implements LocationSink.
func (e *Engine) HandleSignalWeak() {
	e.post(func() {
		e.logger.Warn("GPS signal weak")
		e.emit(Event{Kind: EventSignal, Detail: "signal_weak"})
	})
}

// HandleSignalRestored implements LocationSink.
func (e *Engine) HandleSignalRestored() {
	e.post(func() {
		e.logger.Info("GPS signal restored")
		e.emit(Event{Kind: EventSignal, Detail: "signal_restored"})
	})
}

// HandleOrientation implements OrientationSink.
func (e *Engine) HandleOrientation(s heading.Sample) {
	e.post(func() {
		if !e.headingTracking {
			return
		}
		e.estimator.Process(s)
	})
}

// SetDisplayRotation implements OrientationSink.
func (e *Engine) SetDisplayRotation(r heading.Rotation) {
	e.post(func() {
		e.estimator.SetDisplayRotation(r)
	})
}

// onHeading is the estimator callback. Changes below HeadingPublishDelta are
// not applied.
func (e *Engine) onHeading(deg float64) {
	if e.hasHeading && abs(geo.ShortestDelta(e.headingDeg, deg)) < e.cfg.HeadingPublishDelta {
		return
	}
	e.headingDeg = deg
	e.hasHeading = true
	e.emit(Event{Kind: EventHeading, Heading: deg})
}

func (e *Engine) applyFix(fix position.Fix) {
	e.lastFix = fix
	e.hasFix = true
	if !e.tracking {
		return
	}
	e.pos = e.filter.UpdateFix(fix)
	e.hasPos = true
	p := e.pos
	e.emit(Event{Kind: EventLocation, Position: &p})
	e.checkArrival()
}

// origin is the best known current position for a route search.
func (e *Engine) origin() (geo.Point, bool) {
	if e.hasPos {
		return e.pos.Point, true
	}
	if e.hasFix {
		return e.lastFix.Point(), true
	}
	if lk, ok := e.deps.Location.(LastKnownLocator); ok {
		if fix, ok := lk.LastKnown(); ok {
			return fix.Point(), true
		}
	}
	return geo.Point{}, false
}

// fail moves the machine to Error. Repeats are no-ops.
func (e *Engine) fail(f *Failure) {
	e.dispatch(TriggerFail, f)
}

// dispatch applies a trigger: transition table, tracking side effects,
// publication, then the entry action of the new phase.
func (e *Engine) dispatch(t Trigger, f *Failure) {
	prev := e.state
	nextPhase := Next(prev.Phase, t)
	if nextPhase == prev.Phase {
		e.logger.Debug("trigger ignored", "state", prev.Phase, "trigger", t)
		return
	}

	next := State{Phase: nextPhase, Session: prev.Session, Since: e.now()}
	if nextPhase == Preparing {
		next.Session = uuid.NewString()
	}
	if f != nil && nextPhase == Failed {
		next.Reason = f.Reason
		next.Failure = f
	}
	e.state = next

	e.logger.Info("state changed",
		"from", prev.Phase,
		"to", next.Phase,
		"trigger", t,
		"reason", next.Reason,
		"session", next.Session,
	)

	e.trackingTransition(prev.Phase, next.Phase)
	e.publish(prev, next)
	e.enter(next)
}

// trackingTransition starts tracking when entering a tracked phase from an
// untracked one and stops it when entering a terminal phase.
func (e *Engine) trackingTransition(prev, next Phase) {
	if !prev.Tracked() && next.Tracked() && !e.tracking {
		e.startTracking()
	}
	if !prev.Terminal() && next.Terminal() && e.tracking {
		e.stopTracking()
	}
}

// enter runs the entry action for s. Follow-up transitions are posted so
// each transition is published before the next begins.
func (e *Engine) enter(s State) {
	switch s.Phase {
	case Preparing:
		e.resetSession()

	case SearchingRoute:
		e.searchRoute()

	case ParsingRoute:
		e.parseRoute()

	case AligningDirection:
		e.startHeadingTracking()
		e.evaluator.Reset()
		e.completionPending = false
		e.startLoop(&e.alignLoop, "alignment", e.cfg.AlignmentInterval, e.alignmentTick)

	case GuidingNavigation:
		e.stopLoop(&e.alignLoop)
		e.lastCorrection = time.Time{}
		e.startLoop(&e.guideLoop, "guidance", e.cfg.GuidanceInterval, e.guidanceTick)

	case Finished:
		e.stopTracking()
		e.stopLoops()
		e.stopHeadingTracking()
		e.say(e.cfg.Messages.Finished, false, nil)

	case Failed:
		e.cancelFetch()
		e.stopLoops()
		e.stopHeadingTracking()
		if s.Failure != nil {
			e.logger.Error("navigation failed", "kind", s.Failure.Kind, "reason", s.Failure.Reason, "error", s.Failure.Err)
		}
		if e.cfg.Messages.Failed != "" {
			e.say(e.cfg.Messages.Failed, true, nil)
		}
	}
}

func (e *Engine) resetSession() {
	e.route = nil
	e.payload = nil
	e.lastSpoken = -1
	e.arriving = false
	e.completionPending = false
	e.lastCorrection = time.Time{}
	e.evaluator.Reset()
}

func (e *Engine) searchRoute() {
	origin, ok := e.origin()
	if !ok {
		e.postFail(newFailure(InputMissing, "current position unknown", ErrNoPosition))
		return
	}
	dest, err := e.dest.Point()
	if err != nil {
		kind := InvalidCoordinate
		if errors.Is(err, route.ErrNoDestination) {
			kind = InputMissing
		}
		e.postFail(newFailure(kind, "destination invalid", err))
		return
	}

	req := route.Request{
		Origin:          origin,
		OriginName:      "current location",
		Destination:     dest,
		DestinationName: e.dest.DisplayName(),
	}

	e.cancelFetch()
	e.fetchSeq++
	seq := e.fetchSeq
	ctx, cancel := context.WithTimeout(e.runCtx, e.cfg.FetchTimeout)
	e.fetchStop = cancel

	e.logger.Info("searching route",
		"provider", e.deps.Routes.Name(),
		"origin", origin,
		"destination", dest,
		"name", req.DestinationName,
	)

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer cancel()
		payload, err := e.deps.Routes.Fetch(ctx, req)
		e.post(func() { e.routeFetched(seq, payload, err) })
	}()
}

func (e *Engine) routeFetched(seq uint64, payload route.Payload, err error) {
	if seq != e.fetchSeq || e.state.Phase != SearchingRoute {
		return
	}
	e.fetchStop = nil
	if err != nil {
		e.fail(newFailure(FetchFailure, "route request failed", err))
		return
	}
	e.payload = payload
	e.emit(Event{Kind: EventRoute, Detail: "fetched", Value: float64(len(payload))})
	e.dispatch(TriggerRouteFetched, nil)
}

func (e *Engine) cancelFetch() {
	if e.fetchStop != nil {
		e.fetchStop()
		e.fetchStop = nil
	}
	e.fetchSeq++
}

func (e *Engine) parseRoute() {
	r, err := route.Parse(e.payload, e.logger)
	if err != nil {
		e.postFail(newFailure(ParseFailure, "route payload unreadable", err))
		return
	}
	e.route = r
	e.lastSpoken = -1
	e.emit(Event{Kind: EventRoute, Detail: "parsed", Index: len(r.Waypoints)})
	e.post(func() { e.dispatch(TriggerRouteParsed, nil) })
}

func (e *Engine) postFail(f *Failure) {
	e.post(func() { e.fail(f) })
}

// publish updates the snapshot and notifies subscribers and observers.
func (e *Engine) publish(prev, next State) {
	e.refresh()
	e.broadcast(next)
	p, n := prev, next
	e.emit(Event{Kind: EventStateChanged, Prev: &p, State: &n})
}

func (e *Engine) emit(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = e.now()
	}
	ev.Session = e.state.Session
	for _, o := range e.observers {
		o.Observe(ev)
	}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
