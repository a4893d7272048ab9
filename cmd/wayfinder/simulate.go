package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/teslashibe/go-wayfinder/internal/log"
	"github.com/teslashibe/go-wayfinder/pkg/device"
	"github.com/teslashibe/go-wayfinder/pkg/geo"
	"github.com/teslashibe/go-wayfinder/pkg/heading"
	"github.com/teslashibe/go-wayfinder/pkg/route"
)

var sim struct {
	url        string
	routePath  string
	speed      float64
	turnRate   float64
	heading    float64
	accuracy   float64
	fixEvery   time.Duration
	orientEach time.Duration
	perChar    time.Duration
	navigate   bool
}

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Walk a GeoJSON route as a simulated phone connected to /ws/device",
	Long: `simulate connects to a running wayfinder server as the phone would. It
streams location and rotation-vector samples while a virtual walker turns
toward the next waypoint and walks along the route, and it acknowledges
speak frames after a delay proportional to the text length.`,
	RunE: runSimulate,
}

func init() {
	f := simulateCmd.Flags()
	f.StringVar(&sim.url, "url", "ws://localhost:8080/ws/device", "Device websocket URL")
	f.StringVar(&sim.routePath, "route", "", "GeoJSON route to walk (required)")
	f.Float64Var(&sim.speed, "speed", 1.4, "Walking speed in m/s")
	f.Float64Var(&sim.turnRate, "turn-rate", 45, "Turning speed in degrees per second")
	f.Float64Var(&sim.heading, "heading", 180, "Initial compass heading in degrees")
	f.Float64Var(&sim.accuracy, "accuracy", 5, "Reported fix accuracy in meters")
	f.DurationVar(&sim.fixEvery, "fix-interval", time.Second, "Interval between location fixes")
	f.DurationVar(&sim.orientEach, "orientation-interval", 100*time.Millisecond, "Interval between orientation samples")
	f.DurationVar(&sim.perChar, "speech-rate", 60*time.Millisecond, "Simulated speaking time per character")
	f.BoolVar(&sim.navigate, "navigate", true, "Request navigation to the last waypoint after connecting")
	_ = simulateCmd.MarkFlagRequired("route")
}

func runSimulate(cmd *cobra.Command, args []string) error {
	initLogging("info")
	logger := log.Component("simulator")

	data, err := os.ReadFile(sim.routePath)
	if err != nil {
		return fmt.Errorf("read route: %w", err)
	}
	r, err := route.Parse(data, logger)
	if err != nil {
		return err
	}
	if len(r.Waypoints) == 0 {
		return route.ErrNoWaypoints
	}

	conn, _, err := websocket.DefaultDialer.DialContext(cmd.Context(), sim.url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", sim.url, err)
	}
	defer conn.Close()

	w := newWalker(conn, r, logger)
	return w.run(cmd.Context())
}

// walker is a virtual pedestrian holding a phone.
type walker struct {
	conn   *websocket.Conn
	route  *route.Route
	logger *slog.Logger

	writeMu sync.Mutex

	mu        sync.Mutex
	pos       geo.Point
	heading   float64
	target    int // index into route.Waypoints
	locating  bool
	orienting bool
	speaking  map[string]context.CancelFunc
}

func newWalker(conn *websocket.Conn, r *route.Route, logger *slog.Logger) *walker {
	return &walker{
		conn:     conn,
		route:    r,
		logger:   logger,
		pos:      r.Waypoints[0].Point,
		heading:  geo.Normalize(sim.heading),
		target:   1,
		speaking: make(map[string]context.CancelFunc),
	}
}

func (w *walker) send(f device.Frame) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	return w.conn.WriteJSON(f)
}

func (w *walker) run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	caps := heading.Capabilities{RotationVector: true}
	if err := w.send(device.Frame{Type: device.TypeHello, Capabilities: &caps}); err != nil {
		return err
	}
	if err := w.send(device.Frame{Type: device.TypeSpeechReady}); err != nil {
		return err
	}
	// The engine plans from the last known fix, so one goes out up front.
	if err := w.sendFix(); err != nil {
		return err
	}

	if sim.navigate {
		last := w.route.Waypoints[len(w.route.Waypoints)-1]
		f := device.Frame{
			Type:    device.TypeNavigate,
			Name:    last.Description,
			DestLat: strconv.FormatFloat(last.Point.Lat, 'f', 7, 64),
			DestLon: strconv.FormatFloat(last.Point.Lon, 'f', 7, 64),
		}
		if err := w.send(f); err != nil {
			return err
		}
		w.logger.Info("navigation requested", "waypoints", len(w.route.Waypoints))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// Closing the connection unblocks ReadMessage.
		<-gctx.Done()
		w.writeMu.Lock()
		_ = w.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		w.writeMu.Unlock()
		return w.conn.Close()
	})
	g.Go(func() error { return w.readLoop(gctx) })
	g.Go(func() error { return w.moveLoop(gctx) })

	err := g.Wait()
	if errors.Is(err, context.Canceled) || websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		return nil
	}
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// readLoop answers the frames the server sends to the phone.
func (w *walker) readLoop(ctx context.Context) error {
	for {
		_, data, err := w.conn.ReadMessage()
		if err != nil {
			return err
		}
		var f device.Frame
		if err := json.Unmarshal(data, &f); err != nil {
			w.logger.Warn("bad frame", "error", err)
			continue
		}

		switch f.Type {
		case device.TypeLocationStart:
			w.setStreams(func() { w.locating = true })
		case device.TypeLocationStop:
			w.setStreams(func() { w.locating = false })
		case device.TypeOrientationStart:
			w.setStreams(func() { w.orienting = true })
		case device.TypeOrientationStop:
			w.setStreams(func() { w.orienting = false })
		case device.TypeSpeak:
			w.speak(ctx, f.ID, f.Text)
		case device.TypeSpeechStop:
			w.interrupt()
		case device.TypeVibrate:
			w.logger.Info("vibrate", "ms", f.Millis)
		case device.TypeVibratePattern:
			w.logger.Info("vibrate pattern", "pattern", f.Pattern)
		default:
			w.logger.Debug("frame ignored", "type", f.Type)
		}
	}
}

func (w *walker) setStreams(fn func()) {
	w.mu.Lock()
	fn()
	w.mu.Unlock()
}

// speak plays an utterance for a time proportional to its length.
func (w *walker) speak(ctx context.Context, id, text string) {
	w.logger.Info("speaking", "text", text)
	uctx, cancel := context.WithCancel(ctx)
	w.mu.Lock()
	w.speaking[id] = cancel
	w.mu.Unlock()

	_ = w.send(device.Frame{Type: device.TypeSpeechStart, ID: id})
	go func() {
		d := time.Duration(len(text)) * sim.perChar
		select {
		case <-time.After(d):
		case <-uctx.Done():
			return
		}
		w.mu.Lock()
		_, live := w.speaking[id]
		delete(w.speaking, id)
		w.mu.Unlock()
		if live {
			_ = w.send(device.Frame{Type: device.TypeSpeechDone, ID: id})
		}
	}()
}

// interrupt cuts every utterance in progress.
func (w *walker) interrupt() {
	w.mu.Lock()
	cut := w.speaking
	w.speaking = make(map[string]context.CancelFunc)
	w.mu.Unlock()
	for id, cancel := range cut {
		cancel()
		_ = w.send(device.Frame{Type: device.TypeSpeechError, ID: id, Error: "interrupted"})
	}
}

// moveLoop turns the walker toward the current target, walks when roughly
// facing it and streams samples while the server asked for them.
func (w *walker) moveLoop(ctx context.Context) error {
	orient := time.NewTicker(sim.orientEach)
	defer orient.Stop()
	fix := time.NewTicker(sim.fixEvery)
	defer fix.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case now := <-orient.C:
			dt := now.Sub(last).Seconds()
			last = now
			if done := w.step(dt); done {
				w.logger.Info("route walked")
			}
			w.mu.Lock()
			on, h := w.orienting, w.heading
			w.mu.Unlock()
			if on {
				f := device.Frame{
					Type:   device.TypeOrientation,
					Kind:   heading.SensorRotationVector,
					Values: heading.UprightRotationVector(h),
				}
				if err := w.send(f); err != nil {
					return err
				}
			}

		case <-fix.C:
			w.mu.Lock()
			on := w.locating
			w.mu.Unlock()
			if on {
				if err := w.sendFix(); err != nil {
					return err
				}
			}
		}
	}
}

// step advances the walker by dt seconds and reports whether the end of the
// route has been reached.
func (w *walker) step(dt float64) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.target >= len(w.route.Waypoints) {
		return false
	}
	goal := w.route.Waypoints[w.target].Point
	bearing := geo.Bearing(w.pos, goal)

	delta := geo.ShortestDelta(w.heading, bearing)
	maxTurn := sim.turnRate * dt
	if math.Abs(delta) > maxTurn {
		delta = math.Copysign(maxTurn, delta)
	}
	w.heading = geo.Normalize(w.heading + delta)

	// Only walk while the user would be roughly on course.
	if math.Abs(geo.ShortestDelta(w.heading, bearing)) > 30 {
		return false
	}
	// Standing still until guidance starts keeps alignment realistic.
	if !w.locating {
		return false
	}

	remaining := geo.Distance(w.pos, goal)
	stride := sim.speed * dt
	if stride < remaining {
		w.pos = geo.Offset(w.pos, bearing, stride)
		return false
	}
	w.pos = goal
	w.target++
	return w.target == len(w.route.Waypoints)
}

func (w *walker) sendFix() error {
	w.mu.Lock()
	p := w.pos
	w.mu.Unlock()
	now := time.Now()
	return w.send(device.Frame{
		Type:     device.TypeLocation,
		Lat:      p.Lat,
		Lon:      p.Lon,
		Accuracy: sim.accuracy,
		Time:     &now,
	})
}
