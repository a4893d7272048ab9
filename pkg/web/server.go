// Package web serves the wayfinder control API, the status and device
// websockets, and Prometheus metrics.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/teslashibe/go-wayfinder/pkg/device"
	"github.com/teslashibe/go-wayfinder/pkg/guidance"
	"github.com/teslashibe/go-wayfinder/pkg/hub"
	"github.com/teslashibe/go-wayfinder/pkg/route"
)

const shutdownTimeout = 5 * time.Second

// Controller is the engine surface the server drives. *guidance.Engine
// implements it.
type Controller interface {
	Navigate(dest route.Destination)
	Cancel()
	Snapshot() guidance.Snapshot
}

// Server is the HTTP front end.
type Server struct {
	app    *fiber.App
	port   string
	engine Controller
	logger *slog.Logger

	statusHub *hub.Hub
	deviceHub *hub.Hub
	bridge    *device.Bridge
	gatherer  prometheus.Gatherer
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// WithDevice enables /ws/device. Frames from the phone go to bridge; frames
// for the phone are broadcast on h.
func WithDevice(bridge *device.Bridge, h *hub.Hub) Option {
	return func(s *Server) {
		s.bridge = bridge
		s.deviceHub = h
	}
}

// WithMetrics serves g on /metrics.
func WithMetrics(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

// NewServer creates the server and its routes.
func NewServer(port string, engine Controller, opts ...Option) *Server {
	s := &Server{
		port:   port,
		engine: engine,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "web.server")
	s.statusHub = hub.New("status", hub.WithLogger(s.logger))
	s.statusHub.Greeting = s.greeting

	app := fiber.New(fiber.Config{
		AppName:               "wayfinder",
		DisableStartupMessage: true,
		ErrorHandler:          s.handleError,
	})
	app.Use(recover.New())
	app.Use(cors.New())

	app.Get("/healthz", s.handleHealth)

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Post("/navigate", s.handleNavigate)
	api.Post("/cancel", s.handleCancel)

	if s.gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/status", websocket.New(s.handleStatusWS))
	if s.bridge != nil {
		app.Get("/ws/device", websocket.New(s.handleDeviceWS))
	}

	s.app = app
	return s
}

// App returns the fiber app (tests).
func (s *Server) App() *fiber.App {
	return s.app
}

// StatusHub returns the hub behind /ws/status.
func (s *Server) StatusHub() *hub.Hub {
	return s.statusHub
}

// Run serves until ctx ends, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go s.statusHub.Run(ctx)
	if s.deviceHub != nil {
		go s.deviceHub.Run(ctx)
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", ":"+s.port)
		errc <- s.app.Listen(":" + s.port)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	if err := s.app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		s.logger.Warn("shutdown", "error", err)
	}
	if err := <-errc; err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// statusFrame is sent on /ws/status.
type statusFrame struct {
	Type     string             `json:"type"`
	Snapshot *guidance.Snapshot `json:"snapshot,omitempty"`
	Event    *guidance.Event    `json:"event,omitempty"`
}

func (s *Server) greeting() (hub.Message, bool) {
	snap := s.engine.Snapshot()
	data, err := json.Marshal(statusFrame{Type: "status", Snapshot: &snap})
	if err != nil {
		return hub.Message{}, false
	}
	return hub.NewJSONMessage(data), true
}

// Observe implements guidance.Observer: every event except raw location and
// heading updates is forwarded to status clients.
func (s *Server) Observe(ev guidance.Event) {
	if s.statusHub.ClientCount() == 0 {
		return
	}
	switch ev.Kind {
	case guidance.EventLocation, guidance.EventHeading, guidance.EventAlignment:
		return
	}
	// The hub logs its own drops.
	err := s.statusHub.BroadcastJSON(statusFrame{Type: "event", Event: &ev})
	if err != nil && !errors.Is(err, hub.ErrQueueFull) {
		s.logger.Warn("status encode failed", "kind", ev.Kind, "error", err)
	}
}
