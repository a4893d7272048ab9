package web

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-wayfinder/pkg/hub"
	"github.com/teslashibe/go-wayfinder/pkg/route"
)

// NavigateRequest is the body of POST /api/navigate. Coordinates are
// strings as search results deliver them; the engine validates them.
type NavigateRequest struct {
	Name string `json:"name"`
	Lat  string `json:"lat"`
	Lon  string `json:"lon"`
}

func (s *Server) handleError(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	if code >= fiber.StatusInternalServerError {
		s.logger.Error("request failed", "path", c.Path(), "error", err)
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.engine.Snapshot())
}

func (s *Server) handleNavigate(c *fiber.Ctx) error {
	var req NavigateRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	dest := route.Destination{Name: req.Name, Lat: req.Lat, Lon: req.Lon}
	s.logger.Info("navigate requested", "name", dest.DisplayName(), "lat", req.Lat, "lon", req.Lon)
	s.engine.Navigate(dest)
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"destination": dest.DisplayName()})
}

func (s *Server) handleCancel(c *fiber.Ctx) error {
	s.engine.Cancel()
	return c.SendStatus(fiber.StatusAccepted)
}

func (s *Server) handleStatusWS(conn *websocket.Conn) {
	hub.NewClient(s.statusHub, conn).Run()
}

// handleDeviceWS feeds phone frames to the bridge until the socket closes.
func (s *Server) handleDeviceWS(conn *websocket.Conn) {
	client := hub.NewClient(s.deviceHub, conn)
	client.OnMessage = func(data []byte) {
		if err := s.bridge.HandleFrame(data); err != nil {
			s.logger.Warn("bad device frame", "error", err)
		}
	}
	client.Run()
	s.bridge.Disconnected()
}
