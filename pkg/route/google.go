package route

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"regexp"
	"strings"

	"googlemaps.github.io/maps"

	"github.com/teslashibe/go-wayfinder/internal/httpc"
	"github.com/teslashibe/go-wayfinder/pkg/geo"
)

// GoogleConfig configures a GoogleProvider.
type GoogleConfig struct {
	APIKey   string `yaml:"api_key" json:"-"`
	Language string `yaml:"language" json:"language"`

	// BaseURL overrides the Maps API endpoint (tests).
	BaseURL string `yaml:"base_url" json:"base_url,omitempty"`
}

// GoogleProvider fetches walking directions from the Google Maps Directions
// API and converts the steps into the GeoJSON shape Parse understands.
type GoogleProvider struct {
	client *maps.Client
	cfg    GoogleConfig
	logger *slog.Logger
}

// GoogleOption configures a GoogleProvider.
type GoogleOption func(*googleOptions)

type googleOptions struct {
	httpClient *http.Client
	logger     *slog.Logger
}

// WithGoogleHTTPClient overrides the HTTP client.
func WithGoogleHTTPClient(c *http.Client) GoogleOption {
	return func(o *googleOptions) {
		o.httpClient = c
	}
}

// WithGoogleLogger sets the structured logger.
func WithGoogleLogger(l *slog.Logger) GoogleOption {
	return func(o *googleOptions) {
		o.logger = l
	}
}

// NewGoogleProvider creates a Directions-backed provider.
func NewGoogleProvider(cfg GoogleConfig, opts ...GoogleOption) (*GoogleProvider, error) {
	if cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	o := googleOptions{
		httpClient: httpc.Client,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	clientOpts := []maps.ClientOption{
		maps.WithAPIKey(cfg.APIKey),
		maps.WithHTTPClient(o.httpClient),
	}
	if cfg.BaseURL != "" {
		clientOpts = append(clientOpts, maps.WithBaseURL(cfg.BaseURL))
	}
	client, err := maps.NewClient(clientOpts...)
	if err != nil {
		return nil, WrapError("google", err)
	}

	return &GoogleProvider{
		client: client,
		cfg:    cfg,
		logger: o.logger.With("component", "route.google"),
	}, nil
}

// Name implements Provider.
func (p *GoogleProvider) Name() string {
	return "google"
}

// Fetch implements Provider.
func (p *GoogleProvider) Fetch(ctx context.Context, req Request) (Payload, error) {
	routes, _, err := p.client.Directions(ctx, &maps.DirectionsRequest{
		Origin:      latLng(req.Origin),
		Destination: latLng(req.Destination),
		Mode:        maps.TravelModeWalking,
		Language:    p.cfg.Language,
	})
	if err != nil {
		return nil, WrapError(p.Name(), err)
	}
	if len(routes) == 0 || len(routes[0].Legs) == 0 {
		return nil, WrapError(p.Name(), ErrNoRoute)
	}

	waypoints, lines := convertDirections(routes[0], req.DestinationName)
	p.logger.Debug("directions converted",
		"waypoints", len(waypoints),
		"lines", len(lines),
	)
	return Encode(waypoints, lines)
}

func latLng(p geo.Point) string {
	return fmt.Sprintf("%.7f,%.7f", p.Lat, p.Lon)
}

var htmlTag = regexp.MustCompile(`<[^>]*>`)

// plainInstruction strips markup from Directions step instructions.
func plainInstruction(s string) string {
	s = strings.ReplaceAll(s, "<div", " <div")
	s = htmlTag.ReplaceAllString(s, "")
	return strings.Join(strings.Fields(html.UnescapeString(s)), " ")
}

var turnWord = regexp.MustCompile(`\b(?:(slight|sharp)\s+)?(left|right)\b`)

// turnFromInstruction derives a walking-API turn code from a step's HTML
// instruction. Only the main clause counts; trailing <div> notes such as
// "Destination will be on the left" are ignored. Anything without a
// direction is straight (11).
func turnFromInstruction(htmlInstruction string) int {
	main, _, _ := strings.Cut(htmlInstruction, "<div")
	s := strings.ToLower(plainInstruction(main))
	if strings.Contains(s, "u-turn") || strings.Contains(s, "uturn") {
		return 14
	}
	m := turnWord.FindStringSubmatch(s)
	if m == nil {
		return 11
	}
	switch m[1] + " " + m[2] {
	case "slight left":
		return 16
	case "sharp left":
		return 17
	case "slight right":
		return 18
	case "sharp right":
		return 19
	case " left":
		return 12
	default:
		return 13
	}
}

// convertDirections turns each step start into a guide point, the final
// step end into the end point, and each step polyline into a line.
func convertDirections(r maps.Route, destName string) ([]Waypoint, []Line) {
	var (
		waypoints []Waypoint
		lines     []Line
		idx       int
		lineIdx   int
	)

	for _, leg := range r.Legs {
		for _, step := range leg.Steps {
			pointType := PointGuide
			if idx == 0 {
				pointType = PointStart
			}
			turn := turnFromInstruction(step.HTMLInstructions)
			waypoints = append(waypoints, Waypoint{
				Index:       idx,
				Point:       geo.Point{Lat: step.StartLocation.Lat, Lon: step.StartLocation.Lng},
				Description: plainInstruction(step.HTMLInstructions),
				PointType:   pointType,
				TurnType:    &turn,
			})
			idx++

			pts, err := step.Polyline.Decode()
			if err != nil || len(pts) == 0 {
				pts = []maps.LatLng{step.StartLocation, step.EndLocation}
			}
			line := Line{
				Index:       lineIdx,
				HasIndex:    true,
				Description: plainInstruction(step.HTMLInstructions),
			}
			meters := step.Distance.Meters
			secs := int(step.Duration.Seconds())
			line.Distance, line.Time = &meters, &secs
			for _, ll := range pts {
				line.Points = append(line.Points, geo.Point{Lat: ll.Lat, Lon: ll.Lng})
			}
			lines = append(lines, line)
			lineIdx++
		}
	}

	if n := len(r.Legs); n > 0 {
		last := r.Legs[n-1]
		end := last.EndLocation
		if len(last.Steps) > 0 {
			end = last.Steps[len(last.Steps)-1].EndLocation
		}
		turn := 201
		waypoints = append(waypoints, Waypoint{
			Index:       idx,
			Point:       geo.Point{Lat: end.Lat, Lon: end.Lng},
			Description: fmt.Sprintf("Arriving at %s", nonEmpty(destName, "your destination")),
			Name:        destName,
			PointType:   PointEnd,
			TurnType:    &turn,
		})
	}
	return waypoints, lines
}
