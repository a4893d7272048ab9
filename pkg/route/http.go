package route

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/teslashibe/go-wayfinder/internal/httpc"
)

// Default HTTP provider settings.
const (
	DefaultHTTPTimeout = 10 * time.Second
	maxPayloadBytes    = 8 << 20
)

// HTTPConfig configures an HTTPProvider.
type HTTPConfig struct {
	// URL of the pedestrian route endpoint. Receives a JSON POST and answers
	// with a GeoJSON FeatureCollection.
	URL string `yaml:"url" json:"url" validate:"omitempty,url"`

	// APIKey is sent in the KeyHeader header when set.
	APIKey    string `yaml:"api_key" json:"-"`
	KeyHeader string `yaml:"key_header" json:"key_header"`

	Timeout time.Duration `yaml:"timeout" json:"timeout"`
}

// HTTPProvider fetches GeoJSON walking routes from an HTTP endpoint.
type HTTPProvider struct {
	cfg    HTTPConfig
	client *http.Client
	logger *slog.Logger
}

// HTTPOption configures an HTTPProvider.
type HTTPOption func(*HTTPProvider)

// WithHTTPClient overrides the HTTP client (tests, proxies).
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(p *HTTPProvider) {
		p.client = c
	}
}

// WithHTTPLogger sets the structured logger.
func WithHTTPLogger(l *slog.Logger) HTTPOption {
	return func(p *HTTPProvider) {
		p.logger = l
	}
}

// NewHTTPProvider creates a GeoJSON route provider.
func NewHTTPProvider(cfg HTTPConfig, opts ...HTTPOption) (*HTTPProvider, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, fmt.Errorf("route: http provider URL required")
	}
	if cfg.KeyHeader == "" {
		cfg.KeyHeader = "appKey"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultHTTPTimeout
	}
	p := &HTTPProvider{
		cfg:    cfg,
		client: httpc.Client,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With("component", "route.http")
	return p, nil
}

// Name implements Provider.
func (p *HTTPProvider) Name() string {
	return "http"
}

type routeRequest struct {
	StartX       float64 `json:"startX"`
	StartY       float64 `json:"startY"`
	EndX         float64 `json:"endX"`
	EndY         float64 `json:"endY"`
	StartName    string  `json:"startName"`
	EndName      string  `json:"endName"`
	ReqCoordType string  `json:"reqCoordType"`
	ResCoordType string  `json:"resCoordType"`
}

// Fetch implements Provider.
func (p *HTTPProvider) Fetch(ctx context.Context, req Request) (Payload, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	body, err := json.Marshal(routeRequest{
		StartX:       req.Origin.Lon,
		StartY:       req.Origin.Lat,
		EndX:         req.Destination.Lon,
		EndY:         req.Destination.Lat,
		StartName:    nonEmpty(req.OriginName, "origin"),
		EndName:      nonEmpty(req.DestinationName, "destination"),
		ReqCoordType: "WGS84GEO",
		ResCoordType: "WGS84GEO",
	})
	if err != nil {
		return nil, WrapError(p.Name(), err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return nil, WrapError(p.Name(), err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if p.cfg.APIKey != "" {
		httpReq.Header.Set(p.cfg.KeyHeader, p.cfg.APIKey)
	}

	start := time.Now()
	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, WrapError(p.Name(), err)
	}
	data, err := httpc.ReadBody(resp, maxPayloadBytes)
	if err != nil {
		return nil, WrapError(p.Name(), err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(data)),
			Provider:   p.Name(),
		}
	}

	p.logger.Debug("route fetched",
		"bytes", len(data),
		"latency_ms", time.Since(start).Milliseconds(),
	)
	return Payload(data), nil
}

func nonEmpty(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}
