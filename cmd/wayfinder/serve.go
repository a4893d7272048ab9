package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/teslashibe/go-wayfinder/internal/config"
	"github.com/teslashibe/go-wayfinder/internal/log"
	"github.com/teslashibe/go-wayfinder/pkg/device"
	"github.com/teslashibe/go-wayfinder/pkg/guidance"
	"github.com/teslashibe/go-wayfinder/pkg/hub"
	"github.com/teslashibe/go-wayfinder/pkg/metrics"
	"github.com/teslashibe/go-wayfinder/pkg/route"
	"github.com/teslashibe/go-wayfinder/pkg/speech"
	"github.com/teslashibe/go-wayfinder/pkg/telemetry"
	"github.com/teslashibe/go-wayfinder/pkg/web"
)

const cachePruneInterval = time.Hour

var (
	configPath string
	servePort  string
	logSpeech  bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the guidance engine and its HTTP/websocket server",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to a YAML config file")
	serveCmd.Flags().StringVarP(&servePort, "port", "p", "", "HTTP port (overrides config)")
	serveCmd.Flags().BoolVar(&logSpeech, "log-speech", false, "Speak into the server log instead of on the phone")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if servePort != "" {
		cfg.Server.Port = servePort
	}
	initLogging(cfg.Log.Level)
	logger := log.L()

	ctx := cmd.Context()

	provider, cache, err := buildProvider(cfg.Route, logger)
	if err != nil {
		return err
	}
	if cache != nil {
		defer func() {
			if err := cache.Close(); err != nil {
				logger.Warn("close route cache", "error", err)
			}
		}()
	}

	// The phone is reached through the device hub; the bridge turns its frames
	// into sensor callbacks and the engine's output into frames.
	var engine *guidance.Engine
	deviceHub := hub.New("device", hub.WithLogger(logger))
	bridge := device.NewBridge(deviceHub,
		device.WithLogger(logger),
		device.WithNavigateHandler(func(d route.Destination) { engine.Navigate(d) }),
		device.WithCancelHandler(func() { engine.Cancel() }),
	)
	var speaker *speech.Speaker
	if logSpeech {
		speaker = speech.NewSpeaker(speech.NewLogBackend(logger, speech.DefaultCharDuration),
			speech.WithReady(), speech.WithLogger(logger))
	} else {
		speaker = speech.NewSpeaker(bridge.Speech(), speech.WithLogger(logger))
		bridge.AttachSpeaker(speaker)
	}
	defer speaker.Shutdown()

	collector := metrics.New()

	opts := []guidance.Option{
		guidance.WithLogger(logger),
		guidance.WithObserver(collector),
	}

	var publisher *telemetry.Publisher
	if cfg.Telemetry.Enabled {
		publisher, err = telemetry.NewPublisher(cfg.Telemetry, logger)
		if err != nil {
			return err
		}
		opts = append(opts, guidance.WithObserver(publisher))
	}

	var server *web.Server
	opts = append(opts, guidance.WithObserver(guidance.ObserverFunc(func(ev guidance.Event) {
		if server != nil {
			server.Observe(ev)
		}
	})))

	engine, err = guidance.New(cfg.Guidance, guidance.Dependencies{
		Location:    bridge.Location(),
		Orientation: bridge.Orientation(),
		Speech:      speaker,
		Haptics:     bridge.Haptics(),
		Routes:      provider,
	}, opts...)
	if err != nil {
		return fmt.Errorf("create engine: %w", err)
	}

	server = web.NewServer(cfg.Server.Port, engine,
		web.WithLogger(logger),
		web.WithDevice(bridge, deviceHub),
		web.WithMetrics(collector.Registry()),
	)

	logger.Info("wayfinder starting",
		"port", cfg.Server.Port,
		"provider", provider.Name(),
		"telemetry", cfg.Telemetry.Enabled,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return engine.Run(gctx) })
	g.Go(func() error { return server.Run(gctx) })
	if publisher != nil {
		g.Go(func() error { return publisher.Run(gctx) })
	}
	if cache != nil {
		g.Go(func() error { return pruneLoop(gctx, cache, logger) })
	}

	err = g.Wait()
	logger.Info("wayfinder stopped")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// buildProvider creates the configured route provider, wrapped in the
// persistent cache when enabled. The caller closes the returned cache.
func buildProvider(cfg config.RouteConfig, logger *slog.Logger) (route.Provider, *route.Cache, error) {
	var (
		p   route.Provider
		err error
	)
	switch cfg.Provider {
	case config.ProviderGoogle:
		p, err = route.NewGoogleProvider(cfg.Google, route.WithGoogleLogger(logger))
	case config.ProviderFile:
		p, err = route.NewFileProvider(cfg.File)
	default:
		p, err = route.NewHTTPProvider(cfg.HTTP, route.WithHTTPLogger(logger))
	}
	if err != nil {
		return nil, nil, fmt.Errorf("route provider %s: %w", cfg.Provider, err)
	}

	// A local file never needs caching.
	if !cfg.CacheEnabled || cfg.Provider == config.ProviderFile {
		return p, nil, nil
	}
	cache, err := route.OpenCache(cfg.Cache, logger)
	if err != nil {
		return nil, nil, err
	}
	return route.NewCachedProvider(p, cache, logger), cache, nil
}

func pruneLoop(ctx context.Context, cache *route.Cache, logger *slog.Logger) error {
	ticker := time.NewTicker(cachePruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := cache.Prune()
			if err != nil {
				logger.Warn("prune route cache", "error", err)
				continue
			}
			if n > 0 {
				logger.Info("pruned route cache", "removed", n)
			}
		}
	}
}
