// Package config loads the wayfinder configuration: defaults, then an
// optional YAML file, then environment overrides, then validation.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/teslashibe/go-wayfinder/pkg/guidance"
	"github.com/teslashibe/go-wayfinder/pkg/route"
	"github.com/teslashibe/go-wayfinder/pkg/telemetry"
)

// Default server settings.
const (
	DefaultPort     = "8080"
	DefaultLogLevel = "info"
)

// Route provider names.
const (
	ProviderHTTP   = "http"
	ProviderGoogle = "google"
	ProviderFile   = "file"
)

// Config is the complete application configuration.
type Config struct {
	Server    ServerConfig     `yaml:"server"`
	Log       LogConfig        `yaml:"log"`
	Guidance  guidance.Config  `yaml:"guidance"`
	Route     RouteConfig      `yaml:"route"`
	Telemetry telemetry.Config `yaml:"telemetry"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port string `yaml:"port" validate:"required,numeric"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn warning error"`
}

// RouteConfig selects and configures the route provider.
type RouteConfig struct {
	Provider string             `yaml:"provider" validate:"oneof=http google file"`
	HTTP     route.HTTPConfig   `yaml:"http"`
	Google   route.GoogleConfig `yaml:"google"`
	File     string             `yaml:"file"`

	CacheEnabled bool              `yaml:"cache_enabled"`
	Cache        route.CacheConfig `yaml:"cache"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Server:   ServerConfig{Port: DefaultPort},
		Log:      LogConfig{Level: DefaultLogLevel},
		Guidance: guidance.DefaultConfig(),
		Route: RouteConfig{
			Provider:     ProviderHTTP,
			HTTP:         route.HTTPConfig{KeyHeader: "appKey"},
			CacheEnabled: true,
			Cache:        route.DefaultCacheConfig(),
		},
		Telemetry: telemetry.DefaultConfig(),
	}
}

// Load builds the configuration. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := decode(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	applyEnv(&cfg)
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// decode unmarshals YAML over cfg, rejecting unknown keys.
func decode(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Validate checks struct tags and cross-field rules.
func Validate(cfg Config) error {
	v := validator.New()
	if err := v.Struct(cfg); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	switch cfg.Route.Provider {
	case ProviderHTTP:
		if cfg.Route.HTTP.URL == "" {
			return errors.New("config: route.http.url is required for the http provider")
		}
	case ProviderGoogle:
		if cfg.Route.Google.APIKey == "" {
			return errors.New("config: GOOGLE_MAPS_API_KEY is required for the google provider")
		}
	case ProviderFile:
		if cfg.Route.File == "" {
			return errors.New("config: route.file is required for the file provider")
		}
	}
	if cfg.Route.CacheEnabled && cfg.Route.Cache.Path == "" {
		return errors.New("config: route.cache.path is required when the cache is enabled")
	}
	return nil
}

// applyEnv overrides file values with environment variables.
func applyEnv(cfg *Config) {
	cfg.Server.Port = Env("WAYFINDER_PORT", cfg.Server.Port)
	cfg.Log.Level = Env("LOG_LEVEL", cfg.Log.Level)
	cfg.Route.Provider = Env("ROUTE_PROVIDER", cfg.Route.Provider)
	cfg.Route.HTTP.URL = Env("ROUTE_URL", cfg.Route.HTTP.URL)
	cfg.Route.File = Env("ROUTE_FILE", cfg.Route.File)
	cfg.Route.HTTP.APIKey = Env("ROUTE_API_KEY", cfg.Route.HTTP.APIKey)
	cfg.Route.Google.APIKey = Env("GOOGLE_MAPS_API_KEY", cfg.Route.Google.APIKey)
	cfg.Route.Cache.Path = Env("ROUTE_CACHE_PATH", cfg.Route.Cache.Path)
	cfg.Route.CacheEnabled = EnvBool("ROUTE_CACHE", cfg.Route.CacheEnabled)

	if broker := os.Getenv("MQTT_BROKER"); broker != "" {
		cfg.Telemetry.Broker = broker
		cfg.Telemetry.Enabled = true
	}
	cfg.Telemetry.Username = Env("MQTT_USERNAME", cfg.Telemetry.Username)
	cfg.Telemetry.Password = Env("MQTT_PASSWORD", cfg.Telemetry.Password)
}

// Env returns the value of key, or def when unset.
func Env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// EnvBool returns the boolean value of key, or def when unset or unparsable.
func EnvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
