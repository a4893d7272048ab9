package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "wayfinder.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFile(t *testing.T) {
	path := writeFile(t, `
server:
  port: "9090"
log:
  level: debug
guidance:
  alignment_interval: 200ms
  speak_interval: 3s
  arrival_radius: 12
  alignment:
    threshold: 15
    stable_checks: 4
  messages:
    turn_left: "Links"
route:
  provider: http
  http:
    url: https://routes.example.com/pedestrian
  cache:
    path: /tmp/routes.db
    ttl: 1h
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 200*time.Millisecond, cfg.Guidance.AlignmentInterval)
	assert.Equal(t, 3*time.Second, cfg.Guidance.SpeakInterval)
	assert.Equal(t, 500*time.Millisecond, cfg.Guidance.GuidanceInterval, "unset keys keep defaults")
	assert.Equal(t, 12.0, cfg.Guidance.ArrivalRadius)
	assert.Equal(t, 15.0, cfg.Guidance.Alignment.Threshold)
	assert.Equal(t, 4, cfg.Guidance.Alignment.StableChecks)
	assert.Equal(t, "Links", cfg.Guidance.Messages.TurnLeft)
	assert.Equal(t, "Turn right", cfg.Guidance.Messages.TurnRight)
	assert.Equal(t, time.Hour, cfg.Route.Cache.TTL)
	assert.Equal(t, 4, cfg.Route.Cache.OriginPrecision)
	assert.Equal(t, "appKey", cfg.Route.HTTP.KeyHeader)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("WAYFINDER_PORT", "7000")
	t.Setenv("ROUTE_PROVIDER", "google")
	t.Setenv("GOOGLE_MAPS_API_KEY", "secret")
	t.Setenv("MQTT_BROKER", "tcp://broker:1883")
	t.Setenv("ROUTE_CACHE", "false")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "7000", cfg.Server.Port)
	assert.Equal(t, ProviderGoogle, cfg.Route.Provider)
	assert.Equal(t, "secret", cfg.Route.Google.APIKey)
	assert.True(t, cfg.Telemetry.Enabled)
	assert.Equal(t, "tcp://broker:1883", cfg.Telemetry.Broker)
	assert.False(t, cfg.Route.CacheEnabled)
}

func TestLoadRejects(t *testing.T) {
	tests := []struct {
		name string
		body string
		env  map[string]string
		msg  string
	}{
		{name: "unknown key", body: "server:\n  prot: \"1\"\n", msg: "prot"},
		{name: "bad level", body: "log:\n  level: loud\nroute:\n  http:\n    url: http://x.test\n", msg: "Level"},
		{name: "missing url", body: "route:\n  provider: http\n", msg: "route.http.url"},
		{name: "google without key", body: "route:\n  provider: google\n", msg: "GOOGLE_MAPS_API_KEY"},
		{name: "file without path", body: "route:\n  provider: file\n", msg: "route.file"},
		{name: "bad threshold", body: "guidance:\n  alignment:\n    threshold: 200\nroute:\n  http:\n    url: http://x.test\n", msg: "Threshold"},
		{name: "bad port", body: "server:\n  port: abc\nroute:\n  http:\n    url: http://x.test\n", msg: "Port"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yml"))
	assert.Error(t, err)
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("WF_TEST_BOOL", "yes")
	assert.True(t, EnvBool("WF_TEST_BOOL", true), "unparsable keeps default")
	t.Setenv("WF_TEST_BOOL", "0")
	assert.False(t, EnvBool("WF_TEST_BOOL", true))
	assert.Equal(t, "d", Env("WF_TEST_UNSET", "d"))
}
