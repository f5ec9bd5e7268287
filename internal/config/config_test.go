package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "les02.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, "localhost:8765", cfg.WS.Listen)
	assert.Equal(t, SourceSocketCAN, cfg.Source.Kind)
}

func TestLoad_YAML(t *testing.T) {
	path := writeFile(t, `
source:
  kind: replay
  replay_file: capture.log
  replay_pace: true
bridge:
  handoff_capacity: 16
ws:
  listen: 0.0.0.0:9000
  allowed_origins: [http://dashboard.local]
  write_timeout: 2s
  codec: cbor
log:
  level: debug
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, SourceReplay, cfg.Source.Kind)
	assert.Equal(t, "capture.log", cfg.Source.ReplayFile)
	assert.True(t, cfg.Source.ReplayPace)
	assert.Equal(t, 16, cfg.Bridge.HandoffCapacity)
	assert.Equal(t, "0.0.0.0:9000", cfg.WS.Listen)
	assert.Equal(t, []string{"http://dashboard.local"}, cfg.WS.AllowedOrigins)
	assert.Equal(t, 2*time.Second, cfg.WS.WriteTimeout)
	assert.Equal(t, "cbor", cfg.WS.Codec)
	assert.Equal(t, "debug", cfg.Log.Level)

	// untouched keys keep their defaults
	assert.Equal(t, "/", cfg.WS.Path)
	assert.Equal(t, 256, cfg.WS.OutboxSize)
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	path := writeFile(t, "source:\n  kind: mock-counter\nws:\n  listen: localhost:1\n")

	t.Setenv("LES02_WS_LISTEN", "localhost:2")
	t.Setenv("LES02_SOURCE_MOCK_INTERVAL", "5ms")
	t.Setenv("LES02_WS_ALLOWED_ORIGINS", "http://a,http://b")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, SourceMockCounter, cfg.Source.Kind)
	assert.Equal(t, "localhost:2", cfg.WS.Listen)
	assert.Equal(t, 5*time.Millisecond, cfg.Source.MockInterval)
	assert.Equal(t, []string{"http://a", "http://b"}, cfg.WS.AllowedOrigins)
}

func TestLoad_Invalid(t *testing.T) {
	path := writeFile(t, "source:\n  kind: carrier-pigeon\nws:\n  codec: xml\n  path: ws\n")

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "carrier-pigeon")
	assert.Contains(t, err.Error(), "ws.codec")
	assert.Contains(t, err.Error(), "ws.path")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate_ReplayNeedsFile(t *testing.T) {
	cfg := Default()
	cfg.Source.Kind = SourceReplay
	assert.Error(t, cfg.Validate())

	cfg.Source.ReplayFile = "-"
	assert.NoError(t, cfg.Validate())
}

func TestValidate_MockIntervalOnlyForCounter(t *testing.T) {
	cfg := Default()
	cfg.Source.MockInterval = 0

	cfg.Source.Kind = SourceMockCounter
	assert.ErrorContains(t, cfg.Validate(), "source.mock_interval")

	cfg.Source.Kind = SourceMockTrip
	assert.NoError(t, cfg.Validate())
}
